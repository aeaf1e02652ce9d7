package utils

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFromDBURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"with port", "postgresql://user:pw@db:5433/tmg", "db:5433"},
		{"default port", "postgresql://user:pw@db/tmg?sslmode=disable", "db:5432"},
		{"short scheme", "postgres://user@localhost:5432/tmg", "localhost:5432"},
		{"no user", "postgres://localhost/tmg", "localhost:5432"},
		{"sqlite file", "merged.db", ""},
		{"other scheme", "nats://localhost:4222", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractFromDBURL(tt.url))
		})
	}
}

func TestWaitForTCP(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	assert.NoError(t, WaitForTCP(addr, time.Second))
	lis.Close()

	assert.Error(t, WaitForTCP(addr, 300*time.Millisecond))
}
