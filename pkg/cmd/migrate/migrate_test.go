package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_prepareURLForDB(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"plain", "postgresql://u:p@db/tmg", "postgresql://u:p@db/tmg?sslmode=disable"},
		{"with params", "postgresql://u:p@db/tmg?a=b", "postgresql://u:p@db/tmg?a=b&sslmode=disable"},
		{"keep sslmode", "postgresql://u:p@db/tmg?sslmode=require", "postgresql://u:p@db/tmg?sslmode=require"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, prepareURLForDB(tt.url))
		})
	}
}

func Test_redact(t *testing.T) {
	assert.Equal(t, "postgresql://u:***@db/tmg", redact("postgresql://u:secret@db/tmg"))
	assert.Equal(t, "postgresql://u@db/tmg", redact("postgresql://u@db/tmg"))
	assert.Equal(t, "merged.db", redact("merged.db"))
}
