package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultManifests(t *testing.T) {
	set := DefaultManifests()
	for _, name := range []string{"laps", "weather", "gaps", "car_data", "pos_data", "race_results"} {
		m, ok := set[name]
		require.True(t, ok, name)
		assert.NoError(t, m.Validate())
	}
	laps := set["laps"]
	assert.Equal(t, "LapStartTime", laps.Time)
	assert.Equal(t, KindDuration, laps.Columns["LapTime"])
	assert.Equal(t, KindOffset, laps.Columns["LapStartTime"])
	assert.Equal(t, []IntervalDecl{{"LapStartTime", "LapTime", "LapEndTime"}}, laps.Intervals)
	assert.Empty(t, set["weather"].Entity)
}

func TestLoadManifests(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{
			name: "valid",
			yaml: `
manifests:
  - name: laps
    entity: DriverNumber
    time: LapStartTime
    columns:
      LapStartTime: offset
      LapTime: duration
`,
		},
		{
			name: "unknown kind",
			yaml: `
manifests:
  - name: laps
    columns:
      LapTime: seconds
`,
			wantErr: true,
		},
		{
			name: "time column not declared",
			yaml: `
manifests:
  - name: laps
    time: LapStartTime
    columns:
      LapTime: duration
`,
			wantErr: true,
		},
		{
			name: "time column numeric",
			yaml: `
manifests:
  - name: laps
    time: LapNumber
    columns:
      LapNumber: numeric
`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadManifests(strings.NewReader(tt.yaml))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Contains(t, got, "laps")
		})
	}
}

func TestKindCell(t *testing.T) {
	assert.Equal(t, CellOffset, KindAbsoluteTime.Cell())
	assert.Equal(t, CellOffset, KindOffset.Cell())
	assert.Equal(t, CellNum, KindDuration.Cell())
	assert.Equal(t, CellNum, KindGap.Cell())
	assert.Equal(t, CellFlag, KindFlag.Cell())
	assert.Equal(t, CellStr, KindCategorical.Cell())
}
