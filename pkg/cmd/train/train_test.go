package train

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/telemetry-merger/pkg/model"
	"github.com/mpapenbr/telemetry-merger/pkg/tyre"
)

func Test_selection(t *testing.T) {
	got, err := selection(&trainConfig{
		sessionTypes: []string{"r", "Q"},
		beforeSeason: 2024,
		traffic:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, []model.SessionType{model.SessionRace, model.SessionQ}, got.SessionTypes)
	assert.Equal(t, 2024, got.BeforeSeason)
	assert.Equal(t, append(append([]string{}, tyre.BaseFeatures...), tyre.TrafficFeatures...), got.Numeric)

	got, err = selection(&trainConfig{})
	require.NoError(t, err)
	assert.Nil(t, got.Numeric)

	_, err = selection(&trainConfig{sessionTypes: []string{"XX"}})
	assert.Error(t, err)
}
