package tyre

import (
	"path/filepath"
	"testing"

	"github.com/aarondl/opt/null"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/telemetry-merger/pkg/model"
)

func blobs() [][]float64 {
	ret := [][]float64{}
	for i := range 10 {
		d := float64(i%3) * 0.1
		ret = append(ret, []float64{d, 1000 + d})
		ret = append(ret, []float64{10 + d, 1100 - d})
	}
	return ret
}

func TestFitKMeans(t *testing.T) {
	x := blobs()
	km, err := FitKMeans(x, 2, 42)
	require.NoError(t, err)
	labels := km.Labels(x)
	for i := 0; i < len(x); i += 2 {
		assert.Equal(t, labels[0], labels[i])
		assert.Equal(t, labels[1], labels[i+1])
	}
	assert.NotEqual(t, labels[0], labels[1])

	assert.Equal(t, labels[0], km.Predict([]float64{1, 1010}))
	assert.Equal(t, labels[1], km.Predict([]float64{9, 1090}))

	again, err := FitKMeans(x, 2, 42)
	require.NoError(t, err)
	assert.Equal(t, km.Centroids, again.Centroids)
}

func TestFitKMeansInvalidK(t *testing.T) {
	_, err := FitKMeans(blobs(), 0, 1)
	assert.Error(t, err)
	_, err = FitKMeans([][]float64{{1}}, 2, 1)
	assert.Error(t, err)
}

func TestFitKMeansIdentical(t *testing.T) {
	km, err := FitKMeans([][]float64{{1, 1}, {1, 1}, {1, 1}}, 2, 3)
	require.NoError(t, err)
	assert.Len(t, km.Centroids, 2)
	assert.Equal(t, 0, km.Predict([]float64{1, 1}))
}

type fixedPredictor float64

func (f fixedPredictor) PredictLap(Conditions) (float64, error) {
	return float64(f), nil
}

func TestClustered(t *testing.T) {
	cold := model.NewRow(race2019, "1")
	cold.Num[model.ColTrackTemp] = null.From(20.0)
	cold.Flags[model.ColRainfall] = null.From(true)
	hot := model.NewRow(race2019, "1")
	hot.Num[model.ColTrackTemp] = null.From(50.0)
	hot.Flags[model.ColRainfall] = null.From(false)
	tbl := model.NewTable("merged", cold, cold.Clone(), hot, hot.Clone())

	features := []string{model.ColTrackTemp, model.ColRainfall}
	x := ClusterMatrix(tbl, features)
	assert.Equal(t, []float64{20, 1}, x[0])
	assert.Equal(t, []float64{50, 0}, x[2])

	km, err := FitKMeans(x, 2, 1)
	require.NoError(t, err)
	coldCluster := km.Predict(x[0])
	p := &Clustered{
		KMeans:   km,
		Features: features,
		Models:   map[int]Predictor{coldCluster: fixedPredictor(100)},
		Fallback: fixedPredictor(80),
	}
	got, err := p.PredictLap(Conditions{TrackTemp: 21, Rainfall: 1})
	require.NoError(t, err)
	assert.Equal(t, 100.0, got)
	got, err = p.PredictLap(Conditions{TrackTemp: 48})
	require.NoError(t, err)
	assert.Equal(t, 80.0, got)

	p.Fallback = nil
	_, err = p.PredictLap(Conditions{TrackTemp: 48})
	assert.Error(t, err)
}

func TestFitClustered(t *testing.T) {
	tbl := trainingTable(90)
	cm, err := FitClustered(tbl, Selection{}, 2, 42)
	require.NoError(t, err)
	require.NotNil(t, cm.Fallback)
	assert.Len(t, cm.KMeans.Centroids, 2)
	assert.NotEmpty(t, cm.Models)

	path := filepath.Join(t.TempDir(), "clustered.json")
	require.NoError(t, cm.SaveFile(path))
	p, err := LoadPredictor(path)
	require.NoError(t, err)
	loaded, ok := p.(*ClusterModel)
	require.True(t, ok)

	cond := Conditions{TyreLife: 12, TrackTemp: 36, AirTemp: 22, Pressure: 1007, Compound: "SOFT"}
	var want float64
	cluster := cm.KMeans.Predict([]float64{12, 0, 0, 36, 1007, 0})
	if m, ok := cm.Models[cluster]; ok {
		want, err = m.PredictLap(cond)
	} else {
		want, err = cm.Fallback.PredictLap(cond)
	}
	require.NoError(t, err)
	got, err := loaded.PredictLap(cond)
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-9)

	_, err = FitClustered(tbl, Selection{BeforeSeason: 1990}, 2, 42)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestLoadPredictorPlain(t *testing.T) {
	ds, err := BuildDataset(trainingTable(60), Selection{})
	require.NoError(t, err)
	m, err := Fit(ds)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "plain.json")
	require.NoError(t, m.SaveFile(path))

	p, err := LoadPredictor(path)
	require.NoError(t, err)
	_, ok := p.(*Model)
	assert.True(t, ok)
}
