package tyre

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mpapenbr/telemetry-merger/pkg/model"
)

type (
	// Conditions describe a single lap to predict
	Conditions struct {
		TyreLife    float64
		TrackTemp   float64
		AirTemp     float64
		Pressure    float64
		Rainfall    float64
		GapToLeader float64
		Interval    float64
		Compound    string
	}
	Predictor interface {
		PredictLap(c Conditions) (float64, error)
	}
	// Clustered selects a model by the k-means cluster of the conditions
	Clustered struct {
		KMeans   *KMeans
		Features []string // cluster features, see ClusterFeatures
		Models   map[int]Predictor
		Fallback Predictor // used for clusters without a model
	}
)

// ClusterFeatures are the default inputs of the racing situation clusters
var ClusterFeatures = []string{
	model.ColTyreLife, model.ColGapToLeader, model.ColInterval,
	model.ColTrackTemp, model.ColPressure, model.ColRainfall,
}

func (c Conditions) values() map[string]float64 {
	return map[string]float64{
		model.ColTyreLife:    c.TyreLife,
		model.ColTrackTemp:   c.TrackTemp,
		model.ColAirTemp:     c.AirTemp,
		model.ColPressure:    c.Pressure,
		model.ColRainfall:    c.Rainfall,
		model.ColGapToLeader: c.GapToLeader,
		model.ColInterval:    c.Interval,
	}
}

// ClusterMatrix extracts the cluster features of all rows, nulls become 0
func ClusterMatrix(tbl *model.Table, features []string) [][]float64 {
	ret := make([][]float64, 0, tbl.Len())
	for _, r := range tbl.Rows {
		x := make([]float64, len(features))
		for i, f := range features {
			if v, ok := numericValue(r, f); ok {
				x[i] = v
			}
		}
		ret = append(ret, x)
	}
	return ret
}

func (p *Clustered) PredictLap(c Conditions) (float64, error) {
	values := c.values()
	x := make([]float64, len(p.Features))
	for i, f := range p.Features {
		x[i] = values[f]
	}
	cluster := p.KMeans.Predict(x)
	m, ok := p.Models[cluster]
	if !ok {
		m = p.Fallback
	}
	if m == nil {
		return 0, fmt.Errorf("no model for cluster %d", cluster)
	}
	return m.PredictLap(c)
}

// ClusterModel is the persistable form of Clustered
type ClusterModel struct {
	KMeans   *KMeans        `json:"kmeans"`
	Features []string       `json:"features"`
	Models   map[int]*Model `json:"models"`
	Fallback *Model         `json:"fallback"`
}

// FitClustered groups the rows of tbl into k situations and trains one model
// per cluster plus a fallback model on all rows. Clusters without usable rows
// use the fallback.
//
//nolint:whitespace // can't make both editor and linter happy
func FitClustered(
	tbl *model.Table, sel Selection, k int, seed uint64, opts ...FitOption,
) (*ClusterModel, error) {
	selected := &model.Table{Name: tbl.Name}
	for _, r := range tbl.Rows {
		if sel.accept(r.Session) {
			selected.Rows = append(selected.Rows, r)
		}
	}
	all, err := BuildDataset(selected, sel)
	if err != nil {
		return nil, err
	}
	fallback, err := Fit(all, opts...)
	if err != nil {
		return nil, err
	}
	km, err := FitKMeans(ClusterMatrix(selected, ClusterFeatures), k, seed)
	if err != nil {
		return nil, err
	}
	buckets := make([][]*model.Row, k)
	labels := km.Labels(ClusterMatrix(selected, ClusterFeatures))
	for i, r := range selected.Rows {
		buckets[labels[i]] = append(buckets[labels[i]], r)
	}
	ret := &ClusterModel{
		KMeans:   km,
		Features: ClusterFeatures,
		Models:   map[int]*Model{},
		Fallback: fallback,
	}
	for c, rows := range buckets {
		ds, err := BuildDataset(model.NewTable(tbl.Name, rows...), sel)
		if err != nil {
			continue
		}
		if m, err := Fit(ds, opts...); err == nil {
			ret.Models[c] = m
		}
	}
	return ret, nil
}

func (c *ClusterModel) Predictor() *Clustered {
	ret := &Clustered{
		KMeans:   c.KMeans,
		Features: c.Features,
		Models:   map[int]Predictor{},
	}
	if c.Fallback != nil {
		ret.Fallback = c.Fallback
	}
	for k, m := range c.Models {
		ret.Models[k] = m
	}
	return ret
}

func (c *ClusterModel) PredictLap(cond Conditions) (float64, error) {
	return c.Predictor().PredictLap(cond)
}

func (c *ClusterModel) SaveFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func LoadClusterFile(path string) (*ClusterModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ret ClusterModel
	if err := json.Unmarshal(data, &ret); err != nil {
		return nil, err
	}
	if ret.KMeans == nil || len(ret.KMeans.Centroids) == 0 {
		return nil, fmt.Errorf("%s: missing clusters", path)
	}
	return &ret, nil
}

// LoadPredictor loads a plain or a clustered model file
func LoadPredictor(path string) (Predictor, error) {
	if c, err := LoadClusterFile(path); err == nil {
		return c, nil
	}
	return LoadFile(path)
}
