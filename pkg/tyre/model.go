package tyre

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/mpapenbr/telemetry-merger/log"
)

// MinLapTime is the lower bound of every prediction in seconds
const MinLapTime = 30.0

const defaultLambda = 1e-4

type (
	// Model is a degree 2 polynomial ridge regression on standardized inputs
	Model struct {
		Features []string    `json:"features"`
		Mean     []float64   `json:"mean"`
		Std      []float64   `json:"std"`
		Terms    [][2]int    `json:"terms"` // -1 marks the constant factor
		Coef     []float64   `json:"coef"`
		Lambda   float64     `json:"lambda"`
		Samples  int         `json:"samples"`
		Extra    ModelExtras `json:"extra,omitempty"`
	}
	ModelExtras struct {
		Score float64 `json:"score,omitempty"`
	}
	FitOption func(*fitConfig)
	fitConfig struct {
		lambda float64
		l      *log.Logger
	}
)

// WithLambda sets the ridge penalty. Zero gives plain least squares.
func WithLambda(lambda float64) FitOption {
	return func(c *fitConfig) {
		c.lambda = lambda
	}
}

func WithLogger(l *log.Logger) FitOption {
	return func(c *fitConfig) {
		c.l = l
	}
}

// polyTerms returns the bias, all linear terms and all products x_i*x_j, i<=j
func polyTerms(n int) [][2]int {
	ret := [][2]int{{-1, -1}}
	for i := range n {
		ret = append(ret, [2]int{i, -1})
	}
	for i := range n {
		for j := i; j < n; j++ {
			ret = append(ret, [2]int{i, j})
		}
	}
	return ret
}

func factor(z []float64, idx int) float64 {
	if idx < 0 {
		return 1
	}
	return z[idx]
}

func (m *Model) expand(x []float64) []float64 {
	z := make([]float64, len(x))
	for i, v := range x {
		z[i] = (v - m.Mean[i]) / m.Std[i]
	}
	ret := make([]float64, len(m.Terms))
	for i, t := range m.Terms {
		ret[i] = factor(z, t[0]) * factor(z, t[1])
	}
	return ret
}

// Fit trains a model on ds
func Fit(ds *Dataset, opts ...FitOption) (*Model, error) {
	cfg := &fitConfig{lambda: defaultLambda, l: log.Default().Named("tyre")}
	for _, opt := range opts {
		opt(cfg)
	}
	if ds == nil || ds.Len() == 0 {
		return nil, ErrNoData
	}
	nf := len(ds.Features)
	m := &Model{
		Features: slices.Clone(ds.Features),
		Mean:     make([]float64, nf),
		Std:      make([]float64, nf),
		Terms:    polyTerms(nf),
		Lambda:   cfg.lambda,
		Samples:  ds.Len(),
	}
	col := make([]float64, ds.Len())
	for j := range nf {
		for i, x := range ds.X {
			col[i] = x[j]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		m.Mean[j], m.Std[j] = mean, std
	}

	p := len(m.Terms)
	n := ds.Len()
	// ridge as augmented least squares: [Phi; sqrt(lambda) I] c = [y; 0]
	a := mat.NewDense(n+p, p, nil)
	b := mat.NewVecDense(n+p, nil)
	for i, x := range ds.X {
		a.SetRow(i, m.expand(x))
		b.SetVec(i, ds.Y[i])
	}
	if cfg.lambda > 0 {
		s := math.Sqrt(cfg.lambda)
		// the intercept is not penalized
		for j := 1; j < p; j++ {
			a.Set(n+j, j, s)
		}
	}
	var qr mat.QR
	qr.Factorize(a)
	var c mat.VecDense
	if err := qr.SolveVecTo(&c, false, b); err != nil {
		return nil, fmt.Errorf("solve: %w", err)
	}
	m.Coef = make([]float64, p)
	for j := range p {
		m.Coef[j] = c.AtVec(j)
	}
	score, err := m.Score(ds)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(score) {
		// constant target
		score = 0
	}
	m.Extra.Score = score
	cfg.l.Debug("model fitted",
		log.Int("samples", n),
		log.Int("terms", p),
		log.Float64("r2", score))
	return m, nil
}

func (m *Model) eval(x []float64) float64 {
	return max(floats.Dot(m.Coef, m.expand(x)), MinLapTime)
}

// Predict returns the lap time for x. features must equal the trained names.
func (m *Model) Predict(features []string, x []float64) (float64, error) {
	if !slices.Equal(features, m.Features) || len(x) != len(m.Features) {
		return 0, fmt.Errorf("%w: got %v, want %v", ErrFeatureMismatch, features, m.Features)
	}
	return m.eval(x), nil
}

// PredictDataset predicts all samples of ds
func (m *Model) PredictDataset(ds *Dataset) ([]float64, error) {
	if !slices.Equal(ds.Features, m.Features) {
		return nil, fmt.Errorf("%w: got %v, want %v", ErrFeatureMismatch, ds.Features, m.Features)
	}
	ret := make([]float64, ds.Len())
	for i, x := range ds.X {
		ret[i] = m.eval(x)
	}
	return ret, nil
}

// Score returns the coefficient of determination on ds
func (m *Model) Score(ds *Dataset) (float64, error) {
	pred, err := m.PredictDataset(ds)
	if err != nil {
		return 0, err
	}
	return stat.RSquaredFrom(pred, ds.Y, nil), nil
}

// PredictLap implements Predictor
func (m *Model) PredictLap(c Conditions) (float64, error) {
	return m.Predict(m.Features, Vector(m.Features, c.values(), c.Compound))
}

func (m *Model) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

func (m *Model) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := m.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func Load(r io.Reader) (*Model, error) {
	var m Model
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, err
	}
	nf := len(m.Features)
	if len(m.Mean) != nf || len(m.Std) != nf || len(m.Coef) != len(m.Terms) {
		return nil, fmt.Errorf("inconsistent model: %d features, %d terms, %d coefficients",
			nf, len(m.Terms), len(m.Coef))
	}
	return &m, nil
}

func LoadFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}
