package tyre

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const defaultKMeansIterations = 300

// KMeans clusters standardized samples. Seeding uses k-means++ with a fixed
// seed so repeated runs give the same clusters.
type KMeans struct {
	Mean      []float64   `json:"mean"`
	Std       []float64   `json:"std"`
	Centroids [][]float64 `json:"centroids"`
}

func (k *KMeans) scale(x []float64) []float64 {
	ret := make([]float64, len(x))
	for i, v := range x {
		ret[i] = (v - k.Mean[i]) / k.Std[i]
	}
	return ret
}

func nearest(centroids [][]float64, z []float64) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for i, c := range centroids {
		if d := floats.Distance(c, z, 2); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

// FitKMeans partitions x into k clusters
func FitKMeans(x [][]float64, k int, seed uint64) (*KMeans, error) {
	if k <= 0 || k > len(x) {
		return nil, fmt.Errorf("need 0 < k <= %d samples, got k=%d", len(x), k)
	}
	dim := len(x[0])
	ret := &KMeans{Mean: make([]float64, dim), Std: make([]float64, dim)}
	col := make([]float64, len(x))
	for j := range dim {
		for i := range x {
			col[i] = x[i][j]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		ret.Mean[j], ret.Std[j] = mean, std
	}
	z := make([][]float64, len(x))
	for i := range x {
		z[i] = ret.scale(x[i])
	}

	rnd := rand.New(rand.NewPCG(seed, seed))
	ret.Centroids = seedCentroids(z, k, rnd)

	assign := make([]int, len(z))
	for i := range assign {
		assign[i] = -1
	}
	for range defaultKMeansIterations {
		changed := false
		for i, v := range z {
			c, _ := nearest(ret.Centroids, v)
			if c != assign[i] {
				assign[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}
		sums := make([][]float64, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float64, dim)
		}
		for i, v := range z {
			floats.Add(sums[assign[i]], v)
			counts[assign[i]]++
		}
		for c := range k {
			// empty clusters keep their centroid
			if counts[c] > 0 {
				floats.Scale(1/float64(counts[c]), sums[c])
				ret.Centroids[c] = sums[c]
			}
		}
	}
	return ret, nil
}

// seedCentroids picks k centroids, each further one with a probability
// proportional to the squared distance to the closest chosen centroid
func seedCentroids(z [][]float64, k int, rnd *rand.Rand) [][]float64 {
	ret := make([][]float64, 0, k)
	ret = append(ret, clone(z[rnd.IntN(len(z))]))
	weights := make([]float64, len(z))
	for len(ret) < k {
		for i, v := range z {
			_, d := nearest(ret, v)
			weights[i] = d * d
		}
		total := floats.Sum(weights)
		if total == 0 {
			// all remaining samples coincide with a centroid
			ret = append(ret, clone(z[rnd.IntN(len(z))]))
			continue
		}
		target := rnd.Float64() * total
		idx := len(z) - 1
		for i, w := range weights {
			target -= w
			if target < 0 {
				idx = i
				break
			}
		}
		ret = append(ret, clone(z[idx]))
	}
	return ret
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}

// Predict returns the cluster of an unscaled sample
func (k *KMeans) Predict(x []float64) int {
	c, _ := nearest(k.Centroids, k.scale(x))
	return c
}

// Labels returns the clusters of all samples
func (k *KMeans) Labels(x [][]float64) []int {
	ret := make([]int, len(x))
	for i := range x {
		ret[i] = k.Predict(x[i])
	}
	return ret
}
