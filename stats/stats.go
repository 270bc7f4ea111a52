// Package stats computes the global normalization statistics of a raw volume.
package stats

import (
	"errors"
	"math"
	"sort"
)

const (
	// LowPercentile and HighPercentile bound the intensity range used by percentile normalization.
	LowPercentile  = 1.0
	HighPercentile = 99.6
)

var ErrEmpty = errors.New("data is empty")

// Stats summarizes a raw array. A Skipped value carries no statistics and
// tells transforms to fall back to per-sample behavior.
type Stats struct {
	PMin    float64 `json:"pmin"`
	PMax    float64 `json:"pmax"`
	Mean    float64 `json:"mean"`
	Std     float64 `json:"std"`
	Skipped bool    `json:"skipped"`
}

// Neutral returns the statistics used when global normalization is disabled.
func Neutral() Stats {
	return Stats{Skipped: true}
}

// Calculate returns percentiles, mean and population standard deviation of
// data. With skip set, data is ignored and Neutral is returned.
func Calculate(data []float64, skip bool) (Stats, error) {
	if skip {
		return Neutral(), nil
	}
	if len(data) == 0 {
		return Stats{}, ErrEmpty
	}

	sum := 0.0
	for _, x := range data {
		sum += x
	}
	mean := sum / float64(len(data))

	sq := 0.0
	for _, x := range data {
		d := x - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(data)))

	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)

	return Stats{
		PMin: Percentile(sorted, LowPercentile),
		PMax: Percentile(sorted, HighPercentile),
		Mean: mean,
		Std:  std,
	}, nil
}

// Percentile returns the q-th percentile (0..100) of sorted using linear
// interpolation between closest ranks.
func Percentile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	q = math.Max(0, math.Min(100, q))
	pos := q / 100 * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
