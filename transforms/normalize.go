package transforms

import (
	"fmt"
	"math"
	"sort"

	"segloader/stats"
	"segloader/volume"
)

const defaultEps = 1e-10

func meanStd(data []float64) (float64, float64) {
	if len(data) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, x := range data {
		sum += x
	}
	mean := sum / float64(len(data))
	sq := 0.0
	for _, x := range data {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq / float64(len(data)))
}

func minMax(data []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range data {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}

// eachChannel runs fn over every channel of a 4D volume when channelwise is
// set, otherwise over the whole volume.
func eachChannel(v *volume.Volume, channelwise bool, fn func(data []float64)) {
	if channelwise && v.Rank() == 4 {
		for _, c := range v.Channels() {
			fn(c.Data)
		}
		return
	}
	fn(v.Data)
}

type standardize struct {
	eps         float64
	mean, std   float64
	fixed       bool
	channelwise bool
}

func newStandardize(p Params) (Transform, error) {
	eps, err := p.Options.Float("eps", defaultEps)
	if err != nil {
		return nil, err
	}
	channelwise, err := p.Options.Bool("channelwise", false)
	if err != nil {
		return nil, err
	}
	mean, hasMean, err := p.Options.OptionalFloat("mean")
	if err != nil {
		return nil, err
	}
	std, hasStd, err := p.Options.OptionalFloat("std")
	if err != nil {
		return nil, err
	}
	if hasMean != hasStd {
		return nil, fmt.Errorf("%w: mean and std must be given together", ErrBadOption)
	}

	t := &standardize{eps: eps, channelwise: channelwise}
	switch {
	case hasMean:
		t.mean, t.std, t.fixed = mean, std, true
	case !p.Stats.Skipped:
		t.mean, t.std, t.fixed = p.Stats.Mean, p.Stats.Std, true
	}
	return t, nil
}

func (t *standardize) Apply(v *volume.Volume) (*volume.Volume, error) {
	eachChannel(v, t.channelwise && !t.fixed, func(data []float64) {
		mean, std := t.mean, t.std
		if !t.fixed {
			mean, std = meanStd(data)
		}
		std = math.Max(std, t.eps)
		for i, x := range data {
			data[i] = (x - mean) / std
		}
	})
	return v, nil
}

type percentileNormalizer struct {
	lowQ, highQ float64
	eps         float64
	pmin, pmax  float64
	fixed       bool
	channelwise bool
}

func newPercentileNormalizer(p Params) (Transform, error) {
	t := &percentileNormalizer{}
	var err error
	if t.lowQ, err = p.Options.Float("pmin", stats.LowPercentile); err != nil {
		return nil, err
	}
	if t.highQ, err = p.Options.Float("pmax", stats.HighPercentile); err != nil {
		return nil, err
	}
	if t.eps, err = p.Options.Float("eps", defaultEps); err != nil {
		return nil, err
	}
	if t.channelwise, err = p.Options.Bool("channelwise", false); err != nil {
		return nil, err
	}
	if t.lowQ >= t.highQ {
		return nil, fmt.Errorf("%w: pmin %v must be below pmax %v", ErrBadOption, t.lowQ, t.highQ)
	}
	if !p.Stats.Skipped {
		t.pmin, t.pmax, t.fixed = p.Stats.PMin, p.Stats.PMax, true
	}
	return t, nil
}

func (t *percentileNormalizer) Apply(v *volume.Volume) (*volume.Volume, error) {
	eachChannel(v, t.channelwise && !t.fixed, func(data []float64) {
		lo, hi := t.pmin, t.pmax
		if !t.fixed {
			sorted := append([]float64(nil), data...)
			sort.Float64s(sorted)
			lo = stats.Percentile(sorted, t.lowQ)
			hi = stats.Percentile(sorted, t.highQ)
		}
		scale := hi - lo + t.eps
		for i, x := range data {
			data[i] = (x - lo) / scale
		}
	})
	return v, nil
}

type normalize struct {
	min, max       float64
	hasMin, hasMax bool
	norm01         bool
	eps            float64
}

func newNormalize(p Params) (Transform, error) {
	t := &normalize{}
	var err error
	if t.min, t.hasMin, err = p.Options.OptionalFloat("min_value"); err != nil {
		return nil, err
	}
	if t.max, t.hasMax, err = p.Options.OptionalFloat("max_value"); err != nil {
		return nil, err
	}
	if t.norm01, err = p.Options.Bool("norm01", false); err != nil {
		return nil, err
	}
	if t.eps, err = p.Options.Float("eps", defaultEps); err != nil {
		return nil, err
	}
	if t.hasMin && t.hasMax && t.max <= t.min {
		return nil, fmt.Errorf("%w: max_value %v must exceed min_value %v", ErrBadOption, t.max, t.min)
	}
	return t, nil
}

func (t *normalize) Apply(v *volume.Volume) (*volume.Volume, error) {
	lo, hi := minMax(v.Data)
	if t.hasMin {
		lo = t.min
	}
	if t.hasMax {
		hi = t.max
	}
	scale := hi - lo + t.eps
	v.Map(func(x float64) float64 {
		n := (x - lo) / scale
		if t.norm01 {
			return clamp(n, 0, 1)
		}
		return clamp(2*n-1, -1, 1)
	})
	return v, nil
}

func newClip(p Params) (Transform, error) {
	lo, err := p.Options.Float("min_value", math.Inf(-1))
	if err != nil {
		return nil, err
	}
	hi, err := p.Options.Float("max_value", math.Inf(1))
	if err != nil {
		return nil, err
	}
	if hi < lo {
		return nil, fmt.Errorf("%w: max_value %v below min_value %v", ErrBadOption, hi, lo)
	}
	return Func(func(v *volume.Volume) (*volume.Volume, error) {
		return v.Map(func(x float64) float64 { return clamp(x, lo, hi) }), nil
	}), nil
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
