package transforms

import (
	"fmt"
	"math/rand"

	"segloader/volume"
)

// spatialOffset is 0 for (Z, Y, X) volumes and 1 for (C, Z, Y, X).
func spatialOffset(v *volume.Volume) (int, error) {
	switch v.Rank() {
	case 3:
		return 0, nil
	case 4:
		return 1, nil
	default:
		return 0, fmt.Errorf("expected a 3D or 4D volume, got shape %v", v.Shape)
	}
}

type randomFlip struct {
	rng      *rand.Rand
	axisProb float64
}

func newRandomFlip(p Params) (Transform, error) {
	prob, err := p.Options.Float("axis_prob", 0.5)
	if err != nil {
		return nil, err
	}
	return &randomFlip{rng: p.Rand, axisProb: prob}, nil
}

func (t *randomFlip) Apply(v *volume.Volume) (*volume.Volume, error) {
	off, err := spatialOffset(v)
	if err != nil {
		return nil, err
	}
	for axis := 0; axis < 3; axis++ {
		if t.rng.Float64() > t.axisProb {
			if v, err = v.Flip(axis + off); err != nil {
				return nil, err
			}
		}
	}
	return v, nil
}

type randomRotate90 struct {
	rng *rand.Rand
}

func newRandomRotate90(p Params) (Transform, error) {
	return &randomRotate90{rng: p.Rand}, nil
}

// Apply rotates in the YX plane so the depth axis is left alone.
func (t *randomRotate90) Apply(v *volume.Volume) (*volume.Volume, error) {
	off, err := spatialOffset(v)
	if err != nil {
		return nil, err
	}
	k := t.rng.Intn(4)
	return v.Rot90(k, 1+off, 2+off)
}

type randomContrast struct {
	rng        *rand.Rand
	alphaLo    float64
	alphaHi    float64
	mean       float64
	executionP float64
}

func newRandomContrast(p Params) (Transform, error) {
	t := &randomContrast{rng: p.Rand}
	var err error
	if t.alphaLo, t.alphaHi, err = p.Options.Range("alpha", 0.5, 1.5); err != nil {
		return nil, err
	}
	if t.mean, err = p.Options.Float("mean", 0); err != nil {
		return nil, err
	}
	if t.executionP, err = p.Options.Float("execution_probability", 0.1); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *randomContrast) Apply(v *volume.Volume) (*volume.Volume, error) {
	if t.rng.Float64() >= t.executionP {
		return v, nil
	}
	alpha := t.alphaLo + t.rng.Float64()*(t.alphaHi-t.alphaLo)
	return v.Map(func(x float64) float64 {
		return clamp(t.mean+alpha*(x-t.mean), -1, 1)
	}), nil
}

type additiveGaussianNoise struct {
	rng        *rand.Rand
	scaleLo    float64
	scaleHi    float64
	executionP float64
}

func newAdditiveGaussianNoise(p Params) (Transform, error) {
	t := &additiveGaussianNoise{rng: p.Rand}
	var err error
	if t.scaleLo, t.scaleHi, err = p.Options.Range("scale", 0, 1); err != nil {
		return nil, err
	}
	if t.executionP, err = p.Options.Float("execution_probability", 0.1); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *additiveGaussianNoise) Apply(v *volume.Volume) (*volume.Volume, error) {
	if t.rng.Float64() >= t.executionP {
		return v, nil
	}
	std := t.scaleLo + t.rng.Float64()*(t.scaleHi-t.scaleLo)
	return v.Map(func(x float64) float64 {
		return x + t.rng.NormFloat64()*std
	}), nil
}
