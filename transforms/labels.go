package transforms

import (
	"fmt"
	"sort"

	"segloader/volume"
)

func newToTensor(p Params) (Transform, error) {
	expand, err := p.Options.Bool("expand_dims", false)
	if err != nil {
		return nil, err
	}
	return Func(func(v *volume.Volume) (*volume.Volume, error) {
		if expand && v.Rank() == 3 {
			return v.ExpandDims(), nil
		}
		return v, nil
	}), nil
}

func newRelabel(Params) (Transform, error) {
	return Func(relabel), nil
}

// relabel maps label values to 0..n-1 preserving their sorted order.
func relabel(v *volume.Volume) (*volume.Volume, error) {
	seen := make(map[float64]struct{})
	for _, x := range v.Data {
		seen[x] = struct{}{}
	}
	values := make([]float64, 0, len(seen))
	for x := range seen {
		values = append(values, x)
	}
	sort.Float64s(values)
	index := make(map[float64]float64, len(values))
	for i, x := range values {
		index[x] = float64(i)
	}
	return v.Map(func(x float64) float64 { return index[x] }), nil
}

func newStandardLabelToBoundary(Params) (Transform, error) {
	return Func(labelToBoundary), nil
}

// labelToBoundary marks every voxel whose face neighbor carries a different label.
func labelToBoundary(v *volume.Volume) (*volume.Volume, error) {
	if v.Rank() != 3 {
		return nil, fmt.Errorf("expected a 3D label volume, got shape %v", v.Shape)
	}
	d, h, w := v.Shape[0], v.Shape[1], v.Shape[2]
	out, err := volume.New(d, h, w)
	if err != nil {
		return nil, err
	}
	at := func(z, y, x int) int { return (z*h+y)*w + x }
	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := at(z, y, x)
				if (z+1 < d && v.Data[at(z+1, y, x)] != v.Data[i]) ||
					(y+1 < h && v.Data[at(z, y+1, x)] != v.Data[i]) ||
					(x+1 < w && v.Data[at(z, y, x+1)] != v.Data[i]) {
					out.Data[i] = 1
				}
				if (z > 0 && v.Data[at(z-1, y, x)] != v.Data[i]) ||
					(y > 0 && v.Data[at(z, y-1, x)] != v.Data[i]) ||
					(x > 0 && v.Data[at(z, y, x-1)] != v.Data[i]) {
					out.Data[i] = 1
				}
			}
		}
	}
	return out, nil
}
