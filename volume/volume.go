// Package volume holds the dense n-dimensional arrays passed between storage, transforms and datasets.
package volume

import (
	"errors"
	"fmt"
)

var ErrShape = errors.New("invalid volume shape")

// Volume is a row-major dense array of float64 values.
type Volume struct {
	Shape []int
	Data  []float64
}

// New allocates a zero-filled volume.
func New(shape ...int) (*Volume, error) {
	n, err := numElements(shape)
	if err != nil {
		return nil, err
	}
	return &Volume{Shape: append([]int(nil), shape...), Data: make([]float64, n)}, nil
}

// FromData wraps data without copying it.
func FromData(shape []int, data []float64) (*Volume, error) {
	n, err := numElements(shape)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: shape %v needs %d values, got %d", ErrShape, shape, n, len(data))
	}
	return &Volume{Shape: append([]int(nil), shape...), Data: data}, nil
}

func numElements(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: negative dimension in %v", ErrShape, shape)
		}
		n *= d
	}
	return n, nil
}

func (v *Volume) Rank() int {
	return len(v.Shape)
}

// Len is the number of elements.
func (v *Volume) Len() int {
	return len(v.Data)
}

func (v *Volume) Clone() *Volume {
	return &Volume{
		Shape: append([]int(nil), v.Shape...),
		Data:  append([]float64(nil), v.Data...),
	}
}

func (v *Volume) strides() []int {
	strides := make([]int, len(v.Shape))
	s := 1
	for i := len(v.Shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= v.Shape[i]
	}
	return strides
}

// Offset converts coordinates to a flat index.
func (v *Volume) Offset(coords ...int) (int, error) {
	if len(coords) != len(v.Shape) {
		return 0, fmt.Errorf("%w: %d coordinates for rank %d", ErrShape, len(coords), len(v.Shape))
	}
	strides := v.strides()
	off := 0
	for i, c := range coords {
		if c < 0 || c >= v.Shape[i] {
			return 0, fmt.Errorf("coordinate %d out of range [0, %d) on axis %d", c, v.Shape[i], i)
		}
		off += c * strides[i]
	}
	return off, nil
}

// At returns the value at the given coordinates.
func (v *Volume) At(coords ...int) (float64, error) {
	off, err := v.Offset(coords...)
	if err != nil {
		return 0, err
	}
	return v.Data[off], nil
}

// Map applies fn to every element in place and returns v.
func (v *Volume) Map(fn func(float64) float64) *Volume {
	for i, x := range v.Data {
		v.Data[i] = fn(x)
	}
	return v
}

// ExpandDims prepends a channel axis of size 1. Data is shared.
func (v *Volume) ExpandDims() *Volume {
	return &Volume{Shape: append([]int{1}, v.Shape...), Data: v.Data}
}

// Channels splits a volume along its leading axis. Each channel shares v's data.
func (v *Volume) Channels() []*Volume {
	if len(v.Shape) == 0 {
		return []*Volume{v}
	}
	n := v.Shape[0]
	if n == 0 {
		return nil
	}
	size := len(v.Data) / n
	out := make([]*Volume, n)
	for c := 0; c < n; c++ {
		out[c] = &Volume{
			Shape: append([]int(nil), v.Shape[1:]...),
			Data:  v.Data[c*size : (c+1)*size],
		}
	}
	return out
}

func (v *Volume) checkAxis(axis int) error {
	if axis < 0 || axis >= len(v.Shape) {
		return fmt.Errorf("%w: axis %d for rank %d", ErrShape, axis, len(v.Shape))
	}
	return nil
}

// Flip returns a copy of v reversed along axis.
func (v *Volume) Flip(axis int) (*Volume, error) {
	if err := v.checkAxis(axis); err != nil {
		return nil, err
	}
	out := v.Clone()
	strides := v.strides()
	n := v.Shape[axis]
	step := strides[axis]
	block := step * n
	for base := 0; base < len(v.Data); base += block {
		for i := 0; i < n; i++ {
			src := base + i*step
			dst := base + (n-1-i)*step
			copy(out.Data[dst:dst+step], v.Data[src:src+step])
		}
	}
	return out, nil
}

// Rot90 rotates v by k quarter turns in the plane spanned by axes a and b,
// rotating from a towards b like numpy.rot90.
func (v *Volume) Rot90(k, a, b int) (*Volume, error) {
	if err := v.checkAxis(a); err != nil {
		return nil, err
	}
	if err := v.checkAxis(b); err != nil {
		return nil, err
	}
	if a == b {
		return nil, fmt.Errorf("%w: rotation axes must differ", ErrShape)
	}
	k = ((k % 4) + 4) % 4
	out := v.Clone()
	for ; k > 0; k-- {
		var err error
		// one quarter turn: swap (a, b), then reverse a
		out, err = out.swapAxes(a, b).Flip(a)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (v *Volume) swapAxes(a, b int) *Volume {
	shape := append([]int(nil), v.Shape...)
	shape[a], shape[b] = shape[b], shape[a]
	out := &Volume{Shape: shape, Data: make([]float64, len(v.Data))}
	srcStrides := v.strides()
	dstStrides := out.strides()
	coords := make([]int, len(v.Shape))
	for i := range v.Data {
		rem := i
		for d := range coords {
			coords[d] = rem / srcStrides[d]
			rem %= srcStrides[d]
		}
		coords[a], coords[b] = coords[b], coords[a]
		off := 0
		for d, c := range coords {
			off += c * dstStrides[d]
		}
		out.Data[off] = v.Data[i]
	}
	return out
}
