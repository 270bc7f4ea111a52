package storage

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/scigolib/hdf5"

	"segloader/volume"
)

// H5File is an HDF5 file opened read-only.
type H5File struct {
	path string
	file *hdf5.File

	mu       sync.Mutex
	closed   bool
	datasets map[string]*hdf5.Dataset
}

// OpenHDF5 opens an HDF5 file and indexes its datasets by absolute path.
func OpenHDF5(path string) (File, error) {
	f, err := hdf5.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open hdf5 %s: %w", path, err)
	}

	datasets := make(map[string]*hdf5.Dataset)
	f.Walk(func(p string, obj hdf5.Object) {
		if ds, ok := obj.(*hdf5.Dataset); ok {
			datasets[normalizeInternalPath(p)] = ds
		}
	})

	return &H5File{path: path, file: f, datasets: datasets}, nil
}

func (f *H5File) Path() string {
	return f.path
}

// Array binds the dataset stored at internalPath.
func (f *H5File) Array(internalPath string) (Array, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrClosed
	}
	key := normalizeInternalPath(internalPath)
	ds, ok := f.datasets[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrArrayNotFound, key, f.path)
	}

	info, err := ds.Info()
	if err != nil {
		return nil, fmt.Errorf("read dataspace of %s: %w", key, err)
	}
	shape, err := parseDataspace(info)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	if len(shape) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrScalarArray, key)
	}

	return &h5Array{file: f, name: key, ds: ds, shape: shape}, nil
}

func (f *H5File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	f.datasets = nil
	return f.file.Close()
}

func (f *H5File) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type h5Array struct {
	file  *H5File
	name  string
	ds    *hdf5.Dataset
	shape []int
}

func (a *h5Array) Shape() []int {
	return append([]int(nil), a.shape...)
}

func (a *h5Array) Len() int {
	return a.shape[0]
}

func (a *h5Array) recordShape() []int {
	return append([]int(nil), a.shape[1:]...)
}

func (a *h5Array) ReadAt(i int) (*volume.Volume, error) {
	if a.file.isClosed() {
		return nil, ErrClosed
	}
	if i < 0 || i >= a.shape[0] {
		return nil, fmt.Errorf("record %d out of range [0, %d) in %s", i, a.shape[0], a.name)
	}

	start := make([]uint64, len(a.shape))
	count := make([]uint64, len(a.shape))
	start[0] = uint64(i)
	count[0] = 1
	for d := 1; d < len(a.shape); d++ {
		count[d] = uint64(a.shape[d])
	}

	raw, err := a.ds.ReadSlice(start, count)
	if err != nil {
		return nil, fmt.Errorf("read %s[%d]: %w", a.name, i, err)
	}
	data, err := toFloat64(raw)
	if err != nil {
		return nil, fmt.Errorf("read %s[%d]: %w", a.name, i, err)
	}
	return volume.FromData(a.recordShape(), data)
}

func (a *h5Array) ReadAll() (*volume.Volume, error) {
	if a.file.isClosed() {
		return nil, ErrClosed
	}
	data, err := a.ds.Read()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", a.name, err)
	}
	return volume.FromData(a.Shape(), data)
}

func toFloat64(raw interface{}) ([]float64, error) {
	switch v := raw.(type) {
	case []float64:
		return v, nil
	case []float32:
		return convert(v), nil
	case []int8:
		return convert(v), nil
	case []int16:
		return convert(v), nil
	case []int32:
		return convert(v), nil
	case []int64:
		return convert(v), nil
	case []uint8:
		return convert(v), nil
	case []uint16:
		return convert(v), nil
	case []uint32:
		return convert(v), nil
	case []uint64:
		return convert(v), nil
	default:
		return nil, fmt.Errorf("unsupported element type %T", raw)
	}
}

type number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32
}

func convert[T number](in []T) []float64 {
	out := make([]float64, len(in))
	for i, x := range in {
		out[i] = float64(x)
	}
	return out
}

var (
	dataspace1D = regexp.MustCompile(`1D array \[(\d+)\]`)
	dataspace2D = regexp.MustCompile(`2D array \[(\d+) x (\d+)\]`)
	dataspaceND = regexp.MustCompile(`\d+D array \[([\d ]+)\]`)
)

// parseDataspace extracts dimensions from the dataset summary produced by
// hdf5.Dataset.Info, e.g. "Dataset: float64, 3D array [4 64 64], contiguous".
func parseDataspace(info string) ([]int, error) {
	if m := dataspace1D.FindStringSubmatch(info); m != nil {
		return atoiAll(m[1:])
	}
	if m := dataspace2D.FindStringSubmatch(info); m != nil {
		return atoiAll(m[1:])
	}
	if m := dataspaceND.FindStringSubmatch(info); m != nil {
		return atoiAll(strings.Fields(m[1]))
	}
	if strings.Contains(info, "scalar") || strings.Contains(info, "null") {
		return nil, nil
	}
	return nil, fmt.Errorf("unrecognized dataspace in %q", info)
}

func atoiAll(fields []string) ([]int, error) {
	dims := make([]int, len(fields))
	for i, s := range fields {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("parse dimension %q: %w", s, err)
		}
		dims[i] = n
	}
	return dims, nil
}
