package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"segloader/volume"
)

func TestParseDataspace(t *testing.T) {
	tests := []struct {
		name    string
		info    string
		want    []int
		wantErr bool
	}{
		{name: "1D", info: "Dataset: float64, 1D array [5], contiguous", want: []int{5}},
		{name: "2D", info: "Dataset: int32, 2D array [3 x 4], chunked", want: []int{3, 4}},
		{name: "3D", info: "Dataset: float32, 3D array [2 64 64], contiguous", want: []int{2, 64, 64}},
		{name: "4D", info: "Dataset: uint8, 4D array [1 2 3 4], chunked", want: []int{1, 2, 3, 4}},
		{name: "scalar", info: "Dataset: float64, scalar, compact", want: nil},
		{name: "garbage", info: "Dataset: ???", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDataspace(tt.info)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeInternalPath(t *testing.T) {
	assert.Equal(t, "/raw", normalizeInternalPath("raw"))
	assert.Equal(t, "/raw", normalizeInternalPath("/raw"))
	assert.Equal(t, "/volumes/raw", normalizeInternalPath("volumes/raw/"))
}

func TestToFloat64(t *testing.T) {
	got, err := toFloat64([]int32{1, -2, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, -2, 3}, got)

	got, err = toFloat64([]uint8{0, 255})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 255}, got)

	_, err = toFloat64([]string{"x"})
	require.Error(t, err)
}

func TestOpenHDF5_Missing(t *testing.T) {
	_, err := OpenHDF5(filepath.Join(t.TempDir(), "missing.h5"))
	require.Error(t, err)
}

func TestOpenHDF5_NotHDF5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.h5")
	require.NoError(t, os.WriteFile(path, []byte("definitely not an hdf5 file"), 0o644))

	_, err := OpenHDF5(path)
	require.Error(t, err)
}

func TestHDF5_WriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.h5")

	data := make([]float64, 2*3*4)
	for i := range data {
		data[i] = float64(i) + 0.5
	}
	raw, err := volume.FromData([]int{2, 3, 4}, data)
	require.NoError(t, err)

	require.NoError(t, WriteHDF5(path, map[string]*volume.Volume{"raw": raw}))

	f, err := OpenHDF5(path)
	require.NoError(t, err)
	defer f.Close()

	arr, err := f.Array("raw")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, arr.Shape())
	assert.Equal(t, 2, arr.Len())

	all, err := arr.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, data, all.Data)

	rec, err := arr.ReadAt(1)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, rec.Shape)
	assert.Equal(t, data[12:], rec.Data)

	_, err = arr.ReadAt(2)
	require.Error(t, err)

	_, err = f.Array("label")
	require.ErrorIs(t, err, ErrArrayNotFound)

	require.NoError(t, f.Close())
	_, err = arr.ReadAt(0)
	require.ErrorIs(t, err, ErrClosed)
	require.NoError(t, f.Close())
}
