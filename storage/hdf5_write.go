package storage

import (
	"fmt"
	"sort"

	"github.com/scigolib/hdf5"

	"segloader/volume"
)

// WriteHDF5 creates (or truncates) path and stores each volume as a float64
// dataset in the root group.
func WriteHDF5(path string, arrays map[string]*volume.Volume) error {
	fw, err := hdf5.CreateForWrite(path, hdf5.CreateTruncate)
	if err != nil {
		return fmt.Errorf("create hdf5 %s: %w", path, err)
	}

	names := make([]string, 0, len(arrays))
	for name := range arrays {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v := arrays[name]
		dims := make([]uint64, len(v.Shape))
		for i, d := range v.Shape {
			dims[i] = uint64(d)
		}
		ds, err := fw.CreateDataset(normalizeInternalPath(name), hdf5.Float64, dims)
		if err != nil {
			_ = fw.Close()
			return fmt.Errorf("create dataset %s: %w", name, err)
		}
		if err := ds.Write(v.Data); err != nil {
			_ = fw.Close()
			return fmt.Errorf("write dataset %s: %w", name, err)
		}
		_ = ds.Close()
	}

	return fw.Close()
}
