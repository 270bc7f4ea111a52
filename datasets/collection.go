package datasets

import (
	"fmt"
	"sort"

	"go.uber.org/multierr"

	"segloader/config"
)

// Collection concatenates datasets into one index space and owns their file
// handles.
type Collection struct {
	datasets []*HDF5Dataset
	// offsets[i] is the global index of the first record of datasets[i].
	offsets []int
	total   int
}

// NewCollection concatenates datasets in order. It takes ownership of them;
// Close closes every one.
func NewCollection(datasets []*HDF5Dataset) *Collection {
	c := &Collection{
		datasets: datasets,
		offsets:  make([]int, len(datasets)),
	}
	for i, ds := range datasets {
		c.offsets[i] = c.total
		c.total += ds.Len()
	}
	return c
}

// Load runs CreateDatasets for phase and wraps the result.
func Load(loaders config.Loaders, phase Phase, opts ...Option) (*Collection, error) {
	datasets, err := CreateDatasets(loaders, phase, opts...)
	if err != nil {
		return nil, err
	}
	return NewCollection(datasets), nil
}

func (c *Collection) Len() int {
	return c.total
}

// Get returns global record i, counting through the datasets in order.
func (c *Collection) Get(i int) (Sample, error) {
	if i < 0 || i >= c.total {
		return Sample{}, fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, i, c.total)
	}
	// last dataset starting at or before i; empty datasets share an offset
	// with their successor and are skipped by searching from the right.
	k := sort.Search(len(c.offsets), func(j int) bool { return c.offsets[j] > i }) - 1
	return c.datasets[k].Get(i - c.offsets[k])
}

// Datasets returns the members in load order.
func (c *Collection) Datasets() []*HDF5Dataset {
	return append([]*HDF5Dataset(nil), c.datasets...)
}

// Close closes every member and returns their combined errors.
func (c *Collection) Close() error {
	var err error
	for _, ds := range c.datasets {
		err = multierr.Append(err, ds.Close())
	}
	return err
}
