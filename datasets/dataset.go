// Package datasets adapts structured array files into indexable training
// samples. A dataset binds the raw array of one file, and for train and val
// phases the matching label array, and runs every record through the
// configured transform pipelines.
package datasets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"segloader/config"
	"segloader/monitoring"
	"segloader/stats"
	"segloader/storage"
	"segloader/transforms"
	"segloader/volume"
)

var (
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrShapeMismatch   = errors.New("raw and label lengths differ")
)

// Sample is one transformed record. Label and Weight are nil when the
// dataset does not bind them.
type Sample struct {
	Raw    *volume.Volume
	Label  *volume.Volume
	Weight *volume.Volume
}

// HDF5Dataset owns one open file. It is not safe for concurrent use.
type HDF5Dataset struct {
	path  string
	phase Phase

	rawPath    string
	labelPath  string
	weightPath string

	file   storage.File
	raw    storage.Array
	label  storage.Array
	weight storage.Array

	transformer     *transforms.Transformer
	rawTransform    transforms.Transform
	labelTransform  transforms.Transform
	weightTransform transforms.Transform

	sliceBuilder config.SliceBuilder

	logger  *zap.Logger
	metrics *monitoring.MetricsCollector
	labels  map[string]string

	closeOnce sync.Once
	closeErr  error
}

// NewHDF5Dataset opens path and binds its arrays for phase. When global
// normalization is enabled the whole raw array is loaded once to compute the
// statistics handed to the transforms. The file is closed on any error.
func NewHDF5Dataset(path string, phase Phase, tc transforms.Config, opts ...Option) (*HDF5Dataset, error) {
	if !phase.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPhase, phase)
	}
	o := newOptions(opts...)

	f, err := o.opener(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	ds := &HDF5Dataset{
		path:         path,
		phase:        phase,
		rawPath:      o.rawPath,
		labelPath:    o.labelPath,
		weightPath:   o.weightPath,
		file:         f,
		sliceBuilder: o.sliceBuilder,
		logger:       o.logger.With(zap.String("file", path), zap.String("phase", string(phase))),
		metrics:      o.metrics,
		labels:       map[string]string{"phase": string(phase)},
	}
	if err := ds.bind(o, tc); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

func (ds *HDF5Dataset) bind(o *options, tc transforms.Config) error {
	var err error
	if ds.raw, err = ds.file.Array(ds.rawPath); err != nil {
		return fmt.Errorf("raw array: %w", err)
	}

	if ds.phase.HasLabels() {
		if ds.label, err = ds.file.Array(ds.labelPath); err != nil {
			return fmt.Errorf("label array: %w", err)
		}
		if ds.label.Len() != ds.raw.Len() {
			return fmt.Errorf("%w: raw %v, label %v", ErrShapeMismatch, ds.raw.Shape(), ds.label.Shape())
		}
		if ds.weightPath != "" {
			if ds.weight, err = ds.file.Array(ds.weightPath); err != nil {
				return fmt.Errorf("weight array: %w", err)
			}
			if ds.weight.Len() != ds.raw.Len() {
				return fmt.Errorf("%w: raw %v, weight %v", ErrShapeMismatch, ds.raw.Shape(), ds.weight.Shape())
			}
		}
	}

	s := stats.Neutral()
	if o.globalNorm {
		if s, err = ds.globalStats(context.Background(), o.cache); err != nil {
			return fmt.Errorf("global stats: %w", err)
		}
	}

	ds.transformer = transforms.NewTransformer(tc, s, o.seed)
	ds.logger.Debug("transforms bound",
		zap.Int64("seed", ds.transformer.Seed()),
		zap.Int("raw", len(tc.Raw)),
		zap.Int("label", len(tc.Label)))
	if ds.rawTransform, err = ds.transformer.RawTransform(); err != nil {
		return err
	}
	if ds.label != nil {
		if ds.labelTransform, err = ds.transformer.LabelTransform(); err != nil {
			return err
		}
	}
	if ds.weight != nil {
		if ds.weightTransform, err = ds.transformer.WeightTransform(); err != nil {
			return err
		}
	}
	return nil
}

// globalStats consults cache before reading the whole raw array. Files that
// cannot be stat'ed, such as in-memory ones, bypass the cache.
func (ds *HDF5Dataset) globalStats(ctx context.Context, cache stats.Cache) (stats.Stats, error) {
	var (
		key    stats.Key
		cached bool
	)
	if cache != nil {
		k, err := stats.KeyFor(ds.path, ds.rawPath)
		if err == nil {
			key, cached = k, true
			s, ok, err := cache.Get(ctx, key)
			if err != nil {
				ds.logger.Warn("stats cache lookup failed", zap.Error(err))
			} else if ok {
				ds.logger.Debug("using cached stats", zap.Stringer("key", key))
				return s, nil
			}
		}
	}

	ds.logger.Info("Calculating mean and std of the raw data")
	start := time.Now()
	all, err := ds.raw.ReadAll()
	if err != nil {
		return stats.Stats{}, err
	}
	s, err := stats.Calculate(all.Data, false)
	if err != nil {
		return stats.Stats{}, err
	}
	ds.metrics.ObserveSince(monitoring.StatsSeconds, start, ds.labels)
	ds.logger.Debug("computed global stats",
		zap.Float64("pmin", s.PMin),
		zap.Float64("pmax", s.PMax),
		zap.Float64("mean", s.Mean),
		zap.Float64("std", s.Std),
		zap.Duration("took", time.Since(start)))

	if cached {
		if err := cache.Put(ctx, key, s); err != nil {
			ds.logger.Warn("stats cache store failed", zap.Error(err))
		}
	}
	return s, nil
}

// Len is the size of the raw array's leading dimension.
func (ds *HDF5Dataset) Len() int {
	return ds.raw.Len()
}

// Get reads and transforms record i.
func (ds *HDF5Dataset) Get(i int) (Sample, error) {
	if n := ds.Len(); i < 0 || i >= n {
		return Sample{}, fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, i, n)
	}
	start := time.Now()

	var (
		sample Sample
		err    error
	)
	if sample.Raw, err = ds.read(ds.raw, ds.rawTransform, i); err != nil {
		return Sample{}, fmt.Errorf("%s: raw record %d: %w", ds.path, i, err)
	}
	if ds.label != nil {
		if sample.Label, err = ds.read(ds.label, ds.labelTransform, i); err != nil {
			return Sample{}, fmt.Errorf("%s: label record %d: %w", ds.path, i, err)
		}
	}
	if ds.weight != nil {
		if sample.Weight, err = ds.read(ds.weight, ds.weightTransform, i); err != nil {
			return Sample{}, fmt.Errorf("%s: weight record %d: %w", ds.path, i, err)
		}
	}

	ds.metrics.IncrCounter(monitoring.SamplesRead, 1, ds.labels)
	ds.metrics.ObserveSince(monitoring.ReadSeconds, start, ds.labels)
	return sample, nil
}

func (ds *HDF5Dataset) read(a storage.Array, t transforms.Transform, i int) (*volume.Volume, error) {
	v, err := a.ReadAt(i)
	if err != nil {
		return nil, err
	}
	return t.Apply(v)
}

// Close releases the file handle. Later calls return the first result.
func (ds *HDF5Dataset) Close() error {
	ds.closeOnce.Do(func() {
		ds.closeErr = ds.file.Close()
	})
	return ds.closeErr
}

// FilePath is the path the dataset was opened from.
func (ds *HDF5Dataset) FilePath() string {
	return ds.path
}

// Phase is the phase the dataset was built for.
func (ds *HDF5Dataset) Phase() Phase {
	return ds.phase
}

// RawInternalPath is the raw array's path inside the file.
func (ds *HDF5Dataset) RawInternalPath() string {
	return ds.rawPath
}

// LabelInternalPath is the label array's path inside the file. It is
// configured even for the test phase, which never reads it.
func (ds *HDF5Dataset) LabelInternalPath() string {
	return ds.labelPath
}

// WeightInternalPath is empty when no weight array is configured.
func (ds *HDF5Dataset) WeightInternalPath() string {
	return ds.weightPath
}

// Transformer returns the transformer the per-array pipelines were built from.
func (ds *HDF5Dataset) Transformer() *transforms.Transformer {
	return ds.transformer
}

// Stats returns the global stats of the raw array, or stats.Neutral when
// global normalization is off.
func (ds *HDF5Dataset) Stats() stats.Stats {
	return ds.transformer.Stats()
}

// SliceBuilder returns the patch configuration passed with WithSliceBuilder.
func (ds *HDF5Dataset) SliceBuilder() config.SliceBuilder {
	return ds.sliceBuilder
}

// HasLabels reports whether a label array is bound.
func (ds *HDF5Dataset) HasLabels() bool { return ds.label != nil }
