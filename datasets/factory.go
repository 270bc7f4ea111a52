package datasets

import (
	"fmt"

	"go.uber.org/zap"

	"segloader/config"
	"segloader/monitoring"
)

// CreateDatasets builds one dataset per data file configured for phase.
// Configured paths that cannot be expanded and files that fail to load are
// logged and skipped; the rest are returned in discovery order. An invalid
// phase or a missing phase section is an error.
func CreateDatasets(loaders config.Loaders, phase Phase, opts ...Option) ([]*HDF5Dataset, error) {
	if !phase.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPhase, phase)
	}
	section := loaders.Phase(string(phase))
	if section == nil {
		return nil, fmt.Errorf("no %s section in loaders config", phase)
	}

	o := newOptions(opts...)
	log := o.logger.Sugar()
	labels := map[string]string{"phase": string(phase)}

	base := []Option{
		WithInternalPaths(loaders.RawInternalPath, loaders.LabelInternalPath, loaders.WeightInternalPath),
		WithGlobalNormalization(loaders.GlobalNormalizationEnabled()),
		WithSliceBuilder(section.SliceBuilder),
	}
	dsOpts := append(base, opts...)

	var datasets []*HDF5Dataset
	for _, configured := range section.FilePaths {
		paths, err := TraversePaths([]string{configured})
		if err != nil {
			o.logger.Error(fmt.Sprintf("Skipping %s path: %s", phase, configured), zap.Error(err))
			o.metrics.IncrCounter(monitoring.LoadFailures, 1, labels)
			continue
		}
		for _, path := range paths {
			log.Infof("Loading %s set from: %s", phase, path)
			ds, err := NewHDF5Dataset(path, phase, section.Transformer, dsOpts...)
			if err != nil {
				o.logger.Error(fmt.Sprintf("Skipping %s set: %s", phase, path), zap.Error(err))
				o.metrics.IncrCounter(monitoring.LoadFailures, 1, labels)
				continue
			}
			datasets = append(datasets, ds)
		}
	}

	o.metrics.SetGauge(monitoring.DatasetsReady, float64(len(datasets)), labels)
	return datasets, nil
}
