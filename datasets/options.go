package datasets

import (
	"math/rand"
	"time"

	"go.uber.org/zap"

	"segloader/config"
	"segloader/monitoring"
	"segloader/stats"
	"segloader/storage"
)

type options struct {
	rawPath    string
	labelPath  string
	weightPath string
	globalNorm bool

	seed    int64
	hasSeed bool

	sliceBuilder config.SliceBuilder

	opener  storage.Opener
	cache   stats.Cache
	logger  *zap.Logger
	metrics *monitoring.MetricsCollector
}

// Option configures NewHDF5Dataset and CreateDatasets.
type Option func(*options)

func newOptions(opts ...Option) *options {
	o := &options{
		rawPath:    config.DefaultRawInternalPath,
		labelPath:  config.DefaultLabelInternalPath,
		globalNorm: true,
		opener:     storage.OpenHDF5,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if !o.hasSeed {
		o.seed = rand.New(rand.NewSource(time.Now().UnixNano())).Int63()
	}
	return o
}

// WithInternalPaths overrides the raw, label and weight array paths. Empty raw
// or label paths keep the defaults; an empty weight path binds no weights.
func WithInternalPaths(raw, label, weight string) Option {
	return func(o *options) {
		if raw != "" {
			o.rawPath = raw
		}
		if label != "" {
			o.labelPath = label
		}
		o.weightPath = weight
	}
}

// WithGlobalNormalization toggles computing statistics over the whole raw array.
func WithGlobalNormalization(enabled bool) Option {
	return func(o *options) { o.globalNorm = enabled }
}

// WithSeed fixes the seed of the random augmentations.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
		o.hasSeed = true
	}
}

// WithSliceBuilder records the patch geometry the training side slices
// samples with. The adapter itself returns whole records.
func WithSliceBuilder(sb config.SliceBuilder) Option {
	return func(o *options) { o.sliceBuilder = sb }
}

// WithOpener replaces the HDF5 opener, e.g. with storage.MemoryOpener.Open.
func WithOpener(open storage.Opener) Option {
	return func(o *options) {
		if open != nil {
			o.opener = open
		}
	}
}

// WithStatsCache looks up and stores global stats in c. Nil disables caching.
func WithStatsCache(c stats.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithLogger sets the logger. Nil keeps the no-op default.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records read counts and timings in mc.
func WithMetrics(mc *monitoring.MetricsCollector) Option {
	return func(o *options) { o.metrics = mc }
}
