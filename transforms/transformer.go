package transforms

import (
	"fmt"
	"math/rand"

	"segloader/stats"
)

// Config holds one pipeline per target array.
type Config struct {
	Raw    []Spec `yaml:"raw" toml:"raw"`
	Label  []Spec `yaml:"label" toml:"label"`
	Weight []Spec `yaml:"weight" toml:"weight"`
}

// Transformer builds the pipelines of one dataset. All pipelines from the same
// Transformer draw from identically seeded random sources, so the n-th random
// decision of the raw pipeline matches the n-th of the label pipeline.
type Transformer struct {
	config Config
	stats  stats.Stats
	seed   int64
}

func NewTransformer(config Config, s stats.Stats, seed int64) *Transformer {
	return &Transformer{config: config, stats: s, seed: seed}
}

func (t *Transformer) Stats() stats.Stats {
	return t.stats
}

// Seed is the value every pipeline's generator starts from.
func (t *Transformer) Seed() int64 {
	return t.seed
}

func (t *Transformer) RawTransform() (Transform, error) {
	return t.build("raw", t.config.Raw)
}

func (t *Transformer) LabelTransform() (Transform, error) {
	return t.build("label", t.config.Label)
}

func (t *Transformer) WeightTransform() (Transform, error) {
	return t.build("weight", t.config.Weight)
}

func (t *Transformer) build(target string, specs []Spec) (Transform, error) {
	pipeline := make(Compose, 0, len(specs))
	for i, spec := range specs {
		name := spec.Name()
		if name == "" {
			return nil, fmt.Errorf("%s transform %d: missing name", target, i)
		}
		ctor, err := Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("%s transform %d: %w", target, i, err)
		}
		tr, err := ctor(Params{
			Name:    name,
			Options: spec,
			Stats:   t.stats,
			Rand:    rand.New(rand.NewSource(t.seed)),
		})
		if err != nil {
			return nil, fmt.Errorf("%s transform %d (%s): %w", target, i, name, err)
		}
		pipeline = append(pipeline, tr)
	}
	return pipeline, nil
}
