// Package config loads loader configuration from YAML or TOML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v2"

	"segloader/logging"
	"segloader/transforms"
)

const (
	DefaultRawInternalPath   = "raw"
	DefaultLabelInternalPath = "label"
	DefaultStatsCacheSize    = 128
	DefaultDebounceMs        = 500
	DefaultSnapshotMs        = 5000
)

type Config struct {
	Logging    logging.Config `yaml:"logging" toml:"logging"`
	StatsCache StatsCache     `yaml:"stats_cache" toml:"stats_cache"`
	Watch      Watch          `yaml:"watch" toml:"watch"`
	Metrics    Metrics        `yaml:"metrics" toml:"metrics"`
	Loaders    Loaders        `yaml:"loaders" toml:"loaders"`
}

// StatsCache configures the persistent normalization stats cache. An empty
// Path keeps the cache in memory only.
type StatsCache struct {
	Path string `yaml:"path" toml:"path"`
	Size int    `yaml:"size" toml:"size"`
}

type Watch struct {
	Enabled    bool `yaml:"enabled" toml:"enabled"`
	DebounceMs int  `yaml:"debounce_ms" toml:"debounce_ms"`
}

// Metrics configures the HTTP endpoint serving metrics and the event stream.
// An empty Listen address disables it.
type Metrics struct {
	Listen             string   `yaml:"listen" toml:"listen"`
	SnapshotIntervalMs int      `yaml:"snapshot_interval_ms" toml:"snapshot_interval_ms"`
	AllowedOrigins     []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// Loaders holds the dataset-level keys and one section per phase.
type Loaders struct {
	RawInternalPath     string `yaml:"raw_internal_path" toml:"raw_internal_path"`
	LabelInternalPath   string `yaml:"label_internal_path" toml:"label_internal_path"`
	WeightInternalPath  string `yaml:"weight_internal_path" toml:"weight_internal_path"`
	GlobalNormalization *bool  `yaml:"global_normalization" toml:"global_normalization"`

	Train *PhaseConfig `yaml:"train" toml:"train"`
	Val   *PhaseConfig `yaml:"val" toml:"val"`
	Test  *PhaseConfig `yaml:"test" toml:"test"`
}

type PhaseConfig struct {
	FilePaths    []string          `yaml:"file_paths" toml:"file_paths"`
	SliceBuilder SliceBuilder      `yaml:"slice_builder" toml:"slice_builder"`
	Transformer  transforms.Config `yaml:"transformer" toml:"transformer"`
}

// SliceBuilder describes patch extraction. It is carried on each dataset for
// downstream samplers and not interpreted by the loader.
type SliceBuilder struct {
	Name            string  `yaml:"name" toml:"name"`
	PatchShape      []int   `yaml:"patch_shape" toml:"patch_shape"`
	StrideShape     []int   `yaml:"stride_shape" toml:"stride_shape"`
	Threshold       float64 `yaml:"threshold" toml:"threshold"`
	SlackAcceptance float64 `yaml:"slack_acceptance" toml:"slack_acceptance"`
}

// Phase returns the section for name ("train", "val" or "test"), or nil when
// it is not configured.
func (l Loaders) Phase(name string) *PhaseConfig {
	switch name {
	case "train":
		return l.Train
	case "val":
		return l.Val
	case "test":
		return l.Test
	default:
		return nil
	}
}

// GlobalNormalizationEnabled reports the global_normalization key, defaulting to true.
func (l Loaders) GlobalNormalizationEnabled() bool {
	return l.GlobalNormalization == nil || *l.GlobalNormalization
}

// Load reads path, choosing TOML for .toml files and YAML otherwise, and
// fills unset fields with defaults.
func Load(path string) (*Config, error) {
	var c Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &c); err != nil {
			return nil, fmt.Errorf("could not decode TOML config %s: %w", path, err)
		}
	default:
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(&c); err != nil {
			return nil, fmt.Errorf("could not decode YAML config %s: %w", path, err)
		}
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) setDefaults() {
	if c.Loaders.RawInternalPath == "" {
		c.Loaders.RawInternalPath = DefaultRawInternalPath
	}
	if c.Loaders.LabelInternalPath == "" {
		c.Loaders.LabelInternalPath = DefaultLabelInternalPath
	}
	if c.StatsCache.Size <= 0 {
		c.StatsCache.Size = DefaultStatsCacheSize
	}
	if c.Watch.DebounceMs <= 0 {
		c.Watch.DebounceMs = DefaultDebounceMs
	}
	if c.Metrics.SnapshotIntervalMs <= 0 {
		c.Metrics.SnapshotIntervalMs = DefaultSnapshotMs
	}
}

// Validate checks that at least one phase is configured and that every
// configured phase lists files.
func (c *Config) Validate() error {
	configured := 0
	for _, name := range []string{"train", "val", "test"} {
		p := c.Loaders.Phase(name)
		if p == nil {
			continue
		}
		configured++
		if len(p.FilePaths) == 0 {
			return fmt.Errorf("loaders.%s: file_paths is empty", name)
		}
	}
	if configured == 0 {
		return fmt.Errorf("loaders: no phase configured")
	}
	return nil
}
