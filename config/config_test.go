package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const yamlConfig = `
logging:
  level: debug
stats_cache:
  path: /tmp/stats.db
watch:
  enabled: true
metrics:
  listen: 127.0.0.1:9090
loaders:
  global_normalization: false
  train:
    file_paths: [/data/train]
    slice_builder:
      name: SliceBuilder
      patch_shape: [32, 64, 64]
      stride_shape: [16, 32, 32]
    transformer:
      raw:
        - name: Standardize
        - name: RandomFlip
          axis_prob: 0.3
      label:
        - name: RandomFlip
          axis_prob: 0.3
  test:
    file_paths: [/data/test/a.h5]
`

const tomlConfig = `
[logging]
level = "warn"
logfile = "/var/log/segloader.log"
max_log_size = 10
max_log_age = 7

[loaders]
raw_internal_path = "volumes/raw"

[loaders.val]
file_paths = ["/data/val"]

[[loaders.val.transformer.raw]]
name = "PercentileNormalizer"
pmin = 2

[[loaders.val.transformer.raw]]
name = "RandomContrast"
alpha = [0.8, 1.2]
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	c, err := Load(writeFile(t, "loader.yaml", yamlConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.Logging.Level != "debug" {
		t.Errorf("logging level = %q", c.Logging.Level)
	}
	if !c.Watch.Enabled || c.Watch.DebounceMs != DefaultDebounceMs {
		t.Errorf("unexpected watch config %+v", c.Watch)
	}
	if c.Metrics.Listen != "127.0.0.1:9090" || c.Metrics.SnapshotIntervalMs != DefaultSnapshotMs {
		t.Errorf("unexpected metrics config %+v", c.Metrics)
	}
	if c.StatsCache.Size != DefaultStatsCacheSize {
		t.Errorf("stats cache size = %d", c.StatsCache.Size)
	}
	if c.Loaders.RawInternalPath != "raw" || c.Loaders.LabelInternalPath != "label" {
		t.Errorf("internal path defaults not applied: %+v", c.Loaders)
	}
	if c.Loaders.GlobalNormalizationEnabled() {
		t.Error("global_normalization: false was ignored")
	}

	train := c.Loaders.Phase("train")
	if train == nil {
		t.Fatal("train section missing")
	}
	if !reflect.DeepEqual(train.SliceBuilder.PatchShape, []int{32, 64, 64}) {
		t.Errorf("patch shape = %v", train.SliceBuilder.PatchShape)
	}
	if len(train.Transformer.Raw) != 2 || train.Transformer.Raw[1].Name() != "RandomFlip" {
		t.Fatalf("unexpected raw pipeline %v", train.Transformer.Raw)
	}
	if p, _ := train.Transformer.Raw[1].Float("axis_prob", 0); p != 0.3 {
		t.Errorf("axis_prob = %v", p)
	}
	if c.Loaders.Phase("val") != nil {
		t.Error("val should be absent")
	}
	if c.Loaders.Phase("bogus") != nil {
		t.Error("unknown phase should be nil")
	}
}

func TestLoadTOML(t *testing.T) {
	c, err := Load(writeFile(t, "loader.toml", tomlConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.Logging.Logfile != "/var/log/segloader.log" || c.Logging.MaxSize != 10 || c.Logging.MaxAge != 7 {
		t.Errorf("unexpected logging config %+v", c.Logging)
	}
	if c.Loaders.RawInternalPath != "volumes/raw" {
		t.Errorf("raw internal path = %q", c.Loaders.RawInternalPath)
	}
	if !c.Loaders.GlobalNormalizationEnabled() {
		t.Error("global normalization should default to true")
	}

	val := c.Loaders.Phase("val")
	if val == nil || len(val.Transformer.Raw) != 2 {
		t.Fatalf("unexpected val section %+v", val)
	}
	if p, _ := val.Transformer.Raw[0].Float("pmin", 1); p != 2 {
		t.Errorf("pmin = %v", p)
	}
	lo, hi, err := val.Transformer.Raw[1].Range("alpha", 0, 0)
	if err != nil || lo != 0.8 || hi != 1.2 {
		t.Errorf("alpha = %v %v %v", lo, hi, err)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"no phases", "a.yaml", "loaders:\n  raw_internal_path: raw\n"},
		{"empty file paths", "b.yaml", "loaders:\n  train:\n    file_paths: []\n"},
		{"bad yaml", "c.yml", "loaders: [\n"},
		{"bad toml", "d.toml", "[loaders\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeFile(t, tt.file, tt.content)); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
