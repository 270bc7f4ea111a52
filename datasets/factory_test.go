package datasets

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"segloader/config"
	"segloader/monitoring"
	"segloader/storage"
	"segloader/transforms"
	"segloader/volume"
)

// touch creates empty files so path discovery finds them; their contents are
// served by a MemoryOpener.
func touch(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
		if err := os.WriteFile(paths[i], nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return paths
}

func loaders(paths ...string) config.Loaders {
	off := false
	return config.Loaders{
		RawInternalPath:     "raw",
		LabelInternalPath:   "label",
		GlobalNormalization: &off,
		Train:               &config.PhaseConfig{FilePaths: paths},
	}
}

func TestTraversePaths(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.h5", "a.hdf5", "c.HD5", "d.hdf", "notes.txt")
	if err := os.Mkdir(filepath.Join(dir, "sub.h5"), 0o755); err != nil {
		t.Fatal(err)
	}
	single := touch(t, t.TempDir(), "single.bin")[0]

	got, err := TraversePaths([]string{single, dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		single,
		filepath.Join(dir, "a.hdf5"),
		filepath.Join(dir, "b.h5"),
		filepath.Join(dir, "c.HD5"),
		filepath.Join(dir, "d.hdf"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v\nwant %v", got, want)
	}

	if _, err := TraversePaths([]string{filepath.Join(dir, "missing")}); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestCreateDatasetsSkipsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	paths := touch(t, dir, "a.h5", "b.h5", "c.h5")

	a, _ := fixture(paths[0], 2, true)
	c, _ := fixture(paths[2], 3, true)
	// b.h5 exists on disk but cannot be opened.
	opener := storage.NewMemoryOpener(a, c)

	core, logs := observer.New(zapcore.InfoLevel)
	mc := monitoring.NewMetricsCollector()

	datasets, err := CreateDatasets(loaders(dir), PhaseTrain,
		WithOpener(opener.Open), WithLogger(zap.New(core)), WithMetrics(mc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer NewCollection(datasets).Close()

	if len(datasets) != 2 {
		t.Fatalf("got %d datasets, want 2", len(datasets))
	}
	if datasets[0].FilePath() != paths[0] || datasets[1].FilePath() != paths[2] {
		t.Fatalf("unexpected order %s, %s", datasets[0].FilePath(), datasets[1].FilePath())
	}

	if n := logs.FilterMessageSnippet("Loading train set from:").Len(); n != 3 {
		t.Errorf("logged %d load messages, want 3", n)
	}
	skipped := logs.FilterMessageSnippet("Skipping train set: " + paths[1]).All()
	if len(skipped) != 1 {
		t.Fatalf("expected one skip entry, got %d", len(skipped))
	}
	if skipped[0].Level != zapcore.ErrorLevel {
		t.Errorf("skip logged at %v", skipped[0].Level)
	}
	if _, ok := skipped[0].ContextMap()["error"]; !ok {
		t.Error("skip entry carries no error field")
	}

	labels := map[string]string{"phase": "train"}
	if got := mc.Total(monitoring.LoadFailures, labels); got != 1 {
		t.Errorf("load failures = %v, want 1", got)
	}
}

func TestCreateDatasetsSkipsMissingPaths(t *testing.T) {
	dir := t.TempDir()
	paths := touch(t, dir, "a.h5")
	a, _ := fixture(paths[0], 2, true)
	opener := storage.NewMemoryOpener(a)

	datasets, err := CreateDatasets(loaders(filepath.Join(dir, "gone"), paths[0]), PhaseTrain,
		WithOpener(opener.Open))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer NewCollection(datasets).Close()
	if len(datasets) != 1 {
		t.Fatalf("got %d datasets, want 1", len(datasets))
	}
}

func TestCreateDatasetsAppliesLoaderKeys(t *testing.T) {
	dir := t.TempDir()
	paths := touch(t, dir, "a.h5")

	raw, _ := volume.New(2, 2, 2, 2)
	for i := range raw.Data {
		raw.Data[i] = float64(i)
	}
	f := storage.NewMemoryFile(paths[0]).Put("volumes/raw", raw).Put("volumes/seg", raw.Clone())
	opener := storage.NewMemoryOpener(f)

	l := config.Loaders{
		RawInternalPath:   "volumes/raw",
		LabelInternalPath: "volumes/seg",
		Val: &config.PhaseConfig{
			FilePaths:    []string{dir},
			SliceBuilder: config.SliceBuilder{Name: "SliceBuilder", PatchShape: []int{1, 2, 2}},
		},
	}
	datasets, err := CreateDatasets(l, PhaseVal, WithOpener(opener.Open))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(datasets) != 1 {
		t.Fatalf("got %d datasets, want 1", len(datasets))
	}
	ds := datasets[0]
	defer ds.Close()

	if ds.RawInternalPath() != "volumes/raw" || ds.LabelInternalPath() != "volumes/seg" {
		t.Errorf("internal paths %q %q", ds.RawInternalPath(), ds.LabelInternalPath())
	}
	if ds.Stats().Skipped {
		t.Error("global normalization should default to on")
	}
	if !reflect.DeepEqual(ds.SliceBuilder().PatchShape, []int{1, 2, 2}) {
		t.Errorf("slice builder not carried: %+v", ds.SliceBuilder())
	}
	if math.IsNaN(ds.Stats().Mean) {
		t.Error("mean is NaN")
	}
}

func TestCreateDatasetsErrors(t *testing.T) {
	l := loaders("/nowhere")

	if _, err := CreateDatasets(l, Phase("bogus")); !errors.Is(err, ErrInvalidPhase) {
		t.Errorf("expected ErrInvalidPhase, got %v", err)
	}
	_, err := CreateDatasets(l, PhaseVal)
	if err == nil || !strings.Contains(err.Error(), "no val section") {
		t.Errorf("expected missing section error, got %v", err)
	}
}

func TestCollection(t *testing.T) {
	dir := t.TempDir()
	paths := touch(t, dir, "a.h5", "b.h5", "c.h5")
	a, ra := fixture(paths[0], 2, true)
	empty := storage.NewMemoryFile(paths[1])
	ev, _ := volume.New(0, 2, 2, 2)
	empty.Put("raw", ev).Put("label", ev)
	c, rc := fixture(paths[2], 3, true)
	opener := storage.NewMemoryOpener(a, empty, c)

	coll, err := Load(loaders(dir), PhaseTrain, WithOpener(opener.Open))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(coll.Datasets()) != 3 {
		t.Fatalf("got %d datasets, want 3", len(coll.Datasets()))
	}
	if coll.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", coll.Len())
	}

	wants := [][]float64{record(ra, 0), record(ra, 1), record(rc, 0), record(rc, 1), record(rc, 2)}
	for i, want := range wants {
		s, err := coll.Get(i)
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		if !reflect.DeepEqual(s.Raw.Data, want) {
			t.Fatalf("Get(%d) returned the wrong record", i)
		}
	}
	if _, err := coll.Get(5); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}

	if err := coll.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range paths {
		if opener.OpenHandles(p) != 0 {
			t.Errorf("%s left open", p)
		}
	}
}

func TestValidate(t *testing.T) {
	raw, _ := volume.New(3, 2)
	copy(raw.Data, []float64{1, 2, math.NaN(), 4, 5, 6})
	label, _ := volume.FromData([]int{3, 2}, []float64{0, 1, 1, 2, 0.5, 7})
	f := storage.NewMemoryFile("v.h5").Put("raw", raw).Put("label", label)
	opener := storage.NewMemoryOpener(f)

	ds, err := NewHDF5Dataset("v.h5", PhaseTrain, transforms.Config{},
		WithOpener(opener.Open), WithGlobalNormalization(false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ds.Close()

	report, err := Validate(ds, FiniteRule{}, LabelRangeRule{Max: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Checked != 3 || report.Passed != 1 {
		t.Fatalf("checked=%d passed=%d", report.Checked, report.Passed)
	}
	if report.ByRule["finite"] != 1 || report.ByRule["label_range"] != 1 {
		t.Fatalf("unexpected counts %v", report.ByRule)
	}
	if report.Issues[0].Rule != "finite" || report.Issues[0].Index != 1 {
		t.Errorf("unexpected first issue %+v", report.Issues[0])
	}
}
