package transforms

import (
	"errors"
	"math"
	"reflect"
	"slices"
	"sort"
	"strings"
	"testing"

	"segloader/stats"
	"segloader/volume"
)

func cube(n int) *volume.Volume {
	v, _ := volume.New(n, n, n)
	for i := range v.Data {
		v.Data[i] = float64(i)
	}
	return v
}

func build(t *testing.T, specs []Spec, s stats.Stats) Transform {
	t.Helper()
	tr, err := NewTransformer(Config{Raw: specs}, s, 42).RawTransform()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tr
}

func TestIdentityPipelineWithNeutralStats(t *testing.T) {
	tr := build(t, []Spec{{"name": "Identity"}}, stats.Neutral())

	in := cube(3)
	want := append([]float64(nil), in.Data...)
	out, err := tr.Apply(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(out.Data, want) {
		t.Fatal("identity pipeline changed the volume")
	}

	empty, err := NewTransformer(Config{}, stats.Neutral(), 1).RawTransform()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err = empty.Apply(cube(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Data[7] != 7 {
		t.Fatal("empty pipeline must be a no-op")
	}
}

func TestStandardize(t *testing.T) {
	tests := []struct {
		name     string
		spec     Spec
		stats    stats.Stats
		wantMean float64
		wantStd  float64
	}{
		{
			name:     "global stats",
			spec:     Spec{"name": "Standardize"},
			stats:    stats.Stats{Mean: 1, Std: 2},
			wantMean: 3,
			wantStd:  math.Sqrt2 / 2,
		},
		{
			name:     "per sample",
			spec:     Spec{"name": "Standardize"},
			stats:    stats.Neutral(),
			wantMean: 0,
			wantStd:  1,
		},
		{
			name:     "explicit options win over stats",
			spec:     Spec{"name": "Standardize", "mean": 7, "std": 1.0},
			stats:    stats.Stats{Mean: 1, Std: 2},
			wantMean: 0,
			wantStd:  math.Sqrt2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _ := volume.FromData([]int{4}, []float64{5, 7, 7, 9})
			out, err := build(t, []Spec{tt.spec}, tt.stats).Apply(v)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			mean, std := meanStd(out.Data)
			if math.Abs(mean-tt.wantMean) > 1e-9 {
				t.Errorf("mean = %v, want %v", mean, tt.wantMean)
			}
			if math.Abs(std-tt.wantStd) > 1e-9 {
				t.Errorf("std = %v, want %v", std, tt.wantStd)
			}
		})
	}
}

func TestStandardizeRequiresMeanAndStd(t *testing.T) {
	_, err := NewTransformer(Config{Raw: []Spec{{"name": "Standardize", "mean": 1}}}, stats.Neutral(), 0).RawTransform()
	if !errors.Is(err, ErrBadOption) {
		t.Fatalf("expected ErrBadOption, got %v", err)
	}
}

func TestPercentileNormalizerUsesStats(t *testing.T) {
	v, _ := volume.FromData([]int{3}, []float64{0, 5, 10})
	out, err := build(t, []Spec{{"name": "PercentileNormalizer"}}, stats.Stats{PMin: 0, PMax: 10}).Apply(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float64{0, 0.5, 1}
	for i := range want {
		if math.Abs(out.Data[i]-want[i]) > 1e-6 {
			t.Fatalf("got %v, want %v", out.Data, want)
		}
	}
}

func TestNormalize(t *testing.T) {
	v, _ := volume.FromData([]int{3}, []float64{0, 50, 200})
	spec := Spec{"name": "Normalize", "min_value": 0, "max_value": 100}
	out, err := build(t, []Spec{spec}, stats.Neutral()).Apply(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float64{-1, 0, 1}
	for i := range want {
		if math.Abs(out.Data[i]-want[i]) > 1e-6 {
			t.Fatalf("got %v, want %v", out.Data, want)
		}
	}

	_, err = NewTransformer(Config{Raw: []Spec{{"name": "Normalize", "min_value": 5, "max_value": 1}}}, stats.Neutral(), 0).RawTransform()
	if !errors.Is(err, ErrBadOption) {
		t.Fatalf("expected ErrBadOption, got %v", err)
	}
}

func TestClip(t *testing.T) {
	v, _ := volume.FromData([]int{3}, []float64{-5, 0.5, 5})
	out, err := build(t, []Spec{{"name": "Clip", "min_value": -1, "max_value": 1}}, stats.Neutral()).Apply(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(out.Data, []float64{-1, 0.5, 1}) {
		t.Fatalf("unexpected %v", out.Data)
	}
}

func TestUnknownAndUnnamedTransforms(t *testing.T) {
	_, err := NewTransformer(Config{Raw: []Spec{{"name": "ElasticWobble"}}}, stats.Neutral(), 0).RawTransform()
	if !errors.Is(err, ErrUnknownTransform) {
		t.Fatalf("expected ErrUnknownTransform, got %v", err)
	}
	if !strings.Contains(err.Error(), "RandomFlip") {
		t.Errorf("error does not list known transforms: %v", err)
	}
	_, err = NewTransformer(Config{Label: []Spec{{"axis_prob": 0.5}}}, stats.Neutral(), 0).LabelTransform()
	if err == nil {
		t.Fatal("expected error for spec without name")
	}
}

func TestNamesAreSorted(t *testing.T) {
	names := Names()
	if !sort.StringsAreSorted(names) {
		t.Fatalf("Names() not sorted: %v", names)
	}
	for _, want := range []string{"Standardize", "RandomFlip", "StandardLabelToBoundary"} {
		if !slices.Contains(names, want) {
			t.Errorf("Names() lacks %s", want)
		}
	}
}

func TestRandomTransformsStayInLockStep(t *testing.T) {
	specs := []Spec{
		{"name": "RandomFlip"},
		{"name": "RandomRotate90"},
	}
	tr := NewTransformer(Config{Raw: specs, Label: specs}, stats.Neutral(), 7)
	raw, err := tr.RawTransform()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	label, err := tr.LabelTransform()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 20; i++ {
		r, err := raw.Apply(cube(3))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		l, err := label.Apply(cube(3))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(r.Data, l.Data) {
			t.Fatalf("sample %d: raw and label augmentations diverged", i)
		}
	}
}

func TestRandomFlipRejectsLowRank(t *testing.T) {
	v, _ := volume.New(2, 2)
	_, err := build(t, []Spec{{"name": "RandomFlip"}}, stats.Neutral()).Apply(v)
	if err == nil {
		t.Fatal("expected error for 2D volume")
	}
}

func TestRandomContrastAndNoise(t *testing.T) {
	v, _ := volume.FromData([]int{3}, []float64{-0.5, 0, 0.8})
	spec := Spec{
		"name":                  "RandomContrast",
		"alpha":                 []interface{}{2, 2},
		"execution_probability": 1.0,
	}
	out, err := build(t, []Spec{spec}, stats.Neutral()).Apply(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(out.Data, []float64{-1, 0, 1}) {
		t.Fatalf("unexpected contrast output %v", out.Data)
	}

	v, _ = volume.FromData([]int{3}, []float64{1, 2, 3})
	noise := Spec{"name": "AdditiveGaussianNoise", "execution_probability": 0}
	out, err = build(t, []Spec{noise}, stats.Neutral()).Apply(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(out.Data, []float64{1, 2, 3}) {
		t.Fatalf("noise with zero probability changed data: %v", out.Data)
	}
}

func TestToTensor(t *testing.T) {
	out, err := build(t, []Spec{{"name": "ToTensor", "expand_dims": true}}, stats.Neutral()).Apply(cube(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(out.Shape, []int{1, 2, 2, 2}) {
		t.Fatalf("unexpected shape %v", out.Shape)
	}
}

func TestRelabel(t *testing.T) {
	v, _ := volume.FromData([]int{5}, []float64{10, 3, 10, 7, 3})
	out, err := relabel(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(out.Data, []float64{2, 0, 2, 1, 0}) {
		t.Fatalf("unexpected %v", out.Data)
	}
}

func TestLabelToBoundary(t *testing.T) {
	v, _ := volume.FromData([]int{1, 1, 4}, []float64{1, 1, 2, 2})
	out, err := labelToBoundary(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(out.Data, []float64{0, 1, 1, 0}) {
		t.Fatalf("unexpected %v", out.Data)
	}
	if _, err := labelToBoundary(v.ExpandDims()); err == nil {
		t.Fatal("expected error for 4D input")
	}
}

func TestSpecOptions(t *testing.T) {
	s := Spec{"name": "X", "a": 1, "b": 2.5, "c": []interface{}{1, 2.5}, "d": "str", "e": true}

	if got, _ := s.Float("a", 0); got != 1 {
		t.Errorf("Float(a) = %v", got)
	}
	if got, _ := s.Float("missing", 9); got != 9 {
		t.Errorf("Float(missing) = %v", got)
	}
	if _, err := s.Float("d", 0); !errors.Is(err, ErrBadOption) {
		t.Errorf("expected ErrBadOption, got %v", err)
	}
	lo, hi, err := s.Range("c", 0, 0)
	if err != nil || lo != 1 || hi != 2.5 {
		t.Errorf("Range(c) = %v %v %v", lo, hi, err)
	}
	if _, _, err := s.Range("b", 0, 0); err == nil {
		t.Error("expected error for scalar range")
	}
	if got, _ := s.Bool("e", false); !got {
		t.Error("Bool(e) = false")
	}
	if got, _ := s.Ints("c", nil); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Errorf("Ints(c) = %v", got)
	}
}
