package transforms

import (
	"fmt"
)

// Spec is one entry of a pipeline config: "name" plus transform options.
type Spec map[string]interface{}

// Name returns the transform name, or "" when missing.
func (s Spec) Name() string {
	name, _ := s["name"].(string)
	return name
}

// Float reads a numeric option, returning def when absent.
func (s Spec) Float(key string, def float64) (float64, error) {
	v, ok := s[key]
	if !ok || v == nil {
		return def, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a number, got %T", ErrBadOption, key, v)
	}
	return f, nil
}

// OptionalFloat reads a numeric option that may be absent or null.
func (s Spec) OptionalFloat(key string) (float64, bool, error) {
	v, ok := s[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, false, fmt.Errorf("%w: %s must be a number, got %T", ErrBadOption, key, v)
	}
	return f, true, nil
}

func (s Spec) Int(key string, def int) (int, error) {
	f, err := s.Float(key, float64(def))
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

func (s Spec) Bool(key string, def bool) (bool, error) {
	v, ok := s[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s must be a bool, got %T", ErrBadOption, key, v)
	}
	return b, nil
}

// Range reads a two-element numeric list such as alpha: [0.5, 1.5].
func (s Spec) Range(key string, lo, hi float64) (float64, float64, error) {
	v, ok := s[key]
	if !ok || v == nil {
		return lo, hi, nil
	}
	vals, err := s.floats(key, v)
	if err != nil {
		return 0, 0, err
	}
	if len(vals) != 2 {
		return 0, 0, fmt.Errorf("%w: %s must have two values, got %d", ErrBadOption, key, len(vals))
	}
	return vals[0], vals[1], nil
}

// Ints reads a numeric list option.
func (s Spec) Ints(key string, def []int) ([]int, error) {
	v, ok := s[key]
	if !ok || v == nil {
		return def, nil
	}
	vals, err := s.floats(key, v)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(vals))
	for i, f := range vals {
		out[i] = int(f)
	}
	return out, nil
}

func (s Spec) floats(key string, v interface{}) ([]float64, error) {
	var items []interface{}
	switch t := v.(type) {
	case []interface{}:
		items = t
	case []float64:
		return t, nil
	case []int:
		out := make([]float64, len(t))
		for i, x := range t {
			out[i] = float64(x)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s must be a list, got %T", ErrBadOption, key, v)
	}
	out := make([]float64, len(items))
	for i, item := range items {
		f, ok := toFloat(item)
		if !ok {
			return nil, fmt.Errorf("%w: %s[%d] must be a number, got %T", ErrBadOption, key, i, item)
		}
		out[i] = f
	}
	return out, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
