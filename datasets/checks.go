package datasets

import (
	"fmt"
	"math"
)

// Rule inspects one transformed sample.
type Rule interface {
	Check(Sample) error
	Name() string
}

// Issue is one failed rule on one sample.
type Issue struct {
	Rule    string `json:"rule"`
	Index   int    `json:"index"`
	Message string `json:"message"`
}

type Report struct {
	Checked int            `json:"checked"`
	Passed  int            `json:"passed"`
	Issues  []Issue        `json:"issues"`
	ByRule  map[string]int `json:"by_rule"`
}

// Validate runs every rule over every sample of src. Read errors abort the
// run; rule failures are collected in the report.
func Validate(src Source, rules ...Rule) (Report, error) {
	report := Report{ByRule: make(map[string]int)}

	it := NewIterator(src)
	for it.Next() {
		report.Checked++
		ok := true
		for _, rule := range rules {
			if err := rule.Check(it.Sample()); err != nil {
				ok = false
				report.Issues = append(report.Issues, Issue{
					Rule:    rule.Name(),
					Index:   it.Index(),
					Message: err.Error(),
				})
				report.ByRule[rule.Name()]++
			}
		}
		if ok {
			report.Passed++
		}
	}
	return report, it.Err()
}

// FiniteRule rejects raw samples holding NaN or Inf.
type FiniteRule struct{}

func (FiniteRule) Name() string { return "finite" }

func (FiniteRule) Check(s Sample) error {
	if s.Raw == nil {
		return nil
	}
	for i, x := range s.Raw.Data {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("raw value %v at offset %d", x, i)
		}
	}
	return nil
}

// LabelRangeRule requires labels to be non-negative integers, and below Max
// when Max is positive.
type LabelRangeRule struct {
	Max float64
}

func (LabelRangeRule) Name() string { return "label_range" }

func (r LabelRangeRule) Check(s Sample) error {
	if s.Label == nil {
		return nil
	}
	for i, x := range s.Label.Data {
		if x < 0 || x != math.Trunc(x) {
			return fmt.Errorf("label %v at offset %d is not a non-negative integer", x, i)
		}
		if r.Max > 0 && x >= r.Max {
			return fmt.Errorf("label %v at offset %d exceeds %v", x, i, r.Max)
		}
	}
	return nil
}
