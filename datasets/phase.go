package datasets

import (
	"errors"
	"fmt"
)

var ErrInvalidPhase = errors.New("invalid phase")

// Phase selects which arrays a dataset binds. Test datasets carry raw data only.
type Phase string

const (
	PhaseTrain Phase = "train"
	PhaseVal   Phase = "val"
	PhaseTest  Phase = "test"
)

// Phases lists every valid phase in load order.
func Phases() []Phase {
	return []Phase{PhaseTrain, PhaseVal, PhaseTest}
}

// ParsePhase validates s, returning ErrInvalidPhase for anything but
// train, val or test.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhase, s)
	}
	return p, nil
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseTrain, PhaseVal, PhaseTest:
		return true
	}
	return false
}

// HasLabels reports whether datasets of this phase bind label arrays.
func (p Phase) HasLabels() bool {
	return p == PhaseTrain || p == PhaseVal
}

func (p Phase) String() string {
	return string(p)
}
