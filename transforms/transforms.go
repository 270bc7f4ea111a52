// Package transforms builds augmentation and normalization pipelines from configuration.
//
// Transforms are looked up by name in a registry. A pipeline config is a list
// of specs, each a map with a "name" key plus that transform's options:
//
//	raw:
//	  - name: Standardize
//	  - name: RandomFlip
//	  - name: ToTensor
//	    expand_dims: true
package transforms

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"segloader/stats"
	"segloader/volume"
)

var (
	ErrUnknownTransform = errors.New("unknown transform")
	ErrBadOption        = errors.New("invalid transform option")
)

// Transform maps one volume to another. Implementations may modify their input.
type Transform interface {
	Apply(v *volume.Volume) (*volume.Volume, error)
}

// Func adapts a function to Transform.
type Func func(v *volume.Volume) (*volume.Volume, error)

func (f Func) Apply(v *volume.Volume) (*volume.Volume, error) {
	return f(v)
}

// Compose applies transforms in order.
type Compose []Transform

func (c Compose) Apply(v *volume.Volume) (*volume.Volume, error) {
	var err error
	for _, t := range c {
		v, err = t.Apply(v)
		if err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Params is what a constructor gets. Rand is owned by a single pipeline.
type Params struct {
	Name    string
	Options Spec
	Stats   stats.Stats
	Rand    *rand.Rand
}

// Constructor builds a transform from Params.
type Constructor func(p Params) (Transform, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Constructor)
)

// Register adds a constructor under name, replacing any previous one.
func Register(name string, c Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = c
}

// Lookup returns the constructor registered under name.
func Lookup(name string) (Constructor, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	c, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownTransform, name, strings.Join(sortedNames(), ", "))
	}
	return c, nil
}

// Names lists registered transforms in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return sortedNames()
}

// sortedNames expects registryMu to be held.
func sortedNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("Identity", newIdentity)
	Register("Standardize", newStandardize)
	Register("PercentileNormalizer", newPercentileNormalizer)
	Register("Normalize", newNormalize)
	Register("Clip", newClip)
	Register("RandomFlip", newRandomFlip)
	Register("RandomRotate90", newRandomRotate90)
	Register("RandomContrast", newRandomContrast)
	Register("AdditiveGaussianNoise", newAdditiveGaussianNoise)
	Register("ToTensor", newToTensor)
	Register("Relabel", newRelabel)
	Register("StandardLabelToBoundary", newStandardLabelToBoundary)
}

func newIdentity(Params) (Transform, error) {
	return Func(func(v *volume.Volume) (*volume.Volume, error) { return v, nil }), nil
}
