// Package labels decides which cluster labels render at a given zoom level.
// Policies are pure functions of (zoom, depth index) backed by sorted step
// tables.
package labels

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Sentinel errors for step-table construction.
var (
	ErrEmptyTable         = errors.New("step table is empty")
	ErrDuplicateThreshold = errors.New("duplicate step threshold")
	ErrInvalidThreshold   = errors.New("step threshold must be a finite number")
)

// Step maps every zoom level from Threshold (inclusive) up to the next
// step's threshold (exclusive) to Value.
type Step[V any] struct {
	Threshold float64
	Value     V
}

// StepTable is an immutable sorted list of steps.
type StepTable[V any] struct {
	steps []Step[V]
}

// NewStepTable sorts steps by threshold. Thresholds must be finite and
// distinct.
func NewStepTable[V any](steps ...Step[V]) (*StepTable[V], error) {
	if len(steps) == 0 {
		return nil, ErrEmptyTable
	}

	sorted := append([]Step[V](nil), steps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Threshold < sorted[j].Threshold })

	for i, s := range sorted {
		if math.IsNaN(s.Threshold) || math.IsInf(s.Threshold, 0) {
			return nil, fmt.Errorf("step %d: %w", i, ErrInvalidThreshold)
		}

		if i > 0 && sorted[i-1].Threshold == s.Threshold {
			return nil, fmt.Errorf("threshold %v: %w", s.Threshold, ErrDuplicateThreshold)
		}
	}

	return &StepTable[V]{steps: sorted}, nil
}

// MustStepTable is NewStepTable for static tables; it panics on error.
func MustStepTable[V any](steps ...Step[V]) *StepTable[V] {
	t, err := NewStepTable(steps...)
	if err != nil {
		panic(err)
	}

	return t
}

// Lookup returns the value of the step with the greatest threshold <= zoom.
// A zoom that is NaN, <= 0, or below the first threshold gets the first step.
func (t *StepTable[V]) Lookup(zoom float64) V {
	if math.IsNaN(zoom) || zoom <= 0 {
		return t.steps[0].Value
	}

	i := sort.Search(len(t.steps), func(i int) bool { return t.steps[i].Threshold > zoom })
	if i == 0 {
		return t.steps[0].Value
	}

	return t.steps[i-1].Value
}
