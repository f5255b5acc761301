package labels

import (
	"errors"
	"fmt"
	"strings"

	"github.com/persistorai/clustermap/internal/hierarchy"
)

// All is a step value meaning "no limit".
const All = -1

// Policy names.
const (
	NameTopN  = "topn"
	NameDepth = "depth"
)

// ErrUnknownPolicy is returned by ByName for an unrecognised name.
var ErrUnknownPolicy = errors.New("unknown label policy")

// ErrDecreasingTopN is returned for a Top-N table whose limits shrink as
// zoom grows.
var ErrDecreasingTopN = errors.New("top-n limits must not decrease with zoom")

// Policy maps a zoom level and depth index to the cluster ids whose labels
// render, ordered by depth then id. Implementations hold no mutable state.
type Policy interface {
	Name() string
	LabelsToShow(zoom float64, idx *hierarchy.DepthIndex) []string
}

// TopN shows the N highest-priority labels, shallow clusters first.
type TopN struct {
	table *StepTable[int]
}

// DefaultTopN is the standard Top-N ladder.
var DefaultTopN = MustStepTable(
	Step[int]{0, 10},
	Step[int]{2, 25},
	Step[int]{4, 50},
	Step[int]{8, 100},
	Step[int]{16, 250},
	Step[int]{32, All},
)

// NewTopN builds a Top-N policy. Limits must be non-decreasing, with All
// allowed only as the final step.
func NewTopN(table *StepTable[int]) (*TopN, error) {
	prev := 0

	for i, s := range table.steps {
		if s.Value == All {
			if i != len(table.steps)-1 {
				return nil, fmt.Errorf("step %d: %w", i, ErrDecreasingTopN)
			}

			continue
		}

		if s.Value < prev {
			return nil, fmt.Errorf("step %d: %w", i, ErrDecreasingTopN)
		}

		prev = s.Value
	}

	return &TopN{table: table}, nil
}

// Name implements Policy.
func (p *TopN) Name() string { return NameTopN }

// Limit returns N at zoom, saturated at total.
func (p *TopN) Limit(zoom float64, total int) int {
	n := p.table.Lookup(zoom)
	if n == All || n > total {
		return total
	}

	return n
}

// LabelsToShow implements Policy.
func (p *TopN) LabelsToShow(zoom float64, idx *hierarchy.DepthIndex) []string {
	n := p.Limit(zoom, idx.Len())
	if n <= 0 {
		return nil
	}

	return idx.Ordered()[:n]
}

// Band is an inclusive depth range. MaxDepth All means unbounded.
type Band struct {
	MinDepth int
	MaxDepth int
}

// Contains reports whether depth lies in the band.
func (b Band) Contains(depth int) bool {
	return depth >= b.MinDepth && (b.MaxDepth == All || depth <= b.MaxDepth)
}

// Depth shows every cluster whose depth lies in a zoom-dependent band.
type Depth struct {
	table *StepTable[Band]
}

// DefaultDepthBands is the standard depth-band ladder.
var DefaultDepthBands = MustStepTable(
	Step[Band]{0, Band{0, 1}},
	Step[Band]{2, Band{0, 2}},
	Step[Band]{4, Band{0, 3}},
	Step[Band]{8, Band{0, 5}},
	Step[Band]{16, Band{0, All}},
)

// NewDepth builds a hierarchical-depth policy.
func NewDepth(table *StepTable[Band]) *Depth {
	return &Depth{table: table}
}

// Name implements Policy.
func (p *Depth) Name() string { return NameDepth }

// BandAt returns the band in force at zoom.
func (p *Depth) BandAt(zoom float64) Band {
	return p.table.Lookup(zoom)
}

// LabelsToShow implements Policy.
func (p *Depth) LabelsToShow(zoom float64, idx *hierarchy.DepthIndex) []string {
	band := p.BandAt(zoom)

	var out []string

	for _, d := range idx.Depths() {
		if band.Contains(d) {
			out = append(out, idx.At(d)...)
		}
	}

	return out
}

// Default returns the policy used when none is named: Top-N over
// DefaultTopN. It panics if DefaultTopN is invalid.
func Default() Policy {
	p, err := NewTopN(DefaultTopN)
	if err != nil {
		panic(err)
	}

	return p
}

// ByName returns the default policy for name.
func ByName(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameTopN, "":
		return Default(), nil
	case NameDepth:
		return NewDepth(DefaultDepthBands), nil
	default:
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownPolicy)
	}
}
