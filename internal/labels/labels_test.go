package labels_test

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"

	"github.com/persistorai/clustermap/internal/hierarchy"
	"github.com/persistorai/clustermap/internal/labels"
	"github.com/persistorai/clustermap/internal/models"
)

// indexOf builds a depth index with perDepth clusters at each of depths.
func indexOf(depths, perDepth int) *hierarchy.DepthIndex {
	var cs []models.Cluster

	for d := range depths {
		for i := range perDepth {
			cs = append(cs, models.Cluster{ID: fmt.Sprintf("d%d-%03d", d, i), Depth: d})
		}
	}

	return hierarchy.NewDepthIndex(cs)
}

func TestStepTable_Lookup(t *testing.T) {
	table := labels.MustStepTable(
		labels.Step[string]{Threshold: 600, Value: "c"},
		labels.Step[string]{Threshold: 1, Value: "a"},
		labels.Step[string]{Threshold: 200, Value: "b"},
	)

	tests := []struct {
		zoom float64
		want string
	}{
		{math.NaN(), "a"},
		{-3, "a"},
		{0, "a"},
		{0.5, "a"},
		{1, "a"},
		{199.9, "a"},
		{200, "b"},
		{599, "b"},
		{600, "c"},
		{1e9, "c"},
	}

	for _, tc := range tests {
		t.Run(fmt.Sprint(tc.zoom), func(t *testing.T) {
			if got := table.Lookup(tc.zoom); got != tc.want {
				t.Errorf("Lookup(%v) = %q, want %q", tc.zoom, got, tc.want)
			}
		})
	}
}

func TestNewStepTable_Errors(t *testing.T) {
	if _, err := labels.NewStepTable[int](); !errors.Is(err, labels.ErrEmptyTable) {
		t.Errorf("empty: %v", err)
	}

	_, err := labels.NewStepTable(labels.Step[int]{Threshold: 1, Value: 1}, labels.Step[int]{Threshold: 1, Value: 2})
	if !errors.Is(err, labels.ErrDuplicateThreshold) {
		t.Errorf("duplicate: %v", err)
	}

	_, err = labels.NewStepTable(labels.Step[int]{Threshold: math.Inf(1), Value: 1})
	if !errors.Is(err, labels.ErrInvalidThreshold) {
		t.Errorf("infinite: %v", err)
	}
}

func TestTopN_Monotonic(t *testing.T) {
	p, err := labels.NewTopN(labels.DefaultTopN)
	if err != nil {
		t.Fatal(err)
	}

	idx := indexOf(4, 100)
	prev := 0

	for z := 0.0; z <= 64; z += 0.25 {
		n := len(p.LabelsToShow(z, idx))
		if n < prev {
			t.Fatalf("zoom %v shows %d labels, fewer than %d at a lower zoom", z, n, prev)
		}

		if n > idx.Len() {
			t.Fatalf("zoom %v shows %d labels, more than %d clusters", z, n, idx.Len())
		}

		prev = n
	}

	if prev != idx.Len() {
		t.Errorf("high zoom shows %d labels, want all %d", prev, idx.Len())
	}
}

func TestTopN_Priority(t *testing.T) {
	p, _ := labels.NewTopN(labels.DefaultTopN)
	idx := indexOf(3, 8)

	got := p.LabelsToShow(0, idx)
	if len(got) != 10 {
		t.Fatalf("got %d labels at zoom 0", len(got))
	}

	for _, id := range got[:8] {
		if id[:2] != "d0" {
			t.Errorf("%s shown before every root-most cluster", id)
		}
	}

	if got[8] != "d1-000" || got[9] != "d1-001" {
		t.Errorf("tie-break by id: %v", got[8:])
	}
}

func TestTopN_Saturates(t *testing.T) {
	p, _ := labels.NewTopN(labels.DefaultTopN)
	idx := indexOf(1, 3)

	if got := p.LabelsToShow(0, idx); len(got) != 3 {
		t.Errorf("got %d, want 3", len(got))
	}

	if got := p.LabelsToShow(10, nil); got != nil {
		t.Errorf("nil index: %v", got)
	}
}

func TestNewTopN_RejectsDecreasing(t *testing.T) {
	tests := []struct {
		name  string
		steps []labels.Step[int]
	}{
		{name: "shrinking", steps: []labels.Step[int]{{Threshold: 0, Value: 10}, {Threshold: 1, Value: 5}}},
		{name: "all before last", steps: []labels.Step[int]{{Threshold: 0, Value: labels.All}, {Threshold: 1, Value: 5}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := labels.NewTopN(labels.MustStepTable(tc.steps...))
			if !errors.Is(err, labels.ErrDecreasingTopN) {
				t.Errorf("expected ErrDecreasingTopN, got %v", err)
			}
		})
	}
}

func TestDepth_Bands(t *testing.T) {
	p := labels.NewDepth(labels.DefaultDepthBands)
	idx := indexOf(8, 2)

	tests := []struct {
		zoom      float64
		maxDepth  int
		wantCount int
	}{
		{zoom: 0, maxDepth: 1, wantCount: 4},
		{zoom: math.NaN(), maxDepth: 1, wantCount: 4},
		{zoom: 2, maxDepth: 2, wantCount: 6},
		{zoom: 7.9, maxDepth: 3, wantCount: 8},
		{zoom: 8, maxDepth: 5, wantCount: 12},
		{zoom: 100, maxDepth: 7, wantCount: 16},
	}

	for _, tc := range tests {
		t.Run(fmt.Sprint(tc.zoom), func(t *testing.T) {
			got := p.LabelsToShow(tc.zoom, idx)
			if len(got) != tc.wantCount {
				t.Errorf("got %d labels, want %d", len(got), tc.wantCount)
			}

			last := fmt.Sprintf("d%d-001", tc.maxDepth)
			if got[len(got)-1] != last {
				t.Errorf("deepest label %s, want %s", got[len(got)-1], last)
			}
		})
	}
}

func TestDepth_SkipsBandBelowMin(t *testing.T) {
	p := labels.NewDepth(labels.MustStepTable(labels.Step[labels.Band]{Threshold: 0, Value: labels.Band{MinDepth: 1, MaxDepth: 1}}))

	got := p.LabelsToShow(5, indexOf(3, 1))
	if !reflect.DeepEqual(got, []string{"d1-000"}) {
		t.Errorf("got %v", got)
	}
}

func TestPolicies_Deterministic(t *testing.T) {
	idx := indexOf(4, 30)

	for _, name := range []string{labels.NameTopN, labels.NameDepth} {
		p, err := labels.ByName(name)
		if err != nil {
			t.Fatal(err)
		}

		if p.Name() != name {
			t.Errorf("Name() = %q", p.Name())
		}

		for _, z := range []float64{0, 3, 9, 40} {
			if !reflect.DeepEqual(p.LabelsToShow(z, idx), p.LabelsToShow(z, idx)) {
				t.Errorf("%s not deterministic at zoom %v", name, z)
			}
		}
	}

	if _, err := labels.ByName("spiral"); !errors.Is(err, labels.ErrUnknownPolicy) {
		t.Errorf("expected ErrUnknownPolicy, got %v", err)
	}
}

func TestDefaultPolicyIsTopN(t *testing.T) {
	byName, err := labels.ByName("")
	if err != nil {
		t.Fatal(err)
	}

	idx := indexOf(4, 30)

	for _, p := range []labels.Policy{labels.Default(), byName} {
		if p.Name() != labels.NameTopN {
			t.Errorf("default policy = %q, want %q", p.Name(), labels.NameTopN)
		}
	}

	if !reflect.DeepEqual(labels.Default().LabelsToShow(3, idx), byName.LabelsToShow(3, idx)) {
		t.Error("Default and ByName(\"\") disagree")
	}
}
