package main

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/persistorai/clustermap/internal/models"
	"github.com/persistorai/clustermap/internal/selection"
)

func day(s string) *time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return &t
}

// fakeBackend serves three documents in two leaf clusters. Loading leaf L1
// adds a fourth.
type fakeBackend struct {
	searchErr error
}

func (b *fakeBackend) FetchPointsBatch(_ context.Context, offset, _ int) ([]models.Point, error) {
	if offset > 0 {
		return nil, nil
	}
	return []models.Point{
		models.NewDocumentPoint("d1", "Heart", 2, 2, day("2023-01-01"), "R/L1"),
		models.NewDocumentPoint("d2", "Tumour", 9, 9, day("2023-06-01"), "R/L2"),
		models.NewDocumentPoint("d3", "Heart scan", 11, 11, day("2024-01-01"), "R/L2"),
	}, nil
}

func (b *fakeBackend) FetchPointsByClusterIDs(_ context.Context, ids []string) ([]models.Point, error) {
	if slices.Contains(ids, "L1") {
		return []models.Point{models.NewDocumentPoint("d4", "Valve", 1, 2, day("2023-03-01"), "R/L1")}, nil
	}
	return nil, nil
}

func (b *fakeBackend) FetchClusters(context.Context) ([]models.Cluster, error) {
	return []models.Cluster{
		{ID: "R", Label: "Root", X: 5, Y: 5, Depth: 0, Path: "R"},
		{ID: "L1", Label: "Cardiology", X: 1, Y: 1, Depth: 1, IsLeaf: true, Path: "R/L1"},
		{ID: "L2", Label: "Oncology", X: 10, Y: 10, Depth: 1, IsLeaf: true, Path: "R/L2"},
	}, nil
}

func (b *fakeBackend) FetchSearchResultIDs(context.Context, string, string) ([]string, error) {
	if b.searchErr != nil {
		return nil, b.searchErr
	}
	return []string{"d1", "d3"}, nil
}

func TestRunExplore(t *testing.T) {
	tests := []struct {
		name        string
		opts        exploreOptions
		wantState   selection.State
		wantSample  []string
		wantMatches int
	}{
		{
			name:       "cluster loads and selects its leaf",
			opts:       exploreOptions{Clusters: []string{"L1"}, Sample: 10},
			wantState:  selection.Filtering,
			wantSample: []string{"doc:d1", "doc:d4"},
		},
		{
			name:       "both leaves in multi-cluster mode",
			opts:       exploreOptions{Clusters: []string{"L1", "L2"}, Sample: 10},
			wantState:  selection.Filtering,
			wantSample: []string{"doc:d1", "doc:d2", "doc:d3", "doc:d4"},
		},
		{
			name:        "date range intersects search",
			opts:        exploreOptions{From: "2023-05-01", Query: "heart", Sample: 10},
			wantState:   selection.Filtering,
			wantSample:  []string{"doc:d3"},
			wantMatches: 2,
		},
		{
			name:       "sample is capped",
			opts:       exploreOptions{Clusters: []string{"L2"}, Sample: 1},
			wantState:  selection.Filtering,
			wantSample: nil,
		},
		{
			name:      "no facets stays idle",
			opts:      exploreOptions{Zoom: 3, Sample: 10},
			wantState: selection.Idle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := runExplore(context.Background(), &fakeBackend{}, tt.opts)
			if err != nil {
				t.Fatalf("runExplore: %v", err)
			}

			if report.View.State != tt.wantState {
				t.Errorf("state = %v, want %v", report.View.State, tt.wantState)
			}

			if tt.opts.Sample == 1 {
				if len(report.Sample) != 1 {
					t.Errorf("sample = %v, want one id", report.Sample)
				}
				return
			}

			got := slices.Clone(report.Sample)
			slices.Sort(got)
			if tt.wantState == selection.Filtering && !slices.Equal(got, tt.wantSample) {
				t.Errorf("sample = %v, want %v", got, tt.wantSample)
			}

			if tt.wantMatches > 0 && (report.Matches == nil || *report.Matches != tt.wantMatches) {
				t.Errorf("matches = %v, want %d", report.Matches, tt.wantMatches)
			}
		})
	}
}

func TestRunExplore_SearchFailure(t *testing.T) {
	b := &fakeBackend{searchErr: errors.New("search index down")}

	_, err := runExplore(context.Background(), b, exploreOptions{Query: "heart"})
	if err == nil {
		t.Fatal("expected search failure to surface")
	}
}

func TestRunExplore_UnknownLabelPolicy(t *testing.T) {
	_, err := runExplore(context.Background(), &fakeBackend{}, exploreOptions{Labels: "bogus"})
	if err == nil {
		t.Fatal("expected unknown label policy to fail")
	}
}
