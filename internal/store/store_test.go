package store_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/clustermap/internal/db"
	"github.com/persistorai/clustermap/internal/dbpool"
	"github.com/persistorai/clustermap/internal/domain"
	"github.com/persistorai/clustermap/internal/models"
	"github.com/persistorai/clustermap/internal/store"
)

// testEnv holds shared test infrastructure (single pool across all tests).
type testEnv struct {
	pool *dbpool.Pool
	log  *logrus.Logger
}

var sharedEnv *testEnv

func getTestEnv(t *testing.T) *testEnv {
	t.Helper()

	if sharedEnv != nil {
		return sharedEnv
	}

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()

	pool, err := dbpool.NewPool(ctx, dbURL, 4)
	if err != nil {
		t.Fatalf("connecting to test DB: %v", err)
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	if _, err := db.RunMigrations(ctx, pool, log, nil); err != nil {
		t.Fatalf("migrating test DB: %v", err)
	}

	sharedEnv = &testEnv{pool: pool, log: log}

	return sharedEnv
}

// setupBackend truncates the map tables and returns a Backend over them.
func setupBackend(t *testing.T) *store.Backend {
	t.Helper()

	env := getTestEnv(t)

	if _, err := env.pool.Exec(context.Background(), `TRUNCATE cm_points, cm_clusters RESTART IDENTITY`); err != nil {
		t.Fatalf("truncating: %v", err)
	}

	return store.NewBackend(store.Base{Pool: env.pool, Log: env.log})
}

func seed(t *testing.T, b *store.Backend, n int) {
	t.Helper()

	clusters := []models.Cluster{
		{ID: "r", Label: "Root", Depth: 0, Path: "r"},
		{ID: "a", Label: "Alpha", Depth: 1, IsLeaf: true, Path: "r/a"},
		{ID: "b", Label: "Beta", Depth: 1, IsLeaf: true, Path: "r/b"},
	}

	date := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)

	points := make([]models.Point, 0, n)
	for i := range n {
		leaf := "a"
		if i%2 == 1 {
			leaf = "b"
		}

		points = append(points, models.NewDocumentPoint(fmt.Sprintf("d%04d", i), fmt.Sprintf("Heart study %d", i), float64(i), 0, &date, "r/"+leaf))
	}

	nc, np, err := b.Import(context.Background(), clusters, points)
	if err != nil {
		t.Fatal(err)
	}

	if nc != 3 || np != n {
		t.Fatalf("imported %d clusters, %d points", nc, np)
	}
}

func TestFetchPointsBatch_PagesInInsertionOrder(t *testing.T) {
	b := setupBackend(t)
	seed(t, b, 1200)
	ctx := context.Background()

	first, err := b.FetchPointsBatch(ctx, 0, 1000)
	if err != nil {
		t.Fatal(err)
	}

	rest, err := b.FetchPointsBatch(ctx, 1000, 1000)
	if err != nil {
		t.Fatal(err)
	}

	if len(first) != 1000 || len(rest) != 200 {
		t.Fatalf("pages = %d, %d", len(first), len(rest))
	}

	if first[0].SourceID != "d0000" || rest[0].SourceID != "d1000" {
		t.Errorf("order: %s, %s", first[0].SourceID, rest[0].SourceID)
	}

	if first[1].ClusterPath != "r/b" || first[1].Date == nil {
		t.Errorf("point = %+v", first[1])
	}

	empty, err := b.FetchPointsBatch(ctx, 5000, 10)
	if err != nil || len(empty) != 0 {
		t.Errorf("past the end = %d, %v", len(empty), err)
	}
}

func TestInsertPoints_SkipsExisting(t *testing.T) {
	b := setupBackend(t)
	seed(t, b, 10)

	again := []models.Point{
		models.NewDocumentPoint("d0003", "dup", 0, 0, nil, "r/a"),
		models.NewDocumentPoint("new", "New", 0, 0, nil, "r/a"),
	}

	n, err := b.InsertPoints(context.Background(), again)
	if err != nil || n != 1 {
		t.Fatalf("InsertPoints = %d, %v", n, err)
	}

	count, err := b.CountPoints(context.Background())
	if err != nil || count != 11 {
		t.Errorf("count = %d, %v", count, err)
	}
}

func TestInsertPoints_RejectsLabels(t *testing.T) {
	b := setupBackend(t)

	label := models.NewClusterLabelPoint(models.Cluster{ID: "a", Path: "a"})
	if _, err := b.InsertPoints(context.Background(), []models.Point{label}); err == nil {
		t.Error("expected error for a label point")
	}
}

func TestFetchPointsByClusterIDs(t *testing.T) {
	b := setupBackend(t)
	seed(t, b, 10)

	pts, err := b.FetchPointsByClusterIDs(context.Background(), []string{"b"})
	if err != nil {
		t.Fatal(err)
	}

	if len(pts) != 5 {
		t.Fatalf("got %d points", len(pts))
	}

	for _, p := range pts {
		if p.LeafClusterID() != "b" {
			t.Errorf("point %s in %s", p.ID, p.ClusterPath)
		}
	}
}

func TestFetchClusters(t *testing.T) {
	b := setupBackend(t)
	seed(t, b, 1)

	clusters, err := b.FetchClusters(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(clusters) != 3 || clusters[0].ID != "r" || !clusters[1].IsLeaf {
		t.Errorf("clusters = %+v", clusters)
	}
}

func TestFetchSearchResultIDs(t *testing.T) {
	b := setupBackend(t)
	seed(t, b, 3)
	ctx := context.Background()

	ids, err := b.FetchSearchResultIDs(ctx, "heart", domain.AccessorTitle)
	if err != nil || len(ids) != 3 {
		t.Errorf("title search = %v, %v", ids, err)
	}

	ids, err = b.FetchSearchResultIDs(ctx, "%", domain.AccessorTitle)
	if err != nil || len(ids) != 0 {
		t.Errorf("wildcard must match literally: %v, %v", ids, err)
	}

	ids, err = b.FetchSearchResultIDs(ctx, "heart", domain.AccessorSemantic)
	if err != nil || len(ids) != 0 {
		t.Errorf("semantic = %v, %v", ids, err)
	}

	if _, err := b.FetchSearchResultIDs(ctx, "heart", "vector"); !errors.Is(err, store.ErrUnknownAccessor) {
		t.Errorf("expected ErrUnknownAccessor, got %v", err)
	}
}
