package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/persistorai/clustermap/internal/batch"
	"github.com/persistorai/clustermap/internal/db"
	"github.com/persistorai/clustermap/internal/dbpool"
	"github.com/persistorai/clustermap/internal/models"
	"github.com/persistorai/clustermap/internal/store"
)

// importOptions select the source of an import and its Postgres target.
type importOptions struct {
	PointsFile    string
	ClustersFile  string
	SQLitePath    string
	PointsTable   string
	ClustersTable string
	DatabaseURL   string
	DryRun        bool
}

// importReport summarises an import.
type importReport struct {
	Source           string        `json:"source"`
	PointsRead       int           `json:"points_read"`
	ClustersRead     int           `json:"clusters_read"`
	PointsInserted   int           `json:"points_inserted"`
	ClustersUpserted int           `json:"clusters_upserted"`
	PointsTotal      int           `json:"points_total"`
	DryRun           bool          `json:"dry_run"`
	Duration         time.Duration `json:"duration_ns"`
}

func newImportCmd() *cobra.Command {
	opts := importOptions{DatabaseURL: os.Getenv("DATABASE_URL")}
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load documents and clusters into the Postgres backend",
		Long: "Reads document and cluster records from JSON files (rows, columns or search-hit " +
			"envelopes) or from a SQLite export, then inserts them into Postgres. Existing " +
			"documents are kept; clusters are upserted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()

			log := logrus.New()
			log.SetOutput(os.Stderr)

			report, err := runImport(ctx, opts, log)
			if err != nil {
				return err
			}
			output(report, fmt.Sprint(report.PointsInserted))
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.PointsFile, "points", "", "JSON file of document rows")
	cmd.Flags().StringVar(&opts.ClustersFile, "clusters", "", "JSON file of cluster rows")
	cmd.Flags().StringVar(&opts.SQLitePath, "sqlite", "", "SQLite database to read instead of JSON files")
	cmd.Flags().StringVar(&opts.PointsTable, "points-table", "documents", "SQLite table of document rows")
	cmd.Flags().StringVar(&opts.ClustersTable, "clusters-table", "clusters", "SQLite table of cluster rows")
	cmd.Flags().StringVar(&opts.DatabaseURL, "database-url", opts.DatabaseURL, "Postgres URL (env: DATABASE_URL)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Decode and validate only")
	return cmd
}

func (o importOptions) validate() error {
	hasFiles := o.PointsFile != "" || o.ClustersFile != ""
	switch {
	case hasFiles && o.SQLitePath != "":
		return errors.New("--sqlite cannot be combined with --points/--clusters")
	case !hasFiles && o.SQLitePath == "":
		return errors.New("one of --points, --clusters or --sqlite is required")
	case !o.DryRun && o.DatabaseURL == "":
		return errors.New("--database-url or DATABASE_URL is required")
	}
	return nil
}

func runImport(ctx context.Context, opts importOptions, log *logrus.Logger) (*importReport, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	start := time.Now()

	clusters, points, source, err := readImport(ctx, opts)
	if err != nil {
		return nil, err
	}

	report := &importReport{
		Source:       source,
		PointsRead:   len(points),
		ClustersRead: len(clusters),
		DryRun:       opts.DryRun,
	}

	log.WithFields(logrus.Fields{
		"source":   source,
		"points":   len(points),
		"clusters": len(clusters),
	}).Info("import decoded")

	if opts.DryRun {
		report.Duration = time.Since(start)
		return report, nil
	}

	pool, err := dbpool.NewPool(ctx, opts.DatabaseURL, 4)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if _, err := db.RunMigrations(ctx, pool, log, nil); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	backend := store.NewBackend(store.Base{Pool: pool, Log: log})

	nc, np, err := backend.Import(ctx, clusters, points)
	if err != nil {
		return nil, err
	}
	report.ClustersUpserted, report.PointsInserted = nc, np

	if report.PointsTotal, err = backend.CountPoints(ctx); err != nil {
		return nil, err
	}

	report.Duration = time.Since(start)

	log.WithFields(logrus.Fields{
		"inserted": np,
		"skipped":  len(points) - np,
		"clusters": nc,
		"total":    report.PointsTotal,
		"duration": report.Duration.Round(time.Millisecond),
	}).Info("import complete")

	return report, nil
}

func readImport(ctx context.Context, opts importOptions) ([]models.Cluster, []models.Point, string, error) {
	if opts.SQLitePath != "" {
		c, p, err := readSQLiteImport(ctx, opts)
		return c, p, opts.SQLitePath, err
	}

	var (
		clusters []models.Cluster
		points   []models.Point
	)

	if opts.ClustersFile != "" {
		cols, err := decodeFile(opts.ClustersFile)
		if err != nil {
			return nil, nil, "", err
		}
		if clusters, err = batch.Clusters(cols); err != nil {
			return nil, nil, "", fmt.Errorf("%s: %w", opts.ClustersFile, err)
		}
	}

	if opts.PointsFile != "" {
		cols, err := decodeFile(opts.PointsFile)
		if err != nil {
			return nil, nil, "", err
		}
		if points, err = batch.Points(cols); err != nil {
			return nil, nil, "", fmt.Errorf("%s: %w", opts.PointsFile, err)
		}
	}

	return clusters, points, "json", nil
}

func readSQLiteImport(ctx context.Context, opts importOptions) ([]models.Cluster, []models.Point, error) {
	sdb, err := openSQLite(opts.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	defer sdb.Close()

	ccols, err := readTable(ctx, sdb, opts.ClustersTable)
	if err != nil {
		return nil, nil, err
	}
	clusters, err := batch.Clusters(ccols)
	if err != nil {
		return nil, nil, fmt.Errorf("table %s: %w", opts.ClustersTable, err)
	}

	pcols, err := readTable(ctx, sdb, opts.PointsTable)
	if err != nil {
		return nil, nil, err
	}
	points, err := batch.Points(pcols)
	if err != nil {
		return nil, nil, fmt.Errorf("table %s: %w", opts.PointsTable, err)
	}

	return clusters, points, nil
}

func decodeFile(path string) (*batch.Columns, error) {
	f, err := os.Open(path) //nolint:gosec // path is an operator-supplied flag.
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	cols, err := batch.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return cols, nil
}
