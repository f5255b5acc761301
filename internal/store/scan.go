package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/persistorai/clustermap/internal/models"
)

// pointColumns lists the columns selected for point queries.
const pointColumns = `document_id, title, x, y, date, cluster_id, cluster_path`

// clusterColumns lists the columns selected for cluster queries.
const clusterColumns = `cluster_id, label, x, y, depth, is_leaf, path`

// scanPoint scans a single row into a document point.
func scanPoint(scan func(dest ...any) error) (models.Point, error) {
	var (
		id, title, clusterID, path string
		x, y                       float64
		date                       *time.Time
	)

	if err := scan(&id, &title, &x, &y, &date, &clusterID, &path); err != nil {
		return models.Point{}, err
	}

	if path == "" {
		path = clusterID
	}

	if date != nil {
		utc := date.UTC()
		date = &utc
	}

	return models.NewDocumentPoint(id, title, x, y, date, path), nil
}

// collectPoints drains rows into points.
func collectPoints(rows pgx.Rows) ([]models.Point, error) {
	var out []models.Point

	for rows.Next() {
		p, err := scanPoint(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning point: %w", err)
		}

		out = append(out, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating points: %w", err)
	}

	return out, nil
}

// scanCluster scans a single row into a cluster.
func scanCluster(scan func(dest ...any) error) (models.Cluster, error) {
	var (
		c    models.Cluster
		leaf *bool
	)

	if err := scan(&c.ID, &c.Label, &c.X, &c.Y, &c.Depth, &leaf, &c.Path); err != nil {
		return models.Cluster{}, err
	}

	c.SetLeafFlag(leaf)

	return c, nil
}

// escapeLike escapes LIKE metacharacters so user input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
