package batch

import (
	"errors"
	"fmt"
	"time"

	"github.com/persistorai/clustermap/internal/models"
)

// Column names used by the document and cluster indices.
const (
	ColDocumentID  = "document_id"
	ColTitle       = "title"
	ColX           = "x"
	ColY           = "y"
	ColDate        = "date"
	ColClusterID   = "cluster_id"
	ColClusterPath = "cluster_path"
	ColDepth       = "depth"
	ColLabel       = "label"
	ColIsLeaf      = "is_leaf"
	ColPath        = "path"
	colHitID       = "_id"
	colID          = "id"
)

var errNoID = errors.New("row has no document id")

// documentID reads the id column, falling back to the hit id.
func documentID(r Row) string {
	for _, name := range []string{ColDocumentID, colHitID, colID} {
		if id := r.String(name); id != "" {
			return id
		}
	}

	return ""
}

// PointFromRow maps one document row to a document point.
func PointFromRow(r Row) (models.Point, error) {
	id := documentID(r)
	if id == "" {
		return models.Point{}, errNoID
	}

	x, err := r.Float(ColX)
	if err != nil {
		return models.Point{}, err
	}

	y, err := r.Float(ColY)
	if err != nil {
		return models.Point{}, err
	}

	date, err := r.Time(ColDate)
	if err != nil {
		return models.Point{}, err
	}

	path := r.String(ColClusterPath)
	if path == "" {
		path = r.String(ColClusterID)
	}

	return models.NewDocumentPoint(id, r.String(ColTitle), x, y, date, path), nil
}

// ClusterFromRow maps one cluster row. A missing path defaults to the id.
func ClusterFromRow(r Row) (models.Cluster, error) {
	id := r.String(ColClusterID)
	if id == "" {
		return models.Cluster{}, fmt.Errorf("cluster: %w", models.ErrMissingID)
	}

	x, err := r.Float(ColX)
	if err != nil {
		return models.Cluster{}, err
	}

	y, err := r.Float(ColY)
	if err != nil {
		return models.Cluster{}, err
	}

	var depth int
	if r.Has(ColDepth) {
		if depth, err = r.Int(ColDepth); err != nil {
			return models.Cluster{}, err
		}
	}

	path := r.String(ColPath)
	if path == "" {
		path = id
	}

	c := models.Cluster{
		ID:    id,
		X:     x,
		Y:     y,
		Label: r.String(ColLabel),
		Depth: depth,
		Path:  path,
	}

	// A missing or empty is_leaf cell leaves the flag to be inferred.
	if r.String(ColIsLeaf) != "" {
		leaf := r.Bool(ColIsLeaf)
		c.SetLeafFlag(&leaf)
	}

	return c, nil
}

// IDFromRow reads the document id of a search hit.
func IDFromRow(r Row) (string, error) {
	id := documentID(r)
	if id == "" {
		return "", errNoID
	}

	return id, nil
}

// Points maps a batch of document rows.
func Points(c *Columns) ([]models.Point, error) {
	return Map(c, PointFromRow)
}

// Clusters maps a batch of cluster rows.
func Clusters(c *Columns) ([]models.Cluster, error) {
	return Map(c, ClusterFromRow)
}

// IDs maps a batch of search hits to raw document ids.
func IDs(c *Columns) ([]string, error) {
	return Map(c, IDFromRow)
}

// DocumentRecord is the wire row of a document point, the shape PointFromRow
// reads back.
type DocumentRecord struct {
	DocumentID  string     `json:"document_id"`
	Title       string     `json:"title"`
	X           float64    `json:"x"`
	Y           float64    `json:"y"`
	Date        *time.Time `json:"date,omitempty"`
	ClusterPath string     `json:"cluster_path"`
}

// Records converts document points to wire rows. Label points are skipped.
func Records(pts []models.Point) []DocumentRecord {
	out := make([]DocumentRecord, 0, len(pts))
	for i := range pts {
		p := &pts[i]
		if p.Kind != models.KindDocument {
			continue
		}

		out = append(out, DocumentRecord{
			DocumentID:  p.SourceID,
			Title:       p.Title,
			X:           p.X,
			Y:           p.Y,
			Date:        p.Date,
			ClusterPath: p.ClusterPath,
		})
	}

	return out
}
