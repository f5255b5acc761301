// Package models defines the data types shared by the exploration core.
package models

import (
	"fmt"
	"strings"
	"time"
)

// PointKind discriminates the two kinds of marks held in the point store.
type PointKind uint8

// Point kinds.
const (
	KindDocument PointKind = iota + 1
	KindClusterLabel
)

// String implements fmt.Stringer.
func (k PointKind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindClusterLabel:
		return "cluster_label"
	default:
		return fmt.Sprintf("PointKind(%d)", uint8(k))
	}
}

// MarshalText encodes the kind by name.
func (k PointKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *PointKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "document":
		*k = KindDocument
	case "cluster_label":
		*k = KindClusterLabel
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, b)
	}

	return nil
}

// Id namespaces. Document and cluster-label ids never collide because each
// carries the prefix of its source.
const (
	documentPrefix     = "doc:"
	clusterLabelPrefix = "cluster:"
)

// DocumentKey returns the point-store id of a backend document id.
func DocumentKey(documentID string) string {
	return documentPrefix + documentID
}

// ClusterLabelKey returns the point-store id of a cluster's label point.
func ClusterLabelKey(clusterID string) string {
	return clusterLabelPrefix + clusterID
}

// Point is one visual mark on the map.
type Point struct {
	ID          string     `json:"id"`
	Kind        PointKind  `json:"kind"`
	SourceID    string     `json:"source_id"`
	Title       string     `json:"title"`
	X           float64    `json:"x"`
	Y           float64    `json:"y"`
	Date        *time.Time `json:"date,omitempty"`
	ClusterPath string     `json:"cluster_path"`
	Color       string     `json:"color"`
}

// NewDocumentPoint builds a document point with a namespaced id and derived color.
func NewDocumentPoint(documentID, title string, x, y float64, date *time.Time, clusterPath string) Point {
	p := Point{
		ID:          DocumentKey(documentID),
		Kind:        KindDocument,
		SourceID:    documentID,
		Title:       title,
		X:           x,
		Y:           y,
		Date:        date,
		ClusterPath: clusterPath,
	}
	p.Color = ColorFor(p.LeafClusterID(), x, y)

	return p
}

// NewClusterLabelPoint builds the label mark placed at a cluster's centroid.
func NewClusterLabelPoint(c Cluster) Point {
	return Point{
		ID:          ClusterLabelKey(c.ID),
		Kind:        KindClusterLabel,
		SourceID:    c.ID,
		Title:       c.Label,
		X:           c.X,
		Y:           c.Y,
		ClusterPath: c.Path,
		Color:       ColorFor(c.ID, c.X, c.Y),
	}
}

// IsClusterLabel reports whether p is a cluster-label mark.
func (p *Point) IsClusterLabel() bool {
	return p.Kind == KindClusterLabel
}

// LeafClusterID returns the last segment of the point's cluster path.
func (p *Point) LeafClusterID() string {
	if p.ClusterPath == "" {
		return ""
	}

	if i := strings.LastIndexByte(p.ClusterPath, PathSeparator); i >= 0 {
		return p.ClusterPath[i+1:]
	}

	return p.ClusterPath
}

// Validate checks the fields every point must carry.
func (p *Point) Validate() error {
	if p.ID == "" {
		return ErrMissingID
	}

	switch p.Kind {
	case KindDocument:
		if !strings.HasPrefix(p.ID, documentPrefix) {
			return fmt.Errorf("document point %q: %w", p.ID, ErrBadNamespace)
		}
	case KindClusterLabel:
		if !strings.HasPrefix(p.ID, clusterLabelPrefix) {
			return fmt.Errorf("cluster label point %q: %w", p.ID, ErrBadNamespace)
		}
	default:
		return fmt.Errorf("point %q: %w", p.ID, ErrUnknownKind)
	}

	return nil
}
