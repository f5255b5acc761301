package models

import (
	"encoding/json"
	"strings"
)

// PathSeparator splits the ids of a cluster path.
const PathSeparator = '/'

// Cluster is one node of the cluster hierarchy.
type Cluster struct {
	ID     string
	X      float64
	Y      float64
	Label  string
	Depth  int
	IsLeaf bool
	// LeafKnown is set when IsLeaf came from the source. A cluster without
	// it is a leaf if IsLeaf is set or none of its children are loaded.
	LeafKnown bool
	Path      string
}

// LeafFlag returns the source's leaf flag, or nil when it supplied none.
func (c *Cluster) LeafFlag() *bool {
	if !c.LeafKnown && !c.IsLeaf {
		return nil
	}

	v := c.IsLeaf

	return &v
}

// SetLeafFlag records a leaf flag read from a source. A nil flag leaves
// the cluster's leaf status to be inferred.
func (c *Cluster) SetLeafFlag(flag *bool) {
	c.LeafKnown = flag != nil
	c.IsLeaf = flag != nil && *flag
}

type clusterJSON struct {
	ID     string  `json:"cluster_id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Label  string  `json:"label"`
	Depth  int     `json:"depth"`
	IsLeaf *bool   `json:"is_leaf,omitempty"`
	Path   string  `json:"path"`
}

// MarshalJSON omits is_leaf when the source supplied no flag.
func (c Cluster) MarshalJSON() ([]byte, error) {
	return json.Marshal(clusterJSON{
		ID:     c.ID,
		X:      c.X,
		Y:      c.Y,
		Label:  c.Label,
		Depth:  c.Depth,
		IsLeaf: c.LeafFlag(),
		Path:   c.Path,
	})
}

// UnmarshalJSON sets LeafKnown when is_leaf is present and not null.
func (c *Cluster) UnmarshalJSON(data []byte) error {
	var raw clusterJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*c = Cluster{ID: raw.ID, X: raw.X, Y: raw.Y, Label: raw.Label, Depth: raw.Depth, Path: raw.Path}
	c.SetLeafFlag(raw.IsLeaf)

	return nil
}

// PathContains reports whether id is one whole segment of the cluster path.
func (c *Cluster) PathContains(id string) bool {
	return PathContains(c.Path, id)
}

// SplitPath splits a cluster path into its segments, dropping empty ones.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}

	parts := strings.Split(path, string(PathSeparator))
	out := parts[:0]

	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}

	return out
}

// PathContains reports whether id matches a whole segment of path.
// Substring matches do not count: "1" is not contained in "11/12".
func PathContains(path, id string) bool {
	if id == "" || path == "" {
		return false
	}

	for len(path) > 0 {
		seg := path
		if i := strings.IndexByte(path, PathSeparator); i >= 0 {
			seg, path = path[:i], path[i+1:]
		} else {
			path = ""
		}

		if seg == id {
			return true
		}
	}

	return false
}

// JoinPath joins segments into a cluster path.
func JoinPath(segments ...string) string {
	return strings.Join(segments, string(PathSeparator))
}
