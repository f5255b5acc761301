package models

import "time"

// DateRange is an inclusive [From, To] interval on point dates.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Valid reports whether the range is well-formed (From <= To).
func (r DateRange) Valid() bool {
	return !r.From.After(r.To)
}

// Contains reports whether t lies in the range. A nil date never matches,
// nor does any date when the range is inverted.
func (r DateRange) Contains(t *time.Time) bool {
	if t == nil || !r.Valid() {
		return false
	}

	return !t.Before(r.From) && !t.After(r.To)
}

// Intersect narrows r by other. The result may be inverted (empty).
func (r DateRange) Intersect(other DateRange) DateRange {
	out := r
	if other.From.After(out.From) {
		out.From = other.From
	}

	if other.To.Before(out.To) {
		out.To = other.To
	}

	return out
}

// Viewport is the visible rectangle of the projection plane.
type Viewport struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Contains reports whether (x, y) lies inside the viewport, edges included.
func (v Viewport) Contains(x, y float64) bool {
	return x >= v.MinX && x <= v.MaxX && y >= v.MinY && y <= v.MaxY
}
