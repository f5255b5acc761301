// Package batch turns backend responses into typed records. A response is
// normalised into named column vectors, then mapped row by row; a single bad
// row fails the whole batch so callers never merge a partial result.
package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrRaggedColumns is returned when column vectors differ in length.
var ErrRaggedColumns = errors.New("columns have different lengths")

// epochSecondsLimit separates epoch seconds from epoch milliseconds.
const epochSecondsLimit = 1e12

// Columns is a batch of equal-length named column vectors.
type Columns struct {
	names []string
	data  map[string][]any
	n     int
}

// NewColumns validates that every vector has the same length.
func NewColumns(data map[string][]any) (*Columns, error) {
	c := &Columns{data: make(map[string][]any, len(data)), n: -1}

	for name, vec := range data {
		if c.n >= 0 && len(vec) != c.n {
			return nil, fmt.Errorf("column %q has %d values, want %d: %w", name, len(vec), c.n, ErrRaggedColumns)
		}

		c.n = len(vec)
		c.names = append(c.names, name)
		c.data[name] = vec
	}

	if c.n < 0 {
		c.n = 0
	}

	sort.Strings(c.names)

	return c, nil
}

// FromRows pivots row-oriented records into columns. Keys missing from a
// row read as nil.
func FromRows(rows []map[string]any) *Columns {
	c := &Columns{data: make(map[string][]any), n: len(rows)}

	for i, row := range rows {
		for name, v := range row {
			vec, ok := c.data[name]
			if !ok {
				vec = make([]any, len(rows))
				c.names = append(c.names, name)
			}

			vec[i] = v
			c.data[name] = vec
		}
	}

	sort.Strings(c.names)

	return c
}

// Len returns the number of rows.
func (c *Columns) Len() int {
	if c == nil {
		return 0
	}

	return c.n
}

// Names returns the column names in sorted order.
func (c *Columns) Names() []string {
	return c.names
}

// Row returns an accessor for row i.
func (c *Columns) Row(i int) Row {
	return Row{cols: c, i: i}
}

// Map applies fn to every row and returns the records in row order.
func Map[T any](c *Columns, fn func(Row) (T, error)) ([]T, error) {
	out := make([]T, 0, c.Len())

	for i := range c.Len() {
		rec, err := fn(c.Row(i))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}

		out = append(out, rec)
	}

	return out, nil
}

// Row reads typed values from one row of a batch.
type Row struct {
	cols *Columns
	i    int
}

// Index returns the row number within its batch.
func (r Row) Index() int { return r.i }

// Value returns the raw value of a column, or nil.
func (r Row) Value(name string) any {
	vec, ok := r.cols.data[name]
	if !ok || r.i >= len(vec) {
		return nil
	}

	return vec[r.i]
}

// Has reports whether the column is present with a non-nil value.
func (r Row) Has(name string) bool {
	return r.Value(name) != nil
}

// String reads a column as text. Numbers are formatted; nil reads as "".
func (r Row) String(name string) string {
	switch v := r.Value(name).(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}

// Float reads a numeric column. Numeric strings are accepted.
func (r Row) Float(name string) (float64, error) {
	switch v := r.Value(name).(type) {
	case nil:
		return 0, fmt.Errorf("column %q: missing value", name)
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("column %q: %w", name, err)
		}

		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("column %q: %w", name, err)
		}

		return f, nil
	default:
		return 0, fmt.Errorf("column %q: unsupported type %T", name, v)
	}
}

// Int reads a numeric column truncated to an int.
func (r Row) Int(name string) (int, error) {
	f, err := r.Float(name)
	if err != nil {
		return 0, err
	}

	return int(f), nil
}

// Bool reads a boolean column. Strings "true"/"1" and non-zero numbers are true.
func (r Row) Bool(name string) bool {
	switch v := r.Value(name).(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		return err == nil && b
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	case json.Number:
		f, err := v.Float64()
		return err == nil && f != 0
	default:
		return false
	}
}

// Time reads a date column. Numbers are epoch seconds below 1e12 and epoch
// milliseconds otherwise; strings are RFC 3339 or YYYY-MM-DD. Missing values
// read as nil.
func (r Row) Time(name string) (*time.Time, error) {
	v := r.Value(name)

	switch tv := v.(type) {
	case nil:
		return nil, nil //nolint:nilnil // absent date is valid.
	case time.Time:
		return &tv, nil
	case string:
		if tv == "" {
			return nil, nil //nolint:nilnil // absent date is valid.
		}

		return parseTimeString(name, tv)
	}

	f, err := r.Float(name)
	if err != nil {
		return nil, err
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("column %q: invalid epoch %v", name, f)
	}

	t := epochToTime(f)

	return &t, nil
}

func epochToTime(f float64) time.Time {
	if math.Abs(f) < epochSecondsLimit {
		return time.UnixMilli(int64(f * 1000)).UTC()
	}

	return time.UnixMilli(int64(f)).UTC()
}

func parseTimeString(name, s string) (*time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		t := epochToTime(f)
		return &t, nil
	}

	return nil, fmt.Errorf("column %q: unrecognised date %q", name, s)
}
