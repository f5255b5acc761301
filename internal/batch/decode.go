package batch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrUnknownEnvelope is returned for a JSON body in none of the accepted shapes.
var ErrUnknownEnvelope = errors.New("unrecognised batch envelope")

// envelope covers the object forms a backend may answer with.
type envelope struct {
	Hits    []map[string]any `json:"hits"`
	Columns map[string][]any `json:"columns"`
	Data    []map[string]any `json:"data"`
}

// Decode reads a JSON batch. Accepted shapes are a bare array of rows,
// {"hits":[...]}, {"data":[...]} and the columnar {"columns":{"name":[...]}}.
// Search-engine hits carrying a "_source" object are flattened, with "_id"
// kept alongside the source fields.
func Decode(r io.Reader) (*Columns, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading batch: %w", err)
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return FromRows(nil), nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	if body[0] == '[' {
		var rows []map[string]any
		if err := dec.Decode(&rows); err != nil {
			return nil, fmt.Errorf("decoding batch rows: %w", err)
		}

		return FromRows(flattenHits(rows)), nil
	}

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding batch envelope: %w", err)
	}

	switch {
	case env.Columns != nil:
		return NewColumns(env.Columns)
	case env.Hits != nil:
		return FromRows(flattenHits(env.Hits)), nil
	case env.Data != nil:
		return FromRows(flattenHits(env.Data)), nil
	default:
		return nil, ErrUnknownEnvelope
	}
}

func flattenHits(rows []map[string]any) []map[string]any {
	for i, row := range rows {
		src, ok := row["_source"].(map[string]any)
		if !ok {
			continue
		}

		flat := make(map[string]any, len(src)+1)
		for k, v := range src {
			flat[k] = v
		}

		if id, ok := row["_id"]; ok {
			flat["_id"] = id
		}

		rows[i] = flat
	}

	return rows
}
