package store

import (
	"context"
	"fmt"

	"github.com/persistorai/clustermap/internal/domain"
)

// maxSearchResults caps the ids returned by one search.
const maxSearchResults = 100000

// ErrUnknownAccessor is returned for a search accessor the store cannot serve.
var ErrUnknownAccessor = domain.ErrUnknownAccessor

// SearchStore answers lexical searches over point titles.
type SearchStore struct {
	Base
}

// NewSearchStore creates a SearchStore.
func NewSearchStore(base Base) *SearchStore {
	return &SearchStore{Base: base}
}

// FetchSearchResultIDs returns the document ids whose title starts with
// query, case-insensitively. The semantic accessor has no index here and
// yields no results.
func (s *SearchStore) FetchSearchResultIDs(ctx context.Context, query, accessor string) ([]string, error) {
	switch accessor {
	case domain.AccessorTitle:
	case domain.AccessorSemantic:
		s.Log.WithField("accessor", accessor).Debug("semantic search not supported by postgres backend")
		return []string{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAccessor, accessor)
	}

	if query == "" {
		return []string{}, nil
	}

	ctx, cancel := within(ctx, queryTimeout)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		`SELECT document_id FROM cm_points
		 WHERE lower(title) LIKE lower($1) || '%' ESCAPE '\'
		 ORDER BY seq LIMIT $2`,
		escapeLike(query), maxSearchResults)
	if err != nil {
		return nil, fmt.Errorf("executing title search: %w", err)
	}
	defer rows.Close()

	ids := []string{}

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}

	return ids, nil
}
