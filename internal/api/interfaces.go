package api

import (
	"context"

	"github.com/persistorai/clustermap/internal/service"
)

// SessionManager defines the session lifecycle operations used by
// SessionHandler.
type SessionManager interface {
	Create(ctx context.Context) (*service.Session, error)
	Get(id string) (*service.Session, error)
	Delete(id string) error
	List() []service.Info
	Len() int
}

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error
