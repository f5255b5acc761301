package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/clustermap/internal/domain"
	"github.com/persistorai/clustermap/internal/metrics"
	"github.com/persistorai/clustermap/internal/models"
	"github.com/persistorai/clustermap/internal/view"
)

// Manager defaults.
const (
	DefaultMaxSessions = 64
	DefaultIdleTimeout = 30 * time.Minute
	minEvictInterval   = time.Second
)

// Target returns the renderer and timeline a new session pushes to.
type Target func(sessionID string) (view.Renderer, view.Timeline)

// ManagerOptions configure a Manager.
type ManagerOptions struct {
	Session         SessionOptions
	MaxSessions     int
	IdleTimeout     time.Duration
	PrefetchWorkers int
	PrefetchQueue   int
}

// Manager owns the live sessions.
type Manager struct {
	backend  domain.Backend
	target   Target
	log      *logrus.Logger
	opts     ManagerOptions
	prefetch *Prefetcher

	mu       sync.RWMutex
	sessions map[string]*Session
	onClose  []func(id string)
}

// NewManager creates a Manager. A nil target discards render commands.
func NewManager(backend domain.Backend, target Target, log *logrus.Logger, opts ManagerOptions) *Manager {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}

	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}

	if target == nil {
		target = func(string) (view.Renderer, view.Timeline) { return discard{}, discardTimeline{} }
	}

	m := &Manager{
		backend:  backend,
		target:   target,
		log:      log,
		opts:     opts,
		sessions: make(map[string]*Session),
	}

	if opts.PrefetchWorkers > 0 {
		m.prefetch = NewPrefetcher(m.peek, log, opts.PrefetchQueue, opts.PrefetchWorkers)
	}

	return m
}

// OnClose registers fn to run after a session is removed.
func (m *Manager) OnClose(fn func(id string)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.onClose = append(m.onClose, fn)
}

// Create starts a new session and, when prefetching is enabled, queues it
// for background paging.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	m.mu.RLock()
	full := len(m.sessions) >= m.opts.MaxSessions
	m.mu.RUnlock()

	if full {
		return nil, models.ErrTooManySessions
	}

	id := uuid.NewString()
	r, tl := m.target(id)

	s, err := NewSession(id, m.backend, r, tl, m.log, m.opts.Session)
	if err != nil {
		m.runCloseHooks(id)
		return nil, err
	}

	if err := s.Start(ctx); err != nil {
		s.Close()
		m.runCloseHooks(id)

		return nil, err
	}

	m.mu.Lock()
	if len(m.sessions) >= m.opts.MaxSessions {
		m.mu.Unlock()
		s.Close()
		m.runCloseHooks(id)

		return nil, models.ErrTooManySessions
	}

	m.sessions[id] = s
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))

	if m.prefetch != nil {
		m.prefetch.Enqueue(id)
	}

	return s, nil
}

// Get returns a session and records activity on it.
func (m *Manager) Get(id string) (*Session, error) {
	s, err := m.peek(id)
	if err != nil {
		return nil, err
	}

	s.Touch()

	return s, nil
}

// peek returns a session without recording activity.
func (m *Manager) peek(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, models.ErrSessionNotFound)
	}

	return s, nil
}

// Delete closes and removes a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("session %s: %w", id, models.ErrSessionNotFound)
	}

	s.Close()
	metrics.ActiveSessions.Set(float64(n))
	m.runCloseHooks(id)

	return nil
}

// runCloseHooks releases what the session's target holds, whether the
// session was removed or never made it into the manager.
func (m *Manager) runCloseHooks(id string) {
	m.mu.RLock()
	hooks := m.onClose
	m.mu.RUnlock()

	for _, fn := range hooks {
		fn(id)
	}
}

// Resync pushes a live session's data and current frame to its target
// again. Unknown ids are ignored.
func (m *Manager) Resync(id string) {
	s, err := m.peek(id)
	if err != nil {
		return
	}

	s.View().Resync()
}

// List returns summaries of all sessions, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Info())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.sessions)
}

// Prefetch queues a session for background paging. It reports false when
// prefetching is disabled.
func (m *Manager) Prefetch(id string) bool {
	if m.prefetch == nil {
		return false
	}

	m.prefetch.Enqueue(id)

	return true
}

// PrefetchAll queues every live session for background paging, so new
// backend rows reach sessions that had already exhausted the corpus.
func (m *Manager) PrefetchAll() int {
	if m.prefetch == nil {
		return 0
	}

	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.prefetch.Enqueue(id)
	}

	return len(ids)
}

// Run evicts idle sessions and runs the prefetch workers until ctx is
// cancelled, then closes every session. Call in a goroutine.
func (m *Manager) Run(ctx context.Context) {
	var wg sync.WaitGroup

	if m.prefetch != nil {
		wg.Add(1)

		go func() {
			defer wg.Done()
			m.prefetch.Run(ctx)
		}()
	}

	interval := max(m.opts.IdleTimeout/2, minEvictInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			m.closeAll()

			return
		case <-ticker.C:
			m.EvictIdle(time.Now())
		}
	}
}

// EvictIdle removes sessions with no activity since now minus the idle
// timeout and returns how many were removed.
func (m *Manager) EvictIdle(now time.Time) int {
	cutoff := now.Add(-m.opts.IdleTimeout)

	m.mu.RLock()
	var stale []string
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	evicted := 0
	for _, id := range stale {
		if err := m.Delete(id); err == nil {
			evicted++
		}
	}

	if evicted > 0 {
		m.log.WithField("evicted", evicted).Info("evicted idle sessions")
	}

	return evicted
}

func (m *Manager) closeAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.Delete(id) //nolint:errcheck // concurrent delete is fine
	}
}
