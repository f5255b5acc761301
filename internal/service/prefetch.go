package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/clustermap/internal/metrics"
)

const (
	defaultPrefetchQueue = 256
	maxPrefetchFailures  = 3
	basePrefetchDelay    = 2 * time.Second
)

// Prefetcher pages further windows into sessions in the background until
// each session's loader is done or the session goes away.
type Prefetcher struct {
	lookup      func(id string) (*Session, error)
	log         *logrus.Logger
	jobs        chan string
	concurrency int
	delay       time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewPrefetcher creates a prefetcher with the given queue capacity and
// concurrency.
func NewPrefetcher(lookup func(id string) (*Session, error), log *logrus.Logger, queueSize, concurrency int) *Prefetcher {
	if queueSize <= 0 {
		queueSize = defaultPrefetchQueue
	}

	if concurrency <= 0 {
		concurrency = 2
	}

	return &Prefetcher{
		lookup:      lookup,
		log:         log,
		jobs:        make(chan string, queueSize),
		concurrency: concurrency,
		delay:       basePrefetchDelay,
		pending:     make(map[string]struct{}),
	}
}

// Enqueue schedules a session for prefetching. Non-blocking; a session
// already queued is not queued twice and the job is dropped if the queue is
// full.
func (p *Prefetcher) Enqueue(sessionID string) {
	p.mu.Lock()
	if _, ok := p.pending[sessionID]; ok {
		p.mu.Unlock()
		return
	}
	p.pending[sessionID] = struct{}{}
	p.mu.Unlock()

	select {
	case p.jobs <- sessionID:
		metrics.PrefetchQueueDepth.Set(float64(len(p.jobs)))
	default:
		p.done(sessionID)
		p.log.WithField("session_id", sessionID).Warn("prefetch queue full, dropping job")
	}
}

func (p *Prefetcher) done(sessionID string) {
	p.mu.Lock()
	delete(p.pending, sessionID)
	p.mu.Unlock()
}

// Run spawns the worker goroutines and blocks until ctx is cancelled and
// all workers have stopped. Call in a goroutine.
func (p *Prefetcher) Run(ctx context.Context) {
	var wg sync.WaitGroup

	p.log.WithField("concurrency", p.concurrency).Info("starting prefetch workers")

	for i := range p.concurrency {
		wg.Add(1)

		go func(id int) {
			defer wg.Done()
			p.runWorker(ctx, id)
		}(i)
	}

	wg.Wait()
	p.log.Info("all prefetch workers stopped")
}

func (p *Prefetcher) runWorker(ctx context.Context, id int) {
	p.log.WithField("worker_id", id).Debug("prefetch worker started")

	for {
		select {
		case <-ctx.Done():
			return
		case sessionID := <-p.jobs:
			metrics.PrefetchQueueDepth.Set(float64(len(p.jobs)))
			p.process(ctx, sessionID)
			p.done(sessionID)
		}
	}
}

// process pages windows into one session until its loader reports done.
func (p *Prefetcher) process(ctx context.Context, sessionID string) {
	failures := 0

	for ctx.Err() == nil {
		s, err := p.lookup(sessionID)
		if err != nil || s.Closed() {
			return
		}

		res, err := s.Loader().LoadMore(ctx)
		if err != nil {
			failures++

			p.log.WithError(err).WithFields(logrus.Fields{
				"session_id": sessionID,
				"attempt":    failures,
			}).Warn("prefetch failed")

			if failures >= maxPrefetchFailures {
				p.log.WithField("session_id", sessionID).Error("prefetch abandoned after repeated failures")
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(p.delay * (1 << (failures - 1))):
			}

			continue
		}

		failures = 0

		if res.Done {
			p.log.WithFields(logrus.Fields{
				"session_id": sessionID,
				"cursor":     res.Offset + res.Fetched,
			}).Debug("prefetch complete")

			return
		}
	}
}
