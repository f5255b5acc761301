package ws

import (
	"sort"
	"sync"
	"time"
)

// Replay limits. Selection, label and timeline events are logged; data
// pushes are not, a client without a replayable position is resynced.
const (
	replayMaxEvents = 256
	replayMaxAge    = 30 * time.Minute
	replaySweep     = 10 * time.Minute
)

// ReplayLog keeps each session's recent events so a reconnecting client
// can catch up from its last seen event ID.
type ReplayLog struct {
	maxEvents int
	maxAge    time.Duration

	mu       sync.Mutex
	sessions map[string][]Event
}

// NewReplayLog creates a ReplayLog holding at most maxEvents per session,
// none older than maxAge.
func NewReplayLog(maxEvents int, maxAge time.Duration) *ReplayLog {
	return &ReplayLog{
		maxEvents: maxEvents,
		maxAge:    maxAge,
		sessions:  make(map[string][]Event),
	}
}

// Append logs evt under its session. IDs must increase per session.
func (l *ReplayLog) Append(evt *Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := append(l.expired(l.sessions[evt.SessionID], evt.Time), *evt)
	if over := len(events) - l.maxEvents; over > 0 {
		events = events[over:]
	}

	l.sessions[evt.SessionID] = events
}

// expired drops the events older than maxAge relative to now.
func (l *ReplayLog) expired(events []Event, now time.Time) []Event {
	cutoff := now.Add(-l.maxAge)
	i := sort.Search(len(events), func(i int) bool { return !events[i].Time.Before(cutoff) })

	return events[i:]
}

// Replay returns the session's events after the given ID. It reports false
// when events the client has not seen were already dropped.
func (l *ReplayLog) Replay(sessionID string, after uint64) ([]Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := l.sessions[sessionID]
	if len(events) == 0 {
		return nil, true
	}

	if after > 0 && after+1 < events[0].ID {
		return nil, false
	}

	i := sort.Search(len(events), func(i int) bool { return events[i].ID > after })
	if i == len(events) {
		return nil, true
	}

	return append([]Event(nil), events[i:]...), true
}

// Sweep drops sessions whose newest event is older than maxAge and returns
// how many were dropped.
func (l *ReplayLog) Sweep(now time.Time) int {
	cutoff := now.Add(-l.maxAge)

	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for id, events := range l.sessions {
		if len(events) == 0 || events[len(events)-1].Time.Before(cutoff) {
			delete(l.sessions, id)
			n++
		}
	}

	return n
}

// Forget drops a session's events.
func (l *ReplayLog) Forget(sessionID string) {
	l.mu.Lock()
	delete(l.sessions, sessionID)
	l.mu.Unlock()
}
