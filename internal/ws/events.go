package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Render event types pushed to the browser renderer.
const (
	EventData      = "data"
	EventAppend    = "append"
	EventSelection = "selection"
	EventLabels    = "labels"
	EventFrame     = "frame"
	EventFit       = "fit"
	EventTimeline  = "timeline"
	EventClosed    = "session_closed"
)

// Event is the structured message sent to WebSocket clients.
type Event struct {
	Type      string          `json:"type"`
	ID        uint64          `json:"id"`
	SessionID string          `json:"-"`
	Data      json.RawMessage `json:"data"`
	Time      time.Time       `json:"time"`
}

// SubscribeMsg is sent by the client on connect to request event replay.
type SubscribeMsg struct {
	Type        string `json:"type"`
	LastEventID uint64 `json:"last_event_id"`
}

// ZoomMsg reports the renderer's camera zoom.
type ZoomMsg struct {
	Type  string  `json:"type"`
	Level float64 `json:"level"`
}

// ResetMsg tells the client to do a full refresh (requested events too old).
type ResetMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// EventSequence tracks monotonic event IDs per session.
type EventSequence struct {
	mu       sync.Mutex
	counters map[string]*atomic.Uint64
}

// NewEventSequence creates a new EventSequence.
func NewEventSequence() *EventSequence {
	return &EventSequence{
		counters: make(map[string]*atomic.Uint64),
	}
}

// Next returns the next sequence number for a session.
func (es *EventSequence) Next(sessionID string) uint64 {
	es.mu.Lock()
	counter, ok := es.counters[sessionID]
	if !ok {
		counter = &atomic.Uint64{}
		es.counters[sessionID] = counter
	}
	es.mu.Unlock()

	return counter.Add(1)
}

// Forget drops a session's counter.
func (es *EventSequence) Forget(sessionID string) {
	es.mu.Lock()
	delete(es.counters, sessionID)
	es.mu.Unlock()
}
