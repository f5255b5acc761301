// Package ws streams render commands to browser renderers over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/clustermap/internal/metrics"
	"github.com/persistorai/clustermap/internal/view"
)

// Hub channel buffer sizes and connection caps.
const (
	broadcastBuffer   = 256
	registerBuffer    = 64
	maxClients        = 1000
	maxSessionClients = 8
)

// sessionBroadcast is sent through the broadcast channel to the Run goroutine.
type sessionBroadcast struct {
	sessionID string
	msg       []byte
	drop      bool
	// lossy marks messages that replay cannot restore; dropping one
	// schedules a resync of the session.
	lossy bool
}

// Hub manages active WebSocket clients and broadcasts messages per session.
// All client map mutations happen exclusively in the Run goroutine.
type Hub struct {
	clients      map[*Client]bool
	sessionCount map[string]int
	register     chan *Client
	unregister   chan *Client
	broadcast    chan sessionBroadcast
	shutdown     chan struct{} // signals Run to begin graceful drain
	done         chan struct{} // closed when Run has finished draining
	count        atomic.Int64
	log          *logrus.Logger
	seq          *EventSequence
	replay       *ReplayLog

	mu        sync.RWMutex
	renderers map[string]*Renderer
	resync    func(sessionID string)
	stale     map[string]struct{}
}

// NewHub creates a new Hub instance.
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		clients:      make(map[*Client]bool),
		sessionCount: make(map[string]int),
		register:     make(chan *Client, registerBuffer),
		unregister:   make(chan *Client, registerBuffer),
		broadcast:    make(chan sessionBroadcast, broadcastBuffer),
		shutdown:     make(chan struct{}),
		done:         make(chan struct{}),
		log:          log,
		seq:          NewEventSequence(),
		replay:       NewReplayLog(replayMaxEvents, replayMaxAge),
		renderers:    make(map[string]*Renderer),
		stale:        make(map[string]struct{}),
	}
}

// OnResync sets the function that pushes a session's data and current frame
// again. It is called when a client subscribes without a usable replay
// position and after a data message was dropped.
func (h *Hub) OnResync(fn func(sessionID string)) {
	h.mu.Lock()
	h.resync = fn
	h.mu.Unlock()
}

// Resync asks the session to push its data and current frame. It reports
// false when no resync function is set.
func (h *Hub) Resync(sessionID string) bool {
	h.mu.RLock()
	fn := h.resync
	h.mu.RUnlock()

	if fn == nil {
		return false
	}

	fn(sessionID)

	return true
}

// markStale records a session that lost a data message.
func (h *Hub) markStale(sessionID string) {
	h.mu.Lock()
	h.stale[sessionID] = struct{}{}
	h.mu.Unlock()
}

// takeStale returns and clears the sessions that lost a data message.
func (h *Hub) takeStale() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.stale) == 0 {
		return nil
	}

	ids := make([]string, 0, len(h.stale))
	for id := range h.stale {
		ids = append(ids, id)
	}

	h.stale = make(map[string]struct{})

	return ids
}

// drainTimeout is how long the hub waits for clients to flush after shutdown.
const drainTimeout = 3 * time.Second

// resyncInterval is how often sessions that lost a data message are resynced.
const resyncInterval = time.Second

// Run starts the hub event loop. It should be run as a goroutine.
// It exits when Shutdown is called or the context is cancelled.
func (h *Hub) Run(ctx context.Context) { //nolint:gocognit,gocyclo,cyclop // connection-limit checks add necessary branching.
	defer close(h.done)

	sweep := time.NewTicker(replaySweep)
	defer sweep.Stop()

	resync := time.NewTicker(resyncInterval)
	defer resync.Stop()

	for {
		select {
		case <-resync.C:
			// Resync broadcasts through this loop, so it must not run here.
			for _, id := range h.takeStale() {
				go h.Resync(id)
			}

		case now := <-sweep.C:
			if n := h.replay.Sweep(now); n > 0 {
				h.log.WithField("sessions", n).Debug("dropped stale replay logs")
			}

		case <-ctx.Done():
			h.drainClients()

			return
		case <-h.shutdown:
			h.drainClients()

			return

		case client := <-h.register:
			if len(h.clients) >= maxClients {
				h.log.Warn("global connection limit reached, dropping client")
				client.closeSend()
				continue
			}
			if h.sessionCount[client.SessionID] >= maxSessionClients {
				h.log.WithField("session_id", client.SessionID).Warn("per-session connection limit reached, dropping client")
				client.closeSend()
				continue
			}
			h.clients[client] = true
			h.sessionCount[client.SessionID]++
			h.count.Store(int64(len(h.clients)))
			metrics.WSConnections.Set(float64(len(h.clients)))
			h.log.WithFields(logrus.Fields{
				"session_id": client.SessionID,
				"total":      len(h.clients),
			}).Info("client registered")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.removeClient(client)
			}
			h.count.Store(int64(len(h.clients)))
			metrics.WSConnections.Set(float64(len(h.clients)))
			h.log.WithField("total", len(h.clients)).Info("client unregistered")

		case b := <-h.broadcast:
			for client := range h.clients {
				if client.SessionID != b.sessionID {
					continue
				}
				select {
				case client.send <- b.msg:
					if b.drop {
						h.removeClient(client)
					}
				default:
					h.removeClient(client)
				}
			}
			h.count.Store(int64(len(h.clients)))
			metrics.WSConnections.Set(float64(len(h.clients)))
		}
	}
}

// removeClient closes a client's send channel and forgets it. Run goroutine only.
func (h *Hub) removeClient(client *Client) {
	client.closeSend()
	delete(h.clients, client)
	h.sessionCount[client.SessionID]--
	if h.sessionCount[client.SessionID] <= 0 {
		delete(h.sessionCount, client.SessionID)
	}
}

// maxBroadcastPayload is the maximum allowed message size (64 MB). Data
// pushes for large windows are the biggest messages.
const maxBroadcastPayload = 64 << 20

// enqueue hands a message to the Run goroutine. Oversized payloads and
// messages that find the channel full are dropped with a warning log.
func (h *Hub) enqueue(b sessionBroadcast) {
	if len(b.msg) > maxBroadcastPayload {
		h.log.WithFields(logrus.Fields{
			"session_id":   b.sessionID,
			"payload_size": len(b.msg),
			"max_size":     maxBroadcastPayload,
		}).Warn("dropping oversized broadcast payload")
		return
	}
	select {
	case h.broadcast <- b:
	default:
		h.log.WithField("session_id", b.sessionID).Warn("broadcast channel full, dropping message")

		if b.lossy {
			h.markStale(b.sessionID)
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	default:
		h.log.Warn("register channel full, dropping client")
		c.closeSend()
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	default:
		// Run loop already exited; client cleanup happened in Run shutdown.
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// BroadcastEvent assigns a sequence ID and broadcasts a typed event to the
// session's clients. Buffered events are logged for replay on reconnect.
func (h *Hub) BroadcastEvent(eventType, sessionID string, data json.RawMessage, buffered bool) {
	evt := Event{
		Type:      eventType,
		ID:        h.seq.Next(sessionID),
		SessionID: sessionID,
		Data:      data,
		Time:      time.Now(),
	}

	msg, err := json.Marshal(evt)
	if err != nil {
		h.log.WithError(err).Error("failed to marshal event")
		return
	}

	if buffered {
		h.replay.Append(&evt)
	}

	h.enqueue(sessionBroadcast{sessionID: sessionID, msg: msg, lossy: !buffered})
}

// Target returns the renderer and timeline that push a session's commands
// to its clients.
func (h *Hub) Target(sessionID string) (view.Renderer, view.Timeline) {
	r := NewRenderer(h, sessionID)

	h.mu.Lock()
	h.renderers[sessionID] = r
	h.mu.Unlock()

	return r, &Timeline{hub: h, sessionID: sessionID}
}

// renderer returns the registered renderer of a session.
func (h *Hub) renderer(sessionID string) (*Renderer, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.renderers[sessionID]
	return r, ok
}

// CloseSession tells the session's clients it ended, disconnects them and
// forgets its replay log.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	delete(h.renderers, sessionID)
	delete(h.stale, sessionID)
	h.mu.Unlock()

	msg, err := json.Marshal(Event{Type: EventClosed, Time: time.Now()})
	if err == nil {
		h.enqueue(sessionBroadcast{sessionID: sessionID, msg: msg, drop: true})
	}

	h.replay.Forget(sessionID)
	h.seq.Forget(sessionID)
}

// Shutdown initiates a graceful WebSocket drain: sends a shutdown frame to
// every connected client, waits for their write pumps to flush, then closes
// all connections. It blocks until drain is complete or the timeout expires.
func (h *Hub) Shutdown() {
	close(h.shutdown)
	<-h.done
}

// drainClients sends a close frame to every client and waits for buffers to flush.
func (h *Hub) drainClients() {
	if len(h.clients) == 0 {
		return
	}

	h.log.WithField("clients", len(h.clients)).Info("draining WebSocket clients")

	shutdownMsg := []byte(`{"type":"shutdown","message":"server shutting down"}`)
	for client := range h.clients {
		select {
		case client.send <- shutdownMsg:
		default:
		}
	}

	deadline := time.After(drainTimeout)
	ticker := time.NewTicker(50 * time.Millisecond) //nolint:mnd // poll interval
	defer ticker.Stop()

	for {
		allDrained := true

		for client := range h.clients {
			if len(client.send) > 0 {
				allDrained = false

				break
			}
		}

		if allDrained {
			break
		}

		select {
		case <-deadline:
			h.log.Warn("WebSocket drain timeout, closing remaining clients")

			goto closeAll
		case <-ticker.C:
		}
	}

closeAll:
	for client := range h.clients {
		client.closeSend()
		delete(h.clients, client)
	}

	h.sessionCount = make(map[string]int)
	h.count.Store(0)
	metrics.WSConnections.Set(0)
}

// ReplayEvents sends logged events after lastEventID to the client. It
// returns false when some of them were already dropped.
func (h *Hub) ReplayEvents(client *Client, lastEventID uint64) bool {
	events, ok := h.replay.Replay(client.SessionID, lastEventID)
	if !ok {
		return false
	}

	for _, evt := range events {
		msg, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		select {
		case client.send <- msg:
		default:
			return true // channel full, stop replay
		}
	}
	return true
}
