package ws

import (
	"encoding/json"
	"sync"

	"github.com/persistorai/clustermap/internal/models"
	"github.com/persistorai/clustermap/internal/view"
)

// Renderer forwards a session's render commands to its WebSocket clients.
// It implements view.Renderer, view.FrameRenderer and view.DataAppender.
type Renderer struct {
	hub       *Hub
	sessionID string

	mu   sync.Mutex
	zoom float64
}

// NewRenderer creates a Renderer for one session.
func NewRenderer(hub *Hub, sessionID string) *Renderer {
	return &Renderer{hub: hub, sessionID: sessionID}
}

type pointsPayload struct {
	Points []models.Point `json:"points"`
}

type idsPayload struct {
	IDs []string `json:"ids"`
}

// SetData replaces the renderer's point set.
func (r *Renderer) SetData(points []models.Point) {
	r.push(EventData, pointsPayload{Points: points}, false)
}

// AppendData adds merged points to the renderer's point set.
func (r *Renderer) AppendData(points []models.Point) {
	r.push(EventAppend, pointsPayload{Points: points}, false)
}

// SetSelection highlights the given point ids.
func (r *Renderer) SetSelection(pointIDs []string) {
	r.push(EventSelection, idsPayload{IDs: pointIDs}, true)
}

// SetVisibleLabels shows the given cluster labels.
func (r *Renderer) SetVisibleLabels(clusterIDs []string) {
	r.push(EventLabels, idsPayload{IDs: clusterIDs}, true)
}

// RenderFrame pushes a selection and its labels as one message.
func (r *Renderer) RenderFrame(f view.Frame) {
	r.mu.Lock()
	if f.Zoom > 0 {
		r.zoom = f.Zoom
	}
	r.mu.Unlock()

	r.push(EventFrame, f, true)
}

// FitView asks the renderer to frame all points.
func (r *Renderer) FitView() {
	r.push(EventFit, struct{}{}, false)
}

// ZoomLevel returns the last zoom reported by a client or rendered in a frame.
func (r *Renderer) ZoomLevel() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.zoom
}

func (r *Renderer) reportZoom(level float64) {
	r.mu.Lock()
	r.zoom = level
	r.mu.Unlock()
}

func (r *Renderer) push(eventType string, payload any, buffered bool) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.hub.log.WithError(err).WithField("type", eventType).Error("encoding render event")
		return
	}

	r.hub.BroadcastEvent(eventType, r.sessionID, data, buffered)
}

// Timeline forwards the timeline highlight to a session's clients.
type Timeline struct {
	hub       *Hub
	sessionID string
}

type timelinePayload struct {
	Range *models.DateRange `json:"range"`
}

// SetSelection highlights r on the timeline, or clears it when r is nil.
func (t *Timeline) SetSelection(r *models.DateRange) {
	data, err := json.Marshal(timelinePayload{Range: r})
	if err != nil {
		t.hub.log.WithError(err).Error("encoding timeline event")
		return
	}

	t.hub.BroadcastEvent(EventTimeline, t.sessionID, data, true)
}
