package api

import (
	"errors"
	"io"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/clustermap/internal/domain"
	"github.com/persistorai/clustermap/internal/labels"
	"github.com/persistorai/clustermap/internal/models"
	"github.com/persistorai/clustermap/internal/service"
)

// Selection page sizes.
const (
	defaultSelectionLimit = 100
	maxSelectionLimit     = 1000
)

// SessionHandler serves session lifecycle and render-engine event endpoints.
type SessionHandler struct {
	sessions SessionManager
	log      *logrus.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(sessions SessionManager, log *logrus.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, log: log}
}

// Request payloads.
type (
	pointRequest struct {
		PointID   string `json:"point_id"`
		ClusterID string `json:"cluster_id"`
	}

	zoomRequest struct {
		Level    float64          `json:"level"`
		Viewport *models.Viewport `json:"viewport"`
	}

	searchRequest struct {
		Query    string `json:"query"`
		Accessor string `json:"accessor"`
	}

	toggleRequest struct {
		Enabled bool `json:"enabled"`
	}

	labelsRequest struct {
		Policy string `json:"policy"`
	}

	filteredRequest struct {
		Count int `json:"count"`
	}
)

// bindOptional decodes a JSON body; an empty body leaves dst unchanged.
func bindOptional(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return false
	}

	return true
}

// session resolves the :id path parameter.
func (h *SessionHandler) session(c *gin.Context) (*service.Session, bool) {
	id, err := sessionID(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return nil, false
	}

	s, err := h.sessions.Get(id)
	if err != nil {
		respondSessionError(c, h.log, "session.get", err)
		return nil, false
	}

	return s, true
}

// Create handles POST /api/v1/sessions.
func (h *SessionHandler) Create(c *gin.Context) {
	s, err := h.sessions.Create(c.Request.Context())
	if err != nil {
		respondSessionError(c, h.log, "session.create", err)
		return
	}

	h.log.WithFields(logrus.Fields{"action": "session.create", "session_id": s.ID}).Info("audit")

	c.JSON(http.StatusCreated, s.Info())
}

// List handles GET /api/v1/sessions.
func (h *SessionHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.sessions.List()})
}

// Get handles GET /api/v1/sessions/:id.
func (h *SessionHandler) Get(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, s.Info())
}

// Delete handles DELETE /api/v1/sessions/:id.
func (h *SessionHandler) Delete(c *gin.Context) {
	id, err := sessionID(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	if err := h.sessions.Delete(id); err != nil {
		respondSessionError(c, h.log, "session.delete", err)
		return
	}

	h.log.WithFields(logrus.Fields{"action": "session.delete", "session_id": id}).Info("audit")

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// Click handles POST /api/v1/sessions/:id/click. An empty point id is a
// click on empty canvas and clears the selection.
func (h *SessionHandler) Click(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req pointRequest
	if !bindOptional(c, &req) {
		return
	}

	var target *models.Point
	if req.PointID != "" {
		p, found := s.Store().ByID(req.PointID)
		if !found {
			respondError(c, http.StatusNotFound, ErrCodeNotFound, "point not found")
			return
		}

		target = &p
	}

	if err := s.View().OnPointClick(target); err != nil {
		respondSessionError(c, h.log, "session.click", err)
		return
	}

	c.JSON(http.StatusOK, s.View().Snapshot())
}

// LabelClick handles POST /api/v1/sessions/:id/label-click with either a
// cluster-label point id or a cluster id.
func (h *SessionHandler) LabelClick(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req pointRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.PointID == "") == (req.ClusterID == "") {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "exactly one of point_id or cluster_id is required")
		return
	}

	var err error

	if req.PointID != "" {
		p, found := s.Store().ByID(req.PointID)
		if !found {
			respondError(c, http.StatusNotFound, ErrCodeNotFound, "point not found")
			return
		}

		err = s.View().OnLabelClick(c.Request.Context(), p)
	} else {
		err = s.View().OnClusterSelect(c.Request.Context(), req.ClusterID)
	}

	if err != nil {
		respondSessionError(c, h.log, "session.label_click", err)
		return
	}

	c.JSON(http.StatusOK, s.View().Snapshot())
}

// Timeline handles POST /api/v1/sessions/:id/timeline.
func (h *SessionHandler) Timeline(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req models.DateRange
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	// An inverted range is an empty narrowing, not an error.
	if req.From.IsZero() || req.To.IsZero() {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, "from and to are required")
		return
	}

	s.View().OnTimelineRangeSelected(req)

	c.JSON(http.StatusOK, s.View().Snapshot())
}

// Zoom handles POST /api/v1/sessions/:id/zoom.
func (h *SessionHandler) Zoom(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req zoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	if req.Level < 0 || math.IsInf(req.Level, 0) {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, "level must be a finite non-negative number")
		return
	}

	if err := s.View().OnZoomChanged(c.Request.Context(), req.Level, req.Viewport); err != nil {
		respondSessionError(c, h.log, "session.zoom", err)
		return
	}

	c.JSON(http.StatusOK, s.View().Snapshot())
}

// Search handles POST /api/v1/sessions/:id/search.
func (h *SessionHandler) Search(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	if req.Accessor == "" {
		req.Accessor = domain.AccessorTitle
	}

	n, err := s.View().OnSearch(c.Request.Context(), req.Query, req.Accessor)
	if err != nil {
		respondSessionError(c, h.log, "session.search", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"matches": n, "view": s.View().Snapshot()})
}

// Clear handles POST /api/v1/sessions/:id/clear.
func (h *SessionHandler) Clear(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	s.View().OnClearRequested()

	c.JSON(http.StatusOK, s.View().Snapshot())
}

// LoadMore handles POST /api/v1/sessions/:id/load-more.
func (h *SessionHandler) LoadMore(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	res, err := s.Loader().LoadMore(c.Request.Context())
	if err != nil {
		respondSessionError(c, h.log, "session.load_more", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"fetched": res.Fetched,
		"added":   res.Added,
		"offset":  res.Offset,
		"done":    res.Done,
		"view":    s.View().Snapshot(),
	})
}

// MultiCluster handles POST /api/v1/sessions/:id/multi-cluster.
func (h *SessionHandler) MultiCluster(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	s.View().SetMultiClusterMode(req.Enabled)

	c.JSON(http.StatusOK, s.View().Snapshot())
}

// Labels handles POST /api/v1/sessions/:id/labels.
func (h *SessionHandler) Labels(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req labelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	p, err := labels.ByName(req.Policy)
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, err.Error())
		return
	}

	s.View().SetLabelPolicy(p)

	c.JSON(http.StatusOK, s.View().Snapshot())
}

// Filtered handles POST /api/v1/sessions/:id/filtered.
func (h *SessionHandler) Filtered(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req filteredRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Count < 0 {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "count must be a non-negative integer")
		return
	}

	s.View().OnPointsFiltered(req.Count)

	c.JSON(http.StatusOK, s.View().Snapshot())
}

// Selection handles GET /api/v1/sessions/:id/selection.
func (h *SessionHandler) Selection(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	pg := parsePage(c, "limit", defaultSelectionLimit, maxSelectionLimit)
	offset, limit := pg.Offset, pg.Limit

	sel := s.Engine().Selection()
	pts := s.Store().Resolve(sel.Page(offset, limit))

	c.JSON(http.StatusOK, gin.H{
		"total":  sel.Len(),
		"offset": offset,
		"limit":  limit,
		"points": pts,
	})
}
