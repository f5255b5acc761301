package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/clustermap/internal/httputil"
	"github.com/persistorai/clustermap/internal/metrics"
	"github.com/persistorai/clustermap/internal/models"
	"github.com/persistorai/clustermap/internal/view"
)

// Error code constants for standardized API responses.
const (
	ErrCodeInvalidRequest     = "invalid_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeConflict           = "conflict"
	ErrCodeInternalError      = "internal_error"
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeValidationError    = "validation_error"
	ErrCodeBackendUnavailable = "backend_unavailable"
	ErrCodeUnavailable        = "unavailable"
)

// respondError writes a standardized JSON error response, pulling the request
// ID from the Gin context (set by the request ID middleware).
func respondError(c *gin.Context, status int, code, message string) {
	metrics.ErrorsTotal.WithLabelValues(code).Inc()
	httputil.RespondError(c, status, code, message)
}

// respondSessionError maps session and backend errors to responses. Backend
// failures are transient: nothing changed and the request may be retried.
func respondSessionError(c *gin.Context, log *logrus.Logger, action string, err error) {
	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		respondError(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
	case errors.Is(err, models.ErrTooManySessions):
		respondError(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "session limit reached")
	case errors.Is(err, models.ErrPickRejected):
		respondError(c, http.StatusConflict, ErrCodeConflict, "point pick rejected")
	case errors.Is(err, view.ErrNotClusterLabel):
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "point is not a cluster label")
	case models.IsTransient(err):
		log.WithError(err).WithField("action", action).Warn("backend fetch failed")
		respondError(c, http.StatusBadGateway, ErrCodeBackendUnavailable, "backend unavailable, try again")
	default:
		log.WithError(err).WithField("action", action).Error("session request failed")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
	}
}
