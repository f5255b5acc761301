package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/clustermap/internal/middleware"
)

// quietPaths are polled by orchestrators and logged at debug level.
var quietPaths = map[string]bool{
	"/metrics":       true,
	"/api/v1/health": true,
	"/api/v1/ready":  true,
}

// requestLogger logs one line per request, at a level picked from the
// response status.
func requestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		entry := log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"route":      c.FullPath(),
			"status":     status,
			"duration":   time.Since(start).String(),
			"client":     c.ClientIP(),
			"request_id": c.GetString(middleware.RequestIDKey),
		})

		if cid := c.GetString(middleware.ClientRequestIDKey); cid != "" {
			entry = entry.WithField("client_request_id", cid)
		}

		if sid := c.Param("id"); sid != "" {
			entry = entry.WithField("session_id", sid)
		}

		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("request rejected")
		case quietPaths[c.Request.URL.Path]:
			entry.Debug("request")
		default:
			entry.Info("request")
		}
	}
}
