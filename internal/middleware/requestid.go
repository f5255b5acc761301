package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/clustermap/internal/httputil"
)

const (
	// RequestIDKey is the gin context key for the request ID.
	RequestIDKey = httputil.RequestIDKey

	// RequestIDHeader is the HTTP header used to propagate the request ID.
	RequestIDHeader = "X-Request-ID"

	// ClientRequestIDKey holds a caller-supplied request ID, kept for log
	// correlation only.
	ClientRequestIDKey = "client_request_id"

	maxClientRequestIDLen = 128
)

// RequestID assigns every request a fresh server-side UUID. A caller's
// X-Request-ID is never trusted as the canonical ID; short values are kept
// under ClientRequestIDKey so render-engine traces can be joined to server logs.
func RequestID(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()

		if clientID := c.GetHeader(RequestIDHeader); clientID != "" {
			if len(clientID) > maxClientRequestIDLen {
				clientID = clientID[:maxClientRequestIDLen]
			}

			log.WithFields(logrus.Fields{
				"request_id":        id,
				"client_request_id": clientID,
			}).Debug("client request ID mapped to server ID")
			c.Set(ClientRequestIDKey, clientID)
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}
