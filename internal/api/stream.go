package api

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/clustermap/internal/ws"
)

// compressionThreshold is the smallest frame worth compressing.
const compressionThreshold = 128

// streamHandler upgrades GET /sessions/:id/ws to the session's render
// stream. Allowed origins are the configured CORS origins.
func streamHandler(appCtx context.Context, log *logrus.Logger, hub *ws.Hub, sessions SessionManager, origins []string) gin.HandlerFunc {
	accept := &websocket.AcceptOptions{
		OriginPatterns:       origins,
		CompressionMode:      websocket.CompressionContextTakeover,
		CompressionThreshold: compressionThreshold,
	}

	return func(c *gin.Context) {
		id, err := sessionID(c)
		if err != nil {
			respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
			return
		}

		if _, err := sessions.Get(id); err != nil {
			respondSessionError(c, log, "session.ws", err)
			return
		}

		conn, err := websocket.Accept(c.Writer, c.Request, accept)
		if err != nil {
			log.WithError(err).WithField("session_id", id).Warn("websocket upgrade failed")
			return
		}

		client := ws.NewClient(hub, conn, id)
		hub.Register(client)

		// The stream ends with the request or with the server.
		ctx, cancel := context.WithCancel(appCtx)
		defer cancel()

		stop := context.AfterFunc(c.Request.Context(), cancel)
		defer stop()

		go client.WritePump(ctx)
		client.ReadPump(ctx)
	}
}
