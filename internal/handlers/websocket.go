package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mossy-p/telecare-signaling/internal/models"
	"github.com/mossy-p/telecare-signaling/internal/signaling"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// HandleSignaling upgrades the request to a signaling connection. When the
// route carries a :roomId the connection joins that room immediately,
// otherwise the participant sends a join event.
func HandleSignaling(hub *signaling.Hub, sendBuffer int, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to upgrade connection")
			return
		}

		client := signaling.NewClient(uuid.New().String(), hub, conn, sendBuffer)
		if !hub.Register(client) {
			conn.Close()
			return
		}

		logger.Debug().
			Str("conn", client.ID()).
			Str("remote", c.ClientIP()).
			Msg("signaling connection opened")

		go client.WritePump()
		go client.ReadPump()

		if roomID := c.Param("roomId"); roomID != "" {
			hub.Dispatch(client, &models.Envelope{Type: models.EventJoin, RoomID: roomID})
		}
	}
}
