package signaling

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mossy-p/telecare-signaling/internal/models"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP with many candidates fits.
	maxMessageSize = 64 * 1024
)

// Client is one participant's signaling connection
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan *models.Envelope
	log  zerolog.Logger
}

// NewClient wraps conn. conn may be nil when the client is driven directly
// through the hub.
func NewClient(id string, hub *Hub, conn *websocket.Conn, buffer int) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		id:   id,
		hub:  hub,
		conn: conn,
		send: make(chan *models.Envelope, buffer),
		log:  hub.log.With().Str("conn", id).Logger(),
	}
}

func (c *Client) ID() string { return c.id }

// Deliver queues env for the write pump. A full buffer drops the frame.
func (c *Client) Deliver(env *models.Envelope) bool {
	select {
	case c.send <- env:
		return true
	default:
		c.log.Warn().Str("type", string(env.Type)).Msg("send buffer full, dropping frame")
		return false
	}
}

// ReadPump pumps frames from the websocket to the hub. It is the only reader
// of the connection and unregisters the client when the connection ends.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Debug().Err(err).Msg("malformed frame")
			c.hub.reject(c, "malformed message")
			continue
		}
		if !c.hub.Dispatch(c, &env) {
			return
		}
	}
}

// WritePump pumps envelopes from the send buffer to the websocket and keeps
// the connection alive with pings. It is the only writer of the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				c.log.Warn().Err(err).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
