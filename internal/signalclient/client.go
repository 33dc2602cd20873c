// Package signalclient is a participant's websocket connection to the
// signaling server.
package signalclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mossy-p/telecare-signaling/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ErrClosed is returned by Send after Close
var ErrClosed = errors.New("signaling connection closed")

// Conn is the framed JSON transport under a Client. *websocket.Conn
// satisfies it.
type Conn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	Close() error
}

// keepalive is implemented by connections that support ping/pong
type keepalive interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	WriteMessage(messageType int, data []byte) error
}

// Client exchanges envelopes with the signaling server
type Client struct {
	conn     Conn
	incoming chan *models.Envelope
	outgoing chan *models.Envelope
	done     chan struct{}

	closeOnce sync.Once
	log       zerolog.Logger
}

// Dial connects to the signaling websocket at serverURL
func Dial(ctx context.Context, serverURL string, logger zerolog.Logger) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	return New(conn, logger), nil
}

// New starts the pumps over an established connection
func New(conn Conn, logger zerolog.Logger) *Client {
	c := &Client{
		conn:     conn,
		incoming: make(chan *models.Envelope, 32),
		outgoing: make(chan *models.Envelope, 32),
		done:     make(chan struct{}),
		log:      logger.With().Str("component", "signalclient").Logger(),
	}

	if ka, ok := conn.(keepalive); ok {
		ka.SetReadDeadline(time.Now().Add(pongWait))
		ka.SetPongHandler(func(string) error {
			ka.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
	}

	go c.readPump()
	go c.writePump()
	return c
}

func (c *Client) readPump() {
	defer close(c.incoming)

	for {
		var env models.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			select {
			case <-c.done:
			default:
				c.log.Warn().Err(err).Msg("signaling connection lost")
			}
			return
		}

		select {
		case c.incoming <- &env:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ka, hasKeepalive := c.conn.(keepalive)

	var tick <-chan time.Time
	if hasKeepalive {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}

	defer c.conn.Close()

	for {
		select {
		case env := <-c.outgoing:
			if hasKeepalive {
				ka.SetWriteDeadline(time.Now().Add(writeWait))
			}
			if err := c.conn.WriteJSON(env); err != nil {
				c.log.Warn().Err(err).Str("type", string(env.Type)).Msg("failed to send")
				return
			}

		case <-tick:
			ka.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ka.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			if hasKeepalive {
				ka.SetWriteDeadline(time.Now().Add(writeWait))
				ka.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			}
			return
		}
	}
}

// Send queues env for the server
func (c *Client) Send(env *models.Envelope) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.outgoing <- env:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Incoming delivers server events. It is closed when the connection ends.
func (c *Client) Incoming() <-chan *models.Envelope {
	return c.incoming
}

// Close ends the connection. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}
