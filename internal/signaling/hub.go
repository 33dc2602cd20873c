package signaling

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mossy-p/telecare-signaling/internal/models"
)

type inbound struct {
	client *Client
	env    *models.Envelope
	// reject, when set, is returned to the sender as an error event
	reject string
}

// Hub owns every connection and serializes all room mutations and fan-out
// through a single goroutine.
type Hub struct {
	registry *Registry
	log      zerolog.Logger

	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	done       chan struct{}
}

func NewHub(registry *Registry, logger zerolog.Logger) *Hub {
	return &Hub{
		registry:   registry,
		log:        logger.With().Str("component", "hub").Logger(),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound, 64),
		done:       make(chan struct{}),
	}
}

// Registry returns the room registry the hub mutates
func (h *Hub) Registry() *Registry { return h.registry }

// Register hands a new connection to the hub. It returns false once the hub
// has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a connection and its room membership
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Dispatch queues an inbound envelope from c. It returns false once the hub
// has stopped.
func (h *Hub) Dispatch(c *Client, env *models.Envelope) bool {
	select {
	case h.inbound <- inbound{client: c, env: env}:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) reject(c *Client, msg string) {
	select {
	case h.inbound <- inbound{client: c, reject: msg}:
	case <-h.done:
	}
}

// Run processes hub events until ctx is cancelled. On return every remaining
// connection has its send buffer closed.
func (h *Hub) Run(ctx context.Context) error {
	defer func() {
		close(h.done)
		for c := range h.clients {
			h.drop(c)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.log.Debug().Str("conn", c.id).Msg("connection registered")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.log.Debug().Str("conn", c.id).Msg("connection unregistered")
			}

		case in := <-h.inbound:
			if _, ok := h.clients[in.client]; !ok {
				continue
			}
			if in.reject != "" {
				in.client.Deliver(models.ErrorEvent(in.reject))
				continue
			}
			h.handle(in.client, in.env)
		}
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	if res, ok := h.registry.Leave(c.id); ok {
		h.announceLeave(c.id, res)
	}
	close(c.send)
}

func (h *Hub) handle(c *Client, env *models.Envelope) {
	switch env.Type {
	case models.EventJoin:
		h.join(c, env.RoomID)
	case models.EventSignal:
		h.relay(c, env)
	case models.EventChatMessage:
		h.chat(c, env)
	default:
		h.log.Debug().Str("conn", c.id).Str("type", string(env.Type)).Msg("unknown event type")
		c.Deliver(models.ErrorEvent("unknown event type"))
	}
}

func (h *Hub) join(c *Client, roomID string) {
	if roomID == "" {
		c.Deliver(models.ErrorEvent("roomId is required"))
		return
	}

	res := h.registry.Join(roomID, c)
	if res.Left != nil {
		h.announceLeave(c.id, *res.Left)
	}

	c.Deliver(models.YouJoined(c.id, memberIDs(res.Existing)))
	if res.AlreadyMember {
		return
	}

	announce := models.UserJoined(c.id)
	for _, m := range res.Existing {
		m.Deliver(announce)
	}

	h.log.Info().
		Str("room", roomID).
		Str("conn", c.id).
		Int("members", len(res.Existing)+1).
		Bool("created", res.Created).
		Msg("participant joined")
}

func (h *Hub) announceLeave(memberID string, res LeaveResult) {
	notice := models.UserLeft(memberID)
	for _, m := range res.Remaining {
		m.Deliver(notice)
	}
	h.log.Info().
		Str("room", res.RoomID).
		Str("conn", memberID).
		Int("members", len(res.Remaining)).
		Bool("destroyed", res.Destroyed).
		Msg("participant left")
}

// relay forwards a signal payload unchanged to a target in the sender's room.
// Targets that are absent or in another room are ignored.
func (h *Hub) relay(c *Client, env *models.Envelope) {
	roomID, ok := h.registry.RoomOf(c.id)
	if !ok {
		h.log.Debug().Str("conn", c.id).Msg("signal from connection outside any room")
		return
	}
	target, ok := h.registry.Member(roomID, env.TargetID)
	if !ok {
		h.log.Debug().Str("conn", c.id).Str("target", env.TargetID).Msg("signal target not in room")
		return
	}
	target.Deliver(models.RelayedSignal(c.id, env.Payload))
}

// chat echoes a chat message to every member of the sender's room, sender
// included.
func (h *Hub) chat(c *Client, env *models.Envelope) {
	roomID, ok := h.registry.RoomOf(c.id)
	if !ok {
		return
	}
	out := models.ChatBroadcast(c.id, env.DisplayName, env.Text)
	for _, m := range h.registry.Members(roomID) {
		m.Deliver(out)
	}
}
