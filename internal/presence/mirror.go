// Package presence copies room lifecycle transitions into an external store
// without ever blocking the signaling hub.
package presence

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mossy-p/telecare-signaling/internal/models"
	"github.com/mossy-p/telecare-signaling/internal/signaling"
)

// Sink receives presence writes. *redis.Store implements it.
type Sink interface {
	RoomCreated(ctx context.Context, meta models.RoomMetadata) error
	MemberJoined(ctx context.Context, roomID, memberID string, count int) error
	MemberLeft(ctx context.Context, roomID, memberID string, count int) error
	RoomDestroyed(ctx context.Context, roomID string) error
}

type op struct {
	name   string
	roomID string
	apply  func(ctx context.Context, s Sink) error
}

// Mirror queues lifecycle transitions and applies them to a Sink on its own
// goroutine. When the queue is full transitions are dropped and logged.
type Mirror struct {
	sink    Sink
	ops     chan op
	timeout time.Duration
	log     zerolog.Logger
}

func NewMirror(sink Sink, buffer int, logger zerolog.Logger) *Mirror {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Mirror{
		sink:    sink,
		ops:     make(chan op, buffer),
		timeout: 5 * time.Second,
		log:     logger.With().Str("component", "presence").Logger(),
	}
}

// Lifecycle returns registry hooks that feed this mirror
func (m *Mirror) Lifecycle() signaling.Lifecycle {
	return signaling.Lifecycle{
		OnRoomCreated: func(roomID string, createdAt time.Time) {
			meta := models.RoomMetadata{ID: roomID, CreatedAt: createdAt}
			m.enqueue(op{"room created", roomID, func(ctx context.Context, s Sink) error {
				return s.RoomCreated(ctx, meta)
			}})
		},
		OnMemberJoined: func(roomID, memberID string, count int) {
			m.enqueue(op{"member joined", roomID, func(ctx context.Context, s Sink) error {
				return s.MemberJoined(ctx, roomID, memberID, count)
			}})
		},
		OnMemberLeft: func(roomID, memberID string, count int) {
			m.enqueue(op{"member left", roomID, func(ctx context.Context, s Sink) error {
				return s.MemberLeft(ctx, roomID, memberID, count)
			}})
		},
		OnRoomDestroyed: func(roomID string) {
			m.enqueue(op{"room destroyed", roomID, func(ctx context.Context, s Sink) error {
				return s.RoomDestroyed(ctx, roomID)
			}})
		},
	}
}

func (m *Mirror) enqueue(o op) {
	select {
	case m.ops <- o:
	default:
		m.log.Warn().Str("room", o.roomID).Str("op", o.name).Msg("presence queue full, dropping update")
	}
}

// Run applies queued updates in order until ctx is cancelled. Remaining
// updates are flushed with a fresh deadline before returning.
func (m *Mirror) Run(ctx context.Context) error {
	for {
		select {
		case o := <-m.ops:
			m.apply(ctx, o)
		case <-ctx.Done():
			m.flush()
			return nil
		}
	}
}

func (m *Mirror) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	for {
		select {
		case o := <-m.ops:
			m.apply(ctx, o)
		default:
			return
		}
	}
}

func (m *Mirror) apply(parent context.Context, o op) {
	ctx, cancel := context.WithTimeout(parent, m.timeout)
	defer cancel()
	if err := o.apply(ctx, m.sink); err != nil {
		m.log.Error().Err(err).Str("room", o.roomID).Str("op", o.name).Msg("presence update failed")
	}
}
