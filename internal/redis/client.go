package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mossy-p/telecare-signaling/config"
	"github.com/mossy-p/telecare-signaling/internal/models"
)

const presenceTTL = 24 * time.Hour

// ErrRoomNotFound is returned when no presence record exists for a room
var ErrRoomNotFound = errors.New("room not found")

// Store mirrors live room presence into Redis. Keys:
//
//	room:<id>:meta     msgpack encoded models.RoomMetadata
//	room:<id>:members  set of connection ids
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// Connect dials Redis and verifies the connection
func Connect(ctx context.Context, cfg config.RedisConfig) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewStore(client), nil
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client, ttl: presenceTTL}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func metaKey(roomID string) string    { return "room:" + roomID + ":meta" }
func membersKey(roomID string) string { return "room:" + roomID + ":members" }

// RoomCreated writes the initial presence record
func (s *Store) RoomCreated(ctx context.Context, meta models.RoomMetadata) error {
	data, err := msgpack.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode room %s: %w", meta.ID, err)
	}
	return s.client.Set(ctx, metaKey(meta.ID), data, s.ttl).Err()
}

// MemberJoined adds a member and refreshes the member count
func (s *Store) MemberJoined(ctx context.Context, roomID, memberID string, count int) error {
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, membersKey(roomID), memberID)
	pipe.Expire(ctx, membersKey(roomID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add member to %s: %w", roomID, err)
	}
	return s.setCount(ctx, roomID, count)
}

// MemberLeft removes a member and refreshes the member count
func (s *Store) MemberLeft(ctx context.Context, roomID, memberID string, count int) error {
	if err := s.client.SRem(ctx, membersKey(roomID), memberID).Err(); err != nil {
		return fmt.Errorf("remove member from %s: %w", roomID, err)
	}
	if count == 0 {
		return nil
	}
	return s.setCount(ctx, roomID, count)
}

// RoomDestroyed deletes every key of the room
func (s *Store) RoomDestroyed(ctx context.Context, roomID string) error {
	return s.client.Del(ctx, metaKey(roomID), membersKey(roomID)).Err()
}

// Room reads back the presence record and member set of a room
func (s *Store) Room(ctx context.Context, roomID string) (models.RoomMetadata, []string, error) {
	meta, err := s.meta(ctx, roomID)
	if err != nil {
		return models.RoomMetadata{}, nil, err
	}
	members, err := s.client.SMembers(ctx, membersKey(roomID)).Result()
	if err != nil {
		return models.RoomMetadata{}, nil, err
	}
	return meta, members, nil
}

func (s *Store) meta(ctx context.Context, roomID string) (models.RoomMetadata, error) {
	var meta models.RoomMetadata
	data, err := s.client.Get(ctx, metaKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return meta, ErrRoomNotFound
	}
	if err != nil {
		return meta, err
	}
	if err := msgpack.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("decode room %s: %w", roomID, err)
	}
	return meta, nil
}

func (s *Store) setCount(ctx context.Context, roomID string, count int) error {
	meta, err := s.meta(ctx, roomID)
	if errors.Is(err, ErrRoomNotFound) {
		meta = models.RoomMetadata{ID: roomID, CreatedAt: time.Now()}
	} else if err != nil {
		return err
	}
	meta.MemberCount = count
	return s.RoomCreated(ctx, meta)
}
