package booking

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Requires a disposable MongoDB, e.g. MONGO_TEST_URI=mongodb://localhost:27017
func testMongoStore(t *testing.T) *MongoStore {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	s, err := NewMongoStore(context.Background(), uri, "telecare_test")
	require.NoError(t, err)
	t.Cleanup(func() {
		s.coll.Drop(context.Background())
		s.Close(context.Background())
	})
	return s
}

func TestMongoStoreMarkCompleted(t *testing.T) {
	s := testMongoStore(t)
	ctx := context.Background()
	fixed := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	id := primitive.NewObjectID()
	_, err := s.coll.InsertOne(ctx, Appointment{ID: id, Status: "scheduled"})
	require.NoError(t, err)

	require.NoError(t, s.MarkCompleted(ctx, id.Hex()))
	require.NoError(t, s.MarkCompleted(ctx, id.Hex()), "completing twice succeeds")

	appt, err := s.Get(ctx, id.Hex())
	require.NoError(t, err)
	assert.True(t, appt.IsCompleted)
	assert.Equal(t, StatusCompleted, appt.Status)
	require.NotNil(t, appt.CompletedAt)
	assert.True(t, fixed.Equal(*appt.CompletedAt))
}

func TestMongoStoreUnknownAppointment(t *testing.T) {
	s := testMongoStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.MarkCompleted(ctx, primitive.NewObjectID().Hex()), ErrNotFound)
	assert.ErrorIs(t, s.MarkCompleted(ctx, "not-an-object-id"), ErrNotFound)
}

func TestMongoStoreStringIdentifiers(t *testing.T) {
	s := testMongoStore(t)
	ctx := context.Background()

	_, err := s.coll.InsertOne(ctx, Appointment{ID: "legacy-17"})
	require.NoError(t, err)

	require.NoError(t, s.MarkCompleted(ctx, "legacy-17"))
	appt, err := s.Get(ctx, "legacy-17")
	require.NoError(t, err)
	assert.True(t, appt.IsCompleted)
}
