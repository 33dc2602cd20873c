package signaling

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/telecare-signaling/internal/models"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(NewRegistry(Lifecycle{}), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return hub
}

func connect(t *testing.T, hub *Hub, id string) *Client {
	t.Helper()
	c := NewClient(id, hub, nil, 16)
	require.True(t, hub.Register(c))
	return c
}

func recv(t *testing.T, c *Client) *models.Envelope {
	t.Helper()
	select {
	case env, ok := <-c.send:
		require.True(t, ok, "send buffer closed")
		return env
	case <-time.After(time.Second):
		t.Fatalf("%s: no envelope delivered", c.id)
		return nil
	}
}

func assertQuiet(t *testing.T, c *Client) {
	t.Helper()
	select {
	case env := <-c.send:
		t.Fatalf("%s: unexpected %s envelope", c.id, env.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func join(t *testing.T, hub *Hub, c *Client, roomID string) *models.Envelope {
	t.Helper()
	require.True(t, hub.Dispatch(c, &models.Envelope{Type: models.EventJoin, RoomID: roomID}))
	reply := recv(t, c)
	require.Equal(t, models.EventYouJoined, reply.Type)
	return reply
}

func TestHubJoinAnnouncesToIncumbentsOnly(t *testing.T) {
	hub := startHub(t)
	alice := connect(t, hub, "alice")
	bob := connect(t, hub, "bob")

	first := join(t, hub, alice, "appt-42")
	assert.Equal(t, "alice", first.SelfID)
	assert.Empty(t, first.Members)

	second := join(t, hub, bob, "appt-42")
	assert.Equal(t, "bob", second.SelfID)
	assert.Equal(t, []string{"alice"}, second.Members)

	notice := recv(t, alice)
	assert.Equal(t, models.EventUserJoined, notice.Type)
	assert.Equal(t, "bob", notice.MemberID)

	assertQuiet(t, bob)
}

func TestHubJoinWithoutRoomIsRejected(t *testing.T) {
	hub := startHub(t)
	alice := connect(t, hub, "alice")

	require.True(t, hub.Dispatch(alice, &models.Envelope{Type: models.EventJoin}))
	reply := recv(t, alice)
	assert.Equal(t, models.EventError, reply.Type)
	assert.NotEmpty(t, reply.Error)
	assert.Equal(t, 0, hub.Registry().Len())
}

func TestHubRelaysSignalVerbatim(t *testing.T) {
	hub := startHub(t)
	alice := connect(t, hub, "alice")
	bob := connect(t, hub, "bob")
	join(t, hub, alice, "appt-42")
	join(t, hub, bob, "appt-42")
	recv(t, alice) // user-joined

	payload := json.RawMessage(`{"sdp":{"type":"offer","sdp":"v=0\r\n"}}`)
	hub.Dispatch(alice, &models.Envelope{Type: models.EventSignal, TargetID: "bob", Payload: payload})

	got := recv(t, bob)
	assert.Equal(t, models.EventSignal, got.Type)
	assert.Equal(t, "alice", got.FromID)
	assert.JSONEq(t, string(payload), string(got.Payload))
	assertQuiet(t, alice)
}

func TestHubDropsSignalOutsideRoom(t *testing.T) {
	hub := startHub(t)
	alice := connect(t, hub, "alice")
	mallory := connect(t, hub, "mallory")
	join(t, hub, alice, "appt-42")
	join(t, hub, mallory, "appt-99")

	hub.Dispatch(mallory, &models.Envelope{Type: models.EventSignal, TargetID: "alice", Payload: json.RawMessage(`{}`)})
	hub.Dispatch(mallory, &models.Envelope{Type: models.EventSignal, TargetID: "ghost", Payload: json.RawMessage(`{}`)})

	assertQuiet(t, alice)
	assertQuiet(t, mallory)
}

func TestHubChatReachesEveryoneIncludingSender(t *testing.T) {
	hub := startHub(t)
	alice := connect(t, hub, "alice")
	bob := connect(t, hub, "bob")
	join(t, hub, alice, "appt-42")
	join(t, hub, bob, "appt-42")
	recv(t, alice)

	hub.Dispatch(bob, &models.Envelope{Type: models.EventChatMessage, Text: "hello doctor", DisplayName: "Bob"})

	for _, c := range []*Client{alice, bob} {
		msg := recv(t, c)
		assert.Equal(t, models.EventChatMessage, msg.Type)
		assert.Equal(t, "hello doctor", msg.Text)
		assert.Equal(t, "Bob", msg.SenderDisplayName)
		assert.Equal(t, "bob", msg.FromID)
	}
}

func TestHubDisconnectNotifiesRemaining(t *testing.T) {
	hub := startHub(t)
	alice := connect(t, hub, "alice")
	bob := connect(t, hub, "bob")
	join(t, hub, alice, "appt-42")
	join(t, hub, bob, "appt-42")
	recv(t, alice)

	hub.Unregister(bob)

	left := recv(t, alice)
	assert.Equal(t, models.EventUserLeft, left.Type)
	assert.Equal(t, "bob", left.MemberID)

	_, open := <-bob.send
	assert.False(t, open, "send buffer should be closed after unregister")

	// second unregister is a no-op
	hub.Unregister(bob)
	assertQuiet(t, alice)

	hub.Unregister(alice)
	require.Eventually(t, func() bool { return hub.Registry().Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubMalformedFrameGetsError(t *testing.T) {
	hub := startHub(t)
	alice := connect(t, hub, "alice")

	hub.reject(alice, "malformed message")
	reply := recv(t, alice)
	assert.Equal(t, models.EventError, reply.Type)
	assert.Equal(t, "malformed message", reply.Error)
}

func TestHubFullBufferDropsFrame(t *testing.T) {
	hub := startHub(t)
	alice := NewClient("alice", hub, nil, 1)
	require.True(t, hub.Register(alice))
	bob := connect(t, hub, "bob")

	join(t, hub, alice, "appt-42")
	join(t, hub, bob, "appt-42")
	// alice's single slot is now holding user-joined

	hub.Dispatch(bob, &models.Envelope{Type: models.EventChatMessage, Text: "lost"})
	recv(t, bob)

	first := recv(t, alice)
	assert.Equal(t, models.EventUserJoined, first.Type)
	assertQuiet(t, alice)
}
