package session_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/telecare-signaling/config"
	"github.com/mossy-p/telecare-signaling/internal/handlers"
	"github.com/mossy-p/telecare-signaling/internal/media"
	"github.com/mossy-p/telecare-signaling/internal/session"
	"github.com/mossy-p/telecare-signaling/internal/signalclient"
	"github.com/mossy-p/telecare-signaling/internal/signaling"
)

func signalingServer(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	hub := signaling.NewHub(signaling.NewRegistry(signaling.Lifecycle{}), zerolog.Nop())
	go hub.Run(ctx)

	cfg := &config.Config{Environment: "test", JWTSecret: "integration", SendBuffer: 64}
	srv := httptest.NewServer(handlers.NewRouter(handlers.Deps{Config: cfg, Hub: hub, Logger: zerolog.Nop()}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/signal"
}

func participant(t *testing.T, url, name string) *session.Session {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	sig, err := signalclient.Dial(ctx, url, zerolog.Nop())
	require.NoError(t, err)

	s := session.New(session.Config{
		Signaler:   sig,
		Transports: &session.PionFactory{IncludeLoopback: true, Log: zerolog.Nop()},
		// no capture files, so both sides send the placeholder stream
		Devices: &media.FileDevices{Log: zerolog.Nop()},
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, s.JoinRoom(ctx, "apt-e2e", name))
	go s.Run(ctx)

	t.Cleanup(func() {
		cancel()
		s.Close()
	})
	return s
}

func TestTwoParticipantsNegotiate(t *testing.T) {
	if testing.Short() {
		t.Skip("opens real peer connections")
	}
	url := signalingServer(t)

	doctor := participant(t, url, "Dr Who")
	require.Eventually(t, func() bool { return doctor.SelfID() != "" }, 2*time.Second, 10*time.Millisecond)

	patient := participant(t, url, "Amy")

	linkIs := func(s *session.Session, state session.LinkState, negotiations int) bool {
		links := s.Links()
		return len(links) == 1 && links[0].State == state && links[0].Negotiations == negotiations
	}
	require.Eventually(t, func() bool {
		return linkIs(doctor, session.LinkConnected, 1) && linkIs(patient, session.LinkConnected, 1)
	}, 10*time.Second, 20*time.Millisecond)

	assert.Equal(t, session.RoleOfferer, doctor.Links()[0].Role)
	assert.Equal(t, session.RoleAnswerer, patient.Links()[0].Role)
	assert.Equal(t, patient.SelfID(), doctor.Links()[0].RemoteID)
	assert.Equal(t, media.StreamSynthetic, patient.Media().StreamKind)

	// a toggle renegotiates over the live connection
	require.NoError(t, patient.ToggleAudio(context.Background()))
	require.Eventually(t, func() bool {
		return linkIs(doctor, session.LinkConnected, 2) && linkIs(patient, session.LinkConnected, 2)
	}, 10*time.Second, 20*time.Millisecond)
	assert.Equal(t, patient.Media().StreamID, patient.Links()[0].StreamID)

	require.NoError(t, doctor.SendChatMessage("hello"))
	require.Eventually(t, func() bool {
		return len(patient.Messages()) == 1 && len(doctor.Messages()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Dr Who", patient.Messages()[0].SenderDisplayName)
	assert.False(t, patient.Messages()[0].Self)
	assert.Equal(t, 1, patient.Unread())
	assert.True(t, doctor.Messages()[0].Self)
	assert.Equal(t, 0, doctor.Unread())

	// leaving the room removes the link on the other side
	require.NoError(t, doctor.Close())
	require.Eventually(t, func() bool { return len(patient.Links()) == 0 }, 5*time.Second, 20*time.Millisecond)
	assert.Empty(t, patient.Tiles())
}
