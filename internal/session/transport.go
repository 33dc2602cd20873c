package session

import (
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/mossy-p/telecare-signaling/internal/media"
)

// RemoteTrack is an inbound track announced by a transport
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() string
}

// TransportEvents are callbacks a transport raises on its own goroutines
type TransportEvents struct {
	OnCandidate func(webrtc.ICECandidateInit)
	OnTrack     func(RemoteTrack)
	OnState     func(LinkState)
}

// LinkTransport is the media channel under one PeerLink
type LinkTransport interface {
	// Attach replaces every outbound track with the tracks of stream
	Attach(stream *media.Stream) error
	// CreateOffer creates an offer and sets it as the local description
	CreateOffer() (webrtc.SessionDescription, error)
	// CreateAnswer creates an answer to the applied remote offer and sets it
	// as the local description
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(c webrtc.ICECandidateInit) error
	// Rollback discards an unanswered local offer
	Rollback() error
	// Connected reports whether media is currently flowing
	Connected() bool
	Close() error
}

// TransportFactory creates a LinkTransport per remote participant
type TransportFactory interface {
	NewTransport(remoteID string, ev TransportEvents) (LinkTransport, error)
}

// PionFactory builds transports on pion peer connections
type PionFactory struct {
	STUNServers []string
	TURNServers []string
	TURNUser    string
	TURNPass    string
	// IncludeLoopback gathers 127.0.0.1 candidates, for same-host calls
	IncludeLoopback bool
	Log             zerolog.Logger
}

func (f *PionFactory) configuration() webrtc.Configuration {
	var servers []webrtc.ICEServer
	if len(f.STUNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: f.STUNServers})
	}
	if len(f.TURNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:       f.TURNServers,
			Username:   f.TURNUser,
			Credential: f.TURNPass,
		})
	}
	return webrtc.Configuration{ICEServers: servers}
}

func (f *PionFactory) NewTransport(remoteID string, ev TransportEvents) (LinkTransport, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, err
	}
	var se webrtc.SettingEngine
	se.SetIncludeLoopbackCandidate(f.IncludeLoopback)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	)

	pc, err := api.NewPeerConnection(f.configuration())
	if err != nil {
		return nil, err
	}

	log := f.Log.With().Str("remote", remoteID).Logger()

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || ev.OnCandidate == nil {
			return
		}
		ev.OnCandidate(c.ToJSON())
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Debug().Str("state", state.String()).Msg("peer connection state")
		if ev.OnState == nil {
			return
		}
		switch state {
		case webrtc.PeerConnectionStateConnected:
			ev.OnState(LinkConnected)
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			ev.OnState(LinkClosed)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if ev.OnTrack != nil {
			ev.OnTrack(pionTrack{track})
		}
		// nothing renders the media, but reading keeps RTCP feedback flowing
		buf := make([]byte, 1500)
		for {
			if _, _, err := track.Read(buf); err != nil {
				return
			}
		}
	})

	return &pionTransport{pc: pc, log: log}, nil
}

type pionTrack struct {
	t *webrtc.TrackRemote
}

func (p pionTrack) ID() string       { return p.t.ID() }
func (p pionTrack) StreamID() string { return p.t.StreamID() }
func (p pionTrack) Kind() string     { return p.t.Kind().String() }

type pionTransport struct {
	pc  *webrtc.PeerConnection
	log zerolog.Logger

	mu      sync.Mutex
	senders []*webrtc.RTPSender
}

func (t *pionTransport) Attach(stream *media.Stream) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range t.senders {
		if err := t.pc.RemoveTrack(s); err != nil {
			return err
		}
	}
	t.senders = t.senders[:0]

	for _, track := range stream.Tracks() {
		sender, err := t.pc.AddTrack(track.Local())
		if err != nil {
			return err
		}
		t.senders = append(t.senders, sender)
		go drainRTCP(sender)
	}
	return nil
}

// drainRTCP reads incoming RTCP so interceptors such as NACK keep working
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (t *pionTransport) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (t *pionTransport) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (t *pionTransport) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(desc)
}

func (t *pionTransport) AddICECandidate(c webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(c)
}

func (t *pionTransport) Rollback() error {
	return t.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback})
}

func (t *pionTransport) Connected() bool {
	return t.pc.ConnectionState() == webrtc.PeerConnectionStateConnected
}

func (t *pionTransport) Close() error {
	return t.pc.Close()
}
