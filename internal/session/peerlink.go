package session

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/mossy-p/telecare-signaling/internal/media"
)

// Role fixes which side of a PeerLink sends the first offer
type Role string

const (
	// RoleOfferer is held by the incumbent that saw the newcomer join
	RoleOfferer Role = "offerer"
	// RoleAnswerer is held by the newcomer and waits for an offer
	RoleAnswerer Role = "answerer"
)

// LinkState is the coarse state of a PeerLink
type LinkState string

const (
	LinkNew         LinkState = "new"
	LinkNegotiating LinkState = "negotiating"
	LinkConnected   LinkState = "connected"
	LinkClosed      LinkState = "closed"
)

// LinkInfo is a read-only view of a PeerLink
type LinkInfo struct {
	RemoteID     string
	Role         Role
	State        LinkState
	StreamID     string
	Negotiations int
	Pending      int
}

// PeerLink is the local side of the media channel to one remote participant
type PeerLink struct {
	remoteID  string
	role      Role
	transport LinkTransport
	log       zerolog.Logger

	// mu serialises every local and remote description change
	mu             sync.Mutex
	streamID       string
	hasRemote      bool
	awaitingAnswer bool
	pending        []webrtc.ICECandidateInit
	negotiations   int

	stateMu sync.Mutex
	state   LinkState
}

func newPeerLink(remoteID string, role Role, transport LinkTransport, log zerolog.Logger) *PeerLink {
	return &PeerLink{
		remoteID:  remoteID,
		role:      role,
		transport: transport,
		log:       log.With().Str("remote", remoteID).Str("role", string(role)).Logger(),
		state:     LinkNew,
	}
}

func (l *PeerLink) RemoteID() string { return l.remoteID }

func (l *PeerLink) Role() Role { return l.role }

func (l *PeerLink) State() LinkState {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	return l.state
}

func (l *PeerLink) setState(s LinkState) {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	if l.state == LinkClosed {
		return
	}
	l.state = s
}

// Info snapshots the link
func (l *PeerLink) Info() LinkInfo {
	l.mu.Lock()
	info := LinkInfo{
		RemoteID:     l.remoteID,
		Role:         l.role,
		StreamID:     l.streamID,
		Negotiations: l.negotiations,
		Pending:      len(l.pending),
	}
	l.mu.Unlock()
	info.State = l.State()
	return info
}

// attach swaps the outbound stream. It does not renegotiate.
func (l *PeerLink) attach(stream *media.Stream) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.transport.Attach(stream); err != nil {
		return linkError(l.remoteID, "attach stream", err)
	}
	l.streamID = stream.ID()
	return nil
}

// offer creates a local offer and hands it to send
func (l *PeerLink) offer(send func(SignalPayload) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	desc, err := l.transport.CreateOffer()
	if err != nil {
		return linkError(l.remoteID, "create offer", err)
	}
	l.awaitingAnswer = true
	l.setState(LinkNegotiating)

	if err := send(SignalPayload{SDP: &desc}); err != nil {
		return linkError(l.remoteID, "send offer", err)
	}
	return nil
}

// acceptOffer applies a remote offer and hands the answer to send. When both
// sides offered at once the answerer rolls back its own offer and the
// offerer ignores the incoming one.
func (l *PeerLink) acceptOffer(desc webrtc.SessionDescription, send func(SignalPayload) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.awaitingAnswer {
		if l.role == RoleOfferer {
			l.log.Debug().Msg("ignoring colliding offer")
			return nil
		}
		if err := l.transport.Rollback(); err != nil {
			return linkError(l.remoteID, "rollback offer", err)
		}
		l.awaitingAnswer = false
	}

	if err := l.transport.SetRemoteDescription(desc); err != nil {
		return linkError(l.remoteID, "apply offer", err)
	}
	l.hasRemote = true
	l.setState(LinkNegotiating)
	l.flushCandidates()

	answer, err := l.transport.CreateAnswer()
	if err != nil {
		return linkError(l.remoteID, "create answer", err)
	}
	if err := send(SignalPayload{SDP: &answer}); err != nil {
		return linkError(l.remoteID, "send answer", err)
	}
	l.negotiations++
	l.settled()
	return nil
}

// acceptAnswer completes an offer this side made
func (l *PeerLink) acceptAnswer(desc webrtc.SessionDescription) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.awaitingAnswer {
		l.log.Debug().Msg("ignoring unsolicited answer")
		return nil
	}
	if err := l.transport.SetRemoteDescription(desc); err != nil {
		return linkError(l.remoteID, "apply answer", err)
	}
	l.awaitingAnswer = false
	l.hasRemote = true
	l.flushCandidates()
	l.negotiations++
	l.settled()
	return nil
}

// settled marks a renegotiated link connected again. The transport reports
// no state change when its connection survived the renegotiation.
func (l *PeerLink) settled() {
	if l.transport.Connected() {
		l.setState(LinkConnected)
	}
}

// addCandidate applies c, or queues it until a remote description exists
func (l *PeerLink) addCandidate(c webrtc.ICECandidateInit) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.hasRemote {
		l.pending = append(l.pending, c)
		return nil
	}
	if err := l.transport.AddICECandidate(c); err != nil {
		return linkError(l.remoteID, "add candidate", err)
	}
	return nil
}

// flushCandidates must be called with mu held
func (l *PeerLink) flushCandidates() {
	for _, c := range l.pending {
		if err := l.transport.AddICECandidate(c); err != nil {
			l.log.Warn().Err(err).Msg("failed to apply queued candidate")
		}
	}
	l.pending = nil
}

func (l *PeerLink) close() error {
	l.stateMu.Lock()
	l.state = LinkClosed
	l.stateMu.Unlock()
	return l.transport.Close()
}
