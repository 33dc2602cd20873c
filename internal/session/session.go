// Package session drives one participant's side of a consultation: local
// media, one PeerLink per remote participant, and the chat log.
package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mossy-p/telecare-signaling/internal/booking"
	"github.com/mossy-p/telecare-signaling/internal/media"
	"github.com/mossy-p/telecare-signaling/internal/models"
)

// Signaler is the participant's connection to the signaling server.
// *signalclient.Client implements it.
type Signaler interface {
	Send(env *models.Envelope) error
	Incoming() <-chan *models.Envelope
	Close() error
}

// Config holds a Session's collaborators. Completer may be nil.
type Config struct {
	Signaler   Signaler
	Transports TransportFactory
	Devices    media.Devices
	Completer  booking.Completer
	Logger     zerolog.Logger
}

type Session struct {
	signaler   Signaler
	transports TransportFactory
	devices    media.Devices
	completer  booking.Completer
	log        zerolog.Logger
	now        func() time.Time

	// mu guards call state, identity, media flags, tiles and chat
	mu          sync.Mutex
	state       State
	roomID      string
	displayName string
	selfID      string
	media       MediaState
	tiles       tileSet
	messages    []ChatMessage
	unread      int

	// linksMu guards the link table and the outbound stream attached to it
	linksMu sync.Mutex
	links   map[string]*PeerLink
	stream  *media.Stream

	// toggleMu admits one media change at a time
	toggleMu sync.Mutex

	updates   chan Update
	done      chan struct{}
	closeOnce sync.Once
}

func New(cfg Config) *Session {
	return &Session{
		signaler:   cfg.Signaler,
		transports: cfg.Transports,
		devices:    cfg.Devices,
		completer:  cfg.Completer,
		log:        cfg.Logger.With().Str("component", "session").Logger(),
		now:        time.Now,
		state:      StateAwaitingName,
		tiles:      make(tileSet),
		links:      make(map[string]*PeerLink),
		updates:    make(chan Update, 32),
		done:       make(chan struct{}),
	}
}

// JoinRoom records the participant's name, acquires media and asks the
// server to join roomID.
func (s *Session) JoinRoom(ctx context.Context, roomID, displayName string) error {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return ErrNameRequired
	}
	if roomID == "" {
		return ErrRoomRequired
	}

	s.mu.Lock()
	if s.state != StateAwaitingName {
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.roomID = roomID
	s.displayName = displayName
	s.state = StateNegotiatingPermissions
	s.mu.Unlock()
	s.publish("")

	if err := s.RequestMediaPermissions(ctx); err != nil {
		// back to the name prompt so the participant can retry
		s.mu.Lock()
		s.state = StateAwaitingName
		s.roomID = ""
		s.displayName = ""
		s.mu.Unlock()
		s.publish("")
		return err
	}

	s.log.Info().Str("room", roomID).Str("name", displayName).Msg("joining room")
	return s.signaler.Send(&models.Envelope{Type: models.EventJoin, RoomID: roomID})
}

// RequestMediaPermissions probes the camera and microphone separately, then
// acquires the outbound stream. Unavailable devices are recorded, not fatal.
func (s *Session) RequestMediaPermissions(ctx context.Context) error {
	if s.State() != StateNegotiatingPermissions {
		return ErrInvalidState
	}

	camera := s.probe(ctx, media.Constraints{Video: true}, "camera")
	mic := s.probe(ctx, media.Constraints{Audio: true}, "microphone")
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.media.CameraAvailable = camera
	s.media.MicrophoneAvailable = mic
	s.media.VideoEnabled = camera
	s.media.AudioEnabled = mic
	s.mu.Unlock()

	stream, err := s.acquire(ctx, camera, mic)
	if err != nil {
		return err
	}

	s.linksMu.Lock()
	s.stream = stream
	s.linksMu.Unlock()

	s.mu.Lock()
	s.media.StreamID = stream.ID()
	s.media.StreamKind = stream.Kind()
	s.state = StateInCall
	s.mu.Unlock()

	if !camera || !mic {
		s.publish(unavailableNotice(camera, mic))
	} else {
		s.publish("")
	}
	return nil
}

func unavailableNotice(camera, mic bool) string {
	switch {
	case !camera && !mic:
		return "camera and microphone unavailable, joining without media"
	case !camera:
		return "camera unavailable, joining with audio only"
	default:
		return "microphone unavailable, joining with video only"
	}
}

func (s *Session) probe(ctx context.Context, c media.Constraints, device string) bool {
	stream, err := s.devices.UserMedia(ctx, c)
	if err != nil {
		s.log.Info().Err(err).Str("device", device).Msg("device unavailable")
		return false
	}
	stream.Stop()
	return true
}

// acquire opens a camera/microphone stream, substituting the synthetic
// stream when nothing is requested or the devices fail.
func (s *Session) acquire(ctx context.Context, video, audio bool) (*media.Stream, error) {
	if video || audio {
		stream, err := s.devices.UserMedia(ctx, media.Constraints{Video: video, Audio: audio})
		if err == nil {
			return stream, nil
		}
		s.log.Warn().Err(err).Bool("video", video).Bool("audio", audio).Msg("media capture failed, using placeholder")
		s.publish("media capture failed, sending placeholder stream")
	}
	return media.Synthetic()
}

// Run consumes server events until ctx is cancelled, the session is closed,
// or the signaling connection drops.
func (s *Session) Run(ctx context.Context) error {
	incoming := s.signaler.Incoming()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case env, ok := <-incoming:
			if !ok {
				if s.State() == StateEnded {
					return nil
				}
				s.publish("connection to signaling server lost")
				return ErrSignalingClosed
			}
			s.dispatch(env)
		}
	}
}

func (s *Session) dispatch(env *models.Envelope) {
	switch env.Type {
	case models.EventYouJoined:
		s.mu.Lock()
		s.selfID = env.SelfID
		s.mu.Unlock()
		for _, id := range env.Members {
			if _, _, err := s.ensureLink(id, RoleAnswerer); err != nil {
				s.log.Warn().Err(err).Msg("failed to create peer link")
			}
		}
		s.publish("")

	case models.EventUserJoined:
		link, created, err := s.ensureLink(env.MemberID, RoleOfferer)
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to create peer link")
			return
		}
		s.publish("")
		if created {
			if err := s.negotiate(link); err != nil {
				s.log.Warn().Err(err).Msg("initial offer failed")
			}
		}

	case models.EventUserLeft:
		s.removePeer(env.MemberID)

	case models.EventSignal:
		payload, err := decodeSignal(env.Payload)
		if err != nil {
			s.log.Debug().Err(err).Str("remote", env.FromID).Msg("discarding signal")
			return
		}
		if err := s.HandleSignal(env.FromID, payload); err != nil {
			s.log.Warn().Err(err).Msg("signal handling failed")
		}

	case models.EventChatMessage:
		s.receiveChat(env)

	case models.EventError:
		s.log.Warn().Str("error", env.Error).Msg("server rejected request")
		s.publish("server: " + env.Error)

	default:
		s.log.Debug().Str("type", string(env.Type)).Msg("unknown event")
	}
}

// ensureLink returns the PeerLink for remoteID, creating it with role and
// the current outbound stream if none exists.
func (s *Session) ensureLink(remoteID string, role Role) (*PeerLink, bool, error) {
	s.linksMu.Lock()
	defer s.linksMu.Unlock()

	if l, ok := s.links[remoteID]; ok {
		return l, false, nil
	}
	if s.stream == nil {
		return nil, false, ErrInvalidState
	}

	transport, err := s.transports.NewTransport(remoteID, TransportEvents{
		OnCandidate: func(c webrtc.ICECandidateInit) {
			if err := s.sendSignal(remoteID, SignalPayload{ICE: &c}); err != nil {
				s.log.Debug().Err(err).Str("remote", remoteID).Msg("failed to send candidate")
			}
		},
		OnTrack: func(t RemoteTrack) { s.onRemoteTrack(remoteID, t) },
		OnState: func(st LinkState) {
			if l := s.peer(remoteID); l != nil {
				l.setState(st)
				s.publish("")
			}
		},
	})
	if err != nil {
		return nil, false, linkError(remoteID, "create transport", err)
	}

	link := newPeerLink(remoteID, role, transport, s.log)
	if err := link.attach(s.stream); err != nil {
		transport.Close()
		return nil, false, err
	}
	s.links[remoteID] = link
	s.log.Debug().Str("remote", remoteID).Str("role", string(role)).Msg("peer link created")
	return link, true, nil
}

func (s *Session) peer(remoteID string) *PeerLink {
	s.linksMu.Lock()
	defer s.linksMu.Unlock()
	return s.links[remoteID]
}

// removePeer drops the PeerLink and tile of a departed participant. Unknown
// ids are ignored.
func (s *Session) removePeer(remoteID string) {
	s.linksMu.Lock()
	link, ok := s.links[remoteID]
	delete(s.links, remoteID)
	s.linksMu.Unlock()

	if !ok {
		return
	}
	if err := link.close(); err != nil {
		s.log.Debug().Err(err).Str("remote", remoteID).Msg("closing transport")
	}

	s.mu.Lock()
	delete(s.tiles, remoteID)
	s.mu.Unlock()
	s.publish("")
}

func (s *Session) negotiate(link *PeerLink) error {
	return link.offer(func(p SignalPayload) error {
		return s.sendSignal(link.RemoteID(), p)
	})
}

func (s *Session) sendSignal(targetID string, p SignalPayload) error {
	raw, err := encodeSignal(p)
	if err != nil {
		return err
	}
	return s.signaler.Send(&models.Envelope{Type: models.EventSignal, TargetID: targetID, Payload: raw})
}

// HandleSignal applies a payload relayed from fromID. Signals from unknown
// participants are ignored.
func (s *Session) HandleSignal(fromID string, p SignalPayload) error {
	link := s.peer(fromID)
	if link == nil {
		s.log.Debug().Str("remote", fromID).Msg("signal for unknown peer")
		return nil
	}

	if p.SDP != nil {
		switch p.SDP.Type {
		case webrtc.SDPTypeOffer:
			return link.acceptOffer(*p.SDP, func(answer SignalPayload) error {
				return s.sendSignal(fromID, answer)
			})
		case webrtc.SDPTypeAnswer:
			return link.acceptAnswer(*p.SDP)
		default:
			s.log.Debug().Str("remote", fromID).Str("sdp", p.SDP.Type.String()).Msg("ignoring description")
		}
	}
	if p.ICE != nil {
		return link.addCandidate(*p.ICE)
	}
	return nil
}

func (s *Session) onRemoteTrack(remoteID string, t RemoteTrack) {
	if s.peer(remoteID) == nil {
		return
	}
	s.mu.Lock()
	s.tiles.put(remoteID, t, s.now())
	s.mu.Unlock()
	s.publish("")
}

// ToggleVideo flips the video flag and renegotiates every PeerLink with a
// freshly acquired stream. While screen sharing only the flag changes.
func (s *Session) ToggleVideo(ctx context.Context) error {
	return s.toggle(ctx, func(m *MediaState) { m.VideoEnabled = !m.VideoEnabled })
}

// ToggleAudio is ToggleVideo for the microphone
func (s *Session) ToggleAudio(ctx context.Context) error {
	return s.toggle(ctx, func(m *MediaState) { m.AudioEnabled = !m.AudioEnabled })
}

func (s *Session) toggle(ctx context.Context, flip func(*MediaState)) error {
	if !s.toggleMu.TryLock() {
		return ErrToggleInProgress
	}
	defer s.toggleMu.Unlock()

	s.mu.Lock()
	if s.state != StateInCall {
		s.mu.Unlock()
		return ErrInvalidState
	}
	flip(&s.media)
	m := s.media
	s.mu.Unlock()

	if m.ScreenSharing {
		s.publish("")
		return nil
	}
	return s.switchToCamera(ctx, m)
}

func (s *Session) switchToCamera(ctx context.Context, m MediaState) error {
	stream, err := s.acquire(ctx, m.VideoEnabled && m.CameraAvailable, m.AudioEnabled && m.MicrophoneAvailable)
	if err != nil {
		return err
	}
	return s.swapStream(stream)
}

// ToggleScreenShare starts or stops sharing the screen in place of the
// camera stream. When the shared screen ends by itself the camera stream is
// restored automatically.
func (s *Session) ToggleScreenShare(ctx context.Context) error {
	if !s.toggleMu.TryLock() {
		return ErrToggleInProgress
	}
	defer s.toggleMu.Unlock()

	s.mu.Lock()
	if s.state != StateInCall {
		s.mu.Unlock()
		return ErrInvalidState
	}
	sharing := s.media.ScreenSharing
	s.mu.Unlock()

	if sharing {
		return s.stopSharing(ctx)
	}

	if !s.devices.DisplaySupported() {
		return media.ErrDisplayUnsupported
	}
	stream, err := s.devices.DisplayMedia(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.media.ScreenSharing = true
	s.mu.Unlock()

	go s.watchDisplay(stream)
	return s.swapStream(stream)
}

// stopSharing must be called with toggleMu held
func (s *Session) stopSharing(ctx context.Context) error {
	s.mu.Lock()
	s.media.ScreenSharing = false
	m := s.media
	s.mu.Unlock()
	return s.switchToCamera(ctx, m)
}

func (s *Session) watchDisplay(stream *media.Stream) {
	var trackDone <-chan struct{}
	if vt := stream.VideoTracks(); len(vt) > 0 {
		trackDone = vt[0].Done()
	}

	select {
	case <-stream.Ended():
	case <-trackDone:
		// stopped by us, unless it also ended
		select {
		case <-stream.Ended():
		default:
			return
		}
	case <-s.done:
		return
	}

	// queue behind any toggle in flight rather than being discarded
	s.toggleMu.Lock()
	defer s.toggleMu.Unlock()

	s.linksMu.Lock()
	current := s.stream == stream
	s.linksMu.Unlock()
	if !current || s.State() != StateInCall {
		return
	}

	s.publish("screen sharing stopped")
	if err := s.stopSharing(context.Background()); err != nil {
		s.log.Warn().Err(err).Msg("failed to restore camera after screen share")
	}
}

// swapStream attaches stream to every PeerLink, stops the previous stream,
// then renegotiates all links in parallel. It returns once every offer has
// been sent or has failed.
func (s *Session) swapStream(stream *media.Stream) error {
	s.linksMu.Lock()
	old := s.stream
	s.stream = stream
	links := make([]*PeerLink, 0, len(s.links))
	for _, l := range s.links {
		if err := l.attach(stream); err != nil {
			s.log.Warn().Err(err).Msg("failed to attach stream")
			continue
		}
		links = append(links, l)
	}
	s.linksMu.Unlock()

	if old != nil && old != stream {
		old.Stop()
	}

	s.mu.Lock()
	s.media.StreamID = stream.ID()
	s.media.StreamKind = stream.Kind()
	s.mu.Unlock()
	s.publish("")

	var g errgroup.Group
	for _, l := range links {
		l := l
		g.Go(func() error {
			if err := s.negotiate(l); err != nil {
				s.log.Warn().Err(err).Msg("renegotiation failed")
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// SendChatMessage sends text to the room. It shows up in Messages once the
// server echoes it back.
func (s *Session) SendChatMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	s.mu.Lock()
	if s.state != StateInCall {
		s.mu.Unlock()
		return ErrInvalidState
	}
	name := s.displayName
	s.mu.Unlock()

	return s.signaler.Send(&models.Envelope{Type: models.EventChatMessage, Text: text, DisplayName: name})
}

func (s *Session) receiveChat(env *models.Envelope) {
	s.mu.Lock()
	self := env.FromID != "" && env.FromID == s.selfID
	s.messages = append(s.messages, ChatMessage{
		FromID:            env.FromID,
		SenderDisplayName: env.SenderDisplayName,
		Text:              env.Text,
		Self:              self,
		ReceivedAt:        s.now(),
	})
	if !self {
		s.unread++
	}
	s.mu.Unlock()
	s.publish("")
}

// EndCall stops local media, marks the appointment complete and moves to
// ended. A completion failure is returned and published, but the call is
// ended regardless.
func (s *Session) EndCall(ctx context.Context) error {
	s.toggleMu.Lock()
	defer s.toggleMu.Unlock()

	s.mu.Lock()
	if s.state != StateInCall {
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.state = StateEnded
	roomID := s.roomID
	s.mu.Unlock()

	s.linksMu.Lock()
	stream := s.stream
	s.linksMu.Unlock()
	if stream != nil {
		stream.Stop()
	}
	s.publish("call ended")
	s.log.Info().Str("room", roomID).Msg("call ended")

	if s.completer == nil {
		return nil
	}
	if err := s.completer.Complete(ctx, roomID); err != nil {
		s.log.Error().Err(err).Str("room", roomID).Msg("failed to mark appointment complete")
		s.publish("could not mark appointment complete: " + err.Error())
		return fmt.Errorf("mark appointment complete: %w", err)
	}
	return nil
}

// Close tears down every PeerLink, stops local media and disconnects from
// the signaling server. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)

		s.linksMu.Lock()
		links := s.links
		s.links = make(map[string]*PeerLink)
		stream := s.stream
		s.linksMu.Unlock()

		for _, l := range links {
			l.close()
		}
		if stream != nil {
			stream.Stop()
		}

		s.mu.Lock()
		s.state = StateEnded
		s.tiles = make(tileSet)
		s.mu.Unlock()

		err = s.signaler.Close()
	})
	return err
}

func (s *Session) publish(notice string) {
	select {
	case s.updates <- Update{Notice: notice}:
	default:
	}
}

// Updates signals the UI to redraw. Sends never block, so bursts coalesce.
func (s *Session) Updates() <-chan Update { return s.updates }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) SelfID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selfID
}

func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

func (s *Session) DisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayName
}

func (s *Session) Media() MediaState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.media
}

// Links lists every PeerLink ordered by remote id
func (s *Session) Links() []LinkInfo {
	s.linksMu.Lock()
	links := make([]*PeerLink, 0, len(s.links))
	for _, l := range s.links {
		links = append(links, l)
	}
	s.linksMu.Unlock()

	out := make([]LinkInfo, len(links))
	for i, l := range links {
		out[i] = l.Info()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RemoteID < out[j].RemoteID })
	return out
}

func (s *Session) Tiles() []Tile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tiles.list()
}

func (s *Session) Messages() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatMessage(nil), s.messages...)
}

func (s *Session) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// MarkRead clears the unread counter
func (s *Session) MarkRead() {
	s.mu.Lock()
	s.unread = 0
	s.mu.Unlock()
}
