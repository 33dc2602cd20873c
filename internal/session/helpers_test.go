package session

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/telecare-signaling/internal/media"
	"github.com/mossy-p/telecare-signaling/internal/models"
)

// writeIVF writes a VP8 clip of n frames, one every interval
func writeIVF(t *testing.T, n int, interval time.Duration) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), fmt.Sprintf("clip-%d.ivf", n))

	header := make([]byte, 32)
	copy(header[0:4], "DKIF")
	binary.LittleEndian.PutUint16(header[6:], 32)
	copy(header[8:12], "VP80")
	binary.LittleEndian.PutUint16(header[12:], 64)
	binary.LittleEndian.PutUint16(header[14:], 48)
	binary.LittleEndian.PutUint32(header[16:], 1000)
	binary.LittleEndian.PutUint32(header[20:], uint32(interval/time.Millisecond))
	binary.LittleEndian.PutUint32(header[24:], uint32(n))

	data := header
	for i := 0; i < n; i++ {
		frame := []byte{0x10, 0x02, 0x00, byte(i)}
		fh := make([]byte, 12)
		binary.LittleEndian.PutUint32(fh[0:], uint32(len(frame)))
		binary.LittleEndian.PutUint64(fh[4:], uint64(i))
		data = append(data, fh...)
		data = append(data, frame...)
	}
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func writeOgg(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mic.ogg")
	w, err := oggwriter.New(path, 48000, 2)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, w.WriteRTP(&rtp.Packet{
			Header:  rtp.Header{Version: 2, SequenceNumber: uint16(i), Timestamp: uint32(i * 960)},
			Payload: []byte{0xf8, 0xff, 0xfe},
		}))
	}
	require.NoError(t, w.Close())
	return path
}

// countingDevices wraps FileDevices and counts captures
type countingDevices struct {
	media.FileDevices
	mu      sync.Mutex
	user    int
	display int
}

func (d *countingDevices) UserMedia(ctx context.Context, c media.Constraints) (*media.Stream, error) {
	d.mu.Lock()
	d.user++
	d.mu.Unlock()
	return d.FileDevices.UserMedia(ctx, c)
}

func (d *countingDevices) DisplayMedia(ctx context.Context) (*media.Stream, error) {
	d.mu.Lock()
	d.display++
	d.mu.Unlock()
	return d.FileDevices.DisplayMedia(ctx)
}

func (d *countingDevices) captures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.user
}

func newDevices(t *testing.T, camera, mic bool, screen string) *countingDevices {
	d := &countingDevices{}
	if camera {
		d.CameraFile = writeIVF(t, 50, 20*time.Millisecond)
	}
	if mic {
		d.MicrophoneFile = writeOgg(t)
	}
	d.ScreenFile = screen
	d.Log = zerolog.Nop()
	return d
}

type fakeSignaler struct {
	mu       sync.Mutex
	sent     []*models.Envelope
	incoming chan *models.Envelope
	closed   bool
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{incoming: make(chan *models.Envelope, 16)}
}

func (f *fakeSignaler) Send(env *models.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeSignaler) Incoming() <-chan *models.Envelope { return f.incoming }

func (f *fakeSignaler) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// signals returns the payloads sent to target, in order
func (f *fakeSignaler) signals(t *testing.T, target string) []SignalPayload {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []SignalPayload
	for _, env := range f.sent {
		if env.Type != models.EventSignal || env.TargetID != target {
			continue
		}
		p, err := decodeSignal(env.Payload)
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

func (f *fakeSignaler) offers(t *testing.T, target string) int {
	n := 0
	for _, p := range f.signals(t, target) {
		if p.SDP != nil && p.SDP.Type == webrtc.SDPTypeOffer {
			n++
		}
	}
	return n
}

func (f *fakeSignaler) ofType(typ models.EventType) []*models.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Envelope
	for _, env := range f.sent {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

type fakeTransport struct {
	mu         sync.Mutex
	attached   []string
	offers     int
	answers    int
	remote     []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	rollbacks  int
	closed     bool
	connected  bool

	gate     chan struct{}
	entered  chan struct{}
	offerErr error
}

func (f *fakeTransport) Attach(stream *media.Stream) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached = append(f.attached, stream.ID())
	return nil
}

func (f *fakeTransport) CreateOffer() (webrtc.SessionDescription, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offerErr != nil {
		return webrtc.SessionDescription{}, f.offerErr
	}
	f.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-%d", f.offers)}, nil
}

func (f *fakeTransport) CreateAnswer() (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("answer-%d", f.answers)}, nil
}

func (f *fakeTransport) SetRemoteDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remote = append(f.remote, desc)
	return nil
}

func (f *fakeTransport) AddICECandidate(c webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, c)
	return nil
}

func (f *fakeTransport) Rollback() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rollbacks++
	return nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// connect marks the transport up and reports it the way pion does
func (f *fakeFactory) connect(remoteID string) {
	f.mu.Lock()
	tr := f.transports[remoteID]
	ev := f.events[remoteID]
	f.mu.Unlock()

	tr.mu.Lock()
	tr.connected = true
	tr.mu.Unlock()
	ev.OnState(LinkConnected)
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) lastAttached() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.attached) == 0 {
		return ""
	}
	return f.attached[len(f.attached)-1]
}

type fakeFactory struct {
	mu         sync.Mutex
	transports map[string]*fakeTransport
	events     map[string]TransportEvents
	configure  func(*fakeTransport)
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		transports: make(map[string]*fakeTransport),
		events:     make(map[string]TransportEvents),
	}
}

func (f *fakeFactory) NewTransport(remoteID string, ev TransportEvents) (LinkTransport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tr := &fakeTransport{}
	if f.configure != nil {
		f.configure(tr)
	}
	f.transports[remoteID] = tr
	f.events[remoteID] = ev
	return tr, nil
}

func (f *fakeFactory) get(remoteID string) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transports[remoteID]
}

type fakeCompleter struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeCompleter) Complete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	return f.err
}

type harness struct {
	s         *Session
	signaler  *fakeSignaler
	factory   *fakeFactory
	devices   *countingDevices
	completer *fakeCompleter
}

func newHarness(t *testing.T, devices *countingDevices) *harness {
	t.Helper()
	h := &harness{
		signaler:  newFakeSignaler(),
		factory:   newFakeFactory(),
		devices:   devices,
		completer: &fakeCompleter{},
	}
	h.s = New(Config{
		Signaler:   h.signaler,
		Transports: h.factory,
		Devices:    devices,
		Completer:  h.completer,
		Logger:     zerolog.Nop(),
	})
	t.Cleanup(func() { h.s.Close() })
	return h
}

// inCall joins room apt-123 as selfID with the given existing members
func (h *harness) inCall(t *testing.T, selfID string, members ...string) {
	t.Helper()
	require.NoError(t, h.s.JoinRoom(context.Background(), "apt-123", "Dr "+selfID))
	h.s.dispatch(models.YouJoined(selfID, members))
}

func offerTo(t *testing.T, sig *fakeSignaler, target string, n int) webrtc.SessionDescription {
	t.Helper()
	var offers []webrtc.SessionDescription
	for _, p := range sig.signals(t, target) {
		if p.SDP != nil && p.SDP.Type == webrtc.SDPTypeOffer {
			offers = append(offers, *p.SDP)
		}
	}
	require.GreaterOrEqual(t, len(offers), n)
	return offers[n-1]
}

func answer() SignalPayload {
	return SignalPayload{SDP: &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "remote-answer"}}
}

func offer() SignalPayload {
	return SignalPayload{SDP: &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "remote-offer"}}
}

func candidate(s string) SignalPayload {
	return SignalPayload{ICE: &webrtc.ICECandidateInit{Candidate: s}}
}
