// Package media provides local capture streams for a consultation: camera,
// microphone and screen sources backed by files, plus a synthetic stream
// used when no device can be opened.
package media

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Kind is the media type of a track
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// StreamKind describes where a stream's media comes from
type StreamKind string

const (
	StreamCamera    StreamKind = "camera"
	StreamDisplay   StreamKind = "display"
	StreamSynthetic StreamKind = "synthetic"
)

// Track is one local media track. Its pump goroutine, if any, writes samples
// until Stop is called or the source is exhausted.
type Track struct {
	local   *webrtc.TrackLocalStaticSample
	kind    Kind
	enabled bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func newTrack(kind Kind, codec string, streamID string, enabled bool) (*Track, error) {
	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: codec},
		string(kind)+"-"+uuid.NewString()[:8],
		streamID,
	)
	if err != nil {
		return nil, err
	}
	return &Track{
		local:   local,
		kind:    kind,
		enabled: enabled,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Local returns the pion track to attach to a peer connection
func (t *Track) Local() webrtc.TrackLocal { return t.local }

func (t *Track) ID() string { return t.local.ID() }

func (t *Track) Kind() Kind { return t.kind }

// Enabled is false for placeholder tracks that never produce frames
func (t *Track) Enabled() bool { return t.enabled }

// Stop ends the track's pump. Safe to call more than once.
func (t *Track) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// Done is closed once the track produces no more samples
func (t *Track) Done() <-chan struct{} { return t.done }

func (t *Track) stopped() <-chan struct{} { return t.stop }

// Stream groups the tracks of one capture
type Stream struct {
	id     string
	kind   StreamKind
	tracks []*Track

	endOnce sync.Once
	ended   chan struct{}
}

func newStream(kind StreamKind) *Stream {
	return &Stream{
		id:    uuid.NewString(),
		kind:  kind,
		ended: make(chan struct{}),
	}
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) Kind() StreamKind { return s.kind }

func (s *Stream) Tracks() []*Track { return s.tracks }

// VideoTracks returns the stream's video tracks
func (s *Stream) VideoTracks() []*Track { return s.byKind(KindVideo) }

// AudioTracks returns the stream's audio tracks
func (s *Stream) AudioTracks() []*Track { return s.byKind(KindAudio) }

func (s *Stream) byKind(k Kind) []*Track {
	var out []*Track
	for _, t := range s.tracks {
		if t.kind == k {
			out = append(out, t)
		}
	}
	return out
}

// Stop stops every track. It does not fire Ended.
func (s *Stream) Stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
}

// Ended is closed when the source finishes on its own, e.g. a screen share
// that runs out.
func (s *Stream) Ended() <-chan struct{} { return s.ended }

func (s *Stream) markEnded() {
	s.endOnce.Do(func() { close(s.ended) })
}
