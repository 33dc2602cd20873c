package session

import (
	"sort"
	"time"

	"github.com/mossy-p/telecare-signaling/internal/media"
)

// State is the participant's position in the call flow
type State string

const (
	StateAwaitingName           State = "awaiting-name"
	StateNegotiatingPermissions State = "negotiating-permissions"
	StateInCall                 State = "in-call"
	StateEnded                  State = "ended"
)

// MediaState is the local media as seen by the participant
type MediaState struct {
	VideoEnabled  bool
	AudioEnabled  bool
	ScreenSharing bool

	// capability flags recorded by RequestMediaPermissions
	CameraAvailable     bool
	MicrophoneAvailable bool

	StreamID   string
	StreamKind media.StreamKind
}

// Tile is the render target for one remote participant
type Tile struct {
	RemoteID  string
	StreamID  string
	Kinds     []string
	UpdatedAt time.Time
}

// ChatMessage is a chat line as echoed by the server
type ChatMessage struct {
	FromID            string
	SenderDisplayName string
	Text              string
	Self              bool
	ReceivedAt        time.Time
}

// Update tells the UI to re-read the session. Notice, when set, is a
// message for the participant.
type Update struct {
	Notice string
}

type tileSet map[string]*Tile

// put records track on remoteID's tile. A new stream id replaces the tile's
// stream rather than adding a second tile.
func (ts tileSet) put(remoteID string, track RemoteTrack, now time.Time) {
	t, ok := ts[remoteID]
	if !ok {
		t = &Tile{RemoteID: remoteID}
		ts[remoteID] = t
	}
	if t.StreamID != track.StreamID() {
		t.StreamID = track.StreamID()
		t.Kinds = nil
	}
	for _, k := range t.Kinds {
		if k == track.Kind() {
			t.UpdatedAt = now
			return
		}
	}
	t.Kinds = append(t.Kinds, track.Kind())
	sort.Strings(t.Kinds)
	t.UpdatedAt = now
}

func (ts tileSet) list() []Tile {
	out := make([]Tile, 0, len(ts))
	for _, t := range ts {
		c := *t
		c.Kinds = append([]string(nil), t.Kinds...)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RemoteID < out[j].RemoteID })
	return out
}
