package session

import (
	"encoding/json"
	"errors"

	"github.com/pion/webrtc/v4"
)

// SignalPayload is the body relayed between two participants. Exactly one of
// SDP or ICE is set.
type SignalPayload struct {
	SDP *webrtc.SessionDescription `json:"sdp,omitempty"`
	ICE *webrtc.ICECandidateInit   `json:"ice,omitempty"`
}

var errEmptyPayload = errors.New("signal payload has neither sdp nor ice")

func encodeSignal(p SignalPayload) (json.RawMessage, error) {
	return json.Marshal(p)
}

func decodeSignal(raw json.RawMessage) (SignalPayload, error) {
	var p SignalPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, err
	}
	if p.SDP == nil && p.ICE == nil {
		return p, errEmptyPayload
	}
	return p, nil
}
