package models

import "encoding/json"

// EventType names a signaling event on the wire
type EventType string

const (
	EventJoin        EventType = "join"
	EventYouJoined   EventType = "you-joined"
	EventUserJoined  EventType = "user-joined"
	EventUserLeft    EventType = "user-left"
	EventSignal      EventType = "signal"
	EventChatMessage EventType = "chat-message"
	EventError       EventType = "error"
)

// Envelope is the single JSON frame exchanged between participants and the
// signaling server. Which fields are set depends on Type and direction.
type Envelope struct {
	Type EventType `json:"type"`

	// join
	RoomID string `json:"roomId,omitempty"`

	// you-joined
	SelfID  string   `json:"selfId,omitempty"`
	Members []string `json:"members,omitempty"`

	// user-joined, user-left
	MemberID string `json:"memberId,omitempty"`

	// signal
	TargetID string          `json:"targetId,omitempty"`
	FromID   string          `json:"fromId,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`

	// chat-message
	Text              string `json:"text,omitempty"`
	DisplayName       string `json:"displayName,omitempty"`
	SenderDisplayName string `json:"senderDisplayName,omitempty"`

	Error string `json:"error,omitempty"`
}

// MarshalJSON always writes the members of you-joined and the text of
// chat-message, even when empty.
func (e Envelope) MarshalJSON() ([]byte, error) {
	type wire Envelope
	switch e.Type {
	case EventYouJoined:
		members := e.Members
		if members == nil {
			members = []string{}
		}
		return json.Marshal(struct {
			wire
			Members []string `json:"members"`
		}{wire(e), members})
	case EventChatMessage:
		return json.Marshal(struct {
			wire
			Text string `json:"text"`
		}{wire(e), e.Text})
	}
	return json.Marshal(wire(e))
}

// YouJoined builds the reply sent once to a joiner.
func YouJoined(selfID string, members []string) *Envelope {
	if members == nil {
		members = []string{}
	}
	return &Envelope{Type: EventYouJoined, SelfID: selfID, Members: members}
}

// UserJoined announces a new member to the incumbents.
func UserJoined(memberID string) *Envelope {
	return &Envelope{Type: EventUserJoined, MemberID: memberID}
}

// UserLeft announces a departed member to those remaining.
func UserLeft(memberID string) *Envelope {
	return &Envelope{Type: EventUserLeft, MemberID: memberID}
}

// RelayedSignal wraps an opaque payload for delivery to its target.
func RelayedSignal(fromID string, payload json.RawMessage) *Envelope {
	return &Envelope{Type: EventSignal, FromID: fromID, Payload: payload}
}

// ChatBroadcast is the server side echo of a chat message.
func ChatBroadcast(fromID, displayName, text string) *Envelope {
	return &Envelope{Type: EventChatMessage, FromID: fromID, SenderDisplayName: displayName, Text: text}
}

// ErrorEvent reports a malformed request back to its sender.
func ErrorEvent(msg string) *Envelope {
	return &Envelope{Type: EventError, Error: msg}
}
