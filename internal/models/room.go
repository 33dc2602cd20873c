package models

import "time"

// RoomMetadata is the presence record mirrored for a live room
type RoomMetadata struct {
	ID          string    `msgpack:"id" json:"id"`
	CreatedAt   time.Time `msgpack:"createdAt" json:"createdAt"`
	MemberCount int       `msgpack:"memberCount" json:"memberCount"`
}

// RoomSnapshot is the response body of the room lookup endpoint
type RoomSnapshot struct {
	RoomID      string    `json:"roomId"`
	CreatedAt   time.Time `json:"createdAt"`
	MemberCount int       `json:"memberCount"`
	Members     []string  `json:"members"`
}
