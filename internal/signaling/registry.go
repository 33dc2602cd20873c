package signaling

import (
	"sort"
	"sync"
	"time"

	"github.com/mossy-p/telecare-signaling/internal/models"
)

// Member is a connection handle that can be placed in a room.
// Deliver must not block; it reports whether the envelope was queued.
type Member interface {
	ID() string
	Deliver(env *models.Envelope) bool
}

// Lifecycle receives room transitions. Hooks run after the registry lock is
// released and must not block.
type Lifecycle struct {
	OnRoomCreated   func(roomID string, createdAt time.Time)
	OnRoomDestroyed func(roomID string)
	OnMemberJoined  func(roomID, memberID string, count int)
	OnMemberLeft    func(roomID, memberID string, count int)
}

type room struct {
	id        string
	createdAt time.Time
	members   map[string]Member
}

// Registry tracks which connections belong to which room. A room exists
// exactly while its member count is above zero.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*room
	memberOf map[string]string
	hooks    Lifecycle
	now      func() time.Time
}

// JoinResult describes the effect of a Join
type JoinResult struct {
	// Existing holds the other members of the room at join time
	Existing []Member
	// Created is true when this join took the room from 0 to 1 members
	Created bool
	// AlreadyMember is true when the member was in this room before the call
	AlreadyMember bool
	// Left is set when the member was moved out of a different room
	Left *LeaveResult
}

// LeaveResult describes the effect of a Leave
type LeaveResult struct {
	RoomID    string
	Remaining []Member
	// Destroyed is true when this leave took the room from 1 to 0 members
	Destroyed bool
}

func NewRegistry(hooks Lifecycle) *Registry {
	return &Registry{
		rooms:    make(map[string]*room),
		memberOf: make(map[string]string),
		hooks:    hooks,
		now:      time.Now,
	}
}

// Join places m in roomID, creating the room if needed. A member already in
// another room is removed from it first.
func (r *Registry) Join(roomID string, m Member) JoinResult {
	var res JoinResult
	var events []func()

	r.mu.Lock()
	if current, ok := r.memberOf[m.ID()]; ok {
		if current == roomID {
			res.AlreadyMember = true
			res.Existing = others(r.rooms[roomID], m.ID())
			r.mu.Unlock()
			return res
		}
		left, ev := r.leaveLocked(m.ID())
		res.Left = &left
		events = append(events, ev...)
	}

	rm, exists := r.rooms[roomID]
	if !exists {
		rm = &room{id: roomID, createdAt: r.now(), members: make(map[string]Member)}
		r.rooms[roomID] = rm
		res.Created = true
		createdAt := rm.createdAt
		if r.hooks.OnRoomCreated != nil {
			events = append(events, func() { r.hooks.OnRoomCreated(roomID, createdAt) })
		}
	}
	res.Existing = others(rm, m.ID())
	rm.members[m.ID()] = m
	r.memberOf[m.ID()] = roomID
	count := len(rm.members)
	if r.hooks.OnMemberJoined != nil {
		id := m.ID()
		events = append(events, func() { r.hooks.OnMemberJoined(roomID, id, count) })
	}
	r.mu.Unlock()

	for _, ev := range events {
		ev()
	}
	return res
}

// Leave removes memberID from its room. ok is false when the member was not
// in any room, which is not an error.
func (r *Registry) Leave(memberID string) (LeaveResult, bool) {
	r.mu.Lock()
	if _, in := r.memberOf[memberID]; !in {
		r.mu.Unlock()
		return LeaveResult{}, false
	}
	res, events := r.leaveLocked(memberID)
	r.mu.Unlock()

	for _, ev := range events {
		ev()
	}
	return res, true
}

func (r *Registry) leaveLocked(memberID string) (LeaveResult, []func()) {
	roomID := r.memberOf[memberID]
	delete(r.memberOf, memberID)

	rm := r.rooms[roomID]
	delete(rm.members, memberID)
	count := len(rm.members)

	var events []func()
	if r.hooks.OnMemberLeft != nil {
		events = append(events, func() { r.hooks.OnMemberLeft(roomID, memberID, count) })
	}

	res := LeaveResult{RoomID: roomID, Remaining: others(rm, "")}
	if count == 0 {
		delete(r.rooms, roomID)
		res.Destroyed = true
		if r.hooks.OnRoomDestroyed != nil {
			events = append(events, func() { r.hooks.OnRoomDestroyed(roomID) })
		}
	}
	return res, events
}

// RoomOf returns the room a member currently belongs to
func (r *Registry) RoomOf(memberID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.memberOf[memberID]
	return roomID, ok
}

// Member looks up a member of a specific room
func (r *Registry) Member(roomID, memberID string) (Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	m, ok := rm.members[memberID]
	return m, ok
}

// Members returns every member of a room, ordered by id
func (r *Registry) Members(roomID string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return others(r.rooms[roomID], "")
}

// Snapshot returns a read-only view of a room
func (r *Registry) Snapshot(roomID string) (models.RoomSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return models.RoomSnapshot{}, false
	}
	ids := memberIDs(others(rm, ""))
	return models.RoomSnapshot{
		RoomID:      rm.id,
		CreatedAt:   rm.createdAt,
		MemberCount: len(ids),
		Members:     ids,
	}, true
}

// Len returns the number of live rooms
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func others(rm *room, exclude string) []Member {
	if rm == nil {
		return nil
	}
	out := make([]Member, 0, len(rm.members))
	for id, m := range rm.members {
		if id != exclude {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func memberIDs(members []Member) []string {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID()
	}
	return ids
}

// Rooms returns snapshots of every live room, ordered by room id
func (r *Registry) Rooms() []models.RoomSnapshot {
	r.mu.RLock()
	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	out := make([]models.RoomSnapshot, 0, len(ids))
	for _, id := range ids {
		if snap, ok := r.Snapshot(id); ok {
			out = append(out, snap)
		}
	}
	return out
}
