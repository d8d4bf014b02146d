/*
Package room contains the chat room entity and the thread-safe registry
of all rooms.

This file defines the Room struct. Each Room owns a single mutex guarding
its member set, its message history, and its pending-deletion timer, so
traffic in one room never contends with another.
*/
package room

import (
	"sort"
	"sync"
	"time"
)

// Room is one chat room: a named member set with an append-only message
// history. AI-backed rooms additionally carry a conversation transcript
// in the AI manager, keyed by the same name.
type Room struct {
	// Name is the unique registry key. Immutable.
	Name string

	// Owner is the username that first created the room. Informational.
	Owner string

	// aiRoom marks rooms whose /ai requests go to the completion backend.
	// Immutable after creation.
	aiRoom bool

	// mu guards members, history, and deletionTimer.
	mu      sync.Mutex
	members map[string]struct{}
	history []string

	// deletionTimer is the armed grace timer while the room is empty,
	// nil otherwise.
	deletionTimer *time.Timer
}

// NewRoom creates a room owned by owner. The owner is not added as a
// member; joining is the caller's separate step.
func NewRoom(name, owner string, aiRoom bool) *Room {
	return &Room{
		Name:    name,
		Owner:   owner,
		aiRoom:  aiRoom,
		members: make(map[string]struct{}),
	}
}

// IsAIRoom reports whether the room is AI-backed.
func (r *Room) IsAIRoom() bool {
	return r.aiRoom
}

// AddMember inserts username into the member set and disarms any pending
// deletion timer. Adding an existing member is a no-op.
func (r *Room) AddMember(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.members[username] = struct{}{}

	if r.deletionTimer != nil {
		r.deletionTimer.Stop()
		r.deletionTimer = nil
	}
}

// RemoveMember deletes username from the member set and reports whether
// the room is now empty.
func (r *Room) RemoveMember(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.members, username)
	return len(r.members) == 0
}

// IsMember reports whether username is currently in the room.
func (r *Room) IsMember(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, found := r.members[username]
	return found
}

// Members returns a sorted snapshot of the member set.
func (r *Room) Members() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.members))
	for username := range r.members {
		names = append(names, username)
	}
	sort.Strings(names)

	return names
}

// Empty reports whether the member set is empty.
func (r *Room) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.members) == 0
}

// AppendMessage appends one formatted line to the room history. Append
// order under this lock is the room's linearized send order.
func (r *Room) AppendMessage(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = append(r.history, line)
}

// Post appends one formatted line to the history and invokes deliver
// while still holding the room lock, so every recipient observes sends
// in history order. deliver must not block and must not touch the room.
func (r *Room) Post(line string, deliver func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = append(r.history, line)
	deliver()
}

// History returns a snapshot of the message history.
func (r *Room) History() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := make([]string, len(r.history))
	copy(snapshot, r.history)
	return snapshot
}

// armDeletion starts the grace timer unless one is already pending. The
// callback handle is stored with the room and checked under this lock by
// AddMember.
func (r *Room) armDeletion(grace time.Duration, expire func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.members) > 0 || r.deletionTimer != nil {
		return
	}

	r.deletionTimer = time.AfterFunc(grace, expire)
}
