/*
Package room contains the chat room entity and the thread-safe registry
of all rooms.

This file defines the Registry: the name-to-Room map guarded by one
registry-wide lock, room lifecycle (auto-create on join, grace-timer
deletion of emptied rooms), and the bridge to the AI manager for
AI-backed rooms.
*/
package room

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/PedroMMarinho/FEUP-CPD/internal/app/ai"
	"github.com/PedroMMarinho/FEUP-CPD/internal/pkg/errs"
	"github.com/PedroMMarinho/FEUP-CPD/internal/pkg/logx"
)

// Registry is the thread-safe collection of all rooms, keyed by name.
// Mutations of the collection itself go through the registry lock;
// per-room state is guarded by each Room's own lock. Lock order is
// always registry before room, never the reverse.
type Registry struct {
	// mu protects the rooms map.
	mu    sync.Mutex
	rooms map[string]*Room

	// aiManager holds the conversation state for AI-backed rooms.
	aiManager *ai.Manager

	// gracePeriod is how long an emptied room survives before deletion.
	gracePeriod time.Duration

	logger zerolog.Logger
}

// NewRegistry constructs a Registry deleting emptied rooms after
// gracePeriod.
func NewRegistry(aiManager *ai.Manager, gracePeriod time.Duration) *Registry {
	return &Registry{
		rooms:       make(map[string]*Room),
		aiManager:   aiManager,
		gracePeriod: gracePeriod,
		logger:      logx.Logger().With().Str("component", "RoomRegistry").Logger(),
	}
}

// RoomExists reports whether a room with the given name is registered.
func (reg *Registry) RoomExists(name string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	_, found := reg.rooms[name]
	return found
}

// GetByName returns the registered room or nil.
func (reg *Registry) GetByName(name string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return reg.rooms[name]
}

// AddRoom registers an externally constructed room. Joining flows use
// Join/JoinAI instead; this exists for wiring and tests.
func (reg *Registry) AddRoom(room *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.rooms[room.Name] = room
}

// RemoveRoom unregisters the room and, for AI rooms, drops its
// conversation state.
func (reg *Registry) RemoveRoom(name string) {
	reg.mu.Lock()
	room, found := reg.rooms[name]
	if found {
		delete(reg.rooms, name)
	}
	reg.mu.Unlock()

	if found && room.IsAIRoom() {
		reg.aiManager.RemoveAIRoom(name)
	}
}

// IsAIRoom reports whether the named room exists and is AI-backed.
func (reg *Registry) IsAIRoom(name string) bool {
	room := reg.GetByName(name)
	return room != nil && room.IsAIRoom()
}

// AvailableRoomNames returns all room names sorted, for deterministic
// lobby listings.
func (reg *Registry) AvailableRoomNames() []string {
	reg.mu.Lock()
	names := make([]string, 0, len(reg.rooms))
	for name := range reg.rooms {
		names = append(names, name)
	}
	reg.mu.Unlock()

	sort.Strings(names)
	return names
}

// Join adds username to the named room, creating the room if absent.
// It fails when the room exists but is AI-backed; those are entered via
// JoinAI. The returned created flag tells the handler which confirmation
// to send. Membership is granted under the registry lock, like Resume,
// so a grace timer firing mid-join cannot delete the room out from
// under the new member.
func (reg *Registry) Join(name, username string) (*Room, bool, *errs.CustomError) {
	reg.mu.Lock()
	target, found := reg.rooms[name]
	created := false
	if !found {
		target = NewRoom(name, username, false)
		reg.rooms[name] = target
		created = true
	}

	if target.IsAIRoom() {
		reg.mu.Unlock()
		return nil, false, errs.NewError(errs.ErrRoomIsAI, name)
	}

	target.AddMember(username)
	reg.mu.Unlock()

	if created {
		reg.logger.Info().Str("room", name).Str("owner", username).Msg("Room created.")
	}

	return target, created, nil
}

// JoinAI adds username to the named AI room, creating it (and
// registering its prompt with the AI manager as one atomic step from the
// caller's perspective) if absent. It fails when the room exists but is
// not AI-backed. A prompt supplied for an existing AI room is ignored.
func (reg *Registry) JoinAI(name, username, prompt string) (*Room, bool, *errs.CustomError) {
	reg.mu.Lock()
	target, found := reg.rooms[name]
	created := false
	if !found {
		target = NewRoom(name, username, true)
		reg.rooms[name] = target
		reg.aiManager.CreateAIRoom(name, prompt)
		created = true
	}

	if !target.IsAIRoom() {
		reg.mu.Unlock()
		return nil, false, errs.NewError(errs.ErrRoomNotAI, name)
	}

	target.AddMember(username)
	reg.mu.Unlock()

	if created {
		reg.logger.Info().Str("room", name).Str("owner", username).Msg("AI room created.")
	}

	return target, created, nil
}

// Resume re-adds a returning member to the named room if it still
// exists. Membership is granted under the registry lock so a concurrent
// grace-timer expiry cannot remove the room mid-rejoin.
func (reg *Registry) Resume(name, username string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	target, found := reg.rooms[name]
	if !found {
		return nil, false
	}

	target.AddMember(username)
	return target, true
}

// Leave removes username from the named room. When the member set
// empties, the grace timer is armed; a join within the window disarms it,
// otherwise the fired timer re-checks emptiness and removes the room.
func (reg *Registry) Leave(name, username string) {
	target := reg.GetByName(name)
	if target == nil {
		return
	}

	if empty := target.RemoveMember(username); empty {
		target.armDeletion(reg.gracePeriod, func() {
			reg.removeIfEmpty(name)
		})

		reg.logger.Info().
			Str("room", name).
			Dur("grace_period", reg.gracePeriod).
			Msg("Room emptied. Deletion timer armed.")
	}
}

// removeIfEmpty is the grace-timer callback. The emptiness re-check and
// the removal happen under the registry lock, so a concurrent join either
// beats the removal entirely or lands in a fresh auto-created room.
func (reg *Registry) removeIfEmpty(name string) {
	reg.mu.Lock()
	target, found := reg.rooms[name]
	if !found || !target.Empty() {
		reg.mu.Unlock()
		return
	}
	delete(reg.rooms, name)
	reg.mu.Unlock()

	if target.IsAIRoom() {
		reg.aiManager.RemoveAIRoom(name)
	}

	reg.logger.Info().Str("room", name).Msg("Empty room removed after grace period.")
}

// GetAIResponse appends the user's message to the room's AI transcript
// and requests a completion. Non-AI rooms are rejected. The backend call
// happens inside the AI manager, outside every registry and room lock.
func (reg *Registry) GetAIResponse(ctx context.Context, roomName, username, message string) (string, *errs.CustomError) {
	if !reg.IsAIRoom(roomName) {
		return "", errs.NewError(errs.ErrRoomNotAI, roomName)
	}

	reg.aiManager.AddUserMessage(roomName, username, message)

	return reg.aiManager.GetAIResponse(ctx, roomName)
}

// NoteChatMessage mirrors ordinary room chatter into the AI transcript of
// AI-backed rooms, so later /ai requests see the conversation context.
func (reg *Registry) NoteChatMessage(roomName, username, message string) {
	if reg.IsAIRoom(roomName) {
		reg.aiManager.AddNonUserMessage(roomName, username, message)
	}
}

// NoteMemberLeft records a departure in the AI transcript of AI-backed
// rooms. Callers invoke this after the departure has been broadcast.
func (reg *Registry) NoteMemberLeft(roomName, username string) {
	if reg.IsAIRoom(roomName) {
		reg.aiManager.NoteEvent(roomName, username+" left the room")
	}
}
