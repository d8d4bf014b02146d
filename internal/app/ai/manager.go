/*
Package ai manages the per-room AI conversations and the completion
backend client.

This file defines the Manager: one system prompt and one bounded,
role-tagged transcript per AI room. The transcript keeps the original
system entry pinned at index 0 and at most MaxHistoryMessages entries
after it, dropping the oldest first.
*/
package ai

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/PedroMMarinho/FEUP-CPD/internal/pkg/errs"
	"github.com/PedroMMarinho/FEUP-CPD/internal/pkg/logx"
)

const (
	// BotName is the display name used for assistant replies.
	BotName = "Bot"

	// MaxHistoryMessages bounds the non-system transcript entries kept
	// per room.
	MaxHistoryMessages = 20

	// chatMessagePrefix tags transcript entries that mirror ordinary room
	// chatter rather than direct /ai requests.
	chatMessagePrefix = "Chat message: "
)

const (
	roleSystem    = "system"
	roleUser      = "user"
	roleAssistant = "assistant"
)

// entry is one role-tagged transcript line.
type entry struct {
	role    string
	content string
}

// Manager holds the prompt and conversation transcript for every AI room.
type Manager struct {
	// mu protects prompts and history. It is never held across the
	// backend call.
	mu      sync.Mutex
	prompts map[string]string
	history map[string][]entry

	client *Client
	logger zerolog.Logger
}

// NewManager constructs a Manager using client for completions.
func NewManager(client *Client) *Manager {
	return &Manager{
		prompts: make(map[string]string),
		history: make(map[string][]entry),
		client:  client,
		logger:  logx.Logger().With().Str("component", "AIManager").Logger(),
	}
}

// CreateAIRoom registers a room's prompt and seeds its transcript with a
// single system entry.
func (m *Manager) CreateAIRoom(roomName, prompt string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompts[roomName] = prompt
	m.history[roomName] = []entry{{role: roleSystem, content: prompt}}

	m.logger.Info().Str("room", roomName).Msg("AI conversation registered.")
}

// IsAIRoom reports whether the room has a registered conversation.
func (m *Manager) IsAIRoom(roomName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, found := m.prompts[roomName]
	return found
}

// RemoveAIRoom drops the room's prompt and transcript.
func (m *Manager) RemoveAIRoom(roomName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.prompts, roomName)
	delete(m.history, roomName)
}

// AddUserMessage appends a user entry ("username: message") to the room's
// transcript. Unknown rooms are ignored.
func (m *Manager) AddUserMessage(roomName, username, message string) {
	m.appendEntry(roomName, entry{
		role:    roleUser,
		content: username + ": " + message,
	})
}

// AddNonUserMessage appends ordinary room chatter as a tagged system
// entry, so the model sees conversation context without mistaking it for
// a direct request.
func (m *Manager) AddNonUserMessage(roomName, username, message string) {
	m.appendEntry(roomName, entry{
		role:    roleSystem,
		content: chatMessagePrefix + username + " said: " + message,
	})
}

// NoteEvent appends a room event (member departures and the like) as a
// tagged system entry.
func (m *Manager) NoteEvent(roomName, text string) {
	m.appendEntry(roomName, entry{
		role:    roleSystem,
		content: chatMessagePrefix + text,
	})
}

// appendEntry adds one entry and trims the transcript to the bound,
// always retaining the original system entry at index 0.
func (m *Manager) appendEntry(roomName string, e entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	messages, found := m.history[roomName]
	if !found {
		return
	}

	messages = append(messages, e)

	if len(messages) > MaxHistoryMessages+1 {
		trimmed := make([]entry, 0, MaxHistoryMessages+1)
		trimmed = append(trimmed, messages[0])
		trimmed = append(trimmed, messages[len(messages)-MaxHistoryMessages:]...)
		messages = trimmed
	}

	m.history[roomName] = messages
}

// GetAIResponse renders the room's transcript into a single prompt,
// requests a completion, appends the reply as an assistant entry, and
// returns it prefixed with the bot's display name. The backend call
// happens outside the transcript lock; on failure the transcript is left
// exactly as committed (no partial entries).
func (m *Manager) GetAIResponse(ctx context.Context, roomName string) (string, *errs.CustomError) {
	m.mu.Lock()
	messages, found := m.history[roomName]
	if !found {
		m.mu.Unlock()
		return "", errs.NewError(errs.ErrAIRoomNotFound)
	}
	snapshot := make([]entry, len(messages))
	copy(snapshot, messages)
	m.mu.Unlock()

	prompt := buildConversationPrompt(snapshot)

	reply, err := m.client.Generate(ctx, prompt)
	if err != nil {
		m.logger.Error().Err(err).Str("room", roomName).Msg("Completion request failed.")
		return "", errs.NewError(errs.ErrAIBackend, err.Error())
	}

	m.appendEntry(roomName, entry{role: roleAssistant, content: reply})

	return BotName + ": " + reply, nil
}

// buildConversationPrompt renders the transcript: system instructions
// first, then chronological lines prefixed by speaker, ending with an
// open "Bot: " line for the model to complete.
func buildConversationPrompt(messages []entry) string {
	var prompt strings.Builder

	for _, message := range messages {
		switch message.role {
		case roleSystem:
			if rest, isChat := strings.CutPrefix(message.content, chatMessagePrefix); isChat {
				prompt.WriteString(rest)
				prompt.WriteString("\n")
			} else {
				prompt.WriteString("Instructions: ")
				prompt.WriteString(message.content)
				prompt.WriteString("\n\n")
			}
		case roleUser:
			prompt.WriteString(message.content)
			prompt.WriteString("\n")
		case roleAssistant:
			prompt.WriteString(BotName)
			prompt.WriteString(": ")
			prompt.WriteString(message.content)
			prompt.WriteString("\n")
		}
	}

	prompt.WriteString(BotName)
	prompt.WriteString(": ")

	return prompt.String()
}
