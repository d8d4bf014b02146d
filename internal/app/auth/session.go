package auth

import (
	"sync"
	"time"

	"github.com/PedroMMarinho/FEUP-CPD/internal/pkg/randx"
)

// Session binds an opaque token to a username for a fixed validity window.
// A session is usable for resumption only while it is active and not yet
// expired; CurrentRoom lets a resumed connection land back in its room.
type Session struct {
	Token       string
	Username    string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Active      bool
	CurrentRoom string
}

// Expired reports whether the session's validity window has passed.
func (s Session) Expired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Resumable reports whether a TOKEN command may resume this session.
func (s Session) Resumable() bool {
	return s.Active && !s.Expired()
}

// SessionStore holds all issued sessions in memory, keyed by token.
// Sessions are stored and returned by value so callers never share a
// record with the store; mutations go through Update or the helpers.
type SessionStore struct {
	// mu protects the sessions map.
	mu sync.Mutex

	sessions map[string]Session

	// ttl is the fixed validity window applied at creation.
	ttl time.Duration
}

// NewSessionStore creates a SessionStore issuing sessions valid for ttl.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]Session),
		ttl:      ttl,
	}
}

// Create issues a fresh active session for username.
func (st *SessionStore) Create(username string) (Session, error) {
	token, err := randx.SessionToken()
	if err != nil {
		return Session{}, err
	}

	now := time.Now()
	session := Session{
		Token:     token,
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(st.ttl),
		Active:    true,
	}

	st.mu.Lock()
	st.sessions[token] = session
	st.mu.Unlock()

	return session, nil
}

// ByToken returns a copy of the session stored under token.
func (st *SessionStore) ByToken(token string) (Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	session, found := st.sessions[token]
	return session, found
}

// Update atomically replaces the record in the original token's slot.
// Used when a handler logs out to persist the final room/active state.
func (st *SessionStore) Update(token string, session Session) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, found := st.sessions[token]; found {
		st.sessions[token] = session
	}
}

// SetRoom records the room the session's holder currently occupies; an
// empty name clears the reference.
func (st *SessionStore) SetRoom(token, roomName string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if session, found := st.sessions[token]; found {
		session.CurrentRoom = roomName
		st.sessions[token] = session
	}
}

// Close marks the session inactive. The record stays in the map so a
// later TOKEN attempt gets a definitive "no longer active" answer.
func (st *SessionStore) Close(token string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if session, found := st.sessions[token]; found {
		session.Active = false
		st.sessions[token] = session
	}
}
