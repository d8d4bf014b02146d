package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/PedroMMarinho/FEUP-CPD/internal/pkg/errs"
	"github.com/PedroMMarinho/FEUP-CPD/internal/pkg/logx"
)

// MaxUsernameLength bounds usernames so room listings and broadcast lines
// stay readable.
const MaxUsernameLength = 32

// Manager ties the credential store, the session store, and the set of
// currently logged-in usernames together behind the operations the
// connection handlers need.
type Manager struct {
	creds    CredentialStore
	sessions *SessionStore

	// mu protects the loggedIn set. It is never held across a store call.
	mu       sync.Mutex
	loggedIn map[string]struct{}

	logger zerolog.Logger
}

// NewManager constructs a Manager issuing sessions valid for sessionTTL.
func NewManager(creds CredentialStore, sessionTTL time.Duration) *Manager {
	return &Manager{
		creds:    creds,
		sessions: NewSessionStore(sessionTTL),
		loggedIn: make(map[string]struct{}),
		logger:   logx.Logger().With().Str("component", "AuthManager").Logger(),
	}
}

// Register creates a new credential record and issues a fresh session.
// It fails when the username is invalid (empty, too long, whitespace, or
// containing the reserved ':' delimiter) or already taken. The underlying
// store makes the check-then-insert atomic.
func (m *Manager) Register(ctx context.Context, username, password string) (Session, *errs.CustomError) {
	if !validUsername(username) {
		return Session{}, errs.NewError(errs.ErrInvalidUsername)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to hash password during registration.")
		return Session{}, errs.NewError(errs.ErrUnknown)
	}

	if err := m.creds.Insert(ctx, username, string(hash)); err != nil {
		if errors.Is(err, ErrDuplicateUser) {
			m.logger.Warn().Str("username", username).Msg("Registration conflict: username already exists.")
			return Session{}, errs.NewError(errs.ErrUserAlreadyExists)
		}

		m.logger.Error().Err(err).Str("username", username).Msg("Failed to persist credential record.")
		return Session{}, errs.NewError(errs.ErrUnknown)
	}

	session, err := m.sessions.Create(username)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to issue session after registration.")
		return Session{}, errs.NewError(errs.ErrUnknown)
	}

	m.logger.Info().Str("username", username).Msg("User registered.")
	return session, nil
}

// Authenticate verifies the supplied credentials and issues a fresh
// session. Unknown username and wrong password are deliberately
// indistinguishable to the caller.
func (m *Manager) Authenticate(ctx context.Context, username, password string) (Session, *errs.CustomError) {
	hash, found, err := m.creds.Lookup(ctx, username)
	if err != nil {
		m.logger.Error().Err(err).Str("username", username).Msg("Credential lookup failed.")
		return Session{}, errs.NewError(errs.ErrUnknown)
	}

	if !found {
		return Session{}, errs.NewError(errs.ErrInvalidCredentials)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return Session{}, errs.NewError(errs.ErrInvalidCredentials)
	}

	session, err := m.sessions.Create(username)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to issue session after login.")
		return Session{}, errs.NewError(errs.ErrUnknown)
	}

	return session, nil
}

// SessionByToken returns the session stored under token, if any.
func (m *Manager) SessionByToken(token string) (Session, bool) {
	return m.sessions.ByToken(token)
}

// UpdateSession atomically replaces the session record under token.
func (m *Manager) UpdateSession(token string, session Session) {
	m.sessions.Update(token, session)
}

// Sessions exposes the session store for room/active-flag updates.
func (m *Manager) Sessions() *SessionStore {
	return m.sessions
}

// MarkLoggedIn atomically records username as logged in. It returns false
// when the username already holds a live connection, in which case the
// caller must refuse the login or token resume.
func (m *Manager) MarkLoggedIn(username string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, active := m.loggedIn[username]; active {
		return false
	}

	m.loggedIn[username] = struct{}{}
	return true
}

// MarkLoggedOut retracts the username's login presence.
func (m *Manager) MarkLoggedOut(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.loggedIn, username)
}

// IsLoggedIn reports whether the username holds a live connection.
func (m *Manager) IsLoggedIn(username string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, active := m.loggedIn[username]
	return active
}

// validUsername rejects names the credential file and the line protocol
// cannot represent: the ':' record delimiter and any whitespace.
func validUsername(username string) bool {
	if username == "" || utf8.RuneCountInString(username) > MaxUsernameLength {
		return false
	}

	if strings.ContainsAny(username, ": \t\r\n") {
		return false
	}

	return true
}
