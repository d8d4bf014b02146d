package auth

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PedroMMarinho/FEUP-CPD/internal/pkg/errs"
)

func newTestManager(t *testing.T, ttl time.Duration) *Manager {
	t.Helper()

	store, err := NewFileStore(filepath.Join(t.TempDir(), "users.txt"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return NewManager(store, ttl)
}

func TestRegisterAndAuthenticate(t *testing.T) {
	m := newTestManager(t, time.Hour)
	ctx := context.Background()

	session, cerr := m.Register(ctx, "alice", "s3cret")
	if cerr != nil {
		t.Fatalf("Register: %v", cerr)
	}
	if session.Token == "" || session.Username != "alice" || !session.Active {
		t.Fatalf("Register session = %+v, want active session for alice", session)
	}

	if _, cerr := m.Authenticate(ctx, "alice", "s3cret"); cerr != nil {
		t.Fatalf("Authenticate with correct password: %v", cerr)
	}

	// Wrong password and unknown user must be indistinguishable.
	_, wrongPass := m.Authenticate(ctx, "alice", "nope")
	_, unknownUser := m.Authenticate(ctx, "mallory", "nope")

	if wrongPass == nil || unknownUser == nil {
		t.Fatal("Authenticate accepted bad credentials")
	}
	if wrongPass.Code != errs.ErrInvalidCredentials || unknownUser.Code != wrongPass.Code {
		t.Fatalf("error codes = %d and %d, want both %d",
			wrongPass.Code, unknownUser.Code, errs.ErrInvalidCredentials)
	}
}

func TestRegisterRejectsInvalidUsernames(t *testing.T) {
	m := newTestManager(t, time.Hour)
	ctx := context.Background()

	cases := []struct {
		name     string
		username string
	}{
		{"empty", ""},
		{"whitespace", "ali ce"},
		{"tab", "ali\tce"},
		{"colon delimiter", "ali:ce"},
		{"too long", strings.Repeat("a", MaxUsernameLength+1)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, cerr := m.Register(ctx, tc.username, "pw")
			if cerr == nil || cerr.Code != errs.ErrInvalidUsername {
				t.Fatalf("Register(%q) error = %v, want code %d", tc.username, cerr, errs.ErrInvalidUsername)
			}
		})
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	m := newTestManager(t, time.Hour)
	ctx := context.Background()

	if _, cerr := m.Register(ctx, "bob", "pw"); cerr != nil {
		t.Fatalf("first Register: %v", cerr)
	}

	_, cerr := m.Register(ctx, "bob", "other")
	if cerr == nil || cerr.Code != errs.ErrUserAlreadyExists {
		t.Fatalf("second Register error = %v, want code %d", cerr, errs.ErrUserAlreadyExists)
	}
}

func TestSessionLifecycle(t *testing.T) {
	m := newTestManager(t, time.Hour)

	session, cerr := m.Register(context.Background(), "dana", "pw")
	if cerr != nil {
		t.Fatalf("Register: %v", cerr)
	}

	stored, found := m.SessionByToken(session.Token)
	if !found || !stored.Resumable() {
		t.Fatalf("SessionByToken = (%+v, %v), want resumable session", stored, found)
	}

	m.Sessions().SetRoom(session.Token, "general")
	stored, _ = m.SessionByToken(session.Token)
	if stored.CurrentRoom != "general" {
		t.Fatalf("CurrentRoom = %q, want general", stored.CurrentRoom)
	}

	// A closed session stays in the store but is no longer resumable.
	m.Sessions().Close(session.Token)
	stored, found = m.SessionByToken(session.Token)
	if !found {
		t.Fatal("closed session disappeared from the store")
	}
	if stored.Resumable() {
		t.Fatal("closed session still resumable")
	}

	if _, found := m.SessionByToken("no-such-token"); found {
		t.Fatal("SessionByToken found an unknown token")
	}
}

func TestSessionExpiry(t *testing.T) {
	m := newTestManager(t, 20*time.Millisecond)

	session, cerr := m.Register(context.Background(), "erin", "pw")
	if cerr != nil {
		t.Fatalf("Register: %v", cerr)
	}

	if !session.Resumable() {
		t.Fatal("fresh session not resumable")
	}

	time.Sleep(50 * time.Millisecond)

	stored, found := m.SessionByToken(session.Token)
	if !found {
		t.Fatal("expired session disappeared from the store")
	}
	if stored.Resumable() {
		t.Fatal("expired session still resumable")
	}
}

func TestMarkLoggedInIsExclusive(t *testing.T) {
	m := newTestManager(t, time.Hour)

	if !m.MarkLoggedIn("frank") {
		t.Fatal("first MarkLoggedIn refused")
	}
	if m.MarkLoggedIn("frank") {
		t.Fatal("second MarkLoggedIn accepted while first still holds the slot")
	}
	if !m.IsLoggedIn("frank") {
		t.Fatal("IsLoggedIn = false while slot held")
	}

	m.MarkLoggedOut("frank")

	if m.IsLoggedIn("frank") {
		t.Fatal("IsLoggedIn = true after MarkLoggedOut")
	}
	if !m.MarkLoggedIn("frank") {
		t.Fatal("MarkLoggedIn refused after slot release")
	}
}
