/*
Package auth implements the credential and session store.

Credentials are username to bcrypt-hash pairs behind the CredentialStore
interface. The default backend is a flat file of "username:hash" lines,
loaded fully into memory at startup and appended on registration; an
alternative Postgres backend lives in internal/app/db.
*/
package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/PedroMMarinho/FEUP-CPD/internal/pkg/logx"
)

// ErrDuplicateUser is returned by CredentialStore.Insert when the username
// is already registered. Every backend maps its own conflict signal to it.
var ErrDuplicateUser = errors.New("username already exists")

// CredentialStore persists username to password-hash pairs.
// Insert must be atomic with respect to concurrent inserts of the same
// username: exactly one caller wins, the rest get ErrDuplicateUser.
type CredentialStore interface {
	// Lookup returns the stored hash for username, or found == false.
	Lookup(ctx context.Context, username string) (hash string, found bool, err error)

	// Insert stores a new credential record.
	Insert(ctx context.Context, username, hash string) error
}

// FileStore is the flat-file CredentialStore backend.
type FileStore struct {
	// mu serializes the check-then-append sequence in Insert.
	mu sync.Mutex

	// creds caches every record loaded from the file.
	creds map[string]string

	// file is the backing file, held open in append mode.
	file *os.File

	path string
}

// NewFileStore opens (creating if absent) the credential file at path and
// loads all existing records into memory.
func NewFileStore(path string) (*FileStore, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential file %s: %w", path, err)
	}

	s := &FileStore{
		creds: make(map[string]string),
		file:  file,
		path:  path,
	}

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			logx.Warn("Skipping malformed credential record",
				"path", path,
				"line", lineNo,
			)
			continue
		}

		s.creds[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}

	if err := scanner.Err(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read credential file %s: %w", path, err)
	}

	logx.Info("Credential file loaded", "path", path, "users", len(s.creds))

	return s, nil
}

// Lookup returns the cached hash for username.
func (s *FileStore) Lookup(_ context.Context, username string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash, found := s.creds[username]
	return hash, found, nil
}

// Insert appends a "username:hash" line and updates the cache. The check
// and the append happen under one lock, so concurrent registrations of
// the same username resolve to exactly one winner.
func (s *FileStore) Insert(_ context.Context, username, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.creds[username]; exists {
		return ErrDuplicateUser
	}

	if _, err := fmt.Fprintf(s.file, "%s:%s\n", username, hash); err != nil {
		return fmt.Errorf("failed to append credential record: %w", err)
	}

	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync credential file: %w", err)
	}

	s.creds[username] = hash
	return nil
}

// Close releases the backing file handle.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.file.Close()
}
