package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PedroMMarinho/FEUP-CPD/internal/app/auth"
)

// CredentialStore is the Postgres-backed auth.CredentialStore. Uniqueness
// is enforced by the primary key, so concurrent inserts of the same
// username resolve in the database rather than under a process lock.
type CredentialStore struct {
	pool *pgxpool.Pool
}

// NewCredentialStore wraps an initialized pool.
func NewCredentialStore(pool *pgxpool.Pool) *CredentialStore {
	return &CredentialStore{pool: pool}
}

// Lookup returns the stored password hash for username.
func (s *CredentialStore) Lookup(ctx context.Context, username string) (string, bool, error) {
	var hash string
	err := s.pool.QueryRow(ctx,
		`SELECT password_hash FROM users WHERE username = $1`,
		username,
	).Scan(&hash)

	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up credential record: %w", err)
	}

	return hash, true, nil
}

// Insert stores a new credential record, mapping a unique violation to
// auth.ErrDuplicateUser.
func (s *CredentialStore) Insert(ctx context.Context, username, hash string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (username, password_hash) VALUES ($1, $2)`,
		username, hash,
	)

	if isUniqueViolation(err) {
		return auth.ErrDuplicateUser
	}
	if err != nil {
		return fmt.Errorf("failed to insert credential record: %w", err)
	}

	return nil
}
