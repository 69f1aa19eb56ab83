package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/roombooking/internal/persistence"
)

// CredentialRepository implements persistence.CredentialRepository over the
// session_state table.
type CredentialRepository struct {
	store *Store
}

// NewCredentialRepository creates a credential repository on the given store.
func NewCredentialRepository(store *Store) *CredentialRepository {
	return &CredentialRepository{store: store}
}

// SaveCredentials stores the credential set, replacing any previous values.
func (r *CredentialRepository) SaveCredentials(ctx context.Context, creds persistence.Credentials) error {
	if r == nil || r.store == nil || r.store.db == nil {
		return fmt.Errorf("credential repository is not open")
	}
	if strings.TrimSpace(creds.AccessToken) == "" {
		return fmt.Errorf("access token is required")
	}

	savedAt := creds.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}
	stamp := savedAt.UTC().Format(time.RFC3339)

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin credential save: %w", err)
	}

	upsert := `
		INSERT INTO session_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	entries := map[string]string{
		persistence.KeyAccessToken:  creds.AccessToken,
		persistence.KeyRefreshToken: creds.RefreshToken,
		persistence.KeyUserSnapshot: string(creds.UserSnapshot),
	}
	for key, value := range entries {
		if _, err := tx.ExecContext(ctx, upsert, key, value, stamp); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to save %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit credential save: %w", err)
	}
	return nil
}

// LoadCredentials returns the stored credential set, or ErrNotFound when no
// access token is present.
func (r *CredentialRepository) LoadCredentials(ctx context.Context) (persistence.Credentials, error) {
	if r == nil || r.store == nil || r.store.db == nil {
		return persistence.Credentials{}, fmt.Errorf("credential repository is not open")
	}

	rows, err := r.store.db.QueryContext(ctx, `SELECT key, value, updated_at FROM session_state`)
	if err != nil {
		return persistence.Credentials{}, fmt.Errorf("failed to load credentials: %w", err)
	}
	defer rows.Close()

	var creds persistence.Credentials
	found := false
	for rows.Next() {
		var key, value, updatedAt string
		if err := rows.Scan(&key, &value, &updatedAt); err != nil {
			return persistence.Credentials{}, fmt.Errorf("failed to scan credential row: %w", err)
		}
		switch key {
		case persistence.KeyAccessToken:
			creds.AccessToken = value
			found = value != ""
			if ts, parseErr := time.Parse(time.RFC3339, updatedAt); parseErr == nil {
				creds.SavedAt = ts
			}
		case persistence.KeyRefreshToken:
			creds.RefreshToken = value
		case persistence.KeyUserSnapshot:
			creds.UserSnapshot = []byte(value)
		}
	}
	if err := rows.Err(); err != nil {
		return persistence.Credentials{}, fmt.Errorf("failed to read credential rows: %w", err)
	}

	if !found {
		return persistence.Credentials{}, persistence.ErrNotFound
	}
	return creds, nil
}

// ClearCredentials removes every persisted credential key.
func (r *CredentialRepository) ClearCredentials(ctx context.Context) error {
	if r == nil || r.store == nil || r.store.db == nil {
		return fmt.Errorf("credential repository is not open")
	}
	_, err := r.store.db.ExecContext(ctx, `DELETE FROM session_state WHERE key IN (?, ?, ?)`,
		persistence.KeyAccessToken,
		persistence.KeyRefreshToken,
		persistence.KeyUserSnapshot,
	)
	if err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}
