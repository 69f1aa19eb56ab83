package application

import (
	"context"
	"errors"
	"fmt"
)

// SealedSessionStore decorates a SessionStore so that the token pair is
// encrypted at rest. A token that no longer opens, because the secret changed
// or the stored value was tampered with, surfaces as ErrSnapshotCorrupt so
// Initialize degrades to an unauthenticated session.
type SealedSessionStore struct {
	inner  SessionStore
	secret string
	params SealParams
}

// NewSealedSessionStore wraps inner with at-rest token sealing keyed by secret.
func NewSealedSessionStore(inner SessionStore, secret string) *SealedSessionStore {
	return &SealedSessionStore{inner: inner, secret: secret, params: DefaultSealParams}
}

// Load retrieves and unseals the persisted snapshot.
func (s *SealedSessionStore) Load(ctx context.Context) (SessionSnapshot, error) {
	if s == nil || s.inner == nil {
		return SessionSnapshot{}, fmt.Errorf("sealed store not configured")
	}

	snapshot, err := s.inner.Load(ctx)
	if err != nil {
		return SessionSnapshot{}, err
	}

	access, err := OpenToken(s.secret, snapshot.AccessToken)
	if err != nil {
		return SessionSnapshot{}, sealLoadError(err)
	}
	refresh := ""
	if snapshot.RefreshToken != "" {
		refresh, err = OpenToken(s.secret, snapshot.RefreshToken)
		if err != nil {
			return SessionSnapshot{}, sealLoadError(err)
		}
	}

	snapshot.AccessToken = access
	snapshot.RefreshToken = refresh
	return snapshot, nil
}

// Save seals the token pair and persists the snapshot.
func (s *SealedSessionStore) Save(ctx context.Context, snapshot SessionSnapshot) error {
	if s == nil || s.inner == nil {
		return fmt.Errorf("sealed store not configured")
	}

	sealedAccess, err := SealToken(s.secret, snapshot.AccessToken, s.params)
	if err != nil {
		return err
	}
	sealedRefresh := ""
	if snapshot.RefreshToken != "" {
		sealedRefresh, err = SealToken(s.secret, snapshot.RefreshToken, s.params)
		if err != nil {
			return err
		}
	}

	snapshot.AccessToken = sealedAccess
	snapshot.RefreshToken = sealedRefresh
	return s.inner.Save(ctx, snapshot)
}

// Clear removes the persisted snapshot.
func (s *SealedSessionStore) Clear(ctx context.Context) error {
	if s == nil || s.inner == nil {
		return fmt.Errorf("sealed store not configured")
	}
	return s.inner.Clear(ctx)
}

func sealLoadError(err error) error {
	if errors.Is(err, ErrInvalidSealedToken) || errors.Is(err, ErrSealOpenFailed) {
		return fmt.Errorf("%w: %w", ErrSnapshotCorrupt, err)
	}
	return err
}
