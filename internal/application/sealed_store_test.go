package application

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/example/roombooking/internal/testfixtures"
)

func newFastSealedStore(inner SessionStore, secret string) *SealedSessionStore {
	store := NewSealedSessionStore(inner, secret)
	store.params = fastSealParams
	return store
}

func TestSealedSessionStoreRoundTrip(t *testing.T) {
	t.Parallel()

	inner := &stubSessionStore{}
	store := newFastSealedStore(inner, "state-secret")

	saved := SessionSnapshot{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		User:         testfixtures.NewUserFixture(testfixtures.WithUsername("alice")),
	}
	if err := store.Save(context.Background(), saved); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	if inner.snapshot.AccessToken == "access-1" {
		t.Error("access token persisted in the clear")
	}
	if !strings.HasPrefix(inner.snapshot.AccessToken, "$roomseal$") {
		t.Errorf("persisted access token %q is not sealed", inner.snapshot.AccessToken)
	}
	if inner.snapshot.RefreshToken == "refresh-1" {
		t.Error("refresh token persisted in the clear")
	}

	loaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.AccessToken != "access-1" || loaded.RefreshToken != "refresh-1" {
		t.Errorf("Load tokens = (%q, %q), want the originals", loaded.AccessToken, loaded.RefreshToken)
	}
	if loaded.User.Username != "alice" {
		t.Errorf("Load user = %q, want %q", loaded.User.Username, "alice")
	}
}

func TestSealedSessionStoreSecretChange(t *testing.T) {
	t.Parallel()

	inner := &stubSessionStore{}
	if err := newFastSealedStore(inner, "old-secret").Save(context.Background(), SessionSnapshot{
		AccessToken: "access-1",
	}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	_, err := newFastSealedStore(inner, "new-secret").Load(context.Background())
	if !errors.Is(err, ErrSnapshotCorrupt) {
		t.Fatalf("Load error = %v, want ErrSnapshotCorrupt", err)
	}
}

func TestSealedSessionStoreTamperedValue(t *testing.T) {
	t.Parallel()

	inner := &stubSessionStore{
		hasData:  true,
		snapshot: SessionSnapshot{AccessToken: "plaintext-from-an-older-release"},
	}
	store := newFastSealedStore(inner, "state-secret")

	_, err := store.Load(context.Background())
	if !errors.Is(err, ErrSnapshotCorrupt) {
		t.Fatalf("Load error = %v, want ErrSnapshotCorrupt", err)
	}
}

func TestSealedSessionStoreEmptyStore(t *testing.T) {
	t.Parallel()

	store := newFastSealedStore(&stubSessionStore{}, "state-secret")
	if _, err := store.Load(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load error = %v, want ErrNotFound", err)
	}

	if err := store.Clear(context.Background()); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}
}

func TestSealedSessionStoreInitializeDegrades(t *testing.T) {
	t.Parallel()

	inner := &stubSessionStore{}
	if err := newFastSealedStore(inner, "old-secret").Save(context.Background(), SessionSnapshot{
		AccessToken: "access-1",
		User:        testfixtures.NewUserFixture(),
	}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	manager := NewSessionManager(newFastSealedStore(inner, "new-secret"), &stubAuthenticator{}, nil)
	err := manager.Initialize(context.Background())
	if !errors.Is(err, ErrSnapshotCorrupt) {
		t.Fatalf("Initialize error = %v, want ErrSnapshotCorrupt", err)
	}
	if manager.IsAuthenticated() {
		t.Error("expected unauthenticated session after an unopenable snapshot")
	}
	if inner.hasData {
		t.Error("expected the unreadable snapshot to be cleared")
	}
	if !manager.Initialized() {
		t.Error("Initialized() = false, want true")
	}
}
