package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/roombooking/internal/api"
	"github.com/example/roombooking/internal/testfixtures"
)

type stubSessionStore struct {
	snapshot   SessionSnapshot
	hasData    bool
	loadErr    error
	saveErr    error
	clearErr   error
	saveCalls  int
	clearCalls int
}

func (s *stubSessionStore) Load(ctx context.Context) (SessionSnapshot, error) {
	if s.loadErr != nil {
		return SessionSnapshot{}, s.loadErr
	}
	if !s.hasData {
		return SessionSnapshot{}, ErrNotFound
	}
	return s.snapshot, nil
}

func (s *stubSessionStore) Save(ctx context.Context, snapshot SessionSnapshot) error {
	s.saveCalls++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.snapshot = snapshot
	s.hasData = true
	return nil
}

func (s *stubSessionStore) Clear(ctx context.Context) error {
	s.clearCalls++
	if s.clearErr != nil {
		return s.clearErr
	}
	s.snapshot = SessionSnapshot{}
	s.hasData = false
	return nil
}

type stubAuthenticator struct {
	loginCreds    api.Credentials
	loginErr      error
	loginCalls    int
	registerErr   error
	registerCalls int
	refreshPair   api.TokenPair
	refreshErr    error
	refreshCalls  int
	meUser        api.User
	meErr         error
}

func (a *stubAuthenticator) Login(ctx context.Context, username, password string) (api.Credentials, error) {
	a.loginCalls++
	if a.loginErr != nil {
		return api.Credentials{}, a.loginErr
	}
	return a.loginCreds, nil
}

func (a *stubAuthenticator) Register(ctx context.Context, input api.RegistrationInput) error {
	a.registerCalls++
	return a.registerErr
}

func (a *stubAuthenticator) RefreshToken(ctx context.Context, refresh string) (api.TokenPair, error) {
	a.refreshCalls++
	if a.refreshErr != nil {
		return api.TokenPair{}, a.refreshErr
	}
	return a.refreshPair, nil
}

func (a *stubAuthenticator) Me(ctx context.Context) (api.User, error) {
	if a.meErr != nil {
		return api.User{}, a.meErr
	}
	return a.meUser, nil
}

func TestSessionManagerInitialize(t *testing.T) {
	t.Parallel()

	t.Run("restores a persisted session", func(t *testing.T) {
		t.Parallel()
		user := testfixtures.NewUserFixture(testfixtures.WithUsername("restored"))
		store := &stubSessionStore{
			hasData: true,
			snapshot: SessionSnapshot{
				AccessToken:  "access-1",
				RefreshToken: "refresh-1",
				User:         user,
			},
		}
		manager := NewSessionManager(store, &stubAuthenticator{}, testfixtures.NewClock(time.Time{}).NowFunc())

		if err := manager.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize returned error: %v", err)
		}
		got, ok := manager.CurrentUser()
		if !ok {
			t.Fatal("expected a signed-in user after restore")
		}
		if got.Username != "restored" {
			t.Errorf("restored username = %q, want %q", got.Username, "restored")
		}
		if manager.AccessToken() != "access-1" {
			t.Errorf("AccessToken() = %q, want %q", manager.AccessToken(), "access-1")
		}
		if !manager.Initialized() {
			t.Error("Initialized() = false, want true")
		}
	})

	t.Run("empty store leaves the session signed out", func(t *testing.T) {
		t.Parallel()
		manager := NewSessionManager(&stubSessionStore{}, &stubAuthenticator{}, nil)

		if err := manager.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize returned error: %v", err)
		}
		if manager.IsAuthenticated() {
			t.Error("expected unauthenticated session for an empty store")
		}
		if !manager.Initialized() {
			t.Error("Initialized() = false, want true")
		}
	})

	t.Run("corrupt snapshot clears the store and degrades to signed out", func(t *testing.T) {
		t.Parallel()
		store := &stubSessionStore{loadErr: fmt.Errorf("%w: bad payload", ErrSnapshotCorrupt)}
		manager := NewSessionManager(store, &stubAuthenticator{}, nil)

		err := manager.Initialize(context.Background())
		if !errors.Is(err, ErrSnapshotCorrupt) {
			t.Fatalf("Initialize error = %v, want ErrSnapshotCorrupt", err)
		}
		if store.clearCalls != 1 {
			t.Errorf("store.Clear called %d times, want 1", store.clearCalls)
		}
		if manager.IsAuthenticated() {
			t.Error("expected unauthenticated session after corrupt snapshot")
		}
		if !manager.Initialized() {
			t.Error("Initialized() = false, want true even after a failed restore")
		}
	})

	t.Run("snapshot without an access token is discarded", func(t *testing.T) {
		t.Parallel()
		store := &stubSessionStore{
			hasData:  true,
			snapshot: SessionSnapshot{User: testfixtures.NewUserFixture()},
		}
		manager := NewSessionManager(store, &stubAuthenticator{}, nil)

		if err := manager.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize returned error: %v", err)
		}
		if manager.IsAuthenticated() {
			t.Error("expected unauthenticated session for a tokenless snapshot")
		}
		if store.clearCalls != 1 {
			t.Errorf("store.Clear called %d times, want 1", store.clearCalls)
		}
	})
}

func TestSessionManagerLogin(t *testing.T) {
	t.Parallel()

	t.Run("persists credentials and exposes the user", func(t *testing.T) {
		t.Parallel()
		user := testfixtures.NewUserFixture(testfixtures.WithUsername("alice"))
		store := &stubSessionStore{}
		auth := &stubAuthenticator{loginCreds: api.Credentials{
			Access:  "access-1",
			Refresh: "refresh-1",
			User:    user,
		}}
		clock := testfixtures.NewClock(time.Time{})
		manager := NewSessionManager(store, auth, clock.NowFunc())

		got, err := manager.Login(context.Background(), "alice", "secret")
		if err != nil {
			t.Fatalf("Login returned error: %v", err)
		}
		if got.Username != "alice" {
			t.Errorf("Login user = %q, want %q", got.Username, "alice")
		}
		if !store.hasData {
			t.Fatal("expected credentials to be persisted")
		}
		if store.snapshot.AccessToken != "access-1" || store.snapshot.RefreshToken != "refresh-1" {
			t.Errorf("persisted tokens = (%q, %q), want (access-1, refresh-1)",
				store.snapshot.AccessToken, store.snapshot.RefreshToken)
		}
		if !store.snapshot.SavedAt.Equal(testfixtures.ReferenceTime()) {
			t.Errorf("SavedAt = %v, want %v", store.snapshot.SavedAt, testfixtures.ReferenceTime())
		}
		if !manager.IsAuthenticated() {
			t.Error("IsAuthenticated() = false after successful login")
		}
	})

	t.Run("rejected credentials leave no trace", func(t *testing.T) {
		t.Parallel()
		store := &stubSessionStore{}
		auth := &stubAuthenticator{loginErr: &api.Error{
			Kind:       api.KindUnauthorized,
			StatusCode: 401,
			Message:    "no active account found with the given credentials",
		}}
		manager := NewSessionManager(store, auth, nil)

		_, err := manager.Login(context.Background(), "alice", "wrong")
		if api.KindOf(err) != api.KindUnauthorized {
			t.Fatalf("Login error kind = %q, want %q", api.KindOf(err), api.KindUnauthorized)
		}
		if store.hasData || store.saveCalls != 0 {
			t.Error("failed login must not persist anything")
		}
		if _, ok := manager.CurrentUser(); ok {
			t.Error("failed login must not report a current user")
		}
		if manager.AccessToken() != "" {
			t.Error("failed login must not retain an access token")
		}
	})

	t.Run("failed persist does not authenticate", func(t *testing.T) {
		t.Parallel()
		store := &stubSessionStore{saveErr: errors.New("disk full")}
		auth := &stubAuthenticator{loginCreds: api.Credentials{
			Access: "access-1",
			User:   testfixtures.NewUserFixture(),
		}}
		manager := NewSessionManager(store, auth, nil)

		if _, err := manager.Login(context.Background(), "alice", "secret"); err == nil {
			t.Fatal("expected error when the store rejects the snapshot")
		}
		if manager.IsAuthenticated() {
			t.Error("session must stay signed out when persistence fails")
		}
	})
}

func TestSessionManagerRegister(t *testing.T) {
	t.Parallel()

	t.Run("password mismatch fails locally without a request", func(t *testing.T) {
		t.Parallel()
		auth := &stubAuthenticator{}
		manager := NewSessionManager(&stubSessionStore{}, auth, nil)

		err := manager.Register(context.Background(), api.RegistrationInput{
			Username:  "bob",
			Password:  "one",
			Password2: "two",
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("Register error = %v, want *ValidationError", err)
		}
		if vErr.FieldErrors["password2"] == "" {
			t.Errorf("expected a password2 field error, got %v", vErr.FieldErrors)
		}
		if auth.registerCalls != 0 {
			t.Errorf("authenticator called %d times, want 0", auth.registerCalls)
		}
	})

	t.Run("valid input reaches the service and does not sign in", func(t *testing.T) {
		t.Parallel()
		auth := &stubAuthenticator{}
		manager := NewSessionManager(&stubSessionStore{}, auth, nil)

		err := manager.Register(context.Background(), api.RegistrationInput{
			Username:  "bob",
			Password:  "secret",
			Password2: "secret",
			Role:      api.RoleStudent,
		})
		if err != nil {
			t.Fatalf("Register returned error: %v", err)
		}
		if auth.registerCalls != 1 {
			t.Errorf("authenticator called %d times, want 1", auth.registerCalls)
		}
		if manager.IsAuthenticated() {
			t.Error("registration must not authenticate the session")
		}
	})

	t.Run("unknown role is rejected locally", func(t *testing.T) {
		t.Parallel()
		auth := &stubAuthenticator{}
		manager := NewSessionManager(&stubSessionStore{}, auth, nil)

		err := manager.Register(context.Background(), api.RegistrationInput{
			Username:  "bob",
			Password:  "secret",
			Password2: "secret",
			Role:      api.Role("superuser"),
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("Register error = %v, want *ValidationError", err)
		}
		if auth.registerCalls != 0 {
			t.Errorf("authenticator called %d times, want 0", auth.registerCalls)
		}
	})
}

func TestSessionManagerLogout(t *testing.T) {
	t.Parallel()

	t.Run("clears store and memory", func(t *testing.T) {
		t.Parallel()
		store := &stubSessionStore{}
		auth := &stubAuthenticator{loginCreds: api.Credentials{
			Access:  "access-1",
			Refresh: "refresh-1",
			User:    testfixtures.NewUserFixture(),
		}}
		manager := NewSessionManager(store, auth, nil)
		if _, err := manager.Login(context.Background(), "alice", "secret"); err != nil {
			t.Fatalf("Login returned error: %v", err)
		}

		manager.Logout(context.Background())

		if store.hasData {
			t.Error("expected persisted session to be cleared")
		}
		if manager.IsAuthenticated() {
			t.Error("expected unauthenticated session after logout")
		}
		if manager.AccessToken() != "" {
			t.Error("expected access token to be dropped")
		}
	})

	t.Run("storage failure still clears memory", func(t *testing.T) {
		t.Parallel()
		store := &stubSessionStore{clearErr: errors.New("locked")}
		auth := &stubAuthenticator{loginCreds: api.Credentials{
			Access: "access-1",
			User:   testfixtures.NewUserFixture(),
		}}
		manager := NewSessionManager(store, auth, nil)
		if _, err := manager.Login(context.Background(), "alice", "secret"); err != nil {
			t.Fatalf("Login returned error: %v", err)
		}

		manager.Logout(context.Background())

		if manager.IsAuthenticated() {
			t.Error("logout must clear the in-memory session even when storage fails")
		}
	})
}

func TestSessionManagerRefresh(t *testing.T) {
	t.Parallel()

	t.Run("replaces the token pair and persists it", func(t *testing.T) {
		t.Parallel()
		store := &stubSessionStore{}
		auth := &stubAuthenticator{
			loginCreds: api.Credentials{
				Access:  "access-1",
				Refresh: "refresh-1",
				User:    testfixtures.NewUserFixture(),
			},
			refreshPair: api.TokenPair{Access: "access-2", Refresh: "refresh-2"},
		}
		manager := NewSessionManager(store, auth, nil)
		if _, err := manager.Login(context.Background(), "alice", "secret"); err != nil {
			t.Fatalf("Login returned error: %v", err)
		}

		if err := manager.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh returned error: %v", err)
		}
		if manager.AccessToken() != "access-2" {
			t.Errorf("AccessToken() = %q, want %q", manager.AccessToken(), "access-2")
		}
		if store.snapshot.RefreshToken != "refresh-2" {
			t.Errorf("persisted refresh token = %q, want %q", store.snapshot.RefreshToken, "refresh-2")
		}
	})

	t.Run("keeps the old refresh token when the service omits one", func(t *testing.T) {
		t.Parallel()
		store := &stubSessionStore{}
		auth := &stubAuthenticator{
			loginCreds: api.Credentials{
				Access:  "access-1",
				Refresh: "refresh-1",
				User:    testfixtures.NewUserFixture(),
			},
			refreshPair: api.TokenPair{Access: "access-2"},
		}
		manager := NewSessionManager(store, auth, nil)
		if _, err := manager.Login(context.Background(), "alice", "secret"); err != nil {
			t.Fatalf("Login returned error: %v", err)
		}

		if err := manager.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh returned error: %v", err)
		}
		if store.snapshot.RefreshToken != "refresh-1" {
			t.Errorf("persisted refresh token = %q, want the original refresh-1", store.snapshot.RefreshToken)
		}
	})

	t.Run("without a session reports ErrNoRefreshToken", func(t *testing.T) {
		t.Parallel()
		manager := NewSessionManager(&stubSessionStore{}, &stubAuthenticator{}, nil)

		if err := manager.Refresh(context.Background()); !errors.Is(err, ErrNoRefreshToken) {
			t.Fatalf("Refresh error = %v, want ErrNoRefreshToken", err)
		}
	})
}

func TestSessionManagerMe(t *testing.T) {
	t.Parallel()

	t.Run("updates the cached user", func(t *testing.T) {
		t.Parallel()
		original := testfixtures.NewUserFixture(testfixtures.WithUsername("alice"))
		updated := original
		updated.Department = "Mathematics"
		store := &stubSessionStore{}
		auth := &stubAuthenticator{
			loginCreds: api.Credentials{Access: "access-1", Refresh: "refresh-1", User: original},
			meUser:     updated,
		}
		manager := NewSessionManager(store, auth, nil)
		if _, err := manager.Login(context.Background(), "alice", "secret"); err != nil {
			t.Fatalf("Login returned error: %v", err)
		}

		got, err := manager.Me(context.Background())
		if err != nil {
			t.Fatalf("Me returned error: %v", err)
		}
		if got.Department != "Mathematics" {
			t.Errorf("Me department = %q, want %q", got.Department, "Mathematics")
		}
		cached, _ := manager.CurrentUser()
		if cached.Department != "Mathematics" {
			t.Errorf("cached department = %q, want the refreshed record", cached.Department)
		}
		if store.snapshot.User.Department != "Mathematics" {
			t.Errorf("persisted department = %q, want the refreshed record", store.snapshot.User.Department)
		}
	})

	t.Run("requires an authenticated session", func(t *testing.T) {
		t.Parallel()
		manager := NewSessionManager(&stubSessionStore{}, &stubAuthenticator{}, nil)

		if _, err := manager.Me(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
			t.Fatalf("Me error = %v, want ErrNotAuthenticated", err)
		}
	})
}

func TestSessionManagerPrincipal(t *testing.T) {
	t.Parallel()

	auth := &stubAuthenticator{loginCreds: api.Credentials{
		Access: "access-1",
		User:   testfixtures.NewUserFixture(testfixtures.WithUserID(42), testfixtures.WithRole(api.RoleAdmin)),
	}}
	manager := NewSessionManager(&stubSessionStore{}, auth, nil)

	if _, ok := manager.Principal(); ok {
		t.Fatal("expected no principal before login")
	}
	if _, err := manager.Login(context.Background(), "root", "secret"); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	principal, ok := manager.Principal()
	if !ok {
		t.Fatal("expected a principal after login")
	}
	if principal.UserID != 42 {
		t.Errorf("principal.UserID = %d, want 42", principal.UserID)
	}
	if !principal.IsAdmin() {
		t.Error("principal.IsAdmin() = false, want true")
	}
}
