package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/example/roombooking/internal/api"
)

// SessionStore persists the session snapshot across process restarts. Load
// returns ErrNotFound when no session has been saved, and ErrSnapshotCorrupt
// when saved state exists but cannot be decoded.
type SessionStore interface {
	Load(ctx context.Context) (SessionSnapshot, error)
	Save(ctx context.Context, snapshot SessionSnapshot) error
	Clear(ctx context.Context) error
}

// Authenticator exposes the authentication endpoints of the booking service.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (api.Credentials, error)
	Register(ctx context.Context, input api.RegistrationInput) error
	RefreshToken(ctx context.Context, refresh string) (api.TokenPair, error)
	Me(ctx context.Context) (api.User, error)
}

// SessionManager owns the single current-user identity and the credential
// pair authorizing requests to the booking service. It is an explicit,
// injectable object; independent instances carry independent sessions.
type SessionManager struct {
	store  SessionStore
	auth   Authenticator
	now    func() time.Time
	logger *slog.Logger

	mu          sync.RWMutex
	user        *api.User
	access      string
	refresh     string
	initialized bool
}

// NewSessionManager constructs a SessionManager with the provided dependencies.
func NewSessionManager(store SessionStore, auth Authenticator, now func() time.Time) *SessionManager {
	return NewSessionManagerWithLogger(store, auth, now, nil)
}

// NewSessionManagerWithLogger constructs a SessionManager with a specified logger.
func NewSessionManagerWithLogger(store SessionStore, auth Authenticator, now func() time.Time, logger *slog.Logger) *SessionManager {
	if now == nil {
		now = time.Now
	}
	return &SessionManager{
		store:  store,
		auth:   auth,
		now:    now,
		logger: defaultLogger(logger),
	}
}

func (m *SessionManager) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, m.logger, "SessionManager", operation, attrs...)
}

// Initialize restores a previously persisted session, if any. A snapshot that
// cannot be decoded clears all persisted credentials and leaves the session
// unauthenticated. Initialization always completes: after Initialize returns,
// Initialized reports true regardless of outcome.
func (m *SessionManager) Initialize(ctx context.Context) (err error) {
	if m == nil {
		return fmt.Errorf("SessionManager is nil")
	}

	logger := m.loggerWith(ctx, "Initialize")
	defer func() {
		m.mu.Lock()
		m.initialized = true
		m.mu.Unlock()
		if err != nil {
			logger.ErrorContext(ctx, "session restore failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "session initialized", "authenticated", m.IsAuthenticated())
	}()

	if m.store == nil {
		return nil
	}

	snapshot, loadErr := m.store.Load(ctx)
	if loadErr != nil {
		if errors.Is(loadErr, ErrNotFound) {
			return nil
		}
		// Stale or unreadable state degrades to an unauthenticated session
		// rather than blocking startup.
		if clearErr := m.store.Clear(ctx); clearErr != nil {
			logger.ErrorContext(ctx, "failed to clear corrupt session state", "error", clearErr)
		}
		err = loadErr
		return err
	}

	if strings.TrimSpace(snapshot.AccessToken) == "" {
		if clearErr := m.store.Clear(ctx); clearErr != nil {
			logger.ErrorContext(ctx, "failed to clear incomplete session state", "error", clearErr)
		}
		return nil
	}

	user := snapshot.User
	m.mu.Lock()
	m.user = &user
	m.access = snapshot.AccessToken
	m.refresh = snapshot.RefreshToken
	m.mu.Unlock()
	return nil
}

// Login authenticates against the booking service and persists the issued
// credentials. On failure no persisted or in-memory state is mutated.
func (m *SessionManager) Login(ctx context.Context, username, password string) (user api.User, err error) {
	if m == nil {
		err = fmt.Errorf("SessionManager is nil")
		return
	}
	if m.auth == nil {
		err = fmt.Errorf("authenticator not configured")
		return
	}

	username = strings.TrimSpace(username)
	logger := m.loggerWith(ctx, "Login", "username", username)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "login failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", user.ID, "role", user.Role).InfoContext(ctx, "login succeeded")
	}()

	creds, err := m.auth.Login(ctx, username, password)
	if err != nil {
		return api.User{}, err
	}

	snapshot := SessionSnapshot{
		AccessToken:  creds.Access,
		RefreshToken: creds.Refresh,
		User:         creds.User,
		SavedAt:      m.now().UTC(),
	}
	if m.store != nil {
		if err = m.store.Save(ctx, snapshot); err != nil {
			return api.User{}, err
		}
	}

	restored := creds.User
	m.mu.Lock()
	m.user = &restored
	m.access = creds.Access
	m.refresh = creds.Refresh
	m.mu.Unlock()

	return creds.User, nil
}

// Register forwards a registration payload to the booking service. The
// password confirmation is checked locally first; on mismatch no request is
// made. Registration does not authenticate the new account.
func (m *SessionManager) Register(ctx context.Context, input api.RegistrationInput) (err error) {
	if m == nil {
		return fmt.Errorf("SessionManager is nil")
	}
	if m.auth == nil {
		return fmt.Errorf("authenticator not configured")
	}

	logger := m.loggerWith(ctx, "Register", "username", strings.TrimSpace(input.Username))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "registration failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "registration submitted")
	}()

	vErr := &ValidationError{}
	if strings.TrimSpace(input.Username) == "" {
		vErr.add("username", "username is required")
	}
	if input.Password == "" {
		vErr.add("password", "password is required")
	}
	if input.Password != input.Password2 {
		vErr.add("password2", "passwords do not match")
	}
	if input.Role != "" && !input.Role.Valid() {
		vErr.add("role", "unknown role")
	}
	if vErr.HasErrors() {
		err = vErr
		return err
	}

	return m.auth.Register(ctx, input)
}

// Logout clears the persisted credentials and the in-memory session. It never
// fails: a storage error is logged and the in-memory state is cleared anyway.
func (m *SessionManager) Logout(ctx context.Context) {
	if m == nil {
		return
	}

	logger := m.loggerWith(ctx, "Logout")
	if m.store != nil {
		if err := m.store.Clear(ctx); err != nil {
			logger.ErrorContext(ctx, "failed to clear persisted session", "error", err)
		}
	}

	m.mu.Lock()
	m.user = nil
	m.access = ""
	m.refresh = ""
	m.mu.Unlock()
	logger.InfoContext(ctx, "session cleared")
}

// Refresh exchanges the stored refresh token for a new token pair. It is an
// explicit operation for callers whose authorized request failed with an
// authentication error; nothing schedules it automatically.
func (m *SessionManager) Refresh(ctx context.Context) (err error) {
	if m == nil {
		return fmt.Errorf("SessionManager is nil")
	}
	if m.auth == nil {
		return fmt.Errorf("authenticator not configured")
	}

	m.mu.RLock()
	refresh := m.refresh
	user := m.user
	m.mu.RUnlock()

	logger := m.loggerWith(ctx, "Refresh")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "token refresh failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "token refreshed")
	}()

	if refresh == "" || user == nil {
		err = ErrNoRefreshToken
		return err
	}

	pair, err := m.auth.RefreshToken(ctx, refresh)
	if err != nil {
		return err
	}
	if pair.Refresh == "" {
		pair.Refresh = refresh
	}

	if m.store != nil {
		snapshot := SessionSnapshot{
			AccessToken:  pair.Access,
			RefreshToken: pair.Refresh,
			User:         *user,
			SavedAt:      m.now().UTC(),
		}
		if err = m.store.Save(ctx, snapshot); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.access = pair.Access
	m.refresh = pair.Refresh
	m.mu.Unlock()
	return nil
}

// Me fetches the authoritative current-user record from the booking service
// and refreshes the cached snapshot with it.
func (m *SessionManager) Me(ctx context.Context) (user api.User, err error) {
	if m == nil {
		err = fmt.Errorf("SessionManager is nil")
		return
	}
	if m.auth == nil {
		err = fmt.Errorf("authenticator not configured")
		return
	}
	if !m.IsAuthenticated() {
		err = ErrNotAuthenticated
		return
	}

	logger := m.loggerWith(ctx, "Me")
	user, err = m.auth.Me(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to fetch current user", "error", err, "error_kind", ErrorKind(err))
		return api.User{}, err
	}

	m.mu.Lock()
	cached := user
	m.user = &cached
	access, refresh := m.access, m.refresh
	m.mu.Unlock()

	if m.store != nil {
		snapshot := SessionSnapshot{
			AccessToken:  access,
			RefreshToken: refresh,
			User:         user,
			SavedAt:      m.now().UTC(),
		}
		if saveErr := m.store.Save(ctx, snapshot); saveErr != nil {
			logger.ErrorContext(ctx, "failed to persist refreshed user snapshot", "error", saveErr)
		}
	}
	return user, nil
}

// CurrentUser returns the cached user record for the signed-in session.
func (m *SessionManager) CurrentUser() (api.User, bool) {
	if m == nil {
		return api.User{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return api.User{}, false
	}
	return *m.user, true
}

// Principal returns the acting principal derived from the cached user.
func (m *SessionManager) Principal() (Principal, bool) {
	user, ok := m.CurrentUser()
	if !ok {
		return Principal{}, false
	}
	return Principal{UserID: user.ID, Role: user.Role}, true
}

// IsAuthenticated reports whether a user is signed in.
func (m *SessionManager) IsAuthenticated() bool {
	_, ok := m.CurrentUser()
	return ok
}

// Initialized reports whether Initialize has completed, successfully or not.
// Consumers must not treat a not-yet-initialized session as signed out.
func (m *SessionManager) Initialized() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// AccessToken exposes the current access token for wiring into the API
// client's token source. Empty when unauthenticated.
func (m *SessionManager) AccessToken() string {
	if m == nil {
		return ""
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.access
}
