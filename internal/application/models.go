package application

import (
	"time"

	"github.com/example/roombooking/internal/api"
)

// Principal represents the signed-in user on whose behalf operations run.
// The role is the cached one from the login snapshot; the booking service
// remains authoritative and re-checks it on every request.
type Principal struct {
	UserID int64
	Role   api.Role
}

// IsAdmin reports whether the cached role grants administrative actions.
func (p Principal) IsAdmin() bool {
	return p.Role == api.RoleAdmin
}

// SessionSnapshot is the durable state of a signed-in session: the token
// pair and the cached user record restored across restarts.
type SessionSnapshot struct {
	AccessToken  string
	RefreshToken string
	User         api.User
	SavedAt      time.Time
}

// ListScope selects which bookings a listing returns.
type ListScope string

const (
	// ScopeOwn lists the caller's own bookings.
	ScopeOwn ListScope = "own"
	// ScopePending lists the service-wide pending queue. Administrators only.
	ScopePending ListScope = "pending"
)

// CreateBookingParams carries caller provided reservation fields. Start and
// End are raw timestamp strings exactly as entered; the controller validates
// that they parse before anything is sent to the booking service.
type CreateBookingParams struct {
	RoomID  int64
	Start   string
	End     string
	Purpose string
}
