package persistence

import "time"

// Storage keys for the persisted session state. They mirror the durable
// client storage contract: access token, refresh token, and the serialized
// current-user snapshot are each independently readable and clearable.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUserSnapshot = "user_data"
)

// Credentials is the persisted session state composed from the storage keys.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	UserSnapshot []byte
	SavedAt      time.Time
}

// CachedBooking is one service-confirmed booking retained locally. Payload is
// the full serialized record; the indexed columns exist for listing order and
// status inspection without decoding.
type CachedBooking struct {
	ID        int64
	Status    string
	StartTime time.Time
	EndTime   time.Time
	Payload   []byte
	UpdatedAt time.Time
}
