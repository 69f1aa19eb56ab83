package persistence

import "context"

// CredentialRepository persists the session credential state.
type CredentialRepository interface {
	// SaveCredentials stores the full credential set, replacing any previous one.
	SaveCredentials(ctx context.Context, creds Credentials) error
	// LoadCredentials returns the stored credential set. ErrNotFound when no
	// access token has been persisted.
	LoadCredentials(ctx context.Context) (Credentials, error)
	// ClearCredentials removes every persisted credential key. Clearing an
	// already-empty store is not an error.
	ClearCredentials(ctx context.Context) error
}

// BookingCacheRepository persists the last service-confirmed booking view.
type BookingCacheRepository interface {
	ReplaceBookings(ctx context.Context, bookings []CachedBooking) error
	UpsertBooking(ctx context.Context, booking CachedBooking) error
	ListBookings(ctx context.Context) ([]CachedBooking, error)
	ClearBookings(ctx context.Context) error
}
