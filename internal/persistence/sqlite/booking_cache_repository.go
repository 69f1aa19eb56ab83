package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/example/roombooking/internal/persistence"
)

// BookingCacheRepository implements persistence.BookingCacheRepository over
// the booking_cache table.
type BookingCacheRepository struct {
	store *Store
}

// NewBookingCacheRepository creates a booking cache repository on the given store.
func NewBookingCacheRepository(store *Store) *BookingCacheRepository {
	return &BookingCacheRepository{store: store}
}

// ReplaceBookings swaps the entire cached set for the provided one.
func (r *BookingCacheRepository) ReplaceBookings(ctx context.Context, bookings []persistence.CachedBooking) error {
	if r == nil || r.store == nil || r.store.db == nil {
		return fmt.Errorf("booking cache is not open")
	}

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cache replace: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM booking_cache`); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to clear booking cache: %w", err)
	}

	insert := `
		INSERT INTO booking_cache (id, status, start_time, end_time, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	now := time.Now().UTC().Format(time.RFC3339)
	for _, booking := range bookings {
		if _, err := tx.ExecContext(ctx, insert,
			booking.ID,
			booking.Status,
			booking.StartTime.UTC().Format(time.RFC3339),
			booking.EndTime.UTC().Format(time.RFC3339),
			string(booking.Payload),
			now,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to cache booking %d: %w", booking.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache replace: %w", err)
	}
	return nil
}

// UpsertBooking records one service-confirmed booking state.
func (r *BookingCacheRepository) UpsertBooking(ctx context.Context, booking persistence.CachedBooking) error {
	if r == nil || r.store == nil || r.store.db == nil {
		return fmt.Errorf("booking cache is not open")
	}

	query := `
		INSERT INTO booking_cache (id, status, start_time, end_time, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`
	_, err := r.store.db.ExecContext(ctx, query,
		booking.ID,
		booking.Status,
		booking.StartTime.UTC().Format(time.RFC3339),
		booking.EndTime.UTC().Format(time.RFC3339),
		string(booking.Payload),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert booking %d: %w", booking.ID, err)
	}
	return nil
}

// ListBookings returns the cached bookings ordered by start time ascending.
func (r *BookingCacheRepository) ListBookings(ctx context.Context) ([]persistence.CachedBooking, error) {
	if r == nil || r.store == nil || r.store.db == nil {
		return nil, fmt.Errorf("booking cache is not open")
	}

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT id, status, start_time, end_time, payload, updated_at
		FROM booking_cache
		ORDER BY start_time ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cached bookings: %w", err)
	}
	defer rows.Close()

	var bookings []persistence.CachedBooking
	for rows.Next() {
		var booking persistence.CachedBooking
		var startStr, endStr, payload, updatedStr string
		if err := rows.Scan(&booking.ID, &booking.Status, &startStr, &endStr, &payload, &updatedStr); err != nil {
			return nil, fmt.Errorf("failed to scan cached booking: %w", err)
		}
		if booking.StartTime, err = time.Parse(time.RFC3339, startStr); err != nil {
			return nil, fmt.Errorf("failed to parse start_time: %w", err)
		}
		if booking.EndTime, err = time.Parse(time.RFC3339, endStr); err != nil {
			return nil, fmt.Errorf("failed to parse end_time: %w", err)
		}
		if booking.UpdatedAt, err = time.Parse(time.RFC3339, updatedStr); err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}
		booking.Payload = []byte(payload)
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cached bookings: %w", err)
	}
	return bookings, nil
}

// ClearBookings removes every cached booking.
func (r *BookingCacheRepository) ClearBookings(ctx context.Context) error {
	if r == nil || r.store == nil || r.store.db == nil {
		return fmt.Errorf("booking cache is not open")
	}
	if _, err := r.store.db.ExecContext(ctx, `DELETE FROM booking_cache`); err != nil {
		return fmt.Errorf("failed to clear booking cache: %w", err)
	}
	return nil
}
