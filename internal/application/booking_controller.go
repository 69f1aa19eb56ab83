package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/roombooking/internal/api"
)

// datetimeLocal is the wall-clock format produced by browser style
// date-and-time inputs; accepted alongside RFC 3339.
const datetimeLocal = "2006-01-02T15:04"

// BookingAPI exposes the booking endpoints of the booking service.
type BookingAPI interface {
	Bookings(ctx context.Context, status api.BookingStatus) ([]api.Booking, error)
	CreateBooking(ctx context.Context, input api.BookingInput) (api.Booking, error)
	ApproveBooking(ctx context.Context, id int64) (api.Booking, error)
	RejectBooking(ctx context.Context, id int64) (api.Booking, error)
	CancelBooking(ctx context.Context, id int64) (api.Booking, error)
}

// RoleSource supplies the acting principal. Implemented by SessionManager.
type RoleSource interface {
	Principal() (Principal, bool)
}

// BookingCache persists the last service-confirmed view of the caller's
// bookings. Entirely advisory: the booking service is the source of truth.
type BookingCache interface {
	ReplaceAll(ctx context.Context, bookings []api.Booking) error
	Upsert(ctx context.Context, booking api.Booking) error
	List(ctx context.Context) ([]api.Booking, error)
}

// BookingController enumerates bookings visible to the caller and enacts
// lifecycle transitions. It gates admin-only actions on the cached role and
// presents the service's verdict verbatim; it never mutates a booking status
// locally without a confirmed round trip.
type BookingController struct {
	client      BookingAPI
	roles       RoleSource
	cache       BookingCache
	now         func() time.Time
	minDuration time.Duration
	logger      *slog.Logger
}

// ControllerOption configures a BookingController.
type ControllerOption func(*BookingController)

// WithMinimumDuration sets the shortest reservation accepted locally.
func WithMinimumDuration(d time.Duration) ControllerOption {
	return func(c *BookingController) {
		if d > 0 {
			c.minDuration = d
		}
	}
}

// WithBookingCache installs a persistent cache for confirmed booking state.
func WithBookingCache(cache BookingCache) ControllerOption {
	return func(c *BookingController) {
		c.cache = cache
	}
}

// WithControllerLogger installs a logger.
func WithControllerLogger(logger *slog.Logger) ControllerOption {
	return func(c *BookingController) {
		c.logger = defaultLogger(logger)
	}
}

// NewBookingController constructs a BookingController.
func NewBookingController(client BookingAPI, roles RoleSource, now func() time.Time, opts ...ControllerOption) *BookingController {
	if now == nil {
		now = time.Now
	}
	c := &BookingController{
		client:      client,
		roles:       roles,
		now:         now,
		minDuration: 15 * time.Minute,
		logger:      defaultLogger(nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *BookingController) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, c.logger, "BookingController", operation, attrs...)
}

func (c *BookingController) principal() (Principal, error) {
	if c.roles == nil {
		return Principal{}, ErrNotAuthenticated
	}
	principal, ok := c.roles.Principal()
	if !ok {
		return Principal{}, ErrNotAuthenticated
	}
	return principal, nil
}

// List fetches the bookings for the requested scope. ScopeOwn returns the
// caller's own bookings; ScopePending returns the service-wide pending queue
// and requires the cached admin role. The returned set is whatever the
// service decided is visible; no local filtering is trusted as authoritative.
func (c *BookingController) List(ctx context.Context, scope ListScope) (bookings []api.Booking, err error) {
	if c == nil {
		err = fmt.Errorf("BookingController is nil")
		return
	}
	if c.client == nil {
		err = fmt.Errorf("booking API not configured")
		return
	}

	logger := c.loggerWith(ctx, "List", "scope", string(scope))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "listing failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "bookings listed", "count", len(bookings))
	}()

	principal, err := c.principal()
	if err != nil {
		return nil, err
	}

	status := api.BookingStatus("")
	switch scope {
	case ScopeOwn, "":
	case ScopePending:
		if !principal.IsAdmin() {
			err = ErrUnauthorized
			return nil, err
		}
		status = api.StatusPending
	default:
		vErr := &ValidationError{}
		vErr.add("scope", "unknown listing scope")
		err = vErr
		return nil, err
	}

	bookings, err = c.client.Bookings(ctx, status)
	if err != nil {
		return nil, err
	}

	if c.cache != nil && status == "" {
		if cacheErr := c.cache.ReplaceAll(ctx, bookings); cacheErr != nil {
			logger.ErrorContext(ctx, "failed to refresh booking cache", "error", cacheErr)
		}
	}
	return bookings, nil
}

// Cached returns the last service-confirmed bookings without a network call.
func (c *BookingController) Cached(ctx context.Context) ([]api.Booking, error) {
	if c == nil || c.cache == nil {
		return nil, nil
	}
	return c.cache.List(ctx)
}

// Create validates the reservation request locally and submits it. On
// success the returned booking is in pending status. Overlap detection is
// the service's job; its rejection reason is surfaced verbatim.
func (c *BookingController) Create(ctx context.Context, params CreateBookingParams) (booking api.Booking, err error) {
	if c == nil {
		err = fmt.Errorf("BookingController is nil")
		return
	}
	if c.client == nil {
		err = fmt.Errorf("booking API not configured")
		return
	}

	logger := c.loggerWith(ctx, "Create", "room_id", params.RoomID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "booking creation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("booking_id", booking.ID, "status", booking.Status).InfoContext(ctx, "booking created")
	}()

	if _, err = c.principal(); err != nil {
		return api.Booking{}, err
	}

	vErr := &ValidationError{}
	if params.RoomID <= 0 {
		vErr.add("room_id", "room is required")
	}
	if strings.TrimSpace(params.Purpose) == "" {
		vErr.add("purpose", "purpose is required")
	}

	start, startErr := parseTimestamp(params.Start)
	if startErr != nil {
		vErr.add("start_time", "start is not a valid timestamp")
	}
	end, endErr := parseTimestamp(params.End)
	if endErr != nil {
		vErr.add("end_time", "end is not a valid timestamp")
	}
	if startErr == nil && endErr == nil {
		if !start.Before(end) {
			vErr.add("end_time", "end must be after start")
		} else if end.Sub(start) < c.minDuration {
			vErr.add("end_time", fmt.Sprintf("booking must last at least %s", c.minDuration))
		}
	}
	if vErr.HasErrors() {
		err = vErr
		return api.Booking{}, err
	}

	booking, err = c.client.CreateBooking(ctx, api.BookingInput{
		RoomID:    params.RoomID,
		StartTime: start.Format(time.RFC3339),
		EndTime:   end.Format(time.RFC3339),
		Purpose:   strings.TrimSpace(params.Purpose),
	})
	if err != nil {
		return api.Booking{}, err
	}

	c.storeConfirmed(ctx, logger, booking)
	return booking, nil
}

// Approve transitions a pending booking to approved. Admin only.
func (c *BookingController) Approve(ctx context.Context, id int64) (api.Booking, error) {
	return c.adminTransition(ctx, "Approve", id, func(ctx context.Context) (api.Booking, error) {
		return c.client.ApproveBooking(ctx, id)
	})
}

// Reject transitions a pending booking to rejected. Admin only.
func (c *BookingController) Reject(ctx context.Context, id int64) (api.Booking, error) {
	return c.adminTransition(ctx, "Reject", id, func(ctx context.Context) (api.Booking, error) {
		return c.client.RejectBooking(ctx, id)
	})
}

// Cancel transitions a pending or approved booking to canceled. Permitted for
// the owning user or an administrator; the service enforces ownership and
// transition legality. A rejection for an already-resolved booking surfaces
// as an ordinary error, never a crash.
func (c *BookingController) Cancel(ctx context.Context, id int64) (booking api.Booking, err error) {
	if c == nil {
		err = fmt.Errorf("BookingController is nil")
		return
	}
	if c.client == nil {
		err = fmt.Errorf("booking API not configured")
		return
	}

	logger := c.loggerWith(ctx, "Cancel", "booking_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "cancellation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("status", booking.Status).InfoContext(ctx, "booking canceled")
	}()

	if _, err = c.principal(); err != nil {
		return api.Booking{}, err
	}

	booking, err = c.client.CancelBooking(ctx, id)
	if err != nil {
		return api.Booking{}, err
	}

	c.storeConfirmed(ctx, logger, booking)
	return booking, nil
}

func (c *BookingController) adminTransition(ctx context.Context, operation string, id int64, call func(context.Context) (api.Booking, error)) (booking api.Booking, err error) {
	if c == nil {
		err = fmt.Errorf("BookingController is nil")
		return
	}
	if c.client == nil {
		err = fmt.Errorf("booking API not configured")
		return
	}

	logger := c.loggerWith(ctx, operation, "booking_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "transition failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("status", booking.Status).InfoContext(ctx, "transition confirmed")
	}()

	principal, err := c.principal()
	if err != nil {
		return api.Booking{}, err
	}
	if !principal.IsAdmin() {
		err = ErrUnauthorized
		return api.Booking{}, err
	}

	booking, err = call(ctx)
	if err != nil {
		return api.Booking{}, err
	}

	c.storeConfirmed(ctx, logger, booking)
	return booking, nil
}

// storeConfirmed records the service-confirmed booking state in the cache.
// Cache failures never fail the operation itself.
func (c *BookingController) storeConfirmed(ctx context.Context, logger *slog.Logger, booking api.Booking) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Upsert(ctx, booking); err != nil {
		logger.ErrorContext(ctx, "failed to cache confirmed booking", "error", err, "booking_id", booking.ID)
	}
}

func parseTimestamp(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return ts, nil
	}
	return time.Parse(datetimeLocal, trimmed)
}
