package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/roombooking/internal/api"
)

var (
	userCounter     int64
	buildingCounter int64
	roomCounter     int64
	bookingCounter  int64
)

// ----------------------------- User fixtures -----------------------------

// UserOption configures the generated user fixture.
type UserOption func(*api.User)

// NewUserFixture returns a deterministic user record with optional overrides.
func NewUserFixture(opts ...UserOption) api.User {
	idx := atomic.AddInt64(&userCounter, 1)
	fixture := api.User{
		ID:        idx,
		Username:  fmt.Sprintf("user%03d", idx),
		Email:     fmt.Sprintf("user%03d@example.edu", idx),
		FirstName: "Test",
		LastName:  fmt.Sprintf("User%03d", idx),
		Role:      api.RoleStudent,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the generated user ID.
func WithUserID(id int64) UserOption {
	return func(u *api.User) { u.ID = id }
}

// WithUsername overrides the generated username.
func WithUsername(name string) UserOption {
	return func(u *api.User) { u.Username = name }
}

// WithRole overrides the generated role.
func WithRole(role api.Role) UserOption {
	return func(u *api.User) { u.Role = role }
}

// --------------------------- Building fixtures ---------------------------

// BuildingOption configures the generated building fixture.
type BuildingOption func(*api.Building)

// NewBuildingFixture returns a deterministic building record.
func NewBuildingFixture(opts ...BuildingOption) api.Building {
	idx := atomic.AddInt64(&buildingCounter, 1)
	fixture := api.Building{
		ID:      idx,
		Name:    fmt.Sprintf("Building %03d", idx),
		Address: fmt.Sprintf("%d Campus Way", idx),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithBuildingID overrides the generated building ID.
func WithBuildingID(id int64) BuildingOption {
	return func(b *api.Building) { b.ID = id }
}

// ----------------------------- Room fixtures -----------------------------

// RoomOption configures the generated room fixture.
type RoomOption func(*api.Room)

// NewRoomFixture returns a deterministic room record belonging to a fresh
// building unless overridden.
func NewRoomFixture(opts ...RoomOption) api.Room {
	idx := atomic.AddInt64(&roomCounter, 1)
	fixture := api.Room{
		ID:       idx,
		Building: NewBuildingFixture(),
		Number:   fmt.Sprintf("%d01", idx),
		Type:     api.RoomLecture,
		Capacity: 30,
		Floor:    1,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithRoomID overrides the generated room ID.
func WithRoomID(id int64) RoomOption {
	return func(r *api.Room) { r.ID = id }
}

// WithRoomBuilding places the room in the given building.
func WithRoomBuilding(building api.Building) RoomOption {
	return func(r *api.Room) { r.Building = building }
}

// --------------------------- Booking fixtures ----------------------------

// BookingOption configures the generated booking fixture.
type BookingOption func(*api.Booking)

// NewBookingFixture returns a deterministic pending booking one hour long,
// starting an hour after the reference time.
func NewBookingFixture(opts ...BookingOption) api.Booking {
	idx := atomic.AddInt64(&bookingCounter, 1)
	start := referenceTime.Add(time.Duration(idx) * time.Hour)
	fixture := api.Booking{
		ID:        idx,
		Room:      NewRoomFixture(),
		User:      NewUserFixture(),
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Purpose:   fmt.Sprintf("Lecture %03d", idx),
		Status:    api.StatusPending,
		CreatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithBookingID overrides the generated booking ID.
func WithBookingID(id int64) BookingOption {
	return func(b *api.Booking) { b.ID = id }
}

// WithBookingUser assigns the requesting user.
func WithBookingUser(user api.User) BookingOption {
	return func(b *api.Booking) { b.User = user }
}

// WithBookingRoom assigns the booked room.
func WithBookingRoom(room api.Room) BookingOption {
	return func(b *api.Booking) { b.Room = room }
}

// WithBookingStatus overrides the lifecycle status.
func WithBookingStatus(status api.BookingStatus) BookingOption {
	return func(b *api.Booking) { b.Status = status }
}

// WithBookingWindow sets the reservation window.
func WithBookingWindow(start, end time.Time) BookingOption {
	return func(b *api.Booking) {
		b.StartTime = start
		b.EndTime = end
	}
}
