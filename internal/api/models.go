package api

import "time"

// Role identifies the access level assigned to an account by the booking
// service. Roles are immutable from the client's perspective.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
)

// Valid reports whether the role is one of the values the service issues.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// BookingStatus is the lifecycle state of a reservation request.
type BookingStatus string

const (
	StatusPending  BookingStatus = "pending"
	StatusApproved BookingStatus = "approved"
	StatusRejected BookingStatus = "rejected"
	StatusCanceled BookingStatus = "canceled"
)

// Terminal reports whether no further transitions are possible from the status.
func (s BookingStatus) Terminal() bool {
	return s == StatusRejected || s == StatusCanceled
}

// RoomType categorises a bookable room.
type RoomType string

const (
	RoomLecture    RoomType = "lecture"
	RoomLab        RoomType = "lab"
	RoomConference RoomType = "conference"
	RoomOther      RoomType = "other"
)

// User is the account record returned by the booking service.
type User struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Role       Role   `json:"role"`
	Phone      string `json:"phone,omitempty"`
	Department string `json:"department,omitempty"`
}

// Building groups rooms under one address.
type Building struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Room is a bookable room belonging to exactly one building.
type Room struct {
	ID            int64    `json:"id"`
	Building      Building `json:"building"`
	Number        string   `json:"number"`
	Type          RoomType `json:"type"`
	Capacity      int      `json:"capacity"`
	Floor         int      `json:"floor"`
	Description   string   `json:"description,omitempty"`
	HasProjector  bool     `json:"has_projector"`
	HasWhiteboard bool     `json:"has_whiteboard"`
	HasComputers  bool     `json:"has_computers"`
}

// Booking is a time-bounded reservation request for a room.
type Booking struct {
	ID        int64         `json:"id"`
	Room      Room          `json:"room"`
	User      User          `json:"user"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Purpose   string        `json:"purpose"`
	Status    BookingStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// Credentials is the token pair issued at login together with the
// authenticated user snapshot.
type Credentials struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	User    User   `json:"user"`
}

// TokenPair is the result of exchanging a refresh token.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// RegistrationInput is the payload accepted by the registration endpoint.
// Password confirmation is validated client-side before this is sent.
type RegistrationInput struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Password2  string `json:"password2"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Role       Role   `json:"role"`
	Phone      string `json:"phone,omitempty"`
	Department string `json:"department,omitempty"`
}

// BookingInput is the payload accepted by the booking creation endpoint.
type BookingInput struct {
	RoomID    int64  `json:"room_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Purpose   string `json:"purpose"`
}

// BuildingInput is the payload accepted by the building creation endpoint.
type BuildingInput struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}
