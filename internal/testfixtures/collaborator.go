package testfixtures

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/example/roombooking/internal/api"
)

// Collaborator is an in-process stand-in for the external booking service.
// It implements the REST surface the client consumes and enforces the
// booking transition table authoritatively, so tests can exercise both the
// happy paths and the service-refused transitions. Every handled request is
// counted per endpoint for call assertions.
type Collaborator struct {
	mu            sync.Mutex
	users         map[int64]api.User
	passwords     map[string]string // username -> password
	usersByName   map[string]int64
	buildings     map[int64]api.Building
	rooms         map[int64]api.Room
	bookings      map[int64]api.Booking
	accessTokens  map[string]int64 // access token -> user ID
	refreshTokens map[string]int64
	nextID        int64
	tokenSeq      int64
	calls         map[string]int
	clock         *Clock
	server        *httptest.Server
}

// NewCollaborator starts the fake service on an ephemeral port. Callers must
// Close it when done.
func NewCollaborator() *Collaborator {
	c := &Collaborator{
		users:         make(map[int64]api.User),
		passwords:     make(map[string]string),
		usersByName:   make(map[string]int64),
		buildings:     make(map[int64]api.Building),
		rooms:         make(map[int64]api.Room),
		bookings:      make(map[int64]api.Booking),
		accessTokens:  make(map[string]int64),
		refreshTokens: make(map[string]int64),
		nextID:        1000,
		calls:         make(map[string]int),
		clock:         NewClock(time.Time{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/register/", c.handleRegister)
	mux.HandleFunc("/auth/login/", c.handleLogin)
	mux.HandleFunc("/auth/refresh/", c.handleRefresh)
	mux.HandleFunc("/auth/users/", c.handleUsers)
	mux.HandleFunc("/users/me/", c.handleMe)
	mux.HandleFunc("/buildings/", c.handleBuildings)
	mux.HandleFunc("/rooms/", c.handleRooms)
	mux.HandleFunc("/bookings/", c.handleBookings)

	c.server = httptest.NewServer(mux)
	return c
}

// URL returns the base URL of the fake service.
func (c *Collaborator) URL() string {
	return c.server.URL
}

// Close shuts the fake service down.
func (c *Collaborator) Close() {
	c.server.Close()
}

// Calls reports how many requests hit the given endpoint key, e.g.
// "POST /auth/register/".
func (c *Collaborator) Calls(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[key]
}

// AddAccount registers a user with a login password.
func (c *Collaborator) AddAccount(user api.User, password string) api.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	if user.ID == 0 {
		user.ID = c.allocateIDLocked()
	}
	c.users[user.ID] = user
	c.usersByName[user.Username] = user.ID
	c.passwords[user.Username] = password
	return user
}

// AddBuilding seeds a building record.
func (c *Collaborator) AddBuilding(building api.Building) api.Building {
	c.mu.Lock()
	defer c.mu.Unlock()
	if building.ID == 0 {
		building.ID = c.allocateIDLocked()
	}
	c.buildings[building.ID] = building
	return building
}

// AddRoom seeds a room record together with its building.
func (c *Collaborator) AddRoom(room api.Room) api.Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	if room.ID == 0 {
		room.ID = c.allocateIDLocked()
	}
	if room.Building.ID != 0 {
		c.buildings[room.Building.ID] = room.Building
	}
	c.rooms[room.ID] = room
	return room
}

// AddBooking seeds a booking record in any lifecycle state.
func (c *Collaborator) AddBooking(booking api.Booking) api.Booking {
	c.mu.Lock()
	defer c.mu.Unlock()
	if booking.ID == 0 {
		booking.ID = c.allocateIDLocked()
	}
	c.bookings[booking.ID] = booking
	return booking
}

// Booking returns the current state of a seeded or created booking.
func (c *Collaborator) Booking(id int64) (api.Booking, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	booking, ok := c.bookings[id]
	return booking, ok
}

func (c *Collaborator) allocateIDLocked() int64 {
	c.nextID++
	return c.nextID
}

func (c *Collaborator) issueTokensLocked(userID int64) (string, string) {
	c.tokenSeq++
	access := fmt.Sprintf("access-%d-%d", userID, c.tokenSeq)
	refresh := fmt.Sprintf("refresh-%d-%d", userID, c.tokenSeq)
	c.accessTokens[access] = userID
	c.refreshTokens[refresh] = userID
	return access, refresh
}

func (c *Collaborator) count(r *http.Request) {
	c.mu.Lock()
	c.calls[r.Method+" "+r.URL.Path]++
	c.mu.Unlock()
}

func (c *Collaborator) authenticate(r *http.Request) (api.User, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "JWT ")
	if !ok {
		return api.User{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	userID, ok := c.accessTokens[strings.TrimSpace(token)]
	if !ok {
		return api.User{}, false
	}
	user, ok := c.users[userID]
	return user, ok
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// ------------------------------ auth handlers -----------------------------

func (c *Collaborator) handleRegister(w http.ResponseWriter, r *http.Request) {
	c.count(r)
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var input api.RegistrationInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if input.Password != input.Password2 {
		writeDetail(w, http.StatusBadRequest, "password fields didn't match")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.usersByName[input.Username]; exists {
		writeDetail(w, http.StatusBadRequest, "a user with that username already exists")
		return
	}
	user := api.User{
		ID:         c.allocateIDLocked(),
		Username:   input.Username,
		Email:      input.Email,
		FirstName:  input.FirstName,
		LastName:   input.LastName,
		Role:       input.Role,
		Phone:      input.Phone,
		Department: input.Department,
	}
	if user.Role == "" {
		user.Role = api.RoleStudent
	}
	c.users[user.ID] = user
	c.usersByName[user.Username] = user.ID
	c.passwords[user.Username] = input.Password
	writeJSON(w, http.StatusCreated, user)
}

func (c *Collaborator) handleLogin(w http.ResponseWriter, r *http.Request) {
	c.count(r)
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed request body")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	userID, ok := c.usersByName[input.Username]
	if !ok || c.passwords[input.Username] != input.Password {
		writeDetail(w, http.StatusUnauthorized, "no active account found with the given credentials")
		return
	}
	access, refresh := c.issueTokensLocked(userID)
	writeJSON(w, http.StatusOK, api.Credentials{Access: access, Refresh: refresh, User: c.users[userID]})
}

func (c *Collaborator) handleRefresh(w http.ResponseWriter, r *http.Request) {
	c.count(r)
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var input struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed request body")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	userID, ok := c.refreshTokens[input.Refresh]
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "token is invalid or expired")
		return
	}
	delete(c.refreshTokens, input.Refresh)
	access, refresh := c.issueTokensLocked(userID)
	writeJSON(w, http.StatusOK, api.TokenPair{Access: access, Refresh: refresh})
}

func (c *Collaborator) handleUsers(w http.ResponseWriter, r *http.Request) {
	c.count(r)
	caller, ok := c.authenticate(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "authentication credentials were not provided")
		return
	}
	if caller.Role != api.RoleAdmin {
		writeDetail(w, http.StatusForbidden, "you do not have permission to perform this action")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	users := make([]api.User, 0, len(c.users))
	for _, user := range c.users {
		users = append(users, user)
	}
	writeJSON(w, http.StatusOK, users)
}

func (c *Collaborator) handleMe(w http.ResponseWriter, r *http.Request) {
	c.count(r)
	caller, ok := c.authenticate(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "authentication credentials were not provided")
		return
	}
	writeJSON(w, http.StatusOK, caller)
}

// ---------------------------- catalog handlers ----------------------------

func (c *Collaborator) handleBuildings(w http.ResponseWriter, r *http.Request) {
	c.count(r)
	caller, ok := c.authenticate(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "authentication credentials were not provided")
		return
	}

	switch r.Method {
	case http.MethodGet:
		c.mu.Lock()
		defer c.mu.Unlock()
		buildings := make([]api.Building, 0, len(c.buildings))
		for _, building := range c.buildings {
			buildings = append(buildings, building)
		}
		writeJSON(w, http.StatusOK, buildings)
	case http.MethodPost:
		if caller.Role != api.RoleAdmin {
			writeDetail(w, http.StatusForbidden, "you do not have permission to perform this action")
			return
		}
		var input api.BuildingInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			writeDetail(w, http.StatusBadRequest, "malformed request body")
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		building := api.Building{ID: c.allocateIDLocked(), Name: input.Name, Address: input.Address}
		c.buildings[building.ID] = building
		writeJSON(w, http.StatusCreated, building)
	default:
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (c *Collaborator) handleRooms(w http.ResponseWriter, r *http.Request) {
	c.count(r)
	if _, ok := c.authenticate(r); !ok {
		writeDetail(w, http.StatusUnauthorized, "authentication credentials were not provided")
		return
	}
	if r.Method != http.MethodGet {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var buildingID int64
	if raw := r.URL.Query().Get("building_id"); raw != "" {
		buildingID, _ = strconv.ParseInt(raw, 10, 64)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]api.Room, 0, len(c.rooms))
	for _, room := range c.rooms {
		if buildingID != 0 && room.Building.ID != buildingID {
			continue
		}
		rooms = append(rooms, room)
	}
	writeJSON(w, http.StatusOK, rooms)
}

// ---------------------------- booking handlers ----------------------------

func (c *Collaborator) handleBookings(w http.ResponseWriter, r *http.Request) {
	c.count(r)
	caller, ok := c.authenticate(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "authentication credentials were not provided")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/bookings/")
	if rest != "" {
		c.handleBookingAction(w, r, caller, rest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		c.listBookings(w, r, caller)
	case http.MethodPost:
		c.createBooking(w, r, caller)
	default:
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (c *Collaborator) listBookings(w http.ResponseWriter, r *http.Request, caller api.User) {
	statusFilter := r.URL.Query().Get("status")

	c.mu.Lock()
	defer c.mu.Unlock()
	bookings := make([]api.Booking, 0, len(c.bookings))
	for _, booking := range c.bookings {
		if caller.Role != api.RoleAdmin && booking.User.ID != caller.ID {
			continue
		}
		if statusFilter != "" && string(booking.Status) != statusFilter {
			continue
		}
		bookings = append(bookings, booking)
	}
	writeJSON(w, http.StatusOK, bookings)
}

func (c *Collaborator) createBooking(w http.ResponseWriter, r *http.Request, caller api.User) {
	var input api.BookingInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed request body")
		return
	}

	start, err := time.Parse(time.RFC3339, input.StartTime)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "start_time is not a valid timestamp")
		return
	}
	end, err := time.Parse(time.RFC3339, input.EndTime)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "end_time is not a valid timestamp")
		return
	}
	if !start.Before(end) {
		writeDetail(w, http.StatusBadRequest, "end_time must be after start_time")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	room, ok := c.rooms[input.RoomID]
	if !ok {
		writeDetail(w, http.StatusNotFound, "room not found")
		return
	}
	for _, existing := range c.bookings {
		if existing.Room.ID != room.ID || existing.Status.Terminal() {
			continue
		}
		if start.Before(existing.EndTime) && existing.StartTime.Before(end) {
			writeDetail(w, http.StatusConflict, "the room is already reserved for this time range")
			return
		}
	}

	booking := api.Booking{
		ID:        c.allocateIDLocked(),
		Room:      room,
		User:      caller,
		StartTime: start,
		EndTime:   end,
		Purpose:   input.Purpose,
		Status:    api.StatusPending,
		CreatedAt: c.clock.Now(),
	}
	c.bookings[booking.ID] = booking
	writeJSON(w, http.StatusCreated, booking)
}

func (c *Collaborator) handleBookingAction(w http.ResponseWriter, r *http.Request, caller api.User, rest string) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 {
		writeDetail(w, http.StatusNotFound, "not found")
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "booking not found")
		return
	}
	action := parts[1]

	c.mu.Lock()
	defer c.mu.Unlock()
	booking, ok := c.bookings[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "booking not found")
		return
	}

	switch action {
	case "approve", "reject":
		if caller.Role != api.RoleAdmin {
			writeDetail(w, http.StatusForbidden, "you do not have permission to perform this action")
			return
		}
		if booking.Status != api.StatusPending {
			writeDetail(w, http.StatusConflict, fmt.Sprintf("cannot %s a booking in status %s", action, booking.Status))
			return
		}
		if action == "approve" {
			booking.Status = api.StatusApproved
		} else {
			booking.Status = api.StatusRejected
		}
	case "cancel":
		if caller.Role != api.RoleAdmin && booking.User.ID != caller.ID {
			writeDetail(w, http.StatusForbidden, "you cannot cancel this booking")
			return
		}
		if booking.Status != api.StatusPending && booking.Status != api.StatusApproved {
			writeDetail(w, http.StatusConflict, fmt.Sprintf("cannot cancel a booking in status %s", booking.Status))
			return
		}
		booking.Status = api.StatusCanceled
	default:
		writeDetail(w, http.StatusNotFound, "not found")
		return
	}

	c.bookings[id] = booking
	writeJSON(w, http.StatusOK, booking)
}
