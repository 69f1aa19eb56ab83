// Package api implements the typed REST client for the external room-booking
// service. The service is the sole arbiter of booking transition legality and
// authorization; this package only shapes requests, attaches credentials, and
// normalizes failures into tagged errors.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TokenSource supplies the current access token, or an empty string when the
// session is unauthenticated.
type TokenSource func() string

// Client issues requests against the booking service REST interface.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	accessToken TokenSource
	requestID   func() string
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTokenSource installs the access token supplier consulted per request.
func WithTokenSource(source TokenSource) Option {
	return func(c *Client) {
		if source != nil {
			c.accessToken = source
		}
	}
}

// WithRequestID overrides the request ID generator.
func WithRequestID(gen func() string) Option {
	return func(c *Client) {
		if gen != nil {
			c.requestID = gen
		}
	}
}

// WithLogger installs a logger for request level diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		accessToken: func() string { return "" },
		requestID:   uuid.NewString,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login exchanges username and password for a token pair and user snapshot.
func (c *Client) Login(ctx context.Context, username, password string) (Credentials, error) {
	var creds Credentials
	payload := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login/", payload, &creds); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}

// Register creates a new account. It does not authenticate the caller.
func (c *Client) Register(ctx context.Context, input RegistrationInput) error {
	return c.do(ctx, http.MethodPost, "/auth/register/", input, nil)
}

// RefreshToken exchanges a refresh token for a fresh token pair.
func (c *Client) RefreshToken(ctx context.Context, refresh string) (TokenPair, error) {
	var pair TokenPair
	payload := map[string]string{"refresh": refresh}
	if err := c.do(ctx, http.MethodPost, "/auth/refresh/", payload, &pair); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// Me fetches the authoritative record for the authenticated user.
func (c *Client) Me(ctx context.Context) (User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/users/me/", nil, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Users lists all accounts. The service restricts this to administrators.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.do(ctx, http.MethodGet, "/auth/users/", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Buildings lists every building.
func (c *Client) Buildings(ctx context.Context) ([]Building, error) {
	var buildings []Building
	if err := c.do(ctx, http.MethodGet, "/buildings/", nil, &buildings); err != nil {
		return nil, err
	}
	return buildings, nil
}

// CreateBuilding registers a new building. The service restricts this to
// administrators.
func (c *Client) CreateBuilding(ctx context.Context, input BuildingInput) (Building, error) {
	var building Building
	if err := c.do(ctx, http.MethodPost, "/buildings/", input, &building); err != nil {
		return Building{}, err
	}
	return building, nil
}

// Rooms lists rooms, optionally narrowed to a single building.
func (c *Client) Rooms(ctx context.Context, buildingID int64) ([]Room, error) {
	path := "/rooms/"
	if buildingID > 0 {
		path += "?building_id=" + fmt.Sprint(buildingID)
	}
	var rooms []Room
	if err := c.do(ctx, http.MethodGet, path, nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// Bookings lists the caller's bookings. A non-empty status narrows the listing
// on the service side; administrators use it to fetch the pending queue.
func (c *Client) Bookings(ctx context.Context, status BookingStatus) ([]Booking, error) {
	path := "/bookings/"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}
	var bookings []Booking
	if err := c.do(ctx, http.MethodGet, path, nil, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// CreateBooking submits a reservation request. On success the returned
// booking is in pending status.
func (c *Client) CreateBooking(ctx context.Context, input BookingInput) (Booking, error) {
	var booking Booking
	if err := c.do(ctx, http.MethodPost, "/bookings/", input, &booking); err != nil {
		return Booking{}, err
	}
	return booking, nil
}

// ApproveBooking transitions a pending booking to approved.
func (c *Client) ApproveBooking(ctx context.Context, id int64) (Booking, error) {
	return c.transition(ctx, id, "approve")
}

// RejectBooking transitions a pending booking to rejected.
func (c *Client) RejectBooking(ctx context.Context, id int64) (Booking, error) {
	return c.transition(ctx, id, "reject")
}

// CancelBooking transitions a pending or approved booking to canceled.
func (c *Client) CancelBooking(ctx context.Context, id int64) (Booking, error) {
	return c.transition(ctx, id, "cancel")
}

func (c *Client) transition(ctx context.Context, id int64, action string) (Booking, error) {
	var booking Booking
	path := fmt.Sprintf("/bookings/%d/%s/", id, action)
	if err := c.do(ctx, http.MethodPost, path, nil, &booking); err != nil {
		return Booking{}, err
	}
	return booking, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	if c == nil {
		return &Error{Kind: KindTransport, Message: "api client is nil"}
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return &Error{Kind: KindTransport, Message: "failed to encode request body", cause: err}
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &Error{Kind: KindTransport, Message: "failed to build request", cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", c.requestID())
	if token := c.accessToken(); token != "" {
		// The deployed service expects the JWT scheme rather than Bearer.
		req.Header.Set("Authorization", "JWT "+token)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "booking service unreachable", "method", method, "path", path, "error", err)
		return &Error{Kind: KindTransport, Message: "network error: unable to connect to the booking service", cause: err}
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "booking service request completed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(started),
	)

	if resp.StatusCode >= 400 {
		return c.decodeError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindTransport, StatusCode: resp.StatusCode, Message: "malformed response from the booking service", cause: err}
	}
	return nil
}

func (c *Client) decodeError(resp *http.Response) error {
	apiErr := &Error{
		Kind:       kindForStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err == nil && len(raw) > 0 {
		var parsed errorBody
		if json.Unmarshal(raw, &parsed) == nil {
			apiErr.Message = strings.TrimSpace(parsed.text())
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("booking service returned status %d", resp.StatusCode)
	}
	return apiErr
}
