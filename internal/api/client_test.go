package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, opts...)
}

func TestClientLogin(t *testing.T) {
	t.Parallel()

	t.Run("decodes the issued credentials", func(t *testing.T) {
		t.Parallel()
		var gotPath, gotAuth string
		var gotBody map[string]string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotAuth = r.Header.Get("Authorization")
			if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
				t.Errorf("failed to decode login body: %v", err)
			}
			json.NewEncoder(w).Encode(Credentials{
				Access:  "access-1",
				Refresh: "refresh-1",
				User:    User{ID: 7, Username: "alice", Role: RoleStudent},
			})
		})

		creds, err := client.Login(context.Background(), "alice", "secret")
		if err != nil {
			t.Fatalf("Login returned error: %v", err)
		}
		if gotPath != "/auth/login/" {
			t.Errorf("request path = %q, want /auth/login/", gotPath)
		}
		if gotAuth != "" {
			t.Errorf("login must not carry credentials, got Authorization %q", gotAuth)
		}
		if gotBody["username"] != "alice" || gotBody["password"] != "secret" {
			t.Errorf("login body = %v", gotBody)
		}
		if creds.Access != "access-1" || creds.User.Username != "alice" {
			t.Errorf("credentials = %+v", creds)
		}
	})

	t.Run("rejected credentials map to the unauthorized kind", func(t *testing.T) {
		t.Parallel()
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{
				"detail": "no active account found with the given credentials",
			})
		})

		_, err := client.Login(context.Background(), "alice", "wrong")
		var apiErr *Error
		if !errors.As(err, &apiErr) {
			t.Fatalf("Login error = %v, want *Error", err)
		}
		if apiErr.Kind != KindUnauthorized {
			t.Errorf("error kind = %q, want %q", apiErr.Kind, KindUnauthorized)
		}
		if apiErr.Message != "no active account found with the given credentials" {
			t.Errorf("error message = %q, want the service detail verbatim", apiErr.Message)
		}
		if !IsUnauthorized(err) {
			t.Error("IsUnauthorized(err) = false, want true")
		}
	})
}

func TestClientAuthorizationScheme(t *testing.T) {
	t.Parallel()

	var gotAuth, gotRequestID string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		json.NewEncoder(w).Encode(User{ID: 7})
	}, WithTokenSource(func() string { return "token-123" }),
		WithRequestID(func() string { return "req-1" }))

	if _, err := client.Me(context.Background()); err != nil {
		t.Fatalf("Me returned error: %v", err)
	}
	if gotAuth != "JWT token-123" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "JWT token-123")
	}
	if gotRequestID != "req-1" {
		t.Errorf("X-Request-ID = %q, want %q", gotRequestID, "req-1")
	}
}

func TestClientQueryParameters(t *testing.T) {
	t.Parallel()

	t.Run("bookings status filter", func(t *testing.T) {
		t.Parallel()
		var gotQuery string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.RawQuery
			json.NewEncoder(w).Encode([]Booking{})
		})

		if _, err := client.Bookings(context.Background(), StatusPending); err != nil {
			t.Fatalf("Bookings returned error: %v", err)
		}
		if gotQuery != "status=pending" {
			t.Errorf("query = %q, want status=pending", gotQuery)
		}
	})

	t.Run("bookings without a filter", func(t *testing.T) {
		t.Parallel()
		var gotQuery string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.RawQuery
			json.NewEncoder(w).Encode([]Booking{})
		})

		if _, err := client.Bookings(context.Background(), ""); err != nil {
			t.Fatalf("Bookings returned error: %v", err)
		}
		if gotQuery != "" {
			t.Errorf("query = %q, want empty", gotQuery)
		}
	})

	t.Run("rooms building filter", func(t *testing.T) {
		t.Parallel()
		var gotQuery string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.RawQuery
			json.NewEncoder(w).Encode([]Room{})
		})

		if _, err := client.Rooms(context.Background(), 4); err != nil {
			t.Fatalf("Rooms returned error: %v", err)
		}
		if gotQuery != "building_id=4" {
			t.Errorf("query = %q, want building_id=4", gotQuery)
		}
	})
}

func TestClientTransitions(t *testing.T) {
	t.Parallel()

	var gotMethod, gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(Booking{ID: 12, Status: StatusApproved})
	})

	booking, err := client.ApproveBooking(context.Background(), 12)
	if err != nil {
		t.Fatalf("ApproveBooking returned error: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/bookings/12/approve/" {
		t.Errorf("request = %s %s, want POST /bookings/12/approve/", gotMethod, gotPath)
	}
	if booking.Status != StatusApproved {
		t.Errorf("status = %q, want %q", booking.Status, StatusApproved)
	}
}

func TestClientErrorNormalization(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		status   int
		body     string
		wantKind ErrorKind
		wantMsg  string
	}{
		{"validation", http.StatusBadRequest, `{"message":"end must be after start"}`, KindValidation, "end must be after start"},
		{"unauthorized", http.StatusUnauthorized, `{"detail":"token is invalid or expired"}`, KindUnauthorized, "token is invalid or expired"},
		{"forbidden", http.StatusForbidden, `{"message":"admin role required"}`, KindForbidden, "admin role required"},
		{"not found", http.StatusNotFound, `{"message":"room not found"}`, KindNotFound, "room not found"},
		{"conflict", http.StatusConflict, `{"error":"the room is already reserved for this time range"}`, KindConflict, "the room is already reserved for this time range"},
		{"server", http.StatusInternalServerError, ``, KindServer, "booking service returned status 500"},
		{"unparseable body", http.StatusBadRequest, `<html>oops</html>`, KindValidation, "booking service returned status 400"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				if tc.body != "" {
					w.Write([]byte(tc.body))
				}
			})

			_, err := client.Bookings(context.Background(), "")
			var apiErr *Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want *Error", err)
			}
			if apiErr.Kind != tc.wantKind {
				t.Errorf("kind = %q, want %q", apiErr.Kind, tc.wantKind)
			}
			if apiErr.StatusCode != tc.status {
				t.Errorf("status = %d, want %d", apiErr.StatusCode, tc.status)
			}
			if apiErr.Message != tc.wantMsg {
				t.Errorf("message = %q, want %q", apiErr.Message, tc.wantMsg)
			}
		})
	}
}

func TestClientTransportFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()
	client := NewClient(server.URL, WithHTTPClient(&http.Client{Timeout: time.Second}))

	_, err := client.Buildings(context.Background())
	if KindOf(err) != KindTransport {
		t.Fatalf("error kind = %q, want %q", KindOf(err), KindTransport)
	}
}

func TestClientMalformedSuccessBody(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"truncated":`))
	})

	_, err := client.Me(context.Background())
	if KindOf(err) != KindTransport {
		t.Fatalf("error kind = %q, want %q", KindOf(err), KindTransport)
	}
}

func TestKindOfUnknownError(t *testing.T) {
	t.Parallel()

	if kind := KindOf(errors.New("plain")); kind != "" {
		t.Errorf("KindOf(plain error) = %q, want empty", kind)
	}
	if kind := KindOf(nil); kind != "" {
		t.Errorf("KindOf(nil) = %q, want empty", kind)
	}
}
