package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/fitbook/libs/auth"
	"github.com/md-rashed-zaman/fitbook/libs/httpx"
)

const testSecret = "test-secret"

// recorder stands in for an upstream and remembers the identity it saw.
type recorder struct {
	name string
	hits *[]string
	seen *http.Header
}

func (u recorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	*u.hits = append(*u.hits, u.name)
	*u.seen = r.Header.Clone()
	w.WriteHeader(http.StatusOK)
}

func newGateway(t *testing.T) (http.Handler, *[]string, *http.Header) {
	t.Helper()
	hits := &[]string{}
	seen := &http.Header{}
	up := upstreams{
		Auth:      recorder{name: "auth", hits: hits, seen: seen},
		Salon:     recorder{name: "salon", hits: hits, seen: seen},
		Booking:   recorder{name: "booking", hits: hits, seen: seen},
		Analytics: recorder{name: "analytics", hits: hits, seen: seen},
	}
	mux := http.NewServeMux()
	registerRoutes(mux, up, []byte("openapi: 3.0.3\n"))
	return httpx.Chain(mux, identify(auth.Verifier{Secret: testSecret})), hits, seen
}

func token(t *testing.T, role, trainerID string) string {
	t.Helper()
	tok, err := auth.SignHS256(auth.NewClaims("user-1", role, trainerID, time.Hour), testSecret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	return tok
}

func call(h http.Handler, method, path, bearer string) int {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	return rw.Code
}

func TestRoutesReachTheRightUpstream(t *testing.T) {
	h, hits, _ := newGateway(t)
	admin := token(t, auth.RoleAdmin, "")
	cases := []struct {
		method, path, bearer, upstream string
	}{
		{http.MethodPost, "/api/v1/auth/login", "", "auth"},
		{http.MethodGet, "/.well-known/jwks.json", "", "auth"},
		{http.MethodGet, "/api/v1/salons", "", "salon"},
		{http.MethodGet, "/api/v1/services/abc", "", "salon"},
		{http.MethodGet, "/api/v1/trainers", "", "salon"},
		{http.MethodGet, "/api/v1/trainers/t-1", "", "salon"},
		{http.MethodPost, "/api/v1/trainers/t-1/toggle", admin, "salon"},
		{http.MethodGet, "/api/v1/trainers/t-1/slots", "", "booking"},
		{http.MethodGet, "/api/v1/trainers/t-1/availability", "", "booking"},
		{http.MethodGet, "/api/v1/available-trainers", "", "booking"},
		{http.MethodGet, "/api/v1/appointments", admin, "booking"},
		{http.MethodGet, "/api/v1/trainer/dashboard", admin, "booking"},
		{http.MethodGet, "/api/v1/stats", admin, "analytics"},
	}
	for _, tc := range cases {
		*hits = nil
		if code := call(h, tc.method, tc.path, tc.bearer); code != http.StatusOK {
			t.Fatalf("%s %s: expected 200, got %d", tc.method, tc.path, code)
		}
		if len(*hits) != 1 || (*hits)[0] != tc.upstream {
			t.Fatalf("%s %s: expected %s, got %v", tc.method, tc.path, tc.upstream, *hits)
		}
	}
}

func TestRoleGuards(t *testing.T) {
	h, _, _ := newGateway(t)
	member := token(t, auth.RoleMember, "")
	trainer := token(t, auth.RoleTrainer, "t-1")
	cases := []struct {
		method, path, bearer string
		want                 int
	}{
		{http.MethodGet, "/api/v1/appointments", "", http.StatusUnauthorized},
		{http.MethodPost, "/api/v1/appointments", member, http.StatusOK},
		{http.MethodPost, "/api/v1/services", "", http.StatusUnauthorized},
		{http.MethodPost, "/api/v1/services", member, http.StatusForbidden},
		{http.MethodPut, "/api/v1/trainers/t-1", trainer, http.StatusForbidden},
		{http.MethodPost, "/api/v1/trainers/t-1/availability", member, http.StatusForbidden},
		{http.MethodPost, "/api/v1/trainers/t-1/availability", trainer, http.StatusOK},
		{http.MethodGet, "/api/v1/trainer/dashboard", member, http.StatusForbidden},
		{http.MethodGet, "/api/v1/trainer/dashboard", trainer, http.StatusOK},
		{http.MethodGet, "/api/v1/stats", trainer, http.StatusForbidden},
		{http.MethodGet, "/api/v1/salons", "not-a-token", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		if code := call(h, tc.method, tc.path, tc.bearer); code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, code)
		}
	}
}

func TestIdentityHeadersComeFromToken(t *testing.T) {
	h, _, seen := newGateway(t)

	spoofed := httptest.NewRequest(http.MethodGet, "/api/v1/salons", nil)
	spoofed.Header.Set(auth.HeaderUserID, "intruder")
	spoofed.Header.Set(auth.HeaderRole, auth.RoleAdmin)
	h.ServeHTTP(httptest.NewRecorder(), spoofed)
	if seen.Get(auth.HeaderUserID) != "" || seen.Get(auth.HeaderRole) != "" {
		t.Fatalf("expected spoofed identity to be stripped, got %v", *seen)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, auth.RoleTrainer, "t-9"))
	req.Header.Set(auth.HeaderTrainerID, "t-1")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if seen.Get(auth.HeaderUserID) != "user-1" || seen.Get(auth.HeaderRole) != auth.RoleTrainer || seen.Get(auth.HeaderTrainerID) != "t-9" {
		t.Fatalf("unexpected forwarded identity %v", *seen)
	}
}

func TestBookingTrainerPath(t *testing.T) {
	cases := map[string]bool{
		"/api/v1/trainers":                      false,
		"/api/v1/trainers/t-1":                  false,
		"/api/v1/trainers/t-1/services":         false,
		"/api/v1/trainers/t-1/slots":            true,
		"/api/v1/trainers/t-1/availability/w-1": true,
		"/api/v1/trainer/dashboard":             false,
	}
	for path, want := range cases {
		if got := bookingTrainerPath(path); got != want {
			t.Fatalf("%s: expected %v, got %v", path, want, got)
		}
	}
}

func TestOpenAPIIsServed(t *testing.T) {
	h, _, _ := newGateway(t)
	if code := call(h, http.MethodGet, "/openapi", ""); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}
