package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/md-rashed-zaman/fitbook/libs/auth"
	"github.com/md-rashed-zaman/fitbook/libs/httpx"
)

type tokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// access is the caller class a route requires.
type access int

const (
	public access = iota
	authenticated
	trainerOrAdmin
	adminOnly
)

func (a access) allows(r *http.Request) (int, bool) {
	if a == public {
		return 0, true
	}
	p, ok := auth.PrincipalFromRequest(r)
	if !ok {
		return http.StatusUnauthorized, false
	}
	switch a {
	case trainerOrAdmin:
		if !p.IsAdmin() && !p.IsTrainer() {
			return http.StatusForbidden, false
		}
	case adminOnly:
		if !p.IsAdmin() {
			return http.StatusForbidden, false
		}
	}
	return 0, true
}

type upstreams struct {
	Auth      http.Handler
	Salon     http.Handler
	Booking   http.Handler
	Analytics http.Handler
}

// identify replaces client supplied identity headers with the verified
// claims of the bearer token. Requests without a token pass through
// anonymously; a token that fails verification is rejected.
func identify(v tokenVerifier) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth.StripIdentity(r)
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			if !strings.HasPrefix(header, "Bearer ") || token == "" {
				http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}
			claims, err := v.Verify(token)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			auth.ForwardClaims(r, claims)
			next.ServeHTTP(w, r)
		})
	}
}

// guard applies read to safe methods and write to everything else.
func guard(read, write access, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		required := write
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			required = read
		}
		if status, ok := required.allows(r); !ok {
			http.Error(w, http.StatusText(status), status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bookingTrainerPath reports whether a /api/v1/trainers/... path belongs to
// booking-service (slots and availability) rather than the salon catalog.
func bookingTrainerPath(path string) bool {
	rest := strings.TrimPrefix(path, "/api/v1/trainers/")
	if rest == path {
		return false
	}
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) < 2 {
		return false
	}
	return parts[1] == "slots" || parts[1] == "availability"
}

func registerRoutes(mux *http.ServeMux, up upstreams, openAPI []byte) {
	registerProxy(mux, "/api/v1/auth", up.Auth)
	mux.Handle("/.well-known/jwks.json", up.Auth)

	registerProxy(mux, "/api/v1/salons", guard(public, adminOnly, up.Salon))
	registerProxy(mux, "/api/v1/services", guard(public, adminOnly, up.Salon))

	catalogTrainers := guard(public, adminOnly, up.Salon)
	trainerCalendar := guard(public, trainerOrAdmin, up.Booking)
	registerProxy(mux, "/api/v1/trainers", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bookingTrainerPath(r.URL.Path) {
			trainerCalendar.ServeHTTP(w, r)
			return
		}
		catalogTrainers.ServeHTTP(w, r)
	}))

	registerProxy(mux, "/api/v1/available-trainers", guard(public, public, up.Booking))
	registerProxy(mux, "/api/v1/appointments", guard(authenticated, authenticated, up.Booking))
	registerProxy(mux, "/api/v1/trainer", guard(trainerOrAdmin, trainerOrAdmin, up.Booking))
	registerProxy(mux, "/api/v1/stats", guard(adminOnly, adminOnly, up.Analytics))

	mux.HandleFunc("/openapi", func(w http.ResponseWriter, _ *http.Request) {
		if len(openAPI) == 0 {
			http.Error(w, "openapi not available", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(openAPI)
	})
}

func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	mux.Handle(prefix, handler)
	mux.Handle(prefix+"/", handler)
}

func newProxy(target *url.URL, transport http.RoundTripper, logger *slog.Logger) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = transport
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("upstream timeout", "upstream", target.Host, "path", r.URL.Path)
			http.Error(w, "upstream timed out", http.StatusGatewayTimeout)
			return
		}
		logger.Error("upstream error", "upstream", target.Host, "path", r.URL.Path, "err", err)
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}
	return proxy
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}
