package handlers

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/fitbook/libs/auth"
	"github.com/md-rashed-zaman/fitbook/libs/outbox"
	"github.com/md-rashed-zaman/fitbook/services/auth-service/internal/sessions"
	"github.com/md-rashed-zaman/fitbook/services/auth-service/internal/storage"
)

type fakeUsers struct {
	mu     sync.Mutex
	byID   map[string]storage.User
	events []outbox.Event
}

func (f *fakeUsers) Create(_ context.Context, user storage.User, evt outbox.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == user.Email {
			return storage.ErrDuplicate
		}
	}
	f.byID[user.ID] = user
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (storage.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return storage.User{}, storage.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (storage.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return storage.User{}, storage.ErrNotFound
	}
	return u, nil
}

type fakeRefresh struct {
	mu     sync.Mutex
	tokens map[string]sessions.RefreshToken
}

func (f *fakeRefresh) Create(_ context.Context, userID, raw string, expiresAt time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	hash := sessions.HashToken(raw)
	f.tokens[hash] = sessions.RefreshToken{ID: id, UserID: userID, Hash: hash, ExpiresAt: expiresAt}
	return id, nil
}

func (f *fakeRefresh) GetByHash(_ context.Context, hash string) (sessions.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[hash]
	if !ok {
		return sessions.RefreshToken{}, sessions.ErrNotFound
	}
	return t, nil
}

func (f *fakeRefresh) Revoke(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for hash, t := range f.tokens {
		if t.ID == id {
			if t.RevokedAt != nil {
				return false, nil
			}
			now := time.Now()
			t.RevokedAt = &now
			f.tokens[hash] = t
			return true, nil
		}
	}
	return false, nil
}

type harness struct {
	handler *AuthHandler
	mux     *http.ServeMux
	users   *fakeUsers
	signer  TokenSigner
}

func newHarness(signer TokenSigner) *harness {
	users := &fakeUsers{byID: map[string]storage.User{}}
	refresh := &fakeRefresh{tokens: map[string]sessions.RefreshToken{}}
	h := NewAuthHandler(signer, users, refresh, Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	h.Routes(mux)
	return &harness{handler: h, mux: mux, users: users, signer: signer}
}

func (hs *harness) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rw := httptest.NewRecorder()
	hs.mux.ServeHTTP(rw, req)
	return rw
}

func decodeTokens(t *testing.T, rw *httptest.ResponseRecorder) tokenResponse {
	t.Helper()
	var resp tokenResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode token response: %v (%s)", err, rw.Body.String())
	}
	return resp
}

const registerBody = `{"email":"Member@Example.com","password":"correct-horse","first_name":"Deniz","last_name":"Yilmaz"}`

func TestPasswordHashing(t *testing.T) {
	password := "pass123"
	hash, err := hashPassword(password)
	if err != nil {
		t.Fatalf("hashPassword failed: %v", err)
	}
	if hash == "" {
		t.Fatal("expected non-empty hash")
	}
	if err := verifyPassword(hash, password); err != nil {
		t.Fatalf("verifyPassword should succeed: %v", err)
	}
	if err := verifyPassword(hash, "wrong-pass"); err == nil {
		t.Fatal("verifyPassword should fail for wrong password")
	}
}

func TestRegisterIssuesMemberTokenAndEvent(t *testing.T) {
	hs := newHarness(NewHS256Signer("test-secret"))

	rw := hs.do(t, http.MethodPost, "/api/v1/auth/register", registerBody, nil)
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rw.Code, rw.Body.String())
	}
	resp := decodeTokens(t, rw)
	if resp.User.Email != "member@example.com" || resp.User.Role != auth.RoleMember || resp.ExpiresIn != 3600 {
		t.Fatalf("unexpected response %+v", resp)
	}
	claims, err := hs.signer.Verify(resp.AccessToken)
	if err != nil {
		t.Fatalf("access token should verify: %v", err)
	}
	if claims.Subject != resp.User.ID || claims.Role != auth.RoleMember {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if len(hs.users.events) != 1 || hs.users.events[0].EventType != EventUserCreated {
		t.Fatalf("expected one user created event, got %+v", hs.users.events)
	}
	var payload userCreatedEvent
	if err := json.Unmarshal(hs.users.events[0].Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.UserID != resp.User.ID || payload.Role != auth.RoleMember {
		t.Fatalf("unexpected payload %+v", payload)
	}

	if rw := hs.do(t, http.MethodPost, "/api/v1/auth/register", registerBody, nil); rw.Code != http.StatusConflict {
		t.Fatalf("duplicate email: expected 409, got %d", rw.Code)
	}
	short := strings.Replace(registerBody, "correct-horse", "short", 1)
	if rw := hs.do(t, http.MethodPost, "/api/v1/auth/register", short, nil); rw.Code != http.StatusBadRequest {
		t.Fatalf("short password: expected 400, got %d", rw.Code)
	}
}

func TestLoginRefreshLogout(t *testing.T) {
	hs := newHarness(NewHS256Signer("test-secret"))
	hs.do(t, http.MethodPost, "/api/v1/auth/register", registerBody, nil)

	bad := `{"email":"member@example.com","password":"wrong-password"}`
	if rw := hs.do(t, http.MethodPost, "/api/v1/auth/login", bad, nil); rw.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", rw.Code)
	}
	rw := hs.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"MEMBER@example.com","password":"correct-horse"}`, nil)
	if rw.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d (%s)", rw.Code, rw.Body.String())
	}
	first := decodeTokens(t, rw)

	rw = hs.do(t, http.MethodPost, "/api/v1/auth/refresh", `{"refresh_token":"`+first.RefreshToken+`"}`, nil)
	if rw.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d", rw.Code)
	}
	second := decodeTokens(t, rw)
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh token should rotate")
	}
	if rw := hs.do(t, http.MethodPost, "/api/v1/auth/refresh", `{"refresh_token":"`+first.RefreshToken+`"}`, nil); rw.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh token: expected 401, got %d", rw.Code)
	}

	if rw := hs.do(t, http.MethodPost, "/api/v1/auth/logout", `{"refresh_token":"`+second.RefreshToken+`"}`, nil); rw.Code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", rw.Code)
	}
	if rw := hs.do(t, http.MethodPost, "/api/v1/auth/refresh", `{"refresh_token":"`+second.RefreshToken+`"}`, nil); rw.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: expected 401, got %d", rw.Code)
	}
	if rw := hs.do(t, http.MethodPost, "/api/v1/auth/logout", `{"refresh_token":"unknown"}`, nil); rw.Code != http.StatusNoContent {
		t.Fatalf("logout unknown token: expected 204, got %d", rw.Code)
	}

	rw = hs.do(t, http.MethodGet, "/api/v1/auth/me", "", map[string]string{"Authorization": "Bearer " + second.AccessToken})
	if rw.Code != http.StatusOK || !strings.Contains(rw.Body.String(), "member@example.com") {
		t.Fatalf("me: got %d (%s)", rw.Code, rw.Body.String())
	}
	if rw := hs.do(t, http.MethodGet, "/api/v1/auth/me", "", nil); rw.Code != http.StatusUnauthorized {
		t.Fatalf("me without token: expected 401, got %d", rw.Code)
	}
}

func TestAdminCreatesTrainerAccount(t *testing.T) {
	hs := newHarness(NewHS256Signer("test-secret"))
	admin := map[string]string{auth.HeaderUserID: uuid.NewString(), auth.HeaderRole: auth.RoleAdmin}
	member := map[string]string{auth.HeaderUserID: uuid.NewString(), auth.HeaderRole: auth.RoleMember}
	trainerID := uuid.NewString()

	withoutTrainer := `{"email":"coach@example.com","password":"coach-pass-1","first_name":"Can","last_name":"Demir","role":"trainer"}`
	withTrainer := strings.TrimSuffix(withoutTrainer, "}") + `,"trainer_id":"` + trainerID + `"}`

	if rw := hs.do(t, http.MethodPost, "/api/v1/auth/users", withTrainer, member); rw.Code != http.StatusForbidden {
		t.Fatalf("member: expected 403, got %d", rw.Code)
	}
	if rw := hs.do(t, http.MethodPost, "/api/v1/auth/users", withTrainer, nil); rw.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", rw.Code)
	}
	if rw := hs.do(t, http.MethodPost, "/api/v1/auth/users", withoutTrainer, admin); rw.Code != http.StatusBadRequest {
		t.Fatalf("trainer without trainer_id: expected 400, got %d", rw.Code)
	}
	if rw := hs.do(t, http.MethodPost, "/api/v1/auth/users", withTrainer, admin); rw.Code != http.StatusCreated {
		t.Fatalf("admin create: expected 201, got %d (%s)", rw.Code, rw.Body.String())
	}

	rw := hs.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"coach@example.com","password":"coach-pass-1"}`, nil)
	claims, err := hs.signer.Verify(decodeTokens(t, rw).AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Role != auth.RoleTrainer || claims.TrainerID != trainerID {
		t.Fatalf("unexpected trainer claims %+v", claims)
	}
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	hs := newHarness(NewHS256Signer("test-secret"))
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := hs.handler.EnsureAdmin(ctx, "Admin@FitBook.local", "admin-pass-1"); err != nil {
			t.Fatalf("EnsureAdmin #%d: %v", i, err)
		}
	}
	if len(hs.users.byID) != 1 {
		t.Fatalf("expected one admin, got %d users", len(hs.users.byID))
	}
	u, err := hs.users.GetByEmail(ctx, "admin@fitbook.local")
	if err != nil || u.Role != auth.RoleAdmin {
		t.Fatalf("unexpected admin %+v err=%v", u, err)
	}
}

func TestRSASignerJWKSAndRotation(t *testing.T) {
	k1, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	k2, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	kid1, kid2 := auth.KeyID(&k1.PublicKey), auth.KeyID(&k2.PublicKey)
	signer, err := NewRSASigner(map[string]*rsa.PrivateKey{kid1: k1, kid2: k2}, kid1)
	if err != nil {
		t.Fatalf("NewRSASigner: %v", err)
	}
	hs := newHarness(signer)

	rw := hs.do(t, http.MethodGet, "/.well-known/jwks.json", "", nil)
	var set auth.JWKSet
	if err := json.Unmarshal(rw.Body.Bytes(), &set); err != nil || len(set.Keys) != 2 {
		t.Fatalf("expected two jwks keys, got %s (%v)", rw.Body.String(), err)
	}

	before, err := signer.Sign(auth.NewClaims("u-1", auth.RoleMember, "", time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	admin := map[string]string{auth.HeaderUserID: uuid.NewString(), auth.HeaderRole: auth.RoleAdmin}
	if rw := hs.do(t, http.MethodPost, "/api/v1/auth/rotate", `{"active_kid":"`+kid2+`"}`, admin); rw.Code != http.StatusNoContent {
		t.Fatalf("rotate: expected 204, got %d", rw.Code)
	}
	if signer.ActiveKid() != kid2 {
		t.Fatalf("expected active kid %s, got %s", kid2, signer.ActiveKid())
	}
	if _, err := signer.Verify(before); err != nil {
		t.Fatalf("token signed before rotation should still verify: %v", err)
	}
	if rw := hs.do(t, http.MethodPost, "/api/v1/auth/rotate", `{"active_kid":"nope"}`, admin); rw.Code != http.StatusBadRequest {
		t.Fatalf("unknown kid: expected 400, got %d", rw.Code)
	}

	hsHS := newHarness(NewHS256Signer("s"))
	if rw := hsHS.do(t, http.MethodGet, "/.well-known/jwks.json", "", nil); rw.Code != http.StatusNotFound {
		t.Fatalf("hs256 jwks: expected 404, got %d", rw.Code)
	}
}
