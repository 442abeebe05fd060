package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/md-rashed-zaman/fitbook/libs/auth"
	"github.com/md-rashed-zaman/fitbook/libs/httpx"
	"github.com/md-rashed-zaman/fitbook/libs/outbox"
	"github.com/md-rashed-zaman/fitbook/services/auth-service/internal/sessions"
	"github.com/md-rashed-zaman/fitbook/services/auth-service/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

const EventUserCreated = "auth.user.created.v1"

type Users interface {
	Create(ctx context.Context, user storage.User, evt outbox.Event) error
	GetByEmail(ctx context.Context, email string) (storage.User, error)
	GetByID(ctx context.Context, id string) (storage.User, error)
}

type RefreshTokens interface {
	Create(ctx context.Context, userID string, rawToken string, expiresAt time.Time) (string, error)
	GetByHash(ctx context.Context, hash string) (sessions.RefreshToken, error)
	Revoke(ctx context.Context, id string) (bool, error)
}

type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type AuthHandler struct {
	signer   TokenSigner
	users    Users
	refresh  RefreshTokens
	cfg      Config
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

func NewAuthHandler(signer TokenSigner, users Users, refresh RefreshTokens, cfg Config, logger *slog.Logger) *AuthHandler {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	return &AuthHandler{
		signer:   signer,
		users:    users,
		refresh:  refresh,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// Routes registers the auth endpoints on mux.
func (h *AuthHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/register", h.Register)
	mux.HandleFunc("POST /api/v1/auth/login", h.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", h.Refresh)
	mux.HandleFunc("POST /api/v1/auth/logout", h.Logout)
	mux.HandleFunc("GET /api/v1/auth/me", h.Me)
	mux.HandleFunc("POST /api/v1/auth/users", h.CreateUser)
	mux.HandleFunc("POST /api/v1/auth/rotate", h.Rotate)
	mux.HandleFunc("GET /.well-known/jwks.json", h.JWKS)
}

type registerRequest struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"required,max=50"`
	LastName  string `json:"last_name" validate:"required,max=50"`
}

type createUserRequest struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"required,max=50"`
	LastName  string `json:"last_name" validate:"required,max=50"`
	Role      string `json:"role" validate:"required,oneof=admin trainer member"`
	TrainerID string `json:"trainer_id" validate:"required_if=Role trainer,omitempty,uuid"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	TrainerID string `json:"trainer_id,omitempty"`
	CreatedAt string `json:"created_at"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in"`
	User         userResponse `json:"user"`
}

type userCreatedEvent struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	TrainerID string    `json:"trainer_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u storage.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		TrainerID: u.TrainerID,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst, false); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		http.Error(w, "invalid input", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "request_id", httpx.RequestIDFromContext(r.Context()), "err", err)
	http.Error(w, msg, http.StatusInternalServerError)
}

// Register creates a member account and signs it in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.createUser(r.Context(), storage.User{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      auth.RoleMember,
	}, req.Password)
	if errors.Is(err, storage.ErrDuplicate) {
		http.Error(w, "email already registered", http.StatusConflict)
		return
	}
	if err != nil {
		h.fail(w, r, "failed to create user", err)
		return
	}
	h.writeTokens(w, r, http.StatusCreated, user)
}

// CreateUser lets an admin create an account with any role.
func (h *AuthHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromRequest(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !p.IsAdmin() {
		http.Error(w, "admin role required", http.StatusForbidden)
		return
	}
	var req createUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Role != auth.RoleTrainer {
		req.TrainerID = ""
	}
	user, err := h.createUser(r.Context(), storage.User{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
		TrainerID: strings.ToLower(req.TrainerID),
	}, req.Password)
	if errors.Is(err, storage.ErrDuplicate) {
		http.Error(w, "email already registered", http.StatusConflict)
		return
	}
	if err != nil {
		h.fail(w, r, "failed to create user", err)
		return
	}
	h.logger.Info("user created by admin", "user_id", user.ID, "role", user.Role, "actor_id", p.UserID)
	httpx.WriteJSON(w, http.StatusCreated, toUserResponse(user))
}

// EnsureAdmin creates the bootstrap admin account when no user has that
// email yet.
func (h *AuthHandler) EnsureAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if _, err := h.users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	user, err := h.createUser(ctx, storage.User{
		Email:     email,
		FirstName: "FitBook",
		LastName:  "Admin",
		Role:      auth.RoleAdmin,
	}, password)
	if errors.Is(err, storage.ErrDuplicate) {
		return nil
	}
	if err != nil {
		return err
	}
	h.logger.Info("bootstrap admin created", "user_id", user.ID)
	return nil
}

func (h *AuthHandler) createUser(ctx context.Context, user storage.User, password string) (storage.User, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return storage.User{}, err
	}
	user.ID = uuid.NewString()
	user.Email = normalizeEmail(user.Email)
	user.FirstName = strings.TrimSpace(user.FirstName)
	user.LastName = strings.TrimSpace(user.LastName)
	user.PasswordHash = hash
	user.CreatedAt = h.now().UTC()

	evt, err := outbox.NewEvent("user", user.ID, EventUserCreated, userCreatedEvent{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		TrainerID: user.TrainerID,
		CreatedAt: user.CreatedAt,
	})
	if err != nil {
		return storage.User{}, err
	}
	if err := h.users.Create(ctx, user, evt); err != nil {
		return storage.User{}, err
	}
	return user, nil
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.users.GetByEmail(r.Context(), normalizeEmail(req.Email))
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.fail(w, r, "failed to lookup user", err)
		return
	}
	if err := verifyPassword(user.PasswordHash, req.Password); err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	h.writeTokens(w, r, http.StatusOK, user)
}

// Refresh exchanges a refresh token for a new pair. The old token is revoked
// so each refresh token works once.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}
	record, err := h.refresh.GetByHash(r.Context(), sessions.HashToken(strings.TrimSpace(req.RefreshToken)))
	if errors.Is(err, sessions.ErrNotFound) {
		http.Error(w, "invalid refresh token", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.fail(w, r, "failed to lookup refresh token", err)
		return
	}
	if !record.Usable(h.now()) {
		http.Error(w, "refresh token expired", http.StatusUnauthorized)
		return
	}

	user, err := h.users.GetByID(r.Context(), record.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "invalid refresh token", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.fail(w, r, "failed to lookup user", err)
		return
	}

	revoked, err := h.refresh.Revoke(r.Context(), record.ID)
	if err != nil {
		h.fail(w, r, "failed to rotate refresh token", err)
		return
	}
	if !revoked {
		http.Error(w, "refresh token expired", http.StatusUnauthorized)
		return
	}
	h.writeTokens(w, r, http.StatusOK, user)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}
	record, err := h.refresh.GetByHash(r.Context(), sessions.HashToken(strings.TrimSpace(req.RefreshToken)))
	if errors.Is(err, sessions.ErrNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		h.fail(w, r, "failed to lookup refresh token", err)
		return
	}
	if _, err := h.refresh.Revoke(r.Context(), record.ID); err != nil {
		h.fail(w, r, "failed to revoke refresh token", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if !strings.HasPrefix(authHeader, "Bearer ") || token == "" {
		http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
		return
	}
	claims, err := h.signer.Verify(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	user, err := h.users.GetByID(r.Context(), claims.Subject)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.fail(w, r, "failed to lookup user", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *AuthHandler) JWKS(w http.ResponseWriter, r *http.Request) {
	keys := h.signer.JWKS()
	if len(keys) == 0 {
		http.Error(w, "jwks not available", http.StatusNotFound)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, auth.JWKSet{Keys: keys})
}

// Rotate switches the signing key of an RSA key set. Admin only.
func (h *AuthHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromRequest(r)
	if !ok || !p.IsAdmin() {
		http.Error(w, "admin role required", http.StatusForbidden)
		return
	}
	rotator, ok := h.signer.(*RSASigner)
	if !ok {
		http.Error(w, "rotation not enabled", http.StatusBadRequest)
		return
	}
	var req struct {
		ActiveKid string `json:"active_kid" validate:"required"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := rotator.SetActiveKid(req.ActiveKid); err != nil {
		http.Error(w, "invalid active_kid", http.StatusBadRequest)
		return
	}
	h.logger.Info("signing key rotated", "active_kid", req.ActiveKid, "actor_id", p.UserID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) writeTokens(w http.ResponseWriter, r *http.Request, status int, user storage.User) {
	access, err := h.signer.Sign(auth.NewClaims(user.ID, user.Role, user.TrainerID, h.cfg.AccessTTL))
	if err != nil {
		h.fail(w, r, "failed to issue token", err)
		return
	}
	raw, err := newRefreshToken()
	if err != nil {
		h.fail(w, r, "failed to issue refresh token", err)
		return
	}
	if _, err := h.refresh.Create(r.Context(), user.ID, raw, h.now().Add(h.cfg.RefreshTTL)); err != nil {
		h.fail(w, r, "failed to issue refresh token", err)
		return
	}
	httpx.WriteJSON(w, status, tokenResponse{
		AccessToken:  access,
		RefreshToken: raw,
		TokenType:    "Bearer",
		ExpiresIn:    int(h.cfg.AccessTTL.Seconds()),
		User:         toUserResponse(user),
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func newRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashPassword(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func verifyPassword(hash string, raw string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw))
}
