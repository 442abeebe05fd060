package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/md-rashed-zaman/fitbook/libs/auth"
	"github.com/md-rashed-zaman/fitbook/libs/httpx"
	"github.com/md-rashed-zaman/fitbook/services/salon-service/internal/storage"
)

// Catalog is the storage the handlers need; *storage.Repository implements it.
type Catalog interface {
	ListSalons(ctx context.Context, includeInactive bool) ([]storage.Salon, error)
	CreateSalon(ctx context.Context, s storage.Salon) (storage.Salon, error)

	ListServices(ctx context.Context, f storage.ServiceFilter) ([]storage.Service, error)
	GetService(ctx context.Context, id string) (storage.Service, error)
	CreateService(ctx context.Context, s storage.Service) (storage.Service, error)
	UpdateService(ctx context.Context, s storage.Service) (storage.Service, error)
	DeactivateService(ctx context.Context, id string) error

	ListTrainers(ctx context.Context, f storage.TrainerFilter) ([]storage.Trainer, error)
	GetTrainer(ctx context.Context, id string) (storage.Trainer, error)
	CreateTrainer(ctx context.Context, t storage.Trainer) (storage.Trainer, error)
	UpdateTrainer(ctx context.Context, t storage.Trainer) (storage.Trainer, error)
	ToggleTrainer(ctx context.Context, id string) (storage.Trainer, error)
	SetTrainerServices(ctx context.Context, trainerID string, serviceIDs []string) error
}

var _ Catalog = (*storage.Repository)(nil)

type Handler struct {
	repo     Catalog
	validate *validator.Validate
	logger   *slog.Logger
}

func New(repo Catalog, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, validate: validator.New(), logger: logger}
}

func (h *Handler) Routes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/salons", h.ListSalons).Methods(http.MethodGet)
	api.HandleFunc("/salons", adminOnly(h.CreateSalon)).Methods(http.MethodPost)

	api.HandleFunc("/services", h.ListServices).Methods(http.MethodGet)
	api.HandleFunc("/services", adminOnly(h.CreateService)).Methods(http.MethodPost)
	api.HandleFunc("/services/{id}", h.GetService).Methods(http.MethodGet)
	api.HandleFunc("/services/{id}", adminOnly(h.UpdateService)).Methods(http.MethodPut)
	api.HandleFunc("/services/{id}", adminOnly(h.DeleteService)).Methods(http.MethodDelete)

	api.HandleFunc("/trainers", h.ListTrainers).Methods(http.MethodGet)
	api.HandleFunc("/trainers", adminOnly(h.CreateTrainer)).Methods(http.MethodPost)
	api.HandleFunc("/trainers/{id}", h.GetTrainer).Methods(http.MethodGet)
	api.HandleFunc("/trainers/{id}", adminOnly(h.UpdateTrainer)).Methods(http.MethodPut)
	api.HandleFunc("/trainers/{id}/toggle", adminOnly(h.ToggleTrainer)).Methods(http.MethodPost)
	api.HandleFunc("/trainers/{id}/services", adminOnly(h.SetTrainerServices)).Methods(http.MethodPut)
}

// adminOnly repeats the gateway's role guard so the service is safe to
// expose on its own.
func adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFromRequest(r)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !p.IsAdmin() {
			http.Error(w, "admin role required", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// includeInactive honours ?include_inactive=true for admins only.
func includeInactive(r *http.Request) bool {
	if r.URL.Query().Get("include_inactive") != "true" {
		return false
	}
	p, ok := auth.PrincipalFromRequest(r)
	return ok && p.IsAdmin()
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrDuplicate):
		http.Error(w, "already exists", http.StatusConflict)
	case errors.Is(err, storage.ErrMissingReference):
		http.Error(w, "referenced salon or service does not exist", http.StatusUnprocessableEntity)
	default:
		h.logger.Error("catalog operation failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"err", err,
		)
		http.Error(w, "operation failed", http.StatusInternalServerError)
	}
}

// decode reads and validates a request body. It writes the 400 itself.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst, false); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			http.Error(w, "invalid input: "+describe(verrs), http.StatusBadRequest)
			return false
		}
		http.Error(w, "invalid input", http.StatusBadRequest)
		return false
	}
	return true
}

func describe(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+" failed "+fe.Tag())
	}
	return strings.Join(parts, ", ")
}

func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return "", false
	}
	return id.String(), true
}

func queryID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return "", true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return "", false
	}
	return id.String(), true
}

func activeOr(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}
