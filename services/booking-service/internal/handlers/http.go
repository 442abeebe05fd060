package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/md-rashed-zaman/fitbook/libs/auth"
	"github.com/md-rashed-zaman/fitbook/libs/httpx"
	"github.com/md-rashed-zaman/fitbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/fitbook/services/booking-service/internal/model"
)

const dateLayout = "2006-01-02"

type BookingHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewBookingHandler(svc *booking.Service, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger}
}

// Routes registers the booking API on r.
func (h *BookingHandler) Routes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/trainers/{trainerId}/slots", h.Slots).Methods(http.MethodGet)
	api.HandleFunc("/available-trainers", h.AvailableTrainers).Methods(http.MethodGet)

	api.HandleFunc("/appointments", h.Create).Methods(http.MethodPost)
	api.HandleFunc("/appointments", h.List).Methods(http.MethodGet)
	api.HandleFunc("/appointments/{id}", h.Get).Methods(http.MethodGet)
	api.HandleFunc("/appointments/{id}/{action:confirm|reject|complete|cancel}", h.Transition).Methods(http.MethodPost)
	api.HandleFunc("/trainer/dashboard", h.Dashboard).Methods(http.MethodGet)

	api.HandleFunc("/trainers/{trainerId}/availability", h.ListWindows).Methods(http.MethodGet)
	api.HandleFunc("/trainers/{trainerId}/availability", h.CreateWindow).Methods(http.MethodPost)
	api.HandleFunc("/trainers/{trainerId}/availability/{windowId}", h.UpdateWindow).Methods(http.MethodPut)
	api.HandleFunc("/trainers/{trainerId}/availability/{windowId}", h.DeleteWindow).Methods(http.MethodDelete)
}

// writeError maps booking errors to status codes. Anything unknown is a
// storage failure and is logged, not echoed.
func (h *BookingHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, booking.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, booking.ErrServiceNotFound):
		http.Error(w, "service not found", http.StatusNotFound)
	case errors.Is(err, booking.ErrAppointmentNotFound):
		http.Error(w, "appointment not found", http.StatusNotFound)
	case errors.Is(err, booking.ErrWindowNotFound):
		http.Error(w, "availability window not found", http.StatusNotFound)
	case errors.Is(err, booking.ErrTrainerUnavailable):
		http.Error(w, "trainer is not available at the requested time", http.StatusUnprocessableEntity)
	case errors.Is(err, booking.ErrSlotConflict):
		http.Error(w, "time slot already booked", http.StatusConflict)
	case errors.Is(err, booking.ErrInvalidStateTransition):
		http.Error(w, "appointment cannot change to the requested status", http.StatusConflict)
	case errors.Is(err, booking.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		h.logger.Error("booking operation failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"err", err,
		)
		http.Error(w, "operation failed", http.StatusInternalServerError)
	}
}

func principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFromRequest(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
	return p, ok
}

// pathID reads a uuid path variable.
func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	raw := mux.Vars(r)[name]
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return "", false
	}
	return id.String(), true
}

func optionalID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func parseDate(raw string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, strings.TrimSpace(raw), time.UTC)
}

// minutesParam reads an optional whole number of minutes in [min, max].
func minutesParam(raw string, min, max int) (time.Duration, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		return 0, false
	}
	return time.Duration(n) * time.Minute, true
}

type historyItem struct {
	From      string `json:"from,omitempty"`
	To        string `json:"to"`
	ActorID   string `json:"actor_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	ChangedAt string `json:"changed_at"`
}

type appointmentResponse struct {
	ID        string        `json:"id"`
	MemberID  string        `json:"member_id"`
	TrainerID string        `json:"trainer_id"`
	ServiceID string        `json:"service_id"`
	Date      string        `json:"date"`
	StartTime string        `json:"start_time"`
	EndTime   string        `json:"end_time"`
	Status    string        `json:"status"`
	Price     string        `json:"price"`
	Notes     string        `json:"notes,omitempty"`
	CreatedAt string        `json:"created_at"`
	UpdatedAt string        `json:"updated_at"`
	History   []historyItem `json:"history,omitempty"`
}

func toAppointmentResponse(a model.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:        a.ID,
		MemberID:  a.MemberID,
		TrainerID: a.TrainerID,
		ServiceID: a.ServiceID,
		Date:      a.StartTime.UTC().Format(dateLayout),
		StartTime: a.StartTime.UTC().Format(time.RFC3339),
		EndTime:   a.EndTime.UTC().Format(time.RFC3339),
		Status:    string(a.Status),
		Price:     a.Price.StringFixed(2),
		Notes:     a.Notes,
		CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toAppointmentList(appts []model.Appointment) []appointmentResponse {
	out := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	return out
}
