package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/md-rashed-zaman/fitbook/libs/auth"
	"github.com/md-rashed-zaman/fitbook/libs/httpx"
	"github.com/md-rashed-zaman/fitbook/services/analytics-service/internal/projections"
)

const (
	defaultTop = 10
	maxTop     = 50
)

type StatsReader interface {
	Stats(ctx context.Context, limit int) (projections.Stats, error)
}

type Handler struct {
	stats  StatsReader
	logger *slog.Logger
}

func New(stats StatsReader, logger *slog.Logger) *Handler {
	return &Handler{stats: stats, logger: logger}
}

func (h *Handler) Routes(r *mux.Router) {
	r.HandleFunc("/api/v1/stats", h.Stats).Methods(http.MethodGet)
}

type trainerCount struct {
	TrainerID string `json:"trainer_id"`
	Completed int64  `json:"completed"`
}

type serviceCount struct {
	ServiceID string `json:"service_id"`
	Bookings  int64  `json:"bookings"`
}

type statsResponse struct {
	TotalMembers      int64            `json:"total_members"`
	TotalTrainers     int64            `json:"total_trainers"`
	TotalAppointments int64            `json:"total_appointments"`
	ByStatus          map[string]int64 `json:"appointments_by_status"`
	CompletedRevenue  string           `json:"completed_revenue"`
	TopTrainers       []trainerCount   `json:"top_trainers"`
	PopularServices   []serviceCount   `json:"popular_services"`
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromRequest(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !p.IsAdmin() {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	limit := defaultTop
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxTop {
			http.Error(w, "limit must be between 1 and 50", http.StatusBadRequest)
			return
		}
		limit = n
	}

	s, err := h.stats.Stats(r.Context(), limit)
	if err != nil {
		h.logger.Error("stats query failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := statsResponse{
		TotalMembers:      s.TotalMembers,
		TotalTrainers:     s.TotalTrainers,
		TotalAppointments: s.TotalAppointments,
		ByStatus:          s.ByStatus,
		CompletedRevenue:  s.CompletedRevenue.StringFixed(2),
		TopTrainers:       make([]trainerCount, 0, len(s.TopTrainers)),
		PopularServices:   make([]serviceCount, 0, len(s.PopularServices)),
	}
	for _, t := range s.TopTrainers {
		resp.TopTrainers = append(resp.TopTrainers, trainerCount{TrainerID: t.TrainerID, Completed: t.Completed})
	}
	for _, sc := range s.PopularServices {
		resp.PopularServices = append(resp.PopularServices, serviceCount{ServiceID: sc.ServiceID, Bookings: sc.Bookings})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
