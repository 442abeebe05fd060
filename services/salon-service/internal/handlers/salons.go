package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/fitbook/libs/httpx"
	"github.com/md-rashed-zaman/fitbook/services/salon-service/internal/storage"
)

type salonRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Address     string `json:"address" validate:"required,max=250"`
	Phone       string `json:"phone" validate:"required,max=30"`
	OpensAt     string `json:"opens_at" validate:"required,datetime=15:04"`
	ClosesAt    string `json:"closes_at" validate:"required,datetime=15:04"`
	Description string `json:"description" validate:"max=500"`
	Active      *bool  `json:"active"`
}

type salonResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	Phone       string `json:"phone"`
	OpensAt     string `json:"opens_at"`
	ClosesAt    string `json:"closes_at"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"created_at"`
}

func toSalonResponse(s storage.Salon) salonResponse {
	return salonResponse{
		ID:          s.ID,
		Name:        s.Name,
		Address:     s.Address,
		Phone:       s.Phone,
		OpensAt:     s.OpensAt,
		ClosesAt:    s.ClosesAt,
		Description: s.Description,
		Active:      s.Active,
		CreatedAt:   s.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *Handler) ListSalons(w http.ResponseWriter, r *http.Request) {
	salons, err := h.repo.ListSalons(r.Context(), includeInactive(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]salonResponse, 0, len(salons))
	for _, s := range salons {
		resp = append(resp, toSalonResponse(s))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) CreateSalon(w http.ResponseWriter, r *http.Request) {
	var req salonRequest
	if !h.decode(w, r, &req) {
		return
	}
	// HH:MM compares correctly as a string.
	if req.OpensAt >= req.ClosesAt {
		http.Error(w, "opens_at must be before closes_at", http.StatusBadRequest)
		return
	}

	s, err := h.repo.CreateSalon(r.Context(), storage.Salon{
		Name:        strings.TrimSpace(req.Name),
		Address:     strings.TrimSpace(req.Address),
		Phone:       strings.TrimSpace(req.Phone),
		OpensAt:     req.OpensAt,
		ClosesAt:    req.ClosesAt,
		Description: strings.TrimSpace(req.Description),
		Active:      activeOr(req.Active),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info("salon created", "salon_id", s.ID)
	httpx.WriteJSON(w, http.StatusCreated, toSalonResponse(s))
}
