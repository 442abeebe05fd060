package handlers

import (
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/fitbook/libs/httpx"
	"github.com/md-rashed-zaman/fitbook/services/salon-service/internal/storage"
	"github.com/shopspring/decimal"
)

var maxPrice = decimal.NewFromInt(999999)

type serviceRequest struct {
	SalonID         string          `json:"salon_id" validate:"required,uuid"`
	Name            string          `json:"name" validate:"required,max=100"`
	Description     string          `json:"description" validate:"max=500"`
	Kind            string          `json:"kind" validate:"required,max=50"`
	DurationMinutes int             `json:"duration_minutes" validate:"required,min=15,max=480"`
	Price           decimal.Decimal `json:"price"`
	Active          *bool           `json:"active"`
}

type serviceResponse struct {
	ID              string `json:"id"`
	SalonID         string `json:"salon_id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	Kind            string `json:"kind"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           string `json:"price"`
	Active          bool   `json:"active"`
}

func toServiceResponse(s storage.Service) serviceResponse {
	return serviceResponse{
		ID:              s.ID,
		SalonID:         s.SalonID,
		Name:            s.Name,
		Description:     s.Description,
		Kind:            s.Kind,
		DurationMinutes: s.DurationMinutes,
		Price:           s.Price.StringFixed(2),
		Active:          s.Active,
	}
}

// decodeService validates the body and returns the service it describes.
func (h *Handler) decodeService(w http.ResponseWriter, r *http.Request) (storage.Service, bool) {
	var req serviceRequest
	if !h.decode(w, r, &req) {
		return storage.Service{}, false
	}
	if req.Price.IsNegative() || req.Price.GreaterThan(maxPrice) {
		http.Error(w, "price must be between 0 and 999999", http.StatusBadRequest)
		return storage.Service{}, false
	}
	if !req.Price.Equal(req.Price.Round(2)) {
		http.Error(w, "price allows at most two decimals", http.StatusBadRequest)
		return storage.Service{}, false
	}
	return storage.Service{
		SalonID:         strings.ToLower(req.SalonID),
		Name:            strings.TrimSpace(req.Name),
		Description:     strings.TrimSpace(req.Description),
		Kind:            strings.TrimSpace(req.Kind),
		DurationMinutes: req.DurationMinutes,
		Price:           req.Price,
		Active:          activeOr(req.Active),
	}, true
}

func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	salonID, ok := queryID(w, r, "salon_id")
	if !ok {
		return
	}
	services, err := h.repo.ListServices(r.Context(), storage.ServiceFilter{
		SalonID:         salonID,
		IncludeInactive: includeInactive(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]serviceResponse, 0, len(services))
	for _, s := range services {
		resp = append(resp, toServiceResponse(s))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s, err := h.repo.GetService(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toServiceResponse(s))
}

func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	s, ok := h.decodeService(w, r)
	if !ok {
		return
	}
	created, err := h.repo.CreateService(r.Context(), s)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info("service created", "service_id", created.ID, "salon_id", created.SalonID)
	httpx.WriteJSON(w, http.StatusCreated, toServiceResponse(created))
}

func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s, ok := h.decodeService(w, r)
	if !ok {
		return
	}
	s.ID = id
	updated, err := h.repo.UpdateService(r.Context(), s)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toServiceResponse(updated))
}

func (h *Handler) DeleteService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.repo.DeactivateService(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info("service deactivated", "service_id", id)
	w.WriteHeader(http.StatusNoContent)
}
