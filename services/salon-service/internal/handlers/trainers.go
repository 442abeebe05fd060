package handlers

import (
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/fitbook/libs/httpx"
	"github.com/md-rashed-zaman/fitbook/services/salon-service/internal/storage"
)

type trainerRequest struct {
	SalonID     string `json:"salon_id" validate:"required,uuid"`
	FirstName   string `json:"first_name" validate:"required,max=50"`
	LastName    string `json:"last_name" validate:"required,max=50"`
	Email       string `json:"email" validate:"required,email"`
	Phone       string `json:"phone" validate:"required,max=30"`
	Specialties string `json:"specialties" validate:"required,max=200"`
	Bio         string `json:"bio" validate:"max=500"`
	Active      *bool  `json:"active"`
}

type trainerServicesRequest struct {
	ServiceIDs []string `json:"service_ids" validate:"max=50,dive,uuid"`
}

type trainerResponse struct {
	ID          string   `json:"id"`
	SalonID     string   `json:"salon_id"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	Email       string   `json:"email"`
	Phone       string   `json:"phone"`
	Specialties string   `json:"specialties"`
	Bio         string   `json:"bio,omitempty"`
	Active      bool     `json:"active"`
	ServiceIDs  []string `json:"service_ids,omitempty"`
}

func toTrainerResponse(t storage.Trainer) trainerResponse {
	return trainerResponse{
		ID:          t.ID,
		SalonID:     t.SalonID,
		FirstName:   t.FirstName,
		LastName:    t.LastName,
		Email:       t.Email,
		Phone:       t.Phone,
		Specialties: t.Specialties,
		Bio:         t.Bio,
		Active:      t.Active,
		ServiceIDs:  t.ServiceIDs,
	}
}

func (h *Handler) decodeTrainer(w http.ResponseWriter, r *http.Request) (storage.Trainer, bool) {
	var req trainerRequest
	if !h.decode(w, r, &req) {
		return storage.Trainer{}, false
	}
	return storage.Trainer{
		SalonID:     strings.ToLower(req.SalonID),
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:       strings.TrimSpace(req.Phone),
		Specialties: strings.TrimSpace(req.Specialties),
		Bio:         strings.TrimSpace(req.Bio),
		Active:      activeOr(req.Active),
	}, true
}

func (h *Handler) ListTrainers(w http.ResponseWriter, r *http.Request) {
	salonID, ok := queryID(w, r, "salon_id")
	if !ok {
		return
	}
	serviceID, ok := queryID(w, r, "service_id")
	if !ok {
		return
	}
	trainers, err := h.repo.ListTrainers(r.Context(), storage.TrainerFilter{
		SalonID:         salonID,
		ServiceID:       serviceID,
		IncludeInactive: includeInactive(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]trainerResponse, 0, len(trainers))
	for _, t := range trainers {
		resp = append(resp, toTrainerResponse(t))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetTrainer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, err := h.repo.GetTrainer(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toTrainerResponse(t))
}

func (h *Handler) CreateTrainer(w http.ResponseWriter, r *http.Request) {
	t, ok := h.decodeTrainer(w, r)
	if !ok {
		return
	}
	created, err := h.repo.CreateTrainer(r.Context(), t)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info("trainer created", "trainer_id", created.ID, "salon_id", created.SalonID)
	httpx.WriteJSON(w, http.StatusCreated, toTrainerResponse(created))
}

func (h *Handler) UpdateTrainer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, ok := h.decodeTrainer(w, r)
	if !ok {
		return
	}
	t.ID = id
	updated, err := h.repo.UpdateTrainer(r.Context(), t)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toTrainerResponse(updated))
}

func (h *Handler) ToggleTrainer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, err := h.repo.ToggleTrainer(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info("trainer toggled", "trainer_id", t.ID, "active", t.Active)
	httpx.WriteJSON(w, http.StatusOK, toTrainerResponse(t))
}

func (h *Handler) SetTrainerServices(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req trainerServicesRequest
	if !h.decode(w, r, &req) {
		return
	}
	ids := make([]string, 0, len(req.ServiceIDs))
	for _, s := range req.ServiceIDs {
		ids = append(ids, strings.ToLower(s))
	}
	if err := h.repo.SetTrainerServices(r.Context(), id, ids); err != nil {
		h.writeError(w, r, err)
		return
	}
	t, err := h.repo.GetTrainer(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toTrainerResponse(t))
}
