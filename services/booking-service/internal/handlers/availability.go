package handlers

import (
	"net/http"
	"time"

	"github.com/md-rashed-zaman/fitbook/libs/httpx"
	"github.com/md-rashed-zaman/fitbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/fitbook/services/booking-service/internal/policy"
)

type slotItem struct {
	Time      string `json:"time"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Slots lists open start times for a trainer on one day. The duration comes
// from service_id when given, else duration_minutes, else the default.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	trainerID, ok := pathID(w, r, "trainerId")
	if !ok {
		return
	}
	q := r.URL.Query()
	day, err := parseDate(q.Get("date"))
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	granularity, ok := minutesParam(q.Get("granularity_minutes"), 5, 240)
	if !ok {
		http.Error(w, "granularity_minutes must be between 5 and 240", http.StatusBadRequest)
		return
	}
	duration, ok := minutesParam(q.Get("duration_minutes"), 15, 480)
	if !ok {
		http.Error(w, "duration_minutes must be between 15 and 480", http.StatusBadRequest)
		return
	}
	serviceID, err := optionalID(q.Get("service_id"))
	if err != nil {
		http.Error(w, "invalid service_id", http.StatusBadRequest)
		return
	}
	if serviceID != "" {
		svc, err := h.svc.LookupService(r.Context(), serviceID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		duration = svc.Duration()
	}

	slots, err := h.svc.ListOpenSlots(r.Context(), trainerID, day, granularity, duration)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if duration == 0 {
		duration = h.svc.DefaultDuration()
	}
	resp := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		resp = append(resp, slotItem{
			Time:      s.Format("15:04"),
			StartTime: s.Format(time.RFC3339),
			EndTime:   s.Add(duration).Format(time.RFC3339),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type trainerItem struct {
	ID        string `json:"id"`
	SalonID   string `json:"salon_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (h *BookingHandler) AvailableTrainers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	day, err := parseDate(q.Get("date"))
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	start, err := model.ParseClock(q.Get("time"))
	if err != nil || start >= model.MinutesPerDay {
		http.Error(w, "time must be HH:MM", http.StatusBadRequest)
		return
	}
	serviceID, err := optionalID(q.Get("service_id"))
	if err != nil {
		http.Error(w, "invalid service_id", http.StatusBadRequest)
		return
	}

	trainers, err := h.svc.AvailableTrainers(r.Context(), day, start, serviceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]trainerItem, 0, len(trainers))
	for _, t := range trainers {
		resp = append(resp, trainerItem{ID: t.ID, SalonID: t.SalonID, FirstName: t.FirstName, LastName: t.LastName})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type windowRequest struct {
	Weekday   *int   `json:"weekday"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Active    *bool  `json:"active"`
}

type windowResponse struct {
	ID        string `json:"id"`
	TrainerID string `json:"trainer_id"`
	Weekday   int    `json:"weekday"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Active    bool   `json:"active"`
}

func toWindowResponse(w model.AvailabilityWindow) windowResponse {
	return windowResponse{
		ID:        w.ID,
		TrainerID: w.TrainerID,
		Weekday:   int(w.Weekday),
		StartTime: model.FormatClock(w.StartMinute),
		EndTime:   model.FormatClock(w.EndMinute),
		Active:    w.Active,
	}
}

// decodeWindow parses the body into a window of trainerID. Range checks are
// left to model.AvailabilityWindow.Validate.
func decodeWindow(r *http.Request, trainerID string) (model.AvailabilityWindow, string) {
	var req windowRequest
	if err := httpx.DecodeJSON(r, &req, false); err != nil {
		return model.AvailabilityWindow{}, "invalid json body"
	}
	if req.Weekday == nil {
		return model.AvailabilityWindow{}, "weekday is required (0 = Sunday)"
	}
	start, err := model.ParseClock(req.StartTime)
	if err != nil {
		return model.AvailabilityWindow{}, "start_time must be HH:MM"
	}
	end, err := model.ParseClock(req.EndTime)
	if err != nil {
		return model.AvailabilityWindow{}, "end_time must be HH:MM"
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return model.AvailabilityWindow{
		TrainerID:   trainerID,
		Weekday:     time.Weekday(*req.Weekday),
		StartMinute: start,
		EndMinute:   end,
		Active:      active,
	}, ""
}

func (h *BookingHandler) ListWindows(w http.ResponseWriter, r *http.Request) {
	trainerID, ok := pathID(w, r, "trainerId")
	if !ok {
		return
	}
	windows, err := h.svc.ListWindows(r.Context(), trainerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]windowResponse, 0, len(windows))
	for _, win := range windows {
		resp = append(resp, toWindowResponse(win))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// windowOwner resolves the path trainer and checks the caller may edit its
// windows.
func windowOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	p, ok := principal(w, r)
	if !ok {
		return "", false
	}
	trainerID, ok := pathID(w, r, "trainerId")
	if !ok {
		return "", false
	}
	if !policy.CanManageWindows(p, trainerID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return "", false
	}
	return trainerID, true
}

func (h *BookingHandler) CreateWindow(w http.ResponseWriter, r *http.Request) {
	trainerID, ok := windowOwner(w, r)
	if !ok {
		return
	}
	win, msg := decodeWindow(r, trainerID)
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	created, err := h.svc.CreateWindow(r.Context(), win)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toWindowResponse(created))
}

func (h *BookingHandler) UpdateWindow(w http.ResponseWriter, r *http.Request) {
	trainerID, ok := windowOwner(w, r)
	if !ok {
		return
	}
	windowID, ok := pathID(w, r, "windowId")
	if !ok {
		return
	}
	win, msg := decodeWindow(r, trainerID)
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	win.ID = windowID
	updated, err := h.svc.UpdateWindow(r.Context(), win)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toWindowResponse(updated))
}

func (h *BookingHandler) DeleteWindow(w http.ResponseWriter, r *http.Request) {
	trainerID, ok := windowOwner(w, r)
	if !ok {
		return
	}
	windowID, ok := pathID(w, r, "windowId")
	if !ok {
		return
	}
	if err := h.svc.DeleteWindow(r.Context(), trainerID, windowID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
