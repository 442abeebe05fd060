package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/md-rashed-zaman/fitbook/libs/httpx"
	"github.com/md-rashed-zaman/fitbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/fitbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/fitbook/services/booking-service/internal/policy"
)

const maxNotesLength = 500

type createAppointmentRequest struct {
	TrainerID string `json:"trainer_id"`
	ServiceID string `json:"service_id"`
	MemberID  string `json:"member_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	Notes     string `json:"notes"`
}

type transitionRequest struct {
	Reason string `json:"reason"`
}

var actionTargets = map[string]model.Status{
	"confirm":  model.StatusConfirmed,
	"reject":   model.StatusRejected,
	"complete": model.StatusCompleted,
	"cancel":   model.StatusCancelled,
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if !policy.CanBook(p) {
		http.Error(w, "only members and admins can book", http.StatusForbidden)
		return
	}

	var req createAppointmentRequest
	if err := httpx.DecodeJSON(r, &req, false); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	trainerID, err1 := optionalID(req.TrainerID)
	serviceID, err2 := optionalID(req.ServiceID)
	if err1 != nil || err2 != nil || trainerID == "" || serviceID == "" {
		http.Error(w, "trainer_id and service_id must be valid ids", http.StatusBadRequest)
		return
	}
	day, err := parseDate(req.Date)
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	start, err := model.ParseClock(req.StartTime)
	if err != nil || start >= model.MinutesPerDay {
		http.Error(w, "start_time must be HH:MM", http.StatusBadRequest)
		return
	}
	if len(req.Notes) > maxNotesLength {
		http.Error(w, "notes too long", http.StatusBadRequest)
		return
	}

	memberID := p.UserID
	if p.IsAdmin() {
		id, err := optionalID(req.MemberID)
		if err != nil || id == "" {
			http.Error(w, "member_id is required when booking as admin", http.StatusBadRequest)
			return
		}
		memberID = id
	}

	appt, err := h.svc.CreateAppointment(r.Context(), booking.BookingRequest{
		MemberID:    memberID,
		TrainerID:   trainerID,
		ServiceID:   serviceID,
		Date:        day,
		StartMinute: start,
		Notes:       req.Notes,
		ActorID:     p.UserID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *BookingHandler) Transition(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	target, ok := actionTargets[mux.Vars(r)["action"]]
	if !ok {
		http.Error(w, "unknown action", http.StatusNotFound)
		return
	}

	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req, true); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if len(req.Reason) > maxNotesLength {
		http.Error(w, "reason too long", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Transition(r.Context(), booking.TransitionRequest{
		AppointmentID: id,
		Target:        target,
		ActorID:       p.UserID,
		Reason:        req.Reason,
	}, policy.Guard(p))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var f model.AppointmentFilter
	var err error
	if f.TrainerID, err = optionalID(q.Get("trainer_id")); err != nil {
		http.Error(w, "invalid trainer_id", http.StatusBadRequest)
		return
	}
	if f.MemberID, err = optionalID(q.Get("member_id")); err != nil {
		http.Error(w, "invalid member_id", http.StatusBadRequest)
		return
	}
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		if f.From, err = parseDate(raw); err != nil {
			http.Error(w, "from must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		to, err := parseDate(raw)
		if err != nil {
			http.Error(w, "to must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		// Inclusive of the whole "to" day.
		f.To = to.Add(24 * time.Hour)
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			s, err := model.ParseStatus(strings.TrimSpace(part))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			f.Statuses = append(f.Statuses, s)
		}
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			f.Limit = n
		}
	}

	f, ok = policy.Scope(p, f)
	if !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	appts, err := h.svc.ListAppointments(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentList(appts))
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	appt, history, err := h.svc.GetAppointment(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !policy.CanView(p, appt) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	resp := toAppointmentResponse(appt)
	for _, c := range history {
		resp.History = append(resp.History, historyItem{
			From:      string(c.From),
			To:        string(c.To),
			ActorID:   c.ActorID,
			Reason:    c.Reason,
			ChangedAt: c.ChangedAt.UTC().Format(time.RFC3339),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type totalsResponse struct {
	Appointments int `json:"appointments"`
	Completed    int `json:"completed"`
	Pending      int `json:"pending"`
	Members      int `json:"members"`
}

type dashboardResponse struct {
	TrainerID string                `json:"trainer_id"`
	Today     []appointmentResponse `json:"today"`
	Upcoming  []appointmentResponse `json:"upcoming"`
	Pending   []appointmentResponse `json:"pending"`
	Totals    totalsResponse        `json:"totals"`
}

// Dashboard serves the calling trainer's overview. Admins pick a trainer
// with ?trainer_id=.
func (h *BookingHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	trainerID := p.TrainerID
	switch {
	case p.IsTrainer():
	case p.IsAdmin():
		id, err := optionalID(r.URL.Query().Get("trainer_id"))
		if err != nil || id == "" {
			http.Error(w, "trainer_id is required", http.StatusBadRequest)
			return
		}
		trainerID = id
	default:
		http.Error(w, "trainer account required", http.StatusForbidden)
		return
	}

	d, err := h.svc.TrainerDashboard(r.Context(), trainerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dashboardResponse{
		TrainerID: trainerID,
		Today:     toAppointmentList(d.Today),
		Upcoming:  toAppointmentList(d.Upcoming),
		Pending:   toAppointmentList(d.Pending),
		Totals: totalsResponse{
			Appointments: d.Totals.All,
			Completed:    d.Totals.Completed,
			Pending:      d.Totals.Pending,
			Members:      d.Totals.Members,
		},
	})
}
