package booking

import (
	"time"

	"github.com/md-rashed-zaman/fitbook/libs/outbox"
	"github.com/md-rashed-zaman/fitbook/services/booking-service/internal/model"
)

const aggregateAppointment = "appointment"

// AppointmentEvent is the payload of every booking.appointment.*.v1 event.
type AppointmentEvent struct {
	AppointmentID  string    `json:"appointment_id"`
	MemberID       string    `json:"member_id"`
	TrainerID      string    `json:"trainer_id"`
	ServiceID      string    `json:"service_id"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Price          string    `json:"price"`
	ActorID        string    `json:"actor_id,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func appointmentEvent(a model.Appointment, change model.StatusChange) (outbox.Event, error) {
	return outbox.NewEvent(aggregateAppointment, a.ID, change.To.EventType(), AppointmentEvent{
		AppointmentID:  a.ID,
		MemberID:       a.MemberID,
		TrainerID:      a.TrainerID,
		ServiceID:      a.ServiceID,
		Status:         string(change.To),
		PreviousStatus: string(change.From),
		StartTime:      a.StartTime.UTC(),
		EndTime:        a.EndTime.UTC(),
		Price:          a.Price.StringFixed(2),
		ActorID:        change.ActorID,
		Reason:         change.Reason,
		OccurredAt:     change.ChangedAt.UTC(),
	})
}
