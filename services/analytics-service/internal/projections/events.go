package projections

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicUserCreated       = "auth.user.created.v1"
	appointmentTopicPrefix = "booking.appointment."
)

// AppointmentTopics lists every booking topic the projection follows.
var AppointmentTopics = []string{
	"booking.appointment.requested.v1",
	"booking.appointment.confirmed.v1",
	"booking.appointment.rejected.v1",
	"booking.appointment.cancelled.v1",
	"booking.appointment.completed.v1",
}

// Topics is everything the analytics consumer group subscribes to.
func Topics() []string {
	return append([]string{TopicUserCreated}, AppointmentTopics...)
}

type AppointmentEvent struct {
	AppointmentID string          `json:"appointment_id"`
	MemberID      string          `json:"member_id"`
	TrainerID     string          `json:"trainer_id"`
	ServiceID     string          `json:"service_id"`
	Status        string          `json:"status"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       time.Time       `json:"end_time"`
	Price         decimal.Decimal `json:"price"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func (e AppointmentEvent) valid() bool {
	if e.AppointmentID == "" || e.MemberID == "" || e.TrainerID == "" || e.ServiceID == "" {
		return false
	}
	if !knownStatus(e.Status) || e.OccurredAt.IsZero() || !e.EndTime.After(e.StartTime) {
		return false
	}
	return true
}

type UserEvent struct {
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	TrainerID string    `json:"trainer_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (e UserEvent) valid() bool {
	return e.UserID != "" && e.Role != "" && !e.CreatedAt.IsZero()
}

func knownStatus(s string) bool {
	switch s {
	case "pending", "confirmed", "rejected", "cancelled", "completed":
		return true
	}
	return false
}
