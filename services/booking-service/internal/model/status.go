package model

import "fmt"

// Status is the closed set of appointment states. Every status change goes
// through CanTransitionTo.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusRejected, StatusCancelled},
	StatusConfirmed: {StatusCancelled, StatusCompleted},
}

func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusPending, StatusConfirmed, StatusRejected, StatusCancelled, StatusCompleted:
		return s, nil
	}
	return "", fmt.Errorf("unknown appointment status %q", raw)
}

func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsOccupying reports whether the appointment blocks its interval on the
// trainer's calendar.
func (s Status) IsOccupying() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// EventType is the Kafka topic announcing that an appointment entered s.
// Creation is published as "requested".
func (s Status) EventType() string {
	if s == StatusPending {
		return "booking.appointment.requested.v1"
	}
	return "booking.appointment." + string(s) + ".v1"
}

// OccupyingStatuses lists the statuses checked for calendar conflicts.
func OccupyingStatuses() []Status {
	return []Status{StatusPending, StatusConfirmed}
}
