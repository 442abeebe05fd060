package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned by stores when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrOverlap is returned by stores when the database rejects an
	// overlapping occupying appointment.
	ErrOverlap = errors.New("overlapping appointment")
)

// Appointment times are UTC. EndTime and Price are copied from the service at
// booking time and never recomputed.
type Appointment struct {
	ID        string
	MemberID  string
	TrainerID string
	ServiceID string
	StartTime time.Time
	EndTime   time.Time
	Status    Status
	Price     decimal.Decimal
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type StatusChange struct {
	AppointmentID string
	From          Status
	To            Status
	ActorID       string
	Reason        string
	ChangedAt     time.Time
}

type Service struct {
	ID              string
	SalonID         string
	Name            string
	DurationMinutes int
	Price           decimal.Decimal
	Active          bool
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

type Trainer struct {
	ID        string
	SalonID   string
	FirstName string
	LastName  string
	Active    bool
}

// AppointmentFilter selects appointments for listings. Zero fields do not
// filter. Appointments are returned newest first unless Ascending is set.
type AppointmentFilter struct {
	MemberID  string
	TrainerID string
	Statuses  []Status
	From      time.Time
	To        time.Time
	Limit     int
	Ascending bool
}

func (f AppointmentFilter) Matches(a Appointment) bool {
	if f.MemberID != "" && a.MemberID != f.MemberID {
		return false
	}
	if f.TrainerID != "" && a.TrainerID != f.TrainerID {
		return false
	}
	if !f.From.IsZero() && a.StartTime.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !a.StartTime.Before(f.To) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if a.Status == s {
			return true
		}
	}
	return false
}

// TrainerTotals feeds the trainer dashboard.
type TrainerTotals struct {
	All       int
	Completed int
	Pending   int
	Members   int
}
