package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/fitbook/libs/outbox"
	"github.com/md-rashed-zaman/fitbook/services/booking-service/internal/model"
)

// Reader is the read side of the booking store. Lookups of a single row
// return model.ErrNotFound when it does not exist.
type Reader interface {
	ActiveWindows(ctx context.Context, trainerID string, weekday time.Weekday) ([]model.AvailabilityWindow, error)
	Windows(ctx context.Context, trainerID string) ([]model.AvailabilityWindow, error)
	// Occupying returns pending and confirmed appointments of the trainer
	// overlapping [from, to).
	Occupying(ctx context.Context, trainerID string, from, to time.Time) ([]model.Appointment, error)
	Service(ctx context.Context, id string) (model.Service, error)
	// Trainers returns active trainers, restricted to those linked to
	// serviceID when it is not empty.
	Trainers(ctx context.Context, serviceID string) ([]model.Trainer, error)
	Appointment(ctx context.Context, id string) (model.Appointment, error)
	Appointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, error)
	History(ctx context.Context, appointmentID string) ([]model.StatusChange, error)
	TrainerTotals(ctx context.Context, trainerID string) (model.TrainerTotals, error)
}

// Tx is a unit of work. Nothing it writes is visible to others until the
// function passed to Store.InTx returns nil.
type Tx interface {
	Reader
	// LockTrainer serialises booking transactions of one trainer until the
	// transaction ends.
	LockTrainer(ctx context.Context, trainerID string) error
	AppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error)
	// InsertAppointment returns model.ErrOverlap when the store itself
	// detects an overlapping occupying appointment.
	InsertAppointment(ctx context.Context, a model.Appointment) error
	UpdateStatus(ctx context.Context, id string, status model.Status, at time.Time) error
	AppendHistory(ctx context.Context, c model.StatusChange) error
	InsertWindow(ctx context.Context, w model.AvailabilityWindow) error
	UpdateWindow(ctx context.Context, w model.AvailabilityWindow) error
	DeleteWindow(ctx context.Context, trainerID, id string) error
	Enqueue(ctx context.Context, evt outbox.Event) error
}

type Store interface {
	Reader
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
