package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/fitbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/fitbook/services/booking-service/internal/model"
)

const (
	dashboardUpcoming = 5
	dashboardPending  = 10
	maxListLimit      = 200
)

func (s *Service) ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, error) {
	if f.Limit <= 0 || f.Limit > maxListLimit {
		f.Limit = 50
	}
	appts, err := s.store.Appointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// GetAppointment returns the appointment with its status history, oldest
// change first.
func (s *Service) GetAppointment(ctx context.Context, id string) (model.Appointment, []model.StatusChange, error) {
	appt, err := s.store.Appointment(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return model.Appointment{}, nil, ErrAppointmentNotFound
	}
	if err != nil {
		return model.Appointment{}, nil, fmt.Errorf("load appointment: %w", err)
	}
	history, err := s.store.History(ctx, id)
	if err != nil {
		return model.Appointment{}, nil, fmt.Errorf("load history: %w", err)
	}
	return appt, history, nil
}

// AvailableTrainers lists active trainers free for the whole interval
// starting at startMinute on date. Without a service the default duration is
// used and every active trainer is considered.
func (s *Service) AvailableTrainers(ctx context.Context, date time.Time, startMinute int, serviceID string) ([]model.Trainer, error) {
	if startMinute < 0 || startMinute >= model.MinutesPerDay {
		return nil, fmt.Errorf("%w: start time out of range", ErrInvalidRequest)
	}
	duration := s.cfg.DefaultDuration
	if serviceID != "" {
		svc, err := s.LookupService(ctx, serviceID)
		if err != nil {
			return nil, err
		}
		duration = svc.Duration()
	}

	day := model.StartOfDay(date)
	start := day.Add(time.Duration(startMinute) * time.Minute)
	requested := availability.Interval{Start: start, End: start.Add(duration)}

	trainers, err := s.store.Trainers(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("list trainers: %w", err)
	}
	free := make([]model.Trainer, 0, len(trainers))
	for _, t := range trainers {
		windows, err := s.store.ActiveWindows(ctx, t.ID, day.Weekday())
		if err != nil {
			return nil, fmt.Errorf("load windows: %w", err)
		}
		if !availability.Covers(windowIntervals(windows, day), requested) {
			continue
		}
		busy, err := s.store.Occupying(ctx, t.ID, requested.Start, requested.End)
		if err != nil {
			return nil, fmt.Errorf("load occupying appointments: %w", err)
		}
		if availability.OverlapsAny(requested, busyIntervals(busy)) {
			continue
		}
		free = append(free, t)
	}
	return free, nil
}

type Dashboard struct {
	Today    []model.Appointment
	Upcoming []model.Appointment
	Pending  []model.Appointment
	Totals   model.TrainerTotals
}

func (s *Service) TrainerDashboard(ctx context.Context, trainerID string) (Dashboard, error) {
	now := s.now()
	today := model.StartOfDay(now)

	var d Dashboard
	var err error
	if d.Today, err = s.store.Appointments(ctx, model.AppointmentFilter{
		TrainerID: trainerID,
		From:      today,
		To:        today.Add(24 * time.Hour),
		Limit:     maxListLimit,
		Ascending: true,
	}); err != nil {
		return Dashboard{}, fmt.Errorf("today's appointments: %w", err)
	}
	if d.Upcoming, err = s.store.Appointments(ctx, model.AppointmentFilter{
		TrainerID: trainerID,
		Statuses:  model.OccupyingStatuses(),
		From:      now,
		Limit:     dashboardUpcoming,
		Ascending: true,
	}); err != nil {
		return Dashboard{}, fmt.Errorf("upcoming appointments: %w", err)
	}
	if d.Pending, err = s.store.Appointments(ctx, model.AppointmentFilter{
		TrainerID: trainerID,
		Statuses:  []model.Status{model.StatusPending},
		Limit:     dashboardPending,
		Ascending: true,
	}); err != nil {
		return Dashboard{}, fmt.Errorf("pending appointments: %w", err)
	}
	if d.Totals, err = s.store.TrainerTotals(ctx, trainerID); err != nil {
		return Dashboard{}, fmt.Errorf("trainer totals: %w", err)
	}
	return d, nil
}

func (s *Service) ListWindows(ctx context.Context, trainerID string) ([]model.AvailabilityWindow, error) {
	windows, err := s.store.Windows(ctx, trainerID)
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}
	return windows, nil
}

func (s *Service) CreateWindow(ctx context.Context, w model.AvailabilityWindow) (model.AvailabilityWindow, error) {
	if err := w.Validate(); err != nil {
		return model.AvailabilityWindow{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	w.ID = uuid.NewString()
	w.CreatedAt = s.now()
	err := s.store.InTx(ctx, func(tx Tx) error {
		return tx.InsertWindow(ctx, w)
	})
	if err != nil {
		return model.AvailabilityWindow{}, fmt.Errorf("insert window: %w", err)
	}
	s.logger.Info("availability window created", "trainer_id", w.TrainerID, "window_id", w.ID, "weekday", int(w.Weekday))
	return w, nil
}

func (s *Service) UpdateWindow(ctx context.Context, w model.AvailabilityWindow) (model.AvailabilityWindow, error) {
	if err := w.Validate(); err != nil {
		return model.AvailabilityWindow{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	err := s.store.InTx(ctx, func(tx Tx) error {
		return tx.UpdateWindow(ctx, w)
	})
	if errors.Is(err, model.ErrNotFound) {
		return model.AvailabilityWindow{}, ErrWindowNotFound
	}
	if err != nil {
		return model.AvailabilityWindow{}, fmt.Errorf("update window: %w", err)
	}
	return w, nil
}

func (s *Service) DeleteWindow(ctx context.Context, trainerID, id string) error {
	err := s.store.InTx(ctx, func(tx Tx) error {
		return tx.DeleteWindow(ctx, trainerID, id)
	})
	if errors.Is(err, model.ErrNotFound) {
		return ErrWindowNotFound
	}
	if err != nil {
		return fmt.Errorf("delete window: %w", err)
	}
	return nil
}
