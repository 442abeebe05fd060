package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/fitbook/libs/otel"
	"github.com/md-rashed-zaman/fitbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/fitbook/services/booking-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrServiceNotFound        = errors.New("service not found")
	ErrTrainerUnavailable     = errors.New("trainer is not available for the requested time")
	ErrSlotConflict           = errors.New("requested time overlaps an existing appointment")
	ErrInvalidStateTransition = errors.New("invalid appointment status transition")
	ErrAppointmentNotFound    = errors.New("appointment not found")
	ErrWindowNotFound         = errors.New("availability window not found")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidRequest         = errors.New("invalid request")
)

type Config struct {
	SlotGranularity time.Duration
	DefaultDuration time.Duration
	Now             func() time.Time
}

type Service struct {
	store  Store
	logger *slog.Logger
	cfg    Config
	tracer trace.Tracer
}

func NewService(store Store, logger *slog.Logger, cfg Config) *Service {
	if cfg.SlotGranularity <= 0 {
		cfg.SlotGranularity = 30 * time.Minute
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = 60 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:  store,
		logger: logger,
		cfg:    cfg,
		tracer: otelx.Tracer("booking-service/booking"),
	}
}

func (s *Service) DefaultDuration() time.Duration {
	return s.cfg.DefaultDuration
}

func (s *Service) now() time.Time {
	return s.cfg.Now().UTC()
}

// LookupService returns an active service or ErrServiceNotFound.
func (s *Service) LookupService(ctx context.Context, id string) (model.Service, error) {
	svc, err := s.store.Service(ctx, id)
	if errors.Is(err, model.ErrNotFound) || (err == nil && !svc.Active) {
		return model.Service{}, fmt.Errorf("%w: %s", ErrServiceNotFound, id)
	}
	if err != nil {
		return model.Service{}, fmt.Errorf("load service %s: %w", id, err)
	}
	return svc, nil
}

// ListOpenSlots returns the bookable start times of trainerID on the calendar
// day of date. Zero granularity or duration fall back to the configured
// defaults. The result is advisory; CreateAppointment checks again.
func (s *Service) ListOpenSlots(ctx context.Context, trainerID string, date time.Time, granularity, duration time.Duration) ([]time.Time, error) {
	if granularity <= 0 {
		granularity = s.cfg.SlotGranularity
	}
	if duration <= 0 {
		duration = s.cfg.DefaultDuration
	}

	day := model.StartOfDay(date)
	windows, err := s.store.ActiveWindows(ctx, trainerID, day.Weekday())
	if err != nil {
		return nil, fmt.Errorf("load windows: %w", err)
	}
	if len(windows) == 0 {
		return nil, nil
	}

	// Tail candidates may run past midnight.
	busy, err := s.store.Occupying(ctx, trainerID, day, day.Add(24*time.Hour+duration))
	if err != nil {
		return nil, fmt.Errorf("load occupying appointments: %w", err)
	}
	return availability.OpenSlots(windowIntervals(windows, day), busyIntervals(busy), granularity, duration), nil
}

type BookingRequest struct {
	MemberID    string
	TrainerID   string
	ServiceID   string
	Date        time.Time
	StartMinute int
	Notes       string
	// ActorID is recorded in the history; it differs from MemberID when an
	// admin books on a member's behalf.
	ActorID string
}

func (r BookingRequest) validate() error {
	switch {
	case strings.TrimSpace(r.MemberID) == "":
		return fmt.Errorf("%w: member is required", ErrInvalidRequest)
	case strings.TrimSpace(r.TrainerID) == "":
		return fmt.Errorf("%w: trainer is required", ErrInvalidRequest)
	case strings.TrimSpace(r.ServiceID) == "":
		return fmt.Errorf("%w: service is required", ErrInvalidRequest)
	case r.StartMinute < 0 || r.StartMinute >= model.MinutesPerDay:
		return fmt.Errorf("%w: start time out of range", ErrInvalidRequest)
	}
	return nil
}

// CreateAppointment validates a booking and stores it as pending. The
// availability and conflict gates run again inside the transaction, under a
// per-trainer lock, so two overlapping requests cannot both commit.
func (s *Service) CreateAppointment(ctx context.Context, req BookingRequest) (model.Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "booking.create_appointment", trace.WithAttributes(
		attribute.String("trainer.id", req.TrainerID),
		attribute.String("service.id", req.ServiceID),
	))
	defer span.End()

	if err := req.validate(); err != nil {
		return model.Appointment{}, err
	}

	svc, err := s.LookupService(ctx, req.ServiceID)
	if err != nil {
		return model.Appointment{}, err
	}

	day := model.StartOfDay(req.Date)
	start := day.Add(time.Duration(req.StartMinute) * time.Minute)
	now := s.now()
	appt := model.Appointment{
		ID:        uuid.NewString(),
		MemberID:  req.MemberID,
		TrainerID: req.TrainerID,
		ServiceID: svc.ID,
		StartTime: start,
		EndTime:   start.Add(svc.Duration()),
		Status:    model.StatusPending,
		Price:     svc.Price,
		Notes:     strings.TrimSpace(req.Notes),
		CreatedAt: now,
		UpdatedAt: now,
	}
	actor := req.ActorID
	if actor == "" {
		actor = req.MemberID
	}

	err = s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.LockTrainer(ctx, appt.TrainerID); err != nil {
			return fmt.Errorf("lock trainer schedule: %w", err)
		}

		requested := availability.Interval{Start: appt.StartTime, End: appt.EndTime}
		windows, err := tx.ActiveWindows(ctx, appt.TrainerID, day.Weekday())
		if err != nil {
			return fmt.Errorf("load windows: %w", err)
		}
		if !availability.Covers(windowIntervals(windows, day), requested) {
			return ErrTrainerUnavailable
		}

		busy, err := tx.Occupying(ctx, appt.TrainerID, appt.StartTime, appt.EndTime)
		if err != nil {
			return fmt.Errorf("load occupying appointments: %w", err)
		}
		if availability.OverlapsAny(requested, busyIntervals(busy)) {
			return ErrSlotConflict
		}

		if err := tx.InsertAppointment(ctx, appt); err != nil {
			if errors.Is(err, model.ErrOverlap) {
				return ErrSlotConflict
			}
			return fmt.Errorf("insert appointment: %w", err)
		}
		return s.recordChange(ctx, tx, appt, model.StatusChange{
			AppointmentID: appt.ID,
			To:            model.StatusPending,
			ActorID:       actor,
			ChangedAt:     now,
		})
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrTrainerUnavailable) || errors.Is(err, ErrSlotConflict) {
			s.logger.Info("booking refused", "trainer_id", appt.TrainerID, "start_time", appt.StartTime, "reason", err.Error())
		}
		return model.Appointment{}, err
	}

	span.SetAttributes(attribute.String("appointment.id", appt.ID))
	s.logger.Info("appointment requested",
		"appointment_id", appt.ID,
		"trainer_id", appt.TrainerID,
		"member_id", appt.MemberID,
		"start_time", appt.StartTime,
	)
	return appt, nil
}

// Guard authorises a status change before it is validated. It sees the
// locked appointment, including its member and trainer ids.
type Guard func(appt model.Appointment, target model.Status) error

type TransitionRequest struct {
	AppointmentID string
	Target        model.Status
	ActorID       string
	Reason        string
}

// Transition moves an appointment to req.Target. The guard runs first, then
// the status table is consulted; the update, history row and outbox event
// commit together.
func (s *Service) Transition(ctx context.Context, req TransitionRequest, guard Guard) (model.Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "booking.transition", trace.WithAttributes(
		attribute.String("appointment.id", req.AppointmentID),
		attribute.String("appointment.target_status", string(req.Target)),
	))
	defer span.End()

	var updated model.Appointment
	err := s.store.InTx(ctx, func(tx Tx) error {
		appt, err := tx.AppointmentForUpdate(ctx, req.AppointmentID)
		if errors.Is(err, model.ErrNotFound) {
			return ErrAppointmentNotFound
		}
		if err != nil {
			return fmt.Errorf("load appointment: %w", err)
		}

		if guard != nil {
			if err := guard(appt, req.Target); err != nil {
				return err
			}
		}
		if !appt.Status.CanTransitionTo(req.Target) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, appt.Status, req.Target)
		}

		now := s.now()
		if err := tx.UpdateStatus(ctx, appt.ID, req.Target, now); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		change := model.StatusChange{
			AppointmentID: appt.ID,
			From:          appt.Status,
			To:            req.Target,
			ActorID:       req.ActorID,
			Reason:        strings.TrimSpace(req.Reason),
			ChangedAt:     now,
		}
		appt.Status = req.Target
		appt.UpdatedAt = now
		if err := s.recordChange(ctx, tx, appt, change); err != nil {
			return err
		}
		updated = appt
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return model.Appointment{}, err
	}

	s.logger.Info("appointment status changed",
		"appointment_id", updated.ID,
		"trainer_id", updated.TrainerID,
		"status", updated.Status,
		"actor_id", req.ActorID,
	)
	return updated, nil
}

func (s *Service) recordChange(ctx context.Context, tx Tx, appt model.Appointment, change model.StatusChange) error {
	if err := tx.AppendHistory(ctx, change); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	evt, err := appointmentEvent(appt, change)
	if err != nil {
		return err
	}
	if err := tx.Enqueue(ctx, evt); err != nil {
		return fmt.Errorf("enqueue %s: %w", evt.EventType, err)
	}
	return nil
}

func windowIntervals(windows []model.AvailabilityWindow, day time.Time) []availability.Interval {
	out := make([]availability.Interval, 0, len(windows))
	for _, w := range windows {
		if !w.Active {
			continue
		}
		start, end := w.On(day)
		out = append(out, availability.Interval{Start: start, End: end})
	}
	return out
}

func busyIntervals(appts []model.Appointment) []availability.Interval {
	out := make([]availability.Interval, 0, len(appts))
	for _, a := range appts {
		if !a.Status.IsOccupying() {
			continue
		}
		out = append(out, availability.Interval{Start: a.StartTime, End: a.EndTime})
	}
	return out
}
