package booking_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/fitbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/fitbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/fitbook/services/booking-service/internal/storage"
	"github.com/shopspring/decimal"
)

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

const (
	trainerID  = "trainer-1"
	otherID    = "trainer-2"
	memberID   = "member-1"
	hourSvc    = "svc-60"
	halfSvc    = "svc-30"
	retiredSvc = "svc-retired"
)

func clock(h, m int) int { return h*60 + m }

func newFixture(t *testing.T) (*booking.Service, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	store.PutService(model.Service{ID: hourSvc, Name: "Personal training", DurationMinutes: 60, Price: decimal.RequireFromString("150.00"), Active: true})
	store.PutService(model.Service{ID: halfSvc, Name: "Stretching", DurationMinutes: 30, Price: decimal.RequireFromString("80.00"), Active: true})
	store.PutService(model.Service{ID: retiredSvc, Name: "Spinning", DurationMinutes: 45, Price: decimal.RequireFromString("60.00"), Active: false})
	store.PutTrainer(model.Trainer{ID: trainerID, FirstName: "Ayse", LastName: "Kaya", Active: true}, hourSvc, halfSvc)
	store.PutTrainer(model.Trainer{ID: otherID, FirstName: "Mehmet", LastName: "Demir", Active: true}, hourSvc)

	svc := booking.NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)), booking.Config{
		Now: func() time.Time { return monday.Add(8 * time.Hour) },
	})
	return svc, store
}

func addWindow(t *testing.T, svc *booking.Service, trainer string, day time.Weekday, from, to int) {
	t.Helper()
	if _, err := svc.CreateWindow(context.Background(), model.AvailabilityWindow{
		TrainerID: trainer, Weekday: day, StartMinute: from, EndMinute: to, Active: true,
	}); err != nil {
		t.Fatalf("CreateWindow: %v", err)
	}
}

func book(svc *booking.Service, trainer, service string, date time.Time, start int) (model.Appointment, error) {
	return svc.CreateAppointment(context.Background(), booking.BookingRequest{
		MemberID:    memberID,
		TrainerID:   trainer,
		ServiceID:   service,
		Date:        date,
		StartMinute: start,
	})
}

func transition(svc *booking.Service, id string, target model.Status) (model.Appointment, error) {
	return svc.Transition(context.Background(), booking.TransitionRequest{AppointmentID: id, Target: target, ActorID: "admin-1"}, nil)
}

func TestListOpenSlots_NoWindowsIsEmpty(t *testing.T) {
	svc, _ := newFixture(t)
	addWindow(t, svc, trainerID, time.Tuesday, clock(9, 0), clock(18, 0))

	slots, err := svc.ListOpenSlots(context.Background(), trainerID, monday, 0, 0)
	if err != nil {
		t.Fatalf("ListOpenSlots: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots, got %d", len(slots))
	}
}

func TestListOpenSlots_MondayNineToSix(t *testing.T) {
	svc, _ := newFixture(t)
	addWindow(t, svc, trainerID, time.Monday, clock(9, 0), clock(18, 0))

	slots, err := svc.ListOpenSlots(context.Background(), trainerID, monday, 30*time.Minute, 60*time.Minute)
	if err != nil {
		t.Fatalf("ListOpenSlots: %v", err)
	}
	if len(slots) != 18 {
		t.Fatalf("expected 18 slots, got %d", len(slots))
	}
	for i, s := range slots {
		want := monday.Add(9*time.Hour + time.Duration(i)*30*time.Minute)
		if !s.Equal(want) {
			t.Fatalf("slot %d: expected %s, got %s", i, want.Format("15:04"), s.Format("15:04"))
		}
	}
}

func TestTailSlotIsListedButRefusedAtCommit(t *testing.T) {
	svc, _ := newFixture(t)
	addWindow(t, svc, trainerID, time.Monday, clock(9, 0), clock(18, 0))

	if _, err := book(svc, trainerID, hourSvc, monday, clock(17, 30)); !errors.Is(err, booking.ErrTrainerUnavailable) {
		t.Fatalf("expected ErrTrainerUnavailable, got %v", err)
	}
	if _, err := book(svc, trainerID, hourSvc, monday, clock(17, 0)); err != nil {
		t.Fatalf("expected 17:00 to be bookable, got %v", err)
	}
}

func TestEveryListedSlotCanBeBooked(t *testing.T) {
	svc, _ := newFixture(t)
	addWindow(t, svc, trainerID, time.Monday, clock(9, 0), clock(12, 0))

	slots, err := svc.ListOpenSlots(context.Background(), trainerID, monday, 30*time.Minute, 30*time.Minute)
	if err != nil {
		t.Fatalf("ListOpenSlots: %v", err)
	}
	if len(slots) != 6 {
		t.Fatalf("expected 6 slots, got %d", len(slots))
	}
	for _, s := range slots {
		start := int(s.Sub(monday) / time.Minute)
		if _, err := book(svc, trainerID, halfSvc, monday, start); err != nil {
			t.Fatalf("booking listed slot %s failed: %v", s.Format("15:04"), err)
		}
	}

	slots, err = svc.ListOpenSlots(context.Background(), trainerID, monday, 30*time.Minute, 30*time.Minute)
	if err != nil {
		t.Fatalf("ListOpenSlots: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected a full calendar, got %d open slots", len(slots))
	}
}

func TestCreateAppointment_ConflictScenario(t *testing.T) {
	svc, _ := newFixture(t)
	addWindow(t, svc, trainerID, time.Monday, clock(9, 0), clock(18, 0))

	existing, err := book(svc, trainerID, hourSvc, monday, clock(10, 0))
	if err != nil {
		t.Fatalf("book 10:00: %v", err)
	}
	if _, err := transition(svc, existing.ID, model.StatusConfirmed); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if _, err := book(svc, trainerID, hourSvc, monday, clock(10, 30)); !errors.Is(err, booking.ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict for 10:30, got %v", err)
	}
	if _, err := book(svc, trainerID, hourSvc, monday, clock(9, 0)); err != nil {
		t.Fatalf("expected 09:00 to succeed, got %v", err)
	}
	if _, err := book(svc, trainerID, hourSvc, monday, clock(11, 0)); err != nil {
		t.Fatalf("expected 11:00 to succeed, got %v", err)
	}
}

func TestCreateAppointment_FreezesServiceSnapshot(t *testing.T) {
	svc, _ := newFixture(t)
	addWindow(t, svc, trainerID, time.Monday, clock(9, 0), clock(18, 0))

	appt, err := book(svc, trainerID, hourSvc, monday, clock(9, 0))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if appt.Status != model.StatusPending {
		t.Fatalf("expected pending, got %s", appt.Status)
	}
	if !appt.EndTime.Equal(monday.Add(10 * time.Hour)) {
		t.Fatalf("expected end 10:00, got %s", appt.EndTime)
	}
	if !appt.Price.Equal(decimal.RequireFromString("150")) {
		t.Fatalf("expected price 150, got %s", appt.Price)
	}
}

func TestCreateAppointment_InactiveServiceAlwaysNotFound(t *testing.T) {
	svc, _ := newFixture(t)

	// No windows at all: the service gate must still come first.
	if _, err := book(svc, trainerID, retiredSvc, monday, clock(9, 0)); !errors.Is(err, booking.ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
	addWindow(t, svc, trainerID, time.Monday, clock(9, 0), clock(18, 0))
	if _, err := book(svc, trainerID, retiredSvc, monday, clock(9, 0)); !errors.Is(err, booking.ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
	if _, err := book(svc, trainerID, "svc-missing", monday, clock(9, 0)); !errors.Is(err, booking.ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound for unknown id, got %v", err)
	}
}

func TestCancelledAppointmentFreesTheSlot(t *testing.T) {
	svc, _ := newFixture(t)
	addWindow(t, svc, trainerID, time.Monday, clock(9, 0), clock(18, 0))

	appt, err := book(svc, trainerID, hourSvc, monday, clock(14, 0))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := book(svc, trainerID, hourSvc, monday, clock(14, 0)); !errors.Is(err, booking.ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}
	if _, err := transition(svc, appt.ID, model.StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := book(svc, trainerID, hourSvc, monday, clock(14, 0)); err != nil {
		t.Fatalf("expected rebooking after cancel to succeed, got %v", err)
	}
}

func TestCompletedAndRejectedDoNotBlock(t *testing.T) {
	svc, _ := newFixture(t)
	addWindow(t, svc, trainerID, time.Monday, clock(9, 0), clock(18, 0))

	done, err := book(svc, trainerID, hourSvc, monday, clock(9, 0))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := transition(svc, done.ID, model.StatusConfirmed); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := transition(svc, done.ID, model.StatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}
	rejected, err := book(svc, trainerID, hourSvc, monday, clock(11, 0))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := transition(svc, rejected.ID, model.StatusRejected); err != nil {
		t.Fatalf("reject: %v", err)
	}

	slots, err := svc.ListOpenSlots(context.Background(), trainerID, monday, 0, 0)
	if err != nil {
		t.Fatalf("ListOpenSlots: %v", err)
	}
	if len(slots) != 18 {
		t.Fatalf("expected completed and rejected appointments not to block, got %d slots", len(slots))
	}
}

func TestInvalidTransitions(t *testing.T) {
	svc, _ := newFixture(t)
	addWindow(t, svc, trainerID, time.Monday, clock(9, 0), clock(18, 0))

	completed, _ := book(svc, trainerID, hourSvc, monday, clock(9, 0))
	transition(svc, completed.ID, model.StatusConfirmed)
	transition(svc, completed.ID, model.StatusCompleted)

	rejected, _ := book(svc, trainerID, hourSvc, monday, clock(10, 0))
	transition(svc, rejected.ID, model.StatusRejected)

	cancelled, _ := book(svc, trainerID, hourSvc, monday, clock(11, 0))
	transition(svc, cancelled.ID, model.StatusCancelled)

	pending, _ := book(svc, trainerID, hourSvc, monday, clock(12, 0))

	cases := []struct {
		id     string
		target model.Status
	}{
		{completed.ID, model.StatusPending},
		{completed.ID, model.StatusCancelled},
		{rejected.ID, model.StatusConfirmed},
		{cancelled.ID, model.StatusPending},
		{cancelled.ID, model.StatusConfirmed},
		{cancelled.ID, model.StatusCompleted},
		{pending.ID, model.StatusCompleted},
	}
	for _, tc := range cases {
		if _, err := transition(svc, tc.id, tc.target); !errors.Is(err, booking.ErrInvalidStateTransition) {
			t.Fatalf("expected ErrInvalidStateTransition for -> %s, got %v", tc.target, err)
		}
	}

	if _, err := transition(svc, "missing", model.StatusConfirmed); !errors.Is(err, booking.ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}
}

func TestGuardRunsBeforeTransition(t *testing.T) {
	svc, _ := newFixture(t)
	addWindow(t, svc, trainerID, time.Monday, clock(9, 0), clock(18, 0))

	appt, err := book(svc, trainerID, hourSvc, monday, clock(9, 0))
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	var seen model.Appointment
	deny := func(a model.Appointment, _ model.Status) error {
		seen = a
		return booking.ErrForbidden
	}
	_, err = svc.Transition(context.Background(), booking.TransitionRequest{AppointmentID: appt.ID, Target: model.StatusConfirmed}, deny)
	if !errors.Is(err, booking.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if seen.MemberID != memberID || seen.TrainerID != trainerID {
		t.Fatalf("guard did not receive the appointment owners: %+v", seen)
	}

	got, _, err := svc.GetAppointment(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("GetAppointment: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Fatalf("expected status unchanged, got %s", got.Status)
	}
}

func TestEventsAndHistoryCommitWithChanges(t *testing.T) {
	svc, store := newFixture(t)
	addWindow(t, svc, trainerID, time.Monday, clock(9, 0), clock(18, 0))

	appt, err := book(svc, trainerID, hourSvc, monday, clock(9, 0))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := book(svc, trainerID, hourSvc, monday, clock(9, 30)); !errors.Is(err, booking.ErrSlotConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := svc.Transition(context.Background(), booking.TransitionRequest{
		AppointmentID: appt.ID, Target: model.StatusCancelled, ActorID: memberID, Reason: "sick",
	}, nil); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	events := store.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].EventType != "booking.appointment.requested.v1" || events[1].EventType != "booking.appointment.cancelled.v1" {
		t.Fatalf("unexpected event types %q, %q", events[0].EventType, events[1].EventType)
	}
	if events[1].AggregateID != appt.ID {
		t.Fatalf("expected aggregate id %s, got %s", appt.ID, events[1].AggregateID)
	}

	_, history, err := svc.GetAppointment(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("GetAppointment: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(history))
	}
	if history[1].From != model.StatusPending || history[1].To != model.StatusCancelled || history[1].Reason != "sick" {
		t.Fatalf("unexpected history row %+v", history[1])
	}
}

func TestConcurrentOverlappingBookingsOnlyOneWins(t *testing.T) {
	svc, _ := newFixture(t)
	addWindow(t, svc, trainerID, time.Monday, clock(9, 0), clock(18, 0))

	const workers = 12
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		start := clock(10, 0)
		if i%2 == 1 {
			start = clock(10, 30)
		}
		wg.Add(1)
		go func(start int) {
			defer wg.Done()
			_, err := book(svc, trainerID, hourSvc, monday, start)
			results <- err
		}(start)
	}
	wg.Wait()
	close(results)

	var ok, conflicts int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, booking.ErrSlotConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 || conflicts != workers-1 {
		t.Fatalf("expected exactly one success, got %d successes and %d conflicts", ok, conflicts)
	}
}

func TestAvailableTrainers(t *testing.T) {
	svc, _ := newFixture(t)
	addWindow(t, svc, trainerID, time.Monday, clock(9, 0), clock(18, 0))
	addWindow(t, svc, otherID, time.Monday, clock(9, 0), clock(12, 0))

	if _, err := book(svc, otherID, hourSvc, monday, clock(10, 0)); err != nil {
		t.Fatalf("book: %v", err)
	}

	free, err := svc.AvailableTrainers(context.Background(), monday, clock(10, 30), hourSvc)
	if err != nil {
		t.Fatalf("AvailableTrainers: %v", err)
	}
	if len(free) != 1 || free[0].ID != trainerID {
		t.Fatalf("expected only %s, got %+v", trainerID, free)
	}

	// Only trainer-1 offers the 30 minute service.
	free, err = svc.AvailableTrainers(context.Background(), monday, clock(9, 0), halfSvc)
	if err != nil {
		t.Fatalf("AvailableTrainers: %v", err)
	}
	if len(free) != 1 || free[0].ID != trainerID {
		t.Fatalf("expected only %s for %s, got %+v", trainerID, halfSvc, free)
	}

	// Without a service the default hour is used: 11:30-12:30 does not fit trainer-2.
	free, err = svc.AvailableTrainers(context.Background(), monday, clock(11, 30), "")
	if err != nil {
		t.Fatalf("AvailableTrainers: %v", err)
	}
	if len(free) != 1 || free[0].ID != trainerID {
		t.Fatalf("expected only %s at 11:30, got %+v", trainerID, free)
	}
}

func TestTrainerDashboard(t *testing.T) {
	svc, _ := newFixture(t)
	addWindow(t, svc, trainerID, time.Monday, clock(9, 0), clock(18, 0))

	first, _ := book(svc, trainerID, hourSvc, monday, clock(10, 0))
	second, err := svc.CreateAppointment(context.Background(), booking.BookingRequest{
		MemberID: "member-2", TrainerID: trainerID, ServiceID: hourSvc, Date: monday, StartMinute: clock(12, 0),
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	transition(svc, second.ID, model.StatusConfirmed)
	if _, err := book(svc, trainerID, hourSvc, monday.AddDate(0, 0, 7), clock(9, 0)); err != nil {
		t.Fatalf("book next week: %v", err)
	}

	d, err := svc.TrainerDashboard(context.Background(), trainerID)
	if err != nil {
		t.Fatalf("TrainerDashboard: %v", err)
	}
	if len(d.Today) != 2 || d.Today[0].ID != first.ID {
		t.Fatalf("unexpected today list %+v", d.Today)
	}
	if len(d.Upcoming) != 3 {
		t.Fatalf("expected 3 upcoming, got %d", len(d.Upcoming))
	}
	if len(d.Pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(d.Pending))
	}
	want := model.TrainerTotals{All: 3, Completed: 0, Pending: 2, Members: 2}
	if d.Totals != want {
		t.Fatalf("expected totals %+v, got %+v", want, d.Totals)
	}
}

func TestWindowLifecycle(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()

	if _, err := svc.CreateWindow(ctx, model.AvailabilityWindow{TrainerID: trainerID, Weekday: time.Monday, StartMinute: clock(12, 0), EndMinute: clock(12, 0)}); !errors.Is(err, booking.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for empty window, got %v", err)
	}

	w, err := svc.CreateWindow(ctx, model.AvailabilityWindow{TrainerID: trainerID, Weekday: time.Monday, StartMinute: clock(9, 0), EndMinute: clock(10, 0), Active: true})
	if err != nil {
		t.Fatalf("CreateWindow: %v", err)
	}
	w.EndMinute = clock(11, 0)
	if _, err := svc.UpdateWindow(ctx, w); err != nil {
		t.Fatalf("UpdateWindow: %v", err)
	}
	slots, _ := svc.ListOpenSlots(ctx, trainerID, monday, 0, 0)
	if len(slots) != 4 {
		t.Fatalf("expected 4 slots after widening, got %d", len(slots))
	}

	w.Active = false
	if _, err := svc.UpdateWindow(ctx, w); err != nil {
		t.Fatalf("UpdateWindow: %v", err)
	}
	if slots, _ := svc.ListOpenSlots(ctx, trainerID, monday, 0, 0); len(slots) != 0 {
		t.Fatalf("expected inactive window to be ignored, got %d slots", len(slots))
	}

	if err := svc.DeleteWindow(ctx, otherID, w.ID); !errors.Is(err, booking.ErrWindowNotFound) {
		t.Fatalf("expected ErrWindowNotFound for another trainer, got %v", err)
	}
	if err := svc.DeleteWindow(ctx, trainerID, w.ID); err != nil {
		t.Fatalf("DeleteWindow: %v", err)
	}
	windows, _ := svc.ListWindows(ctx, trainerID)
	if len(windows) != 0 {
		t.Fatalf("expected no windows, got %d", len(windows))
	}
}
