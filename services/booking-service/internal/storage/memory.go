package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/fitbook/libs/outbox"
	"github.com/md-rashed-zaman/fitbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/fitbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/fitbook/services/booking-service/internal/model"
)

// MemoryStore is an in-process booking store. Transactions are serialised
// and rolled back by restoring a snapshot, and inserts enforce the same
// no-overlap rule as the database constraint.
type MemoryStore struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data memoryData
}

type memoryData struct {
	windows      map[string]model.AvailabilityWindow
	appointments map[string]model.Appointment
	history      []model.StatusChange
	services     map[string]model.Service
	trainers     map[string]model.Trainer
	links        map[string]map[string]bool
	events       []outbox.Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: memoryData{
		windows:      map[string]model.AvailabilityWindow{},
		appointments: map[string]model.Appointment{},
		services:     map[string]model.Service{},
		trainers:     map[string]model.Trainer{},
		links:        map[string]map[string]bool{},
	}}
}

func (d memoryData) clone() memoryData {
	out := memoryData{
		windows:      make(map[string]model.AvailabilityWindow, len(d.windows)),
		appointments: make(map[string]model.Appointment, len(d.appointments)),
		history:      append([]model.StatusChange(nil), d.history...),
		services:     make(map[string]model.Service, len(d.services)),
		trainers:     make(map[string]model.Trainer, len(d.trainers)),
		links:        make(map[string]map[string]bool, len(d.links)),
		events:       append([]outbox.Event(nil), d.events...),
	}
	for k, v := range d.windows {
		out.windows[k] = v
	}
	for k, v := range d.appointments {
		out.appointments[k] = v
	}
	for k, v := range d.services {
		out.services[k] = v
	}
	for k, v := range d.trainers {
		out.trainers[k] = v
	}
	for k, v := range d.links {
		set := make(map[string]bool, len(v))
		for t := range v {
			set[t] = true
		}
		out.links[k] = set
	}
	return out
}

// PutService adds or replaces a catalog service.
func (s *MemoryStore) PutService(svc model.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.services[svc.ID] = svc
}

// PutTrainer adds or replaces a trainer and links it to serviceIDs.
func (s *MemoryStore) PutTrainer(t model.Trainer, serviceIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.trainers[t.ID] = t
	for _, id := range serviceIDs {
		if s.data.links[id] == nil {
			s.data.links[id] = map[string]bool{}
		}
		s.data.links[id][t.ID] = true
	}
}

// Events returns the committed outbox events in order.
func (s *MemoryStore) Events() []outbox.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]outbox.Event(nil), s.data.events...)
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx booking.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(&memoryTx{MemoryStore: s}); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemoryStore) ActiveWindows(_ context.Context, trainerID string, weekday time.Weekday) ([]model.AvailabilityWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.AvailabilityWindow
	for _, w := range s.data.windows {
		if w.TrainerID == trainerID && w.Weekday == weekday && w.Active {
			out = append(out, w)
		}
	}
	sortWindows(out)
	return out, nil
}

func (s *MemoryStore) Windows(_ context.Context, trainerID string) ([]model.AvailabilityWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.AvailabilityWindow
	for _, w := range s.data.windows {
		if w.TrainerID == trainerID {
			out = append(out, w)
		}
	}
	sortWindows(out)
	return out, nil
}

func (s *MemoryStore) Occupying(_ context.Context, trainerID string, from, to time.Time) ([]model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.occupying(trainerID, availability.Interval{Start: from, End: to}, ""), nil
}

func (s *MemoryStore) occupying(trainerID string, iv availability.Interval, skipID string) []model.Appointment {
	var out []model.Appointment
	for _, a := range s.data.appointments {
		if a.ID == skipID || a.TrainerID != trainerID || !a.Status.IsOccupying() {
			continue
		}
		if iv.Overlaps(availability.Interval{Start: a.StartTime, End: a.EndTime}) {
			out = append(out, a)
		}
	}
	sortAppointments(out, true)
	return out
}

func (s *MemoryStore) Service(_ context.Context, id string) (model.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.data.services[id]
	if !ok {
		return model.Service{}, model.ErrNotFound
	}
	return svc, nil
}

func (s *MemoryStore) Trainers(_ context.Context, serviceID string) ([]model.Trainer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Trainer
	for _, t := range s.data.trainers {
		if !t.Active {
			continue
		}
		if serviceID != "" && !s.data.links[serviceID][t.ID] {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstName != out[j].FirstName {
			return out[i].FirstName < out[j].FirstName
		}
		return out[i].LastName < out[j].LastName
	})
	return out, nil
}

func (s *MemoryStore) Appointment(_ context.Context, id string) (model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.data.appointments[id]
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) Appointments(_ context.Context, f model.AppointmentFilter) ([]model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Appointment
	for _, a := range s.data.appointments {
		if f.Matches(a) {
			out = append(out, a)
		}
	}
	sortAppointments(out, f.Ascending)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) History(_ context.Context, appointmentID string) ([]model.StatusChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.StatusChange
	for _, c := range s.data.history {
		if c.AppointmentID == appointmentID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryStore) TrainerTotals(_ context.Context, trainerID string) (model.TrainerTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var t model.TrainerTotals
	members := map[string]bool{}
	for _, a := range s.data.appointments {
		if a.TrainerID != trainerID {
			continue
		}
		t.All++
		switch a.Status {
		case model.StatusCompleted:
			t.Completed++
		case model.StatusPending:
			t.Pending++
		}
		members[a.MemberID] = true
	}
	t.Members = len(members)
	return t, nil
}

type memoryTx struct {
	*MemoryStore
}

// LockTrainer is a no-op: memory transactions are already serialised.
func (t *memoryTx) LockTrainer(context.Context, string) error { return nil }

func (t *memoryTx) AppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	return t.Appointment(ctx, id)
}

func (t *memoryTx) InsertAppointment(_ context.Context, a model.Appointment) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a.Status.IsOccupying() && len(t.occupying(a.TrainerID, availability.Interval{Start: a.StartTime, End: a.EndTime}, a.ID)) > 0 {
		return model.ErrOverlap
	}
	t.data.appointments[a.ID] = a
	return nil
}

func (t *memoryTx) UpdateStatus(_ context.Context, id string, status model.Status, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.data.appointments[id]
	if !ok {
		return model.ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = at
	t.data.appointments[id] = a
	return nil
}

func (t *memoryTx) AppendHistory(_ context.Context, c model.StatusChange) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.history = append(t.data.history, c)
	return nil
}

func (t *memoryTx) InsertWindow(_ context.Context, w model.AvailabilityWindow) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.windows[w.ID] = w
	return nil
}

func (t *memoryTx) UpdateWindow(_ context.Context, w model.AvailabilityWindow) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	existing, ok := t.data.windows[w.ID]
	if !ok || existing.TrainerID != w.TrainerID {
		return model.ErrNotFound
	}
	w.CreatedAt = existing.CreatedAt
	t.data.windows[w.ID] = w
	return nil
}

func (t *memoryTx) DeleteWindow(_ context.Context, trainerID, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	existing, ok := t.data.windows[id]
	if !ok || existing.TrainerID != trainerID {
		return model.ErrNotFound
	}
	delete(t.data.windows, id)
	return nil
}

func (t *memoryTx) Enqueue(_ context.Context, evt outbox.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.events = append(t.data.events, evt)
	return nil
}

func sortWindows(ws []model.AvailabilityWindow) {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].Weekday != ws[j].Weekday {
			return ws[i].Weekday < ws[j].Weekday
		}
		return ws[i].StartMinute < ws[j].StartMinute
	})
}

func sortAppointments(as []model.Appointment, ascending bool) {
	sort.Slice(as, func(i, j int) bool {
		if ascending {
			return as[i].StartTime.Before(as[j].StartTime)
		}
		return as[i].StartTime.After(as[j].StartTime)
	})
}

var (
	_ booking.Store = (*MemoryStore)(nil)
	_ booking.Tx    = (*memoryTx)(nil)
)
