package projections

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/md-rashed-zaman/fitbook/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

type fakeStore struct {
	seen         map[string]bool
	appointments []AppointmentEvent
	users        []UserEvent
	fail         error
}

func (f *fakeStore) record(id string) bool {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[id] {
		return false
	}
	f.seen[id] = true
	return true
}

func (f *fakeStore) ApplyAppointment(_ context.Context, meta kafkax.EventMeta, evt AppointmentEvent) (bool, error) {
	if f.fail != nil {
		return false, f.fail
	}
	if !f.record(meta.EventID) {
		return false, nil
	}
	f.appointments = append(f.appointments, evt)
	return true, nil
}

func (f *fakeStore) ApplyUser(_ context.Context, meta kafkax.EventMeta, evt UserEvent) (bool, error) {
	if f.fail != nil {
		return false, f.fail
	}
	if !f.record(meta.EventID) {
		return false, nil
	}
	f.users = append(f.users, evt)
	return true, nil
}

func message(topic, eventID, body string) kafka.Message {
	return kafka.Message{
		Topic: topic,
		Key:   []byte("aggregate-1"),
		Value: []byte(body),
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(eventID)},
			{Key: "event_type", Value: []byte(topic)},
		},
	}
}

const requested = `{
	"appointment_id": "a9f6d1d4-5b7e-4f5f-9a43-2c8f1f6c0001",
	"member_id": "a9f6d1d4-5b7e-4f5f-9a43-2c8f1f6c0002",
	"trainer_id": "a9f6d1d4-5b7e-4f5f-9a43-2c8f1f6c0003",
	"service_id": "a9f6d1d4-5b7e-4f5f-9a43-2c8f1f6c0004",
	"status": "pending",
	"start_time": "2026-03-02T09:00:00Z",
	"end_time": "2026-03-02T10:00:00Z",
	"price": "150.00",
	"occurred_at": "2026-03-01T12:00:00Z"
}`

func newProjector(store Store) *Projector {
	return NewProjector(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestProjectorAppliesAppointmentOnce(t *testing.T) {
	store := &fakeStore{}
	p := newProjector(store)
	msg := message("booking.appointment.requested.v1", "evt-1", requested)

	for i := 0; i < 2; i++ {
		if err := p.Handle(context.Background(), msg); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	}
	if len(store.appointments) != 1 {
		t.Fatalf("expected one projected event, got %d", len(store.appointments))
	}
	got := store.appointments[0]
	if got.Status != "pending" || got.Price.StringFixed(2) != "150.00" {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestProjectorAppliesUserCreated(t *testing.T) {
	store := &fakeStore{}
	body := `{"user_id":"u-1","email":"t@fitbook.local","role":"trainer","trainer_id":"tr-1","created_at":"2026-03-01T08:00:00Z"}`
	if err := newProjector(store).Handle(context.Background(), message(TopicUserCreated, "evt-u", body)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(store.users) != 1 || store.users[0].Role != "trainer" || store.users[0].TrainerID != "tr-1" {
		t.Fatalf("unexpected users %+v", store.users)
	}
}

func TestProjectorAcknowledgesMalformedEvents(t *testing.T) {
	store := &fakeStore{}
	p := newProjector(store)
	cases := []kafka.Message{
		message("booking.appointment.confirmed.v1", "evt-2", `not json`),
		message("booking.appointment.confirmed.v1", "evt-3", `{"appointment_id":"a-1","status":"confirmed"}`),
		message("booking.appointment.confirmed.v1", "evt-4", `{"appointment_id":"a-1","member_id":"m","trainer_id":"t","service_id":"s","status":"archived","start_time":"2026-03-02T09:00:00Z","end_time":"2026-03-02T10:00:00Z","occurred_at":"2026-03-01T12:00:00Z"}`),
		message(TopicUserCreated, "evt-5", `{"user_id":"u-2"}`),
		message("payments.charged.v1", "evt-6", `{}`),
		{Topic: "booking.appointment.requested.v1", Value: []byte(requested)},
	}
	for _, msg := range cases {
		if err := p.Handle(context.Background(), msg); err != nil {
			t.Fatalf("expected malformed event on %s to be acknowledged, got %v", msg.Topic, err)
		}
	}
	if len(store.appointments) != 0 || len(store.users) != 0 {
		t.Fatalf("expected nothing projected, got %d appointments %d users", len(store.appointments), len(store.users))
	}
}

func TestProjectorReturnsStoreErrors(t *testing.T) {
	boom := errors.New("db down")
	p := newProjector(&fakeStore{fail: boom})
	err := p.Handle(context.Background(), message("booking.appointment.requested.v1", "evt-7", requested))
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestTopicsCoverEveryStatus(t *testing.T) {
	topics := Topics()
	if len(topics) != 6 || topics[0] != TopicUserCreated {
		t.Fatalf("unexpected topics %v", topics)
	}
	counts := statusMap([]StatusCount{{Status: "completed", Count: 4}})
	if len(counts) != 5 || counts["completed"] != 4 || counts["pending"] != 0 {
		t.Fatalf("unexpected status map %v", counts)
	}
}
