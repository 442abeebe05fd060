package outbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/md-rashed-zaman/fitbook/libs/kafkax"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestNewEvent(t *testing.T) {
	evt, err := NewEvent("appointment", "a-1", "booking.appointment.requested.v1", map[string]string{"status": "pending"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	var body map[string]string
	if err := json.Unmarshal(evt.Payload, &body); err != nil {
		t.Fatalf("payload not json: %v", err)
	}
	if body["status"] != "pending" || evt.AggregateID != "a-1" {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestToMessageCarriesMetadata(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	rec := Record{
		EventID:       "e-1",
		AggregateType: "appointment",
		AggregateID:   "a-1",
		EventType:     "booking.appointment.confirmed.v1",
		Payload:       []byte(`{}`),
		Traceparent:   "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
	}
	msg := toMessage(context.Background(), rec)

	if msg.Topic != rec.EventType || string(msg.Key) != "a-1" {
		t.Fatalf("unexpected topic/key %q/%q", msg.Topic, msg.Key)
	}
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID != "e-1" || meta.EventType != rec.EventType || meta.AggregateType != "appointment" {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if got := kafkax.HeaderValue(msg.Headers, "traceparent"); got != rec.Traceparent {
		t.Fatalf("expected traceparent header, got %q", got)
	}
}

func TestNewRepositoryDefaultTable(t *testing.T) {
	if r := NewRepository(""); r.table != "outbox_events" {
		t.Fatalf("expected default table, got %q", r.table)
	}
}
