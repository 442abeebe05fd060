package kafkax

import (
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestExtractEventMetaFallsBackToKeyAndTopic(t *testing.T) {
	msg := kafka.Message{Topic: "auth.user.created.v1", Key: []byte("u-1")}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "u-1" || meta.EventType != "auth.user.created.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
}

func TestEventMetaHeadersSkipEmpty(t *testing.T) {
	headers := EventMeta{EventID: "e-1", EventType: "booking.appointment.confirmed.v1"}.Headers()
	if len(headers) != 2 {
		t.Fatalf("expected 2 headers, got %v", headers)
	}
	msg := kafka.Message{Topic: "ignored", Key: []byte("a-1"), Headers: headers}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "e-1" || meta.EventType != "booking.appointment.confirmed.v1" || meta.AggregateType != "" {
		t.Fatalf("unexpected meta %+v", meta)
	}
}
