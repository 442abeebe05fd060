package projections

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/md-rashed-zaman/fitbook/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

// Store applies projected events. Each Apply call must record the event id
// and update the facts atomically; it reports false for an event it has
// already seen.
type Store interface {
	ApplyAppointment(ctx context.Context, meta kafkax.EventMeta, evt AppointmentEvent) (bool, error)
	ApplyUser(ctx context.Context, meta kafkax.EventMeta, evt UserEvent) (bool, error)
}

type Projector struct {
	store  Store
	logger *slog.Logger
}

func NewProjector(store Store, logger *slog.Logger) *Projector {
	return &Projector{store: store, logger: logger}
}

// Handle decodes one Kafka message and applies it. Malformed events are
// logged and acknowledged; only store failures are returned.
func (p *Projector) Handle(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID == "" {
		p.logger.Error("event without id", "topic", msg.Topic)
		return nil
	}

	var (
		applied bool
		err     error
	)
	switch {
	case msg.Topic == TopicUserCreated:
		var evt UserEvent
		if jsonErr := json.Unmarshal(msg.Value, &evt); jsonErr != nil || !evt.valid() {
			p.logger.Error("invalid user event", "event_id", meta.EventID, "err", jsonErr)
			return nil
		}
		applied, err = p.store.ApplyUser(ctx, meta, evt)
	case strings.HasPrefix(msg.Topic, appointmentTopicPrefix):
		var evt AppointmentEvent
		if jsonErr := json.Unmarshal(msg.Value, &evt); jsonErr != nil || !evt.valid() {
			p.logger.Error("invalid appointment event", "event_id", meta.EventID, "err", jsonErr)
			return nil
		}
		applied, err = p.store.ApplyAppointment(ctx, meta, evt)
	default:
		p.logger.Warn("unexpected topic", "topic", msg.Topic)
		return nil
	}
	if err != nil {
		return err
	}
	if !applied {
		p.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return nil
	}
	p.logger.Info("event projected", "event_id", meta.EventID, "event_type", meta.EventType)
	return nil
}
