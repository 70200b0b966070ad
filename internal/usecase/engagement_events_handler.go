package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"PulsePrice/internal/domain/models"
	domrepo "PulsePrice/internal/domain/repository"
	pkgkafka "PulsePrice/pkg/kafka"
)

// EngagementRecorder stores validated engagement events.
type EngagementRecorder interface {
	Record(ev models.EngagementEvent)
}

// EngagementEventsHandler consumes engagement events from Kafka into a recorder.
type EngagementEventsHandler struct {
	topic    string
	recorder EngagementRecorder
	metrics  domrepo.Metrics
}

func NewEngagementEventsHandler(topic string, recorder EngagementRecorder, metrics domrepo.Metrics) *EngagementEventsHandler {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	return &EngagementEventsHandler{topic: topic, recorder: recorder, metrics: metrics}
}

func (h *EngagementEventsHandler) Topic() string { return h.topic }

// incoming message schema: {tokenId, kind, count, timestamp(ms)}
func (h *EngagementEventsHandler) Handle(ctx context.Context, b []byte) error {
	ev, err := decodeEngagementEvent(b)
	if err != nil {
		h.metrics.RecordError("engagement_event_invalid")
		return err
	}
	h.metrics.RecordLatency("engagement_event_lag", time.Since(time.UnixMilli(ev.Timestamp)))
	h.recorder.Record(ev)
	return nil
}

// EngagementValidationHook rejects malformed events before the handler runs,
// so they skip retries and go straight to the DLQ.
func EngagementValidationHook() pkgkafka.ConsumerHook {
	return pkgkafka.HookFuncs{
		Before: func(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			if _, err := decodeEngagementEvent(data); err != nil {
				return ctx, km, data, &pkgkafka.HookError{Code: "ERR_VALIDATION", Err: err}
			}
			return ctx, km, data, nil
		},
	}
}

func decodeEngagementEvent(b []byte) (models.EngagementEvent, error) {
	var ev models.EngagementEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return ev, fmt.Errorf("%w: decode engagement event: %v", models.ErrValidation, err)
	}
	if err := ev.Validate(); err != nil {
		return ev, err
	}
	return ev, nil
}

var _ pkgkafka.MessageHandler = (*EngagementEventsHandler)(nil)
