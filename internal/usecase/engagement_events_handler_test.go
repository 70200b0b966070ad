package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PulsePrice/internal/domain/models"
	pkgkafka "PulsePrice/pkg/kafka"
)

type recorderStub struct {
	mu     sync.Mutex
	events []models.EngagementEvent
}

func (r *recorderStub) Record(ev models.EngagementEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func TestEngagementEventsHandler_Records(t *testing.T) {
	rec := &recorderStub{}
	h := NewEngagementEventsHandler("engagement-events", rec, nil)
	assert.Equal(t, "engagement-events", h.Topic())

	ts := time.Now().UnixMilli()
	err := h.Handle(context.Background(), []byte(`{"tokenId":"naruto","kind":"like","count":3,"timestamp":`+itoa(ts)+`}`))
	require.NoError(t, err)
	require.Len(t, rec.events, 1)
	assert.Equal(t, models.EngagementEvent{TokenID: "naruto", Kind: "like", Count: 3, Timestamp: ts}, rec.events[0])
}

func TestEngagementEventsHandler_RejectsInvalid(t *testing.T) {
	rec := &recorderStub{}
	h := NewEngagementEventsHandler("engagement-events", rec, nil)

	for _, body := range []string{
		`not json`,
		`{"tokenId":"","kind":"like","count":1,"timestamp":1}`,
		`{"tokenId":"naruto","kind":"share","count":1,"timestamp":1}`,
		`{"tokenId":"naruto","kind":"like","count":0,"timestamp":1}`,
	} {
		err := h.Handle(context.Background(), []byte(body))
		assert.ErrorIs(t, err, models.ErrValidation, body)
	}
	assert.Empty(t, rec.events)
}

func TestEngagementValidationHook(t *testing.T) {
	hook := EngagementValidationHook()

	_, _, _, err := hook.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte(`{"tokenId":"naruto","kind":"stake","count":2,"timestamp":5}`))
	require.NoError(t, err)

	_, _, _, err = hook.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte(`{"tokenId":"naruto","kind":"stake"}`))
	var herr *pkgkafka.HookError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, "ERR_VALIDATION", herr.Code)
	assert.ErrorIs(t, err, models.ErrValidation)
}
