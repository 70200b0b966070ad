package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PulsePrice/internal/domain/models"
	domrepo "PulsePrice/internal/domain/repository"
	applogger "PulsePrice/pkg/logger"
)

type flakySink struct {
	name     string
	mu       sync.Mutex
	failures int
	calls    int
	written  []models.Batch
	block    chan struct{}
}

func (s *flakySink) Name() string { return s.name }

func (s *flakySink) Write(ctx context.Context, b models.Batch) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("sink unavailable")
	}
	s.written = append(s.written, b)
	return nil
}

func (s *flakySink) stats() (calls, written int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, len(s.written)
}

func batch(ts int64) models.Batch {
	return models.Batch{Timestamp: ts, Items: []models.BatchItem{{TokenID: "naruto", Price: 1_000_000, Timestamp: ts}}}
}

func TestSinkPipeline_RetriesUntilSuccess(t *testing.T) {
	sink := &flakySink{name: "kafka", failures: 2}
	p := NewSinkPipeline([]domrepo.BatchSink{sink}, applogger.NewNop(), nil, WithRetry(3, time.Millisecond, 4*time.Millisecond))
	p.Start(context.Background())
	defer p.Stop()

	p.Publish(batch(1))
	require.Eventually(t, func() bool {
		_, w := sink.stats()
		return w == 1
	}, time.Second, 5*time.Millisecond)
	calls, _ := sink.stats()
	assert.Equal(t, 3, calls)
}

func TestSinkPipeline_GivesUpAfterRetryMax(t *testing.T) {
	bad := &flakySink{name: "clickhouse", failures: 100}
	good := &flakySink{name: "state"}
	p := NewSinkPipeline([]domrepo.BatchSink{bad, good}, applogger.NewNop(), nil, WithRetry(2, time.Millisecond, time.Millisecond))
	p.Start(context.Background())

	p.Publish(batch(1))
	p.Publish(batch(2))
	p.Stop()

	calls, written := bad.stats()
	assert.Equal(t, 4, calls)
	assert.Zero(t, written)
	_, written = good.stats()
	assert.Equal(t, 2, written)
}

func TestSinkPipeline_FullBufferDropsWithoutBlocking(t *testing.T) {
	sink := &flakySink{name: "kafka", block: make(chan struct{})}
	p := NewSinkPipeline([]domrepo.BatchSink{sink}, applogger.NewNop(), nil, WithBufferSize(1))
	p.Start(context.Background())

	done := make(chan struct{})
	go func() {
		for i := int64(0); i < 10; i++ {
			p.Publish(batch(i))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}

	close(sink.block)
	p.Stop()
	_, written := sink.stats()
	assert.LessOrEqual(t, written, 2)
	assert.GreaterOrEqual(t, written, 1)
}
