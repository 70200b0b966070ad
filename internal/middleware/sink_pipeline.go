package middleware

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"PulsePrice/internal/domain/models"
	domrepo "PulsePrice/internal/domain/repository"
	applogger "PulsePrice/pkg/logger"
)

// SinkPipeline sits between the scheduler and the batch sinks (Kafka,
// ClickHouse, state store). It buffers batches so a slow or failing sink
// never delays a tick, and retries each sink with exponential backoff.
type SinkPipeline struct {
	sinks      []domrepo.BatchSink
	metrics    domrepo.Metrics
	log        *applogger.Logger
	bufSize    int
	retryMax   int
	backoffMin time.Duration
	backoffMax time.Duration
	bufCh      chan models.Batch
	stopCh     chan struct{}
	wg         sync.WaitGroup
	started    bool
	mu         sync.Mutex
}

type PipelineOption func(*SinkPipeline)

// WithBufferSize sets how many batches may wait for the sinks.
func WithBufferSize(n int) PipelineOption {
	return func(p *SinkPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithRetry sets the attempts per sink and the backoff range.
func WithRetry(max int, backoffMin, backoffMax time.Duration) PipelineOption {
	return func(p *SinkPipeline) {
		if max > 0 {
			p.retryMax = max
		}
		if backoffMin > 0 {
			p.backoffMin = backoffMin
		}
		if backoffMax >= p.backoffMin {
			p.backoffMax = backoffMax
		}
	}
}

// NewSinkPipeline creates a new pipeline.
func NewSinkPipeline(sinks []domrepo.BatchSink, l *applogger.Logger, metrics domrepo.Metrics, opts ...PipelineOption) *SinkPipeline {
	if l == nil {
		l = applogger.NewNop()
	}
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	p := &SinkPipeline{
		sinks:      sinks,
		metrics:    metrics,
		log:        l,
		bufSize:    64,
		retryMax:   3,
		backoffMin: 50 * time.Millisecond,
		backoffMax: 2 * time.Second,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan models.Batch, p.bufSize)
	return p
}

// Start launches background flushing of buffered batches.
func (p *SinkPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-p.stopCh:
				p.drain(ctx)
				return
			case b := <-p.bufCh:
				p.flush(ctx, b)
			}
		}
	}()
}

// Stop flushes what is buffered and stops the background worker.
func (p *SinkPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	p.wg.Wait()
}

// Publish queues batch without blocking; a full buffer drops it.
func (p *SinkPipeline) Publish(batch models.Batch) {
	if len(p.sinks) == 0 {
		return
	}
	select {
	case p.bufCh <- batch:
	default:
		p.metrics.RecordError("sink_buffer_full")
		p.log.Warn("sink buffer full, batch dropped",
			applogger.Int64("batch_ts", batch.Timestamp),
			applogger.Int("items", len(batch.Items)),
		)
	}
}

// Pending returns the number of queued batches.
func (p *SinkPipeline) Pending() int {
	return len(p.bufCh)
}

func (p *SinkPipeline) drain(ctx context.Context) {
	for {
		select {
		case b := <-p.bufCh:
			p.flush(ctx, b)
		default:
			return
		}
	}
}

// flush writes one batch to every sink in parallel.
func (p *SinkPipeline) flush(ctx context.Context, b models.Batch) {
	start := time.Now()
	var g errgroup.Group
	for _, s := range p.sinks {
		s := s
		g.Go(func() error {
			p.write(ctx, s, b)
			return nil
		})
	}
	_ = g.Wait()
	p.metrics.RecordLatency("sink_flush", time.Since(start))
}

func (p *SinkPipeline) write(ctx context.Context, s domrepo.BatchSink, b models.Batch) {
	backoff := p.backoffMin
	for attempt := 1; ; attempt++ {
		err := s.Write(ctx, b)
		if err == nil {
			return
		}
		p.metrics.RecordError("sink_" + s.Name())
		if attempt >= p.retryMax {
			p.log.Warn("sink write failed, batch given up",
				applogger.String("sink", s.Name()),
				applogger.Int("attempts", attempt),
				applogger.Error(err),
			)
			return
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		// exponential backoff with cap
		if backoff < p.backoffMax {
			backoff = min(backoff*2, p.backoffMax)
		}
	}
}
