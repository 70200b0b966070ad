package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"PulsePrice/internal/domain/models"
	domrepo "PulsePrice/internal/domain/repository"
	applogger "PulsePrice/pkg/logger"
)

// BatchPublisher receives every finished batch. Publish must not block.
type BatchPublisher interface {
	Publish(batch models.Batch)
}

// Scheduler drives periodic ticks over every registered token. It has two
// states, idle and running; a fire that finds a tick running is skipped.
type Scheduler struct {
	registry   domrepo.TokenRegistry
	pipeline   *PricePipeline
	config     *ConfigHolder
	publishers []BatchPublisher
	workers    int
	log        *applogger.Logger
	metrics    domrepo.Metrics

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewScheduler(registry domrepo.TokenRegistry, pipeline *PricePipeline, config *ConfigHolder, workers int, l *applogger.Logger, metrics domrepo.Metrics, publishers ...BatchPublisher) *Scheduler {
	if workers <= 0 {
		workers = 8
	}
	if l == nil {
		l = applogger.NewNop()
	}
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	return &Scheduler{
		registry:   registry,
		pipeline:   pipeline,
		config:     config,
		publishers: publishers,
		workers:    workers,
		log:        l,
		metrics:    metrics,
	}
}

// Start launches the timer loop. The interval follows the live config.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
}

// Stop ends the loop and waits for an in-flight tick.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	interval := s.config.Get().UpdateInterval()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.config.Changed():
			next := s.config.Get().UpdateInterval()
			if next != interval {
				interval = next
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(interval)
				s.log.Info("tick interval changed", applogger.Duration("interval", interval))
			}
		case <-timer.C:
			// each fire runs on its own so an overrun meets the guard
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.Tick(ctx)
			}()
			timer.Reset(interval)
		}
	}
}

// Tick runs one pass over all registered tokens and publishes the batch.
// It returns false when another tick was still running.
func (s *Scheduler) Tick(ctx context.Context) (models.Batch, bool) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("tick overrun, fire skipped")
		s.metrics.RecordTick("overrun", 0)
		return models.Batch{}, false
	}
	defer s.running.Store(false)

	start := time.Now()
	tokens, err := s.registry.ListTokens(ctx)
	if err != nil {
		s.log.Error("list tokens failed", applogger.Error(err))
		s.metrics.RecordError("registry")
		s.metrics.RecordTick("error", time.Since(start))
		return models.Batch{}, true
	}
	s.log.Debug("tick started", applogger.Int("tokens", len(tokens)))

	cfg := s.config.Get()
	updates := make([]TokenUpdate, len(tokens))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, id := range tokens {
		i, id := i, id
		g.Go(func() error {
			// failures leave the last known price in the batch
			updates[i], _ = s.pipeline.Run(ctx, id, cfg)
			return nil
		})
	}
	_ = g.Wait()

	batch := models.Batch{
		Timestamp: time.Now().UnixMilli(),
		Items:     make([]models.BatchItem, 0, len(updates)),
		States:    make(map[string]models.TokenPriceState, len(updates)),
	}
	written := 0
	for _, u := range updates {
		batch.Items = append(batch.Items, u.Item())
		if u.Written {
			batch.States[u.TokenID] = u.State
			written++
		}
	}

	for _, p := range s.publishers {
		p.Publish(batch)
	}

	d := time.Since(start)
	s.metrics.RecordTick("completed", d)
	s.log.Debug("tick finished",
		applogger.Int("tokens", len(tokens)),
		applogger.Int("written", written),
		applogger.Duration("duration", d),
	)
	return batch, true
}

// Running reports whether a tick is in progress.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}
