package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"PulsePrice/internal/domain/models"
	applogger "PulsePrice/pkg/logger"
)

var errSource = errors.New("source down")

type fakeRegistry struct {
	tokens []string
	err    error
}

func (r *fakeRegistry) ListTokens(context.Context) ([]string, error) {
	return append([]string(nil), r.tokens...), r.err
}

func (r *fakeRegistry) Exists(_ context.Context, id string) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	for _, t := range r.tokens {
		if t == id {
			return true, nil
		}
	}
	return false, nil
}

type fakeContent struct {
	mu      sync.Mutex
	counts  map[string]map[models.EngagementKind]int64
	fail    map[string]bool
	calls   int
	entered chan struct{}
	release chan struct{}
	// blockOnly limits entered/release to one token when set.
	blockOnly string
	windows   []time.Time
}

func newFakeContent() *fakeContent {
	return &fakeContent{
		counts: make(map[string]map[models.EngagementKind]int64),
		fail:   make(map[string]bool),
	}
}

func (c *fakeContent) CountEngagement(ctx context.Context, id string, since, until time.Time) (map[models.EngagementKind]int64, error) {
	c.mu.Lock()
	c.calls++
	c.windows = append(c.windows, since)
	entered, release := c.entered, c.release
	if c.blockOnly != "" && c.blockOnly != id {
		entered, release = nil, nil
	}
	counts, fail := c.counts[id], c.fail[id]
	c.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errSource
	}
	out := make(map[models.EngagementKind]int64, len(counts))
	for k, v := range counts {
		out[k] = v
	}
	return out, nil
}

type fakeAttestation struct {
	score    int64
	disabled bool
	err      error
}

func (a *fakeAttestation) ExternalScore(context.Context, string) (int64, bool, error) {
	if a.err != nil {
		return 0, false, a.err
	}
	if a.disabled {
		return 0, false, nil
	}
	return a.score, true, nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	batches []models.Batch
}

func (p *recordingPublisher) Publish(b models.Batch) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, b)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

func (p *recordingPublisher) last() models.Batch {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.batches[len(p.batches)-1]
}

type fixture struct {
	registry  *fakeRegistry
	content   *fakeContent
	attest    *fakeAttestation
	config    *ConfigHolder
	store     *CandleStore
	agg       *MetricsAggregator
	pipeline  *PricePipeline
	scheduler *Scheduler
	broadcast *StreamBroadcaster
	published *recordingPublisher
	engine    *Engine
}

func newFixture(tokens ...string) *fixture {
	f := &fixture{
		registry:  &fakeRegistry{tokens: tokens},
		content:   newFakeContent(),
		attest:    &fakeAttestation{disabled: true},
		published: &recordingPublisher{},
	}
	cfg := models.DefaultEngineConfig()
	cfg.UpdateIntervalMs = 100
	f.config, _ = NewConfigHolder(cfg)

	l := applogger.NewNop()
	f.store = NewCandleStore(WithSeedPrice(func() int64 { return f.config.Get().MinPrice }))
	f.agg = NewMetricsAggregator(f.content, f.attest, l, nil, WithSourceTimeout(time.Second))
	f.pipeline = NewPricePipeline(f.agg, f.store, NewTokenLocks(), l, nil)
	f.broadcast = NewStreamBroadcaster(f.store.Snapshot, 4, l, nil)
	f.scheduler = NewScheduler(f.registry, f.pipeline, f.config, 4, l, nil, f.broadcast, f.published)
	f.engine = NewEngine(EngineDeps{
		Registry:    f.registry,
		Store:       f.store,
		Pipeline:    f.pipeline,
		Scheduler:   f.scheduler,
		Broadcaster: f.broadcast,
		Config:      f.config,
		Publishers:  []BatchPublisher{f.broadcast, f.published},
		Logger:      l,
	})
	return f
}
