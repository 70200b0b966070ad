package usecase

import (
	"context"
	"fmt"
	"time"

	"PulsePrice/internal/domain/models"
	domrepo "PulsePrice/internal/domain/repository"
	applogger "PulsePrice/pkg/logger"
)

const (
	DefaultHistoryLimit = 100
)

// Engine is the entry point used by the transport layer: queries, manual
// triggers, config updates and stream subscriptions.
type Engine struct {
	registry    domrepo.TokenRegistry
	store       *CandleStore
	pipeline    *PricePipeline
	scheduler   *Scheduler
	broadcaster *StreamBroadcaster
	config      *ConfigHolder
	states      domrepo.StateStore
	publishers  []BatchPublisher
	log         *applogger.Logger
	metrics     domrepo.Metrics
}

// EngineDeps groups the collaborators of Engine.
type EngineDeps struct {
	Registry    domrepo.TokenRegistry
	Store       *CandleStore
	Pipeline    *PricePipeline
	Scheduler   *Scheduler
	Broadcaster *StreamBroadcaster
	Config      *ConfigHolder
	// States is optional; nil disables restore on start.
	States domrepo.StateStore
	// Publishers receive manual-trigger updates as single-item batches.
	Publishers []BatchPublisher
	Logger     *applogger.Logger
	Metrics    domrepo.Metrics
}

func NewEngine(d EngineDeps) *Engine {
	if d.Logger == nil {
		d.Logger = applogger.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = domrepo.NopMetrics{}
	}
	return &Engine{
		registry:    d.Registry,
		store:       d.Store,
		pipeline:    d.Pipeline,
		scheduler:   d.Scheduler,
		broadcaster: d.Broadcaster,
		config:      d.Config,
		states:      d.States,
		publishers:  d.Publishers,
		log:         d.Logger,
		metrics:     d.Metrics,
	}
}

// Start restores persisted state and starts the scheduler.
func (e *Engine) Start(ctx context.Context) error {
	if e.states != nil {
		if err := e.restore(ctx); err != nil {
			return err
		}
	}
	e.scheduler.Start(ctx)
	e.log.Info("engine started",
		applogger.Duration("interval", e.config.Get().UpdateInterval()),
	)
	return nil
}

// Stop stops ticking and closes all subscriptions.
func (e *Engine) Stop() {
	e.scheduler.Stop()
	e.broadcaster.Close()
	e.log.Info("engine stopped")
}

// CloseStreams ends every stream subscription and rejects new ones, so
// stream handlers return before the HTTP server waits on them.
func (e *Engine) CloseStreams() {
	e.broadcaster.Close()
}

func (e *Engine) restore(ctx context.Context) error {
	tokens, err := e.registry.ListTokens(ctx)
	if err != nil {
		return fmt.Errorf("list tokens: %w", err)
	}
	states, err := e.states.Load(ctx, tokens)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	e.store.Restore(states)
	e.pipeline.Resume(states)
	e.log.Info("price state restored",
		applogger.Int("tokens", len(tokens)),
		applogger.Int("restored", len(states)),
	)
	return nil
}

func (e *Engine) ensureKnown(ctx context.Context, tokenID string) error {
	ok, err := e.registry.Exists(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	if !ok {
		return fmt.Errorf("token %s: %w", tokenID, models.ErrNotFound)
	}
	return nil
}

// Current returns {price, ohlc} of a registered token.
func (e *Engine) Current(ctx context.Context, tokenID string) (models.TokenQuote, error) {
	if err := e.ensureKnown(ctx, tokenID); err != nil {
		return models.TokenQuote{}, err
	}
	return e.store.Quote(tokenID), nil
}

// CurrentAll returns {price, ohlc} of every registered token.
func (e *Engine) CurrentAll(ctx context.Context) (map[string]models.TokenQuote, error) {
	tokens, err := e.registry.ListTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	out := make(map[string]models.TokenQuote, len(tokens))
	for _, id := range tokens {
		out[id] = e.store.Quote(id)
	}
	return out, nil
}

// History returns the last limit points of a token, oldest first.
func (e *Engine) History(ctx context.Context, tokenID string, limit int) ([]models.PricePoint, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > models.MaxHistory {
		return nil, fmt.Errorf("%w: limit must be at most %d", models.ErrValidation, models.MaxHistory)
	}
	if err := e.ensureKnown(ctx, tokenID); err != nil {
		return nil, err
	}
	return e.store.History(tokenID, limit), nil
}

// Ohlc returns the live daily candle of a token.
func (e *Engine) Ohlc(ctx context.Context, tokenID string) (models.OhlcCandle, error) {
	if err := e.ensureKnown(ctx, tokenID); err != nil {
		return models.OhlcCandle{}, err
	}
	return e.store.Quote(tokenID).Ohlc, nil
}

// Trigger runs the pipeline for one token now. Only a run where no
// collaborator produced data fails, with ErrUpstreamUnavailable; any other
// failure answers the last known point.
func (e *Engine) Trigger(ctx context.Context, tokenID string) (models.PricePoint, error) {
	if err := e.ensureKnown(ctx, tokenID); err != nil {
		return models.PricePoint{}, err
	}

	start := time.Now()
	upd, err := e.pipeline.Run(ctx, tokenID, e.config.Get())
	e.metrics.RecordTick("manual", time.Since(start))
	if err != nil {
		if sf, ok := isSourceFailure(err); ok && sf.BothFailed() {
			return models.PricePoint{}, fmt.Errorf("token %s: %w", tokenID, sf)
		}
		return upd.Point, nil
	}

	if upd.Written {
		batch := models.Batch{
			Timestamp: upd.Point.Timestamp,
			Items:     []models.BatchItem{upd.Item()},
			States:    map[string]models.TokenPriceState{tokenID: upd.State},
		}
		for _, p := range e.publishers {
			p.Publish(batch)
		}
	}
	return upd.Point, nil
}

// Config returns the live EngineConfig.
func (e *Engine) Config() models.EngineConfig {
	return e.config.Get()
}

// UpdateConfig merges patch into the live config.
func (e *Engine) UpdateConfig(patch models.EngineConfigPatch) (models.EngineConfig, error) {
	cfg, err := e.config.Update(patch)
	if err != nil {
		return cfg, err
	}
	e.log.Info("engine config updated",
		applogger.Float64("engagement_multiplier", cfg.EngagementMultiplier),
		applogger.Float64("drop_threshold", cfg.DropThreshold),
		applogger.Float64("stagnation_hours", cfg.StagnationHours),
		applogger.Float64("stagnation_drop_rate", cfg.StagnationDropRate),
		applogger.Int64("min_price", cfg.MinPrice),
		applogger.Int64("update_interval_ms", cfg.UpdateIntervalMs),
		applogger.Any("weights", cfg.Weights),
	)
	return cfg, nil
}

// Subscribe opens a stream subscription starting with a full snapshot.
func (e *Engine) Subscribe() *Subscription {
	return e.broadcaster.Subscribe()
}

// Unsubscribe closes a stream subscription.
func (e *Engine) Unsubscribe(sub *Subscription) {
	e.broadcaster.Unsubscribe(sub)
}

// Health summarises the engine for liveness probes.
type Health struct {
	Status      string `json:"status"`
	Tokens      int    `json:"tokens"`
	Subscribers int    `json:"subscribers"`
}

func (e *Engine) Health(ctx context.Context) (Health, error) {
	tokens, err := e.registry.ListTokens(ctx)
	if err != nil {
		return Health{Status: "degraded", Subscribers: e.broadcaster.Len()}, err
	}
	return Health{Status: "ok", Tokens: len(tokens), Subscribers: e.broadcaster.Len()}, nil
}
