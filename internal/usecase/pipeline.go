package usecase

import (
	"context"
	"errors"
	"time"

	"PulsePrice/internal/domain/models"
	domrepo "PulsePrice/internal/domain/repository"
	"PulsePrice/internal/services/pricing"
	applogger "PulsePrice/pkg/logger"
)

// TokenUpdate is the outcome of one pipeline run for one token.
type TokenUpdate struct {
	TokenID string
	// Point is the written point, or the last known one when nothing was written.
	Point   models.PricePoint
	State   models.TokenPriceState
	Written bool
	Changed bool
}

// Item renders the update as a batch entry.
func (u TokenUpdate) Item() models.BatchItem {
	return models.BatchItem{
		TokenID:   u.TokenID,
		Price:     u.State.LastPrice,
		Timestamp: u.Point.Timestamp,
		Ohlc:      u.State.Ohlc,
		Changed:   u.Changed,
	}
}

// PricePipeline runs aggregate → compute → update for a single token.
// Runs for the same token are serialised through TokenLocks.
type PricePipeline struct {
	agg     *MetricsAggregator
	store   *CandleStore
	locks   *TokenLocks
	log     *applogger.Logger
	metrics domrepo.Metrics
	now     func() time.Time
}

func NewPricePipeline(agg *MetricsAggregator, store *CandleStore, locks *TokenLocks, l *applogger.Logger, metrics domrepo.Metrics) *PricePipeline {
	if l == nil {
		l = applogger.NewNop()
	}
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	return &PricePipeline{agg: agg, store: store, locks: locks, log: l, metrics: metrics, now: time.Now}
}

// Run prices tokenID once with cfg. On a source or computation failure the
// token is left untouched and the returned update carries the last known point.
func (p *PricePipeline) Run(ctx context.Context, tokenID string, cfg models.EngineConfig) (TokenUpdate, error) {
	unlock := p.locks.Lock(tokenID)
	defer unlock()

	now := p.now()
	state := p.store.Get(tokenID)
	upd := TokenUpdate{TokenID: tokenID, State: state, Point: lastKnown(state)}

	snap, err := p.agg.Aggregate(ctx, tokenID, p.agg.Since(tokenID, now), now, cfg)
	if err != nil {
		p.log.Warn("aggregation failed, token skipped",
			applogger.String("token", tokenID),
			applogger.Error(err),
		)
		return upd, err
	}

	start := time.Now()
	res, err := pricing.NextPrice(state, snap, cfg, now)
	p.metrics.RecordLatency("compute", time.Since(start))
	if err != nil {
		p.metrics.RecordError("computation")
		p.log.Error("price computation failed",
			applogger.String("token", tokenID),
			applogger.Float64("composite", snap.CompositeScore),
			applogger.Error(err),
		)
		return upd, err
	}
	if res.Skipped {
		return upd, nil
	}

	upd.Point = p.store.Update(tokenID, res)
	upd.State = p.store.Get(tokenID)
	upd.Written = true
	upd.Changed = res.Changed
	p.agg.Advance(tokenID, now)
	p.metrics.RecordPrice(tokenID, res.Price)
	return upd, nil
}

// Resume starts each restored token's engagement window at its last
// written point, so engagement priced before a restart is not counted twice.
func (p *PricePipeline) Resume(states map[string]models.TokenPriceState) {
	for id, st := range states {
		if ts := lastKnown(st).Timestamp; ts > 0 {
			p.agg.Advance(id, time.UnixMilli(ts))
		}
	}
}

// lastKnown is the newest history point, falling back to the current price.
func lastKnown(st models.TokenPriceState) models.PricePoint {
	if n := len(st.History); n > 0 {
		return st.History[n-1]
	}
	return models.PricePoint{Timestamp: st.LastChangeTimestamp, Price: st.LastPrice}
}

// isSourceFailure reports whether err came from the collaborators.
func isSourceFailure(err error) (*models.SourceFailure, bool) {
	var sf *models.SourceFailure
	if errors.As(err, &sf) {
		return sf, true
	}
	return nil, false
}
