package usecase

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"PulsePrice/internal/domain/models"
	domrepo "PulsePrice/internal/domain/repository"
	applogger "PulsePrice/pkg/logger"
)

// MetricsAggregator combines the Content Store counts and the Attestation
// score of a token into one EngagementSnapshot.
type MetricsAggregator struct {
	content  domrepo.ContentStore
	attest   domrepo.AttestationService
	timeout  time.Duration
	lookback time.Duration
	log      *applogger.Logger
	metrics  domrepo.Metrics

	mu          sync.Mutex
	lastSuccess map[string]time.Time
}

// AggregatorOption configures MetricsAggregator.
type AggregatorOption func(*MetricsAggregator)

// WithSourceTimeout bounds each collaborator call.
func WithSourceTimeout(d time.Duration) AggregatorOption {
	return func(a *MetricsAggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithInitialLookback sets the window used before a token's first success.
func WithInitialLookback(d time.Duration) AggregatorOption {
	return func(a *MetricsAggregator) {
		if d > 0 {
			a.lookback = d
		}
	}
}

func NewMetricsAggregator(content domrepo.ContentStore, attest domrepo.AttestationService, l *applogger.Logger, metrics domrepo.Metrics, opts ...AggregatorOption) *MetricsAggregator {
	if l == nil {
		l = applogger.NewNop()
	}
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	a := &MetricsAggregator{
		content:     content,
		attest:      attest,
		timeout:     5 * time.Second,
		lookback:    time.Hour,
		log:         l,
		metrics:     metrics,
		lastSuccess: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Since returns the start of the next window for tokenID.
func (a *MetricsAggregator) Since(tokenID string, now time.Time) time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t, ok := a.lastSuccess[tokenID]; ok {
		return t
	}
	return now.Add(-a.lookback)
}

// Advance moves tokenID's window start to until once its tick succeeded.
func (a *MetricsAggregator) Advance(tokenID string, until time.Time) {
	a.mu.Lock()
	if until.After(a.lastSuccess[tokenID]) {
		a.lastSuccess[tokenID] = until
	}
	a.mu.Unlock()
}

// Aggregate queries both collaborators concurrently for [since, until).
//
// A Content Store failure makes the snapshot unavailable and returns a
// *models.SourceFailure. An Attestation failure alone only drops the
// external score.
func (a *MetricsAggregator) Aggregate(ctx context.Context, tokenID string, since, until time.Time, cfg models.EngineConfig) (models.EngagementSnapshot, error) {
	snap := models.EngagementSnapshot{TokenID: tokenID, Since: since, Until: until}

	var (
		counts     map[models.EngagementKind]int64
		contentErr error
		score      int64
		scoreOK    bool
		attestErr  error
	)

	var g errgroup.Group
	g.Go(func() error {
		start := time.Now()
		cctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		counts, contentErr = a.content.CountEngagement(cctx, tokenID, since, until)
		a.metrics.RecordLatency("content_store", time.Since(start))
		return nil
	})
	if a.attest != nil {
		g.Go(func() error {
			start := time.Now()
			actx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()
			score, scoreOK, attestErr = a.attest.ExternalScore(actx, tokenID)
			a.metrics.RecordLatency("attestation", time.Since(start))
			return nil
		})
	}
	_ = g.Wait()

	if attestErr != nil {
		a.metrics.RecordError("attestation")
		a.log.Debug("attestation degraded",
			applogger.String("token", tokenID),
			applogger.Error(attestErr),
		)
	} else if scoreOK {
		s := score
		snap.ExternalScore = &s
	}

	if contentErr != nil {
		a.metrics.RecordError("content_store")
		failure := &models.SourceFailure{TokenID: tokenID, ContentErr: contentErr, AttestationErr: attestErr}
		if attestErr == nil && !scoreOK {
			failure.AttestationErr = models.ErrSourceDisabled
		}
		return snap, failure
	}

	snap.Counts = counts
	snap.CompositeScore = CompositeScore(counts, cfg)
	snap.Available = true
	return snap, nil
}

// CompositeScore is Σ count[kind] * weight[kind], summed in a fixed kind
// order so equal inputs give bit-identical scores.
func CompositeScore(counts map[models.EngagementKind]int64, cfg models.EngineConfig) float64 {
	var total float64
	for _, kind := range models.EngagementKinds {
		total += float64(counts[kind]) * cfg.Weight(kind)
	}
	return total
}
