package repository

import (
	"context"
	"time"

	"PulsePrice/internal/domain/models"
)

// TokenRegistry lists the active token identifiers.
type TokenRegistry interface {
	ListTokens(ctx context.Context) ([]string, error)
	Exists(ctx context.Context, tokenID string) (bool, error)
}

// ContentStore supplies raw engagement counts for the half-open window [since, until).
type ContentStore interface {
	CountEngagement(ctx context.Context, tokenID string, since, until time.Time) (map[models.EngagementKind]int64, error)
}

// AttestationService supplies a normalised external score in [0, MaxExternalScore].
// ok is false when the service is disabled.
type AttestationService interface {
	ExternalScore(ctx context.Context, tokenID string) (score int64, ok bool, err error)
}

// StateStore persists per-token price state.
type StateStore interface {
	Load(ctx context.Context, tokenIDs []string) (map[string]models.TokenPriceState, error)
	Save(ctx context.Context, states map[string]models.TokenPriceState) error
}

// BatchSink receives every finished tick batch.
type BatchSink interface {
	Name() string
	Write(ctx context.Context, batch models.Batch) error
}

// PriceArchive answers long-range history beyond the in-memory window.
type PriceArchive interface {
	Range(ctx context.Context, tokenID string, from, to time.Time, limit int) ([]models.PricePoint, error)
}

// Metrics records engine telemetry.
type Metrics interface {
	RecordTick(result string, d time.Duration)
	RecordError(kind string)
	RecordPrice(token string, price int64)
	RecordLatency(op string, d time.Duration)
	SetSubscribers(n int)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordTick(string, time.Duration)    {}
func (NopMetrics) RecordError(string)                  {}
func (NopMetrics) RecordPrice(string, int64)           {}
func (NopMetrics) RecordLatency(string, time.Duration) {}
func (NopMetrics) SetSubscribers(int)                  {}
