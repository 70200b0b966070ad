package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PulsePrice/internal/domain/models"
	domrepo "PulsePrice/internal/domain/repository"
	"PulsePrice/pkg/cache"
)

const stateKeyPrefix = "state"

// CacheStateStore persists token price state as JSON in a cache.Service
// (Redis, memory or layered). It doubles as a batch sink.
type CacheStateStore struct {
	cache cache.Service
	ttl   time.Duration

	mu   sync.Mutex
	seqs map[string]uint64 // highest Seq loaded or saved per token
}

// NewCacheStateStore creates the store. ttl of zero keeps entries forever.
func NewCacheStateStore(c cache.Service, ttl time.Duration) *CacheStateStore {
	return &CacheStateStore{cache: c, ttl: ttl, seqs: make(map[string]uint64)}
}

func stateKey(tokenID string) string {
	return cache.GenerateKey(stateKeyPrefix, tokenID)
}

// Load returns the saved states of tokenIDs; tokens never saved are absent.
func (s *CacheStateStore) Load(ctx context.Context, tokenIDs []string) (map[string]models.TokenPriceState, error) {
	out := make(map[string]models.TokenPriceState, len(tokenIDs))
	if len(tokenIDs) == 0 {
		return out, nil
	}
	keys := make([]string, len(tokenIDs))
	for i, id := range tokenIDs {
		keys[i] = stateKey(id)
	}
	found, err := cache.MGetTyped[models.TokenPriceState](ctx, s.cache, keys...)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range tokenIDs {
		if st, ok := found[keys[i]]; ok {
			out[id] = st
			s.seqs[id] = max(s.seqs[id], st.Seq)
		}
	}
	return out, nil
}

// Save writes every state in one round trip.
func (s *CacheStateStore) Save(ctx context.Context, states map[string]models.TokenPriceState) error {
	if len(states) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(states))
	for id, st := range states {
		values[stateKey(id)] = st
	}
	if err := s.cache.MSet(ctx, values, s.ttl); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (s *CacheStateStore) Name() string { return "state" }

// Write persists the states carried by the batch. A state older than one
// already persisted for the same token is skipped, so a tick batch published
// after a manual trigger cannot roll the token back.
func (s *CacheStateStore) Write(ctx context.Context, b models.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := make(map[string]models.TokenPriceState, len(b.States))
	for id, st := range b.States {
		if st.Seq < s.seqs[id] {
			continue
		}
		fresh[id] = st
	}
	if err := s.Save(ctx, fresh); err != nil {
		return err
	}
	for id, st := range fresh {
		s.seqs[id] = st.Seq
	}
	return nil
}

var (
	_ domrepo.StateStore = (*CacheStateStore)(nil)
	_ domrepo.BatchSink  = (*CacheStateStore)(nil)
)
