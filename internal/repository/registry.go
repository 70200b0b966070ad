package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	domrepo "PulsePrice/internal/domain/repository"
)

// StaticRegistry serves a fixed token list from config.
type StaticRegistry struct {
	tokens []string
	index  map[string]struct{}
}

func NewStaticRegistry(tokens []string) *StaticRegistry {
	r := &StaticRegistry{index: make(map[string]struct{}, len(tokens))}
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := r.index[t]; dup {
			continue
		}
		r.index[t] = struct{}{}
		r.tokens = append(r.tokens, t)
	}
	sort.Strings(r.tokens)
	return r
}

func (r *StaticRegistry) ListTokens(context.Context) ([]string, error) {
	return append([]string(nil), r.tokens...), nil
}

func (r *StaticRegistry) Exists(_ context.Context, tokenID string) (bool, error) {
	_, ok := r.index[tokenID]
	return ok, nil
}

// setStore is the subset of cache.RedisCache the registry reads.
type setStore interface {
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
}

// RedisRegistry reads active tokens from a Redis SET, so tokens can be
// added or removed while the engine runs.
type RedisRegistry struct {
	store setStore
	key   string
}

func NewRedisRegistry(store setStore, key string) *RedisRegistry {
	if key == "" {
		key = "tokens"
	}
	return &RedisRegistry{store: store, key: key}
}

func (r *RedisRegistry) ListTokens(ctx context.Context) ([]string, error) {
	tokens, err := r.store.SMembers(ctx, r.key)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	sort.Strings(tokens)
	return tokens, nil
}

func (r *RedisRegistry) Exists(ctx context.Context, tokenID string) (bool, error) {
	ok, err := r.store.SIsMember(ctx, r.key, tokenID)
	if err != nil {
		return false, fmt.Errorf("token lookup: %w", err)
	}
	return ok, nil
}

var (
	_ domrepo.TokenRegistry = (*StaticRegistry)(nil)
	_ domrepo.TokenRegistry = (*RedisRegistry)(nil)
)
