package cache

import (
	"context"
	"errors"
	"time"

	pkgcache "PulsePrice/pkg/cache"
)

// SharedCache adapts a pkg/cache.Service (Redis or layered) to BytesCache so
// replicas share cached collaborator answers.
type SharedCache struct {
	svc     pkgcache.Service
	prefix  string
	timeout time.Duration
}

func NewSharedCache(svc pkgcache.Service, prefix string) *SharedCache {
	return &SharedCache{svc: svc, prefix: prefix, timeout: 500 * time.Millisecond}
}

func (s *SharedCache) GetBytes(key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var raw string
	if err := s.svc.Get(ctx, pkgcache.GenerateKey(s.prefix, key), &raw); err != nil {
		if errors.Is(err, pkgcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return []byte(raw), true, nil
}

func (s *SharedCache) SetBytes(key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.svc.Set(ctx, pkgcache.GenerateKey(s.prefix, key), value, ttl)
}
