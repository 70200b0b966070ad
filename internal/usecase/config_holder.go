package usecase

import (
	"sync"
	"sync/atomic"

	"PulsePrice/internal/domain/models"
)

// ConfigHolder publishes the runtime EngineConfig. Readers get an immutable
// value; updates swap in a new one so a tick never sees a half-applied patch.
type ConfigHolder struct {
	cur     atomic.Pointer[models.EngineConfig]
	mu      sync.Mutex // serialises writers
	changed chan struct{}
}

func NewConfigHolder(initial models.EngineConfig) (*ConfigHolder, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	h := &ConfigHolder{changed: make(chan struct{}, 1)}
	cfg := initial.Clone()
	h.cur.Store(&cfg)
	return h, nil
}

// Get returns the current config. Callers must not modify Weights.
func (h *ConfigHolder) Get() models.EngineConfig {
	return *h.cur.Load()
}

// Update merges patch over the current config and publishes the result.
// On validation failure the current config is left in place.
func (h *ConfigHolder) Update(patch models.EngineConfigPatch) (models.EngineConfig, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next, err := h.Get().Apply(patch)
	if err != nil {
		return h.Get(), err
	}
	h.cur.Store(&next)

	select {
	case h.changed <- struct{}{}:
	default:
	}
	return next, nil
}

// Changed signals after each successful Update. Notifications coalesce.
func (h *ConfigHolder) Changed() <-chan struct{} {
	return h.changed
}
