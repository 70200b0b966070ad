package models

import (
	"fmt"
	"math"
	"time"
)

// MinUpdateIntervalMs keeps the scheduler from spinning.
const MinUpdateIntervalMs = 100

// EngineConfig holds the runtime pricing parameters. Values are treated as
// immutable once published; updates build a new value with Apply.
type EngineConfig struct {
	Weights              map[EngagementKind]float64 `json:"weights"`
	EngagementMultiplier float64                    `json:"engagementMultiplier"`
	DropThreshold        float64                    `json:"dropThreshold"`
	StagnationHours      float64                    `json:"stagnationHours"`
	StagnationDropRate   float64                    `json:"stagnationDropRate"`
	MinPrice             int64                      `json:"minPrice"`
	UpdateIntervalMs     int64                      `json:"updateIntervalMs"`
}

// DefaultEngineConfig returns the stock pricing parameters.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Weights: map[EngagementKind]float64{
			KindPost:           5,
			KindLike:           1,
			KindComment:        2,
			KindRating:         3,
			KindSpecialContent: 10,
			KindPrediction:     4,
			KindStake:          8,
		},
		EngagementMultiplier: 0.001,
		DropThreshold:        0.5,
		StagnationHours:      48,
		StagnationDropRate:   0.01,
		MinPrice:             1_000_000,
		UpdateIntervalMs:     30_000,
	}
}

// UpdateInterval returns the tick period.
func (c EngineConfig) UpdateInterval() time.Duration {
	return time.Duration(c.UpdateIntervalMs) * time.Millisecond
}

// Weight returns the weight of kind, zero when unset.
func (c EngineConfig) Weight(kind EngagementKind) float64 {
	return c.Weights[kind]
}

// Clone returns a deep copy.
func (c EngineConfig) Clone() EngineConfig {
	out := c
	out.Weights = make(map[EngagementKind]float64, len(c.Weights))
	for k, v := range c.Weights {
		out.Weights[k] = v
	}
	return out
}

// Validate checks the invariants every published config must hold.
func (c EngineConfig) Validate() error {
	for k, w := range c.Weights {
		if _, ok := ParseEngagementKind(string(k)); !ok {
			return fmt.Errorf("%w: unknown weight kind %q", ErrValidation, k)
		}
		if !finiteNonNegative(w) {
			return fmt.Errorf("%w: weight %s must be a non-negative number", ErrValidation, k)
		}
	}
	if !finiteNonNegative(c.EngagementMultiplier) {
		return fmt.Errorf("%w: engagementMultiplier must be a non-negative number", ErrValidation)
	}
	if !inUnitInterval(c.DropThreshold) {
		return fmt.Errorf("%w: dropThreshold must be within [0,1]", ErrValidation)
	}
	if !finiteNonNegative(c.StagnationHours) {
		return fmt.Errorf("%w: stagnationHours must be a non-negative number", ErrValidation)
	}
	if !inUnitInterval(c.StagnationDropRate) {
		return fmt.Errorf("%w: stagnationDropRate must be within [0,1]", ErrValidation)
	}
	if c.MinPrice < 0 {
		return fmt.Errorf("%w: minPrice must be non-negative", ErrValidation)
	}
	if c.UpdateIntervalMs < MinUpdateIntervalMs {
		return fmt.Errorf("%w: updateIntervalMs must be at least %d", ErrValidation, MinUpdateIntervalMs)
	}
	return nil
}

// EngineConfigPatch is a partial EngineConfig; nil fields are left untouched.
// Weights merge per kind.
type EngineConfigPatch struct {
	Weights              map[EngagementKind]float64 `json:"weights,omitempty" validate:"omitempty,dive,keys,oneof=post like comment rating specialContent prediction stake,endkeys,gte=0"`
	EngagementMultiplier *float64                   `json:"engagementMultiplier,omitempty" validate:"omitempty,gte=0"`
	DropThreshold        *float64                   `json:"dropThreshold,omitempty" validate:"omitempty,gte=0,lte=1"`
	StagnationHours      *float64                   `json:"stagnationHours,omitempty" validate:"omitempty,gte=0"`
	StagnationDropRate   *float64                   `json:"stagnationDropRate,omitempty" validate:"omitempty,gte=0,lte=1"`
	MinPrice             *int64                     `json:"minPrice,omitempty" validate:"omitempty,gte=0"`
	UpdateIntervalMs     *int64                     `json:"updateIntervalMs,omitempty" validate:"omitempty,gte=100"`
}

// Empty reports whether the patch sets nothing.
func (p EngineConfigPatch) Empty() bool {
	return len(p.Weights) == 0 && p.EngagementMultiplier == nil && p.DropThreshold == nil &&
		p.StagnationHours == nil && p.StagnationDropRate == nil && p.MinPrice == nil && p.UpdateIntervalMs == nil
}

// Apply returns a new config with the patch merged over c, validated.
func (c EngineConfig) Apply(p EngineConfigPatch) (EngineConfig, error) {
	out := c.Clone()
	for k, w := range p.Weights {
		out.Weights[k] = w
	}
	if p.EngagementMultiplier != nil {
		out.EngagementMultiplier = *p.EngagementMultiplier
	}
	if p.DropThreshold != nil {
		out.DropThreshold = *p.DropThreshold
	}
	if p.StagnationHours != nil {
		out.StagnationHours = *p.StagnationHours
	}
	if p.StagnationDropRate != nil {
		out.StagnationDropRate = *p.StagnationDropRate
	}
	if p.MinPrice != nil {
		out.MinPrice = *p.MinPrice
	}
	if p.UpdateIntervalMs != nil {
		out.UpdateIntervalMs = *p.UpdateIntervalMs
	}
	if err := out.Validate(); err != nil {
		return c, err
	}
	return out, nil
}

func finiteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

func inUnitInterval(v float64) bool {
	return finiteNonNegative(v) && v <= 1
}
