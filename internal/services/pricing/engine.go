// Package pricing turns an engagement snapshot into the next token price.
//
// All arithmetic runs on decimals and is floored to the smallest integer
// price unit once, at the end, so results are exact and reproducible.
package pricing

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"PulsePrice/internal/domain/models"
	"PulsePrice/pkg/util"
)

const (
	msPerHour = 3_600_000
	// MaxBoost is the multiplier headroom granted by a full external score.
	MaxBoost = 0.1
)

var (
	one         = decimal.NewFromInt(1)
	zero        = decimal.Zero
	maxBoost    = decimal.NewFromFloat(MaxBoost)
	maxScore    = decimal.NewFromInt(models.MaxExternalScore)
	hourMs      = decimal.NewFromInt(msPerHour)
	maxPriceDec = decimal.NewFromInt(math.MaxInt64)
)

// NextPrice computes the next price of a token. It never mutates state.
//
// An unavailable snapshot yields the unchanged price with Skipped set.
// NaN, infinite or out-of-range values yield ErrComputationFailure and the
// caller must keep the previous price.
func NextPrice(state models.TokenPriceState, snap models.EngagementSnapshot, cfg models.EngineConfig, now time.Time) (models.PriceResult, error) {
	nowMs := now.UnixMilli()
	res := models.PriceResult{
		TokenID:             snap.TokenID,
		Price:               state.LastPrice,
		LastChangeTimestamp: state.LastChangeTimestamp,
		Timestamp:           nowMs,
	}
	if !snap.Available {
		res.Skipped = true
		return res, nil
	}
	if err := checkInputs(snap, cfg); err != nil {
		return res, err
	}

	base := state.LastPrice
	if state.Fresh() {
		base = cfg.MinPrice
	}
	baseDec := decimal.NewFromInt(base)
	bd := models.PriceBreakdown{Base: base, StagnationFactor: 1}

	// engagement
	change := decimal.NewFromFloat(snap.CompositeScore).Mul(decimal.NewFromFloat(cfg.EngagementMultiplier))
	candidate := baseDec.Mul(one.Add(change))
	bd.EngagementChange = change.InexactFloat64()

	// external boost
	if snap.ExternalScore != nil {
		ratio := decimal.NewFromInt(*snap.ExternalScore).Div(maxScore)
		ratio = decimal.Max(zero, decimal.Min(ratio, one))
		boost := ratio.Mul(maxBoost)
		candidate = candidate.Mul(one.Add(boost))
		bd.Boost = boost.InexactFloat64()
	}

	// drop protection
	floor := decimal.NewFromInt(dayHigh(state, nowMs)).Mul(decimal.NewFromFloat(cfg.DropThreshold))
	bd.DropFloor = floor.Floor().IntPart()
	if candidate.LessThan(floor) {
		candidate = floor
		bd.DropClamped = true
	}

	// stagnation decay
	if !state.Fresh() {
		hoursSince := decimal.NewFromInt(nowMs - state.LastChangeTimestamp).Div(hourMs)
		threshold := decimal.NewFromFloat(cfg.StagnationHours)
		if hoursSince.GreaterThan(threshold) && roundsToZero(baseDec, change) {
			stagnant := hoursSince.Sub(threshold)
			factor := decimal.Max(zero, one.Sub(stagnant.Mul(decimal.NewFromFloat(cfg.StagnationDropRate))))
			candidate = candidate.Mul(factor)
			bd.StagnationFactor = factor.InexactFloat64()
			// decay never breaks the daily floor
			if candidate.LessThan(floor) {
				candidate = floor
				bd.DropClamped = true
			}
		}
	}

	minPrice := decimal.NewFromInt(cfg.MinPrice)
	if candidate.LessThan(minPrice) {
		candidate = minPrice
		bd.MinClamped = true
	}

	candidate = candidate.Floor()
	if candidate.GreaterThan(maxPriceDec) {
		return res, fmt.Errorf("%w: token %s: price %s overflows", models.ErrComputationFailure, snap.TokenID, candidate.String())
	}

	price := candidate.IntPart()
	res.Price = price
	res.Breakdown = bd
	if price != state.LastPrice {
		res.Changed = true
		res.LastChangeTimestamp = nowMs
	}
	return res, nil
}

// dayHigh is the high of the candle covering nowMs. A candle left over from an
// earlier UTC day has not been rolled yet; its close opens the new day.
func dayHigh(state models.TokenPriceState, nowMs int64) int64 {
	if state.Ohlc.DayStartTimestamp == 0 || util.SameUTCDay(state.Ohlc.DayStartTimestamp, nowMs) {
		return state.Ohlc.High
	}
	return state.LastPrice
}

// roundsToZero reports whether the engagement term moves the price by less
// than one smallest unit.
func roundsToZero(base, change decimal.Decimal) bool {
	return base.Mul(change).Abs().LessThan(one)
}

func checkInputs(snap models.EngagementSnapshot, cfg models.EngineConfig) error {
	values := map[string]float64{
		"compositeScore":       snap.CompositeScore,
		"engagementMultiplier": cfg.EngagementMultiplier,
		"dropThreshold":        cfg.DropThreshold,
		"stagnationHours":      cfg.StagnationHours,
		"stagnationDropRate":   cfg.StagnationDropRate,
	}
	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: token %s: %s is not finite", models.ErrComputationFailure, snap.TokenID, name)
		}
	}
	return nil
}
