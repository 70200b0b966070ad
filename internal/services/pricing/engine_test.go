package pricing

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PulsePrice/internal/domain/models"
	"PulsePrice/pkg/util"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func stateAt(price, dayHigh int64, lastChange time.Time) models.TokenPriceState {
	return models.TokenPriceState{
		LastPrice:           price,
		LastChangeTimestamp: lastChange.UnixMilli(),
		Ohlc: models.OhlcCandle{
			Open:              price,
			High:              dayHigh,
			Low:               price,
			Close:             price,
			DayStartTimestamp: util.StartOfDayUTC(testNow).UnixMilli(),
		},
	}
}

func snapshot(score float64) models.EngagementSnapshot {
	return models.EngagementSnapshot{TokenID: "naruto", CompositeScore: score, Available: true}
}

func score(v int64) *int64 { return &v }

func TestNextPrice_EngagementGrowth(t *testing.T) {
	cfg := models.DefaultEngineConfig()
	st := stateAt(1_000_000, 1_000_000, testNow.Add(-time.Hour))

	res, err := NextPrice(st, snapshot(11), cfg, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(1_011_000), res.Price)
	assert.True(t, res.Changed)
	assert.Equal(t, testNow.UnixMilli(), res.LastChangeTimestamp)
	assert.False(t, res.Breakdown.DropClamped)
}

func TestNextPrice_ExternalBoost(t *testing.T) {
	cfg := models.DefaultEngineConfig()
	st := stateAt(50_000_000, 50_000_000, testNow.Add(-time.Hour))
	snap := snapshot(500)
	snap.ExternalScore = score(5000)

	res, err := NextPrice(st, snap, cfg, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(78_750_000), res.Price)
	assert.InDelta(t, 0.05, res.Breakdown.Boost, 1e-12)
}

func TestNextPrice_BoostIsCapped(t *testing.T) {
	cfg := models.DefaultEngineConfig()
	st := stateAt(10_000_000, 10_000_000, testNow.Add(-time.Hour))
	snap := snapshot(0)
	snap.ExternalScore = score(50_000)

	res, err := NextPrice(st, snap, cfg, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(11_000_000), res.Price)
}

func TestNextPrice_DropProtection(t *testing.T) {
	cfg := models.DefaultEngineConfig()
	st := stateAt(8_000_000, 20_000_000, testNow.Add(-time.Hour))

	res, err := NextPrice(st, snapshot(0), cfg, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000), res.Price)
	assert.True(t, res.Breakdown.DropClamped)
	assert.Equal(t, int64(10_000_000), res.Breakdown.DropFloor)
}

func TestNextPrice_StagnationDecay(t *testing.T) {
	cfg := models.DefaultEngineConfig()
	st := stateAt(20_000_000, 20_000_000, testNow.Add(-72*time.Hour))

	res, err := NextPrice(st, snapshot(0), cfg, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(15_200_000), res.Price)
	assert.InDelta(t, 0.76, res.Breakdown.StagnationFactor, 1e-12)
	assert.True(t, res.Changed)
}

func TestNextPrice_DecayRespectsDayFloor(t *testing.T) {
	cfg := models.DefaultEngineConfig()
	// 100h stagnant would decay to zero
	st := stateAt(20_000_000, 20_000_000, testNow.Add(-148*time.Hour))

	res, err := NextPrice(st, snapshot(0), cfg, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000), res.Price)
	assert.True(t, res.Breakdown.DropClamped)
}

func TestNextPrice_EngagementSuppressesDecay(t *testing.T) {
	cfg := models.DefaultEngineConfig()
	st := stateAt(20_000_000, 20_000_000, testNow.Add(-72*time.Hour))

	res, err := NextPrice(st, snapshot(1), cfg, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(20_020_000), res.Price)
	assert.Equal(t, float64(1), res.Breakdown.StagnationFactor)
}

func TestNextPrice_NoSignalIsStable(t *testing.T) {
	cfg := models.DefaultEngineConfig()
	lastChange := testNow.Add(-47 * time.Hour)
	st := stateAt(12_345_678, 13_000_000, lastChange)

	res, err := NextPrice(st, snapshot(0), cfg, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(12_345_678), res.Price)
	assert.False(t, res.Changed)
	assert.Equal(t, lastChange.UnixMilli(), res.LastChangeTimestamp)
}

func TestNextPrice_MinPriceClamp(t *testing.T) {
	cfg := models.DefaultEngineConfig()
	cfg.DropThreshold = 0
	st := stateAt(1_200_000, 1_200_000, testNow.Add(-200*time.Hour))

	res, err := NextPrice(st, snapshot(0), cfg, testNow)
	require.NoError(t, err)
	assert.Equal(t, cfg.MinPrice, res.Price)
	assert.True(t, res.Breakdown.MinClamped)
}

func TestNextPrice_FreshStateStartsAtMinPrice(t *testing.T) {
	cfg := models.DefaultEngineConfig()

	res, err := NextPrice(models.TokenPriceState{}, snapshot(0), cfg, testNow)
	require.NoError(t, err)
	assert.Equal(t, cfg.MinPrice, res.Price)
	assert.True(t, res.Changed)
	assert.Equal(t, float64(1), res.Breakdown.StagnationFactor)
}

func TestNextPrice_PreviousDayCandle(t *testing.T) {
	cfg := models.DefaultEngineConfig()
	st := stateAt(8_000_000, 40_000_000, testNow.Add(-time.Hour))
	st.Ohlc.DayStartTimestamp = util.StartOfDayUTC(testNow.Add(-24 * time.Hour)).UnixMilli()

	res, err := NextPrice(st, snapshot(0), cfg, testNow)
	require.NoError(t, err)
	// yesterday's high does not bind
	assert.Equal(t, int64(8_000_000), res.Price)
	assert.Equal(t, int64(4_000_000), res.Breakdown.DropFloor)
}

func TestNextPrice_UnavailableSnapshotIsSkipped(t *testing.T) {
	cfg := models.DefaultEngineConfig()
	st := stateAt(5_000_000, 5_000_000, testNow.Add(-time.Hour))
	snap := snapshot(1000)
	snap.Available = false

	res, err := NextPrice(st, snap, cfg, testNow)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.False(t, res.Changed)
	assert.Equal(t, int64(5_000_000), res.Price)
}

func TestNextPrice_ComputationFailures(t *testing.T) {
	st := stateAt(5_000_000, 5_000_000, testNow.Add(-time.Hour))

	tests := []struct {
		name  string
		snap  models.EngagementSnapshot
		tweak func(*models.EngineConfig)
	}{
		{name: "nan score", snap: snapshot(math.NaN())},
		{name: "inf score", snap: snapshot(math.Inf(1))},
		{name: "inf multiplier", snap: snapshot(1), tweak: func(c *models.EngineConfig) { c.EngagementMultiplier = math.Inf(1) }},
		{name: "overflow", snap: snapshot(1e18)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := models.DefaultEngineConfig()
			if tt.tweak != nil {
				tt.tweak(&cfg)
			}
			res, err := NextPrice(st, tt.snap, cfg, testNow)
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrComputationFailure))
			assert.Equal(t, int64(5_000_000), res.Price)
			assert.False(t, res.Changed)
		})
	}
}

func TestNextPrice_NeverBelowFloors(t *testing.T) {
	cfg := models.DefaultEngineConfig()
	for h := 0; h < 400; h += 7 {
		st := stateAt(3_000_000, 6_000_000, testNow.Add(-time.Duration(h)*time.Hour))
		res, err := NextPrice(st, snapshot(0), cfg, testNow)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.Price, cfg.MinPrice)
		assert.GreaterOrEqual(t, res.Price, int64(3_000_000))
	}
}
