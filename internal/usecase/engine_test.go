package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PulsePrice/internal/domain/models"
)

type memStates struct {
	saved map[string]models.TokenPriceState
}

func (m *memStates) Load(_ context.Context, ids []string) (map[string]models.TokenPriceState, error) {
	out := map[string]models.TokenPriceState{}
	for _, id := range ids {
		if st, ok := m.saved[id]; ok {
			out[id] = st
		}
	}
	return out, nil
}

func (m *memStates) Save(_ context.Context, states map[string]models.TokenPriceState) error {
	for id, st := range states {
		m.saved[id] = st
	}
	return nil
}

func TestEngine_UnknownTokenIsNotFound(t *testing.T) {
	f := newFixture("naruto")
	ctx := context.Background()

	_, err := f.engine.Current(ctx, "bleach")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = f.engine.History(ctx, "bleach", 10)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = f.engine.Ohlc(ctx, "bleach")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = f.engine.Trigger(ctx, "bleach")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestEngine_ReadsAreIdempotent(t *testing.T) {
	f := newFixture("naruto", "frieren")
	ctx := context.Background()
	_, _ = f.scheduler.Tick(ctx)

	a, err := f.engine.CurrentAll(ctx)
	require.NoError(t, err)
	b, err := f.engine.CurrentAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 2)

	q, err := f.engine.Current(ctx, "naruto")
	require.NoError(t, err)
	assert.Equal(t, a["naruto"], q)
}

func TestEngine_NeverTickedTokenHasMinPrice(t *testing.T) {
	f := newFixture("naruto")
	q, err := f.engine.Current(context.Background(), "naruto")
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), q.Price)
}

func TestEngine_History(t *testing.T) {
	f := newFixture("naruto")
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, _ = f.scheduler.Tick(ctx)
	}

	h, err := f.engine.History(ctx, "naruto", 0)
	require.NoError(t, err)
	assert.Len(t, h, 5)

	h, err = f.engine.History(ctx, "naruto", 2)
	require.NoError(t, err)
	assert.Len(t, h, 2)

	_, err = f.engine.History(ctx, "naruto", models.MaxHistory+1)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestEngine_TriggerWritesAndPublishes(t *testing.T) {
	f := newFixture("naruto")
	f.content.counts["naruto"] = map[models.EngagementKind]int64{models.KindPost: 1, models.KindLike: 6}
	sub := f.engine.Subscribe()
	<-sub.C

	p, err := f.engine.Trigger(context.Background(), "naruto")
	require.NoError(t, err)
	assert.Equal(t, int64(1_011_000), p.Price)
	assert.Equal(t, int64(1), f.store.Writes())

	msg := <-sub.C
	assert.Equal(t, models.MessagePriceUpdate, msg.Type)
	require.Equal(t, 1, f.published.count())
	assert.Contains(t, f.published.last().States, "naruto")
}

func TestEngine_TriggerSourceFailures(t *testing.T) {
	t.Run("both sources down", func(t *testing.T) {
		f := newFixture("naruto")
		f.content.fail["naruto"] = true

		_, err := f.engine.Trigger(context.Background(), "naruto")
		assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
		assert.Zero(t, f.store.Writes())
	})

	t.Run("content store down only", func(t *testing.T) {
		f := newFixture("naruto")
		f.attest.disabled = false
		f.attest.score = 5000
		f.content.fail["naruto"] = true

		p, err := f.engine.Trigger(context.Background(), "naruto")
		require.NoError(t, err)
		assert.Equal(t, int64(1_000_000), p.Price)
		assert.Zero(t, f.store.Writes())
		assert.Zero(t, f.published.count())
	})
}

func TestEngine_TriggerWaitsForTickOnSameToken(t *testing.T) {
	f := newFixture("naruto", "frieren")
	f.content.entered = make(chan struct{}, 1)
	f.content.release = make(chan struct{})
	f.content.blockOnly = "naruto"
	ctx := context.Background()

	tickDone := make(chan models.Batch)
	go func() {
		b, _ := f.scheduler.Tick(ctx)
		tickDone <- b
	}()
	select {
	case <-f.content.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("tick never reached the content store")
	}

	type triggered struct {
		point models.PricePoint
		err   error
	}
	narutoDone := make(chan triggered, 1)
	go func() {
		p, err := f.engine.Trigger(ctx, "naruto")
		narutoDone <- triggered{p, err}
	}()

	// other tokens are not held up by the blocked one
	done := make(chan error, 1)
	go func() {
		_, err := f.engine.Trigger(ctx, "frieren")
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("trigger on another token waited for the tick")
	}

	select {
	case <-narutoDone:
		t.Fatal("trigger finished while the tick still held the token")
	case <-time.After(100 * time.Millisecond):
	}
	// frieren: one tick write and one trigger write; naruto: nothing yet
	require.Eventually(t, func() bool { return f.store.Writes() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, f.store.History("naruto", 0))

	close(f.content.release)
	b := <-tickDone
	assert.Len(t, b.Items, 2)
	res := <-narutoDone
	require.NoError(t, res.err)

	assert.Equal(t, int64(4), f.store.Writes())
	h := f.store.History("naruto", 0)
	require.Len(t, h, 2)
	assert.LessOrEqual(t, h[0].Timestamp, h[1].Timestamp)
	assert.Equal(t, res.point, h[1], "trigger wrote after the tick")
	assert.Equal(t, uint64(2), f.store.Get("naruto").Seq)
}

func TestEngine_UpdateConfig(t *testing.T) {
	f := newFixture("naruto")
	before := f.engine.Config()

	bad := 1.5
	_, err := f.engine.UpdateConfig(models.EngineConfigPatch{DropThreshold: &bad})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Equal(t, before, f.engine.Config())

	mult := 0.002
	cfg, err := f.engine.UpdateConfig(models.EngineConfigPatch{
		EngagementMultiplier: &mult,
		Weights:              map[models.EngagementKind]float64{models.KindLike: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.002, cfg.EngagementMultiplier)
	assert.Equal(t, float64(2), cfg.Weights[models.KindLike])
	assert.Equal(t, float64(5), cfg.Weights[models.KindPost])
	assert.Equal(t, cfg, f.engine.Config())
	assert.Equal(t, float64(1), before.Weights[models.KindLike], "earlier values stay immutable")
}

func TestEngine_RestoresState(t *testing.T) {
	f := newFixture("naruto")
	saved := models.TokenPriceState{
		LastPrice: 4_200_000,
		Ohlc:      models.OhlcCandle{Open: 4_000_000, High: 4_300_000, Low: 3_900_000, Close: 4_200_000},
		History:   []models.PricePoint{{Timestamp: 1, Price: 4_200_000}},
	}
	f.engine.states = &memStates{saved: map[string]models.TokenPriceState{"naruto": saved, "gone": saved}}

	require.NoError(t, f.engine.restore(context.Background()))

	q, err := f.engine.Current(context.Background(), "naruto")
	require.NoError(t, err)
	assert.Equal(t, saved.Quote(), q)
	assert.Equal(t, []string{"naruto"}, f.store.Tokens())
}

func TestEngine_RestoreResumesEngagementWindow(t *testing.T) {
	f := newFixture("naruto", "frieren")
	lastTick := time.Now().Add(-10 * time.Minute).Truncate(time.Millisecond)
	saved := models.TokenPriceState{
		LastPrice: 4_200_000,
		History: []models.PricePoint{
			{Timestamp: lastTick.Add(-time.Minute).UnixMilli(), Price: 4_100_000},
			{Timestamp: lastTick.UnixMilli(), Price: 4_200_000},
		},
	}
	f.engine.states = &memStates{saved: map[string]models.TokenPriceState{"naruto": saved}}
	require.NoError(t, f.engine.restore(context.Background()))

	now := time.Now()
	assert.True(t, f.agg.Since("naruto", now).Equal(lastTick))
	// tokens without saved state keep the initial lookback
	assert.True(t, f.agg.Since("frieren", now).Equal(now.Add(-time.Hour)))

	_, err := f.engine.Trigger(context.Background(), "naruto")
	require.NoError(t, err)
	f.content.mu.Lock()
	defer f.content.mu.Unlock()
	require.NotEmpty(t, f.content.windows)
	assert.True(t, f.content.windows[len(f.content.windows)-1].Equal(lastTick))
}

func TestEngine_Health(t *testing.T) {
	f := newFixture("naruto", "frieren")
	sub := f.engine.Subscribe()
	defer f.engine.Unsubscribe(sub)

	h, err := f.engine.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Health{Status: "ok", Tokens: 2, Subscribers: 1}, h)
}

func TestEngine_StartStop(t *testing.T) {
	f := newFixture("naruto")
	sub := f.engine.Subscribe()
	<-sub.C

	require.NoError(t, f.engine.Start(context.Background()))
	msg, ok := <-sub.C
	require.True(t, ok)
	assert.Equal(t, models.MessagePriceUpdate, msg.Type)

	f.engine.Stop()
	for range sub.C {
	}
	assert.Equal(t, 0, f.broadcast.Len())
}
