package contentstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PulsePrice/internal/domain/models"
)

func TestClient_CountEngagement(t *testing.T) {
	since := time.UnixMilli(1_700_000_000_000)
	until := since.Add(30 * time.Second)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tokens/one piece/engagement", r.URL.Path)
		assert.Equal(t, "1700000000000", r.URL.Query().Get("since"))
		assert.Equal(t, "1700000030000", r.URL.Query().Get("until"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tokenId":"one piece","counts":{"post":3,"like":10,"share":99}}`))
	}))
	defer srv.Close()

	counts, err := NewClient(srv.URL+"/", time.Second).CountEngagement(context.Background(), "one piece", since, until)
	require.NoError(t, err)
	assert.Equal(t, map[models.EngagementKind]int64{models.KindPost: 3, models.KindLike: 10}, counts)
}

func TestClient_Failures(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		},
		"negative count": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"tokenId":"naruto","counts":{"like":-1}}`))
		},
		"bad json": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{`))
		},
	}

	for name, h := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			_, err := NewClient(srv.URL, time.Second).CountEngagement(context.Background(), "naruto", time.Now(), time.Now())
			assert.Error(t, err)
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewClient(srv.URL, 5*time.Second).CountEngagement(ctx, "naruto", time.Now(), time.Now())
	assert.Error(t, err)
}

func TestEventCounter_HalfOpenWindow(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	c := NewEventCounter(time.Hour).WithClock(func() time.Time { return now })

	record := func(arrive time.Duration, ev models.EngagementEvent) {
		now = time.UnixMilli(1_700_000_000_000).Add(arrive)
		ev.Timestamp = now.UnixMilli()
		c.Record(ev)
	}
	record(-10*time.Second, models.EngagementEvent{TokenID: "naruto", Kind: "like", Count: 2})
	record(-5*time.Second, models.EngagementEvent{TokenID: "naruto", Kind: "like", Count: 3})
	record(0, models.EngagementEvent{TokenID: "naruto", Kind: "post", Count: 1})
	record(-5*time.Second, models.EngagementEvent{TokenID: "frieren", Kind: "like", Count: 7})

	base := time.UnixMilli(1_700_000_000_000)
	counts, err := c.CountEngagement(context.Background(), "naruto", base.Add(-10*time.Second), base)
	require.NoError(t, err)
	assert.Equal(t, map[models.EngagementKind]int64{models.KindLike: 5}, counts)

	counts, _ = c.CountEngagement(context.Background(), "naruto", base, base.Add(time.Second))
	assert.Equal(t, map[models.EngagementKind]int64{models.KindPost: 1}, counts)
}

func TestEventCounter_LateEventCountsInNextWindow(t *testing.T) {
	tick := time.UnixMilli(1_700_000_000_000)
	now := tick
	c := NewEventCounter(time.Hour).WithClock(func() time.Time { return now })

	counts, err := c.CountEngagement(context.Background(), "naruto", tick.Add(-time.Minute), tick)
	require.NoError(t, err)
	assert.Empty(t, counts)

	// produced before the tick, consumed after it
	now = tick.Add(20 * time.Millisecond)
	c.Record(models.EngagementEvent{TokenID: "naruto", Kind: "post", Count: 4, Timestamp: tick.Add(-5 * time.Millisecond).UnixMilli()})

	counts, err = c.CountEngagement(context.Background(), "naruto", tick, tick.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, map[models.EngagementKind]int64{models.KindPost: 4}, counts)
}

func TestEventCounter_Retention(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	c := NewEventCounter(time.Minute)
	c.now = func() time.Time { return now }

	c.Record(models.EngagementEvent{TokenID: "naruto", Kind: "like", Count: 1, Timestamp: now.Add(-2 * time.Minute).UnixMilli()})
	c.Record(models.EngagementEvent{TokenID: "naruto", Kind: "like", Count: 1, Timestamp: now.Add(-30 * time.Second).UnixMilli()})
	c.Record(models.EngagementEvent{TokenID: "naruto", Kind: "bogus", Count: 1, Timestamp: now.UnixMilli()})

	now = now.Add(time.Minute)
	assert.Equal(t, 1, c.Prune())

	counts, _ := c.CountEngagement(context.Background(), "naruto", now.Add(-time.Hour), now)
	assert.Empty(t, counts)
}
