package attestation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svccache "PulsePrice/internal/service/cache"
)

func newServer(t *testing.T, rating float64, signature string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/process_data", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))

		var req processRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"response": map[string]interface{}{
				"intent":       0,
				"timestamp_ms": 1_700_000_000_000,
				"data": map[string]interface{}{
					"title":                    "Naruto",
					"external_average_rating":  rating,
					"external_popularity_rank": 12,
					"external_member_count":    3_000_000,
					"queried_name":             req.Payload.Name,
				},
			},
			"signature": signature,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExternalScore_NormalizesAndCaches(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, 8.47, "abcd", &hits)
	c := New(srv.URL, WithAPIKey("secret"))

	score, ok, err := c.ExternalScore(context.Background(), "Naruto")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(8470), score)

	score, ok, err = c.ExternalScore(context.Background(), "naruto")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(8470), score)
	assert.Equal(t, int32(1), hits.Load(), "second call served from cache")
}

func TestExternalScore_CacheExpires(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, 5, "abcd", &hits)
	now := time.Now()
	cache := svccache.NewTTLCache().WithClock(func() time.Time { return now })
	c := New(srv.URL, WithAPIKey("secret"), WithCache(cache, time.Minute))

	_, _, err := c.ExternalScore(context.Background(), "frieren")
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, _, err = c.ExternalScore(context.Background(), "frieren")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestExternalScore_UnsignedIsError(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, 7, "", &hits)
	c := New(srv.URL, WithAPIKey("secret"))

	_, ok, err := c.ExternalScore(context.Background(), "naruto")
	assert.ErrorIs(t, err, ErrUnsigned)
	assert.False(t, ok)
}

func TestExternalScore_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "anime not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, ok, err := New(srv.URL).ExternalScore(context.Background(), "unknown")
	require.Error(t, err)
	assert.False(t, ok)
}

func TestNormalize(t *testing.T) {
	cases := map[float64]int64{0: 0, 5: 5000, 9.9999: 10000, 12: 10000, -3: 0, 7.2346: 7235}
	for in, want := range cases {
		got, err := Normalize(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, "rating %v", in)
	}
}

func TestDisabled(t *testing.T) {
	_, ok, err := Disabled{}.ExternalScore(context.Background(), "naruto")
	assert.NoError(t, err)
	assert.False(t, ok)
}
