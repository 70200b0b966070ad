package di

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PulsePrice/internal/domain/models"
	internalrepo "PulsePrice/internal/repository"
	"PulsePrice/internal/service/attestation"
	"PulsePrice/pkg/config"
)

func testConfig(t *testing.T, contentURL string, extra string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(fmt.Sprintf(`
environment: test
server:
  port: 0
logger:
  level: warn
  format: json
registry:
  tokens: [alpha, beta]
content_store:
  base_url: %s
engine:
  pricing:
    update_interval_ms: 100
%s`, contentURL, extra)))
	require.NoError(t, err)
	return cfg
}

func TestEngineConfigFromDefaults(t *testing.T) {
	c, err := config.Default()
	require.NoError(t, err)
	assert.Equal(t, models.DefaultEngineConfig(), EngineConfigFrom(c.Engine.Pricing))
}

func TestProvideConfigHolderRejectsBadPricing(t *testing.T) {
	cfg := testConfig(t, "http://content", "")
	cfg.Engine.Pricing.DropThreshold = 3

	_, err := ProvideConfigHolder(cfg)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestProvideAttestation(t *testing.T) {
	cfg := testConfig(t, "http://content", "")
	assert.IsType(t, attestation.Disabled{}, ProvideAttestation(cfg, nil))

	cfg.Attestation.Enabled = true
	cfg.Attestation.BaseURL = "http://attest"
	assert.IsType(t, &attestation.Client{}, ProvideAttestation(cfg, nil))
}

func TestProvideSinksFollowConfig(t *testing.T) {
	cfg := testConfig(t, "http://content", "state: {backend: memory}")

	states := ProvideStateStore(cfg, nil)
	require.NotNil(t, states)
	sinks := ProvideBatchSinks(cfg, nil, nil, states)
	require.Len(t, sinks, 1)
	assert.Equal(t, "state", sinks[0].Name())

	cfg.State.Backend = "none"
	assert.Nil(t, ProvideStateStore(cfg, nil))
	assert.Empty(t, ProvideBatchSinks(cfg, nil, nil, nil))
	assert.Nil(t, ProvidePriceArchive(nil))
}

func TestProvideRedisBackedGraph(t *testing.T) {
	mr := miniredis.RunT(t)
	_, err := mr.SAdd("pulse:tokens", "alpha", "beta")
	require.NoError(t, err)

	cfg := testConfig(t, "http://content", fmt.Sprintf(`
redis:
  enabled: true
  host: %s
  port: %s
state:
  backend: layered
`, mr.Host(), mr.Port()))
	cfg.Registry.Backend = "redis"

	rc, cleanup, err := ProvideRedisCache(cfg)
	require.NoError(t, err)
	defer cleanup()

	registry, err := ProvideTokenRegistry(cfg, rc)
	require.NoError(t, err)
	tokens, err := registry.ListTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, tokens)

	states := ProvideStateStore(cfg, rc)
	require.IsType(t, &internalrepo.CacheStateStore{}, states)
	in := map[string]models.TokenPriceState{"alpha": {LastPrice: 1_500_000}}
	require.NoError(t, states.Save(context.Background(), in))
	out, err := states.Load(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	assert.Equal(t, int64(1_500_000), out["alpha"].LastPrice)
	assert.NotContains(t, out, "beta")
}

func TestInitializeAppRunsTicks(t *testing.T) {
	content := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"counts":{"like":100}}`))
	}))
	defer content.Close()

	cfg := testConfig(t, content.URL, "state: {backend: memory}")
	app, cleanup, err := InitializeApp(cfg)
	require.NoError(t, err)
	defer cleanup()

	require.NoError(t, app.Start(context.Background()))
	require.Eventually(t, func() bool {
		points, err := app.Engine.History(context.Background(), "alpha", 10)
		return err == nil && len(points) > 0
	}, 3*time.Second, 20*time.Millisecond)

	q, err := app.Engine.Current(context.Background(), "alpha")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, q.Price, cfg.Engine.Pricing.MinPrice)

	require.NoError(t, app.Shutdown(context.Background()))
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestAppShutdownEndsOpenStreams(t *testing.T) {
	content := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"counts":{}}`))
	}))
	defer content.Close()

	cfg := testConfig(t, content.URL, "")
	cfg.Server.Port = freePort(t)
	cfg.Server.ShutdownTimeout = 5 * time.Second
	app, cleanup, err := InitializeApp(cfg)
	require.NoError(t, err)
	defer cleanup()
	require.NoError(t, app.Start(context.Background()))

	url := fmt.Sprintf("http://127.0.0.1:%d/stream", cfg.Server.Port)
	var resp *http.Response
	require.Eventually(t, func() bool {
		r, err := http.Get(url)
		if err != nil {
			return false
		}
		resp = r
		return true
	}, 2*time.Second, 20*time.Millisecond)
	defer resp.Body.Close()

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: snapshot\n", line)

	start := time.Now()
	require.NoError(t, app.Shutdown(context.Background()))
	assert.Less(t, time.Since(start), 3*time.Second)
}
