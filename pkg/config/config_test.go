package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
environment: test
registry:
  tokens: [a, b]
content_store:
  base_url: http://content
engine:
  pricing:
    weights:
      like: 2
    drop_threshold: 0.25
`

func TestParseAppliesDefaultsUnderYAML(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 5*time.Second, c.Engine.SourceTimeout)
	assert.Equal(t, time.Hour, c.Engine.InitialLookback)
	assert.Equal(t, 0.25, c.Engine.Pricing.DropThreshold)
	assert.Equal(t, 0.001, c.Engine.Pricing.EngagementMultiplier)
	assert.Equal(t, int64(1000000), c.Engine.Pricing.MinPrice)
	// YAML keys merge into the default weight map
	assert.Equal(t, 2.0, c.Engine.Pricing.Weights["like"])
	assert.Equal(t, 5.0, c.Engine.Pricing.Weights["post"])
	assert.Equal(t, -1, c.Kafka.RequiredAcks)
	assert.Equal(t, 5*time.Minute, c.Attestation.CacheTTL)
}

func TestValidateRejectsInconsistentBackends(t *testing.T) {
	cases := map[string]string{
		"static registry without tokens": `
environment: test
content_store: {base_url: http://x}
`,
		"kafka content store without kafka": `
environment: test
registry: {tokens: [a]}
content_store: {backend: kafka}
`,
		"redis state without redis": `
environment: test
registry: {tokens: [a]}
content_store: {base_url: http://x}
state: {backend: redis}
`,
		"unknown registry": `
environment: test
registry: {backend: etcd, tokens: [a]}
content_store: {base_url: http://x}
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	env := map[string]string{
		"PULSE_TOKENS":  "x, y",
		"REDIS_ADDR":    "redis.local:6380",
		"KAFKA_BROKERS": "k1:9092,k2:9092",
		"LOG_LEVEL":     "debug",
	}
	require.NoError(t, c.ApplyEnv(func(k string) string { return env[k] }))

	assert.Equal(t, []string{"x", "y"}, c.Registry.Tokens)
	assert.True(t, c.Redis.Enabled)
	assert.Equal(t, "redis.local", c.Redis.Host)
	assert.Equal(t, 6380, c.Redis.Port)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "debug", c.Logger.Level)
	require.NoError(t, c.Validate())

	require.Error(t, c.ApplyEnv(func(k string) string {
		if k == "REDIS_ADDR" {
			return "no-port"
		}
		return ""
	}))
}
