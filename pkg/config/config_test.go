package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte("agent:\n  product: ETH-USD\n"))
	require.NoError(t, err)

	assert.Equal(t, "ETH-USD", c.Agent.Product)
	assert.Equal(t, 0.012, c.Agent.SellQty)
	assert.Equal(t, 3.0, c.Agent.BuyCash)
	assert.Equal(t, 90, c.Engine.WindowSize)
	assert.Equal(t, 500, c.Engine.MaxIterations)
	assert.Equal(t, "all", c.Engine.TypeFilter)
	assert.Equal(t, 24*time.Hour, c.History.Lookback)
	assert.Equal(t, "/metrics", c.Metrics.Path)
	assert.Equal(t, 15*time.Second, c.Coinbase.PingInterval)
	require.NoError(t, c.Validate())
}

func TestValidateRejects(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"window":       func(c *Config) { c.Engine.WindowSize = 1 },
		"clusters":     func(c *Config) { c.Engine.Clusters = -1 },
		"policy":       func(c *Config) { c.Agent.Policy = "momentum" },
		"source":       func(c *Config) { c.Agent.Source = "file" },
		"history":      func(c *Config) { c.History.Source = "csv" },
		"cache":        func(c *Config) { c.Cache.Driver = "memcached" },
		"sizing":       func(c *Config) { c.Agent.SellQty = 0 },
		"kafka source": func(c *Config) { c.Agent.Source = "kafka" },
		"capacity": func(c *Config) {
			c.Agent.Policy = "latent_source"
			c.Agent.Capacity = 10
		},
	} {
		t.Run(name, func(t *testing.T) {
			c, err := Parse(nil)
			require.NoError(t, err)
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)
	env := map[string]string{
		"PORT":             "9090",
		"PRODUCT":          "SOL-USD",
		"AGENT_THRESHOLD":  "1.5",
		"HISTORY_LOOKBACK": "6h",
		"KAFKA_BROKERS":    "a:9092, b:9092",
	}
	c.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, "SOL-USD", c.Agent.Product)
	assert.Equal(t, 1.5, c.Agent.Threshold)
	assert.Equal(t, 6*time.Hour, c.History.Lookback)
	assert.Equal(t, []string{"a:9092", "b:9092"}, c.Kafka.Brokers)
}

func TestLoadExampleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: test\nengine:\n  clusters: 5\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test", c.Environment)
	assert.Equal(t, 5, c.Engine.Clusters)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
