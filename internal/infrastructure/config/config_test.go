package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FileAndEnvOverrides(t *testing.T) {
	path := t.TempDir() + "/config.yaml"
	yaml := `
app:
  name: booking-test
  port: 8181
events:
  transport: kafka
  relaybatchsize: 25
engine:
  tenantpolicies:
    oslo:
      enforcecompletiontiming: false
      cascadebatchsize: 10
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("APP_LOCK_DRIVER", "redis")
	t.Setenv("APP_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "booking-test", cfg.App.Name)
	assert.Equal(t, 8181, cfg.App.Port)
	assert.Equal(t, 30*time.Second, cfg.App.Timeout, "unset keys keep defaults")
	assert.Equal(t, "kafka", cfg.Events.Transport)
	assert.Equal(t, 25, cfg.Events.RelayBatchSize)
	assert.Equal(t, "redis", cfg.Lock.Driver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.KafkaBrokers)

	oslo := cfg.Engine.PolicyFor("oslo")
	assert.False(t, oslo.EnforceCompletionTiming)
	assert.Equal(t, 10, oslo.CascadeBatchSize)
	assert.Equal(t, 62, oslo.MaxAvailabilityDays, "unset limits fall back to the default policy")

	assert.Equal(t, cfg.Engine.DefaultPolicy, cfg.Engine.PolicyFor("bergen"))
}

func TestLoadConfig_NoFile(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Storage, cfg.Storage)
}
