package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/drillgate/internal/domain/gate"
)

func TestLoadGateConfig_Defaults(t *testing.T) {
	cfg, err := LoadGateConfig("")
	require.NoError(t, err)
	assert.Equal(t, gate.DefaultConfig(), cfg)
}

func TestLoadGateConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("emailGateThreshold: 3\nbrokerGateThreshold: 12\nbrokerGateBlocking: false\n"), 0o600))
	t.Setenv("GATE_BROKER_THRESHOLD", "20")

	cfg, err := LoadGateConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.EmailGateThreshold)
	assert.Equal(t, 20, cfg.BrokerGateThreshold, "environment wins over file")
	assert.True(t, cfg.EmailGateBlocking, "unset keys keep defaults")
	assert.False(t, cfg.BrokerGateBlocking)
}

func TestLoadGateConfig_Errors(t *testing.T) {
	_, err := LoadGateConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("emailGateThreshold: [nope"), 0o600))
	_, err = LoadGateConfig(bad)
	assert.Error(t, err)

	t.Setenv("GATE_EMAIL_THRESHOLD", "-4")
	_, err = LoadGateConfig("")
	assert.ErrorContains(t, err, "email gate threshold")
}

func TestLoad_Overrides(t *testing.T) {
	// Registered first so it runs after the environment is restored.
	t.Cleanup(Load)
	t.Setenv("STORE_DRIVER", "Redis")
	t.Setenv("GATE_STATE_TTL", "72h")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.test, https://b.test")
	t.Setenv("REDIS_DB", "not-a-number")

	Load()
	assert.Equal(t, StoreRedis, StoreDriver)
	assert.Equal(t, 72*time.Hour, GateStateTTL)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, CORSAllowedOrigins)
	assert.Equal(t, 0, RedisDB, "unparseable values fall back to defaults")
}
