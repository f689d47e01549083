package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewLoader().WithEnv(nil).Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9877", cfg.Bridge.Addr)
	assert.Equal(t, TransportTCP, cfg.Host.Transport)
	assert.Equal(t, "localhost:9876", cfg.Host.Addr)
	assert.Equal(t, "https://api.csm.ai", cfg.CSM.BaseURL)
	assert.Equal(t, "free", cfg.CSM.DefaultTier)
	assert.True(t, cfg.CSM.UsePrivateAssets)
	assert.Equal(t, "http://127.0.0.1:9877", cfg.LeaderURL())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).
		WithEnv(nil).
		Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	content := `
bridge:
  addr: 127.0.0.1:19877
  command_timeout: 90s
host:
  transport: websocket
csm:
  api_key: from-file
  default_tier: pro
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := NewLoader().
		WithConfigPath(path).
		WithEnv(map[string]string{
			"BLENDERMCP_CSM_API_KEY":        "from-env",
			"BLENDERMCP_CSM_RATE_LIMIT":     "0.5",
			"BLENDERMCP_CSM_ALWAYS_ENABLED": "true",
			"BLENDERMCP_HOST_DIAL_TIMEOUT":  "250ms",
		}).
		Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:19877", cfg.Bridge.Addr)
	assert.Equal(t, 90*time.Second, cfg.Bridge.CommandTimeout)
	assert.Equal(t, TransportWebSocket, cfg.Host.Transport)
	assert.Equal(t, 250*time.Millisecond, cfg.Host.DialTimeout)
	assert.Equal(t, "from-env", cfg.CSM.APIKey)
	assert.Equal(t, 0.5, cfg.CSM.RateLimit)
	assert.True(t, cfg.CSM.AlwaysEnabled)
	assert.Equal(t, "pro", cfg.CSM.DefaultTier)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 3*time.Second, cfg.Bridge.ElectionInterval)
}

func TestLoad_BadEnvValue(t *testing.T) {
	_, err := NewLoader().
		WithEnv(map[string]string{"BLENDERMCP_BRIDGE_QUEUE_SIZE": "many"}).
		Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BLENDERMCP_BRIDGE_QUEUE_SIZE")
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bridge: [unclosed"), 0o600))

	_, err := NewLoader().WithConfigPath(path).WithEnv(nil).Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"transport", func(c *Config) { c.Host.Transport = "udp" }, "host.transport"},
		{"tcp addr", func(c *Config) { c.Host.Addr = "" }, "host.addr"},
		{"tier", func(c *Config) { c.CSM.DefaultTier = "gold" }, "csm.default_tier"},
		{"level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"rate", func(c *Config) { c.CSM.RateLimit = 0 }, "csm.rate_limit"},
		{"timeout", func(c *Config) { c.Bridge.CommandTimeout = -time.Second }, "bridge.command_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	assert.NoError(t, DefaultConfig().Validate())

	ws := DefaultConfig()
	ws.Host.Transport = TransportWebSocket
	ws.Host.Addr = ""
	assert.NoError(t, ws.Validate())
}
