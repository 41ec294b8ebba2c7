package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"nettop/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_ExampleFile(t *testing.T) {
	cfg, err := LoadConfig("../../configs/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "eth0", cfg.Capture.Interface)
	assert.Equal(t, 1, cfg.Window.Interval)
	assert.Equal(t, model.SortBytes, cfg.SortMode())
	assert.Equal(t, 2, cfg.Aggregator.NumWorkers)
	require.Len(t, cfg.Exporters, 2)
	assert.Equal(t, "nats", cfg.Exporters[0].Type)
	assert.Equal(t, "top_flows", cfg.Exporters[1].ClickHouse.Table)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_DefaultsFillGaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("window:\n  sort: p\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, model.SortPackets, cfg.SortMode())
	assert.Equal(t, time.Second, cfg.Interval())
	assert.Equal(t, 10, cfg.Window.TopN)

	poll, err := cfg.PollInterval()
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, poll)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("window: [unclosed"), 0o644))
	_, err = LoadConfig(path)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing interface", func(c *Config) { c.Capture.Interface = "" }},
		{"bad sort", func(c *Config) { c.Window.Sort = "x" }},
		{"zero interval", func(c *Config) { c.Window.Interval = 0 }},
		{"negative interval", func(c *Config) { c.Window.Interval = -3 }},
		{"zero top n", func(c *Config) { c.Window.TopN = 0 }},
		{"bad poll interval", func(c *Config) { c.Window.PollInterval = "soon" }},
		{"zero read timeout", func(c *Config) { c.Capture.ReadTimeout = "0s" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Capture.Interface = "eth0"
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrConfig)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("NETTOP_CLICKHOUSE_PASSWORD=s3cret\n"), 0o600))

	t.Setenv("NETTOP_INTERFACE", "wlan0")
	t.Setenv("NETTOP_INTERVAL", "5")
	t.Setenv("NETTOP_CLICKHOUSE_PASSWORD", "")
	os.Unsetenv("NETTOP_CLICKHOUSE_PASSWORD")

	cfg := Default()
	cfg.Exporters = []ExporterDef{{Type: "clickhouse"}}
	require.NoError(t, cfg.ApplyEnv(envFile))

	assert.Equal(t, "wlan0", cfg.Capture.Interface)
	assert.Equal(t, 5*time.Second, cfg.Interval())
	assert.Equal(t, "s3cret", cfg.Exporters[0].ClickHouse.Password)

	t.Setenv("NETTOP_INTERVAL", "often")
	assert.ErrorIs(t, cfg.ApplyEnv(envFile), ErrConfig)
}

func TestApplyEnv_MissingFileIsIgnored(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.ApplyEnv(filepath.Join(t.TempDir(), "none.env")))
}
