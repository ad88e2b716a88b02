package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, 24*time.Hour, cfg.Redis.Retention)
	assert.Equal(t, 100, cfg.Detector.Trees)
	assert.Equal(t, 0.1, cfg.Detector.Contamination)
	assert.Equal(t, uint64(42), cfg.Detector.Seed)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 5*time.Second, cfg.Stream.Interval)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("HEALTHAI_SERVER_PORT", "9090")
	t.Setenv("HEALTHAI_REDIS_ADDR", "redis:6379")
	t.Setenv("HEALTHAI_REDIS_RETENTION", "2h")
	t.Setenv("HEALTHAI_DETECTOR_TREES", "50")
	t.Setenv("HEALTHAI_LOG_LEVEL", "debug")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 2*time.Hour, cfg.Redis.Retention)
	assert.Equal(t, 50, cfg.Detector.Trees)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte("server:\n  port: \"7000\"\ndetector:\n  contamination: 0.05\nstream:\n  interval: 1s\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "healthai.yaml"), content, 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, 0.05, cfg.Detector.Contamination)
	assert.Equal(t, time.Second, cfg.Stream.Interval)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("HEALTHAI_DETECTOR_CONTAMINATION", "0.9")

	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contamination")
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	t.Setenv("HEALTHAI_LOG_LEVEL", "verbose")

	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
}

func TestLoad_InvalidLogFormat(t *testing.T) {
	t.Setenv("HEALTHAI_LOG_FORMAT", "xml")

	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.format")
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "healthai.yaml"), []byte("server: [unclosed"), 0o600))

	_, err := Load(dir)
	require.Error(t, err)
}
