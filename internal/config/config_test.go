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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Environment)
	assert.Equal(t, "ffmpeg", cfg.Vision.FrameSource)
	assert.Equal(t, 0.85, cfg.Vision.LivenessThreshold)
	assert.Equal(t, 0.75, cfg.Vision.SimilarityThreshold)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, 60, cfg.Limits.RatePerMinute)
	assert.Equal(t, 10, cfg.Limits.MaxConcurrentRequests)
	assert.Equal(t, 30*time.Second, cfg.Limits.ProcessingTimeout)
	assert.Equal(t, 2*time.Second, cfg.Limits.FrameTimeout)
	assert.Equal(t, time.Second, cfg.Limits.MergeTimeout)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
vision:
  liveness_threshold: 0.9
storage:
  backend: memory
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 0.9, cfg.Vision.LivenessThreshold)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	// Unset values still fall back to defaults.
	assert.Equal(t, 0.75, cfg.Vision.SimilarityThreshold)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("SIMILARITY_THRESHOLD", "0.8")
	t.Setenv("PROCESSING_TIMEOUT", "45")
	t.Setenv("STORAGE_BACKEND", "memory")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 0.8, cfg.Vision.SimilarityThreshold)
	assert.Equal(t, 45*time.Second, cfg.Limits.ProcessingTimeout)
	assert.Equal(t, "memory", cfg.Storage.Backend)
}

func TestLoad_ProductionRequiresEncryptionSecret(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("STORAGE_BACKEND", "file")

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_ProductionRejectsSyntheticFrames(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("FRAME_SOURCE", "synthetic")

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, Name: "veriface", User: "app", Password: "pw"}
	assert.Equal(t, "postgres://app:pw@db:5433/veriface?sslmode=disable", d.DSN())
}
