package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("PODFLOW_PORT", "")
	t.Setenv("PODFLOW_GCS_BUCKET", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, "local", cfg.Storage.BlobBackend)
	assert.Equal(t, "64k", cfg.Audio.Bitrate)
	assert.Equal(t, "whisper-1", cfg.Transcription.Model)
	assert.Equal(t, int64(25*1024*1024), cfg.MaxTranscriptionBytes())
	assert.Equal(t, 7*24*time.Hour, cfg.SignedURLTTL())
	assert.Equal(t, 30*time.Minute, cfg.StageTimeout())
	assert.Equal(t, "@every 30m", cfg.Cleanup.Schedule)
	assert.Empty(t, cfg.Transcription.DefaultAPIKey)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", " sk-default ")
	t.Setenv("PODFLOW_PORT", "8080")
	t.Setenv("PODFLOW_GCS_BUCKET", "podflow-audio")

	path := writeConfig(t, `
server:
  port: 9000
workers:
  count: 4
storage:
  blob_backend: gcs
gcs:
  bucket: from-file
  credentials_file: sa.json
audio:
  bitrate: 96k
jobs:
  signed_url_ttl_hours: 24
  stage_timeout_minutes: -1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "podflow-audio", cfg.GCS.Bucket)
	assert.Equal(t, "sk-default", cfg.Transcription.DefaultAPIKey)
	assert.Equal(t, 4, cfg.Workers.Count)
	assert.Equal(t, "96k", cfg.Audio.Bitrate)
	assert.Equal(t, 24*time.Hour, cfg.SignedURLTTL())
	assert.Zero(t, cfg.StageTimeout())
}

func TestLoad_RejectsInvalidCombinations(t *testing.T) {
	t.Setenv("PODFLOW_PORT", "")
	t.Setenv("PODFLOW_GCS_BUCKET", "")

	_, err := Load(writeConfig(t, "storage:\n  blob_backend: gcs\n"))
	assert.ErrorContains(t, err, "gcs.bucket")

	_, err = Load(writeConfig(t, "storage:\n  blob_backend: s3\n"))
	assert.ErrorContains(t, err, "unknown storage.blob_backend")

	_, err = Load(writeConfig(t, "jobs:\n  signed_url_ttl_hours: 200\n"))
	assert.ErrorContains(t, err, "exceeds 168")
}

func TestLoad_BadPortOverride(t *testing.T) {
	t.Setenv("PODFLOW_PORT", "not-a-number")

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "PODFLOW_PORT")
}
