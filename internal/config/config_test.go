package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/lumen")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "http://localhost:3333", cfg.EngineURL)
	assert.Equal(t, "chromium", cfg.ChromePath)
	assert.Equal(t, 60*time.Second, cfg.AuditTimeout)
	assert.Equal(t, 2, cfg.AuditWorkers)
	assert.Equal(t, 2, cfg.AuditSlots)
	assert.Equal(t, 3, cfg.JobMaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 300*time.Second, cfg.PollMaxWait)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/lumen")
	t.Setenv("AUDIT_TIMEOUT", "90s")
	t.Setenv("AUDIT_SLOTS", "4")
	t.Setenv("JOB_MAX_ATTEMPTS", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.AuditTimeout)
	assert.Equal(t, 4, cfg.AuditSlots)
	assert.Equal(t, 5, cfg.JobMaxAttempts)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsZeroSlots(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/lumen")
	t.Setenv("AUDIT_SLOTS", "0")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/lumen")
	t.Setenv("AUDIT_WORKERS", "many")
	t.Setenv("JOB_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.AuditWorkers)
	assert.Equal(t, 5*time.Minute, cfg.JobTimeout)
}
