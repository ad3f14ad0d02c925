package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/draftforge")
	t.Setenv("SECRET_KEY", "0123456789abcdef0123456789abcdef")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	// Unset MODEL_ENDPOINT selects the stub pipeline, so it must stay empty.
	assert.Empty(t, cfg.ModelEndpoint)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 8, cfg.MaxGlobalWorkers)
	assert.Equal(t, 2, cfg.PoolSize)
	assert.Equal(t, 3, cfg.PoolOverflow)
	require.NotNil(t, cfg.Tiers)
}

func TestLoadModelEndpointOverride(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MODEL_ENDPOINT", "http://pipeline:9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://pipeline:9090", cfg.ModelEndpoint)
}

func TestLoadRequiredFields(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SECRET_KEY", "0123456789abcdef0123456789abcdef")
	_, err := Load()
	assert.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("DATABASE_URL", "postgres://localhost:5432/draftforge")
	t.Setenv("SECRET_KEY", "short")
	_, err = Load()
	assert.ErrorContains(t, err, "SECRET_KEY")
}
