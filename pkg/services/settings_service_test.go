package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModerationVersionSeedsAtOne(t *testing.T) {
	env := newServiceEnv(t)

	v, err := env.settings.ModerationVersion(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	// Served from the in-memory copy on subsequent reads.
	v, err = env.settings.ModerationVersion(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestBumpModerationVersion(t *testing.T) {
	env := newServiceEnv(t)

	v, err := env.settings.BumpModerationVersion(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	v, err = env.settings.BumpModerationVersion(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	v, err = env.settings.ModerationVersion(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestBumpVisibleToFreshService(t *testing.T) {
	env := newServiceEnv(t)

	_, err := env.settings.BumpModerationVersion(t.Context())
	require.NoError(t, err)

	// A second service instance over the same store reads the persisted value.
	fresh := NewSettingsService(env.settings.conn)
	v, err := fresh.ModerationVersion(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}
