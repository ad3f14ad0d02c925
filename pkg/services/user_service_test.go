package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/draftforge/pkg/config"
)

func TestGetTier(t *testing.T) {
	env := newServiceEnv(t)
	env.seedUser(t, "user-1")

	tier, found, err := env.users.GetTier(t.Context(), "user-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, config.TierPro, tier)

	tier, found, err = env.users.GetTier(t.Context(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, config.TierFree, tier)
}

func TestSetTier(t *testing.T) {
	env := newServiceEnv(t)
	env.seedUser(t, "user-1")

	require.NoError(t, env.users.SetTier(t.Context(), "user-1", config.TierEnterprise))

	tier, _, err := env.users.GetTier(t.Context(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, config.TierEnterprise, tier)
}

func TestSetTierErrors(t *testing.T) {
	env := newServiceEnv(t)
	env.seedUser(t, "user-1")

	err := env.users.SetTier(t.Context(), "user-1", config.Tier("platinum"))
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	err = env.users.SetTier(t.Context(), "missing", config.TierBasic)
	assert.ErrorIs(t, err, ErrNotFound)
}
