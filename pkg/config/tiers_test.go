package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/draftforge/pkg/models"
)

func writeTierFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tiers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTierRegistryDefaults(t *testing.T) {
	reg, err := LoadTierRegistry("")
	require.NoError(t, err)
	assert.Equal(t, 4, reg.Len())

	free := reg.Get(TierFree)
	assert.Equal(t, []models.ContentType{models.ContentTypeBlog}, free.AllowedTypes)
	assert.Equal(t, 1, free.MaxParallelStages)
	assert.Equal(t, 24*time.Hour, free.CacheTTL)

	ent := reg.Get(TierEnterprise)
	assert.True(t, ent.Allows(models.ContentTypeVideo))
	assert.Equal(t, 8, ent.MaxParallelStages)
}

func TestLoadTierRegistryYAMLOverride(t *testing.T) {
	path := writeTierFile(t, `
tiers:
  pro:
    model: forge-pro-2
    max_parallel_stages: 8
`)

	reg, err := LoadTierRegistry(path)
	require.NoError(t, err)

	pro := reg.Get(TierPro)
	assert.Equal(t, "forge-pro-2", pro.Model, "file value wins")
	assert.Equal(t, 8, pro.MaxParallelStages)
	assert.True(t, pro.Allows(models.ContentTypeAudio), "unset fields keep defaults")
	assert.Equal(t, 6*time.Hour, pro.CacheTTL)

	// Untouched tiers are unaffected.
	assert.Equal(t, "forge-lite-1", reg.Get(TierFree).Model)
}

func TestLoadTierRegistryRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown tier", "tiers:\n  platinum:\n    model: x\n"},
		{"bad parallelism", "tiers:\n  free:\n    max_parallel_stages: 3\n"},
		{"unknown content type", "tiers:\n  free:\n    allowed_types: [hologram]\n"},
		{"not yaml", "{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTierFile(t, tt.yaml)
			_, err := LoadTierRegistry(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadTierRegistryMissingFile(t *testing.T) {
	_, err := LoadTierRegistry(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestTierRegistryGetUnknownFallsBackToFree(t *testing.T) {
	reg, err := LoadTierRegistry("")
	require.NoError(t, err)
	assert.Equal(t, reg.Get(TierFree), reg.Get(Tier("mystery")))
}

func TestTierRank(t *testing.T) {
	assert.Greater(t, TierEnterprise.Rank(), TierPro.Rank())
	assert.Greater(t, TierPro.Rank(), TierBasic.Rank())
	assert.Greater(t, TierBasic.Rank(), TierFree.Rank())
	assert.Equal(t, 0, Tier("mystery").Rank())

	assert.True(t, TierFree.Valid())
	assert.False(t, Tier("mystery").Valid())
}
