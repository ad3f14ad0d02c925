package tier

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/draftforge/pkg/auth"
	"github.com/forgeworks/draftforge/pkg/config"
	"github.com/forgeworks/draftforge/pkg/models"
)

// fakeTierSource is an in-memory TierSource with a call counter.
type fakeTierSource struct {
	tiers map[string]config.Tier
	err   error
	calls atomic.Int32
}

func (f *fakeTierSource) GetTier(_ context.Context, userID string) (config.Tier, bool, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", false, f.err
	}
	t, ok := f.tiers[userID]
	return t, ok, nil
}

func newTestPolicy(t *testing.T, source TierSource) *Policy {
	t.Helper()
	reg, err := config.LoadTierRegistry("")
	require.NoError(t, err)
	return NewPolicy(reg, source)
}

func proPrincipal() *auth.Principal {
	return &auth.Principal{UserID: "user-1", Tier: config.TierPro}
}

func TestResolveStoreWinsOverClaim(t *testing.T) {
	source := &fakeTierSource{tiers: map[string]config.Tier{"user-1": config.TierBasic}}
	p := newTestPolicy(t, source)

	tier, def, err := p.Resolve(t.Context(), proPrincipal())
	require.NoError(t, err)
	assert.Equal(t, config.TierBasic, tier)
	assert.Equal(t, "forge-standard-1", def.Model)
}

func TestResolveFallsBackToClaim(t *testing.T) {
	source := &fakeTierSource{tiers: map[string]config.Tier{}}
	p := newTestPolicy(t, source)

	tier, _, err := p.Resolve(t.Context(), proPrincipal())
	require.NoError(t, err)
	assert.Equal(t, config.TierPro, tier)
}

func TestResolveCachesAndInvalidates(t *testing.T) {
	source := &fakeTierSource{tiers: map[string]config.Tier{"user-1": config.TierBasic}}
	p := newTestPolicy(t, source)

	for i := 0; i < 3; i++ {
		_, _, err := p.Resolve(t.Context(), proPrincipal())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), source.calls.Load(), "repeat resolutions served from cache")

	source.tiers["user-1"] = config.TierEnterprise
	p.Invalidate("user-1")

	tier, _, err := p.Resolve(t.Context(), proPrincipal())
	require.NoError(t, err)
	assert.Equal(t, config.TierEnterprise, tier)
	assert.Equal(t, int32(2), source.calls.Load())
}

func TestResolveSourceError(t *testing.T) {
	source := &fakeTierSource{err: errors.New("db down")}
	p := newTestPolicy(t, source)

	_, _, err := p.Resolve(t.Context(), proPrincipal())
	assert.Error(t, err)
}

func TestAdmitEmptyTopic(t *testing.T) {
	p := newTestPolicy(t, &fakeTierSource{})

	_, err := p.Admit(t.Context(), proPrincipal(), AdmitRequest{Topic: "   "})
	var denial *DenialError
	require.ErrorAs(t, err, &denial)
	assert.Equal(t, DenialEmptyTopic, denial.Kind)
}

func TestAdmitTypeOutsideTier(t *testing.T) {
	p := newTestPolicy(t, &fakeTierSource{tiers: map[string]config.Tier{"user-1": config.TierFree}})

	_, err := p.Admit(t.Context(), proPrincipal(), AdmitRequest{
		Topic:          "ai in healthcare",
		RequestedTypes: []models.ContentType{models.ContentTypeBlog, models.ContentTypeVideo},
	})
	var denial *DenialError
	require.ErrorAs(t, err, &denial)
	assert.Equal(t, DenialTypeNotAllowed, denial.Kind)
	assert.Contains(t, denial.Message, "video")
}

func TestAdmitDefaultsToBlog(t *testing.T) {
	p := newTestPolicy(t, &fakeTierSource{tiers: map[string]config.Tier{"user-1": config.TierPro}})

	adm, err := p.Admit(t.Context(), proPrincipal(), AdmitRequest{Topic: "ai in healthcare"})
	require.NoError(t, err)
	assert.Equal(t, []models.ContentType{models.ContentTypeBlog}, adm.EffectiveTypes)
	assert.Equal(t, config.TierPro, adm.Tier)
	assert.Equal(t, "forge-pro-1", adm.Model)
	assert.Equal(t, 4, adm.MaxParallelStages)
}

func TestAdmitGrantsRequestedTypes(t *testing.T) {
	p := newTestPolicy(t, &fakeTierSource{tiers: map[string]config.Tier{"user-1": config.TierEnterprise}})

	adm, err := p.Admit(t.Context(), proPrincipal(), AdmitRequest{
		Topic: "ai in healthcare",
		RequestedTypes: []models.ContentType{
			models.ContentTypeBlog, models.ContentTypeAudio, models.ContentTypeVideo,
		},
	})
	require.NoError(t, err)
	assert.Len(t, adm.EffectiveTypes, 3)
	assert.Equal(t, 8, adm.MaxParallelStages)
}
