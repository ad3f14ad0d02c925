package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/draftforge/pkg/auth"
	"github.com/forgeworks/draftforge/pkg/cache"
	"github.com/forgeworks/draftforge/pkg/config"
	"github.com/forgeworks/draftforge/pkg/events"
	"github.com/forgeworks/draftforge/pkg/pipeline"
	"github.com/forgeworks/draftforge/pkg/scheduler"
	"github.com/forgeworks/draftforge/pkg/services"
	"github.com/forgeworks/draftforge/pkg/tier"
	"github.com/forgeworks/draftforge/test/util"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// apiEnv is a fully wired server over a per-test database and the stub
// pipeline, served from an httptest listener.
type apiEnv struct {
	srv    *httptest.Server
	issuer *auth.Issuer
	users  *services.UserService
	cache  *cache.Cache
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	conn := util.NewTestConnector(t)

	jobs := services.NewJobService(conn)
	artifacts := services.NewArtifactService(conn)
	users := services.NewUserService(conn)
	settings := services.NewSettingsService(conn)

	reg, err := config.LoadTierRegistry("")
	require.NoError(t, err)
	policy := tier.NewPolicy(reg, users)

	c, err := cache.New(64)
	require.NoError(t, err)
	bus := events.NewBus()

	adapter := pipeline.NewAdapter(&pipeline.StubRunner{}, artifacts, bus, c, 5*time.Second)
	sched := scheduler.New(scheduler.Config{
		MaxGlobalWorkers: 4,
		JobTimeout:       30 * time.Second,
		StageTimeout:     5 * time.Second,
	}, policy, c, bus, jobs, settings, adapter)
	t.Cleanup(sched.Stop)

	cfg := &config.Config{
		Port:              "0",
		SecretKey:         testSecret,
		KeepAliveInterval: 5 * time.Second,
		Tiers:             reg,
	}
	server := NewServer(cfg, auth.NewResolver(testSecret), sched, bus, c, policy, conn,
		jobs, artifacts, users, settings)

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	return &apiEnv{
		srv:    srv,
		issuer: auth.NewIssuer(testSecret, time.Hour),
		users:  users,
		cache:  c,
	}
}

func (e *apiEnv) token(t *testing.T, userID string, tr config.Tier, admin bool) string {
	t.Helper()
	_, err := e.users.CreateUser(t.Context(), userID, userID+"@example.com", tr, true, admin)
	require.NoError(t, err)
	token, err := e.issuer.Issue(&auth.Principal{UserID: userID, Tier: tr, EmailVerified: true, IsAdmin: admin})
	require.NoError(t, err)
	return token
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, e.srv.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// readSSE parses every data frame from an SSE response body.
func readSSE(t *testing.T, body io.Reader) []events.Event {
	t.Helper()
	var out []events.Event
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev events.Event
		require.NoError(t, json.Unmarshal([]byte(line[len("data: "):]), &ev))
		out = append(out, ev)
	}
	return out
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestAuthRequired(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.do(t, http.MethodGet, "/api/jobs", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/jobs", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthViaCookie(t *testing.T) {
	env := newAPIEnv(t)
	token := env.token(t, "cookie-user", config.TierFree, false)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, env.srv.URL+"/api/jobs", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "draftforge_token", Value: token})

	resp, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSecurityHeaders(t *testing.T) {
	env := newAPIEnv(t)
	resp := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestGenerateStreamsToCompletion(t *testing.T) {
	env := newAPIEnv(t)
	token := env.token(t, "user-1", config.TierPro, false)

	resp := env.do(t, http.MethodPost, "/api/generate", token, GenerateRequest{
		Topic:        "AI in Healthcare",
		ContentTypes: []string{"blog", "social"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	evs := readSSE(t, resp.Body)
	require.NotEmpty(t, evs)
	assert.Equal(t, events.KindJobStarted, evs[0].Kind)
	assert.Equal(t, 1, evs[0].ID)
	last := evs[len(evs)-1]
	assert.Equal(t, events.KindComplete, last.Kind)

	// Sequenced events arrive strictly ordered; synthetic frames carry id 0.
	prev := 0
	kinds := map[events.Kind]bool{}
	for _, ev := range evs {
		kinds[ev.Kind] = true
		if ev.ID > 0 {
			assert.Greater(t, ev.ID, prev)
			prev = ev.ID
		}
	}
	assert.True(t, kinds[events.KindArtifactReady])
	assert.True(t, kinds[events.KindContentChunk])
	assert.True(t, kinds[events.KindStageProgress])
}

func TestGenerateValidation(t *testing.T) {
	env := newAPIEnv(t)
	token := env.token(t, "user-1", config.TierFree, false)

	resp := env.do(t, http.MethodPost, "/api/generate", token, GenerateRequest{
		Topic:        "topic",
		ContentTypes: []string{"hologram"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/generate", token, GenerateRequest{Topic: "   "})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// Free tier asking for video: a policy denial, not a validation error.
	resp = env.do(t, http.MethodPost, "/api/generate", token, GenerateRequest{
		Topic:        "topic",
		ContentTypes: []string{"video"},
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	body := decodeJSON[errorBody](t, resp)
	assert.Equal(t, "TypeNotAllowedForTier", body.ErrorType)
}

func TestJobLifecycleEndpoints(t *testing.T) {
	env := newAPIEnv(t)
	token := env.token(t, "user-1", config.TierPro, false)

	resp := env.do(t, http.MethodPost, "/api/generate", token, GenerateRequest{Topic: "AI in Healthcare"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	evs := readSSE(t, resp.Body)
	require.NotEmpty(t, evs)
	started := evs[0].Payload.(map[string]any)
	jobID := started["job_id"].(string)

	// List.
	resp = env.do(t, http.MethodGet, "/api/jobs", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeJSON[JobListResponse](t, resp)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, jobID, list.Jobs[0].JobID)
	assert.Equal(t, "completed", list.Jobs[0].Status)

	// Detail with artifacts.
	resp = env.do(t, http.MethodGet, "/api/jobs/"+jobID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	detail := decodeJSON[JobDetailResponse](t, resp)
	require.Len(t, detail.Artifacts, 1)
	assert.Equal(t, "blog", detail.Artifacts[0].Type)
	assert.NotEmpty(t, detail.Artifacts[0].Content)
	assert.NotNil(t, detail.Artifacts[0].QualityMetrics)

	// Cancel after terminal: conflict.
	resp = env.do(t, http.MethodPost, "/api/jobs/"+jobID+"/cancel", token, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Re-attach stream with a cursor: only events after it are replayed.
	resp = env.do(t, http.MethodGet, "/api/jobs/"+jobID+"/stream?since_event_id=1", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	replay := readSSE(t, resp.Body)
	require.NotEmpty(t, replay)
	assert.Greater(t, replay[0].ID, 1)
	assert.Equal(t, events.KindComplete, replay[len(replay)-1].Kind)
}

func TestJobOwnership(t *testing.T) {
	env := newAPIEnv(t)
	owner := env.token(t, "user-1", config.TierPro, false)
	stranger := env.token(t, "user-2", config.TierPro, false)

	resp := env.do(t, http.MethodPost, "/api/generate", owner, GenerateRequest{Topic: "private topic"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	evs := readSSE(t, resp.Body)
	jobID := evs[0].Payload.(map[string]any)["job_id"].(string)

	resp = env.do(t, http.MethodGet, "/api/jobs/"+jobID, stranger, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// The stranger's listing does not leak the job either.
	resp = env.do(t, http.MethodGet, "/api/jobs", stranger, nil)
	list := decodeJSON[JobListResponse](t, resp)
	assert.Zero(t, list.Total)
}

func TestGetJobNotFound(t *testing.T) {
	env := newAPIEnv(t)
	token := env.token(t, "user-1", config.TierFree, false)

	resp := env.do(t, http.MethodGet, "/api/jobs/no-such-job", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/jobs/no-such-job/stream", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListJobsRejectsBadStatus(t *testing.T) {
	env := newAPIEnv(t)
	token := env.token(t, "user-1", config.TierFree, false)

	resp := env.do(t, http.MethodGet, "/api/jobs?status=daydreaming", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decodeJSON[HealthResponse](t, resp)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "pooled", health.Database.Mode)
	assert.Equal(t, 4, health.Scheduler.FreeSlots)
}

func TestMetaEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.do(t, http.MethodGet, "/meta", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	meta := decodeJSON[MetaResponse](t, resp)
	assert.Equal(t, "draftforge", meta.Service)
	assert.Equal(t, 1, meta.ModerationVersion)
}

func TestAdminPlane(t *testing.T) {
	env := newAPIEnv(t)
	user := env.token(t, "user-1", config.TierPro, false)
	admin := env.token(t, "admin-1", config.TierEnterprise, true)

	// Non-admins are rejected.
	resp := env.do(t, http.MethodPost, "/api/admin/moderation/bump-version", user, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Bump moves the moderation version.
	resp = env.do(t, http.MethodPost, "/api/admin/moderation/bump-version", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	bump := decodeJSON[BumpModerationResponse](t, resp)
	assert.Equal(t, 2, bump.ModerationVersion)

	// Tier mutation.
	resp = env.do(t, http.MethodPost, "/api/admin/users/user-1/tier", admin, SetTierRequest{Tier: "enterprise"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	setResp := decodeJSON[SetTierResponse](t, resp)
	assert.Equal(t, "enterprise", setResp.Tier)

	resp = env.do(t, http.MethodPost, "/api/admin/users/missing/tier", admin, SetTierRequest{Tier: "basic"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/admin/users/user-1/tier", admin, SetTierRequest{Tier: "platinum"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminCacheInvalidate(t *testing.T) {
	env := newAPIEnv(t)
	user := env.token(t, "user-1", config.TierPro, false)
	admin := env.token(t, "admin-1", config.TierEnterprise, true)

	// Populate the cache through a real generation.
	resp := env.do(t, http.MethodPost, "/api/generate", user, GenerateRequest{Topic: "AI in Healthcare"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	readSSE(t, resp.Body)
	require.Eventually(t, func() bool { return env.cache.Stats().Entries == 1 },
		5*time.Second, 10*time.Millisecond)

	// Missing scope.
	resp = env.do(t, http.MethodPost, "/api/admin/cache/invalidate", admin, InvalidateCacheRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Per-user scope resolves fingerprints through the user's artifacts.
	resp = env.do(t, http.MethodPost, "/api/admin/cache/invalidate", admin, InvalidateCacheRequest{UserID: "user-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	inv := decodeJSON[InvalidateCacheResponse](t, resp)
	assert.Equal(t, "user", inv.Scope)
	assert.Equal(t, 1, inv.Removed)
	assert.Zero(t, env.cache.Stats().Entries)

	// All scope on an empty cache removes nothing.
	resp = env.do(t, http.MethodPost, "/api/admin/cache/invalidate", admin, InvalidateCacheRequest{All: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	inv = decodeJSON[InvalidateCacheResponse](t, resp)
	assert.Equal(t, "all", inv.Scope)
	assert.Zero(t, inv.Removed)
}

func TestCancelViaAPI(t *testing.T) {
	env := newAPIEnv(t)
	token := env.token(t, "user-1", config.TierPro, false)

	resp := env.do(t, http.MethodPost, "/api/generate", token, GenerateRequest{Topic: "cancel me"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Grab the job id from the first frame, then cancel while streaming.
	reader := bufio.NewReader(resp.Body)
	var jobID string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			var ev events.Event
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &ev))
			if ev.Kind == events.KindJobStarted {
				jobID = ev.Payload.(map[string]any)["job_id"].(string)
				break
			}
		}
	}
	require.NotEmpty(t, jobID)

	cancelResp := env.do(t, http.MethodPost, fmt.Sprintf("/api/jobs/%s/cancel", jobID), token, nil)
	// With the zero-delay stub the job may already be terminal.
	assert.Contains(t, []int{http.StatusNoContent, http.StatusConflict}, cancelResp.StatusCode)
}
