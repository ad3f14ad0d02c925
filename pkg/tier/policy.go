// Package tier implements admission policy: the single authoritative decision
// about which content types, which model, and which stage parallelism a
// request gets. The fingerprint (C3), stage plan (C5), and model selection
// (C6) all flow from one Admission so they can never disagree.
package tier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/forgeworks/draftforge/pkg/auth"
	"github.com/forgeworks/draftforge/pkg/config"
	"github.com/forgeworks/draftforge/pkg/models"
)

// userCacheTTL bounds how long a resolved tier is served without consulting
// the store. Tier mutations invalidate explicitly; the TTL is the backstop.
const userCacheTTL = 5 * time.Minute

// DenialKind is the client-facing error_type of an admission denial.
type DenialKind string

// Denial kinds.
const (
	DenialTypeNotAllowed DenialKind = "TypeNotAllowedForTier"
	DenialEmptyTopic     DenialKind = "EmptyTopic"
	DenialEmptyTypes     DenialKind = "EmptyTypes"
)

// DenialError is a typed admission denial. Fatal per-request; no job is
// created.
type DenialError struct {
	Kind    DenialKind
	Message string
}

func (e *DenialError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Admission is the effective entitlement set for one admitted request.
type Admission struct {
	Tier              config.Tier
	EffectiveTypes    []models.ContentType
	Model             string
	MaxParallelStages int
	CacheTTL          time.Duration
}

// TierSource resolves a user's persisted tier. Implemented by
// services.UserService.
type TierSource interface {
	GetTier(ctx context.Context, userID string) (config.Tier, bool, error)
}

// cachedTier is one user-cache entry.
type cachedTier struct {
	tier       config.Tier
	resolvedAt time.Time
}

// Policy answers tier questions for principals. Resolution results are cached
// per user with a short TTL; concurrent misses for the same user are
// collapsed with singleflight.
type Policy struct {
	registry *config.TierRegistry
	source   TierSource

	mu    sync.RWMutex
	cache map[string]cachedTier
	group singleflight.Group
}

// NewPolicy creates a Policy over the tier registry and user store.
func NewPolicy(registry *config.TierRegistry, source TierSource) *Policy {
	return &Policy{
		registry: registry,
		source:   source,
		cache:    make(map[string]cachedTier),
	}
}

// Resolve returns the authoritative tier for a user. Precedence: fresh cache
// entry > store row > the verified token claim > free. The token claim is
// trusted as a fallback because it is signed; the store wins when present so
// tier changes take effect without re-issuing tokens.
func (p *Policy) Resolve(ctx context.Context, principal *auth.Principal) (config.Tier, *config.TierDefinition, error) {
	userID := principal.UserID

	p.mu.RLock()
	entry, ok := p.cache[userID]
	p.mu.RUnlock()
	if ok && time.Since(entry.resolvedAt) < userCacheTTL {
		return entry.tier, p.registry.Get(entry.tier), nil
	}

	v, err, _ := p.group.Do(userID, func() (any, error) {
		tier, found, err := p.source.GetTier(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !found {
			tier = principal.Tier
			if !tier.Valid() {
				tier = config.TierFree
			}
		}
		p.mu.Lock()
		p.cache[userID] = cachedTier{tier: tier, resolvedAt: time.Now()}
		p.mu.Unlock()
		return tier, nil
	})
	if err != nil {
		return config.TierFree, nil, fmt.Errorf("resolving tier for user %s: %w", userID, err)
	}

	tier := v.(config.Tier)
	return tier, p.registry.Get(tier), nil
}

// AdmitRequest is the request-shaped input to Admit. RequestedTypes empty
// means the caller omitted content_types; the effective set defaults to the
// intersection of {blog} and the tier's allowance.
type AdmitRequest struct {
	Topic          string
	RequestedTypes []models.ContentType
}

// Admit decides whether a request may proceed and with what entitlements.
// Returns a *DenialError for policy denials; other errors are infrastructure
// failures.
func (p *Policy) Admit(ctx context.Context, principal *auth.Principal, req AdmitRequest) (*Admission, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return nil, &DenialError{Kind: DenialEmptyTopic, Message: "topic must not be empty"}
	}

	tier, def, err := p.Resolve(ctx, principal)
	if err != nil {
		return nil, err
	}

	requested := req.RequestedTypes
	if len(requested) == 0 {
		// Default request: blog, intersected with the tier's allowance.
		if def.Allows(models.ContentTypeBlog) {
			requested = []models.ContentType{models.ContentTypeBlog}
		}
	} else {
		// Explicitly requested types outside the tier are a denial, not a
		// silent intersection: the client asked for something it cannot have.
		for _, t := range requested {
			if !def.Allows(t) {
				return nil, &DenialError{
					Kind:    DenialTypeNotAllowed,
					Message: fmt.Sprintf("content type %q is not available on the %s tier", t, tier),
				}
			}
		}
	}
	if len(requested) == 0 {
		return nil, &DenialError{Kind: DenialEmptyTypes, Message: "no content types requested"}
	}

	return &Admission{
		Tier:              tier,
		EffectiveTypes:    requested,
		Model:             def.Model,
		MaxParallelStages: def.MaxParallelStages,
		CacheTTL:          def.CacheTTL,
	}, nil
}

// Invalidate drops cached resolutions for the given users. Used by the admin
// tier-mutation endpoint.
func (p *Policy) Invalidate(userIDs ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range userIDs {
		delete(p.cache, id)
	}
	slog.Debug("Tier cache invalidated", "users", len(userIDs))
}

// InvalidateAll drops the entire user cache.
func (p *Policy) InvalidateAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = make(map[string]cachedTier)
}
