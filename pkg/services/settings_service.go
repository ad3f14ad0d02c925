package services

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/forgeworks/draftforge/ent"
	"github.com/forgeworks/draftforge/ent/setting"
	"github.com/forgeworks/draftforge/pkg/database"
)

// moderationVersionKey is the single well-known settings row.
const moderationVersionKey = "moderation_version"

// SettingsService manages the service-level settings table. The moderation
// version is cached in memory because it participates in every cache
// fingerprint; the cached value is refreshed on load and on bump.
type SettingsService struct {
	conn database.Connector

	// moderationVersion is 0 until first load.
	moderationVersion atomic.Int64
}

// NewSettingsService creates a SettingsService.
func NewSettingsService(conn database.Connector) *SettingsService {
	return &SettingsService{conn: conn}
}

// ModerationVersion returns the current moderation version, loading it from
// the store on first use.
func (s *SettingsService) ModerationVersion(ctx context.Context) (int, error) {
	if v := s.moderationVersion.Load(); v > 0 {
		return int(v), nil
	}

	client, release, err := s.conn.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquiring connection: %w", err)
	}
	defer release()

	v, err := s.load(ctx, client)
	if err != nil {
		return 0, err
	}
	s.moderationVersion.Store(int64(v))
	return v, nil
}

// BumpModerationVersion increments the persisted moderation version and
// refreshes the in-memory copy. All previously cached bundles become
// unreachable because the version participates in fingerprints.
func (s *SettingsService) BumpModerationVersion(ctx context.Context) (int, error) {
	client, release, err := s.conn.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquiring connection: %w", err)
	}
	defer release()

	// Optimistic conditional update; retried on a concurrent bump.
	for attempt := 0; attempt < 3; attempt++ {
		current, err := s.load(ctx, client)
		if err != nil {
			return 0, err
		}
		next := current + 1

		n, err := client.Setting.Update().
			Where(
				setting.IDEQ(moderationVersionKey),
				setting.ValueEQ(strconv.Itoa(current)),
			).
			SetValue(strconv.Itoa(next)).
			Save(ctx)
		if err != nil {
			return 0, fmt.Errorf("bumping moderation version: %w", err)
		}
		if n == 1 {
			s.moderationVersion.Store(int64(next))
			return next, nil
		}
	}
	return 0, ErrConcurrentModification
}

// load reads the persisted version, seeding the row if absent.
func (s *SettingsService) load(ctx context.Context, client *ent.Client) (int, error) {
	row, err := client.Setting.Get(ctx, moderationVersionKey)
	if err != nil {
		if ent.IsNotFound(err) {
			_, createErr := client.Setting.Create().
				SetID(moderationVersionKey).
				SetValue("1").
				Save(ctx)
			if createErr != nil && !ent.IsConstraintError(createErr) {
				return 0, fmt.Errorf("seeding moderation version: %w", createErr)
			}
			return 1, nil
		}
		return 0, fmt.Errorf("reading moderation version: %w", err)
	}

	v, err := strconv.Atoi(row.Value)
	if err != nil {
		return 0, fmt.Errorf("malformed moderation version %q: %w", row.Value, err)
	}
	return v, nil
}
