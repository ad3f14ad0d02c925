package services

import (
	"context"
	"fmt"

	"github.com/forgeworks/draftforge/ent"
	"github.com/forgeworks/draftforge/ent/user"
	"github.com/forgeworks/draftforge/pkg/config"
	"github.com/forgeworks/draftforge/pkg/database"
)

// UserService reads and mutates user rows. Account creation and login live in
// a separate service; this side only needs tier and flags.
type UserService struct {
	conn database.Connector
}

// NewUserService creates a UserService.
func NewUserService(conn database.Connector) *UserService {
	return &UserService{conn: conn}
}

// GetTier returns a user's tier. Unknown users resolve to free with found=false.
func (s *UserService) GetTier(ctx context.Context, userID string) (config.Tier, bool, error) {
	client, release, err := s.conn.Acquire(ctx)
	if err != nil {
		return config.TierFree, false, fmt.Errorf("acquiring connection: %w", err)
	}
	defer release()

	u, err := client.User.Get(ctx, userID)
	if err != nil {
		if ent.IsNotFound(err) {
			return config.TierFree, false, nil
		}
		return config.TierFree, false, fmt.Errorf("fetching user: %w", err)
	}
	return config.Tier(u.Tier), true, nil
}

// SetTier updates a user's tier. Admin plane; callers must invalidate the
// tier policy cache afterwards.
func (s *UserService) SetTier(ctx context.Context, userID string, tier config.Tier) error {
	if !tier.Valid() {
		return NewValidationError("tier", fmt.Sprintf("unknown tier %q", tier))
	}

	client, release, err := s.conn.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer release()

	n, err := client.User.Update().
		Where(user.IDEQ(userID)).
		SetTier(user.Tier(tier)).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("updating tier: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateUser inserts a user row. Used by tests and provisioning tooling.
func (s *UserService) CreateUser(ctx context.Context, id, email string, tier config.Tier, verified, admin bool) (*ent.User, error) {
	client, release, err := s.conn.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer release()

	u, err := client.User.Create().
		SetID(id).
		SetEmail(email).
		SetTier(user.Tier(tier)).
		SetIsVerified(verified).
		SetIsAdmin(admin).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}
