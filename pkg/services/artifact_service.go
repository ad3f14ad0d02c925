package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/forgeworks/draftforge/ent"
	"github.com/forgeworks/draftforge/ent/artifact"
	"github.com/forgeworks/draftforge/pkg/database"
	"github.com/forgeworks/draftforge/pkg/models"
)

// ArtifactService persists artifact rows. Persistence ordering matters: the
// pipeline adapter commits the artifact here first, then publishes
// artifact_ready — never the other way around.
type ArtifactService struct {
	conn database.Connector
}

// NewArtifactService creates an ArtifactService.
func NewArtifactService(conn database.Connector) *ArtifactService {
	return &ArtifactService{conn: conn}
}

// PersistInput contains fields for persisting one artifact.
type PersistInput struct {
	JobID       string
	UserID      string
	Fingerprint string
	Payload     models.ArtifactPayload
}

// Persist durably stores an artifact in its own transaction and returns the
// stored row (with its generated ID).
func (s *ArtifactService) Persist(ctx context.Context, input PersistInput) (*ent.Artifact, error) {
	client, release, err := s.conn.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer release()

	create := client.Artifact.Create().
		SetID(uuid.New().String()).
		SetJobID(input.JobID).
		SetUserID(input.UserID).
		SetArtifactType(artifact.ArtifactType(input.Payload.Type)).
		SetFingerprint(input.Fingerprint)

	if input.Payload.Content != "" {
		create = create.SetContent(input.Payload.Content)
	}
	if input.Payload.AssetURI != "" {
		create = create.SetAssetURI(input.Payload.AssetURI)
	}
	if m := input.Payload.Metrics; m != nil {
		create = create.SetQualityMetrics(map[string]any{
			"word_count":   m.WordCount,
			"char_count":   m.CharCount,
			"read_minutes": m.ReadMinutes,
		})
	}

	stored, err := create.Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("persisting artifact: %w", err)
	}
	return stored, nil
}

// ListByJob returns a job's artifacts in creation order.
func (s *ArtifactService) ListByJob(ctx context.Context, jobID string) ([]*ent.Artifact, error) {
	client, release, err := s.conn.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer release()

	artifacts, err := client.Artifact.Query().
		Where(artifact.JobIDEQ(jobID)).
		Order(ent.Asc(artifact.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	return artifacts, nil
}

// FingerprintsByUser returns the distinct fingerprints of a user's artifacts.
// The admin cache-invalidation path maps a user to cache keys through this.
func (s *ArtifactService) FingerprintsByUser(ctx context.Context, userID string) ([]string, error) {
	client, release, err := s.conn.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer release()

	fps, err := client.Artifact.Query().
		Where(artifact.UserIDEQ(userID)).
		Unique(true).
		Select(artifact.FieldFingerprint).
		Strings(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying fingerprints: %w", err)
	}
	return fps, nil
}
