package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Artifact holds the schema definition for the Artifact entity — one durable
// output of a completed pipeline stage. Owned by its job; the content cache
// holds non-owning references by fingerprint with an independent lifetime.
type Artifact struct {
	ent.Schema
}

// Fields of the Artifact.
func (Artifact) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("artifact_id").
			Unique().
			Immutable(),
		field.String("job_id").
			Immutable(),
		field.String("user_id").
			Immutable(),
		field.Enum("artifact_type").
			Values("blog", "social", "audio", "video"),
		field.Text("content").
			Optional().
			Comment("Text payload (blog/social); empty for media artifacts"),
		field.String("asset_uri").
			Optional().
			Comment("Media artifacts: URI of the rendered asset"),
		field.String("fingerprint").
			Comment("Cache key of the generation that produced this artifact"),
		field.JSON("quality_metrics", map[string]any{}).
			Optional().
			Comment("word_count, char_count, read_minutes — blog only"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the Artifact.
func (Artifact) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("job", Job.Type).
			Ref("artifacts").
			Field("job_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the Artifact.
func (Artifact) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("job_id"),
		index.Fields("user_id"),
		index.Fields("fingerprint"),
	}
}
