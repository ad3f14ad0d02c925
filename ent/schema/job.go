package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Job holds the schema definition for the Job entity — one content-generation
// request. Status transitions are single-writer (the owning worker) and are
// persisted with a conditional UPDATE guarded by the current status, so a
// losing concurrent transition becomes a no-op.
type Job struct {
	ent.Schema
}

// Fields of the Job.
func (Job) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("job_id").
			Unique().
			Immutable(),
		field.String("user_id").
			Immutable(),
		field.Text("topic").
			Comment("Original topic as submitted (display form)"),
		field.String("normalized_topic").
			Comment("NFKC/lowercased/collapsed form used for cache keying"),
		field.JSON("requested_types", []string{}).
			Comment("Effective content types, tier-intersected, request order preserved"),
		field.String("model_id").
			Comment("Model identifier resolved from the tier at admission"),
		field.Enum("status").
			Values("pending", "running", "completed", "failed", "cancelled").
			Default("pending"),
		field.Bool("cancel_requested").
			Default(false).
			Comment("Monotonic: once true, never cleared"),
		field.String("fingerprint").
			Comment("Content cache key this job builds or was served from"),
		field.Bool("cache_hit").
			Default(false).
			Comment("Audit flag: job was answered from the content cache"),
		field.Int("last_event_seq").
			Default(0).
			Comment("Highest event sequence emitted on the job's stream"),
		field.String("error_message").
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("started_at").
			Optional().
			Nillable(),
		field.Time("finished_at").
			Optional().
			Nillable().
			Comment("Set iff status is completed, failed, or cancelled"),
	}
}

// Edges of the Job.
func (Job) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("owner", User.Type).
			Ref("jobs").
			Field("user_id").
			Unique().
			Required().
			Immutable(),
		edge.To("artifacts", Artifact.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Job.
func (Job) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status"),
		index.Fields("user_id", "status"),
		index.Fields("status", "created_at"),
		index.Fields("fingerprint"),
	}
}
