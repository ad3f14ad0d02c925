// Code generated by ent, DO NOT EDIT.

package ent

import (
	"time"

	"github.com/forgeworks/draftforge/ent/artifact"
	"github.com/forgeworks/draftforge/ent/job"
	"github.com/forgeworks/draftforge/ent/schema"
	"github.com/forgeworks/draftforge/ent/setting"
	"github.com/forgeworks/draftforge/ent/user"
)

// The init function reads all schema descriptors with runtime code
// (default values, validators, hooks and policies) and stitches it
// to their package variables.
func init() {
	artifactFields := schema.Artifact{}.Fields()
	_ = artifactFields
	// artifactDescCreatedAt is the schema descriptor for created_at field.
	artifactDescCreatedAt := artifactFields[8].Descriptor()
	// artifact.DefaultCreatedAt holds the default value on creation for the created_at field.
	artifact.DefaultCreatedAt = artifactDescCreatedAt.Default.(func() time.Time)
	jobFields := schema.Job{}.Fields()
	_ = jobFields
	// jobDescCancelRequested is the schema descriptor for cancel_requested field.
	jobDescCancelRequested := jobFields[7].Descriptor()
	// job.DefaultCancelRequested holds the default value on creation for the cancel_requested field.
	job.DefaultCancelRequested = jobDescCancelRequested.Default.(bool)
	// jobDescCacheHit is the schema descriptor for cache_hit field.
	jobDescCacheHit := jobFields[9].Descriptor()
	// job.DefaultCacheHit holds the default value on creation for the cache_hit field.
	job.DefaultCacheHit = jobDescCacheHit.Default.(bool)
	// jobDescLastEventSeq is the schema descriptor for last_event_seq field.
	jobDescLastEventSeq := jobFields[10].Descriptor()
	// job.DefaultLastEventSeq holds the default value on creation for the last_event_seq field.
	job.DefaultLastEventSeq = jobDescLastEventSeq.Default.(int)
	// jobDescCreatedAt is the schema descriptor for created_at field.
	jobDescCreatedAt := jobFields[12].Descriptor()
	// job.DefaultCreatedAt holds the default value on creation for the created_at field.
	job.DefaultCreatedAt = jobDescCreatedAt.Default.(func() time.Time)
	settingFields := schema.Setting{}.Fields()
	_ = settingFields
	// settingDescUpdatedAt is the schema descriptor for updated_at field.
	settingDescUpdatedAt := settingFields[2].Descriptor()
	// setting.DefaultUpdatedAt holds the default value on creation for the updated_at field.
	setting.DefaultUpdatedAt = settingDescUpdatedAt.Default.(func() time.Time)
	// setting.UpdateDefaultUpdatedAt holds the default value on update for the updated_at field.
	setting.UpdateDefaultUpdatedAt = settingDescUpdatedAt.UpdateDefault.(func() time.Time)
	userFields := schema.User{}.Fields()
	_ = userFields
	// userDescIsVerified is the schema descriptor for is_verified field.
	userDescIsVerified := userFields[3].Descriptor()
	// user.DefaultIsVerified holds the default value on creation for the is_verified field.
	user.DefaultIsVerified = userDescIsVerified.Default.(bool)
	// userDescIsAdmin is the schema descriptor for is_admin field.
	userDescIsAdmin := userFields[4].Descriptor()
	// user.DefaultIsAdmin holds the default value on creation for the is_admin field.
	user.DefaultIsAdmin = userDescIsAdmin.Default.(bool)
	// userDescCreatedAt is the schema descriptor for created_at field.
	userDescCreatedAt := userFields[5].Descriptor()
	// user.DefaultCreatedAt holds the default value on creation for the created_at field.
	user.DefaultCreatedAt = userDescCreatedAt.Default.(func() time.Time)
}
