// Code generated by ent, DO NOT EDIT.

package ent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"
	"entgo.io/ent/dialect/sql/sqljson"
	"entgo.io/ent/schema/field"
	"github.com/forgeworks/draftforge/ent/artifact"
	"github.com/forgeworks/draftforge/ent/job"
	"github.com/forgeworks/draftforge/ent/predicate"
)

// JobUpdate is the builder for updating Job entities.
type JobUpdate struct {
	config
	hooks    []Hook
	mutation *JobMutation
}

// Where appends a list predicates to the JobUpdate builder.
func (_u *JobUpdate) Where(ps ...predicate.Job) *JobUpdate {
	_u.mutation.Where(ps...)
	return _u
}

// SetTopic sets the "topic" field.
func (_u *JobUpdate) SetTopic(v string) *JobUpdate {
	_u.mutation.SetTopic(v)
	return _u
}

// SetNillableTopic sets the "topic" field if the given value is not nil.
func (_u *JobUpdate) SetNillableTopic(v *string) *JobUpdate {
	if v != nil {
		_u.SetTopic(*v)
	}
	return _u
}

// SetNormalizedTopic sets the "normalized_topic" field.
func (_u *JobUpdate) SetNormalizedTopic(v string) *JobUpdate {
	_u.mutation.SetNormalizedTopic(v)
	return _u
}

// SetNillableNormalizedTopic sets the "normalized_topic" field if the given value is not nil.
func (_u *JobUpdate) SetNillableNormalizedTopic(v *string) *JobUpdate {
	if v != nil {
		_u.SetNormalizedTopic(*v)
	}
	return _u
}

// SetRequestedTypes sets the "requested_types" field.
func (_u *JobUpdate) SetRequestedTypes(v []string) *JobUpdate {
	_u.mutation.SetRequestedTypes(v)
	return _u
}

// AppendRequestedTypes appends value to the "requested_types" field.
func (_u *JobUpdate) AppendRequestedTypes(v []string) *JobUpdate {
	_u.mutation.AppendRequestedTypes(v)
	return _u
}

// SetModelID sets the "model_id" field.
func (_u *JobUpdate) SetModelID(v string) *JobUpdate {
	_u.mutation.SetModelID(v)
	return _u
}

// SetNillableModelID sets the "model_id" field if the given value is not nil.
func (_u *JobUpdate) SetNillableModelID(v *string) *JobUpdate {
	if v != nil {
		_u.SetModelID(*v)
	}
	return _u
}

// SetStatus sets the "status" field.
func (_u *JobUpdate) SetStatus(v job.Status) *JobUpdate {
	_u.mutation.SetStatus(v)
	return _u
}

// SetNillableStatus sets the "status" field if the given value is not nil.
func (_u *JobUpdate) SetNillableStatus(v *job.Status) *JobUpdate {
	if v != nil {
		_u.SetStatus(*v)
	}
	return _u
}

// SetCancelRequested sets the "cancel_requested" field.
func (_u *JobUpdate) SetCancelRequested(v bool) *JobUpdate {
	_u.mutation.SetCancelRequested(v)
	return _u
}

// SetNillableCancelRequested sets the "cancel_requested" field if the given value is not nil.
func (_u *JobUpdate) SetNillableCancelRequested(v *bool) *JobUpdate {
	if v != nil {
		_u.SetCancelRequested(*v)
	}
	return _u
}

// SetFingerprint sets the "fingerprint" field.
func (_u *JobUpdate) SetFingerprint(v string) *JobUpdate {
	_u.mutation.SetFingerprint(v)
	return _u
}

// SetNillableFingerprint sets the "fingerprint" field if the given value is not nil.
func (_u *JobUpdate) SetNillableFingerprint(v *string) *JobUpdate {
	if v != nil {
		_u.SetFingerprint(*v)
	}
	return _u
}

// SetCacheHit sets the "cache_hit" field.
func (_u *JobUpdate) SetCacheHit(v bool) *JobUpdate {
	_u.mutation.SetCacheHit(v)
	return _u
}

// SetNillableCacheHit sets the "cache_hit" field if the given value is not nil.
func (_u *JobUpdate) SetNillableCacheHit(v *bool) *JobUpdate {
	if v != nil {
		_u.SetCacheHit(*v)
	}
	return _u
}

// SetLastEventSeq sets the "last_event_seq" field.
func (_u *JobUpdate) SetLastEventSeq(v int) *JobUpdate {
	_u.mutation.ResetLastEventSeq()
	_u.mutation.SetLastEventSeq(v)
	return _u
}

// SetNillableLastEventSeq sets the "last_event_seq" field if the given value is not nil.
func (_u *JobUpdate) SetNillableLastEventSeq(v *int) *JobUpdate {
	if v != nil {
		_u.SetLastEventSeq(*v)
	}
	return _u
}

// AddLastEventSeq adds value to the "last_event_seq" field.
func (_u *JobUpdate) AddLastEventSeq(v int) *JobUpdate {
	_u.mutation.AddLastEventSeq(v)
	return _u
}

// SetErrorMessage sets the "error_message" field.
func (_u *JobUpdate) SetErrorMessage(v string) *JobUpdate {
	_u.mutation.SetErrorMessage(v)
	return _u
}

// SetNillableErrorMessage sets the "error_message" field if the given value is not nil.
func (_u *JobUpdate) SetNillableErrorMessage(v *string) *JobUpdate {
	if v != nil {
		_u.SetErrorMessage(*v)
	}
	return _u
}

// ClearErrorMessage clears the value of the "error_message" field.
func (_u *JobUpdate) ClearErrorMessage() *JobUpdate {
	_u.mutation.ClearErrorMessage()
	return _u
}

// SetStartedAt sets the "started_at" field.
func (_u *JobUpdate) SetStartedAt(v time.Time) *JobUpdate {
	_u.mutation.SetStartedAt(v)
	return _u
}

// SetNillableStartedAt sets the "started_at" field if the given value is not nil.
func (_u *JobUpdate) SetNillableStartedAt(v *time.Time) *JobUpdate {
	if v != nil {
		_u.SetStartedAt(*v)
	}
	return _u
}

// ClearStartedAt clears the value of the "started_at" field.
func (_u *JobUpdate) ClearStartedAt() *JobUpdate {
	_u.mutation.ClearStartedAt()
	return _u
}

// SetFinishedAt sets the "finished_at" field.
func (_u *JobUpdate) SetFinishedAt(v time.Time) *JobUpdate {
	_u.mutation.SetFinishedAt(v)
	return _u
}

// SetNillableFinishedAt sets the "finished_at" field if the given value is not nil.
func (_u *JobUpdate) SetNillableFinishedAt(v *time.Time) *JobUpdate {
	if v != nil {
		_u.SetFinishedAt(*v)
	}
	return _u
}

// ClearFinishedAt clears the value of the "finished_at" field.
func (_u *JobUpdate) ClearFinishedAt() *JobUpdate {
	_u.mutation.ClearFinishedAt()
	return _u
}

// AddArtifactIDs adds the "artifacts" edge to the Artifact entity by IDs.
func (_u *JobUpdate) AddArtifactIDs(ids ...string) *JobUpdate {
	_u.mutation.AddArtifactIDs(ids...)
	return _u
}

// AddArtifacts adds the "artifacts" edges to the Artifact entity.
func (_u *JobUpdate) AddArtifacts(v ...*Artifact) *JobUpdate {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.AddArtifactIDs(ids...)
}

// Mutation returns the JobMutation object of the builder.
func (_u *JobUpdate) Mutation() *JobMutation {
	return _u.mutation
}

// ClearArtifacts clears all "artifacts" edges to the Artifact entity.
func (_u *JobUpdate) ClearArtifacts() *JobUpdate {
	_u.mutation.ClearArtifacts()
	return _u
}

// RemoveArtifactIDs removes the "artifacts" edge to Artifact entities by IDs.
func (_u *JobUpdate) RemoveArtifactIDs(ids ...string) *JobUpdate {
	_u.mutation.RemoveArtifactIDs(ids...)
	return _u
}

// RemoveArtifacts removes "artifacts" edges to Artifact entities.
func (_u *JobUpdate) RemoveArtifacts(v ...*Artifact) *JobUpdate {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.RemoveArtifactIDs(ids...)
}

// Save executes the query and returns the number of nodes affected by the update operation.
func (_u *JobUpdate) Save(ctx context.Context) (int, error) {
	return withHooks(ctx, _u.sqlSave, _u.mutation, _u.hooks)
}

// SaveX is like Save, but panics if an error occurs.
func (_u *JobUpdate) SaveX(ctx context.Context) int {
	affected, err := _u.Save(ctx)
	if err != nil {
		panic(err)
	}
	return affected
}

// Exec executes the query.
func (_u *JobUpdate) Exec(ctx context.Context) error {
	_, err := _u.Save(ctx)
	return err
}

// ExecX is like Exec, but panics if an error occurs.
func (_u *JobUpdate) ExecX(ctx context.Context) {
	if err := _u.Exec(ctx); err != nil {
		panic(err)
	}
}

// check runs all checks and user-defined validators on the builder.
func (_u *JobUpdate) check() error {
	if v, ok := _u.mutation.Status(); ok {
		if err := job.StatusValidator(v); err != nil {
			return &ValidationError{Name: "status", err: fmt.Errorf(`ent: validator failed for field "Job.status": %w`, err)}
		}
	}
	if _u.mutation.OwnerCleared() && len(_u.mutation.OwnerIDs()) > 0 {
		return errors.New(`ent: clearing a required unique edge "Job.owner"`)
	}
	return nil
}

func (_u *JobUpdate) sqlSave(ctx context.Context) (_node int, err error) {
	if err := _u.check(); err != nil {
		return _node, err
	}
	_spec := sqlgraph.NewUpdateSpec(job.Table, job.Columns, sqlgraph.NewFieldSpec(job.FieldID, field.TypeString))
	if ps := _u.mutation.predicates; len(ps) > 0 {
		_spec.Predicate = func(selector *sql.Selector) {
			for i := range ps {
				ps[i](selector)
			}
		}
	}
	if value, ok := _u.mutation.Topic(); ok {
		_spec.SetField(job.FieldTopic, field.TypeString, value)
	}
	if value, ok := _u.mutation.NormalizedTopic(); ok {
		_spec.SetField(job.FieldNormalizedTopic, field.TypeString, value)
	}
	if value, ok := _u.mutation.RequestedTypes(); ok {
		_spec.SetField(job.FieldRequestedTypes, field.TypeJSON, value)
	}
	if value, ok := _u.mutation.AppendedRequestedTypes(); ok {
		_spec.AddModifier(func(u *sql.UpdateBuilder) {
			sqljson.Append(u, job.FieldRequestedTypes, value)
		})
	}
	if value, ok := _u.mutation.ModelID(); ok {
		_spec.SetField(job.FieldModelID, field.TypeString, value)
	}
	if value, ok := _u.mutation.Status(); ok {
		_spec.SetField(job.FieldStatus, field.TypeEnum, value)
	}
	if value, ok := _u.mutation.CancelRequested(); ok {
		_spec.SetField(job.FieldCancelRequested, field.TypeBool, value)
	}
	if value, ok := _u.mutation.Fingerprint(); ok {
		_spec.SetField(job.FieldFingerprint, field.TypeString, value)
	}
	if value, ok := _u.mutation.CacheHit(); ok {
		_spec.SetField(job.FieldCacheHit, field.TypeBool, value)
	}
	if value, ok := _u.mutation.LastEventSeq(); ok {
		_spec.SetField(job.FieldLastEventSeq, field.TypeInt, value)
	}
	if value, ok := _u.mutation.AddedLastEventSeq(); ok {
		_spec.AddField(job.FieldLastEventSeq, field.TypeInt, value)
	}
	if value, ok := _u.mutation.ErrorMessage(); ok {
		_spec.SetField(job.FieldErrorMessage, field.TypeString, value)
	}
	if _u.mutation.ErrorMessageCleared() {
		_spec.ClearField(job.FieldErrorMessage, field.TypeString)
	}
	if value, ok := _u.mutation.StartedAt(); ok {
		_spec.SetField(job.FieldStartedAt, field.TypeTime, value)
	}
	if _u.mutation.StartedAtCleared() {
		_spec.ClearField(job.FieldStartedAt, field.TypeTime)
	}
	if value, ok := _u.mutation.FinishedAt(); ok {
		_spec.SetField(job.FieldFinishedAt, field.TypeTime, value)
	}
	if _u.mutation.FinishedAtCleared() {
		_spec.ClearField(job.FieldFinishedAt, field.TypeTime)
	}
	if _u.mutation.ArtifactsCleared() {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   job.ArtifactsTable,
			Columns: []string{job.ArtifactsColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(artifact.FieldID, field.TypeString),
			},
		}
		_spec.Edges.Clear = append(_spec.Edges.Clear, edge)
	}
	if nodes := _u.mutation.RemovedArtifactsIDs(); len(nodes) > 0 && !_u.mutation.ArtifactsCleared() {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   job.ArtifactsTable,
			Columns: []string{job.ArtifactsColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(artifact.FieldID, field.TypeString),
			},
		}
		for _, k := range nodes {
			edge.Target.Nodes = append(edge.Target.Nodes, k)
		}
		_spec.Edges.Clear = append(_spec.Edges.Clear, edge)
	}
	if nodes := _u.mutation.ArtifactsIDs(); len(nodes) > 0 {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   job.ArtifactsTable,
			Columns: []string{job.ArtifactsColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(artifact.FieldID, field.TypeString),
			},
		}
		for _, k := range nodes {
			edge.Target.Nodes = append(edge.Target.Nodes, k)
		}
		_spec.Edges.Add = append(_spec.Edges.Add, edge)
	}
	if _node, err = sqlgraph.UpdateNodes(ctx, _u.driver, _spec); err != nil {
		if _, ok := err.(*sqlgraph.NotFoundError); ok {
			err = &NotFoundError{job.Label}
		} else if sqlgraph.IsConstraintError(err) {
			err = &ConstraintError{msg: err.Error(), wrap: err}
		}
		return 0, err
	}
	_u.mutation.done = true
	return _node, nil
}

// JobUpdateOne is the builder for updating a single Job entity.
type JobUpdateOne struct {
	config
	fields   []string
	hooks    []Hook
	mutation *JobMutation
}

// SetTopic sets the "topic" field.
func (_u *JobUpdateOne) SetTopic(v string) *JobUpdateOne {
	_u.mutation.SetTopic(v)
	return _u
}

// SetNillableTopic sets the "topic" field if the given value is not nil.
func (_u *JobUpdateOne) SetNillableTopic(v *string) *JobUpdateOne {
	if v != nil {
		_u.SetTopic(*v)
	}
	return _u
}

// SetNormalizedTopic sets the "normalized_topic" field.
func (_u *JobUpdateOne) SetNormalizedTopic(v string) *JobUpdateOne {
	_u.mutation.SetNormalizedTopic(v)
	return _u
}

// SetNillableNormalizedTopic sets the "normalized_topic" field if the given value is not nil.
func (_u *JobUpdateOne) SetNillableNormalizedTopic(v *string) *JobUpdateOne {
	if v != nil {
		_u.SetNormalizedTopic(*v)
	}
	return _u
}

// SetRequestedTypes sets the "requested_types" field.
func (_u *JobUpdateOne) SetRequestedTypes(v []string) *JobUpdateOne {
	_u.mutation.SetRequestedTypes(v)
	return _u
}

// AppendRequestedTypes appends value to the "requested_types" field.
func (_u *JobUpdateOne) AppendRequestedTypes(v []string) *JobUpdateOne {
	_u.mutation.AppendRequestedTypes(v)
	return _u
}

// SetModelID sets the "model_id" field.
func (_u *JobUpdateOne) SetModelID(v string) *JobUpdateOne {
	_u.mutation.SetModelID(v)
	return _u
}

// SetNillableModelID sets the "model_id" field if the given value is not nil.
func (_u *JobUpdateOne) SetNillableModelID(v *string) *JobUpdateOne {
	if v != nil {
		_u.SetModelID(*v)
	}
	return _u
}

// SetStatus sets the "status" field.
func (_u *JobUpdateOne) SetStatus(v job.Status) *JobUpdateOne {
	_u.mutation.SetStatus(v)
	return _u
}

// SetNillableStatus sets the "status" field if the given value is not nil.
func (_u *JobUpdateOne) SetNillableStatus(v *job.Status) *JobUpdateOne {
	if v != nil {
		_u.SetStatus(*v)
	}
	return _u
}

// SetCancelRequested sets the "cancel_requested" field.
func (_u *JobUpdateOne) SetCancelRequested(v bool) *JobUpdateOne {
	_u.mutation.SetCancelRequested(v)
	return _u
}

// SetNillableCancelRequested sets the "cancel_requested" field if the given value is not nil.
func (_u *JobUpdateOne) SetNillableCancelRequested(v *bool) *JobUpdateOne {
	if v != nil {
		_u.SetCancelRequested(*v)
	}
	return _u
}

// SetFingerprint sets the "fingerprint" field.
func (_u *JobUpdateOne) SetFingerprint(v string) *JobUpdateOne {
	_u.mutation.SetFingerprint(v)
	return _u
}

// SetNillableFingerprint sets the "fingerprint" field if the given value is not nil.
func (_u *JobUpdateOne) SetNillableFingerprint(v *string) *JobUpdateOne {
	if v != nil {
		_u.SetFingerprint(*v)
	}
	return _u
}

// SetCacheHit sets the "cache_hit" field.
func (_u *JobUpdateOne) SetCacheHit(v bool) *JobUpdateOne {
	_u.mutation.SetCacheHit(v)
	return _u
}

// SetNillableCacheHit sets the "cache_hit" field if the given value is not nil.
func (_u *JobUpdateOne) SetNillableCacheHit(v *bool) *JobUpdateOne {
	if v != nil {
		_u.SetCacheHit(*v)
	}
	return _u
}

// SetLastEventSeq sets the "last_event_seq" field.
func (_u *JobUpdateOne) SetLastEventSeq(v int) *JobUpdateOne {
	_u.mutation.ResetLastEventSeq()
	_u.mutation.SetLastEventSeq(v)
	return _u
}

// SetNillableLastEventSeq sets the "last_event_seq" field if the given value is not nil.
func (_u *JobUpdateOne) SetNillableLastEventSeq(v *int) *JobUpdateOne {
	if v != nil {
		_u.SetLastEventSeq(*v)
	}
	return _u
}

// AddLastEventSeq adds value to the "last_event_seq" field.
func (_u *JobUpdateOne) AddLastEventSeq(v int) *JobUpdateOne {
	_u.mutation.AddLastEventSeq(v)
	return _u
}

// SetErrorMessage sets the "error_message" field.
func (_u *JobUpdateOne) SetErrorMessage(v string) *JobUpdateOne {
	_u.mutation.SetErrorMessage(v)
	return _u
}

// SetNillableErrorMessage sets the "error_message" field if the given value is not nil.
func (_u *JobUpdateOne) SetNillableErrorMessage(v *string) *JobUpdateOne {
	if v != nil {
		_u.SetErrorMessage(*v)
	}
	return _u
}

// ClearErrorMessage clears the value of the "error_message" field.
func (_u *JobUpdateOne) ClearErrorMessage() *JobUpdateOne {
	_u.mutation.ClearErrorMessage()
	return _u
}

// SetStartedAt sets the "started_at" field.
func (_u *JobUpdateOne) SetStartedAt(v time.Time) *JobUpdateOne {
	_u.mutation.SetStartedAt(v)
	return _u
}

// SetNillableStartedAt sets the "started_at" field if the given value is not nil.
func (_u *JobUpdateOne) SetNillableStartedAt(v *time.Time) *JobUpdateOne {
	if v != nil {
		_u.SetStartedAt(*v)
	}
	return _u
}

// ClearStartedAt clears the value of the "started_at" field.
func (_u *JobUpdateOne) ClearStartedAt() *JobUpdateOne {
	_u.mutation.ClearStartedAt()
	return _u
}

// SetFinishedAt sets the "finished_at" field.
func (_u *JobUpdateOne) SetFinishedAt(v time.Time) *JobUpdateOne {
	_u.mutation.SetFinishedAt(v)
	return _u
}

// SetNillableFinishedAt sets the "finished_at" field if the given value is not nil.
func (_u *JobUpdateOne) SetNillableFinishedAt(v *time.Time) *JobUpdateOne {
	if v != nil {
		_u.SetFinishedAt(*v)
	}
	return _u
}

// ClearFinishedAt clears the value of the "finished_at" field.
func (_u *JobUpdateOne) ClearFinishedAt() *JobUpdateOne {
	_u.mutation.ClearFinishedAt()
	return _u
}

// AddArtifactIDs adds the "artifacts" edge to the Artifact entity by IDs.
func (_u *JobUpdateOne) AddArtifactIDs(ids ...string) *JobUpdateOne {
	_u.mutation.AddArtifactIDs(ids...)
	return _u
}

// AddArtifacts adds the "artifacts" edges to the Artifact entity.
func (_u *JobUpdateOne) AddArtifacts(v ...*Artifact) *JobUpdateOne {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.AddArtifactIDs(ids...)
}

// Mutation returns the JobMutation object of the builder.
func (_u *JobUpdateOne) Mutation() *JobMutation {
	return _u.mutation
}

// ClearArtifacts clears all "artifacts" edges to the Artifact entity.
func (_u *JobUpdateOne) ClearArtifacts() *JobUpdateOne {
	_u.mutation.ClearArtifacts()
	return _u
}

// RemoveArtifactIDs removes the "artifacts" edge to Artifact entities by IDs.
func (_u *JobUpdateOne) RemoveArtifactIDs(ids ...string) *JobUpdateOne {
	_u.mutation.RemoveArtifactIDs(ids...)
	return _u
}

// RemoveArtifacts removes "artifacts" edges to Artifact entities.
func (_u *JobUpdateOne) RemoveArtifacts(v ...*Artifact) *JobUpdateOne {
	ids := make([]string, len(v))
	for i := range v {
		ids[i] = v[i].ID
	}
	return _u.RemoveArtifactIDs(ids...)
}

// Where appends a list predicates to the JobUpdate builder.
func (_u *JobUpdateOne) Where(ps ...predicate.Job) *JobUpdateOne {
	_u.mutation.Where(ps...)
	return _u
}

// Select allows selecting one or more fields (columns) of the returned entity.
// The default is selecting all fields defined in the entity schema.
func (_u *JobUpdateOne) Select(field string, fields ...string) *JobUpdateOne {
	_u.fields = append([]string{field}, fields...)
	return _u
}

// Save executes the query and returns the updated Job entity.
func (_u *JobUpdateOne) Save(ctx context.Context) (*Job, error) {
	return withHooks(ctx, _u.sqlSave, _u.mutation, _u.hooks)
}

// SaveX is like Save, but panics if an error occurs.
func (_u *JobUpdateOne) SaveX(ctx context.Context) *Job {
	node, err := _u.Save(ctx)
	if err != nil {
		panic(err)
	}
	return node
}

// Exec executes the query on the entity.
func (_u *JobUpdateOne) Exec(ctx context.Context) error {
	_, err := _u.Save(ctx)
	return err
}

// ExecX is like Exec, but panics if an error occurs.
func (_u *JobUpdateOne) ExecX(ctx context.Context) {
	if err := _u.Exec(ctx); err != nil {
		panic(err)
	}
}

// check runs all checks and user-defined validators on the builder.
func (_u *JobUpdateOne) check() error {
	if v, ok := _u.mutation.Status(); ok {
		if err := job.StatusValidator(v); err != nil {
			return &ValidationError{Name: "status", err: fmt.Errorf(`ent: validator failed for field "Job.status": %w`, err)}
		}
	}
	if _u.mutation.OwnerCleared() && len(_u.mutation.OwnerIDs()) > 0 {
		return errors.New(`ent: clearing a required unique edge "Job.owner"`)
	}
	return nil
}

func (_u *JobUpdateOne) sqlSave(ctx context.Context) (_node *Job, err error) {
	if err := _u.check(); err != nil {
		return _node, err
	}
	_spec := sqlgraph.NewUpdateSpec(job.Table, job.Columns, sqlgraph.NewFieldSpec(job.FieldID, field.TypeString))
	id, ok := _u.mutation.ID()
	if !ok {
		return nil, &ValidationError{Name: "id", err: errors.New(`ent: missing "Job.id" for update`)}
	}
	_spec.Node.ID.Value = id
	if fields := _u.fields; len(fields) > 0 {
		_spec.Node.Columns = make([]string, 0, len(fields))
		_spec.Node.Columns = append(_spec.Node.Columns, job.FieldID)
		for _, f := range fields {
			if !job.ValidColumn(f) {
				return nil, &ValidationError{Name: f, err: fmt.Errorf("ent: invalid field %q for query", f)}
			}
			if f != job.FieldID {
				_spec.Node.Columns = append(_spec.Node.Columns, f)
			}
		}
	}
	if ps := _u.mutation.predicates; len(ps) > 0 {
		_spec.Predicate = func(selector *sql.Selector) {
			for i := range ps {
				ps[i](selector)
			}
		}
	}
	if value, ok := _u.mutation.Topic(); ok {
		_spec.SetField(job.FieldTopic, field.TypeString, value)
	}
	if value, ok := _u.mutation.NormalizedTopic(); ok {
		_spec.SetField(job.FieldNormalizedTopic, field.TypeString, value)
	}
	if value, ok := _u.mutation.RequestedTypes(); ok {
		_spec.SetField(job.FieldRequestedTypes, field.TypeJSON, value)
	}
	if value, ok := _u.mutation.AppendedRequestedTypes(); ok {
		_spec.AddModifier(func(u *sql.UpdateBuilder) {
			sqljson.Append(u, job.FieldRequestedTypes, value)
		})
	}
	if value, ok := _u.mutation.ModelID(); ok {
		_spec.SetField(job.FieldModelID, field.TypeString, value)
	}
	if value, ok := _u.mutation.Status(); ok {
		_spec.SetField(job.FieldStatus, field.TypeEnum, value)
	}
	if value, ok := _u.mutation.CancelRequested(); ok {
		_spec.SetField(job.FieldCancelRequested, field.TypeBool, value)
	}
	if value, ok := _u.mutation.Fingerprint(); ok {
		_spec.SetField(job.FieldFingerprint, field.TypeString, value)
	}
	if value, ok := _u.mutation.CacheHit(); ok {
		_spec.SetField(job.FieldCacheHit, field.TypeBool, value)
	}
	if value, ok := _u.mutation.LastEventSeq(); ok {
		_spec.SetField(job.FieldLastEventSeq, field.TypeInt, value)
	}
	if value, ok := _u.mutation.AddedLastEventSeq(); ok {
		_spec.AddField(job.FieldLastEventSeq, field.TypeInt, value)
	}
	if value, ok := _u.mutation.ErrorMessage(); ok {
		_spec.SetField(job.FieldErrorMessage, field.TypeString, value)
	}
	if _u.mutation.ErrorMessageCleared() {
		_spec.ClearField(job.FieldErrorMessage, field.TypeString)
	}
	if value, ok := _u.mutation.StartedAt(); ok {
		_spec.SetField(job.FieldStartedAt, field.TypeTime, value)
	}
	if _u.mutation.StartedAtCleared() {
		_spec.ClearField(job.FieldStartedAt, field.TypeTime)
	}
	if value, ok := _u.mutation.FinishedAt(); ok {
		_spec.SetField(job.FieldFinishedAt, field.TypeTime, value)
	}
	if _u.mutation.FinishedAtCleared() {
		_spec.ClearField(job.FieldFinishedAt, field.TypeTime)
	}
	if _u.mutation.ArtifactsCleared() {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   job.ArtifactsTable,
			Columns: []string{job.ArtifactsColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(artifact.FieldID, field.TypeString),
			},
		}
		_spec.Edges.Clear = append(_spec.Edges.Clear, edge)
	}
	if nodes := _u.mutation.RemovedArtifactsIDs(); len(nodes) > 0 && !_u.mutation.ArtifactsCleared() {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   job.ArtifactsTable,
			Columns: []string{job.ArtifactsColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(artifact.FieldID, field.TypeString),
			},
		}
		for _, k := range nodes {
			edge.Target.Nodes = append(edge.Target.Nodes, k)
		}
		_spec.Edges.Clear = append(_spec.Edges.Clear, edge)
	}
	if nodes := _u.mutation.ArtifactsIDs(); len(nodes) > 0 {
		edge := &sqlgraph.EdgeSpec{
			Rel:     sqlgraph.O2M,
			Inverse: false,
			Table:   job.ArtifactsTable,
			Columns: []string{job.ArtifactsColumn},
			Bidi:    false,
			Target: &sqlgraph.EdgeTarget{
				IDSpec: sqlgraph.NewFieldSpec(artifact.FieldID, field.TypeString),
			},
		}
		for _, k := range nodes {
			edge.Target.Nodes = append(edge.Target.Nodes, k)
		}
		_spec.Edges.Add = append(_spec.Edges.Add, edge)
	}
	_node = &Job{config: _u.config}
	_spec.Assign = _node.assignValues
	_spec.ScanValues = _node.scanValues
	if err = sqlgraph.UpdateNode(ctx, _u.driver, _spec); err != nil {
		if _, ok := err.(*sqlgraph.NotFoundError); ok {
			err = &NotFoundError{job.Label}
		} else if sqlgraph.IsConstraintError(err) {
			err = &ConstraintError{msg: err.Error(), wrap: err}
		}
		return nil, err
	}
	_u.mutation.done = true
	return _node, nil
}
