// Code generated by ent, DO NOT EDIT.

package ent

import (
	"context"
	"errors"
	"fmt"

	"entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"
	"entgo.io/ent/schema/field"
	"github.com/forgeworks/draftforge/ent/artifact"
	"github.com/forgeworks/draftforge/ent/predicate"
)

// ArtifactUpdate is the builder for updating Artifact entities.
type ArtifactUpdate struct {
	config
	hooks    []Hook
	mutation *ArtifactMutation
}

// Where appends a list predicates to the ArtifactUpdate builder.
func (_u *ArtifactUpdate) Where(ps ...predicate.Artifact) *ArtifactUpdate {
	_u.mutation.Where(ps...)
	return _u
}

// SetArtifactType sets the "artifact_type" field.
func (_u *ArtifactUpdate) SetArtifactType(v artifact.ArtifactType) *ArtifactUpdate {
	_u.mutation.SetArtifactType(v)
	return _u
}

// SetNillableArtifactType sets the "artifact_type" field if the given value is not nil.
func (_u *ArtifactUpdate) SetNillableArtifactType(v *artifact.ArtifactType) *ArtifactUpdate {
	if v != nil {
		_u.SetArtifactType(*v)
	}
	return _u
}

// SetContent sets the "content" field.
func (_u *ArtifactUpdate) SetContent(v string) *ArtifactUpdate {
	_u.mutation.SetContent(v)
	return _u
}

// SetNillableContent sets the "content" field if the given value is not nil.
func (_u *ArtifactUpdate) SetNillableContent(v *string) *ArtifactUpdate {
	if v != nil {
		_u.SetContent(*v)
	}
	return _u
}

// ClearContent clears the value of the "content" field.
func (_u *ArtifactUpdate) ClearContent() *ArtifactUpdate {
	_u.mutation.ClearContent()
	return _u
}

// SetAssetURI sets the "asset_uri" field.
func (_u *ArtifactUpdate) SetAssetURI(v string) *ArtifactUpdate {
	_u.mutation.SetAssetURI(v)
	return _u
}

// SetNillableAssetURI sets the "asset_uri" field if the given value is not nil.
func (_u *ArtifactUpdate) SetNillableAssetURI(v *string) *ArtifactUpdate {
	if v != nil {
		_u.SetAssetURI(*v)
	}
	return _u
}

// ClearAssetURI clears the value of the "asset_uri" field.
func (_u *ArtifactUpdate) ClearAssetURI() *ArtifactUpdate {
	_u.mutation.ClearAssetURI()
	return _u
}

// SetFingerprint sets the "fingerprint" field.
func (_u *ArtifactUpdate) SetFingerprint(v string) *ArtifactUpdate {
	_u.mutation.SetFingerprint(v)
	return _u
}

// SetNillableFingerprint sets the "fingerprint" field if the given value is not nil.
func (_u *ArtifactUpdate) SetNillableFingerprint(v *string) *ArtifactUpdate {
	if v != nil {
		_u.SetFingerprint(*v)
	}
	return _u
}

// SetQualityMetrics sets the "quality_metrics" field.
func (_u *ArtifactUpdate) SetQualityMetrics(v map[string]interface{}) *ArtifactUpdate {
	_u.mutation.SetQualityMetrics(v)
	return _u
}

// ClearQualityMetrics clears the value of the "quality_metrics" field.
func (_u *ArtifactUpdate) ClearQualityMetrics() *ArtifactUpdate {
	_u.mutation.ClearQualityMetrics()
	return _u
}

// Mutation returns the ArtifactMutation object of the builder.
func (_u *ArtifactUpdate) Mutation() *ArtifactMutation {
	return _u.mutation
}

// Save executes the query and returns the number of nodes affected by the update operation.
func (_u *ArtifactUpdate) Save(ctx context.Context) (int, error) {
	return withHooks(ctx, _u.sqlSave, _u.mutation, _u.hooks)
}

// SaveX is like Save, but panics if an error occurs.
func (_u *ArtifactUpdate) SaveX(ctx context.Context) int {
	affected, err := _u.Save(ctx)
	if err != nil {
		panic(err)
	}
	return affected
}

// Exec executes the query.
func (_u *ArtifactUpdate) Exec(ctx context.Context) error {
	_, err := _u.Save(ctx)
	return err
}

// ExecX is like Exec, but panics if an error occurs.
func (_u *ArtifactUpdate) ExecX(ctx context.Context) {
	if err := _u.Exec(ctx); err != nil {
		panic(err)
	}
}

// check runs all checks and user-defined validators on the builder.
func (_u *ArtifactUpdate) check() error {
	if v, ok := _u.mutation.ArtifactType(); ok {
		if err := artifact.ArtifactTypeValidator(v); err != nil {
			return &ValidationError{Name: "artifact_type", err: fmt.Errorf(`ent: validator failed for field "Artifact.artifact_type": %w`, err)}
		}
	}
	if _u.mutation.JobCleared() && len(_u.mutation.JobIDs()) > 0 {
		return errors.New(`ent: clearing a required unique edge "Artifact.job"`)
	}
	return nil
}

func (_u *ArtifactUpdate) sqlSave(ctx context.Context) (_node int, err error) {
	if err := _u.check(); err != nil {
		return _node, err
	}
	_spec := sqlgraph.NewUpdateSpec(artifact.Table, artifact.Columns, sqlgraph.NewFieldSpec(artifact.FieldID, field.TypeString))
	if ps := _u.mutation.predicates; len(ps) > 0 {
		_spec.Predicate = func(selector *sql.Selector) {
			for i := range ps {
				ps[i](selector)
			}
		}
	}
	if value, ok := _u.mutation.ArtifactType(); ok {
		_spec.SetField(artifact.FieldArtifactType, field.TypeEnum, value)
	}
	if value, ok := _u.mutation.Content(); ok {
		_spec.SetField(artifact.FieldContent, field.TypeString, value)
	}
	if _u.mutation.ContentCleared() {
		_spec.ClearField(artifact.FieldContent, field.TypeString)
	}
	if value, ok := _u.mutation.AssetURI(); ok {
		_spec.SetField(artifact.FieldAssetURI, field.TypeString, value)
	}
	if _u.mutation.AssetURICleared() {
		_spec.ClearField(artifact.FieldAssetURI, field.TypeString)
	}
	if value, ok := _u.mutation.Fingerprint(); ok {
		_spec.SetField(artifact.FieldFingerprint, field.TypeString, value)
	}
	if value, ok := _u.mutation.QualityMetrics(); ok {
		_spec.SetField(artifact.FieldQualityMetrics, field.TypeJSON, value)
	}
	if _u.mutation.QualityMetricsCleared() {
		_spec.ClearField(artifact.FieldQualityMetrics, field.TypeJSON)
	}
	if _node, err = sqlgraph.UpdateNodes(ctx, _u.driver, _spec); err != nil {
		if _, ok := err.(*sqlgraph.NotFoundError); ok {
			err = &NotFoundError{artifact.Label}
		} else if sqlgraph.IsConstraintError(err) {
			err = &ConstraintError{msg: err.Error(), wrap: err}
		}
		return 0, err
	}
	_u.mutation.done = true
	return _node, nil
}

// ArtifactUpdateOne is the builder for updating a single Artifact entity.
type ArtifactUpdateOne struct {
	config
	fields   []string
	hooks    []Hook
	mutation *ArtifactMutation
}

// SetArtifactType sets the "artifact_type" field.
func (_u *ArtifactUpdateOne) SetArtifactType(v artifact.ArtifactType) *ArtifactUpdateOne {
	_u.mutation.SetArtifactType(v)
	return _u
}

// SetNillableArtifactType sets the "artifact_type" field if the given value is not nil.
func (_u *ArtifactUpdateOne) SetNillableArtifactType(v *artifact.ArtifactType) *ArtifactUpdateOne {
	if v != nil {
		_u.SetArtifactType(*v)
	}
	return _u
}

// SetContent sets the "content" field.
func (_u *ArtifactUpdateOne) SetContent(v string) *ArtifactUpdateOne {
	_u.mutation.SetContent(v)
	return _u
}

// SetNillableContent sets the "content" field if the given value is not nil.
func (_u *ArtifactUpdateOne) SetNillableContent(v *string) *ArtifactUpdateOne {
	if v != nil {
		_u.SetContent(*v)
	}
	return _u
}

// ClearContent clears the value of the "content" field.
func (_u *ArtifactUpdateOne) ClearContent() *ArtifactUpdateOne {
	_u.mutation.ClearContent()
	return _u
}

// SetAssetURI sets the "asset_uri" field.
func (_u *ArtifactUpdateOne) SetAssetURI(v string) *ArtifactUpdateOne {
	_u.mutation.SetAssetURI(v)
	return _u
}

// SetNillableAssetURI sets the "asset_uri" field if the given value is not nil.
func (_u *ArtifactUpdateOne) SetNillableAssetURI(v *string) *ArtifactUpdateOne {
	if v != nil {
		_u.SetAssetURI(*v)
	}
	return _u
}

// ClearAssetURI clears the value of the "asset_uri" field.
func (_u *ArtifactUpdateOne) ClearAssetURI() *ArtifactUpdateOne {
	_u.mutation.ClearAssetURI()
	return _u
}

// SetFingerprint sets the "fingerprint" field.
func (_u *ArtifactUpdateOne) SetFingerprint(v string) *ArtifactUpdateOne {
	_u.mutation.SetFingerprint(v)
	return _u
}

// SetNillableFingerprint sets the "fingerprint" field if the given value is not nil.
func (_u *ArtifactUpdateOne) SetNillableFingerprint(v *string) *ArtifactUpdateOne {
	if v != nil {
		_u.SetFingerprint(*v)
	}
	return _u
}

// SetQualityMetrics sets the "quality_metrics" field.
func (_u *ArtifactUpdateOne) SetQualityMetrics(v map[string]interface{}) *ArtifactUpdateOne {
	_u.mutation.SetQualityMetrics(v)
	return _u
}

// ClearQualityMetrics clears the value of the "quality_metrics" field.
func (_u *ArtifactUpdateOne) ClearQualityMetrics() *ArtifactUpdateOne {
	_u.mutation.ClearQualityMetrics()
	return _u
}

// Mutation returns the ArtifactMutation object of the builder.
func (_u *ArtifactUpdateOne) Mutation() *ArtifactMutation {
	return _u.mutation
}

// Where appends a list predicates to the ArtifactUpdate builder.
func (_u *ArtifactUpdateOne) Where(ps ...predicate.Artifact) *ArtifactUpdateOne {
	_u.mutation.Where(ps...)
	return _u
}

// Select allows selecting one or more fields (columns) of the returned entity.
// The default is selecting all fields defined in the entity schema.
func (_u *ArtifactUpdateOne) Select(field string, fields ...string) *ArtifactUpdateOne {
	_u.fields = append([]string{field}, fields...)
	return _u
}

// Save executes the query and returns the updated Artifact entity.
func (_u *ArtifactUpdateOne) Save(ctx context.Context) (*Artifact, error) {
	return withHooks(ctx, _u.sqlSave, _u.mutation, _u.hooks)
}

// SaveX is like Save, but panics if an error occurs.
func (_u *ArtifactUpdateOne) SaveX(ctx context.Context) *Artifact {
	node, err := _u.Save(ctx)
	if err != nil {
		panic(err)
	}
	return node
}

// Exec executes the query on the entity.
func (_u *ArtifactUpdateOne) Exec(ctx context.Context) error {
	_, err := _u.Save(ctx)
	return err
}

// ExecX is like Exec, but panics if an error occurs.
func (_u *ArtifactUpdateOne) ExecX(ctx context.Context) {
	if err := _u.Exec(ctx); err != nil {
		panic(err)
	}
}

// check runs all checks and user-defined validators on the builder.
func (_u *ArtifactUpdateOne) check() error {
	if v, ok := _u.mutation.ArtifactType(); ok {
		if err := artifact.ArtifactTypeValidator(v); err != nil {
			return &ValidationError{Name: "artifact_type", err: fmt.Errorf(`ent: validator failed for field "Artifact.artifact_type": %w`, err)}
		}
	}
	if _u.mutation.JobCleared() && len(_u.mutation.JobIDs()) > 0 {
		return errors.New(`ent: clearing a required unique edge "Artifact.job"`)
	}
	return nil
}

func (_u *ArtifactUpdateOne) sqlSave(ctx context.Context) (_node *Artifact, err error) {
	if err := _u.check(); err != nil {
		return _node, err
	}
	_spec := sqlgraph.NewUpdateSpec(artifact.Table, artifact.Columns, sqlgraph.NewFieldSpec(artifact.FieldID, field.TypeString))
	id, ok := _u.mutation.ID()
	if !ok {
		return nil, &ValidationError{Name: "id", err: errors.New(`ent: missing "Artifact.id" for update`)}
	}
	_spec.Node.ID.Value = id
	if fields := _u.fields; len(fields) > 0 {
		_spec.Node.Columns = make([]string, 0, len(fields))
		_spec.Node.Columns = append(_spec.Node.Columns, artifact.FieldID)
		for _, f := range fields {
			if !artifact.ValidColumn(f) {
				return nil, &ValidationError{Name: f, err: fmt.Errorf("ent: invalid field %q for query", f)}
			}
			if f != artifact.FieldID {
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
	if value, ok := _u.mutation.ArtifactType(); ok {
		_spec.SetField(artifact.FieldArtifactType, field.TypeEnum, value)
	}
	if value, ok := _u.mutation.Content(); ok {
		_spec.SetField(artifact.FieldContent, field.TypeString, value)
	}
	if _u.mutation.ContentCleared() {
		_spec.ClearField(artifact.FieldContent, field.TypeString)
	}
	if value, ok := _u.mutation.AssetURI(); ok {
		_spec.SetField(artifact.FieldAssetURI, field.TypeString, value)
	}
	if _u.mutation.AssetURICleared() {
		_spec.ClearField(artifact.FieldAssetURI, field.TypeString)
	}
	if value, ok := _u.mutation.Fingerprint(); ok {
		_spec.SetField(artifact.FieldFingerprint, field.TypeString, value)
	}
	if value, ok := _u.mutation.QualityMetrics(); ok {
		_spec.SetField(artifact.FieldQualityMetrics, field.TypeJSON, value)
	}
	if _u.mutation.QualityMetricsCleared() {
		_spec.ClearField(artifact.FieldQualityMetrics, field.TypeJSON)
	}
	_node = &Artifact{config: _u.config}
	_spec.Assign = _node.assignValues
	_spec.ScanValues = _node.scanValues
	if err = sqlgraph.UpdateNode(ctx, _u.driver, _spec); err != nil {
		if _, ok := err.(*sqlgraph.NotFoundError); ok {
			err = &NotFoundError{artifact.Label}
		} else if sqlgraph.IsConstraintError(err) {
			err = &ConstraintError{msg: err.Error(), wrap: err}
		}
		return nil, err
	}
	_u.mutation.done = true
	return _node, nil
}
