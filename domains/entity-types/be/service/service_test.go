package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-records/platform/go/apperrors"
	"github.com/zenGate-Global/palmyra-records/platform/go/auth"
	"github.com/zenGate-Global/palmyra-records/platform/go/metadata"
	"github.com/zenGate-Global/palmyra-records/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-records/platform/go/tenant"
)

type mockRepository struct {
	createEntityTypeFn func(ctx context.Context, tc tenant.Context, params persistence.CreateEntityTypeParams) (metadata.EntityType, error)
	getEntityTypeFn    func(ctx context.Context, tc tenant.Context, id uuid.UUID) (metadata.EntityType, error)
	updateEntityTypeFn func(ctx context.Context, tc tenant.Context, id uuid.UUID, params persistence.UpdateEntityTypeParams) (metadata.EntityType, error)
	createFieldDefFn   func(ctx context.Context, tc tenant.Context, def metadata.FieldDef) (metadata.FieldDef, error)
	getFieldDefFn      func(ctx context.Context, tc tenant.Context, id uuid.UUID) (metadata.FieldDef, error)
	listFieldDefsFn    func(ctx context.Context, tc tenant.Context, entityTypeID uuid.UUID, activeOnly bool) ([]metadata.FieldDef, error)
	updateFieldDefFn   func(ctx context.Context, tc tenant.Context, def metadata.FieldDef) (metadata.FieldDef, error)
}

func (m *mockRepository) CreateEntityType(ctx context.Context, tc tenant.Context, params persistence.CreateEntityTypeParams) (metadata.EntityType, error) {
	if m.createEntityTypeFn == nil {
		panic("createEntityTypeFn not configured")
	}
	return m.createEntityTypeFn(ctx, tc, params)
}

func (m *mockRepository) GetEntityType(ctx context.Context, tc tenant.Context, id uuid.UUID) (metadata.EntityType, error) {
	if m.getEntityTypeFn == nil {
		panic("getEntityTypeFn not configured")
	}
	return m.getEntityTypeFn(ctx, tc, id)
}

func (m *mockRepository) ListEntityTypes(context.Context, tenant.Context) ([]metadata.EntityType, error) {
	return nil, nil
}

func (m *mockRepository) UpdateEntityType(ctx context.Context, tc tenant.Context, id uuid.UUID, params persistence.UpdateEntityTypeParams) (metadata.EntityType, error) {
	if m.updateEntityTypeFn == nil {
		panic("updateEntityTypeFn not configured")
	}
	return m.updateEntityTypeFn(ctx, tc, id, params)
}

func (m *mockRepository) CreateFieldDef(ctx context.Context, tc tenant.Context, def metadata.FieldDef) (metadata.FieldDef, error) {
	if m.createFieldDefFn == nil {
		panic("createFieldDefFn not configured")
	}
	return m.createFieldDefFn(ctx, tc, def)
}

func (m *mockRepository) GetFieldDef(ctx context.Context, tc tenant.Context, id uuid.UUID) (metadata.FieldDef, error) {
	if m.getFieldDefFn == nil {
		panic("getFieldDefFn not configured")
	}
	return m.getFieldDefFn(ctx, tc, id)
}

func (m *mockRepository) ListFieldDefs(ctx context.Context, tc tenant.Context, entityTypeID uuid.UUID, activeOnly bool) ([]metadata.FieldDef, error) {
	if m.listFieldDefsFn == nil {
		panic("listFieldDefsFn not configured")
	}
	return m.listFieldDefsFn(ctx, tc, entityTypeID, activeOnly)
}

func (m *mockRepository) UpdateFieldDef(ctx context.Context, tc tenant.Context, def metadata.FieldDef) (metadata.FieldDef, error) {
	if m.updateFieldDefFn == nil {
		panic("updateFieldDefFn not configured")
	}
	return m.updateFieldDefFn(ctx, tc, def)
}

type recordingEnqueuer struct {
	calls []uuid.UUID
	jobs  map[uuid.UUID]persistence.IndexJob
	err   error
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, _ tenant.Context, _ uuid.UUID, fieldID uuid.UUID) (persistence.IndexJob, error) {
	r.calls = append(r.calls, fieldID)
	if r.err != nil {
		return persistence.IndexJob{}, r.err
	}
	if r.jobs == nil {
		r.jobs = map[uuid.UUID]persistence.IndexJob{}
	}
	job := persistence.IndexJob{ID: uuid.New(), FieldID: fieldID, Status: persistence.IndexJobPending}
	r.jobs[fieldID] = job
	return job, nil
}

func (r *recordingEnqueuer) JobForField(_ context.Context, _ tenant.Context, fieldID uuid.UUID) (persistence.IndexJob, error) {
	job, ok := r.jobs[fieldID]
	if !ok {
		return persistence.IndexJob{}, persistence.ErrIndexJobNotFound
	}
	return job, nil
}

var (
	builder = &auth.UserCredentials{Id: "builder-1", Roles: []string{"builder"}}
	viewer  = &auth.UserCredentials{Id: "viewer-1", Roles: []string{"viewer"}}
)

func existingEntityType(ctx context.Context, tc tenant.Context, id uuid.UUID) (metadata.EntityType, error) {
	return metadata.EntityType{ID: id, TenantID: tc.TenantID, Key: "project", Label: "Project"}, nil
}

func TestCreateEntityTypeRequiresSchemaWrite(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{}, &recordingEnqueuer{}, nil)
	_, err := svc.CreateEntityType(context.Background(), tenant.New(uuid.New()), viewer, CreateEntityTypeInput{Key: "project", Label: "Project"})

	var forbidden *apperrors.ForbiddenError
	require.True(t, errors.As(err, &forbidden))
	require.Equal(t, "schema:write", forbidden.Action)
}

func TestCreateEntityTypeValidatesInput(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{}, &recordingEnqueuer{}, nil)
	_, err := svc.CreateEntityType(context.Background(), tenant.New(uuid.New()), builder, CreateEntityTypeInput{Key: "Project Types", Label: ""})

	var vErr *apperrors.ValidationError
	require.True(t, errors.As(err, &vErr))
	require.True(t, vErr.HasField("key"))
	require.True(t, vErr.HasField("label"))
}

func TestCreateEntityTypeConflict(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{
		createEntityTypeFn: func(context.Context, tenant.Context, persistence.CreateEntityTypeParams) (metadata.EntityType, error) {
			return metadata.EntityType{}, persistence.ErrMetadataConflict
		},
	}
	svc := New(repo, &recordingEnqueuer{}, nil)
	_, err := svc.CreateEntityType(context.Background(), tenant.New(uuid.New()), builder, CreateEntityTypeInput{Key: "project", Label: "Project"})
	require.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestUpdateEntityTypeRejectsKeyChange(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{getEntityTypeFn: existingEntityType}
	svc := New(repo, &recordingEnqueuer{}, nil)

	key := "renamed"
	_, err := svc.UpdateEntityType(context.Background(), tenant.New(uuid.New()), builder, uuid.New(), UpdateEntityTypeInput{Key: &key})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestCreateIndexedFieldEnqueuesJob(t *testing.T) {
	t.Parallel()

	var stored metadata.FieldDef
	repo := &mockRepository{
		getEntityTypeFn: existingEntityType,
		createFieldDefFn: func(_ context.Context, _ tenant.Context, def metadata.FieldDef) (metadata.FieldDef, error) {
			stored = def
			return def, nil
		},
	}
	enqueuer := &recordingEnqueuer{}
	svc := New(repo, enqueuer, nil)

	def, err := svc.CreateField(context.Background(), tenant.New(uuid.New()), builder, uuid.New(), CreateFieldInput{
		Key:      "budget",
		Label:    "Budget",
		Kind:     "number",
		Indexed:  true,
		Validate: json.RawMessage(`{"min":0}`),
		ACL:      ACLInput{Read: []string{"viewer"}, Write: []string{"contributor"}},
	})
	require.NoError(t, err)
	require.True(t, stored.Active)
	require.Equal(t, metadata.KindNumber, stored.Kind)
	require.IsType(t, metadata.NumberConstraints{}, stored.Constraints)
	require.Equal(t, []uuid.UUID{def.ID}, enqueuer.calls)
}

func TestCreateFieldRejectsBadInput(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{
		getEntityTypeFn: func(_ context.Context, tc tenant.Context, id uuid.UUID) (metadata.EntityType, error) {
			return metadata.EntityType{}, persistence.ErrEntityTypeNotFound
		},
	}
	svc := New(repo, &recordingEnqueuer{}, nil)
	tc := tenant.New(uuid.New())

	_, err := svc.CreateField(context.Background(), tc, builder, uuid.New(), CreateFieldInput{Key: "x", Label: "X", Kind: "json"})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.CreateField(context.Background(), tc, builder, uuid.New(), CreateFieldInput{
		Key: "x", Label: "X", Kind: "text", ACL: ACLInput{Read: []string{"owner"}},
	})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.CreateField(context.Background(), tc, builder, uuid.New(), CreateFieldInput{Key: "x", Label: "X", Kind: "text"})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCreateRelationFieldRequiresTargetInTenant(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	missing := uuid.New()
	repo := &mockRepository{
		getEntityTypeFn: func(ctx context.Context, tc tenant.Context, id uuid.UUID) (metadata.EntityType, error) {
			if id == missing {
				return metadata.EntityType{}, persistence.ErrEntityTypeNotFound
			}
			return existingEntityType(ctx, tc, id)
		},
	}
	svc := New(repo, &recordingEnqueuer{}, nil)

	_, err := svc.CreateField(context.Background(), tenant.New(uuid.New()), builder, owner, CreateFieldInput{
		Key:     "owner",
		Label:   "Owner",
		Kind:    "relation",
		Options: json.RawMessage(`{"targetEntityTypeId":"` + missing.String() + `"}`),
	})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestUpdateFieldRejectsKindChange(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{
		getFieldDefFn: func(context.Context, tenant.Context, uuid.UUID) (metadata.FieldDef, error) {
			return metadata.FieldDef{Key: "budget", Kind: metadata.KindNumber, Constraints: metadata.NumberConstraints{}, Active: true}, nil
		},
	}
	svc := New(repo, &recordingEnqueuer{}, nil)

	kind := "text"
	_, err := svc.UpdateField(context.Background(), tenant.New(uuid.New()), builder, uuid.New(), UpdateFieldInput{Kind: &kind})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestUpdateFieldEnqueuesOnlyWhenIndexingIsTurnedOn(t *testing.T) {
	t.Parallel()

	fieldID := uuid.New()
	current := metadata.FieldDef{
		ID: fieldID, EntityTypeID: uuid.New(), Key: "budget", Kind: metadata.KindNumber,
		Constraints: metadata.NumberConstraints{}, Active: true,
	}
	repo := &mockRepository{
		getFieldDefFn: func(context.Context, tenant.Context, uuid.UUID) (metadata.FieldDef, error) { return current, nil },
		updateFieldDefFn: func(_ context.Context, _ tenant.Context, def metadata.FieldDef) (metadata.FieldDef, error) {
			return def, nil
		},
	}
	enqueuer := &recordingEnqueuer{}
	svc := New(repo, enqueuer, nil)
	tc := tenant.New(uuid.New())

	label := "Budget (EUR)"
	_, err := svc.UpdateField(context.Background(), tc, builder, fieldID, UpdateFieldInput{Label: &label})
	require.NoError(t, err)
	require.Empty(t, enqueuer.calls)

	on := true
	updated, err := svc.UpdateField(context.Background(), tc, builder, fieldID, UpdateFieldInput{Indexed: &on})
	require.NoError(t, err)
	require.True(t, updated.Indexed)
	require.Equal(t, []uuid.UUID{fieldID}, enqueuer.calls)

	// already indexed: no new job
	current.Indexed = true
	_, err = svc.UpdateField(context.Background(), tc, builder, fieldID, UpdateFieldInput{Indexed: &on})
	require.NoError(t, err)
	require.Len(t, enqueuer.calls, 1)
}

func TestCreateIndexedFieldClearsFlagWhenEnqueueFails(t *testing.T) {
	t.Parallel()

	var stored metadata.FieldDef
	repo := &mockRepository{
		getEntityTypeFn: existingEntityType,
		createFieldDefFn: func(_ context.Context, _ tenant.Context, def metadata.FieldDef) (metadata.FieldDef, error) {
			stored = def
			return def, nil
		},
		updateFieldDefFn: func(_ context.Context, _ tenant.Context, def metadata.FieldDef) (metadata.FieldDef, error) {
			stored = def
			return def, nil
		},
	}
	enqueuer := &recordingEnqueuer{err: errors.New("db down")}
	svc := New(repo, enqueuer, nil)

	_, err := svc.CreateField(context.Background(), tenant.New(uuid.New()), builder, uuid.New(), CreateFieldInput{
		Key: "budget", Label: "Budget", Kind: "number", Indexed: true,
	})
	require.ErrorContains(t, err, "db down")
	require.Len(t, enqueuer.calls, 1)
	require.Equal(t, "budget", stored.Key)
	require.False(t, stored.Indexed)
}

func TestUpdateFieldEnqueuesIndexedFieldWithoutJob(t *testing.T) {
	t.Parallel()

	var stored metadata.FieldDef
	repo := &mockRepository{
		getEntityTypeFn: existingEntityType,
		createFieldDefFn: func(_ context.Context, _ tenant.Context, def metadata.FieldDef) (metadata.FieldDef, error) {
			stored = def
			return def, nil
		},
		getFieldDefFn: func(context.Context, tenant.Context, uuid.UUID) (metadata.FieldDef, error) { return stored, nil },
		updateFieldDefFn: func(_ context.Context, _ tenant.Context, def metadata.FieldDef) (metadata.FieldDef, error) {
			return metadata.FieldDef{}, errors.New("db down")
		},
	}
	enqueuer := &recordingEnqueuer{err: errors.New("db down")}
	svc := New(repo, enqueuer, nil)
	tc := tenant.New(uuid.New())

	// neither the job nor the flag rollback could be written
	_, err := svc.CreateField(context.Background(), tc, builder, uuid.New(), CreateFieldInput{
		Key: "budget", Label: "Budget", Kind: "number", Indexed: true,
	})
	require.ErrorContains(t, err, "enqueue index for field budget")
	require.ErrorContains(t, err, "clear indexed flag")
	require.True(t, stored.Indexed)

	enqueuer.err = nil
	repo.updateFieldDefFn = func(_ context.Context, _ tenant.Context, def metadata.FieldDef) (metadata.FieldDef, error) {
		return def, nil
	}

	on := true
	_, err = svc.UpdateField(context.Background(), tc, builder, stored.ID, UpdateFieldInput{Indexed: &on})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{stored.ID, stored.ID}, enqueuer.calls)

	// the job now exists: repeating the request is a no-op
	_, err = svc.UpdateField(context.Background(), tc, builder, stored.ID, UpdateFieldInput{Indexed: &on})
	require.NoError(t, err)
	require.Len(t, enqueuer.calls, 2)
}

func TestUpdateFieldMergesConstraintPayloads(t *testing.T) {
	t.Parallel()

	current := metadata.FieldDef{
		Key: "status", Kind: metadata.KindSelect, Active: true,
		Constraints: metadata.SelectConstraints{Options: []string{"open", "closed"}},
	}
	repo := &mockRepository{
		getFieldDefFn: func(context.Context, tenant.Context, uuid.UUID) (metadata.FieldDef, error) { return current, nil },
		updateFieldDefFn: func(_ context.Context, _ tenant.Context, def metadata.FieldDef) (metadata.FieldDef, error) {
			return def, nil
		},
	}
	svc := New(repo, &recordingEnqueuer{}, nil)

	updated, err := svc.UpdateField(context.Background(), tenant.New(uuid.New()), builder, uuid.New(), UpdateFieldInput{
		Options: json.RawMessage(`{"values":["open","closed","archived"]}`),
	})
	require.NoError(t, err)
	require.Equal(t, metadata.SelectConstraints{Options: []string{"open", "closed", "archived"}}, updated.Constraints)

	_, err = svc.UpdateField(context.Background(), tenant.New(uuid.New()), builder, uuid.New(), UpdateFieldInput{
		Options: json.RawMessage(`{"values":[]}`),
	})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}
