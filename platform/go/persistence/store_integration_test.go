package persistence

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-records/platform/go/filter"
	"github.com/zenGate-Global/palmyra-records/platform/go/metadata"
)

func floatPtr(v float64) *float64 { return &v }

func TestMetadataStore(t *testing.T) {
	ctx, pool := startPostgres(t)
	db := NewTenantDB(TenantDBConfig{Pool: pool})
	tc := seedTenant(t, ctx, db, "acme")
	store := NewMetadataStore(db)

	project, err := store.CreateEntityType(ctx, tc, CreateEntityTypeParams{Key: "project", Label: "Project"})
	require.NoError(t, err)

	_, err = store.CreateEntityType(ctx, tc, CreateEntityTypeParams{Key: "project", Label: "Again"})
	require.ErrorIs(t, err, ErrMetadataConflict)

	byKey, err := store.GetEntityTypeByKey(ctx, tc, "project")
	require.NoError(t, err)
	require.Equal(t, project.ID, byKey.ID)

	label := "Projects"
	updated, err := store.UpdateEntityType(ctx, tc, project.ID, UpdateEntityTypeParams{Label: &label})
	require.NoError(t, err)
	require.Equal(t, "Projects", updated.Label)

	budget, err := store.CreateFieldDef(ctx, tc, metadata.FieldDef{
		EntityTypeID: project.ID,
		Key:          "budget",
		Label:        "Budget",
		Kind:         metadata.KindNumber,
		Constraints:  metadata.NumberConstraints{Min: floatPtr(0)},
		ACL:          metadata.ACL{Read: []string{"viewer"}, Write: []string{"contributor"}},
		Active:       true,
	})
	require.NoError(t, err)
	require.Equal(t, metadata.NumberConstraints{Min: floatPtr(0)}, budget.Constraints)
	require.Equal(t, []string{"viewer"}, budget.ACL.Read)

	budget.Active = false
	budget.Indexed = true
	_, err = store.UpdateFieldDef(ctx, tc, budget)
	require.NoError(t, err)

	active, err := store.ListFieldDefs(ctx, tc, project.ID, true)
	require.NoError(t, err)
	require.Empty(t, active)

	all, err := store.ListFieldDefs(ctx, tc, project.ID, false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.True(t, all[0].Indexed)

	// another tenant sees nothing
	other := seedTenant(t, ctx, db, "globex")
	_, err = store.GetEntityType(ctx, other, project.ID)
	require.ErrorIs(t, err, ErrEntityTypeNotFound)
	_, err = store.GetFieldDef(ctx, other, budget.ID)
	require.ErrorIs(t, err, ErrFieldDefNotFound)
}

func TestRecordStoreOptimisticConcurrency(t *testing.T) {
	ctx, pool := startPostgres(t)
	db := NewTenantDB(TenantDBConfig{Pool: pool})
	tc := seedTenant(t, ctx, db, "acme")

	project, err := NewMetadataStore(db).CreateEntityType(ctx, tc, CreateEntityTypeParams{Key: "project", Label: "Project"})
	require.NoError(t, err)

	records := NewRecordStore(db)
	rec, err := records.CreateRecord(ctx, tc, CreateRecordParams{
		EntityTypeID: project.ID,
		Data:         map[string]any{"title": "Apollo", "budget": 100},
		Actor:        "user-1",
	})
	require.NoError(t, err)
	require.Equal(t, 1, rec.Version)

	updated, err := records.UpdateRecord(ctx, tc, UpdateRecordParams{
		ID: rec.ID, ExpectedVersion: 1, Patch: map[string]any{"budget": 200}, Actor: "user-2",
	})
	require.NoError(t, err)
	require.Equal(t, 2, updated.Version)
	require.Equal(t, float64(200), updated.Data["budget"])
	require.Equal(t, "Apollo", updated.Data["title"], "patch overlays top-level keys only")
	require.Equal(t, "user-2", updated.UpdatedBy)

	_, err = records.UpdateRecord(ctx, tc, UpdateRecordParams{
		ID: rec.ID, ExpectedVersion: 1, Patch: map[string]any{"budget": 300}, Actor: "user-3",
	})
	require.ErrorIs(t, err, ErrVersionConflict)

	_, err = records.UpdateRecord(ctx, tc, UpdateRecordParams{
		ID: uuid.New(), ExpectedVersion: 1, Patch: map[string]any{"budget": 300},
	})
	require.ErrorIs(t, err, ErrRecordNotFound)

	other := seedTenant(t, ctx, db, "globex")
	_, err = records.GetRecord(ctx, other, rec.ID)
	require.ErrorIs(t, err, ErrRecordNotFound)
	_, err = records.UpdateRecord(ctx, other, UpdateRecordParams{ID: rec.ID, ExpectedVersion: 2, Patch: map[string]any{}})
	require.ErrorIs(t, err, ErrRecordNotFound)

	stored, err := records.GetRecord(ctx, tc, rec.ID)
	require.NoError(t, err)
	require.Equal(t, 2, stored.Version)
}

func TestRecordStoreUniqueValues(t *testing.T) {
	ctx, pool := startPostgres(t)
	db := NewTenantDB(TenantDBConfig{Pool: pool})
	tc := seedTenant(t, ctx, db, "acme")

	meta := NewMetadataStore(db)
	project, err := meta.CreateEntityType(ctx, tc, CreateEntityTypeParams{Key: "project", Label: "Project"})
	require.NoError(t, err)
	program, err := meta.CreateEntityType(ctx, tc, CreateEntityTypeParams{Key: "program", Label: "Program"})
	require.NoError(t, err)

	records := NewRecordStore(db)
	unique := []string{"code"}
	apollo, err := records.CreateRecord(ctx, tc, CreateRecordParams{
		EntityTypeID: project.ID, Data: map[string]any{"code": "AP-1", "title": "Apollo"}, UniqueKeys: unique,
	})
	require.NoError(t, err)

	_, err = records.CreateRecord(ctx, tc, CreateRecordParams{
		EntityTypeID: project.ID, Data: map[string]any{"code": "AP-1", "title": "Artemis"}, UniqueKeys: unique,
	})
	require.ErrorIs(t, err, ErrUniqueValueTaken)
	var uniqueErr *UniqueValueError
	require.ErrorAs(t, err, &uniqueErr)
	require.Equal(t, "code", uniqueErr.Field)

	// scoped to the entity type, and null values never collide
	_, err = records.CreateRecord(ctx, tc, CreateRecordParams{
		EntityTypeID: program.ID, Data: map[string]any{"code": "AP-1"}, UniqueKeys: unique,
	})
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = records.CreateRecord(ctx, tc, CreateRecordParams{
			EntityTypeID: project.ID, Data: map[string]any{"code": nil}, UniqueKeys: unique,
		})
		require.NoError(t, err)
	}

	artemis, err := records.CreateRecord(ctx, tc, CreateRecordParams{
		EntityTypeID: project.ID, Data: map[string]any{"code": "AR-2"}, UniqueKeys: unique,
	})
	require.NoError(t, err)

	_, err = records.UpdateRecord(ctx, tc, UpdateRecordParams{
		ID: artemis.ID, EntityTypeID: project.ID, ExpectedVersion: 1, Patch: map[string]any{"code": "AP-1"}, UniqueKeys: unique,
	})
	require.ErrorIs(t, err, ErrUniqueValueTaken)

	// rewriting its own value is not a collision
	_, err = records.UpdateRecord(ctx, tc, UpdateRecordParams{
		ID: apollo.ID, EntityTypeID: project.ID, ExpectedVersion: 1, Patch: map[string]any{"code": "AP-1"}, UniqueKeys: unique,
	})
	require.NoError(t, err)
}

func TestRecordStoreSearch(t *testing.T) {
	ctx, pool := startPostgres(t)
	db := NewTenantDB(TenantDBConfig{Pool: pool})
	tc := seedTenant(t, ctx, db, "acme")

	meta := NewMetadataStore(db)
	project, err := meta.CreateEntityType(ctx, tc, CreateEntityTypeParams{Key: "project", Label: "Project"})
	require.NoError(t, err)
	budget, err := meta.CreateFieldDef(ctx, tc, metadata.FieldDef{
		EntityTypeID: project.ID, Key: "budget", Label: "Budget", Kind: metadata.KindNumber,
		Constraints: metadata.NumberConstraints{}, Searchable: true, Active: true,
	})
	require.NoError(t, err)
	fields := metadata.NewFieldSet([]metadata.FieldDef{budget})

	records := NewRecordStore(db)
	for _, b := range []int{50, 150, 250, 350} {
		_, err := records.CreateRecord(ctx, tc, CreateRecordParams{EntityTypeID: project.ID, Data: map[string]any{"budget": b}})
		require.NoError(t, err)
	}

	predicate, err := filter.Compile(&filter.Filter{Op: filter.OpGte, Field: "budget", Value: 100}, fields, SearchPredicateStart)
	require.NoError(t, err)
	sort, err := filter.ParseSort("-budget", fields)
	require.NoError(t, err)

	page, total, err := records.SearchRecords(ctx, tc, SearchRecordsParams{
		EntityTypeID: project.ID, Predicate: predicate, Sort: sort, Limit: 2, Offset: 0,
	})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, page, 2)
	require.Equal(t, float64(350), page[0].Data["budget"])
	require.Equal(t, float64(250), page[1].Data["budget"])

	rest, _, err := records.SearchRecords(ctx, tc, SearchRecordsParams{
		EntityTypeID: project.ID, Predicate: predicate, Sort: sort, Limit: 2, Offset: 2,
	})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, float64(150), rest[0].Data["budget"])
}

func TestEdgeStore(t *testing.T) {
	ctx, pool := startPostgres(t)
	db := NewTenantDB(TenantDBConfig{Pool: pool})
	tc := seedTenant(t, ctx, db, "acme")

	meta := NewMetadataStore(db)
	project, err := meta.CreateEntityType(ctx, tc, CreateEntityTypeParams{Key: "project", Label: "Project"})
	require.NoError(t, err)
	person, err := meta.CreateEntityType(ctx, tc, CreateEntityTypeParams{Key: "person", Label: "Person"})
	require.NoError(t, err)

	members, err := meta.CreateFieldDef(ctx, tc, metadata.FieldDef{
		EntityTypeID: project.ID, Key: "members", Label: "Members", Kind: metadata.KindRelation,
		Constraints: metadata.RelationConstraints{TargetEntityTypeID: person.ID, Cardinality: metadata.CardinalityMany},
		Active:      true,
	})
	require.NoError(t, err)

	records := NewRecordStore(db)
	apollo, err := records.CreateRecord(ctx, tc, CreateRecordParams{EntityTypeID: project.ID, Data: map[string]any{"title": "Apollo"}})
	require.NoError(t, err)
	gemini, err := records.CreateRecord(ctx, tc, CreateRecordParams{EntityTypeID: project.ID, Data: map[string]any{"title": "Gemini"}})
	require.NoError(t, err)
	ada, err := records.CreateRecord(ctx, tc, CreateRecordParams{EntityTypeID: person.ID, Data: map[string]any{"name": "Ada"}})
	require.NoError(t, err)
	grace, err := records.CreateRecord(ctx, tc, CreateRecordParams{EntityTypeID: person.ID, Data: map[string]any{"name": "Grace"}})
	require.NoError(t, err)

	edges := NewEdgeStore(db)
	edge, err := edges.InsertEdge(ctx, tc, InsertEdgeParams{FieldID: members.ID, FromID: apollo.ID, ToID: ada.ID, Actor: "user-1"})
	require.NoError(t, err)

	_, err = edges.InsertEdge(ctx, tc, InsertEdgeParams{FieldID: members.ID, FromID: apollo.ID, ToID: ada.ID})
	require.ErrorIs(t, err, ErrEdgeExists)

	// target must be a person
	_, err = edges.InsertEdge(ctx, tc, InsertEdgeParams{FieldID: members.ID, FromID: apollo.ID, ToID: gemini.ID})
	require.ErrorIs(t, err, ErrEdgeRejected)

	views, err := edges.ListEdges(ctx, tc, ListEdgesParams{RecordID: ada.ID, Direction: DirectionTo})
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, "members", views[0].FieldKey)
	require.Equal(t, apollo.ID, views[0].RelatedRecordID)
	require.Equal(t, "Apollo", views[0].RelatedData["title"])

	replaced, err := edges.ReplaceEdges(ctx, tc, ReplaceEdgesParams{
		FieldID: members.ID, FromID: apollo.ID, ToIDs: []uuid.UUID{grace.ID}, Actor: "user-1",
	})
	require.NoError(t, err)
	require.Len(t, replaced, 1)

	_, err = edges.DeleteEdge(ctx, tc, edge.ID)
	require.ErrorIs(t, err, ErrEdgeNotFound, "replace removed the original edge")

	// a failing replace leaves the previous set intact
	_, err = edges.ReplaceEdges(ctx, tc, ReplaceEdgesParams{
		FieldID: members.ID, FromID: apollo.ID, ToIDs: []uuid.UUID{ada.ID, gemini.ID},
	})
	require.ErrorIs(t, err, ErrEdgeRejected)

	views, err = edges.ListEdges(ctx, tc, ListEdgesParams{RecordID: apollo.ID, Direction: DirectionFrom, FieldID: &members.ID})
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, grace.ID, views[0].ToRecordID)

	deleted, err := edges.DeleteEdge(ctx, tc, replaced[0].ID)
	require.NoError(t, err)
	require.Equal(t, grace.ID, deleted.ToRecordID)
}

func TestIndexJobStoreClaimProtocol(t *testing.T) {
	ctx, pool := startPostgres(t)
	db := NewTenantDB(TenantDBConfig{Pool: pool})
	tc := seedTenant(t, ctx, db, "acme")

	meta := NewMetadataStore(db)
	project, err := meta.CreateEntityType(ctx, tc, CreateEntityTypeParams{Key: "project", Label: "Project"})
	require.NoError(t, err)
	budget, err := meta.CreateFieldDef(ctx, tc, metadata.FieldDef{
		EntityTypeID: project.ID, Key: "budget", Label: "Budget", Kind: metadata.KindNumber,
		Constraints: metadata.NumberConstraints{}, Indexed: true, Active: true,
	})
	require.NoError(t, err)

	jobs := NewIndexJobStore(db)
	job, err := jobs.Upsert(ctx, tc, UpsertIndexJobParams{EntityTypeID: project.ID, FieldID: budget.ID, IndexName: "idx_fd_budget_test"})
	require.NoError(t, err)
	require.Equal(t, IndexJobPending, job.Status)

	oldest, err := jobs.OldestPending(ctx)
	require.NoError(t, err)
	require.Equal(t, job.ID, oldest.ID)

	claimed, err := jobs.Claim(ctx, job.ID, -time.Second)
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = jobs.Claim(ctx, job.ID, -time.Second)
	require.NoError(t, err)
	require.False(t, claimed, "a claimed job cannot be claimed twice")

	// a negative lease has already expired
	swept, err := jobs.SweepExpiredLeases(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, swept)

	claimed, err = jobs.Claim(ctx, job.ID, -time.Second)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, jobs.MarkFailed(ctx, job.ID, "boom"))

	failed, err := jobs.Get(ctx, tc, job.ID)
	require.NoError(t, err)
	require.Equal(t, IndexJobFailed, failed.Status)
	require.Equal(t, 2, failed.Attempts)
	require.Equal(t, "boom", *failed.LastError)
	require.Equal(t, "budget", failed.FieldKey)

	again, err := jobs.Upsert(ctx, tc, UpsertIndexJobParams{EntityTypeID: project.ID, FieldID: budget.ID, IndexName: "ignored"})
	require.NoError(t, err)
	require.Equal(t, job.ID, again.ID)
	require.Equal(t, "idx_fd_budget_test", again.IndexName)
	require.Equal(t, 0, again.Attempts)
	require.Nil(t, again.LastError)

	listed, err := jobs.List(ctx, tc, &project.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	byField, err := jobs.GetByField(ctx, tc, budget.ID)
	require.NoError(t, err)
	require.Equal(t, job.ID, byField.ID)

	_, err = jobs.GetByField(ctx, tc, uuid.New())
	require.ErrorIs(t, err, ErrIndexJobNotFound)

	// a re-enqueue while the build runs leaves the worker's completion without effect
	claimed, err = jobs.Claim(ctx, job.ID, time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)
	_, err = jobs.Upsert(ctx, tc, UpsertIndexJobParams{EntityTypeID: project.ID, FieldID: budget.ID, IndexName: "ignored"})
	require.NoError(t, err)
	require.ErrorIs(t, jobs.MarkReady(ctx, job.ID), ErrIndexJobSuperseded)
	require.ErrorIs(t, jobs.MarkReady(ctx, uuid.New()), ErrIndexJobNotFound)

	requeued, err := jobs.Get(ctx, tc, job.ID)
	require.NoError(t, err)
	require.Equal(t, IndexJobPending, requeued.Status)

	exists, _, err := jobs.IndexState(ctx, "idx_fd_budget_test")
	require.NoError(t, err)
	require.False(t, exists)
}
