package service

import (
	"context"
	"encoding/base64"
	"errors"
	"strconv"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-records/domains/records/be/repo"
	"github.com/zenGate-Global/palmyra-records/platform/go/access"
	"github.com/zenGate-Global/palmyra-records/platform/go/apperrors"
	"github.com/zenGate-Global/palmyra-records/platform/go/events"
	"github.com/zenGate-Global/palmyra-records/platform/go/filter"
	"github.com/zenGate-Global/palmyra-records/platform/go/metadata"
	"github.com/zenGate-Global/palmyra-records/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-records/platform/go/tenant"
	"github.com/zenGate-Global/palmyra-records/platform/go/validation"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// SchemaValidator validates payloads against field definitions.
type SchemaValidator interface {
	Validate(ctx context.Context, entityTypeID uuid.UUID, fields []metadata.FieldDef, data map[string]any, mode validation.Mode) (map[string]any, error)
}

// CreateInput describes a new record.
type CreateInput struct {
	EntityTypeID uuid.UUID      `json:"entityTypeId"`
	Data         map[string]any `json:"data"`
}

// UpdateInput is a patch guarded by the version the caller last read.
type UpdateInput struct {
	ExpectedVersion int            `json:"expectedVersion"`
	Patch           map[string]any `json:"patch"`
}

// SearchInput selects a page of records of one entity type.
type SearchInput struct {
	EntityTypeID uuid.UUID      `json:"entityTypeId"`
	Filter       *filter.Filter `json:"filter,omitempty"`
	Sort         string         `json:"sort,omitempty"`
	Limit        int            `json:"limit,omitempty"`
	Cursor       string         `json:"cursor,omitempty"`
}

// SearchResult is one page of readable records.
type SearchResult struct {
	Items      []persistence.Record `json:"items"`
	Total      int                  `json:"total"`
	NextCursor *string              `json:"nextCursor"`
}

// Service exposes record operations. Every operation checks the action permission before
// touching storage and returns records with unreadable fields removed.
type Service interface {
	Create(ctx context.Context, tc tenant.Context, user access.Identity, input CreateInput) (persistence.Record, error)
	Get(ctx context.Context, tc tenant.Context, user access.Identity, id uuid.UUID) (persistence.Record, error)
	Update(ctx context.Context, tc tenant.Context, user access.Identity, id uuid.UUID, input UpdateInput) (persistence.Record, error)
	Search(ctx context.Context, tc tenant.Context, user access.Identity, input SearchInput) (SearchResult, error)
}

type service struct {
	repo      repo.Repository
	validator SchemaValidator
	emitter   *events.Emitter
}

// New constructs a Service. The emitter may be nil.
func New(repository repo.Repository, validator SchemaValidator, emitter *events.Emitter) Service {
	if repository == nil {
		panic("records repository is required")
	}
	if validator == nil {
		panic("schema validator is required")
	}
	return &service{repo: repository, validator: validator, emitter: emitter}
}

func (s *service) Create(ctx context.Context, tc tenant.Context, user access.Identity, input CreateInput) (persistence.Record, error) {
	if err := authorize(user, access.RecordCreate); err != nil {
		return persistence.Record{}, err
	}

	fields, err := s.repo.Fields(ctx, tc, input.EntityTypeID)
	if err != nil {
		return persistence.Record{}, translateError(err)
	}
	set := metadata.NewFieldSet(fields)

	if forbidden := access.CheckWritePermissions(user, set, input.Data); len(forbidden) > 0 {
		return persistence.Record{}, &apperrors.ForbiddenError{Action: access.RecordCreate, Fields: forbidden}
	}

	data, err := s.validator.Validate(ctx, input.EntityTypeID, fields, input.Data, validation.ModeFull)
	if err != nil {
		return persistence.Record{}, err
	}

	rec, err := s.repo.Create(ctx, tc, persistence.CreateRecordParams{
		ID:           uuid.New(),
		EntityTypeID: input.EntityTypeID,
		Data:         data,
		Actor:        user.GetID(),
		UniqueKeys:   uniqueKeys(fields),
	})
	if err != nil {
		return persistence.Record{}, translateError(err)
	}

	s.emitter.Emit(ctx, tc, events.Event{
		Type:         events.RecordCreated,
		EntityTypeID: events.Ref(rec.EntityTypeID),
		RecordID:     events.Ref(rec.ID),
		Version:      rec.Version,
		Actor:        user.GetID(),
	})
	return readable(user, set, rec), nil
}

func (s *service) Get(ctx context.Context, tc tenant.Context, user access.Identity, id uuid.UUID) (persistence.Record, error) {
	if err := authorize(user, access.RecordRead); err != nil {
		return persistence.Record{}, err
	}

	rec, err := s.repo.Get(ctx, tc, id)
	if err != nil {
		return persistence.Record{}, translateError(err)
	}
	fields, err := s.repo.Fields(ctx, tc, rec.EntityTypeID)
	if err != nil {
		return persistence.Record{}, translateError(err)
	}
	return readable(user, metadata.NewFieldSet(fields), rec), nil
}

func (s *service) Update(ctx context.Context, tc tenant.Context, user access.Identity, id uuid.UUID, input UpdateInput) (persistence.Record, error) {
	if err := authorize(user, access.RecordUpdate); err != nil {
		return persistence.Record{}, err
	}
	if input.ExpectedVersion < 1 {
		return persistence.Record{}, apperrors.BadRequest("expectedVersion must be at least 1")
	}

	current, err := s.repo.Get(ctx, tc, id)
	if err != nil {
		return persistence.Record{}, translateError(err)
	}
	fields, err := s.repo.Fields(ctx, tc, current.EntityTypeID)
	if err != nil {
		return persistence.Record{}, translateError(err)
	}
	set := metadata.NewFieldSet(fields)

	if forbidden := access.CheckWritePermissions(user, set, input.Patch); len(forbidden) > 0 {
		return persistence.Record{}, &apperrors.ForbiddenError{Action: access.RecordUpdate, Fields: forbidden}
	}

	patch, err := s.validator.Validate(ctx, current.EntityTypeID, fields, input.Patch, validation.ModePartial)
	if err != nil {
		return persistence.Record{}, err
	}

	rec, err := s.repo.Update(ctx, tc, persistence.UpdateRecordParams{
		ID:              id,
		EntityTypeID:    current.EntityTypeID,
		ExpectedVersion: input.ExpectedVersion,
		Patch:           patch,
		Actor:           user.GetID(),
		UniqueKeys:      uniqueKeys(fields),
	})
	if err != nil {
		return persistence.Record{}, translateError(err)
	}

	s.emitter.Emit(ctx, tc, events.Event{
		Type:         events.RecordUpdated,
		EntityTypeID: events.Ref(rec.EntityTypeID),
		RecordID:     events.Ref(rec.ID),
		Version:      rec.Version,
		Actor:        user.GetID(),
	})
	return readable(user, set, rec), nil
}

func (s *service) Search(ctx context.Context, tc tenant.Context, user access.Identity, input SearchInput) (SearchResult, error) {
	if err := authorize(user, access.RecordRead); err != nil {
		return SearchResult{}, err
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err := DecodeCursor(input.Cursor)
	if err != nil {
		return SearchResult{}, err
	}

	fields, err := s.repo.Fields(ctx, tc, input.EntityTypeID)
	if err != nil {
		return SearchResult{}, translateError(err)
	}
	set := metadata.NewFieldSet(fields)

	// Predicates and ordering only see fields the caller may read, so neither can be
	// used to probe hidden values.
	visible := readableFields(user, fields)

	predicate, err := filter.Compile(input.Filter, visible, persistence.SearchPredicateStart)
	if err != nil {
		return SearchResult{}, err
	}
	sort, err := filter.ParseSort(input.Sort, visible)
	if err != nil {
		return SearchResult{}, err
	}

	records, total, err := s.repo.Search(ctx, tc, persistence.SearchRecordsParams{
		EntityTypeID: input.EntityTypeID,
		Predicate:    predicate,
		Sort:         sort,
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		return SearchResult{}, translateError(err)
	}

	items := make([]persistence.Record, 0, len(records))
	for _, rec := range records {
		items = append(items, readable(user, set, rec))
	}

	result := SearchResult{Items: items, Total: total}
	if next := offset + len(records); next < total {
		cursor := EncodeCursor(next)
		result.NextCursor = &cursor
	}
	return result, nil
}

// EncodeCursor renders an offset as an opaque page cursor.
func EncodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

// DecodeCursor parses a cursor produced by EncodeCursor; empty means the first page.
func DecodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, apperrors.BadRequest("invalid cursor")
	}
	offset, err := strconv.Atoi(string(raw))
	if err != nil || offset < 0 {
		return 0, apperrors.BadRequest("invalid cursor")
	}
	return offset, nil
}

func readable(user access.Identity, set metadata.FieldSet, rec persistence.Record) persistence.Record {
	rec.Data = access.FilterReadableFields(user, set, rec.Data)
	return rec
}

func readableFields(user access.Identity, fields []metadata.FieldDef) metadata.FieldSet {
	out := make([]metadata.FieldDef, 0, len(fields))
	for _, f := range fields {
		if access.CanRead(user, f) {
			out = append(out, f)
		}
	}
	return metadata.NewFieldSet(out)
}

func authorize(user access.Identity, action string) error {
	if !access.HasPermission(user, action) {
		return &apperrors.ForbiddenError{Action: action}
	}
	return nil
}

func uniqueKeys(fields []metadata.FieldDef) []string {
	var keys []string
	for _, f := range fields {
		if f.UniqueWithinType && f.Active {
			keys = append(keys, f.Key)
		}
	}
	return keys
}

func translateError(err error) error {
	var unique *persistence.UniqueValueError
	if errors.As(err, &unique) {
		return apperrors.Conflict("%s", unique.Error())
	}
	switch {
	case errors.Is(err, persistence.ErrEntityTypeNotFound):
		return apperrors.NotFound("entity type")
	case errors.Is(err, persistence.ErrRecordNotFound):
		return apperrors.NotFound("record")
	case errors.Is(err, persistence.ErrVersionConflict):
		return apperrors.Conflict("record was modified concurrently; reload and retry")
	default:
		return err
	}
}
