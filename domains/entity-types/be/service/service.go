package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-records/domains/entity-types/be/repo"
	"github.com/zenGate-Global/palmyra-records/platform/go/access"
	"github.com/zenGate-Global/palmyra-records/platform/go/apperrors"
	"github.com/zenGate-Global/palmyra-records/platform/go/events"
	"github.com/zenGate-Global/palmyra-records/platform/go/metadata"
	"github.com/zenGate-Global/palmyra-records/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-records/platform/go/tenant"
	"github.com/zenGate-Global/palmyra-records/platform/go/validation"
)

// IndexEnqueuer queues index builds for fields that become indexed.
type IndexEnqueuer interface {
	Enqueue(ctx context.Context, tc tenant.Context, entityTypeID, fieldID uuid.UUID) (persistence.IndexJob, error)
	JobForField(ctx context.Context, tc tenant.Context, fieldID uuid.UUID) (persistence.IndexJob, error)
}

// CreateEntityTypeInput describes a new entity type.
type CreateEntityTypeInput struct {
	Key         string  `json:"key" validate:"required,metakey"`
	Label       string  `json:"label" validate:"required,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

// UpdateEntityTypeInput lists the mutable entity type attributes. Key is accepted only so
// that an attempted change can be rejected explicitly.
type UpdateEntityTypeInput struct {
	Key         *string `json:"key"`
	Label       *string `json:"label" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

// ACLInput is the wire ACL with role names checked.
type ACLInput struct {
	Read  []string `json:"read" validate:"dive,oneof=admin builder contributor viewer"`
	Write []string `json:"write" validate:"dive,oneof=admin builder contributor viewer"`
}

// CreateFieldInput describes a new field definition.
type CreateFieldInput struct {
	Key              string          `json:"key" validate:"required,metakey"`
	Label            string          `json:"label" validate:"required,max=200"`
	Kind             string          `json:"kind" validate:"required,fieldkind"`
	Required         bool            `json:"required"`
	UniqueWithinType bool            `json:"uniqueWithinType"`
	Searchable       bool            `json:"searchable"`
	Indexed          bool            `json:"indexed"`
	Options          json.RawMessage `json:"options"`
	Validate         json.RawMessage `json:"validate"`
	ACL              ACLInput        `json:"acl"`
	Position         int             `json:"position" validate:"gte=0"`
}

// UpdateFieldInput lists the mutable field attributes; nil leaves a value unchanged.
// Key and Kind are immutable and rejected when they differ from the stored value.
type UpdateFieldInput struct {
	Key              *string         `json:"key"`
	Kind             *string         `json:"kind"`
	Label            *string         `json:"label" validate:"omitempty,min=1,max=200"`
	Required         *bool           `json:"required"`
	UniqueWithinType *bool           `json:"uniqueWithinType"`
	Searchable       *bool           `json:"searchable"`
	Indexed          *bool           `json:"indexed"`
	Options          json.RawMessage `json:"options"`
	Validate         json.RawMessage `json:"validate"`
	ACL              *ACLInput       `json:"acl"`
	Position         *int            `json:"position" validate:"omitempty,gte=0"`
	Active           *bool           `json:"active"`
}

// Service manages entity types and their field definitions.
type Service interface {
	CreateEntityType(ctx context.Context, tc tenant.Context, user access.Identity, input CreateEntityTypeInput) (metadata.EntityType, error)
	GetEntityType(ctx context.Context, tc tenant.Context, user access.Identity, id uuid.UUID) (metadata.EntityType, error)
	ListEntityTypes(ctx context.Context, tc tenant.Context, user access.Identity) ([]metadata.EntityType, error)
	UpdateEntityType(ctx context.Context, tc tenant.Context, user access.Identity, id uuid.UUID, input UpdateEntityTypeInput) (metadata.EntityType, error)
	CreateField(ctx context.Context, tc tenant.Context, user access.Identity, entityTypeID uuid.UUID, input CreateFieldInput) (metadata.FieldDef, error)
	GetField(ctx context.Context, tc tenant.Context, user access.Identity, id uuid.UUID) (metadata.FieldDef, error)
	ListFields(ctx context.Context, tc tenant.Context, user access.Identity, entityTypeID uuid.UUID, includeInactive bool) ([]metadata.FieldDef, error)
	UpdateField(ctx context.Context, tc tenant.Context, user access.Identity, id uuid.UUID, input UpdateFieldInput) (metadata.FieldDef, error)
}

type service struct {
	repo     repo.Repository
	enqueuer IndexEnqueuer
	emitter  *events.Emitter
}

// New constructs a Service. The emitter may be nil.
func New(repository repo.Repository, enqueuer IndexEnqueuer, emitter *events.Emitter) Service {
	if repository == nil {
		panic("entity types repository is required")
	}
	if enqueuer == nil {
		panic("index enqueuer is required")
	}
	return &service{repo: repository, enqueuer: enqueuer, emitter: emitter}
}

func (s *service) CreateEntityType(ctx context.Context, tc tenant.Context, user access.Identity, input CreateEntityTypeInput) (metadata.EntityType, error) {
	if err := authorize(user, access.SchemaWrite); err != nil {
		return metadata.EntityType{}, err
	}
	if err := validation.Struct(input); err != nil {
		return metadata.EntityType{}, err
	}

	et, err := s.repo.CreateEntityType(ctx, tc, persistence.CreateEntityTypeParams{
		ID:          uuid.New(),
		Key:         input.Key,
		Label:       input.Label,
		Description: input.Description,
	})
	if err != nil {
		return metadata.EntityType{}, translateError(err)
	}

	s.emitter.Emit(ctx, tc, events.Event{Type: events.EntityTypeCreated, EntityTypeID: events.Ref(et.ID), Actor: user.GetID()})
	return et, nil
}

func (s *service) GetEntityType(ctx context.Context, tc tenant.Context, user access.Identity, id uuid.UUID) (metadata.EntityType, error) {
	if err := authorize(user, access.SchemaRead); err != nil {
		return metadata.EntityType{}, err
	}
	et, err := s.repo.GetEntityType(ctx, tc, id)
	if err != nil {
		return metadata.EntityType{}, translateError(err)
	}
	return et, nil
}

func (s *service) ListEntityTypes(ctx context.Context, tc tenant.Context, user access.Identity) ([]metadata.EntityType, error) {
	if err := authorize(user, access.SchemaRead); err != nil {
		return nil, err
	}
	items, err := s.repo.ListEntityTypes(ctx, tc)
	if err != nil {
		return nil, translateError(err)
	}
	return items, nil
}

func (s *service) UpdateEntityType(ctx context.Context, tc tenant.Context, user access.Identity, id uuid.UUID, input UpdateEntityTypeInput) (metadata.EntityType, error) {
	if err := authorize(user, access.SchemaWrite); err != nil {
		return metadata.EntityType{}, err
	}
	if err := validation.Struct(input); err != nil {
		return metadata.EntityType{}, err
	}

	if input.Key != nil {
		current, err := s.repo.GetEntityType(ctx, tc, id)
		if err != nil {
			return metadata.EntityType{}, translateError(err)
		}
		if *input.Key != current.Key {
			return metadata.EntityType{}, apperrors.BadRequest("entity type key is immutable")
		}
	}

	et, err := s.repo.UpdateEntityType(ctx, tc, id, persistence.UpdateEntityTypeParams{
		Label:       input.Label,
		Description: input.Description,
	})
	if err != nil {
		return metadata.EntityType{}, translateError(err)
	}

	s.emitter.Emit(ctx, tc, events.Event{Type: events.EntityTypeUpdated, EntityTypeID: events.Ref(et.ID), Actor: user.GetID()})
	return et, nil
}

func (s *service) CreateField(ctx context.Context, tc tenant.Context, user access.Identity, entityTypeID uuid.UUID, input CreateFieldInput) (metadata.FieldDef, error) {
	if err := authorize(user, access.SchemaWrite); err != nil {
		return metadata.FieldDef{}, err
	}
	if err := validation.Struct(input); err != nil {
		return metadata.FieldDef{}, err
	}

	if _, err := s.repo.GetEntityType(ctx, tc, entityTypeID); err != nil {
		return metadata.FieldDef{}, translateError(err)
	}

	kind, err := metadata.ParseKind(input.Kind)
	if err != nil {
		return metadata.FieldDef{}, apperrors.BadRequest("%v", err)
	}
	constraints, err := s.decodeConstraints(ctx, tc, kind, input.Options, input.Validate)
	if err != nil {
		return metadata.FieldDef{}, err
	}

	def, err := s.repo.CreateFieldDef(ctx, tc, metadata.FieldDef{
		ID:               uuid.New(),
		EntityTypeID:     entityTypeID,
		Key:              input.Key,
		Label:            input.Label,
		Kind:             kind,
		Required:         input.Required,
		UniqueWithinType: input.UniqueWithinType,
		Searchable:       input.Searchable,
		Indexed:          input.Indexed,
		Constraints:      constraints,
		ACL:              metadata.ACL{Read: input.ACL.Read, Write: input.ACL.Write},
		Position:         input.Position,
		Active:           true,
	})
	if err != nil {
		return metadata.FieldDef{}, translateError(err)
	}

	if def.Indexed {
		if _, err := s.enqueuer.Enqueue(ctx, tc, def.EntityTypeID, def.ID); err != nil {
			err = fmt.Errorf("enqueue index for field %s: %w", def.Key, err)
			// keep the field, but not flagged as indexed without a job behind it
			def.Indexed = false
			if _, revertErr := s.repo.UpdateFieldDef(ctx, tc, def); revertErr != nil {
				err = errors.Join(err, fmt.Errorf("clear indexed flag: %w", revertErr))
			}
			return metadata.FieldDef{}, err
		}
	}

	s.emitter.Emit(ctx, tc, events.Event{
		Type:         events.FieldDefCreated,
		EntityTypeID: events.Ref(def.EntityTypeID),
		FieldID:      events.Ref(def.ID),
		Actor:        user.GetID(),
	})
	return def, nil
}

func (s *service) GetField(ctx context.Context, tc tenant.Context, user access.Identity, id uuid.UUID) (metadata.FieldDef, error) {
	if err := authorize(user, access.SchemaRead); err != nil {
		return metadata.FieldDef{}, err
	}
	def, err := s.repo.GetFieldDef(ctx, tc, id)
	if err != nil {
		return metadata.FieldDef{}, translateError(err)
	}
	return def, nil
}

func (s *service) ListFields(ctx context.Context, tc tenant.Context, user access.Identity, entityTypeID uuid.UUID, includeInactive bool) ([]metadata.FieldDef, error) {
	if err := authorize(user, access.SchemaRead); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetEntityType(ctx, tc, entityTypeID); err != nil {
		return nil, translateError(err)
	}
	defs, err := s.repo.ListFieldDefs(ctx, tc, entityTypeID, !includeInactive)
	if err != nil {
		return nil, translateError(err)
	}
	return defs, nil
}

func (s *service) UpdateField(ctx context.Context, tc tenant.Context, user access.Identity, id uuid.UUID, input UpdateFieldInput) (metadata.FieldDef, error) {
	if err := authorize(user, access.SchemaWrite); err != nil {
		return metadata.FieldDef{}, err
	}
	if err := validation.Struct(input); err != nil {
		return metadata.FieldDef{}, err
	}

	current, err := s.repo.GetFieldDef(ctx, tc, id)
	if err != nil {
		return metadata.FieldDef{}, translateError(err)
	}
	if input.Kind != nil && metadata.Kind(*input.Kind) != current.Kind {
		return metadata.FieldDef{}, apperrors.BadRequest("field kind is immutable (%s)", current.Kind)
	}
	if input.Key != nil && *input.Key != current.Key {
		return metadata.FieldDef{}, apperrors.BadRequest("field key is immutable")
	}

	next := current
	if input.Label != nil {
		next.Label = *input.Label
	}
	if input.Required != nil {
		next.Required = *input.Required
	}
	if input.UniqueWithinType != nil {
		next.UniqueWithinType = *input.UniqueWithinType
	}
	if input.Searchable != nil {
		next.Searchable = *input.Searchable
	}
	if input.Indexed != nil {
		next.Indexed = *input.Indexed
	}
	if input.ACL != nil {
		next.ACL = metadata.ACL{Read: input.ACL.Read, Write: input.ACL.Write}
	}
	if input.Position != nil {
		next.Position = *input.Position
	}
	if input.Active != nil {
		next.Active = *input.Active
	}
	if input.Options != nil || input.Validate != nil {
		options, validate, err := metadata.EncodeConstraints(current.Constraints)
		if err != nil {
			return metadata.FieldDef{}, fmt.Errorf("encode current constraints: %w", err)
		}
		if input.Options != nil {
			options = input.Options
		}
		if input.Validate != nil {
			validate = input.Validate
		}
		next.Constraints, err = s.decodeConstraints(ctx, tc, current.Kind, options, validate)
		if err != nil {
			return metadata.FieldDef{}, err
		}
	}

	updated, err := s.repo.UpdateFieldDef(ctx, tc, next)
	if err != nil {
		return metadata.FieldDef{}, translateError(err)
	}

	needsJob, err := s.needsIndexJob(ctx, tc, current, updated, input.Indexed != nil)
	if err != nil {
		return metadata.FieldDef{}, err
	}
	if needsJob {
		if _, err := s.enqueuer.Enqueue(ctx, tc, updated.EntityTypeID, updated.ID); err != nil {
			return metadata.FieldDef{}, fmt.Errorf("enqueue index for field %s: %w", updated.Key, err)
		}
	}

	s.emitter.Emit(ctx, tc, events.Event{
		Type:         events.FieldDefUpdated,
		EntityTypeID: events.Ref(updated.EntityTypeID),
		FieldID:      events.Ref(updated.ID),
		Actor:        user.GetID(),
	})
	return updated, nil
}

// needsIndexJob reports whether an update must enqueue an index build: indexing was
// turned on, or indexed=true was requested again for a field whose job was never written.
func (s *service) needsIndexJob(ctx context.Context, tc tenant.Context, current, updated metadata.FieldDef, indexedRequested bool) (bool, error) {
	if !updated.Indexed {
		return false, nil
	}
	if !current.Indexed {
		return true, nil
	}
	if !indexedRequested {
		return false, nil
	}
	_, err := s.enqueuer.JobForField(ctx, tc, updated.ID)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, persistence.ErrIndexJobNotFound):
		return true, nil
	default:
		return false, fmt.Errorf("load index job for field %s: %w", updated.Key, err)
	}
}

// decodeConstraints turns the wire payloads into a constraint variant. Relation targets
// must be entity types of the same tenant.
func (s *service) decodeConstraints(ctx context.Context, tc tenant.Context, kind metadata.Kind, options, validate json.RawMessage) (metadata.Constraints, error) {
	constraints, err := metadata.DecodeConstraints(kind, options, validate)
	if err != nil {
		return nil, apperrors.BadRequest("invalid %s constraints: %v", kind, err)
	}

	if rel, ok := constraints.(metadata.RelationConstraints); ok {
		if _, err := s.repo.GetEntityType(ctx, tc, rel.TargetEntityTypeID); err != nil {
			if errors.Is(err, persistence.ErrEntityTypeNotFound) {
				return nil, apperrors.BadRequest("relation target entity type %s does not exist", rel.TargetEntityTypeID)
			}
			return nil, err
		}
	}
	return constraints, nil
}

func authorize(user access.Identity, action string) error {
	if !access.HasPermission(user, action) {
		return &apperrors.ForbiddenError{Action: action}
	}
	return nil
}

func translateError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrEntityTypeNotFound):
		return apperrors.NotFound("entity type")
	case errors.Is(err, persistence.ErrFieldDefNotFound):
		return apperrors.NotFound("field definition")
	case errors.Is(err, persistence.ErrMetadataConflict):
		return apperrors.Conflict("%v", err)
	case errors.Is(err, persistence.ErrMetadataRejected):
		return apperrors.BadRequest("%v", err)
	default:
		return err
	}
}
