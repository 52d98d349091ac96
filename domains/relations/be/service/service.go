package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-records/domains/relations/be/repo"
	"github.com/zenGate-Global/palmyra-records/platform/go/access"
	"github.com/zenGate-Global/palmyra-records/platform/go/apperrors"
	"github.com/zenGate-Global/palmyra-records/platform/go/events"
	"github.com/zenGate-Global/palmyra-records/platform/go/metadata"
	"github.com/zenGate-Global/palmyra-records/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-records/platform/go/tenant"
)

// CreateEdgeInput links two records through a relation field.
type CreateEdgeInput struct {
	FieldID      uuid.UUID `json:"fieldId"`
	FromRecordID uuid.UUID `json:"fromRecordId"`
	ToRecordID   uuid.UUID `json:"toRecordId"`
}

// ReplaceEdgesInput is the complete target set of one relation field on one record.
type ReplaceEdgesInput struct {
	FieldID      uuid.UUID   `json:"fieldId"`
	FromRecordID uuid.UUID   `json:"fromRecordId"`
	ToRecordIDs  []uuid.UUID `json:"toRecordIds"`
}

// ListRelationsInput anchors a listing on one record.
type ListRelationsInput struct {
	RecordID  uuid.UUID
	Direction string
	FieldID   *uuid.UUID
}

// Relation is an edge decorated for display.
type Relation struct {
	Edge            persistence.Edge `json:"edge"`
	FieldKey        string           `json:"fieldKey"`
	FieldLabel      string           `json:"fieldLabel"`
	RelatedRecordID uuid.UUID        `json:"relatedRecordId"`
	RelatedLabel    string           `json:"relatedLabel"`
}

// Service manages relation edges between records.
type Service interface {
	CreateEdge(ctx context.Context, tc tenant.Context, user access.Identity, input CreateEdgeInput) (persistence.Edge, error)
	DeleteEdge(ctx context.Context, tc tenant.Context, user access.Identity, id uuid.UUID) error
	ReplaceEdgesForField(ctx context.Context, tc tenant.Context, user access.Identity, input ReplaceEdgesInput) ([]persistence.Edge, error)
	ListRelations(ctx context.Context, tc tenant.Context, user access.Identity, input ListRelationsInput) ([]Relation, error)
}

type service struct {
	repo    repo.Repository
	emitter *events.Emitter
}

// New constructs a Service. The emitter may be nil.
func New(repository repo.Repository, emitter *events.Emitter) Service {
	if repository == nil {
		panic("relations repository is required")
	}
	return &service{repo: repository, emitter: emitter}
}

func (s *service) CreateEdge(ctx context.Context, tc tenant.Context, user access.Identity, input CreateEdgeInput) (persistence.Edge, error) {
	if err := authorize(user, access.RelationWrite); err != nil {
		return persistence.Edge{}, err
	}
	if input.FieldID == uuid.Nil || input.FromRecordID == uuid.Nil || input.ToRecordID == uuid.Nil {
		return persistence.Edge{}, apperrors.BadRequest("fieldId, fromRecordId and toRecordId are required")
	}

	if _, err := s.relationField(ctx, tc, input.FieldID); err != nil {
		return persistence.Edge{}, err
	}
	for _, id := range []uuid.UUID{input.FromRecordID, input.ToRecordID} {
		if _, err := s.repo.Record(ctx, tc, id); err != nil {
			return persistence.Edge{}, translateError(err)
		}
	}

	edge, err := s.repo.InsertEdge(ctx, tc, persistence.InsertEdgeParams{
		FieldID: input.FieldID,
		FromID:  input.FromRecordID,
		ToID:    input.ToRecordID,
		Actor:   user.GetID(),
	})
	if err != nil {
		return persistence.Edge{}, translateError(err)
	}

	s.emitter.Emit(ctx, tc, events.Event{
		Type:     events.RelationCreated,
		FieldID:  events.Ref(edge.FieldID),
		RecordID: events.Ref(edge.FromRecordID),
		EdgeID:   events.Ref(edge.ID),
		Actor:    user.GetID(),
	})
	return edge, nil
}

func (s *service) DeleteEdge(ctx context.Context, tc tenant.Context, user access.Identity, id uuid.UUID) error {
	if err := authorize(user, access.RelationWrite); err != nil {
		return err
	}

	edge, err := s.repo.DeleteEdge(ctx, tc, id)
	if err != nil {
		return translateError(err)
	}

	s.emitter.Emit(ctx, tc, events.Event{
		Type:     events.RelationDeleted,
		FieldID:  events.Ref(edge.FieldID),
		RecordID: events.Ref(edge.FromRecordID),
		EdgeID:   events.Ref(edge.ID),
		Actor:    user.GetID(),
	})
	return nil
}

func (s *service) ReplaceEdgesForField(ctx context.Context, tc tenant.Context, user access.Identity, input ReplaceEdgesInput) ([]persistence.Edge, error) {
	if err := authorize(user, access.RelationWrite); err != nil {
		return nil, err
	}
	if input.FieldID == uuid.Nil || input.FromRecordID == uuid.Nil {
		return nil, apperrors.BadRequest("fieldId and fromRecordId are required")
	}

	field, err := s.relationField(ctx, tc, input.FieldID)
	if err != nil {
		return nil, err
	}

	targets := dedupe(input.ToRecordIDs)
	if c, ok := field.Constraints.(metadata.RelationConstraints); ok && c.Cardinality == metadata.CardinalityOne && len(targets) > 1 {
		return nil, apperrors.BadRequest("field %q accepts at most one related record", field.Key)
	}
	if _, err := s.repo.Record(ctx, tc, input.FromRecordID); err != nil {
		return nil, translateError(err)
	}

	edges, err := s.repo.ReplaceEdges(ctx, tc, persistence.ReplaceEdgesParams{
		FieldID: input.FieldID,
		FromID:  input.FromRecordID,
		ToIDs:   targets,
		Actor:   user.GetID(),
	})
	if err != nil {
		return nil, translateError(err)
	}

	s.emitter.Emit(ctx, tc, events.Event{
		Type:     events.RelationReplaced,
		FieldID:  events.Ref(input.FieldID),
		RecordID: events.Ref(input.FromRecordID),
		Actor:    user.GetID(),
	})
	return edges, nil
}

func (s *service) ListRelations(ctx context.Context, tc tenant.Context, user access.Identity, input ListRelationsInput) ([]Relation, error) {
	if err := authorize(user, access.RelationRead); err != nil {
		return nil, err
	}
	direction, err := persistence.ParseDirection(input.Direction)
	if err != nil {
		return nil, apperrors.BadRequest("%s", err.Error())
	}
	if _, err := s.repo.Record(ctx, tc, input.RecordID); err != nil {
		return nil, translateError(err)
	}

	views, err := s.repo.ListEdges(ctx, tc, persistence.ListEdgesParams{
		RecordID:  input.RecordID,
		Direction: direction,
		FieldID:   input.FieldID,
	})
	if err != nil {
		return nil, translateError(err)
	}

	labelFields := make(map[uuid.UUID][]metadata.FieldDef)
	out := make([]Relation, 0, len(views))
	for _, v := range views {
		fields, ok := labelFields[v.RelatedEntityTypeID]
		if !ok {
			all, err := s.repo.ActiveFields(ctx, tc, v.RelatedEntityTypeID)
			if err != nil {
				return nil, translateError(err)
			}
			fields = labelCandidates(user, all)
			labelFields[v.RelatedEntityTypeID] = fields
		}
		out = append(out, Relation{
			Edge:            v.Edge,
			FieldKey:        v.FieldKey,
			FieldLabel:      v.FieldLabel,
			RelatedRecordID: v.RelatedRecordID,
			RelatedLabel:    displayLabel(fields, v.RelatedRecordID, v.RelatedData),
		})
	}
	return out, nil
}

// relationField loads an active relation field or explains why it cannot carry edges.
func (s *service) relationField(ctx context.Context, tc tenant.Context, id uuid.UUID) (metadata.FieldDef, error) {
	field, err := s.repo.Field(ctx, tc, id)
	if err != nil {
		if errors.Is(err, persistence.ErrFieldDefNotFound) {
			return metadata.FieldDef{}, apperrors.BadRequest("field %s does not exist", id)
		}
		return metadata.FieldDef{}, translateError(err)
	}
	if field.Kind != metadata.KindRelation {
		return metadata.FieldDef{}, apperrors.BadRequest("field %q is not a relation field", field.Key)
	}
	if !field.Active {
		return metadata.FieldDef{}, apperrors.BadRequest("field %q is inactive", field.Key)
	}
	return field, nil
}

// labelCandidates keeps the readable non-relation fields, already ordered by position.
func labelCandidates(user access.Identity, fields []metadata.FieldDef) []metadata.FieldDef {
	out := make([]metadata.FieldDef, 0, len(fields))
	for _, f := range fields {
		if f.Kind == metadata.KindRelation || !f.Active || !access.CanRead(user, f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func displayLabel(fields []metadata.FieldDef, id uuid.UUID, data map[string]any) string {
	for _, f := range fields {
		switch v := data[f.Key].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return id.String()
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func authorize(user access.Identity, action string) error {
	if !access.HasPermission(user, action) {
		return &apperrors.ForbiddenError{Action: action}
	}
	return nil
}

func translateError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrRecordNotFound):
		return apperrors.NotFound("record")
	case errors.Is(err, persistence.ErrEdgeNotFound):
		return apperrors.NotFound("relation")
	case errors.Is(err, persistence.ErrEntityTypeNotFound):
		return apperrors.NotFound("entity type")
	case errors.Is(err, persistence.ErrEdgeExists):
		return apperrors.Conflict("relation already exists")
	case errors.Is(err, persistence.ErrEdgeRejected):
		return apperrors.BadRequest("%s", err.Error())
	default:
		return err
	}
}
