package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zenGate-Global/palmyra-records/platform/go/tenant"
)

var (
	// ErrEdgeNotFound indicates the edge does not exist for the tenant.
	ErrEdgeNotFound = errors.New("edge not found")
	// ErrEdgeExists indicates the (field, from, to) edge is already present.
	ErrEdgeExists = errors.New("edge already exists")
	// ErrEdgeRejected indicates the database refused the edge: missing endpoint,
	// non-relation field or target type mismatch.
	ErrEdgeRejected = errors.New("edge rejected")
)

// Direction selects which endpoint of an edge a listing is anchored on.
type Direction string

const (
	DirectionFrom Direction = "from"
	DirectionTo   Direction = "to"
)

// ParseDirection validates a wire direction; empty defaults to from.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case "", DirectionFrom:
		return DirectionFrom, nil
	case DirectionTo:
		return DirectionTo, nil
	default:
		return "", fmt.Errorf("unsupported direction %q", s)
	}
}

// Edge is a directed relation between two records through a relation field.
type Edge struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"-"`
	FieldID      uuid.UUID `json:"fieldId"`
	FromRecordID uuid.UUID `json:"fromRecordId"`
	ToRecordID   uuid.UUID `json:"toRecordId"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
}

// EdgeView is an edge joined with its field and the record on the other end.
type EdgeView struct {
	Edge
	FieldKey            string
	FieldLabel          string
	RelatedRecordID     uuid.UUID
	RelatedEntityTypeID uuid.UUID
	RelatedData         map[string]any
}

// InsertEdgeParams describes a single edge.
type InsertEdgeParams struct {
	FieldID uuid.UUID
	FromID  uuid.UUID
	ToID    uuid.UUID
	Actor   string
}

// ReplaceEdgesParams describes the complete target set of (field, from).
type ReplaceEdgesParams struct {
	FieldID uuid.UUID
	FromID  uuid.UUID
	ToIDs   []uuid.UUID
	Actor   string
}

// ListEdgesParams anchors a listing on one record.
type ListEdgesParams struct {
	RecordID  uuid.UUID
	Direction Direction
	FieldID   *uuid.UUID
}

// EdgeStore persists relation edges.
type EdgeStore struct {
	db *TenantDB
}

// NewEdgeStore returns an edge store bound to db.
func NewEdgeStore(db *TenantDB) *EdgeStore {
	if db == nil {
		panic("EdgeStore requires db")
	}
	return &EdgeStore{db: db}
}

const edgeColumns = `id, tenant_id, field_id, from_record_id, to_record_id, created_by, created_at`

const insertEdgeSQL = `
	INSERT INTO record_edges (id, tenant_id, field_id, from_record_id, to_record_id, created_by)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING ` + edgeColumns

// InsertEdge creates one edge. Duplicates surface as ErrEdgeExists and integrity failures
// (including the target type trigger) as ErrEdgeRejected.
func (s *EdgeStore) InsertEdge(ctx context.Context, tc tenant.Context, params InsertEdgeParams) (Edge, error) {
	var edge Edge
	err := s.db.WithTenant(ctx, tc, func(tx pgx.Tx) error {
		var scanErr error
		edge, scanErr = scanEdge(tx.QueryRow(ctx, insertEdgeSQL,
			uuid.New(), tc.TenantID, params.FieldID, params.FromID, params.ToID, params.Actor))
		return scanErr
	})
	if err != nil {
		return Edge{}, classifyEdgeError(err)
	}
	return edge, nil
}

// DeleteEdge removes an edge by id.
func (s *EdgeStore) DeleteEdge(ctx context.Context, tc tenant.Context, id uuid.UUID) (Edge, error) {
	var edge Edge
	err := s.db.WithTenant(ctx, tc, func(tx pgx.Tx) error {
		var scanErr error
		edge, scanErr = scanEdge(tx.QueryRow(ctx,
			`DELETE FROM record_edges WHERE id = $1 AND tenant_id = $2 RETURNING `+edgeColumns, id, tc.TenantID))
		return scanErr
	})
	return edge, err
}

// ReplaceEdges deletes every edge of (field, from) and inserts one edge per target, in a
// single transaction so readers never observe the intermediate empty set. ToIDs must
// already be de-duplicated.
func (s *EdgeStore) ReplaceEdges(ctx context.Context, tc tenant.Context, params ReplaceEdgesParams) ([]Edge, error) {
	edges := make([]Edge, 0, len(params.ToIDs))
	err := s.db.WithTenant(ctx, tc, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM record_edges WHERE tenant_id = $1 AND field_id = $2 AND from_record_id = $3`,
			tc.TenantID, params.FieldID, params.FromID); err != nil {
			return err
		}

		for _, to := range params.ToIDs {
			edge, err := scanEdge(tx.QueryRow(ctx, insertEdgeSQL,
				uuid.New(), tc.TenantID, params.FieldID, params.FromID, to, params.Actor))
			if err != nil {
				return err
			}
			edges = append(edges, edge)
		}
		return nil
	})
	if err != nil {
		return nil, classifyEdgeError(err)
	}
	return edges, nil
}

// ListEdges returns the edges touching a record, joined with the field metadata and the
// record on the opposite end.
func (s *EdgeStore) ListEdges(ctx context.Context, tc tenant.Context, params ListEdgesParams) ([]EdgeView, error) {
	anchor, other := "e.from_record_id", "e.to_record_id"
	if params.Direction == DirectionTo {
		anchor, other = other, anchor
	}

	query := `
		SELECT e.id, e.tenant_id, e.field_id, e.from_record_id, e.to_record_id, e.created_by, e.created_at,
		       f.key, f.label, r.id, r.entity_type_id, r.data
		FROM record_edges e
		JOIN field_defs f ON f.id = e.field_id AND f.tenant_id = e.tenant_id
		JOIN records r ON r.id = ` + other + ` AND r.tenant_id = e.tenant_id
		WHERE e.tenant_id = $1 AND ` + anchor + ` = $2 AND ($3::uuid IS NULL OR e.field_id = $3)
		ORDER BY f.position, e.created_at, e.id`

	var out []EdgeView
	err := s.db.WithTenant(ctx, tc, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, tc.TenantID, params.RecordID, params.FieldID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				v    EdgeView
				data []byte
			)
			if err := rows.Scan(&v.ID, &v.TenantID, &v.FieldID, &v.FromRecordID, &v.ToRecordID, &v.CreatedBy, &v.CreatedAt,
				&v.FieldKey, &v.FieldLabel, &v.RelatedRecordID, &v.RelatedEntityTypeID, &data); err != nil {
				return err
			}
			v.RelatedData = map[string]any{}
			if len(data) > 0 {
				if err := json.Unmarshal(data, &v.RelatedData); err != nil {
					return fmt.Errorf("decode related record %s: %w", v.RelatedRecordID, err)
				}
			}
			out = append(out, v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	return out, nil
}

func classifyEdgeError(err error) error {
	switch {
	case isUniqueViolation(err):
		return ErrEdgeExists
	case isIntegrityViolation(err):
		return fmt.Errorf("%w: %s", ErrEdgeRejected, pgMessage(err))
	default:
		return err
	}
}

func scanEdge(row pgx.Row) (Edge, error) {
	var e Edge
	if err := row.Scan(&e.ID, &e.TenantID, &e.FieldID, &e.FromRecordID, &e.ToRecordID, &e.CreatedBy, &e.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Edge{}, ErrEdgeNotFound
		}
		return Edge{}, err
	}
	return e, nil
}
