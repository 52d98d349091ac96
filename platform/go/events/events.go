// Package events publishes tenant-scoped change notifications for an external fan-out.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-records/platform/go/tenant"
)

// Event types.
const (
	EntityTypeCreated = "entity_type.created"
	EntityTypeUpdated = "entity_type.updated"
	FieldDefCreated   = "field_def.created"
	FieldDefUpdated   = "field_def.updated"
	RecordCreated     = "record.created"
	RecordUpdated     = "record.updated"
	RelationCreated   = "relation.created"
	RelationDeleted   = "relation.deleted"
	RelationReplaced  = "relation.replaced"
)

// Event is a change notification. TenantID decides which subscribers may see it.
type Event struct {
	Type         string     `json:"type"`
	TenantID     uuid.UUID  `json:"tenant_id"`
	EntityTypeID *uuid.UUID `json:"entity_type_id,omitempty"`
	FieldID      *uuid.UUID `json:"field_id,omitempty"`
	RecordID     *uuid.UUID `json:"record_id,omitempty"`
	EdgeID       *uuid.UUID `json:"edge_id,omitempty"`
	Version      int        `json:"version,omitempty"`
	Actor        string     `json:"actor,omitempty"`
	OccurredAt   time.Time  `json:"occurred_at"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Ref returns a pointer to id, for the optional Event fields.
func Ref(id uuid.UUID) *uuid.UUID {
	return &id
}

// LogPublisher writes events to the structured log.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher returns a publisher logging through logger.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	fields := []zap.Field{
		zap.String("event_type", event.Type),
		zap.String("tenant_id", event.TenantID.String()),
		zap.Time("occurred_at", event.OccurredAt),
	}
	if event.EntityTypeID != nil {
		fields = append(fields, zap.String("entity_type_id", event.EntityTypeID.String()))
	}
	if event.FieldID != nil {
		fields = append(fields, zap.String("field_id", event.FieldID.String()))
	}
	if event.RecordID != nil {
		fields = append(fields, zap.String("record_id", event.RecordID.String()))
	}
	if event.EdgeID != nil {
		fields = append(fields, zap.String("edge_id", event.EdgeID.String()))
	}
	p.logger.Info("change event", fields...)
	return nil
}

// notifier is the pgx pool subset used for NOTIFY.
type notifier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// maxNotifyPayload keeps payloads under the 8000 byte NOTIFY limit.
const maxNotifyPayload = 7900

// NotifyPublisher sends each event on the tenant's own Postgres channel, so a LISTENer
// of that channel only ever receives its tenant's events.
type NotifyPublisher struct {
	db notifier
}

// NewNotifyPublisher returns a publisher using pg_notify on db.
func NewNotifyPublisher(db notifier) *NotifyPublisher {
	return &NotifyPublisher{db: db}
}

func (p *NotifyPublisher) Publish(ctx context.Context, event Event) error {
	if event.TenantID == uuid.Nil {
		return tenant.ErrMissingTenant
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if len(payload) > maxNotifyPayload {
		return fmt.Errorf("event payload of %d bytes exceeds notify limit", len(payload))
	}
	if _, err := p.db.Exec(ctx, `SELECT pg_notify($1, $2)`, tenant.EventChannel(event.TenantID), string(payload)); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emitter stamps and publishes events on behalf of services. Delivery failures are
// logged and swallowed so a notification problem never fails the write that caused it.
type Emitter struct {
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewEmitter wraps publisher. A nil publisher discards events.
func NewEmitter(publisher Publisher, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{publisher: publisher, logger: logger, now: time.Now}
}

// Emit publishes event for tc.
func (e *Emitter) Emit(ctx context.Context, tc tenant.Context, event Event) {
	if e == nil || e.publisher == nil {
		return
	}
	event.TenantID = tc.TenantID
	if event.OccurredAt.IsZero() {
		event.OccurredAt = e.now().UTC()
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Warn("publish change event failed",
			zap.String("event_type", event.Type),
			zap.String("tenant_id", tc.String()),
			zap.Error(err),
		)
	}
}
