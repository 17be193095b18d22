package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/entities"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
)

// Audit actions
const (
	ActionEnqueued = "enqueued"
	ActionSent     = "sent"
	ActionFailed   = "failed"
	ActionSkipped  = "skipped"
	ActionPromoted = "waitlist_promoted"
)

// AuditEntry is one audit record before it is persisted.
type AuditEntry struct {
	EventID          *uint
	DispatchID       *uint
	Action           string
	NotificationType string
	RecipientHash    string
	CorrelationID    string // generated when empty
	Metadata         map[string]any
}

// AuditSink receives a copy of every appended entry, for example to mirror
// the audit trail onto a message bus.
type AuditSink interface {
	PublishAudit(ctx context.Context, entry *entities.AuditLogEntry) error
}

// AuditLog is the append-only audit trail. It has no update or delete.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
	List(ctx context.Context, eventID *uint, limit int) ([]entities.AuditLogEntry, error)
}

type auditLog struct {
	db    *gorm.DB
	sinks []AuditSink
	log   logger.Logger
}

// NewAuditLog creates an AuditLog. Sink failures are logged and never fail
// Append.
func NewAuditLog(db *gorm.DB, log logger.Logger, sinks ...AuditSink) AuditLog {
	return &auditLog{db: db, sinks: sinks, log: log.Module("audit")}
}

func (a *auditLog) Append(ctx context.Context, entry AuditEntry) error {
	if entry.Action == "" {
		return errors.Newf("audit action is required").
			Component("ledger").
			Category(errors.CategoryValidation).
			Build()
	}

	payload, err := encodeMetadata(entry.Metadata)
	if err != nil {
		return err
	}
	correlationID := entry.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	row := &entities.AuditLogEntry{
		EventID:          entry.EventID,
		DispatchID:       entry.DispatchID,
		Action:           entry.Action,
		NotificationType: entry.NotificationType,
		RecipientHash:    entry.RecipientHash,
		CorrelationID:    correlationID,
		Metadata:         payload,
	}
	if err := a.db.WithContext(ctx).Create(row).Error; err != nil {
		return errors.New(err).
			Component("ledger").
			Category(errors.CategoryDatabase).
			Context("operation", "append_audit").
			Context("action", entry.Action).
			Build()
	}

	for _, sink := range a.sinks {
		start := time.Now()
		if err := sink.PublishAudit(ctx, row); err != nil {
			a.log.Warn("audit sink publish failed",
				logger.Uint("audit_id", row.ID),
				logger.String("action", row.Action),
				logger.Duration("elapsed", time.Since(start)),
				logger.Error(err))
		}
	}
	return nil
}

func (a *auditLog) List(ctx context.Context, eventID *uint, limit int) ([]entities.AuditLogEntry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query := a.db.WithContext(ctx).Model(&entities.AuditLogEntry{})
	if eventID != nil {
		query = query.Where("event_id = ?", *eventID)
	}

	var rows []entities.AuditLogEntry
	if err := query.Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, errors.New(err).
			Component("ledger").
			Category(errors.CategoryDatabase).
			Context("operation", "list_audit").
			Build()
	}
	return rows, nil
}
