// Package ledger persists dispatch records, the idempotency guard that keeps
// each notification from reaching the same recipient twice.
//
// A dispatch is created scheduled and moves to exactly one terminal status:
//
//	scheduled -> sent | failed | skipped
//
// Transitions are single-row updates keyed by id. The ledger does not
// reject a second transition on the same record; the only hard guarantee is
// the unique sent key, which allows at most one sent record per
// (event, notification type, recipient hash) triple. A second record that
// tries to become sent for the same triple fails with ErrDuplicateSend.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/entities"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
)

// Dispatch statuses
const (
	StatusScheduled = "scheduled"
	StatusSent      = "sent"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// globalScope is the sent key prefix of records without an event.
const globalScope = "global"

var (
	// ErrDispatchNotFound indicates no dispatch record has the given id.
	ErrDispatchNotFound = errors.NewStd("dispatch not found")

	// ErrDuplicateSend indicates another record already reached sent for
	// the same event, notification type and recipient.
	ErrDuplicateSend = errors.NewStd("notification already sent to recipient")
)

// Ledger is the dispatch record store.
type Ledger interface {
	// CreateDispatch inserts a scheduled record and returns its id. It does
	// not check for earlier records; callers check IsAlreadySent first.
	CreateDispatch(ctx context.Context, eventID *uint, notificationType, recipientHash string, scheduledFor *time.Time, metadata map[string]any) (uint, error)

	// IsAlreadySent reports whether a sent record exists for the triple. A
	// nil eventID only matches records without an event.
	IsAlreadySent(ctx context.Context, eventID *uint, notificationType, recipientHash string) (bool, error)

	MarkSent(ctx context.Context, id uint) error
	MarkFailed(ctx context.Context, id uint, reason string) error
	MarkSkipped(ctx context.Context, id uint, reason string) error

	Get(ctx context.Context, id uint) (*entities.DispatchRecord, error)
	List(ctx context.Context, filter Filter) ([]entities.DispatchRecord, error)
	Stats(ctx context.Context) (*Stats, error)
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	EventID          *uint
	NotificationType string
	Status           string
	Since            time.Time
	Limit            int
}

// DefaultListLimit caps List when Filter.Limit is unset.
const DefaultListLimit = 100

// Stats summarizes the ledger for operators sizing the table.
type Stats struct {
	Total    int64                       `json:"total" yaml:"total"`
	ByStatus map[string]int64            `json:"by_status" yaml:"by_status"`
	ByType   map[string]map[string]int64 `json:"by_type" yaml:"by_type"`
	Oldest   *time.Time                  `json:"oldest,omitempty" yaml:"oldest,omitempty"`
}

// HashRecipient returns the SHA-256 hex digest of the trimmed, lower-cased
// identifier. The digest is unsalted so lookups are deterministic.
func HashRecipient(identifier string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(identifier))))
	return hex.EncodeToString(sum[:])
}

// SentKey is the unique key a record carries while sent.
func SentKey(eventID *uint, notificationType, recipientHash string) string {
	scope := globalScope
	if eventID != nil {
		scope = strconv.FormatUint(uint64(*eventID), 10)
	}
	return scope + ":" + notificationType + ":" + recipientHash
}

// store implements Ledger on gorm.
type store struct {
	db *gorm.DB
}

// New creates a Ledger backed by db.
func New(db *gorm.DB) Ledger {
	return &store{db: db}
}

func (s *store) CreateDispatch(ctx context.Context, eventID *uint, notificationType, recipientHash string, scheduledFor *time.Time, metadata map[string]any) (uint, error) {
	if notificationType == "" || recipientHash == "" {
		return 0, errors.Newf("notification type and recipient hash are required").
			Component("ledger").
			Category(errors.CategoryValidation).
			Context("operation", "create_dispatch").
			Build()
	}

	payload, err := encodeMetadata(metadata)
	if err != nil {
		return 0, err
	}

	record := &entities.DispatchRecord{
		EventID:          eventID,
		NotificationType: notificationType,
		RecipientHash:    recipientHash,
		Status:           StatusScheduled,
		Metadata:         payload,
	}
	if scheduledFor != nil {
		t := scheduledFor.UTC()
		record.ScheduledFor = &t
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return 0, dbError(err, "create_dispatch", 0, notificationType)
	}
	return record.ID, nil
}

func (s *store) IsAlreadySent(ctx context.Context, eventID *uint, notificationType, recipientHash string) (bool, error) {
	query := s.db.WithContext(ctx).Model(&entities.DispatchRecord{})
	if eventID == nil {
		query = query.Where("event_id IS NULL")
	} else {
		query = query.Where("event_id = ?", *eventID)
	}

	var count int64
	err := query.
		Where("notification_type = ? AND recipient_hash = ? AND status = ?", notificationType, recipientHash, StatusSent).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, dbError(err, "is_already_sent", 0, notificationType)
	}
	return count > 0, nil
}

func (s *store) MarkSent(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record entities.DispatchRecord
		err := tx.Select("id", "event_id", "notification_type", "recipient_hash").First(&record, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDispatchNotFound
		}
		if err != nil {
			return dbError(err, "mark_sent", id, "")
		}

		key := SentKey(record.EventID, record.NotificationType, record.RecipientHash)
		err = tx.Model(&entities.DispatchRecord{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"status":     StatusSent,
				"attempts":   gorm.Expr("attempts + ?", 1),
				"last_error": "",
				"sent_key":   key,
			}).Error
		if isDuplicateKey(err) {
			return errors.New(ErrDuplicateSend).
				Component("ledger").
				Category(errors.CategoryConflict).
				DispatchContext(id, record.NotificationType).
				Build()
		}
		if err != nil {
			return dbError(err, "mark_sent", id, record.NotificationType)
		}
		return nil
	})
}

func (s *store) MarkFailed(ctx context.Context, id uint, reason string) error {
	return s.transition(ctx, id, "mark_failed", map[string]any{
		"status":     StatusFailed,
		"attempts":   gorm.Expr("attempts + ?", 1),
		"last_error": reason,
		"sent_key":   nil,
	})
}

func (s *store) MarkSkipped(ctx context.Context, id uint, reason string) error {
	return s.transition(ctx, id, "mark_skipped", map[string]any{
		"status":     StatusSkipped,
		"last_error": reason,
		"sent_key":   nil,
	})
}

func (s *store) transition(ctx context.Context, id uint, operation string, updates map[string]any) error {
	result := s.db.WithContext(ctx).Model(&entities.DispatchRecord{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return dbError(result.Error, operation, id, "")
	}
	if result.RowsAffected == 0 {
		return ErrDispatchNotFound
	}
	return nil
}

func (s *store) Get(ctx context.Context, id uint) (*entities.DispatchRecord, error) {
	var record entities.DispatchRecord
	err := s.db.WithContext(ctx).First(&record, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDispatchNotFound
	}
	if err != nil {
		return nil, dbError(err, "get_dispatch", id, "")
	}
	return &record, nil
}

func (s *store) List(ctx context.Context, filter Filter) ([]entities.DispatchRecord, error) {
	query := s.db.WithContext(ctx).Model(&entities.DispatchRecord{})
	if filter.EventID != nil {
		query = query.Where("event_id = ?", *filter.EventID)
	}
	if filter.NotificationType != "" {
		query = query.Where("notification_type = ?", filter.NotificationType)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since.UTC())
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var records []entities.DispatchRecord
	if err := query.Order("id DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, dbError(err, "list_dispatches", 0, filter.NotificationType)
	}
	return records, nil
}

func (s *store) Stats(ctx context.Context) (*Stats, error) {
	var rows []struct {
		NotificationType string
		Status           string
		Count            int64
	}
	err := s.db.WithContext(ctx).Model(&entities.DispatchRecord{}).
		Select("notification_type, status, COUNT(*) AS count").
		Group("notification_type, status").
		Scan(&rows).Error
	if err != nil {
		return nil, dbError(err, "ledger_stats", 0, "")
	}

	stats := &Stats{
		ByStatus: make(map[string]int64),
		ByType:   make(map[string]map[string]int64),
	}
	for _, row := range rows {
		stats.Total += row.Count
		stats.ByStatus[row.Status] += row.Count
		if stats.ByType[row.NotificationType] == nil {
			stats.ByType[row.NotificationType] = make(map[string]int64)
		}
		stats.ByType[row.NotificationType][row.Status] = row.Count
	}

	if stats.Total > 0 {
		var oldest entities.DispatchRecord
		if err := s.db.WithContext(ctx).Select("id", "created_at").Order("id ASC").First(&oldest).Error; err != nil {
			return nil, dbError(err, "ledger_stats", 0, "")
		}
		created := oldest.CreatedAt.UTC()
		stats.Oldest = &created
	}
	return stats, nil
}

func encodeMetadata(metadata map[string]any) (datatypes.JSON, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, errors.New(err).
			Component("ledger").
			Category(errors.CategoryValidation).
			Context("operation", "encode_metadata").
			Build()
	}
	return datatypes.JSON(raw), nil
}

// DecodeMetadata unmarshals a record's metadata column.
func DecodeMetadata(record *entities.DispatchRecord) (map[string]any, error) {
	if len(record.Metadata) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any)
	if err := json.Unmarshal(record.Metadata, &out); err != nil {
		return nil, fmt.Errorf("decode dispatch %d metadata: %w", record.ID, err)
	}
	return out, nil
}

func dbError(err error, operation string, id uint, notificationType string) error {
	return errors.New(err).
		Component("ledger").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		DispatchContext(id, notificationType).
		Build()
}

// isDuplicateKey recognizes unique violations with or without gorm error
// translation enabled.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key value")
}
