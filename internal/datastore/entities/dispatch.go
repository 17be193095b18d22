package entities

import (
	"time"

	"gorm.io/datatypes"
)

// DispatchRecord is one attempted delivery of one notification type to one
// recipient for an optional event. SentKey is non-nil only while the record
// is sent; its unique index allows a single sent record per
// (event, type, recipient) triple.
type DispatchRecord struct {
	ID               uint           `gorm:"primaryKey"`
	EventID          *uint          `gorm:"index:idx_dispatch_lookup,priority:1"`
	NotificationType string         `gorm:"index:idx_dispatch_lookup,priority:2;size:64;not null"`
	RecipientHash    string         `gorm:"index:idx_dispatch_lookup,priority:3;size:64;not null"`
	Status           string         `gorm:"index:idx_dispatch_lookup,priority:4;index:idx_dispatch_status;size:16;not null"`
	ScheduledFor     *time.Time     `gorm:"index"`
	Attempts         int            `gorm:"not null;default:0"`
	LastError        string         `gorm:"type:text"`
	Metadata         datatypes.JSON
	SentKey          *string        `gorm:"uniqueIndex:idx_dispatch_sent_key;size:200"`
	CreatedAt        time.Time      `gorm:"autoCreateTime;index"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM.
func (DispatchRecord) TableName() string {
	return "automation_dispatch"
}

// AuditLogEntry records dispatch activity. Rows are never updated or deleted.
type AuditLogEntry struct {
	ID               uint           `gorm:"primaryKey"`
	EventID          *uint          `gorm:"index"`
	DispatchID       *uint          `gorm:"index"`
	Action           string         `gorm:"size:32;index;not null"`
	NotificationType string         `gorm:"size:64;index"`
	RecipientHash    string         `gorm:"size:64"`
	CorrelationID    string         `gorm:"size:36"`
	Metadata         datatypes.JSON
	CreatedAt        time.Time      `gorm:"autoCreateTime;index"`
}

// TableName returns the table name for GORM.
func (AuditLogEntry) TableName() string {
	return "automation_audit_log"
}
