package entities

import "time"

// StateEntry is a named value in the key-value state store.
type StateEntry struct {
	Name      string    `gorm:"primaryKey;size:128"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM.
func (StateEntry) TableName() string {
	return "automation_state"
}

// RateLimitWindow counts hits for one identifier in one fixed window.
// WindowStart is the window's start in unix seconds.
type RateLimitWindow struct {
	ID          uint   `gorm:"primaryKey"`
	Identifier  string `gorm:"uniqueIndex:idx_rate_limit_window,priority:1;size:191;not null"`
	WindowStart int64  `gorm:"uniqueIndex:idx_rate_limit_window,priority:2;index;not null"`
	Hits        int    `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM.
func (RateLimitWindow) TableName() string {
	return "automation_rate_limit"
}

// QueueItem is a job waiting in the database queue backend. A claimed item
// carries a lease in LeaseUntil; an expired lease makes it claimable again.
type QueueItem struct {
	ID         uint       `gorm:"primaryKey"`
	Queue      string     `gorm:"size:128;index:idx_queue_claim,priority:1;not null"`
	MessageID  string     `gorm:"size:36;uniqueIndex;not null"`
	Body       []byte     `gorm:"not null"`
	LeaseUntil *time.Time `gorm:"index:idx_queue_claim,priority:2"`
	Attempts   int        `gorm:"not null;default:0"`
	CreatedAt  time.Time  `gorm:"autoCreateTime;index:idx_queue_claim,priority:3"`
}

// TableName returns the table name for GORM.
func (QueueItem) TableName() string {
	return "automation_queue"
}
