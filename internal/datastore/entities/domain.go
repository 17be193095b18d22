package entities

import "time"

// Event states
const (
	EventStateDraft     = "draft"
	EventStatePublished = "published"
	EventStateCancelled = "cancelled"
)

// Attendee statuses
const (
	AttendeeConfirmed  = "confirmed"
	AttendeeWaitlisted = "waitlisted"
	AttendeeCancelled  = "cancelled"
)

// Event is a ticketed event published by a vendor account.
type Event struct {
	ID           uint       `gorm:"primaryKey"`
	Title        string     `gorm:"size:255;not null"`
	Slug         string     `gorm:"size:255;index"`
	OwnerID      uint       `gorm:"index;not null"`
	CategoryID   *uint      `gorm:"index"`
	State        string     `gorm:"size:16;index;not null"`
	Venue        string     `gorm:"size:255"`
	Capacity     int        `gorm:"not null;default:0"` // 0 means unlimited
	StartsAt     time.Time  `gorm:"index;not null"`
	EndsAt       *time.Time
	SalesOpenAt  *time.Time `gorm:"index"`
	CancelledAt  *time.Time `gorm:"index"`
	CancelReason string     `gorm:"type:text"`
	CreatedAt    time.Time  `gorm:"autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime"`

	Category *Category `gorm:"foreignKey:CategoryID"`
}

// TableName returns the table name for GORM.
func (Event) TableName() string {
	return "events"
}

// IsCancelled reports whether the event was cancelled.
func (e *Event) IsCancelled() bool {
	return e.State == EventStateCancelled
}

// IsPublished reports whether the event is live.
func (e *Event) IsPublished() bool {
	return e.State == EventStatePublished
}

// HasEnded reports whether the event is over at now. Events without an end
// time are over once they start.
func (e *Event) HasEnded(now time.Time) bool {
	if e.EndsAt != nil {
		return !now.Before(*e.EndsAt)
	}
	return !now.Before(e.StartsAt)
}

// Attendee is a registration for an event.
type Attendee struct {
	ID         uint       `gorm:"primaryKey"`
	EventID    uint       `gorm:"index:idx_attendee_event_status,priority:1;not null"`
	AccountID  *uint      `gorm:"index"`
	Name       string     `gorm:"size:255"`
	Email      string     `gorm:"size:254;not null"`
	Status     string     `gorm:"size:16;index:idx_attendee_event_status,priority:2;not null"`
	PromotedAt *time.Time
	CreatedAt  time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM.
func (Attendee) TableName() string {
	return "attendees"
}

// Account is a user of the marketplace: a vendor or an attendee.
type Account struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"size:255"`
	Email       string `gorm:"size:254;uniqueIndex;not null"`
	Active      bool   `gorm:"not null"`
	DigestOptIn bool   `gorm:"not null;default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Subscriptions []CategorySubscription `gorm:"foreignKey:AccountID"`
}

// TableName returns the table name for GORM.
func (Account) TableName() string {
	return "accounts"
}

// Category groups events for digests.
type Category struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:128;uniqueIndex;not null"`
}

// TableName returns the table name for GORM.
func (Category) TableName() string {
	return "categories"
}

// CategorySubscription links an account to a category it follows.
type CategorySubscription struct {
	AccountID  uint `gorm:"primaryKey"`
	CategoryID uint `gorm:"primaryKey;index"`
}

// TableName returns the table name for GORM.
func (CategorySubscription) TableName() string {
	return "category_subscriptions"
}
