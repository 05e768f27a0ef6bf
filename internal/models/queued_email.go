package models

import (
	"time"

	"gorm.io/datatypes"
)

// Queue statuses for outbound email.
const (
	EmailStatusPending = "pending"
	EmailStatusSent    = "sent"
	EmailStatusFailed  = "failed"
)

// Email type tags used by producers.
const (
	EmailTypeVerification = "verification"
)

// DefaultEmailPriority is assigned when a producer does not override it.
// Lower values are more urgent.
const DefaultEmailPriority = 5

// QueuedEmail is a unit of outbound mail awaiting or having completed
// delivery. Rows are created by producers and mutated only by the queue
// processor after each delivery attempt.
type QueuedEmail struct {
	BaseModel

	ToAddress string `gorm:"not null;index" json:"to_address"`
	ToName    string `json:"to_name,omitempty"`
	Subject   string `gorm:"not null" json:"subject"`
	HTMLBody  string `gorm:"type:text" json:"-"`
	TextBody  string `gorm:"type:text" json:"-"`

	EmailType    string         `gorm:"type:varchar(64);index" json:"email_type"`
	TemplateData datatypes.JSON `json:"template_data,omitempty"`

	Priority    int `gorm:"default:5;index:idx_queued_emails_claim,priority:2" json:"priority"`
	Attempts    int `gorm:"default:0" json:"attempts"`
	MaxAttempts int `gorm:"default:3" json:"max_attempts"`

	Status        string     `gorm:"type:varchar(16);default:'pending';index:idx_queued_emails_claim,priority:1" json:"status"`
	NextAttemptAt *time.Time `gorm:"index" json:"next_attempt_at,omitempty"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	LastError     string     `gorm:"type:text" json:"last_error,omitempty"`

	ProviderMessageID string `json:"provider_message_id,omitempty"`
	ProcessingMS      int64  `json:"processing_ms,omitempty"`

	UserID      *string `gorm:"type:uuid;index" json:"user_id,omitempty"`
	RelatedType string  `gorm:"type:varchar(64)" json:"related_type,omitempty"`
	RelatedID   string  `gorm:"type:uuid" json:"related_id,omitempty"`
}

// Exhausted reports whether the item has consumed all delivery attempts
// without succeeding. Exhausted items are terminal and never reclaimed.
func (e *QueuedEmail) Exhausted() bool {
	return e.Status == EmailStatusFailed && e.Attempts >= e.MaxAttempts
}
