package models

import "time"

// VerificationToken proves control of an email address. A token is redeemable
// at most once and only before ExpiresAt; issuing a new token for a user
// invalidates any still-live predecessors.
type VerificationToken struct {
	BaseModel

	Token  string `gorm:"uniqueIndex;not null" json:"-"` // 256-bit random, hex encoded
	UserID string `gorm:"type:uuid;not null;index" json:"user_id"`
	Email  string `gorm:"not null" json:"email"`

	ExpiresAt time.Time  `gorm:"index" json:"expires_at"`
	Used      bool       `gorm:"default:false;index" json:"used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`

	UsedIP        string `gorm:"type:varchar(45)" json:"-"`
	UsedUserAgent string `gorm:"type:varchar(512)" json:"-"`
}

// Live reports whether the token can still be redeemed at the given instant.
func (t *VerificationToken) Live(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}
