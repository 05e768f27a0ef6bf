package models

// SongView records a single play for analytics. Views are append-only; the
// aggregate counter on Song is maintained alongside each insert.
type SongView struct {
	BaseModel

	SongID string  `gorm:"type:uuid;not null;index" json:"song_id"`
	UserID *string `gorm:"type:uuid;index" json:"user_id,omitempty"` // nil for anonymous plays

	IPAddress string `gorm:"type:varchar(45)" json:"-"`
	UserAgent string `gorm:"type:varchar(512)" json:"-"`

	DurationPlayedSec int `json:"duration_played_sec"`
}
