package models

import "time"

// Moderation states for catalog entries.
const (
	ModerationPending  = "pending"
	ModerationApproved = "approved"
	ModerationRejected = "rejected"
)

// Song is a catalog entry. The playable audio lives in object storage; rows
// here carry metadata, moderation state, and a pointer to the live version.
type Song struct {
	BaseModel

	UploaderID string `gorm:"type:uuid;not null;index" json:"uploader_id"`
	Uploader   *User  `gorm:"foreignKey:UploaderID" json:"uploader,omitempty"`

	Title       string `gorm:"not null" json:"title"`
	Artist      string `gorm:"not null;index" json:"artist"`
	Album       string `json:"album"`
	Genre       string `gorm:"index" json:"genre"`
	DurationSec int    `json:"duration_sec"`
	CoverURL    string `json:"cover_url"`

	ModerationStatus string     `gorm:"type:varchar(32);default:'pending';index" json:"moderation_status"`
	ModerationNote   string     `gorm:"type:text" json:"moderation_note,omitempty"`
	ModeratedAt      *time.Time `json:"moderated_at,omitempty"`
	ModeratedBy      *string    `gorm:"type:uuid" json:"-"`

	CurrentVersion int           `gorm:"default:1" json:"current_version"`
	Versions       []SongVersion `gorm:"foreignKey:SongID" json:"versions,omitempty"`

	ViewCount int64 `gorm:"default:0" json:"view_count"`
	LikeCount int64 `gorm:"default:0" json:"like_count"`
	RatingSum int64 `gorm:"default:0" json:"-"`
	RatingCnt int64 `gorm:"default:0" json:"-"`
}

// AverageRating derives the mean rating, zero when unrated.
func (s *Song) AverageRating() float64 {
	if s.RatingCnt == 0 {
		return 0
	}
	return float64(s.RatingSum) / float64(s.RatingCnt)
}
