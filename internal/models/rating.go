package models

// Rating stores one user's score for a song. The unique index keeps a single
// row per user and song; re-rating updates in place.
type Rating struct {
	BaseModel

	UserID string `gorm:"type:uuid;not null;uniqueIndex:idx_ratings_user_song,priority:1" json:"user_id"`
	SongID string `gorm:"type:uuid;not null;uniqueIndex:idx_ratings_user_song,priority:2;index" json:"song_id"`

	Score int  `gorm:"not null" json:"score"` // 1..5
	Liked bool `gorm:"default:false" json:"liked"`
}
