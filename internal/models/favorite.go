package models

// Favorite marks a song saved to a user's library.
type Favorite struct {
	BaseModel

	UserID string `gorm:"type:uuid;not null;uniqueIndex:idx_favorites_user_song,priority:1" json:"user_id"`
	SongID string `gorm:"type:uuid;not null;uniqueIndex:idx_favorites_user_song,priority:2;index" json:"song_id"`

	Song *Song `gorm:"foreignKey:SongID" json:"song,omitempty"`
}
