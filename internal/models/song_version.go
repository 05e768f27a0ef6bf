package models

import "time"

// SongVersion records one uploaded revision of a song's audio. A new upload
// supersedes the previous version; history is retained for traceability.
type SongVersion struct {
	BaseModel

	SongID  string `gorm:"type:uuid;not null;index:idx_song_versions,priority:1" json:"song_id"`
	Version int    `gorm:"not null;index:idx_song_versions,priority:2" json:"version"`

	FileURL   string `gorm:"not null" json:"file_url"`
	FileSize  int64  `json:"file_size"`
	Bitrate   int    `json:"bitrate"`
	Format    string `gorm:"type:varchar(16)" json:"format"`
	Checksum  string `json:"checksum"`
	ChangeLog string `gorm:"type:text" json:"change_log"`

	SupersededAt *time.Time `json:"superseded_at,omitempty"`
}
