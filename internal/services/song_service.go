package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/resonatefm/resonate/internal/models"
	apperrors "github.com/resonatefm/resonate/pkg/errors"
	"github.com/resonatefm/resonate/pkg/logger"
)

// SongService manages the catalog: metadata CRUD, moderation transitions,
// and upload versioning.
type SongService struct {
	db  *gorm.DB
	now func() time.Time
	log *zap.Logger
}

// NewSongService constructs a SongService.
func NewSongService(db *gorm.DB) (*SongService, error) {
	if db == nil {
		return nil, errors.New("song service: db is required")
	}
	return &SongService{db: db, now: time.Now, log: logger.WithModule("songs")}, nil
}

// CreateSongInput defines attributes for a new catalog entry.
type CreateSongInput struct {
	UploaderID  string
	Title       string
	Artist      string
	Album       string
	Genre       string
	DurationSec int
	CoverURL    string
	FileURL     string
	FileSize    int64
	Format      string
	Checksum    string
}

// Create registers a song in moderation-pending state with its first version.
func (s *SongService) Create(ctx context.Context, input CreateSongInput) (*models.Song, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(input.UploaderID) == "" {
		return nil, errors.New("song service: uploader id is required")
	}
	if strings.TrimSpace(input.Title) == "" || strings.TrimSpace(input.Artist) == "" {
		return nil, apperrors.NewBadRequest("title and artist are required")
	}
	if strings.TrimSpace(input.FileURL) == "" {
		return nil, apperrors.NewBadRequest("file url is required")
	}

	song := models.Song{
		UploaderID:       input.UploaderID,
		Title:            strings.TrimSpace(input.Title),
		Artist:           strings.TrimSpace(input.Artist),
		Album:            strings.TrimSpace(input.Album),
		Genre:            strings.TrimSpace(input.Genre),
		DurationSec:      input.DurationSec,
		CoverURL:         strings.TrimSpace(input.CoverURL),
		ModerationStatus: models.ModerationPending,
		CurrentVersion:   1,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&song).Error; err != nil {
			return fmt.Errorf("create song: %w", err)
		}

		version := models.SongVersion{
			SongID:   song.ID,
			Version:  1,
			FileURL:  strings.TrimSpace(input.FileURL),
			FileSize: input.FileSize,
			Format:   strings.TrimSpace(input.Format),
			Checksum: strings.TrimSpace(input.Checksum),
		}
		if err := tx.Create(&version).Error; err != nil {
			return fmt.Errorf("create version: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("song service: %w", err)
	}

	s.log.Info("song created", zap.String("song_id", song.ID), zap.String("uploader_id", song.UploaderID))
	return &song, nil
}

// Get loads a song with its version history.
func (s *SongService) Get(ctx context.Context, id string) (*models.Song, error) {
	ctx = ensureContext(ctx)

	var song models.Song
	if err := s.db.WithContext(ctx).
		Preload("Versions", func(tx *gorm.DB) *gorm.DB { return tx.Order("version ASC") }).
		Where("id = ?", id).
		First(&song).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("song service: load song: %w", err)
	}
	return &song, nil
}

// ListSongsInput filters catalog queries.
type ListSongsInput struct {
	Genre      string
	Artist     string
	UploaderID string
	Moderation string // empty means approved only
	Limit      int
	Offset     int
}

// List returns catalog entries. Callers outside moderation see approved
// songs only.
func (s *SongService) List(ctx context.Context, input ListSongsInput) ([]models.Song, error) {
	ctx = ensureContext(ctx)

	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	query := s.db.WithContext(ctx).Model(&models.Song{})

	moderation := defaultIfEmpty(input.Moderation, models.ModerationApproved)
	if moderation != "all" {
		query = query.Where("moderation_status = ?", moderation)
	}
	if input.Genre != "" {
		query = query.Where("genre = ?", input.Genre)
	}
	if input.Artist != "" {
		query = query.Where("artist = ?", input.Artist)
	}
	if input.UploaderID != "" {
		query = query.Where("uploader_id = ?", input.UploaderID)
	}

	var songs []models.Song
	if err := query.Order("created_at DESC").Limit(limit).Offset(max(0, input.Offset)).Find(&songs).Error; err != nil {
		return nil, fmt.Errorf("song service: list songs: %w", err)
	}
	return songs, nil
}

// UpdateSongInput carries mutable metadata fields; nil means unchanged.
type UpdateSongInput struct {
	Title    *string
	Album    *string
	Genre    *string
	CoverURL *string
}

// Update applies metadata changes on behalf of the uploader.
func (s *SongService) Update(ctx context.Context, userID, songID string, input UpdateSongInput) (*models.Song, error) {
	ctx = ensureContext(ctx)

	song, err := s.Get(ctx, songID)
	if err != nil {
		return nil, err
	}
	if song.UploaderID != userID {
		return nil, apperrors.ErrForbidden
	}

	updates := map[string]any{}
	if input.Title != nil && strings.TrimSpace(*input.Title) != "" {
		updates["title"] = strings.TrimSpace(*input.Title)
	}
	if input.Album != nil {
		updates["album"] = strings.TrimSpace(*input.Album)
	}
	if input.Genre != nil {
		updates["genre"] = strings.TrimSpace(*input.Genre)
	}
	if input.CoverURL != nil {
		updates["cover_url"] = strings.TrimSpace(*input.CoverURL)
	}
	if len(updates) == 0 {
		return song, nil
	}

	if err := s.db.WithContext(ctx).Model(&models.Song{}).Where("id = ?", songID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("song service: update song: %w", err)
	}
	return s.Get(ctx, songID)
}

// Delete removes a song owned by the caller along with its versions.
func (s *SongService) Delete(ctx context.Context, userID, songID string, isAdmin bool) error {
	ctx = ensureContext(ctx)

	song, err := s.Get(ctx, songID)
	if err != nil {
		return err
	}
	if song.UploaderID != userID && !isAdmin {
		return apperrors.ErrForbidden
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("song_id = ?", songID).Delete(&models.SongVersion{}).Error; err != nil {
			return fmt.Errorf("song service: delete versions: %w", err)
		}
		if err := tx.Where("id = ?", songID).Delete(&models.Song{}).Error; err != nil {
			return fmt.Errorf("song service: delete song: %w", err)
		}
		return nil
	})
}

// AddVersionInput describes a replacement upload.
type AddVersionInput struct {
	FileURL   string
	FileSize  int64
	Bitrate   int
	Format    string
	Checksum  string
	ChangeLog string
}

// AddVersion supersedes the current audio with a new revision. The previous
// version is stamped and history retained; moderation resets to pending.
func (s *SongService) AddVersion(ctx context.Context, userID, songID string, input AddVersionInput) (*models.SongVersion, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(input.FileURL) == "" {
		return nil, apperrors.NewBadRequest("file url is required")
	}

	song, err := s.Get(ctx, songID)
	if err != nil {
		return nil, err
	}
	if song.UploaderID != userID {
		return nil, apperrors.ErrForbidden
	}

	now := s.now()
	next := song.CurrentVersion + 1
	version := models.SongVersion{
		SongID:    songID,
		Version:   next,
		FileURL:   strings.TrimSpace(input.FileURL),
		FileSize:  input.FileSize,
		Bitrate:   input.Bitrate,
		Format:    strings.TrimSpace(input.Format),
		Checksum:  strings.TrimSpace(input.Checksum),
		ChangeLog: strings.TrimSpace(input.ChangeLog),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.SongVersion{}).
			Where("song_id = ? AND version = ?", songID, song.CurrentVersion).
			Update("superseded_at", now).Error; err != nil {
			return fmt.Errorf("supersede current version: %w", err)
		}

		if err := tx.Create(&version).Error; err != nil {
			return fmt.Errorf("create version: %w", err)
		}

		// Replacement audio goes back through moderation.
		if err := tx.Model(&models.Song{}).
			Where("id = ?", songID).
			Updates(map[string]any{
				"current_version":   next,
				"moderation_status": models.ModerationPending,
				"moderated_at":      nil,
				"moderated_by":      nil,
			}).Error; err != nil {
			return fmt.Errorf("advance current version: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("song service: %w", err)
	}

	s.log.Info("song version added", zap.String("song_id", songID), zap.Int("version", next))
	return &version, nil
}

// Moderate transitions a pending song to approved or rejected.
func (s *SongService) Moderate(ctx context.Context, moderatorID, songID, status, note string) (*models.Song, error) {
	ctx = ensureContext(ctx)

	if status != models.ModerationApproved && status != models.ModerationRejected {
		return nil, apperrors.NewBadRequest("moderation status must be approved or rejected")
	}

	song, err := s.Get(ctx, songID)
	if err != nil {
		return nil, err
	}
	if song.ModerationStatus != models.ModerationPending {
		return nil, apperrors.NewBadRequest("song is not awaiting moderation")
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&models.Song{}).
		Where("id = ? AND moderation_status = ?", songID, models.ModerationPending).
		Updates(map[string]any{
			"moderation_status": status,
			"moderation_note":   strings.TrimSpace(note),
			"moderated_at":      now,
			"moderated_by":      moderatorID,
		}).Error; err != nil {
		return nil, fmt.Errorf("song service: moderate: %w", err)
	}

	s.log.Info("song moderated",
		zap.String("song_id", songID),
		zap.String("status", status),
		zap.String("moderator_id", moderatorID))
	return s.Get(ctx, songID)
}
