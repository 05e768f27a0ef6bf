package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/resonatefm/resonate/internal/models"
	apperrors "github.com/resonatefm/resonate/pkg/errors"
	"github.com/resonatefm/resonate/pkg/metrics"
)

// AnalyticsService records plays and answers aggregate queries over them.
type AnalyticsService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAnalyticsService constructs an AnalyticsService.
func NewAnalyticsService(db *gorm.DB) (*AnalyticsService, error) {
	if db == nil {
		return nil, errors.New("analytics service: db is required")
	}
	return &AnalyticsService{db: db, now: time.Now}, nil
}

// RecordViewInput captures one play event.
type RecordViewInput struct {
	SongID            string
	UserID            *string // nil for anonymous plays
	IPAddress         string
	UserAgent         string
	DurationPlayedSec int
}

// RecordView appends a view row and bumps the song's counter.
func (s *AnalyticsService) RecordView(ctx context.Context, input RecordViewInput) error {
	ctx = ensureContext(ctx)

	view := models.SongView{
		SongID:            input.SongID,
		UserID:            input.UserID,
		IPAddress:         strings.TrimSpace(input.IPAddress),
		UserAgent:         strings.TrimSpace(input.UserAgent),
		DurationPlayedSec: input.DurationPlayedSec,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Song{}).
			Where("id = ?", input.SongID).
			Update("view_count", gorm.Expr("view_count + 1"))
		if result.Error != nil {
			return fmt.Errorf("bump view count: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrNotFound
		}

		if err := tx.Create(&view).Error; err != nil {
			return fmt.Errorf("create view: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("analytics service: %w", err)
	}

	metrics.SongViews.Inc()
	return nil
}

// SongStats aggregates play data for one song.
type SongStats struct {
	SongID        string  `json:"song_id"`
	TotalViews    int64   `json:"total_views"`
	UniqueViewers int64   `json:"unique_viewers"`
	ViewsLast7d   int64   `json:"views_last_7d"`
	AverageRating float64 `json:"average_rating"`
	LikeCount     int64   `json:"like_count"`
}

// StatsForSong computes per-song aggregates.
func (s *AnalyticsService) StatsForSong(ctx context.Context, songID string) (*SongStats, error) {
	ctx = ensureContext(ctx)

	var song models.Song
	if err := s.db.WithContext(ctx).Where("id = ?", songID).First(&song).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("analytics service: load song: %w", err)
	}

	stats := SongStats{
		SongID:        songID,
		TotalViews:    song.ViewCount,
		AverageRating: song.AverageRating(),
		LikeCount:     song.LikeCount,
	}

	if err := s.db.WithContext(ctx).
		Model(&models.SongView{}).
		Where("song_id = ? AND user_id IS NOT NULL", songID).
		Distinct("user_id").
		Count(&stats.UniqueViewers).Error; err != nil {
		return nil, fmt.Errorf("analytics service: unique viewers: %w", err)
	}

	since := s.now().AddDate(0, 0, -7)
	if err := s.db.WithContext(ctx).
		Model(&models.SongView{}).
		Where("song_id = ? AND created_at >= ?", songID, since).
		Count(&stats.ViewsLast7d).Error; err != nil {
		return nil, fmt.Errorf("analytics service: recent views: %w", err)
	}

	return &stats, nil
}

// TopSongs returns the most-viewed approved songs.
func (s *AnalyticsService) TopSongs(ctx context.Context, limit int) ([]models.Song, error) {
	ctx = ensureContext(ctx)

	if limit <= 0 || limit > 50 {
		limit = 10
	}

	var songs []models.Song
	if err := s.db.WithContext(ctx).
		Where("moderation_status = ?", models.ModerationApproved).
		Order("view_count DESC, created_at ASC").
		Limit(limit).
		Find(&songs).Error; err != nil {
		return nil, fmt.Errorf("analytics service: top songs: %w", err)
	}
	return songs, nil
}
