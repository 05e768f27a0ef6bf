package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/resonatefm/resonate/internal/models"
	apperrors "github.com/resonatefm/resonate/pkg/errors"
)

// RatingService maintains ratings, like toggles, and favorites, together with
// the denormalised aggregates kept on the song row.
type RatingService struct {
	db *gorm.DB
}

// NewRatingService constructs a RatingService.
func NewRatingService(db *gorm.DB) (*RatingService, error) {
	if db == nil {
		return nil, errors.New("rating service: db is required")
	}
	return &RatingService{db: db}, nil
}

// Rate records or replaces the caller's score for a song.
func (s *RatingService) Rate(ctx context.Context, userID, songID string, score int) (*models.Rating, error) {
	ctx = ensureContext(ctx)

	if score < 1 || score > 5 {
		return nil, apperrors.NewBadRequest("score must be between 1 and 5")
	}
	if err := s.ensureSongExists(ctx, songID); err != nil {
		return nil, err
	}

	var rating models.Rating
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ? AND song_id = ?", userID, songID).First(&rating).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rating = models.Rating{UserID: userID, SongID: songID, Score: score}
			if err := tx.Create(&rating).Error; err != nil {
				return fmt.Errorf("create rating: %w", err)
			}
			return s.adjustAggregates(tx, songID, int64(score), 1, 0)
		case err != nil:
			return fmt.Errorf("load rating: %w", err)
		}

		previous := rating.Score
		if previous == score {
			return nil
		}
		if err := tx.Model(&rating).Update("score", score).Error; err != nil {
			return fmt.Errorf("update rating: %w", err)
		}
		rating.Score = score
		return s.adjustAggregates(tx, songID, int64(score-previous), 0, 0)
	})
	if err != nil {
		return nil, fmt.Errorf("rating service: %w", err)
	}
	return &rating, nil
}

// ToggleLike flips the caller's like flag for a song, returning the new state.
func (s *RatingService) ToggleLike(ctx context.Context, userID, songID string) (bool, error) {
	ctx = ensureContext(ctx)

	if err := s.ensureSongExists(ctx, songID); err != nil {
		return false, err
	}

	var liked bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rating models.Rating
		err := tx.Where("user_id = ? AND song_id = ?", userID, songID).First(&rating).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			// A like without a score is stored as a zero-score row.
			rating = models.Rating{UserID: userID, SongID: songID, Liked: true}
			if err := tx.Create(&rating).Error; err != nil {
				return fmt.Errorf("create like: %w", err)
			}
			liked = true
			return s.adjustAggregates(tx, songID, 0, 0, 1)
		case err != nil:
			return fmt.Errorf("load rating: %w", err)
		}

		liked = !rating.Liked
		if err := tx.Model(&rating).Update("liked", liked).Error; err != nil {
			return fmt.Errorf("toggle like: %w", err)
		}
		delta := int64(1)
		if !liked {
			delta = -1
		}
		return s.adjustAggregates(tx, songID, 0, 0, delta)
	})
	if err != nil {
		return false, fmt.Errorf("rating service: %w", err)
	}
	return liked, nil
}

// AddFavorite saves a song to the caller's library. Adding twice is a no-op.
func (s *RatingService) AddFavorite(ctx context.Context, userID, songID string) error {
	ctx = ensureContext(ctx)

	if err := s.ensureSongExists(ctx, songID); err != nil {
		return err
	}

	favorite := models.Favorite{UserID: userID, SongID: songID}
	if err := s.db.WithContext(ctx).Create(&favorite).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil
		}
		return fmt.Errorf("rating service: add favorite: %w", err)
	}
	return nil
}

// RemoveFavorite drops a song from the caller's library.
func (s *RatingService) RemoveFavorite(ctx context.Context, userID, songID string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("user_id = ? AND song_id = ?", userID, songID).
		Delete(&models.Favorite{})
	if result.Error != nil {
		return fmt.Errorf("rating service: remove favorite: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ListFavorites returns the caller's saved songs, newest first.
func (s *RatingService) ListFavorites(ctx context.Context, userID string, limit, offset int) ([]models.Favorite, error) {
	ctx = ensureContext(ctx)

	if limit <= 0 || limit > 100 {
		limit = 25
	}

	var favorites []models.Favorite
	if err := s.db.WithContext(ctx).
		Preload("Song").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(max(0, offset)).
		Find(&favorites).Error; err != nil {
		return nil, fmt.Errorf("rating service: list favorites: %w", err)
	}
	return favorites, nil
}

func (s *RatingService) ensureSongExists(ctx context.Context, songID string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Song{}).Where("id = ?", songID).Count(&count).Error; err != nil {
		return fmt.Errorf("rating service: check song: %w", err)
	}
	if count == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (s *RatingService) adjustAggregates(tx *gorm.DB, songID string, sumDelta, cntDelta, likeDelta int64) error {
	updates := map[string]any{}
	if sumDelta != 0 {
		updates["rating_sum"] = gorm.Expr("rating_sum + ?", sumDelta)
	}
	if cntDelta != 0 {
		updates["rating_cnt"] = gorm.Expr("rating_cnt + ?", cntDelta)
	}
	if likeDelta != 0 {
		updates["like_count"] = gorm.Expr("like_count + ?", likeDelta)
	}
	if len(updates) == 0 {
		return nil
	}
	if err := tx.Model(&models.Song{}).Where("id = ?", songID).Updates(updates).Error; err != nil {
		return fmt.Errorf("adjust aggregates: %w", err)
	}
	return nil
}
