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
	"github.com/resonatefm/resonate/pkg/crypto"
	"github.com/resonatefm/resonate/pkg/logger"
	"github.com/resonatefm/resonate/pkg/metrics"
)

const (
	defaultVerificationExpiry = 24 * time.Hour
	verificationTokenBytes    = 32 // 256 bits, hex encoded
)

var (
	// ErrTokenNotFound indicates the token does not exist.
	ErrTokenNotFound = errors.New("verification: token not found")
	// ErrTokenUsed signals that the token has already been consumed.
	ErrTokenUsed = errors.New("verification: token already used")
	// ErrTokenExpired indicates the token has passed its expiry.
	ErrTokenExpired = errors.New("verification: token expired")
)

// VerificationOption customises the VerificationService.
type VerificationOption func(*VerificationService)

// WithVerificationExpiry overrides the token lifetime.
func WithVerificationExpiry(d time.Duration) VerificationOption {
	return func(s *VerificationService) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithVerificationClock injects a custom time source.
func WithVerificationClock(clock func() time.Time) VerificationOption {
	return func(s *VerificationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// VerificationService manages single-use, time-boxed email verification
// tokens. A user holds at most one live token; issuing a new one invalidates
// its predecessors.
type VerificationService struct {
	db     *gorm.DB
	expiry time.Duration
	now    func() time.Time
	log    *zap.Logger
}

// NewVerificationService constructs a VerificationService.
func NewVerificationService(db *gorm.DB, opts ...VerificationOption) (*VerificationService, error) {
	if db == nil {
		return nil, errors.New("verification service: db is required")
	}

	service := &VerificationService{
		db:     db,
		expiry: defaultVerificationExpiry,
		now:    time.Now,
		log:    logger.WithModule("verification"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Issue invalidates any still-live tokens for the user and inserts a fresh
// one, returning the token string for inclusion in the verification link.
func (s *VerificationService) Issue(ctx context.Context, userID, email string) (string, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	email = strings.TrimSpace(strings.ToLower(email))
	if userID == "" {
		return "", errors.New("verification service: user id is required")
	}
	if email == "" {
		return "", errors.New("verification service: email is required")
	}

	token, err := crypto.GenerateHexToken(verificationTokenBytes)
	if err != nil {
		return "", fmt.Errorf("verification service: generate token: %w", err)
	}

	now := s.now()
	record := models.VerificationToken{
		Token:     token,
		UserID:    userID,
		Email:     email,
		ExpiresAt: now.Add(s.expiry),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.VerificationToken{}).
			Where("user_id = ? AND used = ?", userID, false).
			Updates(map[string]any{"used": true, "used_at": now}).Error; err != nil {
			return fmt.Errorf("invalidate previous tokens: %w", err)
		}

		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("create token: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("verification service: %w", err)
	}

	return token, nil
}

// Redemption describes the user whose address a redeemed token proved.
type Redemption struct {
	UserID string
	Email  string
}

// Redeem consumes a token and marks the owning user's email as verified. The
// used flip is a conditional update so two concurrent redemptions of the same
// token cannot both succeed.
func (s *VerificationService) Redeem(ctx context.Context, token, ip, userAgent string) (*Redemption, error) {
	ctx = ensureContext(ctx)

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenNotFound
	}

	var record models.VerificationToken
	if err := s.db.WithContext(ctx).
		Where("token = ?", token).
		First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.VerificationRedemptions.WithLabelValues("not_found").Inc()
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("verification service: find token: %w", err)
	}

	now := s.now()
	if record.Used {
		metrics.VerificationRedemptions.WithLabelValues("used").Inc()
		return nil, ErrTokenUsed
	}
	if now.After(record.ExpiresAt) {
		metrics.VerificationRedemptions.WithLabelValues("expired").Inc()
		return nil, ErrTokenExpired
	}

	var redemption *Redemption
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.VerificationToken{}).
			Where("token = ? AND used = ?", token, false).
			Updates(map[string]any{
				"used":            true,
				"used_at":         now,
				"used_ip":         strings.TrimSpace(ip),
				"used_user_agent": strings.TrimSpace(userAgent),
			})
		if result.Error != nil {
			return fmt.Errorf("mark used: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			// Lost the race against a concurrent redemption.
			return ErrTokenUsed
		}

		if err := tx.Model(&models.User{}).
			Where("id = ?", record.UserID).
			Updates(map[string]any{"email_verified": true, "email_verified_at": now}).Error; err != nil {
			return fmt.Errorf("mark user verified: %w", err)
		}

		redemption = &Redemption{UserID: record.UserID, Email: record.Email}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTokenUsed) {
			metrics.VerificationRedemptions.WithLabelValues("used").Inc()
			return nil, ErrTokenUsed
		}
		return nil, fmt.Errorf("verification service: %w", err)
	}

	metrics.VerificationRedemptions.WithLabelValues("success").Inc()
	s.log.Info("email verified", zap.String("user_id", record.UserID))
	return redemption, nil
}

// PurgeExpired deletes tokens past expiry that were never consumed and
// returns the number removed. Safe to run concurrently; expired rows only.
func (s *VerificationService) PurgeExpired(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("expires_at < ? AND used = ?", s.now(), false).
		Delete(&models.VerificationToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("verification service: purge expired: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.log.Info("purged expired verification tokens", zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}
