package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/resonatefm/resonate/internal/auth"
	"github.com/resonatefm/resonate/internal/models"
	"github.com/resonatefm/resonate/pkg/crypto"
	apperrors "github.com/resonatefm/resonate/pkg/errors"
	"github.com/resonatefm/resonate/pkg/logger"
)

// UserService manages accounts, local credentials, and the verification
// email flow that follows registration.
type UserService struct {
	db            *gorm.DB
	emails        *EmailService
	verifications *VerificationService
	now           func() time.Time
	log           *zap.Logger
}

// NewUserService constructs a UserService with the provided dependencies.
func NewUserService(db *gorm.DB, emails *EmailService, verifications *VerificationService) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	if emails == nil {
		return nil, errors.New("user service: email service is required")
	}
	if verifications == nil {
		return nil, errors.New("user service: verification service is required")
	}
	return &UserService{
		db:            db,
		emails:        emails,
		verifications: verifications,
		now:           time.Now,
		log:           logger.WithModule("users"),
	}, nil
}

// RegisterInput defines attributes for local registration.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Register creates a local account and queues its verification email. The
// enqueue must succeed for registration to succeed; the caller needs to know
// when the verification mail could not be written.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if username == "" || email == "" {
		return nil, apperrors.NewBadRequest("username and email are required")
	}
	if len(input.Password) < 8 {
		return nil, apperrors.NewBadRequest("password must be at least 8 characters")
	}

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := models.User{
		Username:  username,
		Email:     email,
		Password:  hash,
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		IsActive:  true,
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.ErrConflict.WithInternal(err)
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}

	if err := s.sendVerification(ctx, &user); err != nil {
		return nil, err
	}

	s.log.Info("user registered", zap.String("user_id", user.ID))
	return &user, nil
}

// ResendVerification issues a fresh token for an unverified user, superseding
// any live predecessor, and queues a new verification email.
func (s *UserService) ResendVerification(ctx context.Context, email string) error {
	ctx = ensureContext(ctx)

	email = strings.TrimSpace(strings.ToLower(email))
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("user service: find user: %w", err)
	}

	if user.EmailVerified {
		return apperrors.NewBadRequest("email address is already verified")
	}

	return s.sendVerification(ctx, &user)
}

func (s *UserService) sendVerification(ctx context.Context, user *models.User) error {
	token, err := s.verifications.Issue(ctx, user.ID, user.Email)
	if err != nil {
		return fmt.Errorf("user service: issue verification token: %w", err)
	}

	if _, err := s.emails.EnqueueVerificationEmail(ctx, user, token); err != nil {
		return fmt.Errorf("user service: queue verification email: %w", err)
	}
	return nil
}

// Authenticate validates local credentials and returns the account.
func (s *UserService) Authenticate(ctx context.Context, email, password, ip string) (*models.User, error) {
	ctx = ensureContext(ctx)

	email = strings.TrimSpace(strings.ToLower(email))
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("user service: find user: %w", err)
	}

	if !user.IsActive || user.Password == "" || !crypto.VerifyPassword(user.Password, password) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if !user.EmailVerified {
		return nil, apperrors.ErrEmailNotVerified
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&user).
		Updates(map[string]any{"last_login_at": now, "last_login_ip": strings.TrimSpace(ip)}).Error; err != nil {
		s.log.Warn("record login failed", zap.Error(err))
	}

	return &user, nil
}

// UpsertOAuthUser finds or creates the account matching a provider identity.
// Provider-asserted verified emails skip the local verification flow.
func (s *UserService) UpsertOAuthUser(ctx context.Context, provider string, identity *auth.Identity) (*models.User, error) {
	ctx = ensureContext(ctx)

	if identity == nil || strings.TrimSpace(identity.Subject) == "" {
		return nil, errors.New("user service: identity subject is required")
	}
	email := strings.TrimSpace(strings.ToLower(identity.Email))
	if email == "" {
		return nil, apperrors.NewBadRequest("provider did not supply an email address")
	}

	var user models.User
	err := s.db.WithContext(ctx).
		Where("o_auth_provider = ? AND o_auth_subject = ?", provider, identity.Subject).
		First(&user).Error
	switch {
	case err == nil:
		return &user, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("user service: find oauth user: %w", err)
	}

	// Link to an existing local account on matching email.
	err = s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	switch {
	case err == nil:
		if err := s.db.WithContext(ctx).Model(&user).
			Updates(map[string]any{"o_auth_provider": provider, "o_auth_subject": identity.Subject}).Error; err != nil {
			return nil, fmt.Errorf("user service: link oauth identity: %w", err)
		}
		return &user, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("user service: find user by email: %w", err)
	}

	user = models.User{
		Username:      usernameFromEmail(email),
		Email:         email,
		FirstName:     identity.FirstName,
		LastName:      identity.LastName,
		AvatarURL:     identity.AvatarURL,
		OAuthProvider: provider,
		OAuthSubject:  identity.Subject,
		IsActive:      true,
		EmailVerified: identity.EmailVerified,
	}
	if user.EmailVerified {
		now := s.now()
		user.EmailVerifiedAt = &now
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("user service: create oauth user: %w", err)
	}

	if !user.EmailVerified {
		if err := s.sendVerification(ctx, &user); err != nil {
			return nil, err
		}
	}

	s.log.Info("oauth user created", zap.String("user_id", user.ID), zap.String("provider", provider))
	return &user, nil
}

// GetByID loads a single account.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("user service: load user: %w", err)
	}
	return &user, nil
}

// UpdateProfileInput carries mutable profile fields; nil means unchanged.
type UpdateProfileInput struct {
	FirstName *string
	LastName  *string
	Bio       *string
	AvatarURL *string
}

// UpdateProfile applies partial profile changes.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*input.LastName)
	}
	if input.Bio != nil {
		updates["bio"] = strings.TrimSpace(*input.Bio)
	}
	if input.AvatarURL != nil {
		updates["avatar_url"] = strings.TrimSpace(*input.AvatarURL)
	}
	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("user service: update profile: %w", err)
	}
	return s.GetByID(ctx, userID)
}

func usernameFromEmail(email string) string {
	local := email
	if i := strings.Index(email, "@"); i > 0 {
		local = email[:i]
	}
	return local
}
