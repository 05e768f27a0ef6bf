package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/resonatefm/resonate/internal/auth"
	"github.com/resonatefm/resonate/internal/models"
	apperrors "github.com/resonatefm/resonate/pkg/errors"
)

func newTestUserService(t *testing.T, db *gorm.DB) (*UserService, *EmailService, *VerificationService) {
	t.Helper()

	emails, err := NewEmailService(db, &fakeMailer{}, WithEmailBaseURL("https://resonate.test"))
	require.NoError(t, err)
	verifications, err := NewVerificationService(db)
	require.NoError(t, err)
	users, err := NewUserService(db, emails, verifications)
	require.NoError(t, err)
	return users, emails, verifications
}

func requireAppErrorCode(t *testing.T, err error, code string) {
	t.Helper()

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, code, appErr.Code)
}

func TestRegisterQueuesVerificationEmail(t *testing.T) {
	db := openServiceTestDB(t)
	users, _, _ := newTestUserService(t, db)

	user, err := users.Register(context.Background(), RegisterInput{
		Username:  "ada",
		Email:     "Ada@Example.com",
		Password:  "correct horse",
		FirstName: "Ada",
	})
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", user.Email)
	require.False(t, user.EmailVerified)
	require.NotEqual(t, "correct horse", user.Password)

	var token models.VerificationToken
	require.NoError(t, db.First(&token, "user_id = ?", user.ID).Error)
	require.False(t, token.Used)

	var queued models.QueuedEmail
	require.NoError(t, db.First(&queued, "user_id = ?", user.ID).Error)
	require.Equal(t, models.EmailTypeVerification, queued.EmailType)
	require.Equal(t, models.EmailStatusPending, queued.Status)
	require.Equal(t, verificationPriority, queued.Priority)
	require.Contains(t, queued.TextBody, token.Token)
}

func TestRegisterValidation(t *testing.T) {
	db := openServiceTestDB(t)
	users, _, _ := newTestUserService(t, db)

	_, err := users.Register(context.Background(), RegisterInput{Email: "a@b.c", Password: "long enough"})
	requireAppErrorCode(t, err, apperrors.ErrBadRequest.Code)

	_, err = users.Register(context.Background(), RegisterInput{Username: "ada", Email: "a@b.c", Password: "short"})
	requireAppErrorCode(t, err, apperrors.ErrBadRequest.Code)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	db := openServiceTestDB(t)
	users, _, _ := newTestUserService(t, db)

	input := RegisterInput{Username: "ada", Email: "ada@example.com", Password: "correct horse"}
	_, err := users.Register(context.Background(), input)
	require.NoError(t, err)

	input.Username = "ada2"
	_, err = users.Register(context.Background(), input)
	requireAppErrorCode(t, err, apperrors.ErrConflict.Code)
}

func TestResendVerificationSupersedesToken(t *testing.T) {
	db := openServiceTestDB(t)
	users, _, verifications := newTestUserService(t, db)

	user, err := users.Register(context.Background(), RegisterInput{
		Username: "ada",
		Email:    "ada@example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)

	var first models.VerificationToken
	require.NoError(t, db.First(&first, "user_id = ? AND used = ?", user.ID, false).Error)

	require.NoError(t, users.ResendVerification(context.Background(), user.Email))

	// The original token was invalidated by the reissue.
	_, err = verifications.Redeem(context.Background(), first.Token, "", "")
	require.ErrorIs(t, err, ErrTokenUsed)

	var second models.VerificationToken
	require.NoError(t, db.First(&second, "user_id = ? AND used = ?", user.ID, false).Error)
	_, err = verifications.Redeem(context.Background(), second.Token, "", "")
	require.NoError(t, err)

	// Once verified, asking again is rejected.
	err = users.ResendVerification(context.Background(), user.Email)
	requireAppErrorCode(t, err, apperrors.ErrBadRequest.Code)
}

func TestResendVerificationUnknownEmail(t *testing.T) {
	db := openServiceTestDB(t)
	users, _, _ := newTestUserService(t, db)

	err := users.ResendVerification(context.Background(), "ghost@example.com")
	requireAppErrorCode(t, err, apperrors.ErrNotFound.Code)
}

func TestAuthenticateRequiresVerifiedEmail(t *testing.T) {
	db := openServiceTestDB(t)
	users, _, verifications := newTestUserService(t, db)

	user, err := users.Register(context.Background(), RegisterInput{
		Username: "ada",
		Email:    "ada@example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)

	_, err = users.Authenticate(context.Background(), user.Email, "correct horse", "127.0.0.1")
	requireAppErrorCode(t, err, apperrors.ErrEmailNotVerified.Code)

	var token models.VerificationToken
	require.NoError(t, db.First(&token, "user_id = ? AND used = ?", user.ID, false).Error)
	_, err = verifications.Redeem(context.Background(), token.Token, "", "")
	require.NoError(t, err)

	got, err := users.Authenticate(context.Background(), user.Email, "correct horse", "127.0.0.1")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)

	reloaded, err := users.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastLoginAt)
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	db := openServiceTestDB(t)
	users, _, _ := newTestUserService(t, db)

	_, err := users.Authenticate(context.Background(), "ghost@example.com", "whatever!", "")
	requireAppErrorCode(t, err, apperrors.ErrInvalidCredentials.Code)

	user, err := users.Register(context.Background(), RegisterInput{
		Username: "ada",
		Email:    "ada@example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)

	_, err = users.Authenticate(context.Background(), user.Email, "wrong horse", "")
	requireAppErrorCode(t, err, apperrors.ErrInvalidCredentials.Code)
}

func TestUpsertOAuthUser(t *testing.T) {
	db := openServiceTestDB(t)
	users, _, _ := newTestUserService(t, db)

	identity := &auth.Identity{
		Subject:       "sub-1",
		Email:         "ada@example.com",
		FirstName:     "Ada",
		EmailVerified: true,
	}

	created, err := users.UpsertOAuthUser(context.Background(), "authentik", identity)
	require.NoError(t, err)
	require.True(t, created.EmailVerified)
	require.Equal(t, "ada", created.Username)

	// Provider-verified accounts skip the verification queue entirely.
	var queued int64
	require.NoError(t, db.Model(&models.QueuedEmail{}).Count(&queued).Error)
	require.Zero(t, queued)

	// A second callback resolves to the same account.
	again, err := users.UpsertOAuthUser(context.Background(), "authentik", identity)
	require.NoError(t, err)
	require.Equal(t, created.ID, again.ID)
}

func TestUpsertOAuthUserLinksExistingAccount(t *testing.T) {
	db := openServiceTestDB(t)
	users, _, _ := newTestUserService(t, db)

	local, err := users.Register(context.Background(), RegisterInput{
		Username: "ada",
		Email:    "ada@example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)

	linked, err := users.UpsertOAuthUser(context.Background(), "authentik", &auth.Identity{
		Subject: "sub-1",
		Email:   "ada@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, local.ID, linked.ID)

	reloaded, err := users.GetByID(context.Background(), local.ID)
	require.NoError(t, err)
	require.Equal(t, "authentik", reloaded.OAuthProvider)
}

func TestUpsertOAuthUserUnverifiedEmailGetsQueued(t *testing.T) {
	db := openServiceTestDB(t)
	users, _, _ := newTestUserService(t, db)

	created, err := users.UpsertOAuthUser(context.Background(), "authentik", &auth.Identity{
		Subject: "sub-2",
		Email:   "new@example.com",
	})
	require.NoError(t, err)
	require.False(t, created.EmailVerified)

	var queued models.QueuedEmail
	require.NoError(t, db.First(&queued, "user_id = ?", created.ID).Error)
	require.Equal(t, models.EmailTypeVerification, queued.EmailType)
}

func TestUpdateProfilePartial(t *testing.T) {
	db := openServiceTestDB(t)
	users, _, _ := newTestUserService(t, db)

	user, err := users.Register(context.Background(), RegisterInput{
		Username:  "ada",
		Email:     "ada@example.com",
		Password:  "correct horse",
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	require.NoError(t, err)

	bio := "composer of algorithms"
	updated, err := users.UpdateProfile(context.Background(), user.ID, UpdateProfileInput{Bio: &bio})
	require.NoError(t, err)
	require.Equal(t, bio, updated.Bio)
	require.Equal(t, "Ada", updated.FirstName)

	// No fields set means no change.
	same, err := users.UpdateProfile(context.Background(), user.ID, UpdateProfileInput{})
	require.NoError(t, err)
	require.Equal(t, bio, same.Bio)
}
