package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/resonatefm/resonate/internal/models"
)

func createTestUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	user := models.User{
		Username: email,
		Email:    email,
		IsActive: true,
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func TestVerificationIssueAndRedeem(t *testing.T) {
	db := openServiceTestDB(t)
	service, err := NewVerificationService(db)
	require.NoError(t, err)

	user := createTestUser(t, db, "fan@example.com")

	token, err := service.Issue(context.Background(), user.ID, user.Email)
	require.NoError(t, err)
	require.Len(t, token, 64) // 32 random bytes, hex encoded

	redemption, err := service.Redeem(context.Background(), token, "203.0.113.9", "test-agent")
	require.NoError(t, err)
	require.Equal(t, user.ID, redemption.UserID)
	require.Equal(t, user.Email, redemption.Email)

	var got models.User
	require.NoError(t, db.First(&got, "id = ?", user.ID).Error)
	require.True(t, got.EmailVerified)
	require.NotNil(t, got.EmailVerifiedAt)

	var record models.VerificationToken
	require.NoError(t, db.First(&record, "token = ?", token).Error)
	require.True(t, record.Used)
	require.NotNil(t, record.UsedAt)
	require.Equal(t, "203.0.113.9", record.UsedIP)
	require.Equal(t, "test-agent", record.UsedUserAgent)
}

func TestVerificationIssueValidation(t *testing.T) {
	db := openServiceTestDB(t)
	service, err := NewVerificationService(db)
	require.NoError(t, err)

	_, err = service.Issue(context.Background(), "", "fan@example.com")
	require.Error(t, err)

	_, err = service.Issue(context.Background(), "some-user", "")
	require.Error(t, err)
}

func TestVerificationRedeemIsSingleUse(t *testing.T) {
	db := openServiceTestDB(t)
	service, err := NewVerificationService(db)
	require.NoError(t, err)

	user := createTestUser(t, db, "fan@example.com")
	token, err := service.Issue(context.Background(), user.ID, user.Email)
	require.NoError(t, err)

	_, err = service.Redeem(context.Background(), token, "", "")
	require.NoError(t, err)

	_, err = service.Redeem(context.Background(), token, "", "")
	require.ErrorIs(t, err, ErrTokenUsed)
}

func TestVerificationRedeemUnknownToken(t *testing.T) {
	db := openServiceTestDB(t)
	service, err := NewVerificationService(db)
	require.NoError(t, err)

	_, err = service.Redeem(context.Background(), "deadbeef", "", "")
	require.ErrorIs(t, err, ErrTokenNotFound)

	_, err = service.Redeem(context.Background(), "", "", "")
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestVerificationRedeemExpiredToken(t *testing.T) {
	db := openServiceTestDB(t)
	clock := newTestClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	service, err := NewVerificationService(db,
		WithVerificationClock(clock.Now),
		WithVerificationExpiry(time.Hour))
	require.NoError(t, err)

	user := createTestUser(t, db, "fan@example.com")
	token, err := service.Issue(context.Background(), user.ID, user.Email)
	require.NoError(t, err)

	clock.Advance(time.Hour + time.Second)
	_, err = service.Redeem(context.Background(), token, "", "")
	require.ErrorIs(t, err, ErrTokenExpired)

	var got models.User
	require.NoError(t, db.First(&got, "id = ?", user.ID).Error)
	require.False(t, got.EmailVerified)
}

func TestVerificationIssueSupersedesPriorTokens(t *testing.T) {
	db := openServiceTestDB(t)
	service, err := NewVerificationService(db)
	require.NoError(t, err)

	user := createTestUser(t, db, "fan@example.com")

	first, err := service.Issue(context.Background(), user.ID, user.Email)
	require.NoError(t, err)
	second, err := service.Issue(context.Background(), user.ID, user.Email)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	// The superseded token no longer redeems.
	_, err = service.Redeem(context.Background(), first, "", "")
	require.ErrorIs(t, err, ErrTokenUsed)

	// The latest one does.
	_, err = service.Redeem(context.Background(), second, "", "")
	require.NoError(t, err)
}

func TestVerificationPurgeExpired(t *testing.T) {
	db := openServiceTestDB(t)
	clock := newTestClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	service, err := NewVerificationService(db,
		WithVerificationClock(clock.Now),
		WithVerificationExpiry(time.Hour))
	require.NoError(t, err)

	expiredUser := createTestUser(t, db, "stale@example.com")
	_, err = service.Issue(context.Background(), expiredUser.ID, expiredUser.Email)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	liveUser := createTestUser(t, db, "fresh@example.com")
	liveToken, err := service.Issue(context.Background(), liveUser.ID, liveUser.Email)
	require.NoError(t, err)

	purged, err := service.PurgeExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)

	// The live token survives the purge.
	_, err = service.Redeem(context.Background(), liveToken, "", "")
	require.NoError(t, err)

	// No expired unused rows remain, so a second purge removes nothing.
	purged, err = service.PurgeExpired(context.Background())
	require.NoError(t, err)
	require.Zero(t, purged)
}
