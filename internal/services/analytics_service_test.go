package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/resonatefm/resonate/internal/models"
	apperrors "github.com/resonatefm/resonate/pkg/errors"
)

func TestRecordView(t *testing.T) {
	db := openServiceTestDB(t)
	songs, err := NewSongService(db)
	require.NoError(t, err)
	analytics, err := NewAnalyticsService(db)
	require.NoError(t, err)

	uploader := createTestUser(t, db, "artist@example.com")
	fan := createTestUser(t, db, "fan@example.com")
	song := createTestSong(t, songs, uploader.ID, "Played")

	require.NoError(t, analytics.RecordView(context.Background(), RecordViewInput{
		SongID:            song.ID,
		UserID:            &fan.ID,
		IPAddress:         "203.0.113.9",
		DurationPlayedSec: 42,
	}))

	// Anonymous plays count too.
	require.NoError(t, analytics.RecordView(context.Background(), RecordViewInput{SongID: song.ID}))

	require.Equal(t, int64(2), reloadSong(t, db, song.ID).ViewCount)

	var views int64
	require.NoError(t, db.Model(&models.SongView{}).Where("song_id = ?", song.ID).Count(&views).Error)
	require.Equal(t, int64(2), views)

	err = analytics.RecordView(context.Background(), RecordViewInput{SongID: "missing-song"})
	requireAppErrorCode(t, err, apperrors.ErrNotFound.Code)
}

func TestStatsForSong(t *testing.T) {
	db := openServiceTestDB(t)
	songs, err := NewSongService(db)
	require.NoError(t, err)
	analytics, err := NewAnalyticsService(db)
	require.NoError(t, err)
	ratings, err := NewRatingService(db)
	require.NoError(t, err)

	uploader := createTestUser(t, db, "artist@example.com")
	fanA := createTestUser(t, db, "a@example.com")
	fanB := createTestUser(t, db, "b@example.com")
	song := createTestSong(t, songs, uploader.ID, "Measured")

	for _, userID := range []*string{&fanA.ID, &fanA.ID, &fanB.ID, nil} {
		require.NoError(t, analytics.RecordView(context.Background(), RecordViewInput{
			SongID: song.ID,
			UserID: userID,
		}))
	}

	_, err = ratings.Rate(context.Background(), fanA.ID, song.ID, 5)
	require.NoError(t, err)
	_, err = ratings.Rate(context.Background(), fanB.ID, song.ID, 4)
	require.NoError(t, err)

	stats, err := analytics.StatsForSong(context.Background(), song.ID)
	require.NoError(t, err)
	require.Equal(t, int64(4), stats.TotalViews)
	require.Equal(t, int64(2), stats.UniqueViewers)
	require.Equal(t, int64(4), stats.ViewsLast7d)
	require.InDelta(t, 4.5, stats.AverageRating, 0.001)

	_, err = analytics.StatsForSong(context.Background(), "missing-song")
	requireAppErrorCode(t, err, apperrors.ErrNotFound.Code)
}

func TestTopSongs(t *testing.T) {
	db := openServiceTestDB(t)
	songs, err := NewSongService(db)
	require.NoError(t, err)
	analytics, err := NewAnalyticsService(db)
	require.NoError(t, err)

	uploader := createTestUser(t, db, "artist@example.com")

	quiet := createTestSong(t, songs, uploader.ID, "Quiet")
	loud := createTestSong(t, songs, uploader.ID, "Loud")
	hidden := createTestSong(t, songs, uploader.ID, "Hidden")
	approveSong(t, db, quiet.ID)
	approveSong(t, db, loud.ID)

	for i := 0; i < 3; i++ {
		require.NoError(t, analytics.RecordView(context.Background(), RecordViewInput{SongID: loud.ID}))
	}
	require.NoError(t, analytics.RecordView(context.Background(), RecordViewInput{SongID: quiet.ID}))
	require.NoError(t, analytics.RecordView(context.Background(), RecordViewInput{SongID: hidden.ID}))

	top, err := analytics.TopSongs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, top, 2) // unmoderated songs never chart
	require.Equal(t, loud.ID, top[0].ID)
	require.Equal(t, quiet.ID, top[1].ID)
}
