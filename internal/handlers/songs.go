package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/resonatefm/resonate/internal/services"
	appErrors "github.com/resonatefm/resonate/pkg/errors"
	"github.com/resonatefm/resonate/pkg/response"
)

// SongHandler exposes catalog, engagement, and analytics endpoints.
type SongHandler struct {
	songs     *services.SongService
	ratings   *services.RatingService
	analytics *services.AnalyticsService
}

// NewSongHandler configures a song handler with required services.
func NewSongHandler(songs *services.SongService, ratings *services.RatingService, analytics *services.AnalyticsService) *SongHandler {
	return &SongHandler{songs: songs, ratings: ratings, analytics: analytics}
}

type createSongRequest struct {
	Title       string `json:"title" validate:"required,max=256"`
	Artist      string `json:"artist" validate:"required,max=256"`
	Album       string `json:"album" validate:"omitempty,max=256"`
	Genre       string `json:"genre" validate:"omitempty,max=64"`
	DurationSec int    `json:"duration_sec" validate:"omitempty,min=0"`
	CoverURL    string `json:"cover_url" validate:"omitempty,max=512"`
	FileURL     string `json:"file_url" validate:"required,max=512"`
	FileSize    int64  `json:"file_size" validate:"omitempty,min=0"`
	Format      string `json:"format" validate:"omitempty,max=16"`
	Checksum    string `json:"checksum" validate:"omitempty,max=128"`
}

type updateSongRequest struct {
	Title    *string `json:"title" validate:"omitempty,max=256"`
	Album    *string `json:"album" validate:"omitempty,max=256"`
	Genre    *string `json:"genre" validate:"omitempty,max=64"`
	CoverURL *string `json:"cover_url" validate:"omitempty,max=512"`
}

type addVersionRequest struct {
	FileURL   string `json:"file_url" validate:"required,max=512"`
	FileSize  int64  `json:"file_size" validate:"omitempty,min=0"`
	Bitrate   int    `json:"bitrate" validate:"omitempty,min=0"`
	Format    string `json:"format" validate:"omitempty,max=16"`
	Checksum  string `json:"checksum" validate:"omitempty,max=128"`
	ChangeLog string `json:"change_log" validate:"omitempty,max=2048"`
}

type moderateRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected"`
	Note   string `json:"note" validate:"omitempty,max=2048"`
}

type rateRequest struct {
	Score int `json:"score" validate:"required,min=1,max=5"`
}

type recordViewRequest struct {
	DurationPlayedSec int `json:"duration_played_sec" validate:"omitempty,min=0"`
}

// Create registers a new song in moderation-pending state.
func (h *SongHandler) Create(c *gin.Context) {
	var body createSongRequest
	if !bindAndValidate(c, &body) {
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	song, err := h.songs.Create(requestContext(c), services.CreateSongInput{
		UploaderID:  userID,
		Title:       body.Title,
		Artist:      body.Artist,
		Album:       body.Album,
		Genre:       body.Genre,
		DurationSec: body.DurationSec,
		CoverURL:    body.CoverURL,
		FileURL:     body.FileURL,
		FileSize:    body.FileSize,
		Format:      body.Format,
		Checksum:    body.Checksum,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, song)
}

// Get returns a song with its version history.
func (h *SongHandler) Get(c *gin.Context) {
	song, err := h.songs.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, song)
}

// List returns catalog entries matching the query filters.
func (h *SongHandler) List(c *gin.Context) {
	input := services.ListSongsInput{
		Genre:      c.Query("genre"),
		Artist:     c.Query("artist"),
		UploaderID: c.Query("uploader_id"),
		Limit:      parseIntQuery(c, "limit", 25),
		Offset:     parseIntQuery(c, "offset", 0),
	}

	// Only moderators can peek beyond the approved catalog.
	if isAdmin(c) {
		input.Moderation = c.Query("moderation")
	}

	songs, err := h.songs.List(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, songs)
}

// Update applies metadata changes on behalf of the uploader.
func (h *SongHandler) Update(c *gin.Context) {
	var body updateSongRequest
	if !bindAndValidate(c, &body) {
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	song, err := h.songs.Update(requestContext(c), userID, c.Param("id"), services.UpdateSongInput{
		Title:    body.Title,
		Album:    body.Album,
		Genre:    body.Genre,
		CoverURL: body.CoverURL,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, song)
}

// Delete removes a song and its versions.
func (h *SongHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.songs.Delete(requestContext(c), userID, c.Param("id"), isAdmin(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// AddVersion uploads a replacement revision of the audio.
func (h *SongHandler) AddVersion(c *gin.Context) {
	var body addVersionRequest
	if !bindAndValidate(c, &body) {
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	version, err := h.songs.AddVersion(requestContext(c), userID, c.Param("id"), services.AddVersionInput{
		FileURL:   body.FileURL,
		FileSize:  body.FileSize,
		Bitrate:   body.Bitrate,
		Format:    body.Format,
		Checksum:  body.Checksum,
		ChangeLog: body.ChangeLog,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, version)
}

// Moderate transitions a pending song to approved or rejected.
func (h *SongHandler) Moderate(c *gin.Context) {
	var body moderateRequest
	if !bindAndValidate(c, &body) {
		return
	}

	moderatorID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	song, err := h.songs.Moderate(requestContext(c), moderatorID, c.Param("id"), body.Status, body.Note)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, song)
}

// Rate records or replaces the caller's score.
func (h *SongHandler) Rate(c *gin.Context) {
	var body rateRequest
	if !bindAndValidate(c, &body) {
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	rating, err := h.ratings.Rate(requestContext(c), userID, c.Param("id"), body.Score)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rating)
}

// ToggleLike flips the caller's like flag.
func (h *SongHandler) ToggleLike(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	liked, err := h.ratings.ToggleLike(requestContext(c), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"liked": liked})
}

// AddFavorite saves the song to the caller's library.
func (h *SongHandler) AddFavorite(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.ratings.AddFavorite(requestContext(c), userID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"favorited": true})
}

// RemoveFavorite drops the song from the caller's library.
func (h *SongHandler) RemoveFavorite(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.ratings.RemoveFavorite(requestContext(c), userID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"favorited": false})
}

// ListFavorites returns the caller's saved songs.
func (h *SongHandler) ListFavorites(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	favorites, err := h.ratings.ListFavorites(requestContext(c), userID,
		parseIntQuery(c, "limit", 25), parseIntQuery(c, "offset", 0))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, favorites)
}

// RecordView logs a play. Anonymous plays are accepted.
func (h *SongHandler) RecordView(c *gin.Context) {
	var body recordViewRequest
	if c.Request.ContentLength > 0 && !bindAndValidate(c, &body) {
		return
	}

	input := services.RecordViewInput{
		SongID:            c.Param("id"),
		IPAddress:         c.ClientIP(),
		UserAgent:         c.Request.UserAgent(),
		DurationPlayedSec: body.DurationPlayedSec,
	}
	if userID, ok := currentUserID(c); ok {
		input.UserID = &userID
	}

	if err := h.analytics.RecordView(requestContext(c), input); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"recorded": true})
}

// Stats returns per-song play and rating aggregates.
func (h *SongHandler) Stats(c *gin.Context) {
	stats, err := h.analytics.StatsForSong(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// Top returns the most-viewed approved songs.
func (h *SongHandler) Top(c *gin.Context) {
	songs, err := h.analytics.TopSongs(requestContext(c), parseIntQuery(c, "limit", 10))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, songs)
}
