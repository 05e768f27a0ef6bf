package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/resonatefm/resonate/internal/services"
	appErrors "github.com/resonatefm/resonate/pkg/errors"
	"github.com/resonatefm/resonate/pkg/response"
)

// UserHandler exposes public profile and self-service endpoints.
type UserHandler struct {
	users *services.UserService
	songs *services.SongService
}

// NewUserHandler configures a user handler with required services.
func NewUserHandler(users *services.UserService, songs *services.SongService) *UserHandler {
	return &UserHandler{users: users, songs: songs}
}

type updateProfileRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=128"`
	LastName  *string `json:"last_name" validate:"omitempty,max=128"`
	Bio       *string `json:"bio" validate:"omitempty,max=4096"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,max=512"`
}

// Get returns a public profile by id.
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.users.GetByID(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// Songs lists the approved uploads of a user.
func (h *UserHandler) Songs(c *gin.Context) {
	songs, err := h.songs.List(requestContext(c), services.ListSongsInput{
		UploaderID: c.Param("id"),
		Limit:      parseIntQuery(c, "limit", 25),
		Offset:     parseIntQuery(c, "offset", 0),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, songs)
}

// UpdateProfile modifies the authenticated user's profile details.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var body updateProfileRequest
	if !bindAndValidate(c, &body) {
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	user, err := h.users.UpdateProfile(requestContext(c), userID, services.UpdateProfileInput{
		FirstName: body.FirstName,
		LastName:  body.LastName,
		Bio:       body.Bio,
		AvatarURL: body.AvatarURL,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}
