package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/resonatefm/resonate/internal/auth"
	"github.com/resonatefm/resonate/internal/models"
	"github.com/resonatefm/resonate/internal/services"
	"github.com/resonatefm/resonate/pkg/crypto"
	appErrors "github.com/resonatefm/resonate/pkg/errors"
	"github.com/resonatefm/resonate/pkg/response"
)

const oauthStateCookieTTL = 10 * time.Minute

// AuthHandler exposes registration, login, and email verification endpoints.
type AuthHandler struct {
	users *services.UserService
	jwt   *iauth.JWTService
	oidc  *iauth.OIDCProvider
}

// NewAuthHandler configures an auth handler. The OIDC provider may be nil when
// external login is not configured.
func NewAuthHandler(users *services.UserService, jwt *iauth.JWTService, oidc *iauth.OIDCProvider) *AuthHandler {
	return &AuthHandler{users: users, jwt: jwt, oidc: oidc}
}

type registerRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=64"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=128"`
	FirstName string `json:"first_name" validate:"omitempty,max=128"`
	LastName  string `json:"last_name" validate:"omitempty,max=128"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type resendRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type sessionResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Register creates a local account and queues its verification email.
func (h *AuthHandler) Register(c *gin.Context) {
	var body registerRequest
	if !bindAndValidate(c, &body) {
		return
	}

	user, err := h.users.Register(requestContext(c), services.RegisterInput{
		Username:  body.Username,
		Email:     body.Email,
		Password:  body.Password,
		FirstName: body.FirstName,
		LastName:  body.LastName,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, user)
}

// Login exchanges local credentials for an access token.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if !bindAndValidate(c, &body) {
		return
	}

	user, err := h.users.Authenticate(requestContext(c), body.Email, body.Password, c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}

	token, err := h.jwt.GenerateAccessToken(iauth.AccessTokenInput{UserID: user.ID, IsAdmin: user.IsAdmin})
	if err != nil {
		response.Error(c, appErrors.Wrap(err, "could not issue access token"))
		return
	}

	response.Success(c, http.StatusOK, sessionResponse{Token: token, User: user})
}

// VerifyEmail redeems the token carried by the verification link.
func (h *AuthHandler) VerifyEmail(verifications *services.VerificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")

		redemption, err := verifications.Redeem(requestContext(c), token, c.ClientIP(), c.Request.UserAgent())
		if err != nil {
			response.Error(c, verificationError(err))
			return
		}

		response.Success(c, http.StatusOK, gin.H{
			"user_id":  redemption.UserID,
			"email":    redemption.Email,
			"verified": true,
		})
	}
}

// ResendVerification issues a fresh token and queues a new verification email.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var body resendRequest
	if !bindAndValidate(c, &body) {
		return
	}

	if err := h.users.ResendVerification(requestContext(c), body.Email); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{"queued": true})
}

// Me returns the authenticated account.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	user, err := h.users.GetByID(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}

// OAuthBegin starts the authorization-code flow against the configured provider.
func (h *AuthHandler) OAuthBegin(c *gin.Context) {
	if h.oidc == nil {
		response.Error(c, appErrors.New("auth.oauth_disabled", "External login is not configured", http.StatusNotFound))
		return
	}

	state, err := crypto.GenerateToken(24)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, "could not start login"))
		return
	}
	nonce, err := crypto.GenerateToken(24)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, "could not start login"))
		return
	}

	maxAge := int(oauthStateCookieTTL.Seconds())
	c.SetCookie("oauth_state", state, maxAge, "/", "", false, true)
	c.SetCookie("oauth_nonce", nonce, maxAge, "/", "", false, true)

	c.Redirect(http.StatusFound, h.oidc.AuthCodeURL(state, nonce))
}

// OAuthCallback completes the code flow, provisions the account, and issues a token.
func (h *AuthHandler) OAuthCallback(c *gin.Context) {
	if h.oidc == nil {
		response.Error(c, appErrors.New("auth.oauth_disabled", "External login is not configured", http.StatusNotFound))
		return
	}

	state, err := c.Cookie("oauth_state")
	if err != nil || state == "" || c.Query("state") != state {
		response.Error(c, appErrors.NewBadRequest("login state mismatch, restart the flow"))
		return
	}
	nonce, _ := c.Cookie("oauth_nonce")

	c.SetCookie("oauth_state", "", -1, "/", "", false, true)
	c.SetCookie("oauth_nonce", "", -1, "/", "", false, true)

	identity, err := h.oidc.Exchange(requestContext(c), c.Query("code"), nonce)
	if err != nil {
		response.Error(c, appErrors.New("auth.oauth_exchange_failed", "Could not complete external login", http.StatusBadGateway).WithInternal(err))
		return
	}

	user, err := h.users.UpsertOAuthUser(requestContext(c), "oidc", identity)
	if err != nil {
		response.Error(c, err)
		return
	}

	token, err := h.jwt.GenerateAccessToken(iauth.AccessTokenInput{UserID: user.ID, IsAdmin: user.IsAdmin})
	if err != nil {
		response.Error(c, appErrors.Wrap(err, "could not issue access token"))
		return
	}

	response.Success(c, http.StatusOK, sessionResponse{Token: token, User: user})
}

func verificationError(err error) error {
	switch {
	case errors.Is(err, services.ErrTokenNotFound):
		return appErrors.ErrVerificationNotFound
	case errors.Is(err, services.ErrTokenUsed):
		return appErrors.ErrVerificationUsed
	case errors.Is(err, services.ErrTokenExpired):
		return appErrors.ErrVerificationExpired
	default:
		return err
	}
}
