package handlers

import (
	stdErrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	iauth "github.com/prompthub/authcore/internal/auth"
	"github.com/prompthub/authcore/internal/middleware"
	"github.com/prompthub/authcore/internal/models"
	"github.com/prompthub/authcore/pkg/errors"
	"github.com/prompthub/authcore/pkg/response"
)

// AuthHandler manages local authentication flows (register/login/refresh/logout/me/passwords).
type AuthHandler struct {
	db        *gorm.DB
	passwords *iauth.PasswordService
	tokens    *iauth.TokenService
	oauth     *iauth.OAuthService
	cookie    CookieConfig
}

func NewAuthHandler(db *gorm.DB, passwords *iauth.PasswordService, tokens *iauth.TokenService, oauth *iauth.OAuthService, cookie CookieConfig) *AuthHandler {
	if cookie.TTL <= 0 && tokens != nil {
		cookie.TTL = tokens.RefreshTTL()
	}
	return &AuthHandler{db: db, passwords: passwords, tokens: tokens, oauth: oauth, cookie: cookie}
}

type userResponse struct {
	*models.User
	HasPassword bool `json:"has_password"`
}

func newUserResponse(user *models.User) userResponse {
	return userResponse{User: user, HasPassword: user.HasPassword()}
}

type authResponse struct {
	User        userResponse `json:"user"`
	AccessToken string       `json:"access_token"`
	ExpiresIn   int          `json:"expires_in"`
}

type accessResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

type resetRequest struct {
	Email string `json:"email" validate:"required"`
}

type resetConfirmRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// signedIn sets the refresh cookie and writes the documented sign-in body.
func (h *AuthHandler) signedIn(c *gin.Context, status int, user *models.User, pair iauth.TokenPair) {
	setRefreshCookie(c, h.cookie, pair.RefreshToken)
	response.JSON(c, status, authResponse{
		User:        newUserResponse(user),
		AccessToken: pair.AccessToken,
		ExpiresIn:   pair.ExpiresIn,
	})
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req iauth.RegisterInput
	if !bindJSON(c, &req) {
		return
	}

	user, pair, err := h.passwords.Register(requestContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.signedIn(c, http.StatusCreated, user, pair)
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, pair, err := h.passwords.Login(requestContext(c), req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.signedIn(c, http.StatusOK, user, pair)
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	token := refreshCookie(c)
	if token == "" {
		response.Error(c, errors.ErrInvalidRefreshToken)
		return
	}

	pair, _, err := h.tokens.Rotate(requestContext(c), token)
	if err != nil {
		if stdErrors.Is(err, errors.ErrInvalidRefreshToken) {
			clearRefreshCookie(c, h.cookie)
		}
		response.Error(c, err)
		return
	}

	setRefreshCookie(c, h.cookie, pair.RefreshToken)
	response.JSON(c, http.StatusOK, accessResponse{AccessToken: pair.AccessToken, ExpiresIn: pair.ExpiresIn})
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.tokens.RevokeUser(requestContext(c), userID); err != nil {
		response.Error(c, err)
		return
	}

	clearRefreshCookie(c, h.cookie)
	response.NoContent(c)
}

type linkedProvider struct {
	Provider string    `json:"provider"`
	Email    string    `json:"email,omitempty"`
	LinkedAt time.Time `json:"linked_at"`
}

type meResponse struct {
	User      userResponse     `json:"user"`
	Providers []linkedProvider `json:"providers"`
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var user models.User
	if err := h.db.WithContext(requestContext(c)).Take(&user, userID).Error; err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			response.Error(c, errors.ErrUnauthorized)
			return
		}
		response.Error(c, err)
		return
	}

	linked := []linkedProvider{}
	if h.oauth != nil {
		accounts, err := h.oauth.Linked(requestContext(c), userID)
		if err != nil {
			response.Error(c, err)
			return
		}
		for _, account := range accounts {
			linked = append(linked, linkedProvider{
				Provider: account.Provider,
				Email:    account.Email,
				LinkedAt: account.CreatedAt,
			})
		}
	}

	response.JSON(c, http.StatusOK, meResponse{User: newUserResponse(&user), Providers: linked})
}

// GET /api/auth/session
func (h *AuthHandler) Session(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}

	response.JSON(c, http.StatusOK, gin.H{
		"authenticated": true,
		"expires_in":    int(middleware.TokenExpiresIn(c) / time.Second),
	})
}

// POST /api/auth/password/change
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req changePasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.passwords.ChangePassword(requestContext(c), userID, req.CurrentPassword, req.NewPassword); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// POST /api/auth/password/reset/request
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req resetRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.passwords.RequestPasswordReset(requestContext(c), req.Email); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// POST /api/auth/password/reset/confirm
func (h *AuthHandler) ConfirmPasswordReset(c *gin.Context) {
	var req resetConfirmRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.passwords.ConfirmPasswordReset(requestContext(c), req.Token, req.NewPassword); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
