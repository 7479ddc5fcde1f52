package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/prompthub/authcore/internal/auth"
	"github.com/prompthub/authcore/pkg/logger"
	"github.com/prompthub/authcore/pkg/response"
)

// OAuthHandler drives the provider round trip and manages provider links.
type OAuthHandler struct {
	oauth  *iauth.OAuthService
	appURL string
	cookie CookieConfig
	log    *zap.Logger
}

func NewOAuthHandler(oauth *iauth.OAuthService, appURL string, cookie CookieConfig) *OAuthHandler {
	return &OAuthHandler{
		oauth:  oauth,
		appURL: strings.TrimRight(strings.TrimSpace(appURL), "/"),
		cookie: cookie,
		log:    logger.WithModule("oauth"),
	}
}

// GET /api/auth/oauth/:provider/start
func (h *OAuthHandler) Start(c *gin.Context) {
	started, err := h.oauth.Begin(c.Param("provider"), iauth.OAuthModeLogin, 0)
	if err != nil {
		response.Error(c, err)
		return
	}
	setOAuthBindingCookie(c, h.cookie, started.Binding, h.oauth.StateTTL())
	c.Redirect(http.StatusFound, started.URL)
}

// GET /api/auth/oauth/:provider/callback
func (h *OAuthHandler) Callback(c *gin.Context) {
	provider := c.Param("provider")
	binding := takeOAuthBindingCookie(c, h.cookie)

	if providerErr := strings.TrimSpace(c.Query("error")); providerErr != "" {
		h.log.Info("provider denied authorization",
			zap.String("provider", provider),
			zap.String("error", providerErr),
		)
		h.redirectFailure(c)
		return
	}

	result, err := h.oauth.Complete(requestContext(c), provider, c.Query("state"), c.Query("code"), binding)
	if err != nil {
		h.log.Warn("oauth callback failed", zap.String("provider", provider), zap.Error(err))
		h.redirectFailure(c)
		return
	}

	query := url.Values{}
	if result.Mode == iauth.OAuthModeLink {
		query.Set("linked", result.Provider)
	} else {
		setRefreshCookie(c, h.cookie, result.Tokens.RefreshToken)
		query.Set("access_token", result.Tokens.AccessToken)
		query.Set("expires_in", strconv.Itoa(result.Tokens.ExpiresIn))
	}
	c.Redirect(http.StatusFound, h.appURL+"/auth/callback?"+query.Encode())
}

func (h *OAuthHandler) redirectFailure(c *gin.Context) {
	c.Redirect(http.StatusFound, h.appURL+"/login?error=oauth_failed")
}

// POST /api/auth/oauth/:provider/link
func (h *OAuthHandler) Link(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	started, err := h.oauth.Begin(c.Param("provider"), iauth.OAuthModeLink, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	setOAuthBindingCookie(c, h.cookie, started.Binding, h.oauth.StateTTL())
	response.JSON(c, http.StatusOK, gin.H{"redirect_url": started.URL})
}

// DELETE /api/auth/oauth/:provider
func (h *OAuthHandler) Unlink(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.oauth.Unlink(requestContext(c), userID, c.Param("provider")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// GET /api/auth/oauth/providers
func (h *OAuthHandler) Providers(c *gin.Context) {
	names := h.oauth.Providers()
	if names == nil {
		names = []string{}
	}
	response.JSON(c, http.StatusOK, gin.H{"providers": names})
}
