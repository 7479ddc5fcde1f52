package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/prompthub/authcore/internal/api"
	"github.com/prompthub/authcore/internal/app"
	iauth "github.com/prompthub/authcore/internal/auth"
	"github.com/prompthub/authcore/internal/auth/providers"
	sharedtestutil "github.com/prompthub/authcore/internal/database/testutil"
	"github.com/prompthub/authcore/internal/workspaces"
	"github.com/prompthub/authcore/pkg/mail"
	"github.com/prompthub/authcore/pkg/response"
)

const (
	// AppURL is the front-end base URL the test router redirects to.
	AppURL = "https://app.example.com"

	jwtSecret     = "handler-suite-access-secret-0123456789abcdef"
	refreshSecret = "handler-suite-refresh-secret-0123456789abcd"
)

// StubProvider is an identity provider whose exchange returns a fixed identity.
type StubProvider struct {
	ProviderName string
	Identity     providers.Identity
	Err          error
}

func (p *StubProvider) Name() string { return p.ProviderName }

func (p *StubProvider) AuthCodeURL(req providers.AuthorizeRequest) (string, error) {
	q := url.Values{}
	q.Set("state", req.State)
	q.Set("code_challenge", req.PKCEChallenge)
	return "https://" + p.ProviderName + ".example.com/authorize?" + q.Encode(), nil
}

func (p *StubProvider) Exchange(_ context.Context, _ providers.ExchangeRequest) (*providers.Identity, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	identity := p.Identity
	return &identity, nil
}

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T          *testing.T
	DB         *gorm.DB
	Router     *gin.Engine
	Config     *app.Config
	Mailer     *mail.Recorder
	GitHub     *StubProvider
	Passwords  *iauth.PasswordService
	Tokens     *iauth.TokenService
	Workspaces *workspaces.Service
}

// NewEnv provisions a fresh handler test environment with migrations applied.
// GitHub is the only configured provider and is backed by a StubProvider.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	cfg := &app.Config{
		Server: app.ServerConfig{
			Port:   8000,
			AppURL: AppURL,
			CORS:   app.CORSConfig{AllowedOrigins: []string{AppURL}},
		},
		Auth: app.AuthConfig{
			JWT:      app.JWTSettings{Secret: jwtSecret, Issuer: "handler-suite", TTL: 15 * time.Minute},
			Refresh:  app.RefreshSettings{Secret: refreshSecret, TTLDays: 30, RevokeOnReuse: true},
			Password: app.PasswordSettings{MinLength: 6, BcryptCost: 4},
		},
	}
	require.NoError(t, cfg.Validate())

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	tokens, err := iauth.NewTokenService(db, jwtSvc, cfg.Auth.TokenServiceConfig())
	require.NoError(t, err)

	mailer := mail.NewRecorder(nil)
	passwords, err := iauth.NewPasswordService(db, tokens, mailer,
		cfg.Auth.PasswordServiceConfig(cfg.Server.AppURL, "no-reply@example.com", time.Second))
	require.NoError(t, err)
	t.Cleanup(passwords.Wait)

	github := &StubProvider{ProviderName: providers.GitHub}
	registry := providers.NewRegistry()
	require.NoError(t, registry.Register(github))

	oauth, err := iauth.NewOAuthService(db, tokens, registry, cfg.Auth.OAuthServiceConfig())
	require.NoError(t, err)

	workspaceSvc, err := workspaces.NewService(db)
	require.NoError(t, err)

	router, err := api.NewRouter(api.Dependencies{
		DB:         db,
		Config:     cfg,
		Passwords:  passwords,
		Tokens:     tokens,
		OAuth:      oauth,
		Workspaces: workspaceSvc,
	})
	require.NoError(t, err)

	return &Env{
		T:          t,
		DB:         db,
		Router:     router,
		Config:     cfg,
		Mailer:     mailer,
		GitHub:     github,
		Passwords:  passwords,
		Tokens:     tokens,
		Workspaces: workspaceSvc,
	}
}

// UserPayload captures the user fields returned from auth endpoints.
type UserPayload struct {
	ID          uint   `json:"id"`
	Email       string `json:"email"`
	UserID      string `json:"userid"`
	DisplayName string `json:"display_name"`
	LoginType   string `json:"login_type"`
	HasPassword bool   `json:"has_password"`
}

// AuthResult bundles the JSON body of register/login plus the refresh cookie.
type AuthResult struct {
	User        UserPayload `json:"user"`
	AccessToken string      `json:"access_token"`
	ExpiresIn   int         `json:"expires_in"`

	RefreshCookie *http.Cookie `json:"-"`
}

// Register creates an account through the API and returns the sign-in result.
func (e *Env) Register(email, password, userID, displayName string) AuthResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"email":        email,
		"password":     password,
		"userid":       userID,
		"display_name": displayName,
	}, "")
	require.Equal(e.T, http.StatusCreated, w.Code, w.Body.String())
	return e.decodeAuth(w)
}

// RegisterRandom creates an account with a unique email and userid.
func (e *Env) RegisterRandom(password string) AuthResult {
	e.T.Helper()

	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return e.Register("user-"+suffix+"@example.com", password, "u_"+suffix, "User "+suffix)
}

// Login signs in through the API.
func (e *Env) Login(email, password string) AuthResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())
	return e.decodeAuth(w)
}

func (e *Env) decodeAuth(w *httptest.ResponseRecorder) AuthResult {
	e.T.Helper()

	var result AuthResult
	require.NoError(e.T, json.Unmarshal(w.Body.Bytes(), &result), w.Body.String())
	require.NotEmpty(e.T, result.AccessToken)
	require.Greater(e.T, result.ExpiresIn, 0)

	result.RefreshCookie = RefreshCookie(w)
	require.NotNil(e.T, result.RefreshCookie, "refresh cookie must be set")
	return result
}

// RefreshCookie returns the refresh cookie set on a response, or nil.
func RefreshCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == "refresh_token" {
			return c
		}
	}
	return nil
}

// OAuthBindingCookie returns the oauth round-trip binding cookie set on a response, or nil.
func OAuthBindingCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == "oauth_binding" {
			return c
		}
	}
	return nil
}

// APIResponse represents the envelope returned by enveloped handlers and all errors.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// ErrorCode returns the error code of an error response.
func ErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	resp := DecodeResponse(t, w)
	require.False(t, resp.Success, w.Body.String())
	require.NotNil(t, resp.Error, w.Body.String())
	return resp.Error.Code
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range cookies {
		if c != nil {
			req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
		}
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
