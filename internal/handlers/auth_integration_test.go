package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/prompthub/authcore/internal/handlers/testutil"
)

func TestAuthHandler_RegisterThenMe(t *testing.T) {
	env := testutil.NewEnv(t)

	reg := env.Register("a@b.com", "secret1", "alice", "Alice")
	require.Equal(t, "alice", reg.User.UserID)
	require.Equal(t, "a@b.com", reg.User.Email)
	require.Equal(t, "local", reg.User.LoginType)
	require.True(t, reg.User.HasPassword)
	require.Equal(t, 900, reg.ExpiresIn)

	cookie := reg.RefreshCookie
	require.True(t, cookie.HttpOnly)
	require.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	require.Equal(t, "/api/auth", cookie.Path)
	require.Equal(t, 30*24*60*60, cookie.MaxAge)
	require.NotEmpty(t, cookie.Value)

	me := env.Request(http.MethodGet, "/api/auth/me", nil, reg.AccessToken)
	require.Equal(t, http.StatusOK, me.Code, me.Body.String())

	var body struct {
		User      testutil.UserPayload `json:"user"`
		Providers []map[string]any     `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(me.Body.Bytes(), &body))
	require.Equal(t, "alice", body.User.UserID)
	require.Equal(t, reg.User.ID, body.User.ID)
	require.Empty(t, body.Providers)
	require.NotContains(t, me.Body.String(), `"password"`)
	require.NotContains(t, me.Body.String(), "$2a$")
}

func TestAuthHandler_RegisterBodyNeverCarriesRefreshToken(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"email":        "bob@example.com",
		"password":     "secret1",
		"userid":       "bob",
		"display_name": "Bob",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	require.Contains(t, raw, "access_token")
	require.Contains(t, raw, "expires_in")
	require.Contains(t, raw, "user")
	require.NotContains(t, raw, "refresh_token")
}

func TestAuthHandler_RegisterConflictsAndValidation(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Register("taken@example.com", "secret1", "taken", "Taken")

	cases := []struct {
		name   string
		body   map[string]string
		status int
		code   string
	}{
		{"duplicate email", map[string]string{"email": "TAKEN@example.com", "password": "secret1", "userid": "other", "display_name": "Other"}, http.StatusConflict, "EMAIL_TAKEN"},
		{"duplicate userid", map[string]string{"email": "other@example.com", "password": "secret1", "userid": "Taken", "display_name": "Other"}, http.StatusConflict, "USERID_TAKEN"},
		{"short password", map[string]string{"email": "new@example.com", "password": "12345", "userid": "newbie", "display_name": "New"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad email", map[string]string{"email": "not-an-email", "password": "secret1", "userid": "newbie", "display_name": "New"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad userid", map[string]string{"email": "new@example.com", "password": "secret1", "userid": "no spaces", "display_name": "New"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing display name", map[string]string{"email": "new@example.com", "password": "secret1", "userid": "newbie"}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.Request(http.MethodPost, "/api/auth/register", tc.body, "")
			require.Equal(t, tc.status, w.Code, w.Body.String())
			require.Equal(t, tc.code, testutil.ErrorCode(t, w))
			require.Nil(t, testutil.RefreshCookie(w))
		})
	}
}

func TestAuthHandler_MalformedJSON(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/auth/login", "not-an-object", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "VALIDATION_ERROR", testutil.ErrorCode(t, w))
}

func TestAuthHandler_LoginFailuresLookTheSame(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Register("carol@example.com", "secret1", "carol", "Carol")

	unknown := env.Request(http.MethodPost, "/api/auth/login", map[string]string{"email": "nobody@example.com", "password": "secret1"}, "")
	wrong := env.Request(http.MethodPost, "/api/auth/login", map[string]string{"email": "carol@example.com", "password": "wrong-pass"}, "")

	require.Equal(t, http.StatusUnauthorized, unknown.Code)
	require.Equal(t, http.StatusUnauthorized, wrong.Code)
	require.JSONEq(t, unknown.Body.String(), wrong.Body.String())
	require.Equal(t, "INVALID_CREDENTIALS", testutil.ErrorCode(t, wrong))

	missing := env.Request(http.MethodPost, "/api/auth/login", map[string]string{"email": "", "password": ""}, "")
	require.Equal(t, http.StatusBadRequest, missing.Code)
	require.Equal(t, "VALIDATION_ERROR", testutil.ErrorCode(t, missing))

	login := env.Login("Carol@Example.com", "secret1")
	require.Equal(t, "carol", login.User.UserID)
}

func TestAuthHandler_RefreshRotatesCookie(t *testing.T) {
	env := testutil.NewEnv(t)
	reg := env.RegisterRandom("secret1")

	first := env.Request(http.MethodPost, "/api/auth/refresh", nil, "", reg.RefreshCookie)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &body))
	require.NotEmpty(t, body["access_token"])
	require.EqualValues(t, 900, body["expires_in"])
	require.NotContains(t, body, "refresh_token")

	rotated := testutil.RefreshCookie(first)
	require.NotNil(t, rotated)
	require.NotEqual(t, reg.RefreshCookie.Value, rotated.Value)

	replay := env.Request(http.MethodPost, "/api/auth/refresh", nil, "", reg.RefreshCookie)
	require.Equal(t, http.StatusUnauthorized, replay.Code)
	require.Equal(t, "INVALID_REFRESH_TOKEN", testutil.ErrorCode(t, replay))

	// an immediate replay is a lost race, not theft
	afterReplay := env.Request(http.MethodPost, "/api/auth/refresh", nil, "", rotated)
	require.Equal(t, http.StatusOK, afterReplay.Code, afterReplay.Body.String())
}

func TestAuthHandler_RefreshIgnoresBodyAndHeader(t *testing.T) {
	env := testutil.NewEnv(t)
	reg := env.RegisterRandom("secret1")

	w := env.Request(http.MethodPost, "/api/auth/refresh", map[string]string{"refresh_token": reg.RefreshCookie.Value}, reg.RefreshCookie.Value)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "INVALID_REFRESH_TOKEN", testutil.ErrorCode(t, w))
}

func TestAuthHandler_LogoutClearsCookieAndRevokes(t *testing.T) {
	env := testutil.NewEnv(t)
	reg := env.RegisterRandom("secret1")

	unauth := env.Request(http.MethodPost, "/api/auth/logout", nil, "")
	require.Equal(t, http.StatusUnauthorized, unauth.Code)
	require.Equal(t, "Bearer", unauth.Header().Get("WWW-Authenticate"))

	logout := env.Request(http.MethodPost, "/api/auth/logout", nil, reg.AccessToken, reg.RefreshCookie)
	require.Equal(t, http.StatusNoContent, logout.Code)
	require.Empty(t, logout.Body.String())

	cleared := testutil.RefreshCookie(logout)
	require.NotNil(t, cleared)
	require.Empty(t, cleared.Value)
	require.Less(t, cleared.MaxAge, 0)

	refresh := env.Request(http.MethodPost, "/api/auth/refresh", nil, "", reg.RefreshCookie)
	require.Equal(t, http.StatusUnauthorized, refresh.Code)
}

func TestAuthHandler_Session(t *testing.T) {
	env := testutil.NewEnv(t)
	reg := env.RegisterRandom("secret1")

	w := env.Request(http.MethodGet, "/api/auth/session", nil, reg.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Authenticated bool `json:"authenticated"`
		ExpiresIn     int  `json:"expires_in"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.True(t, body.Authenticated)
	require.LessOrEqual(t, body.ExpiresIn, 900)
	require.Greater(t, body.ExpiresIn, 800)

	anon := env.Request(http.MethodGet, "/api/auth/session", nil, "garbage")
	require.Equal(t, http.StatusUnauthorized, anon.Code)
}

func TestAuthHandler_ChangePassword(t *testing.T) {
	env := testutil.NewEnv(t)
	reg := env.Register("dave@example.com", "secret1", "dave", "Dave")

	wrong := env.Request(http.MethodPost, "/api/auth/password/change", map[string]string{
		"current_password": "nope-nope",
		"new_password":     "secret2",
	}, reg.AccessToken)
	require.Equal(t, http.StatusUnauthorized, wrong.Code)
	require.Equal(t, "INVALID_CREDENTIALS", testutil.ErrorCode(t, wrong))

	short := env.Request(http.MethodPost, "/api/auth/password/change", map[string]string{
		"current_password": "secret1",
		"new_password":     "123",
	}, reg.AccessToken)
	require.Equal(t, http.StatusBadRequest, short.Code)

	ok := env.Request(http.MethodPost, "/api/auth/password/change", map[string]string{
		"current_password": "secret1",
		"new_password":     "secret2",
	}, reg.AccessToken)
	require.Equal(t, http.StatusNoContent, ok.Code, ok.Body.String())

	// no token side effects
	refresh := env.Request(http.MethodPost, "/api/auth/refresh", nil, "", reg.RefreshCookie)
	require.Equal(t, http.StatusOK, refresh.Code)

	env.Login("dave@example.com", "secret2")
}

func resetTokenFromMail(t *testing.T, body string) string {
	t.Helper()

	idx := strings.Index(body, "token=")
	require.GreaterOrEqual(t, idx, 0, body)
	raw := body[idx+len("token="):]
	if end := strings.IndexAny(raw, " \r\n"); end >= 0 {
		raw = raw[:end]
	}
	token, err := url.QueryUnescape(raw)
	require.NoError(t, err)
	return token
}

func TestAuthHandler_PasswordResetFlow(t *testing.T) {
	env := testutil.NewEnv(t)
	reg := env.Register("erin@example.com", "secret1", "erin", "Erin")

	unknown := env.Request(http.MethodPost, "/api/auth/password/reset/request", map[string]string{"email": "nonexistent@x.com"}, "")
	known := env.Request(http.MethodPost, "/api/auth/password/reset/request", map[string]string{"email": "erin@example.com"}, "")
	require.Equal(t, http.StatusNoContent, unknown.Code)
	require.Equal(t, unknown.Code, known.Code)
	require.Equal(t, unknown.Body.String(), known.Body.String())

	env.Passwords.Wait()
	messages := env.Mailer.Messages()
	require.Len(t, messages, 1)
	require.Equal(t, []string{"erin@example.com"}, messages[0].To)
	require.Contains(t, messages[0].Body, testutil.AppURL+"/reset-password?token=")

	token := resetTokenFromMail(t, messages[0].Body)

	short := env.Request(http.MethodPost, "/api/auth/password/reset/confirm", map[string]string{"token": token, "new_password": "123"}, "")
	require.Equal(t, http.StatusBadRequest, short.Code)

	wrongField := env.Request(http.MethodPost, "/api/auth/password/reset/confirm", map[string]string{"token": token, "password": "brand-new"}, "")
	require.Equal(t, http.StatusBadRequest, wrongField.Code)
	require.Equal(t, "VALIDATION_ERROR", testutil.ErrorCode(t, wrongField))

	confirm := env.Request(http.MethodPost, "/api/auth/password/reset/confirm", map[string]string{"token": token, "new_password": "brand-new"}, "")
	require.Equal(t, http.StatusNoContent, confirm.Code, confirm.Body.String())

	again := env.Request(http.MethodPost, "/api/auth/password/reset/confirm", map[string]string{"token": token, "new_password": "another-one"}, "")
	require.Equal(t, http.StatusUnauthorized, again.Code)
	require.Equal(t, "INVALID_TOKEN", testutil.ErrorCode(t, again))

	// a reset forces every session to sign in again
	refresh := env.Request(http.MethodPost, "/api/auth/refresh", nil, "", reg.RefreshCookie)
	require.Equal(t, http.StatusUnauthorized, refresh.Code)

	env.Login("erin@example.com", "brand-new")
}

func TestAuthHandler_PasswordResetRequestValidation(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/auth/password/reset/request", map[string]string{"email": ""}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "VALIDATION_ERROR", testutil.ErrorCode(t, w))
}

func TestHealthAndUnknownRoutes(t *testing.T) {
	env := testutil.NewEnv(t)

	health := env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, health.Code)
	require.True(t, testutil.DecodeResponse(t, health).Success)

	missing := env.Request(http.MethodGet, "/api/does-not-exist", nil, "")
	require.Equal(t, http.StatusNotFound, missing.Code)
	require.Equal(t, "NOT_FOUND", testutil.ErrorCode(t, missing))
}
