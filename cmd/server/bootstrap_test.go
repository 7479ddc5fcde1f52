package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prompthub/authcore/internal/app"
)

func writeConfig(t *testing.T) (dir string, dbPath string) {
	t.Helper()

	dir = t.TempDir()
	dbPath = filepath.Join(dir, "data", "authcore.sqlite")
	content := `
server:
  log_level: error
  app_url: https://app.example.com
auth:
  jwt:
    secret: bootstrap-access-secret-0123456789abcdef
  refresh:
    secret: bootstrap-refresh-secret-0123456789abcde
database:
  driver: sqlite
  path: ` + dbPath + `
maintenance:
  enabled: true
  token_schedule: "@every 1h"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))
	return dir, dbPath
}

func TestLoadApplicationConfig(t *testing.T) {
	dir, dbPath := writeConfig(t)

	cfg, err := loadApplicationConfig(dir)
	require.NoError(t, err)
	require.Equal(t, dbPath, cfg.Database.Path)

	cfg, err = loadApplicationConfig(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	require.Equal(t, "https://app.example.com", cfg.Server.AppURL)

	_, err = loadApplicationConfig(filepath.Join(dir, "missing"))
	require.ErrorContains(t, err, "does not exist")
}

func TestBootstrapRuntimeServesHealth(t *testing.T) {
	dir, dbPath := writeConfig(t)
	cfg, err := loadApplicationConfig(dir)
	require.NoError(t, err)

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(zap.NewNop()) })

	require.Nil(t, stack.Redis)
	require.NotNil(t, stack.Cleaner)
	require.FileExists(t, dbPath)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	stack.Router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestBuildProviders(t *testing.T) {
	registry, err := buildProviders(context.Background(), app.OAuthSettings{})
	require.NoError(t, err)
	require.Empty(t, registry.Names())

	registry, err = buildProviders(context.Background(), app.OAuthSettings{
		GitHub: app.OAuthClient{
			ClientID:     "client",
			ClientSecret: "secret",
			RedirectURL:  "https://api.example.com/api/auth/oauth/github/callback",
		},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"github"}, registry.Names())
}

func TestMigrateAndCleanupCommands(t *testing.T) {
	dir, dbPath := writeConfig(t)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"migrate", "--config", dir})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	require.Contains(t, out.String(), "migrated")
	require.FileExists(t, dbPath)

	out.Reset()
	cmd = newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"cleanup", "--config", dir})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	require.Contains(t, out.String(), "removed 0 refresh tokens")
}

func TestCommandRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	content := "auth:\n  jwt:\n    secret: too-short\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"migrate", "--config", dir})
	require.ErrorContains(t, cmd.ExecuteContext(context.Background()), "auth.jwt.secret")
}
