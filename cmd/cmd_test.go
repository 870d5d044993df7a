package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxauth/internal/google"
	"github.com/teemow/inboxauth/internal/probe"
	"github.com/teemow/inboxauth/internal/server"
)

// setupEnv points the settings at a temporary config directory and
// disables telemetry. It returns the directory.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("INBOXAUTH_CONFIG_DIR", dir)
	t.Setenv("INBOXAUTH_CREDENTIALS_FILE", "")
	t.Setenv("INBOXAUTH_TOKEN_FILE", "")
	t.Setenv("INBOXAUTH_SCOPES", "")
	t.Setenv("INBOXAUTH_OPEN_BROWSER", "false")
	t.Setenv("INSTRUMENTATION_ENABLED", "false")

	oldConfigPath := configPath
	configPath = filepath.Join(dir, "missing.toml")
	t.Cleanup(func() { configPath = oldConfigPath })
	return dir
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeToken(t *testing.T, path string, rec *google.TokenRecord) {
	t.Helper()
	require.NoError(t, google.NewFileTokenStore(path, nil).Save(rec))
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, newVersionCmd())
	require.NoError(t, err)
	assert.Equal(t, "inboxauth version "+version+"\n", out)
}

func TestLoadSettingsFlagOverrides(t *testing.T) {
	dir := setupEnv(t)

	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	addFileFlags(cmd)
	addCallbackFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{
		"--token", "/abs/token.json",
		"--port", "9999",
		"--callback-timeout", "45s",
		"--no-browser",
	}))

	s, err := loadSettings(cmd)
	require.NoError(t, err)
	assert.Equal(t, "/abs/token.json", s.TokenPath())
	assert.Equal(t, filepath.Join(dir, "credentials.json"), s.CredentialsPath())
	assert.Equal(t, 9999, s.CallbackPort)
	assert.Equal(t, 45*time.Second, s.CallbackTimeout)
	assert.False(t, s.OpenBrowser)
}

func TestLoadSettingsUnsetFlagsKeepDefaults(t *testing.T) {
	setupEnv(t)

	cmd := &cobra.Command{Use: "test"}
	addCallbackFlags(cmd)
	require.NoError(t, cmd.ParseFlags(nil))

	s, err := loadSettings(cmd)
	require.NoError(t, err)
	assert.Equal(t, 8080, s.CallbackPort)
	assert.Equal(t, 120*time.Second, s.CallbackTimeout)
	assert.Equal(t, google.DefaultScopes, s.Scopes)
}

func TestLoadSettingsScopesFromEnvironment(t *testing.T) {
	setupEnv(t)
	t.Setenv("INBOXAUTH_SCOPES", google.DefaultScopes[0])

	s, err := loadSettings(&cobra.Command{Use: "test"})
	require.NoError(t, err)
	assert.Equal(t, []string{google.DefaultScopes[0]}, s.Scopes)
}

func TestLoadSettingsInvalid(t *testing.T) {
	setupEnv(t)

	cmd := &cobra.Command{Use: "test"}
	addCallbackFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--port", "70000"}))

	_, err := loadSettings(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "callback_port")
}

func TestControllerConfigPortMapping(t *testing.T) {
	setupEnv(t)

	cmd := &cobra.Command{Use: "test"}
	addCallbackFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--port", "0"}))

	s, err := loadSettings(cmd)
	require.NoError(t, err)

	ccfg := controllerConfig(s, io.Discard, nil, nil)
	listener := ccfg.NewListener().(*google.CallbackServer)
	results := make(chan google.CallbackResult, 1)
	require.NoError(t, listener.Start(context.Background(), results))
	defer func() { _ = listener.Stop() }()

	assert.NotZero(t, listener.Port())
	assert.NotEqual(t, google.DefaultCallbackPort, listener.Port())
}

func TestStatusCommand(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		setupEnv(t)
		out, err := execute(t, newStatusCmd())
		require.NoError(t, err)
		assert.Contains(t, out, "State:       missing")
	})

	t.Run("fresh", func(t *testing.T) {
		dir := setupEnv(t)
		writeToken(t, filepath.Join(dir, "token.json"), &google.TokenRecord{
			AccessToken:  "access",
			RefreshToken: "refresh",
			Expiry:       time.Now().Add(time.Hour),
			Scopes:       google.DefaultScopes,
		})

		out, err := execute(t, newStatusCmd())
		require.NoError(t, err)
		assert.Contains(t, out, "State:       fresh")
		assert.Contains(t, out, "Refreshable: true")
		assert.NotContains(t, out, "Missing:")
	})

	t.Run("recoverable with missing scope", func(t *testing.T) {
		dir := setupEnv(t)
		writeToken(t, filepath.Join(dir, "token.json"), &google.TokenRecord{
			AccessToken:  "access",
			RefreshToken: "refresh",
			Expiry:       time.Now().Add(-time.Hour),
			Scopes:       google.DefaultScopes[:1],
		})

		out, err := execute(t, newStatusCmd())
		require.NoError(t, err)
		assert.Contains(t, out, "State:       recoverable")
		assert.Contains(t, out, "expired")
		assert.Contains(t, out, "Missing:     "+google.DefaultScopes[1])
	})

	t.Run("dead", func(t *testing.T) {
		dir := setupEnv(t)
		writeToken(t, filepath.Join(dir, "token.json"), &google.TokenRecord{
			AccessToken: "access",
			Expiry:      time.Now().Add(-time.Hour),
		})

		out, err := execute(t, newStatusCmd())
		require.NoError(t, err)
		assert.Contains(t, out, "State:       dead")
		assert.Contains(t, out, "Refreshable: false")
	})
}

func TestLogoutCommand(t *testing.T) {
	dir := setupEnv(t)
	path := filepath.Join(dir, "token.json")
	writeToken(t, path, &google.TokenRecord{AccessToken: "access"})

	out, err := execute(t, newLogoutCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "Removed "+path)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	// A second logout is not an error.
	_, err = execute(t, newLogoutCmd())
	require.NoError(t, err)
}

func TestAuthCommandReusesFreshToken(t *testing.T) {
	dir := setupEnv(t)
	writeToken(t, filepath.Join(dir, "token.json"), &google.TokenRecord{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
		Scopes:       google.DefaultScopes,
	})

	out, err := execute(t, newAuthCmd(), "--skip-probe")
	require.NoError(t, err)
	assert.Contains(t, out, "Credential is valid")
}

func TestAuthCommandMissingClientConfig(t *testing.T) {
	dir := setupEnv(t)

	out, err := execute(t, newAuthCmd(), "--skip-probe", "--port", "0")
	require.Error(t, err)
	assert.ErrorIs(t, err, google.ErrConfigurationMissing)
	assert.Contains(t, out, "Setup instructions:")
	assert.Contains(t, out, filepath.Join(dir, "credentials.json"))
}

func TestKeepaliveOnce(t *testing.T) {
	t.Run("fresh token is ready", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "token.json")
		expiry := time.Now().Add(time.Hour).Truncate(time.Second)
		writeToken(t, path, &google.TokenRecord{AccessToken: "access", RefreshToken: "refresh", Expiry: expiry})

		controller := google.NewController(google.ControllerConfig{
			Store:          google.NewFileTokenStore(path, nil),
			NonInteractive: true,
			Leeway:         10 * time.Minute,
		})
		health := server.NewHealthChecker()

		require.NoError(t, keepaliveOnce(context.Background(), controller, health, nil))
		assert.True(t, health.IsReady())
	})

	t.Run("missing token needs interaction", func(t *testing.T) {
		dir := t.TempDir()
		controller := google.NewController(google.ControllerConfig{
			Store:          google.NewFileTokenStore(filepath.Join(dir, "token.json"), nil),
			NonInteractive: true,
		})
		health := server.NewHealthChecker()

		require.NoError(t, keepaliveOnce(context.Background(), controller, health, slog.New(slog.NewTextHandler(io.Discard, nil))))
		assert.False(t, health.IsReady())
	})
}

func TestDescribeExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "in 1h0m0s", describeExpiry(now.Add(time.Hour), now))
	assert.True(t, strings.HasPrefix(describeExpiry(now.Add(-time.Minute), now), "expired 1m0s"))
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, probe.Report{Checks: []probe.Check{
		{Service: "gmail", Operation: "profile", Detail: "42 messages", Duration: 120 * time.Millisecond},
		{Service: "calendar", Operation: "list_calendars", Err: errors.New("403 forbidden")},
	}})

	out := buf.String()
	assert.Contains(t, out, "SERVICE")
	assert.Contains(t, out, "42 messages")
	assert.Contains(t, out, "120ms")
	assert.Contains(t, out, "FAILED: 403 forbidden")
}
