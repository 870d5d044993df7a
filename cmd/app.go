package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxauth/internal/config"
	"github.com/teemow/inboxauth/internal/google"
	"github.com/teemow/inboxauth/internal/instrumentation"
	"github.com/teemow/inboxauth/internal/logging"
)

// Flags shared by the commands that run the credential flow.
const (
	flagCredentials     = "credentials"
	flagToken           = "token"
	flagPort            = "port"
	flagCallbackTimeout = "callback-timeout"
	flagNoBrowser       = "no-browser"
	flagInterval        = "interval"
	flagLeeway          = "leeway"
	flagMetricsAddr     = "metrics-addr"
)

func addFileFlags(cmd *cobra.Command) {
	cmd.Flags().String(flagCredentials, "", "Path to the OAuth client credentials file (default <config_dir>/credentials.json)")
	cmd.Flags().String(flagToken, "", "Path to the token file (default <config_dir>/token.json)")
}

func addCallbackFlags(cmd *cobra.Command) {
	cmd.Flags().Int(flagPort, 0, "Callback listener port (default 8080; 0 in the settings file picks a free port)")
	cmd.Flags().Duration(flagCallbackTimeout, 0, "How long to wait for the browser authorization (default 2m)")
	cmd.Flags().Bool(flagNoBrowser, false, "Print the authorization URL without opening a browser")
}

// loadSettings reads the settings file and environment, then applies the
// flags the user set explicitly.
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	s, err := config.Load(configPath)
	if err != nil {
		return config.Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}

	flags := cmd.Flags()
	changed := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}

	if changed(flagCredentials) {
		s.CredentialsFile, _ = flags.GetString(flagCredentials)
	}
	if changed(flagToken) {
		s.TokenFile, _ = flags.GetString(flagToken)
	}
	if changed(flagPort) {
		s.CallbackPort, _ = flags.GetInt(flagPort)
	}
	if changed(flagCallbackTimeout) {
		s.CallbackTimeout, _ = flags.GetDuration(flagCallbackTimeout)
	}
	if changed(flagNoBrowser) {
		noBrowser, _ := flags.GetBool(flagNoBrowser)
		s.OpenBrowser = !noBrowser
	}
	if changed(flagInterval) {
		s.KeepaliveInterval, _ = flags.GetDuration(flagInterval)
	}
	if changed(flagLeeway) {
		s.KeepaliveLeeway, _ = flags.GetDuration(flagLeeway)
	}
	if changed(flagMetricsAddr) {
		s.MetricsAddr, _ = flags.GetString(flagMetricsAddr)
	}
	if len(s.Scopes) == 0 {
		s.Scopes = google.DefaultScopes
	}

	if err := s.Validate(); err != nil {
		return config.Settings{}, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

// newLogger builds the process logger and installs it as the slog default.
func newLogger(w io.Writer) *slog.Logger {
	logger := logging.New(w, debugMode)
	slog.SetDefault(logger)
	return logger
}

func newTokenStore(s config.Settings, logger *slog.Logger) *google.FileTokenStore {
	return google.NewFileTokenStore(s.TokenPath(), logger)
}

// controllerConfig wires the credential flow from the settings.
func controllerConfig(s config.Settings, out io.Writer, logger *slog.Logger, metrics *instrumentation.Metrics) google.ControllerConfig {
	port := s.CallbackPort
	if port == 0 {
		port = -1
	}

	return google.ControllerConfig{
		Store:        newTokenStore(s, logger),
		ClientConfig: google.NewFileClientConfigSource(s.CredentialsPath()),
		NewListener: func() google.Listener {
			return google.NewCallbackServer(google.CallbackServerConfig{
				Port:   port,
				Path:   s.CallbackPath,
				Logger: logger,
			})
		},
		Present:         google.TerminalPresenter(out, s.OpenBrowser),
		Scopes:          s.Scopes,
		CallbackTimeout: s.CallbackTimeout,
		HTTPTimeout:     s.HTTPTimeout,
		Logger:          logger,
		Metrics:         metrics,
	}
}

// newInstrumentation creates the telemetry provider from the environment.
func newInstrumentation(cmd *cobra.Command) (*instrumentation.Provider, error) {
	instrConfig, err := instrumentation.ConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("invalid instrumentation environment: %w", err)
	}
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(cmd.Context(), instrConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	return provider, nil
}
