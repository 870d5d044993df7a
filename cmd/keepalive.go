package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxauth/internal/google"
	"github.com/teemow/inboxauth/internal/instrumentation"
	"github.com/teemow/inboxauth/internal/logging"
	"github.com/teemow/inboxauth/internal/server"
)

func newKeepaliveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keepalive",
		Short: "Keep the stored credential refreshed in the background",
		Long: `Periodically check the stored credential and refresh it before it
expires. A browser authorization is never started: when the credential can
no longer be refreshed the failure is logged and reported on /readyz until
"inboxauth auth" is run again.

Prometheus metrics and health endpoints are served on --metrics-addr.`,
		RunE: runKeepalive,
	}

	addFileFlags(cmd)
	cmd.Flags().Duration(flagInterval, 0, "Time between credential checks (default 5m)")
	cmd.Flags().Duration(flagLeeway, 0, "Refresh tokens that expire within this window (default 10m)")
	cmd.Flags().String(flagMetricsAddr, "", "Metrics and health server address (default :9090)")

	return cmd
}

func runKeepalive(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr())

	provider, err := newInstrumentation(cmd)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	health := server.NewHealthChecker()
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    s.MetricsAddr,
		InstrumentationProvider: provider,
		Health:                  health,
		Logger:                  logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create metrics server: %w", err)
	}
	if err := metricsServer.Listen(); err != nil {
		return fmt.Errorf("metrics server failed to start: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed", logging.Err(err))
		}
	}()

	ccfg := controllerConfig(s, cmd.OutOrStdout(), logger, provider.Metrics())
	ccfg.NonInteractive = true
	ccfg.Leeway = s.KeepaliveLeeway
	controller := google.NewController(ccfg)

	logger.Info("keepalive started",
		"interval", s.KeepaliveInterval.String(),
		"leeway", s.KeepaliveLeeway.String(),
		"metrics_addr", metricsServer.Addr())

	ticker := time.NewTicker(s.KeepaliveInterval)
	defer ticker.Stop()

	for {
		if err := keepaliveOnce(ctx, controller, health, logger); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			logger.Info("keepalive stopping")
			return nil
		case err, ok := <-serverErr:
			if ok {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			serverErr = nil
		case <-ticker.C:
		}
	}
}

// keepaliveOnce runs one non-interactive credential check and records the
// outcome. Only errors that stop the program are returned.
func keepaliveOnce(ctx context.Context, controller *google.Controller, health *server.HealthChecker, logger *slog.Logger) error {
	ctx, span := instrumentation.StartSpan(ctx, "keepalive.check")
	defer span.End()

	res, err := controller.Run(ctx)
	instrumentation.SetSpanError(span, err)

	var expiry time.Time
	if res.Record != nil {
		expiry = res.Record.Expiry
	}
	health.Observe(string(res.State), expiry, err)

	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return nil
	case google.IsFatal(err):
		return err
	case errors.Is(err, google.ErrInteractionRequired):
		logger.Error("credential can no longer be refreshed, run `inboxauth auth`", logging.Err(err))
	default:
		logger.Warn("credential check failed", logging.Err(err))
	}
	return nil
}
