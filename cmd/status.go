package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxauth/internal/google"
)

// Stored credential states reported by the status command.
const (
	statusFresh       = "fresh"
	statusRecoverable = "recoverable"
	statusDead        = "dead"
	statusMissing     = "missing"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stored credential without contacting Google",
		RunE:  runStatus,
	}
	addFileFlags(cmd)
	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr())

	fmt.Fprintf(out, "Credentials: %s\n", s.CredentialsPath())
	fmt.Fprintf(out, "Token:       %s\n", s.TokenPath())

	rec, err := newTokenStore(s, logger).Load()
	if err != nil {
		if errors.Is(err, google.ErrTokenNotFound) {
			fmt.Fprintf(out, "State:       %s\n", statusMissing)
			return nil
		}
		return err
	}

	now := time.Now()
	fmt.Fprintf(out, "State:       %s\n", credentialStatus(rec, now))
	if rec.Expiry.IsZero() {
		fmt.Fprintln(out, "Expiry:      never")
	} else {
		fmt.Fprintf(out, "Expiry:      %s (%s)\n", rec.Expiry.Local().Format(time.RFC3339), describeExpiry(rec.Expiry, now))
	}
	fmt.Fprintf(out, "Refreshable: %t\n", rec.RefreshToken != "")
	if len(rec.Scopes) > 0 {
		fmt.Fprintf(out, "Scopes:      %s\n", strings.Join(rec.Scopes, " "))
	}
	if missing := rec.MissingScopes(s.Scopes); len(missing) > 0 {
		fmt.Fprintf(out, "Missing:     %s\n", strings.Join(missing, " "))
	}
	return nil
}

func credentialStatus(rec *google.TokenRecord, now time.Time) string {
	switch {
	case rec.Fresh(now):
		return statusFresh
	case rec.Recoverable(now):
		return statusRecoverable
	default:
		return statusDead
	}
}

func describeExpiry(expiry, now time.Time) string {
	d := expiry.Sub(now).Round(time.Second)
	if d < 0 {
		return fmt.Sprintf("expired %s ago", -d)
	}
	return fmt.Sprintf("in %s", d)
}
