package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/teemow/inboxauth/internal/google"
	"github.com/teemow/inboxauth/internal/logging"
	"github.com/teemow/inboxauth/internal/probe"
)

func newAuthCmd() *cobra.Command {
	var skipProbe bool

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Obtain or refresh the Gmail and Calendar credential",
		Long: `Ensure a valid OAuth credential is stored.

A stored token is reused while valid and refreshed when expired. Otherwise
the authorization URL is printed (and opened in a browser unless
--no-browser is set) and the redirect is captured on a local listener.
Afterwards one read-only call is made against Gmail and Calendar to confirm
the credential works.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuth(cmd, skipProbe)
		},
	}

	addFileFlags(cmd)
	addCallbackFlags(cmd)
	cmd.Flags().BoolVar(&skipProbe, "skip-probe", false, "Do not test the credential against Gmail and Calendar")

	return cmd
}

func runAuth(cmd *cobra.Command, skipProbe bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

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
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	fmt.Fprintln(out, "Google API authentication setup")

	controller := google.NewController(controllerConfig(s, out, logger, provider.Metrics()))
	res, err := controller.Run(ctx)
	if err != nil {
		fmt.Fprintf(out, "\nAuthentication failed (%s): %v\n", res.State, err)
		if hint := google.Remediation(err, s.CredentialsPath(), s.CallbackPort); hint != "" {
			fmt.Fprintf(out, "\n%s\n", hint)
		}
		return err
	}

	fmt.Fprintf(out, "Credential is valid (token stored at %s)\n", s.TokenPath())
	if skipProbe {
		return nil
	}

	prober := &probe.Prober{
		HTTPTimeout: s.HTTPTimeout,
		Metrics:     provider.Metrics(),
		Logger:      logger,
	}
	fmt.Fprintln(out, "\nTesting Gmail and Calendar API access...")
	report := prober.Verify(ctx, res.Record)
	printReport(out, report)
	if report.Degraded() {
		fmt.Fprintln(out, "\nThe credential was stored but some APIs rejected it. Check that the")
		fmt.Fprintln(out, "Gmail and Calendar APIs are enabled for your Google Cloud project.")
		return nil
	}
	fmt.Fprintln(out, "\nAuthentication is set up and working.")
	return nil
}

// printReport renders the connectivity checks as a table.
func printReport(w io.Writer, report probe.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"SERVICE", "CHECK", "RESULT", "DURATION"})
	for _, c := range report.Checks {
		result := c.Detail
		if !c.OK() {
			result = "FAILED: " + c.Err.Error()
		}
		t.AppendRow(table.Row{c.Service, c.Operation, result, c.Duration.Round(time.Millisecond)})
	}
	t.Render()
}
