package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the inboxauth application
var rootCmd = &cobra.Command{
	Use:   "inboxauth",
	Short: "Provisions and maintains Google OAuth credentials for Gmail and Calendar",
	Long: `inboxauth obtains a read-only OAuth credential for Gmail and Google Calendar
and keeps it usable.

A stored token is reused while it is valid and refreshed when it has expired.
When neither is possible a browser authorization is started and the redirect
is captured on a local callback listener.`,
	SilenceUsage: true,
}

var (
	// version will be set by main
	version = "dev"

	configPath string
	debugMode  bool
)

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "inboxauth version %s\n" .Version}}`)

	// If no subcommand is provided, run the auth command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "auth")
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the settings file (default $XDG_CONFIG_HOME/inboxauth/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newKeepaliveCmd())
	rootCmd.AddCommand(newVersionCmd())
}
