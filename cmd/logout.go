package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLogoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Delete the stored token",
		Long: `Delete the stored token so that the next run starts a fresh
browser authorization. The OAuth client credentials file is kept.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd.ErrOrStderr())

			if err := newTokenStore(s, logger).Delete(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", s.TokenPath())
			return nil
		},
	}
	addFileFlags(cmd)
	return cmd
}
