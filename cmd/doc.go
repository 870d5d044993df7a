// Package cmd implements the command-line interface for inboxauth.
//
// This package provides the following commands:
//   - auth: Obtain a valid credential, authorizing in the browser if needed
//   - status: Show the stored credential without contacting Google
//   - logout: Delete the stored credential
//   - keepalive: Refresh the credential periodically and serve metrics
//   - version: Display version information
//
// The auth command is the default command when no subcommand is specified.
package cmd
