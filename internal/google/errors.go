package google

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds returned by the credential lifecycle. Callers match them with
// errors.Is; the concrete error always wraps one of these.
var (
	// ErrTokenNotFound is returned by a TokenStore when no usable record is
	// persisted. An unparsable file is reported the same way.
	ErrTokenNotFound = errors.New("no stored token")

	// ErrConfigurationMissing means the OAuth client identity file is absent
	// or malformed. This is a setup problem and is never retried.
	ErrConfigurationMissing = errors.New("oauth client configuration missing")

	// ErrStorage means the token record could not be written to disk.
	ErrStorage = errors.New("token storage failed")

	// ErrPortUnavailable means the callback listener could not bind its port.
	ErrPortUnavailable = errors.New("callback port unavailable")

	// ErrRefreshFailed means the refresh-token grant was rejected or could
	// not reach the token endpoint. It only downgrades the flow to
	// interactive authorization and never terminates a run on its own.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrAuthorizationDenied means the user or the provider rejected consent.
	ErrAuthorizationDenied = errors.New("authorization denied")

	// ErrAuthorizationTimeout means no callback arrived within the wait bound.
	ErrAuthorizationTimeout = errors.New("authorization timed out")

	// ErrStateMismatch means the callback carried a state value other than
	// the one generated for the authorization request.
	ErrStateMismatch = errors.New("authorization state mismatch")

	// ErrExchangeFailed means the token endpoint rejected the authorization code.
	ErrExchangeFailed = errors.New("authorization code exchange failed")

	// ErrInteractionRequired is returned in non-interactive mode when the
	// stored credential can only be replaced by a browser authorization.
	ErrInteractionRequired = errors.New("interactive authorization required")

	// ErrProbeDegraded means the credential was acquired but at least one
	// downstream API rejected a test call. It is a warning only.
	ErrProbeDegraded = errors.New("connectivity check degraded")
)

// IsFatal reports whether err must stop the whole program instead of being
// reported as a failed authorization attempt.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfigurationMissing) ||
		errors.Is(err, ErrStorage) ||
		errors.Is(err, ErrPortUnavailable)
}

// Remediation returns user-facing instructions for a fatal error, or an
// empty string when err needs none.
func Remediation(err error, credentialsPath string, port int) string {
	switch {
	case errors.Is(err, ErrConfigurationMissing):
		return SetupInstructions(credentialsPath)
	case errors.Is(err, ErrPortUnavailable):
		return fmt.Sprintf("Port %d is already in use by another process.\n"+
			"Stop that process or choose another port with --port (and make sure\n"+
			"the redirect URI http://localhost:%d is allowed for your OAuth client).", port, port)
	case errors.Is(err, ErrStorage):
		return "The token could not be written. Check that the config directory\n" +
			"exists, is writable by the current user and that the disk is not full."
	case errors.Is(err, ErrAuthorizationDenied),
		errors.Is(err, ErrAuthorizationTimeout),
		errors.Is(err, ErrStateMismatch),
		errors.Is(err, ErrExchangeFailed),
		errors.Is(err, ErrInteractionRequired):
		return "Run `inboxauth auth` again to restart the authorization."
	}
	return ""
}

// SetupInstructions returns the steps needed to create the OAuth client
// identity file at path.
func SetupInstructions(path string) string {
	var b strings.Builder
	b.WriteString("Setup instructions:\n")
	b.WriteString("  1. Go to https://console.cloud.google.com\n")
	b.WriteString("  2. Create a new project or select an existing one\n")
	b.WriteString("  3. Enable the Gmail API and the Google Calendar API\n")
	b.WriteString("  4. Create OAuth 2.0 credentials for a desktop application\n")
	b.WriteString("  5. Download the credentials JSON file\n")
	fmt.Fprintf(&b, "  6. Save it as %s\n", path)
	b.WriteString("  7. Run `inboxauth auth` again\n")
	return b.String()
}
