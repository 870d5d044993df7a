package google

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFatal(t *testing.T) {
	fatal := []error{ErrConfigurationMissing, ErrStorage, ErrPortUnavailable}
	for _, err := range fatal {
		assert.True(t, IsFatal(fmt.Errorf("wrapped: %w", err)), err.Error())
	}

	nonFatal := []error{
		ErrTokenNotFound, ErrRefreshFailed, ErrAuthorizationDenied, ErrAuthorizationTimeout,
		ErrStateMismatch, ErrExchangeFailed, ErrInteractionRequired, ErrProbeDegraded,
		errors.New("other"),
	}
	for _, err := range nonFatal {
		assert.False(t, IsFatal(err), err.Error())
	}
}

func TestRemediation(t *testing.T) {
	msg := Remediation(fmt.Errorf("%w: missing", ErrConfigurationMissing), "/home/me/.config/inboxauth/credentials.json", 8080)
	assert.Contains(t, msg, "console.cloud.google.com")
	assert.Contains(t, msg, "/home/me/.config/inboxauth/credentials.json")

	msg = Remediation(ErrPortUnavailable, "", 8181)
	assert.Contains(t, msg, "Port 8181")

	assert.Contains(t, Remediation(ErrStorage, "", 0), "writable")
	assert.Contains(t, Remediation(ErrAuthorizationTimeout, "", 0), "inboxauth auth")
	assert.Empty(t, Remediation(errors.New("other"), "", 0))
}

func TestSetupInstructions(t *testing.T) {
	msg := SetupInstructions("/tmp/credentials.json")
	assert.Contains(t, msg, "Gmail API")
	assert.Contains(t, msg, "Calendar API")
	assert.Contains(t, msg, "Save it as /tmp/credentials.json")
}
