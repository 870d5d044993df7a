package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Attribute keys shared by the flow, the probe and the CLI.
const (
	KeyOperation = "operation"
	KeyService   = "service"
	KeyState     = "state"
	KeyFlowID    = "flow_id"
	KeyExpiry    = "expiry"
	KeyUserHash  = "user_hash"
	KeyError     = "error"
)

// secretKeys are attribute keys whose values are masked by the handler
// returned from New, whatever the call site passes.
var secretKeys = map[string]struct{}{
	"access_token":  {},
	"refresh_token": {},
	"id_token":      {},
	"client_secret": {},
	"code":          {},
	"code_verifier": {},
}

// New returns a text logger writing to w. Debug enables debug-level output;
// otherwise only info and above is written. Values of credential attributes
// are replaced with SanitizeToken output.
func New(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redact,
	}))
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := secretKeys[strings.ToLower(a.Key)]; !ok {
		return a
	}
	if a.Value.Kind() != slog.KindString {
		return slog.String(a.Key, "<redacted>")
	}
	return slog.String(a.Key, SanitizeToken(a.Value.String()))
}

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithFlow returns a logger for one run of the credential flow.
func WithFlow(logger *slog.Logger, flowID string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, "oauth.flow"), slog.String(KeyFlowID, flowID))
}

// Service returns a slog attribute for the downstream API name.
func Service(svc string) slog.Attr {
	return slog.String(KeyService, svc)
}

// State returns a slog attribute for a credential flow state.
func State(state string) slog.Attr {
	return slog.String(KeyState, state)
}

// Expiry returns a slog attribute for a token expiry. The zero time is
// logged as "never".
func Expiry(t time.Time) slog.Attr {
	if t.IsZero() {
		return slog.String(KeyExpiry, "never")
	}
	return slog.String(KeyExpiry, t.UTC().Format(time.RFC3339))
}

// Err returns a slog attribute for an error. A nil error yields an empty
// group, which slog omits.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeEmail returns a stable hash of email so log lines can be
// correlated without recording the address.
func AnonymizeEmail(email string) string {
	if email == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(strings.ToLower(email)))
	return "user:" + hex.EncodeToString(hash[:8])
}

// UserHash returns a slog attribute with the anonymized user email.
func UserHash(email string) slog.Attr {
	return slog.String(KeyUserHash, AnonymizeEmail(email))
}

// SanitizeToken describes a token by its length only.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}
