// Package logging provides structured logging utilities for inboxauth.
//
// All components log through log/slog with the attribute keys defined
// here, so a single credential flow can be followed by its flow_id:
//
//	logger := logging.WithFlow(slog.Default(), flowID)
//	logger.Info("credential is valid", logging.Expiry(rec.Expiry))
//
// # Security Considerations
//
//   - Loggers built with New mask credential attributes (access_token,
//     refresh_token, client_secret, code, ...) regardless of the call site
//   - Token values are otherwise only logged through SanitizeToken
//   - User emails are hashed to prevent PII leakage while allowing correlation
package logging
