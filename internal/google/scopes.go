package google

import (
	calendar "google.golang.org/api/calendar/v3"
	gmail "google.golang.org/api/gmail/v1"
)

// DefaultScopes are the OAuth scopes requested on every authorization and
// refresh. The order is preserved in the authorization URL.
//
// The scopes provide access to:
//   - Gmail: read-only
//   - Google Calendar: read-only
var DefaultScopes = []string{
	gmail.GmailReadonlyScope,
	calendar.CalendarReadonlyScope,
}

// missingScopes returns the entries of required that are not in granted.
func missingScopes(granted, required []string) []string {
	have := make(map[string]struct{}, len(granted))
	for _, s := range granted {
		have[s] = struct{}{}
	}
	var missing []string
	for _, s := range required {
		if _, ok := have[s]; !ok {
			missing = append(missing, s)
		}
	}
	return missing
}

// MissingScopes returns the required scopes the record was not granted.
// A record without scope information is assumed to cover everything.
func (r *TokenRecord) MissingScopes(required []string) []string {
	if len(r.Scopes) == 0 {
		return nil
	}
	return missingScopes(r.Scopes, required)
}
