// Package calendar provides a minimal read-only Google Calendar client used
// to verify that a stored credential is accepted by the Calendar API.
package calendar
