// Package probe checks that a credential is accepted by the Google APIs it
// was issued for.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/option"

	"github.com/teemow/inboxauth/internal/calendar"
	"github.com/teemow/inboxauth/internal/gmail"
	"github.com/teemow/inboxauth/internal/google"
	"github.com/teemow/inboxauth/internal/instrumentation"
	"github.com/teemow/inboxauth/internal/logging"
)

const (
	operationProfile       = "profile"
	operationListCalendars = "list_calendars"
)

// Check is the outcome of one API call.
type Check struct {
	Service   string
	Operation string
	Detail    string
	Duration  time.Duration
	Err       error
}

// OK reports whether the call succeeded.
func (c Check) OK() bool {
	return c.Err == nil
}

// Report collects the checks of one Verify call.
type Report struct {
	Checks []Check
}

// Degraded reports whether any check failed.
func (r Report) Degraded() bool {
	for _, c := range r.Checks {
		if !c.OK() {
			return true
		}
	}
	return false
}

// Reason summarizes the failed checks, or returns "" when none failed.
func (r Report) Reason() string {
	var parts []string
	for _, c := range r.Checks {
		if !c.OK() {
			parts = append(parts, fmt.Sprintf("%s: %v", c.Service, c.Err))
		}
	}
	return strings.Join(parts, "; ")
}

// Err returns an error wrapping google.ErrProbeDegraded when the report is
// degraded, and nil otherwise.
func (r Report) Err() error {
	if !r.Degraded() {
		return nil
	}
	return fmt.Errorf("%w: %s", google.ErrProbeDegraded, r.Reason())
}

// Prober runs one read-only call against Gmail and Calendar.
type Prober struct {
	// HTTPTimeout bounds each call. Defaults to google.DefaultHTTPTimeout.
	HTTPTimeout time.Duration

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger

	// GmailOptions and CalendarOptions are appended to the client options,
	// e.g. to point the clients at a test server.
	GmailOptions    []option.ClientOption
	CalendarOptions []option.ClientOption
}

// Verify calls both APIs with rec's access token. The token is used as is:
// it is never refreshed and rec is never modified.
func (p *Prober) Verify(ctx context.Context, rec *google.TokenRecord) Report {
	return p.VerifyFrom(ctx, google.StaticCredentialProvider{Record: rec})
}

// VerifyFrom obtains a credential from provider and calls both APIs with
// it. When no credential can be obtained every check fails with that error.
func (p *Prober) VerifyFrom(ctx context.Context, provider google.CredentialProvider) Report {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logging.WithOperation(logger, "connectivity")

	var report Report
	httpClient, err := google.HTTPClientFor(ctx, provider)
	if err != nil {
		report.Checks = []Check{
			{Service: instrumentation.ServiceGmail, Operation: operationProfile, Err: err},
			{Service: instrumentation.ServiceCalendar, Operation: operationListCalendars, Err: err},
		}
	} else {
		report.Checks = []Check{
			p.run(ctx, instrumentation.ServiceGmail, operationProfile, func(ctx context.Context) (string, error) {
				client, err := gmail.NewClient(ctx, httpClient, p.GmailOptions...)
				if err != nil {
					return "", err
				}
				profile, err := client.Profile(ctx)
				if err != nil {
					return "", err
				}
				logger.Info("gmail reachable", logging.UserHash(profile.EmailAddress),
					"messages_total", profile.MessagesTotal)
				return fmt.Sprintf("%d messages", profile.MessagesTotal), nil
			}),
			p.run(ctx, instrumentation.ServiceCalendar, operationListCalendars, func(ctx context.Context) (string, error) {
				client, err := calendar.NewClient(ctx, httpClient, p.CalendarOptions...)
				if err != nil {
					return "", err
				}
				calendars, err := client.ListCalendars(ctx)
				if err != nil {
					return "", err
				}
				logger.Info("calendar reachable", "calendars", len(calendars))
				return fmt.Sprintf("%d calendars", len(calendars)), nil
			}),
		}
	}

	for _, c := range report.Checks {
		if !c.OK() {
			logger.Warn("connectivity check failed", logging.Service(c.Service), logging.Err(c.Err))
		}
	}
	return report
}

func (p *Prober) run(ctx context.Context, service, operation string, call func(context.Context) (string, error)) Check {
	timeout := p.HTTPTimeout
	if timeout <= 0 {
		timeout = google.DefaultHTTPTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, service, operation)
	defer span.End()

	start := time.Now()
	detail, err := call(ctx)
	duration := time.Since(start)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	p.Metrics.RecordGoogleAPIOperation(ctx, service, operation, status, duration)

	return Check{
		Service:   service,
		Operation: operation,
		Detail:    detail,
		Duration:  duration,
		Err:       err,
	}
}
