package probe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/teemow/inboxauth/internal/google"
)

type fakeAPI struct {
	mu           sync.Mutex
	auth         []string
	profileCode  int
	calendarCode int
	delay        time.Duration
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/users/me/profile"):
		if f.profileCode != 0 {
			w.WriteHeader(f.profileCode)
			_, _ = w.Write([]byte(`{"error":{"code":403,"message":"gmail disabled"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"emailAddress":"user@example.com","messagesTotal":3}`))
	case strings.HasSuffix(r.URL.Path, "/users/me/calendarList"):
		if f.calendarCode != 0 {
			w.WriteHeader(f.calendarCode)
			_, _ = w.Write([]byte(`{"error":{"code":403,"message":"calendar disabled"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"id":"primary","primary":true}]}`))
	default:
		http.NotFound(w, r)
	}
}

func newProber(srv *httptest.Server) *Prober {
	return &Prober{
		HTTPTimeout:     2 * time.Second,
		GmailOptions:    []option.ClientOption{option.WithEndpoint(srv.URL + "/")},
		CalendarOptions: []option.ClientOption{option.WithEndpoint(srv.URL + "/")},
	}
}

func testRecord() *google.TokenRecord {
	return &google.TokenRecord{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(-time.Hour),
	}
}

func TestVerify_AllHealthy(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	rec := testRecord()
	before := *rec

	report := newProber(srv).Verify(context.Background(), rec)

	require.Len(t, report.Checks, 2)
	assert.False(t, report.Degraded())
	assert.Empty(t, report.Reason())
	assert.NoError(t, report.Err())
	assert.Equal(t, "3 messages", report.Checks[0].Detail)
	assert.Equal(t, "1 calendars", report.Checks[1].Detail)

	// The static token is sent as is, even though it has expired.
	assert.Equal(t, []string{"Bearer access-1", "Bearer access-1"}, api.auth)
	assert.Equal(t, before, *rec)
}

func TestVerify_OneServiceRejected(t *testing.T) {
	srv := httptest.NewServer(&fakeAPI{calendarCode: http.StatusForbidden})
	defer srv.Close()

	report := newProber(srv).Verify(context.Background(), testRecord())

	assert.True(t, report.Degraded())
	assert.True(t, report.Checks[0].OK())
	assert.False(t, report.Checks[1].OK())
	assert.Contains(t, report.Reason(), "calendar")
	assert.NotContains(t, report.Reason(), "gmail")
	assert.True(t, errors.Is(report.Err(), google.ErrProbeDegraded))
}

func TestVerify_BothRejected(t *testing.T) {
	srv := httptest.NewServer(&fakeAPI{profileCode: http.StatusForbidden, calendarCode: http.StatusForbidden})
	defer srv.Close()

	report := newProber(srv).Verify(context.Background(), testRecord())

	assert.True(t, report.Degraded())
	assert.Contains(t, report.Reason(), "gmail")
	assert.Contains(t, report.Reason(), "calendar")
}

func TestVerify_TimeoutBoundsEachCall(t *testing.T) {
	srv := httptest.NewServer(&fakeAPI{delay: 5 * time.Second})
	defer srv.Close()

	p := newProber(srv)
	p.HTTPTimeout = 50 * time.Millisecond

	start := time.Now()
	report := p.Verify(context.Background(), testRecord())

	assert.True(t, report.Degraded())
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestVerify_MissingCredential(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	report := newProber(srv).Verify(context.Background(), nil)

	require.Len(t, report.Checks, 2)
	assert.True(t, report.Degraded())
	for _, c := range report.Checks {
		assert.True(t, errors.Is(c.Err, google.ErrTokenNotFound), c.Service)
	}
	assert.True(t, errors.Is(report.Err(), google.ErrProbeDegraded))
	assert.Empty(t, api.auth, "no API call without a credential")
}

func TestVerifyFrom_Controller(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	store := google.NewFileTokenStore(filepath.Join(t.TempDir(), "token.json"), nil)
	require.NoError(t, store.Save(&google.TokenRecord{
		AccessToken:  "stored-access",
		RefreshToken: "stored-refresh",
		Expiry:       time.Now().Add(time.Hour),
		Scopes:       google.DefaultScopes,
	}))
	controller := google.NewController(google.ControllerConfig{Store: store, NonInteractive: true})

	report := newProber(srv).VerifyFrom(context.Background(), controller)

	assert.False(t, report.Degraded())
	assert.Equal(t, []string{"Bearer stored-access", "Bearer stored-access"}, api.auth)
}
