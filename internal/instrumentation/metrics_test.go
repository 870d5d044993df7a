package instrumentation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func counterValue(t *testing.T, m metricdata.Metrics, key, value string) int64 {
	t.Helper()

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	return 0
}

func TestMetrics_RecordOAuthFlow(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordOAuthFlow(ctx, "valid", 10*time.Millisecond)
	m.RecordOAuthFlow(ctx, "valid", 20*time.Millisecond)
	m.RecordOAuthFlow(ctx, "failed", time.Second)

	got := collect(t, reader)
	assert.Equal(t, int64(2), counterValue(t, got["oauth_flows_total"], attrOutcome, "valid"))
	assert.Equal(t, int64(1), counterValue(t, got["oauth_flows_total"], attrOutcome, "failed"))

	hist, ok := got["oauth_flow_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)
}

func TestMetrics_RecordOAuthAuthAndRefresh(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordOAuthAuth(ctx, OAuthResultSuccess)
	m.RecordOAuthAuth(ctx, OAuthResultDenied)
	m.RecordOAuthAuth(ctx, OAuthResultTimeout)
	m.RecordOAuthTokenRefresh(ctx, OAuthResultFailure)

	got := collect(t, reader)
	assert.Equal(t, int64(1), counterValue(t, got["oauth_auth_total"], attrResult, OAuthResultSuccess))
	assert.Equal(t, int64(1), counterValue(t, got["oauth_auth_total"], attrResult, OAuthResultDenied))
	assert.Equal(t, int64(1), counterValue(t, got["oauth_auth_total"], attrResult, OAuthResultTimeout))
	assert.Equal(t, int64(1), counterValue(t, got["oauth_token_refresh_total"], attrResult, OAuthResultFailure))
}

func TestMetrics_RecordGoogleAPIOperation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordGoogleAPIOperation(ctx, ServiceGmail, "profile", StatusSuccess, 200*time.Millisecond)
	m.RecordGoogleAPIOperation(ctx, ServiceCalendar, "list_calendars", StatusError, 500*time.Millisecond)

	got := collect(t, reader)
	ops := got["google_api_operations_total"]
	assert.Equal(t, int64(1), counterValue(t, ops, attrService, ServiceGmail))
	assert.Equal(t, int64(1), counterValue(t, ops, attrService, ServiceCalendar))
	assert.Equal(t, int64(1), counterValue(t, ops, attrStatus, StatusError))
}

func TestMetrics_RecordTokenExpiry(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordTokenExpiry(context.Background(), 90*time.Second)

	got := collect(t, reader)
	gauge, ok := got["oauth_token_expiry_seconds"].Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.InDelta(t, 90.0, gauge.DataPoints[0].Value, 0.001)
}

func TestMetrics_NilAndZeroAreNoOps(t *testing.T) {
	ctx := context.Background()

	for name, m := range map[string]*Metrics{"nil": nil, "zero": {}} {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				m.RecordOAuthFlow(ctx, "valid", time.Second)
				m.RecordOAuthAuth(ctx, OAuthResultSuccess)
				m.RecordOAuthTokenRefresh(ctx, OAuthResultSuccess)
				m.RecordTokenExpiry(ctx, time.Minute)
				m.RecordGoogleAPIOperation(ctx, ServiceGmail, "profile", StatusSuccess, time.Second)
			})
		})
	}
}
