// Package instrumentation provides OpenTelemetry metrics and tracing for
// the credential lifecycle.
//
// # Metrics
//
// Flow Metrics:
//   - oauth_flows_total: Counter of flow runs by final state (outcome)
//   - oauth_flow_duration_seconds: Histogram of flow run durations
//
// OAuth Metrics:
//   - oauth_auth_total: Counter of interactive authorizations by result
//   - oauth_token_refresh_total: Counter of refresh attempts by result
//   - oauth_token_expiry_seconds: Gauge of remaining access token lifetime
//
// Google API Metrics:
//   - google_api_operations_total: Counter of connectivity check calls by service, operation, status
//   - google_api_operation_duration_seconds: Histogram of connectivity check durations
//
// # Tracing
//
// Spans are created for:
//   - Credential flow runs (oauth.flow), with one "transition" event per state
//   - Flow steps (oauth.refresh, oauth.await_callback, oauth.exchange)
//   - Keepalive checks (keepalive.check)
//   - Google API calls (google.<service>.<operation>)
//   - Outgoing HTTP requests to the token endpoint and the APIs (otelhttp)
//
// # Configuration
//
// ConfigFromEnv reads these environment variables over DefaultConfig and
// rejects values that do not parse:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - OTEL_SDK_DISABLED: true disables instrumentation as well
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_EXPORTER_OTLP_INSECURE: Plain HTTP for OTLP (default: false)
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 1.0)
//   - OTEL_SERVICE_NAME: Service name (default: inboxauth)
//
// # Example Usage
//
//	cfg, err := instrumentation.ConfigFromEnv()
//	if err != nil {
//		return err
//	}
//	provider, err := instrumentation.NewProvider(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	recorder := provider.Metrics()
//	recorder.RecordOAuthFlow(ctx, "valid", time.Since(start))
package instrumentation
