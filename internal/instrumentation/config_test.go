package instrumentation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "inboxauth", config.ServiceName)
	assert.True(t, config.Enabled)
	assert.Equal(t, ExporterPrometheus, config.MetricsExporter)
	assert.Equal(t, ExporterNone, config.TracingExporter)
	assert.Equal(t, 1.0, config.TraceSamplingRate)
	assert.NoError(t, config.Validate())
}

func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig(envMap(map[string]string{
		"OTEL_SERVICE_NAME":           "test-service",
		"INSTRUMENTATION_ENABLED":     "false",
		"METRICS_EXPORTER":            "STDOUT",
		"TRACING_EXPORTER":            "otlp",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "localhost:4318",
		"OTEL_EXPORTER_OTLP_INSECURE": "true",
		"OTEL_TRACES_SAMPLER_ARG":     "0.5",
	}))
	require.NoError(t, err)

	assert.Equal(t, "test-service", config.ServiceName)
	assert.False(t, config.Enabled)
	assert.Equal(t, ExporterStdout, config.MetricsExporter)
	assert.Equal(t, ExporterOTLP, config.TracingExporter)
	assert.Equal(t, "localhost:4318", config.OTLPEndpoint)
	assert.True(t, config.OTLPInsecure)
	assert.Equal(t, 0.5, config.TraceSamplingRate)
}

func TestLoadConfig_EmptyValuesKeepDefaults(t *testing.T) {
	config, err := LoadConfig(envMap(map[string]string{
		"OTEL_SERVICE_NAME":       "  ",
		"INSTRUMENTATION_ENABLED": "",
	}))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config)
}

func TestLoadConfig_SDKDisabled(t *testing.T) {
	config, err := LoadConfig(envMap(map[string]string{"OTEL_SDK_DISABLED": "true"}))
	require.NoError(t, err)
	assert.False(t, config.Enabled)

	config, err = LoadConfig(envMap(map[string]string{"OTEL_SDK_DISABLED": "false"}))
	require.NoError(t, err)
	assert.True(t, config.Enabled)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	_, err := LoadConfig(envMap(map[string]string{
		"INSTRUMENTATION_ENABLED": "sometimes",
		"OTEL_TRACES_SAMPLER_ARG": "half",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `INSTRUMENTATION_ENABLED="sometimes"`)
	assert.Contains(t, err.Error(), `OTEL_TRACES_SAMPLER_ARG="half"`)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "from-env")
	t.Setenv("INSTRUMENTATION_ENABLED", "")
	t.Setenv("OTEL_SDK_DISABLED", "")

	config, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "from-env", config.ServiceName)
	assert.True(t, config.Enabled)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		errContains []string
	}{
		{
			name: "valid config with prometheus",
			config: Config{
				Enabled:         true,
				MetricsExporter: ExporterPrometheus,
				TracingExporter: ExporterNone,
			},
		},
		{
			name: "valid config with otlp",
			config: Config{
				Enabled:         true,
				MetricsExporter: ExporterPrometheus,
				TracingExporter: ExporterOTLP,
				OTLPEndpoint:    "localhost:4318",
			},
		},
		{
			name:        "invalid sampling rate negative",
			config:      Config{TraceSamplingRate: -0.5},
			errContains: []string{"sampling rate"},
		},
		{
			name:        "invalid sampling rate above 1",
			config:      Config{TraceSamplingRate: 1.5},
			errContains: []string{"sampling rate"},
		},
		{
			name:        "invalid metrics exporter",
			config:      Config{MetricsExporter: "invalid"},
			errContains: []string{"invalid metrics exporter", "prometheus, otlp, stdout"},
		},
		{
			name:        "invalid tracing exporter",
			config:      Config{TracingExporter: "invalid"},
			errContains: []string{"invalid tracing exporter", "otlp, stdout, none"},
		},
		{
			name:        "otlp tracing without endpoint",
			config:      Config{TracingExporter: ExporterOTLP},
			errContains: []string{"OTLP endpoint is required"},
		},
		{
			name:        "otlp metrics without endpoint",
			config:      Config{MetricsExporter: ExporterOTLP},
			errContains: []string{"OTLP endpoint is required"},
		},
		{
			name:        "all problems are reported",
			config:      Config{TraceSamplingRate: 2, MetricsExporter: "x", TracingExporter: "y"},
			errContains: []string{"sampling rate", "metrics exporter", "tracing exporter"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if len(tt.errContains) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.errContains {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}
