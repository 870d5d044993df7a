package instrumentation

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Exporter names accepted by Config.MetricsExporter and Config.TracingExporter.
const (
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"
)

// DefaultMetricInterval is the export interval of periodic metric readers.
const DefaultMetricInterval = 10 * time.Second

var (
	metricsExporters = []string{ExporterPrometheus, ExporterOTLP, ExporterStdout}
	tracingExporters = []string{ExporterOTLP, ExporterStdout, ExporterNone}
)

// Config selects where credential lifecycle telemetry goes.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// ServiceInstanceID defaults to the hostname.
	ServiceInstanceID string

	// Enabled false turns every recorder into a no-op.
	Enabled bool

	MetricsExporter string
	TracingExporter string

	// OTLPEndpoint is host:port, without a scheme.
	OTLPEndpoint string

	// OTLPInsecure sends OTLP over plain HTTP. Spans carry flow ids, so
	// keep this to collectors on the local host.
	OTLPInsecure bool

	// TraceSamplingRate is the parent-based sampling ratio in [0, 1].
	TraceSamplingRate float64
}

// DefaultConfig returns the built-in configuration: Prometheus metrics and
// no tracing.
func DefaultConfig() Config {
	return Config{
		ServiceName:       "inboxauth",
		ServiceVersion:    "unknown",
		Enabled:           true,
		MetricsExporter:   ExporterPrometheus,
		TracingExporter:   ExporterNone,
		TraceSamplingRate: 1.0,
	}
}

// envBinding applies one environment variable to a Config.
type envBinding struct {
	name  string
	apply func(c *Config, value string) error
}

var envBindings = []envBinding{
	{"OTEL_SERVICE_NAME", func(c *Config, v string) error {
		c.ServiceName = v
		return nil
	}},
	{"OTEL_SERVICE_INSTANCE_ID", func(c *Config, v string) error {
		c.ServiceInstanceID = v
		return nil
	}},
	{"INSTRUMENTATION_ENABLED", func(c *Config, v string) error {
		return parseBool(v, &c.Enabled)
	}},
	{"OTEL_SDK_DISABLED", func(c *Config, v string) error {
		var disabled bool
		if err := parseBool(v, &disabled); err != nil {
			return err
		}
		if disabled {
			c.Enabled = false
		}
		return nil
	}},
	{"METRICS_EXPORTER", func(c *Config, v string) error {
		c.MetricsExporter = strings.ToLower(v)
		return nil
	}},
	{"TRACING_EXPORTER", func(c *Config, v string) error {
		c.TracingExporter = strings.ToLower(v)
		return nil
	}},
	{"OTEL_EXPORTER_OTLP_ENDPOINT", func(c *Config, v string) error {
		c.OTLPEndpoint = v
		return nil
	}},
	{"OTEL_EXPORTER_OTLP_INSECURE", func(c *Config, v string) error {
		return parseBool(v, &c.OTLPInsecure)
	}},
	{"OTEL_TRACES_SAMPLER_ARG", func(c *Config, v string) error {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		c.TraceSamplingRate = rate
		return nil
	}},
}

func parseBool(v string, dst *bool) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

// LoadConfig applies the variables found through lookup over DefaultConfig.
// Empty values are ignored. Values that do not parse are all reported in
// the returned error.
func LoadConfig(lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()

	var errs []error
	for _, b := range envBindings {
		v, ok := lookup(b.name)
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(&cfg, v); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", b.name, v, err))
		}
	}
	return cfg, errors.Join(errs...)
}

// ConfigFromEnv loads the configuration from the process environment.
func ConfigFromEnv() (Config, error) {
	return LoadConfig(os.LookupEnv)
}

// Validate reports every problem in c at once.
func (c Config) Validate() error {
	var errs []error

	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		errs = append(errs, fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %g", c.TraceSamplingRate))
	}
	if c.MetricsExporter != "" && !slices.Contains(metricsExporters, c.MetricsExporter) {
		errs = append(errs, fmt.Errorf("invalid metrics exporter %q, must be one of: %s",
			c.MetricsExporter, strings.Join(metricsExporters, ", ")))
	}
	if c.TracingExporter != "" && !slices.Contains(tracingExporters, c.TracingExporter) {
		errs = append(errs, fmt.Errorf("invalid tracing exporter %q, must be one of: %s",
			c.TracingExporter, strings.Join(tracingExporters, ", ")))
	}
	if (c.MetricsExporter == ExporterOTLP || c.TracingExporter == ExporterOTLP) && c.OTLPEndpoint == "" {
		errs = append(errs, errors.New("OTLP endpoint is required by the otlp exporter, set OTEL_EXPORTER_OTLP_ENDPOINT"))
	}

	return errors.Join(errs...)
}
