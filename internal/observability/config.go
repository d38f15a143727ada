package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/paysync/internal/config"
)

// Config is the observability view of the process: who we are, how we log
// and where spans go. Environment variables override the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	return loadConfig(cfg, os.LookupEnv)
}

func loadConfig(cfg config.Config, lookup func(string) (string, bool)) Config {
	env := envReader(lookup)

	out := Config{
		ServiceName: strings.TrimSpace(cfg.AppName),
		Environment: env.str("DEPLOYMENT_ENV", cfg.Environment),
		Version:     env.str("SERVICE_VERSION", cfg.AppVersion),
		LogLevel:    strings.ToLower(env.str("LOG_LEVEL", "info")),
	}
	if out.ServiceName == "" {
		out.ServiceName = "paysync"
	}

	dev := isDevEnv(out.Environment)

	logFormat := "json"
	if dev {
		logFormat = "console"
	}
	out.LogFormat = strings.ToLower(env.str("LOG_FORMAT", logFormat))

	out.OtelExporterEndpoint = env.str("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	out.OtelExporterProtocol = strings.ToLower(env.str("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL",
		env.str("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")))
	out.OtelEnabled = env.boolean("OTEL_ENABLED", out.OtelExporterEndpoint != "")

	ratio := 0.1
	if dev {
		ratio = 1
	}
	out.OtelSamplingRatio = clampRatio(env.float("OTEL_SAMPLING_RATIO", ratio))

	return out
}

// Debug turns on request body logging and stack traces.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	return isDevEnv(c.Environment)
}

func isDevEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func clampRatio(ratio float64) float64 {
	switch {
	case ratio < 0:
		return 0
	case ratio > 1:
		return 1
	}
	return ratio
}

type envReader func(string) (string, bool)

func (e envReader) str(key, def string) string {
	if value, ok := e(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(def)
}

func (e envReader) boolean(key string, def bool) bool {
	parsed, err := strconv.ParseBool(e.str(key, ""))
	if err != nil {
		return def
	}
	return parsed
}

func (e envReader) float(key string, def float64) float64 {
	parsed, err := strconv.ParseFloat(e.str(key, ""), 64)
	if err != nil {
		return def
	}
	return parsed
}
