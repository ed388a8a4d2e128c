package telemetry

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const DefaultServiceName = "restpad"

const (
	envEndpoint    = "RESTPAD_OTEL_ENDPOINT"
	envInsecure    = "RESTPAD_OTEL_INSECURE"
	envService     = "RESTPAD_OTEL_SERVICE"
	envDialTimeout = "RESTPAD_OTEL_DIAL_TIMEOUT"
	envHeaders     = "RESTPAD_OTEL_HEADERS"
)

// Config selects the OTLP/gRPC collector spans are exported to. An empty
// Endpoint disables export.
type Config struct {
	Endpoint    string
	Insecure    bool
	ServiceName string
	Version     string
	DialTimeout time.Duration
	Headers     map[string]string
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// ConfigFromEnv reads the RESTPAD_OTEL_* variables through getenv, which
// defaults to os.Getenv. Malformed values fall back to defaults.
func ConfigFromEnv(getenv func(string) string) Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := Config{
		Endpoint:    strings.TrimSpace(getenv(envEndpoint)),
		ServiceName: strings.TrimSpace(getenv(envService)),
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}
	if v, err := strconv.ParseBool(strings.TrimSpace(getenv(envInsecure))); err == nil {
		cfg.Insecure = v
	}
	if d, err := time.ParseDuration(strings.TrimSpace(getenv(envDialTimeout))); err == nil && d > 0 {
		cfg.DialTimeout = d
	}
	if headers, err := ParseHeaders(getenv(envHeaders)); err == nil {
		cfg.Headers = headers
	}
	return cfg
}

// ParseHeaders parses "k=v, k2=v2". Blank input yields nil.
func ParseHeaders(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	headers := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid telemetry header %q", part)
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers, nil
}
