package config

import (
	"strings"
	"time"
)

const (
	DefaultTimeout       = 10 * time.Second
	DefaultScriptTimeout = 5 * time.Second

	TimeoutMin       = 100 * time.Millisecond
	TimeoutMax       = 10 * time.Minute
	ScriptTimeoutMin = 10 * time.Millisecond
	ScriptTimeoutMax = time.Minute

	HistoryMaxEntriesDefault = 200
	HistoryMaxEntriesMin     = 1
	HistoryMaxEntriesMax     = 10000
)

const (
	TransportAuto   = "auto"
	TransportNative = "native"
	TransportResty  = "resty"

	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Normalise fills defaults and pulls out-of-range values back into bounds.
func Normalise(in Settings) Settings {
	out := in
	out.ActiveGroup = strings.TrimSpace(in.ActiveGroup)
	out.Transport = oneOf(in.Transport, TransportAuto, TransportAuto, TransportNative, TransportResty)
	out.Storage.Backend = oneOf(in.Storage.Backend, BackendFile, BackendFile, BackendSQLite, BackendMemory)
	out.Storage.Path = strings.TrimSpace(in.Storage.Path)
	out.Log.Level = oneOf(in.Log.Level, "warn", "debug", "info", "warn", "error")

	out.Timeout = clampDuration(in.Timeout, TimeoutMin, TimeoutMax, DefaultTimeout).String()
	out.ScriptTimeout = clampDuration(
		in.ScriptTimeout,
		ScriptTimeoutMin,
		ScriptTimeoutMax,
		DefaultScriptTimeout,
	).String()
	out.History.MaxEntries = clamp(
		in.History.MaxEntries,
		HistoryMaxEntriesMin,
		HistoryMaxEntriesMax,
		HistoryMaxEntriesDefault,
	)
	return out
}

func oneOf(value, def string, allowed ...string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	for _, a := range allowed {
		if v == a {
			return a
		}
	}
	return def
}

func parseDuration(raw string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func clampDuration(raw string, min, max, fallback time.Duration) time.Duration {
	return clamp(parseDuration(raw, 0), min, max, fallback)
}

func clamp[T ~int | ~int64](value, min, max, fallback T) T {
	if value == 0 {
		return fallback
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
