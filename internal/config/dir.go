package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	appName      = "restpad"
	envConfigDir = "RESTPAD_CONFIG_DIR"
)

// Dir is where settings and, by default, stored data live. RESTPAD_CONFIG_DIR
// wins over the platform config directory.
func Dir() string {
	if dir := strings.TrimSpace(os.Getenv(envConfigDir)); dir != "" {
		return dir
	}
	if base, err := os.UserConfigDir(); err == nil && base != "" {
		return filepath.Join(base, appName)
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, "."+appName)
	}
	return "." + appName
}
