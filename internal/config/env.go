package config

import (
	"strconv"

	"github.com/kelseyhightower/envconfig"

	"github.com/restpad/restpad/internal/errdef"
)

const envPrefix = "restpad"

// envOverrides mirrors the settings that may be set through RESTPAD_*
// variables, e.g. StorageBackend is RESTPAD_STORAGE_BACKEND. Unset variables
// leave the file value alone. Unprefixed variables such as HTTP_PROXY are
// never read.
type envOverrides struct {
	Group               string `split_words:"true"`
	Transport           string `split_words:"true"`
	Timeout             string `split_words:"true"`
	ScriptTimeout       string `split_words:"true"`
	StorageBackend      string `split_words:"true"`
	StoragePath         string `split_words:"true"`
	HistoryEnabled      *bool  `split_words:"true"`
	HistoryMaxEntries   *int   `split_words:"true"`
	LogLevel            string `split_words:"true"`
	LogDev              *bool  `split_words:"true"`
	HTTPInsecure        *bool  `split_words:"true"`
	HTTPProxy           string `split_words:"true"`
	HTTPFollowRedirects *bool  `split_words:"true"`
	HTTPUserAgent       string `split_words:"true"`
}

// ApplyEnv layers RESTPAD_* environment variables over s.
func ApplyEnv(s Settings) (Settings, error) {
	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return s, errdef.Wrap(errdef.CodeConfig, err, "read environment")
	}

	setString(&s.ActiveGroup, env.Group)
	setString(&s.Transport, env.Transport)
	setString(&s.Timeout, env.Timeout)
	setString(&s.ScriptTimeout, env.ScriptTimeout)
	setString(&s.Storage.Backend, env.StorageBackend)
	setString(&s.Storage.Path, env.StoragePath)
	setString(&s.Log.Level, env.LogLevel)
	setString(&s.HTTP.Proxy, env.HTTPProxy)
	setString(&s.HTTP.UserAgent, env.HTTPUserAgent)

	if env.HistoryEnabled != nil {
		s.History.Enabled = env.HistoryEnabled
	}
	if env.HistoryMaxEntries != nil {
		s.History.MaxEntries = *env.HistoryMaxEntries
	}
	if env.LogDev != nil {
		s.Log.Development = *env.LogDev
	}
	if env.HTTPInsecure != nil {
		s.HTTP.Insecure = *env.HTTPInsecure
	}
	if env.HTTPFollowRedirects != nil {
		s.HTTP.FollowRedirects = env.HTTPFollowRedirects
	}
	return Normalise(s), nil
}

// Load reads the settings file and applies environment overrides.
func Load() (Settings, SettingsHandle, error) {
	settings, handle, err := LoadSettings()
	if err != nil {
		return Settings{}, handle, err
	}
	settings, err = ApplyEnv(settings)
	return settings, handle, err
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

// Describe renders s as key/value pairs for display.
func Describe(s Settings) [][2]string {
	return [][2]string{
		{"config_dir", Dir()},
		{"active_group", s.ActiveGroup},
		{"transport", s.Transport},
		{"timeout", s.Timeout},
		{"script_timeout", s.ScriptTimeout},
		{"storage.backend", s.Storage.Backend},
		{"storage.path", s.StoragePath()},
		{"history.enabled", strconv.FormatBool(s.HistoryEnabled())},
		{"history.max_entries", strconv.Itoa(s.History.MaxEntries)},
		{"log.level", s.Log.Level},
		{"http.insecure", strconv.FormatBool(s.HTTP.Insecure)},
		{"http.follow_redirects", strconv.FormatBool(s.FollowRedirects())},
	}
}
