package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/restpad/restpad/internal/errdef"
)

const (
	SettingsFormatTOML SettingsFormat = "toml"
	SettingsFormatJSON SettingsFormat = "json"
)

type Settings struct {
	ActiveGroup   string          `json:"active_group,omitempty"   toml:"active_group,omitempty"`
	Transport     string          `json:"transport,omitempty"      toml:"transport,omitempty"`
	Timeout       string          `json:"timeout,omitempty"        toml:"timeout,omitempty"`
	ScriptTimeout string          `json:"script_timeout,omitempty" toml:"script_timeout,omitempty"`
	Storage       StorageSettings `json:"storage"                  toml:"storage"`
	History       HistorySettings `json:"history"                  toml:"history"`
	Log           LogSettings     `json:"log"                      toml:"log"`
	HTTP          HTTPSettings    `json:"http"                     toml:"http"`
}

type StorageSettings struct {
	Backend string `json:"backend,omitempty" toml:"backend,omitempty"`
	Path    string `json:"path,omitempty"    toml:"path,omitempty"`
}

type HistorySettings struct {
	Enabled    *bool `json:"enabled,omitempty"     toml:"enabled,omitempty"`
	MaxEntries int   `json:"max_entries,omitempty" toml:"max_entries,omitempty"`
}

type LogSettings struct {
	Level       string `json:"level,omitempty"       toml:"level,omitempty"`
	Development bool   `json:"development,omitempty" toml:"development,omitempty"`
}

type HTTPSettings struct {
	Insecure        bool   `json:"insecure,omitempty"         toml:"insecure,omitempty"`
	Proxy           string `json:"proxy,omitempty"            toml:"proxy,omitempty"`
	FollowRedirects *bool  `json:"follow_redirects,omitempty" toml:"follow_redirects,omitempty"`
	UserAgent       string `json:"user_agent,omitempty"       toml:"user_agent,omitempty"`
}

type SettingsFormat string
type SettingsHandle struct {
	Path   string
	Format SettingsFormat
}

// LoadSettings tries settings.toml, then settings.json, then falls back to
// defaults. Parse errors fail immediately; a missing file moves on to the next
// candidate.
func LoadSettings() (Settings, SettingsHandle, error) {
	dir := Dir()
	candidates := []SettingsHandle{
		{Path: filepath.Join(dir, "settings.toml"), Format: SettingsFormatTOML},
		{Path: filepath.Join(dir, "settings.json"), Format: SettingsFormatJSON},
	}

	var accumulated error
	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate.Path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			accumulated = errors.Join(
				accumulated,
				fmt.Errorf("read settings %q: %w", candidate.Path, err),
			)
			continue
		}

		settings, err := decodeSettings(data, candidate.Format)
		if err != nil {
			return Settings{}, SettingsHandle{}, errdef.Wrap(
				errdef.CodeConfig,
				err,
				"parse settings %q",
				candidate.Path,
			)
		}
		return Normalise(settings), candidate, nil
	}

	if accumulated != nil {
		return Settings{}, SettingsHandle{}, errdef.Wrap(errdef.CodeFilesystem, accumulated, "load settings")
	}

	return Normalise(Settings{}), SettingsHandle{
		Path:   candidates[0].Path,
		Format: SettingsFormatTOML,
	}, nil
}

func decodeSettings(data []byte, format SettingsFormat) (Settings, error) {
	var settings Settings
	switch format {
	case SettingsFormatTOML:
		if err := toml.Unmarshal(data, &settings); err != nil {
			return Settings{}, err
		}
	case SettingsFormatJSON:
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&settings); err != nil {
			return Settings{}, err
		}
	default:
		return Settings{}, fmt.Errorf("unsupported settings format %q", format)
	}
	return settings, nil
}

func SaveSettings(settings Settings, handle SettingsHandle) error {
	settings = Normalise(settings)
	path := handle.Path
	format := handle.Format
	if path == "" {
		path = filepath.Join(Dir(), "settings.toml")
	}
	if format == "" {
		format = SettingsFormatTOML
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "ensure settings directory")
	}

	var (
		data []byte
		err  error
	)

	switch format {
	case SettingsFormatTOML:
		data, err = toml.Marshal(settings)
	case SettingsFormatJSON:
		buffer := &bytes.Buffer{}
		encoder := json.NewEncoder(buffer)
		encoder.SetIndent("", "  ")
		if err = encoder.Encode(settings); err == nil {
			data = buffer.Bytes()
		}
	default:
		return errdef.New(errdef.CodeConfig, "unsupported settings format %q", format)
	}
	if err != nil {
		return errdef.Wrap(errdef.CodeConfig, err, "encode settings")
	}

	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "write settings %q", path)
	}
	return nil
}

// TimeoutDuration parses Timeout, falling back to the default on bad input.
func (s Settings) TimeoutDuration() time.Duration {
	return parseDuration(s.Timeout, DefaultTimeout)
}

func (s Settings) ScriptTimeoutDuration() time.Duration {
	return parseDuration(s.ScriptTimeout, DefaultScriptTimeout)
}

func (s Settings) HistoryEnabled() bool {
	return s.History.Enabled == nil || *s.History.Enabled
}

func (s Settings) FollowRedirects() bool {
	return s.HTTP.FollowRedirects == nil || *s.HTTP.FollowRedirects
}

// StoragePath resolves the data location for the configured backend: a
// directory for the file backend, a database file for sqlite.
func (s Settings) StoragePath() string {
	if s.Storage.Path != "" {
		return s.Storage.Path
	}
	if s.Storage.Backend == BackendSQLite {
		return filepath.Join(Dir(), "restpad.db")
	}
	return filepath.Join(Dir(), "data")
}

// write to a temp file then rename so readers never see a partial file.
func writeFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".restpad-settings-*.tmp")
	if err != nil {
		return err
	}

	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return errors.Join(err, tmp.Close())
	}
	if err := tmp.Chmod(perm); err != nil {
		return errors.Join(err, tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
