// Package workspace moves variables, scripts and requests in and out of a
// single JSON or YAML document.
package workspace

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/restpad/restpad/internal/collection"
	"github.com/restpad/restpad/internal/errdef"
	"github.com/restpad/restpad/internal/restfile"
	"github.com/restpad/restpad/internal/vars"
)

const FormatVersion = 1

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts "json", "yaml" and "yml".
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", errdef.New(errdef.CodeParse, "unknown workspace format %q", raw)
	}
}

// FormatFromPath guesses the format from a file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

type Bundle struct {
	Version   int                `json:"version"             yaml:"version"`
	Variables vars.Groups        `json:"variables"           yaml:"variables"`
	Scripts   []restfile.Script  `json:"scripts,omitempty"   yaml:"scripts,omitempty"`
	Requests  []restfile.Request `json:"requests,omitempty"  yaml:"requests,omitempty"`
}

// Collect snapshots everything currently stored.
func Collect(store *vars.Store, scripts *collection.Scripts, requests *collection.Requests) Bundle {
	b := Bundle{Version: FormatVersion, Variables: store.Snapshot()}
	if scripts != nil {
		b.Scripts = scripts.List("")
	}
	if requests != nil {
		b.Requests = requests.List("")
	}
	return b
}

func Encode(w io.Writer, format Format, b Bundle) error {
	if b.Version == 0 {
		b.Version = FormatVersion
	}
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(b); err != nil {
			return errdef.Wrap(errdef.CodeParse, err, "encode yaml workspace")
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(b); err != nil {
			return errdef.Wrap(errdef.CodeParse, err, "encode json workspace")
		}
		return nil
	}
}

func Decode(r io.Reader, format Format) (Bundle, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Bundle{}, errdef.Wrap(errdef.CodeFilesystem, err, "read workspace")
	}
	var b Bundle
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &b)
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&b)
	}
	if err != nil {
		return Bundle{}, errdef.Wrap(errdef.CodeParse, err, "decode %s workspace", format)
	}
	if b.Version > FormatVersion {
		return Bundle{}, errdef.New(errdef.CodeParse, "workspace version %d is newer than supported %d", b.Version, FormatVersion)
	}
	return b, nil
}

// Summary counts what Apply wrote.
type Summary struct {
	Groups   int
	Scripts  int
	Requests int
}

// Apply replaces the variable table wholesale and upserts scripts and
// requests by id.
func Apply(b Bundle, store *vars.Store, scripts *collection.Scripts, requests *collection.Requests) (Summary, error) {
	var sum Summary
	if b.Variables != nil {
		if err := store.Replace(b.Variables); err != nil {
			return sum, err
		}
		sum.Groups = len(store.Groups())
	}
	if scripts != nil {
		for _, s := range b.Scripts {
			if _, err := scripts.Save(s); err != nil {
				return sum, err
			}
			sum.Scripts++
		}
	}
	if requests != nil {
		for _, r := range b.Requests {
			if _, err := requests.Save(r); err != nil {
				return sum, err
			}
			sum.Requests++
		}
	}
	return sum, nil
}
