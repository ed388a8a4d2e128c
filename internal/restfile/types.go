// Package restfile holds the records a user saves: requests and the scripts
// attached to them.
package restfile

import (
	"net/http"
	"strings"
)

type ScriptKind string

const (
	ScriptKindPre ScriptKind = "pre-request"
	// ScriptKindPost is stored as an empty type.
	ScriptKindPost ScriptKind = ""
)

// ParseScriptKind accepts user spellings such as "pre", "post" and
// "post-request".
func ParseScriptKind(raw string) ScriptKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pre", "pre-request", "prerequest":
		return ScriptKindPre
	default:
		return ScriptKindPost
	}
}

func (k ScriptKind) Label() string {
	if k == ScriptKindPre {
		return "pre-request"
	}
	return "post-request"
}

type Script struct {
	ID    string     `json:"id"    yaml:"id"`
	Name  string     `json:"name"  yaml:"name"`
	Code  string     `json:"code"  yaml:"code"`
	Type  ScriptKind `json:"type,omitempty" yaml:"type,omitempty"`
	Group string     `json:"group" yaml:"group"`
}

func (s Script) IsPre() bool {
	return s.Type == ScriptKindPre
}

// Header keeps user order; keys and values may contain {{placeholders}}.
type Header struct {
	Key   string `json:"key"   yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

type Request struct {
	ID           string   `json:"id"                     yaml:"id"`
	Title        string   `json:"title"                  yaml:"title"`
	URL          string   `json:"url"                    yaml:"url"`
	Method       string   `json:"method"                 yaml:"method"`
	Headers      []Header `json:"rawHeaders,omitempty"   yaml:"headers,omitempty"`
	Body         string   `json:"body,omitempty"         yaml:"body,omitempty"`
	PreScriptID  string   `json:"preScriptId,omitempty"  yaml:"preScriptId,omitempty"`
	PostScriptID string   `json:"postScriptId,omitempty" yaml:"postScriptId,omitempty"`
	Group        string   `json:"group"                  yaml:"group"`
}

// NormalizeMethod upper-cases m and defaults to GET.
func NormalizeMethod(m string) string {
	m = strings.ToUpper(strings.TrimSpace(m))
	if m == "" {
		return http.MethodGet
	}
	return m
}

// MethodAllowsBody reports whether a body is sent for m. GET and HEAD never
// carry one.
func MethodAllowsBody(m string) bool {
	switch NormalizeMethod(m) {
	case http.MethodGet, http.MethodHead:
		return false
	default:
		return true
	}
}

// ParseHeader splits "Key: Value" (or "Key=Value") into a Header.
func ParseHeader(raw string) (Header, bool) {
	idx := strings.IndexAny(raw, ":=")
	if idx <= 0 {
		return Header{}, false
	}
	key := strings.TrimSpace(raw[:idx])
	if key == "" {
		return Header{}, false
	}
	return Header{Key: key, Value: strings.TrimSpace(raw[idx+1:])}, true
}
