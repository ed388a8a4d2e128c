package scripts

import (
	"context"
	"strings"
	"testing"

	"github.com/restpad/restpad/internal/restfile"
)

func finderOf(scripts ...restfile.Script) ScriptFinder {
	return FinderFunc(func(id string) (restfile.Script, bool) {
		for _, s := range scripts {
			if s.ID == id {
				return s, true
			}
		}
		return restfile.Script{}, false
	})
}

func TestRunPreScriptEmptyID(t *testing.T) {
	scope, _ := newScope(t, "")
	r := NewRunner(finderOf(), nil, nil)
	if out := r.RunPreScript(context.Background(), scope, "  "); out != "" {
		t.Fatalf("expected empty output, got %q", out)
	}
}

func TestRunPreScriptNotFound(t *testing.T) {
	scope, _ := newScope(t, "")
	r := NewRunner(finderOf(), nil, nil)
	out := r.RunPreScript(context.Background(), scope, "nope")
	if out != `[Pre-Script Error] script "nope" not found` {
		t.Fatalf("unexpected output %q", out)
	}
	out = r.RunPostScript(context.Background(), scope, "nope", nil, nil)
	if out != `[Post-Script Error] script "nope" not found` {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRunPreScriptBanner(t *testing.T) {
	scope, store := newScope(t, "dev")
	r := NewRunner(finderOf(restfile.Script{
		ID:   "s1",
		Name: "auth",
		Code: `setVar("token", "abc"); log("ready")`,
		Type: restfile.ScriptKindPre,
	}), nil, nil)

	out := r.RunPreScript(context.Background(), scope, "s1")
	want := strings.Join([]string{
		"--- Pre-request script: auth ---",
		"[Pre-Log] setVar token = abc",
		"[Pre-Log] ready",
	}, "\n")
	if out != want {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if v, _ := store.Get("dev", "token"); v != "abc" {
		t.Fatalf("expected token in store, got %q", v)
	}
}

func TestRunPostScriptSeesResponse(t *testing.T) {
	scope, _ := newScope(t, "")
	r := NewRunner(finderOf(restfile.Script{
		ID:   "p1",
		Code: `log(response.status, response.headers["x-id"], responseData.ok)`,
	}), nil, nil)

	resp := &ResponseInfo{Status: 201, StatusText: "Created", Headers: map[string]string{"x-id": "7"}, OK: true}
	out := r.RunPostScript(context.Background(), scope, "p1", resp, map[string]any{"ok": true})
	want := "--- Post-request script: p1 ---\n[Log] 201 7 true"
	if out != want {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRunnerKeepsErrorInLog(t *testing.T) {
	scope, _ := newScope(t, "")
	r := NewRunner(finderOf(restfile.Script{ID: "bad", Name: "bad", Code: `null.x`}), nil, nil)
	out := r.RunPreScript(context.Background(), scope, "bad")
	lines := strings.Split(out, "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "[Script Error] ") {
		t.Fatalf("unexpected output %q", out)
	}
}
