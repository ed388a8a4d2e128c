package collection

import (
	"errors"
	"reflect"
	"testing"

	"github.com/restpad/restpad/internal/kvstore"
	"github.com/restpad/restpad/internal/restfile"
)

func TestScriptsSaveGeneratesIDAndUpdatesInPlace(t *testing.T) {
	backend := kvstore.NewMemoryStore()
	scripts, err := OpenScripts(backend, nil)
	if err != nil {
		t.Fatalf("open scripts: %v", err)
	}

	saved, err := scripts.Save(restfile.Script{Name: "auth", Code: `setVar("t", "1")`, Type: restfile.ScriptKindPre})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ID == "" {
		t.Fatalf("expected generated id")
	}
	if saved.Group != "global" {
		t.Fatalf("expected default group, got %q", saved.Group)
	}

	saved.Code = `setVar("t", "2")`
	if _, err := scripts.Save(saved); err != nil {
		t.Fatalf("update: %v", err)
	}
	if n := len(scripts.List("")); n != 1 {
		t.Fatalf("expected update in place, got %d records", n)
	}

	reopened, err := OpenScripts(backend, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := reopened.FindScriptByID(saved.ID)
	if !ok || got.Code != `setVar("t", "2")` {
		t.Fatalf("unexpected persisted script %#v ok=%v", got, ok)
	}
	if _, ok := reopened.FindScriptByID(""); ok {
		t.Fatalf("empty id must not match")
	}
}

func TestScriptsKeepSuppliedID(t *testing.T) {
	scripts, err := OpenScripts(nil, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	saved, err := scripts.Save(restfile.Script{ID: " fixed ", Name: "x"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ID != "fixed" {
		t.Fatalf("expected trimmed supplied id, got %q", saved.ID)
	}
}

func TestScriptsListKindAndGroups(t *testing.T) {
	scripts, err := OpenScripts(nil, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, s := range []restfile.Script{
		{Name: "a", Type: restfile.ScriptKindPre, Group: "prod"},
		{Name: "b", Group: "prod"},
		{Name: "c", Type: restfile.ScriptKindPre, Group: "dev"},
	} {
		if _, err := scripts.Save(s); err != nil {
			t.Fatalf("save %s: %v", s.Name, err)
		}
	}
	pre := scripts.ListKind("prod", restfile.ScriptKindPre)
	if len(pre) != 1 || pre[0].Name != "a" {
		t.Fatalf("unexpected pre scripts %#v", pre)
	}
	if got := scripts.Groups(); !reflect.DeepEqual(got, []string{"dev", "prod"}) {
		t.Fatalf("unexpected groups %v", got)
	}
}

func TestRequestsCRUD(t *testing.T) {
	dir := t.TempDir()
	requests, err := OpenRequests(kvstore.NewFileStore(dir), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	saved, err := requests.Save(restfile.Request{
		Title:   "ping",
		URL:     "{{baseUrl}}/ping",
		Method:  "get",
		Headers: []restfile.Header{{Key: "Accept", Value: "application/json"}},
		Group:   "prod",
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Method != "GET" {
		t.Fatalf("expected normalized method, got %q", saved.Method)
	}

	reopened, err := OpenRequests(kvstore.NewFileStore(dir), nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := reopened.Get(saved.ID)
	if !ok || !reflect.DeepEqual(got, saved) {
		t.Fatalf("unexpected record %#v ok=%v", got, ok)
	}
	if len(reopened.List("dev")) != 0 || len(reopened.List("prod")) != 1 {
		t.Fatalf("group filter mismatch")
	}

	removed, err := reopened.Delete(saved.ID)
	if err != nil || !removed {
		t.Fatalf("delete: removed=%v err=%v", removed, err)
	}
	if removed, _ := reopened.Delete(saved.ID); removed {
		t.Fatalf("second delete should report false")
	}
}

type failingBackend struct {
	*kvstore.MemoryStore
	fail bool
}

func (f *failingBackend) Save(key string, value any) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.MemoryStore.Save(key, value)
}

func TestFailedPersistKeepsPreviousRecords(t *testing.T) {
	backend := &failingBackend{MemoryStore: kvstore.NewMemoryStore()}
	scripts, err := OpenScripts(backend, nil)
	if err != nil {
		t.Fatalf("open scripts: %v", err)
	}
	first, err := scripts.Save(restfile.Script{Name: "a", Code: "log(1)", Type: restfile.ScriptKindPre})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	second, err := scripts.Save(restfile.Script{Name: "b", Code: "log(2)", Type: restfile.ScriptKindPost})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	before := scripts.List("")

	backend.fail = true
	if _, err := scripts.Save(restfile.Script{Name: "c", Code: "log(3)", Type: restfile.ScriptKindPre}); err == nil {
		t.Fatalf("expected insert to fail")
	}
	changed := first
	changed.Code = "log(99)"
	if _, err := scripts.Save(changed); err == nil {
		t.Fatalf("expected update to fail")
	}
	if removed, err := scripts.Delete(first.ID); err == nil || removed {
		t.Fatalf("expected delete to fail: removed=%v err=%v", removed, err)
	}

	if got := scripts.List(""); !reflect.DeepEqual(got, before) {
		t.Fatalf("records changed after failed writes: %#v", got)
	}
	if got, _ := scripts.Get(first.ID); got.Code != "log(1)" {
		t.Fatalf("unsaved update visible: %q", got.Code)
	}

	backend.fail = false
	if removed, err := scripts.Delete(first.ID); err != nil || !removed {
		t.Fatalf("delete: removed=%v err=%v", removed, err)
	}
	reopened, err := OpenScripts(backend, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reopened.List(""); len(got) != 1 || got[0].ID != second.ID {
		t.Fatalf("unexpected persisted records %#v", got)
	}
}
