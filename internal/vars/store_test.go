package vars

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/restpad/restpad/internal/kvstore"
)

func TestFlattenGroupPrecedence(t *testing.T) {
	t.Parallel()

	groups := Groups{
		"global": {"a": "1", "b": "2"},
		"prod":   {"a": "9"},
	}
	got := Flatten(groups, "prod")
	if !reflect.DeepEqual(got, map[string]string{"a": "9", "b": "2"}) {
		t.Fatalf("unexpected flattened view %v", got)
	}
	if got := Flatten(groups, "global"); !reflect.DeepEqual(got, map[string]string{"a": "1", "b": "2"}) {
		t.Fatalf("unexpected global view %v", got)
	}
	if got := Flatten(groups, ""); got["a"] != "1" {
		t.Fatalf("empty group should mean global, got %v", got)
	}
	if got := Flatten(Groups{}, "global"); got == nil || len(got) != 0 {
		t.Fatalf("expected empty map, got %v", got)
	}
	if got := Flatten(groups, "missing"); !reflect.DeepEqual(got, map[string]string{"a": "1", "b": "2"}) {
		t.Fatalf("unknown group should fall back to global values, got %v", got)
	}
}

func TestFlattenReturnsCopy(t *testing.T) {
	t.Parallel()

	groups := Groups{"global": {"a": "1"}}
	flat := Flatten(groups, "global")
	flat["a"] = "changed"
	if groups["global"]["a"] != "1" {
		t.Fatalf("flatten must not alias group maps")
	}
}

func TestOpenCreatesGlobalGroup(t *testing.T) {
	backend := kvstore.NewMemoryStore()
	store, err := Open(backend, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.Group(GlobalGroup); !ok {
		t.Fatalf("expected global group")
	}

	var persisted Groups
	ok, err := backend.Load("variables", &persisted)
	if err != nil || !ok {
		t.Fatalf("expected global group to be persisted: ok=%v err=%v", ok, err)
	}
	if _, ok := persisted[GlobalGroup]; !ok {
		t.Fatalf("persisted table lacks global group: %v", persisted)
	}
}

func TestSetPersistsImmediately(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(kvstore.NewFileStore(dir), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Set("staging", "token", "abc"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set("", "baseUrl", "https://example.test"); err != nil {
		t.Fatalf("set global: %v", err)
	}

	reopened, err := Open(kvstore.NewFileStore(dir), nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if v, ok := reopened.Get("staging", "token"); !ok || v != "abc" {
		t.Fatalf("expected token after reopen, got %q %v", v, ok)
	}
	if v, ok := reopened.Get("staging", "baseUrl"); !ok || v != "https://example.test" {
		t.Fatalf("expected global fallback, got %q %v", v, ok)
	}
	if _, ok := reopened.Get("global", "token"); ok {
		t.Fatalf("staging value leaked into global")
	}
}

func TestDeleteAndGroups(t *testing.T) {
	store, err := Open(nil, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, g := range []string{"prod", "dev"} {
		if err := store.Set(g, "k", g); err != nil {
			t.Fatalf("set %s: %v", g, err)
		}
	}
	if got := store.Groups(); !reflect.DeepEqual(got, []string{"global", "dev", "prod"}) {
		t.Fatalf("unexpected groups %v", got)
	}

	removed, err := store.Delete("dev", "k")
	if err != nil || !removed {
		t.Fatalf("delete: removed=%v err=%v", removed, err)
	}
	removed, err = store.Delete("dev", "k")
	if err != nil || removed {
		t.Fatalf("second delete should be a no-op: removed=%v err=%v", removed, err)
	}

	if _, err := store.DeleteGroup(GlobalGroup); err == nil {
		t.Fatalf("expected global group deletion to fail")
	}
	if ok, err := store.DeleteGroup("prod"); err != nil || !ok {
		t.Fatalf("delete group: ok=%v err=%v", ok, err)
	}
	if got := store.Groups(); !reflect.DeepEqual(got, []string{"global", "dev"}) {
		t.Fatalf("unexpected groups after delete %v", got)
	}
}

func TestReplaceKeepsGlobal(t *testing.T) {
	store, err := Open(nil, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Set("global", "old", "1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Replace(Groups{"qa": {"x": "y"}}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if _, ok := store.Get("global", "old"); ok {
		t.Fatalf("replace should drop old values")
	}
	if _, ok := store.Group(GlobalGroup); !ok {
		t.Fatalf("replace must keep a global group")
	}
	if v, _ := store.Get("qa", "x"); v != "y" {
		t.Fatalf("expected imported value, got %q", v)
	}
}

func TestScopeExpandSeesLatestWrites(t *testing.T) {
	store, err := Open(nil, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	scope := NewScope(store, "prod")
	if err := store.Set("global", "host", "g.example"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := scope.Expand("https://{{host}}/"); got != "https://g.example/" {
		t.Fatalf("unexpected expansion %q", got)
	}
	if err := scope.Set("host", "p.example"); err != nil {
		t.Fatalf("scope set: %v", err)
	}
	if got := scope.Expand("https://{{host}}/"); got != "https://p.example/" {
		t.Fatalf("expected active group to win, got %q", got)
	}
}

func TestConcurrentSetIsSafe(t *testing.T) {
	store, err := Open(nil, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Set("global", "shared", "v")
			_ = store.Flatten("global")
		}()
	}
	wg.Wait()
	if v, _ := store.Get("global", "shared"); v != "v" {
		t.Fatalf("unexpected value %q", v)
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

func TestFailedPersistLeavesTableUnchanged(t *testing.T) {
	backend := &failingBackend{MemoryStore: kvstore.NewMemoryStore()}
	store, err := Open(backend, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Set("global", "host", "old"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set("qa", "token", "t1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	before := store.Snapshot()

	backend.fail = true
	if err := store.Set("global", "host", "new"); err == nil {
		t.Fatalf("expected overwrite to fail")
	}
	if err := store.Set("global", "fresh", "v"); err == nil {
		t.Fatalf("expected new key to fail")
	}
	if err := store.Set("staging", "k", "v"); err == nil {
		t.Fatalf("expected new group to fail")
	}
	if removed, err := store.Delete("global", "host"); err == nil || removed {
		t.Fatalf("expected delete to fail: removed=%v err=%v", removed, err)
	}
	if removed, err := store.DeleteGroup("qa"); err == nil || removed {
		t.Fatalf("expected group delete to fail: removed=%v err=%v", removed, err)
	}
	if err := store.Replace(Groups{"global": {"other": "x"}}); err == nil {
		t.Fatalf("expected replace to fail")
	}

	if got := store.Snapshot(); !reflect.DeepEqual(got, before) {
		t.Fatalf("table changed after failed writes: %v, want %v", got, before)
	}
	if _, ok := store.Get("global", "fresh"); ok {
		t.Fatalf("unsaved key must not be visible")
	}

	backend.fail = false
	reopened, err := Open(backend, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reopened.Snapshot(); !reflect.DeepEqual(got, before) {
		t.Fatalf("persisted table %v, want %v", got, before)
	}
}
