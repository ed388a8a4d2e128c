package kvstore

import (
	"os"
	"path/filepath"
	"testing"
)

type doc struct {
	Name  string            `json:"name"`
	Items map[string]string `json:"items"`
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()

	var missing doc
	ok, err := s.Load("variables", &missing)
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if ok {
		t.Fatalf("expected missing key to report false")
	}

	want := doc{Name: "global", Items: map[string]string{"baseUrl": "https://api.example.com"}}
	if err := s.Save("variables", want); err != nil {
		t.Fatalf("save: %v", err)
	}
	want.Items["token"] = "abc"
	if err := s.Save("variables", want); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	var got doc
	ok, err = s.Load("variables", &got)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.Name != "global" || got.Items["token"] != "abc" ||
		got.Items["baseUrl"] != "https://api.example.com" {
		t.Fatalf("unexpected document %#v", got)
	}

	if err := s.Save("../escape", want); err == nil {
		t.Fatalf("expected invalid key to be rejected")
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	store := NewFileStore(dir)
	exerciseStore(t, store)

	if _, err := os.Stat(filepath.Join(dir, "variables.json")); err != nil {
		t.Fatalf("expected document file: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".tmp" {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "restpad.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	exerciseStore(t, store)
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("redis", t.TempDir()); err == nil {
		t.Fatalf("expected unknown backend error")
	}
	s, err := Open("memory", "")
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if err := Close(s); err != nil {
		t.Fatalf("close memory: %v", err)
	}
}
