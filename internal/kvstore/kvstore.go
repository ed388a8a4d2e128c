// Package kvstore persists JSON documents under string keys. The variable
// store, the script and request collections and the workspace importer all sit
// on top of it.
package kvstore

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/restpad/restpad/internal/errdef"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Store loads and saves JSON documents. Load reports false when key has never
// been saved.
type Store interface {
	Load(key string, dst any) (bool, error)
	Save(key string, value any) error
}

// Closer is implemented by backends holding an open handle.
type Closer interface {
	Close() error
}

// Open returns the backend named by kind rooted at path.
func Open(kind, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", BackendFile:
		return NewFileStore(path), nil
	case BackendSQLite:
		return OpenSQLite(path)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, errdef.New(errdef.CodeConfig, "unknown storage backend %q", kind)
	}
}

// Close closes s when the backend holds resources.
func Close(s Store) error {
	if c, ok := s.(Closer); ok {
		return c.Close()
	}
	return nil
}

func validKey(key string) error {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return errdef.New(errdef.CodeStorage, "empty storage key")
	}
	if strings.ContainsAny(trimmed, `/\`) || strings.Contains(trimmed, "..") {
		return errdef.New(errdef.CodeStorage, "invalid storage key %q", key)
	}
	return nil
}

type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func (m *MemoryStore) Load(key string, dst any) (bool, error) {
	if err := validKey(key); err != nil {
		return false, err
	}
	m.mu.RLock()
	data, ok := m.docs[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, errdef.Wrap(errdef.CodeStorage, err, "decode %s", key)
	}
	return true, nil
}

func (m *MemoryStore) Save(key string, value any) error {
	if err := validKey(key); err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "encode %s", key)
	}
	m.mu.Lock()
	m.docs[key] = data
	m.mu.Unlock()
	return nil
}
