package vars

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/restpad/restpad/internal/errdef"
	"github.com/restpad/restpad/internal/kvstore"
	"github.com/restpad/restpad/internal/logging"
)

// GlobalGroup always exists and sits underneath every other group.
const GlobalGroup = "global"

const storageKey = "variables"

// Groups maps group name to key/value pairs.
type Groups map[string]map[string]string

// Clone deep-copies g.
func (g Groups) Clone() Groups {
	out := make(Groups, len(g))
	for name, values := range g {
		out[name] = cloneValues(values)
	}
	return out
}

// Flatten overlays the active group on top of global. An empty active group
// means global. The result is a fresh map the caller may keep.
func Flatten(groups Groups, active string) map[string]string {
	active = normalizeGroup(active)
	base := groups[GlobalGroup]
	if active == GlobalGroup {
		return cloneValues(base)
	}
	override := groups[active]
	flat := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		flat[k] = v
	}
	for k, v := range override {
		flat[k] = v
	}
	return flat
}

// Store is the persistent group -> key -> value table. Every mutation is
// written through to the backend before the call returns. Concurrent writers
// see last-write-wins per key.
type Store struct {
	mu      sync.RWMutex
	backend kvstore.Store
	groups  Groups
	logger  *zap.Logger
}

// Open loads the variable table from backend, creating the global group when
// it is missing.
func Open(backend kvstore.Store, logger *zap.Logger) (*Store, error) {
	if backend == nil {
		backend = kvstore.NewMemoryStore()
	}
	s := &Store{backend: backend, groups: make(Groups), logger: logging.OrNop(logger)}

	var loaded Groups
	ok, err := backend.Load(storageKey, &loaded)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "load variables")
	}
	if ok && loaded != nil {
		for name, values := range loaded {
			if strings.TrimSpace(name) == "" {
				continue
			}
			if values == nil {
				values = map[string]string{}
			}
			s.groups[name] = values
		}
	}
	if _, exists := s.groups[GlobalGroup]; !exists {
		s.groups[GlobalGroup] = map[string]string{}
		if err := s.persistLocked(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) Flatten(active string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Flatten(s.groups, active)
}

func (s *Store) Get(active, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	active = normalizeGroup(active)
	if v, ok := s.groups[active][key]; ok {
		return v, true
	}
	v, ok := s.groups[GlobalGroup][key]
	return v, ok
}

// Set writes value under key in the active group, creating the group if needed.
func (s *Store) Set(active, key, value string) error {
	if key == "" {
		return errdef.New(errdef.CodeStorage, "variable key is empty")
	}
	active = normalizeGroup(active)

	s.mu.Lock()
	defer s.mu.Unlock()
	group, groupExisted := s.groups[active]
	if !groupExisted {
		group = map[string]string{}
		s.groups[active] = group
	}
	prev, keyExisted := group[key]
	group[key] = value
	if err := s.persistLocked(); err != nil {
		switch {
		case !groupExisted:
			delete(s.groups, active)
		case keyExisted:
			group[key] = prev
		default:
			delete(group, key)
		}
		return err
	}
	s.logger.Debug("variable set", zap.String("group", active), zap.String("key", key))
	return nil
}

// Delete removes key from group. Missing keys are not an error.
func (s *Store) Delete(group, key string) (bool, error) {
	group = normalizeGroup(group)

	s.mu.Lock()
	defer s.mu.Unlock()
	values, ok := s.groups[group]
	if !ok {
		return false, nil
	}
	prev, ok := values[key]
	if !ok {
		return false, nil
	}
	delete(values, key)
	if err := s.persistLocked(); err != nil {
		values[key] = prev
		return false, err
	}
	return true, nil
}

// DeleteGroup drops a whole group. The global group cannot be removed.
func (s *Store) DeleteGroup(name string) (bool, error) {
	name = normalizeGroup(name)
	if name == GlobalGroup {
		return false, errdef.New(errdef.CodeStorage, "group %q cannot be deleted", GlobalGroup)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.groups[name]
	if !ok {
		return false, nil
	}
	delete(s.groups, name)
	if err := s.persistLocked(); err != nil {
		s.groups[name] = prev
		return false, err
	}
	return true, nil
}

// Group returns a copy of one group's values.
func (s *Store) Group(name string) (map[string]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	values, ok := s.groups[normalizeGroup(name)]
	if !ok {
		return nil, false
	}
	return cloneValues(values), true
}

// Groups lists group names, global first then the rest alphabetically.
func (s *Store) Groups() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.groups))
	for name := range s.groups {
		if name != GlobalGroup {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return append([]string{GlobalGroup}, names...)
}

func (s *Store) Snapshot() Groups {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groups.Clone()
}

// Replace swaps the whole table, used by workspace import.
func (s *Store) Replace(groups Groups) error {
	next := make(Groups, len(groups)+1)
	for name, values := range groups {
		if strings.TrimSpace(name) == "" {
			continue
		}
		next[name] = cloneValues(values)
	}
	if _, ok := next[GlobalGroup]; !ok {
		next[GlobalGroup] = map[string]string{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.groups
	s.groups = next
	if err := s.persistLocked(); err != nil {
		s.groups = prev
		return err
	}
	return nil
}

func (s *Store) persistLocked() error {
	if err := s.backend.Save(storageKey, s.groups); err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "persist variables")
	}
	return nil
}

// Scope binds a store to the group that is active for one session. It is the
// explicit context threaded through templating and script bindings.
type Scope struct {
	Store *Store
	Group string
}

func NewScope(store *Store, group string) Scope {
	return Scope{Store: store, Group: normalizeGroup(group)}
}

func (sc Scope) Flatten() map[string]string {
	if sc.Store == nil {
		return map[string]string{}
	}
	return sc.Store.Flatten(sc.Group)
}

func (sc Scope) Get(key string) (string, bool) {
	if sc.Store == nil {
		return "", false
	}
	return sc.Store.Get(sc.Group, key)
}

func (sc Scope) Set(key, value string) error {
	if sc.Store == nil {
		return errdef.New(errdef.CodeStorage, "no variable store bound")
	}
	return sc.Store.Set(sc.Group, key, value)
}

// Expand applies the current flattened view to text.
func (sc Scope) Expand(text string) string {
	return ApplyTemplate(text, sc.Flatten())
}

func normalizeGroup(name string) string {
	if strings.TrimSpace(name) == "" {
		return GlobalGroup
	}
	return name
}

func cloneValues(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
