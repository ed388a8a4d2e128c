// Package collection stores saved scripts and requests as ordered record lists
// in a kvstore backend.
package collection

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/restpad/restpad/internal/errdef"
	"github.com/restpad/restpad/internal/kvstore"
	"github.com/restpad/restpad/internal/logging"
)

// accessors lets one repository implementation serve every record type.
type accessors[T any] struct {
	id    func(*T) *string
	group func(*T) *string
}

type repository[T any] struct {
	mu      sync.RWMutex
	backend kvstore.Store
	key     string
	items   []T
	fields  accessors[T]
	logger  *zap.Logger
}

func openRepository[T any](
	backend kvstore.Store,
	key string,
	fields accessors[T],
	logger *zap.Logger,
) (*repository[T], error) {
	if backend == nil {
		backend = kvstore.NewMemoryStore()
	}
	r := &repository[T]{
		backend: backend,
		key:     key,
		fields:  fields,
		logger:  logging.OrNop(logger),
	}
	if _, err := backend.Load(key, &r.items); err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "load %s", key)
	}
	return r, nil
}

// save assigns a fresh id when the record has none, replaces the record with
// the same id otherwise, and appends unknown ids.
func (r *repository[T]) save(item T) (T, error) {
	id := r.fields.id(&item)
	*id = strings.TrimSpace(*id)
	if *id == "" {
		*id = uuid.NewString()
	}
	group := r.fields.group(&item)
	if strings.TrimSpace(*group) == "" {
		*group = "global"
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]T, len(r.items), len(r.items)+1)
	copy(next, r.items)
	replaced := false
	for i := range next {
		if *r.fields.id(&next[i]) == *id {
			next[i] = item
			replaced = true
			break
		}
	}
	if !replaced {
		next = append(next, item)
	}
	if err := r.commitLocked(next); err != nil {
		return item, err
	}
	r.logger.Debug("record saved",
		zap.String("collection", r.key),
		zap.String("id", *id),
		zap.Bool("updated", replaced),
	)
	return item, nil
}

func (r *repository[T]) get(id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.items {
		if *r.fields.id(&r.items[i]) == id {
			return r.items[i], true
		}
	}
	var zero T
	return zero, false
}

// list returns records in saved order; an empty group means every group.
func (r *repository[T]) list(group string) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, len(r.items))
	for i := range r.items {
		if group != "" && *r.fields.group(&r.items[i]) != group {
			continue
		}
		out = append(out, r.items[i])
	}
	return out
}

func (r *repository[T]) groups() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	for i := range r.items {
		seen[*r.fields.group(&r.items[i])] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *repository[T]) delete(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := -1
	for i := range r.items {
		if *r.fields.id(&r.items[i]) == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false, nil
	}
	next := make([]T, 0, len(r.items)-1)
	next = append(next, r.items[:idx]...)
	next = append(next, r.items[idx+1:]...)
	if err := r.commitLocked(next); err != nil {
		return false, err
	}
	return true, nil
}

// commitLocked saves next and only then makes it the in-memory list, so a
// failed write leaves the previous records visible.
func (r *repository[T]) commitLocked(next []T) error {
	if next == nil {
		next = []T{}
	}
	if err := r.backend.Save(r.key, next); err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "persist %s", r.key)
	}
	r.items = next
	return nil
}
