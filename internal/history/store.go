package history

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/restpad/restpad/internal/errdef"
	"github.com/restpad/restpad/internal/execution"
	"github.com/restpad/restpad/internal/kvstore"
	"github.com/restpad/restpad/internal/restfile"
)

const (
	storageKey        = "history"
	DefaultMaxEntries = 200
	snippetLimit      = 2048
)

type Entry struct {
	ID           string        `json:"id"`
	ExecutedAt   time.Time     `json:"executedAt"`
	RequestID    string        `json:"requestId,omitempty"`
	Title        string        `json:"title,omitempty"`
	Group        string        `json:"group"`
	Method       string        `json:"method"`
	URL          string        `json:"url"`
	Status       string        `json:"status"`
	StatusCode   int           `json:"statusCode"`
	Duration     time.Duration `json:"duration"`
	BodySnippet  string        `json:"bodySnippet"`
	ScriptOutput string        `json:"scriptOutput,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// Store keeps the most recent executions, newest first, capped at maxEntries.
type Store struct {
	backend    kvstore.Store
	maxEntries int
	entries    []Entry
	mu         sync.RWMutex
	loaded     bool
	now        func() time.Time
}

func NewStore(backend kvstore.Store, maxEntries int) *Store {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if backend == nil {
		backend = kvstore.NewMemoryStore()
	}
	return &Store{backend: backend, maxEntries: maxEntries, now: time.Now}
}

func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLoadedLocked()
}

// Record appends the outcome of one execution. It satisfies
// execution.Recorder.
func (s *Store) Record(_ context.Context, req restfile.Request, res *execution.Result) error {
	if res == nil {
		return nil
	}
	return s.Append(EntryFor(req, res, s.now()))
}

// EntryFor summarizes a result for the history list.
func EntryFor(req restfile.Request, res *execution.Result, at time.Time) Entry {
	entry := Entry{
		ID:           strconv.FormatInt(at.UnixNano(), 10),
		ExecutedAt:   at,
		RequestID:    req.ID,
		Title:        req.Title,
		Group:        req.Group,
		Method:       res.RequestDetails.Method,
		URL:          res.ProcessedURL,
		Status:       statusLine(res.Response),
		StatusCode:   res.Response.StatusCode,
		Duration:     time.Duration(res.DurationMs * float64(time.Millisecond)),
		BodySnippet:  snippet(res.Body),
		ScriptOutput: res.ScriptOutput,
	}
	if res.Err != nil {
		entry.Error = res.Err.Error()
	}
	return entry
}

func (s *Store) Append(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(); err != nil {
		return err
	}

	s.entries = append([]Entry{entry}, s.entries...)
	s.sortEntriesLocked()
	if len(s.entries) > s.maxEntries {
		s.entries = s.entries[:s.maxEntries]
	}

	return s.persist()
}

func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copies := make([]Entry, len(s.entries))
	copy(copies, s.entries)
	return copies
}

func (s *Store) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.entries {
		if entry.ID == id {
			return entry, true
		}
	}
	return Entry{}, false
}

func (s *Store) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(); err != nil {
		return false, err
	}

	idx := -1
	for i, entry := range s.entries {
		if entry.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false, nil
	}

	copy(s.entries[idx:], s.entries[idx+1:])
	s.entries = s.entries[:len(s.entries)-1]

	if err := s.persist(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = []Entry{}
	s.loaded = true
	return s.persist()
}

// ByRequest matches a saved request id, title or URL.
func (s *Store) ByRequest(identifier string) []Entry {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return s.Entries()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []Entry
	for _, entry := range s.entries {
		if entry.RequestID == identifier || entry.Title == identifier || entry.URL == identifier {
			matched = append(matched, entry)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return newerFirst(matched[i], matched[j])
	})
	return matched
}

func (s *Store) ByGroup(group string) []Entry {
	group = strings.TrimSpace(group)
	if group == "" {
		return s.Entries()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []Entry
	for _, entry := range s.entries {
		if strings.EqualFold(entry.Group, group) {
			matched = append(matched, entry)
		}
	}
	return matched
}

func (s *Store) persist() error {
	if err := s.backend.Save(storageKey, s.entries); err != nil {
		return errdef.Wrap(errdef.CodeHistory, err, "write history")
	}
	return nil
}

func (s *Store) sortEntriesLocked() {
	if len(s.entries) < 2 {
		return
	}

	sort.SliceStable(s.entries, func(i, j int) bool {
		return newerFirst(s.entries[i], s.entries[j])
	})
}

func (s *Store) ensureLoadedLocked() error {
	if s.loaded {
		return nil
	}

	var entries []Entry
	ok, err := s.backend.Load(storageKey, &entries)
	if err != nil {
		return errdef.Wrap(errdef.CodeHistory, err, "read history")
	}
	if !ok || entries == nil {
		entries = []Entry{}
	}
	s.entries = entries
	s.sortEntriesLocked()
	s.loaded = true
	return nil
}

func statusLine(r execution.ResponseSummary) string {
	if r.StatusText == "" {
		return r.Status
	}
	return r.Status + " " + r.StatusText
}

func snippet(body []byte) string {
	if len(body) <= snippetLimit {
		return string(body)
	}
	cut := body[:snippetLimit]
	for len(cut) > 0 && !utf8.Valid(cut) {
		cut = cut[:len(cut)-1]
	}
	return string(cut) + "…"
}

func newerFirst(a, b Entry) bool {
	ai := a.ExecutedAt
	bi := b.ExecutedAt
	switch {
	case ai.IsZero() && bi.IsZero():
		return compareIDsDesc(a.ID, b.ID)
	case ai.IsZero():
		return false
	case bi.IsZero():
		return true
	case ai.Equal(bi):
		return compareIDsDesc(a.ID, b.ID)
	default:
		return ai.After(bi)
	}
}

func compareIDsDesc(a, b string) bool {
	ai, errA := strconv.ParseInt(a, 10, 64)
	bi, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return ai > bi
	}
	return a > b
}
