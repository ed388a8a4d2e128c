package collection

import (
	"go.uber.org/zap"

	"github.com/restpad/restpad/internal/kvstore"
	"github.com/restpad/restpad/internal/restfile"
)

const (
	scriptsKey  = "scripts"
	requestsKey = "requests"
)

type Scripts struct {
	repo *repository[restfile.Script]
}

func OpenScripts(backend kvstore.Store, logger *zap.Logger) (*Scripts, error) {
	repo, err := openRepository(backend, scriptsKey, accessors[restfile.Script]{
		id:    func(s *restfile.Script) *string { return &s.ID },
		group: func(s *restfile.Script) *string { return &s.Group },
	}, logger)
	if err != nil {
		return nil, err
	}
	return &Scripts{repo: repo}, nil
}

func (s *Scripts) Save(script restfile.Script) (restfile.Script, error) {
	return s.repo.save(script)
}

func (s *Scripts) Get(id string) (restfile.Script, bool) {
	return s.repo.get(id)
}

// FindScriptByID lets the script runner resolve ids against this collection.
func (s *Scripts) FindScriptByID(id string) (restfile.Script, bool) {
	if id == "" {
		return restfile.Script{}, false
	}
	return s.repo.get(id)
}

func (s *Scripts) List(group string) []restfile.Script {
	return s.repo.list(group)
}

// ListKind filters List by script type.
func (s *Scripts) ListKind(group string, kind restfile.ScriptKind) []restfile.Script {
	all := s.repo.list(group)
	out := all[:0]
	for _, script := range all {
		if script.Type == kind {
			out = append(out, script)
		}
	}
	return out
}

func (s *Scripts) Groups() []string {
	return s.repo.groups()
}

func (s *Scripts) Delete(id string) (bool, error) {
	return s.repo.delete(id)
}

type Requests struct {
	repo *repository[restfile.Request]
}

func OpenRequests(backend kvstore.Store, logger *zap.Logger) (*Requests, error) {
	repo, err := openRepository(backend, requestsKey, accessors[restfile.Request]{
		id:    func(r *restfile.Request) *string { return &r.ID },
		group: func(r *restfile.Request) *string { return &r.Group },
	}, logger)
	if err != nil {
		return nil, err
	}
	return &Requests{repo: repo}, nil
}

// Save normalizes the method before storing the record.
func (r *Requests) Save(req restfile.Request) (restfile.Request, error) {
	req.Method = restfile.NormalizeMethod(req.Method)
	return r.repo.save(req)
}

func (r *Requests) Get(id string) (restfile.Request, bool) {
	return r.repo.get(id)
}

func (r *Requests) List(group string) []restfile.Request {
	return r.repo.list(group)
}

func (r *Requests) Groups() []string {
	return r.repo.groups()
}

func (r *Requests) Delete(id string) (bool, error) {
	return r.repo.delete(id)
}
