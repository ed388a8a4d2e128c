package execution

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/restpad/restpad/internal/errdef"
	"github.com/restpad/restpad/internal/httpclient"
	"github.com/restpad/restpad/internal/kvstore"
	"github.com/restpad/restpad/internal/restfile"
	"github.com/restpad/restpad/internal/scripts"
	"github.com/restpad/restpad/internal/vars"
)

type call struct {
	url  string
	opts httpclient.Options
}

type stubTransport struct {
	mu    sync.Mutex
	calls []call
	fn    func(url string, opts httpclient.Options) (*httpclient.Response, error)
}

func (s *stubTransport) Send(_ context.Context, url string, opts httpclient.Options) (*httpclient.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call{url: url, opts: opts})
	s.mu.Unlock()
	return s.fn(url, opts)
}

func (s *stubTransport) Name() string { return "stub" }

func (s *stubTransport) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func jsonResponse(body string) *httpclient.Response {
	return &httpclient.Response{
		StatusCode: 200,
		StatusText: "OK",
		Headers:    http.Header{"Content-Type": {"application/json"}},
		Body:       []byte(body),
	}
}

func newScope(t *testing.T, group string, seed map[string]string) (vars.Scope, *vars.Store) {
	t.Helper()
	store, err := vars.Open(kvstore.NewMemoryStore(), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	for k, v := range seed {
		if err := store.Set(group, k, v); err != nil {
			t.Fatalf("seed %s: %v", k, err)
		}
	}
	return vars.NewScope(store, group), store
}

func newExecutor(tr httpclient.Transport, saved ...restfile.Script) *Executor {
	finder := scripts.FinderFunc(func(id string) (restfile.Script, bool) {
		for _, s := range saved {
			if s.ID == id {
				return s, true
			}
		}
		return restfile.Script{}, false
	})
	runner := scripts.NewRunner(finder, scripts.NewSandbox(tr), nil)
	return New(tr, runner)
}

func TestExecuteEndToEnd(t *testing.T) {
	tr := &stubTransport{fn: func(string, httpclient.Options) (*httpclient.Response, error) {
		return jsonResponse(`{"ok":true}`), nil
	}}
	scope, _ := newScope(t, "", map[string]string{"baseUrl": "https://example.test"})

	res := newExecutor(tr).Execute(context.Background(), restfile.Request{
		Method: "GET",
		URL:    "{{baseUrl}}/ping",
	}, scope)

	if res.ProcessedURL != "https://example.test/ping" {
		t.Fatalf("unexpected processed url %q", res.ProcessedURL)
	}
	if !reflect.DeepEqual(res.ResponseData, map[string]any{"ok": true}) {
		t.Fatalf("unexpected response data %#v", res.ResponseData)
	}
	if res.Response.Status != "200" || res.Response.StatusText != "OK" || res.Response.Headers["content-type"] != "application/json" {
		t.Fatalf("unexpected response %#v", res.Response)
	}
	if res.ScriptOutput != "" {
		t.Fatalf("expected empty script output, got %q", res.ScriptOutput)
	}
	if res.Failed() || res.DurationMs < 0 {
		t.Fatalf("unexpected failure or duration: %v %v", res.Err, res.DurationMs)
	}
	if tr.count() != 1 || tr.calls[0].url != "https://example.test/ping" {
		t.Fatalf("unexpected transport calls %#v", tr.calls)
	}
}

func TestExecuteTemplatesHeadersAndBody(t *testing.T) {
	tr := &stubTransport{fn: func(string, httpclient.Options) (*httpclient.Response, error) {
		return jsonResponse(`{}`), nil
	}}
	scope, _ := newScope(t, "dev", map[string]string{"token": "t1", "name": "ada", "hdr": "X-Trace"})
	exec := newExecutor(tr)

	req := restfile.Request{
		Method: "post",
		URL:    "https://api.test/users",
		Headers: []restfile.Header{
			{Key: "Authorization", Value: "Bearer {{token}}"},
			{Key: "{{hdr}}", Value: "1"},
			{Key: "   ", Value: "dropped"},
			{Key: "{{blank}}", Value: "kept-literal-key"},
		},
		Body: `{"name":"{{name}}"}`,
	}
	res := exec.Execute(context.Background(), req, scope)

	got := tr.calls[0].opts
	if got.Method != http.MethodPost || res.RequestDetails.Method != http.MethodPost {
		t.Fatalf("expected POST, got %q", got.Method)
	}
	want := map[string]string{
		"Authorization": "Bearer t1",
		"X-Trace":       "1",
		"{{blank}}":     "kept-literal-key",
	}
	if !reflect.DeepEqual(got.Headers, want) {
		t.Fatalf("unexpected headers %#v", got.Headers)
	}
	if got.Body == nil || *got.Body != `{"name":"ada"}` {
		t.Fatalf("unexpected body %v", got.Body)
	}

	req.Method = ""
	exec.Execute(context.Background(), req, scope)
	got = tr.calls[1].opts
	if got.Method != http.MethodGet || got.Body != nil {
		t.Fatalf("expected bodyless GET, got %q %v", got.Method, got.Body)
	}

	req.Method = "head"
	exec.Execute(context.Background(), req, scope)
	if got := tr.calls[2].opts; got.Method != http.MethodHead || got.Body != nil {
		t.Fatalf("expected bodyless HEAD, got %q %v", got.Method, got.Body)
	}
}

func TestPreScriptFailureDoesNotStopRequest(t *testing.T) {
	tr := &stubTransport{fn: func(string, httpclient.Options) (*httpclient.Response, error) {
		return jsonResponse(`{"ok":true}`), nil
	}}
	scope, _ := newScope(t, "", nil)
	exec := newExecutor(tr, restfile.Script{ID: "pre", Name: "broken", Code: `throw new Error("nope")`, Type: restfile.ScriptKindPre})

	res := exec.Execute(context.Background(), restfile.Request{URL: "https://x.test", PreScriptID: "pre"}, scope)
	if tr.count() != 1 {
		t.Fatalf("expected transport to be called exactly once, got %d", tr.count())
	}
	if !strings.Contains(res.ScriptOutput, "[Script Error] nope") {
		t.Fatalf("expected error marker in log, got %q", res.ScriptOutput)
	}
	if res.Failed() {
		t.Fatalf("script failure must not fail the request")
	}
}

func TestMissingPreScriptIsLogged(t *testing.T) {
	tr := &stubTransport{fn: func(string, httpclient.Options) (*httpclient.Response, error) {
		return jsonResponse(`{}`), nil
	}}
	scope, _ := newScope(t, "", nil)
	res := newExecutor(tr).Execute(context.Background(), restfile.Request{URL: "https://x.test", PreScriptID: "ghost"}, scope)
	if res.ScriptOutput != `[Pre-Script Error] script "ghost" not found` {
		t.Fatalf("unexpected output %q", res.ScriptOutput)
	}
	if tr.count() != 1 {
		t.Fatalf("expected request to proceed")
	}
}

func TestPreScriptVariablesFeedTemplating(t *testing.T) {
	tr := &stubTransport{fn: func(string, httpclient.Options) (*httpclient.Response, error) {
		return jsonResponse(`{}`), nil
	}}
	scope, _ := newScope(t, "dev", nil)
	exec := newExecutor(tr, restfile.Script{ID: "auth", Name: "auth", Code: `setVar("token", "fresh")`, Type: restfile.ScriptKindPre})

	res := exec.Execute(context.Background(), restfile.Request{
		URL:         "https://x.test/{{token}}",
		PreScriptID: "auth",
	}, scope)
	if res.ProcessedURL != "https://x.test/fresh" {
		t.Fatalf("expected pre-script write to be visible, got %q", res.ProcessedURL)
	}
	want := "--- Pre-request script: auth ---\n[Pre-Log] setVar token = fresh"
	if res.ScriptOutput != want {
		t.Fatalf("unexpected output %q", res.ScriptOutput)
	}
}

func TestPostScriptSeesSameDecodedBody(t *testing.T) {
	tr := &stubTransport{fn: func(string, httpclient.Options) (*httpclient.Response, error) {
		return jsonResponse(`{"user":{"id":7,"tags":["a","b"]},"n":1.5}`), nil
	}}
	scope, store := newScope(t, "", nil)
	exec := newExecutor(tr, restfile.Script{
		ID:   "post",
		Name: "capture",
		Code: `setVar("seen", JSON.stringify(responseData)); setVar("status", response.status); setVar("ok", response.ok)`,
	})

	res := exec.Execute(context.Background(), restfile.Request{URL: "https://x.test", PostScriptID: "post"}, scope)

	seen, ok := store.Get("", "seen")
	if !ok {
		t.Fatalf("post-script did not run: %q", res.ScriptOutput)
	}
	var fromScript any
	if err := json.Unmarshal([]byte(seen), &fromScript); err != nil {
		t.Fatalf("decode script copy: %v", err)
	}
	if !reflect.DeepEqual(fromScript, res.ResponseData) {
		t.Fatalf("script saw %#v, result has %#v", fromScript, res.ResponseData)
	}
	if v, _ := store.Get("", "status"); v != "200" {
		t.Fatalf("unexpected status seen by script %q", v)
	}
	if v, _ := store.Get("", "ok"); v != "true" {
		t.Fatalf("unexpected ok seen by script %q", v)
	}
}

func TestPostScriptMutationPersists(t *testing.T) {
	tr := &stubTransport{fn: func(string, httpclient.Options) (*httpclient.Response, error) {
		return &httpclient.Response{StatusCode: 204, StatusText: "No Content", Headers: http.Header{}}, nil
	}}
	backend := kvstore.NewMemoryStore()
	store, err := vars.Open(backend, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	exec := newExecutor(tr, restfile.Script{ID: "post", Code: `setVar("x", "y")`})
	exec.Execute(context.Background(), restfile.Request{URL: "https://x.test", PostScriptID: "post"}, vars.NewScope(store, "prod"))

	values, ok := store.Group("prod")
	if !ok || values["x"] != "y" {
		t.Fatalf("expected x=y in prod group, got %v", values)
	}

	reopened, err := vars.Open(backend, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if v, _ := reopened.Get("prod", "x"); v != "y" {
		t.Fatalf("expected write to be persisted, got %q", v)
	}
}

func TestTextBodyIsPassedThrough(t *testing.T) {
	tr := &stubTransport{fn: func(string, httpclient.Options) (*httpclient.Response, error) {
		return &httpclient.Response{
			StatusCode: 200,
			StatusText: "OK",
			Headers:    http.Header{"Content-Type": {"text/plain"}},
			Body:       []byte("pong"),
		}, nil
	}}
	scope, _ := newScope(t, "", nil)
	res := newExecutor(tr).Execute(context.Background(), restfile.Request{URL: "https://x.test"}, scope)
	if res.ResponseData != "pong" {
		t.Fatalf("expected text body, got %#v", res.ResponseData)
	}
}

func assertSynthetic(t *testing.T, res *Result) {
	t.Helper()
	if res.Response.Status != StatusUnavailable || res.Response.StatusText != StatusTextNetError {
		t.Fatalf("unexpected synthetic response %#v", res.Response)
	}
	if res.Response.Headers == nil || len(res.Response.Headers) != 0 {
		t.Fatalf("expected empty headers, got %#v", res.Response.Headers)
	}
	data, ok := res.ResponseData.(map[string]any)
	if !ok {
		t.Fatalf("expected error object, got %#v", res.ResponseData)
	}
	if msg, _ := data["error"].(string); msg == "" {
		t.Fatalf("expected non-empty error message")
	}
	if res.DurationMs < 0 {
		t.Fatalf("negative duration %v", res.DurationMs)
	}
	if !strings.Contains(res.ScriptOutput, "[Request Error] ") {
		t.Fatalf("expected request error line, got %q", res.ScriptOutput)
	}
}

func TestTransportFailureYieldsSyntheticResult(t *testing.T) {
	tr := &stubTransport{fn: func(string, httpclient.Options) (*httpclient.Response, error) {
		return nil, errdef.Wrap(errdef.CodeHTTP, errors.New("connection refused"), "perform request")
	}}
	scope, store := newScope(t, "", nil)
	exec := newExecutor(tr, restfile.Script{ID: "post", Code: `setVar("ran", "1")`})

	res := exec.Execute(context.Background(), restfile.Request{URL: "https://down.test", PostScriptID: "post"}, scope)
	assertSynthetic(t, res)
	if !errdef.Is(res.Err, errdef.CodeHTTP) {
		t.Fatalf("expected http error, got %v", res.Err)
	}
	if _, ran := store.Get("", "ran"); ran {
		t.Fatalf("post-script must not run without a response")
	}
}

func TestInvalidJSONYieldsSyntheticResult(t *testing.T) {
	tr := &stubTransport{fn: func(string, httpclient.Options) (*httpclient.Response, error) {
		return jsonResponse(`{"broken":`), nil
	}}
	scope, _ := newScope(t, "", nil)
	res := newExecutor(tr).Execute(context.Background(), restfile.Request{URL: "https://x.test"}, scope)
	assertSynthetic(t, res)
	if !errdef.Is(res.Err, errdef.CodeParse) {
		t.Fatalf("expected parse error, got %v", res.Err)
	}
}

func TestTransportPanicYieldsSyntheticResult(t *testing.T) {
	tr := &stubTransport{fn: func(string, httpclient.Options) (*httpclient.Response, error) {
		panic("wire on fire")
	}}
	scope, _ := newScope(t, "", nil)
	res := newExecutor(tr).Execute(context.Background(), restfile.Request{URL: "https://x.test"}, scope)
	assertSynthetic(t, res)
}

func TestNilTransportYieldsSyntheticResult(t *testing.T) {
	scope, _ := newScope(t, "", nil)
	res := New(nil, nil).Execute(context.Background(), restfile.Request{URL: "https://x.test"}, scope)
	assertSynthetic(t, res)
}

type recorderFunc func(ctx context.Context, req restfile.Request, res *Result) error

func (f recorderFunc) Record(ctx context.Context, req restfile.Request, res *Result) error {
	return f(ctx, req, res)
}

func TestRecorderAndRunCallback(t *testing.T) {
	tr := &stubTransport{fn: func(string, httpclient.Options) (*httpclient.Response, error) {
		return jsonResponse(`{}`), nil
	}}
	scope, _ := newScope(t, "", nil)

	var recorded *Result
	exec := New(tr, nil, WithRecorder(recorderFunc(func(_ context.Context, req restfile.Request, res *Result) error {
		if req.Title != "ping" {
			t.Errorf("unexpected request %q", req.Title)
		}
		recorded = res
		return errors.New("disk full")
	})))

	var delivered *Result
	exec.Run(context.Background(), restfile.Request{Title: "ping", URL: "https://x.test"}, scope, func(r *Result) {
		delivered = r
	})
	if delivered == nil || delivered != recorded {
		t.Fatalf("expected the recorded result to be delivered")
	}
}

func TestExecuteSerializesCalls(t *testing.T) {
	var inFlight, maxInFlight int32
	tr := &stubTransport{fn: func(string, httpclient.Options) (*httpclient.Response, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			prev := atomic.LoadInt32(&maxInFlight)
			if n <= prev || atomic.CompareAndSwapInt32(&maxInFlight, prev, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return jsonResponse(`{}`), nil
	}}
	scope, _ := newScope(t, "", nil)
	exec := newExecutor(tr)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			exec.Execute(context.Background(), restfile.Request{URL: "https://x.test"}, scope)
		}()
	}
	wg.Wait()
	if maxInFlight != 1 {
		t.Fatalf("expected serialized sends, saw %d concurrent", maxInFlight)
	}
	if tr.count() != 8 {
		t.Fatalf("expected 8 sends, got %d", tr.count())
	}
}

func TestOpenAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"token":"abc"}`))
		case "/me":
			if r.Header.Get("Authorization") != "Bearer abc" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			_, _ = w.Write([]byte(`{"name":"ada"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	pre := restfile.Script{
		ID:   "login",
		Name: "login",
		Type: restfile.ScriptKindPre,
		Code: `const res = await http(getVar("base") + "/token"); setVar("token", res.data.token);`,
	}
	exec, err := Open(Setup{
		Transport: httpclient.KindAuto,
		Client:    httpclient.DefaultClientOptions(),
		Finder: scripts.FinderFunc(func(id string) (restfile.Script, bool) {
			return pre, id == pre.ID
		}),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if exec.TransportName() != httpclient.KindNative {
		t.Fatalf("expected native transport, got %q", exec.TransportName())
	}

	scope, _ := newScope(t, "", map[string]string{"base": srv.URL})
	res := exec.Execute(context.Background(), restfile.Request{
		URL:         "{{base}}/me",
		Headers:     []restfile.Header{{Key: "Authorization", Value: "Bearer {{token}}"}},
		PreScriptID: "login",
	}, scope)

	if res.Response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d\n%s", res.Response.StatusCode, res.ScriptOutput)
	}
	if !reflect.DeepEqual(res.ResponseData, map[string]any{"name": "ada"}) {
		t.Fatalf("unexpected data %#v", res.ResponseData)
	}
	if !strings.Contains(res.ScriptOutput, "[HTTP] GET "+srv.URL+"/token") {
		t.Fatalf("expected script http log, got %q", res.ScriptOutput)
	}
	if res.Timing == nil || len(res.Timing.Phases) == 0 {
		t.Fatalf("expected a traced timeline, got %#v", res.Timing)
	}
}

func TestOpenRejectsUnknownTransport(t *testing.T) {
	if _, err := Open(Setup{Transport: "smoke-signals"}); !errdef.Is(err, errdef.CodeConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}
