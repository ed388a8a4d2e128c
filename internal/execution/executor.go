// Package execution runs the request pipeline: pre-script, templating, send,
// response decoding, post-script. A run always ends in a Result; transport and
// decoding failures become a synthetic "Network Error" result instead of an
// error return.
package execution

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/restpad/restpad/internal/errdef"
	"github.com/restpad/restpad/internal/httpclient"
	"github.com/restpad/restpad/internal/logging"
	"github.com/restpad/restpad/internal/restfile"
	"github.com/restpad/restpad/internal/scripts"
	"github.com/restpad/restpad/internal/telemetry"
	"github.com/restpad/restpad/internal/vars"
)

// Phase names reported to the instrumenter as the pipeline advances.
const (
	PhasePreScript = "pre-script"
	PhaseTemplate  = "templating"
	PhaseSend      = "sending"
	PhaseParse     = "parsing-response"
	PhasePost      = "post-script"
	PhaseDone      = "done"
)

// ScriptRunner runs saved scripts and returns their log text.
type ScriptRunner interface {
	RunPreScript(ctx context.Context, scope vars.Scope, id string) string
	RunPostScript(ctx context.Context, scope vars.Scope, id string, resp *scripts.ResponseInfo, data any) string
}

// Recorder receives every finished run, e.g. to keep a history.
type Recorder interface {
	Record(ctx context.Context, req restfile.Request, res *Result) error
}

type Option func(*Executor)

func WithRecorder(r Recorder) Option {
	return func(e *Executor) { e.recorder = r }
}

func WithInstrumenter(inst telemetry.Instrumenter) Option {
	return func(e *Executor) {
		if inst != nil {
			e.inst = inst
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.logger = logging.OrNop(l) }
}

// WithSendTimeout bounds each main request. Zero keeps the transport default.
func WithSendTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// Executor runs one pipeline at a time; concurrent callers queue on mu.
type Executor struct {
	mu        sync.Mutex
	transport httpclient.Transport
	runner    ScriptRunner
	recorder  Recorder
	inst      telemetry.Instrumenter
	logger    *zap.Logger
	timeout   time.Duration
}

func New(transport httpclient.Transport, runner ScriptRunner, opts ...Option) *Executor {
	e := &Executor{
		transport: transport,
		runner:    runner,
		inst:      telemetry.Noop(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Setup holds what Open needs to assemble a ready executor.
type Setup struct {
	Transport     string
	Client        httpclient.ClientOptions
	ScriptTimeout time.Duration
	Finder        scripts.ScriptFinder
	Logger        *zap.Logger
}

// Open selects the transport once and shares it between the main request and
// the scripts' http binding.
func Open(setup Setup, opts ...Option) (*Executor, error) {
	transport, err := httpclient.Select(setup.Transport, setup.Client)
	if err != nil {
		return nil, err
	}
	logger := logging.OrNop(setup.Logger)
	sandbox := scripts.NewSandbox(transport,
		scripts.WithTimeout(setup.ScriptTimeout),
		scripts.WithLogger(logger.Named("sandbox")))
	runner := scripts.NewRunner(setup.Finder, sandbox, logger.Named("scripts"))

	all := append([]Option{WithLogger(logger)}, opts...)
	e := New(transport, runner, all...)
	logger.Debug("executor ready", zap.String("transport", transport.Name()))
	return e, nil
}

// TransportName reports the transport picked at construction.
func (e *Executor) TransportName() string {
	if e.transport == nil {
		return ""
	}
	return e.transport.Name()
}

// Run executes req and delivers the result to done.
func (e *Executor) Run(ctx context.Context, req restfile.Request, scope vars.Scope, done func(*Result)) {
	res := e.Execute(ctx, req, scope)
	if done != nil {
		done(res)
	}
}

// Execute runs the whole pipeline for req against the variables in scope.
// It never returns nil.
func (e *Executor) Execute(ctx context.Context, req restfile.Request, scope vars.Scope) *Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	method := restfile.NormalizeMethod(req.Method)

	ctx, span := e.inst.Start(ctx, telemetry.RequestStart{
		RequestID: req.ID,
		Title:     req.Title,
		Method:    method,
		URL:       req.URL,
		Group:     scope.Group,
	})

	var logs []string
	appendLog := func(text string) {
		if text != "" {
			logs = append(logs, text)
		}
	}

	span.Phase(PhasePreScript)
	appendLog(e.runPre(ctx, scope, req.PreScriptID))

	span.Phase(PhaseTemplate)
	details := resolve(req, method, scope.Flatten())
	span.SetProcessedURL(details.ProcessedURL)

	res := &Result{RequestDetails: details, ProcessedURL: details.ProcessedURL}

	span.Phase(PhaseSend)
	resp, err := e.send(ctx, details)
	var data any
	if err == nil {
		span.Phase(PhaseParse)
		data, err = decode(resp)
	}

	if err != nil {
		msg := err.Error()
		e.logger.Debug("request failed",
			zap.String("method", details.Method),
			zap.String("url", details.ProcessedURL),
			zap.Error(err))
		res.Err = err
		res.Response = networkErrorSummary()
		res.ResponseData = map[string]any{"error": msg}
		appendLog("[Request Error] " + msg)
	} else {
		headers := resp.HeaderMap()
		res.Response = receivedSummary(resp.StatusCode, resp.StatusText, headers)
		res.ResponseData = data
		res.Body = resp.Body
		res.Timing = resp.Timeline

		span.Phase(PhasePost)
		appendLog(e.runPost(ctx, scope, req.PostScriptID, &scripts.ResponseInfo{
			Status:     resp.StatusCode,
			StatusText: resp.StatusText,
			Headers:    headers,
			OK:         resp.OK(),
		}, data))
	}

	span.Phase(PhaseDone)
	res.ScriptOutput = strings.Join(logs, "\n")
	elapsed := time.Since(start)
	res.DurationMs = float64(elapsed) / float64(time.Millisecond)

	span.End(telemetry.RequestResult{
		Err:          res.Err,
		StatusCode:   res.Response.StatusCode,
		Duration:     elapsed,
		ScriptFailed: strings.Contains(res.ScriptOutput, "[Script Error]"),
		Timeline:     res.Timing,
	})

	if e.recorder != nil {
		if err := e.recorder.Record(ctx, req, res); err != nil {
			e.logger.Warn("record execution", zap.Error(err))
		}
	}
	return res
}

func (e *Executor) runPre(ctx context.Context, scope vars.Scope, id string) string {
	if e.runner == nil || strings.TrimSpace(id) == "" {
		return ""
	}
	return e.runner.RunPreScript(ctx, scope, id)
}

func (e *Executor) runPost(ctx context.Context, scope vars.Scope, id string, info *scripts.ResponseInfo, data any) string {
	if e.runner == nil || strings.TrimSpace(id) == "" {
		return ""
	}
	return e.runner.RunPostScript(ctx, scope, id, info, data)
}

// send turns transport panics into errors so that a misbehaving transport
// still yields a result.
func (e *Executor) send(ctx context.Context, details RequestDetails) (resp *httpclient.Response, err error) {
	if e.transport == nil {
		return nil, errdef.New(errdef.CodeHTTP, "no transport configured")
	}
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = errdef.New(errdef.CodeHTTP, "transport panic: %v", r)
		}
	}()
	resp, err = e.transport.Send(ctx, details.ProcessedURL, httpclient.Options{
		Method:  details.Method,
		Headers: details.Headers,
		Body:    details.Body,
		Timeout: e.timeout,
	})
	if err == nil && resp == nil {
		err = errdef.New(errdef.CodeHTTP, "transport returned no response")
	}
	return resp, err
}

func decode(resp *httpclient.Response) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			data = nil
			err = errdef.New(errdef.CodeParse, "decode panic: %v", r)
		}
	}()
	return httpclient.DecodeBody(resp)
}

// resolve applies the flattened variables to the request. The body is only
// templated and sent for methods that carry one.
func resolve(req restfile.Request, method string, flat map[string]string) RequestDetails {
	details := RequestDetails{
		Method:       method,
		ProcessedURL: vars.ApplyTemplate(req.URL, flat),
		Headers:      make(map[string]string, len(req.Headers)),
	}
	for _, h := range req.Headers {
		key := strings.TrimSpace(vars.ApplyTemplate(h.Key, flat))
		if key == "" {
			continue
		}
		details.Headers[key] = vars.ApplyTemplate(h.Value, flat)
	}
	if restfile.MethodAllowsBody(method) && req.Body != "" {
		body := vars.ApplyTemplate(req.Body, flat)
		details.Body = &body
	}
	return details
}
