// Package scripts runs user JavaScript before and after a request. Each run
// gets a fresh goja runtime whose only capabilities are the functions passed
// to the script body: getVar, setVar, log and http, plus response and
// responseData after the request.
package scripts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"
	"go.uber.org/zap"

	"github.com/restpad/restpad/internal/errdef"
	"github.com/restpad/restpad/internal/httpclient"
	"github.com/restpad/restpad/internal/logging"
	"github.com/restpad/restpad/internal/vars"
)

// DefaultTimeout interrupts scripts that run longer than this.
const DefaultTimeout = 5 * time.Second

const (
	preParams  = "getVar, setVar, log, http"
	postParams = "getVar, setVar, log, http, response, responseData"
)

// ResponseInfo is the read-only view of the response a post-script sees.
type ResponseInfo struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers"`
	OK         bool              `json:"ok"`
}

// Env carries everything one script run may touch.
type Env struct {
	Phase        Phase
	Scope        vars.Scope
	Out          *Output
	Response     *ResponseInfo
	ResponseData any
}

type Sandbox struct {
	transport httpclient.Transport
	timeout   time.Duration
	logger    *zap.Logger
}

type SandboxOption func(*Sandbox)

func WithTimeout(d time.Duration) SandboxOption {
	return func(s *Sandbox) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLogger(l *zap.Logger) SandboxOption {
	return func(s *Sandbox) { s.logger = logging.OrNop(l) }
}

// NewSandbox builds a sandbox whose http binding sends through transport.
func NewSandbox(transport httpclient.Transport, opts ...SandboxOption) *Sandbox {
	s := &Sandbox{transport: transport, timeout: DefaultTimeout, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes code as the body of an async function and waits for it to
// settle. Every failure is logged to env.Out as "[Script Error] ..." and
// returned as a CodeScript error.
func (s *Sandbox) Run(ctx context.Context, code string, env Env) error {
	if env.Out == nil {
		env.Out = &Output{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	msg, err := s.run(ctx, code, env)
	if err != nil {
		env.Out.Add("[Script Error] " + msg)
		s.logger.Debug("script failed",
			zap.Stringer("phase", env.Phase),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return errdef.Wrap(errdef.CodeScript, err, "%s script", env.Phase)
	}
	s.logger.Debug("script finished",
		zap.Stringer("phase", env.Phase),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// run returns the user-facing failure message alongside the error.
func (s *Sandbox) run(parent context.Context, code string, env Env) (msg string, err error) {
	if err := parent.Err(); err != nil {
		return s.interruptMessage(err), err
	}

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	vm := goja.New()
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-stop:
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("script panic: %v", r)
			msg = err.Error()
		}
	}()

	params := preParams
	if env.Phase == PhasePost {
		params = postParams
	}
	prg, err := compileBody(params, code)
	if err != nil {
		return compileMessage(err), err
	}
	wrapped, err := vm.RunProgram(prg)
	if err != nil {
		return s.failure(ctx, err)
	}
	fn, ok := goja.AssertFunction(wrapped)
	if !ok {
		err := errors.New("script did not evaluate to a function")
		return err.Error(), err
	}

	b := &bindings{vm: vm, ctx: ctx, env: env, transport: s.transport, logger: s.logger}
	args, err := b.args()
	if err != nil {
		return err.Error(), err
	}

	ret, err := fn(goja.Undefined(), args...)
	if err != nil {
		return s.failure(ctx, err)
	}

	promise, ok := ret.Export().(*goja.Promise)
	if !ok {
		return "", nil
	}
	switch promise.State() {
	case goja.PromiseStateFulfilled:
		return "", nil
	case goja.PromiseStateRejected:
		reason := promise.Result()
		msg := valueMessage(reason)
		return msg, errors.New(msg)
	default:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return s.interruptMessage(ctxErr), ctxErr
		}
		err := errors.New("script did not complete: awaited a promise that never settled")
		return err.Error(), err
	}
}

func (s *Sandbox) failure(ctx context.Context, err error) (string, error) {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return s.interruptMessage(ctxErr), ctxErr
		}
		return err.Error(), err
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return valueMessage(exc.Value()), err
	}
	return err.Error(), err
}

func (s *Sandbox) interruptMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("script timed out after %s", s.timeout)
	}
	return "script cancelled"
}

// compileBody wraps code in an async function taking params. The parsed
// program must be that single function literal, so a body that closes the
// wrapper and adds top-level statements is rejected.
func compileBody(params, code string) (*goja.Program, error) {
	source := "(async function(" + params + ") {\n" + code + "\n})"
	parsed, err := goja.Parse("script.js", source)
	if err != nil {
		return nil, err
	}
	if !singleAsyncFunction(parsed) {
		return nil, &goja.CompilerSyntaxError{
			CompilerError: goja.CompilerError{Message: "script body must not close its enclosing function"},
		}
	}
	return goja.CompileAST(parsed, false)
}

func singleAsyncFunction(prg *ast.Program) bool {
	if len(prg.Body) != 1 {
		return false
	}
	stmt, ok := prg.Body[0].(*ast.ExpressionStatement)
	if !ok {
		return false
	}
	fn, ok := stmt.Expression.(*ast.FunctionLiteral)
	return ok && fn.Async && fn.Name == nil
}

func compileMessage(err error) string {
	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		return "SyntaxError: " + syntax.Message
	}
	return err.Error()
}

// valueMessage prefers an Error's message property over its string form.
func valueMessage(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "script rejected without a reason"
	}
	if obj, ok := v.(*goja.Object); ok {
		if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) && !goja.IsNull(m) {
			return m.String()
		}
	}
	return v.String()
}
