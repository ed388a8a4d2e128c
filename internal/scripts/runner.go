package scripts

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/restpad/restpad/internal/logging"
	"github.com/restpad/restpad/internal/restfile"
	"github.com/restpad/restpad/internal/vars"
)

// ScriptFinder looks saved scripts up by id.
type ScriptFinder interface {
	FindScriptByID(id string) (restfile.Script, bool)
}

// FinderFunc adapts a function into a ScriptFinder.
type FinderFunc func(id string) (restfile.Script, bool)

func (f FinderFunc) FindScriptByID(id string) (restfile.Script, bool) { return f(id) }

// Runner resolves a script id and runs the script in the sandbox, returning
// the script's log. It never fails: lookup and runtime errors end up in the
// returned text.
type Runner struct {
	finder  ScriptFinder
	sandbox *Sandbox
	logger  *zap.Logger
}

func NewRunner(finder ScriptFinder, sandbox *Sandbox, logger *zap.Logger) *Runner {
	if sandbox == nil {
		sandbox = NewSandbox(nil)
	}
	return &Runner{finder: finder, sandbox: sandbox, logger: logging.OrNop(logger)}
}

func (r *Runner) RunPreScript(ctx context.Context, scope vars.Scope, id string) string {
	return r.run(ctx, Env{Phase: PhasePre, Scope: scope}, id)
}

func (r *Runner) RunPostScript(
	ctx context.Context,
	scope vars.Scope,
	id string,
	resp *ResponseInfo,
	data any,
) string {
	return r.run(ctx, Env{
		Phase:        PhasePost,
		Scope:        scope,
		Response:     resp,
		ResponseData: data,
	}, id)
}

func (r *Runner) run(ctx context.Context, env Env, id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}

	var script restfile.Script
	found := false
	if r.finder != nil {
		script, found = r.finder.FindScriptByID(id)
	}
	if !found {
		r.logger.Warn("script not found", zap.String("id", id), zap.Stringer("phase", env.Phase))
		return fmt.Sprintf("[%s-Script Error] script %q not found", env.Phase.short(), id)
	}

	out := &Output{}
	out.Add(fmt.Sprintf("--- %s-request script: %s ---", env.Phase.short(), scriptName(script)))
	env.Out = out
	if err := r.sandbox.Run(ctx, script.Code, env); err != nil {
		r.logger.Debug("script run failed", zap.String("id", id), zap.Error(err))
	}
	return out.String()
}

func scriptName(s restfile.Script) string {
	if name := strings.TrimSpace(s.Name); name != "" {
		return name
	}
	return s.ID
}
