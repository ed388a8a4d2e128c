package main

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/restpad/restpad/internal/collection"
	"github.com/restpad/restpad/internal/config"
	"github.com/restpad/restpad/internal/execution"
	"github.com/restpad/restpad/internal/history"
	"github.com/restpad/restpad/internal/httpclient"
	"github.com/restpad/restpad/internal/kvstore"
	"github.com/restpad/restpad/internal/logging"
	"github.com/restpad/restpad/internal/telemetry"
	"github.com/restpad/restpad/internal/vars"
)

// globalFlags override settings for a single invocation.
type globalFlags struct {
	group     string
	transport string
	timeout   time.Duration
	storage   string
	dataPath  string
	logLevel  string
	insecure  bool
}

// app is the opened state shared by every subcommand.
type app struct {
	settings config.Settings
	logger   *zap.Logger
	backend  kvstore.Store
	vars     *vars.Store
	scripts  *collection.Scripts
	requests *collection.Requests
	history  *history.Store
	inst     telemetry.Instrumenter
}

func openApp(flags globalFlags) (*app, error) {
	settings, _, err := config.Load()
	if err != nil {
		return nil, err
	}
	settings = applyFlags(settings, flags)

	logger, err := logging.New(logging.Config{
		Level:       settings.Log.Level,
		Development: settings.Log.Development,
	})
	if err != nil {
		return nil, err
	}

	path := settings.StoragePath()
	backend, err := kvstore.Open(settings.Storage.Backend, path)
	if err != nil {
		return nil, err
	}

	a := &app{settings: settings, logger: logger, backend: backend, inst: telemetry.Noop()}
	if a.vars, err = vars.Open(backend, logger.Named("vars")); err != nil {
		return nil, a.closeWith(err)
	}
	if a.scripts, err = collection.OpenScripts(backend, logger.Named("scripts")); err != nil {
		return nil, a.closeWith(err)
	}
	if a.requests, err = collection.OpenRequests(backend, logger.Named("requests")); err != nil {
		return nil, a.closeWith(err)
	}
	a.history = history.NewStore(backend, settings.History.MaxEntries)
	if err := a.history.Load(); err != nil {
		logger.Warn("history unavailable", zap.Error(err))
	}

	telemetryCfg := telemetry.ConfigFromEnv(os.Getenv)
	telemetryCfg.Version = version
	if inst, err := telemetry.New(telemetryCfg); err != nil {
		logger.Warn("telemetry disabled", zap.Error(err))
	} else {
		a.inst = inst
	}

	logger.Debug("opened workspace",
		zap.String("backend", settings.Storage.Backend),
		zap.String("path", path),
		zap.String("group", a.group()))
	return a, nil
}

func applyFlags(s config.Settings, f globalFlags) config.Settings {
	if g := strings.TrimSpace(f.group); g != "" {
		s.ActiveGroup = g
	}
	if f.transport != "" {
		s.Transport = f.transport
	}
	if f.timeout > 0 {
		s.Timeout = f.timeout.String()
	}
	if f.storage != "" {
		s.Storage.Backend = f.storage
	}
	if f.dataPath != "" {
		s.Storage.Path = f.dataPath
	}
	if f.logLevel != "" {
		s.Log.Level = f.logLevel
	}
	if f.insecure {
		s.HTTP.Insecure = true
	}
	return config.Normalise(s)
}

func (a *app) group() string {
	if a.settings.ActiveGroup == "" {
		return vars.GlobalGroup
	}
	return a.settings.ActiveGroup
}

func (a *app) scope() vars.Scope {
	return vars.NewScope(a.vars, a.group())
}

func (a *app) executor() (*execution.Executor, error) {
	opts := []execution.Option{
		execution.WithInstrumenter(a.inst),
		execution.WithSendTimeout(a.settings.TimeoutDuration()),
	}
	if a.settings.HistoryEnabled() {
		opts = append(opts, execution.WithRecorder(a.history))
	}
	return execution.Open(execution.Setup{
		Transport: a.settings.Transport,
		Client: httpclient.ClientOptions{
			Timeout:            a.settings.TimeoutDuration(),
			FollowRedirects:    a.settings.FollowRedirects(),
			InsecureSkipVerify: a.settings.HTTP.Insecure,
			ProxyURL:           a.settings.HTTP.Proxy,
			UserAgent:          userAgent(a.settings.HTTP.UserAgent),
		},
		ScriptTimeout: a.settings.ScriptTimeoutDuration(),
		Finder:        a.scripts,
		Logger:        a.logger.Named("exec"),
	}, opts...)
}

func userAgent(configured string) string {
	if configured != "" {
		return configured
	}
	return "restpad/" + version
}

func (a *app) Close() error {
	return a.closeWith(nil)
}

func (a *app) closeWith(cause error) error {
	var errs []error
	if cause != nil {
		errs = append(errs, cause)
	}
	if a.inst != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, a.inst.Shutdown(ctx))
		cancel()
	}
	if a.backend != nil {
		errs = append(errs, kvstore.Close(a.backend))
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}
