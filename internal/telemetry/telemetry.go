package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/restpad/restpad/internal/errdef"
	"github.com/restpad/restpad/internal/nettrace"
)

var (
	tracerName  = "github.com/restpad/restpad/internal/telemetry"
	httpHostKey = attribute.Key("http.host")
)

// Instrumenter opens one span per pipeline execution.
type Instrumenter interface {
	Start(ctx context.Context, info RequestStart) (context.Context, RequestSpan)
	Shutdown(ctx context.Context) error
}

type RequestStart struct {
	RequestID string
	Title     string
	Method    string
	URL       string
	Group     string
}

type RequestResult struct {
	Err          error
	StatusCode   int
	Duration     time.Duration
	ScriptFailed bool
	Timeline     *nettrace.Timeline
}

type RequestSpan interface {
	// Phase marks entry into a pipeline state.
	Phase(name string)
	SetProcessedURL(raw string)
	End(result RequestResult)
}

type providerOptions struct {
	exporter       sdktrace.SpanExporter
	spanProcessors []sdktrace.SpanProcessor
}

type Option func(*providerOptions)

func WithSpanProcessor(proc sdktrace.SpanProcessor) Option {
	return func(opts *providerOptions) {
		if proc != nil {
			opts.spanProcessors = append(opts.spanProcessors, proc)
		}
	}
}

func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(opts *providerOptions) {
		if exp != nil {
			opts.exporter = exp
		}
	}
}

type manager struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	shutdown sync.Once
}

func New(cfg Config, opts ...Option) (Instrumenter, error) {
	builder := providerOptions{}
	for _, opt := range opts {
		opt(&builder)
	}

	if !cfg.Enabled() && builder.exporter == nil && len(builder.spanProcessors) == 0 {
		return Noop(), nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(buildResourceAttributes(cfg)...),
	)
	if err != nil {
		return nil, err
	}

	exporter := builder.exporter
	if exporter == nil && cfg.Enabled() {
		exporter, err = newExporter(cfg)
		if err != nil {
			return nil, errdef.Wrap(errdef.CodeConfig, err, "create otlp exporter for %s", cfg.Endpoint)
		}
	}

	var tpOpts []sdktrace.TracerProviderOption
	tpOpts = append(tpOpts, sdktrace.WithResource(res))
	if exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}
	for _, proc := range builder.spanProcessors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(proc))
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	return &manager{tracer: tp.Tracer(tracerName), provider: tp}, nil
}

func (m *manager) Start(ctx context.Context, info RequestStart) (context.Context, RequestSpan) {
	ctx, span := m.tracer.Start(
		ctx,
		spanNameFor(info),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(buildSpanAttributes(info)...),
	)
	return ctx, &requestSpan{span: span}
}

func (m *manager) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	var shutdownErr error
	m.shutdown.Do(func() {
		shutdownErr = m.provider.Shutdown(ctx)
	})
	return shutdownErr
}

type requestSpan struct {
	span trace.Span
}

func (rs *requestSpan) Phase(name string) {
	if rs == nil || rs.span == nil {
		return
	}
	rs.span.AddEvent("restpad.phase", trace.WithAttributes(attribute.String("restpad.phase", name)))
}

func (rs *requestSpan) SetProcessedURL(raw string) {
	if rs == nil || rs.span == nil || strings.TrimSpace(raw) == "" {
		return
	}
	rs.span.SetAttributes(urlAttributes(raw)...)
}

func (rs *requestSpan) End(result RequestResult) {
	if rs == nil || rs.span == nil {
		return
	}

	if result.StatusCode > 0 {
		rs.span.SetAttributes(semconv.HTTPStatusCodeKey.Int(result.StatusCode))
	}
	if result.Duration > 0 {
		rs.span.SetAttributes(attribute.Int64("restpad.duration_ms", result.Duration.Milliseconds()))
	}
	if result.ScriptFailed {
		rs.span.SetAttributes(attribute.Bool("restpad.script.failed", true))
	}
	for kind, d := range result.Timeline.Durations() {
		if kind == nettrace.PhaseTotal {
			continue
		}
		rs.span.SetAttributes(attribute.Float64("restpad.timing."+string(kind)+"_ms", float64(d)/float64(time.Millisecond)))
	}

	statusCode := codes.Ok
	statusMsg := "OK"
	switch {
	case result.Err != nil:
		rs.span.RecordError(result.Err)
		statusCode = codes.Error
		statusMsg = result.Err.Error()
	case result.StatusCode >= 400:
		statusCode = codes.Error
		statusMsg = fmt.Sprintf("HTTP %d", result.StatusCode)
	}

	rs.span.SetStatus(statusCode, statusMsg)
	rs.span.End()
}

func Noop() Instrumenter {
	return noopInstrumenter{}
}

type noopInstrumenter struct{}

type noopSpan struct{}

func (noopInstrumenter) Start(ctx context.Context, _ RequestStart) (context.Context, RequestSpan) {
	return ctx, noopSpan{}
}

func (noopInstrumenter) Shutdown(context.Context) error { return nil }

func (noopSpan) Phase(string) {}

func (noopSpan) SetProcessedURL(string) {}

func (noopSpan) End(RequestResult) {}

func newExporter(cfg Config) (sdktrace.SpanExporter, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errdef.New(errdef.CodeConfig, "telemetry endpoint is required")
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	clientOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		clientOpts = append(clientOpts, otlptracegrpc.WithHeaders(cfg.Headers))
	}

	client := otlptracegrpc.NewClient(clientOpts...)
	return otlptrace.New(ctx, client)
}

func buildResourceAttributes(cfg Config) []attribute.KeyValue {
	name := cfg.ServiceName
	if strings.TrimSpace(name) == "" {
		name = DefaultServiceName
	}
	attrs := []attribute.KeyValue{semconv.ServiceName(name)}
	if strings.TrimSpace(cfg.Version) != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.Version))
	}
	return attrs
}

func buildSpanAttributes(info RequestStart) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if info.Method != "" {
		attrs = append(attrs, semconv.HTTPMethodKey.String(info.Method))
	}
	if id := strings.TrimSpace(info.RequestID); id != "" {
		attrs = append(attrs, attribute.String("restpad.request.id", id))
	}
	if title := strings.TrimSpace(info.Title); title != "" {
		attrs = append(attrs, attribute.String("restpad.request.title", title))
	}
	if group := strings.TrimSpace(info.Group); group != "" {
		attrs = append(attrs, attribute.String("restpad.group", group))
	}
	if tmpl := strings.TrimSpace(info.URL); tmpl != "" {
		attrs = append(attrs, attribute.String("restpad.url.template", tmpl))
	}
	return attrs
}

// urlAttributes describes a resolved URL. Unparseable input still records the
// raw string.
func urlAttributes(raw string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.HTTPURLKey.String(raw)}
	u, err := url.Parse(raw)
	if err != nil {
		return attrs
	}
	if u.Scheme != "" {
		attrs = append(attrs, semconv.HTTPSchemeKey.String(u.Scheme))
	}
	if u.Host != "" {
		attrs = append(attrs, httpHostKey.String(u.Host))
	}
	if target := u.RequestURI(); target != "" {
		attrs = append(attrs, semconv.HTTPTargetKey.String(target))
	}
	return attrs
}

func spanNameFor(info RequestStart) string {
	if title := strings.TrimSpace(info.Title); title != "" {
		return title
	}
	if info.Method != "" {
		return info.Method
	}
	return "restpad.execute"
}
