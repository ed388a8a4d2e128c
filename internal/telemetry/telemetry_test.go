package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/restpad/restpad/internal/nettrace"
)

func TestInstrumenterRecordsExecution(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	inst, err := New(
		Config{ServiceName: "restpad-test", Version: "test"},
		WithSpanProcessor(recorder),
	)
	if err != nil {
		t.Fatalf("New instrumenter: %v", err)
	}
	t.Cleanup(func() {
		_ = inst.Shutdown(context.Background())
	})

	ctx, span := inst.Start(context.Background(), RequestStart{
		RequestID: "r1",
		Title:     "health",
		Method:    "GET",
		URL:       "{{baseUrl}}/health",
		Group:     "dev",
	})
	if ctx == nil || span == nil {
		t.Fatalf("expected span to be created")
	}
	span.Phase("pre-script")
	span.Phase("sending")
	span.SetProcessedURL("https://example.com/health?x=1")
	span.End(RequestResult{
		StatusCode: 200,
		Duration:   120 * time.Millisecond,
		Timeline: nettrace.Sequential(time.Now(),
			nettrace.Phase{Kind: nettrace.PhaseDNS, Duration: 3 * time.Millisecond},
			nettrace.Phase{Kind: nettrace.PhaseTTFB, Duration: 100 * time.Millisecond},
		),
	})

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != "health" {
		t.Fatalf("unexpected span name %q", s.Name())
	}
	if s.Status().Code != codes.Ok {
		t.Fatalf("expected ok status, got %v", s.Status())
	}
	if len(s.Events()) != 2 {
		t.Fatalf("expected 2 phase events, got %d", len(s.Events()))
	}

	attrs := map[string]string{}
	for _, kv := range s.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["restpad.url.template"] != "{{baseUrl}}/health" {
		t.Fatalf("missing template attribute: %v", attrs)
	}
	if attrs["http.host"] != "example.com" || attrs["http.target"] != "/health?x=1" {
		t.Fatalf("missing url attributes: %v", attrs)
	}
	if attrs["restpad.group"] != "dev" || attrs["restpad.duration_ms"] != "120" {
		t.Fatalf("unexpected attributes: %v", attrs)
	}
	if attrs["restpad.timing.dns_ms"] != "3" || attrs["restpad.timing.ttfb_ms"] != "100" {
		t.Fatalf("missing timing attributes: %v", attrs)
	}
}

func TestInstrumenterMarksFailures(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	inst, err := New(Config{}, WithSpanProcessor(recorder))
	if err != nil {
		t.Fatalf("New instrumenter: %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	_, span := inst.Start(context.Background(), RequestStart{Method: "POST"})
	span.End(RequestResult{Err: errors.New("connection refused")})
	_, span = inst.Start(context.Background(), RequestStart{Method: "GET"})
	span.End(RequestResult{StatusCode: 503})

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error || spans[0].Name() != "POST" {
		t.Fatalf("expected error status for transport failure, got %v", spans[0].Status())
	}
	if spans[1].Status().Description != "HTTP 503" {
		t.Fatalf("expected HTTP 503 status, got %v", spans[1].Status())
	}
}

func TestNoopWhenDisabled(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := inst.(noopInstrumenter); !ok {
		t.Fatalf("expected noop instrumenter, got %T", inst)
	}
	ctx, span := inst.Start(context.Background(), RequestStart{})
	if ctx == nil {
		t.Fatalf("expected context")
	}
	span.Phase("x")
	span.End(RequestResult{})
}
