// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package cvdmanager

import (
	"context"
	"errors"
	"testing"

	"github.com/forkbombeu/cvdctl/internal/cvd"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	spanRecorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spanRecorder))
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})
	return spanRecorder
}

func spanAttributes(attrs []attribute.KeyValue) map[string]any {
	out := map[string]any{}
	for _, attr := range attrs {
		out[string(attr.Key)] = attr.Value.AsInterface()
	}
	return out
}

func TestManagerStartSpanAttributes(t *testing.T) {
	spanRecorder := installRecorder(t)

	manager := &Manager{
		env: cvd.Env{
			Context:       context.Background(),
			CorrelationID: "corr-123",
		},
	}

	_, span := manager.startSpan(
		"cvdmanager.Launch",
		attribute.String("instances", "2,5,6"),
		attribute.Int("adb_port", 6521),
	)
	span.End()

	spans := spanRecorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	attrs := spanAttributes(spans[0].Attributes())
	if attrs["correlation_id"] != "corr-123" {
		t.Fatalf("expected correlation_id to be corr-123, got %v", attrs["correlation_id"])
	}
	if attrs["instances"] != "2,5,6" {
		t.Fatalf("expected instances to be 2,5,6, got %v", attrs["instances"])
	}
	if attrs["adb_port"] != int64(6521) {
		t.Fatalf("expected adb_port to be 6521, got %v", attrs["adb_port"])
	}
}

func TestManagerResolveRecordsOutcome(t *testing.T) {
	spanRecorder := installRecorder(t)
	manager := NewWithEnv(Environment{HostDir: t.TempDir(), HomeDir: t.TempDir()})

	set, err := manager.Resolve(SelectorOptions{NumInstances: Int(2), EnvInstance: Int(8)})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if set.String() != "8,9" {
		t.Fatalf("expected 8,9, got %s", set)
	}

	_, err = manager.Resolve(SelectorOptions{InstanceNums: []int{2, 5, 6}, BaseInstanceNum: Int(7)})
	if !errors.Is(err, ErrConflictingSource) {
		t.Fatalf("expected conflicting source, got %v", err)
	}
	if KindOf(err) != KindConflictingSource {
		t.Fatalf("expected KindConflictingSource, got %s", KindOf(err))
	}

	spans := spanRecorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	ok := spanAttributes(spans[0].Attributes())
	if ok["mode"] != "range" || ok["num_instances"] != int64(2) {
		t.Fatalf("unexpected success attributes %v", ok)
	}
	failed := spanAttributes(spans[1].Attributes())
	if failed["error_kind"] != "ConflictingSource" {
		t.Fatalf("unexpected failure attributes %v", failed)
	}
	if spans[0].Status().Code == codes.Error {
		t.Fatal("successful resolve should not mark the span as failed")
	}
	if status := spans[1].Status(); status.Code != codes.Error || status.Description != err.Error() {
		t.Fatalf("expected error status %q, got %+v", err.Error(), status)
	}
}

func TestManagerInstances(t *testing.T) {
	manager := NewWithEnv(Environment{HomeDir: t.TempDir(), ADBBasePort: 16520, VNCBasePort: 16444})
	set, err := manager.Resolve(SelectorOptions{InstanceNums: []int{4}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	infos := manager.Instances(set)
	if len(infos) != 1 {
		t.Fatalf("expected 1 instance, got %d", len(infos))
	}
	if infos[0].Name != "cvd-4" || infos[0].ADBPort != 16523 || infos[0].VNCPort != 16447 {
		t.Fatalf("unexpected instance info %+v", infos[0])
	}
}

func TestManagerLaunchRequiresInstances(t *testing.T) {
	manager := NewWithEnv(Environment{HostDir: t.TempDir()})
	if _, err := manager.Launch(LaunchOptions{}); err == nil {
		t.Fatal("expected error for empty instance set")
	}
}
