package instrumentation

import (
	"context"
	"testing"
)

func TestNewDisabledUsesNoopProviders(t *testing.T) {
	inst, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// No-op instruments must accept records without panicking.
	ctx := context.Background()
	m := inst.Metrics()
	m.RecordCodeIssued(ctx, "client")
	m.RecordCodeExchanged(ctx, "client")
	m.RecordTokenIssued(ctx, "client", "password")
	m.RecordTokenRefreshed(ctx, "client", true)
	m.RecordTokenRevoked(ctx, "client")
	m.RecordAuthFailure(ctx, "client", "test")

	if err := inst.Shutdown(ctx); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
}

func TestNewEnabled(t *testing.T) {
	inst, err := New(Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Enabled:        true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	inst.Metrics().RecordTokenIssued(context.Background(), "client", "password")

	if err := inst.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
	// Second shutdown is a no-op.
	if err := inst.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected second shutdown error: %v", err)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	m.RecordCodeIssued(ctx, "client")
	m.RecordTokenIssued(ctx, "client", "password")
	m.RecordAuthFailure(ctx, "client", "test")
}
