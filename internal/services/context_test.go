package services_test

import (
	"context"
	"testing"

	"conveyor/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithTransferID(ctx, 42)
	ctx = services.WithAttemptID(ctx, 7)
	ctx = services.WithComponent(ctx, "engine")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.TransferIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected transfer id: %v %v", id, ok)
	}
	if id, ok := services.AttemptIDFromContext(ctx); !ok || id != 7 {
		t.Fatalf("unexpected attempt id: %v %v", id, ok)
	}
	if component, ok := services.ComponentFromContext(ctx); !ok || component != "engine" {
		t.Fatalf("unexpected component: %v %v", component, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestComponentBlankPreservesContext(t *testing.T) {
	ctx := services.WithComponent(context.Background(), "")
	if _, ok := services.ComponentFromContext(ctx); ok {
		t.Fatal("expected no component value")
	}
}
