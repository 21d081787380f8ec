package trace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewContext(t *testing.T) {
	tc := New()
	if len(tc.TraceID) != 32 {
		t.Errorf("trace ID should be 32 hex chars, got %d", len(tc.TraceID))
	}
	if len(tc.SpanID) != 16 {
		t.Errorf("span ID should be 16 hex chars, got %d", len(tc.SpanID))
	}
	if tc.ParentSpanID != "" {
		t.Error("fresh context should have no parent")
	}
}

func TestNewChild(t *testing.T) {
	parent := New()
	child := NewChild(parent)

	if child.TraceID != parent.TraceID {
		t.Error("child should inherit trace ID")
	}
	if child.SpanID == parent.SpanID {
		t.Error("child should get a new span ID")
	}
	if child.ParentSpanID != parent.SpanID {
		t.Error("child's parent should be the parent's span")
	}
}

func TestContextRoundTrip(t *testing.T) {
	tc := New()
	ctx := WithContext(context.Background(), tc)

	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected trace context in ctx")
	}
	if got.TraceID != tc.TraceID || got.SpanID != tc.SpanID {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, tc)
	}
}

func TestEnsureContext(t *testing.T) {
	// Without existing context: creates one
	ctx, tc := EnsureContext(context.Background())
	if tc.TraceID == "" {
		t.Error("expected fresh trace ID")
	}

	// With existing context: preserves it
	_, tc2 := EnsureContext(ctx)
	if tc2.TraceID != tc.TraceID {
		t.Error("EnsureContext should preserve existing trace")
	}
}

func TestSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test_op")
	span.SetAttr("key", "value")

	if span.Name != "test_op" {
		t.Errorf("span name = %q", span.Name)
	}
	if span.Duration() != 0 {
		t.Error("unfinished span should report zero duration")
	}

	time.Sleep(time.Millisecond)
	span.End()
	if span.Duration() <= 0 {
		t.Error("finished span should report positive duration")
	}

	// Span context should be in the returned ctx
	if _, ok := FromContext(ctx); !ok {
		t.Error("StartSpan should inject context")
	}
}

func TestMiddleware(t *testing.T) {
	var captured Context
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = FromContext(r.Context())
	}))

	t.Run("generates trace when absent", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
		if captured.TraceID == "" {
			t.Error("middleware should generate a trace ID")
		}
	})

	t.Run("propagates incoming trace", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set(TraceIDKey, "abc123")
		req.Header.Set(SpanIDKey, "def456")
		handler.ServeHTTP(httptest.NewRecorder(), req)
		if captured.TraceID != "abc123" {
			t.Errorf("trace ID = %q, want abc123", captured.TraceID)
		}
		if captured.ParentSpanID != "def456" {
			t.Errorf("parent span = %q, want def456", captured.ParentSpanID)
		}
	})
}

func TestLogger(t *testing.T) {
	// Without trace context falls back to default
	if Logger(context.Background()) == nil {
		t.Fatal("Logger should never return nil")
	}

	ctx := WithContext(context.Background(), New())
	if Logger(ctx) == nil {
		t.Fatal("Logger with context should never return nil")
	}
}
