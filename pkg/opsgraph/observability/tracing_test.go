package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTracingTest installs a tracer provider with an in-memory exporter.
func setupTracingTest(t *testing.T) (*tracetest.InMemoryExporter, func()) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)

	originalProvider := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	// Update the package-level tracer
	tracer = otel.Tracer("opsgraph")

	cleanup := func() {
		otel.SetTracerProvider(originalProvider)
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down tracer provider: %v", err)
		}
	}

	return exporter, cleanup
}

func TestStartSessionSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	spans := NewSpanManager()

	t.Run("creates span with session attributes", func(t *testing.T) {
		ctx := context.Background()
		_, span := spans.StartSessionSpan(ctx, "sess-123")
		require.NotNil(t, span)

		span.End()

		recorded := exporter.GetSpans()
		require.Len(t, recorded, 1)

		s := recorded[0]
		assert.Equal(t, "opsgraph.session", s.Name)

		var sessionID string
		for _, attr := range s.Attributes {
			if attr.Key == "session.id" {
				sessionID = attr.Value.AsString()
			}
		}
		assert.Equal(t, "sess-123", sessionID)
	})

	t.Run("returns context carrying the span", func(t *testing.T) {
		exporter.Reset()

		ctx := context.Background()
		newCtx, span := spans.StartSessionSpan(ctx, "sess-456")
		assert.NotEqual(t, ctx, newCtx)

		span.End()
		require.Len(t, exporter.GetSpans(), 1)
	})
}

func TestStartNodeSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	spans := NewSpanManager()

	t.Run("creates span named after the node", func(t *testing.T) {
		ctx := context.Background()
		_, span := spans.StartNodeSpan(ctx, "categorize")
		require.NotNil(t, span)

		span.End()

		recorded := exporter.GetSpans()
		require.Len(t, recorded, 1)

		s := recorded[0]
		assert.Equal(t, "opsgraph.node.categorize", s.Name)

		var node string
		for _, attr := range s.Attributes {
			if attr.Key == "node" {
				node = attr.Value.AsString()
			}
		}
		assert.Equal(t, "categorize", node)
	})

	t.Run("node spans are children of the session span", func(t *testing.T) {
		exporter.Reset()

		ctx := context.Background()
		ctx, sessionSpan := spans.StartSessionSpan(ctx, "sess-1")

		_, nodeSpan := spans.StartNodeSpan(ctx, "guardrail")
		nodeSpan.End()
		sessionSpan.End()

		recorded := exporter.GetSpans()
		require.Len(t, recorded, 2)

		var child *tracetest.SpanStub
		for i := range recorded {
			if recorded[i].Name == "opsgraph.node.guardrail" {
				child = &recorded[i]
				break
			}
		}
		require.NotNil(t, child)
		assert.True(t, child.Parent.IsValid())
	})
}

func TestEndSpanWithError(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	spans := NewSpanManager()

	t.Run("sets OK status for nil error", func(t *testing.T) {
		_, span := spans.StartSessionSpan(context.Background(), "sess-1")

		spans.EndSpanWithError(span, nil)

		recorded := exporter.GetSpans()
		require.Len(t, recorded, 1)
		assert.Equal(t, codes.Ok, recorded[0].Status.Code)
	})

	t.Run("sets Error status and records the error", func(t *testing.T) {
		exporter.Reset()

		_, span := spans.StartSessionSpan(context.Background(), "sess-2")
		spans.EndSpanWithError(span, errors.New("source unreachable"))

		recorded := exporter.GetSpans()
		require.Len(t, recorded, 1)

		s := recorded[0]
		assert.Equal(t, codes.Error, s.Status.Code)
		assert.Equal(t, "source unreachable", s.Status.Description)

		found := false
		for _, event := range s.Events {
			if event.Name == "exception" {
				found = true
			}
		}
		assert.True(t, found, "expected exception event")
	})

	t.Run("nil span does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			spans.EndSpanWithError(nil, nil)
		})
		assert.NotPanics(t, func() {
			spans.EndSpanWithError(nil, errors.New("boom"))
		})
	})
}

func TestAddSpanEvent(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	spans := NewSpanManager()

	t.Run("adds event to the span in context", func(t *testing.T) {
		ctx, span := spans.StartSessionSpan(context.Background(), "sess-1")

		spans.AddSpanEvent(ctx, "checkpoint_saved",
			attribute.String("node", "categorize"),
			attribute.Int64("size_bytes", 1024),
		)

		span.End()

		recorded := exporter.GetSpans()
		require.Len(t, recorded, 1)

		require.NotEmpty(t, recorded[0].Events)
		assert.Equal(t, "checkpoint_saved", recorded[0].Events[0].Name)
	})

	t.Run("no span in context is a no-op", func(t *testing.T) {
		assert.NotPanics(t, func() {
			spans.AddSpanEvent(context.Background(), "ignored")
		})
	})
}
