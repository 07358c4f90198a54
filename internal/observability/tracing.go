package observability

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	providerOnce sync.Once
	providerMu   sync.RWMutex
	provider     *sdktrace.TracerProvider
	providerErr  error
)

// InitTracing initializes a process-wide OpenTelemetry tracer provider.
// Safe to call multiple times; only the first call takes effect.
func InitTracing(serviceName string) error {
	providerOnce.Do(func() {
		res, err := resource.New(
			context.Background(),
			resource.WithAttributes(semconv.ServiceName(serviceName)),
		)
		if err != nil {
			providerErr = err
			return
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(1))),
			sdktrace.WithResource(res),
		)

		providerMu.Lock()
		provider = tp
		providerMu.Unlock()

		otel.SetTracerProvider(tp)
	})

	return providerErr
}

// ShutdownTracing flushes and shuts down the global tracer provider.
func ShutdownTracing(ctx context.Context) error {
	providerMu.RLock()
	tp := provider
	providerMu.RUnlock()
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// StartTurnSpan starts a span for one agent-loop turn, propagating a
// turn-scoped trace ID into the returned context.
func StartTurnSpan(ctx context.Context, turnIndex int64, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	tracer := otel.Tracer("moneyclaw/agentloop")
	attrs = append(attrs, attribute.Int64("turn.index", turnIndex))
	ctx, span := tracer.Start(ctx, "turn", trace.WithAttributes(attrs...))

	if GetTraceID(ctx) == "" {
		if sc := span.SpanContext(); sc.IsValid() {
			ctx = WithTraceID(ctx, sc.TraceID().String())
		}
	}
	return ctx, span
}

// contextKey is the type for context keys used by the tracing helpers below.
type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	childIDKey contextKey = "child_id"
)

// NewTraceID generates a fresh trace ID for a new session or spawn attempt.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID attaches a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from the context, or "" if absent.
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// WithChildID attaches a spawned child's id to the context, so its lifecycle
// events and sandbox operations are traceable back to the spawning turn.
func WithChildID(ctx context.Context, childID string) context.Context {
	return context.WithValue(ctx, childIDKey, childID)
}

// GetChildID retrieves the child id from the context, or "" if absent.
func GetChildID(ctx context.Context) string {
	if v, ok := ctx.Value(childIDKey).(string); ok {
		return v
	}
	return ""
}

// PropagateToChild derives a child-scoped context for a spawned automaton,
// keeping the parent trace ID and attaching the new child's id.
func PropagateToChild(ctx context.Context, childID string) context.Context {
	traceID := GetTraceID(ctx)
	if traceID == "" {
		traceID = NewTraceID()
	}
	ctx = WithTraceID(ctx, traceID)
	return WithChildID(ctx, childID)
}

// LoggerFromContext attaches trace/child ids present in ctx to the logger.
func LoggerFromContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	logger := base
	if traceID := GetTraceID(ctx); traceID != "" {
		logger = logger.With().Str("trace_id", traceID).Logger()
	}
	if childID := GetChildID(ctx); childID != "" {
		logger = logger.With().Str("child_id", childID).Logger()
	}
	return logger
}
