package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// ConversationKeyKey is the context key for the conversation identity
	ConversationKeyKey ContextKey = "conversation_key"
	// StepKey is the context key for the state handler currently running
	StepKey ContextKey = "step"
)

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithConversationKey adds a conversation key to the context
func WithConversationKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, ConversationKeyKey, key)
}

// WithStep records the name of the running state handler
func WithStep(ctx context.Context, step string) context.Context {
	return context.WithValue(ctx, StepKey, step)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetConversationKey retrieves the conversation key from the context
func GetConversationKey(ctx context.Context) string {
	if key, ok := ctx.Value(ConversationKeyKey).(string); ok {
		return key
	}
	return ""
}

// GetStep retrieves the step name from the context
func GetStep(ctx context.Context) string {
	if step, ok := ctx.Value(StepKey).(string); ok {
		return step
	}
	return ""
}

// NewRequestContext creates a new context for an inbound event with a new trace ID
func NewRequestContext(ctx context.Context, conversationKey string) context.Context {
	ctx = WithTraceID(ctx, NewTraceID())
	if conversationKey != "" {
		ctx = WithConversationKey(ctx, conversationKey)
	}
	return ctx
}

// LoggerFromContext enriches baseLogger with the tracing fields found in ctx
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return baseLogger
	}

	lc := baseLogger.With()
	if traceID := GetTraceID(ctx); traceID != "" {
		lc = lc.Str("trace_id", traceID)
	}
	if key := GetConversationKey(ctx); key != "" {
		lc = lc.Str("conversation_key", key)
	}
	if step := GetStep(ctx); step != "" {
		lc = lc.Str("step", step)
	}
	return lc.Logger()
}
