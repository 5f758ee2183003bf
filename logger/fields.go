package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across sentinel.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldJobID       = "job_id"
	FieldExecutionID = "execution_id"
	FieldChannel     = "channel"
	FieldKind        = "kind"

	// Components
	FieldComponent = "component"

	// Operations
	FieldOperation = "operation"
	FieldMethod    = "method"
	FieldURL       = "url"
	FieldPath      = "path"
	FieldPage      = "page"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldNextRunAt  = "next_run_at"
	FieldResetAt    = "reset_at"
	FieldWait       = "wait"

	// Errors
	FieldError     = "error"
	FieldErrorType = "error_type"

	// Counts and sizes
	FieldCount     = "count"
	FieldRemaining = "remaining"

	// Status
	FieldStatus = "status"
	FieldResult = "result"
)

// Context keys for propagating logging context
type contextKey string

const (
	executionIDKey contextKey = "logger_execution_id"
	channelKey     contextKey = "logger_channel"
)

// WithExecutionID adds a job execution ID to the context for logging
func WithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, executionIDKey, id)
}

// WithChannel adds a channel name to the context for logging
func WithChannel(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, channelKey, name)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if id, ok := ctx.Value(executionIDKey).(string); ok && id != "" {
		fields = append(fields, FieldExecutionID, id)
	}
	if name, ok := ctx.Value(channelKey).(string); ok && name != "" {
		fields = append(fields, FieldChannel, name)
	}

	return fields
}

// FromContext decorates base with the fields carried by ctx.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	base = OrNop(base)
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	sched := schedule.New(schedule.Config{}, logger.ComponentLogger("scheduler"))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context.
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return OrNop(parent).With(keysAndValues...)
}
