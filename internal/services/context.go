package services

import "context"

type contextKey string

const (
	transferIDKey contextKey = "transfer_id"
	attemptIDKey  contextKey = "attempt_id"
	componentKey  contextKey = "component"
	requestIDKey  contextKey = "request_id"
)

// WithTransferID annotates context with the transfer identifier.
func WithTransferID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, transferIDKey, id)
}

// TransferIDFromContext extracts the transfer identifier if present.
func TransferIDFromContext(ctx context.Context) (int64, bool) {
	return int64Value(ctx, transferIDKey)
}

// WithAttemptID annotates context with the transfer attempt identifier.
func WithAttemptID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, attemptIDKey, id)
}

// AttemptIDFromContext extracts the attempt identifier if present.
func AttemptIDFromContext(ctx context.Context) (int64, bool) {
	return int64Value(ctx, attemptIDKey)
}

// WithComponent annotates context with the name of the component doing the work.
func WithComponent(ctx context.Context, component string) context.Context {
	if component == "" {
		return ctx
	}
	return context.WithValue(ctx, componentKey, component)
}

// ComponentFromContext returns the component name if present.
func ComponentFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(componentKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

func int64Value(ctx context.Context, key contextKey) (int64, bool) {
	v := ctx.Value(key)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}
