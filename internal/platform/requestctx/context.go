// Package requestctx carries request-scoped values (logger, trace, caller) through context.
package requestctx

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// key is a typed context key; the zero value of T is returned when nothing was stored.
type key[T any] struct{ name string }

func (k *key[T]) with(ctx context.Context, value T) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, k, value)
}

func (k *key[T]) get(ctx context.Context) (T, bool) {
	var zero T
	if ctx == nil {
		return zero, false
	}
	value, ok := ctx.Value(k).(T)
	return value, ok
}

var (
	loggerKey    = &key[*zap.Logger]{"logger"}
	traceKey     = &key[TraceInfo]{"trace"}
	principalKey = &key[*principalSlot]{"principal"}
)

// TraceInfo is the Cloud Trace view of the active span.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// WithLogger stores the request logger. A nil logger is ignored.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return loggerKey.with(ctx, logger)
}

// LoggerOr returns the request logger, or fallback when none is stored. A nil fallback yields a
// no-op logger.
func LoggerOr(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if logger, ok := loggerKey.get(ctx); ok && logger != nil {
		return logger
	}
	if fallback == nil {
		return zap.NewNop()
	}
	return fallback
}

// Logger returns the request logger or a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	return LoggerOr(ctx, nil)
}

func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return traceKey.with(ctx, info)
}

func Trace(ctx context.Context) (TraceInfo, bool) {
	return traceKey.get(ctx)
}

// TraceID is empty outside a traced request.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// principalSlot is filled by auth middleware that runs inside the request logger, which reads it
// once the handler returns.
type principalSlot struct {
	mu    sync.Mutex
	value string
}

// WithPrincipalSlot reserves the slot read by Principal.
func WithPrincipalSlot(ctx context.Context) context.Context {
	return principalKey.with(ctx, &principalSlot{})
}

// SetPrincipal records the authenticated caller. Without a slot it does nothing.
func SetPrincipal(ctx context.Context, principal string) {
	if slot, ok := principalKey.get(ctx); ok && slot != nil {
		slot.mu.Lock()
		slot.value = principal
		slot.mu.Unlock()
	}
}

func Principal(ctx context.Context) string {
	slot, ok := principalKey.get(ctx)
	if !ok || slot == nil {
		return ""
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.value
}
