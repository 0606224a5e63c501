package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/couture-field/checkout/internal/platform/httpx"
	"github.com/couture-field/checkout/internal/platform/requestctx"
)

// InjectLoggerMiddleware makes logger the request-scoped logger for everything downstream.
func InjectLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestctx.WithLogger(r.Context(), logger)))
		})
	}
}

// RequestLoggerMiddleware writes one access entry per request after it completes. The entry
// level follows the status: 5xx and panics log at error, 4xx at warn. The caller identity is
// filled in by the auth middleware through the principal slot.
func RequestLoggerMiddleware(projectID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			info, _ := requestctx.Trace(ctx)
			if info.ProjectID == "" {
				info.ProjectID = projectID
			}

			logger := requestctx.Logger(ctx).With(
				zap.String("request_id", middleware.GetReqID(ctx)),
				zap.String("method", logSafe(r.Method, 10)),
				zap.String("path", logSafe(r.URL.Path, 180)),
			)
			if info.TraceID != "" {
				logger = logger.With(zap.String("trace_id", info.TraceID))
				if info.ProjectID != "" {
					logger = logger.With(zap.String("logging.googleapis.com/trace",
						fmt.Sprintf("projects/%s/traces/%s", info.ProjectID, info.TraceID)))
				}
			}
			if ip := remoteIP(r); ip != "" {
				logger = logger.With(zap.String("remote_ip", ip))
			}

			ctx = requestctx.WithPrincipalSlot(requestctx.WithLogger(ctx, logger))
			r = r.WithContext(ctx)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			panicked := true
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				if panicked {
					status = http.StatusInternalServerError
				}
				route := routePattern(r)
				if span := trace.SpanFromContext(ctx); span.IsRecording() {
					span.SetName(r.Method + " " + route)
					span.SetAttributes(semconv.HTTPRoute(route))
				}

				level := zapcore.InfoLevel
				switch {
				case status >= http.StatusInternalServerError:
					level = zapcore.ErrorLevel
				case status >= http.StatusBadRequest:
					level = zapcore.WarnLevel
				}
				if ce := logger.Check(level, "request completed"); ce != nil {
					ce.Write(
						zap.String("route", route),
						zap.Int("status", status),
						zap.Duration("latency", time.Since(start)),
						zap.Int("bytes", ww.BytesWritten()),
						zap.String("principal", principal(ctx)),
					)
				}
			}()

			next.ServeHTTP(ww, r)
			panicked = false
		})
	}
}

// RecoveryMiddleware turns a panic into a 500 JSON error and logs the stack.
// http.ErrAbortHandler is re-raised so net/http can drop the connection.
func RecoveryMiddleware(fallback *zap.Logger) func(http.Handler) http.Handler {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				logger := requestctx.LoggerOr(r.Context(), fallback)
				logger.Error("panic recovered", zap.Any("panic", rec), zap.ByteString("stack", debug.Stack()))
				httpx.WriteError(r.Context(), w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return logSafe(pattern, 180)
		}
	}
	return "unmatched"
}

func remoteIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return logSafe(addr, 64)
}

func principal(ctx context.Context) string {
	if p := requestctx.Principal(ctx); p != "" {
		return logSafe(p, 96)
	}
	return "anonymous"
}

// logSafe strips control characters and caps the rune count of client-controlled values.
func logSafe(value string, limit int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	if runes := []rune(cleaned); len(runes) > limit {
		return string(runes[:limit])
	}
	return cleaned
}
