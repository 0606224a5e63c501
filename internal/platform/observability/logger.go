package observability

import (
	"context"
	"os"
	"slices"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/couture-field/checkout/internal/platform/requestctx"
)

// NewLogger builds a JSON logger whose keys match Cloud Logging's structured payload.
// LOG_LEVEL selects the level; unknown values fall back to info.
func NewLogger() (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if raw := strings.TrimSpace(os.Getenv("LOG_LEVEL")); raw != "" {
		if parsed, err := zapcore.ParseLevel(strings.ToLower(raw)); err == nil {
			level.SetLevel(parsed)
		}
	}

	cfg := zap.Config{
		Level:    level,
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:     "message",
			TimeKey:        "timestamp",
			LevelKey:       "severity",
			NameKey:        "logger",
			CallerKey:      "caller",
			StacktraceKey:  "stacktrace",
			EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
			EncodeLevel:    severityEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
		},
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}
	return cfg.Build()
}

// severityEncoder writes Cloud Logging severities; DPANIC and above collapse to CRITICAL.
func severityEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch {
	case level >= zapcore.DPanicLevel:
		enc.AppendString("CRITICAL")
	case level == zapcore.WarnLevel:
		enc.AppendString("WARNING")
	default:
		enc.AppendString(strings.ToUpper(level.String()))
	}
}

// WithLogger injects the logger into the provided context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// ServiceLogger adapts zap to the event logger accepted by the checkout services.
// Inside a request the request-scoped logger is used, renamed after base, so request and trace
// fields carry over. Events carrying an error value are logged at warn.
func ServiceLogger(base *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	if base == nil {
		base = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := requestctx.LoggerOr(ctx, base)
		if logger != base {
			if name := base.Name(); name != "" {
				logger = logger.Named(name)
			}
		}

		keys := make([]string, 0, len(fields))
		for key := range fields {
			keys = append(keys, key)
		}
		slices.Sort(keys)

		level := zapcore.InfoLevel
		zapFields := make([]zap.Field, 0, len(keys)+1)
		zapFields = append(zapFields, zap.String("event", event))
		for _, key := range keys {
			if err, ok := fields[key].(error); ok {
				level = zapcore.WarnLevel
				zapFields = append(zapFields, zap.NamedError(key, err))
				continue
			}
			zapFields = append(zapFields, zap.Any(key, fields[key]))
		}
		if ce := logger.Check(level, event); ce != nil {
			ce.Write(zapFields...)
		}
	}
}
