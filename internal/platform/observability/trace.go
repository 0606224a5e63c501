package observability

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/couture-field/checkout/internal/platform/requestctx"
)

const cloudTraceHeader = "X-Cloud-Trace-Context"

// TraceMiddleware starts the server span of each request. A parent is taken from a W3C
// traceparent header or, failing that, from Google's X-Cloud-Trace-Context. The span ids are
// copied onto the request context for log correlation and echoed in X-Cloud-Trace-Context.
func TraceMiddleware(projectID string) func(http.Handler) http.Handler {
	propagator := propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, cloudTracePropagator{})
	return func(next http.Handler) http.Handler {
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			info := requestctx.TraceInfo{ProjectID: projectID}
			if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
				info.TraceID = sc.TraceID().String()
				info.SpanID = sc.SpanID().String()
				info.Sampled = sc.IsSampled()
				cloudTracePropagator{}.Inject(ctx, propagation.HeaderCarrier(w.Header()))
			}
			next.ServeHTTP(w, r.WithContext(requestctx.WithTrace(ctx, info)))
		})
		return otelhttp.NewHandler(inner, "checkout-api",
			otelhttp.WithPropagators(propagator),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
}

// cloudTracePropagator reads and writes "TRACE_ID/SPAN_ID;o=OPTIONS" where SPAN_ID is decimal.
type cloudTracePropagator struct{}

var _ propagation.TextMapPropagator = cloudTracePropagator{}

func (cloudTracePropagator) Fields() []string { return []string{cloudTraceHeader} }

func (cloudTracePropagator) Inject(ctx context.Context, carrier propagation.TextMapCarrier) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return
	}
	carrier.Set(cloudTraceHeader, formatCloudTrace(sc))
}

func (cloudTracePropagator) Extract(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	if trace.SpanContextFromContext(ctx).IsValid() {
		return ctx
	}
	sc, ok := parseCloudTrace(carrier.Get(cloudTraceHeader))
	if !ok {
		return ctx
	}
	return trace.ContextWithRemoteSpanContext(ctx, sc)
}

func formatCloudTrace(sc trace.SpanContext) string {
	spanID := sc.SpanID()
	option := 0
	if sc.IsSampled() {
		option = 1
	}
	return fmt.Sprintf("%s/%d;o=%d", sc.TraceID(), binary.BigEndian.Uint64(spanID[:]), option)
}

func parseCloudTrace(header string) (trace.SpanContext, bool) {
	traceHex, rest, ok := strings.Cut(strings.TrimSpace(header), "/")
	if !ok {
		return trace.SpanContext{}, false
	}
	traceID, err := trace.TraceIDFromHex(traceHex)
	if err != nil {
		return trace.SpanContext{}, false
	}
	spanPart, options, _ := strings.Cut(rest, ";")
	spanID, ok := parseCloudSpanID(spanPart)
	if !ok {
		return trace.SpanContext{}, false
	}

	var flags trace.TraceFlags
	if strings.TrimSpace(options) == "o=1" {
		flags = trace.FlagsSampled
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	})
	return sc, sc.IsValid()
}

// parseCloudSpanID accepts the documented decimal form and, from older proxies, 16 hex digits.
func parseCloudSpanID(value string) (trace.SpanID, bool) {
	value = strings.TrimSpace(value)
	var spanID trace.SpanID
	if n, err := strconv.ParseUint(value, 10, 64); err == nil {
		binary.BigEndian.PutUint64(spanID[:], n)
		return spanID, spanID.IsValid()
	}
	if len(value) == 16 {
		if id, err := trace.SpanIDFromHex(value); err == nil {
			return id, true
		}
	}
	return spanID, false
}
