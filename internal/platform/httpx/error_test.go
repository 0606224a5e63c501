package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"

	"github.com/couture-field/checkout/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")
	ctx = requestctx.WithTrace(ctx, requestctx.TraceInfo{TraceID: "4bf92f3577b34da6a3ce929d0e0e4736"})

	rr := httptest.NewRecorder()
	WriteError(ctx, rr, NewError("order_not_found", "order\nnot found", http.StatusNotFound))

	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "order_not_found", body["error"])
	require.Equal(t, "order not found", body["message"])
	require.EqualValues(t, 404, body["status"])
	require.Equal(t, "req-1", body["request_id"])
	require.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", body["trace_id"])
}

func TestWriteErrorDefaultsAndOmissions(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(context.Background(), rr, Error{Code: "internal_error"})

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "request_id")
	require.NotContains(t, rr.Body.String(), "trace_id")
}

func TestNewErrorClipsMessage(t *testing.T) {
	err := NewError("invalid_request", strings.Repeat("é", maxMessageLen), 0)

	require.Equal(t, http.StatusInternalServerError, err.Status)
	require.LessOrEqual(t, len(err.Message), maxMessageLen)
	require.True(t, strings.HasPrefix(err.Error(), "invalid_request: "))
}
