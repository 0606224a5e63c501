package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/couture-field/checkout/internal/platform/requestctx"
)

const (
	maxCodeLen    = 80
	maxMessageLen = 512
	maxIDLen      = 80
)

// Error is an API failure with a stable machine-readable code.
type Error struct {
	Code    string
	Message string
	Status  int
}

// NewError builds an Error. A zero status means 500. Code and message are flattened to a
// single line and clipped so upstream error text cannot bloat or split the response.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clip(code, maxCodeLen),
		Message: clip(message, maxMessageLen),
		Status:  status,
	}
}

func (e Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

type envelope struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// WriteError renders err as the JSON error envelope, stamped with the request and trace ids
// found on ctx. Error responses are never cached.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	body := envelope{
		Error:     err.Code,
		Message:   err.Message,
		Status:    status,
		RequestID: clip(middleware.GetReqID(ctx), maxIDLen),
		TraceID:   clip(requestctx.TraceID(ctx), maxIDLen),
	}

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func clip(value string, limit int) string {
	value = strings.TrimSpace(strings.Join(strings.Fields(value), " "))
	if len(value) <= limit {
		return value
	}
	value = value[:limit]
	for !utf8.ValidString(value) {
		value = value[:len(value)-1]
	}
	return value
}
