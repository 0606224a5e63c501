package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/couture-field/checkout/internal/platform/auth"
	"github.com/couture-field/checkout/internal/platform/httpx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
	maxKeyLength      = 255
)

type middlewareConfig struct {
	headerName string
	ttl        time.Duration
	clock      func() time.Time
	logger     *zap.Logger
}

// MiddlewareOption customises middleware behaviour.
type MiddlewareOption func(*middlewareConfig)

// WithHeader overrides the header name used to extract the idempotency key.
func WithHeader(name string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if name = strings.TrimSpace(name); name != "" {
			cfg.headerName = name
		}
	}
}

// WithTTL configures how long completed idempotency records are retained.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithLogger injects a logger for persistence failures.
func WithLogger(logger *zap.Logger) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// Middleware makes the wrapped checkout endpoints safe to retry. Requests must carry an
// idempotency key; a repeated key with the same payload replays the stored response. Server
// errors and conflicts are not stored, so the client may retry them with the same key.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	cfg := middlewareConfig{
		headerName: defaultHeaderName,
		ttl:        DefaultTTL,
		clock:      time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			key := strings.TrimSpace(r.Header.Get(cfg.headerName))
			if key == "" || len(key) > maxKeyLength {
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_required", "a valid idempotency key header is required", http.StatusBadRequest))
				return
			}

			body, err := readAndReplayBody(r)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_body", "unable to read request body", http.StatusBadRequest))
				return
			}

			requester := extractRequester(ctx)
			fingerprint := requestFingerprint(r, body, requester)
			scoped := scopedKey(key, requester)

			reservation, err := store.Reserve(ctx, scoped, fingerprint, cfg.clock().UTC(), cfg.ttl)
			if err != nil {
				handleStoreError(ctx, w, cfg.logger, err)
				return
			}

			switch reservation.State {
			case ReservationStateCompleted:
				writeStoredResponse(w, reservation.Record)
				return
			case ReservationStatePending:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "another request is processing this idempotency key", http.StatusConflict))
				return
			}

			recorder := newResponseRecorder()
			next.ServeHTTP(recorder, r)

			if !replayable(recorder.Status()) {
				if err := store.Release(ctx, scoped, fingerprint); err != nil {
					cfg.logger.Warn("idempotency release failed", zap.String("requester", requester), zap.Error(err))
				}
				recorder.flush(w)
				return
			}

			response := Response{Status: recorder.Status(), Headers: recorder.header, Body: recorder.body.Bytes()}
			if err := store.SaveResponse(ctx, scoped, fingerprint, response, cfg.clock().UTC(), cfg.ttl); err != nil {
				cfg.logger.Error("idempotency save failed", zap.String("requester", requester), zap.Error(err))
				if releaseErr := store.Release(ctx, scoped, fingerprint); releaseErr != nil {
					cfg.logger.Warn("idempotency release failed", zap.String("requester", requester), zap.Error(releaseErr))
				}
			}
			recorder.flush(w)
		})
	}
}

func replayable(status int) bool {
	return status < http.StatusInternalServerError && status != http.StatusConflict
}

func readAndReplayBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func requestFingerprint(r *http.Request, body []byte, requester string) string {
	parts := []string{
		r.Method,
		r.URL.Path,
		r.URL.RawQuery,
		r.Header.Get("Content-Type"),
		requester,
	}
	if len(body) > 0 {
		parts = append(parts, sha256Hex(body))
	}
	return sha256Hex([]byte(strings.Join(parts, "|")))
}

func extractRequester(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity.UID != "" {
		return identity.UID
	}
	if svc, ok := auth.ServiceIdentityFromContext(ctx); ok && svc.Subject != "" {
		return svc.Subject
	}
	return "anonymous"
}

func scopedKey(key, requester string) string {
	return strings.TrimSpace(key) + "|" + requester
}

func handleStoreError(ctx context.Context, w http.ResponseWriter, logger *zap.Logger, err error) {
	if errors.Is(err, ErrFingerprintMismatch) {
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "idempotency key already used for a different request", http.StatusUnprocessableEntity))
		return
	}
	logger.Error("idempotency store error", zap.Error(err))
	httpx.WriteError(ctx, w, httpx.NewError("idempotency_unavailable", "unable to process idempotency key", http.StatusServiceUnavailable))
}

func writeStoredResponse(w http.ResponseWriter, record Record) {
	for key, values := range headersFromRecord(record.ResponseHeaders) {
		w.Header()[key] = values
	}
	w.Header().Set(replayHeaderName, "true")

	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(record.ResponseBody) > 0 {
		_, _ = w.Write(record.ResponseBody)
	}
}

// responseRecorder buffers the handler response until it is known whether it gets stored.
type responseRecorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{header: make(http.Header)}
}

func (r *responseRecorder) Header() http.Header { return r.header }

func (r *responseRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(data)
}

func (r *responseRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *responseRecorder) flush(w http.ResponseWriter) {
	for key, values := range r.header {
		w.Header()[key] = values
	}
	w.WriteHeader(r.Status())
	if r.body.Len() > 0 {
		_, _ = w.Write(r.body.Bytes())
	}
}
