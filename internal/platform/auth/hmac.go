package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultSignatureHeader = "X-Signature"
	defaultTimestampHeader = "X-Signature-Timestamp"
	defaultNonceHeader     = "X-Signature-Nonce"

	defaultClockSkew = 5 * time.Minute
	defaultNonceTTL  = 5 * time.Minute
)

// SecretProvider resolves shared secrets used for HMAC validation.
type SecretProvider interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// StaticSecrets serves already resolved secrets keyed by name.
type StaticSecrets map[string]string

// GetSecret implements SecretProvider.
func (s StaticSecrets) GetSecret(_ context.Context, name string) (string, error) {
	if secret := strings.TrimSpace(s[name]); secret != "" {
		return secret, nil
	}
	return "", fmt.Errorf("auth: secret %q not configured", name)
}

// NonceStore tracks unique nonces for replay prevention.
type NonceStore interface {
	// UseNonce records the nonce within scope until expiry. It reports false when the nonce was already used.
	UseNonce(ctx context.Context, scope, nonce string, expiry time.Time) (bool, error)
}

// InMemoryNonceStore keeps nonces in process. It suits a single instance and tests.
type InMemoryNonceStore struct {
	mu     sync.Mutex
	nonces map[string]time.Time
	now    func() time.Time
}

// NewInMemoryNonceStore constructs the store.
func NewInMemoryNonceStore() *InMemoryNonceStore {
	return &InMemoryNonceStore{nonces: make(map[string]time.Time), now: time.Now}
}

// UseNonce implements NonceStore.
func (s *InMemoryNonceStore) UseNonce(_ context.Context, scope, nonce string, expiry time.Time) (bool, error) {
	if scope == "" || nonce == "" {
		return false, errors.New("auth: scope and nonce are required")
	}
	key := scope + "::" + nonce

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, exp := range s.nonces {
		if exp.Before(now) {
			delete(s.nonces, k)
		}
	}
	if _, ok := s.nonces[key]; ok {
		return false, nil
	}
	s.nonces[key] = expiry
	return true, nil
}

// RedisNonceStore shares used nonces between instances through SETNX keys that expire with the nonce.
type RedisNonceStore struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// NewRedisNonceStore constructs a Redis-backed nonce store.
func NewRedisNonceStore(client redis.Cmdable) *RedisNonceStore {
	return &RedisNonceStore{client: client, prefix: "checkout:nonce:", now: time.Now}
}

// UseNonce implements NonceStore.
func (s *RedisNonceStore) UseNonce(ctx context.Context, scope, nonce string, expiry time.Time) (bool, error) {
	if scope == "" || nonce == "" {
		return false, errors.New("auth: scope and nonce are required")
	}
	ttl := expiry.Sub(s.now())
	if ttl <= 0 {
		ttl = time.Second
	}
	stored, err := s.client.SetNX(ctx, s.prefix+scope+":"+nonce, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("auth: record nonce: %w", err)
	}
	return stored, nil
}

// HMACValidator verifies requests signed by trusted integrations such as carrier webhooks.
// The signed message is method, escaped path, timestamp, nonce and the body SHA-256, newline separated.
type HMACValidator struct {
	provider SecretProvider
	nonces   NonceStore

	logger  *zap.Logger
	metrics MetricsRecorder
	now     func() time.Time

	signatureHeader string
	timestampHeader string
	nonceHeader     string
	clockSkew       time.Duration
	nonceTTL        time.Duration
}

// HMACOption customises the validator.
type HMACOption func(*HMACValidator)

// NewHMACValidator builds a validator using the given secret provider and nonce store.
func NewHMACValidator(provider SecretProvider, nonces NonceStore, opts ...HMACOption) *HMACValidator {
	validator := &HMACValidator{
		provider:        provider,
		nonces:          nonces,
		logger:          zap.NewNop(),
		now:             time.Now,
		signatureHeader: defaultSignatureHeader,
		timestampHeader: defaultTimestampHeader,
		nonceHeader:     defaultNonceHeader,
		clockSkew:       defaultClockSkew,
		nonceTTL:        defaultNonceTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(validator)
		}
	}
	return validator
}

// WithHMACLogger overrides the validator logger.
func WithHMACLogger(logger *zap.Logger) HMACOption {
	return func(v *HMACValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithHMACMetrics sets the metrics recorder.
func WithHMACMetrics(metrics MetricsRecorder) HMACOption {
	return func(v *HMACValidator) {
		v.metrics = metrics
	}
}

// WithHMACClock injects a custom clock.
func WithHMACClock(now func() time.Time) HMACOption {
	return func(v *HMACValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithHMACHeaders customises the header names used by the middleware.
func WithHMACHeaders(signature, timestamp, nonce string) HMACOption {
	return func(v *HMACValidator) {
		if signature != "" {
			v.signatureHeader = signature
		}
		if timestamp != "" {
			v.timestampHeader = timestamp
		}
		if nonce != "" {
			v.nonceHeader = nonce
		}
	}
}

// WithHMACWindow adjusts the accepted timestamp skew and how long nonces are remembered.
func WithHMACWindow(skew, nonceTTL time.Duration) HMACOption {
	return func(v *HMACValidator) {
		if skew > 0 {
			v.clockSkew = skew
		}
		if nonceTTL > 0 {
			v.nonceTTL = nonceTTL
		}
	}
}

type verificationFailure struct {
	status int
	reason string
	msg    string
}

// RequireHMAC enforces a valid signature made with the secret registered under secretName.
func (v *HMACValidator) RequireHMAC(secretName string) func(http.Handler) http.Handler {
	secretName = strings.TrimSpace(secretName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := v.now()
			ctx := r.Context()

			if failure := v.verify(r, secretName); failure != nil {
				v.record(ctx, false, failure.reason, start)
				respondAuthError(ctx, w, failure.status, failure.reason, failure.msg)
				return
			}
			v.record(ctx, true, "ok", start)
			next.ServeHTTP(w, r)
		})
	}
}

func (v *HMACValidator) verify(r *http.Request, secretName string) *verificationFailure {
	ctx := r.Context()
	if secretName == "" || v.provider == nil || v.nonces == nil {
		return &verificationFailure{http.StatusServiceUnavailable, "verification_unavailable", "hmac verification not configured"}
	}
	secret, err := v.provider.GetSecret(ctx, secretName)
	if err != nil || secret == "" {
		v.logger.Error("hmac secret unavailable", zap.String("secret", secretName), zap.Error(err))
		return &verificationFailure{http.StatusServiceUnavailable, "verification_unavailable", "hmac secret unavailable"}
	}

	signatureValue := strings.TrimSpace(r.Header.Get(v.signatureHeader))
	timestampValue := strings.TrimSpace(r.Header.Get(v.timestampHeader))
	nonce := strings.TrimSpace(r.Header.Get(v.nonceHeader))
	if signatureValue == "" || timestampValue == "" || nonce == "" {
		return &verificationFailure{http.StatusUnauthorized, "signature_missing", "signature headers missing"}
	}

	timestamp, err := parseSignatureTimestamp(timestampValue)
	if err != nil {
		return &verificationFailure{http.StatusUnauthorized, "timestamp_invalid", "signature timestamp invalid"}
	}
	if skew := v.now().Sub(timestamp); skew > v.clockSkew || skew < -v.clockSkew {
		return &verificationFailure{http.StatusUnauthorized, "timestamp_skew", "signature timestamp outside allowed window"}
	}

	body, err := readAndRestoreBody(r)
	if err != nil {
		return &verificationFailure{http.StatusBadRequest, "invalid_body", "unable to read body for signature verification"}
	}
	signature, err := decodeSignature(signatureValue)
	if err != nil {
		return &verificationFailure{http.StatusUnauthorized, "signature_invalid", "signature encoding invalid"}
	}
	if !hmac.Equal(signature, computeHMAC([]byte(secret), buildCanonicalString(r, body, timestampValue, nonce))) {
		return &verificationFailure{http.StatusUnauthorized, "signature_mismatch", "signature verification failed"}
	}

	expiry := timestamp.Add(v.clockSkew + v.nonceTTL)
	stored, err := v.nonces.UseNonce(ctx, secretName, nonce, expiry)
	if err != nil {
		v.logger.Error("hmac nonce store failed", zap.Error(err))
		return &verificationFailure{http.StatusServiceUnavailable, "verification_unavailable", "nonce storage error"}
	}
	if !stored {
		return &verificationFailure{http.StatusUnauthorized, "nonce_replay", "duplicate signature nonce"}
	}
	return nil
}

func (v *HMACValidator) record(ctx context.Context, success bool, reason string, start time.Time) {
	if v.metrics != nil {
		v.metrics.RecordVerification(ctx, "hmac", success, reason, v.now().Sub(start))
	}
}

func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	buf, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(buf))
	return buf, nil
}

func decodeSignature(value string) ([]byte, error) {
	if decoded, err := hex.DecodeString(value); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	return nil, errors.New("auth: signature must be hex or base64 encoded")
}

func parseSignatureTimestamp(value string) (time.Time, error) {
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(seconds, 0).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("auth: unable to parse timestamp %q", value)
	}
	return ts.UTC(), nil
}

func buildCanonicalString(r *http.Request, body []byte, timestamp, nonce string) []byte {
	path := r.URL.EscapedPath()
	if path == "" {
		path = "/"
	}
	hash := sha256.Sum256(body)
	return []byte(strings.Join([]string{
		strings.ToUpper(r.Method),
		path,
		timestamp,
		nonce,
		hex.EncodeToString(hash[:]),
	}, "\n"))
}

func computeHMAC(secret []byte, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(message)
	return mac.Sum(nil)
}
