package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/couture-field/checkout/internal/platform/requestctx"
)

var (
	// ErrJWKSKeyNotFound is returned when the requested key ID is absent from the JWKS document.
	ErrJWKSKeyNotFound = errors.New("auth: jwks key not found")
	// ErrJWKSFetchFailed wraps transport or decoding errors while refreshing JWKS.
	ErrJWKSFetchFailed = errors.New("auth: jwks fetch failed")
)

const defaultJWKSValidity = 15 * time.Minute

// JWKSCache fetches Google signing keys on demand and keeps them for the advertised max-age.
type JWKSCache struct {
	url    string
	client *http.Client
	now    func() time.Time

	mu     sync.RWMutex
	keys   map[string]jose.JSONWebKey
	expiry time.Time

	// fetch collapses concurrent refreshes into one request.
	fetch singleflight.Group
}

// JWKSOption customises JWKSCache behaviour.
type JWKSOption func(*JWKSCache)

// WithJWKSHTTPClient overrides the HTTP client used to fetch JWKS documents.
func WithJWKSHTTPClient(client *http.Client) JWKSOption {
	return func(c *JWKSCache) {
		if client != nil {
			c.client = client
		}
	}
}

// WithJWKSClock injects a custom time source.
func WithJWKSClock(now func() time.Time) JWKSOption {
	return func(c *JWKSCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewJWKSCache constructs a JWKS cache for the provided URL.
func NewJWKSCache(url string, opts ...JWKSOption) *JWKSCache {
	cache := &JWKSCache{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cache)
		}
	}
	return cache
}

// Keyfunc returns a jwt.Keyfunc backed by the cache.
func (c *JWKSCache) Keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("auth: token missing kid header")
		}
		return c.Key(ctx, kid)
	}
}

// Key resolves the public key for kid. An unknown kid forces one refresh, which covers key rotation.
func (c *JWKSCache) Key(ctx context.Context, kid string) (any, error) {
	if key, fresh := c.cachedKey(kid); fresh && key != nil {
		return key, nil
	}
	if err := c.refresh(ctx); err != nil {
		return nil, err
	}
	if key, _ := c.cachedKey(kid); key != nil {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrJWKSKeyNotFound, kid)
}

func (c *JWKSCache) cachedKey(kid string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fresh := len(c.keys) > 0 && c.now().Before(c.expiry)
	jwk, ok := c.keys[kid]
	if !ok {
		return nil, fresh
	}
	return jwk.Key, fresh
}

func (c *JWKSCache) refresh(ctx context.Context) error {
	_, err, _ := c.fetch.Do(c.url, func() (any, error) {
		return nil, c.download(ctx)
	})
	return err
}

func (c *JWKSCache) download(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("%w: decode jwks: %v", ErrJWKSFetchFailed, err)
	}
	keys := make(map[string]jose.JSONWebKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.KeyID != "" && jwk.Valid() {
			keys[jwk.KeyID] = jwk
		}
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: empty key set", ErrJWKSFetchFailed)
	}

	validity := parseMaxAge(resp.Header.Get("Cache-Control"))
	if validity <= 0 {
		validity = defaultJWKSValidity
	}

	c.mu.Lock()
	c.keys = keys
	c.expiry = c.now().Add(validity)
	c.mu.Unlock()
	return nil
}

func parseMaxAge(header string) time.Duration {
	for _, part := range strings.Split(header, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}

// OIDCValidator authenticates internal callers (Cloud Scheduler, Cloud Tasks, IAP) with
// Google-signed OIDC tokens.
type OIDCValidator struct {
	cache    *JWKSCache
	logger   *zap.Logger
	metrics  MetricsRecorder
	now      func() time.Time
	accounts map[string]struct{}
}

// OIDCOption customises the validator.
type OIDCOption func(*OIDCValidator)

// WithOIDCLogger overrides the validator logger.
func WithOIDCLogger(logger *zap.Logger) OIDCOption {
	return func(v *OIDCValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithOIDCMetrics sets the metrics recorder.
func WithOIDCMetrics(recorder MetricsRecorder) OIDCOption {
	return func(v *OIDCValidator) {
		v.metrics = recorder
	}
}

// WithOIDCServiceAccounts restricts callers to the given service account emails. The token must
// carry a verified email claim matching one of them; other valid tokens are answered with 403.
func WithOIDCServiceAccounts(emails ...string) OIDCOption {
	return func(v *OIDCValidator) {
		for _, email := range emails {
			if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
				if v.accounts == nil {
					v.accounts = make(map[string]struct{})
				}
				v.accounts[email] = struct{}{}
			}
		}
	}
}

// WithOIDCClock injects a custom clock.
func WithOIDCClock(now func() time.Time) OIDCOption {
	return func(v *OIDCValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// NewOIDCValidator constructs an OIDCValidator.
func NewOIDCValidator(cache *JWKSCache, opts ...OIDCOption) *OIDCValidator {
	validator := &OIDCValidator{cache: cache, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(validator)
		}
	}
	return validator
}

// ServiceIdentity is the authenticated service principal.
type ServiceIdentity struct {
	Subject string
	Email   string
	Issuer  string
}

type serviceIdentityContextKey struct{}

// WithServiceIdentity attaches the verified service identity to the request context.
func WithServiceIdentity(ctx context.Context, identity *ServiceIdentity) context.Context {
	return context.WithValue(ctx, serviceIdentityContextKey{}, identity)
}

// ServiceIdentityFromContext retrieves the identity stored by the middleware.
func ServiceIdentityFromContext(ctx context.Context) (*ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceIdentityContextKey{}).(*ServiceIdentity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// RequireOIDC rejects requests without a valid RS256 token for audience issued by one of issuers.
func (v *OIDCValidator) RequireOIDC(audience string, issuers []string) func(http.Handler) http.Handler {
	audience = strings.TrimSpace(audience)
	allowedIssuers := make(map[string]struct{}, len(issuers))
	for _, issuer := range issuers {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			allowedIssuers[issuer] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := v.now()
			ctx := r.Context()
			reject := func(status int, reason, message string) {
				v.record(ctx, false, reason, start)
				respondAuthError(ctx, w, status, reasonCode(status), message)
			}

			if audience == "" || v.cache == nil {
				reject(http.StatusServiceUnavailable, "not_configured", "oidc verification not configured")
				return
			}
			tokenStr := extractOIDCToken(r)
			if tokenStr == "" {
				reject(http.StatusUnauthorized, "token_missing", "oidc token missing")
				return
			}

			claims := jwt.MapClaims{}
			parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
			if _, err := parser.ParseWithClaims(tokenStr, claims, v.cache.Keyfunc(ctx)); err != nil {
				if errors.Is(err, ErrJWKSFetchFailed) {
					v.logger.Warn("jwks unavailable", zap.Error(err))
					reject(http.StatusServiceUnavailable, "jwks_unavailable", "oidc verification unavailable")
					return
				}
				reject(http.StatusUnauthorized, "token_invalid", "oidc token verification failed")
				return
			}

			issuer, _ := claims["iss"].(string)
			if _, ok := allowedIssuers[issuer]; len(allowedIssuers) > 0 && !ok {
				reject(http.StatusUnauthorized, "issuer_mismatch", "oidc issuer mismatch")
				return
			}
			if !claims.VerifyAudience(audience, true) {
				reject(http.StatusUnauthorized, "audience_mismatch", "oidc audience mismatch")
				return
			}

			identity := &ServiceIdentity{Issuer: issuer}
			identity.Subject, _ = claims["sub"].(string)
			identity.Email, _ = claims["email"].(string)
			if !v.allowed(identity.Email, claims["email_verified"]) {
				reject(http.StatusForbidden, "caller_not_allowed", "service account not allowed")
				return
			}

			v.record(ctx, true, "ok", start)
			requestctx.SetPrincipal(ctx, "service:"+identity.Subject)
			next.ServeHTTP(w, r.WithContext(WithServiceIdentity(ctx, identity)))
		})
	}
}

func (v *OIDCValidator) allowed(email string, verified any) bool {
	if len(v.accounts) == 0 {
		return true
	}
	if ok, _ := verified.(bool); !ok {
		return false
	}
	_, ok := v.accounts[strings.ToLower(email)]
	return ok
}

func (v *OIDCValidator) record(ctx context.Context, success bool, reason string, start time.Time) {
	if v.metrics != nil {
		v.metrics.RecordVerification(ctx, "oidc", success, reason, v.now().Sub(start))
	}
}

func reasonCode(status int) string {
	switch status {
	case http.StatusServiceUnavailable:
		return "verification_unavailable"
	case http.StatusForbidden:
		return "forbidden"
	default:
		return "unauthenticated"
	}
}

func extractOIDCToken(r *http.Request) string {
	if bearer, ok := extractBearerToken(r.Header.Get("Authorization")); ok {
		return bearer
	}
	return strings.TrimSpace(r.Header.Get("X-Goog-Iap-Jwt-Assertion"))
}
