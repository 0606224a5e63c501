package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"go.uber.org/zap"

	"github.com/couture-field/checkout/internal/platform/httpx"
	"github.com/couture-field/checkout/internal/platform/requestctx"
)

const defaultVerifyTimeout = 5 * time.Second

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator wires Firebase token verification into HTTP middleware.
type Authenticator struct {
	verifier       TokenVerifier
	logger         *zap.Logger
	timeout        time.Duration
	allowAnonymous bool
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithVerificationTimeout bounds each token verification.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithAuthLogger sets the logger used for verification failures.
func WithAuthLogger(logger *zap.Logger) Option {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithAnonymousCustomers admits Firebase anonymous sign-ins, which own a cart like any customer.
func WithAnonymousCustomers() Option {
	return func(a *Authenticator) {
		a.allowAnonymous = true
	}
}

// NewAuthenticator constructs a Firebase Authenticator for middleware composition.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier: verifier,
		logger:   zap.NewNop(),
		timeout:  defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireFirebaseAuth verifies the bearer ID token and stores the customer identity in the request context.
func (a *Authenticator) RequireFirebaseAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			if a == nil || a.verifier == nil {
				respondAuthError(ctx, w, http.StatusServiceUnavailable, "verification_unavailable", "authorization service unavailable")
				return
			}

			verifyCtx, cancel := context.WithTimeout(ctx, a.timeout)
			token, err := a.verifier.VerifyIDToken(verifyCtx, tokenStr)
			cancel()
			if err != nil {
				a.logger.Debug("firebase token rejected", zap.Error(err))
				respondVerificationError(ctx, w, err)
				return
			}
			if strings.TrimSpace(token.UID) == "" {
				respondAuthError(ctx, w, http.StatusUnauthorized, "invalid_token", "firebase id token has no subject")
				return
			}

			identity := &Identity{
				UID:           token.UID,
				Email:         claimAsString(token.Claims, "email"),
				EmailVerified: claimAsBool(token.Claims, "email_verified"),
				token:         token,
			}
			if identity.Anonymous() && !a.allowAnonymous {
				respondAuthError(ctx, w, http.StatusForbidden, "anonymous_not_allowed", "sign in to continue")
				return
			}

			requestctx.SetPrincipal(ctx, "customer:"+identity.UID)
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

func claimAsString(claims map[string]interface{}, key string) string {
	value, _ := claims[key].(string)
	return strings.TrimSpace(value)
}

func claimAsBool(claims map[string]interface{}, key string) bool {
	value, _ := claims[key].(bool)
	return value
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func respondAuthError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}

func respondVerificationError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case firebaseauth.IsIDTokenExpired(err):
		respondAuthError(ctx, w, http.StatusUnauthorized, "token_expired", "firebase id token expired")
	case firebaseauth.IsIDTokenRevoked(err):
		respondAuthError(ctx, w, http.StatusUnauthorized, "token_revoked", "firebase id token revoked")
	default:
		respondAuthError(ctx, w, http.StatusUnauthorized, "invalid_token", "firebase id token verification failed")
	}
}
