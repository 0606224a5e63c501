package auth

import (
	"context"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// Identity is the authenticated customer extracted from a Firebase ID token.
type Identity struct {
	UID           string
	Email         string
	EmailVerified bool

	token *firebaseauth.Token
}

// Token exposes the decoded Firebase ID token associated with this identity.
func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

// Anonymous reports whether the customer signed in without an account.
func (i *Identity) Anonymous() bool {
	if i == nil || i.token == nil {
		return false
	}
	return i.token.Firebase.SignInProvider == "anonymous"
}

type identityContextKey struct{}

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
