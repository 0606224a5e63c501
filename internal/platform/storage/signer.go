package storage

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/oauth2/google"
)

// Signer produces the RSA-SHA256 signature GCS expects on V4 signed URLs.
type Signer interface {
	Email() string
	SignBytes(ctx context.Context, payload []byte) ([]byte, error)
}

// ServiceAccountSigner signs with a service account key held in memory.
type ServiceAccountSigner struct {
	email string
	keyID string
	key   *rsa.PrivateKey
}

// NewServiceAccountSignerFromJSON parses a service account key file, usually resolved from
// Secret Manager, into a signer.
func NewServiceAccountSignerFromJSON(data []byte) (*ServiceAccountSigner, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("storage: service account key is empty")
	}
	cfg, err := google.JWTConfigFromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("storage: read service account key: %w", err)
	}
	email := strings.TrimSpace(cfg.Email)
	if email == "" {
		return nil, errors.New("storage: service account key has no client_email")
	}
	if len(cfg.PrivateKey) == 0 {
		return nil, errors.New("storage: service account key has no private_key")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("storage: parse private key: %w", err)
	}
	return &ServiceAccountSigner{email: email, keyID: cfg.PrivateKeyID, key: key}, nil
}

// Email is the GoogleAccessID of signed URLs.
func (s *ServiceAccountSigner) Email() string {
	if s == nil {
		return ""
	}
	return s.email
}

// KeyID identifies the key in IAM, for audit logs.
func (s *ServiceAccountSigner) KeyID() string {
	if s == nil {
		return ""
	}
	return s.keyID
}

func (s *ServiceAccountSigner) SignBytes(ctx context.Context, payload []byte) ([]byte, error) {
	if s == nil || s.key == nil {
		return nil, errNoSigner
	}
	if len(payload) == 0 {
		return nil, errors.New("storage: nothing to sign")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("storage: sign payload: %w", err)
	}
	return sig, nil
}
