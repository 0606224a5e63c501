package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const (
	defaultDownloadExpiry      = 5 * time.Minute
	maxDownloadSignedURLExpiry = 15 * time.Minute
)

var (
	errNoSigner       = errors.New("storage: signer is required")
	errInvalidBucket  = errors.New("storage: bucket name is required")
	errInvalidObject  = errors.New("storage: object name is required")
	errExpiryTooLong  = errors.New("storage: expiry exceeds permitted maximum")
	errObjectOutside  = errors.New("storage: object is outside the label tree")
	labelObjectPrefix = "orders/"
)

// URLSigner generates short-lived download URLs for stored labels.
type URLSigner struct {
	signer Signer
	bucket string
	scheme storage.SigningScheme
	now    func() time.Time
}

// ClientOption customises signer behaviour.
type ClientOption func(*URLSigner)

// WithSigningScheme overrides the signing scheme (defaults to V4).
func WithSigningScheme(scheme storage.SigningScheme) ClientOption {
	return func(c *URLSigner) {
		if scheme != 0 {
			c.scheme = scheme
		}
	}
}

// WithClock injects a custom clock.
func WithClock(clock func() time.Time) ClientOption {
	return func(c *URLSigner) {
		if clock != nil {
			c.now = clock
		}
	}
}

// NewURLSigner constructs a URLSigner for the label bucket.
func NewURLSigner(signer Signer, bucket string, opts ...ClientOption) (*URLSigner, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}

	client := &URLSigner{
		signer: signer,
		bucket: bucket,
		scheme: storage.SigningSchemeV4,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// DownloadOptions control the signed URL lifetime and response headers.
type DownloadOptions struct {
	ExpiresIn   time.Duration
	Disposition string
}

// SignedURLResult describes the generated signed URL.
type SignedURLResult struct {
	URL       string
	Method    string
	ExpiresAt time.Time
}

// SignedDownloadURL signs a GET URL for a label object.
func (c *URLSigner) SignedDownloadURL(ctx context.Context, object string, opts DownloadOptions) (SignedURLResult, error) {
	if c == nil {
		return SignedURLResult{}, errNoSigner
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return SignedURLResult{}, errInvalidObject
	}
	if !strings.HasPrefix(object, labelObjectPrefix) || strings.Contains(object, "..") {
		return SignedURLResult{}, errObjectOutside
	}

	expiry := opts.ExpiresIn
	if expiry <= 0 {
		expiry = defaultDownloadExpiry
	}
	if expiry > maxDownloadSignedURLExpiry {
		return SignedURLResult{}, errExpiryTooLong
	}

	query := map[string]string{"response-content-type": labelContentType}
	if d := strings.TrimSpace(opts.Disposition); d != "" {
		query["response-content-disposition"] = d
	}

	expiresAt := c.now().Add(expiry)
	signed, err := storage.SignedURL(c.bucket, object, &storage.SignedURLOptions{
		GoogleAccessID: c.signer.Email(),
		Scheme:         c.scheme,
		Method:         "GET",
		Expires:        expiresAt,
		SignBytes: func(payload []byte) ([]byte, error) {
			return c.signer.SignBytes(ctx, payload)
		},
		QueryParameters: mapToURLValues(query),
	})
	if err != nil {
		return SignedURLResult{}, fmt.Errorf("storage: sign download url: %w", err)
	}
	return SignedURLResult{URL: signed, Method: "GET", ExpiresAt: expiresAt}, nil
}

func mapToURLValues(values map[string]string) url.Values {
	out := make(url.Values, len(values))
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		out.Add(key, values[key])
	}
	return out
}
