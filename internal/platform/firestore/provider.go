package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/couture-field/checkout/internal/platform/config"
)

const (
	defaultDialTimeout = 10 * time.Second
	envEmulatorHost    = "FIRESTORE_EMULATOR_HOST"
	envGoogleProjectID = "GOOGLE_CLOUD_PROJECT"
)

var ErrProviderClosed = errors.New("firestore: provider is closed")

// Provider owns the process-wide Firestore client. The client is dialled on first use so the
// API can boot while Firestore is unreachable; readiness probes surface the outage instead.
type Provider struct {
	projectID    string
	emulatorHost string
	dialTimeout  time.Duration
	clientOpts   []option.ClientOption

	dial singleflight.Group

	mu     sync.RWMutex
	client *firestore.Client
	closed bool
}

// ProviderOption customises the Provider.
type ProviderOption func(*Provider)

// WithDialTimeout bounds client creation.
func WithDialTimeout(timeout time.Duration) ProviderOption {
	return func(p *Provider) {
		if timeout > 0 {
			p.dialTimeout = timeout
		}
	}
}

// WithClientOptions appends options passed to firestore.NewClient.
func WithClientOptions(opts ...option.ClientOption) ProviderOption {
	return func(p *Provider) {
		p.clientOpts = append(p.clientOpts, opts...)
	}
}

// NewProvider resolves the project and emulator host from cfg, falling back to the standard
// Google environment variables.
func NewProvider(cfg config.FirestoreConfig, opts ...ProviderOption) *Provider {
	p := &Provider{
		projectID:    firstNonEmpty(cfg.ProjectID, os.Getenv(envGoogleProjectID)),
		emulatorHost: firstNonEmpty(cfg.EmulatorHost, os.Getenv(envEmulatorHost)),
		dialTimeout:  defaultDialTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Client returns the shared client, dialling it on first use. Concurrent first calls share one
// dial; a caller whose ctx ends stops waiting without aborting the dial for the others.
func (p *Provider) Client(ctx context.Context) (*firestore.Client, error) {
	if ctx == nil {
		return nil, errors.New("firestore: context is required")
	}
	if client, err := p.current(); client != nil || err != nil {
		return client, err
	}

	ch := p.dial.DoChan("client", func() (any, error) {
		if client, err := p.current(); client != nil || err != nil {
			return client, err
		}
		client, err := p.newClient(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed {
			_ = client.Close()
			return nil, ErrProviderClosed
		}
		p.client = client
		return client, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*firestore.Client), nil
	}
}

func (p *Provider) current() (*firestore.Client, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrProviderClosed
	}
	return p.client, nil
}

func (p *Provider) newClient(ctx context.Context) (*firestore.Client, error) {
	if p.projectID == "" {
		return nil, errors.New("firestore: project id is required")
	}
	if p.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.dialTimeout)
		defer cancel()
	}

	opts := append([]option.ClientOption(nil), p.clientOpts...)
	if p.emulatorHost != "" {
		// The SDK only honours the emulator through the environment.
		if os.Getenv(envEmulatorHost) == "" {
			_ = os.Setenv(envEmulatorHost, p.emulatorHost)
		}
		opts = append(opts,
			option.WithoutAuthentication(),
			option.WithEndpoint(p.emulatorHost),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	client, err := firestore.NewClient(ctx, p.projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: create client: %w", err)
	}
	return client, nil
}

// Close releases the client. Later Client calls fail with ErrProviderClosed.
func (p *Provider) Close(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	client := p.client
	p.client = nil
	p.mu.Unlock()

	if client == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	done := make(chan error, 1)
	go func() { done <- client.Close() }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
