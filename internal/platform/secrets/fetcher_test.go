package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const stripeKeyLatest = "projects/checkout-test/secrets/stripe_api_key/versions/latest"

// smStub answers AccessSecretVersion from a map of resource names. A non-nil gate blocks every
// call until it is closed.
type smStub struct {
	mu     sync.Mutex
	values map[string]string
	errs   map[string]error
	calls  map[string]int
	gate   chan struct{}
}

func newSMStub() *smStub {
	return &smStub{values: map[string]string{}, errs: map[string]error{}, calls: map[string]int{}}
}

func (s *smStub) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[req.GetName()]++
	if err := s.errs[req.GetName()]; err != nil {
		return nil, err
	}
	value, ok := s.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "secret not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func (s *smStub) Close() error { return nil }

func (s *smStub) set(name, value string) {
	s.mu.Lock()
	s.values[name] = value
	delete(s.errs, name)
	s.mu.Unlock()
}

func (s *smStub) fail(name string, err error) {
	s.mu.Lock()
	s.errs[name] = err
	s.mu.Unlock()
}

func (s *smStub) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func writeFallback(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

func newTestFetcher(t *testing.T, client secretManagerClient, opts ...Option) *Fetcher {
	t.Helper()
	base := []Option{WithLogger(zap.NewNop()), WithDefaultProject("checkout-test"), WithFallbackFile("")}
	if client != nil {
		base = append(base, WithSecretManagerClient(client))
	} else {
		withoutCredentials(t)
	}
	fetcher, err := NewFetcher(context.Background(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fetcher.Close() })
	return fetcher
}

func TestResolveServesCacheWithinTTL(t *testing.T) {
	sm := newSMStub()
	sm.set(stripeKeyLatest, "sk_test_1")
	clock := &manualClock{now: time.Date(2025, time.May, 2, 9, 0, 0, 0, time.UTC)}
	fetcher := newTestFetcher(t, sm, WithCacheTTL(time.Minute), WithClock(clock.Now))
	ctx := context.Background()

	for range 3 {
		got, err := fetcher.Resolve(ctx, "secret://stripe_api_key")
		require.NoError(t, err)
		require.Equal(t, "sk_test_1", got)
	}
	require.Equal(t, 1, sm.count(stripeKeyLatest))

	sm.set(stripeKeyLatest, "sk_test_2")
	clock.Advance(61 * time.Second)
	got, err := fetcher.ResolveSecret(ctx, "secret://stripe_api_key")
	require.NoError(t, err)
	require.Equal(t, "sk_test_2", got)
	require.Equal(t, 2, sm.count(stripeKeyLatest))
}

func TestInvalidateDropsEveryVersion(t *testing.T) {
	sm := newSMStub()
	pinned := "projects/checkout-test/secrets/stripe_api_key/versions/3"
	sm.set(stripeKeyLatest, "latest-1")
	sm.set(pinned, "pinned-1")
	fetcher := newTestFetcher(t, sm)
	ctx := context.Background()

	_, err := fetcher.Resolve(ctx, "secret://stripe_api_key")
	require.NoError(t, err)
	_, err = fetcher.Resolve(ctx, "secret://stripe_api_key?version=3")
	require.NoError(t, err)

	sm.set(stripeKeyLatest, "latest-2")
	sm.set(pinned, "pinned-2")
	fetcher.Invalidate("secret://stripe_api_key")
	fetcher.Invalidate("sm://not-a-reference")

	got, err := fetcher.Resolve(ctx, "secret://stripe_api_key")
	require.NoError(t, err)
	require.Equal(t, "latest-2", got)
	got, err = fetcher.Resolve(ctx, "secret://stripe_api_key?version=3")
	require.NoError(t, err)
	require.Equal(t, "pinned-2", got)
}

func TestResolvePicksProject(t *testing.T) {
	tests := []struct {
		name     string
		env      string
		ref      string
		resource string
	}{
		{"default project", "local", "secret://carrier_hmac", "projects/checkout-test/secrets/carrier_hmac/versions/latest"},
		{"environment map", "PROD", "secret://carrier_hmac?version=5", "projects/checkout-prod/secrets/carrier_hmac/versions/5"},
		{"explicit project", "prod", "secret://carrier_hmac?project=shared-secrets", "projects/shared-secrets/secrets/carrier_hmac/versions/latest"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sm := newSMStub()
			sm.set(tc.resource, "hmac-"+tc.name)
			fetcher := newTestFetcher(t, sm,
				WithEnvironment(tc.env),
				WithProjectMap(map[string]string{" Prod ": "checkout-prod"}),
			)

			got, err := fetcher.Resolve(context.Background(), tc.ref)
			require.NoError(t, err)
			require.Equal(t, "hmac-"+tc.name, got)
			require.Equal(t, 1, sm.count(tc.resource))
		})
	}
}

func TestResolveFallbackFile(t *testing.T) {
	path := writeFallback(t,
		"# local development values",
		"secret://stripe_api_key=sk_local",
		"sm://shipping_api_key = ship_local",
		"not a secret line",
	)

	tests := []struct {
		name   string
		client secretManagerClient
		ref    string
		want   string
	}{
		{"no client", nil, "secret://stripe_api_key", "sk_local"},
		{"legacy scheme line", nil, "secret://shipping_api_key", "ship_local"},
		{"permission denied", deniedClient(), "secret://stripe_api_key", "sk_local"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fetcher := newTestFetcher(t, tc.client, WithFallbackFile(path))
			got, err := fetcher.Resolve(context.Background(), tc.ref)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func deniedClient() *smStub {
	sm := newSMStub()
	sm.fail(stripeKeyLatest, status.Error(codes.PermissionDenied, "denied"))
	return sm
}

func TestResolveNotFoundDoesNotFallBack(t *testing.T) {
	path := writeFallback(t, "secret://stripe_api_key=sk_local")
	fetcher := newTestFetcher(t, newSMStub(), WithFallbackFile(path))

	_, err := fetcher.Resolve(context.Background(), "secret://stripe_api_key")
	require.Error(t, err)
	require.Equal(t, codes.NotFound, status.Code(errors.Unwrap(err)))
}

func TestResolveServesExpiredValueWhenUnreachable(t *testing.T) {
	sm := newSMStub()
	sm.set(stripeKeyLatest, "sk_cached")
	clock := &manualClock{now: time.Date(2025, time.May, 2, 9, 0, 0, 0, time.UTC)}
	path := writeFallback(t, "secret://stripe_api_key=sk_local")
	fetcher := newTestFetcher(t, sm, WithCacheTTL(time.Minute), WithClock(clock.Now), WithFallbackFile(path))
	ctx := context.Background()

	_, err := fetcher.Resolve(ctx, "secret://stripe_api_key")
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	sm.fail(stripeKeyLatest, status.Error(codes.Unavailable, "connection reset"))

	got, err := fetcher.Resolve(ctx, "secret://stripe_api_key")
	require.NoError(t, err)
	require.Equal(t, "sk_cached", got, "an expired remote value wins over the fallback file")
	require.Equal(t, 2, sm.count(stripeKeyLatest))

	fetcher.Invalidate("secret://stripe_api_key")
	got, err = fetcher.Resolve(ctx, "secret://stripe_api_key")
	require.NoError(t, err)
	require.Equal(t, "sk_local", got)
}

func TestResolveCoalescesConcurrentLookups(t *testing.T) {
	sm := newSMStub()
	sm.set(stripeKeyLatest, "sk_shared")
	sm.gate = make(chan struct{})
	fetcher := newTestFetcher(t, sm)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = fetcher.Resolve(context.Background(), "secret://stripe_api_key")
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(sm.gate)
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		require.Equal(t, "sk_shared", results[i])
	}
	require.Less(t, sm.count(stripeKeyLatest), callers)
}

func TestResolveRejectsMalformedReferences(t *testing.T) {
	fetcher := newTestFetcher(t, newSMStub())
	for _, ref := range []string{"", "   ", "sm://stripe_api_key", "https://example.com/key", "secret://"} {
		_, err := fetcher.Resolve(context.Background(), ref)
		require.Error(t, err, "ref %q", ref)
	}
}

func TestResolveMissingEverywhere(t *testing.T) {
	fetcher := newTestFetcher(t, nil)
	_, err := fetcher.Resolve(context.Background(), "secret://absent")
	require.ErrorContains(t, err, "no value for secret://absent")
}

func withoutCredentials(t *testing.T) {
	t.Helper()
	original := secretManagerClientFactory
	t.Cleanup(func() { secretManagerClientFactory = original })
	secretManagerClientFactory = func(context.Context, ...option.ClientOption) (*secretmanager.Client, error) {
		return nil, errors.New("could not find default credentials")
	}
}

func TestNewFetcherWithoutCredentials(t *testing.T) {
	withoutCredentials(t)

	path := writeFallback(t, "sm://stripe_webhook_secret=whsec_local")
	fetcher, err := NewFetcher(context.Background(), WithFallbackFile(path), WithDefaultProject("checkout-test"))
	require.NoError(t, err)
	require.NoError(t, fetcher.Close())

	got, err := fetcher.Resolve(context.Background(), "secret://stripe_webhook_secret")
	require.NoError(t, err)
	require.Equal(t, "whsec_local", got)
}

func TestIsFallbackError(t *testing.T) {
	require.True(t, isFallbackError(status.Error(codes.Unauthenticated, "")))
	require.True(t, isFallbackError(status.Error(codes.DeadlineExceeded, "")))
	require.False(t, isFallbackError(status.Error(codes.NotFound, "")))
	require.False(t, isFallbackError(errors.New("plain")))
}
