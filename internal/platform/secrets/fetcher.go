package secrets

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	defaultCacheTTL     = 10 * time.Minute
	metricNamespace     = "github.com/couture-field/checkout/internal/platform/secrets"
)

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret:// references (Stripe keys, carrier HMAC secrets, shipping API keys)
// against Secret Manager. Values are cached for a bounded time. When Secret Manager refuses or
// cannot be reached, an expired cached value is served if one exists; otherwise the value is
// read from a local fallback file so development works offline.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool
	logger     *zap.Logger
	now        func() time.Time

	env        string
	defaultPrj string
	projectMap map[string]string
	ttl        time.Duration

	fallbackPath string
	fallbackOnce sync.Once
	fallbackVals map[string]string
	fallbackErr  error

	mu     sync.RWMutex
	cache  map[string]cacheEntry
	remote singleflight.Group

	latency metric.Float64Histogram
	lookups metric.Int64Counter
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

type fetcherConfig struct {
	logger       *zap.Logger
	env          string
	defaultProj  string
	projectMap   map[string]string
	fallbackPath string
	ttl          time.Duration
	meter        metric.Meter
	client       secretManagerClient
	clientOpts   []option.ClientOption
	now          func() time.Time
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) {
		cfg.logger = logger
	}
}

// WithEnvironment selects the key used to pick a project from the project map.
func WithEnvironment(env string) Option {
	return func(cfg *fetcherConfig) {
		cfg.env = strings.ToLower(strings.TrimSpace(env))
	}
}

// WithDefaultProject configures the project used when the project map has no entry for the environment.
func WithDefaultProject(projectID string) Option {
	return func(cfg *fetcherConfig) {
		cfg.defaultProj = strings.TrimSpace(projectID)
	}
}

// WithProjectMap supplies environment-specific project IDs.
func WithProjectMap(m map[string]string) Option {
	return func(cfg *fetcherConfig) {
		cfg.projectMap = make(map[string]string, len(m))
		for env, project := range m {
			cfg.projectMap[strings.ToLower(strings.TrimSpace(env))] = strings.TrimSpace(project)
		}
	}
}

// WithFallbackFile overrides the path to the local fallback secrets file.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) {
		cfg.fallbackPath = strings.TrimSpace(path)
	}
}

// WithCacheTTL bounds how long a resolved value is served without asking Secret Manager again.
func WithCacheTTL(ttl time.Duration) Option {
	return func(cfg *fetcherConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithMeter injects a custom OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(cfg *fetcherConfig) {
		cfg.meter = m
	}
}

// WithSecretManagerClient injects a preconfigured Secret Manager client.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) {
		cfg.client = client
	}
}

// WithClientOptions forwards Cloud client options when constructing the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) {
		cfg.clientOpts = append(cfg.clientOpts, opts...)
	}
}

// WithClock injects a time source for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(cfg *fetcherConfig) {
		cfg.now = now
	}
}

// NewFetcher builds a Fetcher. A missing Secret Manager client is not an error: the fetcher then
// serves the fallback file only.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{
		logger:       zap.NewNop(),
		env:          "local",
		fallbackPath: defaultFallbackPath,
		ttl:          defaultCacheTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	meter := cfg.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}

	latency, err := meter.Float64Histogram("secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for secret resolution"))
	if err != nil {
		return nil, fmt.Errorf("secrets: register latency metric: %w", err)
	}
	lookups, err := meter.Int64Counter("secrets.fetch.lookups",
		metric.WithDescription("Secret resolutions by source (cache, remote, stale, fallback, error)"))
	if err != nil {
		return nil, fmt.Errorf("secrets: register lookup metric: %w", err)
	}

	f := &Fetcher{
		logger:       cfg.logger,
		now:          cfg.now,
		env:          cfg.env,
		defaultPrj:   cfg.defaultProj,
		projectMap:   cfg.projectMap,
		ttl:          cfg.ttl,
		fallbackPath: cfg.fallbackPath,
		cache:        make(map[string]cacheEntry),
		latency:      latency,
		lookups:      lookups,
	}

	if cfg.client != nil {
		f.client = cfg.client
		return f, nil
	}
	client, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
	if err != nil {
		cfg.logger.Warn("secrets: secret manager client unavailable; serving fallback file only", zap.Error(err))
		return f, nil
	}
	f.client = client
	f.ownsClient = true
	return f, nil
}

// Close releases the Secret Manager client when the fetcher created it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// ResolveSecret satisfies config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f.Resolve(ctx, ref)
}

// Resolve returns the value behind a secret://name[?version=N&project=P] reference.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	start := f.now()
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}

	value, fresh, found := f.cached(parsed.key())
	if fresh {
		f.observe(ctx, start, "cache", parsed)
		return value, nil
	}

	if projectID := f.projectID(parsed); projectID != "" && f.client != nil {
		remote, fetchErr, _ := f.remote.Do(parsed.key(), func() (any, error) {
			return f.fetchRemote(ctx, projectID, parsed)
		})
		if fetchErr == nil {
			value = remote.(string)
			f.store(parsed.key(), value)
			f.observe(ctx, start, "remote", parsed)
			return value, nil
		}
		if !isFallbackError(fetchErr) {
			f.observe(ctx, start, "error", parsed)
			return "", fmt.Errorf("secrets: fetch failed for %s: %w", parsed.canonical, fetchErr)
		}
		if found {
			f.logger.Warn("secrets: secret manager unreachable; serving expired value",
				zap.String("secret", maskReference(parsed.canonical)), zap.Error(fetchErr))
			f.observe(ctx, start, "stale", parsed)
			return value, nil
		}
		f.logger.Debug("secrets: falling back to local secrets", zap.String("secret", maskReference(parsed.canonical)), zap.Error(fetchErr))
	}

	value, ok := f.lookupFallback(parsed)
	if !ok {
		f.observe(ctx, start, "error", parsed)
		return "", fmt.Errorf("secrets: no value for %s", parsed.canonical)
	}
	f.store(parsed.key(), value)
	f.observe(ctx, start, "fallback", parsed)
	return value, nil
}

// Invalidate drops every cached version of the reference, e.g. after a key rotation.
func (f *Fetcher) Invalidate(ref string) {
	parsed, err := parseReference(ref)
	if err != nil {
		return
	}
	prefix := parsed.canonical + "#"
	f.mu.Lock()
	for key := range f.cache {
		if strings.HasPrefix(key, prefix) {
			delete(f.cache, key)
		}
	}
	f.mu.Unlock()
}

// cached returns the stored value, whether it is still fresh, and whether one exists at all.
func (f *Fetcher) cached(key string) (value string, fresh, found bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	entry, ok := f.cache[key]
	if !ok {
		return "", false, false
	}
	return entry.value, f.now().Before(entry.expiresAt), true
}

func (f *Fetcher) store(key, value string) {
	f.mu.Lock()
	f.cache[key] = cacheEntry{value: value, expiresAt: f.now().Add(f.ttl)}
	f.mu.Unlock()
}

func (f *Fetcher) fetchRemote(ctx context.Context, projectID string, ref reference) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", projectID, ref.secret, ref.versionOrLatest())
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.GetPayload() == nil {
		return "", fmt.Errorf("secrets: empty payload for %s", name)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) projectID(ref reference) string {
	if ref.project != "" {
		return ref.project
	}
	if id := f.projectMap[f.env]; id != "" {
		return id
	}
	return f.defaultPrj
}

func (f *Fetcher) lookupFallback(ref reference) (string, bool) {
	f.fallbackOnce.Do(f.loadFallback)
	if f.fallbackErr != nil {
		f.logger.Warn("secrets: fallback file unreadable", zap.Error(f.fallbackErr))
		return "", false
	}
	if value, ok := f.fallbackVals[ref.key()]; ok {
		return value, true
	}
	value, ok := f.fallbackVals[ref.canonical]
	return value, ok
}

// loadFallback reads "secret://name=value" lines. The legacy sm:// scheme is accepted.
func (f *Fetcher) loadFallback() {
	f.fallbackVals = map[string]string{}
	if f.fallbackPath == "" {
		return
	}
	file, err := os.Open(f.fallbackPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.fallbackErr = fmt.Errorf("secrets: open fallback file: %w", err)
		}
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if rest, found := strings.CutPrefix(key, "sm://"); found {
			key = "secret://" + rest
		}
		parsed, err := parseReference(key)
		if err != nil {
			continue
		}
		value = strings.TrimSpace(value)
		f.fallbackVals[parsed.canonical] = value
		f.fallbackVals[parsed.key()] = value
	}
	if err := scanner.Err(); err != nil {
		f.fallbackErr = fmt.Errorf("secrets: read fallback file: %w", err)
	}
}

func (f *Fetcher) observe(ctx context.Context, start time.Time, source string, ref reference) {
	attrs := metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("secret", maskReference(ref.canonical)),
	)
	f.lookups.Add(ctx, 1, attrs)
	f.latency.Record(ctx, float64(f.now().Sub(start))/float64(time.Millisecond), metric.WithAttributes(attribute.String("source", source)))
}

type reference struct {
	canonical string
	secret    string
	version   string
	project   string
}

func (r reference) versionOrLatest() string {
	if r.version == "" {
		return "latest"
	}
	return r.version
}

func (r reference) key() string {
	return r.canonical + "#" + r.versionOrLatest()
}

func parseReference(ref string) (reference, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return reference{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	secret := strings.Trim(u.Host+u.Path, "/")
	if secret == "" {
		return reference{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}
	query := u.Query()
	return reference{
		canonical: "secret://" + secret,
		secret:    secret,
		version:   strings.TrimSpace(query.Get("version")),
		project:   strings.TrimSpace(query.Get("project")),
	}, nil
}

func maskReference(ref string) string {
	h := sha256.Sum256([]byte(ref))
	return hex.EncodeToString(h[:8])
}

// isFallbackError reports whether Secret Manager is unreachable or refuses us, as opposed to
// the secret not existing.
func isFallbackError(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
