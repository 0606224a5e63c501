package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/couture-field/checkout/internal/di"
	"github.com/couture-field/checkout/internal/handlers"
	"github.com/couture-field/checkout/internal/payments"
	"github.com/couture-field/checkout/internal/platform/auth"
	"github.com/couture-field/checkout/internal/platform/config"
	pfirestore "github.com/couture-field/checkout/internal/platform/firestore"
	"github.com/couture-field/checkout/internal/platform/idempotency"
	"github.com/couture-field/checkout/internal/platform/jobs"
	"github.com/couture-field/checkout/internal/platform/observability"
	"github.com/couture-field/checkout/internal/platform/secrets"
	platformstorage "github.com/couture-field/checkout/internal/platform/storage"
	"github.com/couture-field/checkout/internal/repositories"
	firestoreRepo "github.com/couture-field/checkout/internal/repositories/firestore"
	"github.com/couture-field/checkout/internal/services"
	"github.com/couture-field/checkout/internal/shipping"
)

const (
	idempotencyCollection = "idempotencyKeys"
	trackingSecretName    = "shipping"
	meterName             = "github.com/couture-field/checkout"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)
	meter := otel.Meter(meterName)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)
	var closers []func(context.Context) error

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	closers = append(closers, firestoreProvider.Close)

	unitOfWork, err := pfirestore.NewUnitOfWork(firestoreProvider, pfirestore.WithTxAttempts(cfg.Checkout.TxAttempts))
	if err != nil {
		logger.Fatal("failed to initialise unit of work", zap.Error(err))
	}
	cartRepo, err := firestoreRepo.NewCartRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise cart repository", zap.Error(err))
	}
	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	promotionRepo, err := firestoreRepo.NewPromotionRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise promotion repository", zap.Error(err))
	}
	catalogRepo, err := firestoreRepo.NewCatalogRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise catalog repository", zap.Error(err))
	}
	settingsRepo, err := firestoreRepo.NewSettingsRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise settings repository", zap.Error(err))
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	orderTopic := pubsubClient.Topic(cfg.PubSub.OrderEventsTopic)
	emailTopic := pubsubClient.Topic(cfg.PubSub.EmailTopic)
	closers = append(closers, func(context.Context) error {
		orderTopic.Stop()
		emailTopic.Stop()
		return pubsubClient.Close()
	})
	orderEvents, err := jobs.NewPubSubOrderEventPublisher(orderTopic)
	if err != nil {
		logger.Fatal("failed to initialise order event publisher", zap.Error(err))
	}
	emailScheduler, err := jobs.NewPubSubEmailScheduler(emailTopic, time.Now)
	if err != nil {
		logger.Fatal("failed to initialise email scheduler", zap.Error(err))
	}

	var (
		storageClient *cloudstorage.Client
		labelStore    *platformstorage.LabelStore
		labelSigner   *platformstorage.URLSigner
	)
	if bucket := strings.TrimSpace(cfg.Storage.LabelsBucket); bucket != "" {
		storageClient, err = cloudstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		closers = append(closers, func(context.Context) error { return storageClient.Close() })

		labelStore, err = platformstorage.NewLabelStore(storageClient, bucket, time.Now)
		if err != nil {
			logger.Fatal("failed to initialise label store", zap.Error(err))
		}
		if signerKey := strings.TrimSpace(cfg.Storage.SignerKey); signerKey != "" {
			signer, err := platformstorage.NewServiceAccountSignerFromJSON([]byte(signerKey))
			if err != nil {
				logger.Fatal("failed to parse storage signer key", zap.Error(err))
			}
			labelSigner, err = platformstorage.NewURLSigner(signer, bucket)
			if err != nil {
				logger.Fatal("failed to initialise label url signer", zap.Error(err))
			}
		} else {
			logger.Warn("storage signer key not configured; label responses carry no download url")
		}
	} else {
		logger.Warn("labels bucket not configured; shipping label purchase disabled")
	}

	var redisClient *redis.Client
	if cfg.Idempotency.Backend == config.IdempotencyBackendRedis {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Idempotency.RedisAddr})
		closers = append(closers, func(context.Context) error { return redisClient.Close() })
	}

	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey:        cfg.PSP.StripeAPIKey,
		AccountID:     cfg.PSP.StripeAccountID,
		WebhookSecret: cfg.PSP.StripeWebhookSecret,
		SuccessURL:    cfg.PSP.SuccessURL,
		CancelURL:     cfg.PSP.CancelURL,
		Logger:        observability.ServiceLogger(logger.Named("stripe")),
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe provider", zap.Error(err))
	}
	shippingClient, err := shipping.NewClient(shipping.Config{
		BaseURL: cfg.Shipping.BaseURL,
		APIKey:  cfg.Shipping.APIKey,
		Timeout: cfg.Shipping.Timeout,
		Logger:  observability.ServiceLogger(logger.Named("shipping")),
	})
	if err != nil {
		logger.Fatal("failed to initialise shipping client", zap.Error(err))
	}

	healthRepo, err := newHealthRepository(healthProbes{
		firestore: firestoreClient,
		fetcher:   fetcher,
		pubsub:    orderTopic,
		storage:   storageClient,
		bucket:    cfg.Storage.LabelsBucket,
		redis:     redisClient,
	})
	if err != nil {
		logger.Warn("health: dependency checks unavailable", zap.Error(err))
	}

	adapters := di.Adapters{
		Payments: stripeProvider,
		Shipping: shippingClient,
		Emails:   emailScheduler,
		Events:   orderEvents,
		Meter:    meter,
		Logger:   logger,
		Clock:    time.Now,
		Closers:  closers,
	}
	if labelStore != nil {
		adapters.Labels = labelStore
	}
	container, err := di.NewContainer(cfg, di.Repositories{
		UnitOfWork: unitOfWork,
		Carts:      cartRepo,
		Orders:     orderRepo,
		Promotions: promotionRepo,
		Catalog:    catalogRepo,
		Settings:   settingsRepo,
		Health:     healthRepo,
	}, adapters, buildInfo)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("dependency close error", zap.Error(err))
		}
	}()

	idempotencyStore, err := newIdempotencyStore(cfg, firestoreProvider, redisClient)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 && cfg.Idempotency.Backend != config.IdempotencyBackendRedis {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	authMetrics, err := auth.NewOTelMetrics(meter)
	if err != nil {
		logger.Fatal("failed to initialise auth metrics", zap.Error(err))
	}
	oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg, authMetrics)
	hmacMiddleware := buildHMACMiddleware(logger.Named("auth"), cfg, authMetrics, redisClient)

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithAuthLogger(logger.Named("auth")))

	svc := container.Services
	cartHandlers := handlers.NewCartHandlers(authenticator, svc.Carts)
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, svc.Checkout,
		handlers.WithCheckoutIdempotency(idempotencyMiddleware),
		handlers.WithCheckoutRateLimit(cfg.Checkout.RateLimit, cfg.Checkout.RateWindow, time.Now),
	)
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders)

	var trackingMW []func(http.Handler) http.Handler
	if hmacMiddleware != nil {
		trackingMW = append(trackingMW, hmacMiddleware)
	} else {
		trackingMW = append(trackingMW, rejectUnsigned)
	}
	webhookHandlers := handlers.NewWebhookHandlers(svc.Webhooks, svc.Fulfillment, trackingMW...)

	internalOpts := []handlers.InternalOption{
		handlers.WithIdempotencyJanitor(idempotencyStore, cfg.Idempotency.CleanupBatchSize),
	}
	if labelSigner != nil {
		internalOpts = append(internalOpts, handlers.WithLabelURLSigner(labelSigner, cfg.Storage.LabelURLTTL))
	}
	internalHandlers := handlers.NewInternalHandlers(svc.Fulfillment, internalOpts...)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		// Leave the handler room to write its 504 before the server write deadline.
		handlers.WithRequestTimeout(cfg.Server.WriteTimeout * 9 / 10),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
	}
	if oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	} else {
		opts = append(opts, handlers.WithInternalMiddlewares(rejectUnsigned))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("checkout api listening", zap.String("version", buildInfo.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// idempotencyBackend is a Store that can also purge expired records.
type idempotencyBackend interface {
	idempotency.Store
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

func newIdempotencyStore(cfg config.Config, provider *pfirestore.Provider, client *redis.Client) (idempotencyBackend, error) {
	switch cfg.Idempotency.Backend {
	case config.IdempotencyBackendMemory:
		return idempotency.NewMemoryStore(), nil
	case config.IdempotencyBackendRedis:
		if client == nil {
			return nil, errors.New("redis client not configured")
		}
		return idempotency.NewRedisStore(client)
	default:
		return idempotency.NewFirestoreStore(provider, idempotencyCollection, pfirestore.WithTxAttempts(cfg.Checkout.TxAttempts))
	}
}

// rejectUnsigned guards route groups whose verifier is not configured.
func rejectUnsigned(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"unauthenticated","message":"caller verification not configured"}`, http.StatusUnauthorized)
	})
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

type healthProbes struct {
	firestore *firestore.Client
	fetcher   *secrets.Fetcher
	pubsub    *pubsub.Topic
	storage   *cloudstorage.Client
	bucket    string
	redis     *redis.Client
}

func newHealthRepository(p healthProbes) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 5)
	if p.firestore != nil {
		client := p.firestore
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := client.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if p.fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		fetcher := p.fetcher
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	if p.pubsub != nil {
		topic := p.pubsub
		checks = append(checks, repositories.DependencyCheck{
			Name: "pubsub",
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s not found", topic.ID())
				}
				return nil
			},
		})
	}
	if p.storage != nil && p.bucket != "" {
		bucket := p.storage.Bucket(p.bucket)
		checks = append(checks, repositories.DependencyCheck{
			Name: "storage",
			Check: func(ctx context.Context) error {
				_, err := bucket.Attrs(ctx)
				return err
			},
		})
	}
	if p.redis != nil {
		client := p.redis
		checks = append(checks, repositories.DependencyCheck{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
		})
	}
	return repositories.NewDependencyHealthRepository(checks)
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config, metrics auth.MetricsRecorder) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL)
	validator := auth.NewOIDCValidator(cache,
		auth.WithOIDCLogger(logger),
		auth.WithOIDCMetrics(metrics),
		auth.WithOIDCServiceAccounts(cfg.Security.OIDC.ServiceAccounts...),
	)

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	issuers := cfg.Security.OIDC.Issuers
	if len(issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
	}

	return validator.RequireOIDC(audience, issuers)
}

func buildHMACMiddleware(logger *zap.Logger, cfg config.Config, metrics auth.MetricsRecorder, client *redis.Client) func(http.Handler) http.Handler {
	secretsByName := make(auth.StaticSecrets)
	for key, value := range cfg.Security.HMAC.Secrets {
		if strings.TrimSpace(value) == "" {
			continue
		}
		secretsByName[strings.ToLower(strings.TrimSpace(key))] = value
	}
	if _, ok := secretsByName[trackingSecretName]; !ok {
		logger.Warn("auth: carrier tracking secret not configured; tracking webhooks will be rejected")
		return nil
	}

	var nonces auth.NonceStore = auth.NewInMemoryNonceStore()
	if client != nil {
		nonces = auth.NewRedisNonceStore(client)
	}
	validator := auth.NewHMACValidator(secretsByName, nonces,
		auth.WithHMACLogger(logger),
		auth.WithHMACMetrics(metrics),
		auth.WithHMACHeaders(cfg.Security.HMAC.SignatureHeader, cfg.Security.HMAC.TimestampHeader, cfg.Security.HMAC.NonceHeader),
		auth.WithHMACWindow(cfg.Security.HMAC.ClockSkew, cfg.Security.HMAC.NonceTTL),
	)
	return validator.RequireHMAC(trackingSecretName)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
		secrets.WithMeter(otel.Meter(meterName)),
	}
	if projectMap := parseKeyValueList(lookup("API_SECRET_PROJECT_IDS")); len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if raw := lookup("API_SECRET_CACHE_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parse API_SECRET_CACHE_TTL: %w", err)
		}
		opts = append(opts, secrets.WithCacheTTL(ttl))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

func requiredSecretNames(env map[string]string) []string {
	required := []string{
		"PSP.StripeAPIKey",
		"PSP.StripeWebhookSecret",
		"Shipping.APIKey",
	}
	if env != nil {
		if strings.TrimSpace(env["API_STORAGE_SIGNER_KEY"]) != "" {
			required = append(required, "Storage.SignerKey")
		}
		for _, key := range parseHMACSecretKeys(env["API_SECURITY_HMAC_SECRETS"]) {
			required = append(required, fmt.Sprintf("Security.HMAC.Secrets[%s]", key))
		}
	}
	return uniqueStrings(required)
}

func parseHMACSecretKeys(raw string) []string {
	values := parseKeyValueList(raw)
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func parseKeyValueList(raw string) map[string]string {
	result := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return result
	}
	for _, entry := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}
