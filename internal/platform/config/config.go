package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Idempotency store backends.
const (
	IdempotencyBackendFirestore = "firestore"
	IdempotencyBackendMemory    = "memory"
	IdempotencyBackendRedis     = "redis"
)

const (
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	defaultCurrency         = "EUR"
	defaultShippingTimeout  = 10 * time.Second
	defaultShippingCarrier  = "colissimo"
	defaultLabelURLTTL      = 15 * time.Minute
	defaultOrderEventsTopic = "order-events"
	defaultEmailTopic       = "email-requests"

	defaultCheckoutTxAttempts = 5
	defaultCheckoutRateLimit  = 10
	defaultCheckoutRateWindow = time.Minute

	defaultSecurityEnvironment = "local"
	defaultOIDCJWKSURL         = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer      = "https://accounts.google.com"
	defaultHMACSignatureHeader = "X-Signature"
	defaultHMACTimestampHeader = "X-Signature-Timestamp"
	defaultHMACNonceHeader     = "X-Signature-Nonce"
	defaultHMACClockSkew       = 5 * time.Minute
	defaultHMACNonceTTL        = 5 * time.Minute

	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Storage     StorageConfig
	PSP         PSPConfig
	Shipping    ShippingConfig
	PubSub      PubSubConfig
	Checkout    CheckoutConfig
	Security    SecurityConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig defaults ProjectID to the Firebase project.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig locates shipping labels. SignerKey holds a service account JSON key; without it
// label responses carry no download URL.
type StorageConfig struct {
	LabelsBucket string
	SignerKey    string
	LabelURLTTL  time.Duration
}

// PSPConfig collects Stripe credentials and checkout redirect targets.
type PSPConfig struct {
	StripeAPIKey        string
	StripeWebhookSecret string
	StripeAccountID     string
	SuccessURL          string
	CancelURL           string
	Currency            string
}

// ShippingConfig configures the remote shipping-rate and label service.
type ShippingConfig struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	DefaultCarrier string
}

type PubSubConfig struct {
	ProjectID        string
	OrderEventsTopic string
	EmailTopic       string
}

// CheckoutConfig holds pricing and transaction knobs for the checkout flows.
type CheckoutConfig struct {
	UrgentSurcharge decimal.Decimal
	TxAttempts      int

	// RateLimit caps checkout attempts per customer within RateWindow. Zero disables the limit.
	RateLimit  int
	RateWindow time.Duration
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
	HMAC        HMACConfig
}

// OIDCConfig controls Google-signed token verification.
// ServiceAccounts, when set, limits /internal callers to those identities.
type OIDCConfig struct {
	JWKSURL         string
	Audience        string
	Audiences       map[string]string
	Issuers         []string
	ServiceAccounts []string
}

// HMACConfig captures webhook signing expectations for carrier callbacks.
type HMACConfig struct {
	Secrets         map[string]string
	SignatureHeader string
	TimestampHeader string
	NonceHeader     string
	ClockSkew       time.Duration
	NonceTTL        time.Duration
}

type IdempotencyConfig struct {
	Backend          string
	RedisAddr        string
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// Load assembles the configuration from defaults, an optional YAML file, a .env file, the
// process environment and an explicit map, in increasing precedence. secret:// values are
// resolved through the configured SecretResolver.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	values, err := collect(options)
	if err != nil {
		return Config{}, err
	}

	r := &reader{values: values}
	cfg := Config{
		Server: ServerConfig{
			Port:         r.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:  r.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: r.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  r.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       r.str("API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: r.str("API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    r.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: r.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			LabelsBucket: r.str("API_STORAGE_LABELS_BUCKET", ""),
			SignerKey:    r.str("API_STORAGE_SIGNER_KEY", ""),
			LabelURLTTL:  r.duration("API_STORAGE_LABEL_URL_TTL", defaultLabelURLTTL),
		},
		PSP: PSPConfig{
			StripeAPIKey:        r.str("API_PSP_STRIPE_API_KEY", ""),
			StripeWebhookSecret: r.str("API_PSP_STRIPE_WEBHOOK_SECRET", ""),
			StripeAccountID:     r.str("API_PSP_STRIPE_ACCOUNT_ID", ""),
			SuccessURL:          r.str("API_PSP_SUCCESS_URL", ""),
			CancelURL:           r.str("API_PSP_CANCEL_URL", ""),
			Currency:            strings.ToUpper(r.str("API_PSP_CURRENCY", defaultCurrency)),
		},
		Shipping: ShippingConfig{
			BaseURL:        r.str("API_SHIPPING_BASE_URL", ""),
			APIKey:         r.str("API_SHIPPING_API_KEY", ""),
			Timeout:        r.duration("API_SHIPPING_TIMEOUT", defaultShippingTimeout),
			DefaultCarrier: r.str("API_SHIPPING_DEFAULT_CARRIER", defaultShippingCarrier),
		},
		PubSub: PubSubConfig{
			ProjectID:        r.str("API_PUBSUB_PROJECT_ID", ""),
			OrderEventsTopic: r.str("API_PUBSUB_ORDER_EVENTS_TOPIC", defaultOrderEventsTopic),
			EmailTopic:       r.str("API_PUBSUB_EMAIL_TOPIC", defaultEmailTopic),
		},
		Checkout: CheckoutConfig{
			UrgentSurcharge: r.amount("API_CHECKOUT_URGENT_SURCHARGE", decimal.Zero),
			TxAttempts:      r.integer("API_CHECKOUT_TX_ATTEMPTS", defaultCheckoutTxAttempts),
			RateLimit:       r.integer("API_CHECKOUT_RATE_LIMIT", defaultCheckoutRateLimit),
			RateWindow:      r.duration("API_CHECKOUT_RATE_WINDOW", defaultCheckoutRateWindow),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(r.str("API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:         r.str("API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience:        r.str("API_SECURITY_OIDC_AUDIENCE", ""),
				Audiences:       r.pairs("API_SECURITY_OIDC_AUDIENCES"),
				Issuers:         r.list("API_SECURITY_OIDC_ISSUERS"),
				ServiceAccounts: r.list("API_SECURITY_OIDC_SERVICE_ACCOUNTS"),
			},
			HMAC: HMACConfig{
				Secrets:         r.pairs("API_SECURITY_HMAC_SECRETS"),
				SignatureHeader: r.str("API_SECURITY_HMAC_HEADER_SIGNATURE", defaultHMACSignatureHeader),
				TimestampHeader: r.str("API_SECURITY_HMAC_HEADER_TIMESTAMP", defaultHMACTimestampHeader),
				NonceHeader:     r.str("API_SECURITY_HMAC_HEADER_NONCE", defaultHMACNonceHeader),
				ClockSkew:       r.duration("API_SECURITY_HMAC_CLOCK_SKEW", defaultHMACClockSkew),
				NonceTTL:        r.duration("API_SECURITY_HMAC_NONCE_TTL", defaultHMACNonceTTL),
			},
		},
		Idempotency: IdempotencyConfig{
			Backend:          strings.ToLower(r.str("API_IDEMPOTENCY_BACKEND", IdempotencyBackendFirestore)),
			RedisAddr:        r.str("API_IDEMPOTENCY_REDIS_ADDR", ""),
			Header:           r.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              r.duration("API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  r.duration("API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: r.integer("API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
	}
	applyDerivedDefaults(&cfg)

	resolved, err := resolveSecrets(ctx, &cfg, options.secret)
	if err != nil {
		return Config{}, err
	}
	if err := validate(cfg, r.invalid); err != nil {
		return Config{}, err
	}
	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}
	return cfg, nil
}

func applyDerivedDefaults(cfg *Config) {
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultSecurityIssuer}
	}
	if cfg.Security.OIDC.Audience == "" {
		cfg.Security.OIDC.Audience = cfg.Security.OIDC.Audiences[cfg.Security.Environment]
	}
}
