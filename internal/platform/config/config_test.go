package config

import (
	"context"
	"errors"
	"maps"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func requiredEnv() map[string]string {
	return map[string]string{
		"API_FIREBASE_PROJECT_ID": "atelier-dev",
		"API_PSP_SUCCESS_URL":     "https://shop.example.com/checkout/success",
		"API_PSP_CANCEL_URL":      "https://shop.example.com/checkout/cancel",
		"API_SHIPPING_BASE_URL":   "https://shipping.example.com",
	}
}

func isolated(env map[string]string, extra ...Option) []Option {
	return append([]Option{WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithConfigFile("")}, extra...)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), isolated(requiredEnv())...)
	require.NoError(t, err)

	require.Equal(t, ServerConfig{Port: "8080", ReadTimeout: 15 * time.Second, WriteTimeout: 30 * time.Second, IdleTimeout: 2 * time.Minute}, cfg.Server)
	require.Equal(t, "atelier-dev", cfg.Firestore.ProjectID)
	require.Equal(t, PubSubConfig{ProjectID: "atelier-dev", OrderEventsTopic: "order-events", EmailTopic: "email-requests"}, cfg.PubSub)
	require.Equal(t, "EUR", cfg.PSP.Currency)
	require.True(t, cfg.Checkout.UrgentSurcharge.IsZero())
	require.Equal(t, CheckoutConfig{UrgentSurcharge: cfg.Checkout.UrgentSurcharge, TxAttempts: 5, RateLimit: 10, RateWindow: time.Minute}, cfg.Checkout)
	require.Equal(t, ShippingConfig{BaseURL: "https://shipping.example.com", Timeout: 10 * time.Second, DefaultCarrier: "colissimo"}, cfg.Shipping)
	require.Equal(t, 15*time.Minute, cfg.Storage.LabelURLTTL)

	require.Equal(t, "local", cfg.Security.Environment)
	require.Equal(t, "https://www.googleapis.com/oauth2/v3/certs", cfg.Security.OIDC.JWKSURL)
	require.Equal(t, []string{"https://accounts.google.com"}, cfg.Security.OIDC.Issuers)
	require.Empty(t, cfg.Security.OIDC.ServiceAccounts)
	require.Equal(t, "X-Signature", cfg.Security.HMAC.SignatureHeader)

	require.Equal(t, IdempotencyConfig{
		Backend:          IdempotencyBackendFirestore,
		Header:           "Idempotency-Key",
		TTL:              24 * time.Hour,
		CleanupInterval:  time.Hour,
		CleanupBatchSize: 200,
	}, cfg.Idempotency)
}

func TestLoadOverridesAndSecrets(t *testing.T) {
	env := requiredEnv()
	maps.Copy(env, map[string]string{
		"API_SERVER_PORT":                    "9090",
		"API_FIRESTORE_PROJECT_ID":           "atelier-fire",
		"API_PSP_STRIPE_API_KEY":             "secret://stripe/api",
		"API_PSP_STRIPE_WEBHOOK_SECRET":      "sm://stripe/webhook",
		"API_PSP_CURRENCY":                   "usd",
		"API_SHIPPING_API_KEY":               "secret://shipping/key",
		"API_CHECKOUT_URGENT_SURCHARGE":      "15.50",
		"API_SECURITY_ENVIRONMENT":           "PROD",
		"API_SECURITY_OIDC_AUDIENCES":        "prod=https://checkout.example.com, stg=https://stg.example.com, broken",
		"API_SECURITY_OIDC_SERVICE_ACCOUNTS": "scheduler@atelier.iam.gserviceaccount.com, ,tasks@atelier.iam.gserviceaccount.com",
		"API_SECURITY_HMAC_SECRETS":          "Colissimo=secret://hmac/colissimo,chronopost=plain-secret",
		"API_IDEMPOTENCY_BACKEND":            "Redis",
		"API_IDEMPOTENCY_REDIS_ADDR":         "localhost:6379",
	})
	secrets := map[string]string{
		"secret://stripe/api":     "sk_live_1",
		"secret://stripe/webhook": "whsec_1",
		"secret://shipping/key":   "ship_1",
		"secret://hmac/colissimo": "carrier-hmac",
	}
	var asked []string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		asked = append(asked, ref)
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("not found")
	})

	cfg, err := Load(context.Background(), isolated(env, WithSecretResolver(resolver))...)
	require.NoError(t, err)

	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, "atelier-fire", cfg.Firestore.ProjectID)
	require.Equal(t, "atelier-fire", cfg.PubSub.ProjectID)
	require.Equal(t, "sk_live_1", cfg.PSP.StripeAPIKey)
	require.Equal(t, "whsec_1", cfg.PSP.StripeWebhookSecret)
	require.Equal(t, "USD", cfg.PSP.Currency)
	require.Equal(t, "ship_1", cfg.Shipping.APIKey)
	require.Equal(t, "15.5", cfg.Checkout.UrgentSurcharge.String())
	require.Equal(t, "prod", cfg.Security.Environment)
	require.Equal(t, "https://checkout.example.com", cfg.Security.OIDC.Audience)
	require.Len(t, cfg.Security.OIDC.Audiences, 2)
	require.Equal(t, []string{"scheduler@atelier.iam.gserviceaccount.com", "tasks@atelier.iam.gserviceaccount.com"}, cfg.Security.OIDC.ServiceAccounts)
	require.Equal(t, map[string]string{"colissimo": "carrier-hmac", "chronopost": "plain-secret"}, cfg.Security.HMAC.Secrets)
	require.Equal(t, IdempotencyBackendRedis, cfg.Idempotency.Backend)
	require.ElementsMatch(t, []string{"secret://stripe/api", "secret://stripe/webhook", "secret://shipping/key", "secret://hmac/colissimo"}, asked)
}

func TestLoadSourcePrecedence(t *testing.T) {
	yamlPath := writeFile(t, "checkout.yaml", `
server:
  port: 7000
  read_timeout: 5s
psp:
  currency: gbp
  success-url: https://shop.example.com/yaml/ok
checkout:
  rate_limit: 3
security:
  oidc:
    issuers:
      - https://accounts.google.com
      - accounts.google.com
    audiences:
      prod: https://checkout.example.com
      stg: https://stg.example.com
  hmac:
    secrets:
      colissimo: yaml-secret
`)
	dotenvPath := writeFile(t, ".env.test", "API_SERVER_PORT=7070\n"+
		"export API_PSP_CANCEL_URL=https://shop.example.com/dot/cancel\n"+
		"# comment\n"+
		"API_CHECKOUT_RATE_LIMIT=\"4\"\n")

	env := map[string]string{
		"API_FIREBASE_PROJECT_ID":  "atelier-dev",
		"API_SHIPPING_BASE_URL":    "https://shipping.example.com",
		"API_CHECKOUT_RATE_LIMIT":  "5",
		"API_SECURITY_ENVIRONMENT": "stg",
		"API_CONFIG_FILE":          yamlPath,
	}
	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(dotenvPath))
	require.NoError(t, err)

	require.Equal(t, "7070", cfg.Server.Port, ".env beats the YAML file")
	require.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	require.Equal(t, "GBP", cfg.PSP.Currency)
	require.Equal(t, "https://shop.example.com/yaml/ok", cfg.PSP.SuccessURL)
	require.Equal(t, "https://shop.example.com/dot/cancel", cfg.PSP.CancelURL)
	require.Equal(t, 5, cfg.Checkout.RateLimit, "explicit map beats .env")
	require.Equal(t, []string{"https://accounts.google.com", "accounts.google.com"}, cfg.Security.OIDC.Issuers)
	require.Equal(t, "https://stg.example.com", cfg.Security.OIDC.Audience)
	require.Equal(t, "yaml-secret", cfg.Security.HMAC.Secrets["colissimo"])
}

func TestLoadConfigFileErrors(t *testing.T) {
	_, err := Load(context.Background(), isolated(requiredEnv(), WithConfigFile(filepath.Join(t.TempDir(), "absent.yaml")))...)
	require.ErrorContains(t, err, "absent.yaml")

	nested := writeFile(t, "nested.yaml", "security:\n  hmac:\n    secrets:\n      colissimo:\n        key: value\n")
	_, err = Load(context.Background(), isolated(requiredEnv(), WithConfigFile(nested))...)
	require.ErrorContains(t, err, "API_SECURITY_HMAC_SECRETS")
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		fields []string
	}{
		{
			name:   "missing required",
			env:    map[string]string{},
			fields: []string{"Firebase.ProjectID", "Firestore.ProjectID", "PSP.SuccessURL", "PSP.CancelURL", "Shipping.BaseURL"},
		},
		{
			name:   "unparsable values",
			env:    map[string]string{"API_CHECKOUT_URGENT_SURCHARGE": "fast", "API_SHIPPING_TIMEOUT": "soon", "API_CHECKOUT_TX_ATTEMPTS": "many"},
			fields: []string{"API_CHECKOUT_URGENT_SURCHARGE", "API_SHIPPING_TIMEOUT", "API_CHECKOUT_TX_ATTEMPTS"},
		},
		{
			name:   "out of range",
			env:    map[string]string{"API_CHECKOUT_URGENT_SURCHARGE": "-1", "API_CHECKOUT_RATE_LIMIT": "-2", "API_PSP_CURRENCY": "euro"},
			fields: []string{"Checkout.UrgentSurcharge", "Checkout.RateLimit", "PSP.Currency"},
		},
		{
			name:   "redis without address",
			env:    map[string]string{"API_IDEMPOTENCY_BACKEND": "redis"},
			fields: []string{"Idempotency.RedisAddr"},
		},
		{
			name:   "unknown backend",
			env:    map[string]string{"API_IDEMPOTENCY_BACKEND": "memcached"},
			fields: []string{"Idempotency.Backend"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := requiredEnv()
			if len(tc.env) == 0 {
				env = map[string]string{}
			}
			maps.Copy(env, tc.env)

			_, err := Load(context.Background(), isolated(env)...)
			var validation *ValidationError
			require.ErrorAs(t, err, &validation)
			require.ElementsMatch(t, tc.fields, validation.Fields())
		})
	}
}

func TestLoadSecretResolution(t *testing.T) {
	t.Run("no resolver", func(t *testing.T) {
		env := requiredEnv()
		env["API_PSP_STRIPE_API_KEY"] = "secret://missing"

		_, err := Load(context.Background(), isolated(env)...)
		var secretErr *SecretError
		require.ErrorAs(t, err, &secretErr)
		require.Equal(t, "secret://missing", secretErr.Ref)
		require.ErrorIs(t, err, errSecretResolverNotConfigured)
	})

	t.Run("required but empty", func(t *testing.T) {
		_, err := Load(context.Background(), isolated(requiredEnv(), WithRequiredSecrets("PSP.StripeWebhookSecret", " PSP.StripeWebhookSecret ", ""))...)
		var missing *MissingSecretsError
		require.ErrorAs(t, err, &missing)
		require.Equal(t, []string{"PSP.StripeWebhookSecret"}, missing.Names())
		require.Equal(t, []string{redactSecretName("PSP.StripeWebhookSecret")}, missing.RedactedNames())
		require.NotContains(t, err.Error(), "Stripe")
	})

	t.Run("required and present", func(t *testing.T) {
		env := requiredEnv()
		env["API_SECURITY_HMAC_SECRETS"] = "colissimo=inline"
		_, err := Load(context.Background(), isolated(env, WithRequiredSecrets("Security.HMAC.Secrets[colissimo]"))...)
		require.NoError(t, err)
	})

	t.Run("panic", func(t *testing.T) {
		defer func() {
			missing, ok := recover().(*MissingSecretsError)
			require.True(t, ok, "expected *MissingSecretsError panic")
			require.Equal(t, []string{"PSP.StripeAPIKey"}, missing.Names())
		}()
		_, _ = Load(context.Background(), isolated(requiredEnv(), WithRequiredSecrets("PSP.StripeAPIKey"), WithPanicOnMissingSecrets())...)
	})
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dotenvPath := writeFile(t, ".env.test", "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n")
	yamlPath := writeFile(t, "checkout.yaml", "secret:\n  default_project: yaml-project\n")

	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	values, err := EnvironmentValues(
		WithEnvFile(dotenvPath),
		WithConfigFile(yamlPath),
		WithEnvMap(map[string]string{"API_FIREBASE_PROJECT_ID": "override-project"}),
	)
	require.NoError(t, err)
	require.Equal(t, "override-project", values["API_FIREBASE_PROJECT_ID"])
	require.Equal(t, ".dot.local", values["API_SECRET_FALLBACK_FILE"])
	require.Equal(t, "prod=project-prod", values["API_SECRET_PROJECT_IDS"])
	require.Equal(t, "yaml-project", values["API_SECRET_DEFAULT_PROJECT"])
}
