package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// SecretResolver resolves secret:// references, typically against Secret Manager.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts a function to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// resolveSecrets replaces every secret-bearing field in place and returns the resolved values
// keyed by field path, for the required-secrets check.
func resolveSecrets(ctx context.Context, cfg *Config, resolver SecretResolver) (map[string]string, error) {
	resolved := make(map[string]string)
	resolve := func(name string, target *string) error {
		value, err := resolveSecret(ctx, *target, resolver)
		if err != nil {
			return err
		}
		*target = value
		resolved[name] = strings.TrimSpace(value)
		return nil
	}

	fields := []struct {
		name   string
		target *string
	}{
		{"PSP.StripeAPIKey", &cfg.PSP.StripeAPIKey},
		{"PSP.StripeWebhookSecret", &cfg.PSP.StripeWebhookSecret},
		{"Shipping.APIKey", &cfg.Shipping.APIKey},
		{"Storage.SignerKey", &cfg.Storage.SignerKey},
	}
	for _, f := range fields {
		if err := resolve(f.name, f.target); err != nil {
			return nil, err
		}
	}
	for _, carrier := range slices.Sorted(maps.Keys(cfg.Security.HMAC.Secrets)) {
		value := cfg.Security.HMAC.Secrets[carrier]
		if err := resolve(fmt.Sprintf("Security.HMAC.Secrets[%s]", carrier), &value); err != nil {
			return nil, err
		}
		cfg.Security.HMAC.Secrets[carrier] = value
	}
	return resolved, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	ref, ok := secretReference(value)
	if !ok {
		return value, nil
	}
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

// secretReference normalises secret:// and the legacy sm:// scheme to secret://.
func secretReference(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(value, "sm://"); ok {
		return "secret://" + rest, true
	}
	return value, strings.HasPrefix(value, "secret://")
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var names []string
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" || slices.Contains(names, name) || resolved[name] != "" {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil
	}
	return &MissingSecretsError{names: names}
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}
