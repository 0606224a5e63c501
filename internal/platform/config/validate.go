package config

import "strings"

// validate checks required fields and ranges. unparsable lists keys the reader could not parse.
func validate(cfg Config, unparsable []string) error {
	idem := cfg.Idempotency
	rules := []struct {
		field  string
		failed bool
	}{
		{"Server.Port", cfg.Server.Port == ""},
		{"Firebase.ProjectID", cfg.Firebase.ProjectID == ""},
		{"Firestore.ProjectID", cfg.Firestore.ProjectID == ""},
		{"PSP.SuccessURL", cfg.PSP.SuccessURL == ""},
		{"PSP.CancelURL", cfg.PSP.CancelURL == ""},
		{"PSP.Currency", len(cfg.PSP.Currency) != 3},
		{"Storage.LabelURLTTL", cfg.Storage.LabelURLTTL <= 0},
		{"Shipping.BaseURL", cfg.Shipping.BaseURL == ""},
		{"Checkout.UrgentSurcharge", cfg.Checkout.UrgentSurcharge.IsNegative()},
		{"Checkout.TxAttempts", cfg.Checkout.TxAttempts <= 0},
		{"Checkout.RateLimit", cfg.Checkout.RateLimit < 0},
		{"Checkout.RateWindow", cfg.Checkout.RateLimit > 0 && cfg.Checkout.RateWindow <= 0},
		{"Idempotency.Backend", idem.Backend != IdempotencyBackendFirestore && idem.Backend != IdempotencyBackendMemory && idem.Backend != IdempotencyBackendRedis},
		{"Idempotency.RedisAddr", idem.Backend == IdempotencyBackendRedis && idem.RedisAddr == ""},
		{"Idempotency.Header", strings.TrimSpace(idem.Header) == ""},
		{"Idempotency.TTL", idem.TTL <= 0},
		{"Idempotency.CleanupInterval", idem.CleanupInterval <= 0},
		{"Idempotency.CleanupBatchSize", idem.CleanupBatchSize <= 0},
	}

	fields := append([]string(nil), unparsable...)
	for _, rule := range rules {
		if rule.failed {
			fields = append(fields, rule.field)
		}
	}
	if len(fields) > 0 {
		return &ValidationError{fields: fields}
	}
	return nil
}
