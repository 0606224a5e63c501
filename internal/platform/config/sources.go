package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	defaultEnvFile = ".env"
	envPrefix      = "API_"
	// configFileKey names the YAML file when WithConfigFile is not used.
	configFileKey = "API_CONFIG_FILE"
)

// pairKeys hold name=value lists. A YAML mapping under one of them is encoded that way instead of
// being flattened into separate keys.
var pairKeys = map[string]bool{
	"API_SECURITY_OIDC_AUDIENCES": true,
	"API_SECURITY_HMAC_SECRETS":   true,
}

// Option customises Load and EnvironmentValues.
type Option func(*loaderOptions)

type loaderOptions struct {
	configFile            string
	configFileSet         bool
	envFile               string
	envMap                map[string]string
	useSystemEnv          bool
	secret                SecretResolver
	requiredSecrets       []string
	panicOnMissingSecrets bool
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// WithConfigFile reads a YAML file as the lowest-precedence source. Nested keys map onto the
// environment names, so server.read_timeout becomes API_SERVER_READ_TIMEOUT. An empty path
// disables the file even when API_CONFIG_FILE is set.
func WithConfigFile(path string) Option {
	return func(o *loaderOptions) {
		o.configFile = strings.TrimSpace(path)
		o.configFileSet = true
	}
}

// WithEnvFile overrides the .env file path. A missing file is ignored.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects values that take precedence over every other source.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks secrets as mandatory. Names are config field paths such as
// "PSP.StripeAPIKey" or "Security.HMAC.Secrets[shipping]".
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// WithPanicOnMissingSecrets makes Load panic with *MissingSecretsError instead of returning it.
func WithPanicOnMissingSecrets() Option {
	return func(o *loaderOptions) {
		o.panicOnMissingSecrets = true
	}
}

// EnvironmentValues returns the merged key/value view Load works from. main uses it to
// configure the secret fetcher before calling Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	return collect(newLoaderOptions(opts))
}

// collect merges the sources: YAML file < .env < process environment < explicit map.
func collect(options loaderOptions) (map[string]string, error) {
	dotenv, err := readDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	var system map[string]string
	if options.useSystemEnv {
		system = systemEnv()
	}

	path := options.configFile
	if !options.configFileSet {
		for _, layer := range []map[string]string{options.envMap, system, dotenv} {
			if v := strings.TrimSpace(layer[configFileKey]); v != "" {
				path = v
				break
			}
		}
	}
	file, err := readYAML(path)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(file)+len(dotenv)+len(system)+len(options.envMap))
	for _, layer := range []map[string]string{file, dotenv, system, options.envMap} {
		maps.Copy(values, layer)
	}
	return values, nil
}

func systemEnv() map[string]string {
	out := make(map[string]string)
	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if ok && strings.TrimSpace(key) != "" {
			out[key] = value
		}
	}
	return out
}

func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return values, nil
}

// readYAML flattens a YAML document into API_* keys. Unlike the .env file, a named file that
// does not exist is an error.
func readYAML(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	out := make(map[string]string)
	if err := flatten(out, strings.TrimSuffix(envPrefix, "_"), doc); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return out, nil
}

func flatten(out map[string]string, prefix string, node map[string]any) error {
	for name, value := range node {
		key := prefix + "_" + strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "-", "_"))
		switch v := value.(type) {
		case map[string]any:
			if pairKeys[key] {
				encoded, err := encodePairs(v)
				if err != nil {
					return fmt.Errorf("%s: %w", key, err)
				}
				out[key] = encoded
				continue
			}
			if err := flatten(out, key, v); err != nil {
				return err
			}
		case []any:
			items := make([]string, 0, len(v))
			for _, item := range v {
				items = append(items, scalar(item))
			}
			out[key] = strings.Join(items, ",")
		case nil:
			out[key] = ""
		default:
			out[key] = scalar(v)
		}
	}
	return nil
}

func encodePairs(m map[string]any) (string, error) {
	names := slices.Sorted(maps.Keys(m))
	entries := make([]string, 0, len(names))
	for _, name := range names {
		if _, nested := m[name].(map[string]any); nested {
			return "", fmt.Errorf("nested value under %q", name)
		}
		entries = append(entries, name+"="+scalar(m[name]))
	}
	return strings.Join(entries, ","), nil
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}

// reader turns merged string values into typed fields. Unparsable values keep the default and
// are reported through invalid.
type reader struct {
	values  map[string]string
	invalid []string
}

func (r *reader) raw(key string) (string, bool) {
	value := strings.TrimSpace(r.values[key])
	return value, value != ""
}

func (r *reader) str(key, fallback string) string {
	if value, ok := r.raw(key); ok {
		return value
	}
	return fallback
}

func (r *reader) duration(key string, fallback time.Duration) time.Duration {
	value, ok := r.raw(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.invalid = append(r.invalid, key)
		return fallback
	}
	return d
}

func (r *reader) integer(key string, fallback int) int {
	value, ok := r.raw(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		r.invalid = append(r.invalid, key)
		return fallback
	}
	return n
}

func (r *reader) amount(key string, fallback decimal.Decimal) decimal.Decimal {
	value, ok := r.raw(key)
	if !ok {
		return fallback
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		r.invalid = append(r.invalid, key)
		return fallback
	}
	return d
}

func (r *reader) list(key string) []string {
	out := []string{}
	value, _ := r.raw(key)
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// pairs reads "name=value,name=value". Names are lower-cased; entries missing either side are
// dropped.
func (r *reader) pairs(key string) map[string]string {
	out := make(map[string]string)
	for _, entry := range r.list(key) {
		name, value, ok := strings.Cut(entry, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if ok && name != "" && value != "" {
			out[name] = value
		}
	}
	return out
}
