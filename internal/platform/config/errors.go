package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// ValidationError lists fields that are missing or out of range. Values that could not be
// parsed are reported by their environment key.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the offending field names.
func (e *ValidationError) Fields() []string {
	return slices.Clone(e.fields)
}

// SecretError wraps a failed secret:// lookup.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError reports required secrets that resolved to nothing. Error only prints
// hashed names so the message is safe to log.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.names) == 0 {
		return "missing required secrets"
	}
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// Names returns the config field paths, sorted.
func (e *MissingSecretsError) Names() []string {
	if e == nil || len(e.names) == 0 {
		return nil
	}
	out := slices.Clone(e.names)
	slices.Sort(out)
	return out
}

// RedactedNames returns the hashed field paths, sorted.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil || len(e.names) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		out = append(out, redactSecretName(name))
	}
	slices.Sort(out)
	return out
}
