package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxTemplateValueRunes bounds a single email template variable.
const MaxTemplateValueRunes = 2048

// TemplateVars prepares variables for an email template. Keys are trimmed and must consist of
// letters, digits, '_' or '.'; anything else is dropped. Values lose surrounding whitespace and
// control characters other than newlines, and are cut at MaxTemplateValueRunes.
func TemplateVars(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		key = strings.TrimSpace(key)
		if !validTemplateKey(key) {
			continue
		}
		result[key] = cleanTemplateValue(value)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func validTemplateKey(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		if r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}

func cleanTemplateValue(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	value = strings.Map(func(r rune) rune {
		if r == '\n' || !unicode.IsControl(r) {
			return r
		}
		return -1
	}, value)
	if utf8.RuneCountInString(value) <= MaxTemplateValueRunes {
		return value
	}
	return string([]rune(value)[:MaxTemplateValueRunes])
}
