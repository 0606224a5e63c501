package storage

import (
	"fmt"
	"strings"
	"time"
)

const labelTimestampLayout = "20060102T150405Z"

// LabelObjectPath composes the object key of a purchased shipping label. Each purchase gets its
// own object so a retried purchase never overwrites a label already handed to the carrier.
func LabelObjectPath(orderID string, purchasedAt time.Time) (string, error) {
	id, err := validateSegment("orderID", orderID)
	if err != nil {
		return "", err
	}
	if purchasedAt.IsZero() {
		return "", fmt.Errorf("storage: purchase time is required")
	}
	return fmt.Sprintf("orders/%s/labels/%s.pdf", id, purchasedAt.UTC().Format(labelTimestampLayout)), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
