package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Cursor marks the last item of a page ordered by creation time, newest first.
// The document id breaks ties between items created in the same instant.
type Cursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

// IsZero reports whether the cursor points at the first page.
func (c Cursor) IsZero() bool {
	return c.CreatedAt.IsZero() && c.ID == ""
}

// EncodeToken serialises the cursor into an opaque URL-safe page token.
func EncodeToken(cursor Cursor) (string, error) {
	if cursor.IsZero() {
		return "", nil
	}
	cursor.CreatedAt = cursor.CreatedAt.UTC()
	data, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("pagination: encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeToken parses a token produced by EncodeToken. An empty token yields the zero cursor.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var cursor Cursor
	if err := json.Unmarshal(decoded, &cursor); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	if cursor.ID == "" || cursor.CreatedAt.IsZero() {
		return Cursor{}, fmt.Errorf("%w: incomplete cursor", ErrInvalidPageToken)
	}
	return cursor, nil
}
