package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize is used when the client omits pageSize.
	DefaultPageSize = 20
	// DefaultMaxPageSize caps pageSize so list queries stay bounded.
	DefaultMaxPageSize = 50

	maxTokenLength = 512
)

// Params carries the paging values extracted from a request.
type Params struct {
	PageSize  int
	PageToken string
}

// Options control defaults and limits for a list endpoint.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid pageSize")
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// FromRequest parses pageSize and pageToken from the query string.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

// Parse validates the paging values. Oversized pages are clamped rather than rejected.
func Parse(values url.Values, opts Options) (Params, error) {
	if values == nil {
		values = url.Values{}
	}

	pageSize, err := parsePageSize(values.Get("pageSize"), opts)
	if err != nil {
		return Params{}, err
	}

	token := strings.TrimSpace(values.Get("pageToken"))
	if token != "" {
		if len(token) > maxTokenLength {
			return Params{}, fmt.Errorf("%w: token too long", ErrInvalidPageToken)
		}
		if _, err := DecodeToken(token); err != nil {
			return Params{}, err
		}
	}

	return Params{PageSize: pageSize, PageToken: token}, nil
}

func parsePageSize(raw string, opts Options) (int, error) {
	maxPageSize := opts.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}
	defaultPageSize := opts.DefaultPageSize
	if defaultPageSize <= 0 {
		defaultPageSize = DefaultPageSize
	}
	if defaultPageSize > maxPageSize {
		defaultPageSize = maxPageSize
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultPageSize, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: must be an integer", ErrInvalidPageSize)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidPageSize)
	}
	if value > maxPageSize {
		value = maxPageSize
	}
	return value, nil
}
