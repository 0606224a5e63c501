// Package shipping is the HTTP adapter for the remote shipping-rate and label service.
package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	domain "github.com/couture-field/checkout/internal/domain"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4 << 10
)

// ErrUnavailable reports a transport failure or a 5xx answer from the shipping service.
var ErrUnavailable = errors.New("shipping: service unavailable")

// StatusError is returned when the shipping service rejects a request with a 4xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("shipping: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Logger records shipping adapter events.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Config configures the shipping client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     Logger
}

// Price is the quoted cost of shipping one parcel.
type Price struct {
	TaxExcluded decimal.Decimal `json:"taxExcluded"`
	TaxIncluded decimal.Decimal `json:"taxIncluded"`
}

// LabelRequest describes a parcel to buy a label for.
type LabelRequest struct {
	OrderID     string
	Carrier     string
	Address     domain.Address
	WeightGrams int
	Content     string
}

// Label is a purchased carrier label. PDF holds the printable document.
type Label struct {
	Reference         string          `json:"reference"`
	Cost              decimal.Decimal `json:"cost"`
	PDF               []byte          `json:"label"`
	EstimatedDelivery *time.Time      `json:"estimatedDelivery,omitempty"`
}

// Client calls the shipping service over HTTP.
type Client struct {
	baseURL *url.URL
	apiKey  string
	http    *http.Client
	logger  Logger
}

// NewClient constructs a shipping client with an instrumented transport.
func NewClient(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("shipping: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/") + "/")
	if err != nil {
		return nil, errors.Wrap(err, "shipping: parse base url")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &Client{
		baseURL: base,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		http:    httpClient,
		logger:  logger,
	}, nil
}

// GetPrice quotes the shipping cost of a parcel for the carrier.
func (c *Client) GetPrice(ctx context.Context, carrier string, weightGrams int) (Price, error) {
	if strings.TrimSpace(carrier) == "" {
		return Price{}, errors.New("shipping: carrier is required")
	}
	if weightGrams < 0 {
		return Price{}, errors.Errorf("shipping: invalid weight %d", weightGrams)
	}
	query := url.Values{}
	query.Set("carrier", strings.TrimSpace(carrier))
	query.Set("weight", strconv.Itoa(weightGrams))

	var price Price
	if err := c.do(ctx, http.MethodGet, "v1/prices?"+query.Encode(), nil, "", &price); err != nil {
		return Price{}, errors.Wrap(err, "get price")
	}
	return price, nil
}

// BuyShippingLabel purchases a label. Retries for the same order reuse one idempotency key,
// so the service never bills a second label.
func (c *Client) BuyShippingLabel(ctx context.Context, req LabelRequest) (Label, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return Label{}, errors.New("shipping: order id is required")
	}
	body := labelRequestBody{
		OrderID:     orderID,
		Carrier:     strings.TrimSpace(req.Carrier),
		WeightGrams: req.WeightGrams,
		Content:     strings.TrimSpace(req.Content),
		Address: addressBody{
			Name:       req.Address.Name,
			Company:    req.Address.Company,
			Line1:      req.Address.Line1,
			Line2:      req.Address.Line2,
			PostalCode: req.Address.PostalCode,
			City:       req.Address.City,
			Country:    req.Address.Country,
			Phone:      req.Address.Phone,
		},
	}

	var label Label
	if err := c.do(ctx, http.MethodPost, "v1/labels", body, LabelIdempotencyKey(orderID), &label); err != nil {
		return Label{}, errors.Wrap(err, "buy label")
	}
	c.logger(ctx, "shipping.label.purchased", map[string]any{
		"orderId":   orderID,
		"reference": label.Reference,
		"carrier":   body.Carrier,
	})
	return label, nil
}

var labelNamespace = uuid.MustParse("b1c7a0de-2f34-4a9b-8f1e-6d5c3a2b1e90")

// LabelIdempotencyKey derives the purchase key for an order's label.
func LabelIdempotencyKey(orderID string) string {
	return uuid.NewSHA1(labelNamespace, []byte(strings.TrimSpace(orderID))).String()
}

func (c *Client) do(ctx context.Context, method, path string, payload any, idempotencyKey string, out any) error {
	endpoint, err := c.baseURL.Parse(path)
	if err != nil {
		return errors.Wrap(err, "resolve endpoint")
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(ErrUnavailable, "send request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return errors.Wrapf(ErrUnavailable, "status %d", resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(text))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

type addressBody struct {
	Name       string `json:"name"`
	Company    string `json:"company,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	PostalCode string `json:"postalCode"`
	City       string `json:"city"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

type labelRequestBody struct {
	OrderID     string      `json:"orderId"`
	Carrier     string      `json:"carrier"`
	Address     addressBody `json:"address"`
	WeightGrams int         `json:"weightGrams"`
	Content     string      `json:"content"`
}
