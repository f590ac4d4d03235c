// Package provider implements HTTP clients for the screening provider's
// verification products and for the public wanted-persons registry.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/leaseguard/kestrel/internal/domain"
)

// maxBodyBytes caps how much of a product response is read. Provider
// responses are small; anything larger is truncated rather than buffered.
const maxBodyBytes = 1 << 20

// defaultPaths maps each product to its endpoint path. Deployments with
// different layouts override these through ProviderConfig.ProductPaths.
var defaultPaths = map[domain.Product]string{
	domain.ProductFraud:    "/v1/fraud/score",
	domain.ProductIdentity: "/v1/identity/verify",
	domain.ProductCredit:   "/v1/credit/report",
	domain.ProductCriminal: "/v1/criminal/search",
	domain.ProductEviction: "/v1/eviction/search",
}

// Client calls the screening provider's product endpoints.
type Client struct {
	cfg    domain.ProviderConfig
	client *http.Client
	tracer trace.Tracer
}

// NewClient builds a provider client. The underlying HTTP client carries
// the configured per-call timeout as a backstop; callers still pass a
// per-call context deadline.
func NewClient(cfg domain.ProviderConfig) *Client {
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout()},
		tracer: otel.Tracer("kestrel.provider"),
	}
}

// subject is the payload sent to every product endpoint.
type subject struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
}

// Call implements domain.ProviderClient. The response body is decoded as
// arbitrary JSON for the extraction layer; a body that fails to decode
// leaves ProductResult.Body nil, which reads as "nothing extractable".
func (c *Client) Call(ctx context.Context, token string, product domain.Product, applicant *domain.Applicant) (*domain.ProductResult, error) {
	ctx, span := c.tracer.Start(ctx, "provider.call",
		trace.WithAttributes(attribute.String("product", string(product))))
	defer span.End()

	payload, err := json.Marshal(subject{
		FirstName:   applicant.FirstName,
		LastName:    applicant.LastName,
		Email:       applicant.Email,
		Phone:       applicant.Phone,
		DateOfBirth: applicant.DateOfBirth,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s subject: %w", product, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+c.path(product), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", product, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", product, err)
	}
	defer resp.Body.Close()

	result := &domain.ProductResult{
		Product:   product,
		Status:    resp.StatusCode,
		RequestID: correlationID(resp.Header),
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", product, err)
	}
	if len(raw) > 0 {
		var doc any
		if err := json.Unmarshal(raw, &doc); err == nil {
			result.Body = doc
		}
	}
	return result, nil
}

func (c *Client) path(product domain.Product) string {
	if p, ok := c.cfg.ProductPaths[product]; ok && p != "" {
		return p
	}
	return defaultPaths[product]
}

// correlationID pulls the provider's request ID from response headers.
func correlationID(h http.Header) string {
	if id := h.Get("X-Request-Id"); id != "" {
		return id
	}
	return h.Get("Request-Id")
}
