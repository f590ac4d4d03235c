package domain

import (
	"context"
	"time"
)

// CredentialSource supplies the short-lived bearer credential for
// verification product calls.
type CredentialSource interface {
	// Configured reports whether provider credentials are present.
	Configured() bool

	// Token returns a valid bearer token, logging in when needed.
	Token(ctx context.Context) (string, error)
}

// ProviderClient performs a single verification product call against the
// screening provider.
type ProviderClient interface {
	Call(ctx context.Context, token string, product Product, subject *Applicant) (*ProductResult, error)
}

// RegistryClient queries the public wanted-persons registry by name.
// It needs no credential.
type RegistryClient interface {
	Search(ctx context.Context, fullName string) (*WantedPersonMatch, error)
}

// ProductResult is the raw outcome of one product call. Body is the decoded
// JSON document; its shape varies by provider deployment and is interpreted
// by the extraction layer.
type ProductResult struct {
	Product   Product `json:"product"`
	Status    int     `json:"status"`
	Body      any     `json:"body,omitempty"`
	RequestID string  `json:"requestId,omitempty"`
}

// OK reports whether the call returned a 2xx status.
func (r *ProductResult) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Per-call timeout bounds. Calls outside this range are clamped.
const (
	ProviderTimeoutMin     = 5 * time.Second
	ProviderTimeoutMax     = 15 * time.Second
	ProviderTimeoutDefault = 10 * time.Second
)

// ProviderConfig holds screening provider and registry settings.
// A config with any of BaseURL, Username or Password empty is
// unconfigured: no network call is attempted and screens are synthetic.
type ProviderConfig struct {
	BaseURL  string
	Username string
	Password string

	// ProductPaths overrides the default endpoint path per product.
	ProductPaths map[Product]string

	// RegistryURL is the wanted-persons registry base URL.
	RegistryURL string

	// CallTimeout bounds each product call, clamped to [5s, 15s].
	CallTimeout time.Duration

	// MaxConcurrent bounds the screen fan-out.
	MaxConcurrent int
}

// Configured reports whether the provider credentials are complete.
func (c ProviderConfig) Configured() bool {
	return c.BaseURL != "" && c.Username != "" && c.Password != ""
}

// Timeout returns the per-call timeout clamped to the allowed range.
func (c ProviderConfig) Timeout() time.Duration {
	t := c.CallTimeout
	if t == 0 {
		return ProviderTimeoutDefault
	}
	if t < ProviderTimeoutMin {
		return ProviderTimeoutMin
	}
	if t > ProviderTimeoutMax {
		return ProviderTimeoutMax
	}
	return t
}
