package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/leaseguard/kestrel/internal/domain"
)

// Registry queries the public wanted-persons registry by name. The
// registry needs no credential, so it stays reachable even when the
// screening provider is not configured.
type Registry struct {
	baseURL string
	client  *http.Client
	tracer  trace.Tracer
}

// NewRegistry builds a registry client for the configured base URL.
func NewRegistry(cfg domain.ProviderConfig) *Registry {
	return &Registry{
		baseURL: cfg.RegistryURL,
		client:  &http.Client{Timeout: cfg.Timeout()},
		tracer:  otel.Tracer("kestrel.registry"),
	}
}

// registryResponse mirrors the registry's list endpoint.
type registryResponse struct {
	Total int             `json:"total"`
	Items []registryEntry `json:"items"`
}

type registryEntry struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Subjects       []string `json:"subjects"`
	WarningMessage string   `json:"warning_message"`
	URL            string   `json:"url"`
}

// Search implements domain.RegistryClient. Any failure is returned to the
// caller, which records it as an ambiguous (not clean) lookup.
func (r *Registry) Search(ctx context.Context, fullName string) (*domain.WantedPersonMatch, error) {
	ctx, span := r.tracer.Start(ctx, "registry.search")
	defer span.End()

	if r.baseURL == "" {
		return nil, fmt.Errorf("registry: no base URL configured")
	}

	endpoint := fmt.Sprintf("%s/list?title=%s", r.baseURL, url.QueryEscape(fullName))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("registry: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry: bad status: %s", resp.Status)
	}

	var rr registryResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("registry: decode: %w", err)
	}

	match := &domain.WantedPersonMatch{
		SearchedName: fullName,
		Matched:      len(rr.Items) > 0,
		MatchCount:   len(rr.Items),
	}
	// A paged response can report more hits than it returns.
	if rr.Total > match.MatchCount {
		match.MatchCount = rr.Total
	}
	for _, item := range rr.Items {
		match.Matches = append(match.Matches, domain.WantedPersonRecord{
			Name:        item.Title,
			Description: item.Description,
			Categories:  item.Subjects,
			Warning:     item.WarningMessage,
			SourceURL:   item.URL,
		})
	}
	return match, nil
}
