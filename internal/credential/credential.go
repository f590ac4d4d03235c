// Package credential obtains and caches the short-lived bearer token the
// screening provider issues at login.
package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/leaseguard/kestrel/internal/domain"
)

var (
	// ErrNotConfigured means provider credentials are absent. No network
	// call is attempted in this state.
	ErrNotConfigured = errors.New("provider not configured")

	// ErrUnavailable classifies every login failure: network trouble, a
	// non-2xx status, or a malformed response.
	ErrUnavailable = errors.New("provider unavailable")
)

// refreshBuffer renews the token this long before its stated expiry so a
// token handed to a slow provider call cannot expire mid-flight.
const refreshBuffer = 5 * time.Minute

// fallbackTokenTTL applies when the provider omits an expiry.
const fallbackTokenTTL = time.Hour

// Cache holds one provider credential and refreshes it on demand.
// Safe for concurrent use; concurrent refreshes collapse into a single
// login request.
type Cache struct {
	cfg    domain.ProviderConfig
	client *http.Client
	group  singleflight.Group

	// now is swapped in tests to drive expiry.
	now func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewCache builds a credential cache for the given provider settings.
func NewCache(cfg domain.ProviderConfig) *Cache {
	return &Cache{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout()},
		now:    time.Now,
	}
}

// Configured implements domain.CredentialSource.
func (c *Cache) Configured() bool {
	return c.cfg.Configured()
}

// Token returns a valid bearer token, reusing the cached one while it
// remains outside the refresh buffer and logging in otherwise.
func (c *Cache) Token(ctx context.Context) (string, error) {
	if !c.cfg.Configured() {
		return "", ErrNotConfigured
	}

	if token, ok := c.cached(); ok {
		return token, nil
	}

	v, err, _ := c.group.Do("login", func() (any, error) {
		// A waiter queued behind the winning login finds a fresh token here.
		if token, ok := c.cached(); ok {
			return token, nil
		}
		return c.login(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token so the next Token call logs in again.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

func (c *Cache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" {
		return "", false
	}
	if !c.now().Before(c.expiresAt.Add(-refreshBuffer)) {
		return "", false
	}
	return c.token, true
}

type loginResponse struct {
	Token            string `json:"token"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
}

func (c *Cache) login(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"username": c.cfg.Username,
		"password": c.cfg.Password,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode login: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build login request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: login status %s", ErrUnavailable, resp.Status)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", fmt.Errorf("%w: decode login: %v", ErrUnavailable, err)
	}
	if lr.Token == "" {
		return "", fmt.Errorf("%w: login returned no token", ErrUnavailable)
	}

	ttl := time.Duration(lr.ExpiresInSeconds) * time.Second
	if ttl <= 0 {
		ttl = fallbackTokenTTL
	}

	c.mu.Lock()
	c.token = lr.Token
	c.expiresAt = c.now().Add(ttl)
	c.mu.Unlock()

	return lr.Token, nil
}
