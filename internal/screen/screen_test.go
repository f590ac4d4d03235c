package screen

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/leaseguard/kestrel/internal/domain"
)

// stubCreds implements domain.CredentialSource.
type stubCreds struct {
	configured bool
	token      string
	err        error
	calls      atomic.Int64
}

func (s *stubCreds) Configured() bool { return s.configured }

func (s *stubCreds) Token(ctx context.Context) (string, error) {
	s.calls.Add(1)
	if s.err != nil {
		return "", s.err
	}
	return s.token, nil
}

// stubProvider implements domain.ProviderClient with canned responses.
type stubProvider struct {
	mu        sync.Mutex
	responses map[domain.Product]*domain.ProductResult
	errs      map[domain.Product]error
	calls     atomic.Int64
	tokens    []string
}

func (s *stubProvider) Call(ctx context.Context, token string, product domain.Product, applicant *domain.Applicant) (*domain.ProductResult, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.tokens = append(s.tokens, token)
	s.mu.Unlock()
	if err, ok := s.errs[product]; ok {
		return nil, err
	}
	if res, ok := s.responses[product]; ok {
		return res, nil
	}
	return &domain.ProductResult{Product: product, Status: 200}, nil
}

// stubRegistry implements domain.RegistryClient.
type stubRegistry struct {
	match *domain.WantedPersonMatch
	err   error
	calls atomic.Int64
}

func (s *stubRegistry) Search(ctx context.Context, fullName string) (*domain.WantedPersonMatch, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	if s.match != nil {
		return s.match, nil
	}
	return &domain.WantedPersonMatch{SearchedName: fullName}, nil
}

// stubBus captures published events.
type stubBus struct {
	mu     sync.Mutex
	events []busEvent
}

type busEvent struct {
	tenantID string
	topic    string
	payload  []byte
}

func (b *stubBus) Publish(ctx context.Context, tenantID, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, busEvent{tenantID, topic, payload})
	return nil
}

func (b *stubBus) Subscribe(ctx context.Context, tenantID, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	return nil, errors.New("not supported")
}

func (b *stubBus) Request(ctx context.Context, tenantID, topic string, payload []byte) ([]byte, error) {
	return nil, errors.New("not supported")
}

func (b *stubBus) Ping(ctx context.Context) error { return nil }
func (b *stubBus) Close() error                   { return nil }

func (b *stubBus) topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, e := range b.events {
		out[i] = e.topic
	}
	return out
}

func (b *stubBus) count(topic string) int {
	n := 0
	for _, t := range b.topics() {
		if t == topic {
			n++
		}
	}
	return n
}

func jsonBody(t *testing.T, raw string) any {
	t.Helper()
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	return doc
}

func newTestService(creds *stubCreds, client *stubProvider, registry *stubRegistry, bus *stubBus) *Service {
	cfg := domain.DefaultConfig()
	var eventBus domain.EventBus
	if bus != nil {
		eventBus = bus
	}
	return NewService(cfg, creds, client, registry, eventBus, nil)
}

func screeningApplicant() *domain.Applicant {
	return &domain.Applicant{
		ID:        "applicant-1",
		FirstName: "Dana",
		LastName:  "Reyes",
	}
}

func TestScreen_NotConfiguredGoesSynthetic(t *testing.T) {
	creds := &stubCreds{configured: false}
	client := &stubProvider{}
	// A registry that would match: a fabricated report must never pick
	// up a real wanted-person hit.
	registry := &stubRegistry{
		match: &domain.WantedPersonMatch{Matched: true, MatchCount: 1, SearchedName: "Dana Reyes"},
	}
	svc := newTestService(creds, client, registry, nil)

	report, err := svc.Screen(context.Background(), "tenant-a", screeningApplicant())
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}

	if !report.Synthetic {
		t.Error("Expected a synthetic report")
	}
	if client.calls.Load() != 0 {
		t.Errorf("Expected no product calls, got %d", client.calls.Load())
	}
	if creds.calls.Load() != 0 {
		t.Errorf("Expected no login attempt, got %d", creds.calls.Load())
	}
	if registry.calls.Load() != 0 {
		t.Errorf("Expected no registry lookup, got %d", registry.calls.Load())
	}
	if report.WantedPersonMatch.Matched {
		t.Error("A synthetic report must never carry a wanted match")
	}
	if report.WantedPersonMatch.SearchedName != "Dana Reyes" {
		t.Errorf("Expected the applicant name recorded, got %q", report.WantedPersonMatch.SearchedName)
	}

	found := false
	for _, s := range syntheticCreditScores {
		if report.CreditScore == s {
			found = true
		}
	}
	if !found {
		t.Errorf("Synthetic credit score %d not from the expected set", report.CreditScore)
	}
	if report.FraudRiskScore < 0 || report.FraudRiskScore >= 3 {
		t.Errorf("Synthetic fraud score %v out of range", report.FraudRiskScore)
	}
}

func TestScreen_LoginFailureGoesSynthetic(t *testing.T) {
	creds := &stubCreds{configured: true, err: errors.New("provider unavailable: login status 503")}
	client := &stubProvider{}
	registry := &stubRegistry{}
	svc := newTestService(creds, client, registry, nil)

	report, err := svc.Screen(context.Background(), "tenant-a", screeningApplicant())
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}
	if !report.Synthetic {
		t.Error("Expected a synthetic report after login failure")
	}
	if client.calls.Load() != 0 {
		t.Errorf("Expected no product calls after login failure, got %d", client.calls.Load())
	}
	if registry.calls.Load() != 0 {
		t.Errorf("Expected no registry lookup after login failure, got %d", registry.calls.Load())
	}
	if report.WantedPersonMatch.Matched {
		t.Error("A synthetic report must never carry a wanted match")
	}
}

func TestScreen_LiveExtraction(t *testing.T) {
	creds := &stubCreds{configured: true, token: "tok-1"}
	client := &stubProvider{
		responses: map[domain.Product]*domain.ProductResult{
			domain.ProductFraud: {
				Product: domain.ProductFraud, Status: 200, RequestID: "rq-f",
				Body: jsonBody(t, `{"result": {"riskScore": 1.5}}`),
			},
			domain.ProductIdentity: {
				Product: domain.ProductIdentity, Status: 200, RequestID: "rq-i",
			},
			domain.ProductCredit: {
				Product: domain.ProductCredit, Status: 200, RequestID: "rq-c",
				Body: jsonBody(t, `{"report": {"creditScore": "712", "bankruptcies": [{"year": 2019}]}}`),
			},
			domain.ProductCriminal: {
				Product: domain.ProductCriminal, Status: 200, RequestID: "rq-cr",
				Body: jsonBody(t, `{"offenses": [{}, {}]}`),
			},
			domain.ProductEviction: {
				Product: domain.ProductEviction, Status: 200, RequestID: "rq-e",
				Body: jsonBody(t, `{"evictionCount": 1}`),
			},
		},
	}
	bus := &stubBus{}
	svc := newTestService(creds, client, &stubRegistry{}, bus)

	report, err := svc.Screen(context.Background(), "tenant-a", screeningApplicant())
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}

	if report.Synthetic {
		t.Error("Expected a live report")
	}
	if report.FraudRiskScore != 1.5 {
		t.Errorf("Expected fraud score 1.5, got %v", report.FraudRiskScore)
	}
	if !report.IdentityVerified {
		t.Error("Expected identity verified on 2xx")
	}
	if report.CreditScore != 712 {
		t.Errorf("Expected credit score 712 from numeric string, got %d", report.CreditScore)
	}
	if report.Bankruptcies != 1 {
		t.Errorf("Expected 1 bankruptcy, got %d", report.Bankruptcies)
	}
	if report.CriminalOffenses != 2 {
		t.Errorf("Expected 2 offenses, got %d", report.CriminalOffenses)
	}
	if report.Evictions != 1 {
		t.Errorf("Expected 1 eviction, got %d", report.Evictions)
	}

	wantIDs := map[domain.Product]string{
		domain.ProductFraud:    "rq-f",
		domain.ProductIdentity: "rq-i",
		domain.ProductCredit:   "rq-c",
		domain.ProductCriminal: "rq-cr",
		domain.ProductEviction: "rq-e",
	}
	for product, want := range wantIDs {
		if got := report.ProviderRequestIDs[product]; got != want {
			t.Errorf("Expected request ID %q for %s, got %q", want, product, got)
		}
	}

	if client.calls.Load() != 5 {
		t.Errorf("Expected 5 product calls, got %d", client.calls.Load())
	}
	if got := bus.count(domain.TopicProviderCall); got != 5 {
		t.Errorf("Expected 5 provider-call events, got %d", got)
	}
	if got := bus.count(domain.TopicScreenCompleted); got != 1 {
		t.Errorf("Expected 1 completed event, got %d", got)
	}
}

func TestScreen_ProductFailureIsIsolated(t *testing.T) {
	creds := &stubCreds{configured: true, token: "tok-1"}
	client := &stubProvider{
		responses: map[domain.Product]*domain.ProductResult{
			domain.ProductEviction: {
				Product: domain.ProductEviction, Status: 200,
				Body: jsonBody(t, `{"evictions": [{}, {}, {}]}`),
			},
		},
		errs: map[domain.Product]error{
			domain.ProductCredit: errors.New("connection reset"),
		},
	}
	svc := newTestService(creds, client, &stubRegistry{}, nil)

	report, err := svc.Screen(context.Background(), "tenant-a", screeningApplicant())
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}

	if report.CreditScore != domain.DefaultCreditScore {
		t.Errorf("Expected default credit score %d after failure, got %d", domain.DefaultCreditScore, report.CreditScore)
	}
	if report.Evictions != 3 {
		t.Errorf("Expected eviction product unaffected, got %d", report.Evictions)
	}
	if report.Synthetic {
		t.Error("A live screen with one failed product is still live")
	}
	if _, ok := report.ProviderRequestIDs[domain.ProductCredit]; ok {
		t.Error("Failed product should not record a request ID")
	}
}

func TestScreen_BadStatusKeepsDefaults(t *testing.T) {
	creds := &stubCreds{configured: true, token: "tok-1"}
	client := &stubProvider{
		responses: map[domain.Product]*domain.ProductResult{
			domain.ProductCredit: {
				Product: domain.ProductCredit, Status: 502, RequestID: "rq-c",
				Body: jsonBody(t, `{"creditScore": 400}`),
			},
			domain.ProductIdentity: {
				Product: domain.ProductIdentity, Status: 500,
			},
		},
	}
	svc := newTestService(creds, client, &stubRegistry{}, nil)

	report, err := svc.Screen(context.Background(), "tenant-a", screeningApplicant())
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}

	if report.CreditScore != domain.DefaultCreditScore {
		t.Errorf("Expected default credit score on bad status, got %d", report.CreditScore)
	}
	if report.IdentityVerified {
		t.Error("Identity must not verify on a non-2xx status")
	}
	// The correlation ID is still part of the audit trail.
	if report.ProviderRequestIDs[domain.ProductCredit] != "rq-c" {
		t.Errorf("Expected request ID recorded even on bad status, got %q", report.ProviderRequestIDs[domain.ProductCredit])
	}
}

func TestScreen_CreditScoreClamped(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "Above bureau range", body: `{"creditScore": 9999}`, want: 850},
		{name: "Below bureau range", body: `{"creditScore": 12}`, want: 300},
		{name: "In range", body: `{"creditScore": 655}`, want: 655},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := &stubCreds{configured: true, token: "tok"}
			client := &stubProvider{
				responses: map[domain.Product]*domain.ProductResult{
					domain.ProductCredit: {
						Product: domain.ProductCredit, Status: 200,
						Body: jsonBody(t, tt.body),
					},
				},
			}
			svc := newTestService(creds, client, &stubRegistry{}, nil)

			report, err := svc.Screen(context.Background(), "tenant-a", screeningApplicant())
			if err != nil {
				t.Fatalf("Screen: %v", err)
			}
			if report.CreditScore != tt.want {
				t.Errorf("Expected clamped score %d, got %d", tt.want, report.CreditScore)
			}
		})
	}
}

func TestScreen_RegistryFailureIsAmbiguousNotMatch(t *testing.T) {
	creds := &stubCreds{configured: true, token: "tok-1"}
	bus := &stubBus{}
	registry := &stubRegistry{err: errors.New("registry: bad status: 503 Service Unavailable")}
	svc := newTestService(creds, &stubProvider{}, registry, bus)

	report, err := svc.Screen(context.Background(), "tenant-a", screeningApplicant())
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}

	if report.WantedPersonMatch.Matched {
		t.Error("A failed lookup must read as no match")
	}
	if report.WantedPersonMatch.SearchedName != "Dana Reyes" {
		t.Errorf("Expected searched name recorded, got %q", report.WantedPersonMatch.SearchedName)
	}
	if got := bus.count(domain.TopicRegistryAmbiguous); got != 1 {
		t.Errorf("Expected 1 ambiguity event for operators, got %d", got)
	}
}

func TestScreen_WantedMatchPublishesAlert(t *testing.T) {
	creds := &stubCreds{configured: true, token: "tok-1"}
	bus := &stubBus{}
	registry := &stubRegistry{
		match: &domain.WantedPersonMatch{
			Matched:      true,
			MatchCount:   1,
			SearchedName: "Dana Reyes",
			Matches:      []domain.WantedPersonRecord{{Name: "DANA REYES"}},
		},
	}
	svc := newTestService(creds, &stubProvider{}, registry, bus)

	report, err := svc.Screen(context.Background(), "tenant-a", screeningApplicant())
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}

	if !report.WantedPersonMatch.Matched {
		t.Fatal("Expected the match recorded on the report")
	}
	if got := bus.count(domain.TopicScreenAlert); got != 1 {
		t.Errorf("Expected 1 alert event, got %d", got)
	}
}

func TestScreen_NilApplicant(t *testing.T) {
	svc := newTestService(&stubCreds{}, &stubProvider{}, &stubRegistry{}, nil)

	if _, err := svc.Screen(context.Background(), "tenant-a", nil); err == nil {
		t.Fatal("Expected an error for a nil applicant")
	}
}
