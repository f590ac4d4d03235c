// Package screen aggregates verification product responses into
// normalized screening reports.
package screen

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/leaseguard/kestrel/internal/domain"
	"github.com/leaseguard/kestrel/internal/extract"
	"github.com/leaseguard/kestrel/internal/metrics"
)

// Candidate field names accepted across provider response shapes.
// Deployments disagree on naming, so each product gets a tolerant list.
var (
	fraudScoreKeys  = []string{"fraudScore", "fraud_score", "riskScore", "risk_score", "score"}
	creditScoreKeys = []string{"creditScore", "credit_score", "ficoScore", "fico", "score"}
	bankruptcyKeys  = []string{"bankruptcies", "bankruptcyRecords", "bankruptcyCount", "bankruptcy_count"}
	criminalKeys    = []string{"criminalRecords", "offenses", "convictions", "criminalCount", "recordCount"}
	evictionKeys    = []string{"evictions", "evictionRecords", "evictionCount", "evictionFilings", "filings"}
)

// Service orchestrates one screen: five product calls plus the registry
// lookup, each isolated so a failing product degrades only its own field.
type Service struct {
	cfg      *domain.Config
	creds    domain.CredentialSource
	client   domain.ProviderClient
	registry domain.RegistryClient
	bus      domain.EventBus
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// NewService creates a screening service. bus and met may be nil.
func NewService(cfg *domain.Config, creds domain.CredentialSource, client domain.ProviderClient, registry domain.RegistryClient, bus domain.EventBus, met *metrics.Metrics) *Service {
	return &Service{
		cfg:      cfg,
		creds:    creds,
		client:   client,
		registry: registry,
		bus:      bus,
		metrics:  met,
		tracer:   otel.Tracer("kestrel.screen"),
	}
}

// Screen produces a screening report for the applicant. Provider trouble
// never fails a screen: a missing configuration or failed login falls
// back to a synthetic report, and an individual product failure leaves
// that product's defaults in place. The returned error covers only
// caller misuse.
func (s *Service) Screen(ctx context.Context, tenantID string, applicant *domain.Applicant) (*domain.ScreeningReport, error) {
	if applicant == nil {
		return nil, fmt.Errorf("screen: applicant is required")
	}

	ctx, span := s.tracer.Start(ctx, "screen.Screen")
	defer span.End()
	start := time.Now()

	report := newReport(tenantID, applicant)

	token, live := s.acquireToken(ctx, tenantID, applicant)
	if live {
		s.fanOut(ctx, token, tenantID, applicant, report)
	} else {
		// A synthetic screen stays offline: no product calls and no
		// registry lookup, so the wanted match is always empty.
		synthesize(report)
		report.WantedPersonMatch = domain.WantedPersonMatch{SearchedName: applicant.FullName()}
	}

	mode := "live"
	if report.Synthetic {
		mode = "synthetic"
	}
	s.metrics.ScreenCompleted(mode)

	slog.Info("screen completed",
		"tenant_id", tenantID,
		"applicant_id", applicant.ID,
		"report_id", report.ID,
		"mode", mode,
		"credit_score", report.CreditScore,
		"identity_verified", report.IdentityVerified,
		"wanted_match", report.WantedPersonMatch.Matched,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	s.publishEvent(ctx, tenantID, domain.TopicScreenCompleted, report)
	if report.WantedPersonMatch.Matched {
		slog.Warn("wanted-persons registry matched applicant",
			"tenant_id", tenantID,
			"applicant_id", applicant.ID,
			"match_count", report.WantedPersonMatch.MatchCount,
		)
		s.publishEvent(ctx, tenantID, domain.TopicScreenAlert, report)
	}

	return report, nil
}

// acquireToken resolves the provider credential. A false return means the
// screen proceeds synthetically.
func (s *Service) acquireToken(ctx context.Context, tenantID string, applicant *domain.Applicant) (string, bool) {
	if s.creds == nil || !s.creds.Configured() {
		slog.Info("provider not configured, screening synthetically",
			"tenant_id", tenantID,
			"applicant_id", applicant.ID,
		)
		return "", false
	}

	token, err := s.creds.Token(ctx)
	if err != nil {
		slog.Warn("provider login failed, screening synthetically",
			"tenant_id", tenantID,
			"applicant_id", applicant.ID,
			"error", err,
		)
		return "", false
	}
	return token, true
}

// fanOut runs the five product calls and the registry lookup with bounded
// concurrency. Every closure absorbs its own failure, so one product can
// never cancel or corrupt another.
func (s *Service) fanOut(ctx context.Context, token, tenantID string, applicant *domain.Applicant, report *domain.ScreeningReport) {
	maxConcurrent := s.cfg.Provider.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	var g errgroup.Group
	g.SetLimit(maxConcurrent)
	var mu sync.Mutex

	for _, product := range domain.Products {
		product := product
		g.Go(func() error {
			res := s.callProduct(ctx, token, tenantID, product, applicant)
			if res == nil {
				return nil
			}
			mu.Lock()
			applyResult(report, res)
			mu.Unlock()
			return nil
		})
	}

	g.Go(func() error {
		match := s.lookupWanted(ctx, tenantID, applicant)
		mu.Lock()
		report.WantedPersonMatch = match
		mu.Unlock()
		return nil
	})

	g.Wait()
}

// callProduct runs one product call under its own timeout and records the
// outcome. A nil return means the call failed and defaults stand.
func (s *Service) callProduct(ctx context.Context, token, tenantID string, product domain.Product, applicant *domain.Applicant) *domain.ProductResult {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.Provider.Timeout())
	defer cancel()

	start := time.Now()
	res, err := s.client.Call(cctx, token, product, applicant)

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case !res.OK():
		outcome = "bad_status"
	}
	s.metrics.ObserveProviderCall(string(product), outcome, start)
	s.publishProviderCall(ctx, tenantID, applicant.ID, product, outcome, res)

	if err != nil {
		slog.Warn("product call failed, keeping defaults",
			"product", product,
			"tenant_id", tenantID,
			"applicant_id", applicant.ID,
			"error", err,
		)
		return nil
	}
	return res
}

// applyResult folds one product response into the report. A non-2xx
// status or an extraction miss leaves the field's default in place.
func applyResult(report *domain.ScreeningReport, res *domain.ProductResult) {
	if res.RequestID != "" {
		report.ProviderRequestIDs[res.Product] = res.RequestID
	}

	if res.Product == domain.ProductIdentity {
		report.IdentityVerified = res.OK()
		return
	}

	if !res.OK() {
		slog.Warn("product returned bad status, keeping defaults",
			"product", res.Product,
			"status", res.Status,
		)
		return
	}

	switch res.Product {
	case domain.ProductFraud:
		if v, ok := extract.FindNumber(res.Body, fraudScoreKeys); ok {
			report.FraudRiskScore = clampFraudScore(v)
		} else {
			slog.Warn("no fraud score in response, keeping default",
				"product", res.Product,
			)
		}
	case domain.ProductCredit:
		if v, ok := extract.FindNumber(res.Body, creditScoreKeys); ok {
			report.CreditScore = domain.ClampCreditScore(int(math.Round(v)))
		} else {
			slog.Warn("no credit score in response, keeping default",
				"product", res.Product,
			)
		}
		report.Bankruptcies = nonNegative(extract.CountOccurrences(res.Body, bankruptcyKeys))
	case domain.ProductCriminal:
		report.CriminalOffenses = nonNegative(extract.CountOccurrences(res.Body, criminalKeys))
	case domain.ProductEviction:
		report.Evictions = nonNegative(extract.CountOccurrences(res.Body, evictionKeys))
	}
}

// lookupWanted screens the applicant's name against the public registry.
// A lookup failure is recorded as no match and flagged to operators as
// ambiguous, because a failed lookup is not a guaranteed non-match.
func (s *Service) lookupWanted(ctx context.Context, tenantID string, applicant *domain.Applicant) domain.WantedPersonMatch {
	name := applicant.FullName()
	if s.registry == nil || name == "" {
		return domain.WantedPersonMatch{SearchedName: name}
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.Provider.Timeout())
	defer cancel()

	match, err := s.registry.Search(cctx, name)
	if err != nil {
		slog.Warn("wanted-persons lookup failed, recording no match",
			"tenant_id", tenantID,
			"applicant_id", applicant.ID,
			"searched_name", name,
			"error", err,
		)
		s.metrics.RegistryLookupFailed()
		s.publishEvent(ctx, tenantID, domain.TopicRegistryAmbiguous, map[string]any{
			"applicantId":  applicant.ID,
			"searchedName": name,
			"error":        err.Error(),
		})
		return domain.WantedPersonMatch{SearchedName: name}
	}
	return *match
}

func (s *Service) publishProviderCall(ctx context.Context, tenantID, applicantID string, product domain.Product, outcome string, res *domain.ProductResult) {
	event := map[string]any{
		"applicantId": applicantID,
		"product":     product,
		"outcome":     outcome,
	}
	if res != nil {
		event["status"] = res.Status
		if res.RequestID != "" {
			event["requestId"] = res.RequestID
		}
	}
	s.publishEvent(ctx, tenantID, domain.TopicProviderCall, event)
}

func (s *Service) publishEvent(ctx context.Context, tenantID, topic string, payload any) {
	if s.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, tenantID, topic, data); err != nil {
		slog.Debug("event publish failed",
			"topic", topic,
			"error", err,
		)
	}
}

// newReport seeds a report with the documented defaults; product
// responses overwrite only the fields they can prove.
func newReport(tenantID string, applicant *domain.Applicant) *domain.ScreeningReport {
	return &domain.ScreeningReport{
		ID:                 uuid.New().String(),
		TenantID:           tenantID,
		ApplicantID:        applicant.ID,
		CreditScore:        domain.DefaultCreditScore,
		ProviderRequestIDs: make(map[domain.Product]string),
		CreatedAt:          time.Now().UTC(),
	}
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func clampFraudScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}
