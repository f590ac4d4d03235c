package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/leaseguard/kestrel/internal/domain"
	"github.com/leaseguard/kestrel/internal/match"
	"github.com/leaseguard/kestrel/internal/metrics"
	"github.com/leaseguard/kestrel/internal/screen"
)

// ErrQuotaExceeded reports that a tenant hit its hourly screening quota.
var ErrQuotaExceeded = errors.New("screening quota exceeded")

// Handler carries the shared dependencies every endpoint draws on.
// Nil repo, cache, or bus degrade the affected endpoints to 503
// instead of failing startup.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	svc     *screen.Service
	metrics *metrics.Metrics
	cfg     *domain.Config
	version string
}

// NewHandler bundles the service dependencies for route wiring.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, svc *screen.Service, met *metrics.Metrics, cfg *domain.Config, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		svc:     svc,
		metrics: met,
		cfg:     cfg,
		version: version,
	}
}

// ScreenResponse is the response for POST /screenings.
type ScreenResponse struct {
	Report   *domain.ScreeningReport `json:"report"`
	Reused   bool                    `json:"reused"`
	Metadata struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// CreateScreening handles POST /screenings. A stored report inside the
// reuse window is returned as-is unless force is set; only fresh screens
// count against the tenant quota.
func (h *Handler) CreateScreening(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req domain.ScreenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Applicant.FirstName == "" || req.Applicant.LastName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "applicant.firstName and applicant.lastName are required",
		})
		return
	}

	applicant := req.Applicant.ToApplicant(tenantID)
	if applicant.ID == "" {
		applicant.ID = uuid.New().String()
	}

	var report *domain.ScreeningReport
	reused := false
	if !req.Force {
		if stored := h.lookupStored(ctx, tenantID, applicant.ID); stored != nil {
			report = stored
			reused = true
		}
	}

	if report == nil {
		if err := h.checkQuota(ctx, tenantID); err != nil {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": err.Error(),
			})
			return
		}

		fresh, err := h.runScreen(ctx, tenantID, applicant)
		if err != nil {
			slog.Error("screen failed", "applicant_id", applicant.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "screening failed",
			})
			return
		}
		report = fresh
	}

	resp := ScreenResponse{Report: report, Reused: reused}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// GetScreening retrieves a screening report by ID.
func (h *Handler) GetScreening(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	reportID := chi.URLParam(r, "id")

	if reportID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "screening id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	report, err := h.repo.GetReport(ctx, tenantID, reportID)
	if err != nil {
		slog.Error("failed to get report", "id", reportID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "screening report not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// GetApplicantReport retrieves the latest stored report for an applicant.
func (h *Handler) GetApplicantReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	applicantID := chi.URLParam(r, "id")

	if applicantID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "applicant id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	report, err := h.repo.GetLatestReportByApplicant(ctx, tenantID, applicantID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no screening report for applicant",
		})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// Health reports "healthy", or "degraded" when a backing store stops
// answering pings. The endpoint itself always answers 200 so probes
// can tell degraded from down.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready answers the readiness probe. Routing being up is the only
// requirement; degraded backends are Health's concern.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// CreateListing creates a listing with its screening criteria.
func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.ListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "title is required",
		})
		return
	}
	if req.Type != domain.ListingRent && req.Type != domain.ListingSale {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "type must be rent or sale",
		})
		return
	}
	if req.Price <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "price must be positive",
		})
		return
	}
	if msg := validateCriteria(req.Criteria); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": msg,
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	listing := req.ToListing(tenantID)
	listing.ID = uuid.New().String()

	if err := h.repo.SaveListing(ctx, tenantID, listing); err != nil {
		slog.Error("failed to save listing", "listing_id", listing.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save listing",
		})
		return
	}

	slog.Info("listing created",
		"listing_id", listing.ID,
		"tenant_id", tenantID,
		"type", listing.Type,
	)
	writeJSON(w, http.StatusCreated, listing)
}

// ListListings returns all active listings for the tenant.
func (h *Handler) ListListings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	listings, err := h.repo.ListListings(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list listings", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list listings",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"listings": listings,
		"count":    len(listings),
	})
}

// GetListing retrieves a listing by ID.
func (h *Handler) GetListing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	listingID := chi.URLParam(r, "id")

	if listingID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "listing id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	listing, err := h.repo.GetListing(ctx, tenantID, listingID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "listing not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, listing)
}

// UpdateListingCriteria replaces a listing's screening criteria. Stored
// match results are not touched; reads recompute against the new
// criteria.
func (h *Handler) UpdateListingCriteria(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	listingID := chi.URLParam(r, "id")

	if listingID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "listing id is required",
		})
		return
	}

	var criteria domain.ScreeningCriteria
	if err := json.NewDecoder(r.Body).Decode(&criteria); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if msg := validateCriteria(criteria); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": msg,
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	listing, err := h.repo.GetListing(ctx, tenantID, listingID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "listing not found",
		})
		return
	}

	listing.Criteria = criteria
	listing.UpdatedAt = time.Now().UTC()

	if err := h.repo.SaveListing(ctx, tenantID, listing); err != nil {
		slog.Error("failed to update listing", "listing_id", listingID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to update listing",
		})
		return
	}

	slog.Info("listing criteria updated", "listing_id", listingID, "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, listing)
}

// DeleteListing soft-deletes a listing. Existing applications keep their
// stored match results.
func (h *Handler) DeleteListing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	listingID := chi.URLParam(r, "id")

	if listingID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "listing id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.DeleteListing(ctx, tenantID, listingID); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "listing not found",
		})
		return
	}

	slog.Info("listing deleted", "listing_id", listingID, "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "listing deleted",
	})
}

// CreateApplication handles POST /applications: ensures the applicant has
// a screening report (screening if none is stored), computes the match
// against the listing's criteria and persists the application.
func (h *Handler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.ApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.ApplicantID == "" || req.ListingID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "applicantId and listingId are required",
		})
		return
	}
	if req.MonthlyIncome < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "monthlyIncome cannot be negative",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	listing, err := h.repo.GetListing(ctx, tenantID, req.ListingID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "listing not found",
		})
		return
	}

	applicant, err := h.repo.GetApplicant(ctx, tenantID, req.ApplicantID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "applicant not found",
		})
		return
	}

	report := h.lookupStored(ctx, tenantID, applicant.ID)
	if report == nil {
		if err := h.checkQuota(ctx, tenantID); err != nil {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": err.Error(),
			})
			return
		}
		report, err = h.runScreen(ctx, tenantID, applicant)
		if err != nil {
			slog.Error("screen failed", "applicant_id", applicant.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "screening failed",
			})
			return
		}
	}

	result := match.Compute(report, listing, req.MonthlyIncome)

	now := time.Now().UTC()
	app := &domain.Application{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		ListingID:     listing.ID,
		ApplicantID:   applicant.ID,
		ReportID:      report.ID,
		MonthlyIncome: req.MonthlyIncome,
		Match:         result,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := h.repo.SaveApplication(ctx, tenantID, app); err != nil {
		slog.Error("failed to save application", "application_id", app.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save application",
		})
		return
	}

	h.recordMatch(ctx, tenantID, app.ID, app.ApplicantID, app.ListingID, result)

	slog.Info("application created",
		"application_id", app.ID,
		"tenant_id", tenantID,
		"listing_id", app.ListingID,
		"applicant_id", app.ApplicantID,
		"match_score", result.Score,
		"match_color", result.Color,
	)
	writeJSON(w, http.StatusCreated, app)
}

// GetApplication retrieves an application with its match recomputed from
// the listing's current criteria, so criteria edits show up on the next
// read. When the listing or report is gone the stored result stands.
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	appID := chi.URLParam(r, "id")

	if appID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "application id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	app, err := h.repo.GetApplication(ctx, tenantID, appID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "application not found",
		})
		return
	}

	listing, err := h.repo.GetListing(ctx, tenantID, app.ListingID)
	if err == nil {
		if report := h.reportForApplication(ctx, tenantID, app); report != nil {
			app.Match = match.Compute(report, listing, app.MonthlyIncome)
		}
	}

	writeJSON(w, http.StatusOK, app)
}

// ListListingApplications handles GET /listings/{id}/applications. The
// list view returns stored match results as-is; only the single
// application read recomputes against current criteria.
func (h *Handler) ListListingApplications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	listingID := chi.URLParam(r, "id")

	if listingID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "listing ID is required",
		})
		return
	}
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if _, err := h.repo.GetListing(ctx, tenantID, listingID); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "listing not found",
		})
		return
	}

	apps, err := h.repo.ListApplicationsByListing(ctx, tenantID, listingID)
	if err != nil {
		slog.Error("failed to list applications", "listing_id", listingID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list applications",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"applications": apps,
		"count":        len(apps),
	})
}

// ComputeMatch handles POST /match: scores an applicant's stored report
// against a listing without creating an application. It never triggers a
// screen, so repeating the call is free.
func (h *Handler) ComputeMatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.ApplicantID == "" || req.ListingID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "applicantId and listingId are required",
		})
		return
	}
	if req.MonthlyIncome < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "monthlyIncome cannot be negative",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	listing, err := h.repo.GetListing(ctx, tenantID, req.ListingID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "listing not found",
		})
		return
	}

	report, err := h.repo.GetLatestReportByApplicant(ctx, tenantID, req.ApplicantID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no screening report for applicant",
		})
		return
	}

	result := match.Compute(report, listing, req.MonthlyIncome)
	h.recordMatch(ctx, tenantID, "", req.ApplicantID, req.ListingID, result)

	writeJSON(w, http.StatusOK, result)
}

// checkQuota enforces the hourly per-tenant screening quota. Quota 0
// disables the check, and a broken counter never blocks a screen.
func (h *Handler) checkQuota(ctx context.Context, tenantID string) error {
	limit := 0
	if h.cfg != nil {
		limit = h.cfg.Screen.QuotaHourly
	}
	if limit <= 0 || h.cache == nil {
		return nil
	}

	count, err := h.cache.IncrementCounter(ctx, tenantID, "screens", time.Hour)
	if err != nil {
		slog.Warn("quota counter unavailable, allowing screen",
			"tenant_id", tenantID,
			"error", err,
		)
		return nil
	}
	if count > int64(limit) {
		slog.Warn("screening quota exceeded",
			"tenant_id", tenantID,
			"count", count,
			"limit", limit,
		)
		return ErrQuotaExceeded
	}
	return nil
}

// lookupStored returns a reusable report for the applicant: the cached
// copy if present, otherwise the latest persisted one still inside the
// reuse window.
func (h *Handler) lookupStored(ctx context.Context, tenantID, applicantID string) *domain.ScreeningReport {
	if h.cache != nil {
		if report, err := h.cache.GetReport(ctx, tenantID, applicantID); err == nil && report != nil {
			return report
		}
	}
	if h.repo == nil {
		return nil
	}
	report, err := h.repo.GetLatestReportByApplicant(ctx, tenantID, applicantID)
	if err != nil || report == nil {
		return nil
	}
	if time.Since(report.CreatedAt) < h.reportTTL() {
		return report
	}
	return nil
}

// runScreen performs a fresh screen and persists the outcome. Repository
// or cache trouble degrades to logging; the report is still returned.
func (h *Handler) runScreen(ctx context.Context, tenantID string, applicant *domain.Applicant) (*domain.ScreeningReport, error) {
	report, err := h.svc.Screen(ctx, tenantID, applicant)
	if err != nil {
		return nil, err
	}

	if h.repo != nil {
		if err := h.repo.SaveApplicant(ctx, tenantID, applicant); err != nil {
			slog.Error("failed to save applicant", "applicant_id", applicant.ID, "error", err)
		}
		if err := h.repo.SaveReport(ctx, tenantID, report); err != nil {
			slog.Error("failed to save report", "report_id", report.ID, "error", err)
		}
	}
	if h.cache != nil {
		if err := h.cache.SetReport(ctx, tenantID, applicant.ID, report, h.reportTTL()); err != nil {
			slog.Debug("failed to cache report", "applicant_id", applicant.ID, "error", err)
		}
	}
	return report, nil
}

// reportForApplication resolves the report backing an application,
// preferring the one the application was created against.
func (h *Handler) reportForApplication(ctx context.Context, tenantID string, app *domain.Application) *domain.ScreeningReport {
	if app.ReportID != "" {
		if report, err := h.repo.GetReport(ctx, tenantID, app.ReportID); err == nil {
			return report
		}
	}
	report, err := h.repo.GetLatestReportByApplicant(ctx, tenantID, app.ApplicantID)
	if err != nil {
		return nil
	}
	return report
}

// recordMatch publishes the computed result to the audit stream and
// bumps the match metric. applicationID is empty for on-demand matches.
func (h *Handler) recordMatch(ctx context.Context, tenantID, applicationID, applicantID, listingID string, result *domain.MatchResult) {
	h.metrics.MatchComputed(string(result.Color))

	if h.bus == nil {
		return
	}
	event := map[string]any{
		"applicantId": applicantID,
		"listingId":   listingID,
		"matchScore":  result.Score,
		"matchColor":  result.Color,
	}
	if applicationID != "" {
		event["applicationId"] = applicationID
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := h.bus.Publish(ctx, tenantID, domain.TopicMatchComputed, payload); err != nil {
		slog.Debug("event publish failed",
			"topic", domain.TopicMatchComputed,
			"error", err,
		)
	}
}

// reportTTL bounds cross-listing report reuse.
func (h *Handler) reportTTL() time.Duration {
	if h.cfg != nil && h.cfg.Screen.ReportTTL > 0 {
		return h.cfg.Screen.ReportTTL
	}
	return 24 * time.Hour
}

// validateCriteria rejects values outside the documented ranges. Zero
// values mean "not required" and always pass.
func validateCriteria(c domain.ScreeningCriteria) string {
	if c.MinCreditScore != 0 && (c.MinCreditScore < domain.CreditScoreMin || c.MinCreditScore > domain.CreditScoreMax) {
		return fmt.Sprintf("minCreditScore must be between %d and %d", domain.CreditScoreMin, domain.CreditScoreMax)
	}
	if c.MinIncomeMultiplier < 0 {
		return "minIncomeMultiplier cannot be negative"
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
