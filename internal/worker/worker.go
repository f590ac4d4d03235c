// Package worker consumes screen-requested events off the bus and runs
// them through the screening pipeline, decoupling screening latency
// from the HTTP request path on the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/leaseguard/kestrel/internal/domain"
	"github.com/leaseguard/kestrel/internal/screen"
)

// globalTenant is the reserved id the catch-all subscription listens
// on. The channel bus has no wildcard subjects, so publishers that
// want the shared queue must target it and put the real tenant in the
// payload.
const globalTenant = "_global"

// Worker owns a set of bus subscriptions and the screening service
// they feed.
type Worker struct {
	bus   domain.EventBus
	repo  domain.Repository
	cache domain.Cache
	svc   *screen.Service
	cfg   *domain.Config

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config narrows which tenants a worker serves.
type Config struct {
	// TenantIDs to subscribe for. Empty means the shared queue on the
	// reserved global id.
	TenantIDs []string
}

// NewWorker wires a worker; nothing runs until Start.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, svc *screen.Service, cfg *domain.Config) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		cache:  cache,
		svc:    svc,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes for the configured tenants. A failed subscription
// aborts startup; partially started workers are cleaned up by Stop.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.subscribeAllTenants()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.subscribeTenant(tenantID); err != nil {
			return fmt.Errorf("worker: subscribe %s: %w", tenantID, err)
		}
	}

	slog.Info("screen workers listening", "tenants", len(cfg.TenantIDs))
	return nil
}

func (w *Worker) subscribeAllTenants() error {
	sub, err := w.bus.Subscribe(w.ctx, globalTenant, domain.TopicScreenRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.processScreen(ctx, msg.TenantID, msg)
	})
	if err != nil {
		return fmt.Errorf("worker: subscribe shared queue: %w", err)
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("screen worker listening on shared queue")
	return nil
}

func (w *Worker) subscribeTenant(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicScreenRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.processScreen(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("screen worker listening",
		"tenant_id", tenantID,
		"topic", domain.TopicScreenRequested,
	)
	return nil
}

// ScreenMessage is the payload for asynchronous screening requests.
type ScreenMessage struct {
	TenantID  string                  `json:"tenantId,omitempty"`
	TraceID   string                  `json:"traceId,omitempty"`
	Applicant domain.ApplicantRequest `json:"applicant"`
	Force     bool                    `json:"force,omitempty"`
}

// processScreen runs one screening request through the pipeline.
func (w *Worker) processScreen(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var req ScreenMessage
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("dropping malformed screen request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// A payload tenant wins over the subscription's; messages off the
	// shared queue only carry the reserved id.
	if req.TenantID != "" {
		tenantID = req.TenantID
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	applicant := req.Applicant.ToApplicant(tenantID)
	if applicant.ID == "" {
		applicant.ID = uuid.New().String()
	}

	slog.Debug("processing screen request",
		"applicant_id", applicant.ID,
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	// 1. Reuse a stored report when one is still fresh, unless forced
	if !req.Force {
		if stored := w.lookupStored(ctx, tenantID, applicant.ID); stored != nil {
			slog.Info("reusing stored report",
				"applicant_id", applicant.ID,
				"tenant_id", tenantID,
				"report_id", stored.ID,
			)
			w.publishCompleted(ctx, tenantID, stored)
			return nil
		}
	}

	// 2. Screen the applicant
	report, err := w.svc.Screen(ctx, tenantID, applicant)
	if err != nil {
		slog.Error("screen failed",
			"applicant_id", applicant.ID,
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	// 3. Persist applicant and report
	if w.repo != nil {
		if err := w.repo.SaveApplicant(ctx, tenantID, applicant); err != nil {
			slog.Error("failed to save applicant",
				"applicant_id", applicant.ID,
				"error", err,
			)
		}
		if err := w.repo.SaveReport(ctx, tenantID, report); err != nil {
			slog.Error("failed to save report",
				"report_id", report.ID,
				"error", err,
			)
		}
	}

	// 4. Cache for cross-listing reuse
	if w.cache != nil {
		if err := w.cache.SetReport(ctx, tenantID, applicant.ID, report, w.reportTTL()); err != nil {
			slog.Debug("failed to cache report",
				"report_id", report.ID,
				"error", err,
			)
		}
	}

	slog.Info("screen request processed",
		"applicant_id", applicant.ID,
		"tenant_id", tenantID,
		"report_id", report.ID,
		"trace_id", traceID,
		"synthetic", report.Synthetic,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// lookupStored returns a cached or persisted report still inside the
// reuse window, or nil when the applicant must be screened.
func (w *Worker) lookupStored(ctx context.Context, tenantID, applicantID string) *domain.ScreeningReport {
	if applicantID == "" {
		return nil
	}

	if w.cache != nil {
		if report, err := w.cache.GetReport(ctx, tenantID, applicantID); err == nil && report != nil {
			return report
		}
	}

	if w.repo != nil {
		report, err := w.repo.GetLatestReportByApplicant(ctx, tenantID, applicantID)
		if err == nil && report != nil && time.Since(report.CreatedAt) < w.reportTTL() {
			return report
		}
	}

	return nil
}

func (w *Worker) reportTTL() time.Duration {
	if w.cfg != nil && w.cfg.Screen.ReportTTL > 0 {
		return w.cfg.Screen.ReportTTL
	}
	return 24 * time.Hour
}

// publishCompleted emits the terminal event for a request served from
// storage. Fresh screens publish their own completed event.
func (w *Worker) publishCompleted(ctx context.Context, tenantID string, report *domain.ScreeningReport) {
	if w.bus == nil {
		return
	}
	payload, _ := json.Marshal(report)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicScreenCompleted, payload); err != nil {
		slog.Error("failed to publish completed event",
			"report_id", report.ID,
			"error", err,
		)
	}
}

// Stop cancels in-flight handlers and drops every subscription. Safe
// to call after a failed Start.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("unsubscribe failed",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("screen workers stopped")
	return nil
}

// Stats describes a worker's live subscriptions.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats reports the worker's current subscriptions.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
