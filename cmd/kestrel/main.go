// Kestrel - Applicant screening that deploys in 60 seconds.
// Copyright (c) 2026 LeaseGuard
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/leaseguard/kestrel/internal/api"
	"github.com/leaseguard/kestrel/internal/bus"
	"github.com/leaseguard/kestrel/internal/cache"
	"github.com/leaseguard/kestrel/internal/credential"
	"github.com/leaseguard/kestrel/internal/domain"
	"github.com/leaseguard/kestrel/internal/metrics"
	"github.com/leaseguard/kestrel/internal/provider"
	"github.com/leaseguard/kestrel/internal/repository"
	"github.com/leaseguard/kestrel/internal/screen"
	"github.com/leaseguard/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	initLogging()

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	if err := run(); err != nil {
		slog.Error("kestrel exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("kestrel shutdown complete")
}

func initLogging() {
	level := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))
}

func loadConfig() *domain.Config {
	cfg := domain.DefaultConfig()
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
	}
	applyEnvOverrides(cfg)
	return cfg
}

func run() error {
	cfg := loadConfig()
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"provider_configured", cfg.Provider.Configured(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	defer repo.Close()

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer cacheImpl.Close()

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("connect event bus: %w", err)
	}
	defer busImpl.Close()

	met := metrics.New()

	// The screening pipeline: credential cache, provider client,
	// registry client, and the aggregating service on top.
	creds := credential.NewCache(cfg.Provider)
	client := provider.NewClient(cfg.Provider)
	registry := provider.NewRegistry(cfg.Provider)
	svc := screen.NewService(cfg, creds, client, registry, busImpl, met)

	if cfg.Provider.Configured() {
		slog.Info("screening provider configured", "base_url", cfg.Provider.BaseURL)
	} else {
		slog.Info("no provider credentials, screens will be synthetic")
	}

	// The async worker is optional; the HTTP path still screens
	// synchronously without it.
	var asyncWorker *worker.Worker
	if cfg.Screen.AsyncWorker {
		asyncWorker = worker.NewWorker(busImpl, repo, cacheImpl, svc, cfg)
		workerCfg := worker.Config{
			TenantIDs: parseTenants(os.Getenv("KESTREL_TENANTS")),
		}
		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("async worker did not start", "error", err)
		}
	}

	srv := api.NewServer(cfg, repo, cacheImpl, busImpl, svc, met, Version)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cfg, Version)

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	}

	// Workers stop first so no screen is mid-flight when the stores
	// close underneath it.
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("worker stop failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// applyEnvOverrides layers KESTREL_* environment variables over the
// tier defaults.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("KESTREL_PROVIDER_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("KESTREL_PROVIDER_USERNAME"); v != "" {
		cfg.Provider.Username = v
	}
	if v := os.Getenv("KESTREL_PROVIDER_PASSWORD"); v != "" {
		cfg.Provider.Password = v
	}
	if v := os.Getenv("KESTREL_REGISTRY_URL"); v != "" {
		cfg.Provider.RegistryURL = v
	}
	if v := os.Getenv("KESTREL_SCREEN_QUOTA_HOURLY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Screen.QuotaHourly = n
		} else {
			slog.Warn("ignoring invalid KESTREL_SCREEN_QUOTA_HOURLY", "value", v)
		}
	}
	if os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		cfg.Screen.AsyncWorker = true
	}
}

// parseTenants splits the comma-separated KESTREL_TENANTS value.
func parseTenants(env string) []string {
	if env == "" {
		return nil
	}
	var tenantIDs []string
	for _, id := range strings.Split(env, ",") {
		if id = strings.TrimSpace(id); id != "" {
			tenantIDs = append(tenantIDs, id)
		}
	}
	return tenantIDs
}

func printBanner(cfg *domain.Config, version string) {
	mode := "synthetic"
	if cfg.Provider.Configured() {
		mode = "live"
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 KESTREL                  ║")
	fmt.Println("  ║       Applicant Screening Engine          ║")
	fmt.Println("  ║        Eyes on every applicant.           ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Mode:     %s\n", mode)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /screenings             - Screen an applicant")
	fmt.Println("    GET  /screenings/{id}        - Get a screening report")
	fmt.Println("    GET  /applicants/{id}/report - Latest report for an applicant")
	fmt.Println("    POST /listings               - Create a listing")
	fmt.Println("    GET  /listings               - List listings")
	fmt.Println("    PUT  /listings/{id}/criteria - Update screening criteria")
	fmt.Println("    DELETE /listings/{id}        - Delete a listing")
	fmt.Println("    GET  /listings/{id}/applications - Applications for a listing")
	fmt.Println("    POST /applications           - Apply to a listing")
	fmt.Println("    GET  /applications/{id}      - Application with current match")
	fmt.Println("    POST /match                  - Compute a match on demand")
	fmt.Println("    GET  /health                 - Health check")
	fmt.Println("    GET  /metrics                - Prometheus metrics")
	fmt.Println()
}
