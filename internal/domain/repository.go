// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository is the persistence boundary. Every method takes the
// tenant explicitly; implementations must never return another
// tenant's rows.
type Repository interface {
	// Applicants
	SaveApplicant(ctx context.Context, tenantID string, applicant *Applicant) error
	GetApplicant(ctx context.Context, tenantID string, applicantID string) (*Applicant, error)

	// Screening reports are append-only: a re-screen writes a new row,
	// it never updates an old one.
	SaveReport(ctx context.Context, tenantID string, report *ScreeningReport) error
	GetReport(ctx context.Context, tenantID string, reportID string) (*ScreeningReport, error)
	GetLatestReportByApplicant(ctx context.Context, tenantID string, applicantID string) (*ScreeningReport, error)

	// Listings
	SaveListing(ctx context.Context, tenantID string, listing *Listing) error
	GetListing(ctx context.Context, tenantID string, listingID string) (*Listing, error)
	ListListings(ctx context.Context, tenantID string) ([]*Listing, error)
	DeleteListing(ctx context.Context, tenantID string, listingID string) error

	// Applications
	SaveApplication(ctx context.Context, tenantID string, app *Application) error
	GetApplication(ctx context.Context, tenantID string, appID string) (*Application, error)
	ListApplicationsByListing(ctx context.Context, tenantID string, listingID string) ([]*Application, error)

	Ping(ctx context.Context) error
	Close() error
}

// RepositoryConfig selects and tunes the backing database.
type RepositoryConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string

	// SQLitePath is the database file for the sqlite driver.
	SQLitePath string

	// Postgres connection settings, used by the postgres driver.
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Pool limits. Zero leaves the database/sql default in place.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
