// Package repository persists applicants, listings, applications, and
// screening jobs behind domain.Repository, on SQLite for the Community
// tier and PostgreSQL for Pro.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/leaseguard/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository speaks database/sql so one implementation serves both
// drivers; rebind translates placeholders for postgres.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New opens the configured database, applies pool settings, and runs
// the schema migrations before handing the repository back.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("repository: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("repository: migrate: %w", err)
	}
	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveApplicant stores an applicant with tenant isolation. Re-submitting
// the same applicant updates their identity fields.
func (r *SQLRepository) SaveApplicant(ctx context.Context, tenantID string, applicant *domain.Applicant) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO applicants (
			id, tenant_id, first_name, last_name, email, phone, date_of_birth, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			email = excluded.email,
			phone = excluded.phone,
			date_of_birth = excluded.date_of_birth
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		applicant.ID, tenantID,
		applicant.FirstName, applicant.LastName,
		applicant.Email, applicant.Phone, applicant.DateOfBirth,
		applicant.CreatedAt,
	)
	return err
}

// GetApplicant retrieves an applicant by ID with tenant isolation.
func (r *SQLRepository) GetApplicant(ctx context.Context, tenantID string, applicantID string) (*domain.Applicant, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, first_name, last_name, email, phone, date_of_birth, created_at
		FROM applicants
		WHERE tenant_id = ? AND id = ?
	`

	var a domain.Applicant
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, applicantID).Scan(
		&a.ID, &a.TenantID,
		&a.FirstName, &a.LastName,
		&a.Email, &a.Phone, &a.DateOfBirth,
		&a.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &a, nil
}

// SaveReport stores a screening report with tenant isolation. Reports are
// append-only: re-screening writes a new row.
func (r *SQLRepository) SaveReport(ctx context.Context, tenantID string, report *domain.ScreeningReport) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	wanted, _ := json.Marshal(report.WantedPersonMatch)
	requestIDs, _ := json.Marshal(report.ProviderRequestIDs)

	identity := 0
	if report.IdentityVerified {
		identity = 1
	}
	synthetic := 0
	if report.Synthetic {
		synthetic = 1
	}

	query := `
		INSERT INTO screening_reports (
			id, tenant_id, applicant_id, credit_score, evictions, bankruptcies,
			criminal_offenses, fraud_risk_score, identity_verified,
			wanted_match, provider_request_ids, synthetic, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		report.ID, tenantID, report.ApplicantID,
		report.CreditScore, report.Evictions, report.Bankruptcies,
		report.CriminalOffenses, report.FraudRiskScore, identity,
		string(wanted), string(requestIDs), synthetic,
		report.CreatedAt,
	)
	return err
}

// GetReport retrieves a screening report by ID with tenant isolation.
func (r *SQLRepository) GetReport(ctx context.Context, tenantID string, reportID string) (*domain.ScreeningReport, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, applicant_id, credit_score, evictions, bankruptcies,
			   criminal_offenses, fraud_risk_score, identity_verified,
			   wanted_match, provider_request_ids, synthetic, created_at
		FROM screening_reports
		WHERE tenant_id = ? AND id = ?
	`

	report, err := r.scanReport(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, reportID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return report, err
}

// GetLatestReportByApplicant retrieves the newest report for an applicant
// with tenant isolation.
func (r *SQLRepository) GetLatestReportByApplicant(ctx context.Context, tenantID string, applicantID string) (*domain.ScreeningReport, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, applicant_id, credit_score, evictions, bankruptcies,
			   criminal_offenses, fraud_risk_score, identity_verified,
			   wanted_match, provider_request_ids, synthetic, created_at
		FROM screening_reports
		WHERE tenant_id = ? AND applicant_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	report, err := r.scanReport(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, applicantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return report, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanReport(row rowScanner) (*domain.ScreeningReport, error) {
	var report domain.ScreeningReport
	var identity, synthetic int
	var wanted, requestIDs string

	err := row.Scan(
		&report.ID, &report.TenantID, &report.ApplicantID,
		&report.CreditScore, &report.Evictions, &report.Bankruptcies,
		&report.CriminalOffenses, &report.FraudRiskScore, &identity,
		&wanted, &requestIDs, &synthetic,
		&report.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	report.IdentityVerified = identity == 1
	report.Synthetic = synthetic == 1

	if wanted != "" {
		json.Unmarshal([]byte(wanted), &report.WantedPersonMatch)
	}
	if requestIDs != "" {
		json.Unmarshal([]byte(requestIDs), &report.ProviderRequestIDs)
	}

	return &report, nil
}

// SaveListing stores a listing with tenant isolation. Saving an existing
// listing updates it, including its screening criteria.
func (r *SQLRepository) SaveListing(ctx context.Context, tenantID string, listing *domain.Listing) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	criteria, _ := json.Marshal(listing.Criteria)

	query := `
		INSERT INTO listings (
			id, tenant_id, owner_id, title, type, price, criteria, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			owner_id = excluded.owner_id,
			title = excluded.title,
			type = excluded.type,
			price = excluded.price,
			criteria = excluded.criteria,
			enabled = 1,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		listing.ID, tenantID, listing.OwnerID,
		listing.Title, listing.Type, listing.Price,
		string(criteria),
		listing.CreatedAt, listing.UpdatedAt,
	)
	return err
}

// GetListing retrieves an active listing by ID with tenant isolation.
func (r *SQLRepository) GetListing(ctx context.Context, tenantID string, listingID string) (*domain.Listing, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, owner_id, title, type, price, criteria, created_at, updated_at
		FROM listings
		WHERE tenant_id = ? AND id = ? AND enabled = 1
	`

	var l domain.Listing
	var criteria string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, listingID).Scan(
		&l.ID, &l.TenantID, &l.OwnerID,
		&l.Title, &l.Type, &l.Price,
		&criteria,
		&l.CreatedAt, &l.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if criteria != "" {
		json.Unmarshal([]byte(criteria), &l.Criteria)
	}

	return &l, nil
}

// ListListings retrieves all active listings for a tenant, newest first.
func (r *SQLRepository) ListListings(ctx context.Context, tenantID string) ([]*domain.Listing, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, owner_id, title, type, price, criteria, created_at, updated_at
		FROM listings
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []*domain.Listing
	for rows.Next() {
		var l domain.Listing
		var criteria string

		if err := rows.Scan(
			&l.ID, &l.TenantID, &l.OwnerID,
			&l.Title, &l.Type, &l.Price,
			&criteria,
			&l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, err
		}

		if criteria != "" {
			json.Unmarshal([]byte(criteria), &l.Criteria)
		}
		listings = append(listings, &l)
	}

	return listings, rows.Err()
}

// DeleteListing soft-deletes a listing by setting enabled = 0.
func (r *SQLRepository) DeleteListing(ctx context.Context, tenantID string, listingID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE listings
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, listingID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveApplication stores an application with tenant isolation. Saving an
// existing application updates its report link, income and match result.
func (r *SQLRepository) SaveApplication(ctx context.Context, tenantID string, app *domain.Application) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	matchJSON := ""
	if app.Match != nil {
		b, _ := json.Marshal(app.Match)
		matchJSON = string(b)
	}

	query := `
		INSERT INTO applications (
			id, tenant_id, listing_id, applicant_id, report_id,
			monthly_income, match_result, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			report_id = excluded.report_id,
			monthly_income = excluded.monthly_income,
			match_result = excluded.match_result,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		app.ID, tenantID, app.ListingID, app.ApplicantID, app.ReportID,
		app.MonthlyIncome, matchJSON,
		app.CreatedAt, app.UpdatedAt,
	)
	return err
}

// GetApplication retrieves an application by ID with tenant isolation.
func (r *SQLRepository) GetApplication(ctx context.Context, tenantID string, appID string) (*domain.Application, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, listing_id, applicant_id, report_id,
			   monthly_income, match_result, created_at, updated_at
		FROM applications
		WHERE tenant_id = ? AND id = ?
	`

	var app domain.Application
	var matchJSON string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, appID).Scan(
		&app.ID, &app.TenantID, &app.ListingID, &app.ApplicantID, &app.ReportID,
		&app.MonthlyIncome, &matchJSON,
		&app.CreatedAt, &app.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if matchJSON != "" {
		app.Match = &domain.MatchResult{}
		json.Unmarshal([]byte(matchJSON), app.Match)
	}

	return &app, nil
}

// ListApplicationsByListing retrieves all applications for a listing with
// tenant isolation, newest first.
func (r *SQLRepository) ListApplicationsByListing(ctx context.Context, tenantID string, listingID string) ([]*domain.Application, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, listing_id, applicant_id, report_id,
			   monthly_income, match_result, created_at, updated_at
		FROM applications
		WHERE tenant_id = ? AND listing_id = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, listingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []*domain.Application
	for rows.Next() {
		var app domain.Application
		var matchJSON string

		if err := rows.Scan(
			&app.ID, &app.TenantID, &app.ListingID, &app.ApplicantID, &app.ReportID,
			&app.MonthlyIncome, &matchJSON,
			&app.CreatedAt, &app.UpdatedAt,
		); err != nil {
			return nil, err
		}

		if matchJSON != "" {
			app.Match = &domain.MatchResult{}
			json.Unmarshal([]byte(matchJSON), app.Match)
		}
		apps = append(apps, &app)
	}

	return apps, rows.Err()
}

// Ping verifies the database is reachable.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close releases the connection pool.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind rewrites ? placeholders as $1..$n for the postgres driver.
// Queries are written once in ? form and translated at call time.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" || !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}
