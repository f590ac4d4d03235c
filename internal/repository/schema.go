package repository

// Table definitions, written in the dialect subset SQLite and
// PostgreSQL both accept so one migration path serves both tiers.

const schemaApplicants = `
CREATE TABLE IF NOT EXISTS applicants (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    first_name TEXT NOT NULL,
    last_name TEXT NOT NULL,
    email TEXT,
    phone TEXT,
    date_of_birth TEXT,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_applicants_tenant ON applicants(tenant_id);
CREATE INDEX IF NOT EXISTS idx_applicants_name ON applicants(tenant_id, last_name, first_name);
`

// schemaReports defines the screening_reports table. Reports are
// append-only; the newest row per applicant is the current report.
const schemaReports = `
CREATE TABLE IF NOT EXISTS screening_reports (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    applicant_id TEXT NOT NULL,
    credit_score INTEGER NOT NULL,
    evictions INTEGER NOT NULL DEFAULT 0,
    bankruptcies INTEGER NOT NULL DEFAULT 0,
    criminal_offenses INTEGER NOT NULL DEFAULT 0,
    fraud_risk_score REAL NOT NULL DEFAULT 0,
    identity_verified INTEGER NOT NULL DEFAULT 0,
    wanted_match TEXT NOT NULL,
    provider_request_ids TEXT,
    synthetic INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_tenant ON screening_reports(tenant_id);
CREATE INDEX IF NOT EXISTS idx_reports_applicant ON screening_reports(tenant_id, applicant_id, created_at);
`

const schemaListings = `
CREATE TABLE IF NOT EXISTS listings (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    owner_id TEXT,
    title TEXT NOT NULL,
    type TEXT NOT NULL,
    price REAL NOT NULL,
    criteria TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_listings_tenant ON listings(tenant_id);
CREATE INDEX IF NOT EXISTS idx_listings_enabled ON listings(tenant_id, enabled);
`

// schemaApplications defines the applications table. The match_result
// column holds the most recently persisted match as JSON; reads recompute
// against the listing's current criteria.
const schemaApplications = `
CREATE TABLE IF NOT EXISTS applications (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    listing_id TEXT NOT NULL,
    applicant_id TEXT NOT NULL,
    report_id TEXT,
    monthly_income REAL NOT NULL DEFAULT 0,
    match_result TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_applications_tenant ON applications(tenant_id);
CREATE INDEX IF NOT EXISTS idx_applications_listing ON applications(tenant_id, listing_id);
CREATE INDEX IF NOT EXISTS idx_applications_applicant ON applications(tenant_id, applicant_id);
`

// AllSchemas lists the statements migrate runs, in dependency order.
func AllSchemas() []string {
	return []string{
		schemaApplicants,
		schemaReports,
		schemaListings,
		schemaApplications,
	}
}
