package domain

import (
	"time"
)

// Credit score bounds and the fallback applied when the bureau response
// carries no usable score.
const (
	CreditScoreMin     = 300
	CreditScoreMax     = 850
	DefaultCreditScore = 680
)

// Verification products queried during a screen. The values double as
// keys in ScreeningReport.ProviderRequestIDs.
type Product string

const (
	ProductFraud    Product = "fraud"
	ProductIdentity Product = "identity"
	ProductCredit   Product = "credit"
	ProductCriminal Product = "criminal"
	ProductEviction Product = "eviction"
)

// Products lists every verification product in fan-out order.
var Products = []Product{ProductFraud, ProductIdentity, ProductCredit, ProductCriminal, ProductEviction}

// ScreeningReport is the normalized result of one screen. It is immutable
// once produced; re-screening an applicant creates a new report.
type ScreeningReport struct {
	// Core identifiers
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	ApplicantID string `json:"applicantId"`

	// Normalized verification fields
	CreditScore      int     `json:"creditScore"`      // clamped to [300, 850]
	Evictions        int     `json:"evictions"`        // count, never negative
	Bankruptcies     int     `json:"bankruptcies"`     // count, never negative
	CriminalOffenses int     `json:"criminalOffenses"` // count, never negative
	FraudRiskScore   float64 `json:"fraudRiskScore"`   // 0-10, lower is safer
	IdentityVerified bool    `json:"identityVerified"`

	// Registry lookup outcome
	WantedPersonMatch WantedPersonMatch `json:"wantedPersonMatch"`

	// Correlation IDs returned by each product, for the audit trail
	ProviderRequestIDs map[Product]string `json:"providerRequestIds,omitempty"`

	// Synthetic marks reports produced without live provider calls.
	Synthetic bool `json:"synthetic"`

	CreatedAt time.Time `json:"createdAt"`
}

// WantedPersonMatch is the outcome of the wanted-persons registry lookup.
// A failed lookup is recorded as no match; the ambiguity is surfaced to
// operators through the audit stream, not here.
type WantedPersonMatch struct {
	Matched      bool                 `json:"matched"`
	MatchCount   int                  `json:"matchCount"`
	SearchedName string               `json:"searchedName,omitempty"`
	Matches      []WantedPersonRecord `json:"matches,omitempty"`
}

// WantedPersonRecord is a single registry entry matching the applicant's name.
type WantedPersonRecord struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	Warning     string   `json:"warning,omitempty"`
	SourceURL   string   `json:"sourceUrl,omitempty"`
}

// ClampCreditScore forces a bureau score into the valid range.
func ClampCreditScore(score int) int {
	if score < CreditScoreMin {
		return CreditScoreMin
	}
	if score > CreditScoreMax {
		return CreditScoreMax
	}
	return score
}
