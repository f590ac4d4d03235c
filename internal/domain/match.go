package domain

import (
	"time"
)

// MatchColor is the traffic-light tier derived from the match score.
type MatchColor string

const (
	ColorGreen  MatchColor = "green"  // score >= 80
	ColorYellow MatchColor = "yellow" // score >= 60
	ColorRed    MatchColor = "red"
)

// Breakdown category names. Each maps to one criteria check.
const (
	CategoryCredit     = "creditScore"
	CategoryIncome     = "income"
	CategoryCriminal   = "criminal"
	CategoryEvictions  = "evictions"
	CategoryBankruptcy = "bankruptcy"
	CategoryFraud      = "fraudRisk"
	CategoryWanted     = "wantedRegistry"
)

// MatchResult scores one applicant's report against one listing's criteria.
// It is derived data: recomputing from the same report and criteria always
// yields the same result.
type MatchResult struct {
	Score int        `json:"matchScore"` // 0-100
	Color MatchColor `json:"matchColor"`

	// Breakdown explains every category, including skipped ones.
	Breakdown map[string]CategoryResult `json:"matchBreakdown"`

	// Weighted points backing the score
	EarnedPoints int `json:"earnedPoints"`
	TotalPoints  int `json:"totalPoints"`

	// Mortgage is attached for sale listings only.
	Mortgage *MortgageEstimate `json:"mortgageEstimate,omitempty"`

	ComputedAt time.Time `json:"computedAt"`
}

// CategoryResult is the outcome of a single category check.
type CategoryResult struct {
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// MortgageEstimate is an amortized payment breakdown for a sale listing.
// Currency values are rounded to the nearest dollar.
type MortgageEstimate struct {
	Price          float64 `json:"price"`
	DownPayment    float64 `json:"downPayment"`
	LoanAmount     float64 `json:"loanAmount"`
	MonthlyPayment float64 `json:"monthlyPayment"`
	TotalPaid      float64 `json:"totalPaid"`
	TotalInterest  float64 `json:"totalInterest"`
	AnnualRatePct  float64 `json:"annualRatePct"`
	TermYears      int     `json:"termYears"`
}

// MatchRequest is the API request payload for computing a match on demand.
type MatchRequest struct {
	ApplicantID   string  `json:"applicantId" validate:"required"`
	ListingID     string  `json:"listingId" validate:"required"`
	MonthlyIncome float64 `json:"monthlyIncome"`
}
