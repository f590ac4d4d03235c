package domain

import (
	"time"
)

// ListingType distinguishes rental listings from for-sale listings.
// The income check reads Price as monthly rent for rentals and as the
// sale price (fed through the mortgage estimate) for sales.
type ListingType string

const (
	ListingRent ListingType = "rent"
	ListingSale ListingType = "sale"
)

// Listing is a property listing with its seller-configured acceptance criteria.
type Listing struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	OwnerID  string `json:"ownerId,omitempty"`
	Title    string `json:"title"`

	Type ListingType `json:"type"`

	// Price is the monthly rent for rentals, the sale price for sales.
	Price float64 `json:"price"`

	Criteria ScreeningCriteria `json:"criteria"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ScreeningCriteria is the fixed set of named checks a listing can require.
// Zero values mean "not required"; there is no expression language.
type ScreeningCriteria struct {
	// MinCreditScore requires the applicant's score to meet this floor.
	MinCreditScore int `json:"minCreditScore,omitempty"`

	// Record checks: require a clean history in each dimension.
	NoEvictions  bool `json:"noEvictions,omitempty"`
	NoBankruptcy bool `json:"noBankruptcy,omitempty"`
	NoCriminal   bool `json:"noCriminal,omitempty"`

	// MinIncomeMultiplier requires monthly income of at least this many
	// times the monthly housing cost (rent or estimated mortgage payment).
	MinIncomeMultiplier float64 `json:"minIncomeMultiplier,omitempty"`
}

// ListingRequest is the API request payload for creating a listing.
type ListingRequest struct {
	Title    string            `json:"title" validate:"required"`
	Type     ListingType       `json:"type" validate:"required"`
	Price    float64           `json:"price" validate:"required,gt=0"`
	OwnerID  string            `json:"ownerId,omitempty"`
	Criteria ScreeningCriteria `json:"criteria,omitempty"`
}

// ToListing converts a request to a Listing domain object.
func (r *ListingRequest) ToListing(tenantID string) *Listing {
	now := time.Now().UTC()
	return &Listing{
		TenantID:  tenantID,
		OwnerID:   r.OwnerID,
		Title:     r.Title,
		Type:      r.Type,
		Price:     r.Price,
		Criteria:  r.Criteria,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Application ties an applicant (and their screening report) to a listing.
type Application struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	ListingID   string `json:"listingId"`
	ApplicantID string `json:"applicantId"`
	ReportID    string `json:"reportId,omitempty"`

	// MonthlyIncome as stated by the applicant, used for the income check.
	MonthlyIncome float64 `json:"monthlyIncome"`

	// Match is the most recently computed result. Reads recompute it
	// against the listing's current criteria while the listing exists;
	// once the listing is gone the stored result is served as-is.
	Match *MatchResult `json:"match,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ApplicationRequest is the API request payload for applying to a listing.
type ApplicationRequest struct {
	ApplicantID   string  `json:"applicantId" validate:"required"`
	ListingID     string  `json:"listingId" validate:"required"`
	MonthlyIncome float64 `json:"monthlyIncome"`
}
