package domain

import (
	"strings"
	"time"
)

// Applicant identifies the person being screened.
type Applicant struct {
	// Core identifiers
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// Legal name as submitted on the application
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`

	// Contact details forwarded to verification products
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`

	// Date of birth in YYYY-MM-DD form
	DateOfBirth string `json:"dateOfBirth,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// FullName returns the applicant's full legal name, used for the
// wanted-persons registry query and provider payloads.
func (a *Applicant) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// ScreenRequest is the API request payload for screening an applicant.
type ScreenRequest struct {
	Applicant ApplicantRequest `json:"applicant" validate:"required"`

	// Force re-screens even when a stored report exists.
	Force bool `json:"force,omitempty"`
}

// ApplicantRequest carries applicant identity in API payloads.
type ApplicantRequest struct {
	ID          string `json:"id,omitempty"`
	FirstName   string `json:"firstName" validate:"required"`
	LastName    string `json:"lastName" validate:"required"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
}

// ToApplicant converts a request to an Applicant domain object.
func (r *ApplicantRequest) ToApplicant(tenantID string) *Applicant {
	return &Applicant{
		ID:          r.ID,
		TenantID:    tenantID,
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		Email:       r.Email,
		Phone:       r.Phone,
		DateOfBirth: r.DateOfBirth,
		CreatedAt:   time.Now().UTC(),
	}
}
