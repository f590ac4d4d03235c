// Package mortgage estimates monthly payments for sale listings so the
// income check can compare buyer income against a housing cost, the same
// way it compares renter income against rent.
package mortgage

import (
	"math"

	"github.com/leaseguard/kestrel/internal/domain"
)

// Default financing terms applied when the buyer supplies none.
const (
	DefaultDownPaymentPct = 20.0
	DefaultAnnualRatePct  = 7.0
	DefaultTermYears      = 30
)

// Estimate amortizes a purchase at the given terms. Currency outputs are
// rounded to the nearest dollar; a zero rate degrades to straight-line
// principal so the amortization formula never divides by zero.
func Estimate(price, downPaymentPct, annualRatePct float64, termYears int) domain.MortgageEstimate {
	downPayment := price * downPaymentPct / 100
	loan := price - downPayment

	months := termYears * 12
	if months < 1 {
		months = 1
	}

	var monthly float64
	if annualRatePct == 0 {
		monthly = loan / float64(months)
	} else {
		r := annualRatePct / 100 / 12
		growth := math.Pow(1+r, float64(months))
		monthly = loan * r * growth / (growth - 1)
	}

	totalPaid := math.Round(monthly * float64(months))
	loanRounded := math.Round(loan)

	return domain.MortgageEstimate{
		Price:          math.Round(price),
		DownPayment:    math.Round(downPayment),
		LoanAmount:     loanRounded,
		MonthlyPayment: math.Round(monthly),
		TotalPaid:      totalPaid,
		TotalInterest:  totalPaid - loanRounded,
		AnnualRatePct:  annualRatePct,
		TermYears:      termYears,
	}
}

// EstimateDefault amortizes a purchase at the default 20% down, 7% APR,
// 30-year terms.
func EstimateDefault(price float64) domain.MortgageEstimate {
	return Estimate(price, DefaultDownPaymentPct, DefaultAnnualRatePct, DefaultTermYears)
}
