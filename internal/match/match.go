// Package match scores screening reports against listing criteria.
package match

import (
	"fmt"
	"math"
	"time"

	"github.com/leaseguard/kestrel/internal/domain"
	"github.com/leaseguard/kestrel/internal/mortgage"
)

// Category weights. A weight joins the denominator only when its
// criterion is requested; skipped categories cost nothing.
const (
	weightCredit     = 25
	weightIncome     = 25
	weightCriminal   = 15
	weightEvictions  = 20
	weightBankruptcy = 10
	weightFraud      = 5
)

// fraudPassMax is the highest fraud risk score that still passes.
const fraudPassMax = 3.0

// creditDeficitSpan is the score shortfall over which partial credit
// decays to zero.
const creditDeficitSpan = 50.0

// Income partial credit: applicants at 75% of the required multiplier
// earn a flat 15 of the 25 points.
const (
	incomePartialRatio = 0.75
	incomePartialAward = 15
)

// Color tier floors.
const (
	greenFloor  = 80
	yellowFloor = 60
)

// Compute scores a report against the listing's criteria. It is pure:
// the same report, listing and income always produce the same score,
// color and breakdown, and nothing here performs I/O. A wanted-registry
// match disqualifies outright, bypassing the weighted formula.
func Compute(report *domain.ScreeningReport, listing *domain.Listing, monthlyIncome float64) *domain.MatchResult {
	result := &domain.MatchResult{
		Breakdown:  make(map[string]domain.CategoryResult),
		ComputedAt: time.Now().UTC(),
	}

	if listing.Type == domain.ListingSale {
		est := mortgage.EstimateDefault(listing.Price)
		result.Mortgage = &est
	}

	if report.WantedPersonMatch.Matched {
		result.Score = 0
		result.Color = domain.ColorRed
		result.Breakdown[domain.CategoryWanted] = domain.CategoryResult{
			Passed: false,
			Detail: fmt.Sprintf("wanted-persons registry matched %d record(s) for %q",
				report.WantedPersonMatch.MatchCount, report.WantedPersonMatch.SearchedName),
		}
		return result
	}

	crit := listing.Criteria
	total := 0
	earned := 0

	score := func(category string, weight, award int, passed bool, detail string) {
		total += weight
		earned += award
		result.Breakdown[category] = domain.CategoryResult{Passed: passed, Detail: detail}
	}
	skip := func(category string) {
		result.Breakdown[category] = domain.CategoryResult{Passed: true, Detail: "not required"}
	}

	// Credit score: full points at the floor, decaying partial credit
	// for a shortfall of up to 50 points.
	if crit.MinCreditScore > 0 {
		if report.CreditScore >= crit.MinCreditScore {
			score(domain.CategoryCredit, weightCredit, weightCredit, true,
				fmt.Sprintf("credit score %d meets minimum %d", report.CreditScore, crit.MinCreditScore))
		} else {
			deficit := float64(crit.MinCreditScore - report.CreditScore)
			award := 0
			if deficit <= creditDeficitSpan {
				award = int(math.Round(weightCredit * (1 - deficit/creditDeficitSpan)))
			}
			score(domain.CategoryCredit, weightCredit, award, false,
				fmt.Sprintf("credit score %d below minimum %d", report.CreditScore, crit.MinCreditScore))
		}
	} else {
		skip(domain.CategoryCredit)
	}

	// Income against the monthly housing cost: rent for rentals, the
	// estimated mortgage payment for sales.
	if crit.MinIncomeMultiplier > 0 {
		cost := listing.Price
		costLabel := "rent"
		if listing.Type == domain.ListingSale {
			cost = result.Mortgage.MonthlyPayment
			costLabel = "estimated mortgage payment"
		}
		if cost <= 0 {
			score(domain.CategoryIncome, weightIncome, weightIncome, true,
				"listing has no monthly housing cost")
		} else {
			ratio := monthlyIncome / cost
			need := crit.MinIncomeMultiplier
			detail := fmt.Sprintf("income is %.2fx the %s, %.2fx required", ratio, costLabel, need)
			switch {
			case ratio >= need:
				score(domain.CategoryIncome, weightIncome, weightIncome, true, detail)
			case ratio >= incomePartialRatio*need:
				score(domain.CategoryIncome, weightIncome, incomePartialAward, false, detail)
			default:
				score(domain.CategoryIncome, weightIncome, 0, false, detail)
			}
		}
	} else {
		skip(domain.CategoryIncome)
	}

	if crit.NoCriminal {
		if report.CriminalOffenses == 0 {
			score(domain.CategoryCriminal, weightCriminal, weightCriminal, true, "no criminal records")
		} else {
			score(domain.CategoryCriminal, weightCriminal, 0, false,
				fmt.Sprintf("%d criminal record(s) on file", report.CriminalOffenses))
		}
	} else {
		skip(domain.CategoryCriminal)
	}

	if crit.NoEvictions {
		if report.Evictions == 0 {
			score(domain.CategoryEvictions, weightEvictions, weightEvictions, true, "no eviction records")
		} else {
			score(domain.CategoryEvictions, weightEvictions, 0, false,
				fmt.Sprintf("%d eviction record(s) on file", report.Evictions))
		}
	} else {
		skip(domain.CategoryEvictions)
	}

	if crit.NoBankruptcy {
		if report.Bankruptcies == 0 {
			score(domain.CategoryBankruptcy, weightBankruptcy, weightBankruptcy, true, "no bankruptcy records")
		} else {
			score(domain.CategoryBankruptcy, weightBankruptcy, 0, false,
				fmt.Sprintf("%d bankruptcy record(s) on file", report.Bankruptcies))
		}
	} else {
		skip(domain.CategoryBankruptcy)
	}

	// Fraud risk participates whenever the report carries a score,
	// regardless of the listing's criteria. A zero score means the
	// provider reported nothing.
	if report.FraudRiskScore > 0 {
		if report.FraudRiskScore <= fraudPassMax {
			score(domain.CategoryFraud, weightFraud, weightFraud, true,
				fmt.Sprintf("fraud risk %.1f within tolerance %.1f", report.FraudRiskScore, fraudPassMax))
		} else {
			score(domain.CategoryFraud, weightFraud, 0, false,
				fmt.Sprintf("fraud risk %.1f exceeds tolerance %.1f", report.FraudRiskScore, fraudPassMax))
		}
	} else {
		result.Breakdown[domain.CategoryFraud] = domain.CategoryResult{Passed: true, Detail: "no fraud score reported"}
	}

	result.TotalPoints = total
	result.EarnedPoints = earned
	if total == 0 {
		// Nothing required means nothing to fail.
		result.Score = 100
	} else {
		result.Score = int(math.Round(100 * float64(earned) / float64(total)))
	}
	result.Color = colorFor(result.Score)

	return result
}

// colorFor maps a score to its traffic-light tier.
func colorFor(score int) domain.MatchColor {
	switch {
	case score >= greenFloor:
		return domain.ColorGreen
	case score >= yellowFloor:
		return domain.ColorYellow
	default:
		return domain.ColorRed
	}
}
