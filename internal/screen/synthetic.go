package screen

import (
	"math/rand"

	"github.com/leaseguard/kestrel/internal/domain"
)

// syntheticCreditScores are the bureau scores a synthetic report draws from.
var syntheticCreditScores = []int{580, 620, 650, 680, 700, 720, 750, 780}

// synthesize fills a report with randomized but plausible values and
// marks it synthetic so logs and metrics can tell it apart from live
// data. Adverse records stay rare, mirroring real applicant pools.
func synthesize(report *domain.ScreeningReport) {
	report.Synthetic = true
	report.CreditScore = syntheticCreditScores[rand.Intn(len(syntheticCreditScores))]
	report.IdentityVerified = rand.Float64() < 0.9
	report.FraudRiskScore = rand.Float64() * 3

	if rand.Float64() < 0.1 {
		report.Evictions = 1
	}
	if rand.Float64() < 0.05 {
		report.Bankruptcies = 1
	}
	if rand.Float64() < 0.1 {
		report.CriminalOffenses = 1
	}
}
