package match

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/leaseguard/kestrel/internal/domain"
)

func cleanReport() *domain.ScreeningReport {
	return &domain.ScreeningReport{
		ID:               "report-1",
		TenantID:         "default",
		ApplicantID:      "applicant-1",
		CreditScore:      720,
		IdentityVerified: true,
		CreatedAt:        time.Now().UTC(),
	}
}

func rental(price float64, crit domain.ScreeningCriteria) *domain.Listing {
	return &domain.Listing{
		ID:       "listing-1",
		TenantID: "default",
		Title:    "2BR downtown",
		Type:     domain.ListingRent,
		Price:    price,
		Criteria: crit,
	}
}

func sale(price float64, crit domain.ScreeningCriteria) *domain.Listing {
	l := rental(price, crit)
	l.Type = domain.ListingSale
	return l
}

func TestCompute_NoCriteria(t *testing.T) {
	result := Compute(cleanReport(), rental(1500, domain.ScreeningCriteria{}), 0)

	if result.Score != 100 {
		t.Errorf("Expected score 100 with no criteria, got %d", result.Score)
	}
	if result.Color != domain.ColorGreen {
		t.Errorf("Expected green, got %s", result.Color)
	}
	if result.TotalPoints != 0 {
		t.Errorf("Expected 0 total points, got %d", result.TotalPoints)
	}
	if result.Mortgage != nil {
		t.Error("Expected no mortgage estimate for a rental")
	}

	for _, category := range []string{
		domain.CategoryCredit, domain.CategoryIncome, domain.CategoryCriminal,
		domain.CategoryEvictions, domain.CategoryBankruptcy,
	} {
		entry, ok := result.Breakdown[category]
		if !ok {
			t.Fatalf("Expected breakdown entry for %s", category)
		}
		if !entry.Passed || entry.Detail != "not required" {
			t.Errorf("Expected %s skipped as passed/not required, got %+v", category, entry)
		}
	}
	if entry := result.Breakdown[domain.CategoryFraud]; !entry.Passed {
		t.Errorf("Expected fraud entry passed when no score reported, got %+v", entry)
	}
}

func TestCompute_AllCriteriaPass(t *testing.T) {
	crit := domain.ScreeningCriteria{
		MinCreditScore:      650,
		NoEvictions:         true,
		NoBankruptcy:        true,
		NoCriminal:          true,
		MinIncomeMultiplier: 3,
	}

	result := Compute(cleanReport(), rental(1500, crit), 4500)

	if result.Score != 100 {
		t.Errorf("Expected score 100, got %d", result.Score)
	}
	if result.Color != domain.ColorGreen {
		t.Errorf("Expected green, got %s", result.Color)
	}
	if result.TotalPoints != 95 || result.EarnedPoints != 95 {
		t.Errorf("Expected 95/95 points, got %d/%d", result.EarnedPoints, result.TotalPoints)
	}
	for category, entry := range result.Breakdown {
		if !entry.Passed {
			t.Errorf("Expected %s to pass, got %+v", category, entry)
		}
	}
}

func TestCompute_CreditPartial(t *testing.T) {
	tests := []struct {
		name          string
		creditScore   int
		expectedScore int
	}{
		{"deficit 10 earns partial", 640, 80},
		{"deficit 25 earns partial", 625, 52},
		{"deficit exactly 50 earns nothing", 600, 0},
		{"deficit beyond 50 earns nothing", 599, 0},
	}

	crit := domain.ScreeningCriteria{MinCreditScore: 650}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := cleanReport()
			report.CreditScore = tt.creditScore

			result := Compute(report, rental(1500, crit), 0)
			if result.Score != tt.expectedScore {
				t.Errorf("Expected score %d, got %d", tt.expectedScore, result.Score)
			}
			if entry := result.Breakdown[domain.CategoryCredit]; entry.Passed {
				t.Errorf("Expected failed credit entry, got %+v", entry)
			}
		})
	}
}

func TestCompute_IncomeBands(t *testing.T) {
	tests := []struct {
		name           string
		monthlyIncome  float64
		expectedScore  int
		expectedColor  domain.MatchColor
		expectedPassed bool
	}{
		{"meets multiplier", 4500, 100, domain.ColorGreen, true},
		{"within 75 percent", 3600, 60, domain.ColorYellow, false},
		{"exactly 75 percent", 3375, 60, domain.ColorYellow, false},
		{"below 75 percent", 3000, 0, domain.ColorRed, false},
	}

	crit := domain.ScreeningCriteria{MinIncomeMultiplier: 3}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Compute(cleanReport(), rental(1500, crit), tt.monthlyIncome)

			if result.Score != tt.expectedScore {
				t.Errorf("Expected score %d, got %d", tt.expectedScore, result.Score)
			}
			if result.Color != tt.expectedColor {
				t.Errorf("Expected color %s, got %s", tt.expectedColor, result.Color)
			}
			entry := result.Breakdown[domain.CategoryIncome]
			if entry.Passed != tt.expectedPassed {
				t.Errorf("Expected income passed=%v, got %+v", tt.expectedPassed, entry)
			}
			if !strings.Contains(entry.Detail, "rent") {
				t.Errorf("Expected rent in income detail, got %q", entry.Detail)
			}
		})
	}
}

func TestCompute_SaleListingUsesMortgagePayment(t *testing.T) {
	crit := domain.ScreeningCriteria{MinIncomeMultiplier: 3}
	listing := sale(300000, crit)

	result := Compute(cleanReport(), listing, 6000)

	if result.Mortgage == nil {
		t.Fatal("Expected mortgage estimate attached for a sale listing")
	}
	if result.Mortgage.MonthlyPayment != 1597 {
		t.Errorf("Expected monthly payment 1597, got %v", result.Mortgage.MonthlyPayment)
	}
	if result.Mortgage.DownPayment != 60000 {
		t.Errorf("Expected down payment 60000, got %v", result.Mortgage.DownPayment)
	}

	// 6000 against a 1597 payment clears the 3x multiplier.
	entry := result.Breakdown[domain.CategoryIncome]
	if !entry.Passed {
		t.Errorf("Expected income to pass against the mortgage payment, got %+v", entry)
	}
	if !strings.Contains(entry.Detail, "estimated mortgage payment") {
		t.Errorf("Expected mortgage payment in income detail, got %q", entry.Detail)
	}

	// 4000 is about 2.5x, inside the partial band.
	partial := Compute(cleanReport(), listing, 4000)
	if partial.Score != 60 {
		t.Errorf("Expected partial income score 60, got %d", partial.Score)
	}

	// 3000 is under 2x, outside it.
	failed := Compute(cleanReport(), listing, 3000)
	if failed.Score != 0 {
		t.Errorf("Expected failed income score 0, got %d", failed.Score)
	}
}

func TestCompute_RecordChecks(t *testing.T) {
	crit := domain.ScreeningCriteria{
		NoEvictions:  true,
		NoBankruptcy: true,
		NoCriminal:   true,
	}

	clean := Compute(cleanReport(), rental(1500, crit), 0)
	if clean.Score != 100 || clean.Color != domain.ColorGreen {
		t.Errorf("Expected 100/green for a clean record, got %d/%s", clean.Score, clean.Color)
	}

	report := cleanReport()
	report.Evictions = 1
	report.Bankruptcies = 1
	report.CriminalOffenses = 2

	result := Compute(report, rental(1500, crit), 0)
	if result.Score != 0 || result.Color != domain.ColorRed {
		t.Errorf("Expected 0/red for adverse records, got %d/%s", result.Score, result.Color)
	}
	if entry := result.Breakdown[domain.CategoryCriminal]; !strings.Contains(entry.Detail, "2 criminal") {
		t.Errorf("Expected criminal count in detail, got %q", entry.Detail)
	}

	// One eviction against all three record checks: 25 of 45 points.
	evicted := cleanReport()
	evicted.Evictions = 1
	partial := Compute(evicted, rental(1500, crit), 0)
	if partial.Score != 56 {
		t.Errorf("Expected score 56, got %d", partial.Score)
	}
	if partial.Color != domain.ColorRed {
		t.Errorf("Expected red, got %s", partial.Color)
	}
}

func TestCompute_FraudEvaluatedWhenCarried(t *testing.T) {
	tests := []struct {
		name           string
		fraudRiskScore float64
		criteria       domain.ScreeningCriteria
		expectedScore  int
		expectedPassed bool
	}{
		{"fraud alone passes under tolerance", 2.5, domain.ScreeningCriteria{}, 100, true},
		{"fraud alone passes at tolerance", 3.0, domain.ScreeningCriteria{}, 100, true},
		{"fraud alone fails over tolerance", 4.2, domain.ScreeningCriteria{}, 0, false},
		{"fraud failure weighted against credit", 4.2, domain.ScreeningCriteria{MinCreditScore: 650}, 83, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := cleanReport()
			report.FraudRiskScore = tt.fraudRiskScore

			result := Compute(report, rental(1500, tt.criteria), 0)
			if result.Score != tt.expectedScore {
				t.Errorf("Expected score %d, got %d", tt.expectedScore, result.Score)
			}
			if entry := result.Breakdown[domain.CategoryFraud]; entry.Passed != tt.expectedPassed {
				t.Errorf("Expected fraud passed=%v, got %+v", tt.expectedPassed, entry)
			}
		})
	}
}

func TestCompute_WantedMatchHardFail(t *testing.T) {
	report := cleanReport()
	report.WantedPersonMatch = domain.WantedPersonMatch{
		Matched:      true,
		MatchCount:   2,
		SearchedName: "John Doe",
	}

	crit := domain.ScreeningCriteria{
		MinCreditScore:      650,
		NoEvictions:         true,
		MinIncomeMultiplier: 3,
	}
	result := Compute(report, rental(1500, crit), 9000)

	if result.Score != 0 {
		t.Errorf("Expected score 0 on a registry match, got %d", result.Score)
	}
	if result.Color != domain.ColorRed {
		t.Errorf("Expected red, got %s", result.Color)
	}
	if result.TotalPoints != 0 || result.EarnedPoints != 0 {
		t.Errorf("Expected zeroed points on a hard fail, got %d/%d", result.EarnedPoints, result.TotalPoints)
	}
	if len(result.Breakdown) != 1 {
		t.Errorf("Expected only the registry entry in the breakdown, got %d entries", len(result.Breakdown))
	}
	entry, ok := result.Breakdown[domain.CategoryWanted]
	if !ok {
		t.Fatal("Expected a wantedRegistry breakdown entry")
	}
	if entry.Passed {
		t.Error("Expected registry entry to be failed")
	}
	if !strings.Contains(entry.Detail, "John Doe") {
		t.Errorf("Expected searched name in detail, got %q", entry.Detail)
	}
}

func TestCompute_ZeroCostListing(t *testing.T) {
	crit := domain.ScreeningCriteria{MinIncomeMultiplier: 3}
	result := Compute(cleanReport(), rental(0, crit), 0)

	entry := result.Breakdown[domain.CategoryIncome]
	if !entry.Passed {
		t.Errorf("Expected income to pass with no housing cost, got %+v", entry)
	}
	if result.Score != 100 {
		t.Errorf("Expected score 100, got %d", result.Score)
	}
}

func TestCompute_Deterministic(t *testing.T) {
	report := cleanReport()
	report.CreditScore = 640
	report.FraudRiskScore = 1.8
	crit := domain.ScreeningCriteria{
		MinCreditScore:      650,
		NoCriminal:          true,
		MinIncomeMultiplier: 2.5,
	}
	listing := rental(1800, crit)

	first := Compute(report, listing, 4200)
	second := Compute(report, listing, 4200)

	if first.Score != second.Score || first.Color != second.Color {
		t.Errorf("Expected identical results, got %d/%s and %d/%s",
			first.Score, first.Color, second.Score, second.Color)
	}
	if first.EarnedPoints != second.EarnedPoints || first.TotalPoints != second.TotalPoints {
		t.Errorf("Expected identical points, got %d/%d and %d/%d",
			first.EarnedPoints, first.TotalPoints, second.EarnedPoints, second.TotalPoints)
	}
	if !reflect.DeepEqual(first.Breakdown, second.Breakdown) {
		t.Errorf("Expected identical breakdowns, got %+v and %+v", first.Breakdown, second.Breakdown)
	}
}

func TestColorFor(t *testing.T) {
	tests := []struct {
		score    int
		expected domain.MatchColor
	}{
		{100, domain.ColorGreen},
		{80, domain.ColorGreen},
		{79, domain.ColorYellow},
		{60, domain.ColorYellow},
		{59, domain.ColorRed},
		{0, domain.ColorRed},
	}

	for _, tt := range tests {
		if got := colorFor(tt.score); got != tt.expected {
			t.Errorf("colorFor(%d): expected %s, got %s", tt.score, tt.expected, got)
		}
	}
}
