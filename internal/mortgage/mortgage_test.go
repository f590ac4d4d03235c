package mortgage

import (
	"testing"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name            string
		price           float64
		downPct         float64
		ratePct         float64
		termYears       int
		wantDownPayment float64
		wantLoan        float64
		wantMonthly     float64
	}{
		{
			name:            "Standard terms on a 300k purchase",
			price:           300000,
			downPct:         20,
			ratePct:         7,
			termYears:       30,
			wantDownPayment: 60000,
			wantLoan:        240000,
			wantMonthly:     1597,
		},
		{
			name:            "Zero rate degrades to straight-line principal",
			price:           300000,
			downPct:         20,
			ratePct:         0,
			termYears:       30,
			wantDownPayment: 60000,
			wantLoan:        240000,
			wantMonthly:     667, // 240000 / 360 rounded
		},
		{
			name:            "All cash leaves nothing to finance",
			price:           250000,
			downPct:         100,
			ratePct:         7,
			termYears:       30,
			wantDownPayment: 250000,
			wantLoan:        0,
			wantMonthly:     0,
		},
		{
			name:            "No money down",
			price:           120000,
			downPct:         0,
			ratePct:         0,
			termYears:       10,
			wantDownPayment: 0,
			wantLoan:        120000,
			wantMonthly:     1000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est := Estimate(tt.price, tt.downPct, tt.ratePct, tt.termYears)

			if est.DownPayment != tt.wantDownPayment {
				t.Errorf("DownPayment: expected %v, got %v", tt.wantDownPayment, est.DownPayment)
			}
			if est.LoanAmount != tt.wantLoan {
				t.Errorf("LoanAmount: expected %v, got %v", tt.wantLoan, est.LoanAmount)
			}
			if est.MonthlyPayment != tt.wantMonthly {
				t.Errorf("MonthlyPayment: expected %v, got %v", tt.wantMonthly, est.MonthlyPayment)
			}
			if est.TotalInterest != est.TotalPaid-est.LoanAmount {
				t.Errorf("TotalInterest %v should equal TotalPaid %v - LoanAmount %v",
					est.TotalInterest, est.TotalPaid, est.LoanAmount)
			}
		})
	}
}

func TestEstimate_ZeroRateHasNoInterest(t *testing.T) {
	est := Estimate(300000, 20, 0, 30)

	if est.TotalPaid != 240000 {
		t.Errorf("Expected total paid 240000, got %v", est.TotalPaid)
	}
	if est.TotalInterest != 0 {
		t.Errorf("Expected zero interest, got %v", est.TotalInterest)
	}
}

func TestEstimate_Deterministic(t *testing.T) {
	first := Estimate(300000, 20, 7, 30)
	for i := 0; i < 10; i++ {
		if got := Estimate(300000, 20, 7, 30); got != first {
			t.Fatalf("Iteration %d: expected %+v, got %+v", i, first, got)
		}
	}
}

func TestEstimateDefault(t *testing.T) {
	got := EstimateDefault(300000)
	want := Estimate(300000, DefaultDownPaymentPct, DefaultAnnualRatePct, DefaultTermYears)

	if got != want {
		t.Errorf("Expected default terms %+v, got %+v", want, got)
	}
	if got.AnnualRatePct != 7 || got.TermYears != 30 {
		t.Errorf("Expected 7%% over 30 years, got %v%% over %d", got.AnnualRatePct, got.TermYears)
	}
}

func TestEstimate_ShortTermClamped(t *testing.T) {
	// A zero-year term still produces one payment instead of dividing by zero.
	est := Estimate(100000, 0, 0, 0)

	if est.MonthlyPayment != 100000 {
		t.Errorf("Expected the whole loan in one payment, got %v", est.MonthlyPayment)
	}
}
