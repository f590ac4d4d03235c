// Benchmark drives load through Kestrel's screening pipeline: it
// creates a listing with screening criteria, screens generated (or
// CSV-loaded) applicants, applies each one to the listing, and
// reports latency plus the match color distribution.
//
// Usage:
//
//	go run cmd/benchmark/main.go -url http://localhost:8080 -count 1000
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// BenchApplicant is one applicant to push through the pipeline.
type BenchApplicant struct {
	ID            string
	FirstName     string
	LastName      string
	MonthlyIncome float64
}

// ScreenRequest is the Kestrel API request format for POST /screenings.
type ScreenRequest struct {
	Applicant ApplicantPayload `json:"applicant"`
	Force     bool             `json:"force,omitempty"`
}

// ApplicantPayload carries applicant identity on the wire.
type ApplicantPayload struct {
	ID        string `json:"id,omitempty"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// ScreenResponse carries the report fields the benchmark reads.
type ScreenResponse struct {
	Report struct {
		ID          string `json:"id"`
		CreditScore int    `json:"creditScore"`
		Synthetic   bool   `json:"synthetic"`
	} `json:"report"`
	Reused bool `json:"reused"`
}

// ListingRequest is the request format for POST /listings.
type ListingRequest struct {
	Title    string   `json:"title"`
	Type     string   `json:"type"`
	Price    float64  `json:"price"`
	Criteria Criteria `json:"criteria"`
}

// Criteria mirrors the listing's screening criteria.
type Criteria struct {
	MinCreditScore      int     `json:"minCreditScore,omitempty"`
	NoEvictions         bool    `json:"noEvictions,omitempty"`
	MinIncomeMultiplier float64 `json:"minIncomeMultiplier,omitempty"`
}

// ListingResponse carries the created listing ID.
type ListingResponse struct {
	ID string `json:"id"`
}

// ApplicationRequest is the request format for POST /applications.
type ApplicationRequest struct {
	ApplicantID   string  `json:"applicantId"`
	ListingID     string  `json:"listingId"`
	MonthlyIncome float64 `json:"monthlyIncome"`
}

// ApplicationResponse carries the match outcome.
type ApplicationResponse struct {
	ID    string `json:"id"`
	Match struct {
		Score int    `json:"matchScore"`
		Color string `json:"matchColor"`
	} `json:"match"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	Greens  int64
	Yellows int64
	Reds    int64

	TotalProcessed int64
	TotalErrors    int64
	ScoreSum       int64

	mu              sync.Mutex
	screenLatencies []float64
	applyLatencies  []float64
}

func (m *Metrics) recordLatency(screenMs, applyMs float64) {
	m.mu.Lock()
	m.screenLatencies = append(m.screenLatencies, screenMs)
	m.applyLatencies = append(m.applyLatencies, applyMs)
	m.mu.Unlock()
}

var firstNames = []string{"Jane", "Sam", "Dana", "Lee", "Mia", "Noor", "Ada", "Kim", "Ravi", "Tom", "Elena", "Luis"}
var lastNames = []string{"Miller", "Reed", "Wells", "Chan", "Ortiz", "Haddad", "Nossa", "Soto", "Patel", "Novak", "Kaur", "Ibrahim"}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	count := flag.Int("count", 1000, "Number of applicants to screen")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	csvPath := flag.String("csv", "", "Optional applicant CSV (first_name,last_name,monthly_income)")
	rent := flag.Float64("rent", 1500, "Monthly rent of the benchmark listing")
	multiplier := flag.Float64("multiplier", 3, "Income multiplier the listing requires")
	minCredit := flag.Int("min-credit", 650, "Credit floor the listing requires")
	verbose := flag.Bool("verbose", false, "Print each applicant result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          KESTREL BENCHMARK - Applicant Screening              ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nKestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Listing:     rent $%.0f, %gx income, credit floor %d\n", *rent, *multiplier, *minCredit)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Load or generate applicants
	var applicants []BenchApplicant
	var err error
	if *csvPath != "" {
		fmt.Printf("\nReading applicants from %s...\n", *csvPath)
		applicants, err = readApplicantCSV(*csvPath, *count)
		if err != nil {
			fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
			os.Exit(1)
		}
	} else {
		applicants = generateApplicants(*count)
	}
	fmt.Printf("✓ Prepared %d applicants\n", len(applicants))

	// Create the benchmark listing
	client := &http.Client{Timeout: 30 * time.Second}
	listingID, err := createListing(client, *baseURL, *tenantID, *rent, *multiplier, *minCredit)
	if err != nil {
		fmt.Printf("ERROR: Failed to create listing: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Created listing %s\n", listingID)

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(applicants, *baseURL, *tenantID, listingID, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func generateApplicants(n int) []BenchApplicant {
	applicants := make([]BenchApplicant, n)
	for i := range applicants {
		applicants[i] = BenchApplicant{
			ID:            fmt.Sprintf("bench-%d-%d", time.Now().UnixNano(), i),
			FirstName:     firstNames[rand.Intn(len(firstNames))],
			LastName:      lastNames[rand.Intn(len(lastNames))],
			MonthlyIncome: 2500 + rand.Float64()*6500,
		}
	}
	return applicants
}

func readApplicantCSV(path string, limit int) ([]BenchApplicant, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Column order is not fixed; locate each required column by name.
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range []string{"first_name", "last_name", "monthly_income"} {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var applicants []BenchApplicant
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		income, _ := strconv.ParseFloat(record[colIndex["monthly_income"]], 64)
		applicants = append(applicants, BenchApplicant{
			ID:            fmt.Sprintf("bench-csv-%d", len(applicants)),
			FirstName:     record[colIndex["first_name"]],
			LastName:      record[colIndex["last_name"]],
			MonthlyIncome: income,
		})

		if limit > 0 && len(applicants) >= limit {
			break
		}
	}

	return applicants, nil
}

func createListing(client *http.Client, baseURL, tenantID string, rent, multiplier float64, minCredit int) (string, error) {
	req := ListingRequest{
		Title: fmt.Sprintf("Benchmark listing %d", time.Now().Unix()),
		Type:  "rent",
		Price: rent,
		Criteria: Criteria{
			MinCreditScore:      minCredit,
			MinIncomeMultiplier: multiplier,
		},
	}

	var resp ListingResponse
	status, err := postJSON(client, baseURL+"/listings", tenantID, req, &resp)
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", fmt.Errorf("status %d", status)
	}
	return resp.ID, nil
}

func runBenchmark(applicants []BenchApplicant, baseURL, tenantID, listingID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan BenchApplicant, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 30 * time.Second}

			for applicant := range work {
				screenStart := time.Now()
				_, err := screenApplicant(client, baseURL, tenantID, applicant)
				screenMs := float64(time.Since(screenStart).Microseconds()) / 1000

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: screen %s %s -> %v\n", applicant.FirstName, applicant.LastName, err)
					}
					continue
				}

				applyStart := time.Now()
				app, err := applyToListing(client, baseURL, tenantID, applicant, listingID)
				applyMs := float64(time.Since(applyStart).Microseconds()) / 1000

				atomic.AddInt64(&metrics.TotalProcessed, 1)
				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: apply %s %s -> %v\n", applicant.FirstName, applicant.LastName, err)
					}
					continue
				}

				metrics.recordLatency(screenMs, applyMs)
				atomic.AddInt64(&metrics.ScoreSum, int64(app.Match.Score))

				switch app.Match.Color {
				case "green":
					atomic.AddInt64(&metrics.Greens, 1)
				case "yellow":
					atomic.AddInt64(&metrics.Yellows, 1)
				default:
					atomic.AddInt64(&metrics.Reds, 1)
				}

				if verbose {
					fmt.Printf("  %-10s %-10s | Income: $%8.0f | Score: %3d | %s\n",
						applicant.FirstName,
						applicant.LastName,
						applicant.MonthlyIncome,
						app.Match.Score,
						app.Match.Color,
					)
				}
			}
		}()
	}

	for _, applicant := range applicants {
		work <- applicant
	}
	close(work)
	wg.Wait()

	return metrics
}

func screenApplicant(client *http.Client, baseURL, tenantID string, applicant BenchApplicant) (*ScreenResponse, error) {
	req := ScreenRequest{
		Applicant: ApplicantPayload{
			ID:        applicant.ID,
			FirstName: applicant.FirstName,
			LastName:  applicant.LastName,
		},
	}

	var resp ScreenResponse
	status, err := postJSON(client, baseURL+"/screenings", tenantID, req, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("status %d", status)
	}
	return &resp, nil
}

func applyToListing(client *http.Client, baseURL, tenantID string, applicant BenchApplicant, listingID string) (*ApplicationResponse, error) {
	req := ApplicationRequest{
		ApplicantID:   applicant.ID,
		ListingID:     listingID,
		MonthlyIncome: applicant.MonthlyIncome,
	}

	var resp ApplicationResponse
	status, err := postJSON(client, baseURL+"/applications", tenantID, req, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated {
		return nil, fmt.Errorf("status %d", status)
	}
	return &resp, nil
}

func postJSON(client *http.Client, url, tenantID string, body, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 RUN STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	scored := m.Greens + m.Yellows + m.Reds
	fmt.Printf("\n🚦 MATCH DISTRIBUTION\n")
	if scored > 0 {
		fmt.Printf("   Green:   %6d  (%.1f%%)\n", m.Greens, 100*float64(m.Greens)/float64(scored))
		fmt.Printf("   Yellow:  %6d  (%.1f%%)\n", m.Yellows, 100*float64(m.Yellows)/float64(scored))
		fmt.Printf("   Red:     %6d  (%.1f%%)\n", m.Reds, 100*float64(m.Reds)/float64(scored))
		fmt.Printf("   Avg Score: %.1f\n", float64(m.ScoreSum)/float64(scored))
	} else {
		fmt.Println("   No matches computed")
	}

	m.mu.Lock()
	screens := append([]float64(nil), m.screenLatencies...)
	applies := append([]float64(nil), m.applyLatencies...)
	m.mu.Unlock()
	sort.Float64s(screens)
	sort.Float64s(applies)

	fmt.Printf("\n⏱️  LATENCY (ms)\n")
	fmt.Printf("               avg      p50      p95      p99\n")
	fmt.Printf("   screen   %6.1f   %6.1f   %6.1f   %6.1f\n",
		mean(screens), percentile(screens, 0.50), percentile(screens, 0.95), percentile(screens, 0.99))
	fmt.Printf("   apply    %6.1f   %6.1f   %6.1f   %6.1f\n",
		mean(applies), percentile(applies, 0.50), percentile(applies, 0.95), percentile(applies, 0.99))

	fmt.Printf("\n   Total Duration:  %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		fmt.Printf("   Throughput:      %.2f applicants/sec\n", float64(m.TotalProcessed)/duration.Seconds())
	}

	fmt.Printf("\n💡 INTERPRETATION\n")
	if scored > 0 {
		greenRate := float64(m.Greens) / float64(scored)
		switch {
		case greenRate >= 0.6:
			fmt.Println("   ✅ Most applicants clear the listing's criteria")
		case greenRate >= 0.3:
			fmt.Println("   ⚠️  Criteria reject a substantial share of applicants")
		default:
			fmt.Println("   ❌ Criteria reject most applicants - consider loosening them")
		}
	}
	if m.TotalErrors > 0 {
		fmt.Printf("   ⚠️  %d requests failed - check server logs\n", m.TotalErrors)
	}

	fmt.Println()
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
