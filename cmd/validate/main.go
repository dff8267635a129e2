// Command validate checks the migration inputs without a database: it runs the
// coefficient, distribution and (optionally) histogram parsers over the CSV
// files and reports every defect the loader would skip or flag.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -coefs data/coefs.csv \
//	  -distribution data/tmean_distribution.csv \
//	  -series data/era5series.csv \
//	  -bins 20,30,50
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/couchcryptid/urau-climate-etl/internal/adapter/csvsource"
	"github.com/couchcryptid/urau-climate-etl/internal/config"
	"github.com/couchcryptid/urau-climate-etl/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) addIssues(issues []error) {
	for _, err := range issues {
		p.errors = append(p.errors, err.Error())
	}
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type inputs struct {
	coefs        string
	distribution string
	series       string
	bins         string
}

// totals counts what was read, for the summary line.
type totals struct {
	coefRows, cities, distRows, samples, observations int
}

func main() {
	var in inputs
	flag.StringVar(&in.coefs, "coefs", "", "path to the coefficients CSV")
	flag.StringVar(&in.distribution, "distribution", "", "path to the wide distribution CSV")
	flag.StringVar(&in.series, "series", "", "path to the daily series CSV (optional)")
	flag.StringVar(&in.bins, "bins", "20,30,50", "histogram resolutions to check")
	flag.Parse()

	if in.coefs == "" || in.distribution == "" {
		flag.Usage()
		os.Exit(2)
	}

	os.Exit(run(in, os.Stdout, os.Stderr))
}

func run(in inputs, stdout, stderr io.Writer) int {
	resolutions, err := config.ParseResolutions(in.bins)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: %v\n", err)
		return 2
	}

	fmt.Fprintln(stdout, "=== URAU Input Validation ===")
	fmt.Fprintln(stdout)

	coefRecords, err := csvsource.ReadCoefficients(in.coefs)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: load coefficients: %v\n", err)
		return 1
	}
	header, distRecords, err := csvsource.ReadDistribution(in.distribution)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: load distribution: %v\n", err)
		return 1
	}

	var sum totals
	sum.coefRows = len(coefRecords)
	sum.distRows = len(distRecords)

	coefPhase, cities := validateCoefficients(filepath.Base(in.coefs), coefRecords)
	sum.cities = len(cities)

	distPhase, distributions := validateDistribution(filepath.Base(in.distribution), header, distRecords, cities)
	for _, samples := range distributions {
		sum.samples += len(samples)
	}

	phases := []*phase{coefPhase, distPhase}

	if in.series != "" {
		series, issues, err := csvsource.ReadSeries(in.series)
		if err != nil {
			fmt.Fprintf(stderr, "FATAL: load series: %v\n", err)
			return 1
		}
		for _, temps := range series {
			sum.observations += len(temps)
		}
		phases = append(phases, validateHistograms(series, issues, distributions, resolutions))
	}

	fmt.Fprintln(stdout)
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(stdout, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "Records: %d coefficient rows, %d cities, %d distribution rows, %d percentiles, %d observations\n",
		sum.coefRows, sum.cities, sum.distRows, sum.samples, sum.observations)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(stdout, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(stdout, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(stdout, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(stdout, "\nValidation FAILED.")
	return 1
}

// validateCoefficients parses every row, flags duplicate (city, age group)
// pairs and cities without the full set of age groups.
func validateCoefficients(source string, records []domain.CoefficientRecord) (*phase, map[string]bool) {
	p := &phase{name: "Phase 1: Coefficients (cities, age groups)"}

	extracted, issues := domain.ExtractCities(source, records)
	p.addIssues(issues)
	cities := make(map[string]bool, len(extracted))
	for _, c := range extracted {
		cities[c.Code] = true
	}

	groups := make(map[string]map[domain.AgeGroup]bool, len(cities))
	for _, rec := range records {
		set, err := domain.ParseCoefficientRecord(rec)
		if err != nil {
			if !cities[domain.NormalizeCityCode(rec.CityCode)] {
				continue // already reported by ExtractCities
			}
			p.errorf("%s:%d (%s): %v", source, rec.Line, rec.CityCode, err)
			continue
		}
		if groups[set.CityCode] == nil {
			groups[set.CityCode] = make(map[domain.AgeGroup]bool, len(domain.AgeGroups))
		}
		if groups[set.CityCode][set.AgeGroup] {
			p.errorf("%s:%d (%s): %v: age group %s", source, rec.Line, set.CityCode, domain.ErrDuplicateRow, set.AgeGroup)
			continue
		}
		groups[set.CityCode][set.AgeGroup] = true
	}

	for _, code := range sortedCodes(cities) {
		if n := len(groups[code]); n != len(domain.AgeGroups) {
			p.errorf("%s: %d of %d age groups", code, n, len(domain.AgeGroups))
		}
	}
	return p, cities
}

// validateDistribution reshapes every wide row and checks each known city has
// exactly one complete distribution.
func validateDistribution(source string, header []string, records []domain.DistributionRecord, cities map[string]bool) (*phase, map[string][]domain.PercentileSample) {
	p := &phase{name: "Phase 2: Distribution (percentiles 0..100)"}
	out := make(map[string][]domain.PercentileSample, len(records))

	layout, issues, err := domain.ParseDistributionHeader(source, header)
	if err != nil {
		p.errorf("%v", err)
		return p, out
	}
	p.addIssues(issues)

	for _, rec := range records {
		code, samples, rowIssues := layout.Reshape(source, rec)
		p.addIssues(rowIssues)
		if samples == nil && len(rowIssues) > 0 {
			continue
		}
		if _, dup := out[code]; dup {
			p.errorf("%s:%d (%s): %v", source, rec.Line, code, domain.ErrDuplicateRow)
			continue
		}
		if !cities[code] {
			p.errorf("%s:%d (%s): %v", source, rec.Line, code, domain.ErrUnknownCity)
			continue
		}
		out[code] = samples
		if missing := domain.MissingPercentiles(samples); len(missing) > 0 {
			p.errorf("%s: %d of %d percentiles", code, len(samples), domain.PercentileCount)
		}
	}

	for _, code := range sortedCodes(cities) {
		if _, ok := out[code]; !ok {
			p.errorf("%s: no distribution row", code)
		}
	}
	return p, out
}

// validateHistograms computes every resolution for each city of the series
// and checks the bins account for all observations.
func validateHistograms(series map[string][]float64, issues []error, distributions map[string][]domain.PercentileSample, resolutions []int) *phase {
	p := &phase{name: "Phase 3: Histograms (daily series)"}
	p.addIssues(issues)

	codes := make([]string, 0, len(series))
	for code := range series {
		codes = append(codes, code)
	}
	slices.Sort(codes)

	for _, code := range codes {
		temps := series[code]
		samples, ok := distributions[code]
		if !ok {
			p.errorf("%s: %v: no distribution for histogram range", code, domain.ErrMissingPercentile)
			continue
		}
		p1, p99, err := domain.HistogramRange(samples)
		if err != nil {
			p.errorf("%s: %v", code, err)
			continue
		}
		for _, n := range resolutions {
			bins, err := domain.ComputeHistogram(code, temps, p1, p99, n)
			if err != nil {
				p.errorf("%s (%d bins): %v", code, n, err)
				continue
			}
			total := 0
			for _, b := range bins {
				total += b.Count
			}
			if total != len(temps) {
				p.errorf("%s (%d bins): bins hold %d of %d observations", code, n, total, len(temps))
			}
		}
	}
	return p
}

func sortedCodes(set map[string]bool) []string {
	codes := make([]string, 0, len(set))
	for code := range set {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}
