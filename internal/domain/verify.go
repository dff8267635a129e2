package domain

import "fmt"

// TableCounts are the row counts observed after a load.
type TableCounts struct {
	Cities       int `json:"urau_cities"`
	Coefficients int `json:"bspline_coefficients"`
	Percentiles  int `json:"temperature_distribution"`
	Histograms   int `json:"temperature_histogram"`
}

// CityCoverage is a city whose child rows deviate from the expected count.
type CityCoverage struct {
	CityCode string
	Rows     int
}

// ResolutionSummary aggregates histogram rows for one bins_total.
type ResolutionSummary struct {
	BinsTotal int `json:"bins_total"`
	Bins      int `json:"bins"`
	Cities    int `json:"cities"`
}

// Discrepancy is a post-load mismatch between expected and actual state.
// Discrepancies are warnings, never failures.
type Discrepancy struct {
	Check    string
	Expected int
	Actual   int
	Detail   string
}

func (d Discrepancy) String() string {
	if d.Detail != "" {
		return fmt.Sprintf("%s: expected %d, got %d (%s)", d.Check, d.Expected, d.Actual, d.Detail)
	}
	return fmt.Sprintf("%s: expected %d, got %d", d.Check, d.Expected, d.Actual)
}

// CompareCounts checks table sizes against the cardinalities implied by the
// number of cities in the coefficients input.
func CompareCounts(expected ExpectedCounts, actual TableCounts) []Discrepancy {
	var out []Discrepancy
	if actual.Cities != expected.Cities {
		out = append(out, Discrepancy{Check: "urau_cities", Expected: expected.Cities, Actual: actual.Cities})
	}
	if actual.Coefficients != expected.Coefficients {
		out = append(out, Discrepancy{
			Check:    "bspline_coefficients",
			Expected: expected.Coefficients,
			Actual:   actual.Coefficients,
			Detail:   fmt.Sprintf("%d cities x %d age groups", expected.Cities, len(AgeGroups)),
		})
	}
	if actual.Percentiles != expected.Percentiles {
		out = append(out, Discrepancy{
			Check:    "temperature_distribution",
			Expected: expected.Percentiles,
			Actual:   actual.Percentiles,
			Detail:   fmt.Sprintf("%d cities x %d percentiles", expected.Cities, PercentileCount),
		})
	}
	return out
}

// CoverageDiscrepancies turns per-city deviations into discrepancies.
func CoverageDiscrepancies(check string, expected int, cities []CityCoverage) []Discrepancy {
	out := make([]Discrepancy, 0, len(cities))
	for _, c := range cities {
		out = append(out, Discrepancy{Check: check, Expected: expected, Actual: c.Rows, Detail: c.CityCode})
	}
	return out
}
