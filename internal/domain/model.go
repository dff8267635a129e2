package domain

import "time"

// Percentile bounds of a city's temperature distribution.
const (
	MinPercentile   = 0
	MaxPercentile   = 100
	PercentileCount = MaxPercentile - MinPercentile + 1
)

// AgeGroup is one of the fixed age bands the exposure-response curves are fitted for.
type AgeGroup string

const (
	AgeGroup20to44 AgeGroup = "20-44"
	AgeGroup45to64 AgeGroup = "45-64"
	AgeGroup65to74 AgeGroup = "65-74"
	AgeGroup75to84 AgeGroup = "75-84"
	AgeGroup85Plus AgeGroup = "85+"
)

// AgeGroups lists the recognized age groups in ascending order.
var AgeGroups = []AgeGroup{
	AgeGroup20to44,
	AgeGroup45to64,
	AgeGroup65to74,
	AgeGroup75to84,
	AgeGroup85Plus,
}

// CoefficientCount is the number of B-spline basis coefficients per curve.
const CoefficientCount = 5

// City is a row of urau_cities.
type City struct {
	Code        string
	CountryCode string
	Name        string // empty when no display name is known
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CoefficientSet is a row of bspline_coefficients: the quadratic B-spline
// coefficients b1..b5 of one city's exposure-response curve for one age group.
type CoefficientSet struct {
	CityCode     string
	AgeGroup     AgeGroup
	Coefficients [CoefficientCount]float64
}

// PercentileSample is a row of temperature_distribution.
type PercentileSample struct {
	CityCode    string
	Percentile  int
	Temperature float64 // degrees Celsius
}

// HistogramBin is a row of temperature_histogram. Extreme bins outside the
// [p1, p99] range carry the same BinsTotal as the regular bins they surround.
type HistogramBin struct {
	CityCode  string
	BinStart  float64
	BinEnd    float64
	BinCenter float64
	Count     int
	BinsTotal int
}

// DailyTemperature is one observation of the daily mean temperature series.
type DailyTemperature struct {
	CityCode    string
	Temperature float64
}

// ExpectedCounts is the cardinality each table should reach for a set of cities.
type ExpectedCounts struct {
	Cities       int
	Coefficients int
	Percentiles  int
}

// ExpectedCountsFor returns the expected table sizes when every city carries a
// full set of age groups and a complete distribution.
func ExpectedCountsFor(cities int) ExpectedCounts {
	return ExpectedCounts{
		Cities:       cities,
		Coefficients: cities * len(AgeGroups),
		Percentiles:  cities * PercentileCount,
	}
}
