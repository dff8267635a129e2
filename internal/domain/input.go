package domain

// CoefficientInput is the parsed coefficients table. Source names the input
// in row errors.
type CoefficientInput struct {
	Source  string
	Records []CoefficientRecord
}

// DistributionInput is the wide distribution table before reshaping.
type DistributionInput struct {
	Source  string
	Header  []string
	Records []DistributionRecord
}

// SeriesInput holds daily temperatures grouped by city code. Issues are the
// rows rejected while reading.
type SeriesInput struct {
	Source string
	Series map[string][]float64
	Issues []error
}
