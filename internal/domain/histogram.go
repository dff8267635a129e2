package domain

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Percentiles bounding the regular histogram range. Observations outside
// [p1, p99] are collected into one extreme bin on each side.
const (
	HistogramLowPercentile  = 1
	HistogramHighPercentile = 99
)

// DefaultHistogramResolutions are the bin counts precomputed per city.
var DefaultHistogramResolutions = []int{20, 30, 50}

// ComputeHistogram bins a city's daily temperatures into binsTotal equal-width
// bins over [p1, p99]. The last regular bin includes p99. A lower extreme bin
// [min, p1) and an upper extreme bin (p99, max] are added only when they hold
// observations. An empty series yields no bins.
func ComputeHistogram(code string, temps []float64, p1, p99 float64, binsTotal int) ([]HistogramBin, error) {
	if binsTotal < 1 {
		return nil, fmt.Errorf("%w: bins_total must be positive, got %d", ErrInvalidHistogramRange, binsTotal)
	}
	if math.IsNaN(p1) || math.IsNaN(p99) || !(p1 < p99) {
		return nil, fmt.Errorf("%w: p1=%g p99=%g", ErrInvalidHistogramRange, p1, p99)
	}
	if len(temps) == 0 {
		return nil, nil
	}

	sorted := slices.Clone(temps)
	slices.Sort(sorted)

	lo := sort.SearchFloat64s(sorted, p1)
	hi := sort.Search(len(sorted), func(i int) bool { return sorted[i] > p99 })
	below, main, above := sorted[:lo], sorted[lo:hi], sorted[hi:]

	edges := floats.Span(make([]float64, binsTotal+1), p1, p99)
	// stat.Histogram uses half-open bins; nudge the top divider so p99 lands in the last bin.
	dividers := slices.Clone(edges)
	dividers[binsTotal] = math.Nextafter(p99, math.Inf(1))
	counts := stat.Histogram(make([]float64, binsTotal), dividers, main, nil)

	bins := make([]HistogramBin, 0, binsTotal+2)
	if len(below) > 0 {
		bins = append(bins, newBin(code, below[0], p1, len(below), binsTotal))
	}
	for i, c := range counts {
		bins = append(bins, newBin(code, edges[i], edges[i+1], int(c), binsTotal))
	}
	if len(above) > 0 {
		bins = append(bins, newBin(code, p99, above[len(above)-1], len(above), binsTotal))
	}
	return bins, nil
}

// HistogramRange extracts the [p1, p99] range from a city's distribution.
func HistogramRange(samples []PercentileSample) (p1, p99 float64, err error) {
	p1, ok1 := PercentileValue(samples, HistogramLowPercentile)
	p99, ok99 := PercentileValue(samples, HistogramHighPercentile)
	if !ok1 || !ok99 {
		return 0, 0, fmt.Errorf("%w: p%d and p%d are required for histograms",
			ErrMissingPercentile, HistogramLowPercentile, HistogramHighPercentile)
	}
	return p1, p99, nil
}

// ParseDailyTemperature validates one observation of the daily series.
func ParseDailyTemperature(cityCode, raw string) (DailyTemperature, error) {
	code := NormalizeCityCode(cityCode)
	if _, err := CountryCode(code); err != nil {
		return DailyTemperature{}, err
	}
	t, err := parseFinite(raw)
	if err != nil {
		return DailyTemperature{}, fmt.Errorf("%w: %q", ErrInvalidTemperature, raw)
	}
	return DailyTemperature{CityCode: code, Temperature: t}, nil
}

func newBin(code string, start, end float64, count, binsTotal int) HistogramBin {
	return HistogramBin{
		CityCode:  code,
		BinStart:  start,
		BinEnd:    end,
		BinCenter: (start + end) / 2,
		Count:     count,
		BinsTotal: binsTotal,
	}
}
