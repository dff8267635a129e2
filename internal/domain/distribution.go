package domain

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var (
	// prefixedPercentileRe matches prefixed column names: "p0" .. "p100".
	prefixedPercentileRe = regexp.MustCompile(`^[pP](\d+(?:\.\d+)?)$`)

	// suffixedPercentileRe matches quantile-export names: "0.0%" .. "100.0%".
	suffixedPercentileRe = regexp.MustCompile(`^(-?\d+(?:\.\d+)?)\s*%$`)
)

// cityColumnNames are the accepted headers for the city code column.
var cityColumnNames = []string{"urau_code", "city_code", "city"}

// PercentileColumn maps a header column index to the percentile it holds.
type PercentileColumn struct {
	Index      int
	Percentile int
}

// DistributionLayout locates the city code and percentile columns of a wide
// distribution header.
type DistributionLayout struct {
	CityColumn int
	Columns    []PercentileColumn // ascending by percentile, no duplicates
}

// DistributionRecord is one unvalidated wide row of the distribution CSV.
type DistributionRecord struct {
	Line   int
	Fields []string
}

// ParsePercentileColumn reports whether a header names a percentile and
// which one. ok is false for unrelated columns; err is set for names that
// look like a percentile but are not an integer in [0, 100].
func ParsePercentileColumn(name string) (percentile int, ok bool, err error) {
	name = strings.TrimSpace(name)

	var raw string
	if m := prefixedPercentileRe.FindStringSubmatch(name); m != nil {
		raw = m[1]
	} else if m := suffixedPercentileRe.FindStringSubmatch(name); m != nil {
		raw = m[1]
	} else {
		return 0, false, nil
	}

	v, perr := strconv.ParseFloat(raw, 64)
	if perr != nil || v != math.Trunc(v) {
		return 0, true, fmt.Errorf("%w: column %q is not an integer percentile", ErrPercentileOutOfRange, name)
	}
	if v < MinPercentile || v > MaxPercentile {
		return 0, true, fmt.Errorf("%w: column %q", ErrPercentileOutOfRange, name)
	}
	return int(v), true, nil
}

// ParseDistributionHeader builds the layout of a wide distribution header.
// A missing city column is fatal for the file. Out-of-range, duplicate and
// missing percentile columns are returned as issues; the layout then holds
// only the usable columns.
func ParseDistributionHeader(source string, header []string) (DistributionLayout, []error, error) {
	layout := DistributionLayout{CityColumn: -1}
	var issues []error
	seen := make(map[int]bool, PercentileCount)

	for i, name := range header {
		if layout.CityColumn < 0 && isCityColumn(name) {
			layout.CityColumn = i
			continue
		}
		p, ok, err := ParsePercentileColumn(name)
		if !ok {
			continue
		}
		if err != nil {
			issues = append(issues, &RowError{Source: source, Line: 1, Err: err})
			continue
		}
		if seen[p] {
			issues = append(issues, &RowError{
				Source: source,
				Line:   1,
				Err:    fmt.Errorf("%w: %d (column %q ignored)", ErrDuplicatePercentile, p, name),
			})
			continue
		}
		seen[p] = true
		layout.Columns = append(layout.Columns, PercentileColumn{Index: i, Percentile: p})
	}

	if layout.CityColumn < 0 {
		return DistributionLayout{}, nil, fmt.Errorf("%s: %w: city code (one of %s)",
			source, ErrMissingColumn, strings.Join(cityColumnNames, ", "))
	}

	slices.SortFunc(layout.Columns, func(a, b PercentileColumn) int { return a.Percentile - b.Percentile })

	if missing := missingFrom(seen); len(missing) > 0 {
		issues = append(issues, &RowError{
			Source: source,
			Line:   1,
			Err:    fmt.Errorf("%w: %s", ErrMissingPercentile, formatPercentiles(missing)),
		})
	}
	return layout, issues, nil
}

// Reshape pivots one wide row into one sample per percentile column. Values
// that are empty or not finite numbers are reported and skipped; a row with
// a malformed city code yields no samples.
func (l DistributionLayout) Reshape(source string, rec DistributionRecord) (string, []PercentileSample, []error) {
	if l.CityColumn >= len(rec.Fields) {
		return "", nil, []error{&RowError{Source: source, Line: rec.Line, Err: fmt.Errorf("%w: city code", ErrMissingColumn)}}
	}
	code := NormalizeCityCode(rec.Fields[l.CityColumn])
	if _, err := CountryCode(code); err != nil {
		return code, nil, []error{&RowError{Source: source, Line: rec.Line, CityCode: rec.Fields[l.CityColumn], Err: err}}
	}

	samples := make([]PercentileSample, 0, len(l.Columns))
	var issues []error
	for _, col := range l.Columns {
		if col.Index >= len(rec.Fields) {
			issues = append(issues, &RowError{
				Source:   source,
				Line:     rec.Line,
				CityCode: code,
				Err:      fmt.Errorf("%w: p%d has no value", ErrMissingPercentile, col.Percentile),
			})
			continue
		}
		raw := rec.Fields[col.Index]
		t, err := parseFinite(raw)
		if err != nil {
			issues = append(issues, &RowError{
				Source:   source,
				Line:     rec.Line,
				CityCode: code,
				Err:      fmt.Errorf("%w: p%d=%q", ErrInvalidTemperature, col.Percentile, raw),
			})
			continue
		}
		samples = append(samples, PercentileSample{CityCode: code, Percentile: col.Percentile, Temperature: t})
	}
	return code, samples, issues
}

// MissingPercentiles returns the percentiles of 0..100 absent from samples.
func MissingPercentiles(samples []PercentileSample) []int {
	seen := make(map[int]bool, len(samples))
	for _, s := range samples {
		seen[s.Percentile] = true
	}
	return missingFrom(seen)
}

// PercentileValue returns the temperature recorded for percentile p.
func PercentileValue(samples []PercentileSample, p int) (float64, bool) {
	for _, s := range samples {
		if s.Percentile == p {
			return s.Temperature, true
		}
	}
	return 0, false
}

func isCityColumn(name string) bool {
	return slices.Contains(cityColumnNames, strings.ToLower(strings.TrimSpace(name)))
}

func missingFrom(seen map[int]bool) []int {
	var missing []int
	for p := MinPercentile; p <= MaxPercentile; p++ {
		if !seen[p] {
			missing = append(missing, p)
		}
	}
	return missing
}

// formatPercentiles renders a sorted list compactly, collapsing runs: "0-4, 7, 99".
func formatPercentiles(ps []int) string {
	var b strings.Builder
	for i := 0; i < len(ps); {
		j := i
		for j+1 < len(ps) && ps[j+1] == ps[j]+1 {
			j++
		}
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		if j > i {
			fmt.Fprintf(&b, "%d-%d", ps[i], ps[j])
		} else {
			fmt.Fprintf(&b, "%d", ps[i])
		}
		i = j + 1
	}
	return b.String()
}
