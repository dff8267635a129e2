package domain

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// cityCodeRe matches URAU city codes: a two-letter country prefix followed by
// alphanumerics, e.g. "AT001C" or "EL001C".
var cityCodeRe = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]*$`)

// NormalizeCityCode trims and upper-cases a raw city code.
func NormalizeCityCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// CountryCode derives the two-letter country code from a URAU city code.
// Codes shorter than two characters or without a letter prefix are rejected
// instead of producing a malformed country code.
func CountryCode(cityCode string) (string, error) {
	code := NormalizeCityCode(cityCode)
	if len(code) < 2 {
		return "", fmt.Errorf("%w: %q is shorter than 2 characters", ErrInvalidCityCode, cityCode)
	}
	if !cityCodeRe.MatchString(code) {
		return "", fmt.Errorf("%w: %q has no country prefix", ErrInvalidCityCode, cityCode)
	}
	return code[:2], nil
}

// ExtractCities projects the distinct cities referenced by the coefficient
// records, in first-seen order. Records with a malformed city code are
// reported once per code and produce no city. A country column that
// disagrees with the code prefix is reported as ErrCountryMismatch; the
// derived value wins and the city is kept.
func ExtractCities(source string, records []CoefficientRecord) ([]City, []error) {
	var (
		cities []City
		issues []error
		seen   = make(map[string]bool, len(records))
		now    = Now()
	)

	for _, rec := range records {
		code := NormalizeCityCode(rec.CityCode)
		if seen[code] {
			continue
		}
		seen[code] = true

		country, err := CountryCode(code)
		if err != nil {
			issues = append(issues, &RowError{Source: source, Line: rec.Line, CityCode: rec.CityCode, Err: err})
			continue
		}
		if given := strings.ToUpper(strings.TrimSpace(rec.CountryCode)); given != "" && given != country {
			issues = append(issues, &RowError{
				Source:   source,
				Line:     rec.Line,
				CityCode: code,
				Err:      fmt.Errorf("%w: country column %q does not match code prefix %q", ErrCountryMismatch, given, country),
			})
		}

		cities = append(cities, City{
			Code:        code,
			CountryCode: country,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return cities, issues
}

// NameResolver looks up display names for city codes.
type NameResolver interface {
	CityName(ctx context.Context, code string) (string, bool)
}

// EnrichWithNames fills City.Name from the resolver. A nil resolver leaves
// the cities unchanged. Returns the number of names found.
func EnrichWithNames(ctx context.Context, cities []City, resolver NameResolver) int {
	if resolver == nil {
		return 0
	}
	found := 0
	for i := range cities {
		if name, ok := resolver.CityName(ctx, cities[i].Code); ok {
			cities[i].Name = name
			found++
		}
	}
	return found
}
