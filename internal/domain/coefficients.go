package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CoefficientRecord is one unvalidated row of the coefficients CSV.
type CoefficientRecord struct {
	Line        int
	CityCode    string
	CountryCode string // optional column, derivable from CityCode
	AgeGroup    string
	Values      [CoefficientCount]string
}

// ParseAgeGroup maps a raw label onto one of the recognized age groups.
func ParseAgeGroup(raw string) (AgeGroup, error) {
	label := strings.TrimSpace(raw)
	for _, g := range AgeGroups {
		if string(g) == label {
			return g, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAgeGroup, raw)
}

// ParseCoefficientRecord validates a coefficients row: the city code must carry
// a country prefix, the age group must be recognized and all five
// coefficients must parse as finite numbers.
func ParseCoefficientRecord(rec CoefficientRecord) (CoefficientSet, error) {
	code := NormalizeCityCode(rec.CityCode)
	if _, err := CountryCode(code); err != nil {
		return CoefficientSet{}, err
	}

	group, err := ParseAgeGroup(rec.AgeGroup)
	if err != nil {
		return CoefficientSet{}, err
	}

	set := CoefficientSet{CityCode: code, AgeGroup: group}
	for i, raw := range rec.Values {
		v, err := parseFinite(raw)
		if err != nil {
			return CoefficientSet{}, fmt.Errorf("%w: b%d=%q", ErrInvalidCoefficient, i+1, raw)
		}
		set.Coefficients[i] = v
	}
	return set, nil
}

// parseFinite parses a float and rejects NaN and infinities.
func parseFinite(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", raw)
	}
	return v, nil
}
