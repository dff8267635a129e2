package domain

import (
	"errors"
	"fmt"
)

// Row-level data defects. They are recoverable: the offending row (or value)
// is skipped and counted, the run continues.
var (
	ErrInvalidCityCode       = errors.New("invalid city code")
	ErrInvalidAgeGroup       = errors.New("invalid age group")
	ErrInvalidCoefficient    = errors.New("invalid coefficient")
	ErrMissingColumn         = errors.New("missing column")
	ErrMissingPercentile     = errors.New("missing percentile")
	ErrPercentileOutOfRange  = errors.New("percentile out of range")
	ErrDuplicatePercentile   = errors.New("duplicate percentile")
	ErrInvalidTemperature    = errors.New("invalid temperature")
	ErrUnknownCity           = errors.New("unknown city")
	ErrInvalidHistogramRange = errors.New("invalid histogram range")
	ErrDuplicateRow          = errors.New("duplicate row")
)

// ErrCountryMismatch flags a country column that disagrees with the city code
// prefix. The row is kept with the derived country.
var ErrCountryMismatch = errors.New("country code mismatch")

// RowError locates a data defect in an input file.
type RowError struct {
	Source   string // input file name
	Line     int    // 1-based line number, 0 when the defect is not tied to a line
	CityCode string
	Err      error
}

func (e *RowError) Error() string {
	switch {
	case e.Line > 0 && e.CityCode != "":
		return fmt.Sprintf("%s:%d (%s): %v", e.Source, e.Line, e.CityCode, e.Err)
	case e.Line > 0:
		return fmt.Sprintf("%s:%d: %v", e.Source, e.Line, e.Err)
	case e.CityCode != "":
		return fmt.Sprintf("%s (%s): %v", e.Source, e.CityCode, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Source, e.Err)
	}
}

func (e *RowError) Unwrap() error { return e.Err }
