// Package csvsource reads the flat CSV inputs of the loader: the
// coefficients file, the wide temperature distribution file and the daily
// temperature series. Readers only split rows into fields; validation lives
// in the domain package.
package csvsource

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/urau-climate-etl/internal/domain"
)

// Accepted header names per logical column, compared case-insensitively.
var (
	cityColumns        = []string{"urau_code", "city_code", "city"}
	countryColumns     = []string{"country_code", "country", "cntr_code"}
	ageGroupColumns    = []string{"agegroup", "age_group"}
	temperatureColumns = []string{"era5landtmean", "tmean", "temperature"}
)

// ReadCoefficients reads the coefficients CSV at path.
func ReadCoefficients(path string) ([]domain.CoefficientRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open coefficients: %w", err)
	}
	defer f.Close()
	return ParseCoefficients(filepath.Base(path), f)
}

// ParseCoefficients reads coefficient rows. Columns are located by header
// name; a missing required column fails the whole file.
func ParseCoefficients(source string, r io.Reader) ([]domain.CoefficientRecord, error) {
	cr := newReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", source, err)
	}

	idx := indexHeader(header)
	cityCol, err := requireColumn(source, idx, cityColumns...)
	if err != nil {
		return nil, err
	}
	ageCol, err := requireColumn(source, idx, ageGroupColumns...)
	if err != nil {
		return nil, err
	}
	var valueCols [domain.CoefficientCount]int
	for i := range valueCols {
		if valueCols[i], err = requireColumn(source, idx, fmt.Sprintf("b%d", i+1)); err != nil {
			return nil, err
		}
	}
	countryCol := findColumn(idx, countryColumns...)

	var records []domain.CoefficientRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
		line, _ := cr.FieldPos(0)

		rec := domain.CoefficientRecord{
			Line:        line,
			CityCode:    field(row, cityCol),
			CountryCode: field(row, countryCol),
			AgeGroup:    field(row, ageCol),
		}
		for i, col := range valueCols {
			rec.Values[i] = field(row, col)
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReadDistribution reads the wide distribution CSV at path and returns its
// header with the data rows.
func ReadDistribution(path string) ([]string, []domain.DistributionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open distribution: %w", err)
	}
	defer f.Close()
	return ParseDistribution(filepath.Base(path), f)
}

// ParseDistribution reads a wide distribution file without interpreting
// its columns.
func ParseDistribution(source string, r io.Reader) ([]string, []domain.DistributionRecord, error) {
	cr := newReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: read header: %w", source, err)
	}
	header = stripBOM(header)

	var records []domain.DistributionRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", source, err)
		}
		line, _ := cr.FieldPos(0)
		records = append(records, domain.DistributionRecord{Line: line, Fields: row})
	}
	return header, records, nil
}

// ReadSeries reads the daily temperature series at path, grouped by city in
// file order.
func ReadSeries(path string) (map[string][]float64, []error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open series: %w", err)
	}
	defer f.Close()
	return ParseSeries(filepath.Base(path), f)
}

// ParseSeries reads (city, temperature) observations. Rows with a malformed
// city code or temperature are returned as issues and skipped.
func ParseSeries(source string, r io.Reader) (map[string][]float64, []error, error) {
	cr := newReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: read header: %w", source, err)
	}
	idx := indexHeader(header)
	cityCol, err := requireColumn(source, idx, cityColumns...)
	if err != nil {
		return nil, nil, err
	}
	tempCol, err := requireColumn(source, idx, temperatureColumns...)
	if err != nil {
		return nil, nil, err
	}

	series := make(map[string][]float64)
	var issues []error
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", source, err)
		}
		line, _ := cr.FieldPos(0)

		obs, err := domain.ParseDailyTemperature(field(row, cityCol), field(row, tempCol))
		if err != nil {
			issues = append(issues, &domain.RowError{Source: source, Line: line, CityCode: field(row, cityCol), Err: err})
			continue
		}
		series[obs.CityCode] = append(series[obs.CityCode], obs.Temperature)
	}
	return series, issues, nil
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr
}

// indexHeader maps lower-cased column names to their position.
func indexHeader(header []string) map[string]int {
	header = stripBOM(header)
	idx := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

func findColumn(idx map[string]int, names ...string) int {
	for _, n := range names {
		if i, ok := idx[n]; ok {
			return i
		}
	}
	return -1
}

func requireColumn(source string, idx map[string]int, names ...string) (int, error) {
	i := findColumn(idx, names...)
	if i < 0 {
		return -1, fmt.Errorf("%s: %w: %s", source, domain.ErrMissingColumn, strings.Join(names, " or "))
	}
	return i, nil
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// stripBOM removes a UTF-8 byte order mark from the first header cell.
func stripBOM(header []string) []string {
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return header
}
