package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/urau-climate-etl/internal/domain"
	"github.com/jackc/pgx/v5"
)

const (
	tableCountsSQL = `
SELECT (SELECT count(*) FROM urau_cities),
       (SELECT count(*) FROM bspline_coefficients),
       (SELECT count(*) FROM temperature_distribution),
       (SELECT count(*) FROM temperature_histogram)`

	percentileCoverageSQL = `
SELECT c.urau_code, count(d.id)
FROM urau_cities c
LEFT JOIN temperature_distribution d ON d.urau_code = c.urau_code
GROUP BY c.urau_code
HAVING count(d.id) <> $1
ORDER BY c.urau_code`

	coefficientCoverageSQL = `
SELECT c.urau_code, count(b.id)
FROM urau_cities c
LEFT JOIN bspline_coefficients b ON b.urau_code = c.urau_code
GROUP BY c.urau_code
HAVING count(b.id) <> $1
ORDER BY c.urau_code`

	histogramSummarySQL = `
SELECT bins_total, count(*), count(DISTINCT urau_code)
FROM temperature_histogram
GROUP BY bins_total
ORDER BY bins_total`

	orphanHistogramsSQL = `
SELECT count(DISTINCT h.urau_code)
FROM temperature_histogram h
WHERE NOT EXISTS (SELECT 1 FROM urau_cities c WHERE c.urau_code = h.urau_code)`

	sampleCitySQL = `
SELECT c.urau_code, count(b.id)
FROM urau_cities c
LEFT JOIN bspline_coefficients b ON b.urau_code = c.urau_code
GROUP BY c.urau_code
ORDER BY c.urau_code
LIMIT 1`
)

// TableCounts returns the row count of every table.
func (s *Store) TableCounts(ctx context.Context) (domain.TableCounts, error) {
	var c domain.TableCounts
	err := s.pool.QueryRow(ctx, tableCountsSQL).Scan(&c.Cities, &c.Coefficients, &c.Percentiles, &c.Histograms)
	if err != nil {
		return domain.TableCounts{}, fmt.Errorf("count rows: %w", err)
	}
	return c, nil
}

// IncompleteDistributions lists cities that do not have exactly one row per
// percentile 0..100.
func (s *Store) IncompleteDistributions(ctx context.Context) ([]domain.CityCoverage, error) {
	return s.coverage(ctx, percentileCoverageSQL, domain.PercentileCount)
}

// IncompleteCoefficients lists cities that do not have one row per age group.
func (s *Store) IncompleteCoefficients(ctx context.Context) ([]domain.CityCoverage, error) {
	return s.coverage(ctx, coefficientCoverageSQL, len(domain.AgeGroups))
}

// HistogramSummary aggregates stored bins per resolution.
func (s *Store) HistogramSummary(ctx context.Context) ([]domain.ResolutionSummary, error) {
	rows, err := s.pool.Query(ctx, histogramSummarySQL)
	if err != nil {
		return nil, fmt.Errorf("summarize histograms: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ResolutionSummary, error) {
		var r domain.ResolutionSummary
		var total int16
		err := row.Scan(&total, &r.Bins, &r.Cities)
		r.BinsTotal = int(total)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("summarize histograms: %w", err)
	}
	return out, nil
}

// OrphanHistogramCities counts cities with histograms but no urau_cities row.
func (s *Store) OrphanHistogramCities(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, orphanHistogramsSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("count orphan histograms: %w", err)
	}
	return n, nil
}

// SampleCity returns the first city by code and its number of age groups.
// An empty database yields an empty code.
func (s *Store) SampleCity(ctx context.Context) (string, int, error) {
	var (
		code string
		n    int
	)
	err := s.pool.QueryRow(ctx, sampleCitySQL).Scan(&code, &n)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("sample city: %w", err)
	}
	return code, n, nil
}

func (s *Store) coverage(ctx context.Context, sql string, expected int) ([]domain.CityCoverage, error) {
	rows, err := s.pool.Query(ctx, sql, expected)
	if err != nil {
		return nil, fmt.Errorf("check coverage: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[domain.CityCoverage])
	if err != nil {
		return nil, fmt.Errorf("check coverage: %w", err)
	}
	return out, nil
}
