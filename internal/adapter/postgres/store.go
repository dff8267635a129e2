package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/couchcryptid/urau-climate-etl/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// Existing cities keep their country; a missing name may be filled in later.
	upsertCitySQL = `
INSERT INTO urau_cities (urau_code, country_code, name, created_at, updated_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $4)
ON CONFLICT (urau_code) DO UPDATE
SET name = COALESCE(urau_cities.name, EXCLUDED.name),
    updated_at = EXCLUDED.updated_at
RETURNING (xmax = 0) AS inserted`

	upsertCoefficientsSQL = `
INSERT INTO bspline_coefficients (urau_code, agegroup, b1, b2, b3, b4, b5, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
ON CONFLICT (urau_code, agegroup) DO UPDATE
SET b1 = EXCLUDED.b1,
    b2 = EXCLUDED.b2,
    b3 = EXCLUDED.b3,
    b4 = EXCLUDED.b4,
    b5 = EXCLUDED.b5,
    updated_at = EXCLUDED.updated_at`

	upsertPercentileSQL = `
INSERT INTO temperature_distribution (urau_code, percentile, temperature, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (urau_code, percentile) DO UPDATE
SET temperature = EXCLUDED.temperature,
    updated_at = EXCLUDED.updated_at`

	deleteHistogramsSQL = `
DELETE FROM temperature_histogram
WHERE urau_code = ANY($1) AND bins_total = ANY($2::int[])`

	upsertHistogramBinSQL = `
INSERT INTO temperature_histogram (urau_code, bin_start, bin_end, bin_center, "count", bins_total)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (urau_code, bin_start, bins_total) DO UPDATE
SET bin_end = EXCLUDED.bin_end,
    bin_center = EXCLUDED.bin_center,
    "count" = EXCLUDED."count"`

	cityCodesSQL = `SELECT urau_code FROM urau_cities`
)

// Store writes each load phase inside its own transaction, sending rows in
// pgx batches of at most batchSize statements.
type Store struct {
	pool      *pgxpool.Pool
	batchSize int
	logger    *slog.Logger
}

// NewStore wraps an open pool. Batch sizes below 1 are treated as 1.
func NewStore(pool *pgxpool.Pool, batchSize int, logger *slog.Logger) *Store {
	return &Store{pool: pool, batchSize: max(batchSize, 1), logger: logger}
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// UpsertCities inserts cities not yet present. Existing rows keep their
// country code and only gain a name if they had none. Returns how many rows
// were newly inserted and how many already existed.
func (s *Store) UpsertCities(ctx context.Context, cities []domain.City) (inserted, existing int, err error) {
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for chunk := range slices.Chunk(cities, s.batchSize) {
			batch := &pgx.Batch{}
			for _, c := range chunk {
				batch.Queue(upsertCitySQL, c.Code, c.CountryCode, c.Name, c.UpdatedAt)
			}
			br := tx.SendBatch(ctx, batch)
			for _, c := range chunk {
				var isNew bool
				if err := br.QueryRow().Scan(&isNew); err != nil {
					_ = br.Close()
					return fmt.Errorf("upsert city %s: %w", c.Code, err)
				}
				if isNew {
					inserted++
				} else {
					existing++
				}
			}
			if err := br.Close(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("load cities: %w", err)
	}
	return inserted, existing, nil
}

// UpsertCoefficients inserts or overwrites one row per (city, age group).
func (s *Store) UpsertCoefficients(ctx context.Context, sets []domain.CoefficientSet) (int, error) {
	now := domain.Now()
	return s.execBatches(ctx, "load coefficients", len(sets), func(i int) (string, []any) {
		c := sets[i]
		b := c.Coefficients
		return upsertCoefficientsSQL, []any{c.CityCode, string(c.AgeGroup), b[0], b[1], b[2], b[3], b[4], now}
	})
}

// UpsertDistribution inserts or overwrites one row per (city, percentile).
func (s *Store) UpsertDistribution(ctx context.Context, samples []domain.PercentileSample) (int, error) {
	now := domain.Now()
	return s.execBatches(ctx, "load distribution", len(samples), func(i int) (string, []any) {
		p := samples[i]
		return upsertPercentileSQL, []any{p.CityCode, p.Percentile, p.Temperature, now}
	})
}

// ReplaceHistograms deletes the existing bins of every (city, bins_total)
// pair present in bins and inserts the new ones, in one transaction.
func (s *Store) ReplaceHistograms(ctx context.Context, bins []domain.HistogramBin) (int, error) {
	if len(bins) == 0 {
		return 0, nil
	}

	var (
		codes      []string
		totals     []int
		seenCode   = make(map[string]bool)
		seenTotals = make(map[int]bool)
	)
	for _, b := range bins {
		if !seenCode[b.CityCode] {
			seenCode[b.CityCode] = true
			codes = append(codes, b.CityCode)
		}
		if !seenTotals[b.BinsTotal] {
			seenTotals[b.BinsTotal] = true
			totals = append(totals, b.BinsTotal)
		}
	}

	var written int
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, deleteHistogramsSQL, codes, totals)
		if err != nil {
			return fmt.Errorf("delete previous bins: %w", err)
		}
		s.logger.Debug("previous histogram bins removed", "rows", tag.RowsAffected(), "cities", len(codes))

		written, err = sendBatches(ctx, tx, s.batchSize, len(bins), func(i int) (string, []any) {
			b := bins[i]
			return upsertHistogramBinSQL, []any{b.CityCode, b.BinStart, b.BinEnd, b.BinCenter, b.Count, b.BinsTotal}
		})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("load histograms: %w", err)
	}
	return written, nil
}

// CityCodes returns the set of city codes currently stored.
func (s *Store) CityCodes(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, cityCodesSQL)
	if err != nil {
		return nil, fmt.Errorf("query city codes: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("query city codes: %w", err)
	}
	out := make(map[string]bool, len(codes))
	for _, c := range codes {
		out[c] = true
	}
	return out, nil
}

// execBatches runs n queued statements in a single transaction.
func (s *Store) execBatches(ctx context.Context, op string, n int, stmt func(i int) (string, []any)) (int, error) {
	if n == 0 {
		return 0, nil
	}
	var written int
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		written, err = sendBatches(ctx, tx, s.batchSize, n, stmt)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return written, nil
}

// sendBatches queues statements in chunks of size and returns the number of
// rows affected. The first failing statement aborts the batch.
func sendBatches(ctx context.Context, tx pgx.Tx, size, n int, stmt func(i int) (string, []any)) (int, error) {
	var affected int
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		batch := &pgx.Batch{}
		for i := start; i < end; i++ {
			sql, args := stmt(i)
			batch.Queue(sql, args...)
		}
		br := tx.SendBatch(ctx, batch)
		for i := start; i < end; i++ {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return 0, fmt.Errorf("row %d: %w", i, err)
			}
			affected += int(tag.RowsAffected())
		}
		if err := br.Close(); err != nil {
			return 0, err
		}
	}
	return affected, nil
}
