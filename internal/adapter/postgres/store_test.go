package postgres_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/urau-climate-etl/internal/adapter/postgres"
	"github.com/couchcryptid/urau-climate-etl/internal/domain"
	"github.com/couchcryptid/urau-climate-etl/internal/testinfra"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, batchSize int) (*postgres.Store, *pgxpool.Pool) {
	t.Helper()
	connStr := testinfra.RequireDatabase(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, connStr, 20*time.Second, slog.Default())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := postgres.NewStore(pool, batchSize, slog.Default())
	require.NoError(t, store.ApplySchema(ctx))
	return store, pool
}

func city(code, name string) domain.City {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return domain.City{Code: code, CountryCode: code[:2], Name: name, CreatedAt: now, UpdatedAt: now}
}

func coefficients(code string) []domain.CoefficientSet {
	out := make([]domain.CoefficientSet, 0, len(domain.AgeGroups))
	for i, ag := range domain.AgeGroups {
		out = append(out, domain.CoefficientSet{
			CityCode:     code,
			AgeGroup:     ag,
			Coefficients: [5]float64{0.1 * float64(i), 0.2, 0.3, 0.4, 0.5},
		})
	}
	return out
}

func distribution(code string, offset float64) []domain.PercentileSample {
	out := make([]domain.PercentileSample, 0, domain.PercentileCount)
	for p := domain.MinPercentile; p <= domain.MaxPercentile; p++ {
		out = append(out, domain.PercentileSample{CityCode: code, Percentile: p, Temperature: offset + 0.3*float64(p)})
	}
	return out
}

func TestApplySchema_Idempotent(t *testing.T) {
	store, pool := newTestStore(t, 100)
	ctx := context.Background()

	require.NoError(t, store.ApplySchema(ctx))

	var fks int
	err := pool.QueryRow(ctx, `
SELECT count(*) FROM pg_constraint
WHERE contype = 'f' AND confdeltype = 'c'
  AND conname IN ('fk_bspline_coefficients_city', 'fk_temperature_distribution_city')`).Scan(&fks)
	require.NoError(t, err)
	assert.Equal(t, 2, fks)
}

func TestUpsertCities_CountsExisting(t *testing.T) {
	store, pool := newTestStore(t, 1)
	ctx := context.Background()

	inserted, existing, err := store.UpsertCities(ctx, []domain.City{city("AT001C", ""), city("DE001C", "Berlin")})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	assert.Equal(t, 0, existing)

	renamed := city("AT001C", "Wien")
	renamed.CountryCode = "XX"
	inserted, existing, err = store.UpsertCities(ctx, []domain.City{renamed, city("DE001C", "Other")})
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
	assert.Equal(t, 2, existing)

	var country, name string
	require.NoError(t, pool.QueryRow(ctx, `SELECT country_code, name FROM urau_cities WHERE urau_code = 'AT001C'`).Scan(&country, &name))
	assert.Equal(t, "AT", country, "country code is never rewritten")
	assert.Equal(t, "Wien", name, "missing name is filled in")

	require.NoError(t, pool.QueryRow(ctx, `SELECT name FROM urau_cities WHERE urau_code = 'DE001C'`).Scan(&name))
	assert.Equal(t, "Berlin", name)
}

func TestUpsertCoefficients_Overwrites(t *testing.T) {
	store, pool := newTestStore(t, 2)
	ctx := context.Background()

	_, _, err := store.UpsertCities(ctx, []domain.City{city("AT001C", "")})
	require.NoError(t, err)

	n, err := store.UpsertCoefficients(ctx, coefficients("AT001C"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	updated := coefficients("AT001C")
	updated[0].Coefficients[0] = 9.5
	_, err = store.UpsertCoefficients(ctx, updated)
	require.NoError(t, err)

	counts, err := store.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, counts.Coefficients)

	var b1 float64
	require.NoError(t, pool.QueryRow(ctx, `SELECT b1 FROM bspline_coefficients WHERE urau_code = 'AT001C' AND agegroup = '20-44'`).Scan(&b1))
	assert.InDelta(t, 9.5, b1, 1e-12)
}

func TestUpsertCoefficients_UnknownCityRollsBack(t *testing.T) {
	store, _ := newTestStore(t, 10)
	ctx := context.Background()

	_, err := store.UpsertCoefficients(ctx, coefficients("FR001C"))
	require.Error(t, err)

	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "23503", pgErr.Code)

	counts, err := store.TableCounts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.Coefficients)
}

func TestCascadeDelete(t *testing.T) {
	store, pool := newTestStore(t, 50)
	ctx := context.Background()

	_, _, err := store.UpsertCities(ctx, []domain.City{city("AT001C", ""), city("DE001C", "")})
	require.NoError(t, err)
	_, err = store.UpsertCoefficients(ctx, append(coefficients("AT001C"), coefficients("DE001C")...))
	require.NoError(t, err)
	_, err = store.UpsertDistribution(ctx, append(distribution("AT001C", -5), distribution("DE001C", -8)...))
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `DELETE FROM urau_cities WHERE urau_code = 'AT001C'`)
	require.NoError(t, err)

	counts, err := store.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.TableCounts{Cities: 1, Coefficients: 5, Percentiles: 101}, counts)
}

func TestUpsertDistribution_Idempotent(t *testing.T) {
	store, _ := newTestStore(t, 40)
	ctx := context.Background()

	_, _, err := store.UpsertCities(ctx, []domain.City{city("AT001C", "")})
	require.NoError(t, err)

	for range 2 {
		n, err := store.UpsertDistribution(ctx, distribution("AT001C", -5))
		require.NoError(t, err)
		assert.Equal(t, 101, n)
	}

	counts, err := store.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 101, counts.Percentiles)

	incomplete, err := store.IncompleteDistributions(ctx)
	require.NoError(t, err)
	assert.Empty(t, incomplete)
}

func TestReplaceHistograms(t *testing.T) {
	store, _ := newTestStore(t, 7)
	ctx := context.Background()

	temps := []float64{-10, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 25}
	first, err := domain.ComputeHistogram("AT001C", temps, 0, 10, 20)
	require.NoError(t, err)
	n, err := store.ReplaceHistograms(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, len(first), n)

	// A narrower range shifts every bin_start, so stale bins must be removed.
	second, err := domain.ComputeHistogram("AT001C", temps, 1, 9, 20)
	require.NoError(t, err)
	_, err = store.ReplaceHistograms(ctx, second)
	require.NoError(t, err)

	summary, err := store.HistogramSummary(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.Equal(t, domain.ResolutionSummary{BinsTotal: 20, Bins: len(second), Cities: 1}, summary[0])

	orphans, err := store.OrphanHistogramCities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, orphans)
}

func TestVerificationQueries(t *testing.T) {
	store, _ := newTestStore(t, 500)
	ctx := context.Background()

	code, groups, err := store.SampleCity(ctx)
	require.NoError(t, err)
	assert.Empty(t, code)
	assert.Zero(t, groups)

	_, _, err = store.UpsertCities(ctx, []domain.City{city("AT001C", ""), city("DE001C", "")})
	require.NoError(t, err)
	_, err = store.UpsertCoefficients(ctx, coefficients("AT001C"))
	require.NoError(t, err)
	_, err = store.UpsertDistribution(ctx, distribution("AT001C", 0)[:99])
	require.NoError(t, err)

	code, groups, err = store.SampleCity(ctx)
	require.NoError(t, err)
	assert.Equal(t, "AT001C", code)
	assert.Equal(t, 5, groups)

	missingCoefs, err := store.IncompleteCoefficients(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.CityCoverage{{CityCode: "DE001C", Rows: 0}}, missingCoefs)

	incomplete, err := store.IncompleteDistributions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.CityCoverage{{CityCode: "AT001C", Rows: 99}, {CityCode: "DE001C", Rows: 0}}, incomplete)

	codes, err := store.CityCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"AT001C": true, "DE001C": true}, codes)
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := postgres.Connect(context.Background(), "postgres://%zz", time.Second, slog.Default())
	require.ErrorIs(t, err, postgres.ErrConnection)
}
