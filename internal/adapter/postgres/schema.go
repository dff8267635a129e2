package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type ddlStatement struct {
	name string
	sql  string
}

// coreSchema creates the three core tables. Tables and indexes are created
// only when absent; foreign keys are dropped and re-added on every run so
// they always carry ON DELETE CASCADE.
var coreSchema = []ddlStatement{
	{"create urau_cities", `
CREATE TABLE IF NOT EXISTS urau_cities (
    urau_code    VARCHAR(16) PRIMARY KEY,
    country_code CHAR(2)     NOT NULL,
    name         TEXT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`},
	{"create bspline_coefficients", `
CREATE TABLE IF NOT EXISTS bspline_coefficients (
    id         BIGSERIAL   PRIMARY KEY,
    urau_code  VARCHAR(16) NOT NULL,
    agegroup   VARCHAR(8)  NOT NULL CHECK (agegroup IN ('20-44', '45-64', '65-74', '75-84', '85+')),
    b1         DOUBLE PRECISION NOT NULL,
    b2         DOUBLE PRECISION NOT NULL,
    b3         DOUBLE PRECISION NOT NULL,
    b4         DOUBLE PRECISION NOT NULL,
    b5         DOUBLE PRECISION NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT uq_bspline_coefficients_city_agegroup UNIQUE (urau_code, agegroup)
)`},
	{"create temperature_distribution", `
CREATE TABLE IF NOT EXISTS temperature_distribution (
    id          BIGSERIAL   PRIMARY KEY,
    urau_code   VARCHAR(16) NOT NULL,
    percentile  SMALLINT    NOT NULL CHECK (percentile BETWEEN 0 AND 100),
    temperature DOUBLE PRECISION NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT uq_temperature_distribution_city_percentile UNIQUE (urau_code, percentile)
)`},
	{"index urau_cities country", `CREATE INDEX IF NOT EXISTS idx_urau_cities_country_code ON urau_cities (country_code)`},
	{"index bspline_coefficients city", `CREATE INDEX IF NOT EXISTS idx_bspline_coefficients_urau_code ON bspline_coefficients (urau_code)`},
	{"index temperature_distribution city", `CREATE INDEX IF NOT EXISTS idx_temperature_distribution_urau_code ON temperature_distribution (urau_code)`},
	{"drop bspline_coefficients fk", `ALTER TABLE bspline_coefficients DROP CONSTRAINT IF EXISTS fk_bspline_coefficients_city`},
	{"add bspline_coefficients fk", `
ALTER TABLE bspline_coefficients
    ADD CONSTRAINT fk_bspline_coefficients_city
    FOREIGN KEY (urau_code) REFERENCES urau_cities (urau_code) ON DELETE CASCADE`},
	{"drop temperature_distribution fk", `ALTER TABLE temperature_distribution DROP CONSTRAINT IF EXISTS fk_temperature_distribution_city`},
	{"add temperature_distribution fk", `
ALTER TABLE temperature_distribution
    ADD CONSTRAINT fk_temperature_distribution_city
    FOREIGN KEY (urau_code) REFERENCES urau_cities (urau_code) ON DELETE CASCADE`},
}

// histogramSchema holds the precomputed histogram table. It has no foreign
// key to urau_cities: histograms may be loaded for cities outside the
// coefficients input.
var histogramSchema = []ddlStatement{
	{"create temperature_histogram", `
CREATE TABLE IF NOT EXISTS temperature_histogram (
    id         BIGSERIAL   PRIMARY KEY,
    urau_code  VARCHAR(16) NOT NULL,
    bin_start  DOUBLE PRECISION NOT NULL,
    bin_end    DOUBLE PRECISION NOT NULL,
    bin_center DOUBLE PRECISION NOT NULL,
    "count"    INTEGER     NOT NULL CHECK ("count" >= 0),
    bins_total SMALLINT    NOT NULL CHECK (bins_total > 0),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT uq_temperature_histogram_city_bin UNIQUE (urau_code, bin_start, bins_total)
)`},
	{"index temperature_histogram city", `CREATE INDEX IF NOT EXISTS idx_temperature_histogram_city_bins ON temperature_histogram (urau_code, bins_total)`},
}

// ApplySchema creates or reconciles all tables in a single transaction.
// Database errors (for example missing privileges) are returned with the
// server's message intact.
func (s *Store) ApplySchema(ctx context.Context) error {
	stmts := make([]ddlStatement, 0, len(coreSchema)+len(histogramSchema))
	stmts = append(stmts, coreSchema...)
	stmts = append(stmts, histogramSchema...)

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt.sql); err != nil {
				return fmt.Errorf("%s: %w", stmt.name, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	s.logger.Info("schema applied", "statements", len(stmts))
	return nil
}
