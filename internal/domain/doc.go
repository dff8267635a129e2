// Package domain models the climate-risk reference data for European cities:
// temperature-mortality exposure-response coefficients, daily temperature
// distributions and precomputed histograms.
//
// # Data Sources
//
// All inputs are flat CSV exports produced upstream (model fitting and
// ERA5-Land reanalysis). Nothing in this package touches a database: every
// transform is a pure function so it can be tested on literal rows.
//
// # URAU City Codes
//
// Cities are identified by Urban Audit (URAU) codes such as "AT001C" or
// "DE004C". The first two letters are the country code (Eurostat
// conventions, so Greece is "EL"). Codes shorter than two characters or
// without a letter prefix are rejected by [CountryCode].
//
// # Exposure-Response Coefficients
//
// Each (city, age group) pair carries five coefficients b1..b5 of a
// quadratic B-spline basis. Age groups are fixed:
//
//	20-44 | 45-64 | 65-74 | 75-84 | 85+
//
// Any other label is a row defect (see [ParseAgeGroup]).
//
// # Temperature Distributions
//
// The distribution CSV is wide: one row per city and one column per
// percentile. Two header conventions are accepted:
//
//	p0, p1, ..., p100          (documented format)
//	0.0%, 1.0%, ..., 100.0%    (quantile export format)
//
// [DistributionLayout.Reshape] pivots a row into 101 (city, percentile,
// temperature) samples. Missing, duplicate, fractional or out-of-range
// percentile columns are reported, never silently dropped.
//
// # Histograms
//
// Histograms are computed from the daily mean temperature series for each
// configured resolution (20, 30 and 50 bins by default). Regular bins span
// [p1, p99] of the city's distribution; observations outside that range go
// into one extreme bin on each side (see [ComputeHistogram]).
package domain
