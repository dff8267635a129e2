package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpectedCountsFor(t *testing.T) {
	assert.Equal(t, ExpectedCounts{Cities: 3, Coefficients: 15, Percentiles: 303}, ExpectedCountsFor(3))
}

func TestCompareCounts(t *testing.T) {
	expected := ExpectedCountsFor(2)

	t.Run("match", func(t *testing.T) {
		assert.Empty(t, CompareCounts(expected, TableCounts{Cities: 2, Coefficients: 10, Percentiles: 202, Histograms: 99}))
	})

	t.Run("mismatch on every table", func(t *testing.T) {
		got := CompareCounts(expected, TableCounts{Cities: 3, Coefficients: 9, Percentiles: 200})
		require.Len(t, got, 3)
		assert.Equal(t, "urau_cities: expected 2, got 3", got[0].String())
		assert.Equal(t, "bspline_coefficients: expected 10, got 9 (2 cities x 5 age groups)", got[1].String())
		assert.Equal(t, "temperature_distribution", got[2].Check)
	})
}

func TestCoverageDiscrepancies(t *testing.T) {
	got := CoverageDiscrepancies("percentiles per city", PercentileCount, []CityCoverage{{CityCode: "AT001C", Rows: 99}})
	require.Len(t, got, 1)
	assert.Equal(t, "percentiles per city: expected 101, got 99 (AT001C)", got[0].String())
}
