package domain

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDistSource = "tmean_distribution.csv"

// wideHeader builds "URAU_CODE" followed by one column per percentile.
func wideHeader(name func(p int) string) []string {
	header := []string{"URAU_CODE"}
	for p := MinPercentile; p <= MaxPercentile; p++ {
		header = append(header, name(p))
	}
	return header
}

func prefixed(p int) string { return fmt.Sprintf("p%d", p) }
func suffixed(p int) string { return fmt.Sprintf("%d.0%%", p) }

// wideRow spreads temperatures linearly from -5 at p0 to 35 at p100.
func wideRow(code string) []string {
	row := []string{code}
	for p := MinPercentile; p <= MaxPercentile; p++ {
		row = append(row, strconv.FormatFloat(-5+0.4*float64(p), 'f', -1, 64))
	}
	return row
}

func TestParsePercentileColumn(t *testing.T) {
	tests := []struct {
		name    string
		want    int
		ok      bool
		wantErr error
	}{
		{name: "p0", want: 0, ok: true},
		{name: "P100", want: 100, ok: true},
		{name: "50.0%", want: 50, ok: true},
		{name: "7%", want: 7, ok: true},
		{name: "URAU_CODE"},
		{name: "mean"},
		{name: "p101", ok: true, wantErr: ErrPercentileOutOfRange},
		{name: "-1.0%", ok: true, wantErr: ErrPercentileOutOfRange},
		{name: "2.5%", ok: true, wantErr: ErrPercentileOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := ParsePercentileColumn(tt.name)
			assert.Equal(t, tt.ok, ok)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDistributionHeader(t *testing.T) {
	t.Run("both naming conventions", func(t *testing.T) {
		for _, name := range []func(int) string{prefixed, suffixed} {
			layout, issues, err := ParseDistributionHeader(testDistSource, wideHeader(name))
			require.NoError(t, err)
			assert.Empty(t, issues)
			assert.Equal(t, 0, layout.CityColumn)
			require.Len(t, layout.Columns, PercentileCount)
			for i, col := range layout.Columns {
				assert.Equal(t, i, col.Percentile)
			}
		}
	})

	t.Run("missing city column is fatal", func(t *testing.T) {
		_, _, err := ParseDistributionHeader(testDistSource, []string{"p0", "p1"})
		assert.ErrorIs(t, err, ErrMissingColumn)
	})

	t.Run("gaps, duplicates and out of range are reported", func(t *testing.T) {
		header := wideHeader(prefixed)
		header[51] = "p49"  // p50 replaced by a duplicate of p49
		header[11] = "p150" // p10 replaced by an out-of-range column

		layout, issues, err := ParseDistributionHeader(testDistSource, header)
		require.NoError(t, err)
		assert.Len(t, layout.Columns, PercentileCount-2)

		require.Len(t, issues, 3)
		assert.ErrorIs(t, issues[0], ErrPercentileOutOfRange)
		assert.ErrorIs(t, issues[1], ErrDuplicatePercentile)
		assert.ErrorIs(t, issues[2], ErrMissingPercentile)
		assert.Contains(t, issues[2].Error(), "10, 50")
	})

	t.Run("columns out of order are sorted", func(t *testing.T) {
		header := wideHeader(prefixed)
		header[1], header[101] = header[101], header[1]

		layout, _, err := ParseDistributionHeader(testDistSource, header)
		require.NoError(t, err)
		assert.Equal(t, 0, layout.Columns[0].Percentile)
		assert.Equal(t, 101, layout.Columns[0].Index)
		assert.Equal(t, 100, layout.Columns[100].Percentile)
		assert.Equal(t, 1, layout.Columns[100].Index)
	})
}

func TestReshape(t *testing.T) {
	layout, _, err := ParseDistributionHeader(testDistSource, wideHeader(prefixed))
	require.NoError(t, err)

	t.Run("one wide row becomes 101 contiguous samples", func(t *testing.T) {
		code, samples, issues := layout.Reshape(testDistSource, DistributionRecord{Line: 2, Fields: wideRow(testViennaCode)})
		assert.Empty(t, issues)
		assert.Equal(t, testViennaCode, code)
		require.Len(t, samples, PercentileCount)
		for i, s := range samples {
			assert.Equal(t, testViennaCode, s.CityCode)
			assert.Equal(t, i, s.Percentile)
		}
		assert.Empty(t, MissingPercentiles(samples))

		assert.Equal(t, -5.0, samples[0].Temperature)
		assert.Equal(t, 35.0, samples[100].Temperature)
		p50, ok := PercentileValue(samples, 50)
		require.True(t, ok)
		assert.InDelta(t, 15.0, p50, 1e-9)
	})

	t.Run("bad values are reported and skipped", func(t *testing.T) {
		row := wideRow(testViennaCode)
		row[1+20] = ""
		row[1+30] = "warm"

		_, samples, issues := layout.Reshape(testDistSource, DistributionRecord{Line: 3, Fields: row})
		assert.Len(t, samples, PercentileCount-2)
		require.Len(t, issues, 2)
		for _, issue := range issues {
			assert.ErrorIs(t, issue, ErrInvalidTemperature)
		}
		assert.Equal(t, []int{20, 30}, MissingPercentiles(samples))
	})

	t.Run("short row", func(t *testing.T) {
		row := wideRow(testViennaCode)[:100] // drops p99 and p100

		_, samples, issues := layout.Reshape(testDistSource, DistributionRecord{Line: 4, Fields: row})
		assert.Len(t, samples, PercentileCount-2)
		require.Len(t, issues, 2)
		assert.ErrorIs(t, issues[0], ErrMissingPercentile)
	})

	t.Run("malformed city code yields nothing", func(t *testing.T) {
		_, samples, issues := layout.Reshape(testDistSource, DistributionRecord{Line: 5, Fields: wideRow("9")})
		assert.Empty(t, samples)
		require.Len(t, issues, 1)
		assert.ErrorIs(t, issues[0], ErrInvalidCityCode)
	})
}

func TestFormatPercentiles(t *testing.T) {
	assert.Equal(t, "0-4, 7, 99-100", formatPercentiles([]int{0, 1, 2, 3, 4, 7, 99, 100}))
	assert.Equal(t, "", formatPercentiles(nil))
}
