// Command genmock writes deterministic synthetic inputs for local runs and
// tests: a coefficients CSV, a wide temperature distribution CSV, a daily
// ERA5-style series CSV and a URAU GeoJSON carrying city names. Percentiles
// are computed from the generated series, so the files are mutually
// consistent.
//
// Usage:
//
//	go run ./cmd/genmock -out-dir data/mock -cities 12 -days 3650 -seed 7
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/couchcryptid/urau-climate-etl/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Output file names, matching the loader defaults.
const (
	coefsFile        = "coefs.csv"
	distributionFile = "tmean_distribution.csv"
	seriesFile       = "era5series.csv"
	geojsonFile      = "URAU_RG_100K_2021_3035.geojson"
)

var countries = []string{"AT", "BE", "DE", "ES", "FR", "IT", "NL", "PL", "PT", "SE"}

var seriesStart = time.Date(1991, time.January, 1, 0, 0, 0, 0, time.UTC)

type options struct {
	outDir string
	cities int
	days   int
	seed   uint64
}

// city is one synthetic URAU city with its climate parameters.
type city struct {
	code      string
	name      string
	lon, lat  float64
	meanTemp  float64
	amplitude float64
	temps     []float64
}

func main() {
	var opts options
	flag.StringVar(&opts.outDir, "out-dir", "data/mock", "directory for the generated files")
	flag.IntVar(&opts.cities, "cities", 12, "number of cities")
	flag.IntVar(&opts.days, "days", 3650, "days of daily series per city")
	flag.Uint64Var(&opts.seed, "seed", 7, "random seed")
	flag.Parse()

	if err := run(opts); err != nil {
		log.Fatal(err)
	}
}

func run(opts options) error {
	if opts.cities < 1 || opts.days < 2 {
		return fmt.Errorf("need at least 1 city and 2 days, got %d and %d", opts.cities, opts.days)
	}
	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x5eed))
	cities := generateCities(rng, opts.cities, opts.days)

	writers := []struct {
		file  string
		write func(string, []city, *rand.Rand) error
	}{
		{coefsFile, writeCoefficients},
		{distributionFile, writeDistribution},
		{seriesFile, writeSeries},
		{geojsonFile, writeNames},
	}
	for _, w := range writers {
		path := filepath.Join(opts.outDir, w.file)
		if err := w.write(path, cities, rng); err != nil {
			return fmt.Errorf("write %s: %w", w.file, err)
		}
		log.Printf("wrote %s", path)
	}

	log.Printf("total: %d cities, %d coefficient rows, %d percentiles, %d daily observations",
		len(cities), len(cities)*len(domain.AgeGroups), len(cities)*domain.PercentileCount, len(cities)*opts.days)
	return nil
}

func generateCities(rng *rand.Rand, n, days int) []city {
	cities := make([]city, n)
	for i := range cities {
		country := countries[i%len(countries)]
		c := city{
			code:      fmt.Sprintf("%s%03dC", country, i/len(countries)+1),
			name:      fmt.Sprintf("Synthetic %s %d", country, i/len(countries)+1),
			lon:       -9 + 33*rng.Float64(),
			lat:       36 + 24*rng.Float64(),
			meanTemp:  4 + 14*rng.Float64(),
			amplitude: 6 + 8*rng.Float64(),
			temps:     make([]float64, days),
		}
		for d := range c.temps {
			season := math.Cos(2 * math.Pi * (float64(d%365) - 200) / 365)
			c.temps[d] = round(c.meanTemp+c.amplitude*season+2.5*rng.NormFloat64(), 2)
		}
		cities[i] = c
	}
	return cities
}

func writeCoefficients(path string, cities []city, rng *rand.Rand) error {
	rows := [][]string{{"URAU_CODE", "agegroup", "b1", "b2", "b3", "b4", "b5"}}
	for _, c := range cities {
		for i, ag := range domain.AgeGroups {
			row := []string{c.code, string(ag)}
			for k := range domain.CoefficientCount {
				// U-shaped exposure-response, steeper for older age groups.
				shape := math.Abs(float64(k)-2) * 0.08 * float64(i+1)
				row = append(row, formatFloat(round(shape+0.02*rng.NormFloat64(), 6)))
			}
			rows = append(rows, row)
		}
	}
	return writeCSV(path, rows)
}

// writeDistribution writes percentiles 0..100 of each city's series using
// linear interpolation between order statistics.
func writeDistribution(path string, cities []city, _ *rand.Rand) error {
	header := []string{"URAU_CODE"}
	for p := domain.MinPercentile; p <= domain.MaxPercentile; p++ {
		header = append(header, fmt.Sprintf("%d.0%%", p))
	}
	rows := [][]string{header}
	for _, c := range cities {
		row := []string{c.code}
		for _, t := range percentiles(c.temps) {
			row = append(row, formatFloat(round(t, 4)))
		}
		rows = append(rows, row)
	}
	return writeCSV(path, rows)
}

func writeSeries(path string, cities []city, _ *rand.Rand) error {
	rows := [][]string{{"URAU_CODE", "date", "era5landtmean"}}
	for _, c := range cities {
		for d, t := range c.temps {
			rows = append(rows, []string{c.code, seriesStart.AddDate(0, 0, d).Format(time.DateOnly), formatFloat(t)})
		}
	}
	return writeCSV(path, rows)
}

func writeNames(path string, cities []city, _ *rand.Rand) error {
	fc := geojson.NewFeatureCollection()
	for _, c := range cities {
		f := geojson.NewFeature(orb.Point{c.lon, c.lat})
		f.Properties["URAU_CODE"] = c.code
		f.Properties["URAU_NAME"] = c.name
		f.Properties["CNTR_CODE"] = c.code[:2]
		fc.Append(f)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// percentiles returns the 101 percentiles of temps, matching numpy's default
// linear method.
func percentiles(temps []float64) []float64 {
	sorted := slices.Clone(temps)
	slices.Sort(sorted)
	n := float64(len(sorted) - 1)

	out := make([]float64, 0, domain.PercentileCount)
	for p := domain.MinPercentile; p <= domain.MaxPercentile; p++ {
		pos := n * float64(p) / 100
		lo := int(math.Floor(pos))
		if lo >= len(sorted)-1 {
			out = append(out, sorted[len(sorted)-1])
			continue
		}
		frac := pos - float64(lo)
		out = append(out, sorted[lo]+frac*(sorted[lo+1]-sorted[lo]))
	}
	return out
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return f.Close()
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
