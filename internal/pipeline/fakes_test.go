package pipeline_test

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strconv"

	"github.com/couchcryptid/urau-climate-etl/internal/domain"
)

// --- source ---

type fakeSource struct {
	coefs     domain.CoefficientInput
	dist      domain.DistributionInput
	series    domain.SeriesInput
	noSeries  bool
	coefReads int
}

func (f *fakeSource) Coefficients(context.Context) (domain.CoefficientInput, error) {
	f.coefReads++
	return f.coefs, nil
}

func (f *fakeSource) Distribution(context.Context) (domain.DistributionInput, error) {
	return f.dist, nil
}

func (f *fakeSource) Series(context.Context) (domain.SeriesInput, error) {
	if f.noSeries {
		return domain.SeriesInput{}, fmt.Errorf("open series: %w", fs.ErrNotExist)
	}
	return f.series, nil
}

// newSource builds complete inputs for the given cities: five age groups,
// 101 percentiles and a daily series spilling past p1 and p99.
func newSource(codes ...string) *fakeSource {
	src := &fakeSource{
		coefs:  domain.CoefficientInput{Source: "coefs.csv"},
		dist:   domain.DistributionInput{Source: "tmean_distribution.csv", Header: wideHeader()},
		series: domain.SeriesInput{Source: "era5series.csv", Series: map[string][]float64{}},
	}
	line := 2
	for i, code := range codes {
		for _, ag := range domain.AgeGroups {
			src.coefs.Records = append(src.coefs.Records, coefRecord(line, code, string(ag)))
			line++
		}
		src.dist.Records = append(src.dist.Records, wideRecord(i+2, code))
		temps := make([]float64, 100)
		for d := range temps {
			temps[d] = -10 + 0.5*float64(d)
		}
		src.series.Series[code] = temps
	}
	return src
}

func coefRecord(line int, code, ageGroup string) domain.CoefficientRecord {
	return domain.CoefficientRecord{
		Line:     line,
		CityCode: code,
		AgeGroup: ageGroup,
		Values:   [5]string{"0.12", "-0.5", "1.1", "0.03", "2"},
	}
}

func wideHeader() []string {
	h := []string{"URAU_CODE"}
	for p := 0; p <= 100; p++ {
		h = append(h, fmt.Sprintf("%d.0%%", p))
	}
	return h
}

func wideRecord(line int, code string) domain.DistributionRecord {
	fields := []string{code}
	for p := 0; p <= 100; p++ {
		fields = append(fields, strconv.FormatFloat(-5+0.4*float64(p), 'f', -1, 64))
	}
	return domain.DistributionRecord{Line: line, Fields: fields}
}

// --- store ---

type histKey struct {
	code      string
	start     float64
	binsTotal int
}

// memStore mimics the upsert semantics of the Postgres store.
type memStore struct {
	schemaErr    error
	schemaCalls  int
	cities       map[string]domain.City
	coefficients map[string]map[domain.AgeGroup]domain.CoefficientSet
	percentiles  map[string]map[int]float64
	histograms   map[histKey]domain.HistogramBin
}

func newMemStore() *memStore {
	return &memStore{
		cities:       map[string]domain.City{},
		coefficients: map[string]map[domain.AgeGroup]domain.CoefficientSet{},
		percentiles:  map[string]map[int]float64{},
		histograms:   map[histKey]domain.HistogramBin{},
	}
}

func (s *memStore) ApplySchema(context.Context) error {
	s.schemaCalls++
	return s.schemaErr
}

func (s *memStore) UpsertCities(_ context.Context, cities []domain.City) (int, int, error) {
	inserted, existing := 0, 0
	for _, c := range cities {
		if old, ok := s.cities[c.Code]; ok {
			if old.Name == "" {
				old.Name = c.Name
				s.cities[c.Code] = old
			}
			existing++
			continue
		}
		s.cities[c.Code] = c
		inserted++
	}
	return inserted, existing, nil
}

func (s *memStore) CityCodes(context.Context) (map[string]bool, error) {
	out := make(map[string]bool, len(s.cities))
	for code := range s.cities {
		out[code] = true
	}
	return out, nil
}

func (s *memStore) UpsertCoefficients(_ context.Context, sets []domain.CoefficientSet) (int, error) {
	for _, set := range sets {
		if _, ok := s.cities[set.CityCode]; !ok {
			return 0, fmt.Errorf("foreign key violation: %s", set.CityCode)
		}
		if s.coefficients[set.CityCode] == nil {
			s.coefficients[set.CityCode] = map[domain.AgeGroup]domain.CoefficientSet{}
		}
		s.coefficients[set.CityCode][set.AgeGroup] = set
	}
	return len(sets), nil
}

func (s *memStore) UpsertDistribution(_ context.Context, samples []domain.PercentileSample) (int, error) {
	for _, p := range samples {
		if _, ok := s.cities[p.CityCode]; !ok {
			return 0, fmt.Errorf("foreign key violation: %s", p.CityCode)
		}
		if s.percentiles[p.CityCode] == nil {
			s.percentiles[p.CityCode] = map[int]float64{}
		}
		s.percentiles[p.CityCode][p.Percentile] = p.Temperature
	}
	return len(samples), nil
}

func (s *memStore) ReplaceHistograms(_ context.Context, bins []domain.HistogramBin) (int, error) {
	replaced := map[histKey]bool{}
	for _, b := range bins {
		replaced[histKey{code: b.CityCode, binsTotal: b.BinsTotal}] = true
	}
	for k := range s.histograms {
		if replaced[histKey{code: k.code, binsTotal: k.binsTotal}] {
			delete(s.histograms, k)
		}
	}
	for _, b := range bins {
		s.histograms[histKey{b.CityCode, b.BinStart, b.BinsTotal}] = b
	}
	return len(bins), nil
}

// --- verifier ---

func (s *memStore) TableCounts(context.Context) (domain.TableCounts, error) {
	c := domain.TableCounts{Cities: len(s.cities), Histograms: len(s.histograms)}
	for _, groups := range s.coefficients {
		c.Coefficients += len(groups)
	}
	for _, ps := range s.percentiles {
		c.Percentiles += len(ps)
	}
	return c, nil
}

func (s *memStore) IncompleteCoefficients(context.Context) ([]domain.CityCoverage, error) {
	var out []domain.CityCoverage
	for _, code := range s.sortedCities() {
		if n := len(s.coefficients[code]); n != len(domain.AgeGroups) {
			out = append(out, domain.CityCoverage{CityCode: code, Rows: n})
		}
	}
	return out, nil
}

func (s *memStore) IncompleteDistributions(context.Context) ([]domain.CityCoverage, error) {
	var out []domain.CityCoverage
	for _, code := range s.sortedCities() {
		if n := len(s.percentiles[code]); n != domain.PercentileCount {
			out = append(out, domain.CityCoverage{CityCode: code, Rows: n})
		}
	}
	return out, nil
}

func (s *memStore) HistogramSummary(context.Context) ([]domain.ResolutionSummary, error) {
	bins := map[int]int{}
	cities := map[int]map[string]bool{}
	for k := range s.histograms {
		bins[k.binsTotal]++
		if cities[k.binsTotal] == nil {
			cities[k.binsTotal] = map[string]bool{}
		}
		cities[k.binsTotal][k.code] = true
	}
	var out []domain.ResolutionSummary
	for total, n := range bins {
		out = append(out, domain.ResolutionSummary{BinsTotal: total, Bins: n, Cities: len(cities[total])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BinsTotal < out[j].BinsTotal })
	return out, nil
}

func (s *memStore) OrphanHistogramCities(context.Context) (int, error) {
	orphans := map[string]bool{}
	for k := range s.histograms {
		if _, ok := s.cities[k.code]; !ok {
			orphans[k.code] = true
		}
	}
	return len(orphans), nil
}

func (s *memStore) SampleCity(context.Context) (string, int, error) {
	codes := s.sortedCities()
	if len(codes) == 0 {
		return "", 0, nil
	}
	return codes[0], len(s.coefficients[codes[0]]), nil
}

func (s *memStore) sortedCities() []string {
	codes := make([]string, 0, len(s.cities))
	for code := range s.cities {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// --- publisher and names ---

type recordingPublisher struct {
	events []domain.LoadEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.LoadEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

type staticNames map[string]string

func (n staticNames) CityName(_ context.Context, code string) (string, bool) {
	name, ok := n[code]
	return name, ok
}
