package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"time"

	"github.com/couchcryptid/urau-climate-etl/internal/domain"
)

// run carries the state of one execution. Inputs are read at most once and
// shared between phases.
type run struct {
	m      *Migration
	report *Report
	logger *slog.Logger

	coefs  *domain.CoefficientInput
	cities []domain.City
	dist   *distribution
}

// distribution is the reshaped distribution file, keyed by city code.
type distribution struct {
	source  string
	rows    int
	samples map[string][]domain.PercentileSample
	lines   map[string]int // line of each city's row
}

// phase tracks counters and timing for one phase.
type phase struct {
	r       *run
	result  PhaseResult
	started time.Time
	issues  []error
}

func (r *run) begin(name string) *phase {
	r.logger.Info("phase started", "phase", name)
	return &phase{r: r, result: PhaseResult{Phase: name}, started: domain.Now()}
}

// reject records a row-level defect and counts it as skipped.
func (p *phase) reject(err error) {
	p.record("row skipped", err)
	p.result.Skipped++
}

// warn records a defect that does not skip a row.
func (p *phase) warn(err error) {
	p.record("data defect", err)
}

func (p *phase) record(msg string, err error) {
	p.issues = append(p.issues, err)
	attrs := []any{"phase", p.result.Phase, "error", err}
	var rowErr *domain.RowError
	if errors.As(err, &rowErr) {
		attrs = append(attrs, "source", rowErr.Source, "line", rowErr.Line, "urau_code", rowErr.CityCode)
	}
	p.r.logger.Warn(msg, attrs...)
}

// finish records the phase in the report, metrics and event stream.
func (p *phase) finish(ctx context.Context) {
	r, m := p.r, p.r.m
	finished := domain.Now()
	p.result.Duration = finished.Sub(p.started)

	r.report.Phases = append(r.report.Phases, p.result)
	r.report.addIssues(p.issues...)

	name := p.result.Phase
	m.metrics.RowsRead.WithLabelValues(name).Add(float64(p.result.Read))
	m.metrics.RowsLoaded.WithLabelValues(name).Add(float64(p.result.Loaded))
	m.metrics.RowsSkipped.WithLabelValues(name).Add(float64(p.result.Skipped))
	m.metrics.PhaseDuration.WithLabelValues(name).Observe(p.result.Duration.Seconds())

	r.logger.Info("phase finished",
		"phase", name,
		"read", p.result.Read,
		"loaded", p.result.Loaded,
		"skipped", p.result.Skipped,
		"issues", len(p.issues),
		"duration", p.result.Duration,
	)

	if m.publisher == nil {
		return
	}
	event := domain.LoadEvent{
		RunID:      r.report.RunID,
		Phase:      name,
		Read:       p.result.Read,
		Loaded:     p.result.Loaded,
		Skipped:    p.result.Skipped,
		Issues:     len(p.issues),
		StartedAt:  p.started,
		FinishedAt: finished,
	}
	if err := m.publisher.Publish(ctx, event); err != nil {
		r.logger.Warn("publish load event failed", "phase", name, "error", err)
		return
	}
	m.metrics.EventsPublished.Inc()
}

func (r *run) applySchema(ctx context.Context) error {
	p := r.begin(PhaseSchema)
	if err := r.m.store.ApplySchema(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	p.finish(ctx)
	return nil
}

// coefficientInput reads the coefficients file once per run.
func (r *run) coefficientInput(ctx context.Context) (*domain.CoefficientInput, error) {
	if r.coefs != nil {
		return r.coefs, nil
	}
	in, err := r.m.source.Coefficients(ctx)
	if err != nil {
		return nil, fmt.Errorf("read coefficients: %w", err)
	}
	r.coefs = &in
	return r.coefs, nil
}

func (r *run) loadCities(ctx context.Context) error {
	in, err := r.coefficientInput(ctx)
	if err != nil {
		return err
	}
	p := r.begin(PhaseCities)

	cities, issues := domain.ExtractCities(in.Source, in.Records)
	r.cities = cities
	p.result.Read = len(cities)
	for _, err := range issues {
		if errors.Is(err, domain.ErrCountryMismatch) {
			p.warn(err)
			continue
		}
		// Each rejected issue is a distinct code that produced no city.
		p.result.Read++
		p.reject(err)
	}

	if r.m.names != nil {
		named := domain.EnrichWithNames(ctx, cities, r.m.names)
		r.logger.Info("city names resolved", "named", named, "cities", len(cities))
	}

	inserted, existing, err := r.m.store.UpsertCities(ctx, cities)
	if err != nil {
		return err
	}
	p.result.Loaded = inserted
	p.result.Skipped += existing
	p.finish(ctx)
	return nil
}

func (r *run) loadCoefficients(ctx context.Context) error {
	in, err := r.coefficientInput(ctx)
	if err != nil {
		return err
	}
	p := r.begin(PhaseCoefficients)
	p.result.Read = len(in.Records)

	type key struct {
		code string
		ag   domain.AgeGroup
	}
	seen := make(map[key]int, len(in.Records))
	sets := make([]domain.CoefficientSet, 0, len(in.Records))

	for _, rec := range in.Records {
		set, err := domain.ParseCoefficientRecord(rec)
		if err != nil {
			p.reject(&domain.RowError{Source: in.Source, Line: rec.Line, CityCode: rec.CityCode, Err: err})
			continue
		}
		k := key{set.CityCode, set.AgeGroup}
		if first, dup := seen[k]; dup {
			p.reject(&domain.RowError{
				Source:   in.Source,
				Line:     rec.Line,
				CityCode: set.CityCode,
				Err:      fmt.Errorf("%w: age group %s already defined on line %d", domain.ErrDuplicateRow, set.AgeGroup, first),
			})
			continue
		}
		seen[k] = rec.Line
		sets = append(sets, set)
	}

	n, err := r.m.store.UpsertCoefficients(ctx, sets)
	if err != nil {
		return err
	}
	p.result.Loaded = n
	p.finish(ctx)
	return nil
}

// distributionSamples reshapes the distribution file into samples per city,
// whether or not the city is known. Header and value defects are reported
// through p as warnings; rows without a usable city code and duplicate rows
// are rejected. A missing city column is fatal.
func (r *run) distributionSamples(ctx context.Context, p *phase) (*distribution, error) {
	in, err := r.m.source.Distribution(ctx)
	if err != nil {
		return nil, fmt.Errorf("read distribution: %w", err)
	}
	layout, headerIssues, err := domain.ParseDistributionHeader(in.Source, in.Header)
	if err != nil {
		return nil, err
	}
	for _, err := range headerIssues {
		p.warn(err)
	}

	d := &distribution{
		source:  in.Source,
		rows:    len(in.Records),
		samples: make(map[string][]domain.PercentileSample, len(in.Records)),
		lines:   make(map[string]int, len(in.Records)),
	}
	for _, rec := range in.Records {
		code, samples, issues := layout.Reshape(in.Source, rec)
		if samples == nil && len(issues) > 0 {
			p.reject(issues[0])
			continue
		}
		if first, dup := d.lines[code]; dup {
			p.reject(&domain.RowError{
				Source: in.Source, Line: rec.Line, CityCode: code,
				Err: fmt.Errorf("%w: city already defined on line %d", domain.ErrDuplicateRow, first),
			})
			continue
		}
		d.lines[code] = rec.Line
		for _, err := range issues {
			p.warn(err)
		}
		d.samples[code] = samples
	}
	return d, nil
}

func (r *run) loadDistribution(ctx context.Context) error {
	known, err := r.m.store.CityCodes(ctx)
	if err != nil {
		return err
	}
	p := r.begin(PhaseDistribution)

	dist, err := r.distributionSamples(ctx, p)
	if err != nil {
		return err
	}
	p.result.Read = dist.rows
	// The histogram phase needs ranges for every city, known or not.
	r.dist = dist

	samples := make([]domain.PercentileSample, 0, len(dist.samples)*domain.PercentileCount)
	for _, code := range sortedKeys(dist.samples) {
		if !known[code] {
			p.reject(&domain.RowError{Source: dist.source, Line: dist.lines[code], CityCode: code, Err: domain.ErrUnknownCity})
			continue
		}
		samples = append(samples, dist.samples[code]...)
	}

	n, err := r.m.store.UpsertDistribution(ctx, samples)
	if err != nil {
		return err
	}
	p.result.Loaded = n
	p.finish(ctx)
	return nil
}

func (r *run) loadHistograms(ctx context.Context) error {
	series, err := r.m.source.Series(ctx)
	if errors.Is(err, fs.ErrNotExist) {
		r.logger.Info("daily series not found, skipping histograms", "error", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read series: %w", err)
	}
	p := r.begin(PhaseHistograms)
	for _, err := range series.Issues {
		p.reject(err)
	}

	dist := r.dist
	if dist == nil {
		// Histogram ranges only need p1 and p99; unknown cities are allowed.
		dist, err = r.distributionSamples(ctx, p)
		if err != nil {
			return err
		}
	}
	known, err := r.m.store.CityCodes(ctx)
	if err != nil {
		return err
	}

	var bins []domain.HistogramBin
	for _, code := range sortedKeys(series.Series) {
		temps := series.Series[code]
		p.result.Read += len(temps)

		samples, ok := dist.samples[code]
		if !ok {
			p.reject(&domain.RowError{Source: series.Source, CityCode: code,
				Err: fmt.Errorf("%w: no distribution for histogram range", domain.ErrMissingPercentile)})
			continue
		}
		p1, p99, err := domain.HistogramRange(samples)
		if err != nil {
			p.reject(&domain.RowError{Source: series.Source, CityCode: code, Err: err})
			continue
		}
		if !known[code] {
			r.logger.Warn("histogram for city not in urau_cities", "urau_code", code)
		}

		for _, n := range r.m.resolutions {
			cityBins, err := domain.ComputeHistogram(code, temps, p1, p99, n)
			if err != nil {
				p.reject(&domain.RowError{Source: series.Source, CityCode: code, Err: err})
				break
			}
			bins = append(bins, cityBins...)
		}
	}

	n, err := r.m.store.ReplaceHistograms(ctx, bins)
	if err != nil {
		return err
	}
	p.result.Loaded = n
	p.finish(ctx)
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
