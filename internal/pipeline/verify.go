package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/urau-climate-etl/internal/domain"
)

// verify compares stored row counts with the cardinalities implied by the
// coefficients input. Every mismatch is a warning; only query failures are
// fatal.
func (r *run) verify(ctx context.Context) error {
	if r.cities == nil {
		in, err := r.coefficientInput(ctx)
		if err != nil {
			return err
		}
		r.cities, _ = domain.ExtractCities(in.Source, in.Records)
	}

	p := r.begin(PhaseVerify)
	v := r.m.verifier

	counts, err := v.TableCounts(ctx)
	if err != nil {
		return err
	}
	p.result.Read = counts.Cities + counts.Coefficients + counts.Percentiles + counts.Histograms
	r.report.Counts = counts

	discrepancies := domain.CompareCounts(domain.ExpectedCountsFor(len(r.cities)), counts)

	coefGaps, err := v.IncompleteCoefficients(ctx)
	if err != nil {
		return err
	}
	discrepancies = append(discrepancies, domain.CoverageDiscrepancies("age groups per city", len(domain.AgeGroups), coefGaps)...)

	distGaps, err := v.IncompleteDistributions(ctx)
	if err != nil {
		return err
	}
	discrepancies = append(discrepancies, domain.CoverageDiscrepancies("percentiles per city", domain.PercentileCount, distGaps)...)

	summary, err := v.HistogramSummary(ctx)
	if err != nil {
		return err
	}
	r.report.Histograms = summary
	for _, s := range summary {
		r.logger.Info("histogram resolution", "bins_total", s.BinsTotal, "bins", s.Bins, "cities", s.Cities)
	}

	orphans, err := v.OrphanHistogramCities(ctx)
	if err != nil {
		return err
	}
	if orphans > 0 {
		discrepancies = append(discrepancies, domain.Discrepancy{
			Check:  "histogram cities without urau_cities row",
			Actual: orphans,
		})
	}

	code, groups, err := v.SampleCity(ctx)
	if err != nil {
		return err
	}
	if code != "" {
		r.logger.Info("sample city", "urau_code", code, "age_groups", groups)
	}

	for _, d := range discrepancies {
		r.logger.Warn("verification mismatch", "check", d.Check, "expected", d.Expected, "actual", d.Actual, "detail", d.Detail)
	}
	r.report.Discrepancies = append(r.report.Discrepancies, discrepancies...)
	r.m.metrics.VerificationWarnings.Add(float64(len(discrepancies)))

	r.logger.Info("verification summary",
		"cities", fmt.Sprintf("%d/%d", counts.Cities, len(r.cities)),
		"coefficients", counts.Coefficients,
		"percentiles", counts.Percentiles,
		"histogram_bins", counts.Histograms,
	)
	p.finish(ctx)
	return nil
}
