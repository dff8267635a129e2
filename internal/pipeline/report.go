package pipeline

import (
	"time"

	"github.com/couchcryptid/urau-climate-etl/internal/domain"
	"github.com/hashicorp/go-multierror"
)

// PhaseResult counts the rows handled by one phase. Skipped covers rows
// rejected for data defects and cities that already existed; defects in a
// single value of a kept row are reported as issues only.
type PhaseResult struct {
	Phase    string
	Read     int
	Loaded   int
	Skipped  int
	Duration time.Duration
}

// Report is the outcome of a migration run.
type Report struct {
	RunID         string
	Phases        []PhaseResult
	Counts        domain.TableCounts
	Histograms    []domain.ResolutionSummary
	Discrepancies []domain.Discrepancy

	issues *multierror.Error
}

func newReport(runID string) *Report {
	return &Report{RunID: runID}
}

// Phase returns the result of the named phase, if it ran.
func (r *Report) Phase(name string) (PhaseResult, bool) {
	for _, p := range r.Phases {
		if p.Phase == name {
			return p, true
		}
	}
	return PhaseResult{}, false
}

// Issues returns every row-level defect recorded during the run.
func (r *Report) Issues() []error {
	if r.issues == nil {
		return nil
	}
	return r.issues.Errors
}

// IssuesErr combines the row-level defects into one error, or nil.
func (r *Report) IssuesErr() error {
	return r.issues.ErrorOrNil()
}

// HasWarnings reports whether any defect or discrepancy was recorded.
func (r *Report) HasWarnings() bool {
	return len(r.Issues()) > 0 || len(r.Discrepancies) > 0
}

// Summary is the JSON form of a report served on /report.
type Summary struct {
	RunID         string                     `json:"run_id"`
	Phases        []PhaseSummary             `json:"phases"`
	Counts        domain.TableCounts         `json:"counts"`
	Histograms    []domain.ResolutionSummary `json:"histograms,omitempty"`
	Issues        []string                   `json:"issues,omitempty"`
	Discrepancies []string                   `json:"discrepancies,omitempty"`
}

// PhaseSummary is the JSON form of a PhaseResult.
type PhaseSummary struct {
	Phase      string  `json:"phase"`
	Read       int     `json:"read"`
	Loaded     int     `json:"loaded"`
	Skipped    int     `json:"skipped"`
	DurationMS float64 `json:"duration_ms"`
}

// Summary flattens the report for serialization.
func (r *Report) Summary() Summary {
	s := Summary{
		RunID:      r.RunID,
		Phases:     make([]PhaseSummary, 0, len(r.Phases)),
		Counts:     r.Counts,
		Histograms: r.Histograms,
	}
	for _, p := range r.Phases {
		s.Phases = append(s.Phases, PhaseSummary{
			Phase:      p.Phase,
			Read:       p.Read,
			Loaded:     p.Loaded,
			Skipped:    p.Skipped,
			DurationMS: float64(p.Duration.Microseconds()) / 1000,
		})
	}
	for _, err := range r.Issues() {
		s.Issues = append(s.Issues, err.Error())
	}
	for _, d := range r.Discrepancies {
		s.Discrepancies = append(s.Discrepancies, d.String())
	}
	return s
}

func (r *Report) addIssues(errs ...error) {
	if len(errs) == 0 {
		return
	}
	r.issues = multierror.Append(r.issues, errs...)
}
