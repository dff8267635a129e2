package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/urau-climate-etl/internal/domain"
	"github.com/couchcryptid/urau-climate-etl/internal/observability"
	"github.com/google/uuid"
)

// Phase names, used as metric labels, event phases and report keys.
const (
	PhaseSchema       = "schema"
	PhaseCities       = "cities"
	PhaseCoefficients = "coefficients"
	PhaseDistribution = "distribution"
	PhaseHistograms   = "histograms"
	PhaseVerify       = "verify"
)

// ErrSchema marks schema creation failures. They abort the run before any
// data is loaded.
var ErrSchema = errors.New("schema")

// Source provides the raw input tables.
type Source interface {
	Coefficients(ctx context.Context) (domain.CoefficientInput, error)
	Distribution(ctx context.Context) (domain.DistributionInput, error)
	Series(ctx context.Context) (domain.SeriesInput, error)
}

// Store persists the loaded tables. Each write method runs in its own
// transaction.
type Store interface {
	ApplySchema(ctx context.Context) error
	UpsertCities(ctx context.Context, cities []domain.City) (inserted, existing int, err error)
	CityCodes(ctx context.Context) (map[string]bool, error)
	UpsertCoefficients(ctx context.Context, sets []domain.CoefficientSet) (int, error)
	UpsertDistribution(ctx context.Context, samples []domain.PercentileSample) (int, error)
	ReplaceHistograms(ctx context.Context, bins []domain.HistogramBin) (int, error)
}

// Verifier queries post-load state.
type Verifier interface {
	TableCounts(ctx context.Context) (domain.TableCounts, error)
	IncompleteCoefficients(ctx context.Context) ([]domain.CityCoverage, error)
	IncompleteDistributions(ctx context.Context) ([]domain.CityCoverage, error)
	HistogramSummary(ctx context.Context) ([]domain.ResolutionSummary, error)
	OrphanHistogramCities(ctx context.Context) (int, error)
	SampleCity(ctx context.Context) (code string, ageGroups int, err error)
}

// EventPublisher announces completed phases.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.LoadEvent) error
}

// Option configures a Migration.
type Option func(*Migration)

// WithNames sets the resolver used to fill city display names.
func WithNames(r domain.NameResolver) Option {
	return func(m *Migration) { m.names = r }
}

// WithPublisher publishes a LoadEvent after every phase.
func WithPublisher(p EventPublisher) Option {
	return func(m *Migration) { m.publisher = p }
}

// WithResolutions overrides the histogram bin counts.
func WithResolutions(r []int) Option {
	return func(m *Migration) { m.resolutions = r }
}

// Migration runs the load phases against a store.
type Migration struct {
	source      Source
	store       Store
	verifier    Verifier
	names       domain.NameResolver
	publisher   EventPublisher
	logger      *slog.Logger
	metrics     *observability.Metrics
	resolutions []int
	ready       atomic.Bool
	last        atomic.Pointer[Report]
}

// New creates a Migration with the given source, store and observability.
func New(src Source, store Store, verifier Verifier, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Migration {
	m := &Migration{
		source:      src,
		store:       store,
		verifier:    verifier,
		logger:      logger,
		metrics:     metrics,
		resolutions: domain.DefaultHistogramResolutions,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CheckReadiness returns nil once a phase has completed against the database,
// or an error describing why the service is not yet ready.
func (m *Migration) CheckReadiness(_ context.Context) error {
	if !m.ready.Load() {
		return errors.New("migration has not completed a phase yet")
	}
	return nil
}

// LastReport returns the report of the most recent execution, finished or
// failed, or nil before the first one.
func (m *Migration) LastReport() *Report {
	return m.last.Load()
}

// Run executes every phase in order: schema, cities, coefficients,
// distribution, histograms and verification. Row-level defects never stop
// the run; they are collected in the report. Fatal errors are returned along
// with the partial report.
func (m *Migration) Run(ctx context.Context) (*Report, error) {
	return m.execute(ctx, "migrate",
		(*run).applySchema,
		(*run).loadCities,
		(*run).loadCoefficients,
		(*run).loadDistribution,
		(*run).loadHistograms,
		(*run).verify,
	)
}

// Schema only creates or reconciles the tables.
func (m *Migration) Schema(ctx context.Context) (*Report, error) {
	return m.execute(ctx, "schema", (*run).applySchema)
}

// Load loads cities, coefficients and the distribution into an existing
// schema, then verifies.
func (m *Migration) Load(ctx context.Context) (*Report, error) {
	return m.execute(ctx, "load",
		(*run).loadCities,
		(*run).loadCoefficients,
		(*run).loadDistribution,
		(*run).verify,
	)
}

// Histograms recomputes and replaces the temperature histograms, then verifies.
func (m *Migration) Histograms(ctx context.Context) (*Report, error) {
	return m.execute(ctx, "histogram", (*run).loadHistograms, (*run).verify)
}

// Verify compares the stored tables with the inputs without writing.
func (m *Migration) Verify(ctx context.Context) (*Report, error) {
	return m.execute(ctx, "verify", (*run).verify)
}

func (m *Migration) execute(ctx context.Context, command string, phases ...func(*run, context.Context) error) (*Report, error) {
	r := &run{
		m:      m,
		report: newReport(uuid.NewString()),
	}
	r.logger = m.logger.With("run_id", r.report.RunID)
	defer m.last.Store(r.report)

	r.logger.Info("migration started", "command", command)
	m.metrics.MigrationRunning.Set(1)
	defer m.metrics.MigrationRunning.Set(0)

	start := time.Now()
	for _, step := range phases {
		if err := ctx.Err(); err != nil {
			return r.report, err
		}
		if err := step(r, ctx); err != nil {
			r.logger.Error("migration failed", "command", command, "error", err)
			return r.report, err
		}
		m.ready.Store(true)
	}

	m.metrics.LastSuccess.SetToCurrentTime()
	r.logger.Info("migration finished",
		"command", command,
		"duration", time.Since(start),
		"issues", len(r.report.Issues()),
		"discrepancies", len(r.report.Discrepancies),
	)
	return r.report, nil
}
