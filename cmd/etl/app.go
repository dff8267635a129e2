package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/urau-climate-etl/internal/adapter/csvsource"
	"github.com/couchcryptid/urau-climate-etl/internal/adapter/geojson"
	"github.com/couchcryptid/urau-climate-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/urau-climate-etl/internal/adapter/kafka"
	"github.com/couchcryptid/urau-climate-etl/internal/adapter/postgres"
	"github.com/couchcryptid/urau-climate-etl/internal/config"
	"github.com/couchcryptid/urau-climate-etl/internal/observability"
	"github.com/couchcryptid/urau-climate-etl/internal/pipeline"
)

const pushJob = "urau_etl"

// readiness is ready when the database answers and a phase has completed.
type readiness struct {
	store     *postgres.Store
	migration *pipeline.Migration
}

func (r readiness) CheckReadiness(ctx context.Context) error {
	if err := r.store.CheckReadiness(ctx); err != nil {
		return err
	}
	return r.migration.CheckReadiness(ctx)
}

// runApp wires the adapters from the environment and runs one migration step.
func runApp(parent context.Context, fn step) error {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return err
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.ConnectTimeout, logger)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		return err
	}
	store := postgres.NewStore(pool, cfg.BatchSize, logger)
	defer store.Close()

	source := csvsource.Files{
		CoefsPath:        cfg.CoefsPath,
		DistributionPath: cfg.DistributionPath,
		SeriesPath:       cfg.SeriesPath,
	}
	opts := []pipeline.Option{pipeline.WithResolutions(cfg.HistogramResolutions)}

	if names, err := geojson.Load(cfg.GeoJSONPath); err != nil {
		logger.Warn("city names unavailable, loading cities without names", "path", cfg.GeoJSONPath, "error", err)
	} else {
		logger.Info("city names loaded", "path", cfg.GeoJSONPath, "names", names.Len())
		opts = append(opts, pipeline.WithNames(names))
	}

	if len(cfg.KafkaBrokers) > 0 {
		publisher := kafkaadapter.NewPublisher(cfg, logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("kafka publisher close error", "error", err)
			}
		}()
		opts = append(opts, pipeline.WithPublisher(publisher))
		logger.Info("load events enabled", "topic", cfg.KafkaTopic)
	}

	migration := pipeline.New(source, store, store, logger, metrics, opts...)

	if cfg.HTTPAddr != "" {
		srv := httpadapter.NewServer(cfg.HTTPAddr, readiness{store: store, migration: migration}, migration, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer shutdownServer(srv, cfg, logger)
	}

	report, runErr := fn(migration, ctx)
	if report != nil {
		logReport(logger, report)
	}

	if cfg.PushgatewayURL != "" {
		if err := metrics.Push(context.WithoutCancel(ctx), cfg.PushgatewayURL, pushJob); err != nil {
			logger.Warn("metrics push failed", "error", err)
		}
	}
	return runErr
}

func shutdownServer(srv *httpadapter.Server, cfg *config.Config, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
}

func logReport(logger *slog.Logger, report *pipeline.Report) {
	for _, p := range report.Phases {
		logger.Info("phase summary",
			"phase", p.Phase,
			"read", p.Read,
			"loaded", p.Loaded,
			"skipped", p.Skipped,
			"duration", p.Duration,
		)
	}
	if err := report.IssuesErr(); err != nil {
		logger.Warn("row defects", "count", len(report.Issues()), "error", err)
	}
	if report.HasWarnings() {
		logger.Warn("migration completed with warnings",
			"issues", len(report.Issues()),
			"discrepancies", len(report.Discrepancies),
		)
	}
}
