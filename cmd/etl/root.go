package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/couchcryptid/urau-climate-etl/internal/pipeline"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	envFile      string
	coefs        string
	distribution string
	series       string
	geojson      string
}

// step is one migration entry point.
type step func(m *pipeline.Migration, ctx context.Context) (*pipeline.Report, error)

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "etl",
		Short: "Load URAU climate data into PostgreSQL",
		Long: `etl loads URAU cities, B-spline coefficients, temperature percentiles and
temperature histograms into PostgreSQL. Every run is idempotent: tables are
created when absent and rows are upserted.

Without a subcommand the full migration runs: schema, cities, coefficients,
distribution, histograms (when the daily series file exists) and verification.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          noArgs,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadEnv(flags)
		},
		RunE: runStep((*pipeline.Migration).Run),
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before reading the environment (ignored if missing)")
	pf.StringVar(&flags.coefs, "coefs", "", "coefficients CSV (overrides COEFS_PATH)")
	pf.StringVar(&flags.distribution, "distribution", "", "wide distribution CSV (overrides DISTRIBUTION_PATH)")
	pf.StringVar(&flags.series, "series", "", "daily ERA5 series CSV (overrides ERA5_PATH)")
	pf.StringVar(&flags.geojson, "geojson", "", "URAU GeoJSON with city names (overrides URAU_GEOJSON_PATH)")

	root.AddCommand(
		&cobra.Command{
			Use:   "schema",
			Short: "Create or reconcile the tables",
			Args:  noArgs,
			RunE:  runStep((*pipeline.Migration).Schema),
		},
		&cobra.Command{
			Use:   "load",
			Short: "Load cities, coefficients and the distribution, then verify",
			Args:  noArgs,
			RunE:  runStep((*pipeline.Migration).Load),
		},
		&cobra.Command{
			Use:   "histogram",
			Short: "Recompute temperature histograms from the daily series, then verify",
			Args:  noArgs,
			RunE:  runStep((*pipeline.Migration).Histograms),
		},
		&cobra.Command{
			Use:   "verify",
			Short: "Compare stored row counts with the inputs",
			Args:  noArgs,
			RunE:  runStep((*pipeline.Migration).Verify),
		},
	)

	for _, c := range root.Commands() {
		c.SilenceUsage = true
		c.SilenceErrors = true
	}
	return root
}

func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return usageError{err}
	}
	return nil
}

// loadEnv seeds the environment from the dotenv file and applies path flags.
// Variables already set in the environment win over the file.
func loadEnv(flags *rootFlags) error {
	if flags.envFile != "" {
		if err := godotenv.Load(flags.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return usageError{fmt.Errorf("load %s: %w", flags.envFile, err)}
		}
	}
	overrides := map[string]string{
		"COEFS_PATH":        flags.coefs,
		"DISTRIBUTION_PATH": flags.distribution,
		"ERA5_PATH":         flags.series,
		"URAU_GEOJSON_PATH": flags.geojson,
	}
	for key, v := range overrides {
		if v == "" {
			continue
		}
		if err := os.Setenv(key, v); err != nil {
			return err
		}
	}
	return nil
}

func runStep(fn step) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		return runApp(cmd.Context(), fn)
	}
}
