// Command etl loads the URAU climate tables (cities, B-spline coefficients,
// temperature percentiles and histograms) into PostgreSQL.
//
// Usage:
//
//	etl                 # full migration: schema, load, histograms, verify
//	etl schema          # create or reconcile tables only
//	etl load            # cities, coefficients and distribution, then verify
//	etl histogram       # recompute histograms from the daily series, then verify
//	etl verify          # compare stored counts with the inputs
//
// Settings come from the environment, optionally seeded from a .env file.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/couchcryptid/urau-climate-etl/internal/config"
)

// Process exit codes.
const (
	exitOK    = 0
	exitFatal = 1
	exitUsage = 2
)

// usageError marks invalid invocations: bad flags, unknown commands.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func main() {
	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	var usage usageError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &usage), errors.Is(err, config.ErrInvalid):
		return exitUsage
	default:
		return exitFatal
	}
}
