package csvsource

import (
	"context"
	"path/filepath"

	"github.com/couchcryptid/urau-climate-etl/internal/domain"
)

// Files reads migration inputs from CSV files on disk.
// It implements pipeline.Source.
type Files struct {
	CoefsPath        string
	DistributionPath string
	SeriesPath       string
}

// Coefficients reads the B-spline coefficients table.
func (f Files) Coefficients(_ context.Context) (domain.CoefficientInput, error) {
	records, err := ReadCoefficients(f.CoefsPath)
	if err != nil {
		return domain.CoefficientInput{}, err
	}
	return domain.CoefficientInput{Source: filepath.Base(f.CoefsPath), Records: records}, nil
}

// Distribution reads the wide percentile table.
func (f Files) Distribution(_ context.Context) (domain.DistributionInput, error) {
	header, records, err := ReadDistribution(f.DistributionPath)
	if err != nil {
		return domain.DistributionInput{}, err
	}
	return domain.DistributionInput{Source: filepath.Base(f.DistributionPath), Header: header, Records: records}, nil
}

// Series reads the daily temperature series. A missing file yields an error
// matching fs.ErrNotExist.
func (f Files) Series(_ context.Context) (domain.SeriesInput, error) {
	series, issues, err := ReadSeries(f.SeriesPath)
	if err != nil {
		return domain.SeriesInput{}, err
	}
	return domain.SeriesInput{Source: filepath.Base(f.SeriesPath), Series: series, Issues: issues}, nil
}
