package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// ErrInvalid marks configuration errors detected before any database work.
var ErrInvalid = errors.New("invalid configuration")

const (
	defaultBatchSize = 500
	maxBatchSize     = 10000
)

// Config holds all loader settings, populated from environment variables.
type Config struct {
	DatabaseURL string

	CoefsPath        string
	DistributionPath string
	SeriesPath       string
	GeoJSONPath      string

	HistogramResolutions []int
	BatchSize            int
	ConnectTimeout       time.Duration

	HTTPAddr        string // empty disables the health/metrics server
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	PushgatewayURL  string // empty disables pushing metrics at the end of a run

	// Load event publishing, disabled when KafkaBrokers is empty.
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	connectTimeout, err := parseDuration("CONNECT_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	batchSize, err := parseBatchSize()
	if err != nil {
		return nil, err
	}

	resolutions, err := ParseResolutions(sharedcfg.EnvOrDefault("HISTOGRAM_BINS", "20,30,50"))
	if err != nil {
		return nil, err
	}

	dbURL, err := databaseURL()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:          dbURL,
		CoefsPath:            sharedcfg.EnvOrDefault("COEFS_PATH", "data/coefs.csv"),
		DistributionPath:     sharedcfg.EnvOrDefault("DISTRIBUTION_PATH", "data/tmean_distribution.csv"),
		SeriesPath:           sharedcfg.EnvOrDefault("ERA5_PATH", "data/era5series.csv"),
		GeoJSONPath:          sharedcfg.EnvOrDefault("URAU_GEOJSON_PATH", "data/URAU_RG_100K_2021_3035.geojson"),
		HistogramResolutions: resolutions,
		BatchSize:            batchSize,
		ConnectTimeout:       connectTimeout,
		HTTPAddr:             os.Getenv("HTTP_ADDR"),
		LogLevel:             sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:      shutdownTimeout,
		PushgatewayURL:       os.Getenv("PUSHGATEWAY_URL"),
		KafkaTopic:           sharedcfg.EnvOrDefault("KAFKA_TOPIC", "urau-load-events"),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	if cfg.CoefsPath == "" {
		return nil, fmt.Errorf("%w: COEFS_PATH is required", ErrInvalid)
	}
	if cfg.DistributionPath == "" {
		return nil, fmt.Errorf("%w: DISTRIBUTION_PATH is required", ErrInvalid)
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, fmt.Errorf("%w: KAFKA_TOPIC is required when KAFKA_BROKERS is set", ErrInvalid)
	}

	return cfg, nil
}

// databaseURL returns DATABASE_URL, or builds one from the discrete
// user/password/host/port/dbname variables of existing .env files.
func databaseURL() (string, error) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v, nil
	}

	host := os.Getenv("host")
	dbname := os.Getenv("dbname")
	if host == "" || dbname == "" {
		return "", fmt.Errorf("%w: DATABASE_URL or host and dbname are required", ErrInvalid)
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, sharedcfg.EnvOrDefault("port", "5432")),
		Path:   "/" + dbname,
	}
	if user := os.Getenv("user"); user != "" {
		if pw, ok := os.LookupEnv("password"); ok {
			u.User = url.UserPassword(user, pw)
		} else {
			u.User = url.User(user)
		}
	}
	q := url.Values{}
	q.Set("sslmode", sharedcfg.EnvOrDefault("sslmode", "require"))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", ErrInvalid, key)
	}
	return d, nil
}

func parseBatchSize() (int, error) {
	s := os.Getenv("BATCH_SIZE")
	if s == "" {
		return defaultBatchSize, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > maxBatchSize {
		return 0, fmt.Errorf("%w: BATCH_SIZE must be between 1 and %d", ErrInvalid, maxBatchSize)
	}
	return n, nil
}

// MaxHistogramBins is the largest resolution temperature_histogram.bins_total
// (SMALLINT) can hold.
const MaxHistogramBins = math.MaxInt16

// ParseResolutions parses a comma-separated list of distinct positive bin
// counts, the format of HISTOGRAM_BINS.
func ParseResolutions(s string) ([]int, error) {
	var out []int
	seen := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 || n > MaxHistogramBins {
			return nil, fmt.Errorf("%w: invalid HISTOGRAM_BINS entry %q (want 1..%d)", ErrInvalid, part, MaxHistogramBins)
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: HISTOGRAM_BINS is empty", ErrInvalid)
	}
	return out, nil
}
