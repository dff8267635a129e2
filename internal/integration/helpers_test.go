//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/urau-climate-etl/internal/adapter/csvsource"
	"github.com/couchcryptid/urau-climate-etl/internal/adapter/postgres"
	"github.com/couchcryptid/urau-climate-etl/internal/domain"
	"github.com/couchcryptid/urau-climate-etl/internal/testinfra"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
)

// inputFiles writes a consistent set of input CSVs for the given cities.
type inputFiles struct {
	dir   string
	codes []string
	extra []string // raw rows appended to the coefficients file
}

func (f inputFiles) write(t *testing.T) csvsource.Files {
	t.Helper()

	var coefs strings.Builder
	coefs.WriteString("URAU_CODE,agegroup,b1,b2,b3,b4,b5\n")
	for _, code := range f.codes {
		for i, ag := range domain.AgeGroups {
			fmt.Fprintf(&coefs, "%s,%s,%g,0.2,0.3,0.2,0.1\n", code, ag, 0.1*float64(i+1))
		}
	}
	for _, row := range f.extra {
		coefs.WriteString(row + "\n")
	}

	var dist strings.Builder
	dist.WriteString("URAU_CODE")
	for p := domain.MinPercentile; p <= domain.MaxPercentile; p++ {
		fmt.Fprintf(&dist, ",%d.0%%", p)
	}
	dist.WriteString("\n")
	for _, code := range f.codes {
		dist.WriteString(code)
		for p := domain.MinPercentile; p <= domain.MaxPercentile; p++ {
			dist.WriteString("," + strconv.FormatFloat(-5+0.4*float64(p), 'f', 2, 64))
		}
		dist.WriteString("\n")
	}

	var series strings.Builder
	series.WriteString("URAU_CODE,date,era5landtmean\n")
	day := time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	for _, code := range f.codes {
		for i := range 50 {
			fmt.Fprintf(&series, "%s,%s,%d\n", code, day.AddDate(0, 0, i).Format(time.DateOnly), i-10)
		}
	}

	files := csvsource.Files{
		CoefsPath:        filepath.Join(f.dir, "coefs.csv"),
		DistributionPath: filepath.Join(f.dir, "tmean_distribution.csv"),
		SeriesPath:       filepath.Join(f.dir, "era5series.csv"),
	}
	require.NoError(t, os.WriteFile(files.CoefsPath, []byte(coefs.String()), 0o644))
	require.NoError(t, os.WriteFile(files.DistributionPath, []byte(dist.String()), 0o644))
	require.NoError(t, os.WriteFile(files.SeriesPath, []byte(series.String()), 0o644))
	return files
}

func newStore(t *testing.T) *postgres.Store {
	t.Helper()
	connStr := testinfra.RequireDatabase(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, connStr, 20*time.Second, slog.Default())
	require.NoError(t, err)
	store := postgres.NewStore(pool, 64, slog.Default())
	t.Cleanup(store.Close)
	require.NoError(t, store.ApplySchema(ctx))
	return store
}

// startKafka runs a single-node Kafka container and returns its broker address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	ctr, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0", kafka.WithClusterID("urau-test"))
	if err != nil {
		t.Skipf("kafka container unavailable: %v", err)
	}
	t.Cleanup(func() {
		ctr.Terminate(context.Background()) //nolint:errcheck
	})

	brokers, err := ctr.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	ctrlConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrlConn.Close()

	require.NoError(t, ctrlConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}
