package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"marketpulse/apps/worker/internal/config"
)

type IntegrationSuite struct {
	T   *testing.T
	DB  *sql.DB
	NSQ *nsq.Producer

	// Containers
	pgContainer  *postgres.PostgresContainer
	nsqContainer testcontainers.Container

	connStr  string
	nsqdAddr string

	dbHost string
	dbPort int
	dbUser string
	dbPass string
	dbName string
}

func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	return &IntegrationSuite{T: t}
}

func (s *IntegrationSuite) Setup() {
	ctx := context.Background()

	// 1. Postgres
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("marketpulse_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(s.T, err)
	s.pgContainer = pgContainer

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T, err)
	s.connStr = connStr

	s.DB, err = sql.Open("postgres", connStr)
	require.NoError(s.T, err)

	u, err := url.Parse(connStr)
	require.NoError(s.T, err)
	s.dbHost = u.Hostname()
	s.dbPort, err = strconv.Atoi(u.Port())
	require.NoError(s.T, err)
	s.dbUser = u.User.Username()
	s.dbPass, _ = u.User.Password()
	s.dbName = strings.TrimPrefix(u.Path, "/")

	// Run Migrations
	m, err := migrate.New(MigrationPath(), connStr)
	require.NoError(s.T, err)
	require.NoError(s.T, m.Up())

	// 2. NSQ
	nsqReq := testcontainers.ContainerRequest{
		Image:        "nsqio/nsq:v1.3.0",
		ExposedPorts: []string{"4150/tcp", "4151/tcp"},
		Cmd:          []string{"/nsqd", "--broadcast-address=localhost"}, // Simplified for test
		WaitingFor:   wait.ForLog("TCP: listening on").WithStartupTimeout(60 * time.Second),
	}
	nsqC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: nsqReq,
		Started:          true,
	})
	require.NoError(s.T, err)
	s.nsqContainer = nsqC

	nsqHost, err := nsqC.Host(ctx)
	require.NoError(s.T, err)
	nsqPort, err := nsqC.MappedPort(ctx, "4150")
	require.NoError(s.T, err)
	s.nsqdAddr = fmt.Sprintf("%s:%s", nsqHost, nsqPort.Port())

	nsqCfg := nsq.NewConfig()
	s.NSQ, err = nsq.NewProducer(s.nsqdAddr, nsqCfg)
	require.NoError(s.T, err)
}

func (s *IntegrationSuite) Teardown() {
	ctx := context.Background()
	if s.pgContainer != nil {
		s.pgContainer.Terminate(ctx)
	}
	if s.nsqContainer != nil {
		s.nsqContainer.Terminate(ctx)
	}
}

// MigrationPath resolves the migrations directory relative to this file so
// tests work regardless of the package they run from.
func MigrationPath() string {
	_, b, _, _ := runtime.Caller(0)
	basepath := filepath.Dir(b)
	return fmt.Sprintf("file://%s/../../migrations", basepath)
}

// WorkerConfig returns a config pointed at the suite's containers.
func (s *IntegrationSuite) WorkerConfig() *config.Config {
	cfg := &config.Config{
		DBHost:                  s.dbHost,
		DBPort:                  s.dbPort,
		DBUser:                  s.dbUser,
		DBPass:                  s.dbPass,
		DBName:                  s.dbName,
		WorkerID:                "worker-it",
		JobType:                 "search",
		LockSeconds:             120,
		MaxAttempts:             3,
		DenialMaxAttempts:       2,
		PollSeconds:             1,
		BackoffBaseSeconds:      1,
		BackoffMultiplier:       2,
		BackoffMaxSeconds:       60,
		BreakerFailureThreshold: 5,
		BreakerRecoverySeconds:  60,
		UpstreamTimeoutSeconds:  5,
		MLSiteID:                "MLM",
		FXBaseCurrency:          "MXN",
		FXSymbols:               "USD",
		FXSyncHours:             24,
		ListingSyncHours:        6,
		NSQDHost:                s.nsqdAddr,
		MigrationPath:           MigrationPath(),
		BootstrapRetryAttempts:  3,
	}
	return cfg
}
