package testsuite

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/vani-inventory/migrations"
	"github.com/sakashimaa/vani-inventory/pkg/db"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Infrastructure selects the containers a suite starts.
type Infrastructure struct {
	Postgres bool
	Redis    bool
	Kafka    bool
}

// BaseSuite owns the containers of one integration suite. Postgres comes
// up with every migration applied.
type BaseSuite struct {
	suite.Suite
	Ctx context.Context

	DbPool       *pgxpool.Pool
	DbURL        string
	Redis        *redis.Client
	KafkaBrokers []string

	containers []testcontainers.Container
}

func (s *BaseSuite) SetupInfrastructure(infra Infrastructure) {
	if testing.Short() {
		s.T().Skip("integration suite skipped in short mode")
	}

	s.Ctx = context.Background()

	if infra.Postgres {
		s.startPostgres()
	}
	if infra.Redis {
		s.startRedis()
	}
	if infra.Kafka {
		s.startKafka()
	}
}

func (s *BaseSuite) startPostgres() {
	container, err := postgres.Run(
		s.Ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("inventory_test"),
		postgres.WithUsername("inventory"),
		postgres.WithPassword("inventory"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if container != nil {
		s.track(container)
	}
	s.Require().NoError(err, "postgres container")

	s.DbURL, err = container.ConnectionString(s.Ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.Require().NoError(db.Migrate(s.DbURL, migrations.FS))

	s.DbPool, err = db.NewPostgresDB(s.Ctx, s.DbURL)
	s.Require().NoError(err)
}

func (s *BaseSuite) startRedis() {
	container, err := tcredis.Run(s.Ctx, "redis:7-alpine")
	if container != nil {
		s.track(container)
	}
	s.Require().NoError(err, "redis container")

	uri, err := container.ConnectionString(s.Ctx)
	s.Require().NoError(err)

	opts, err := redis.ParseURL(uri)
	s.Require().NoError(err)

	s.Redis = redis.NewClient(opts)
}

func (s *BaseSuite) startKafka() {
	container, err := kafka.Run(
		s.Ctx,
		"confluentinc/cp-kafka:7.5.0",
		kafka.WithClusterID("inventory-test"),
	)
	if container != nil {
		s.track(container)
	}
	s.Require().NoError(err, "kafka container")

	s.KafkaBrokers, err = container.Brokers(s.Ctx)
	s.Require().NoError(err)
}

// track remembers a container for teardown, even one that failed to
// become ready.
func (s *BaseSuite) track(c testcontainers.Container) {
	s.containers = append(s.containers, c)
}

func (s *BaseSuite) TearDownInfrastructure() {
	if s.DbPool != nil {
		s.DbPool.Close()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}

	for i := len(s.containers) - 1; i >= 0; i-- {
		if err := testcontainers.TerminateContainer(s.containers[i]); err != nil {
			s.T().Logf("failed to terminate container: %v", err)
		}
	}
	s.containers = nil
}

// TruncateTable empties tables in one statement.
func (s *BaseSuite) TruncateTable(tables ...string) {
	_, err := s.DbPool.Exec(s.Ctx, fmt.Sprintf("TRUNCATE %s CASCADE", strings.Join(tables, ", ")))
	s.Require().NoError(err)
}

func (s *BaseSuite) FlushRedis() {
	s.Require().NoError(s.Redis.FlushAll(s.Ctx).Err())
}
