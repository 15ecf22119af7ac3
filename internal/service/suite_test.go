package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/sakashimaa/vani-inventory/internal/repository"
	"github.com/sakashimaa/vani-inventory/internal/service"
	"github.com/sakashimaa/vani-inventory/pkg/kafka"
	outboxRepository "github.com/sakashimaa/vani-inventory/pkg/outbox/repository"
	"github.com/sakashimaa/vani-inventory/pkg/outbox/worker"
	"github.com/sakashimaa/vani-inventory/pkg/testsuite"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

const testTopic = "inventory_events_test"

var fixedNow = time.Date(2026, 5, 4, 12, 30, 0, 0, time.UTC)

type IntegrationTestSuite struct {
	testsuite.BaseSuite

	Service         service.InventoryService
	TestProducer    kafka.Producer
	OutboxRepo      worker.OutboxRepository
	OutboxProcessor *worker.OutboxProcessor
	workerCancel    context.CancelFunc
}

func (s *IntegrationTestSuite) SetupSuite() {
	s.BaseSuite.SetupInfrastructure(testsuite.Infrastructure{Postgres: true, Kafka: true})
}

func (s *IntegrationTestSuite) TearDownSuite() {
	if s.TestProducer != nil {
		_ = s.TestProducer.Close()
	}
	s.BaseSuite.TearDownInfrastructure()
}

func (s *IntegrationTestSuite) SetupTest() {
	s.TruncateTable("products", "sales", "outbox")

	logger := zap.NewNop()
	outboxRepo := outboxRepository.NewOutboxRepository()
	s.OutboxRepo = outboxRepo

	if s.TestProducer == nil {
		var err error
		s.TestProducer, err = kafka.NewProducer(s.KafkaBrokers, logger)
		s.Require().NoError(err, "failed to create kafka producer")
	}

	s.Service = service.NewInventoryService(
		repository.NewProductRepository(s.DbPool, logger),
		repository.NewSaleRepository(s.DbPool, logger),
		outboxRepo,
		s.DbPool,
		testTopic,
		func() time.Time { return fixedNow },
		logger,
	)
	s.OutboxProcessor = worker.NewOutboxProcessor(s.DbPool, outboxRepo, s.TestProducer, logger, worker.Config{
		BatchSize: 10,
		Interval:  50 * time.Millisecond,
	})

	workerCtx, cancel := context.WithCancel(s.Ctx)
	s.workerCancel = cancel

	go s.OutboxProcessor.Start(workerCtx)
}

func (s *IntegrationTestSuite) TearDownTest() {
	if s.workerCancel != nil {
		s.workerCancel()
	}
}

func (s *IntegrationTestSuite) eventPublished(aggregateID, eventType string) bool {
	var publishedAt *time.Time

	err := s.DbPool.QueryRow(s.Ctx, `
		SELECT published_at
		FROM outbox
		WHERE aggregate_id = $1 AND event_type = $2
	`, aggregateID, eventType).Scan(&publishedAt)

	return err == nil && publishedAt != nil
}

func (s *IntegrationTestSuite) countOutbox(eventType string) int {
	var n int
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx,
		`SELECT COUNT(*) FROM outbox WHERE event_type = $1`, eventType).Scan(&n))

	return n
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}
