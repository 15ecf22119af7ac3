package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/vani-inventory/internal/gate"
	"github.com/sakashimaa/vani-inventory/internal/projection"
	"github.com/sakashimaa/vani-inventory/internal/repository"
	"github.com/sakashimaa/vani-inventory/internal/service"
	"github.com/sakashimaa/vani-inventory/internal/session"
	kafkaTransport "github.com/sakashimaa/vani-inventory/internal/transport/kafka"
	"github.com/sakashimaa/vani-inventory/pkg/config"
	"github.com/sakashimaa/vani-inventory/pkg/db"
	"github.com/sakashimaa/vani-inventory/pkg/kafka"
	outbox "github.com/sakashimaa/vani-inventory/pkg/outbox/repository"
	"github.com/sakashimaa/vani-inventory/pkg/outbox/worker"
	"github.com/sakashimaa/vani-inventory/pkg/utils"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

const (
	feedKafka  = "kafka"
	authRemote = "remote"
)

// loadConfig reads an optional .env file, then the yaml config.
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	return config.Load()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return config.NewLogger(config.LoggerConfig{
		Level: cfg.Log.Level,
		Env:   cfg.Env,
		File:  cfg.Log.File,
	})
}

// stack is the store side shared by serve and shell.
type stack struct {
	cfg     *config.Config
	logger  *zap.Logger
	tp      *sdktrace.TracerProvider
	pool    *pgxpool.Pool
	rdb     *redis.Client
	outbox  worker.OutboxRepository
	service service.InventoryService
	live    *projection.Live
	flag    *session.FlagStore
}

func newStack(ctx context.Context, serviceName string) (*stack, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating logger: %w", err)
	}

	tp, err := utils.InitTracer(ctx, utils.TracerConfig{
		ServiceName: serviceName,
		Endpoint:    cfg.Tracing.Endpoint,
		Env:         cfg.Env,
		Enabled:     cfg.Tracing.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("error init tracer: %w", err)
	}

	pool, err := db.NewPostgresDB(ctx, cfg.Postgres.URL)
	if err != nil {
		_ = tp.Shutdown(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("error creating postgres pool: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	productRepo := repository.NewProductRepository(pool, logger)
	saleRepo := repository.NewSaleRepository(pool, logger)
	outboxRepo := outbox.NewOutboxRepository()
	svc := service.NewInventoryService(productRepo, saleRepo, outboxRepo, pool, cfg.Kafka.Topic, nil, logger)

	st := &stack{
		cfg:     cfg,
		logger:  logger,
		tp:      tp,
		pool:    pool,
		rdb:     rdb,
		outbox:  outboxRepo,
		service: svc,
		flag:    session.NewFlagStore(rdb, logger),
	}
	st.live = projection.NewLive(st.feed(), svc, logger)

	return st, nil
}

// feed picks the change source for the live projection. Each process reads
// the kafka topic in its own group, since every instance needs every event.
func (s *stack) feed() projection.Feed {
	if s.cfg.Projection.Feed == feedKafka {
		groupID := fmt.Sprintf("%s-%s", s.cfg.Kafka.GroupID, uuid.NewString()[:8])
		return kafkaTransport.NewConsumer(s.cfg.Kafka.Brokers, groupID, s.cfg.Kafka.Topic, s.logger)
	}

	return projection.PostgresFeed(repository.NewWatcher(s.pool, s.logger))
}

// startOutbox relays outbox rows to kafka until ctx is done. The returned
// func waits for the relay and closes the producer.
func (s *stack) startOutbox(ctx context.Context) (func(), error) {
	producer, err := kafka.NewProducer(s.cfg.Kafka.Brokers, s.logger)
	if err != nil {
		return nil, fmt.Errorf("error creating kafka producer: %w", err)
	}

	processor := worker.NewOutboxProcessor(s.pool, s.outbox, producer, s.logger, worker.Config{
		BatchSize:   s.cfg.Outbox.BatchSize,
		Interval:    s.cfg.Outbox.Interval,
		MaxAttempts: s.cfg.Outbox.MaxAttempts,
		Retention:   s.cfg.Outbox.Retention,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		processor.Start(ctx)
	}()

	return func() {
		<-done
		if err := producer.Close(); err != nil {
			s.logger.Warn("Error closing kafka producer", zap.Error(err))
		}
	}, nil
}

// authenticator returns the gate's device for one passcode source.
func (s *stack) authenticator(source gate.PasscodeSource) gate.Authenticator {
	if s.cfg.Auth.Mode == authRemote {
		return gate.NewRemoteAuthenticator(
			s.cfg.Auth.RemoteURL,
			s.cfg.HTTP.Timeout,
			s.cfg.Auth.ChallengeTimeout,
			s.logger,
		)
	}

	return gate.NewPasscodeAuthenticator(s.cfg.Auth.PasscodeHash, source)
}

func (s *stack) close(ctx context.Context) {
	if err := s.rdb.Close(); err != nil {
		s.logger.Warn("Error closing redis", zap.Error(err))
	}

	s.pool.Close()

	if err := s.tp.Shutdown(ctx); err != nil {
		s.logger.Warn("Error stopping telemetry", zap.Error(err))
	}

	_ = s.logger.Sync()
}
