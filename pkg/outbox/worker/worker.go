package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/vani-inventory/pkg/mylogger"
	"github.com/sakashimaa/vani-inventory/pkg/outbox/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const pruneInterval = time.Minute

type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type OutboxRepository interface {
	SaveOutboxEvent(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent) error
	GetUnpublishedEvents(ctx context.Context, tx pgx.Tx, batchSize, maxAttempts int) ([]*domain.OutboxEvent, error)
	MarkEventPublished(ctx context.Context, tx pgx.Tx, eventID int64) error
	MarkEventFailed(ctx context.Context, tx pgx.Tx, eventID int64, errMsg string) error
	DeletePublishedBefore(ctx context.Context, db Execer, before time.Time) (int64, error)
}

type KafkaProducer interface {
	ProduceMessage(ctx context.Context, topic, key string, message interface{}) error
}

type Config struct {
	BatchSize   int
	Interval    time.Duration
	MaxAttempts int
	// Retention is how long relayed rows are kept. Zero keeps them forever.
	Retention time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.Interval <= 0 {
		c.Interval = 500 * time.Millisecond
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	return c
}

// OutboxProcessor relays saved inventory events to kafka. Each batch is
// one transaction, so a crash between produce and mark only repeats
// events, it never loses them.
type OutboxProcessor struct {
	pool     *pgxpool.Pool
	repo     OutboxRepository
	producer KafkaProducer
	logger   *zap.Logger
	cfg      Config
	tracer   trace.Tracer
}

func NewOutboxProcessor(
	pool *pgxpool.Pool,
	repo OutboxRepository,
	producer KafkaProducer,
	logger *zap.Logger,
	cfg Config,
) *OutboxProcessor {
	return &OutboxProcessor{
		pool:     pool,
		repo:     repo,
		producer: producer,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		tracer:   otel.Tracer("outbox-worker"),
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	mylogger.Info(ctx, p.logger, "Starting outbox processor",
		zap.Int("batch_size", p.cfg.BatchSize),
		zap.Duration("interval", p.cfg.Interval),
	)

	relay := time.NewTicker(p.cfg.Interval)
	defer relay.Stop()

	prune := time.NewTicker(pruneInterval)
	defer prune.Stop()

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(ctx, p.logger, "Outbox processor stopping")
			return
		case <-relay.C:
			if _, err := p.processBatch(ctx); err != nil && ctx.Err() == nil {
				mylogger.Error(ctx, p.logger, "Error processing outbox batch", zap.Error(err))
			}
		case <-prune.C:
			p.prune(ctx)
		}
	}
}

// processBatch relays one batch and returns how many events went out.
func (p *OutboxProcessor) processBatch(ctx context.Context) (int, error) {
	ctx, span := p.tracer.Start(ctx, "OutboxProcessor.processBatch")
	defer span.End()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		if err := tx.Rollback(cleanupCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(cleanupCtx, p.logger, "Outbox worker failed to rollback transaction",
				zap.Error(err),
				zap.String("method_name", "processBatch"),
			)
		}
	}()

	events, err := p.repo.GetUnpublishedEvents(ctx, tx, p.cfg.BatchSize, p.cfg.MaxAttempts)
	if err != nil {
		return 0, err
	}

	if len(events) == 0 {
		return 0, nil
	}

	published, err := p.relay(ctx, tx, events)
	if err != nil {
		return 0, err
	}

	span.SetAttributes(
		attribute.Int("outbox.batch", len(events)),
		attribute.Int("outbox.published", published),
	)

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("error committing outbox batch: %w", err)
	}

	mylogger.Debug(ctx, p.logger, "Outbox batch relayed", zap.Int("published", published), zap.Int("batch", len(events)))

	return published, nil
}

// relay sends events in id order. Once an event fails, later events of the
// same aggregate stay unsent until it goes out or is given up, so one
// product's events never overtake each other.
func (p *OutboxProcessor) relay(ctx context.Context, tx pgx.Tx, events []*domain.OutboxEvent) (int, error) {
	held := make(map[string]struct{})

	published := 0
	for _, event := range events {
		key := event.AggregateType + "/" + event.AggregateID
		if _, ok := held[key]; ok {
			mylogger.Debug(ctx, p.logger, "Outbox event held behind a failed one",
				zap.Int64("id", event.ID),
				zap.String("aggregate", key),
			)
			continue
		}

		if err := p.publish(ctx, event); err != nil {
			p.logFailure(ctx, event, err)
			held[key] = struct{}{}

			if err := p.repo.MarkEventFailed(ctx, tx, event.ID, err.Error()); err != nil {
				return 0, err
			}
			continue
		}

		if err := p.repo.MarkEventPublished(ctx, tx, event.ID); err != nil {
			return 0, err
		}
		published++
	}

	return published, nil
}

// publish sends one event under the trace of the write that saved it,
// linked to the batch that relayed it.
func (p *OutboxProcessor) publish(ctx context.Context, event *domain.OutboxEvent) error {
	var envelope domain.Envelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return fmt.Errorf("error decoding envelope: %w", err)
	}
	envelope.EventID = event.ID

	eventCtx, span := p.tracer.Start(
		event.TraceContext(ctx),
		"OutboxProcessor.publish",
		trace.WithLinks(trace.LinkFromContext(ctx)),
		trace.WithAttributes(
			attribute.Int64("event_id", event.ID),
			attribute.String("event_type", event.EventType),
		),
	)
	defer span.End()

	if err := p.producer.ProduceMessage(eventCtx, event.Topic, event.AggregateID, envelope); err != nil {
		span.RecordError(err)
		return err
	}

	return nil
}

func (p *OutboxProcessor) logFailure(ctx context.Context, event *domain.OutboxEvent, err error) {
	fields := []zap.Field{
		zap.Int64("id", event.ID),
		zap.String("event_type", event.EventType),
		zap.Int64("attempts", event.Attempts+1),
		zap.Error(err),
	}

	if event.Attempts+1 >= int64(p.cfg.MaxAttempts) {
		mylogger.Error(ctx, p.logger, "Outbox event given up", fields...)
		return
	}

	mylogger.Warn(ctx, p.logger, "Outbox event not relayed, will retry", fields...)
}

func (p *OutboxProcessor) prune(ctx context.Context) {
	if p.cfg.Retention <= 0 {
		return
	}

	deleted, err := p.repo.DeletePublishedBefore(ctx, p.pool, time.Now().Add(-p.cfg.Retention))
	if err != nil {
		if ctx.Err() == nil {
			mylogger.Error(ctx, p.logger, "Error pruning outbox", zap.Error(err))
		}
		return
	}

	if deleted > 0 {
		mylogger.Debug(ctx, p.logger, "Pruned relayed outbox events", zap.Int64("deleted", deleted))
	}
}
