package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/vani-inventory/pkg/outbox/domain"
	"github.com/sakashimaa/vani-inventory/pkg/outbox/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type outboxRepo struct {
	tracer trace.Tracer
}

// NewOutboxRepository works inside the caller's transaction, so rows are
// saved atomically with the inventory write they describe.
func NewOutboxRepository() worker.OutboxRepository {
	return &outboxRepo{
		tracer: otel.Tracer("outbox/outbox_repo"),
	}
}

func (r *outboxRepo) SaveOutboxEvent(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent) error {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.SaveOutboxEvent")
	defer span.End()

	span.SetAttributes(
		attribute.String("aggregate_type", event.AggregateType),
		attribute.String("aggregate_id", event.AggregateID),
		attribute.String("event_type", event.EventType),
	)

	if event.Headers == nil {
		event.Headers = domain.TraceHeaders(ctx)
	}

	err := tx.QueryRow(ctx, `
		INSERT INTO outbox (aggregate_type, aggregate_id, event_type, payload, headers, topic)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`,
		event.AggregateType,
		event.AggregateID,
		event.EventType,
		[]byte(event.Payload),
		nullableJSON(event.Headers),
		event.Topic,
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error saving outbox event: %w", err)
	}

	return nil
}

// GetUnpublishedEvents locks up to batchSize pending rows in id order.
// Rows that failed maxAttempts times are left for an operator.
func (r *outboxRepo) GetUnpublishedEvents(ctx context.Context, tx pgx.Tx, batchSize, maxAttempts int) ([]*domain.OutboxEvent, error) {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.GetUnpublishedEvents")
	defer span.End()

	span.SetAttributes(
		attribute.Int("batch_size", batchSize),
		attribute.Int("max_attempts", maxAttempts),
	)

	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, headers,
		       created_at, published_at, attempts, last_error, topic
		FROM outbox
		WHERE published_at IS NULL AND attempts < $2
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, batchSize, maxAttempts)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query unpublished events: %w", err)
	}

	events, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[domain.OutboxEvent])
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error scanning outbox events: %w", err)
	}

	span.SetAttributes(attribute.Int("result_count", len(events)))

	return events, nil
}

func (r *outboxRepo) MarkEventPublished(ctx context.Context, tx pgx.Tx, eventID int64) error {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.MarkEventPublished")
	defer span.End()

	span.SetAttributes(attribute.Int64("event_id", eventID))

	if _, err := tx.Exec(ctx, `
		UPDATE outbox
		SET published_at = NOW(), last_error = NULL
		WHERE id = $1
	`, eventID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("error marking event %d published: %w", eventID, err)
	}

	return nil
}

// MarkEventFailed counts one more attempt and keeps the last error.
func (r *outboxRepo) MarkEventFailed(ctx context.Context, tx pgx.Tx, eventID int64, errMsg string) error {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.MarkEventFailed")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("event_id", eventID),
		attribute.String("outbox.error_message", errMsg),
	)

	if _, err := tx.Exec(ctx, `
		UPDATE outbox
		SET attempts = attempts + 1, last_error = $1
		WHERE id = $2
	`, errMsg, eventID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("error marking event %d failed: %w", eventID, err)
	}

	return nil
}

// DeletePublishedBefore removes rows relayed before the cutoff. Pending
// and given-up rows are never removed.
func (r *outboxRepo) DeletePublishedBefore(ctx context.Context, db worker.Execer, before time.Time) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.DeletePublishedBefore")
	defer span.End()

	tag, err := db.Exec(ctx, `
		DELETE FROM outbox
		WHERE published_at IS NOT NULL AND published_at < $1
	`, before)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("error pruning outbox: %w", err)
	}

	span.SetAttributes(attribute.Int64("deleted", tag.RowsAffected()))

	return tag.RowsAffected(), nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
