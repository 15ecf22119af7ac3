package confirm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/vani-inventory/internal/domain"
	"github.com/sakashimaa/vani-inventory/internal/workflow"
	"github.com/sakashimaa/vani-inventory/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var ErrConfirmationNotFound = errors.New("confirmation not found or expired")

type Action string

const (
	ActionSell   Action = "sell"
	ActionDelete Action = "delete"
)

// Pending is a destructive action waiting for the user's yes.
type Pending struct {
	ID        string            `json:"id"`
	Action    Action            `json:"action"`
	Kind      domain.RecordKind `json:"kind"`
	TargetID  string            `json:"target_id"`
	Prompt    workflow.Prompt   `json:"prompt"`
	CreatedAt time.Time         `json:"created_at"`
}

type Store struct {
	rdb    *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
	logger *zap.Logger
}

func NewStore(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Store {
	return &Store{
		rdb:    rdb,
		ttl:    ttl,
		tracer: otel.Tracer("inventory/confirm"),
		logger: logger,
	}
}

func key(id string) string {
	return fmt.Sprintf("inventory:confirm:%s", id)
}

// Request saves p under a fresh id and returns it. The pending action
// expires after the store ttl.
func (s *Store) Request(ctx context.Context, p Pending) (Pending, error) {
	ctx, span := s.tracer.Start(ctx, "ConfirmStore.Request")
	defer span.End()

	p.ID = uuid.NewString()
	p.CreatedAt = time.Now().UTC()

	span.SetAttributes(
		attribute.String("id", p.ID),
		attribute.String("action", string(p.Action)),
		attribute.String("target_id", p.TargetID),
	)

	data, err := json.Marshal(p)
	if err != nil {
		return Pending{}, fmt.Errorf("error encoding confirmation: %w", err)
	}

	if err := s.rdb.Set(ctx, key(p.ID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, s.logger, "Error saving confirmation", zap.Error(err))

		return Pending{}, fmt.Errorf("error saving confirmation: %w", err)
	}

	return p, nil
}

// Resolve takes the pending action out of the store. A second Resolve of
// the same id fails, so a confirmation runs at most once.
func (s *Store) Resolve(ctx context.Context, id string) (Pending, error) {
	ctx, span := s.tracer.Start(ctx, "ConfirmStore.Resolve")
	defer span.End()

	span.SetAttributes(attribute.String("id", id))

	data, err := s.rdb.GetDel(ctx, key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Pending{}, ErrConfirmationNotFound
		}

		span.RecordError(err)
		mylogger.Error(ctx, s.logger, "Error resolving confirmation", zap.String("id", id), zap.Error(err))

		return Pending{}, fmt.Errorf("error resolving confirmation: %w", err)
	}

	var p Pending
	if err := json.Unmarshal(data, &p); err != nil {
		return Pending{}, fmt.Errorf("error decoding confirmation: %w", err)
	}

	return p, nil
}

// Cancel drops the pending action without running it.
func (s *Store) Cancel(ctx context.Context, id string) error {
	n, err := s.rdb.Del(ctx, key(id)).Result()
	if err != nil {
		mylogger.Error(ctx, s.logger, "Error cancelling confirmation", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("error cancelling confirmation: %w", err)
	}

	if n == 0 {
		return ErrConfirmationNotFound
	}

	return nil
}
