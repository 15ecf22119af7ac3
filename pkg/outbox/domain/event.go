package domain

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type OutboxEvent struct {
	ID            int64           `db:"id"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	EventType     string          `db:"event_type"`
	Payload       json.RawMessage `db:"payload"`
	Headers       json.RawMessage `db:"headers"`
	CreatedAt     time.Time       `db:"created_at"`
	PublishedAt   *time.Time      `db:"published_at"`
	Attempts      int64           `db:"attempts"`
	LastError     *string         `db:"last_error"`
	Topic         string          `db:"topic"`
}

// Envelope is the wire shape of every published event.
type Envelope struct {
	EventID int64           `json:"event_id,omitempty"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// NewEvent wraps payload in an Envelope ready to be saved.
func NewEvent(topic, aggregateType, aggregateID, eventType string, payload any) (*OutboxEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	envelope, err := json.Marshal(Envelope{Event: eventType, Payload: raw})
	if err != nil {
		return nil, err
	}

	return &OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       envelope,
		Topic:         topic,
	}, nil
}

// TraceHeaders captures the trace of ctx so the relay can continue it.
// It returns nil when ctx carries no span.
func TraceHeaders(ctx context.Context) json.RawMessage {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	if len(carrier) == 0 {
		return nil
	}

	raw, err := json.Marshal(carrier)
	if err != nil {
		return nil
	}

	return raw
}

// TraceContext returns ctx parented to the trace saved with the event.
func (e *OutboxEvent) TraceContext(ctx context.Context) context.Context {
	if len(e.Headers) == 0 {
		return ctx
	}

	carrier := propagation.MapCarrier{}
	if err := json.Unmarshal(e.Headers, &carrier); err != nil {
		return ctx
	}

	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
