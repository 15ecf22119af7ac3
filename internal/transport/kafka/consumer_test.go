package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/sakashimaa/vani-inventory/internal/domain"
	outboxDomain "github.com/sakashimaa/vani-inventory/pkg/outbox/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func message(t *testing.T, event string, payload any) *sarama.ConsumerMessage {
	t.Helper()

	ev, err := outboxDomain.NewEvent("inventory_events", "Sale", "s1", event, payload)
	require.NoError(t, err)

	return &sarama.ConsumerMessage{Topic: "inventory_events", Value: ev.Payload}
}

func TestProcessMessage(t *testing.T) {
	c := NewConsumer(nil, "group", "inventory_events", zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		name  string
		event string
		want  []domain.Collection
	}{
		{name: "product added", event: domain.EventProductAdded, want: []domain.Collection{domain.CollectionProducts}},
		{name: "product deleted", event: domain.EventProductDeleted, want: []domain.Collection{domain.CollectionProducts}},
		{name: "sale recorded", event: domain.EventSaleRecorded, want: []domain.Collection{domain.CollectionProducts, domain.CollectionSales}},
		{name: "sale deleted", event: domain.EventSaleDeleted, want: []domain.Collection{domain.CollectionSales}},
		{name: "unknown", event: "OrderCreated", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []domain.Collection

			err := c.processMessage(ctx, message(t, tt.event, map[string]string{"id": "x"}), func(col domain.Collection) {
				got = append(got, col)
			})

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProcessMessageSkipsGarbage(t *testing.T) {
	c := NewConsumer(nil, "group", "inventory_events", zap.NewNop())
	called := false

	err := c.processMessage(context.Background(), &sarama.ConsumerMessage{Value: []byte("{not json")}, func(domain.Collection) {
		called = true
	})

	require.NoError(t, err)
	assert.False(t, called)

	raw, _ := json.Marshal(map[string]string{"unrelated": "shape"})
	err = c.processMessage(context.Background(), &sarama.ConsumerMessage{Value: raw}, func(domain.Collection) {
		called = true
	})
	require.NoError(t, err)
	assert.False(t, called)
}
