package service_test

import (
	"time"

	"github.com/sakashimaa/vani-inventory/internal/domain"
)

func (s *IntegrationTestSuite) TestRelayedEventsArePruned() {
	out, err := s.Service.Upsert(s.Ctx, parsed("Collar", 1, "8.50"))
	s.Require().NoError(err)

	s.Require().Eventually(func() bool {
		return s.eventPublished(out.Product.ID, domain.EventProductAdded)
	}, 10*time.Second, 100*time.Millisecond)

	deleted, err := s.OutboxRepo.DeletePublishedBefore(s.Ctx, s.DbPool, time.Now().Add(-time.Hour))
	s.Require().NoError(err)
	s.Zero(deleted)

	deleted, err = s.OutboxRepo.DeletePublishedBefore(s.Ctx, s.DbPool, time.Now().Add(time.Hour))
	s.Require().NoError(err)
	s.Equal(int64(1), deleted)
	s.Zero(s.countOutbox(domain.EventProductAdded))
}

func (s *IntegrationTestSuite) TestExhaustedEventsAreSkipped() {
	_, err := s.DbPool.Exec(s.Ctx, `
		INSERT INTO outbox (aggregate_type, aggregate_id, event_type, payload, topic, attempts, last_error)
		VALUES ('Product', 'p-1', $1, '{}', $2, 10, 'broker down')
	`, domain.EventProductAdded, testTopic)
	s.Require().NoError(err)

	tx, err := s.DbPool.Begin(s.Ctx)
	s.Require().NoError(err)
	defer func() { _ = tx.Rollback(s.Ctx) }()

	events, err := s.OutboxRepo.GetUnpublishedEvents(s.Ctx, tx, 10, 10)
	s.Require().NoError(err)
	s.Empty(events)

	events, err = s.OutboxRepo.GetUnpublishedEvents(s.Ctx, tx, 10, 11)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(int64(10), events[0].Attempts)
	s.Require().NotNil(events[0].LastError)
	s.Equal("broker down", *events[0].LastError)
}
