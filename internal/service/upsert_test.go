package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/sakashimaa/vani-inventory/internal/domain"
	"github.com/shopspring/decimal"
)

func parsed(name string, qty int64, price string) domain.ParsedCandidate {
	return domain.ParsedCandidate{
		Name:           name,
		Quantity:       qty,
		Price:          decimal.RequireFromString(price),
		SubmittedPrice: price,
	}
}

func (s *IntegrationTestSuite) TestUpsertInsertsNewProduct() {
	out, err := s.Service.Upsert(s.Ctx, parsed("Leash", 3, "12.99"))
	s.Require().NoError(err)
	s.True(out.Created)
	s.NotEmpty(out.Product.ID)

	products, err := s.Service.Products(s.Ctx)
	s.Require().NoError(err)
	s.Require().Len(products, 1)
	s.Equal("Leash", products[0].Name)
	s.Equal(int64(3), products[0].Quantity)

	s.Require().Eventually(func() bool {
		return s.eventPublished(out.Product.ID, domain.EventProductAdded)
	}, 10*time.Second, 100*time.Millisecond)
}

func (s *IntegrationTestSuite) TestUpsertMergesCaseInsensitively() {
	first, err := s.Service.Upsert(s.Ctx, parsed("Leash", 3, "12.99"))
	s.Require().NoError(err)

	out, err := s.Service.Upsert(s.Ctx, parsed("leash", 2, "12.99"))
	s.Require().NoError(err)
	s.False(out.Created)
	s.Equal(first.Product.ID, out.Product.ID)
	s.Equal(int64(5), out.Product.Quantity)
	s.Equal("12.99", out.Product.Price.String())
	s.Equal("Leash", out.Product.Name)

	products, err := s.Service.Products(s.Ctx)
	s.Require().NoError(err)
	s.Len(products, 1)
	s.Equal(1, s.countOutbox(domain.EventProductUpdated))
}

func (s *IntegrationTestSuite) TestUpsertOverwritesPriceOnDifferentText() {
	_, err := s.Service.Upsert(s.Ctx, parsed("Leash", 3, "12.99"))
	s.Require().NoError(err)

	out, err := s.Service.Upsert(s.Ctx, parsed("Leash", 0, "10"))
	s.Require().NoError(err)
	s.Equal(int64(3), out.Product.Quantity)
	s.Equal("10", out.Product.Price.String())
}

func (s *IntegrationTestSuite) TestConcurrentUpsertsConverge() {
	var wg sync.WaitGroup
	errs := make(chan error, 4)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(s.Ctx, 10*time.Second)
			defer cancel()

			_, err := s.Service.Upsert(ctx, parsed("Bowl", 1, "4"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.Require().NoError(err)
	}

	products, err := s.Service.Products(s.Ctx)
	s.Require().NoError(err)
	s.Require().Len(products, 1)
	s.Equal(int64(4), products[0].Quantity)
}
