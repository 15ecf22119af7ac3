package service_test

import (
	"time"

	"github.com/sakashimaa/vani-inventory/internal/domain"
	"github.com/sakashimaa/vani-inventory/internal/repository"
)

func (s *IntegrationTestSuite) TestRecordSale() {
	added, err := s.Service.Upsert(s.Ctx, parsed("Leash", 2, "12.99"))
	s.Require().NoError(err)

	sale, product, err := s.Service.RecordSale(s.Ctx, added.Product.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), product.Quantity)
	s.Equal("Leash", sale.Name)
	s.Equal("12.99", sale.Price.String())
	s.True(sale.Date.Equal(fixedNow))

	sales, err := s.Service.Sales(s.Ctx)
	s.Require().NoError(err)
	s.Require().Len(sales, 1)
	s.Equal(sale.ID, sales[0].ID)

	s.Require().Eventually(func() bool {
		return s.eventPublished(sale.ID, domain.EventSaleRecorded)
	}, 10*time.Second, 100*time.Millisecond)
}

func (s *IntegrationTestSuite) TestRecordSaleOutOfStockWritesNothing() {
	added, err := s.Service.Upsert(s.Ctx, parsed("Leash", 0, "12.99"))
	s.Require().NoError(err)

	_, _, err = s.Service.RecordSale(s.Ctx, added.Product.ID)
	s.Require().ErrorIs(err, repository.ErrInsufficientStock)

	sales, err := s.Service.Sales(s.Ctx)
	s.Require().NoError(err)
	s.Empty(sales)
	s.Zero(s.countOutbox(domain.EventSaleRecorded))
}

func (s *IntegrationTestSuite) TestRecordSaleCopiesValuesNotReference() {
	added, err := s.Service.Upsert(s.Ctx, parsed("Leash", 1, "12.99"))
	s.Require().NoError(err)

	sale, _, err := s.Service.RecordSale(s.Ctx, added.Product.ID)
	s.Require().NoError(err)

	s.Require().NoError(s.Service.DeleteProduct(s.Ctx, added.Product.ID))

	sales, err := s.Service.Sales(s.Ctx)
	s.Require().NoError(err)
	s.Require().Len(sales, 1)
	s.Equal(sale.ID, sales[0].ID)
	s.Equal("Leash", sales[0].Name)
}

func (s *IntegrationTestSuite) TestDeleteSaleLeavesStockAlone() {
	added, err := s.Service.Upsert(s.Ctx, parsed("Leash", 2, "12.99"))
	s.Require().NoError(err)

	sale, _, err := s.Service.RecordSale(s.Ctx, added.Product.ID)
	s.Require().NoError(err)

	s.Require().NoError(s.Service.DeleteSale(s.Ctx, sale.ID))

	products, err := s.Service.Products(s.Ctx)
	s.Require().NoError(err)
	s.Require().Len(products, 1)
	s.Equal(int64(1), products[0].Quantity)

	err = s.Service.DeleteSale(s.Ctx, sale.ID)
	s.Require().ErrorIs(err, repository.ErrSaleNotFound)
	s.Equal(1, s.countOutbox(domain.EventSaleDeleted))
}

func (s *IntegrationTestSuite) TestDeleteProductNotFound() {
	err := s.Service.DeleteProduct(s.Ctx, "6f1c1d2e-54a1-4c7b-9a53-6a0c8e2a1f00")
	s.Require().ErrorIs(err, repository.ErrProductNotFound)
	s.Zero(s.countOutbox(domain.EventProductDeleted))
}
