package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/vani-inventory/internal/domain"
	"github.com/sakashimaa/vani-inventory/internal/repository"
	"github.com/sakashimaa/vani-inventory/pkg/mylogger"
	outboxDomain "github.com/sakashimaa/vani-inventory/pkg/outbox/domain"
	"github.com/sakashimaa/vani-inventory/pkg/outbox/worker"
	"go.uber.org/zap"
)

const (
	aggregateProduct = "Product"
	aggregateSale    = "Sale"
)

type InventoryService interface {
	Upsert(ctx context.Context, candidate domain.ParsedCandidate) (domain.UpsertOutcome, error)
	RecordSale(ctx context.Context, productID string) (domain.Sale, domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	DeleteSale(ctx context.Context, id string) error
	Products(ctx context.Context) ([]domain.Product, error)
	Sales(ctx context.Context) ([]domain.Sale, error)
}

type inventoryService struct {
	productRepo repository.ProductRepository
	saleRepo    repository.SaleRepository
	outboxRepo  worker.OutboxRepository
	pool        *pgxpool.Pool
	topic       string
	now         func() time.Time
	logger      *zap.Logger
}

// NewInventoryService wires the collections and the outbox. now defaults to
// time.Now and stamps sale dates.
func NewInventoryService(
	productRepo repository.ProductRepository,
	saleRepo repository.SaleRepository,
	outboxRepo worker.OutboxRepository,
	pool *pgxpool.Pool,
	topic string,
	now func() time.Time,
	logger *zap.Logger,
) InventoryService {
	if now == nil {
		now = time.Now
	}

	return &inventoryService{
		productRepo: productRepo,
		saleRepo:    saleRepo,
		outboxRepo:  outboxRepo,
		pool:        pool,
		topic:       topic,
		now:         now,
		logger:      logger,
	}
}

func (s *inventoryService) Products(ctx context.Context) ([]domain.Product, error) {
	return s.productRepo.List(ctx)
}

func (s *inventoryService) Sales(ctx context.Context) ([]domain.Sale, error) {
	sales, err := s.saleRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	domain.SortSalesNewestFirst(sales)
	return sales, nil
}

// Upsert merges into the product with the same case-folded name or inserts
// a new one. A concurrent insert of the same name is retried once as a merge.
func (s *inventoryService) Upsert(ctx context.Context, candidate domain.ParsedCandidate) (domain.UpsertOutcome, error) {
	outcome, err := s.upsertOnce(ctx, candidate)
	if errors.Is(err, repository.ErrProductExists) {
		mylogger.Warn(ctx, s.logger, "Concurrent insert detected, merging", zap.String("name", candidate.Name))
		outcome, err = s.upsertOnce(ctx, candidate)
	}

	return outcome, err
}

func (s *inventoryService) upsertOnce(ctx context.Context, candidate domain.ParsedCandidate) (domain.UpsertOutcome, error) {
	var outcome domain.UpsertOutcome

	err := s.inTx(ctx, "Upsert", func(tx pgx.Tx) error {
		products, err := s.productRepo.ListTx(ctx, tx)
		if err != nil {
			return err
		}

		if match, ok := domain.FindByName(products, candidate.Name); ok {
			locked, err := s.productRepo.LockByID(ctx, tx, match.ID)
			if err != nil {
				return err
			}

			merged := domain.MergeUpsert(*locked, candidate.Quantity, candidate.SubmittedPrice, candidate.Price)

			updated, err := s.productRepo.UpdateFields(ctx, tx, merged.ID, merged.Quantity, merged.Price)
			if err != nil {
				return err
			}

			outcome = domain.UpsertOutcome{Product: *updated}
			return s.saveEvent(ctx, tx, aggregateProduct, updated.ID, domain.EventProductUpdated, productEvent(updated))
		}

		product := domain.Product{
			Name:     candidate.Name,
			Quantity: candidate.Quantity,
			Price:    candidate.Price,
		}
		if err := s.productRepo.Insert(ctx, tx, &product); err != nil {
			return err
		}

		outcome = domain.UpsertOutcome{Product: product, Created: true}
		return s.saveEvent(ctx, tx, aggregateProduct, product.ID, domain.EventProductAdded, productEvent(&product))
	})
	if err != nil {
		return domain.UpsertOutcome{}, err
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Product upserted",
		zap.String("product_id", outcome.Product.ID),
		zap.Bool("created", outcome.Created),
		zap.Int64("quantity", outcome.Product.Quantity),
	)

	return outcome, nil
}

// RecordSale decrements the product by one unit and records the sale with
// the product's current name and price. Both writes commit together.
func (s *inventoryService) RecordSale(ctx context.Context, productID string) (domain.Sale, domain.Product, error) {
	var (
		sale    domain.Sale
		product domain.Product
	)

	err := s.inTx(ctx, "RecordSale", func(tx pgx.Tx) error {
		remaining, err := s.productRepo.DecrementStock(ctx, tx, productID, 1)
		if err != nil {
			return err
		}
		product = *remaining

		sale = domain.Sale{
			Name:  remaining.Name,
			Price: remaining.Price,
			Date:  s.now().UTC(),
		}
		if err := s.saleRepo.Insert(ctx, tx, &sale); err != nil {
			return err
		}

		return s.saveEvent(ctx, tx, aggregateSale, sale.ID, domain.EventSaleRecorded, domain.SaleRecordedEvent{
			SaleID:            sale.ID,
			ProductID:         remaining.ID,
			Name:              sale.Name,
			Price:             sale.Price,
			Date:              sale.Date,
			RemainingQuantity: remaining.Quantity,
		})
	})
	if err != nil {
		return domain.Sale{}, domain.Product{}, err
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Sale recorded",
		zap.String("sale_id", sale.ID),
		zap.String("product_id", product.ID),
		zap.Int64("remaining", product.Quantity),
	)

	return sale, product, nil
}

func (s *inventoryService) DeleteProduct(ctx context.Context, id string) error {
	return s.inTx(ctx, "DeleteProduct", func(tx pgx.Tx) error {
		if err := s.productRepo.DeleteByID(ctx, tx, id); err != nil {
			return err
		}

		return s.saveEvent(ctx, tx, aggregateProduct, id, domain.EventProductDeleted, domain.ProductDeletedEvent{ProductID: id})
	})
}

func (s *inventoryService) DeleteSale(ctx context.Context, id string) error {
	return s.inTx(ctx, "DeleteSale", func(tx pgx.Tx) error {
		if err := s.saleRepo.DeleteByID(ctx, tx, id); err != nil {
			return err
		}

		return s.saveEvent(ctx, tx, aggregateSale, id, domain.EventSaleDeleted, domain.SaleDeletedEvent{SaleID: id})
	})
}

func (s *inventoryService) saveEvent(ctx context.Context, tx pgx.Tx, aggregate, id, eventType string, payload any) error {
	event, err := outboxDomain.NewEvent(s.topic, aggregate, id, eventType, payload)
	if err != nil {
		return fmt.Errorf("event payload marshal error: %w", err)
	}

	if err := s.outboxRepo.SaveOutboxEvent(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}

	return nil
}

func (s *inventoryService) inTx(ctx context.Context, method string, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(ctx, s.logger, "Error starting transaction", zap.Error(err), zap.String("method_name", method))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)
		err := tx.Rollback(cleanupCtx)

		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(
				cleanupCtx,
				s.logger,
				"Error rolling back transaction",
				zap.Error(err),
				zap.String("method_name", method),
			)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err), zap.String("method_name", method))
		return fmt.Errorf("failed to commit: %w", err)
	}

	return nil
}

func productEvent(p *domain.Product) domain.ProductChangedEvent {
	return domain.ProductChangedEvent{
		ProductID: p.ID,
		Name:      p.Name,
		Quantity:  p.Quantity,
		Price:     p.Price,
	}
}
