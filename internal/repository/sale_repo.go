package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/vani-inventory/internal/domain"
	"github.com/sakashimaa/vani-inventory/pkg/mylogger"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type SaleRepository interface {
	List(ctx context.Context) ([]domain.Sale, error)
	Insert(ctx context.Context, tx pgx.Tx, sale *domain.Sale) error
	DeleteByID(ctx context.Context, tx pgx.Tx, id string) error
}

type saleRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewSaleRepository(pool *pgxpool.Pool, logger *zap.Logger) SaleRepository {
	return &saleRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("inventory/sale_repo"),
	}
}

func (r *saleRepo) List(ctx context.Context) ([]domain.Sale, error) {
	ctx, span := r.tracer.Start(ctx, "SaleRepository.List")
	defer span.End()

	query := `
		SELECT id::text, name, price::text, date
		FROM sales
		ORDER BY date DESC, id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error selecting sales", zap.Error(err))

		return nil, fmt.Errorf("error selecting sales: %w", err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0)
	for rows.Next() {
		var (
			s     domain.Sale
			price string
		)

		if err := rows.Scan(&s.ID, &s.Name, &price, &s.Date); err != nil {
			span.RecordError(err)
			mylogger.Error(ctx, r.logger, "Error scanning sale", zap.Error(err))

			return nil, fmt.Errorf("error scanning sale: %w", err)
		}

		if s.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("error parsing sale price %q: %w", price, err)
		}

		sales = append(sales, s)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating sales: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(sales)))
	return sales, nil
}

func (r *saleRepo) Insert(ctx context.Context, tx pgx.Tx, sale *domain.Sale) error {
	ctx, span := r.tracer.Start(ctx, "SaleRepository.Insert")
	defer span.End()

	span.SetAttributes(
		attribute.String("name", sale.Name),
		attribute.String("price", sale.Price.String()),
	)

	query := `
		INSERT INTO sales (name, price, date)
		VALUES ($1, $2::numeric, $3)
		RETURNING id::text
	`

	if err := tx.QueryRow(ctx, query, sale.Name, sale.Price.String(), sale.Date).Scan(&sale.ID); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error inserting sale", zap.Error(err))

		return fmt.Errorf("error inserting sale: %w", err)
	}

	return nil
}

func (r *saleRepo) DeleteByID(ctx context.Context, tx pgx.Tx, id string) error {
	ctx, span := r.tracer.Start(ctx, "SaleRepository.DeleteByID")
	defer span.End()

	span.SetAttributes(attribute.String("id", id))

	if _, err := uuid.Parse(id); err != nil {
		return ErrSaleNotFound
	}

	commandTag, err := tx.Exec(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error deleting sale by id", zap.String("id", id), zap.Error(err))

		return fmt.Errorf("error deleting sale by id: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrSaleNotFound
	}

	return nil
}
