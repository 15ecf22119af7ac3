package repository

import (
	"context"
	"errors"
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

type ProductRepository interface {
	List(ctx context.Context) ([]domain.Product, error)
	ListTx(ctx context.Context, tx pgx.Tx) ([]domain.Product, error)
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	LockByID(ctx context.Context, tx pgx.Tx, id string) (*domain.Product, error)
	Insert(ctx context.Context, tx pgx.Tx, product *domain.Product) error
	UpdateFields(ctx context.Context, tx pgx.Tx, id string, quantity int64, price decimal.Decimal) (*domain.Product, error)
	DecrementStock(ctx context.Context, tx pgx.Tx, id string, by int64) (*domain.Product, error)
	DeleteByID(ctx context.Context, tx pgx.Tx, id string) error
}

// rowQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const productColumns = `id::text, name, quantity, price::text, created_at, updated_at`

type productRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewProductRepository(pool *pgxpool.Pool, logger *zap.Logger) ProductRepository {
	return &productRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("inventory/product_repo"),
	}
}

func (r *productRepo) List(ctx context.Context) ([]domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.List")
	defer span.End()

	products, err := r.list(ctx, r.pool)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error listing products", zap.Error(err))

		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(products)))
	return products, nil
}

func (r *productRepo) ListTx(ctx context.Context, tx pgx.Tx) ([]domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.ListTx")
	defer span.End()

	products, err := r.list(ctx, tx)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error listing products in transaction", zap.Error(err))

		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(products)))
	return products, nil
}

func (r *productRepo) list(ctx context.Context, q rowQuerier) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY created_at, id`

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error selecting products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}

func (r *productRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.GetByID")
	defer span.End()

	span.SetAttributes(attribute.String("id", id))

	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrProductNotFound
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	p, err := scanProduct(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error get by id", zap.String("id", id), zap.Error(err))

		return nil, err
	}

	return p, nil
}

func (r *productRepo) LockByID(ctx context.Context, tx pgx.Tx, id string) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.LockByID")
	defer span.End()

	span.SetAttributes(attribute.String("id", id))

	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrProductNotFound
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`

	p, err := scanProduct(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error locking product", zap.String("id", id), zap.Error(err))

		return nil, err
	}

	return p, nil
}

func (r *productRepo) Insert(ctx context.Context, tx pgx.Tx, product *domain.Product) error {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.Insert")
	defer span.End()

	span.SetAttributes(
		attribute.String("name", product.Name),
		attribute.Int64("quantity", product.Quantity),
	)

	query := `
		INSERT INTO products (name, name_key, quantity, price)
		VALUES ($1, $2, $3, $4::numeric)
		RETURNING id::text, created_at, updated_at
	`

	err := tx.QueryRow(
		ctx,
		query,
		product.Name,
		domain.NameKey(product.Name),
		product.Quantity,
		product.Price.String(),
	).Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			mylogger.Warn(ctx, r.logger, "Product name already taken", zap.String("name", product.Name))
			return ErrProductExists
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error inserting product", zap.Error(err))

		return fmt.Errorf("error inserting product: %w", err)
	}

	return nil
}

func (r *productRepo) UpdateFields(
	ctx context.Context,
	tx pgx.Tx,
	id string,
	quantity int64,
	price decimal.Decimal,
) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.UpdateFields")
	defer span.End()

	span.SetAttributes(
		attribute.String("id", id),
		attribute.Int64("quantity", quantity),
		attribute.String("price", price.String()),
	)

	query := `
		UPDATE products
		SET quantity = $2, price = $3::numeric, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + productColumns

	p, err := scanProduct(tx.QueryRow(ctx, query, id, quantity, price.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to update product", zap.String("id", id), zap.Error(err))

		return nil, fmt.Errorf("error updating product: %w", err)
	}

	return p, nil
}

func (r *productRepo) DecrementStock(ctx context.Context, tx pgx.Tx, id string, by int64) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.DecrementStock")
	defer span.End()

	span.SetAttributes(
		attribute.String("id", id),
		attribute.Int64("by", by),
	)

	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrProductNotFound
	}

	query := `
		UPDATE products
		SET quantity = quantity - $2, updated_at = NOW()
		WHERE id = $1 AND quantity >= $2
		RETURNING ` + productColumns

	p, err := scanProduct(tx.QueryRow(ctx, query, id, by))
	if err == nil {
		return p, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error decreasing stock", zap.String("id", id), zap.Error(err))

		return nil, fmt.Errorf("error decreasing stock for product %s: %w", id, err)
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error checking product %s: %w", id, err)
	}

	if !exists {
		return nil, ErrProductNotFound
	}

	return nil, ErrInsufficientStock
}

func (r *productRepo) DeleteByID(ctx context.Context, tx pgx.Tx, id string) error {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.DeleteByID")
	defer span.End()

	span.SetAttributes(attribute.String("id", id))

	if _, err := uuid.Parse(id); err != nil {
		return ErrProductNotFound
	}

	commandTag, err := tx.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error deleting product by id",
			zap.String("id", id),
			zap.Error(err),
		)

		return fmt.Errorf("error deleting product by id: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}

	return nil
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var (
		p     domain.Product
		price string
	)

	if err := row.Scan(&p.ID, &p.Name, &p.Quantity, &price, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}

	parsed, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("error parsing price %q: %w", price, err)
	}
	p.Price = parsed

	return &p, nil
}
