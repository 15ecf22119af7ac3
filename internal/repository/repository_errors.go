package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var ErrProductNotFound = errors.New("product not found")
var ErrSaleNotFound = errors.New("sale not found")
var ErrInsufficientStock = errors.New("insufficient stock")
var ErrProductExists = errors.New("a product with this name already exists")

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
