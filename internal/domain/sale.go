package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Sale is a historical record. Name and Price are copies taken when the
// sale happened, there is no reference back to the product.
type Sale struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Date  time.Time       `json:"date"`
}

// SortSalesNewestFirst orders sales by date, newest first. Equal dates keep
// their relative order.
func SortSalesNewestFirst(sales []Sale) {
	sort.SliceStable(sales, func(i, j int) bool {
		return sales[i].Date.After(sales[j].Date)
	})
}
