package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a stock line. Name is the natural key, compared case-folded.
type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// InStock reports whether at least one unit can be sold.
func (p Product) InStock() bool {
	return p.Quantity > 0
}

// SameName compares two product names case-insensitively.
func SameName(a, b string) bool {
	return NameKey(a) == NameKey(b)
}

// FindByName returns the first product whose case-folded name equals the
// case-folded name, scanning products in order.
func FindByName(products []Product, name string) (Product, bool) {
	for _, p := range products {
		if SameName(p.Name, name) {
			return p, true
		}
	}

	return Product{}, false
}

// MergeUpsert applies an upsert of qty units at submittedPrice onto an existing
// product. Quantities accumulate. The price is replaced only when the
// submitted text differs from the stored price's text form.
func MergeUpsert(existing Product, qty int64, submittedPrice string, price decimal.Decimal) Product {
	merged := existing
	merged.Quantity = existing.Quantity + qty

	if PriceChanged(submittedPrice, existing.Price) {
		merged.Price = price
	}

	return merged
}
