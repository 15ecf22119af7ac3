package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventProductAdded   = "ProductAdded"
	EventProductUpdated = "ProductUpdated"
	EventProductDeleted = "ProductDeleted"
	EventSaleRecorded   = "SaleRecorded"
	EventSaleDeleted    = "SaleDeleted"
)

// Collection names the two document collections.
type Collection string

const (
	CollectionProducts Collection = "products"
	CollectionSales    Collection = "sales"
)

// EventCollections lists the collections an event changes.
func EventCollections(event string) []Collection {
	switch event {
	case EventProductAdded, EventProductUpdated, EventProductDeleted:
		return []Collection{CollectionProducts}
	case EventSaleRecorded:
		return []Collection{CollectionProducts, CollectionSales}
	case EventSaleDeleted:
		return []Collection{CollectionSales}
	default:
		return nil
	}
}

type ProductChangedEvent struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type ProductDeletedEvent struct {
	ProductID string `json:"product_id"`
}

type SaleRecordedEvent struct {
	SaleID            string          `json:"sale_id"`
	ProductID         string          `json:"product_id"`
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	Date              time.Time       `json:"date"`
	RemainingQuantity int64           `json:"remaining_quantity"`
}

type SaleDeletedEvent struct {
	SaleID string `json:"sale_id"`
}
