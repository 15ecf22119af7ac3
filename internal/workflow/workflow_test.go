package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sakashimaa/vani-inventory/internal/domain"
	"github.com/sakashimaa/vani-inventory/internal/repository"
	"github.com/sakashimaa/vani-inventory/internal/workflow"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setup(t *testing.T, answer bool) (*workflow.Workflow, *mockInventory, *mockPrompter) {
	t.Helper()

	inv := &mockInventory{}
	prompter := &mockPrompter{answer: answer}
	return workflow.New(inv, prompter, "USD", zap.NewNop()), inv, prompter
}

func TestAddProduct(t *testing.T) {
	ctx := context.Background()

	t.Run("blank field never reaches the store", func(t *testing.T) {
		wf, inv, _ := setup(t, true)

		res := wf.AddProduct(ctx, domain.Candidate{Name: "Leash", Quantity: "", Price: "1"})

		assert.Equal(t, domain.ResultInvalid, res.Kind)
		assert.Equal(t, "Error", res.Title)
		assert.Equal(t, "Please fill in all fields", res.Message)
		assert.Zero(t, inv.writes)
	})

	t.Run("non numeric quantity", func(t *testing.T) {
		wf, inv, _ := setup(t, true)

		res := wf.AddProduct(ctx, domain.Candidate{Name: "Leash", Quantity: "three", Price: "1"})

		assert.Equal(t, domain.ResultInvalid, res.Kind)
		assert.Contains(t, res.Message, "Quantity")
		assert.Zero(t, inv.writes)
	})

	t.Run("insert then merge", func(t *testing.T) {
		wf, inv, _ := setup(t, true)

		res := wf.AddProduct(ctx, domain.Candidate{Name: "Leash", Quantity: "3", Price: "12.99"})
		require.Equal(t, domain.ResultAdded, res.Kind)
		assert.Equal(t, "Product Added", res.Title)
		assert.Equal(t, "Leash added to inventory.", res.Message)

		res = wf.AddProduct(ctx, domain.Candidate{Name: "leash", Quantity: "2", Price: "12.99"})
		require.Equal(t, domain.ResultUpdated, res.Kind)
		assert.Equal(t, "Product Updated", res.Title)
		assert.Equal(t, "Quantity of leash updated to 5.", res.Message)

		require.Len(t, inv.products, 1)
		assert.Equal(t, int64(5), inv.products[0].Quantity)
		assert.Equal(t, "12.99", inv.products[0].Price.String())
	})

	t.Run("store failure is reported", func(t *testing.T) {
		wf, inv, _ := setup(t, true)
		inv.failWith = errors.New("connection refused")

		res := wf.AddProduct(ctx, domain.Candidate{Name: "Leash", Quantity: "1", Price: "1"})

		assert.Equal(t, domain.ResultFailed, res.Kind)
		assert.Contains(t, res.Message, "connection refused")
	})
}

func TestSellProduct(t *testing.T) {
	ctx := context.Background()

	t.Run("out of stock refuses without prompting", func(t *testing.T) {
		wf, inv, prompter := setup(t, true)
		p := inv.seed("Leash", 0, "12.99")

		res := wf.SellProduct(ctx, p)

		assert.Equal(t, domain.ResultRefused, res.Kind)
		assert.Equal(t, "Insufficient stock", res.Title)
		assert.Equal(t, "This product is out of stock", res.Message)
		assert.Empty(t, prompter.asked)
		assert.Zero(t, inv.writes)
	})

	t.Run("declined prompt writes nothing", func(t *testing.T) {
		wf, inv, prompter := setup(t, false)
		p := inv.seed("Leash", 2, "12.99")

		res := wf.SellProduct(ctx, p)

		assert.Equal(t, domain.ResultCancelled, res.Kind)
		require.Len(t, prompter.asked, 1)
		assert.Equal(t, "Confirm Sale", prompter.asked[0].Title)
		assert.Equal(t, "Sell 1 Leash for $12.99?", prompter.asked[0].Message)
		assert.Zero(t, inv.writes)
	})

	t.Run("confirmed sale decrements and records", func(t *testing.T) {
		wf, inv, _ := setup(t, true)
		p := inv.seed("Leash", 2, "12.99")

		res := wf.SellProduct(ctx, p)

		require.Equal(t, domain.ResultSold, res.Kind)
		assert.Equal(t, int64(1), res.Product.Quantity)
		assert.Equal(t, "Leash", res.Sale.Name)
		assert.Equal(t, "12.99", res.Sale.Price.String())
		assert.Len(t, inv.sales, 1)
	})

	t.Run("stale view raced to zero", func(t *testing.T) {
		wf, inv, _ := setup(t, true)
		p := inv.seed("Leash", 1, "12.99")
		inv.products[0].Quantity = 0

		res := wf.SellProduct(ctx, p)

		assert.Equal(t, domain.ResultRefused, res.Kind)
		assert.Empty(t, inv.sales)
	})

	t.Run("prompt error cancels", func(t *testing.T) {
		wf, inv, prompter := setup(t, true)
		prompter.err = context.Canceled
		p := inv.seed("Leash", 1, "12.99")

		res := wf.SellProduct(ctx, p)

		assert.Equal(t, domain.ResultCancelled, res.Kind)
		assert.Zero(t, inv.writes)
	})
}

func TestDeleteRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("product delete keeps sales", func(t *testing.T) {
		wf, inv, prompter := setup(t, true)
		p := inv.seed("Leash", 1, "12.99")
		require.Equal(t, domain.ResultSold, wf.ExecuteSale(ctx, p.ID).Kind)

		res := wf.DeleteRecord(ctx, domain.KindProduct, p.ID)

		require.Equal(t, domain.ResultDeleted, res.Kind)
		assert.Equal(t, "Are you sure you want to delete this product?", prompter.asked[0].Message)
		assert.Empty(t, inv.products)
		assert.Len(t, inv.sales, 1)
	})

	t.Run("sale delete keeps stock", func(t *testing.T) {
		wf, inv, prompter := setup(t, true)
		p := inv.seed("Leash", 2, "12.99")
		sold := wf.ExecuteSale(ctx, p.ID)
		require.Equal(t, domain.ResultSold, sold.Kind)

		res := wf.DeleteRecord(ctx, domain.KindSale, sold.Sale.ID)

		require.Equal(t, domain.ResultDeleted, res.Kind)
		assert.Equal(t, "Are you sure you want to delete this sale?", prompter.asked[0].Message)
		assert.Empty(t, inv.sales)
		assert.Equal(t, int64(1), inv.products[0].Quantity)
	})

	t.Run("cancel keeps record", func(t *testing.T) {
		wf, inv, _ := setup(t, false)
		p := inv.seed("Leash", 1, "12.99")

		res := wf.DeleteRecord(ctx, domain.KindProduct, p.ID)

		assert.Equal(t, domain.ResultCancelled, res.Kind)
		assert.Len(t, inv.products, 1)
	})

	t.Run("missing record fails", func(t *testing.T) {
		wf, _, _ := setup(t, true)

		res := wf.DeleteRecord(ctx, domain.KindSale, uuid.NewString())

		assert.Equal(t, domain.ResultFailed, res.Kind)
		assert.Contains(t, res.Message, repository.ErrSaleNotFound.Error())
	})

	t.Run("unknown kind", func(t *testing.T) {
		wf, _, prompter := setup(t, true)

		res := wf.DeleteRecord(ctx, domain.RecordKind("order"), "x")

		assert.Equal(t, domain.ResultInvalid, res.Kind)
		assert.Empty(t, prompter.asked)
	})
}

type mockPrompter struct {
	answer bool
	err    error
	asked  []workflow.Prompt
}

func (m *mockPrompter) Confirm(_ context.Context, prompt workflow.Prompt) (bool, error) {
	m.asked = append(m.asked, prompt)
	if m.err != nil {
		return false, m.err
	}
	return m.answer, nil
}

type mockInventory struct {
	products []domain.Product
	sales    []domain.Sale
	writes   int
	failWith error
}

func (m *mockInventory) seed(name string, qty int64, price string) domain.Product {
	p := domain.Product{ID: uuid.NewString(), Name: name, Quantity: qty, Price: decimal.RequireFromString(price)}
	m.products = append(m.products, p)
	return p
}

func (m *mockInventory) Upsert(_ context.Context, c domain.ParsedCandidate) (domain.UpsertOutcome, error) {
	if m.failWith != nil {
		return domain.UpsertOutcome{}, m.failWith
	}
	m.writes++

	for i, p := range m.products {
		if domain.SameName(p.Name, c.Name) {
			m.products[i] = domain.MergeUpsert(p, c.Quantity, c.SubmittedPrice, c.Price)
			return domain.UpsertOutcome{Product: m.products[i]}, nil
		}
	}

	p := domain.Product{ID: uuid.NewString(), Name: c.Name, Quantity: c.Quantity, Price: c.Price}
	m.products = append(m.products, p)
	return domain.UpsertOutcome{Product: p, Created: true}, nil
}

func (m *mockInventory) RecordSale(_ context.Context, id string) (domain.Sale, domain.Product, error) {
	for i, p := range m.products {
		if p.ID != id {
			continue
		}
		if p.Quantity < 1 {
			return domain.Sale{}, domain.Product{}, repository.ErrInsufficientStock
		}

		m.writes++
		m.products[i].Quantity--
		sale := domain.Sale{ID: uuid.NewString(), Name: p.Name, Price: p.Price, Date: time.Now().UTC()}
		m.sales = append(m.sales, sale)
		return sale, m.products[i], nil
	}

	return domain.Sale{}, domain.Product{}, repository.ErrProductNotFound
}

func (m *mockInventory) DeleteProduct(_ context.Context, id string) error {
	for i, p := range m.products {
		if p.ID == id {
			m.writes++
			m.products = append(m.products[:i], m.products[i+1:]...)
			return nil
		}
	}
	return repository.ErrProductNotFound
}

func (m *mockInventory) DeleteSale(_ context.Context, id string) error {
	for i, s := range m.sales {
		if s.ID == id {
			m.writes++
			m.sales = append(m.sales[:i], m.sales[i+1:]...)
			return nil
		}
	}
	return repository.ErrSaleNotFound
}
