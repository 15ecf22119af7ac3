package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakashimaa/vani-inventory/internal/domain"
	"github.com/sakashimaa/vani-inventory/internal/repository"
	"github.com/sakashimaa/vani-inventory/pkg/mylogger"
	"go.uber.org/zap"
)

// Inventory is the store side of the workflow.
type Inventory interface {
	Upsert(ctx context.Context, candidate domain.ParsedCandidate) (domain.UpsertOutcome, error)
	RecordSale(ctx context.Context, productID string) (domain.Sale, domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	DeleteSale(ctx context.Context, id string) error
}

// Prompt is a yes/no question put to the user before a destructive write.
type Prompt struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Confirm string `json:"confirm"`
}

// Prompter asks the user to confirm a Prompt. A false answer cancels.
type Prompter interface {
	Confirm(ctx context.Context, prompt Prompt) (bool, error)
}

type Workflow struct {
	inventory Inventory
	prompter  Prompter
	currency  string
	logger    *zap.Logger
}

func New(inventory Inventory, prompter Prompter, currency string, logger *zap.Logger) *Workflow {
	return &Workflow{
		inventory: inventory,
		prompter:  prompter,
		currency:  currency,
		logger:    logger,
	}
}

// AddProduct validates the form and upserts it. Nothing touches the store
// when validation fails.
func (w *Workflow) AddProduct(ctx context.Context, candidate domain.Candidate) domain.Result {
	parsed, err := candidate.Parse()
	if err != nil {
		return invalid(err)
	}

	outcome, err := w.inventory.Upsert(ctx, parsed)
	if err != nil {
		mylogger.Error(ctx, w.logger, "Failed to save product", zap.String("name", parsed.Name), zap.Error(err))
		return domain.Failed("Error", fmt.Errorf("failed to save product: %w", err))
	}

	product := outcome.Product
	if outcome.Created {
		return domain.Result{
			Kind:    domain.ResultAdded,
			Title:   "Product Added",
			Message: fmt.Sprintf("%s added to inventory.", parsed.Name),
			Product: &product,
		}
	}

	return domain.Result{
		Kind:    domain.ResultUpdated,
		Title:   "Product Updated",
		Message: fmt.Sprintf("Quantity of %s updated to %d.", parsed.Name, product.Quantity),
		Product: &product,
	}
}

// SalePrompt is the confirmation shown before selling one unit of product.
func (w *Workflow) SalePrompt(product domain.Product) Prompt {
	return Prompt{
		Title:   "Confirm Sale",
		Message: fmt.Sprintf("Sell 1 %s for %s?", product.Name, domain.FormatPrice(product.Price, w.currency)),
		Confirm: "Confirm",
	}
}

// DeletePrompt is the confirmation shown before deleting a record of kind.
func DeletePrompt(kind domain.RecordKind) Prompt {
	return Prompt{
		Title:   "Confirm Deletion",
		Message: fmt.Sprintf("Are you sure you want to delete this %s?", kind),
		Confirm: "Delete",
	}
}

// CheckSellable refuses products with no stock before any prompt is shown.
func CheckSellable(product domain.Product) (domain.Result, bool) {
	if product.InStock() {
		return domain.Result{}, true
	}

	return refused(), false
}

// SellProduct sells one unit of the displayed product after confirmation.
func (w *Workflow) SellProduct(ctx context.Context, product domain.Product) domain.Result {
	if res, ok := CheckSellable(product); !ok {
		return res
	}

	if res, ok := w.confirm(ctx, w.SalePrompt(product)); !ok {
		return res
	}

	return w.ExecuteSale(ctx, product.ID)
}

// ExecuteSale records the sale without asking. Callers have confirmed.
func (w *Workflow) ExecuteSale(ctx context.Context, productID string) domain.Result {
	sale, product, err := w.inventory.RecordSale(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientStock) {
			return refused()
		}

		mylogger.Error(ctx, w.logger, "Failed to record sale", zap.String("product_id", productID), zap.Error(err))
		return domain.Failed("Error", fmt.Errorf("failed to record sale: %w", err))
	}

	return domain.Result{
		Kind:    domain.ResultSold,
		Title:   "Sale Recorded",
		Message: fmt.Sprintf("Sold 1 %s for %s.", sale.Name, domain.FormatPrice(sale.Price, w.currency)),
		Product: &product,
		Sale:    &sale,
	}
}

// DeleteRecord deletes one product or one sale after confirmation. Sales
// never follow a product delete and stock never follows a sale delete.
func (w *Workflow) DeleteRecord(ctx context.Context, kind domain.RecordKind, id string) domain.Result {
	if !kind.Valid() {
		return domain.Result{
			Kind:    domain.ResultInvalid,
			Title:   "Error",
			Message: fmt.Sprintf("Unknown record type %q", kind),
		}
	}

	if res, ok := w.confirm(ctx, DeletePrompt(kind)); !ok {
		return res
	}

	return w.ExecuteDelete(ctx, kind, id)
}

// ExecuteDelete deletes without asking. Callers have confirmed.
func (w *Workflow) ExecuteDelete(ctx context.Context, kind domain.RecordKind, id string) domain.Result {
	var err error
	switch kind {
	case domain.KindProduct:
		err = w.inventory.DeleteProduct(ctx, id)
	case domain.KindSale:
		err = w.inventory.DeleteSale(ctx, id)
	default:
		err = fmt.Errorf("unknown record type %q", kind)
	}

	if err != nil {
		mylogger.Error(ctx, w.logger, "Failed to delete record",
			zap.String("kind", string(kind)),
			zap.String("id", id),
			zap.Error(err),
		)

		return domain.Failed("Error", fmt.Errorf("failed to delete %s: %w", kind, err))
	}

	return domain.Result{
		Kind:    domain.ResultDeleted,
		Title:   "Deleted",
		Message: fmt.Sprintf("The %s was deleted.", kind),
	}
}

func (w *Workflow) confirm(ctx context.Context, prompt Prompt) (domain.Result, bool) {
	ok, err := w.prompter.Confirm(ctx, prompt)
	if err != nil {
		mylogger.Warn(ctx, w.logger, "Confirmation failed", zap.String("title", prompt.Title), zap.Error(err))
		return cancelled(), false
	}

	if !ok {
		return cancelled(), false
	}

	return domain.Result{}, true
}

func invalid(err error) domain.Result {
	msg := domain.MsgFillAllFields

	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		msg = ve.Message
	}

	return domain.Result{Kind: domain.ResultInvalid, Title: "Error", Message: msg}
}

func refused() domain.Result {
	return domain.Result{Kind: domain.ResultRefused, Title: "Insufficient stock", Message: domain.MsgOutOfStock}
}

func cancelled() domain.Result {
	return domain.Result{Kind: domain.ResultCancelled, Title: "Cancelled", Message: "Nothing was changed."}
}
