package http

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/vani-inventory/internal/confirm"
	"github.com/sakashimaa/vani-inventory/internal/domain"
	"github.com/sakashimaa/vani-inventory/internal/projection"
	"github.com/sakashimaa/vani-inventory/internal/workflow"
	"github.com/sakashimaa/vani-inventory/pkg/mylogger"
	"github.com/sakashimaa/vani-inventory/pkg/utils"
	"go.uber.org/zap"
)

// Confirmations holds actions waiting for the client's yes.
type Confirmations interface {
	Request(ctx context.Context, p confirm.Pending) (confirm.Pending, error)
	Resolve(ctx context.Context, id string) (confirm.Pending, error)
	Cancel(ctx context.Context, id string) error
}

type InventoryHandler struct {
	workflow      *workflow.Workflow
	products      *projection.View[domain.Product]
	sales         *projection.View[domain.Sale]
	confirmations Confirmations
	validate      *validator.Validate
	timeout       time.Duration
	shutdown      <-chan struct{}
	logger        *zap.Logger
}

// NewInventoryHandler serves reads from the live views and routes every
// destructive call through a pending confirmation. Live streams end when
// shutdown is closed.
func NewInventoryHandler(
	wf *workflow.Workflow,
	live *projection.Live,
	confirmations Confirmations,
	timeout time.Duration,
	shutdown <-chan struct{},
	logger *zap.Logger,
) *InventoryHandler {
	return &InventoryHandler{
		workflow:      wf,
		products:      live.Products,
		sales:         live.Sales,
		confirmations: confirmations,
		validate:      utils.NewValidator(),
		timeout:       timeout,
		shutdown:      shutdown,
		logger:        logger,
	}
}

const msgBadProductBody = "Send name as text, quantity and price as text or numbers"

// productInput is the add-product body. Quantity and price may be JSON
// strings or numbers, numbers keep their literal text.
type productInput struct {
	Name     string      `json:"name" form:"name" validate:"notblank,max=200"`
	Quantity literalText `json:"quantity" form:"quantity" validate:"notblank"`
	Price    literalText `json:"price" form:"price" validate:"notblank"`
}

func (in productInput) candidate() domain.Candidate {
	return domain.Candidate{
		Name:     in.Name,
		Quantity: string(in.Quantity),
		Price:    string(in.Price),
	}
}

// literalText decodes a JSON string, or a JSON number as written: 12.990
// stays "12.990".
type literalText string

func (t *literalText) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = literalText(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("expected a string or a number")
	}
	*t = literalText(n.String())
	return nil
}

func (h *InventoryHandler) ListProducts(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"products": h.products.Items()})
}

func (h *InventoryHandler) ListSales(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"sales": h.sales.Items()})
}

func (h *InventoryHandler) AddProduct(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	input := new(productInput)
	if err := c.BodyParser(input); err != nil {
		mylogger.Warn(ctx, h.logger, "failed to parse body in add product", zap.Error(err))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"result": domain.Result{Kind: domain.ResultInvalid, Title: "Error", Message: msgBadProductBody},
		})
	}

	if err := h.validate.Struct(input); err != nil {
		mylogger.Warn(ctx, h.logger, "add product input rejected", zap.Error(err))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"result": domain.Result{Kind: domain.ResultInvalid, Title: "Error", Message: domain.MsgFillAllFields},
			"fields": utils.FormatValidationError(err),
		})
	}

	res := h.workflow.AddProduct(ctx, input.candidate())

	mylogger.Info(ctx, h.logger, "add product", zap.String("kind", string(res.Kind)), zap.String("name", input.Name))

	return c.Status(resultStatus(res)).JSON(fiber.Map{"result": res})
}

// SellProduct refuses out-of-stock products at once. Otherwise the sale
// waits for POST /api/confirmations/:id.
func (h *InventoryHandler) SellProduct(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id := c.Params("id")

	product, ok := findProduct(h.products.Items(), id)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "product not found"})
	}

	if res, ok := workflow.CheckSellable(product); !ok {
		mylogger.Info(ctx, h.logger, "sale refused, out of stock", zap.String("product_id", id))
		return c.Status(resultStatus(res)).JSON(fiber.Map{"result": res})
	}

	return h.requestConfirmation(ctx, c, confirm.Pending{
		Action:   confirm.ActionSell,
		Kind:     domain.KindProduct,
		TargetID: product.ID,
		Prompt:   h.workflow.SalePrompt(product),
	})
}

func (h *InventoryHandler) DeleteProduct(c *fiber.Ctx) error {
	return h.deleteRecord(c, domain.KindProduct)
}

func (h *InventoryHandler) DeleteSale(c *fiber.Ctx) error {
	return h.deleteRecord(c, domain.KindSale)
}

func (h *InventoryHandler) deleteRecord(c *fiber.Ctx, kind domain.RecordKind) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id := c.Params("id")

	var found bool
	switch kind {
	case domain.KindProduct:
		_, found = findProduct(h.products.Items(), id)
	case domain.KindSale:
		_, found = findSale(h.sales.Items(), id)
	}

	if !found {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": string(kind) + " not found"})
	}

	return h.requestConfirmation(ctx, c, confirm.Pending{
		Action:   confirm.ActionDelete,
		Kind:     kind,
		TargetID: id,
		Prompt:   workflow.DeletePrompt(kind),
	})
}

func (h *InventoryHandler) requestConfirmation(ctx context.Context, c *fiber.Ctx, p confirm.Pending) error {
	pending, err := h.confirmations.Request(ctx, p)
	if err != nil {
		mylogger.Error(ctx, h.logger, "confirmation request failed", zap.Error(err))

		return c.Status(mapErrorStatus(err)).JSON(fiber.Map{
			"result": domain.Failed("Error", err),
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"confirmation_id": pending.ID,
		"title":           pending.Prompt.Title,
		"message":         pending.Prompt.Message,
		"confirm":         pending.Prompt.Confirm,
	})
}

func (h *InventoryHandler) Confirm(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	pending, err := h.confirmations.Resolve(ctx, c.Params("id"))
	if err != nil {
		mylogger.Warn(ctx, h.logger, "confirmation not resolved", zap.String("id", c.Params("id")), zap.Error(err))
		return c.Status(mapErrorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}

	var res domain.Result
	switch pending.Action {
	case confirm.ActionSell:
		res = h.workflow.ExecuteSale(ctx, pending.TargetID)
	case confirm.ActionDelete:
		res = h.workflow.ExecuteDelete(ctx, pending.Kind, pending.TargetID)
	default:
		res = domain.Result{Kind: domain.ResultInvalid, Title: "Error", Message: "Unknown action"}
	}

	mylogger.Info(
		ctx,
		h.logger,
		"confirmation executed",
		zap.String("action", string(pending.Action)),
		zap.String("target_id", pending.TargetID),
		zap.String("kind", string(res.Kind)),
	)

	return c.Status(resultStatus(res)).JSON(fiber.Map{"result": res})
}

func (h *InventoryHandler) Cancel(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	if err := h.confirmations.Cancel(ctx, c.Params("id")); err != nil {
		return c.Status(mapErrorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"result": domain.Result{Kind: domain.ResultCancelled, Title: "Cancelled", Message: "Nothing was changed."},
	})
}

func findProduct(products []domain.Product, id string) (domain.Product, bool) {
	for _, p := range products {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Product{}, false
}

func findSale(sales []domain.Sale, id string) (domain.Sale, bool) {
	for _, s := range sales {
		if s.ID == id {
			return s, true
		}
	}
	return domain.Sale{}, false
}
