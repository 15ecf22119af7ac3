package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sakashimaa/vani-inventory/internal/confirm"
	"github.com/sakashimaa/vani-inventory/internal/domain"
	"github.com/sakashimaa/vani-inventory/internal/gate"
	"github.com/sakashimaa/vani-inventory/internal/projection"
	"github.com/sakashimaa/vani-inventory/internal/repository"
	"github.com/sakashimaa/vani-inventory/internal/session"
	transport "github.com/sakashimaa/vani-inventory/internal/transport/http"
	"github.com/sakashimaa/vani-inventory/internal/workflow"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const passcode = "2468"

type env struct {
	app       *fiber.App
	inventory *fakeInventory
	live      *projection.Live
	pending   *fakeConfirmations
	flag      *fakeFlag
	token     string
}

func newEnv(t *testing.T, hash string) *env {
	t.Helper()

	logger := zap.NewNop()
	tokens, err := session.NewTokens("test-secret", time.Minute)
	require.NoError(t, err)

	e := &env{
		inventory: &fakeInventory{},
		live:      projection.NewLive(nil, nil, logger),
		pending:   &fakeConfirmations{items: map[string]confirm.Pending{}},
		flag:      &fakeFlag{},
	}

	shutdown := make(chan struct{})
	t.Cleanup(func() { close(shutdown) })

	wf := workflow.New(e.inventory, nil, "USD", logger)
	handlers := &transport.Handlers{
		Auth: transport.NewAuthHandler(
			func(p string) gate.Authenticator {
				return gate.NewPasscodeAuthenticator(hash, gate.StaticPasscode(p))
			},
			e.flag,
			time.Hour,
			tokens,
			time.Second,
			logger,
		),
		Inventory: transport.NewInventoryHandler(wf, e.live, e.pending, time.Second, shutdown, logger),
	}

	e.app = transport.NewApp(transport.AppConfig{}, handlers, tokens)
	e.token, _, err = tokens.Issue()
	require.NoError(t, err)

	return e
}

func testHash(t *testing.T) string {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func (e *env) do(t *testing.T, method, path string, body any, auth bool) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}

	return resp.StatusCode, out
}

// publish mirrors the fake store into the live views, as the change feed would.
func (e *env) publish() {
	e.live.Products.Set(e.inventory.products)
	e.live.Sales.Set(e.inventory.sales)
}

func resultKind(body map[string]any) string {
	res, _ := body["result"].(map[string]any)
	kind, _ := res["kind"].(string)
	return kind
}

func TestHealth(t *testing.T) {
	e := newEnv(t, testHash(t))

	status, _ := e.do(t, fiber.MethodGet, "/health", nil, false)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestAPIRequiresToken(t *testing.T) {
	e := newEnv(t, testHash(t))

	status, _ := e.do(t, fiber.MethodGet, "/api/products", nil, false)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	e.token = "garbage"
	status, _ = e.do(t, fiber.MethodGet, "/api/products", nil, true)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestChallenge(t *testing.T) {
	t.Run("wrong passcode", func(t *testing.T) {
		e := newEnv(t, testHash(t))

		status, body := e.do(t, fiber.MethodPost, "/auth/challenge", map[string]string{"passcode": "0000"}, false)

		assert.Equal(t, fiber.StatusUnauthorized, status)
		assert.Equal(t, gate.MsgFailed, body["error"])
		assert.Equal(t, string(gate.StateFailed), body["state"])
		assert.False(t, e.flag.set)
	})

	t.Run("right passcode", func(t *testing.T) {
		e := newEnv(t, testHash(t))

		status, body := e.do(t, fiber.MethodPost, "/auth/challenge", map[string]string{"passcode": passcode}, false)

		require.Equal(t, fiber.StatusOK, status)
		assert.NotEmpty(t, body["token"])
		assert.True(t, e.flag.set)

		e.token = body["token"].(string)
		status, _ = e.do(t, fiber.MethodGet, "/api/products", nil, true)
		assert.Equal(t, fiber.StatusOK, status)

		status, body = e.do(t, fiber.MethodGet, "/auth/status", nil, false)
		assert.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, true, body["authenticated"])
	})

	t.Run("no passcode configured", func(t *testing.T) {
		e := newEnv(t, "")

		status, body := e.do(t, fiber.MethodPost, "/auth/challenge", map[string]string{"passcode": passcode}, false)

		assert.Equal(t, fiber.StatusServiceUnavailable, status)
		assert.Equal(t, gate.MsgUnavailable, body["error"])
	})
}

func TestAddProduct(t *testing.T) {
	e := newEnv(t, testHash(t))

	status, body := e.do(t, fiber.MethodPost, "/api/products", domain.Candidate{Name: " ", Quantity: "1", Price: "1"}, true)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, string(domain.ResultInvalid), resultKind(body))
	assert.Zero(t, e.inventory.writes)

	status, body = e.do(t, fiber.MethodPost, "/api/products", domain.Candidate{Name: "Leash", Quantity: "5", Price: "12.99"}, true)
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, string(domain.ResultAdded), resultKind(body))

	status, body = e.do(t, fiber.MethodPost, "/api/products", domain.Candidate{Name: "leash", Quantity: "2", Price: "12.99"}, true)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, string(domain.ResultUpdated), resultKind(body))
	require.Len(t, e.inventory.products, 1)
	assert.Equal(t, int64(7), e.inventory.products[0].Quantity)
}

func TestAddProductAcceptsNumbers(t *testing.T) {
	e := newEnv(t, testHash(t))

	status, body := e.do(t, fiber.MethodPost, "/api/products",
		json.RawMessage(`{"name":"Collar","quantity":3,"price":12.990}`), true)
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, string(domain.ResultAdded), resultKind(body))
	require.Len(t, e.inventory.products, 1)
	assert.Equal(t, int64(3), e.inventory.products[0].Quantity)
	assert.True(t, decimal.RequireFromString("12.99").Equal(e.inventory.products[0].Price))

	status, body = e.do(t, fiber.MethodPost, "/api/products",
		json.RawMessage(`{"name":"Collar","quantity":true,"price":"1"}`), true)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, string(domain.ResultInvalid), resultKind(body))
	assert.Equal(t, 1, e.inventory.writes)
}

func TestSellFlow(t *testing.T) {
	e := newEnv(t, testHash(t))
	empty := e.inventory.seed("Bowl", 0, "7.5")
	leash := e.inventory.seed("Leash", 1, "12.99")
	e.publish()

	status, body := e.do(t, fiber.MethodPost, "/api/products/"+empty.ID+"/sell", nil, true)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, string(domain.ResultRefused), resultKind(body))
	assert.Zero(t, e.pending.requests)

	status, _ = e.do(t, fiber.MethodPost, "/api/products/"+uuid.NewString()+"/sell", nil, true)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = e.do(t, fiber.MethodPost, "/api/products/"+leash.ID+"/sell", nil, true)
	require.Equal(t, fiber.StatusAccepted, status)
	assert.Equal(t, "Confirm Sale", body["title"])
	assert.Equal(t, "Sell 1 Leash for $12.99?", body["message"])
	assert.Zero(t, e.inventory.writes)

	id := body["confirmation_id"].(string)

	status, body = e.do(t, fiber.MethodPost, "/api/confirmations/"+id, nil, true)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, string(domain.ResultSold), resultKind(body))
	assert.Len(t, e.inventory.sales, 1)
	assert.Equal(t, int64(0), e.inventory.products[1].Quantity)

	status, _ = e.do(t, fiber.MethodPost, "/api/confirmations/"+id, nil, true)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Len(t, e.inventory.sales, 1)
}

func TestDeleteFlow(t *testing.T) {
	e := newEnv(t, testHash(t))
	p := e.inventory.seed("Leash", 2, "12.99")
	_, _, err := e.inventory.RecordSale(context.Background(), p.ID)
	require.NoError(t, err)
	e.publish()

	status, _ := e.do(t, fiber.MethodDelete, "/api/sales/"+uuid.NewString(), nil, true)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body := e.do(t, fiber.MethodDelete, "/api/products/"+p.ID, nil, true)
	require.Equal(t, fiber.StatusAccepted, status)
	assert.Equal(t, "Are you sure you want to delete this product?", body["message"])
	id := body["confirmation_id"].(string)

	status, body = e.do(t, fiber.MethodDelete, "/api/confirmations/"+id, nil, true)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, string(domain.ResultCancelled), resultKind(body))

	status, _ = e.do(t, fiber.MethodPost, "/api/confirmations/"+id, nil, true)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Len(t, e.inventory.products, 1)

	status, body = e.do(t, fiber.MethodDelete, "/api/products/"+p.ID, nil, true)
	require.Equal(t, fiber.StatusAccepted, status)

	status, body = e.do(t, fiber.MethodPost, "/api/confirmations/"+body["confirmation_id"].(string), nil, true)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, string(domain.ResultDeleted), resultKind(body))
	assert.Empty(t, e.inventory.products)
	assert.Len(t, e.inventory.sales, 1)
}

func TestListsServeViews(t *testing.T) {
	e := newEnv(t, testHash(t))
	e.inventory.seed("Leash", 2, "12.99")
	e.publish()

	status, body := e.do(t, fiber.MethodGet, "/api/products", nil, true)
	require.Equal(t, fiber.StatusOK, status)
	products := body["products"].([]any)
	require.Len(t, products, 1)
	assert.Equal(t, "Leash", products[0].(map[string]any)["name"])

	status, body = e.do(t, fiber.MethodGet, "/api/sales", nil, true)
	require.Equal(t, fiber.StatusOK, status)
	assert.Empty(t, body["sales"])
}

type fakeFlag struct {
	mu  sync.Mutex
	set bool
}

func (f *fakeFlag) SetAuthenticated(context.Context, time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set = true
	return nil
}

func (f *fakeFlag) Authenticated(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set, nil
}

type fakeConfirmations struct {
	mu       sync.Mutex
	items    map[string]confirm.Pending
	requests int
}

func (f *fakeConfirmations) Request(_ context.Context, p confirm.Pending) (confirm.Pending, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests++
	p.ID = uuid.NewString()
	f.items[p.ID] = p
	return p, nil
}

func (f *fakeConfirmations) Resolve(_ context.Context, id string) (confirm.Pending, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.items[id]
	if !ok {
		return confirm.Pending{}, confirm.ErrConfirmationNotFound
	}
	delete(f.items, id)
	return p, nil
}

func (f *fakeConfirmations) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.items[id]; !ok {
		return confirm.ErrConfirmationNotFound
	}
	delete(f.items, id)
	return nil
}

type fakeInventory struct {
	products []domain.Product
	sales    []domain.Sale
	writes   int
}

func (f *fakeInventory) seed(name string, qty int64, price string) domain.Product {
	p := domain.Product{ID: uuid.NewString(), Name: name, Quantity: qty, Price: decimal.RequireFromString(price)}
	f.products = append(f.products, p)
	return p
}

func (f *fakeInventory) Upsert(_ context.Context, c domain.ParsedCandidate) (domain.UpsertOutcome, error) {
	f.writes++

	for i, p := range f.products {
		if domain.SameName(p.Name, c.Name) {
			f.products[i] = domain.MergeUpsert(p, c.Quantity, c.SubmittedPrice, c.Price)
			return domain.UpsertOutcome{Product: f.products[i]}, nil
		}
	}

	p := domain.Product{ID: uuid.NewString(), Name: c.Name, Quantity: c.Quantity, Price: c.Price}
	f.products = append(f.products, p)
	return domain.UpsertOutcome{Product: p, Created: true}, nil
}

func (f *fakeInventory) RecordSale(_ context.Context, id string) (domain.Sale, domain.Product, error) {
	for i, p := range f.products {
		if p.ID != id {
			continue
		}
		if p.Quantity < 1 {
			return domain.Sale{}, domain.Product{}, repository.ErrInsufficientStock
		}

		f.writes++
		f.products[i].Quantity--
		sale := domain.Sale{ID: uuid.NewString(), Name: p.Name, Price: p.Price, Date: time.Now().UTC()}
		f.sales = append(f.sales, sale)
		return sale, f.products[i], nil
	}

	return domain.Sale{}, domain.Product{}, repository.ErrProductNotFound
}

func (f *fakeInventory) DeleteProduct(_ context.Context, id string) error {
	for i, p := range f.products {
		if p.ID == id {
			f.writes++
			f.products = append(f.products[:i], f.products[i+1:]...)
			return nil
		}
	}
	return repository.ErrProductNotFound
}

func (f *fakeInventory) DeleteSale(_ context.Context, id string) error {
	for i, s := range f.sales {
		if s.ID == id {
			f.writes++
			f.sales = append(f.sales[:i], f.sales[i+1:]...)
			return nil
		}
	}
	return repository.ErrSaleNotFound
}
