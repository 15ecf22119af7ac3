package terminal_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sakashimaa/vani-inventory/internal/domain"
	"github.com/sakashimaa/vani-inventory/internal/gate"
	"github.com/sakashimaa/vani-inventory/internal/projection"
	"github.com/sakashimaa/vani-inventory/internal/terminal"
	"github.com/sakashimaa/vani-inventory/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"go.uber.org/zap"
)

// shop applies writes straight to the live views, as the feed would.
type shop struct {
	live     *projection.Live
	products []domain.Product
	sales    []domain.Sale
}

func (s *shop) publish() {
	s.live.Products.Set(s.products)
	s.live.Sales.Set(s.sales)
}

func (s *shop) Upsert(_ context.Context, c domain.ParsedCandidate) (domain.UpsertOutcome, error) {
	for i, p := range s.products {
		if domain.NameKey(p.Name) == domain.NameKey(c.Name) {
			s.products[i].Quantity += c.Quantity
			s.publish()
			return domain.UpsertOutcome{Product: s.products[i]}, nil
		}
	}

	p := domain.Product{ID: uuid.NewString(), Name: c.Name, Quantity: c.Quantity, Price: c.Price}
	s.products = append(s.products, p)
	s.publish()
	return domain.UpsertOutcome{Product: p, Created: true}, nil
}

func (s *shop) RecordSale(_ context.Context, id string) (domain.Sale, domain.Product, error) {
	for i, p := range s.products {
		if p.ID == id {
			s.products[i].Quantity--
			sale := domain.Sale{ID: uuid.NewString(), Name: p.Name, Price: p.Price, Date: time.Now()}
			s.sales = append([]domain.Sale{sale}, s.sales...)
			s.publish()
			return sale, s.products[i], nil
		}
	}
	return domain.Sale{}, domain.Product{}, assert.AnError
}

func (s *shop) DeleteProduct(_ context.Context, id string) error {
	for i, p := range s.products {
		if p.ID == id {
			s.products = append(s.products[:i], s.products[i+1:]...)
			s.publish()
			return nil
		}
	}
	return assert.AnError
}

func (s *shop) DeleteSale(_ context.Context, id string) error {
	for i, sale := range s.sales {
		if sale.ID == id {
			s.sales = append(s.sales[:i], s.sales[i+1:]...)
			s.publish()
			return nil
		}
	}
	return assert.AnError
}

type memFlag struct{ set bool }

func (f *memFlag) SetAuthenticated(context.Context, time.Duration) error {
	f.set = true
	return nil
}

func (f *memFlag) Authenticated(context.Context) (bool, error) {
	return f.set, nil
}

func run(t *testing.T, input, hash string, flag *memFlag) (string, *shop) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	console := terminal.NewConsole(strings.NewReader(input), &out)
	console.Start(ctx)

	live := projection.NewLive(nil, nil, zap.NewNop())
	inv := &shop{live: live}

	wf := workflow.New(inv, console, "USD", zap.NewNop())
	g := gate.New(gate.NewPasscodeAuthenticator(hash, console.Passcode), flag, time.Hour, zap.NewNop())

	screen := terminal.NewScreen(console, wf, g, live, "USD", zap.NewNop())
	require.NoError(t, screen.Run(ctx))

	return out.String(), inv
}

func hash(t *testing.T, passcode string) string {
	t.Helper()

	h, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestScreenSession(t *testing.T) {
	input := strings.Join([]string{
		"0000",
		"retry",
		"2468",
		"add Leash 3 12.99",
		"add leash 2 12.99",
		"sell 1",
		"y",
		"delete sale 1",
		"n",
		"delete product 1",
		"yes",
		"quit",
	}, "\n") + "\n"

	flag := &memFlag{}
	out, inv := run(t, input, hash(t, "2468"), flag)

	assert.Contains(t, out, "Authentication Failed: "+gate.MsgFailed)
	assert.Contains(t, out, gate.MsgRetry)
	assert.True(t, flag.set)

	assert.Contains(t, out, "Product Added: Leash added to inventory.")
	assert.Contains(t, out, "Product Updated: Quantity of leash updated to 5.")
	assert.Contains(t, out, "Sell 1 Leash for $12.99?")
	assert.Contains(t, out, "Sale Recorded: Sold 1 Leash for $12.99.")
	assert.Contains(t, out, "Cancelled: Nothing was changed.")
	assert.Contains(t, out, "Deleted: The product was deleted.")

	assert.Empty(t, inv.products)
	require.Len(t, inv.sales, 1)
}

func TestScreenRememberedSkipsChallenge(t *testing.T) {
	out, _ := run(t, "inventory\nquit\n", hash(t, "2468"), &memFlag{set: true})

	assert.Contains(t, out, "Welcome back.")
	assert.NotContains(t, out, gate.DefaultPrompt.Message)
	assert.Contains(t, out, "no products")
}

func TestScreenUnavailable(t *testing.T) {
	out, _ := run(t, "quit\n", "", &memFlag{})

	assert.Contains(t, out, "Error: "+gate.MsgUnavailable)
	assert.NotContains(t, out, "Inventory")
}

func TestScreenInputErrors(t *testing.T) {
	input := strings.Join([]string{
		"add Leash",
		"add Leash three 1",
		"sell 4",
		"delete thing 1",
		"dance",
	}, "\n") + "\n"

	out, inv := run(t, input, hash(t, "2468"), &memFlag{set: true})

	assert.Contains(t, out, "Error: "+domain.MsgFillAllFields)
	assert.Contains(t, out, "Quantity")
	assert.Contains(t, out, "No row 4.")
	assert.Contains(t, out, "Usage: delete product <row> | delete sale <row>")
	assert.Contains(t, out, `Unknown command "dance"`)
	assert.Empty(t, inv.products)
}
