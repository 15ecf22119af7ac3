package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/sakashimaa/vani-inventory/internal/domain"
	"github.com/sakashimaa/vani-inventory/internal/gate"
	"github.com/sakashimaa/vani-inventory/internal/projection"
	"github.com/sakashimaa/vani-inventory/internal/workflow"
	"github.com/sakashimaa/vani-inventory/pkg/mylogger"
	"go.uber.org/zap"
)

const help = `Commands:
  add <name> <quantity> <price>   add stock, merging into a product of the same name
  sell <row>                      sell one unit of the product on that row
  delete product <row>            delete a product
  delete sale <row>               delete a sale
  inventory | sales               show a list again
  quit
`

// Screen is the shell front end: the authentication gate first, then the
// inventory screen fed by the live views.
type Screen struct {
	console  *Console
	workflow *workflow.Workflow
	gate     *gate.Gate
	products *projection.View[domain.Product]
	sales    *projection.View[domain.Sale]
	currency string
	logger   *zap.Logger

	productRows []domain.Product
	saleRows    []domain.Sale
}

func NewScreen(
	console *Console,
	wf *workflow.Workflow,
	g *gate.Gate,
	live *projection.Live,
	currency string,
	logger *zap.Logger,
) *Screen {
	return &Screen{
		console:  console,
		workflow: wf,
		gate:     g,
		products: live.Products,
		sales:    live.Sales,
		currency: currency,
		logger:   logger,
	}
}

// Run returns nil when the user quits, input ends or ctx is done.
func (s *Screen) Run(ctx context.Context) error {
	ok, err := s.unlock(ctx)
	if err != nil {
		if finished(err) {
			return nil
		}
		return err
	}

	if !ok {
		return nil
	}

	return s.inventory(ctx)
}

func (s *Screen) unlock(ctx context.Context) (bool, error) {
	s.console.Printf("Vani Dog\n")

	remembered, err := s.gate.Remembered(ctx)
	if err != nil {
		mylogger.Warn(ctx, s.logger, "Could not read authenticated flag", zap.Error(err))
	}

	if remembered {
		s.console.Printf("Welcome back.\n")
		return true, nil
	}

	s.console.Printf("Checking your identity...\n")
	_, err = s.gate.Authenticate(ctx)

	for err != nil {
		if errors.Is(err, gate.ErrBiometricUnavailable) {
			s.console.Printf("Error: %s\n", gate.MsgUnavailable)
		} else {
			s.console.Printf("Authentication Failed: %s\n%s\n", gate.MsgFailed, gate.MsgRetry)
		}

		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		s.console.Printf("Type 'retry' to try again or 'quit' to exit.\n")

		line, rerr := s.console.ReadLine(ctx)
		if rerr != nil {
			return false, rerr
		}

		switch strings.ToLower(line) {
		case "retry":
			_, err = s.gate.Retry(ctx)
		case "quit", "exit":
			return false, nil
		}
	}

	return true, nil
}

func (s *Screen) inventory(ctx context.Context) error {
	products, cancelProducts := s.products.Subscribe()
	defer cancelProducts()

	sales, cancelSales := s.sales.Subscribe()
	defer cancelSales()

	s.productRows = <-products
	s.saleRows = <-sales

	s.renderProducts()
	s.renderSales()
	s.console.Printf("%s", help)

	var input <-chan string
	for {
		// Row numbers refer to the newest snapshot, apply pending ones
		// before reading the next command.
		s.drain(products, sales)
		s.console.Printf("> ")

		if input == nil {
			input = s.console.Next()
		}

		select {
		case <-ctx.Done():
			return nil
		case items := <-products:
			s.productRows = items
			s.console.Printf("\n")
			s.renderProducts()
		case items := <-sales:
			s.saleRows = items
			s.console.Printf("\n")
			s.renderSales()
		case line, ok := <-input:
			input = nil
			if !ok {
				return nil
			}

			if quit := s.handle(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

func (s *Screen) drain(products <-chan []domain.Product, sales <-chan []domain.Sale) {
	for {
		select {
		case items := <-products:
			s.productRows = items
			s.renderProducts()
		case items := <-sales:
			s.saleRows = items
			s.renderSales()
		default:
			return
		}
	}
}

func (s *Screen) handle(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch strings.ToLower(fields[0]) {
	case "quit", "exit":
		return true
	case "help":
		s.console.Printf("%s", help)
	case "inventory", "products":
		s.renderProducts()
	case "sales":
		s.renderSales()
	case "add":
		s.notice(s.workflow.AddProduct(ctx, candidate(fields[1:])))
	case "sell":
		product, ok := s.productAt(fields[1:])
		if ok {
			s.notice(s.workflow.SellProduct(ctx, product))
		}
	case "delete":
		s.delete(ctx, fields[1:])
	default:
		s.console.Printf("Unknown command %q, type 'help'.\n", fields[0])
	}

	return false
}

func (s *Screen) delete(ctx context.Context, args []string) {
	if len(args) == 0 {
		s.console.Printf("Usage: delete product <row> | delete sale <row>\n")
		return
	}

	switch domain.RecordKind(strings.ToLower(args[0])) {
	case domain.KindProduct:
		if product, ok := s.productAt(args[1:]); ok {
			s.notice(s.workflow.DeleteRecord(ctx, domain.KindProduct, product.ID))
		}
	case domain.KindSale:
		if sale, ok := s.saleAt(args[1:]); ok {
			s.notice(s.workflow.DeleteRecord(ctx, domain.KindSale, sale.ID))
		}
	default:
		s.console.Printf("Usage: delete product <row> | delete sale <row>\n")
	}
}

// candidate reads "<name...> <quantity> <price>". Missing parts stay blank
// so validation reports them.
func candidate(args []string) domain.Candidate {
	if len(args) < 3 {
		return domain.Candidate{Name: strings.Join(args, " ")}
	}

	n := len(args)
	return domain.Candidate{
		Name:     strings.Join(args[:n-2], " "),
		Quantity: args[n-2],
		Price:    args[n-1],
	}
}

func (s *Screen) productAt(args []string) (domain.Product, bool) {
	i, ok := s.row(args, len(s.productRows))
	if !ok {
		return domain.Product{}, false
	}
	return s.productRows[i], true
}

func (s *Screen) saleAt(args []string) (domain.Sale, bool) {
	i, ok := s.row(args, len(s.saleRows))
	if !ok {
		return domain.Sale{}, false
	}
	return s.saleRows[i], true
}

func (s *Screen) row(args []string, size int) (int, bool) {
	if len(args) == 0 {
		s.console.Printf("Which row?\n")
		return 0, false
	}

	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > size {
		s.console.Printf("No row %s.\n", args[0])
		return 0, false
	}

	return n - 1, true
}

func (s *Screen) notice(res domain.Result) {
	s.console.Printf("%s: %s\n", res.Title, res.Message)
}

func (s *Screen) renderProducts() {
	s.console.Printf("Inventory\n")
	if len(s.productRows) == 0 {
		s.console.Printf("  no products\n")
		return
	}

	s.table(func(w io.Writer) {
		write(w, "#\tName\tQuantity\tPrice\n")
		for i, p := range s.productRows {
			write(w, "%d\t%s\t%d\t%s\n", i+1, p.Name, p.Quantity, domain.FormatPrice(p.Price, s.currency))
		}
	})
}

func (s *Screen) renderSales() {
	s.console.Printf("Sales\n")
	if len(s.saleRows) == 0 {
		s.console.Printf("  no sales\n")
		return
	}

	s.table(func(w io.Writer) {
		write(w, "#\tName\tPrice\tDate\n")
		for i, sale := range s.saleRows {
			write(w, "%d\t%s\t%s\t%s\n", i+1, sale.Name, domain.FormatPrice(sale.Price, s.currency), sale.Date.Local().Format("2006-01-02 15:04"))
		}
	})
}

func (s *Screen) table(fill func(w io.Writer)) {
	tw := tabwriter.NewWriter(s.console.out, 0, 0, 2, ' ', 0)
	fill(tw)
	_ = tw.Flush()
}

func write(w io.Writer, format string, args ...any) {
	_, _ = io.WriteString(w, "  ")
	_, _ = fmt.Fprintf(w, format, args...)
}

func finished(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
