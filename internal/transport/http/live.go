package http

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

const keepAliveInterval = 15 * time.Second

// Live streams the product and sale views as server-sent events. Every
// event carries the whole collection, the newest snapshot wins.
func (h *InventoryHandler) Live(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	products, cancelProducts := h.products.Subscribe()
	sales, cancelSales := h.sales.Subscribe()
	shutdown := h.shutdown

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancelProducts()
		defer cancelSales()

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		for {
			var err error

			select {
			case <-shutdown:
				return
			case items, ok := <-products:
				if !ok {
					return
				}
				err = writeEvent(w, "products", items)
			case items, ok := <-sales:
				if !ok {
					return
				}
				err = writeEvent(w, "sales", items)
			case <-ticker.C:
				_, err = w.WriteString(": keep-alive\n\n")
				if err == nil {
					err = w.Flush()
				}
			}

			// the client went away
			if err != nil {
				return
			}
		}
	}))

	return nil
}

func writeEvent(w *bufio.Writer, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}

	return w.Flush()
}
