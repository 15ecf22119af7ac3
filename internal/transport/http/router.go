package http

import (
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/sakashimaa/vani-inventory/internal/metrics"
	"github.com/sakashimaa/vani-inventory/internal/session"
)

type Handlers struct {
	Auth      *AuthHandler
	Inventory *InventoryHandler
}

type AppConfig struct {
	// RateLimit is the number of requests per RateWindow and client IP.
	// Zero turns the limiter off.
	RateLimit  int
	RateWindow time.Duration

	// Metrics, when set, counts every request.
	Metrics *metrics.Metrics
}

func NewApp(cfg AppConfig, h *Handlers, tokens *session.Tokens) *fiber.App {
	app := fiber.New(fiber.Config{AppName: "vani-inventory"})

	app.Use(otelfiber.Middleware())

	if cfg.Metrics != nil {
		app.Use(cfg.Metrics.Middleware())
	}

	if cfg.RateLimit > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        cfg.RateLimit,
			Expiration: cfg.RateWindow,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "Too many requests. Try again later.",
				})
			},
		}))
	}

	RegisterRoutes(app, h, tokens)
	return app
}

func RegisterRoutes(app *fiber.App, h *Handlers, tokens *session.Tokens) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("Inventory service is alive!")
	})

	authGroup := app.Group("/auth")
	authGroup.Post("/challenge", h.Auth.Challenge)
	authGroup.Get("/status", h.Auth.Status)

	api := app.Group("/api", NewAuthMiddleware(tokens))
	api.Get("/live", h.Inventory.Live)

	product := api.Group("/products")
	product.Get("", h.Inventory.ListProducts)
	product.Post("", h.Inventory.AddProduct)
	product.Post("/:id/sell", h.Inventory.SellProduct)
	product.Delete("/:id", h.Inventory.DeleteProduct)

	sale := api.Group("/sales")
	sale.Get("", h.Inventory.ListSales)
	sale.Delete("/:id", h.Inventory.DeleteSale)

	confirmation := api.Group("/confirmations")
	confirmation.Post("/:id", h.Inventory.Confirm)
	confirmation.Delete("/:id", h.Inventory.Cancel)
}
