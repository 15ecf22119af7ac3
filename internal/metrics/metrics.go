package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sakashimaa/vani-inventory/internal/domain"
	"github.com/sakashimaa/vani-inventory/internal/projection"
)

const namespace = "inventory"

// Metrics is the process registry: runtime collectors, grpc server
// metrics, HTTP traffic and the state of the live inventory.
type Metrics struct {
	Registry *prometheus.Registry

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec

	products   prometheus.Gauge
	stock      prometheus.Gauge
	outOfStock prometheus.Gauge
	sales      prometheus.Gauge
	revenue    prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	grpc_prometheus.EnableHandlingTimeHistogram()
	reg.MustRegister(grpc_prometheus.DefaultServerMetrics)

	m := &Metrics{
		Registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		products: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "products",
			Help:      "Products in the live view.",
		}),
		stock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stock_units",
			Help:      "Units in stock across all products.",
		}),
		outOfStock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "products_out_of_stock",
			Help:      "Products with no units left.",
		}),
		sales: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sales",
			Help:      "Sales in the live view.",
		}),
		revenue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sales_revenue",
			Help:      "Sum of recorded sale prices.",
		}),
	}

	reg.MustRegister(m.requests, m.latency, m.products, m.stock, m.outOfStock, m.sales, m.revenue)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{
		Registry: m.Registry,
	})
}

// Middleware counts requests under their route pattern, so ids in the
// path do not create new series.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}

		route := c.Route().Path
		m.requests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.latency.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())

		return err
	}
}

func (m *Metrics) ObserveProducts(products []domain.Product) {
	var units int64
	empty := 0
	for _, p := range products {
		units += p.Quantity
		if !p.InStock() {
			empty++
		}
	}

	m.products.Set(float64(len(products)))
	m.stock.Set(float64(units))
	m.outOfStock.Set(float64(empty))
}

func (m *Metrics) ObserveSales(sales []domain.Sale) {
	revenue := 0.0
	for _, s := range sales {
		revenue += s.Price.InexactFloat64()
	}

	m.sales.Set(float64(len(sales)))
	m.revenue.Set(revenue)
}

// Track keeps the inventory gauges in step with live until ctx is done.
func (m *Metrics) Track(ctx context.Context, live *projection.Live) {
	products, cancelProducts := live.Products.Subscribe()
	defer cancelProducts()

	sales, cancelSales := live.Sales.Subscribe()
	defer cancelSales()

	for {
		select {
		case <-ctx.Done():
			return
		case items := <-products:
			m.ObserveProducts(items)
		case items := <-sales:
			m.ObserveSales(items)
		}
	}
}
