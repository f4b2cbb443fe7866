// Package httpapi публикует сервисы заказов, клиентов и товаров по HTTP (chi).
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

// OrderService: движок заказов.
type OrderService interface {
	List(ctx context.Context) ([]domain.Order, error)
	Get(ctx context.Context, id int64) (domain.Order, error)
	Create(ctx context.Context, order *domain.Order) (domain.Order, error)
	Cancel(ctx context.Context, id int64) error
	Ship(ctx context.Context, id int64) error
	Pay(ctx context.Context, id int64) error
}

// CustomerService: CRUD клиентов.
type CustomerService interface {
	List(ctx context.Context) ([]domain.Customer, error)
	Get(ctx context.Context, id int64) (domain.Customer, error)
	Create(ctx context.Context, c domain.Customer) (domain.Customer, error)
	Update(ctx context.Context, id int64, c domain.Customer) error
	Delete(ctx context.Context, id int64) error
}

// ProductService: CRUD товаров.
type ProductService interface {
	List(ctx context.Context) ([]domain.Product, error)
	Get(ctx context.Context, id int64) (domain.Product, error)
	Create(ctx context.Context, p domain.Product) (domain.Product, error)
	Update(ctx context.Context, id int64, p domain.Product) error
	Delete(ctx context.Context, id int64) error
}

// Services перечисляет смонтированные сервисы. nil-сервис не монтируется.
type Services struct {
	Orders    OrderService
	Customers CustomerService
	Products  ProductService
}

// Config задаёт сквозные параметры роутера.
type Config struct {
	Logger        *log.Entry
	SlowThreshold time.Duration
	// Health обслуживает /healthz; nil отключает маршрут.
	Health http.Handler
	// Ready обслуживает /readyz; nil отключает маршрут.
	Ready http.Handler
	// Metrics включает /metrics и HTTP-метрики.
	Metrics bool
}

// NewRouter собирает chi-роутер с маршрутами указанных сервисов.
func NewRouter(services Services, cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = log.WithField("component", "http")
	}
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = 500 * time.Millisecond
	}

	r := chi.NewRouter()
	r.Use(
		chiMiddleware.RequestID,
		chiMiddleware.RealIP,
		requestLogger(cfg.Logger, cfg.SlowThreshold, "/healthz", "/readyz", "/livez", "/metrics"),
		chiMiddleware.Recoverer,
	)
	if cfg.Metrics {
		r.Use(instrument)
		r.Handle("/metrics", promhttp.Handler())
	}

	if cfg.Health != nil {
		r.Handle("/healthz", cfg.Health)
	}
	if cfg.Ready != nil {
		r.Handle("/readyz", cfg.Ready)
	}
	r.Get("/livez", func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, "ok")
	})

	if services.Orders != nil {
		h := &orderHandler{svc: services.Orders, logger: cfg.Logger.WithField("resource", "orders")}
		r.Route("/orders", h.routes)
	}
	if services.Customers != nil {
		h := &customerHandler{svc: services.Customers, logger: cfg.Logger.WithField("resource", "customers")}
		r.Route("/customers", h.routes)
	}
	if services.Products != nil {
		h := &productHandler{svc: services.Products, logger: cfg.Logger.WithField("resource", "products")}
		r.Route("/products", h.routes)
	}

	return r
}
