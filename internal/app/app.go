// Package app собирает процесс магазина: хранилище, шину, сервисы, консьюмеры и HTTP.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/shopflow/internal/api/httpapi"
	"github.com/vladislavdragonenkov/shopflow/internal/domain"
	"github.com/vladislavdragonenkov/shopflow/internal/gateway"
	"github.com/vladislavdragonenkov/shopflow/internal/health"
	"github.com/vladislavdragonenkov/shopflow/internal/messaging"
	"github.com/vladislavdragonenkov/shopflow/internal/messaging/dedup"
	"github.com/vladislavdragonenkov/shopflow/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shopflow/internal/messaging/memory"
	"github.com/vladislavdragonenkov/shopflow/internal/messaging/rabbitmq"
	"github.com/vladislavdragonenkov/shopflow/internal/metrics"
	"github.com/vladislavdragonenkov/shopflow/internal/service/accounts"
	"github.com/vladislavdragonenkov/shopflow/internal/service/customers"
	"github.com/vladislavdragonenkov/shopflow/internal/service/inventory"
	"github.com/vladislavdragonenkov/shopflow/internal/service/orders"
	"github.com/vladislavdragonenkov/shopflow/internal/service/outbox"
	"github.com/vladislavdragonenkov/shopflow/internal/service/products"
	memstore "github.com/vladislavdragonenkov/shopflow/internal/storage/memory"
	"github.com/vladislavdragonenkov/shopflow/internal/storage/postgres"
	"github.com/vladislavdragonenkov/shopflow/internal/version"
)

// App: собранный процесс. Создаётся New, запускается Run, освобождается Close.
type App struct {
	cfg    Config
	logger *log.Entry

	store *postgres.Store
	bus   messaging.Bus
	redis *redis.Client

	orders    *orders.Service
	products  *products.Service
	customers *customers.Service
	inventory *inventory.Consumer
	accounts  *accounts.Consumer
	relay     *outbox.Worker

	consumerMetrics *metrics.ConsumerMetrics
	middleware      []messaging.QueueMiddleware
	health          *health.Handler
	handler         http.Handler
}

// repositories: хранилища выбранного драйвера.
type repositories struct {
	orders       domain.OrderRepository
	products     domain.ProductRepository
	customers    domain.CustomerRepository
	outbox       domain.OutboxRepository
	productsFor  inventory.RepositoryProvider
	customersFor accounts.RepositoryProvider
}

// New подключает инфраструктуру и собирает сервисы из cfg.
// При ошибке уже открытые ресурсы закрываются.
func New(ctx context.Context, cfg Config) (a *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a = &App{
		cfg:    cfg,
		logger: log.WithField("component", "app"),
		health: health.NewHandler(version.Version(), cfg.Services...),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	repos, err := a.openStorage(ctx)
	if err != nil {
		return nil, err
	}
	if a.bus, err = a.openBus(); err != nil {
		return nil, err
	}
	if err = a.buildConsumerMiddleware(); err != nil {
		return nil, err
	}
	a.buildServices(repos)

	a.handler = httpapi.NewRouter(a.httpServices(), httpapi.Config{
		Logger:        log.WithField("component", "http"),
		SlowThreshold: cfg.HTTP.SlowThreshold,
		Health:        a.health,
		Ready:         a.health.ReadinessHandler(),
		Metrics:       true,
	})

	if cfg.Bus.Driver == BusMemory && cfg.Has(ServiceOrders) && !(cfg.Has(ServiceInventory) && cfg.Has(ServiceAccounts)) {
		a.logger.Warn("memory bus: events for services outside this process are dropped")
	}
	return a, nil
}

func (a *App) openStorage(ctx context.Context) (repositories, error) {
	if a.cfg.Storage.Driver == StoragePostgres {
		store, err := postgres.Open(ctx, a.cfg.Storage.Postgres.DSN)
		if err != nil {
			return repositories{}, fmt.Errorf("open postgres: %w", err)
		}
		a.store = store
		if a.cfg.Storage.Postgres.Migrate {
			if err := store.EnsureSchema(ctx); err != nil {
				return repositories{}, fmt.Errorf("apply migrations: %w", err)
			}
		}
		a.health.RegisterChecker("postgres", health.CheckFunc{Name: "postgres", Fn: store.Ping})
		a.logger.Info("postgres storage initialized")

		return repositories{
			orders:       postgres.NewOrderRepository(store),
			products:     postgres.NewProductRepository(store),
			customers:    postgres.NewCustomerRepository(store),
			outbox:       postgres.NewOutboxRepository(store),
			productsFor:  productSessions(store),
			customersFor: customerSessions(store),
		}, nil
	}

	productRepo := memstore.NewProductRepository()
	customerRepo := memstore.NewCustomerRepository()
	a.logger.Info("memory storage initialized")
	return repositories{
		orders:       memstore.NewOrderRepository(),
		products:     productRepo,
		customers:    customerRepo,
		outbox:       memstore.NewOutboxRepository(),
		productsFor:  inventory.Shared(productRepo),
		customersFor: accounts.Shared(customerRepo),
	}, nil
}

// productSessions выдаёт каждому сообщению собственное соединение из пула.
func productSessions(store *postgres.Store) inventory.RepositoryProvider {
	return func(ctx context.Context) (domain.ProductRepository, func(), error) {
		session, err := store.Session(ctx)
		if err != nil {
			return nil, nil, err
		}
		return session.Products(), func() { _ = session.Close() }, nil
	}
}

func customerSessions(store *postgres.Store) accounts.RepositoryProvider {
	return func(ctx context.Context) (domain.CustomerRepository, func(), error) {
		session, err := store.Session(ctx)
		if err != nil {
			return nil, nil, err
		}
		return session.Customers(), func() { _ = session.Close() }, nil
	}
}

func (a *App) openBus() (messaging.Bus, error) {
	logger := log.WithField("component", "bus")
	switch a.cfg.Bus.Driver {
	case BusRabbitMQ:
		bus, err := rabbitmq.Dial(a.cfg.Bus.URL, rabbitmq.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		a.health.RegisterChecker("rabbitmq", health.CheckFunc{
			Name: "rabbitmq",
			Fn:   func(context.Context) error { return bus.Ping() },
		})
		a.logger.WithField("url", a.cfg.Bus.URL).Info("rabbitmq bus connected")
		return bus, nil
	case BusKafka:
		bus, err := kafka.NewBus(kafka.Config{Brokers: a.cfg.Bus.Brokers, TopicPrefix: a.cfg.Bus.TopicPrefix})
		if err != nil {
			return nil, fmt.Errorf("create kafka bus: %w", err)
		}
		a.logger.WithField("brokers", a.cfg.Bus.Brokers).Info("kafka bus initialized")
		return bus, nil
	default:
		return memory.NewBus(memory.WithLogger(logger)), nil
	}
}

// buildConsumerMiddleware собирает middleware очередей: метрики снаружи, дедупликация внутри.
func (a *App) buildConsumerMiddleware() error {
	a.consumerMetrics = metrics.NewConsumerMetrics()
	a.middleware = []messaging.QueueMiddleware{a.consumerMetrics.Middleware}

	var store dedup.Store
	switch a.cfg.Consumers.Dedup {
	case DedupMemory:
		store = dedup.NewMemoryStore(a.cfg.Consumers.DedupTTL)
	case DedupRedis:
		a.redis = redis.NewClient(&redis.Options{Addr: a.cfg.Consumers.RedisAddr})
		redisStore := dedup.NewRedisStore(a.redis, a.cfg.Consumers.DedupTTL)
		a.health.RegisterChecker("redis", health.CheckFunc{Name: "redis", Fn: redisStore.Ping})
		store = redisStore
	default:
		return nil
	}

	logger := log.WithField("component", "dedup")
	a.middleware = append(a.middleware, func(queue string) messaging.Middleware {
		return dedup.Middleware(store, queue, logger)
	})
	a.logger.WithField("store", a.cfg.Consumers.Dedup).Info("consumer de-duplication enabled")
	return nil
}

func (a *App) buildServices(repos repositories) {
	cfg := a.cfg

	if cfg.Has(ServiceProducts) {
		a.products = products.NewService(repos.products, log.WithField("component", "products"))
	}
	if cfg.Has(ServiceCustomers) {
		a.customers = customers.NewService(repos.customers, log.WithField("component", "customers"))
	}
	if cfg.Has(ServiceInventory) {
		a.inventory = inventory.NewConsumer(repos.productsFor,
			inventory.WithLogger(log.WithField("component", "inventory-consumer")),
			inventory.WithMetrics(a.consumerMetrics),
		)
	}
	if cfg.Has(ServiceAccounts) {
		a.accounts = accounts.NewConsumer(repos.customersFor,
			accounts.WithLogger(log.WithField("component", "accounts-consumer")),
			accounts.WithMetrics(a.consumerMetrics),
		)
	}

	if !cfg.Has(ServiceOrders) {
		return
	}

	var publisher messaging.Publisher = a.bus
	if cfg.Orders.PublishMode == PublishOutbox {
		publisher = outbox.NewPublisher(repos.outbox)
		a.relay = outbox.NewWorker(repos.outbox, a.bus,
			outbox.WithLogger(log.WithField("component", "outbox-worker")),
			outbox.WithPollInterval(cfg.Outbox.PollInterval),
			outbox.WithBatchSize(cfg.Outbox.BatchSize),
			outbox.WithMaxAttempts(cfg.Outbox.MaxAttempts),
		)
	}

	gwClient := &http.Client{Timeout: cfg.Gateways.Timeout}
	productGateway := gateway.NewProductGateway(cfg.ProductURL()+"/products",
		gateway.WithHTTPClient(gwClient), gateway.WithLogger(log.WithField("component", "product-gateway")))
	customerGateway := gateway.NewCustomerGateway(cfg.CustomerURL()+"/customers",
		gateway.WithHTTPClient(gwClient), gateway.WithLogger(log.WithField("component", "customer-gateway")))

	a.orders = orders.NewService(repos.orders, productGateway, customerGateway, publisher,
		orders.WithLogger(log.WithField("component", "orders")),
		orders.WithMetrics(metrics.NewOrderMetrics()),
		orders.WithCreateOrdering(orders.CreateOrdering(cfg.Orders.CreateOrdering)),
	)
}

// httpServices отдаёт роутеру только поднятые сервисы; nil-интерфейс не монтируется.
func (a *App) httpServices() httpapi.Services {
	var s httpapi.Services
	if a.orders != nil {
		s.Orders = a.orders
	}
	if a.customers != nil {
		s.Customers = a.customers
	}
	if a.products != nil {
		s.Products = a.products
	}
	return s
}

// Handler возвращает HTTP-обработчик процесса.
func (a *App) Handler() http.Handler { return a.handler }

// Bus возвращает шину процесса.
func (a *App) Bus() messaging.Bus { return a.bus }

// Seed заполняет пустые каталоги товаров и клиентов этого процесса.
func (a *App) Seed(ctx context.Context) error {
	if a.products != nil {
		n, err := a.products.Seed(ctx)
		if err != nil {
			return fmt.Errorf("seed products: %w", err)
		}
		a.logger.WithField("count", n).Info("products seeded")
	}
	if a.customers != nil {
		n, err := a.customers.Seed(ctx)
		if err != nil {
			return fmt.Errorf("seed customers: %w", err)
		}
		a.logger.WithField("count", n).Info("customers seeded")
	}
	return nil
}

// Subscribe запускает консьюмеры процесса; воркеры живут до отмены ctx.
func (a *App) Subscribe(ctx context.Context) error {
	if a.inventory != nil {
		if err := a.inventory.Subscribe(ctx, a.bus, a.middleware...); err != nil {
			return err
		}
	}
	if a.accounts != nil {
		if err := a.accounts.Subscribe(ctx, a.bus, a.middleware...); err != nil {
			return err
		}
	}
	return nil
}

// Run поднимает консьюмеры, HTTP, ops- и gRPC-серверы и outbox-воркер.
// Возвращает nil после штатной остановки по ctx.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Seed {
		if err := a.Seed(ctx); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if err := a.Subscribe(gctx); err != nil {
		return err
	}

	timeout := a.cfg.HTTP.ShutdownTimeout
	api := &http.Server{Addr: a.cfg.HTTP.Addr, Handler: a.handler, ReadHeaderTimeout: 5 * time.Second}
	g.Go(func() error {
		a.logger.WithField("addr", a.cfg.HTTP.Addr).Info("http api listening")
		return serveHTTP(gctx, api, timeout, a.logger)
	})

	if a.cfg.Ops.Addr != "" && a.cfg.Ops.Addr != a.cfg.HTTP.Addr {
		ops := &http.Server{Addr: a.cfg.Ops.Addr, Handler: opsMux(a.health), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			a.logger.Infof("метрики доступны по адресу %s/metrics", a.cfg.Ops.Addr)
			return serveHTTP(gctx, ops, timeout, a.logger)
		})
	}

	if a.cfg.GRPC.Addr != "" {
		probe := newProbeServer(a.logger)
		g.Go(func() error {
			return probe.serve(gctx, a.cfg.GRPC.Addr, timeout)
		})
	}

	if a.relay != nil {
		g.Go(func() error { return a.relay.Run(gctx) })
	}

	a.logger.WithFields(log.Fields{
		"services": a.cfg.Services,
		"storage":  a.cfg.Storage.Driver,
		"bus":      a.cfg.Bus.Driver,
		"version":  version.Version(),
	}).Info("shop started")

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// Close освобождает шину, redis и пул БД.
func (a *App) Close() error {
	var errs []error
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close bus: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close postgres: %w", err))
	}
	return errors.Join(errs...)
}

// Run собирает процесс по cfg и работает до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.WithError(err).Warn("shutdown finished with errors")
		}
	}()
	return a.Run(ctx)
}
