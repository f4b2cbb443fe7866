package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, BusMemory, cfg.Bus.Driver)
	assert.Equal(t, "publish_first", cfg.Orders.CreateOrdering)
	assert.Equal(t, PublishDirect, cfg.Orders.PublishMode)
	assert.Equal(t, DedupNone, cfg.Consumers.Dedup)
	assert.Equal(t, AllServices, cfg.Services)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ShutdownTimeout)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "postgres with dsn", mutate: func(c *Config) { c.Storage.Driver = StoragePostgres }},
		{name: "kafka with brokers", mutate: func(c *Config) { c.Bus.Driver = BusKafka }},
		{name: "outbox and redis dedup", mutate: func(c *Config) {
			c.Orders.PublishMode = PublishOutbox
			c.Consumers.Dedup = DedupRedis
		}},
		{name: "grpc enabled", mutate: func(c *Config) { c.GRPC.Addr = ":50051" }},
		{name: "missing http addr", mutate: func(c *Config) { c.HTTP.Addr = "" }, wantErr: "http.addr is required"},
		{name: "malformed http addr", mutate: func(c *Config) { c.HTTP.Addr = "8080" }, wantErr: "http.addr"},
		{name: "malformed ops addr", mutate: func(c *Config) { c.Ops.Addr = "nope" }, wantErr: "ops.addr"},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Driver = "sqlite" }, wantErr: `unknown driver "sqlite"`},
		{name: "postgres without dsn", mutate: func(c *Config) {
			c.Storage.Driver = StoragePostgres
			c.Storage.Postgres.DSN = ""
		}, wantErr: "storage.postgres.dsn"},
		{name: "unknown bus", mutate: func(c *Config) { c.Bus.Driver = "nats" }, wantErr: `unknown driver "nats"`},
		{name: "rabbitmq without url", mutate: func(c *Config) {
			c.Bus.Driver = BusRabbitMQ
			c.Bus.URL = ""
		}, wantErr: "bus.url"},
		{name: "kafka without brokers", mutate: func(c *Config) {
			c.Bus.Driver = BusKafka
			c.Bus.Brokers = nil
		}, wantErr: "bus.brokers"},
		{name: "unknown ordering", mutate: func(c *Config) { c.Orders.CreateOrdering = "whenever" }, wantErr: "orders.create_ordering"},
		{name: "unknown publish mode", mutate: func(c *Config) { c.Orders.PublishMode = "batch" }, wantErr: "orders.publish_mode"},
		{name: "unknown dedup", mutate: func(c *Config) { c.Consumers.Dedup = "bloom" }, wantErr: "consumers.dedup"},
		{name: "bad gateway url", mutate: func(c *Config) { c.Gateways.ProductURL = "products:8080" }, wantErr: "gateways.product_url"},
		{name: "no services", mutate: func(c *Config) { c.Services = nil }, wantErr: "at least one service"},
		{name: "unknown service", mutate: func(c *Config) { c.Services = []string{"orders", "billing"} }, wantErr: `unknown service "billing"`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9000"
storage:
  driver: postgres
  postgres:
    dsn: postgres://file@db:5432/shop
bus:
  driver: kafka
  brokers: [k1:9092, k2:9092]
orders:
  create_ordering: persist_first
services: [orders, inventory, accounts]
`), 0o600))

	t.Setenv("SHOP_STORAGE_POSTGRES_DSN", "postgres://env@db:5432/shop")
	t.Setenv("SHOP_OUTBOX_POLL_INTERVAL", "250ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, StoragePostgres, cfg.Storage.Driver)
	assert.Equal(t, "postgres://env@db:5432/shop", cfg.Storage.Postgres.DSN, "env overrides file")
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Bus.Brokers)
	assert.Equal(t, "persist_first", cfg.Orders.CreateOrdering)
	assert.Equal(t, []string{ServiceOrders, ServiceInventory, ServiceAccounts}, cfg.Services)
	assert.Equal(t, 250*time.Millisecond, cfg.Outbox.PollInterval)
	assert.Equal(t, 3, cfg.Outbox.MaxAttempts, "untouched keys keep defaults")
}

func TestLoad_EnvLists(t *testing.T) {
	t.Setenv("SHOP_SERVICES", "products, customers")
	t.Setenv("SHOP_CONSUMERS_DEDUP", "memory")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{ServiceProducts, ServiceCustomers}, cfg.Services)
	assert.Equal(t, DedupMemory, cfg.Consumers.Dedup)
	assert.True(t, cfg.Has(ServiceProducts))
	assert.False(t, cfg.Has(ServiceOrders))
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	t.Setenv("SHOP_BUS_DRIVER", "carrier-pigeon")
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bus.driver")
}

func TestConfig_GatewayURLs(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{addr: ":8080", want: "http://127.0.0.1:8080"},
		{addr: "0.0.0.0:9000", want: "http://127.0.0.1:9000"},
		{addr: "shop.local:8081", want: "http://shop.local:8081"},
	}
	for _, tc := range tests {
		t.Run(tc.addr, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.HTTP.Addr = tc.addr
			assert.Equal(t, tc.want, cfg.ProductURL())
			assert.Equal(t, tc.want, cfg.CustomerURL())
		})
	}

	cfg := DefaultConfig()
	cfg.Gateways.ProductURL = "http://products:8080"
	assert.Equal(t, "http://products:8080", cfg.ProductURL())
	assert.Equal(t, "http://127.0.0.1:8080", cfg.CustomerURL())
}

func TestConfigureLogging(t *testing.T) {
	require.NoError(t, ConfigureLogging(LogConfig{Level: "debug", Format: "json"}))
	require.NoError(t, ConfigureLogging(LogConfig{Level: "info", Format: "text"}))
	require.Error(t, ConfigureLogging(LogConfig{Level: "loud"}))
	require.Error(t, ConfigureLogging(LogConfig{Format: "xml"}))
}
