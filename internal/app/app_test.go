package app

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
	"github.com/vladislavdragonenkov/shopflow/internal/messaging/memory"
)

func init() {
	log.SetOutput(io.Discard)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func memoryConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.HTTP.Addr = freeAddr(t)
	cfg.Ops.Addr = ""
	return cfg
}

func newApp(t *testing.T, cfg Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Driver = "files"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestNew_MountsOnlyConfiguredServices(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Services = []string{ServiceProducts}
	a := newApp(t, cfg)

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/products")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	for _, path := range []string{"/orders", "/customers"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Status   string   `json:"status"`
		Services []string `json:"services"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, []string{ServiceProducts}, body.Services)
}

func TestApp_SeedIsIdempotent(t *testing.T) {
	a := newApp(t, memoryConfig(t))
	ctx := context.Background()

	require.NoError(t, a.Seed(ctx))
	require.NoError(t, a.Seed(ctx))

	products, err := a.products.List(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 3)

	customers, err := a.customers.List(ctx)
	require.NoError(t, err)
	assert.Len(t, customers, 5)
}

func TestApp_RunServesUntilCancelled(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.GRPC.Addr = freeAddr(t)
	cfg.Seed = true
	a := newApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.HTTP.Addr + "/livez")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	resp, err := http.Get("http://" + cfg.HTTP.Addr + "/products")
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(raw), "Hammer")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

// Заказ через собственные шлюзы процесса: товары и клиенты берутся по HTTP с того же адреса.
func TestApp_OrderFlowThroughOwnGateways(t *testing.T) {
	tests := []struct {
		name string
		mode string
	}{
		{name: "direct", mode: PublishDirect},
		{name: "outbox", mode: PublishOutbox},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := memoryConfig(t)
			cfg.Orders.PublishMode = tc.mode
			cfg.Outbox.PollInterval = 10 * time.Millisecond
			cfg.Seed = true
			a := newApp(t, cfg)

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- a.Run(ctx) }()
			defer func() {
				cancel()
				<-done
			}()

			base := "http://" + cfg.HTTP.Addr
			require.Eventually(t, func() bool {
				resp, err := http.Get(base + "/livez")
				if err != nil {
					return false
				}
				resp.Body.Close()
				return true
			}, 2*time.Second, 20*time.Millisecond)

			resp, err := http.Post(base+"/orders", "application/json",
				strings.NewReader(`{"customerId":1,"orderLines":[{"productId":1,"quantity":2}]}`))
			require.NoError(t, err)
			resp.Body.Close()
			require.Equal(t, http.StatusCreated, resp.StatusCode)

			bus := a.Bus().(*memory.Bus)
			require.Eventually(t, func() bool {
				_ = bus.Flush(context.Background())
				p, err := a.products.Get(context.Background(), 1)
				return err == nil && p.ItemsReserved == 2
			}, 3*time.Second, 20*time.Millisecond)

			p, err := a.products.Get(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, domain.Product{ID: 1, Name: "Hammer", Price: 100, ItemsInStock: 10, ItemsReserved: 2, Version: p.Version}, p)
		})
	}
}
