// Package gateway реализует синхронный клиент к read-эндпоинтам соседних сервисов:
// GET {baseURL}/{id} и PUT {baseURL}/{id}. Повторов нет; ожидание ограничено только
// таймаутом HTTP-клиента.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

// DefaultTimeout: таймаут HTTP-клиента по умолчанию.
const DefaultTimeout = 30 * time.Second

// Client: обобщённый шлюз к сущности типа T.
type Client[T any] struct {
	baseURL string
	http    *http.Client
	group   singleflight.Group
	logger  *log.Entry
}

// Option настраивает клиента.
type Option func(*options)

type options struct {
	httpClient *http.Client
	logger     *log.Entry
}

// WithHTTPClient подменяет HTTP-клиент (тесты, кастомный транспорт).
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithLogger задаёт логгер шлюза.
func WithLogger(logger *log.Entry) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New создаёт шлюз к baseURL, например http://products:8080/products.
func New[T any](baseURL string, opts ...Option) *Client[T] {
	o := options{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     log.WithField("component", "gateway"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Client[T]{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    o.httpClient,
		logger:  o.logger.WithField("base_url", baseURL),
	}
}

// NewProductGateway: шлюз к сервису склада.
func NewProductGateway(baseURL string, opts ...Option) *Client[domain.ProductDTO] {
	return New[domain.ProductDTO](baseURL, opts...)
}

// NewCustomerGateway: шлюз к сервису аккаунтов.
func NewCustomerGateway(baseURL string, opts ...Option) *Client[domain.CustomerDTO] {
	return New[domain.CustomerDTO](baseURL, opts...)
}

func (c *Client[T]) url(id int64) string {
	return c.baseURL + "/" + strconv.FormatInt(id, 10)
}

// Get запрашивает сущность. Одновременные запросы одного id объединяются;
// общий запрос не зависит от отмены контекста отдельного вызывающего, каждый
// ждёт результата только в пределах своего ctx.
// 404 отображается в domain.ErrNotFound, прочие сбои в domain.ErrTransport.
func (c *Client[T]) Get(ctx context.Context, id int64) (T, error) {
	var zero T
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(strconv.FormatInt(id, 10), func() (interface{}, error) {
		return c.get(shared, id)
	})

	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: GET %s: %v", domain.ErrTransport, c.url(id), ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func (c *Client[T]) get(ctx context.Context, id int64) (T, error) {
	var entity T

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(id), nil)
	if err != nil {
		return entity, fmt.Errorf("%w: build request: %v", domain.ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WithError(err).WithField("id", id).Warn("gateway request failed")
		return entity, fmt.Errorf("%w: GET %s: %v", domain.ErrTransport, c.url(id), err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, id); err != nil {
		return entity, err
	}

	if err := json.NewDecoder(resp.Body).Decode(&entity); err != nil {
		return entity, fmt.Errorf("%w: decode response for id %d: %v", domain.ErrTransport, id, err)
	}
	return entity, nil
}

// Update отправляет сущность целиком. Движком заказов не используется.
func (c *Client[T]) Update(ctx context.Context, entity T, id int64) error {
	body, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshal entity %d: %w", id, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.url(id), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", domain.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: PUT %s: %v", domain.ErrTransport, c.url(id), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return checkStatus(resp, id)
}

func checkStatus(resp *http.Response, id int64) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("entity %d: %w", id, domain.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: unexpected status %d for id %d", domain.ErrTransport, resp.StatusCode, id)
	}
	return nil
}
