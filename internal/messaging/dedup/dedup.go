// Package dedup подавляет повторную обработку сообщений с уже виденным ID.
// По умолчанию консьюмеры не идемпотентны; middleware подключается конфигурацией.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopflow/internal/messaging"
)

// Store атомарно помечает ключ как обработанный.
// MarkProcessed возвращает true, если ключ встречен впервые.
type Store interface {
	MarkProcessed(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// Middleware пропускает сообщение к обработчику только при первой доставке в данную очередь.
// Если обработчик вернул ошибку, отметка снимается, чтобы повторная доставка могла пройти.
func Middleware(store Store, queue string, logger *log.Entry) messaging.Middleware {
	return func(next messaging.Handler) messaging.Handler {
		return func(ctx context.Context, d messaging.Delivery) error {
			if d.ID == "" {
				return next(ctx, d)
			}
			key := queue + ":" + d.ID
			first, err := store.MarkProcessed(ctx, key)
			if err != nil {
				return fmt.Errorf("dedup check for %s: %w", key, err)
			}
			if !first {
				if logger != nil {
					logger.WithFields(log.Fields{"queue": queue, "message_id": d.ID}).Info("duplicate delivery skipped")
				}
				return nil
			}
			if err := next(ctx, d); err != nil {
				if ferr := store.Forget(ctx, key); ferr != nil && logger != nil {
					logger.WithError(ferr).WithField("key", key).Warn("failed to release dedup key")
				}
				return err
			}
			return nil
		}
	}
}

// MemoryStore хранит ключи в процессе с TTL (patrickmn/go-cache).
type MemoryStore struct {
	c *cache.Cache
}

// NewMemoryStore создаёт хранилище с временем жизни ключа ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{c: cache.New(ttl, ttl*2)}
}

// MarkProcessed использует атомарный Add: он завершается ошибкой, если ключ уже есть.
func (s *MemoryStore) MarkProcessed(_ context.Context, key string) (bool, error) {
	if err := s.c.Add(key, struct{}{}, cache.DefaultExpiration); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) Forget(_ context.Context, key string) error {
	s.c.Delete(key)
	return nil
}

var _ Store = (*MemoryStore)(nil)
