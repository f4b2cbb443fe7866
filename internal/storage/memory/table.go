package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

// accessor описывает, как таблица читает и выставляет служебные поля сущности.
type accessor[T any] struct {
	id         func(T) int64
	setID      func(*T, int64)
	version    func(T) int64
	setVersion func(*T, int64)
	clone      func(T) T
}

// table: потокобезопасная таблица с автоинкрементом и optimistic locking.
type table[T any] struct {
	mu    sync.RWMutex
	seq   int64
	items map[int64]T
	acc   accessor[T]
}

func newTable[T any](acc accessor[T]) *table[T] {
	if acc.clone == nil {
		acc.clone = func(v T) T { return v }
	}
	return &table[T]{items: make(map[int64]T), acc: acc}
}

// create присваивает следующий идентификатор, если он не задан явно.
func (t *table[T]) create(v T) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.acc.id(v)
	if id <= 0 {
		t.seq++
		id = t.seq
		t.acc.setID(&v, id)
	} else {
		if _, exists := t.items[id]; exists {
			return v, domain.ErrVersionConflict
		}
		if id > t.seq {
			t.seq = id
		}
	}
	t.acc.setVersion(&v, 1)
	t.items[id] = t.acc.clone(v)
	return v, nil
}

func (t *table[T]) get(id int64) (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, ok := t.items[id]
	if !ok {
		var zero T
		return zero, domain.ErrNotFound
	}
	return t.acc.clone(v), nil
}

func (t *table[T]) list() []T {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]int64, 0, len(t.items))
	for id := range t.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	result := make([]T, 0, len(ids))
	for _, id := range ids {
		result = append(result, t.acc.clone(t.items[id]))
	}
	return result
}

// save перезаписывает запись, проверяя версию, и инкрементирует её.
func (t *table[T]) save(v T) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.acc.id(v)
	current, ok := t.items[id]
	if !ok {
		return v, domain.ErrNotFound
	}
	if t.acc.version(current) != t.acc.version(v) {
		return v, domain.ErrVersionConflict
	}
	t.acc.setVersion(&v, t.acc.version(v)+1)
	t.items[id] = t.acc.clone(v)
	return v, nil
}

func (t *table[T]) delete(id int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.items[id]; !ok {
		return domain.ErrNotFound
	}
	delete(t.items, id)
	return nil
}
