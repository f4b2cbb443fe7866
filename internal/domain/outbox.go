package domain

import "time"

// OutboxMessage хранит данные для отложенной публикации события.
type OutboxMessage struct {
	ID       string
	Exchange string
	Topic    string
	Payload  []byte
	Headers  map[string]string
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
