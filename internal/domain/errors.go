package domain

import "errors"

var (
	// ErrValidation: некорректное или отсутствующее тело запроса.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound возвращается, если сущность отсутствует в хранилище или у удалённого сервиса.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock: по одной из позиций не хватает свободного остатка.
	ErrInsufficientStock = errors.New("not enough items in stock")
	// ErrCreditRejected: клиент не найден или его кредитный баланс отрицательный.
	ErrCreditRejected = errors.New("customer credit rejected")
	// ErrTransport: шлюз или шина сообщений недоступны.
	ErrTransport = errors.New("transport failure")
	// ErrPersistence: ошибка записи в хранилище.
	ErrPersistence = errors.New("persistence failure")
	// ErrVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrVersionConflict = errors.New("version conflict")
	// ErrInvalidTransition: переход статуса запрещён текущим состоянием заказа.
	ErrInvalidTransition = errors.New("invalid status transition")

	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customerId is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrLinesRequired = errors.New("order must contain at least one line")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrLineQtyInvalid = errors.New("line quantity must be greater than zero")
	// Ошибка отсутствующего идентификатора товара в позиции.
	ErrLineProductRequired = errors.New("line productId is required")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsNotFound проверяет, сигнализирует ли ошибка об отсутствии сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
