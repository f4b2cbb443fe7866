package domain

// Product принадлежит сервису склада.
// Ожидаемый инвариант 0 <= ItemsReserved <= ItemsInStock консьюмером не поддерживается:
// аномалии событий (shipped+paid, cancel после pay) могут его нарушить.
type Product struct {
	ID            int64
	Name          string
	Price         int64
	ItemsInStock  int
	ItemsReserved int
	Version       int64
}

// Available возвращает количество единиц, доступных для нового резерва.
func (p Product) Available() int {
	return p.ItemsInStock - p.ItemsReserved
}
