package repositories

import "fmt"

// StockErrorCode enumerates stock failures raised inside the order transaction.
type StockErrorCode string

const (
	// StockErrorNotFound indicates the book document does not exist.
	StockErrorNotFound StockErrorCode = "stock_not_found"
	// StockErrorInsufficient indicates the requested quantity exceeds stockQuantity.
	StockErrorInsufficient StockErrorCode = "insufficient_stock"
)

// StockError reports which book blocked checkout.
type StockError struct {
	Code      StockErrorCode
	BookID    string
	Title     string
	Requested int
	Available int
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	switch e.Code {
	case StockErrorNotFound:
		return fmt.Sprintf("book %s not found", e.BookID)
	case StockErrorInsufficient:
		name := e.Title
		if name == "" {
			name = e.BookID
		}
		return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", name, e.Requested, e.Available)
	}
	return string(e.Code)
}
