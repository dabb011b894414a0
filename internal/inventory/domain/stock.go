// internal/inventory/domain/stock.go
package domain

import "time"

// StockRecord is the authoritative per-product ledger row.
// Invariant: 0 <= Reserved <= Stock after every committed operation.
type StockRecord struct {
	ProductID string
	Stock     int64
	Reserved  int64
	UpdatedAt time.Time
}

// Available is the quantity still open to new reservations.
func (s *StockRecord) Available() int64 {
	return s.Stock - s.Reserved
}
