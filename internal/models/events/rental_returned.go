package events

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RentalReturnedTopic                 = "rental.returned"
	InventoryReconciliationPendingTopic = "rental.inventory_reconciliation_pending"
)

type RentalReturned struct {
	RentalID     string          `json:"rental_id"`
	CustomerID   string          `json:"customer_id"`
	MovieID      string          `json:"movie_id"`
	RentalFee    decimal.Decimal `json:"rental_fee"`
	DateOut      time.Time       `json:"date_out"`
	DateReturned time.Time       `json:"date_returned"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// InventoryReconciliationPending is emitted when a rental was closed but the
// movie stock could not be incremented. Consumers bump the stock by StockDelta.
type InventoryReconciliationPending struct {
	RentalID   string    `json:"rental_id"`
	MovieID    string    `json:"movie_id"`
	StockDelta int64     `json:"stock_delta"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}
