package orderbook

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill is one match of the incoming order against a resting order.
// Price is always the resting order's price.
type Fill struct {
	MakerID     uint64
	MakerStatus Status
	Price       decimal.Decimal
	Quantity    decimal.Decimal
}

// Trade is a Fill stamped by the engine.
type Trade struct {
	ID           uint64
	TakerOrderID uint64
	MakerOrderID uint64
	TakerSide    Side
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	ExecutedAt   time.Time
}
