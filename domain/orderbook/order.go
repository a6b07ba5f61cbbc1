package orderbook

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Side int
type OrderType int
type Status int

const (
	Bid Side = iota
	Ask
)

const (
	Limit OrderType = iota
	Market
)

const (
	New Status = iota
	PartiallyFilled
	Filled
	Rejected
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// Opposite returns the side an order of s trades against.
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "limit"
	case Market:
		return "market"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

func (s Status) String() string {
	switch s {
	case New:
		return "new"
	case PartiallyFilled:
		return "partially_filled"
	case Filled:
		return "filled"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Order is a pure domain entity.
//
// While an order rests it is linked into exactly one PriceLevel; the
// level and the engine registry share the same *Order so a fill is
// visible from both.
type Order struct {
	ID        uint64
	Side      Side
	Type      OrderType
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Remaining decimal.Decimal
	Status    Status
	Timestamp time.Time

	// Seq is the arrival sequence assigned by the engine on acceptance.
	Seq uint64

	next *Order
	prev *Order
}

// NewOrder builds a fresh order stamped with ts.
func NewOrder(id uint64, side Side, otype OrderType, price, qty decimal.Decimal, ts time.Time) Order {
	return Order{
		ID:        id,
		Side:      side,
		Type:      otype,
		Price:     price,
		Quantity:  qty,
		Remaining: qty,
		Status:    New,
		Timestamp: ts,
	}
}

// Validate checks the terms of an order before it touches the book.
func (o *Order) Validate() error {
	if o.Side != Bid && o.Side != Ask {
		return fmt.Errorf("%w: unknown side %d", ErrInvalidOrder, int(o.Side))
	}
	switch o.Type {
	case Limit:
		if !o.Price.IsPositive() {
			return fmt.Errorf("%w: limit price must be positive, got %s", ErrInvalidOrder, o.Price)
		}
	case Market:
	default:
		return fmt.Errorf("%w: unknown order type %d", ErrInvalidOrder, int(o.Type))
	}
	if !o.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive, got %s", ErrInvalidOrder, o.Quantity)
	}
	if o.Status != New || !o.Remaining.Equal(o.Quantity) {
		return fmt.Errorf("%w: order %d is not fresh (status=%s remaining=%s)", ErrInvalidOrder, o.ID, o.Status, o.Remaining)
	}
	return nil
}

// Executed reports how much of the order has traded.
func (o *Order) Executed() decimal.Decimal {
	return o.Quantity.Sub(o.Remaining)
}

// Snapshot returns a detached copy safe to hand outside the engine.
func (o *Order) Snapshot() Order {
	cp := *o
	cp.next = nil
	cp.prev = nil
	return cp
}

// fill applies one execution and re-derives the status from quantities.
func (o *Order) fill(qty decimal.Decimal) {
	if !qty.IsPositive() || qty.GreaterThan(o.Remaining) {
		panic(fmt.Sprintf("orderbook: fill of %s on order %d with remaining %s", qty, o.ID, o.Remaining))
	}
	o.Remaining = o.Remaining.Sub(qty)
	o.refreshStatus()
}

func (o *Order) refreshStatus() {
	switch {
	case o.Remaining.IsZero():
		o.Status = Filled
	case o.Remaining.Equal(o.Quantity):
		o.Status = New
	default:
		o.Status = PartiallyFilled
	}
}
