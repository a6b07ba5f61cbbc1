package orderbook

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Level is one row of a depth snapshot.
type Level struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// OrderBook is single-writer and deterministic.
type OrderBook struct {
	Bids *RBTree
	Asks *RBTree
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		Bids: NewRBTree(),
		Asks: NewRBTree(),
	}
}

// Place matches o against the opposite side and rests any limit
// remainder. o is mutated in place; the returned fills are in
// execution order.
func (b *OrderBook) Place(o *Order) []Fill {
	var fills []Fill

	for o.Remaining.IsPositive() {
		best := b.best(o.Side.Opposite())
		if best == nil || !crosses(o, best.Price) {
			break
		}

		head := best.Front()
		trade := decimal.Min(o.Remaining, head.Remaining)

		o.fill(trade)
		best.fill(head, trade)

		fills = append(fills, Fill{
			MakerID:     head.ID,
			MakerStatus: head.Status,
			Price:       head.Price,
			Quantity:    trade,
		})

		if head.Remaining.IsZero() {
			best.PopFront()
			if best.Empty() {
				b.side(o.Side.Opposite()).DeleteLevel(best.Price)
			}
		}
	}

	if o.Type == Limit && o.Remaining.IsPositive() {
		b.InsertResting(o)
	}
	return fills
}

// InsertResting queues o at the tail of its price level.
func (b *OrderBook) InsertResting(o *Order) {
	b.side(o.Side).UpsertLevel(o.Price).Push(o)
}

func (b *OrderBook) BestBid() (decimal.Decimal, bool) {
	if lvl := b.Bids.MaxLevel(); lvl != nil {
		return lvl.Price, true
	}
	return decimal.Decimal{}, false
}

func (b *OrderBook) BestAsk() (decimal.Decimal, bool) {
	if lvl := b.Asks.MinLevel(); lvl != nil {
		return lvl.Price, true
	}
	return decimal.Decimal{}, false
}

// Crossed reports best bid >= best ask. A completed Place never
// leaves the book crossed.
func (b *OrderBook) Crossed() bool {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	return okBid && okAsk && bid.GreaterThanOrEqual(ask)
}

// Depth returns up to n levels per side, best first.
func (b *OrderBook) Depth(n int) (bids, asks []Level) {
	bids = make([]Level, 0, capDepth(n, b.Bids.Size()))
	asks = make([]Level, 0, capDepth(n, b.Asks.Size()))
	if n <= 0 {
		return bids, asks
	}

	b.BidsWalk(func(lvl *PriceLevel) bool {
		bids = append(bids, Level{Price: lvl.Price, Quantity: lvl.Quantity()})
		return len(bids) < n
	})
	b.AsksWalk(func(lvl *PriceLevel) bool {
		asks = append(asks, Level{Price: lvl.Price, Quantity: lvl.Quantity()})
		return len(asks) < n
	})
	return bids, asks
}

// ---- traversal helpers ----

// BidsWalk visits bid levels from the highest price down.
func (b *OrderBook) BidsWalk(fn func(*PriceLevel) bool) {
	b.Bids.ForEachDescending(fn)
}

// AsksWalk visits ask levels from the lowest price up.
func (b *OrderBook) AsksWalk(fn func(*PriceLevel) bool) {
	b.Asks.ForEachAscending(fn)
}

// ---- matching ----

func (b *OrderBook) side(s Side) *RBTree {
	if s == Bid {
		return b.Bids
	}
	return b.Asks
}

func (b *OrderBook) best(s Side) *PriceLevel {
	if s == Bid {
		return b.Bids.MaxLevel()
	}
	return b.Asks.MinLevel()
}

func crosses(o *Order, price decimal.Decimal) bool {
	switch {
	case o.Type == Market:
		return true
	case o.Side == Bid:
		return o.Price.GreaterThanOrEqual(price)
	case o.Side == Ask:
		return o.Price.LessThanOrEqual(price)
	default:
		panic(fmt.Sprintf("orderbook: order %d has unknown side %d", o.ID, int(o.Side)))
	}
}

func capDepth(n, size int) int {
	if n < 0 {
		return 0
	}
	return min(n, size)
}
