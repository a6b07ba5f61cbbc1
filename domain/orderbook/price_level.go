package orderbook

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceLevel is a FIFO queue at a single price.
type PriceLevel struct {
	Price decimal.Decimal

	head *Order
	tail *Order

	total decimal.Decimal
	count int
}

func newPriceLevel(price decimal.Decimal) *PriceLevel {
	return &PriceLevel{Price: price, total: decimal.Zero}
}

// Push appends o to the tail, behind every order already queued.
func (p *PriceLevel) Push(o *Order) {
	o.next = nil
	if p.head == nil {
		o.prev = nil
		p.head = o
		p.tail = o
	} else {
		p.tail.next = o
		o.prev = p.tail
		p.tail = o
	}
	p.total = p.total.Add(o.Remaining)
	p.count++
}

// Front returns the earliest queued order without removing it.
func (p *PriceLevel) Front() *Order {
	return p.head
}

// PopFront unlinks the head order.
func (p *PriceLevel) PopFront() *Order {
	o := p.head
	if o == nil {
		return nil
	}

	p.head = o.next
	if p.head != nil {
		p.head.prev = nil
	} else {
		p.tail = nil
	}

	o.next = nil
	o.prev = nil

	p.total = p.total.Sub(o.Remaining)
	p.count--

	return o
}

func (p *PriceLevel) Empty() bool {
	return p.head == nil
}

// Quantity is the aggregated remaining quantity of all members.
func (p *PriceLevel) Quantity() decimal.Decimal {
	return p.total
}

func (p *PriceLevel) Len() int {
	return p.count
}

// fill executes qty against member o and keeps the aggregate in step.
func (p *PriceLevel) fill(o *Order, qty decimal.Decimal) {
	o.fill(qty)
	p.total = p.total.Sub(qty)
	if p.total.IsNegative() {
		panic(fmt.Sprintf("orderbook: level %s aggregate went negative", p.Price))
	}
}

func (p *PriceLevel) String() string {
	return fmt.Sprintf("level %s qty=%s orders=%d", p.Price, p.total, p.count)
}
