package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"kobara/domain/orderbook"
)

func drawOrder(t *rapid.T, id uint64) orderbook.Order {
	side := orderbook.Side(rapid.IntRange(0, 1).Draw(t, "side"))
	qty := decimal.New(rapid.Int64Range(1, 40).Draw(t, "qty"), -1)
	ts := t0.Add(time.Duration(id) * time.Millisecond)

	if rapid.IntRange(0, 9).Draw(t, "market") == 0 {
		return orderbook.NewOrder(id, side, orderbook.Market, decimal.Zero, qty, ts)
	}
	// prices on a 0.25 grid around 100
	price := decimal.New(rapid.Int64Range(390, 410).Draw(t, "ticks"), 0).Mul(decimal.RequireFromString("0.25"))
	return orderbook.NewOrder(id, side, orderbook.Limit, price, qty, ts)
}

func TestPropertyMatchingInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e := NewMatchingEngine()
		remaining := map[uint64]decimal.Decimal{}
		n := rapid.IntRange(1, 60).Draw(t, "orders")

		for i := 1; i <= n; i++ {
			in := drawOrder(t, uint64(i))

			bidsBefore, asksBefore := e.GetOrderBook(1 << 20)
			res, err := e.Execute(in)
			if err != nil {
				t.Fatalf("place %d: %v", i, err)
			}

			checkConservation(t, in, res)
			checkPriority(t, e, in, res)
			checkNoCross(t, e)
			checkMonotonic(t, e, remaining, i)
			checkBookMatchesRegistry(t, e, i)

			if len(res.Trades) == 0 && in.Type == orderbook.Market {
				// a market order that traded nothing leaves the book untouched
				bidsAfter, asksAfter := e.GetOrderBook(1 << 20)
				if !sameLevels(bidsBefore, bidsAfter) || !sameLevels(asksBefore, asksAfter) {
					t.Fatalf("unmatched market order %d changed the book", i)
				}
			}
		}

		// read purity: repeated queries see identical state
		b1, a1 := e.GetOrderBook(5)
		b2, a2 := e.GetOrderBook(5)
		if !sameLevels(b1, b2) || !sameLevels(a1, a2) {
			t.Fatal("GetOrderBook is not idempotent")
		}
	})
}

func checkConservation(t *rapid.T, in orderbook.Order, res Execution) {
	traded := decimal.Zero
	for _, tr := range res.Trades {
		if !tr.Quantity.IsPositive() {
			t.Fatalf("trade %d has non-positive quantity %s", tr.ID, tr.Quantity)
		}
		traded = traded.Add(tr.Quantity)
	}
	// what left the incoming side equals what left the resting side
	if executed := res.Order.Executed(); !traded.Equal(executed) {
		t.Fatalf("order %d: traded %s but executed %s", in.ID, traded, executed)
	}
	if res.Order.Remaining.IsNegative() {
		t.Fatalf("order %d remaining negative", in.ID)
	}
}

func checkPriority(t *rapid.T, e *MatchingEngine, in orderbook.Order, res Execution) {
	var prevPrice decimal.Decimal
	var prevSeq uint64
	for i, tr := range res.Trades {
		if in.Type == orderbook.Limit {
			if in.Side == orderbook.Bid && tr.Price.GreaterThan(in.Price) {
				t.Fatalf("bid %d at %s traded above limit at %s", in.ID, in.Price, tr.Price)
			}
			if in.Side == orderbook.Ask && tr.Price.LessThan(in.Price) {
				t.Fatalf("ask %d at %s traded below limit at %s", in.ID, in.Price, tr.Price)
			}
		}

		maker, err := e.GetOrderStatus(tr.MakerOrderID)
		if err != nil {
			t.Fatalf("maker %d missing: %v", tr.MakerOrderID, err)
		}
		if !tr.Price.Equal(maker.Price) {
			t.Fatalf("trade %d priced %s, maker price %s", tr.ID, tr.Price, maker.Price)
		}

		if i > 0 {
			worse := (in.Side == orderbook.Bid && tr.Price.LessThan(prevPrice)) ||
				(in.Side == orderbook.Ask && tr.Price.GreaterThan(prevPrice))
			if worse {
				t.Fatalf("order %d matched %s after %s", in.ID, tr.Price, prevPrice)
			}
			if tr.Price.Equal(prevPrice) && maker.Seq <= prevSeq {
				t.Fatalf("order %d matched maker seq %d after seq %d at one price", in.ID, maker.Seq, prevSeq)
			}
		}
		prevPrice, prevSeq = tr.Price, maker.Seq
	}
}

func checkNoCross(t *rapid.T, e *MatchingEngine) {
	bids, asks := e.GetOrderBook(1)
	if len(bids) == 1 && len(asks) == 1 && bids[0].Price.GreaterThanOrEqual(asks[0].Price) {
		t.Fatalf("book crossed: %s >= %s", bids[0].Price, asks[0].Price)
	}
}

func checkMonotonic(t *rapid.T, e *MatchingEngine, remaining map[uint64]decimal.Decimal, upto int) {
	for id := uint64(1); id <= uint64(upto); id++ {
		o, err := e.GetOrderStatus(id)
		if err != nil {
			t.Fatalf("order %d not registered: %v", id, err)
		}
		if prev, ok := remaining[id]; ok && o.Remaining.GreaterThan(prev) {
			t.Fatalf("order %d remaining grew from %s to %s", id, prev, o.Remaining)
		}
		remaining[id] = o.Remaining

		switch {
		case o.Remaining.IsZero() && o.Status != orderbook.Filled,
			o.Remaining.Equal(o.Quantity) && o.Status != orderbook.New,
			o.Remaining.IsPositive() && o.Remaining.LessThan(o.Quantity) && o.Status != orderbook.PartiallyFilled:
			t.Fatalf("order %d status %s disagrees with remaining %s/%s", id, o.Status, o.Remaining, o.Quantity)
		}
	}
}

// checkBookMatchesRegistry rebuilds depth from registered limit orders
// and compares it with the live book.
func checkBookMatchesRegistry(t *rapid.T, e *MatchingEngine, upto int) {
	want := map[orderbook.Side]map[string]decimal.Decimal{
		orderbook.Bid: {},
		orderbook.Ask: {},
	}
	for id := uint64(1); id <= uint64(upto); id++ {
		o, _ := e.GetOrderStatus(id)
		if o.Type != orderbook.Limit || !o.Remaining.IsPositive() {
			continue
		}
		key := o.Price.String()
		want[o.Side][key] = want[o.Side][key].Add(o.Remaining)
	}

	bids, asks := e.GetOrderBook(1 << 20)
	for side, levels := range map[orderbook.Side][]orderbook.Level{orderbook.Bid: bids, orderbook.Ask: asks} {
		if len(levels) != len(want[side]) {
			t.Fatalf("%s: book has %d levels, registry implies %d", side, len(levels), len(want[side]))
		}
		for _, lvl := range levels {
			if !want[side][lvl.Price.String()].Equal(lvl.Quantity) {
				t.Fatalf("%s level %s: book %s, registry %s", side, lvl.Price, lvl.Quantity, want[side][lvl.Price.String()])
			}
		}
	}
}

func sameLevels(a, b []orderbook.Level) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Price.Equal(b[i].Price) || !a[i].Quantity.Equal(b[i].Quantity) {
			return false
		}
	}
	return true
}
