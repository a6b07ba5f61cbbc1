package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"kobara/domain/orderbook"
)

var (
	// ErrOrderNotFound is returned by GetOrderStatus for an unknown id.
	ErrOrderNotFound = errors.New("order not found")
	// ErrDuplicateOrder is returned when an id has already been accepted.
	ErrDuplicateOrder = errors.New("duplicate order id")
)

// TradeRecorder receives the trades of one matching pass, in execution
// order, while the engine lock is still held.
type TradeRecorder interface {
	Record(trades []orderbook.Trade) error
}

// Execution is the outcome of one PlaceOrder call.
type Execution struct {
	Order  orderbook.Order
	Trades []orderbook.Trade
}

/*
MatchingEngine is the ONLY write entry point into the book.

It owns the order book and the id registry. One mutex covers both and
is held for the whole of every public call, queries included, so no
caller ever observes a half-applied match.
*/
type MatchingEngine struct {
	mu sync.Mutex

	book     *orderbook.OrderBook
	registry map[uint64]*orderbook.Order

	orderSeq uint64
	tradeSeq uint64

	recorder TradeRecorder
	metrics  *Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

// Option configures a MatchingEngine.
type Option func(*MatchingEngine)

func WithRecorder(r TradeRecorder) Option {
	return func(e *MatchingEngine) { e.recorder = r }
}

func WithMetrics(m *Metrics) Option {
	return func(e *MatchingEngine) { e.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *MatchingEngine) { e.logger = l.With().Str("module", "engine").Logger() }
}

// WithTradeSeq makes trade ids continue after last, the highest id a
// previous run handed to the recorder.
func WithTradeSeq(last uint64) Option {
	return func(e *MatchingEngine) { e.tradeSeq = last }
}

// WithClock overrides the clock used to stamp trades.
func WithClock(now func() time.Time) Option {
	return func(e *MatchingEngine) { e.now = now }
}

// NewMatchingEngine wires an empty book.
func NewMatchingEngine(opts ...Option) *MatchingEngine {
	e := &MatchingEngine{
		book:     orderbook.NewOrderBook(),
		registry: make(map[uint64]*orderbook.Order),
		metrics:  NopMetrics(),
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

//
// ──────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────
//

// PlaceOrder matches o against the book and returns its state after
// the pass. A rejected order comes back with status Rejected alongside
// the error and is not registered.
func (e *MatchingEngine) PlaceOrder(o orderbook.Order) (orderbook.Order, error) {
	res, err := e.Execute(o)
	return res.Order, err
}

// Execute is PlaceOrder that also reports the trades of the pass.
func (e *MatchingEngine) Execute(o orderbook.Order) (Execution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	defer func() { e.metrics.MatchSeconds.Observe(time.Since(start).Seconds()) }()

	if err := o.Validate(); err != nil {
		return e.reject(o, "invalid", err)
	}
	if _, ok := e.registry[o.ID]; ok {
		return e.reject(o, "duplicate", fmt.Errorf("%w: %d", ErrDuplicateOrder, o.ID))
	}

	e.orderSeq++
	rec := o.Snapshot()
	rec.Seq = e.orderSeq
	e.registry[rec.ID] = &rec
	e.metrics.OrdersPlaced.WithLabelValues(rec.Side.String(), rec.Type.String()).Inc()

	fills := e.book.Place(&rec)
	e.checkInvariants(&rec)

	trades := e.stamp(&rec, fills)
	if len(trades) > 0 {
		e.metrics.Trades.Add(float64(len(trades)))
		if e.recorder != nil {
			if err := e.recorder.Record(trades); err != nil {
				// the match already happened; the book stays authoritative
				e.metrics.RecordFailures.Add(float64(len(trades)))
				e.logger.Error().Err(err).Uint64("order_id", rec.ID).Int("trades", len(trades)).Msg("record trades")
			}
		}
	}
	e.metrics.BookLevels.WithLabelValues(orderbook.Bid.String()).Set(float64(e.book.Bids.Size()))
	e.metrics.BookLevels.WithLabelValues(orderbook.Ask.String()).Set(float64(e.book.Asks.Size()))

	e.logger.Debug().
		Uint64("order_id", rec.ID).
		Stringer("side", rec.Side).
		Stringer("type", rec.Type).
		Stringer("status", rec.Status).
		Str("remaining", rec.Remaining.String()).
		Int("trades", len(trades)).
		Msg("order placed")

	return Execution{Order: rec.Snapshot(), Trades: trades}, nil
}

//
// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────
//

// GetOrderBook returns up to depth levels per side, best first.
func (e *MatchingEngine) GetOrderBook(depth int) (bids, asks []orderbook.Level) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.book.Depth(depth)
}

// GetOrderStatus returns a copy of the registered order.
func (e *MatchingEngine) GetOrderStatus(id uint64) (orderbook.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.registry[id]
	if !ok {
		return orderbook.Order{}, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	return o.Snapshot(), nil
}

//
// ──────────────────────────────────────────────────────────
// Internals
// ──────────────────────────────────────────────────────────
//

func (e *MatchingEngine) reject(o orderbook.Order, reason string, err error) (Execution, error) {
	e.metrics.OrdersRejected.WithLabelValues(reason).Inc()
	e.logger.Debug().Err(err).Uint64("order_id", o.ID).Msg("order rejected")

	out := o.Snapshot()
	out.Status = orderbook.Rejected
	return Execution{Order: out}, err
}

func (e *MatchingEngine) stamp(taker *orderbook.Order, fills []orderbook.Fill) []orderbook.Trade {
	if len(fills) == 0 {
		return nil
	}
	ts := e.now()
	trades := make([]orderbook.Trade, 0, len(fills))
	for _, f := range fills {
		e.tradeSeq++
		trades = append(trades, orderbook.Trade{
			ID:           e.tradeSeq,
			TakerOrderID: taker.ID,
			MakerOrderID: f.MakerID,
			TakerSide:    taker.Side,
			Price:        f.Price,
			Quantity:     f.Quantity,
			ExecutedAt:   ts,
		})
	}
	return trades
}

// checkInvariants panics on state that can no longer be trusted.
func (e *MatchingEngine) checkInvariants(o *orderbook.Order) {
	if o.Remaining.IsNegative() {
		panic(fmt.Sprintf("service: order %d remaining went negative: %s", o.ID, o.Remaining))
	}
	if e.book.Crossed() {
		bid, _ := e.book.BestBid()
		ask, _ := e.book.BestAsk()
		panic(fmt.Sprintf("service: book crossed after order %d: bid %s >= ask %s", o.ID, bid, ask))
	}
}
