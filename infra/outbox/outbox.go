package outbox

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/rs/zerolog"

	"kobara/domain/orderbook"
)

// -------------------- State --------------------

type State uint8

const (
	StateNew State = iota
	StateSent
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Record --------------------

// Record is one trade event waiting for delivery. Acked records are
// deleted, so anything still stored is pending.
type Record struct {
	Seq         uint64
	State       State
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

// binary encoding: [state:1][retries:4][lastAttempt:8][payload...]
const headerLen = 1 + 4 + 8

func encodeRecord(r Record) []byte {
	buf := make([]byte, headerLen+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	copy(buf[headerLen:], r.Payload)
	return buf
}

func decodeRecord(seq uint64, b []byte) (Record, error) {
	if len(b) < headerLen {
		return Record{}, errors.New("outbox: record shorter than header")
	}
	payload := make([]byte, len(b)-headerLen)
	copy(payload, b[headerLen:])
	return Record{
		Seq:         seq,
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     payload,
	}, nil
}

// -------------------- Outbox --------------------

// Outbox is a pebble-backed queue of trade events keyed by trade id.
type Outbox struct {
	db *pebble.DB
}

// Option configures Open.
type Option func(*pebble.Options)

// WithLogger routes pebble's own event log through l.
func WithLogger(l zerolog.Logger) Option {
	return func(o *pebble.Options) { o.Logger = pebbleLogger{l: l} }
}

// Open opens the outbox under dir. An empty dir keeps the store in
// memory for the life of the process.
func Open(dir string, opts ...Option) (*Outbox, error) {
	po := &pebble.Options{Logger: pebbleLogger{l: zerolog.Nop()}}
	if dir == "" {
		po.FS = vfs.NewMem()
	}
	for _, opt := range opts {
		opt(po)
	}
	db, err := pebble.Open(dir, po)
	if err != nil {
		return nil, fmt.Errorf("open outbox %q: %w", dir, err)
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// -------------------- API --------------------

// Record stores trades as NEW events in one synced batch and advances
// the stored trade id high-water mark. It satisfies
// service.TradeRecorder.
func (o *Outbox) Record(trades []orderbook.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	last, err := o.LastTradeID()
	if err != nil {
		return err
	}

	batch := o.db.NewBatch()
	defer batch.Close()

	for _, t := range trades {
		payload, err := EncodeTrade(t)
		if err != nil {
			return err
		}
		rec := Record{State: StateNew, Payload: payload}
		if err := batch.Set(keyFor(t.ID), encodeRecord(rec), nil); err != nil {
			return err
		}
		last = max(last, t.ID)
	}

	var mark [8]byte
	binary.BigEndian.PutUint64(mark[:], last)
	if err := batch.Set([]byte(lastTradeKey), mark[:], nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

// LastTradeID is the highest trade id ever recorded, acked or not, or
// zero for a fresh outbox. Trade ids issued after a restart must start
// above it or they would overwrite undelivered events.
func (o *Outbox) LastTradeID() (uint64, error) {
	val, closer, err := o.db.Get([]byte(lastTradeKey))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()

	if len(val) != 8 {
		return 0, fmt.Errorf("outbox: high-water mark is %d bytes", len(val))
	}
	return binary.BigEndian.Uint64(val), nil
}

// UpdateState records a delivery attempt.
func (o *Outbox) UpdateState(seq uint64, state State, retries uint32) error {
	rec, err := o.Get(seq)
	if err != nil {
		return err
	}
	rec.State = state
	rec.Retries = retries
	rec.LastAttempt = time.Now().UnixNano()
	return o.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync)
}

// Ack removes a delivered record.
func (o *Outbox) Ack(seq uint64) error {
	return o.db.Delete(keyFor(seq), pebble.Sync)
}

// Get returns the current record for a trade.
func (o *Outbox) Get(seq uint64) (Record, error) {
	val, closer, err := o.db.Get(keyFor(seq))
	if err != nil {
		return Record{}, err
	}
	defer closer.Close()

	return decodeRecord(seq, val)
}

// -------------------- Scan --------------------

// ScanPending visits up to limit stored records in trade-id order.
// A limit <= 0 visits everything. Returning an error from fn stops
// the scan and is passed through.
func (o *Outbox) ScanPending(limit int, fn func(Record) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	seen := 0
	for iter.First(); iter.Valid(); iter.Next() {
		if limit > 0 && seen >= limit {
			break
		}
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		rec, err := decodeRecord(seq, iter.Value())
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
		seen++
	}
	return iter.Error()
}

// Pending counts stored records.
func (o *Outbox) Pending() (int, error) {
	n := 0
	err := o.ScanPending(0, func(Record) error {
		n++
		return nil
	})
	return n, err
}

// -------------------- Helpers --------------------

const (
	keyPrefix = "trade/"

	// sorts before keyPrefix, so pending scans never see it
	lastTradeKey = "meta/last_trade_id"
)

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, seq))
}

func parseKey(b []byte) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(string(bytes.TrimPrefix(b, []byte(keyPrefix))), "%d", &seq)
	return seq, err
}

// pebbleLogger adapts zerolog to pebble.Logger. Flush and compaction
// chatter goes to debug.
type pebbleLogger struct {
	l zerolog.Logger
}

func (p pebbleLogger) Infof(format string, args ...interface{}) {
	p.l.Debug().Msgf(format, args...)
}

func (p pebbleLogger) Errorf(format string, args ...interface{}) {
	p.l.Error().Msgf(format, args...)
}

func (p pebbleLogger) Fatalf(format string, args ...interface{}) {
	p.l.Fatal().Msgf(format, args...)
}
