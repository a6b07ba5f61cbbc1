package outbox

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kobara/domain/orderbook"
	"kobara/service"
)

func trade(id uint64) orderbook.Trade {
	return orderbook.Trade{
		ID:           id,
		TakerOrderID: 100 + id,
		MakerOrderID: 200 + id,
		TakerSide:    orderbook.Ask,
		Price:        decimal.RequireFromString("10.25"),
		Quantity:     decimal.RequireFromString("0.5"),
		ExecutedAt:   time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC),
	}
}

func openMem(t *testing.T) *Outbox {
	t.Helper()
	o, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func TestEncodeDecodeTrade(t *testing.T) {
	in := trade(42)
	b, err := EncodeTrade(in)
	require.NoError(t, err)

	out, err := DecodeTrade(b)
	require.NoError(t, err)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.TakerOrderID, out.TakerOrderID)
	assert.Equal(t, in.MakerOrderID, out.MakerOrderID)
	assert.Equal(t, in.TakerSide, out.TakerSide)
	assert.True(t, in.Price.Equal(out.Price))
	assert.True(t, in.Quantity.Equal(out.Quantity))
	assert.True(t, in.ExecutedAt.Equal(out.ExecutedAt))
}

func TestDecodeTradeRejectsTruncated(t *testing.T) {
	b, err := EncodeTrade(trade(1))
	require.NoError(t, err)

	_, err = DecodeTrade(b[:len(b)-3])
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestRecordAndScanInTradeOrder(t *testing.T) {
	o := openMem(t)
	require.NoError(t, o.Record([]orderbook.Trade{trade(3), trade(1)}))
	require.NoError(t, o.Record([]orderbook.Trade{trade(2)}))

	var seqs []uint64
	require.NoError(t, o.ScanPending(0, func(r Record) error {
		assert.Equal(t, StateNew, r.State)
		seqs = append(seqs, r.Seq)
		return nil
	}))
	assert.Equal(t, []uint64{1, 2, 3}, seqs)

	seqs = nil
	require.NoError(t, o.ScanPending(2, func(r Record) error {
		seqs = append(seqs, r.Seq)
		return nil
	}))
	assert.Equal(t, []uint64{1, 2}, seqs)
}

func TestUpdateStateAndAck(t *testing.T) {
	o := openMem(t)
	require.NoError(t, o.Record([]orderbook.Trade{trade(7)}))

	require.NoError(t, o.UpdateState(7, StateFailed, 2))
	rec, err := o.Get(7)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, rec.State)
	assert.Equal(t, uint32(2), rec.Retries)
	assert.NotZero(t, rec.LastAttempt)

	got, err := DecodeTrade(rec.Payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.ID)

	require.NoError(t, o.Ack(7))
	_, err = o.Get(7)
	assert.ErrorIs(t, err, pebble.ErrNotFound)

	n, err := o.Pending()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestScanStopsOnCallbackError(t *testing.T) {
	o := openMem(t)
	require.NoError(t, o.Record([]orderbook.Trade{trade(1), trade(2)}))

	stop := errors.New("stop")
	calls := 0
	err := o.ScanPending(0, func(Record) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestOutboxSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	o, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, o.Record([]orderbook.Trade{trade(5)}))
	require.NoError(t, o.Close())

	o, err = Open(dir)
	require.NoError(t, err)
	defer o.Close()

	n, err := o.Pending()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLastTradeIDTracksHighWaterMark(t *testing.T) {
	o := openMem(t)

	last, err := o.LastTradeID()
	require.NoError(t, err)
	assert.Zero(t, last)

	require.NoError(t, o.Record([]orderbook.Trade{trade(4), trade(9), trade(6)}))
	require.NoError(t, o.Ack(9))

	last, err = o.LastTradeID()
	require.NoError(t, err)
	assert.Equal(t, uint64(9), last)

	// the mark is not a pending event
	n, err := o.Pending()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// runEngine places one crossing pair through an engine backed by the
// outbox in dir, the way the server wires them, and closes the outbox.
func runEngine(t *testing.T, dir string, maker, taker uint64) {
	t.Helper()
	o, err := Open(dir)
	require.NoError(t, err)
	defer o.Close()

	last, err := o.LastTradeID()
	require.NoError(t, err)
	e := service.NewMatchingEngine(service.WithRecorder(o), service.WithTradeSeq(last))

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	price, qty := decimal.NewFromInt(10), decimal.NewFromInt(1)
	_, err = e.PlaceOrder(orderbook.NewOrder(maker, orderbook.Ask, orderbook.Limit, price, qty, ts))
	require.NoError(t, err)
	_, err = e.PlaceOrder(orderbook.NewOrder(taker, orderbook.Bid, orderbook.Limit, price, qty, ts))
	require.NoError(t, err)
}

func TestUndeliveredTradesSurviveEngineRestart(t *testing.T) {
	dir := t.TempDir()
	runEngine(t, dir, 1, 2)
	runEngine(t, dir, 10, 11)

	o, err := Open(dir)
	require.NoError(t, err)
	defer o.Close()

	var got []orderbook.Trade
	require.NoError(t, o.ScanPending(0, func(r Record) error {
		tr, err := DecodeTrade(r.Payload)
		require.NoError(t, err)
		assert.Equal(t, r.Seq, tr.ID)
		got = append(got, tr)
		return nil
	}))
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].ID)
	assert.Equal(t, uint64(2), got[0].TakerOrderID)
	assert.Equal(t, uint64(2), got[1].ID)
	assert.Equal(t, uint64(11), got[1].TakerOrderID)
}

func TestPebbleLoggerUsesZerolog(t *testing.T) {
	var buf bytes.Buffer
	l := pebbleLogger{l: zerolog.New(&buf).Level(zerolog.DebugLevel)}

	l.Infof("[JOB %d] flushed", 3)
	l.Errorf("background error: %s", "boom")

	out := buf.String()
	assert.Contains(t, out, `"level":"debug"`)
	assert.Contains(t, out, `"message":"[JOB 3] flushed"`)
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, "background error: boom")
}

func TestOpenWithLogger(t *testing.T) {
	var buf bytes.Buffer
	dir := t.TempDir()

	o, err := Open(dir, WithLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)))
	require.NoError(t, err)
	require.NoError(t, o.Record([]orderbook.Trade{trade(1)}))
	require.NoError(t, o.Close())

	o, err = Open(dir, WithLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)))
	require.NoError(t, err)
	require.NoError(t, o.Close())

	// whatever pebble reported went out as JSON lines
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) > 0 {
			assert.True(t, bytes.HasPrefix(line, []byte("{")), "line %q", line)
		}
	}
}
