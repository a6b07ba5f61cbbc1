package outbox

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"

	"kobara/domain/orderbook"
)

// Trade events use the protobuf wire format so consumers can decode
// them with a generated message:
//
//	message TradeEvent {
//	  uint64 trade_id = 1;
//	  uint64 taker_order_id = 2;
//	  uint64 maker_order_id = 3;
//	  int32  taker_side = 4;
//	  string price = 5;
//	  string quantity = 6;
//	  google.protobuf.Timestamp executed_at = 7;
//	}
const (
	fieldTradeID      protowire.Number = 1
	fieldTakerOrderID protowire.Number = 2
	fieldMakerOrderID protowire.Number = 3
	fieldTakerSide    protowire.Number = 4
	fieldPrice        protowire.Number = 5
	fieldQuantity     protowire.Number = 6
	fieldExecutedAt   protowire.Number = 7
)

var ErrMalformedEvent = errors.New("malformed trade event")

// EncodeTrade serializes t as a TradeEvent.
func EncodeTrade(t orderbook.Trade) ([]byte, error) {
	ts, err := proto.Marshal(timestamppb.New(t.ExecutedAt))
	if err != nil {
		return nil, fmt.Errorf("encode executed_at: %w", err)
	}

	var b []byte
	b = protowire.AppendTag(b, fieldTradeID, protowire.VarintType)
	b = protowire.AppendVarint(b, t.ID)
	b = protowire.AppendTag(b, fieldTakerOrderID, protowire.VarintType)
	b = protowire.AppendVarint(b, t.TakerOrderID)
	b = protowire.AppendTag(b, fieldMakerOrderID, protowire.VarintType)
	b = protowire.AppendVarint(b, t.MakerOrderID)
	b = protowire.AppendTag(b, fieldTakerSide, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(t.TakerSide))
	b = protowire.AppendTag(b, fieldPrice, protowire.BytesType)
	b = protowire.AppendString(b, t.Price.String())
	b = protowire.AppendTag(b, fieldQuantity, protowire.BytesType)
	b = protowire.AppendString(b, t.Quantity.String())
	b = protowire.AppendTag(b, fieldExecutedAt, protowire.BytesType)
	b = protowire.AppendBytes(b, ts)
	return b, nil
}

// DecodeTrade parses a TradeEvent. Unknown fields are skipped.
func DecodeTrade(b []byte) (orderbook.Trade, error) {
	var t orderbook.Trade
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return t, fmt.Errorf("%w: %v", ErrMalformedEvent, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.VarintType && num <= fieldTakerSide:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return t, fmt.Errorf("%w: field %d: %v", ErrMalformedEvent, num, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldTradeID:
				t.ID = v
			case fieldTakerOrderID:
				t.TakerOrderID = v
			case fieldMakerOrderID:
				t.MakerOrderID = v
			case fieldTakerSide:
				t.TakerSide = orderbook.Side(v)
			}

		case typ == protowire.BytesType && num >= fieldPrice && num <= fieldExecutedAt:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return t, fmt.Errorf("%w: field %d: %v", ErrMalformedEvent, num, protowire.ParseError(n))
			}
			b = b[n:]
			if err := decodeBytesField(&t, num, v); err != nil {
				return t, err
			}

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return t, fmt.Errorf("%w: field %d: %v", ErrMalformedEvent, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return t, nil
}

func decodeBytesField(t *orderbook.Trade, num protowire.Number, v []byte) error {
	switch num {
	case fieldPrice, fieldQuantity:
		d, err := decimal.NewFromString(string(v))
		if err != nil {
			return fmt.Errorf("%w: field %d: %v", ErrMalformedEvent, num, err)
		}
		if num == fieldPrice {
			t.Price = d
		} else {
			t.Quantity = d
		}
	case fieldExecutedAt:
		var ts timestamppb.Timestamp
		if err := proto.Unmarshal(v, &ts); err != nil {
			return fmt.Errorf("%w: executed_at: %v", ErrMalformedEvent, err)
		}
		t.ExecutedAt = ts.AsTime()
	}
	return nil
}
