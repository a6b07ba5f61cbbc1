package grpcserver

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Wire enums. Side and type decode leniently: 0 is Bid /
// Limit, any other value is Ask / Market.
const (
	SideBid int32 = 0
	SideAsk int32 = 1

	OrderTypeLimit  int32 = 0
	OrderTypeMarket int32 = 1

	StatusNew             int32 = 0
	StatusPartiallyFilled int32 = 1
	StatusFilled          int32 = 2
	StatusRejected        int32 = 3
)

// Messages are hand-encoded in protobuf wire format, field numbers as
// in order_book.proto. Decimals travel as strings so no precision is
// lost.

type OrderRequest struct {
	Id        uint64
	Price     string
	Quantity  string
	Side      int32
	OrderType int32
}

type OrderResponse struct {
	Id                uint64
	Price             string
	Quantity          string
	RemainingQuantity string
	Side              int32
	OrderType         int32
	Status            int32
	Timestamp         *timestamppb.Timestamp
}

type GetOrderBookRequest struct {
	Depth uint32
}

type OrderBookLevel struct {
	Price    string
	Quantity string
}

type OrderBookResponse struct {
	Bids []*OrderBookLevel
	Asks []*OrderBookLevel
}

type GetOrderStatusRequest struct {
	OrderId uint64
}

// wireMessage is implemented by every message above.
type wireMessage interface {
	marshalWire() ([]byte, error)
	unmarshalWire(b []byte) error
}

// -------------------- OrderRequest --------------------

func (m *OrderRequest) marshalWire() ([]byte, error) {
	var b []byte
	b = appendVarint(b, 1, m.Id)
	b = appendString(b, 2, m.Price)
	b = appendString(b, 3, m.Quantity)
	b = appendVarint(b, 4, int32Wire(m.Side))
	b = appendVarint(b, 5, int32Wire(m.OrderType))
	return b, nil
}

func (m *OrderRequest) unmarshalWire(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n := consumeVarint(typ, b)
			m.Id = v
			return n, nil
		case 2:
			v, n := consumeBytes(typ, b)
			m.Price = string(v)
			return n, nil
		case 3:
			v, n := consumeBytes(typ, b)
			m.Quantity = string(v)
			return n, nil
		case 4:
			v, n := consumeVarint(typ, b)
			m.Side = int32(v)
			return n, nil
		case 5:
			v, n := consumeVarint(typ, b)
			m.OrderType = int32(v)
			return n, nil
		}
		return 0, nil
	})
}

// -------------------- OrderResponse --------------------

func (m *OrderResponse) marshalWire() ([]byte, error) {
	var b []byte
	b = appendVarint(b, 1, m.Id)
	b = appendString(b, 2, m.Price)
	b = appendString(b, 3, m.Quantity)
	b = appendString(b, 4, m.RemainingQuantity)
	b = appendVarint(b, 5, int32Wire(m.Side))
	b = appendVarint(b, 6, int32Wire(m.OrderType))
	b = appendVarint(b, 7, int32Wire(m.Status))
	if m.Timestamp != nil {
		ts, err := proto.Marshal(m.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("encode timestamp: %w", err)
		}
		b = appendMessage(b, 8, ts)
	}
	return b, nil
}

func (m *OrderResponse) unmarshalWire(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n := consumeVarint(typ, b)
			m.Id = v
			return n, nil
		case 2:
			v, n := consumeBytes(typ, b)
			m.Price = string(v)
			return n, nil
		case 3:
			v, n := consumeBytes(typ, b)
			m.Quantity = string(v)
			return n, nil
		case 4:
			v, n := consumeBytes(typ, b)
			m.RemainingQuantity = string(v)
			return n, nil
		case 5:
			v, n := consumeVarint(typ, b)
			m.Side = int32(v)
			return n, nil
		case 6:
			v, n := consumeVarint(typ, b)
			m.OrderType = int32(v)
			return n, nil
		case 7:
			v, n := consumeVarint(typ, b)
			m.Status = int32(v)
			return n, nil
		case 8:
			v, n := consumeBytes(typ, b)
			if n > 0 {
				ts := new(timestamppb.Timestamp)
				if err := proto.Unmarshal(v, ts); err != nil {
					return n, fmt.Errorf("decode timestamp: %w", err)
				}
				m.Timestamp = ts
			}
			return n, nil
		}
		return 0, nil
	})
}

// -------------------- Order book --------------------

func (m *GetOrderBookRequest) marshalWire() ([]byte, error) {
	return appendVarint(nil, 1, uint64(m.Depth)), nil
}

func (m *GetOrderBookRequest) unmarshalWire(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return 0, nil
		}
		v, n := consumeVarint(typ, b)
		m.Depth = uint32(v)
		return n, nil
	})
}

func (m *OrderBookLevel) marshalWire() ([]byte, error) {
	var b []byte
	b = appendString(b, 1, m.Price)
	b = appendString(b, 2, m.Quantity)
	return b, nil
}

func (m *OrderBookLevel) unmarshalWire(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n := consumeBytes(typ, b)
			m.Price = string(v)
			return n, nil
		case 2:
			v, n := consumeBytes(typ, b)
			m.Quantity = string(v)
			return n, nil
		}
		return 0, nil
	})
}

func (m *OrderBookResponse) marshalWire() ([]byte, error) {
	var b []byte
	for _, side := range []struct {
		num    protowire.Number
		levels []*OrderBookLevel
	}{{1, m.Bids}, {2, m.Asks}} {
		for _, l := range side.levels {
			lb, err := l.marshalWire()
			if err != nil {
				return nil, err
			}
			b = appendMessage(b, side.num, lb)
		}
	}
	return b, nil
}

func (m *OrderBookResponse) unmarshalWire(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 && num != 2 {
			return 0, nil
		}
		v, n := consumeBytes(typ, b)
		if n <= 0 {
			return n, nil
		}
		l := new(OrderBookLevel)
		if err := l.unmarshalWire(v); err != nil {
			return n, err
		}
		if num == 1 {
			m.Bids = append(m.Bids, l)
		} else {
			m.Asks = append(m.Asks, l)
		}
		return n, nil
	})
}

func (m *GetOrderStatusRequest) marshalWire() ([]byte, error) {
	return appendVarint(nil, 1, m.OrderId), nil
}

func (m *GetOrderStatusRequest) unmarshalWire(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return 0, nil
		}
		v, n := consumeVarint(typ, b)
		m.OrderId = v
		return n, nil
	})
}

// -------------------- Wire helpers --------------------

// proto3 leaves zero scalars off the wire.

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, m []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}

// int32Wire sign-extends like protobuf int32, so negatives take ten bytes.
func int32Wire(v int32) uint64 {
	return uint64(int64(v))
}

// consumeFields walks b field by field. field returns how many bytes it
// consumed; zero means unknown and the value is skipped.
func consumeFields(b []byte, field func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		n, err := field(num, typ, b)
		if err != nil {
			return err
		}
		if n == 0 {
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}

// consumeVarint and consumeBytes return n == 0 on a wire type mismatch
// so the field is skipped as unknown.

func consumeVarint(typ protowire.Type, b []byte) (uint64, int) {
	if typ != protowire.VarintType {
		return 0, 0
	}
	return protowire.ConsumeVarint(b)
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int) {
	if typ != protowire.BytesType {
		return nil, 0
	}
	return protowire.ConsumeBytes(b)
}
