package grpcserver

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"

	"kobara/domain/orderbook"
	"kobara/service"
)

// Engine is the part of the matching engine the transport needs.
type Engine interface {
	PlaceOrder(o orderbook.Order) (orderbook.Order, error)
	GetOrderBook(depth int) (bids, asks []orderbook.Level)
	GetOrderStatus(id uint64) (orderbook.Order, error)
}

var _ Engine = (*service.MatchingEngine)(nil)

// Server adapts the matching engine to gRPC.
type Server struct {
	engine Engine
	now    func() time.Time
}

func NewServer(engine Engine) *Server {
	return &Server{engine: engine, now: time.Now}
}

// -------------------- Commands --------------------

func (s *Server) PlaceOrder(
	ctx context.Context,
	req *OrderRequest,
) (*OrderResponse, error) {
	otype := toType(req.OrderType)

	price := decimal.Zero
	if req.Price != "" || otype == orderbook.Limit {
		p, err := decimal.NewFromString(req.Price)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, "Invalid price format")
		}
		price = p
	}
	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "Invalid quantity format")
	}

	o := orderbook.NewOrder(req.Id, toSide(req.Side), otype, price, qty, s.now())
	placed, err := s.engine.PlaceOrder(o)
	if err != nil {
		return nil, toStatus(err)
	}
	return toResponse(placed), nil
}

// -------------------- Queries --------------------

func (s *Server) GetOrderBook(
	ctx context.Context,
	req *GetOrderBookRequest,
) (*OrderBookResponse, error) {
	bids, asks := s.engine.GetOrderBook(int(req.Depth))
	return &OrderBookResponse{
		Bids: toLevels(bids),
		Asks: toLevels(asks),
	}, nil
}

func (s *Server) GetOrderStatus(
	ctx context.Context,
	req *GetOrderStatusRequest,
) (*OrderResponse, error) {
	o, err := s.engine.GetOrderStatus(req.OrderId)
	if err != nil {
		return nil, toStatus(err)
	}
	return toResponse(o), nil
}

// -------------------- Interceptors --------------------

// UnaryLogger logs every unary call with its status code and latency.
func UnaryLogger(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	logger = logger.With().Str("module", "grpc").Logger()
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		ev := logger.Debug()
		if code == codes.Internal || code == codes.Unknown {
			ev = logger.Error()
		}
		ev.Str("method", info.FullMethod).
			Stringer("code", code).
			Dur("took", time.Since(start)).
			Err(err).
			Msg("rpc")
		return resp, err
	}
}

// -------------------- Converters --------------------

func toStatus(err error) error {
	switch {
	case errors.Is(err, orderbook.ErrInvalidOrder):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrDuplicateOrder):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, service.ErrOrderNotFound):
		return status.Error(codes.NotFound, "Order not found")
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func toSide(s int32) orderbook.Side {
	if s == SideBid {
		return orderbook.Bid
	}
	return orderbook.Ask
}

func toType(t int32) orderbook.OrderType {
	if t == OrderTypeLimit {
		return orderbook.Limit
	}
	return orderbook.Market
}

func fromSide(s orderbook.Side) int32 {
	if s == orderbook.Ask {
		return SideAsk
	}
	return SideBid
}

func fromType(t orderbook.OrderType) int32 {
	if t == orderbook.Market {
		return OrderTypeMarket
	}
	return OrderTypeLimit
}

func fromStatus(s orderbook.Status) int32 {
	switch s {
	case orderbook.PartiallyFilled:
		return StatusPartiallyFilled
	case orderbook.Filled:
		return StatusFilled
	case orderbook.Rejected:
		return StatusRejected
	default:
		return StatusNew
	}
}

func toResponse(o orderbook.Order) *OrderResponse {
	return &OrderResponse{
		Id:                o.ID,
		Price:             o.Price.String(),
		Quantity:          o.Quantity.String(),
		RemainingQuantity: o.Remaining.String(),
		Side:              fromSide(o.Side),
		OrderType:         fromType(o.Type),
		Status:            fromStatus(o.Status),
		Timestamp:         timestamppb.New(o.Timestamp),
	}
}

func toLevels(levels []orderbook.Level) []*OrderBookLevel {
	out := make([]*OrderBookLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, &OrderBookLevel{
			Price:    l.Price.String(),
			Quantity: l.Quantity.String(),
		})
	}
	return out
}
