package grpcserver

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "kobara.v1.OrderBookService"

const (
	methodPlaceOrder     = "/" + serviceName + "/PlaceOrder"
	methodGetOrderBook   = "/" + serviceName + "/GetOrderBook"
	methodGetOrderStatus = "/" + serviceName + "/GetOrderStatus"
)

// OrderBookServiceServer is the server API for kobara.v1.OrderBookService.
type OrderBookServiceServer interface {
	PlaceOrder(context.Context, *OrderRequest) (*OrderResponse, error)
	GetOrderBook(context.Context, *GetOrderBookRequest) (*OrderBookResponse, error)
	GetOrderStatus(context.Context, *GetOrderStatusRequest) (*OrderResponse, error)
}

// RegisterOrderBookServiceServer attaches srv to s.
func RegisterOrderBookServiceServer(s grpc.ServiceRegistrar, srv OrderBookServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*OrderBookServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PlaceOrder", Handler: placeOrderHandler},
		{MethodName: "GetOrderBook", Handler: getOrderBookHandler},
		{MethodName: "GetOrderStatus", Handler: getOrderStatusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "api/grpcserver/order_book.proto",
}

func placeOrderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(OrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderBookServiceServer).PlaceOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPlaceOrder}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrderBookServiceServer).PlaceOrder(ctx, req.(*OrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getOrderBookHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetOrderBookRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderBookServiceServer).GetOrderBook(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetOrderBook}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrderBookServiceServer).GetOrderBook(ctx, req.(*GetOrderBookRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getOrderStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetOrderStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderBookServiceServer).GetOrderStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetOrderStatus}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrderBookServiceServer).GetOrderStatus(ctx, req.(*GetOrderStatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// -------------------- Client --------------------

// Client calls OrderBookService.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) PlaceOrder(ctx context.Context, in *OrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	if err := c.cc.Invoke(ctx, methodPlaceOrder, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetOrderBook(ctx context.Context, in *GetOrderBookRequest, opts ...grpc.CallOption) (*OrderBookResponse, error) {
	out := new(OrderBookResponse)
	if err := c.cc.Invoke(ctx, methodGetOrderBook, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetOrderStatus(ctx context.Context, in *GetOrderStatusRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	if err := c.cc.Invoke(ctx, methodGetOrderStatus, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
