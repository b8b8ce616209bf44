package server

import (
	"context"
	"fmt"

	"github.com/cuemby/spotmatch/pkg/engine"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
)

const matchServiceName = "spotmatch.MatchService"

// wire request/response shapes. Prices and quantities travel as decimal
// strings, matching the original's string-encoded decimal wire fields, so a
// client never has to link against a fixed-point decimal library to talk to
// this service.

type PlaceOrderRequest struct {
	OrderID  string
	Symbol   string
	Side     engine.OrderSide
	Type     engine.OrderType
	TIF      engine.TimeInForce
	Price    string
	Quantity string
}

type PlaceOrderResponse struct {
	Accepted bool
	Message  string
}

type CancelOrderRequest struct {
	Symbol  string
	OrderID string
}

type CancelOrderResponse struct {
	Accepted bool
	Message  string
}

type CreateSymbolRequest struct {
	Name              string
	Base              string
	Quote             string
	PricePrecision    int32
	QuantityPrecision int32
	MinQuantity       string
	MaxQuantity       string
	MinNotional       string
	MaxNotional       string
}

type CreateSymbolResponse struct {
	Accepted bool
	Message  string
}

type RemoveSymbolRequest struct {
	Symbol string
}

type RemoveSymbolResponse struct {
	Accepted bool
	Message  string
}

type UpdateSymbolRequest struct {
	Name              string
	Base              string
	Quote             string
	PricePrecision    int32
	QuantityPrecision int32
	MinQuantity       string
	MaxQuantity       string
	MinNotional       string
	MaxNotional       string
}

type UpdateSymbolResponse struct {
	Accepted bool
	Message  string
}

// MatchService is the interface the hand-declared ServiceDesc below is
// registered against. *grpcService satisfies this; *raftnode.Node-style
// registration with a struct HandlerType would make grpc.Server's internal
// reflect.Type.Implements check panic at startup, so this must stay an
// interface, mirroring pkg/transport/service.go's MessageSink.
type MatchService interface {
	placeOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResponse, error)
	cancelOrder(ctx context.Context, req *CancelOrderRequest) (*CancelOrderResponse, error)
	createSymbol(ctx context.Context, req *CreateSymbolRequest) (*CreateSymbolResponse, error)
	updateSymbol(ctx context.Context, req *UpdateSymbolRequest) (*UpdateSymbolResponse, error)
	removeSymbol(ctx context.Context, req *RemoveSymbolRequest) (*RemoveSymbolResponse, error)
}

// grpcService adapts Server to the hand-declared gRPC methods below.
type grpcService struct {
	srv *Server
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func (g *grpcService) placeOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResponse, error) {
	price, err := parseDecimal(req.Price)
	if err != nil {
		return &PlaceOrderResponse{Accepted: false, Message: fmt.Sprintf("invalid price: %v", err)}, nil
	}
	qty, err := parseDecimal(req.Quantity)
	if err != nil {
		return &PlaceOrderResponse{Accepted: false, Message: fmt.Sprintf("invalid quantity: %v", err)}, nil
	}

	in := engine.OrderInput{
		ID:       req.OrderID,
		Symbol:   req.Symbol,
		Side:     req.Side,
		Type:     req.Type,
		TIF:      req.TIF,
		Price:    price,
		Quantity: qty,
	}
	if err := g.srv.PlaceOrder(ctx, in); err != nil {
		return &PlaceOrderResponse{Accepted: false, Message: err.Error()}, nil
	}
	return &PlaceOrderResponse{Accepted: true, Message: "ok"}, nil
}

func (g *grpcService) cancelOrder(ctx context.Context, req *CancelOrderRequest) (*CancelOrderResponse, error) {
	if err := g.srv.CancelOrder(ctx, req.Symbol, req.OrderID); err != nil {
		return &CancelOrderResponse{Accepted: false, Message: err.Error()}, nil
	}
	return &CancelOrderResponse{Accepted: true, Message: "ok"}, nil
}

func (g *grpcService) createSymbol(ctx context.Context, req *CreateSymbolRequest) (*CreateSymbolResponse, error) {
	minQty, err := parseDecimal(req.MinQuantity)
	if err != nil {
		return &CreateSymbolResponse{Message: fmt.Sprintf("invalid min quantity: %v", err)}, nil
	}
	maxQty, err := parseDecimal(req.MaxQuantity)
	if err != nil {
		return &CreateSymbolResponse{Message: fmt.Sprintf("invalid max quantity: %v", err)}, nil
	}
	minNotional, err := parseDecimal(req.MinNotional)
	if err != nil {
		return &CreateSymbolResponse{Message: fmt.Sprintf("invalid min notional: %v", err)}, nil
	}
	maxNotional, err := parseDecimal(req.MaxNotional)
	if err != nil {
		return &CreateSymbolResponse{Message: fmt.Sprintf("invalid max notional: %v", err)}, nil
	}

	in := engine.SymbolInput{
		Name:              req.Name,
		Base:              req.Base,
		Quote:             req.Quote,
		PricePrecision:    req.PricePrecision,
		QuantityPrecision: req.QuantityPrecision,
		MinQuantity:       minQty,
		MaxQuantity:       maxQty,
		MinNotional:       minNotional,
		MaxNotional:       maxNotional,
	}
	if err := g.srv.CreateSymbol(ctx, in); err != nil {
		return &CreateSymbolResponse{Accepted: false, Message: err.Error()}, nil
	}
	return &CreateSymbolResponse{Accepted: true, Message: "ok"}, nil
}

func (g *grpcService) updateSymbol(ctx context.Context, req *UpdateSymbolRequest) (*UpdateSymbolResponse, error) {
	minQty, err := parseDecimal(req.MinQuantity)
	if err != nil {
		return &UpdateSymbolResponse{Message: fmt.Sprintf("invalid min quantity: %v", err)}, nil
	}
	maxQty, err := parseDecimal(req.MaxQuantity)
	if err != nil {
		return &UpdateSymbolResponse{Message: fmt.Sprintf("invalid max quantity: %v", err)}, nil
	}
	minNotional, err := parseDecimal(req.MinNotional)
	if err != nil {
		return &UpdateSymbolResponse{Message: fmt.Sprintf("invalid min notional: %v", err)}, nil
	}
	maxNotional, err := parseDecimal(req.MaxNotional)
	if err != nil {
		return &UpdateSymbolResponse{Message: fmt.Sprintf("invalid max notional: %v", err)}, nil
	}

	in := engine.SymbolInput{
		Name:              req.Name,
		Base:              req.Base,
		Quote:             req.Quote,
		PricePrecision:    req.PricePrecision,
		QuantityPrecision: req.QuantityPrecision,
		MinQuantity:       minQty,
		MaxQuantity:       maxQty,
		MinNotional:       minNotional,
		MaxNotional:       maxNotional,
	}
	if err := g.srv.UpdateSymbol(ctx, in); err != nil {
		return &UpdateSymbolResponse{Accepted: false, Message: err.Error()}, nil
	}
	return &UpdateSymbolResponse{Accepted: true, Message: "ok"}, nil
}

func (g *grpcService) removeSymbol(ctx context.Context, req *RemoveSymbolRequest) (*RemoveSymbolResponse, error) {
	if err := g.srv.RemoveSymbol(ctx, req.Symbol); err != nil {
		return &RemoveSymbolResponse{Accepted: false, Message: err.Error()}, nil
	}
	return &RemoveSymbolResponse{Accepted: true, Message: "ok"}, nil
}

func unaryHandler[Req, Resp any](call func(*grpcService, context.Context, *Req) (*Resp, error), method string) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		svc := srv.(*grpcService)
		if interceptor == nil {
			return call(svc, ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(svc, ctx, req.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

var matchServiceDesc = grpc.ServiceDesc{
	ServiceName: matchServiceName,
	HandlerType: (*MatchService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PlaceOrder", Handler: unaryHandler[PlaceOrderRequest, PlaceOrderResponse]((*grpcService).placeOrder, "/spotmatch.MatchService/PlaceOrder")},
		{MethodName: "CancelOrder", Handler: unaryHandler[CancelOrderRequest, CancelOrderResponse]((*grpcService).cancelOrder, "/spotmatch.MatchService/CancelOrder")},
		{MethodName: "CreateSymbol", Handler: unaryHandler[CreateSymbolRequest, CreateSymbolResponse]((*grpcService).createSymbol, "/spotmatch.MatchService/CreateSymbol")},
		{MethodName: "RemoveSymbol", Handler: unaryHandler[RemoveSymbolRequest, RemoveSymbolResponse]((*grpcService).removeSymbol, "/spotmatch.MatchService/RemoveSymbol")},
		{MethodName: "UpdateSymbol", Handler: unaryHandler[UpdateSymbolRequest, UpdateSymbolResponse]((*grpcService).updateSymbol, "/spotmatch.MatchService/UpdateSymbol")},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "spotmatch/match_service.proto",
}

// RegisterMatchServiceServer wires srv into s as the handler for every
// client-facing RPC (PlaceOrder, CancelOrder, CreateSymbol, RemoveSymbol, UpdateSymbol).
func RegisterMatchServiceServer(s *grpc.Server, srv *Server) {
	s.RegisterService(&matchServiceDesc, &grpcService{srv: srv})
}
