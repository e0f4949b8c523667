package grpc_control

import (
	"context"
	"encoding/json"

	"market-feed/src/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

// The control plane exchanges plain Go structs encoded as JSON. Clients
// select the codec with grpc.CallContentSubtype(CodecName), which the
// generated-style client below does on every call.

const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// -----------------------------------------------------------------------------
// Messages
// -----------------------------------------------------------------------------

type Empty struct{}

type StatusResponse struct {
	State       string                 `json:"state"`
	Attempts    int32                  `json:"attempts"`
	Streams     []models.MStreamStatus `json:"streams"`
	MarketsOpen bool                   `json:"markets_open"`
}

type ControlResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	CurrentState string `json:"current_state"`
}

type ListSymbolsResponse struct {
	Symbols []models.MSymbol `json:"symbols"`
}

type AddSymbolsRequest struct {
	Symbols []models.MSymbol `json:"symbols"`
}

type UpdateSymbolsResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	SymbolCount int32  `json:"symbol_count"`
}

// -----------------------------------------------------------------------------
// Server API
// -----------------------------------------------------------------------------

const (
	FeedControl_ServiceName = "feedcontrol.FeedControl"

	FeedControl_GetStatus_FullMethodName   = "/feedcontrol.FeedControl/GetStatus"
	FeedControl_Reconnect_FullMethodName   = "/feedcontrol.FeedControl/Reconnect"
	FeedControl_ListSymbols_FullMethodName = "/feedcontrol.FeedControl/ListSymbols"
	FeedControl_AddSymbols_FullMethodName  = "/feedcontrol.FeedControl/AddSymbols"
)

type FeedControlServer interface {
	GetStatus(context.Context, *Empty) (*StatusResponse, error)
	Reconnect(context.Context, *Empty) (*ControlResponse, error)
	ListSymbols(context.Context, *Empty) (*ListSymbolsResponse, error)
	AddSymbols(context.Context, *AddSymbolsRequest) (*UpdateSymbolsResponse, error)
	mustEmbedUnimplementedFeedControlServer()
}

// UnimplementedFeedControlServer must be embedded for forward compatibility.
type UnimplementedFeedControlServer struct{}

func (UnimplementedFeedControlServer) GetStatus(context.Context, *Empty) (*StatusResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetStatus not implemented")
}
func (UnimplementedFeedControlServer) Reconnect(context.Context, *Empty) (*ControlResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Reconnect not implemented")
}
func (UnimplementedFeedControlServer) ListSymbols(context.Context, *Empty) (*ListSymbolsResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListSymbols not implemented")
}
func (UnimplementedFeedControlServer) AddSymbols(context.Context, *AddSymbolsRequest) (*UpdateSymbolsResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method AddSymbols not implemented")
}
func (UnimplementedFeedControlServer) mustEmbedUnimplementedFeedControlServer() {}

func RegisterFeedControlServer(s grpc.ServiceRegistrar, srv FeedControlServer) {
	s.RegisterService(&FeedControl_ServiceDesc, srv)
}

// -----------------------------------------------------------------------------

func _FeedControl_GetStatus_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FeedControlServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FeedControl_GetStatus_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FeedControlServer).GetStatus(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _FeedControl_Reconnect_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FeedControlServer).Reconnect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FeedControl_Reconnect_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FeedControlServer).Reconnect(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _FeedControl_ListSymbols_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FeedControlServer).ListSymbols(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FeedControl_ListSymbols_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FeedControlServer).ListSymbols(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _FeedControl_AddSymbols_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AddSymbolsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FeedControlServer).AddSymbols(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FeedControl_AddSymbols_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FeedControlServer).AddSymbols(ctx, req.(*AddSymbolsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// FeedControl_ServiceDesc is the grpc.ServiceDesc for the FeedControl service.
var FeedControl_ServiceDesc = grpc.ServiceDesc{
	ServiceName: FeedControl_ServiceName,
	HandlerType: (*FeedControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: _FeedControl_GetStatus_Handler},
		{MethodName: "Reconnect", Handler: _FeedControl_Reconnect_Handler},
		{MethodName: "ListSymbols", Handler: _FeedControl_ListSymbols_Handler},
		{MethodName: "AddSymbols", Handler: _FeedControl_AddSymbols_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "feedcontrol",
}

// -----------------------------------------------------------------------------
// Client API
// -----------------------------------------------------------------------------

type FeedControlClient interface {
	GetStatus(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*StatusResponse, error)
	Reconnect(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*ControlResponse, error)
	ListSymbols(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*ListSymbolsResponse, error)
	AddSymbols(ctx context.Context, in *AddSymbolsRequest, opts ...grpc.CallOption) (*UpdateSymbolsResponse, error)
}

type feedControlClient struct {
	cc grpc.ClientConnInterface
}

func NewFeedControlClient(cc grpc.ClientConnInterface) FeedControlClient {
	return &feedControlClient{cc}
}

func (c *feedControlClient) invoke(ctx context.Context, method string, in, out interface{}, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *feedControlClient) GetStatus(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.invoke(ctx, FeedControl_GetStatus_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *feedControlClient) Reconnect(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*ControlResponse, error) {
	out := new(ControlResponse)
	if err := c.invoke(ctx, FeedControl_Reconnect_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *feedControlClient) ListSymbols(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*ListSymbolsResponse, error) {
	out := new(ListSymbolsResponse)
	if err := c.invoke(ctx, FeedControl_ListSymbols_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *feedControlClient) AddSymbols(ctx context.Context, in *AddSymbolsRequest, opts ...grpc.CallOption) (*UpdateSymbolsResponse, error) {
	out := new(UpdateSymbolsResponse)
	if err := c.invoke(ctx, FeedControl_AddSymbols_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
