package collective

import (
	"context"

	"google.golang.org/grpc"
)

const (
	ServiceName = "pixmesh.collective.v1.Collective"

	Collective_Join_FullMethodName     = "/" + ServiceName + "/Join"
	Collective_Exchange_FullMethodName = "/" + ServiceName + "/Exchange"
)

// CollectiveClient is the client API for the Collective service.
type CollectiveClient interface {
	Join(ctx context.Context, in *JoinRequest, opts ...grpc.CallOption) (*JoinResponse, error)
	Exchange(ctx context.Context, in *ExchangeRequest, opts ...grpc.CallOption) (*ExchangeResponse, error)
}

type collectiveClient struct {
	cc grpc.ClientConnInterface
}

// NewCollectiveClient returns a client that always selects CodecName.
func NewCollectiveClient(cc grpc.ClientConnInterface) CollectiveClient {
	return &collectiveClient{cc}
}

func (c *collectiveClient) Join(ctx context.Context, in *JoinRequest, opts ...grpc.CallOption) (*JoinResponse, error) {
	out := new(JoinResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, Collective_Join_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *collectiveClient) Exchange(ctx context.Context, in *ExchangeRequest, opts ...grpc.CallOption) (*ExchangeResponse, error) {
	out := new(ExchangeResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, Collective_Exchange_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// CollectiveServer is the server API for the Collective service.
type CollectiveServer interface {
	Join(context.Context, *JoinRequest) (*JoinResponse, error)
	Exchange(context.Context, *ExchangeRequest) (*ExchangeResponse, error)
}

// RegisterCollectiveServer registers srv with s.
func RegisterCollectiveServer(s grpc.ServiceRegistrar, srv CollectiveServer) {
	s.RegisterService(&Collective_ServiceDesc, srv)
}

func _Collective_Join_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(JoinRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CollectiveServer).Join(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Collective_Join_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CollectiveServer).Join(ctx, req.(*JoinRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Collective_Exchange_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ExchangeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CollectiveServer).Exchange(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Collective_Exchange_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CollectiveServer).Exchange(ctx, req.(*ExchangeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Collective_ServiceDesc is the grpc.ServiceDesc for the Collective service.
var Collective_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CollectiveServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Join",
			Handler:    _Collective_Join_Handler,
		},
		{
			MethodName: "Exchange",
			Handler:    _Collective_Exchange_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "collective.proto",
}
