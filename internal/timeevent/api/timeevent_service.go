package api

import (
	"context"

	"google.golang.org/grpc"
)

// TimeEventServiceServer is the server API for the dispatcher's single
// tagged-union RPC (spec.md §4.5).
type TimeEventServiceServer interface {
	TimeEvent(context.Context, *TimeEventRequest) (*TimeEventResponse, error)
}

// TimeEventServiceClient is the client API, implemented by
// timeEventServiceClient below and used by internal/timeevent.ChannelClient.
type TimeEventServiceClient interface {
	TimeEvent(ctx context.Context, in *TimeEventRequest, opts ...grpc.CallOption) (*TimeEventResponse, error)
}

type timeEventServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewTimeEventServiceClient(cc grpc.ClientConnInterface) TimeEventServiceClient {
	return &timeEventServiceClient{cc}
}

func (c *timeEventServiceClient) TimeEvent(ctx context.Context, in *TimeEventRequest, opts ...grpc.CallOption) (*TimeEventResponse, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	out := new(TimeEventResponse)
	if err := c.cc.Invoke(ctx, "/timeevent.TimeEventService/TimeEvent", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func _TimeEventService_TimeEvent_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(TimeEventRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TimeEventServiceServer).TimeEvent(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/timeevent.TimeEventService/TimeEvent"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TimeEventServiceServer).TimeEvent(ctx, req.(*TimeEventRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var TimeEventService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "timeevent.TimeEventService",
	HandlerType: (*TimeEventServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "TimeEvent",
			Handler:    _TimeEventService_TimeEvent_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "timeevent.proto",
}

// RegisterTimeEventServiceServer registers srv with s, the same call shape
// protoc-gen-go-grpc would emit.
func RegisterTimeEventServiceServer(s grpc.ServiceRegistrar, srv TimeEventServiceServer) {
	s.RegisterService(&TimeEventService_ServiceDesc, srv)
}
