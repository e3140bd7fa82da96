package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
)

// GameChannelServiceServer runs on each game channel; the dispatcher calls
// into it to broadcast field-boss events and to create global-portal rooms
// (spec.md §4.5's "dispatches a room-creation RPC to its channel").
type GameChannelServiceServer interface {
	NotifyFieldBossEvent(context.Context, *FieldBossNotification) (*emptypb.Empty, error)
	CreateGlobalPortalRoom(context.Context, *CreateGlobalPortalRoomRequest) (*CreateGlobalPortalRoomResponse, error)
}

type GameChannelServiceClient interface {
	NotifyFieldBossEvent(ctx context.Context, in *FieldBossNotification, opts ...grpc.CallOption) (*emptypb.Empty, error)
	CreateGlobalPortalRoom(ctx context.Context, in *CreateGlobalPortalRoomRequest, opts ...grpc.CallOption) (*CreateGlobalPortalRoomResponse, error)
}

type gameChannelServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewGameChannelServiceClient(cc grpc.ClientConnInterface) GameChannelServiceClient {
	return &gameChannelServiceClient{cc}
}

func (c *gameChannelServiceClient) NotifyFieldBossEvent(ctx context.Context, in *FieldBossNotification, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, "/timeevent.GameChannelService/NotifyFieldBossEvent", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *gameChannelServiceClient) CreateGlobalPortalRoom(ctx context.Context, in *CreateGlobalPortalRoomRequest, opts ...grpc.CallOption) (*CreateGlobalPortalRoomResponse, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	out := new(CreateGlobalPortalRoomResponse)
	if err := c.cc.Invoke(ctx, "/timeevent.GameChannelService/CreateGlobalPortalRoom", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func _GameChannelService_NotifyFieldBossEvent_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(FieldBossNotification)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GameChannelServiceServer).NotifyFieldBossEvent(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/timeevent.GameChannelService/NotifyFieldBossEvent"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GameChannelServiceServer).NotifyFieldBossEvent(ctx, req.(*FieldBossNotification))
	}
	return interceptor(ctx, in, info, handler)
}

func _GameChannelService_CreateGlobalPortalRoom_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CreateGlobalPortalRoomRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GameChannelServiceServer).CreateGlobalPortalRoom(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/timeevent.GameChannelService/CreateGlobalPortalRoom"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GameChannelServiceServer).CreateGlobalPortalRoom(ctx, req.(*CreateGlobalPortalRoomRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var GameChannelService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "timeevent.GameChannelService",
	HandlerType: (*GameChannelServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "NotifyFieldBossEvent", Handler: _GameChannelService_NotifyFieldBossEvent_Handler},
		{MethodName: "CreateGlobalPortalRoom", Handler: _GameChannelService_CreateGlobalPortalRoom_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "timeevent.proto",
}

func RegisterGameChannelServiceServer(s grpc.ServiceRegistrar, srv GameChannelServiceServer) {
	s.RegisterService(&GameChannelService_ServiceDesc, srv)
}
