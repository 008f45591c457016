package grpcx

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName      = "roomcoord.admin.v1.RoomAdmin"
	CreateRoomMethod = "/" + ServiceName + "/CreateRoom"
	GetRoomMethod    = "/" + ServiceName + "/GetRoom"
)

// RoomAdminServer работает на well-known типах protobuf: запрос CreateRoom
// и ответы несут поля комнаты в google.protobuf.Struct, GetRoom принимает
// id комнаты в google.protobuf.StringValue.
type RoomAdminServer interface {
	CreateRoom(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRoom(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

var RoomAdminServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RoomAdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateRoom", Handler: createRoomHandler},
		{MethodName: "GetRoom", Handler: getRoomHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "roomcoord/admin/v1",
}

func Register(s grpc.ServiceRegistrar, srv RoomAdminServer) {
	s.RegisterService(&RoomAdminServiceDesc, srv)
}

func createRoomHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RoomAdminServer).CreateRoom(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CreateRoomMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RoomAdminServer).CreateRoom(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getRoomHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RoomAdminServer).GetRoom(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetRoomMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RoomAdminServer).GetRoom(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// RoomAdminClient: клиент для операторских утилит и тестов.
type RoomAdminClient struct {
	cc grpc.ClientConnInterface
}

func NewRoomAdminClient(cc grpc.ClientConnInterface) *RoomAdminClient {
	return &RoomAdminClient{cc: cc}
}

func (c *RoomAdminClient) CreateRoom(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, CreateRoomMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RoomAdminClient) GetRoom(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetRoomMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
