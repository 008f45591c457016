package grpcx

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/cwrk-planet/roomcoord/internal/coordinator"
	"github.com/cwrk-planet/roomcoord/internal/domain"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type Rooms interface {
	CreateRoom(ctx context.Context, creatorID string, req coordinator.CreateRoom) (domain.Snapshot, error)
	ViewRoom(ctx context.Context, roomID string) (domain.Snapshot, error)
}

type Server struct {
	rooms Rooms
}

func NewServer(rooms Rooms) *Server {
	return &Server{rooms: rooms}
}

func (s *Server) CreateRoom(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req coordinator.CreateRoom
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, string(domain.KindInvalidRequest))
	}
	snap, err := s.rooms.CreateRoom(ctx, "", req)
	if err != nil {
		return nil, toStatus(err)
	}
	return snapshotStruct(snap)
}

func (s *Server) GetRoom(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	snap, err := s.rooms.ViewRoom(ctx, in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return snapshotStruct(snap)
}

// fromStruct раскладывает Struct по json-тегам dst.
func fromStruct(in *structpb.Struct, dst any) error {
	if in == nil {
		return nil
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// snapshotStruct: снапшот с теми же именами полей, что и в ws-событиях.
func snapshotStruct(snap domain.Snapshot) (*structpb.Struct, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode room")
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Error(codes.Internal, "encode room")
	}
	return out, nil
}

func toStatus(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, err.Error())
	}

	kind := domain.KindOf(err)
	switch kind {
	case domain.KindRoomNotFound:
		return status.Error(codes.NotFound, string(kind))
	case domain.KindRoomClosed, domain.KindRoomFull, domain.KindUserAlreadyInRoom:
		return status.Error(codes.FailedPrecondition, string(kind))
	case domain.KindRateLimited:
		return status.Error(codes.ResourceExhausted, string(kind))
	case domain.KindInternal:
		return status.Error(codes.Internal, "internal error")
	default:
		return status.Error(codes.InvalidArgument, string(kind))
	}
}
