package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joshp123/acconnect/internal/core"
	"github.com/joshp123/acconnect/plugins/acconnect"
)

const (
	methodListDevices = "ListDevices"
	methodGetDevice   = "GetDevice"
	methodSetDevice   = "SetDevice"
	methodHealth      = "Health"
)

// DeviceServer is the server API for acconnect.v1.DeviceService.
type DeviceServer interface {
	ListDevices(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetDevice(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetDevice(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Health(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// Service implements DeviceServer over a device source and controller.
type Service struct {
	source     core.DeviceSource
	controller core.DeviceController
}

func NewService(source core.DeviceSource, controller core.DeviceController) *Service {
	return &Service{source: source, controller: controller}
}

// Register attaches the service to s and publishes its descriptor.
func Register(s *grpc.Server, srv DeviceServer) error {
	if err := RegisterDescriptor(); err != nil {
		return err
	}
	s.RegisterService(&serviceDesc, srv)
	return nil
}

func (s *Service) ListDevices(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	devices := s.source.Snapshots()
	list := make([]any, 0, len(devices))
	for _, dev := range devices {
		value, err := toValue(dev)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "encode device: %v", err)
		}
		list = append(list, value)
	}
	missing := make([]any, 0)
	for _, mac := range s.source.Missing() {
		missing = append(missing, mac)
	}
	out, err := structpb.NewStruct(map[string]any{
		"devices": list,
		"missing": missing,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func (s *Service) GetDevice(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	mac := acconnect.NormalizeMAC(stringField(req, "mac"))
	if mac == "" {
		return nil, status.Error(codes.InvalidArgument, "mac is required")
	}
	for _, dev := range s.source.Snapshots() {
		if dev.MAC != mac {
			continue
		}
		value, err := toValue(dev)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "encode device: %v", err)
		}
		out, err := structpb.NewStruct(value)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "encode response: %v", err)
		}
		return out, nil
	}
	return nil, status.Errorf(codes.NotFound, "device %s not subscribed", mac)
}

func (s *Service) SetDevice(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	mac := stringField(req, "mac")
	if mac == "" {
		return nil, status.Error(codes.InvalidArgument, "mac is required")
	}
	field, ok := acconnect.ParseField(stringField(req, "field"))
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "field must be one of power, mode, fanspeed, temp")
	}
	value := stringField(req, "value")
	if value == "" {
		return nil, status.Error(codes.InvalidArgument, "value is required")
	}

	if err := s.controller.SetDevice(ctx, mac, field, value); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Service) Health(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	value, err := toValue(core.Evaluate(s.source))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode health: %v", err)
	}
	out, err := structpb.NewStruct(value)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, acconnect.ErrUnknownDevice):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, acconnect.ErrNotConnected), errors.Is(err, acconnect.ErrSend):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.InvalidArgument, err.Error())
	}
}

// stringField reads a string or number field as text.
func stringField(req *structpb.Struct, key string) string {
	if req == nil {
		return ""
	}
	value, ok := req.GetFields()[key]
	if !ok {
		return ""
	}
	switch kind := value.GetKind().(type) {
	case *structpb.Value_StringValue:
		return strings.TrimSpace(kind.StringValue)
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(kind.NumberValue, 'f', -1, 64)
	case *structpb.Value_BoolValue:
		if kind.BoolValue {
			return "on"
		}
		return "off"
	default:
		return ""
	}
}

// toValue converts v to a structpb-compatible map via its JSON form.
func toValue(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %T: %w", v, err)
	}
	return out, nil
}

func listDevicesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DeviceServer).ListDevices(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + methodListDevices}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DeviceServer).ListDevices(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getDeviceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DeviceServer).GetDevice(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + methodGetDevice}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DeviceServer).GetDevice(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func setDeviceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DeviceServer).SetDevice(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + methodSetDevice}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DeviceServer).SetDevice(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func healthHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DeviceServer).Health(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + methodHealth}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DeviceServer).Health(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DeviceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodListDevices, Handler: listDevicesHandler},
		{MethodName: methodGetDevice, Handler: getDeviceHandler},
		{MethodName: methodSetDevice, Handler: setDeviceHandler},
		{MethodName: methodHealth, Handler: healthHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: protoFile,
}
