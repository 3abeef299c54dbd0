package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// DeviceClient is a thin client for acconnect.v1.DeviceService.
type DeviceClient struct {
	cc grpc.ClientConnInterface
}

func NewDeviceClient(cc grpc.ClientConnInterface) *DeviceClient {
	return &DeviceClient{cc: cc}
}

func (c *DeviceClient) ListDevices(ctx context.Context) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(methodListDevices), &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DeviceClient) GetDevice(ctx context.Context, mac string) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"mac": mac})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(methodGetDevice), in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DeviceClient) SetDevice(ctx context.Context, mac, field, value string) error {
	in, err := structpb.NewStruct(map[string]any{
		"mac":   mac,
		"field": field,
		"value": value,
	})
	if err != nil {
		return err
	}
	return c.cc.Invoke(ctx, fullMethod(methodSetDevice), in, &emptypb.Empty{})
}

func (c *DeviceClient) Health(ctx context.Context) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(methodHealth), &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}
