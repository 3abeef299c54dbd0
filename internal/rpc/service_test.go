package rpc

import (
	"context"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/joshp123/acconnect/plugins/acconnect"
)

type fakeDevices struct {
	state    acconnect.State
	devices  []acconnect.DeviceSnapshot
	missing  []string
	setErr   error
	lastSet  []string
	setCalls int
}

func (f *fakeDevices) Snapshots() []acconnect.DeviceSnapshot { return f.devices }

func (f *fakeDevices) Missing() []string { return f.missing }

func (f *fakeDevices) State() acconnect.State { return f.state }

func (f *fakeDevices) SetDevice(_ context.Context, mac string, field acconnect.Field, value string) error {
	f.setCalls++
	f.lastSet = []string{mac, string(field), value}
	return f.setErr
}

func dialService(t *testing.T, fake *fakeDevices) *DeviceClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	require.NoError(t, Register(server, NewService(fake, fake)))
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewDeviceClient(conn)
}

func sampleDevices() *fakeDevices {
	return &fakeDevices{
		state: acconnect.StateOpen,
		devices: []acconnect.DeviceSnapshot{{
			DeviceInfo: acconnect.DeviceInfo{MAC: "AA:BB:CC:DD:EE:01", Name: "Living room"},
			State:      acconnect.DeviceState{Power: "on", Mode: "cool", FanSpeed: "auto", Temperature: "22"},
		}},
		missing: []string{"AA:BB:CC:DD:EE:02"},
	}
}

func TestListDevices(t *testing.T) {
	client := dialService(t, sampleDevices())

	out, err := client.ListDevices(context.Background())
	require.NoError(t, err)

	data := out.AsMap()
	devices, ok := data["devices"].([]any)
	require.True(t, ok)
	require.Len(t, devices, 1)
	first := devices[0].(map[string]any)
	assert.Equal(t, "AA:BB:CC:DD:EE:01", first["mac"])
	assert.Equal(t, "Living room", first["name"])
	assert.Equal(t, "cool", first["state"].(map[string]any)["mode"])
	assert.Equal(t, []any{"AA:BB:CC:DD:EE:02"}, data["missing"])
}

func TestGetDevice(t *testing.T) {
	client := dialService(t, sampleDevices())

	out, err := client.GetDevice(context.Background(), "aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	assert.Equal(t, "22", out.AsMap()["state"].(map[string]any)["temperature"])

	_, err = client.GetDevice(context.Background(), "11:22:33:44:55:66")
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.GetDevice(context.Background(), "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestSetDevice(t *testing.T) {
	fake := sampleDevices()
	client := dialService(t, fake)

	require.NoError(t, client.SetDevice(context.Background(), "AA:BB:CC:DD:EE:01", "temperature", "21.5"))
	assert.Equal(t, []string{"AA:BB:CC:DD:EE:01", "temp", "21.5"}, fake.lastSet)

	err := client.SetDevice(context.Background(), "AA:BB:CC:DD:EE:01", "swing", "on")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, 1, fake.setCalls)
}

func TestSetDeviceErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{name: "unknown device", err: fmt.Errorf("%w: XX", acconnect.ErrUnknownDevice), want: codes.NotFound},
		{name: "not connected", err: fmt.Errorf("%w: %w", acconnect.ErrSend, acconnect.ErrNotConnected), want: codes.Unavailable},
		{name: "bad value", err: fmt.Errorf("invalid command: mode %q", "turbo"), want: codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := sampleDevices()
			fake.setErr = tt.err
			client := dialService(t, fake)

			err := client.SetDevice(context.Background(), "AA:BB:CC:DD:EE:01", "mode", "cool")
			assert.Equal(t, tt.want, status.Code(err))
		})
	}
}

func TestHealth(t *testing.T) {
	client := dialService(t, sampleDevices())

	out, err := client.Health(context.Background())
	require.NoError(t, err)
	data := out.AsMap()
	assert.Equal(t, "DEGRADED", data["status"])
	assert.Equal(t, acconnect.StateOpen.String(), data["channel"])
	assert.Equal(t, float64(1), data["devices"])
}

func TestServiceDescriptor(t *testing.T) {
	svc, err := ServiceDescriptor()
	require.NoError(t, err)
	assert.Equal(t, ServiceName, string(svc.FullName()))
	assert.Equal(t, 4, svc.Methods().Len())
	set := svc.Methods().ByName(methodSetDevice)
	require.NotNil(t, set)
	assert.Equal(t, "google.protobuf.Struct", string(set.Input().FullName()))
	assert.Equal(t, "google.protobuf.Empty", string(set.Output().FullName()))
}
