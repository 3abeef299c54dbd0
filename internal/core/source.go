package core

import (
	"context"

	"github.com/joshp123/acconnect/plugins/acconnect"
)

// DeviceSource is the read surface the daemon front-ends share.
// *acconnect.Client satisfies it.
type DeviceSource interface {
	Snapshots() []acconnect.DeviceSnapshot
	Missing() []string
	State() acconnect.State
}

// DeviceController sends commands to subscribed devices.
type DeviceController interface {
	SetDevice(ctx context.Context, mac string, field acconnect.Field, value string) error
}
