package acconnect

import (
	"context"
	"strconv"
	"strings"
)

// Field names a controllable device setting as it appears on the wire.
type Field string

const (
	FieldPower       Field = "power"
	FieldMode        Field = "mode"
	FieldFanSpeed    Field = "fanspeed"
	FieldTemperature Field = "temp"
)

// Valid reports whether f is one of the known fields.
func (f Field) Valid() bool {
	switch f {
	case FieldPower, FieldMode, FieldFanSpeed, FieldTemperature:
		return true
	default:
		return false
	}
}

// ParseField accepts the wire names plus a few common aliases.
func ParseField(raw string) (Field, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "power":
		return FieldPower, true
	case "mode":
		return FieldMode, true
	case "fanspeed", "fan_speed", "fan":
		return FieldFanSpeed, true
	case "temp", "temperature":
		return FieldTemperature, true
	default:
		return "", false
	}
}

// DeviceInfo is the immutable identity of a unit.
type DeviceInfo struct {
	MAC         string `json:"mac"`
	Name        string `json:"name"`
	ApplianceID string `json:"applianceId"`
	Firmware    string `json:"firmwareVersion"`
	DeviceType  string `json:"deviceType"`
}

// DeviceState is the last state confirmed by the service.
type DeviceState struct {
	Power           string   `json:"power"`
	Mode            string   `json:"mode"`
	FanSpeed        string   `json:"fanSpeed"`
	Temperature     string   `json:"temperature"`
	RoomTemperature *float64 `json:"roomTemperature,omitempty"`
}

func (s DeviceState) value(field Field) string {
	switch field {
	case FieldPower:
		return s.Power
	case FieldMode:
		return s.Mode
	case FieldFanSpeed:
		return s.FanSpeed
	case FieldTemperature:
		return s.Temperature
	default:
		return ""
	}
}

func (s DeviceState) with(field Field, value string) DeviceState {
	switch field {
	case FieldPower:
		s.Power = value
	case FieldMode:
		s.Mode = value
	case FieldFanSpeed:
		s.FanSpeed = value
	case FieldTemperature:
		s.Temperature = value
	}
	return s
}

// DeviceSnapshot is a consistent copy of a device at one point in time.
type DeviceSnapshot struct {
	DeviceInfo
	State DeviceState `json:"state"`
}

type commander interface {
	sendCommand(ctx context.Context, device DeviceSnapshot, field Field, value string) error
}

// Device is a handle to a subscribed unit. Its state changes only when the
// service confirms an action or reports a room temperature.
type Device struct {
	reg   *Registry
	cmd   commander
	info  DeviceInfo
	state DeviceState
}

func (d *Device) MAC() string {
	return d.info.MAC
}

func (d *Device) Info() DeviceInfo {
	return d.info
}

func (d *Device) State() DeviceState {
	d.reg.mu.RLock()
	defer d.reg.mu.RUnlock()
	return d.stateLocked()
}

func (d *Device) Snapshot() DeviceSnapshot {
	return DeviceSnapshot{DeviceInfo: d.info, State: d.State()}
}

func (d *Device) stateLocked() DeviceState {
	state := d.state
	if state.RoomTemperature != nil {
		room := *state.RoomTemperature
		state.RoomTemperature = &room
	}
	return state
}

func (d *Device) SetPower(ctx context.Context, on bool) error {
	value := "off"
	if on {
		value = "on"
	}
	return d.Set(ctx, FieldPower, value)
}

func (d *Device) SetMode(ctx context.Context, mode string) error {
	return d.Set(ctx, FieldMode, mode)
}

func (d *Device) SetFanSpeed(ctx context.Context, speed string) error {
	return d.Set(ctx, FieldFanSpeed, speed)
}

func (d *Device) SetTemperature(ctx context.Context, temp float64) error {
	return d.Set(ctx, FieldTemperature, strconv.FormatFloat(temp, 'f', -1, 64))
}

// Set sends a command changing one field. The local state is left untouched
// until the confirmation frame arrives.
func (d *Device) Set(ctx context.Context, field Field, value string) error {
	if d.cmd == nil {
		return ErrNotConnected
	}
	return d.cmd.sendCommand(ctx, d.Snapshot(), field, value)
}
