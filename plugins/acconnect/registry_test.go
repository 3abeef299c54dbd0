package acconnect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseURL = "http://127.0.0.1:1"
	client, err := NewClient(cfg)
	require.NoError(t, err)
	return client
}

func seedDevice(c *Client, mac string) *Device {
	room := 71.0
	return c.registry.add(DeviceInfo{MAC: mac, Name: "Unit"}, DeviceState{
		Power:           "off",
		Mode:            "heat",
		FanSpeed:        "low",
		Temperature:     "65",
		RoomTemperature: &room,
	}, c)
}

func TestActionFrameOverwritesState(t *testing.T) {
	client := newTestClient(t)
	dev := seedDevice(client, "AA:BB")

	var events []CommandEvent
	client.OnCommand(func(ev CommandEvent) { events = append(events, ev) })

	client.handleFrame([]byte(`{"M":[{"M":"actionReceivedAC","A":[{"macAddress":"AA:BB","power":"on","temp":"70","mode":"cool","fanspeed":"high"}]}]}`))

	state := dev.State()
	assert.Equal(t, "on", state.Power)
	assert.Equal(t, "70", state.Temperature)
	assert.Equal(t, "cool", state.Mode)
	assert.Equal(t, "high", state.FanSpeed)
	require.NotNil(t, state.RoomTemperature)
	assert.Equal(t, 71.0, *state.RoomTemperature)

	require.Len(t, events, 1)
	assert.Equal(t, "AA:BB", events[0].MAC)
	assert.JSONEq(t, `{"macAddress":"AA:BB","power":"on","temp":"70","mode":"cool","fanspeed":"high"}`, string(events[0].Payload))
}

func TestActionFrameKeepsAbsentFields(t *testing.T) {
	client := newTestClient(t)
	dev := seedDevice(client, "AA:BB")

	client.handleFrame([]byte(`{"M":[{"M":"actionReceivedAC","A":[{"macAddress":"aa:bb","temp":68}]}]}`))

	state := dev.State()
	assert.Equal(t, "68", state.Temperature)
	assert.Equal(t, "off", state.Power)
	assert.Equal(t, "heat", state.Mode)
	assert.Equal(t, "low", state.FanSpeed)
}

func TestHeartBeatChangesOnlyRoomTemperature(t *testing.T) {
	client := newTestClient(t)
	dev := seedDevice(client, "AA:BB")
	before := dev.State()

	var samples []TemperatureEvent
	client.OnTemperature(func(ev TemperatureEvent) { samples = append(samples, ev) })

	client.handleFrame([]byte(`{"M":[{"M":"HeartBeatPerformed","A":[{"macAddress":"AA:BB","roomTemperature":68}]}]}`))

	after := dev.State()
	require.NotNil(t, after.RoomTemperature)
	assert.Equal(t, 68.0, *after.RoomTemperature)
	after.RoomTemperature = nil
	before.RoomTemperature = nil
	assert.Equal(t, before, after)

	require.Len(t, samples, 1)
	assert.Equal(t, 68.0, samples[0].Value)
}

func TestUnknownFramesAreIgnored(t *testing.T) {
	client := newTestClient(t)
	dev := seedDevice(client, "AA:BB")
	before := dev.State()

	var commands, temps int
	client.OnCommand(func(CommandEvent) { commands++ })
	client.OnTemperature(func(TemperatureEvent) { temps++ })

	frames := []string{
		`{}`,
		`not json`,
		`{"M":"string"}`,
		`{"M":[{"M":"somethingElse","A":[{"macAddress":"AA:BB","power":"on"}]}]}`,
		`{"M":[{"M":"actionReceivedAC","A":[{"macAddress":"CC:DD","power":"on"}]}]}`,
		`{"M":[{"M":"HeartBeatPerformed","A":[{"macAddress":"CC:DD","roomTemperature":50}]}]}`,
		`{"M":[{"M":"HeartBeatPerformed","A":[{"macAddress":"AA:BB","roomTemperature":"warm"}]}]}`,
		`{"M":[{"M":"actionReceivedAC","A":["not an object"]}]}`,
	}
	for _, frame := range frames {
		assert.NotPanics(t, func() { client.handleFrame([]byte(frame)) }, frame)
	}

	assert.Equal(t, before, dev.State())
	assert.Zero(t, commands)
	assert.Zero(t, temps)
}

func TestRegistrySequenceAndReset(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, int64(0), reg.NextSequence())
	assert.Equal(t, int64(1), reg.NextSequence())
	assert.Equal(t, int64(2), reg.NextSequence())

	reg.add(DeviceInfo{MAC: "aa:bb"}, DeviceState{}, nil)
	reg.add(DeviceInfo{MAC: "AA:BB"}, DeviceState{Power: "on"}, nil)
	assert.Equal(t, 1, reg.Len(), "one entry per MAC")
	assert.Equal(t, "on", reg.Lookup("aa:bb").State().Power)

	reg.Reset()
	assert.Equal(t, 0, reg.Len())
	assert.Nil(t, reg.Lookup("AA:BB"))
	assert.Equal(t, int64(0), reg.NextSequence())
}

func TestRegistryListSorted(t *testing.T) {
	reg := NewRegistry()
	reg.add(DeviceInfo{MAC: "CC"}, DeviceState{}, nil)
	reg.add(DeviceInfo{MAC: "AA"}, DeviceState{}, nil)
	reg.add(DeviceInfo{MAC: "BB"}, DeviceState{}, nil)

	var macs []string
	for _, dev := range reg.List() {
		macs = append(macs, dev.MAC())
	}
	assert.Equal(t, []string{"AA", "BB", "CC"}, macs)
}

func TestDeviceWithoutConnection(t *testing.T) {
	reg := NewRegistry()
	dev := reg.add(DeviceInfo{MAC: "AA"}, DeviceState{}, nil)
	assert.ErrorIs(t, dev.SetPower(t.Context(), true), ErrNotConnected)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	client := newTestClient(t)
	seedDevice(client, "AA:BB")

	var count int
	unsubscribe := client.OnTemperature(func(TemperatureEvent) { count++ })
	frame := []byte(`{"M":[{"M":"HeartBeatPerformed","A":[{"macAddress":"AA:BB","roomTemperature":70}]}]}`)

	client.handleFrame(frame)
	unsubscribe()
	unsubscribe()
	client.handleFrame(frame)

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, client.temperatures.len())
}

func TestClientSetDevice(t *testing.T) {
	client := newTestClient(t)
	seedDevice(client, "AA:BB")

	err := client.SetDevice(t.Context(), "cc:dd", FieldPower, "on")
	assert.ErrorIs(t, err, ErrUnknownDevice)

	err = client.SetDevice(t.Context(), "aa:bb", FieldPower, "on")
	assert.ErrorIs(t, err, ErrSend)
	assert.ErrorIs(t, err, ErrNotConnected)

	snaps := client.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, "off", snaps[0].State.Power)
}
