package acconnect

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	hubName             = "devicesactionhub"
	methodBroadcast     = "broadcastActionAC"
	methodActionAC      = "actionReceivedAC"
	methodHeartBeat     = "HeartBeatPerformed"
	ruleDefault         = "default"
	ruleVanish          = "vanish"
	powerOn             = "on"
	connectionDataValue = `[{"name":"devicesactionhub"}]`
)

// flexString decodes either a JSON string or a bare number into its text form.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = flexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*s = flexString(num.String())
	return nil
}

// commandRecord is one element of the outbound broadcastActionAC arguments.
type commandRecord struct {
	MACAddress           string `json:"macAddress"`
	ApplianceID          string `json:"applianceId"`
	SessionID            string `json:"sessionId"`
	Power                string `json:"power"`
	Mode                 string `json:"mode"`
	FanSpeed             string `json:"fanspeed"`
	Temp                 string `json:"temp"`
	PerformedAction      string `json:"performedAction"`
	PerformedActionValue string `json:"performedActionValue"`
	Timestamp            string `json:"timestamp"`
	DeviceType           string `json:"deviceType"`
	FirmwareVersion      string `json:"firmwareVersion"`
	FanRule              string `json:"fanRule"`
	SwingRule            string `json:"swingRule"`
	TempRule             string `json:"tempRule"`
}

type commandEnvelope struct {
	Hub    string          `json:"H"`
	Method string          `json:"M"`
	Args   []commandRecord `json:"A"`
	Seq    int64           `json:"I"`
}

// CommandFrame is a decoded outbound command.
type CommandFrame struct {
	Seq    int64
	Action commandRecord
	State  commandRecord
}

// EncodeCommand builds the wire frame that changes one field of dev.
func EncodeCommand(dev DeviceSnapshot, sessionID string, field Field, value string, seq int64, now time.Time) ([]byte, error) {
	if err := validateCommand(field, value); err != nil {
		return nil, err
	}
	next := dev.State.with(field, value)

	fanRule := ruleDefault
	if field == FieldPower && strings.EqualFold(value, powerOn) {
		fanRule = ruleVanish
	}

	state := commandRecord{
		MACAddress:      dev.MAC,
		ApplianceID:     dev.ApplianceID,
		SessionID:       sessionID,
		Power:           next.Power,
		Mode:            next.Mode,
		FanSpeed:        next.FanSpeed,
		Temp:            next.Temperature,
		DeviceType:      dev.DeviceType,
		FirmwareVersion: dev.Firmware,
	}
	action := state
	action.PerformedAction = string(field)
	action.PerformedActionValue = value
	action.Timestamp = strconv.FormatInt(now.Unix(), 10)
	action.FanRule = fanRule
	action.SwingRule = ruleDefault
	action.TempRule = ruleDefault

	return json.Marshal(commandEnvelope{
		Hub:    hubName,
		Method: methodBroadcast,
		Args:   []commandRecord{action, state},
		Seq:    seq,
	})
}

// DecodeCommand parses a frame produced by EncodeCommand.
func DecodeCommand(data []byte) (CommandFrame, error) {
	var env commandEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return CommandFrame{}, fmt.Errorf("%w: command frame: %v", ErrParse, err)
	}
	if env.Hub != hubName || env.Method != methodBroadcast || len(env.Args) != 2 {
		return CommandFrame{}, fmt.Errorf("%w: not a %s frame", ErrParse, methodBroadcast)
	}
	return CommandFrame{Seq: env.Seq, Action: env.Args[0], State: env.Args[1]}, nil
}

var errInvalidCommand = errors.New("invalid command")

func validateCommand(field Field, value string) error {
	if !field.Valid() {
		return fmt.Errorf("%w: unknown field %q", errInvalidCommand, field)
	}
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: empty value for %s", errInvalidCommand, field)
	}
	return nil
}

type inboundFrame struct {
	Messages []inboundMessage `json:"M"`
}

type inboundMessage struct {
	Method string            `json:"M"`
	Args   []json.RawMessage `json:"A"`
}

type actionUpdate struct {
	MACAddress string      `json:"macAddress"`
	Power      *flexString `json:"power"`
	Mode       *flexString `json:"mode"`
	FanSpeed   *flexString `json:"fanspeed"`
	Temp       *flexString `json:"temp"`
}

type heartBeat struct {
	MACAddress      string          `json:"macAddress"`
	RoomTemperature json.RawMessage `json:"roomTemperature"`
}

// parseInbound returns the hub messages of a frame. Frames without a
// message array, such as keep-alive "{}" or init frames, yield nothing.
func parseInbound(data []byte) []inboundMessage {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil
	}
	return frame.Messages
}

func parseRoomTemperature(raw json.RawMessage) (float64, bool) {
	var text flexString
	if err := json.Unmarshal(raw, &text); err != nil || text == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(string(text), 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
