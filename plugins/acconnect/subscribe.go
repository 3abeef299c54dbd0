package acconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

type subscriptionRequest struct {
	UserID       string   `json:"userId"`
	SessionID    string   `json:"sessionId"`
	MACAddresses []string `json:"macAddresses"`
}

type subscriptionResponse struct {
	Success bool             `json:"success"`
	Error   json.RawMessage  `json:"error"`
	Data    []snapshotDevice `json:"data"`
}

type snapshotDevice struct {
	MACAddress      string     `json:"macAddress"`
	DeviceName      string     `json:"deviceName"`
	ApplianceID     flexString `json:"applianceId"`
	FirmwareVersion flexString `json:"firmwareVersion"`
	DeviceType      flexString `json:"deviceType"`
	LastAction      struct {
		Power    flexString `json:"power"`
		Mode     flexString `json:"mode"`
		FanSpeed flexString `json:"fanspeed"`
		Temp     flexString `json:"temp"`
	} `json:"lastAction"`
	LastEnvironment struct {
		RoomTemperature json.RawMessage `json:"roomTemperature"`
	} `json:"lastEnvironment"`
}

// Subscribe replaces the registry with the requested devices, seeded from
// the account snapshot. Requested MACs the snapshot lacks are left out and
// reported by Missing.
func (c *Client) Subscribe(ctx context.Context, macs []string) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return ErrNotConnected
	}

	c.registry.Reset()
	c.mu.Lock()
	c.missing = nil
	c.mu.Unlock()

	requested := make([]string, 0, len(macs))
	wanted := make(map[string]bool, len(macs))
	for _, mac := range macs {
		mac = NormalizeMAC(mac)
		if mac == "" || wanted[mac] {
			continue
		}
		wanted[mac] = true
		requested = append(requested, mac)
	}

	token, err := c.tokens.Exchange(ctx, session.UserID, tokenPassword)
	if err != nil {
		return authFailure("subscription token", err)
	}
	c.mu.Lock()
	if c.session == session {
		session.Token = token
	}
	c.mu.Unlock()

	body, err := json.Marshal(subscriptionRequest{
		UserID:       session.UserID,
		SessionID:    session.SessionID,
		MACAddresses: requested,
	})
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, pathSubscription, nil, bytes.NewReader(body), session.Cookies)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	var resp subscriptionResponse
	if err := c.doJSON(req, &resp); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if !resp.Success {
		return &SubscriptionError{Payload: resp.Error}
	}

	found := make(map[string]bool, len(resp.Data))
	for _, entry := range resp.Data {
		mac := NormalizeMAC(entry.MACAddress)
		if !wanted[mac] || found[mac] {
			continue
		}
		found[mac] = true
		state := DeviceState{
			Power:       string(entry.LastAction.Power),
			Mode:        string(entry.LastAction.Mode),
			FanSpeed:    string(entry.LastAction.FanSpeed),
			Temperature: string(entry.LastAction.Temp),
		}
		if room, ok := parseRoomTemperature(entry.LastEnvironment.RoomTemperature); ok {
			state.RoomTemperature = &room
		}
		c.registry.add(DeviceInfo{
			MAC:         mac,
			Name:        entry.DeviceName,
			ApplianceID: string(entry.ApplianceID),
			Firmware:    string(entry.FirmwareVersion),
			DeviceType:  string(entry.DeviceType),
		}, state, c)
	}

	var missing []string
	for _, mac := range requested {
		if !found[mac] {
			missing = append(missing, mac)
		}
	}
	c.mu.Lock()
	c.missing = missing
	c.mu.Unlock()

	if len(missing) > 0 {
		c.logger.Warn("acconnect devices not in snapshot", "macs", missing)
	}
	c.logger.Info("acconnect subscribed", "devices", c.registry.Len())
	return nil
}
