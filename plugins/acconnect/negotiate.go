package acconnect

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// SocketInfo is the negotiate response, passed through unmodified.
type SocketInfo struct {
	URL                     string  `json:"Url"`
	ConnectionToken         string  `json:"ConnectionToken"`
	ConnectionID            string  `json:"ConnectionId"`
	KeepAliveTimeout        float64 `json:"KeepAliveTimeout"`
	DisconnectTimeout       float64 `json:"DisconnectTimeout"`
	ConnectionTimeout       float64 `json:"ConnectionTimeout"`
	TransportConnectTimeout float64 `json:"TransportConnectTimeout"`
	LongPollDelay           float64 `json:"LongPollDelay"`
	TryWebSockets           bool    `json:"TryWebSockets"`
	ProtocolVersion         string  `json:"ProtocolVersion"`
}

func (c *Client) negotiate(ctx context.Context, cookies string) (SocketInfo, error) {
	query := url.Values{}
	query.Set("clientProtocol", signalRProtocol)
	query.Set("connectionData", connectionDataValue)
	query.Set("_", cacheBuster(c.now()))

	req, err := c.newRequest(ctx, http.MethodGet, pathNegotiate, query, nil, cookies)
	if err != nil {
		return SocketInfo{}, err
	}
	var info SocketInfo
	if err := c.doJSON(req, &info); err != nil {
		return SocketInfo{}, fmt.Errorf("negotiate: %w", err)
	}
	if info.ConnectionToken == "" {
		return SocketInfo{}, fmt.Errorf("%w: negotiate returned no connection token", ErrParse)
	}
	return info, nil
}
