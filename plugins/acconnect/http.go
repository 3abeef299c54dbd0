package acconnect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	pathLogin        = "/auth/login"
	pathHomeIndex    = "/home/index"
	pathToken        = "/cAcc"
	pathSubscription = "/api/device/initsubscription"
	pathNegotiate    = "/signalr/negotiate"

	signalRProtocol = "1.5"
	maxBodyBytes    = 4 << 20
)

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader, cookies string) (*http.Request, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if cookies != "" {
		req.Header.Set("Cookie", cookies)
	}
	return req, nil
}

// do runs req and returns the body of a 2xx response. 401/403 map to
// ErrAuthentication and any other non-2xx to ErrParse, both wrapping HTTPStatusError.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL.Path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	statusErr := HTTPStatusError{Path: req.URL.Path, Status: resp.StatusCode, Body: string(body)}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, statusErr)
	}
	return nil, fmt.Errorf("%w: %w", ErrParse, statusErr)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	body, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrParse, req.URL.Path, err)
	}
	return nil
}

// authFailure wraps err in ErrAuthentication. When no response came back it
// also wraps ErrTransport so callers can tell an outage from a rejection.
func authFailure(op string, err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %w: %s: %v", ErrAuthentication, ErrTransport, op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrAuthentication, op, err)
}

func cacheBuster(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10)
}
