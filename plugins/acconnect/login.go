package acconnect

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// login posts the credentials and returns the session cookies as a single
// Cookie header value. Redirects are not followed so Set-Cookie is visible.
func (c *Client) login(ctx context.Context, username, password, sourceAddr string) (string, error) {
	form := url.Values{}
	form.Set("DeviceType", c.cfg.DeviceType)
	form.Set("DeviceUniqueIdentifier", c.cfg.ClientID)
	form.Set("IPAddress", sourceAddr)
	form.Set("UserName", username)
	form.Set("Password", password)
	form.Set("RememberMe", "false")

	req, err := c.newRequest(ctx, http.MethodPost, pathLogin, nil, strings.NewReader(form.Encode()), "")
	if err != nil {
		return "", fmt.Errorf("%w: build login request: %v", ErrAuthentication, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.loginClient.Do(req)
	if err != nil {
		return "", authFailure("login request", err)
	}
	defer resp.Body.Close()

	cookies := joinCookies(resp.Cookies())
	if cookies == "" {
		return "", fmt.Errorf("%w: login returned no session cookies (status %d)", ErrAuthentication, resp.StatusCode)
	}
	return cookies, nil
}

func joinCookies(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, cookie := range cookies {
		if cookie.Name == "" {
			continue
		}
		parts = append(parts, cookie.Name+"="+cookie.Value)
	}
	return strings.Join(parts, "; ")
}
