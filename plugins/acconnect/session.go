package acconnect

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/oauth2"
)

const (
	inputEncryptedUser = "EncryptedUserInfo"
	inputSessionID     = "SessionID"

	// The token endpoint checks only the user id; the password slot is unused.
	tokenPassword = "-"
)

// Session holds everything the handshake established. It is replaced on
// every Connect and never renewed in place.
type Session struct {
	Cookies     string
	SessionID   string
	UserID      string
	AccessToken string
	Token       *oauth2.Token
	Socket      SocketInfo
}

func (c *Client) resolveSession(ctx context.Context, cookies string) (Session, error) {
	req, err := c.newRequest(ctx, http.MethodGet, pathHomeIndex, nil, nil, cookies)
	if err != nil {
		return Session{}, err
	}
	body, err := c.do(req)
	if err != nil {
		return Session{}, fmt.Errorf("home index: %w", err)
	}

	inputs, err := hiddenInputs(body)
	if err != nil {
		return Session{}, fmt.Errorf("%w: home index markup: %v", ErrParse, err)
	}
	encrypted := inputs[inputEncryptedUser]
	sessionID := inputs[inputSessionID]
	if encrypted == "" {
		return Session{}, fmt.Errorf("%w: %s not found on home index", ErrParse, inputEncryptedUser)
	}
	if sessionID == "" {
		return Session{}, fmt.Errorf("%w: %s not found on home index", ErrParse, inputSessionID)
	}

	user, err := decodeSessionUser(encrypted, c.cfg.SessionKey, c.cfg.SessionIV)
	if err != nil {
		return Session{}, err
	}

	token, err := c.tokens.Exchange(ctx, user.UserID, tokenPassword)
	if err != nil {
		return Session{}, authFailure("session token", err)
	}

	return Session{
		Cookies:     cookies,
		SessionID:   sessionID,
		UserID:      user.UserID,
		AccessToken: user.AccessToken,
		Token:       token,
	}, nil
}

// hiddenInputs maps id (or name) to value for every hidden input in doc.
func hiddenInputs(doc []byte) (map[string]string, error) {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "input" {
			var typ, id, name, value string
			for _, attr := range n.Attr {
				switch strings.ToLower(attr.Key) {
				case "type":
					typ = strings.ToLower(attr.Val)
				case "id":
					id = attr.Val
				case "name":
					name = attr.Val
				case "value":
					value = attr.Val
				}
			}
			if typ == "hidden" {
				if id != "" {
					out[id] = value
				}
				if name != "" {
					if _, ok := out[name]; !ok {
						out[name] = value
					}
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
	return out, nil
}
