package acconnect

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAuthentication = errors.New("acconnect authentication failed")
	ErrParse          = errors.New("acconnect unexpected response shape")
	ErrDecryption     = errors.New("acconnect session decryption failed")
	ErrSubscription   = errors.New("acconnect subscription failed")
	ErrTransport      = errors.New("acconnect transport failure")
	ErrSend           = errors.New("acconnect send failed")
	ErrNotConnected   = errors.New("acconnect not connected")
	ErrUnknownDevice  = errors.New("acconnect device not subscribed")
)

// SubscriptionError carries the error payload reported by the snapshot endpoint.
type SubscriptionError struct {
	Payload json.RawMessage
}

func (e *SubscriptionError) Error() string {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return ErrSubscription.Error()
	}
	return fmt.Sprintf("%s: %s", ErrSubscription.Error(), strings.TrimSpace(string(e.Payload)))
}

func (e *SubscriptionError) Unwrap() error {
	return ErrSubscription
}

// HTTPStatusError is returned for unexpected non-2xx responses.
type HTTPStatusError struct {
	Path   string
	Status int
	Body   string
}

func (e HTTPStatusError) Error() string {
	return fmt.Sprintf("acconnect api error %s %d: %s", e.Path, e.Status, strings.TrimSpace(e.Body))
}
