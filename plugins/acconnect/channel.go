package acconnect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State is the lifecycle state of a Channel.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

func (s State) terminal() bool {
	return s == StateClosed || s == StateErrored
}

type channelConfig struct {
	baseURL          string
	cookies          string
	socket           SocketInfo
	httpClient       *http.Client
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	pingInterval     time.Duration
	logger           *slog.Logger
	onFrame          func([]byte)
	onError          func(error)
}

// Channel is one websocket connection to the device hub. It never reconnects.
type Channel struct {
	cfg channelConfig

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	userClosed bool
	done       chan struct{}

	writeMu sync.Mutex
}

func newChannel(cfg channelConfig) *Channel {
	if cfg.onFrame == nil {
		cfg.onFrame = func([]byte) {}
	}
	if cfg.onError == nil {
		cfg.onError = func(error) {}
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Channel{cfg: cfg, done: make(chan struct{})}
}

func (ch *Channel) State() State {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

// Done is closed once the channel reaches Closed or Errored.
func (ch *Channel) Done() <-chan struct{} {
	return ch.done
}

// Open dials the socket, starts the server-side session and begins the
// keep-alive loop. The keep-alive stops when the channel leaves Open.
func (ch *Channel) Open(ctx context.Context) error {
	ch.mu.Lock()
	if ch.state != StateDisconnected {
		state := ch.state
		ch.mu.Unlock()
		return fmt.Errorf("%w: channel already %s", ErrTransport, state)
	}
	ch.setStateLocked(StateConnecting)
	ch.mu.Unlock()

	connectURL, err := ch.connectURL()
	if err != nil {
		ch.finish(StateErrored)
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, ch.cfg.handshakeTimeout)
	defer cancel()
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: ch.cfg.handshakeTimeout,
	}
	header := http.Header{}
	if ch.cfg.cookies != "" {
		header.Set("Cookie", ch.cfg.cookies)
	}
	conn, resp, err := dialer.DialContext(dialCtx, connectURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		ch.finish(StateErrored)
		return fmt.Errorf("%w: dial: %v", ErrTransport, err)
	}

	ch.mu.Lock()
	if ch.state != StateConnecting {
		ch.mu.Unlock()
		conn.Close()
		return fmt.Errorf("%w: channel closed during connect", ErrTransport)
	}
	ch.conn = conn
	ch.setStateLocked(StateOpen)
	ch.mu.Unlock()

	go ch.readLoop(conn)

	if err := ch.start(ctx); err != nil {
		ch.abort(conn)
		return fmt.Errorf("%w: start: %v", ErrTransport, err)
	}

	go ch.keepAlive()
	ch.cfg.logger.Debug("acconnect channel open", "connection_id", ch.cfg.socket.ConnectionID)
	return nil
}

// Send writes one text frame. Writes are serialized.
func (ch *Channel) Send(ctx context.Context, frame []byte) error {
	ch.mu.Lock()
	conn := ch.conn
	state := ch.state
	ch.mu.Unlock()
	if state != StateOpen || conn == nil {
		return fmt.Errorf("%w: channel %s", ErrSend, state)
	}

	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()

	deadline := time.Now().Add(ch.cfg.writeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSend, err)
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", ErrSend, err)
	}
	err := conn.WriteMessage(websocket.TextMessage, frame)
	_ = conn.SetWriteDeadline(time.Time{})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSend, err)
	}
	return nil
}

// Close moves the channel to Closed without reporting an error.
func (ch *Channel) Close() error {
	ch.mu.Lock()
	if ch.state.terminal() {
		ch.mu.Unlock()
		return nil
	}
	ch.userClosed = true
	conn := ch.conn
	ch.setStateLocked(StateClosed)
	ch.mu.Unlock()

	if conn == nil {
		return nil
	}
	ch.writeMu.Lock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	ch.writeMu.Unlock()
	return conn.Close()
}

func (ch *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			ch.fail(conn, err)
			return
		}
		ch.cfg.onFrame(data)
	}
}

func (ch *Channel) fail(conn *websocket.Conn, err error) {
	next := StateErrored
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		next = StateClosed
	}

	ch.mu.Lock()
	if ch.userClosed || ch.state.terminal() {
		ch.mu.Unlock()
		return
	}
	ch.setStateLocked(next)
	ch.mu.Unlock()

	conn.Close()
	ch.cfg.logger.Warn("acconnect channel lost", "state", next.String(), "error", err)
	ch.cfg.onError(fmt.Errorf("%w: channel %s: %v", ErrTransport, next, err))
}

// abort tears down a channel whose bring-up failed. The caller gets the
// error directly so no error event is emitted.
func (ch *Channel) abort(conn *websocket.Conn) {
	ch.mu.Lock()
	ch.userClosed = true
	if !ch.state.terminal() {
		ch.setStateLocked(StateErrored)
	}
	ch.mu.Unlock()
	conn.Close()
}

func (ch *Channel) finish(state State) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if !ch.state.terminal() {
		ch.setStateLocked(state)
	}
}

func (ch *Channel) setStateLocked(state State) {
	ch.state = state
	if state.terminal() {
		select {
		case <-ch.done:
		default:
			close(ch.done)
		}
	}
}

func (ch *Channel) keepAlive() {
	ticker := time.NewTicker(ch.cfg.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ch.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), ch.cfg.handshakeTimeout)
			err := ch.ping(ctx)
			cancel()
			if err != nil && ch.State() == StateOpen {
				pingFailures.Inc()
				ch.cfg.onError(fmt.Errorf("%w: ping: %v", ErrTransport, err))
			}
		}
	}
}

func (ch *Channel) start(ctx context.Context) error {
	query := ch.transportQuery()
	query.Set("_", cacheBuster(time.Now()))
	return ch.get(ctx, "/start", query)
}

func (ch *Channel) ping(ctx context.Context) error {
	query := url.Values{}
	query.Set("_", cacheBuster(time.Now()))
	return ch.get(ctx, "/ping", query)
}

func (ch *Channel) get(ctx context.Context, suffix string, query url.Values) error {
	endpoint := ch.cfg.baseURL + ch.hubPath() + suffix + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if ch.cfg.cookies != "" {
		req.Header.Set("Cookie", ch.cfg.cookies)
	}
	resp, err := ch.cfg.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return HTTPStatusError{Path: req.URL.Path, Status: resp.StatusCode}
	}
	return nil
}

func (ch *Channel) hubPath() string {
	if strings.HasPrefix(ch.cfg.socket.URL, "/") {
		return strings.TrimSuffix(ch.cfg.socket.URL, "/")
	}
	return "/signalr"
}

func (ch *Channel) transportQuery() url.Values {
	protocol := ch.cfg.socket.ProtocolVersion
	if protocol == "" {
		protocol = signalRProtocol
	}
	query := url.Values{}
	query.Set("transport", "webSockets")
	query.Set("clientProtocol", protocol)
	query.Set("connectionToken", ch.cfg.socket.ConnectionToken)
	query.Set("connectionData", connectionDataValue)
	return query
}

func (ch *Channel) connectURL() (string, error) {
	base, err := url.Parse(ch.cfg.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch base.Scheme {
	case "https":
		base.Scheme = "wss"
	case "http":
		base.Scheme = "ws"
	default:
		return "", errors.New("base url must be http or https")
	}
	query := ch.transportQuery()
	query.Set("tid", strconv.Itoa(rand.IntN(11)))
	base.Path = strings.TrimSuffix(base.Path, "/") + ch.hubPath() + "/connect"
	base.RawQuery = query.Encode()
	return base.String(), nil
}
