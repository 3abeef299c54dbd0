package acconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/joshp123/acconnect/internal/oauth"
	"github.com/joshp123/acconnect/internal/rate"
)

// Client is one connection to the cloud service: the handshake session, the
// streaming channel and the registry of subscribed devices.
type Client struct {
	cfg         Config
	baseURL     string
	httpClient  *http.Client
	loginClient *http.Client
	tokens      *oauth.PasswordSource
	logger      *slog.Logger
	now         func() time.Time

	registry     *Registry
	commands     subscribers[CommandEvent]
	temperatures subscribers[TemperatureEvent]
	errs         subscribers[error]

	mu      sync.Mutex
	session *Session
	channel *Channel
	missing []string

	// sendMu keeps sequence allocation and the socket write in one order.
	sendMu sync.Mutex
}

func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	options := clientOptions{}
	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return nil, err
		}
	}

	httpClient := options.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	if options.rateLimits != nil {
		httpClient = rate.WrapHTTP(*options.rateLimits, httpClient)
	}
	loginClient := *httpClient
	loginClient.Jar = nil
	loginClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	logger := options.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	tokens, err := oauth.NewPasswordSource(oauth.Declaration{
		Provider: "acconnect",
		TokenURL: baseURL + pathToken,
	}, httpClient)
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:         cfg,
		baseURL:     baseURL,
		httpClient:  httpClient,
		loginClient: &loginClient,
		tokens:      tokens,
		logger:      logger,
		now:         time.Now,
		registry:    NewRegistry(),
	}, nil
}

// Connect runs the full handshake and opens the streaming channel. Any
// previous channel is closed first. Failures are returned, not emitted.
func (c *Client) Connect(ctx context.Context, username, password, sourceAddr string) error {
	c.mu.Lock()
	previous := c.channel
	c.channel = nil
	c.session = nil
	c.mu.Unlock()
	if previous != nil {
		_ = previous.Close()
	}

	cookies, err := c.login(ctx, username, password, sourceAddr)
	if err != nil {
		return err
	}
	c.logger.Debug("acconnect login ok")

	session, err := c.resolveSession(ctx, cookies)
	if err != nil {
		return err
	}
	c.logger.Debug("acconnect session resolved", "user_id", session.UserID)

	socket, err := c.negotiate(ctx, cookies)
	if err != nil {
		return err
	}
	session.Socket = socket

	channel := newChannel(channelConfig{
		baseURL:          c.baseURL,
		cookies:          cookies,
		socket:           socket,
		httpClient:       c.httpClient,
		handshakeTimeout: c.cfg.HandshakeTimeout,
		writeTimeout:     c.cfg.WriteTimeout,
		pingInterval:     c.cfg.PingInterval,
		logger:           c.logger,
		onFrame:          c.handleFrame,
		onError:          c.errs.emit,
	})
	if err := channel.Open(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.session = &session
	c.channel = channel
	c.mu.Unlock()

	c.logger.Info("acconnect connected", "connection_id", socket.ConnectionID)
	return nil
}

// Close closes the streaming channel. No error event is emitted.
func (c *Client) Close() error {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == nil {
		return nil
	}
	return channel.Close()
}

// State reports the streaming channel state.
func (c *Client) State() State {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == nil {
		return StateDisconnected
	}
	return channel.State()
}

// Done is closed when the current channel closes or errors. Before Connect
// it returns an already closed channel.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return channel.Done()
}

// Session returns a copy of the current session, if any.
func (c *Client) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

func (c *Client) Devices() []*Device {
	return c.registry.List()
}

func (c *Client) Device(mac string) (*Device, bool) {
	dev := c.registry.Lookup(mac)
	return dev, dev != nil
}

// Snapshots returns a consistent copy of every subscribed device.
func (c *Client) Snapshots() []DeviceSnapshot {
	devices := c.registry.List()
	out := make([]DeviceSnapshot, 0, len(devices))
	for _, dev := range devices {
		out = append(out, dev.Snapshot())
	}
	return out
}

// SetDevice sends one command to the device with the given MAC.
func (c *Client) SetDevice(ctx context.Context, mac string, field Field, value string) error {
	dev, ok := c.Device(mac)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, NormalizeMAC(mac))
	}
	return dev.Set(ctx, field, value)
}

// Missing lists requested MACs absent from the last snapshot.
func (c *Client) Missing() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.missing...)
}

// OnCommand registers cb for confirmed device-state changes.
func (c *Client) OnCommand(cb func(CommandEvent)) func() {
	return c.commands.add(cb)
}

// OnTemperature registers cb for room-temperature samples.
func (c *Client) OnTemperature(cb func(TemperatureEvent)) func() {
	return c.temperatures.add(cb)
}

// OnError registers cb for failures after the channel is open.
func (c *Client) OnError(cb func(error)) func() {
	return c.errs.add(cb)
}

func (c *Client) sendCommand(ctx context.Context, dev DeviceSnapshot, field Field, value string) error {
	if err := validateCommand(field, value); err != nil {
		return err
	}

	c.mu.Lock()
	channel := c.channel
	session := c.session
	c.mu.Unlock()
	if channel == nil || session == nil {
		return fmt.Errorf("%w: %w", ErrSend, ErrNotConnected)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	seq := c.registry.NextSequence()
	frame, err := EncodeCommand(dev, session.SessionID, field, value, seq, c.now())
	if err != nil {
		return err
	}
	if err := channel.Send(ctx, frame); err != nil {
		commandFailures.WithLabelValues(string(field)).Inc()
		c.logger.Warn("acconnect command failed", "mac", dev.MAC, "field", string(field), "seq", seq, "error", err)
		return err
	}
	commandsSent.WithLabelValues(string(field)).Inc()
	c.logger.Debug("acconnect command sent", "mac", dev.MAC, "field", string(field), "value", value, "seq", seq)
	return nil
}

func (c *Client) handleFrame(data []byte) {
	for _, msg := range parseInbound(data) {
		switch msg.Method {
		case methodActionAC:
			framesReceived.WithLabelValues(msg.Method).Inc()
			for _, arg := range msg.Args {
				var update actionUpdate
				if err := json.Unmarshal(arg, &update); err != nil {
					continue
				}
				if c.registry.applyAction(update) {
					c.commands.emit(CommandEvent{MAC: NormalizeMAC(update.MACAddress), Payload: arg})
				}
			}
		case methodHeartBeat:
			framesReceived.WithLabelValues(msg.Method).Inc()
			for _, arg := range msg.Args {
				var beat heartBeat
				if err := json.Unmarshal(arg, &beat); err != nil {
					continue
				}
				value, ok := parseRoomTemperature(beat.RoomTemperature)
				if !ok {
					continue
				}
				if c.registry.applyRoomTemperature(beat.MACAddress, value) {
					c.temperatures.emit(TemperatureEvent{
						MAC:   NormalizeMAC(beat.MACAddress),
						Raw:   beat.RoomTemperature,
						Value: value,
					})
				}
			}
		}
	}
}
