package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/joshp123/acconnect/internal/core"
	"github.com/joshp123/acconnect/plugins/acconnect"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"

	publishTimeout = 5 * time.Second
)

// Config holds broker settings for the bridge.
type Config struct {
	Broker         string
	Username       string
	Password       string
	ClientID       string
	TopicPrefix    string
	CommandTimeout time.Duration
}

// publisher is the subset of mqtt.Client the bridge publishes through.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Bridge mirrors device state to MQTT and forwards set topics as commands.
//
// Topics:
//
//	<prefix>/status              online|offline, retained, also the will
//	<prefix>/<mac>/state         JSON snapshot, retained
//	<prefix>/<mac>/set/<field>   command value
type Bridge struct {
	cfg        Config
	source     core.DeviceSource
	controller core.DeviceController
	logger     *slog.Logger

	mu     sync.Mutex
	client mqtt.Client
	pub    publisher
}

func New(cfg Config, source core.DeviceSource, controller core.DeviceController, logger *slog.Logger) *Bridge {
	if cfg.ClientID == "" {
		cfg.ClientID = "acconnect-" + uuid.NewString()
	}
	cfg.TopicPrefix = strings.Trim(cfg.TopicPrefix, "/")
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bridge{cfg: cfg, source: source, controller: controller, logger: logger}
}

// Start connects to the broker. Subscriptions and the online status are
// re-established on every reconnect.
func (b *Bridge) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.cfg.Broker)
	opts.SetClientID(b.cfg.ClientID)
	opts.SetUsername(b.cfg.Username)
	opts.SetPassword(b.cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetWill(b.statusTopic(), statusOffline, 1, true)
	opts.OnConnect = func(client mqtt.Client) {
		b.onConnect(ctx, client)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		b.logger.Warn("mqtt connection lost", "error", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return fmt.Errorf("mqtt connect %s: timeout", b.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", b.cfg.Broker, err)
	}

	b.mu.Lock()
	b.client = client
	b.pub = client
	b.mu.Unlock()
	return nil
}

// Stop publishes the offline status and disconnects.
func (b *Bridge) Stop() {
	b.mu.Lock()
	client := b.client
	b.client = nil
	b.pub = nil
	b.mu.Unlock()
	if client == nil {
		return
	}
	_ = waitToken(client.Publish(b.statusTopic(), 1, true, statusOffline))
	client.Disconnect(250)
}

func (b *Bridge) onConnect(ctx context.Context, client mqtt.Client) {
	if err := waitToken(client.Publish(b.statusTopic(), 1, true, statusOnline)); err != nil {
		b.logger.Warn("mqtt publish status failed", "error", err)
	}
	token := client.Subscribe(b.setFilter(), 1, func(_ mqtt.Client, msg mqtt.Message) {
		b.handleSet(ctx, msg)
	})
	if err := waitToken(token); err != nil {
		b.logger.Warn("mqtt subscribe failed", "topic", b.setFilter(), "error", err)
		return
	}
	b.logger.Info("mqtt bridge connected", "broker", b.cfg.Broker, "prefix", b.cfg.TopicPrefix)
	b.publishAll(client)
}

// PublishDevice publishes the current snapshot of mac, if subscribed.
func (b *Bridge) PublishDevice(mac string) {
	b.mu.Lock()
	pub := b.pub
	b.mu.Unlock()
	if pub == nil {
		return
	}
	mac = acconnect.NormalizeMAC(mac)
	for _, snap := range b.source.Snapshots() {
		if snap.MAC == mac {
			b.publishSnapshot(pub, snap)
			return
		}
	}
}

// PublishAll publishes every subscribed device.
func (b *Bridge) PublishAll() {
	b.mu.Lock()
	pub := b.pub
	b.mu.Unlock()
	if pub != nil {
		b.publishAll(pub)
	}
}

func (b *Bridge) publishAll(pub publisher) {
	for _, snap := range b.source.Snapshots() {
		b.publishSnapshot(pub, snap)
	}
}

func (b *Bridge) publishSnapshot(pub publisher, snap acconnect.DeviceSnapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		b.logger.Warn("mqtt encode state failed", "mac", snap.MAC, "error", err)
		return
	}
	if err := waitToken(pub.Publish(b.stateTopic(snap.MAC), 1, true, payload)); err != nil {
		b.logger.Warn("mqtt publish state failed", "mac", snap.MAC, "error", err)
	}
}

func (b *Bridge) handleSet(ctx context.Context, msg mqtt.Message) {
	mac, field, err := b.parseSetTopic(msg.Topic())
	if err != nil {
		b.logger.Warn("mqtt set ignored", "topic", msg.Topic(), "error", err)
		return
	}
	value := strings.TrimSpace(string(msg.Payload()))
	if value == "" {
		b.logger.Warn("mqtt set ignored", "topic", msg.Topic(), "error", "empty payload")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.CommandTimeout)
	defer cancel()
	if err := b.controller.SetDevice(ctx, mac, field, value); err != nil {
		b.logger.Warn("mqtt set failed", "mac", mac, "field", string(field), "value", value, "error", err)
		return
	}
	b.logger.Debug("mqtt set forwarded", "mac", mac, "field", string(field), "value", value)
}

// parseSetTopic splits <prefix>/<mac>/set/<field>.
func (b *Bridge) parseSetTopic(topic string) (string, acconnect.Field, error) {
	rest, ok := strings.CutPrefix(topic, b.cfg.TopicPrefix+"/")
	if !ok {
		return "", "", fmt.Errorf("topic outside prefix %q", b.cfg.TopicPrefix)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != "set" || parts[0] == "" {
		return "", "", errors.New("expected <mac>/set/<field>")
	}
	field, ok := acconnect.ParseField(parts[2])
	if !ok {
		return "", "", fmt.Errorf("unknown field %q", parts[2])
	}
	return acconnect.NormalizeMAC(parts[0]), field, nil
}

func (b *Bridge) statusTopic() string {
	return b.cfg.TopicPrefix + "/status"
}

func (b *Bridge) stateTopic(mac string) string {
	return b.cfg.TopicPrefix + "/" + acconnect.NormalizeMAC(mac) + "/state"
}

func (b *Bridge) setFilter() string {
	return b.cfg.TopicPrefix + "/+/set/+"
}

func waitToken(token mqtt.Token) error {
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("timeout")
	}
	return token.Error()
}
