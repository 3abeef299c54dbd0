package acconnect

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joshp123/acconnect/internal/rate"
)

const (
	defaultDeviceType       = "Web"
	defaultHTTPTimeout      = 15 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultPingInterval     = 5 * time.Minute

	// Placeholders, not the service's cipher. The user blob on /home/index is
	// encrypted with a fixed key and IV that must be supplied through
	// ACCONNECT_SESSION_KEY and ACCONNECT_SESSION_IV.
	defaultSessionKey = "Xk2#pL9qR4tV7wZ1"
	defaultSessionIV  = "Fj8$mN3bQ6sY0cH5"
)

// Config defines runtime configuration for the client.
type Config struct {
	BaseURL          string
	ClientID         string
	DeviceType       string
	HTTPTimeout      time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	SessionKey       []byte
	SessionIV        []byte
}

// DefaultConfig returns a config with default timeouts and session cipher.
// BaseURL has no default and must be set by the caller.
func DefaultConfig() Config {
	return Config{
		ClientID:         uuid.NewString(),
		DeviceType:       defaultDeviceType,
		HTTPTimeout:      defaultHTTPTimeout,
		HandshakeTimeout: defaultHandshakeTimeout,
		WriteTimeout:     defaultWriteTimeout,
		PingInterval:     defaultPingInterval,
		SessionKey:       []byte(defaultSessionKey),
		SessionIV:        []byte(defaultSessionIV),
	}
}

// LoadConfigFromEnv builds a config from ACCONNECT_* environment variables.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = envOrDefault("ACCONNECT_BASE_URL", cfg.BaseURL)
	cfg.ClientID = envOrDefault("ACCONNECT_CLIENT_ID", cfg.ClientID)
	cfg.DeviceType = envOrDefault("ACCONNECT_DEVICE_TYPE", cfg.DeviceType)
	if key := os.Getenv("ACCONNECT_SESSION_KEY"); key != "" {
		cfg.SessionKey = []byte(key)
	}
	if iv := os.Getenv("ACCONNECT_SESSION_IV"); iv != "" {
		cfg.SessionIV = []byte(iv)
	}

	var err error
	if cfg.HTTPTimeout, err = envDuration("ACCONNECT_HTTP_TIMEOUT", cfg.HTTPTimeout); err != nil {
		return Config{}, err
	}
	if cfg.HandshakeTimeout, err = envDuration("ACCONNECT_HANDSHAKE_TIMEOUT", cfg.HandshakeTimeout); err != nil {
		return Config{}, err
	}
	if cfg.WriteTimeout, err = envDuration("ACCONNECT_WRITE_TIMEOUT", cfg.WriteTimeout); err != nil {
		return Config{}, err
	}
	if cfg.PingInterval, err = envDuration("ACCONNECT_PING_INTERVAL", cfg.PingInterval); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

// Validate checks the config for values the client cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("base url is required")
	}
	if !strings.HasPrefix(c.BaseURL, "https://") && !strings.HasPrefix(c.BaseURL, "http://") {
		return fmt.Errorf("base url must be http(s): %q", c.BaseURL)
	}
	if c.HTTPTimeout <= 0 || c.HandshakeTimeout <= 0 || c.WriteTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if c.PingInterval <= 0 {
		return errors.New("ping interval must be positive")
	}
	switch len(c.SessionKey) {
	case 16, 24, 32:
	default:
		return fmt.Errorf("session key must be 16, 24 or 32 bytes, got %d", len(c.SessionKey))
	}
	if len(c.SessionIV) != 16 {
		return fmt.Errorf("session iv must be 16 bytes, got %d", len(c.SessionIV))
	}
	return nil
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions) error

type clientOptions struct {
	httpClient *http.Client
	logger     *slog.Logger
	rateLimits *rate.Declaration
}

// WithHTTPClient overrides the HTTP client used for every REST call, for example
// to route through a debugging proxy. Redirect handling is still disabled for login.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(o *clientOptions) error {
		if client == nil {
			return errors.New("http client must not be nil")
		}
		o.httpClient = client
		return nil
	}
}

// WithLogger sets a structured logger. By default nothing is logged.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) error {
		o.logger = logger
		return nil
	}
}

// WithRateLimits guards REST calls with the given rate-limit declaration.
func WithRateLimits(decl rate.Declaration) ClientOption {
	return func(o *clientOptions) error {
		if !decl.HasLimits() {
			return errors.New("rate limit declaration has no limits")
		}
		o.rateLimits = &decl
		return nil
	}
}

// RateLimits is the default budget for the cloud REST endpoints.
func RateLimits() rate.Declaration {
	return rate.Provider("acconnect").
		MaxRequestsPer(rate.Minute, 30).
		MaxRequestsPer(rate.Day, 2000).
		ReadHeaders(rate.StandardHeaders())
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}
