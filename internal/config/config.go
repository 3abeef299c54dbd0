package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultGRPCAddr      = "0.0.0.0:9000"
	DefaultHTTPAddr      = "0.0.0.0:8080"
	DefaultSourceAddr    = "0.0.0.0"
	DefaultMQTTPrefix    = "acconnect"
	DefaultMaxRetries    = 0
	DefaultRetryBase     = 5 * time.Second
	DefaultRetryMax      = 5 * time.Minute
	DefaultLogLevel      = "info"
	DefaultCommandWindow = 10 * time.Second
)

// Config is the daemon configuration. Client-level settings (base URL,
// timeouts, session cipher) are read by acconnect.LoadConfigFromEnv.
type Config struct {
	Username     string
	PasswordFile string
	Devices      []string
	SourceAddr   string

	HTTPAddr string
	GRPCAddr string

	MQTT *MQTTConfig

	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	CommandTimeout time.Duration

	LogLevel string
}

// MQTTConfig enables the MQTT mirror when Broker is set.
type MQTTConfig struct {
	Broker       string
	Username     string
	PasswordFile string
	ClientID     string
	TopicPrefix  string
}

// Load reads ACCONNECT_* variables, applies defaults and validates.
func Load() (*Config, error) {
	cfg := &Config{
		Username:     os.Getenv("ACCONNECT_USERNAME"),
		PasswordFile: os.Getenv("ACCONNECT_PASSWORD_FILE"),
		Devices:      splitList(os.Getenv("ACCONNECT_DEVICES")),
		SourceAddr:   os.Getenv("ACCONNECT_SOURCE_ADDR"),
		HTTPAddr:     os.Getenv("ACCONNECT_HTTP_ADDR"),
		GRPCAddr:     os.Getenv("ACCONNECT_GRPC_ADDR"),
		LogLevel:     os.Getenv("ACCONNECT_LOG_LEVEL"),
		MaxRetries:   -1,
	}

	if broker := os.Getenv("ACCONNECT_MQTT_BROKER"); broker != "" {
		cfg.MQTT = &MQTTConfig{
			Broker:       broker,
			Username:     os.Getenv("ACCONNECT_MQTT_USERNAME"),
			PasswordFile: os.Getenv("ACCONNECT_MQTT_PASSWORD_FILE"),
			ClientID:     os.Getenv("ACCONNECT_MQTT_CLIENT_ID"),
			TopicPrefix:  os.Getenv("ACCONNECT_MQTT_TOPIC_PREFIX"),
		}
	}

	var err error
	if value := os.Getenv("ACCONNECT_MAX_RETRIES"); value != "" {
		if cfg.MaxRetries, err = strconv.Atoi(value); err != nil {
			return nil, fmt.Errorf("parse ACCONNECT_MAX_RETRIES: %w", err)
		}
	}
	if cfg.RetryBaseDelay, err = envDuration("ACCONNECT_RETRY_BASE_DELAY"); err != nil {
		return nil, err
	}
	if cfg.RetryMaxDelay, err = envDuration("ACCONNECT_RETRY_MAX_DELAY"); err != nil {
		return nil, err
	}
	if cfg.CommandTimeout, err = envDuration("ACCONNECT_COMMAND_TIMEOUT"); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.SourceAddr == "" {
		cfg.SourceAddr = DefaultSourceAddr
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.GRPCAddr == "" {
		cfg.GRPCAddr = DefaultGRPCAddr
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = DefaultRetryBase
	}
	if cfg.RetryMaxDelay == 0 {
		cfg.RetryMaxDelay = DefaultRetryMax
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = DefaultCommandWindow
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.MQTT != nil && cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = DefaultMQTTPrefix
	}
}

// Validate enforces required settings.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.Username == "" {
		return fmt.Errorf("ACCONNECT_USERNAME is required")
	}
	if cfg.PasswordFile == "" {
		return fmt.Errorf("ACCONNECT_PASSWORD_FILE is required")
	}
	if len(cfg.Devices) == 0 {
		return fmt.Errorf("ACCONNECT_DEVICES must list at least one MAC address")
	}
	if cfg.HTTPAddr == "" {
		return fmt.Errorf("http addr is required")
	}
	if cfg.GRPCAddr == "" {
		return fmt.Errorf("grpc addr is required")
	}
	if cfg.RetryBaseDelay <= 0 || cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		return fmt.Errorf("retry delays must be positive with max >= base")
	}
	if cfg.CommandTimeout <= 0 {
		return fmt.Errorf("command timeout must be positive")
	}
	if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	if cfg.MQTT != nil {
		u, err := url.Parse(cfg.MQTT.Broker)
		if err != nil || u.Host == "" {
			return fmt.Errorf("ACCONNECT_MQTT_BROKER must be a url like tcp://host:1883")
		}
		switch u.Scheme {
		case "tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts":
		default:
			return fmt.Errorf("unsupported mqtt scheme %q", u.Scheme)
		}
		if strings.ContainsAny(cfg.MQTT.TopicPrefix, "+#") {
			return fmt.Errorf("mqtt topic prefix must not contain wildcards")
		}
	}
	return nil
}

// ReadSecret reads a secret file and trims surrounding whitespace.
func ReadSecret(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", path)
	}
	return secret, nil
}

// ParseLogLevel maps a level name to a slog level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' || r == ';' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envDuration(key string) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return 0, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}
