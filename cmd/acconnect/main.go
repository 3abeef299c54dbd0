package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joshp123/acconnect/internal/config"
	"github.com/joshp123/acconnect/internal/core"
	"github.com/joshp123/acconnect/internal/mqttbridge"
	"github.com/joshp123/acconnect/internal/oauth"
	"github.com/joshp123/acconnect/internal/rate"
	"github.com/joshp123/acconnect/internal/rpc"
	"github.com/joshp123/acconnect/internal/server"
	"github.com/joshp123/acconnect/plugins/acconnect"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		log.Fatalf("acconnect: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	password, err := config.ReadSecret(cfg.PasswordFile)
	if err != nil {
		return fmt.Errorf("password: %w", err)
	}

	clientCfg, err := acconnect.LoadConfigFromEnv()
	if err != nil {
		return fmt.Errorf("client config: %w", err)
	}
	client, err := acconnect.NewClient(clientCfg,
		acconnect.WithLogger(logger),
		acconnect.WithRateLimits(acconnect.RateLimits()),
	)
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client.OnError(func(err error) {
		logger.Warn("acconnect channel error", "error", err)
	})

	var bridge *mqttbridge.Bridge
	if cfg.MQTT != nil {
		mqttPassword := ""
		if cfg.MQTT.PasswordFile != "" {
			if mqttPassword, err = config.ReadSecret(cfg.MQTT.PasswordFile); err != nil {
				return fmt.Errorf("mqtt password: %w", err)
			}
		}
		bridge = mqttbridge.New(mqttbridge.Config{
			Broker:         cfg.MQTT.Broker,
			Username:       cfg.MQTT.Username,
			Password:       mqttPassword,
			ClientID:       cfg.MQTT.ClientID,
			TopicPrefix:    cfg.MQTT.TopicPrefix,
			CommandTimeout: cfg.CommandTimeout,
		}, client, client, logger)
		if err := bridge.Start(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		defer bridge.Stop()

		client.OnCommand(func(ev acconnect.CommandEvent) { bridge.PublishDevice(ev.MAC) })
		client.OnTemperature(func(ev acconnect.TemperatureEvent) { bridge.PublishDevice(ev.MAC) })
	}

	metricsRegistry := core.MetricsRegistry(
		acconnect.MetricsCollectors(),
		oauth.MetricsCollectors(),
		rate.MetricsCollectors(),
	)
	metricsRegistry.MustRegister(acconnect.NewDeviceCollector(client))
	metricsRegistry.MustRegister(server.BuildInfo(version))

	grpcServer, err := server.NewGRPCServer(cfg.GRPCAddr, rpc.NewService(client, client))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	httpServer := server.NewHTTPServer(cfg.HTTPAddr, server.NewMux(client, metricsRegistry))

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http serve: %v", err)
		}
	}()
	go func() {
		if err := grpcServer.Serve(); err != nil {
			log.Fatalf("grpc serve: %v", err)
		}
	}()
	logger.Info("acconnect started", "version", version, "http", cfg.HTTPAddr, "grpc", cfg.GRPCAddr, "devices", len(cfg.Devices))

	retry := acconnect.RetryConfig{
		MaxRetries:    cfg.MaxRetries,
		BaseDelay:     cfg.RetryBaseDelay,
		MaxDelay:      cfg.RetryMaxDelay,
		BackoffFactor: 2,
	}
	err = acconnect.Supervise(ctx, retry, func(ctx context.Context) (<-chan struct{}, error) {
		if err := client.Connect(ctx, cfg.Username, password, cfg.SourceAddr); err != nil {
			logger.Warn("acconnect connect failed", "error", err)
			return nil, err
		}
		if err := client.Subscribe(ctx, cfg.Devices); err != nil {
			logger.Warn("acconnect subscribe failed", "error", err)
			_ = client.Close()
			return nil, err
		}
		if bridge != nil {
			bridge.PublishAll()
		}
		return client.Done(), nil
	})

	_ = client.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	grpcServer.Stop()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("acconnect stopped")
	return nil
}
