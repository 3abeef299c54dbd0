package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fullstorydev/grpcurl"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/joshp123/acconnect/internal/rpc"
)

var (
	addr       string
	jsonOutput bool
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "acconnect-cli",
	Short:         "Control air conditioners through the acconnect daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&addr, "addr", envOrDefault("ACCONNECT_GRPC_ADDR", "localhost:9000"), "daemon gRPC address")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of a table")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")

	rootCmd.AddCommand(devicesCmd, getCmd, setCmd, healthCmd)
	rootCmd.AddCommand(servicesCmd, methodsCmd, callCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// dial connects to the daemon and returns a context bounded by --timeout.
func dial(cmd *cobra.Command) (context.Context, *grpc.ClientConn, func(), error) {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	conn, err := grpcurl.BlockingDial(ctx, "tcp", addr, insecure.NewCredentials())
	if err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return ctx, conn, func() {
		_ = conn.Close()
		cancel()
	}, nil
}

func deviceClient(conn *grpc.ClientConn) *rpc.DeviceClient {
	return rpc.NewDeviceClient(conn)
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
