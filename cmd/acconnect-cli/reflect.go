package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fullstorydev/grpcurl"
	"github.com/jhump/protoreflect/grpcreflect"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "List gRPC services exposed by the daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, conn, closeFn, err := dial(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		services, err := grpcurl.ListServices(reflectionSource(ctx, conn))
		if err != nil {
			return fmt.Errorf("list services: %w", err)
		}
		for _, service := range services {
			fmt.Fprintln(cmd.OutOrStdout(), service)
		}
		return nil
	},
}

var methodsCmd = &cobra.Command{
	Use:   "methods <service>",
	Short: "List methods of a gRPC service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, conn, closeFn, err := dial(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		methods, err := grpcurl.ListMethods(reflectionSource(ctx, conn), args[0])
		if err != nil {
			return fmt.Errorf("list methods: %w", err)
		}
		for _, method := range methods {
			fmt.Fprintln(cmd.OutOrStdout(), method)
		}
		return nil
	},
}

var callData string

var callCmd = &cobra.Command{
	Use:   "call <service/method>",
	Short: "Invoke any method with a JSON body (--data or stdin)",
	Example: `  acconnect-cli call acconnect.v1.DeviceService/SetDevice --data '{"mac":"AA:BB:CC:DD:EE:01","field":"power","value":"on"}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, conn, closeFn, err := dial(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		descSource := reflectionSource(ctx, conn)

		var reader io.Reader
		if callData != "" {
			reader = strings.NewReader(callData)
		} else if isStdinTerminal() {
			reader = strings.NewReader("{}")
		} else {
			reader = os.Stdin
		}

		parser, formatter, err := grpcurl.RequestParserAndFormatter(grpcurl.FormatJSON, descSource, reader, grpcurl.FormatOptions{})
		if err != nil {
			return fmt.Errorf("parse request: %w", err)
		}

		handler := &grpcurl.DefaultEventHandler{
			Out:       cmd.OutOrStdout(),
			Formatter: formatter,
		}
		if err := grpcurl.InvokeRPC(ctx, descSource, conn, args[0], nil, handler, parser.Next); err != nil {
			return fmt.Errorf("invoke: %w", err)
		}
		if handler.Status != nil && handler.Status.Err() != nil {
			return handler.Status.Err()
		}
		return nil
	},
}

func init() {
	callCmd.Flags().StringVar(&callData, "data", "", "JSON request body")
}

func reflectionSource(ctx context.Context, conn *grpc.ClientConn) grpcurl.DescriptorSource {
	client := grpcreflect.NewClientAuto(ctx, conn)
	return grpcurl.DescriptorSourceFromServer(ctx, client)
}

func isStdinTerminal() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return true
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
