package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/structpb"
)

var devicesCmd = &cobra.Command{
	Use:     "devices",
	Aliases: []string{"list"},
	Short:   "List subscribed devices and their last confirmed state",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, conn, closeFn, err := dial(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		resp, err := deviceClient(conn).ListDevices(ctx)
		if err != nil {
			return fmt.Errorf("list devices: %w", err)
		}
		out := outputMode{json: jsonOutput}
		if out.json {
			return out.printJSON(resp.AsMap())
		}

		devices := listOf(resp, "devices")
		rows := [][]string{{"NAME", "MAC", "POWER", "MODE", "FAN", "SET", "ROOM"}}
		for _, dev := range devices {
			rows = append(rows, deviceRow(dev))
		}
		out.table(cmd.OutOrStdout(), rows)
		for _, mac := range listOf(resp, "missing") {
			fmt.Fprintf(cmd.OutOrStdout(), "missing: %v\n", mac)
		}
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <device>",
	Short: "Show one device by name or MAC",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, conn, closeFn, err := dial(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		client := deviceClient(conn)
		mac, err := resolveDevice(ctx, client, args[0])
		if err != nil {
			return err
		}
		resp, err := client.GetDevice(ctx, mac)
		if err != nil {
			return fmt.Errorf("get device: %w", err)
		}
		out := outputMode{json: jsonOutput}
		if out.json {
			return out.printJSON(resp.AsMap())
		}
		rows := [][]string{{"NAME", "MAC", "POWER", "MODE", "FAN", "SET", "ROOM"}, deviceRow(resp.AsMap())}
		out.table(cmd.OutOrStdout(), rows)
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set <device> <field> <value>",
	Short: "Send a command; field is power, mode, fanspeed or temp",
	Example: `  acconnect-cli set living_room power on
  acconnect-cli set AA:BB:CC:DD:EE:01 temp 21.5`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, conn, closeFn, err := dial(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		client := deviceClient(conn)
		mac, err := resolveDevice(ctx, client, args[0])
		if err != nil {
			return err
		}
		if err := client.SetDevice(ctx, mac, args[1], args[2]); err != nil {
			return fmt.Errorf("set %s: %w", args[1], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent %s=%s to %s\n", args[1], args[2], mac)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show daemon health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, conn, closeFn, err := dial(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		resp, err := deviceClient(conn).Health(ctx)
		if err != nil {
			return fmt.Errorf("health: %w", err)
		}
		out := outputMode{json: jsonOutput}
		if out.json {
			return out.printJSON(resp.AsMap())
		}
		health := resp.AsMap()
		fmt.Fprintf(cmd.OutOrStdout(), "status: %v\n", health["status"])
		fmt.Fprintf(cmd.OutOrStdout(), "channel: %v\n", health["channel"])
		fmt.Fprintf(cmd.OutOrStdout(), "devices: %v\n", health["devices"])
		if msg, ok := health["message"]; ok {
			fmt.Fprintf(cmd.OutOrStdout(), "message: %v\n", msg)
		}
		return nil
	},
}

func listOf(resp *structpb.Struct, key string) []any {
	list, _ := resp.AsMap()[key].([]any)
	return list
}

func deviceRow(raw any) []string {
	dev, _ := raw.(map[string]any)
	state, _ := dev["state"].(map[string]any)
	room := "-"
	if v, ok := state["roomTemperature"]; ok {
		room = fmt.Sprintf("%v", v)
	}
	return []string{
		text(dev["name"]),
		text(dev["mac"]),
		text(state["power"]),
		text(state["mode"]),
		text(state["fanSpeed"]),
		text(state["temperature"]),
		room,
	}
}

func text(v any) string {
	if v == nil {
		return "-"
	}
	s := fmt.Sprintf("%v", v)
	if s == "" {
		return "-"
	}
	return s
}
