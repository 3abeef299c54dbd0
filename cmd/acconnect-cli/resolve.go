package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/joshp123/acconnect/internal/rpc"
)

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	replacer := strings.NewReplacer(" ", "_", "-", "_")
	name = replacer.Replace(name)
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	return name
}

func looksLikeMAC(input string) bool {
	return strings.Count(input, ":") == 5 || strings.Count(input, "-") == 5
}

// resolveDevice maps a device name to its MAC. MAC-shaped input is passed
// through and left to the daemon to validate.
func resolveDevice(ctx context.Context, client *rpc.DeviceClient, input string) (string, error) {
	if looksLikeMAC(input) {
		return strings.ReplaceAll(input, "-", ":"), nil
	}
	resp, err := client.ListDevices(ctx)
	if err != nil {
		return "", fmt.Errorf("list devices: %w", err)
	}
	options := make(map[string]string)
	for _, raw := range listOf(resp, "devices") {
		dev, _ := raw.(map[string]any)
		name, _ := dev["name"].(string)
		mac, _ := dev["mac"].(string)
		if name != "" && mac != "" {
			options[name] = mac
		}
	}
	return resolveNamedID("device", input, options)
}

func resolveNamedID(kind, input string, options map[string]string) (string, error) {
	needle := normalizeName(input)
	for label, id := range options {
		if normalizeName(label) == needle {
			return id, nil
		}
	}
	available := make([]string, 0, len(options))
	for label := range options {
		available = append(available, label)
	}
	sort.Strings(available)
	return "", fmt.Errorf("%s %q not found. Available: %s", kind, input, strings.Join(available, ", "))
}
