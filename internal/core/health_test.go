package core

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/acconnect/plugins/acconnect"
)

type stubSource struct {
	state   acconnect.State
	devices []acconnect.DeviceSnapshot
	missing []string
}

func (s stubSource) Snapshots() []acconnect.DeviceSnapshot { return s.devices }

func (s stubSource) Missing() []string { return s.missing }

func (s stubSource) State() acconnect.State { return s.state }

func TestEvaluate(t *testing.T) {
	one := []acconnect.DeviceSnapshot{{DeviceInfo: acconnect.DeviceInfo{MAC: "AA:BB"}}}

	tests := []struct {
		name   string
		source stubSource
		want   HealthStatus
	}{
		{name: "open with devices", source: stubSource{state: acconnect.StateOpen, devices: one}, want: HealthHealthy},
		{name: "open missing some", source: stubSource{state: acconnect.StateOpen, devices: one, missing: []string{"CC:DD"}}, want: HealthDegraded},
		{name: "open without devices", source: stubSource{state: acconnect.StateOpen}, want: HealthError},
		{name: "errored", source: stubSource{state: acconnect.StateErrored, devices: one}, want: HealthError},
		{name: "never connected", source: stubSource{}, want: HealthError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.source)
			if got.Status != tt.want {
				t.Fatalf("expected %s, got %s (%s)", tt.want, got.Status, got.Message)
			}
			if got.Channel != tt.source.state.String() {
				t.Fatalf("expected channel %s, got %s", tt.source.state, got.Channel)
			}
		})
	}
}

func TestMetricsRegistry(t *testing.T) {
	a := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_a_total", Help: "a"})
	b := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_b", Help: "b"})

	registry := MetricsRegistry([]prometheus.Collector{a}, []prometheus.Collector{b})
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 2 {
		t.Fatalf("expected 2 metric families, got %d", len(families))
	}
}
