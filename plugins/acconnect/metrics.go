package acconnect

import (
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acconnect_frames_received_total",
			Help: "Inbound hub messages by method",
		},
		[]string{"method"},
	)
	commandsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acconnect_commands_sent_total",
			Help: "Commands written to the channel by field",
		},
		[]string{"field"},
	)
	commandFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acconnect_command_failures_total",
			Help: "Commands that failed to send by field",
		},
		[]string{"field"},
	)
	pingFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "acconnect_ping_failures_total",
		Help: "Keep-alive pings that failed",
	})
)

// MetricsCollectors exposes the package-level client collectors.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		framesReceived,
		commandsSent,
		commandFailures,
		pingFailures,
	}
}

// DeviceCollector reports the channel state and registry contents on every
// scrape. The state is read from the client's current channel, so a torn
// down channel can never overwrite it.
type DeviceCollector struct {
	client *Client

	channel  *prometheus.Desc
	power    *prometheus.Desc
	setpoint *prometheus.Desc
	room     *prometheus.Desc
	mode     *prometheus.Desc
	fanSpeed *prometheus.Desc
	missing  *prometheus.Desc
}

func NewDeviceCollector(client *Client) *DeviceCollector {
	labels := []string{"mac", "name"}
	return &DeviceCollector{
		client: client,
		channel: prometheus.NewDesc("acconnect_channel_state",
			"Streaming channel state (0=disconnected, 1=connecting, 2=open, 3=closed, 4=errored)", nil, nil),
		power: prometheus.NewDesc("acconnect_device_power_on",
			"Confirmed power state (1=on, 0=off)", labels, nil),
		setpoint: prometheus.NewDesc("acconnect_device_setpoint",
			"Confirmed target temperature", labels, nil),
		room: prometheus.NewDesc("acconnect_device_room_temperature",
			"Last reported room temperature", labels, nil),
		mode: prometheus.NewDesc("acconnect_device_mode",
			"Confirmed operating mode (1=active)", append(labels, "mode"), nil),
		fanSpeed: prometheus.NewDesc("acconnect_device_fan_speed",
			"Confirmed fan speed (1=active)", append(labels, "fanspeed"), nil),
		missing: prometheus.NewDesc("acconnect_devices_missing",
			"Requested devices absent from the last snapshot", nil, nil),
	}
}

func (c *DeviceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.channel
	ch <- c.power
	ch <- c.setpoint
	ch <- c.room
	ch <- c.mode
	ch <- c.fanSpeed
	ch <- c.missing
}

func (c *DeviceCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.channel, prometheus.GaugeValue, float64(c.client.State()))
	ch <- prometheus.MustNewConstMetric(c.missing, prometheus.GaugeValue, float64(len(c.client.Missing())))

	for _, dev := range c.client.Devices() {
		snap := dev.Snapshot()
		labels := []string{snap.MAC, snap.Name}

		power := 0.0
		if strings.EqualFold(snap.State.Power, powerOn) {
			power = 1
		}
		ch <- prometheus.MustNewConstMetric(c.power, prometheus.GaugeValue, power, labels...)

		if temp, err := strconv.ParseFloat(snap.State.Temperature, 64); err == nil {
			ch <- prometheus.MustNewConstMetric(c.setpoint, prometheus.GaugeValue, temp, labels...)
		}
		if snap.State.RoomTemperature != nil {
			ch <- prometheus.MustNewConstMetric(c.room, prometheus.GaugeValue, *snap.State.RoomTemperature, labels...)
		}
		if snap.State.Mode != "" {
			ch <- prometheus.MustNewConstMetric(c.mode, prometheus.GaugeValue, 1, append(labels, snap.State.Mode)...)
		}
		if snap.State.FanSpeed != "" {
			ch <- prometheus.MustNewConstMetric(c.fanSpeed, prometheus.GaugeValue, 1, append(labels, snap.State.FanSpeed)...)
		}
	}
}
