package core

import (
	"fmt"
	"strings"

	"github.com/joshp123/acconnect/plugins/acconnect"
)

// HealthStatus represents daemon health states for reporting.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "HEALTHY"
	HealthDegraded HealthStatus = "DEGRADED"
	HealthError    HealthStatus = "ERROR"
)

// Health is a point-in-time health report.
type Health struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Channel string       `json:"channel"`
	Devices int          `json:"devices"`
	Missing []string     `json:"missing,omitempty"`
}

// Evaluate derives health from the channel state and subscription result.
func Evaluate(src DeviceSource) Health {
	state := src.State()
	health := Health{
		Status:  HealthHealthy,
		Channel: state.String(),
		Devices: len(src.Snapshots()),
		Missing: src.Missing(),
	}

	switch {
	case state != acconnect.StateOpen:
		health.Status = HealthError
		health.Message = fmt.Sprintf("channel %s", state)
	case health.Devices == 0:
		health.Status = HealthError
		health.Message = "no devices subscribed"
	case len(health.Missing) > 0:
		health.Status = HealthDegraded
		health.Message = "not in account: " + strings.Join(health.Missing, ", ")
	}
	return health
}
