package server

import (
	"encoding/json"
	"net/http"

	"github.com/joshp123/acconnect/internal/core"
	"github.com/joshp123/acconnect/plugins/acconnect"
)

// HealthHandler reports channel and subscription health. Anything other
// than HEALTHY answers 503 so it can back a readiness probe.
func HealthHandler(src core.DeviceSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		health := core.Evaluate(src)
		code := http.StatusOK
		if health.Status != core.HealthHealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, health)
	})
}

type devicesResponse struct {
	Devices []acconnect.DeviceSnapshot `json:"devices"`
	Missing []string                   `json:"missing"`
}

// DevicesHandler lists every subscribed device with its last confirmed state.
func DevicesHandler(src core.DeviceSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		resp := devicesResponse{
			Devices: src.Snapshots(),
			Missing: src.Missing(),
		}
		if resp.Devices == nil {
			resp.Devices = []acconnect.DeviceSnapshot{}
		}
		if resp.Missing == nil {
			resp.Missing = []string{}
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

func writeJSON(w http.ResponseWriter, code int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(value)
}
