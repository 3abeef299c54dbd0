package acconnect

import (
	"sort"
	"strings"
	"sync"
)

// Registry holds the subscribed devices keyed by normalised MAC.
// Entries are only ever dropped all at once by Reset.
type Registry struct {
	mu      sync.RWMutex
	index   map[string]int
	devices []*Device
	seq     int64
}

func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// NormalizeMAC trims and upper-cases a hardware address.
func NormalizeMAC(mac string) string {
	return strings.ToUpper(strings.TrimSpace(mac))
}

// Reset drops every device and restarts the command sequence at 0.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.index = make(map[string]int)
	r.devices = nil
	r.seq = 0
}

// NextSequence returns the next command sequence number.
func (r *Registry) NextSequence() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	seq := r.seq
	r.seq++
	return seq
}

func (r *Registry) add(info DeviceInfo, state DeviceState, cmd commander) *Device {
	info.MAC = NormalizeMAC(info.MAC)
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx, ok := r.index[info.MAC]; ok {
		dev := r.devices[idx]
		dev.state = state
		return dev
	}
	dev := &Device{reg: r, cmd: cmd, info: info, state: state}
	r.index[info.MAC] = len(r.devices)
	r.devices = append(r.devices, dev)
	return dev
}

// Lookup returns the device for mac, or nil.
func (r *Registry) Lookup(mac string) *Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.index[NormalizeMAC(mac)]
	if !ok {
		return nil
	}
	return r.devices[idx]
}

// List returns the devices sorted by MAC.
func (r *Registry) List() []*Device {
	r.mu.RLock()
	out := append([]*Device(nil), r.devices...)
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].info.MAC < out[j].info.MAC })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// applyAction overwrites the fields present in update. Unknown MACs are ignored.
func (r *Registry) applyAction(update actionUpdate) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.index[NormalizeMAC(update.MACAddress)]
	if !ok {
		return false
	}
	dev := r.devices[idx]
	if update.Power != nil {
		dev.state.Power = string(*update.Power)
	}
	if update.Mode != nil {
		dev.state.Mode = string(*update.Mode)
	}
	if update.FanSpeed != nil {
		dev.state.FanSpeed = string(*update.FanSpeed)
	}
	if update.Temp != nil {
		dev.state.Temperature = string(*update.Temp)
	}
	return true
}

// applyRoomTemperature overwrites only the room temperature.
func (r *Registry) applyRoomTemperature(mac string, value float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.index[NormalizeMAC(mac)]
	if !ok {
		return false
	}
	room := value
	r.devices[idx].state.RoomTemperature = &room
	return true
}
