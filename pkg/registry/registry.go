package registry

import (
	"sync"

	"github.com/dyscypliner/dyscypliner-go/pkg/status"
)

// Device is a remote reporting entity tracked by the hub.
// ID and Name are immutable after creation; Status changes only through
// the registry's status operations.
type Device struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Status status.Status `json:"status"`
}

// Registry holds all known devices in creation order.
// Devices are never removed; a dead device is soft-state (Offline).
// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	devices []*Device
	byID    map[string]*Device
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byID: make(map[string]*Device),
	}
}

// Add creates a device with a fresh id and initial status Offline and
// appends it to the registry. The returned Device is a copy.
func (r *Registry) Add(name string) Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := newDeviceID()
	// Collision odds are negligible at 16 alphanumeric characters, but a
	// re-roll costs nothing and keeps the uniqueness invariant absolute.
	for _, exists := r.byID[id]; exists; _, exists = r.byID[id] {
		id = newDeviceID()
	}

	d := &Device{
		ID:     id,
		Name:   name,
		Status: status.Offline,
	}
	r.devices = append(r.devices, d)
	r.byID[id] = d

	return *d
}

// SetStatus updates the device's status if it differs from the current one.
// It returns true only when the status actually changed: an unknown id or an
// equal status is a no-op returning false. The suppression on equal status
// prevents broadcast storms from devices re-reporting the same state.
func (r *Registry) SetStatus(id string, s status.Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byID[id]
	if !ok || d.Status == s {
		return false
	}
	d.Status = s
	return true
}

// ForceStatus unconditionally sets the device's status, even if unchanged.
// It returns false when the id is unknown. The hub uses this for first-seen
// reports and timeout eviction, where the liveness transition itself must be
// announced regardless of the stored status.
func (r *Registry) ForceStatus(id string, s status.Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byID[id]
	if !ok {
		return false
	}
	d.Status = s
	return true
}

// Find returns a copy of the device with the given id.
func (r *Registry) Find(id string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byID[id]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// Snapshot returns copies of all devices in creation order.
func (r *Registry) Snapshot() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Device, len(r.devices))
	for i, d := range r.devices {
		out[i] = *d
	}
	return out
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
