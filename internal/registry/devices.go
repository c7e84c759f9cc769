package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Device is one paired operator device.
type Device struct {
	DeviceID   string `json:"deviceId"`
	Platform   string `json:"platform"`
	Label      string `json:"label"`
	PushToken  string `json:"pushToken"`
	PairedAt   string `json:"pairedAt"`
	LastSeenAt string `json:"lastSeenAt"`
}

// DeviceRegistry maps device ids to records.
type DeviceRegistry struct {
	mu        sync.Mutex
	devices   map[string]*Device
	statePath string
	logger    *slog.Logger
	now       func() time.Time
}

type deviceFile struct {
	Version int      `json:"version"`
	Devices []Device `json:"devices"`
}

// NewDeviceRegistry loads existing state from statePath.
func NewDeviceRegistry(statePath string, logger *slog.Logger) (*DeviceRegistry, error) {
	r := &DeviceRegistry{
		devices:   make(map[string]*Device),
		statePath: statePath,
		logger:    logger.With(slog.String("component", "device_registry")),
		now:       time.Now,
	}
	if statePath != "" {
		if err := os.MkdirAll(filepath.Dir(statePath), 0o755); err != nil {
			return nil, fmt.Errorf("registry: create state dir: %w", err)
		}
		r.load()
	}
	return r, nil
}

// Pair upserts a device. New devices get pairedAt stamped; existing ones
// keep it and refresh lastSeenAt.
func (r *DeviceRegistry) Pair(deviceID, platform, label, pushToken string) Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC().Format(time.RFC3339Nano)
	device, ok := r.devices[deviceID]
	if !ok {
		device = &Device{DeviceID: deviceID, PairedAt: now}
		r.devices[deviceID] = device
	}
	device.Platform = platform
	device.Label = label
	device.PushToken = pushToken
	device.LastSeenAt = now

	r.saveLocked()
	return *device
}

// List returns all paired devices.
func (r *DeviceRegistry) List() []Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Device, 0, len(r.devices))
	for _, device := range r.devices {
		out = append(out, *device)
	}
	return out
}

// Get returns the device for the given id.
func (r *DeviceRegistry) Get(deviceID string) (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	device, ok := r.devices[deviceID]
	if !ok {
		return Device{}, false
	}
	return *device, true
}

// Unpair removes a device. Returns false when unknown.
func (r *DeviceRegistry) Unpair(deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[deviceID]; !ok {
		return false
	}
	delete(r.devices, deviceID)
	r.saveLocked()
	return true
}

// RegisterPush replaces the push token for a known device.
func (r *DeviceRegistry) RegisterPush(deviceID, pushToken string) (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return Device{}, false
	}
	device.PushToken = pushToken
	device.LastSeenAt = r.now().UTC().Format(time.RFC3339Nano)
	r.saveLocked()
	return *device, true
}

// Touch refreshes lastSeenAt for a known device. Returns false when the
// device is missing.
func (r *DeviceRegistry) Touch(deviceID string) (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return Device{}, false
	}
	device.LastSeenAt = r.now().UTC().Format(time.RFC3339Nano)
	r.saveLocked()
	return *device, true
}

// PublicPayload is the wire shape of a device; the push token stays
// server-side.
func (d Device) PublicPayload() map[string]any {
	return map[string]any{
		"deviceId":   d.DeviceID,
		"platform":   d.Platform,
		"label":      d.Label,
		"pairedAt":   d.PairedAt,
		"lastSeenAt": d.LastSeenAt,
	}
}

func (r *DeviceRegistry) load() {
	data, err := os.ReadFile(r.statePath)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("registry: read devices file failed", slog.String("error", err.Error()))
		}
		return
	}

	var file deviceFile
	if err := json.Unmarshal(data, &file); err != nil {
		r.logger.Warn("registry: devices file is not valid JSON", slog.String("error", err.Error()))
		return
	}
	for i := range file.Devices {
		device := file.Devices[i]
		if device.DeviceID == "" {
			r.logger.Warn("registry: skipping device row without deviceId")
			continue
		}
		r.devices[device.DeviceID] = &device
	}
}

func (r *DeviceRegistry) saveLocked() {
	if r.statePath == "" {
		return
	}

	file := deviceFile{Version: 1, Devices: make([]Device, 0, len(r.devices))}
	for _, device := range r.devices {
		file.Devices = append(file.Devices, *device)
	}
	sort.Slice(file.Devices, func(i, j int) bool {
		return file.Devices[i].DeviceID < file.Devices[j].DeviceID
	})

	payload, err := json.Marshal(file)
	if err != nil {
		r.logger.Error("registry: marshal devices failed", slog.String("error", err.Error()))
		return
	}
	if err := writeAtomic(r.statePath, payload); err != nil {
		r.logger.Error("registry: write devices failed", slog.String("error", err.Error()))
	}
}
