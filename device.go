package main

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Registry discovers connected devices and tracks the primary one.
// It is the only component that talks to `adb devices`; everything else
// asks the registry and carries an explicit device id.
type Registry struct {
	exec *AdbExecutor

	mu      sync.RWMutex
	devices []Device

	monitorCancel context.CancelFunc
	monitorMu     sync.Mutex
}

// NewRegistry returns a registry backed by the given executor.
func NewRegistry(exec *AdbExecutor) *Registry {
	return &Registry{exec: exec}
}

var resolutionRe = regexp.MustCompile(`(\d+)x(\d+)`)

// classifyDevice infers the connection kind from the adb identifier.
// emulator-* ids are emulators; ids carrying a host:port are wireless;
// everything else is a USB serial.
func classifyDevice(id string) DeviceKind {
	switch {
	case strings.HasPrefix(id, "emulator-"):
		return KindEmulator
	case strings.Contains(id, ":"):
		return KindWireless
	default:
		return KindUSB
	}
}

// ListDevices scans for connected devices. Devices absent from the scan
// are evicted; the result is sorted USB > wireless > emulator.
func (r *Registry) ListDevices() ([]Device, error) {
	res, err := r.exec.RunHost("devices", "-l")
	if err != nil {
		return nil, err
	}

	var devices []Device
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices attached") || strings.HasPrefix(line, "*") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}

		d := Device{
			ID:     parts[0],
			Kind:   classifyDevice(parts[0]),
			Online: parts[1] == "device",
		}
		for _, p := range parts[2:] {
			if kv := strings.SplitN(p, ":", 2); len(kv) == 2 && kv[0] == "model" {
				d.Model = strings.ReplaceAll(kv[1], "_", " ")
			}
		}
		devices = append(devices, d)
	}

	sort.SliceStable(devices, func(i, j int) bool {
		if devices[i].Online != devices[j].Online {
			return devices[i].Online
		}
		return devices[i].Kind.connectPriority() < devices[j].Kind.connectPriority()
	})

	r.mu.Lock()
	r.devices = devices
	r.mu.Unlock()

	LogDebug("device").Int("count", len(devices)).Msg("Device scan")
	return devices, nil
}

// PrimaryDevice returns the highest-priority device from the last
// successful scan, or ErrDeviceUnavailable when none is known.
func (r *Registry) PrimaryDevice() (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.devices {
		if d.Online {
			return d, nil
		}
	}
	return Device{}, ErrDeviceUnavailable
}

// Known returns the cached device list without rescanning.
func (r *Registry) Known() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Device, len(r.devices))
	copy(out, r.devices)
	return out
}

// IsOnline reports device liveness. It fails soft: any executor error
// reads as offline, never as an error — liveness checks must not crash
// a caller.
func (r *Registry) IsOnline(deviceID string) bool {
	if ValidateDeviceID(deviceID) != nil {
		return false
	}
	out, err := r.exec.Shell(deviceID, "echo ok")
	return err == nil && strings.Contains(out, "ok")
}

// ScreenSize returns the device screen resolution in pixels.
// Parses "Physical size: 1080x2400" (or an Override line) from `wm size`.
func (r *Registry) ScreenSize(deviceID string) (int, int, error) {
	out, err := r.exec.Shell(deviceID, "wm size")
	if err != nil {
		return 0, 0, err
	}
	m := resolutionRe.FindStringSubmatch(out)
	if len(m) < 3 {
		// Guessing here would silently corrupt every scaled coordinate
		// downstream, so refuse instead.
		return 0, 0, fmt.Errorf("unparseable wm size output: %q", firstLine(out))
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	return w, h, nil
}

// FocusedPackage returns the package owning the current window focus,
// or "" when it cannot be determined.
func (r *Registry) FocusedPackage(deviceID string) string {
	out, err := r.exec.Shell(deviceID, "dumpsys window | grep -E 'mCurrentFocus|mFocusedApp'")
	if err != nil {
		return ""
	}
	// mCurrentFocus=Window{... com.example.app/com.example.app.MainActivity}
	for _, line := range strings.Split(out, "\n") {
		if idx := strings.LastIndex(line, " "); idx != -1 {
			token := strings.Trim(line[idx+1:], "}")
			if slash := strings.Index(token, "/"); slash != -1 {
				return token[:slash]
			}
		}
	}
	return ""
}

// StartMonitor rescans the device list periodically so the primary
// device stays fresh without every caller forcing a scan. onChange, when
// non-nil, fires with the new device list whenever the set of attached
// or online devices changes.
func (r *Registry) StartMonitor(ctx context.Context, interval time.Duration, onChange func([]Device)) {
	r.monitorMu.Lock()
	defer r.monitorMu.Unlock()
	if r.monitorCancel != nil {
		return
	}

	monCtx, cancel := context.WithCancel(ctx)
	r.monitorCancel = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		var lastSeen string
		for {
			select {
			case <-monCtx.Done():
				return
			case <-ticker.C:
				devices, err := r.ListDevices()
				if err != nil {
					LogDebug("device").Err(err).Msg("Monitor scan failed")
					continue
				}
				snapshot := deviceSnapshot(devices)
				if snapshot != lastSeen {
					if lastSeen != "" {
						LogInfo("device").Int("count", len(devices)).Msg("Device set changed")
					}
					lastSeen = snapshot
					if onChange != nil {
						onChange(devices)
					}
				}
			}
		}
	}()
}

// deviceSnapshot flattens the list into a comparable key.
func deviceSnapshot(devices []Device) string {
	var b strings.Builder
	for _, d := range devices {
		b.WriteString(d.ID)
		if d.Online {
			b.WriteByte('+')
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// StopMonitor stops the periodic rescan.
func (r *Registry) StopMonitor() {
	r.monitorMu.Lock()
	defer r.monitorMu.Unlock()
	if r.monitorCancel != nil {
		r.monitorCancel()
		r.monitorCancel = nil
	}
}
