package main

import "testing"

func TestClassifyDevice(t *testing.T) {
	tests := []struct {
		id   string
		want DeviceKind
	}{
		{"emulator-5554", KindEmulator},
		{"emulator-5556", KindEmulator},
		{"192.168.1.42:5555", KindWireless},
		{"[::1]:5555", KindWireless},
		{"R5CR1038XYZ", KindUSB},
		{"0123456789ABCDEF", KindUSB},
	}

	for _, tt := range tests {
		if got := classifyDevice(tt.id); got != tt.want {
			t.Errorf("classifyDevice(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestScreenSize(t *testing.T) {
	reg := NewRegistry(writeStubAdb(t, `#!/bin/sh
echo "Physical size: 1080x2400"
`))
	w, h, err := reg.ScreenSize("emulator-5554")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w != 1080 || h != 2400 {
		t.Errorf("size = %dx%d, want 1080x2400", w, h)
	}
}

func TestScreenSizeUnparseableIsAnError(t *testing.T) {
	// The resolution feeds coordinate scaling; a guessed default would
	// silently corrupt every recorded position.
	reg := NewRegistry(writeStubAdb(t, `#!/bin/sh
echo "Error: unable to connect to window manager"
`))
	if _, _, err := reg.ScreenSize("emulator-5554"); err == nil {
		t.Error("garbage wm size output must fail, not fall back to a default")
	}
}

func TestDeviceSnapshot(t *testing.T) {
	devices := []Device{
		{ID: "R5CR1038XYZ", Online: true},
		{ID: "emulator-5554", Online: false},
	}
	a := deviceSnapshot(devices)

	devices[1].Online = true
	b := deviceSnapshot(devices)
	if a == b {
		t.Error("online transition should change the snapshot")
	}

	c := deviceSnapshot(devices[:1])
	if b == c {
		t.Error("removing a device should change the snapshot")
	}

	if deviceSnapshot(nil) != "" {
		t.Error("empty device list should produce an empty snapshot")
	}
}
