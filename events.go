package main

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// The capture subprocess emits textual kernel input events. This file
// turns those lines into typed events and typed events into gestures, so
// the classification logic is testable against fixture streams without a
// device attached.

// RawEventKind discriminates typed input events.
type RawEventKind int

const (
	EvAxis RawEventKind = iota
	EvButton
)

// Axis identifies a positional channel.
type Axis int

const (
	AxisX Axis = iota
	AxisY
)

// Edge identifies a contact transition.
type Edge int

const (
	EdgeDown Edge = iota
	EdgeUp
)

// RawEvent is one decoded input event.
type RawEvent struct {
	Kind  RawEventKind
	Time  float64 // kernel timestamp, seconds
	Axis  Axis    // valid when Kind == EvAxis
	Value int     // valid when Kind == EvAxis
	Edge  Edge    // valid when Kind == EvButton
}

// getevent -lt line:
//   [ 1234.567890] EV_ABS       ABS_MT_POSITION_X    00000123
//   [ 1234.567890] EV_KEY       BTN_TOUCH            DOWN
var geteventRe = regexp.MustCompile(`\[\s*([\d.]+)\]\s+(EV_\w+)\s+(\w+)\s+(\S+)`)

// ParseRawEvent decodes one getevent line. The second return value is
// false for lines that carry no touch information (sync markers, other
// axes, unparseable noise).
func ParseRawEvent(line string) (RawEvent, bool) {
	m := geteventRe.FindStringSubmatch(line)
	if len(m) < 5 {
		return RawEvent{}, false
	}

	ts, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return RawEvent{}, false
	}
	evType, evCode, evValue := m[2], m[3], m[4]

	switch evType {
	case "EV_ABS":
		u, err := strconv.ParseUint(evValue, 16, 32)
		if err != nil {
			return RawEvent{}, false
		}
		v := int32(u) // 0xffffffff decodes to -1 (tracking release)
		switch evCode {
		case "ABS_MT_POSITION_X":
			return RawEvent{Kind: EvAxis, Time: ts, Axis: AxisX, Value: int(v)}, true
		case "ABS_MT_POSITION_Y":
			return RawEvent{Kind: EvAxis, Time: ts, Axis: AxisY, Value: int(v)}, true
		case "ABS_MT_TRACKING_ID":
			if v == -1 {
				return RawEvent{Kind: EvButton, Time: ts, Edge: EdgeUp}, true
			}
			return RawEvent{Kind: EvButton, Time: ts, Edge: EdgeDown}, true
		}
	case "EV_KEY":
		if evCode != "BTN_TOUCH" {
			return RawEvent{}, false
		}
		switch evValue {
		case "DOWN", "00000001":
			return RawEvent{Kind: EvButton, Time: ts, Edge: EdgeDown}, true
		case "UP", "00000000":
			return RawEvent{Kind: EvButton, Time: ts, Edge: EdgeUp}, true
		}
	}
	return RawEvent{}, false
}

// GestureKind is the classified gesture type.
type GestureKind string

const (
	GestureTap       GestureKind = "tap"
	GestureLongPress GestureKind = "long_press"
	GestureSwipe     GestureKind = "swipe"
)

// Gesture is one reconstructed user gesture in raw touch coordinates.
type Gesture struct {
	Kind      GestureKind
	X, Y      int // touch-down position
	X2, Y2    int // touch-up position (differs from X,Y only for swipes)
	Duration  time.Duration
	Direction string // swipe only: up/down/left/right
}

// GestureTracker reconstructs discrete gestures from a raw event stream.
// It keeps a running cursor, a pending touch-down marker, and a debounce
// clock; feeding a touch-up with a pending marker yields a gesture.
type GestureTracker struct {
	swipeThresholdPx int
	longPressMin     time.Duration
	debounce         time.Duration

	curX, curY   int
	haveX, haveY bool
	downX, downY int
	downTime     float64
	pending      bool
	lastEmitAt   float64
	everEmitted  bool
}

// NewGestureTracker returns a tracker with the given classification
// thresholds.
func NewGestureTracker(swipeThresholdPx int, longPressMin, debounce time.Duration) *GestureTracker {
	return &GestureTracker{
		swipeThresholdPx: swipeThresholdPx,
		longPressMin:     longPressMin,
		debounce:         debounce,
		curX:             -1,
		curY:             -1,
	}
}

// Feed consumes one event and returns a classified gesture when the event
// completes one, or nil.
func (t *GestureTracker) Feed(ev RawEvent) *Gesture {
	switch ev.Kind {
	case EvAxis:
		switch ev.Axis {
		case AxisX:
			t.curX = ev.Value
			t.haveX = true
			if t.pending && t.downX == -1 {
				t.downX = ev.Value
			}
		case AxisY:
			t.curY = ev.Value
			t.haveY = true
			if t.pending && t.downY == -1 {
				t.downY = ev.Value
			}
		}
	case EvButton:
		switch ev.Edge {
		case EdgeDown:
			if !t.pending {
				t.pending = true
				t.downTime = ev.Time
				// Type B protocol devices only report coordinates that
				// changed; -1 means "carry over the current cursor".
				t.downX = -1
				t.downY = -1
			}
		case EdgeUp:
			if !t.pending {
				return nil
			}
			t.pending = false
			return t.classify(ev.Time)
		}
	}
	return nil
}

// Discard drops any pending touch-down. Called on session stop so a
// half-finished touch is never converted into a synthetic tap.
func (t *GestureTracker) Discard() {
	t.pending = false
}

func (t *GestureTracker) classify(upTime float64) *Gesture {
	startX, startY := t.downX, t.downY
	if startX == -1 {
		startX = t.curX
	}
	if startY == -1 {
		startY = t.curY
	}
	if startX == -1 || startY == -1 || !t.haveX || !t.haveY {
		return nil // never saw coordinates for this contact
	}

	// Noisy event streams double-report releases; suppress emissions
	// closer together than the debounce window.
	if t.everEmitted && (upTime-t.lastEmitAt) < t.debounce.Seconds() {
		return nil
	}

	duration := time.Duration((upTime - t.downTime) * float64(time.Second))
	dx := t.curX - startX
	dy := t.curY - startY

	g := &Gesture{X: startX, Y: startY, X2: t.curX, Y2: t.curY, Duration: duration}

	displacement := abs(dx)
	if abs(dy) > displacement {
		displacement = abs(dy)
	}

	switch {
	case displacement > t.swipeThresholdPx:
		g.Kind = GestureSwipe
		if abs(dx) >= abs(dy) {
			if dx > 0 {
				g.Direction = "right"
			} else {
				g.Direction = "left"
			}
		} else {
			if dy > 0 {
				g.Direction = "down"
			} else {
				g.Direction = "up"
			}
		}
	case duration > t.longPressMin:
		g.Kind = GestureLongPress
		g.X2, g.Y2 = startX, startY
	default:
		g.Kind = GestureTap
		g.X2, g.Y2 = startX, startY
	}

	t.lastEmitAt = upTime
	t.everEmitted = true
	return g
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// touchDeviceKeywords rank candidate input devices by name.
var touchDeviceKeywords = []string{
	"touch", "ts", "ft5", "goodix", "synaptics", "atmel",
	"elan", "himax", "focaltech", "mxt", "nvt", "ilitek",
	"sec_touchscreen", "input_mt", "mtk-tpd",
}

// FindTouchDevice locates the multitouch input device path on the device
// by scanning `getevent -p` output for ABS_MT capabilities.
func FindTouchDevice(exec *AdbExecutor, deviceID string) (string, error) {
	out, err := exec.Shell(deviceID, "getevent -p")
	if err != nil {
		return "", err
	}
	out = strings.ReplaceAll(out, "\r\n", "\n")

	bestPath, bestScore := "", 0
	for _, block := range strings.Split(out, "add device") {
		if strings.TrimSpace(block) == "" {
			continue
		}
		firstLineEnd := strings.Index(block, "\n")
		if firstLineEnd == -1 {
			continue
		}
		pathIdx := strings.Index(block[:firstLineEnd], "/dev/input/")
		if pathIdx == -1 {
			continue
		}
		path := strings.TrimSpace(block[pathIdx:firstLineEnd])

		if !strings.Contains(block, "ABS_MT_POSITION_X") && !strings.Contains(block, "0035") {
			continue
		}

		score := 1
		for _, line := range strings.Split(block, "\n") {
			if !strings.Contains(line, "name:") {
				continue
			}
			lower := strings.ToLower(line)
			for _, kw := range touchDeviceKeywords {
				if strings.Contains(lower, kw) {
					score += 10
					break
				}
			}
			break
		}

		if score > bestScore {
			bestScore = score
			bestPath = path
		}
	}

	if bestPath == "" {
		return "", ErrDeviceUnavailable
	}
	LogDebug("events").Str("device", bestPath).Int("score", bestScore).Msg("Selected touch device")
	return bestPath, nil
}

// TouchRange is the raw coordinate range reported by the touch device.
type TouchRange struct {
	MinX, MaxX int
	MinY, MaxY int
}

var rangeRe = regexp.MustCompile(`min\s+(-?\d+),\s+max\s+(-?\d+)`)

// ReadTouchRange reads the raw min/max coordinate range for an input
// device, needed to scale raw touch positions to screen pixels.
func ReadTouchRange(exec *AdbExecutor, deviceID, inputDevice string) TouchRange {
	var tr TouchRange
	out, err := exec.Shell(deviceID, "getevent -p "+inputDevice)
	if err != nil {
		return tr
	}
	for _, line := range strings.Split(out, "\n") {
		m := rangeRe.FindStringSubmatch(line)
		if len(m) < 3 {
			continue
		}
		lo, _ := strconv.Atoi(m[1])
		hi, _ := strconv.Atoi(m[2])
		if strings.Contains(line, "ABS_MT_POSITION_X") || strings.Contains(line, "0035") {
			tr.MinX, tr.MaxX = lo, hi
		}
		if strings.Contains(line, "ABS_MT_POSITION_Y") || strings.Contains(line, "0036") {
			tr.MinY, tr.MaxY = lo, hi
		}
	}
	return tr
}

// Scale maps a raw (x, y) into screen pixels. An empty range passes the
// coordinates through unchanged.
func (tr TouchRange) Scale(x, y, screenW, screenH int) (int, int) {
	sx, sy := x, y
	if tr.MaxX > tr.MinX {
		sx = int(float64(x-tr.MinX)*float64(screenW)/float64(tr.MaxX-tr.MinX+1) + 0.5)
	}
	if tr.MaxY > tr.MinY {
		sy = int(float64(y-tr.MinY)*float64(screenH)/float64(tr.MaxY-tr.MinY+1) + 0.5)
	}
	return sx, sy
}
