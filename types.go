package main

import "time"

// DeviceKind classifies how a device is attached to the host.
type DeviceKind string

const (
	KindUSB      DeviceKind = "usb"
	KindWireless DeviceKind = "wireless"
	KindEmulator DeviceKind = "emulator"
)

// connectPriority orders devices for primary selection.
// USB is the most stable path for input injection.
func (k DeviceKind) connectPriority() int {
	switch k {
	case KindUSB:
		return 0
	case KindWireless:
		return 1
	default:
		return 2
	}
}

// Device represents a connected ADB device or emulator.
type Device struct {
	ID           string     `json:"id"`
	Kind         DeviceKind `json:"kind"`
	Online       bool       `json:"online"`
	Model        string     `json:"model,omitempty"`
	ScreenWidth  int        `json:"screenWidth,omitempty"`
	ScreenHeight int        `json:"screenHeight,omitempty"`
}

// Rect is a bounding rectangle in device pixels.
type Rect struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Contains reports whether the point lies inside the rectangle (inclusive).
func (r Rect) Contains(x, y int) bool {
	return x >= r.X1 && x <= r.X2 && y >= r.Y1 && y <= r.Y2
}

// Area returns the rectangle area in square pixels.
func (r Rect) Area() int {
	w := r.X2 - r.X1
	h := r.Y2 - r.Y1
	if w < 0 || h < 0 {
		return 0
	}
	return w * h
}

// Center returns the midpoint of the rectangle.
func (r Rect) Center() (int, int) {
	return (r.X1 + r.X2) / 2, (r.Y1 + r.Y2) / 2
}

// UINode is one element of the on-screen accessibility tree.
// A tree is rebuilt from scratch on every dump; nodes never survive
// across fetches.
type UINode struct {
	Class       string   `json:"class"`
	ResourceID  string   `json:"resourceId,omitempty"`
	ContentDesc string   `json:"contentDesc,omitempty"`
	Text        string   `json:"text,omitempty"`
	Package     string   `json:"package,omitempty"`
	Bounds      Rect     `json:"bounds"`
	Clickable   bool     `json:"clickable"`
	Enabled     bool     `json:"enabled"`
	Nodes       []UINode `json:"nodes,omitempty"`
}

// ElementIdentity is the captured identity of a UI element, recorded at
// capture time and used during replay to re-locate the element after
// layout drift.
type ElementIdentity struct {
	ResourceID  string `json:"resourceId,omitempty"`
	Text        string `json:"text,omitempty"`
	ContentDesc string `json:"contentDesc,omitempty"`
	Class       string `json:"class,omitempty"`
}

// Empty reports whether no identifying attribute was captured.
func (e ElementIdentity) Empty() bool {
	return e.ResourceID == "" && e.Text == "" && e.ContentDesc == "" && e.Class == ""
}

// Describe returns the most discriminating attribute for log output.
func (e ElementIdentity) Describe() string {
	switch {
	case e.ResourceID != "":
		return e.ResourceID
	case e.ContentDesc != "":
		return e.ContentDesc
	case e.Text != "":
		return e.Text
	default:
		return e.Class
	}
}

// StepType discriminates recorded steps.
type StepType string

const (
	StepTap          StepType = "tap"
	StepLongPress    StepType = "long_press"
	StepSwipe        StepType = "swipe"
	StepInput        StepType = "input"
	StepWait         StepType = "wait"
	StepAssert       StepType = "assert"
	StepOpenApp      StepType = "open_app"
	StepHideKeyboard StepType = "hide_keyboard"
	StepPressKey     StepType = "press_key"
)

// RecordedStep is one replayable action. Every step carries enough
// information to be replayed independently of the others.
type RecordedStep struct {
	ID          string           `json:"id"`
	Type        StepType         `json:"type"`
	Description string           `json:"description,omitempty"`
	CapturedAt  time.Time        `json:"capturedAt"`
	X           int              `json:"x,omitempty"`
	Y           int              `json:"y,omitempty"`
	X2          int              `json:"x2,omitempty"`
	Y2          int              `json:"y2,omitempty"`
	DurationMs  int              `json:"durationMs,omitempty"`
	Direction   string           `json:"direction,omitempty"`
	Element     *ElementIdentity `json:"element,omitempty"`
	Text        string           `json:"text,omitempty"`
	Expected    string           `json:"expected,omitempty"`
	Package     string           `json:"package,omitempty"`
	KeyCode     int              `json:"keyCode,omitempty"`
}

// RecordingState is the lifecycle state of a recording session.
type RecordingState string

const (
	RecIdle      RecordingState = "idle"
	RecRecording RecordingState = "recording"
	RecPaused    RecordingState = "paused"
	RecStopped   RecordingState = "stopped"
)

// ReplayState is the lifecycle state of a replay session.
type ReplayState string

const (
	RepIdle      ReplayState = "idle"
	RepRunning   ReplayState = "running"
	RepStopping  ReplayState = "stopping"
	RepCompleted ReplayState = "completed"
	RepFailed    ReplayState = "failed"
)

// ProcState is the lifecycle state of a supervised process.
type ProcState string

const (
	ProcStopped  ProcState = "stopped"
	ProcStarting ProcState = "starting"
	ProcRunning  ProcState = "running"
	ProcStopping ProcState = "stopping"
)

// TouchScript is a named, persisted sequence of recorded steps.
type TouchScript struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	DeviceID   string         `json:"deviceId"`
	Package    string         `json:"package,omitempty"`
	Resolution string         `json:"resolution,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	Steps      []RecordedStep `json:"steps"`
}

// ReplayRun records the outcome of one replay for later inspection.
type ReplayRun struct {
	ID             string      `json:"id"`
	ScriptID       string      `json:"scriptId,omitempty"`
	DeviceID       string      `json:"deviceId"`
	StartedAt      time.Time   `json:"startedAt"`
	FinishedAt     time.Time   `json:"finishedAt"`
	Status         ReplayState `json:"status"`
	CompletedSteps int         `json:"completedSteps"`
	FailedIndex    int         `json:"failedIndex"` // -1 when no failure
	Error          string      `json:"error,omitempty"`
}
