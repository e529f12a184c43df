package mcp

import "sync"

// MockCall records a method call for verification.
type MockCall struct {
	Method string
	Args   []interface{}
}

// MockAgent is a mock implementation of Agent for testing.
type MockAgent struct {
	mu    sync.Mutex
	Calls []MockCall

	// Devices
	ListDevicesResult []Device
	ListDevicesError  error
	ScreenshotResult  []byte
	ScreenshotError   error
	UITreeJSONResult  string
	UITreeJSONError   error
	DriftScoreResult  int
	DriftBaseline     bool
	DriftScoreError   error

	// Direct actions
	TapError    error
	SwipeError  error
	ShellResult string
	ShellError  error

	// Recording
	StartRecordingResult  string
	StartRecordingError   error
	StopRecordingResult   string
	StopRecordingError    error
	RecordingStatusResult string

	// Replay
	ReplayScriptResult string
	ReplayScriptError  error
	ReplayStatusResult string
	ListScriptsResult  string
	ListScriptsError   error

	// Apps
	LaunchAppError          error
	StopAppError            error
	InstalledPackagesResult []string
	InstalledPackagesError  error
}

func NewMockAgent() *MockAgent {
	return &MockAgent{
		RecordingStatusResult: `{"state":"idle"}`,
		ReplayStatusResult:    `{"state":"idle"}`,
	}
}

// SampleDevice returns an online emulator device for tests.
func SampleDevice(id string) Device {
	return Device{ID: id, Kind: "emulator", Model: "sdk_gphone64_x86_64", Online: true}
}

func (m *MockAgent) record(method string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
}

// CallCount returns how many times a method was invoked.
func (m *MockAgent) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.Calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

func (m *MockAgent) ListDevices() ([]Device, error) {
	m.record("ListDevices")
	return m.ListDevicesResult, m.ListDevicesError
}

func (m *MockAgent) Screenshot(deviceID string) ([]byte, error) {
	m.record("Screenshot", deviceID)
	return m.ScreenshotResult, m.ScreenshotError
}

func (m *MockAgent) UITreeJSON(deviceID string) (string, error) {
	m.record("UITreeJSON", deviceID)
	return m.UITreeJSONResult, m.UITreeJSONError
}

func (m *MockAgent) DriftScore(deviceID string) (int, bool, error) {
	m.record("DriftScore", deviceID)
	return m.DriftScoreResult, m.DriftBaseline, m.DriftScoreError
}

func (m *MockAgent) Tap(deviceID string, x, y int) error {
	m.record("Tap", deviceID, x, y)
	return m.TapError
}

func (m *MockAgent) Swipe(deviceID string, x, y, x2, y2, durMs int) error {
	m.record("Swipe", deviceID, x, y, x2, y2, durMs)
	return m.SwipeError
}

func (m *MockAgent) Shell(deviceID, command string) (string, error) {
	m.record("Shell", deviceID, command)
	return m.ShellResult, m.ShellError
}

func (m *MockAgent) StartRecording(deviceID string) (string, error) {
	m.record("StartRecording", deviceID)
	return m.StartRecordingResult, m.StartRecordingError
}

func (m *MockAgent) StopRecording(name string) (string, error) {
	m.record("StopRecording", name)
	return m.StopRecordingResult, m.StopRecordingError
}

func (m *MockAgent) RecordingStatusJSON() string {
	m.record("RecordingStatusJSON")
	return m.RecordingStatusResult
}

func (m *MockAgent) ReplayScript(scriptID, deviceID string, startIndex int) (string, error) {
	m.record("ReplayScript", scriptID, deviceID, startIndex)
	return m.ReplayScriptResult, m.ReplayScriptError
}

func (m *MockAgent) StopReplay() {
	m.record("StopReplay")
}

func (m *MockAgent) ReplayStatusJSON() string {
	m.record("ReplayStatusJSON")
	return m.ReplayStatusResult
}

func (m *MockAgent) ListScriptsJSON() (string, error) {
	m.record("ListScriptsJSON")
	return m.ListScriptsResult, m.ListScriptsError
}

func (m *MockAgent) LaunchApp(deviceID, pkg string) error {
	m.record("LaunchApp", deviceID, pkg)
	return m.LaunchAppError
}

func (m *MockAgent) StopApp(deviceID, pkg string) error {
	m.record("StopApp", deviceID, pkg)
	return m.StopAppError
}

func (m *MockAgent) InstalledPackages(deviceID string) ([]string, error) {
	m.record("InstalledPackages", deviceID)
	return m.InstalledPackagesResult, m.InstalledPackagesError
}
