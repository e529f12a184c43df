package main

import (
	"encoding/json"
	"fmt"

	"droidpilot/mcp"
)

// MCPBridge adapts *App to the mcp.Agent interface. Structured
// payloads are flattened to JSON strings at the boundary so the mcp
// package stays free of the agent's internal types.
type MCPBridge struct {
	app *App
}

func NewMCPBridge(app *App) *MCPBridge {
	return &MCPBridge{app: app}
}

func (b *MCPBridge) ListDevices() ([]mcp.Device, error) {
	devices, err := b.app.Devices()
	if err != nil {
		return nil, err
	}
	out := make([]mcp.Device, 0, len(devices))
	for _, d := range devices {
		out = append(out, mcp.Device{
			ID:     d.ID,
			Kind:   string(d.Kind),
			Model:  d.Model,
			Online: d.Online,
		})
	}
	return out, nil
}

func (b *MCPBridge) Screenshot(deviceID string) ([]byte, error) {
	return b.app.Screenshot(deviceID)
}

func (b *MCPBridge) UITreeJSON(deviceID string) (string, error) {
	root, err := b.app.UITree(deviceID)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode UI tree: %w", err)
	}
	return string(data), nil
}

func (b *MCPBridge) DriftScore(deviceID string) (int, bool, error) {
	report, err := b.app.Drift(deviceID)
	if err != nil {
		return 0, false, err
	}
	return report.Score, report.Baseline, nil
}

func (b *MCPBridge) Tap(deviceID string, x, y int) error {
	return b.app.Tap(deviceID, x, y)
}

func (b *MCPBridge) Swipe(deviceID string, x, y, x2, y2, durMs int) error {
	return b.app.Swipe(deviceID, x, y, x2, y2, durMs)
}

func (b *MCPBridge) Shell(deviceID, command string) (string, error) {
	return b.app.Shell(deviceID, command)
}

func (b *MCPBridge) StartRecording(deviceID string) (string, error) {
	sess, err := b.app.StartRecording(deviceID)
	if err != nil {
		return "", err
	}
	return sess.ID, nil
}

func (b *MCPBridge) StopRecording(name string) (string, error) {
	script, err := b.app.StopRecording(name)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(script, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode script: %w", err)
	}
	return string(data), nil
}

func (b *MCPBridge) RecordingStatusJSON() string {
	status := map[string]interface{}{"state": string(RecIdle)}
	if sess := b.app.recorder.Session(); sess != nil {
		status["state"] = string(sess.State())
		status["session_id"] = sess.ID
		status["device_id"] = sess.DeviceID
		status["package"] = sess.Package
		status["steps"] = len(sess.Steps())
	}
	data, _ := json.MarshalIndent(status, "", "  ")
	return string(data)
}

func (b *MCPBridge) ReplayScript(scriptID, deviceID string, startIndex int) (string, error) {
	sess, err := b.app.ReplayScript(scriptID, deviceID, startIndex)
	if err != nil {
		return "", err
	}
	return sess.ID, nil
}

func (b *MCPBridge) StopReplay() {
	b.app.StopReplay()
}

func (b *MCPBridge) ReplayStatusJSON() string {
	status := map[string]interface{}{"state": string(RepIdle)}
	if sess := b.app.replayer.Session(); sess != nil {
		run := sess.Run()
		status["state"] = string(run.Status)
		status["session_id"] = run.ID
		status["script_id"] = run.ScriptID
		status["device_id"] = run.DeviceID
		status["current_step"] = sess.Current()
		status["completed_steps"] = run.CompletedSteps
		if run.FailedIndex >= 0 {
			status["failed_index"] = run.FailedIndex
			status["error"] = run.Error
		}
	}
	data, _ := json.MarshalIndent(status, "", "  ")
	return string(data)
}

func (b *MCPBridge) ListScriptsJSON() (string, error) {
	scripts, err := b.app.Scripts()
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(scripts, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode scripts: %w", err)
	}
	return string(data), nil
}

func (b *MCPBridge) LaunchApp(deviceID, pkg string) error {
	target, err := b.app.ResolveDevice(deviceID)
	if err != nil {
		return err
	}
	return b.app.apps.Launch(target, pkg)
}

func (b *MCPBridge) StopApp(deviceID, pkg string) error {
	target, err := b.app.ResolveDevice(deviceID)
	if err != nil {
		return err
	}
	return b.app.apps.ForceStop(target, pkg)
}

func (b *MCPBridge) InstalledPackages(deviceID string) ([]string, error) {
	target, err := b.app.ResolveDevice(deviceID)
	if err != nil {
		return nil, err
	}
	return b.app.apps.InstalledPackages(target)
}
