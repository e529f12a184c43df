package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// App is the session controller: the single writer for recording state,
// replay state, and the primary device. Every other component either
// reads through it or emits events it forwards.
type App struct {
	cfg Config

	exec     *AdbExecutor
	registry *Registry
	hier     *Hierarchy
	history  *IdentityHistory
	matcher  *Matcher
	recorder *Recorder
	replayer *Replayer
	apps     *AppManager
	input    *Input
	emulator *EmulatorSupervisor
	appium   *AppiumSupervisor
	store    *Store
	hub      *SSEHub
	watcher  *ScriptsWatcher

	ctx    context.Context
	cancel context.CancelFunc

	// baselines holds the last captured UI tree per device, for drift
	// reports.
	mu        sync.Mutex
	baselines map[string]*UINode
}

// NewApp wires the agent's components. Nothing touches the device until
// Start.
func NewApp(cfg Config) (*App, error) {
	exec := NewAdbExecutor(cfg.AdbPath, cfg.CommandTimeout)
	registry := NewRegistry(exec)
	hier := NewHierarchy(exec)

	history := LoadIdentityHistory(cfg.HistoryPath())

	store, err := NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	matcher := NewMatcher(hier, MatchWeights{
		ResourceID: cfg.ScoreResourceID,
		Desc:       cfg.ScoreDesc,
		Text:       cfg.ScoreText,
		Class:      cfg.ScoreClass,
		Floor:      cfg.ScoreFloor,
	}, history)

	apps := NewAppManager(exec)
	input := NewInput(exec)

	a := &App{
		cfg:       cfg,
		exec:      exec,
		registry:  registry,
		hier:      hier,
		history:   history,
		matcher:   matcher,
		recorder:  NewRecorder(exec, registry, hier, history, cfg),
		replayer:  NewReplayer(exec, matcher, apps, input, cfg),
		apps:      apps,
		input:     input,
		emulator:  NewEmulatorSupervisor(cfg, registry, exec),
		appium:    NewAppiumSupervisor(cfg),
		store:     store,
		hub:       NewSSEHub(),
		baselines: make(map[string]*UINode),
	}
	a.watcher = NewScriptsWatcher(cfg.ScriptsDir(), a.onScriptFileChange)

	a.replayer.OnDone(func(run ReplayRun) {
		if err := a.store.SaveRun(run); err != nil {
			LogError("app").Err(err).Msg("Failed to persist replay run")
		}
		a.hub.Broadcast("replay-finished", run)
	})

	return a, nil
}

// Start begins background work: device monitoring and the scripts
// directory watcher.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	a.registry.StartMonitor(a.ctx, 5*time.Second, func(devices []Device) {
		a.hub.Broadcast("devices-changed", devices)
	})

	if err := a.watcher.Start(); err != nil {
		LogWarn("app").Err(err).Msg("Scripts watcher unavailable, external edits will not be noticed")
	}
	return nil
}

// Close shuts the agent down. Replay in flight is cancelled at its next
// step boundary; the capture subprocess is killed.
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	a.replayer.Stop()
	if _, err := a.recorder.Stop(); err == nil {
		LogInfo("app").Msg("Recording stopped on shutdown")
	}
	a.watcher.Stop()
	a.registry.StopMonitor()
	a.history.Close()
	if err := a.store.Close(); err != nil {
		LogError("app").Err(err).Msg("Store close failed")
	}
}

// onScriptFileChange imports externally dropped script files into the
// store and notifies clients.
func (a *App) onScriptFileChange(change ScriptChange) {
	if change.Action == "create" || change.Action == "save" {
		script, err := LoadScriptFile(change.Path)
		if err != nil {
			LogWarn("app").Str("path", change.Path).Err(err).Msg("Ignoring unreadable script file")
			return
		}
		if err := a.store.SaveScript(script); err != nil {
			LogError("app").Str("scriptId", script.ID).Err(err).Msg("Failed to import script")
			return
		}
	}
	a.hub.Broadcast("scripts-changed", change)
}

// ResolveDevice maps an optional device id to a concrete online device.
// Empty means the primary device.
func (a *App) ResolveDevice(deviceID string) (string, error) {
	if deviceID == "" {
		dev, err := a.registry.PrimaryDevice()
		if err != nil {
			return "", err
		}
		return dev.ID, nil
	}
	if !a.registry.IsOnline(deviceID) {
		return "", fmt.Errorf("device %s: %w", deviceID, ErrDeviceUnavailable)
	}
	return deviceID, nil
}

// Devices lists currently attached devices.
func (a *App) Devices() ([]Device, error) {
	return a.registry.ListDevices()
}

// SetupStatus is the health snapshot for the control plane. It never
// errors; unreachable components report not running.
type SetupStatus struct {
	AdbAvailable bool       `json:"adbAvailable"`
	DeviceCount  int        `json:"deviceCount"`
	Emulator     ProcStatus `json:"emulator"`
	Appium       ProcStatus `json:"appium"`
	Recording    bool       `json:"recording"`
	Replaying    bool       `json:"replaying"`
	SSEClients   int        `json:"sseClients"`
}

// Status reports the agent's view of its dependencies.
func (a *App) Status() SetupStatus {
	devices, err := a.registry.ListDevices()
	adbOK := err == nil
	online := 0
	for _, d := range devices {
		if d.Online {
			online++
		}
	}

	recording := false
	if sess := a.recorder.Session(); sess != nil {
		st := sess.State()
		recording = st == RecRecording || st == RecPaused
	}
	replaying := false
	if sess := a.replayer.Session(); sess != nil {
		st := sess.State()
		replaying = st == RepRunning || st == RepStopping
	}

	return SetupStatus{
		AdbAvailable: adbOK,
		DeviceCount:  online,
		Emulator:     a.emulator.Status(),
		Appium:       a.appium.Status(),
		Recording:    recording,
		Replaying:    replaying,
		SSEClients:   a.hub.ClientCount(),
	}
}

// StartRecording begins gesture capture and forwards captured steps to
// SSE clients.
func (a *App) StartRecording(deviceID string) (*RecordingSession, error) {
	id, err := a.ResolveDevice(deviceID)
	if err != nil {
		return nil, err
	}

	sess, err := a.recorder.Start(a.ctx, id)
	if err != nil {
		return nil, err
	}

	lisID, ch := sess.Subscribe()
	go func() {
		defer sess.Unsubscribe(lisID)
		for step := range ch {
			a.hub.Broadcast("step-added", step)
		}
	}()

	a.hub.Broadcast("recording-started", map[string]string{
		"sessionId": sess.ID,
		"deviceId":  id,
	})
	return sess, nil
}

// PauseRecording suspends capture.
func (a *App) PauseRecording() error {
	if err := a.recorder.Pause(); err != nil {
		return err
	}
	a.hub.Broadcast("recording-paused", nil)
	return nil
}

// ResumeRecording continues a paused capture.
func (a *App) ResumeRecording() error {
	if err := a.recorder.Resume(); err != nil {
		return err
	}
	a.hub.Broadcast("recording-resumed", nil)
	return nil
}

// StopRecording ends capture and persists the steps as a named script.
// An empty capture still produces a script; deciding to discard it is
// the caller's call.
func (a *App) StopRecording(name string) (TouchScript, error) {
	sess := a.recorder.Session()
	steps, err := a.recorder.Stop()
	if err != nil {
		return TouchScript{}, err
	}

	script := TouchScript{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now(),
		Steps:     steps,
	}
	if sess != nil {
		script.DeviceID = sess.DeviceID
		script.Package = sess.Package
		script.Resolution = fmt.Sprintf("%dx%d", sess.screenW, sess.screenH)
	}
	if script.Name == "" {
		script.Name = "Recording " + script.CreatedAt.Format("2006-01-02 15:04:05")
	}

	if err := a.store.SaveScript(script); err != nil {
		return TouchScript{}, err
	}
	if _, err := ExportScript(a.cfg.ScriptsDir(), script); err != nil {
		LogWarn("app").Err(err).Msg("Script export failed, store copy is authoritative")
	}

	a.hub.Broadcast("recording-stopped", script)
	return script, nil
}

// AddRecordingStep appends a manually authored step to the active
// recording.
func (a *App) AddRecordingStep(step RecordedStep) error {
	if err := a.recorder.AddStep(step); err != nil {
		return err
	}
	a.hub.Broadcast("step-added", step)
	return nil
}

// ReplayScript starts replaying a stored script.
func (a *App) ReplayScript(scriptID, deviceID string, startIndex int) (*ReplaySession, error) {
	script, err := a.store.GetScript(scriptID)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", scriptID, err)
	}
	return a.ReplaySteps(script.ID, deviceID, script.Steps, startIndex)
}

// ReplaySteps starts replaying an ad-hoc step sequence.
func (a *App) ReplaySteps(scriptID, deviceID string, steps []RecordedStep, startIndex int) (*ReplaySession, error) {
	id, err := a.ResolveDevice(deviceID)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("no steps to replay")
	}

	sess, err := a.replayer.Start(a.ctx, id, scriptID, steps, startIndex)
	if err != nil {
		return nil, err
	}

	lisID, ch := sess.Subscribe()
	go func() {
		defer sess.Unsubscribe(lisID)
		for ev := range ch {
			a.hub.Broadcast(ev.Type, ev)
		}
	}()
	return sess, nil
}

// StopReplay requests cooperative replay cancellation.
func (a *App) StopReplay() {
	a.replayer.Stop()
}

// UITree fetches the current accessibility tree.
func (a *App) UITree(deviceID string) (*UINode, error) {
	id, err := a.ResolveDevice(deviceID)
	if err != nil {
		return nil, err
	}
	return a.hier.FetchTree(id)
}

// Screenshot captures the device screen as PNG bytes.
func (a *App) Screenshot(deviceID string) ([]byte, error) {
	id, err := a.ResolveDevice(deviceID)
	if err != nil {
		return nil, err
	}
	return a.apps.Screenshot(id)
}

// DriftReport compares the device's current UI tree against the last
// captured baseline and rotates the baseline forward.
type DriftReport struct {
	DeviceID string `json:"deviceId"`
	Score    int    `json:"score"`
	Baseline bool   `json:"baseline"` // false on the first capture
}

// Drift captures the current tree, scores it against the previous
// capture, and stores the new baseline.
func (a *App) Drift(deviceID string) (DriftReport, error) {
	id, err := a.ResolveDevice(deviceID)
	if err != nil {
		return DriftReport{}, err
	}
	root, err := a.hier.FetchTree(id)
	if err != nil {
		return DriftReport{}, err
	}

	a.mu.Lock()
	previous, had := a.baselines[id]
	a.baselines[id] = root
	a.mu.Unlock()

	report := DriftReport{DeviceID: id, Baseline: had}
	if had {
		report.Score = DriftScore(previous, root)
	}
	return report, nil
}

// Scripts lists stored scripts without step payloads.
func (a *App) Scripts() ([]TouchScript, error) {
	return a.store.ListScripts()
}

// Script loads one script with its steps.
func (a *App) Script(id string) (TouchScript, error) {
	return a.store.GetScript(id)
}

// DeleteScript removes a stored script.
func (a *App) DeleteScript(id string) error {
	return a.store.DeleteScript(id)
}

// Runs lists replay history.
func (a *App) Runs(scriptID string, limit int) ([]ReplayRun, error) {
	return a.store.ListRuns(scriptID, limit)
}

// Direct single-action device commands. These are not recorded; they
// exist so a client can poke the device without a session.

func (a *App) Tap(deviceID string, x, y int) error {
	id, err := a.ResolveDevice(deviceID)
	if err != nil {
		return err
	}
	_, err = a.exec.Shell(id, "input", "tap", fmt.Sprintf("%d", x), fmt.Sprintf("%d", y))
	return err
}

func (a *App) LongPress(deviceID string, x, y, durMs int) error {
	id, err := a.ResolveDevice(deviceID)
	if err != nil {
		return err
	}
	if durMs <= 0 {
		durMs = 1000
	}
	_, err = a.exec.Shell(id, "input", "swipe",
		fmt.Sprintf("%d", x), fmt.Sprintf("%d", y),
		fmt.Sprintf("%d", x), fmt.Sprintf("%d", y), fmt.Sprintf("%d", durMs))
	return err
}

func (a *App) Swipe(deviceID string, x, y, x2, y2, durMs int) error {
	id, err := a.ResolveDevice(deviceID)
	if err != nil {
		return err
	}
	if durMs <= 0 {
		durMs = 300
	}
	_, err = a.exec.Shell(id, "input", "swipe",
		fmt.Sprintf("%d", x), fmt.Sprintf("%d", y),
		fmt.Sprintf("%d", x2), fmt.Sprintf("%d", y2), fmt.Sprintf("%d", durMs))
	return err
}

// Shell runs an arbitrary shell command on the device.
func (a *App) Shell(deviceID, command string) (string, error) {
	id, err := a.ResolveDevice(deviceID)
	if err != nil {
		return "", err
	}
	LogUserAction(ActionDeviceCommand, id, map[string]interface{}{"command": command})
	return a.exec.Shell(id, command)
}

// InspectAt returns the smallest element containing the point.
func (a *App) InspectAt(deviceID string, x, y int) (*UINode, error) {
	id, err := a.ResolveDevice(deviceID)
	if err != nil {
		return nil, err
	}
	root, err := a.hier.FetchTree(id)
	if err != nil {
		return nil, err
	}
	node := ElementAtPoint(root, x, y)
	if node == nil {
		return nil, ErrElementNotFound
	}
	return node, nil
}

// InspectLocator resolves an element identity the way replay would,
// reporting the matched node and its score.
func (a *App) InspectLocator(deviceID string, identity ElementIdentity) (*Match, error) {
	id, err := a.ResolveDevice(deviceID)
	if err != nil {
		return nil, err
	}
	return a.matcher.BestMatch(id, identity)
}

// FocusedPackage reports the package in the foreground.
func (a *App) FocusedPackage(deviceID string) (string, error) {
	id, err := a.ResolveDevice(deviceID)
	if err != nil {
		return "", err
	}
	return a.registry.FocusedPackage(id), nil
}

// ScreenSize reports the device resolution.
func (a *App) ScreenSize(deviceID string) (int, int, error) {
	id, err := a.ResolveDevice(deviceID)
	if err != nil {
		return 0, 0, err
	}
	return a.registry.ScreenSize(id)
}
