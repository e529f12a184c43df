package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"
)

// Server is the local HTTP control plane consumed by the front-end UI.
type Server struct {
	app  *App
	http *http.Server
}

func NewServer(app *App, addr string) *Server {
	s := &Server{app: app}
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/setup/status", s.handleSetupStatus)

	mux.HandleFunc("/emulator/start", s.handleEmulatorStart)
	mux.HandleFunc("/emulator/stop", s.handleEmulatorStop)
	mux.HandleFunc("/emulator/status", s.handleEmulatorStatus)
	mux.HandleFunc("/emulator/available", s.handleEmulatorAvailable)

	mux.HandleFunc("/appium/start", s.handleAppiumStart)
	mux.HandleFunc("/appium/stop", s.handleAppiumStop)
	mux.HandleFunc("/appium/status", s.handleAppiumStatus)

	mux.HandleFunc("/devices", s.handleDevices)
	mux.HandleFunc("/device/check", s.handleDeviceCheck)
	mux.HandleFunc("/device/focus", s.handleDeviceFocus)
	mux.HandleFunc("/device/screenshot", s.handleScreenshot)
	mux.HandleFunc("/device/ui", s.handleUITree)
	mux.HandleFunc("/device/size", s.handleDeviceSize)
	mux.HandleFunc("/device/drift", s.handleDrift)

	mux.HandleFunc("/device/tap", s.handleTap)
	mux.HandleFunc("/device/long-press", s.handleLongPress)
	mux.HandleFunc("/device/swipe", s.handleSwipe)
	mux.HandleFunc("/device/key", s.handleKey)
	mux.HandleFunc("/device/input", s.handleInputText)
	mux.HandleFunc("/device/hide-keyboard", s.handleHideKeyboard)
	mux.HandleFunc("/device/inspect", s.handleInspect)
	mux.HandleFunc("/device/inspect-locator", s.handleInspectLocator)
	mux.HandleFunc("/device/shell", s.handleShell)
	mux.HandleFunc("/device/uninstall", s.handleUninstall)

	mux.HandleFunc("/recording/start", s.handleRecordingStart)
	mux.HandleFunc("/recording/pause", s.handleRecordingPause)
	mux.HandleFunc("/recording/resume", s.handleRecordingResume)
	mux.HandleFunc("/recording/stop", s.handleRecordingStop)
	mux.HandleFunc("/recording/add-step", s.handleRecordingAddStep)
	mux.HandleFunc("/recording/steps", s.handleRecordingSteps)
	mux.HandleFunc("/recording/status", s.handleRecordingStatus)
	mux.HandleFunc("/recording/events", s.handleEvents)

	mux.HandleFunc("/recording/replay", s.handleReplay)
	mux.HandleFunc("/recording/replay/stop", s.handleReplayStop)
	mux.HandleFunc("/recording/replay/status", s.handleReplayStatus)
	mux.HandleFunc("/recording/replay/runs", s.handleReplayRuns)

	mux.HandleFunc("/scripts", s.handleScripts)
	mux.HandleFunc("/scripts/get", s.handleScriptGet)
	mux.HandleFunc("/scripts/delete", s.handleScriptDelete)

	mux.HandleFunc("/app/launch", s.handleAppLaunch)
	mux.HandleFunc("/app/stop", s.handleAppStop)
	mux.HandleFunc("/app/clear", s.handleAppClear)
	mux.HandleFunc("/app/install", s.handleAppInstall)
	mux.HandleFunc("/app/upload", s.handleAppUpload)
	mux.HandleFunc("/app/check-install", s.handleAppCheckInstall)
	mux.HandleFunc("/app/installed-packages", s.handleAppInstalledPackages)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE connections stay open
	}
	return s
}

// ListenAndServe blocks serving the control plane.
func (s *Server) ListenAndServe() error {
	LogInfo("server").Str("addr", s.http.Addr).Msg("Control plane listening")
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps sentinel errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrDeviceUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, ErrElementNotFound), errors.Is(err, sql.ErrNoRows):
		status = http.StatusNotFound
	case errors.Is(err, ErrAlreadyRecording), errors.Is(err, ErrAlreadyReplaying):
		status = http.StatusConflict
	case errors.Is(err, ErrNotRecording):
		status = http.StatusBadRequest
	case errors.Is(err, ErrStartupTimeout):
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "POST required"})
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// deviceOf reads the optional device parameter; empty selects the
// primary device downstream.
func deviceOf(r *http.Request) string {
	return r.URL.Query().Get("device")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSetupStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Status())
}

func (s *Server) handleEmulatorStart(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.app.emulator.Start(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.app.emulator.Status())
}

func (s *Server) handleEmulatorStop(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.app.emulator.Stop(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.app.emulator.Status())
}

func (s *Server) handleEmulatorStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.app.emulator.Status())
}

func (s *Server) handleEmulatorAvailable(w http.ResponseWriter, _ *http.Request) {
	avds, err := s.app.emulator.AvailableAVDs()
	if err != nil {
		// Missing emulator binary is a state, not a server fault.
		writeJSON(w, http.StatusOK, map[string]any{"available": []string{}, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"available": avds})
}

func (s *Server) handleAppiumStart(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.app.appium.Start(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.app.appium.Status())
}

func (s *Server) handleAppiumStop(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.app.appium.Stop(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.app.appium.Status())
}

func (s *Server) handleAppiumStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.app.appium.Status())
}

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	devices, err := s.app.Devices()
	if err != nil {
		writeError(w, err)
		return
	}
	if devices == nil {
		devices = []Device{}
	}
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleDeviceCheck(w http.ResponseWriter, r *http.Request) {
	id, err := s.app.ResolveDevice(deviceOf(r))
	if err != nil {
		// Check reports availability, it never throws.
		writeJSON(w, http.StatusOK, map[string]any{"available": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"available": true, "deviceId": id})
}

func (s *Server) handleDeviceFocus(w http.ResponseWriter, r *http.Request) {
	pkg, err := s.app.FocusedPackage(deviceOf(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"package": pkg})
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	png, err := s.app.Screenshot(deviceOf(r))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (s *Server) handleUITree(w http.ResponseWriter, r *http.Request) {
	root, err := s.app.UITree(deviceOf(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, root)
}

func (s *Server) handleDeviceSize(w http.ResponseWriter, r *http.Request) {
	width, height, err := s.app.ScreenSize(deviceOf(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"width": width, "height": height})
}

func (s *Server) handleDrift(w http.ResponseWriter, r *http.Request) {
	report, err := s.app.Drift(deviceOf(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type pointRequest struct {
	Device     string `json:"device,omitempty"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
	X2         int    `json:"x2,omitempty"`
	Y2         int    `json:"y2,omitempty"`
	DurationMs int    `json:"durationMs,omitempty"`
	Keycode    int    `json:"keycode,omitempty"`
	Text       string `json:"text,omitempty"`
}

func (s *Server) handleTap(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req pointRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.app.Tap(req.Device, req.X, req.Y); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleLongPress(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req pointRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.app.LongPress(req.Device, req.X, req.Y, req.DurationMs); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleSwipe(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req pointRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.app.Swipe(req.Device, req.X, req.Y, req.X2, req.Y2, req.DurationMs); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req pointRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := s.app.ResolveDevice(req.Device)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.app.input.PressKey(id, req.Keycode); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleInputText(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req pointRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := s.app.ResolveDevice(req.Device)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.app.input.Text(id, req.Text); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleHideKeyboard(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req pointRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := s.app.ResolveDevice(req.Device)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.app.input.HideKeyboard(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req pointRequest
	if !decodeBody(w, r, &req) {
		return
	}
	node, err := s.app.InspectAt(req.Device, req.X, req.Y)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

type locatorRequest struct {
	Device  string          `json:"device,omitempty"`
	Element ElementIdentity `json:"element"`
}

func (s *Server) handleInspectLocator(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req locatorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	match, err := s.app.InspectLocator(req.Device, req.Element)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

type shellRequest struct {
	Device  string `json:"device,omitempty"`
	Command string `json:"command"`
}

func (s *Server) handleShell(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req shellRequest
	if !decodeBody(w, r, &req) {
		return
	}
	out, err := s.app.Shell(req.Device, req.Command)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"output": out})
}

type packageRequest struct {
	Device  string `json:"device,omitempty"`
	Package string `json:"package"`
	Path    string `json:"path,omitempty"`
	Remote  string `json:"remote,omitempty"`
}

func (s *Server) handleUninstall(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req packageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := s.app.ResolveDevice(req.Device)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.app.apps.Uninstall(id, req.Package); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

type recordingStartRequest struct {
	Device string `json:"device,omitempty"`
}

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req recordingStartRequest
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}
	sess, err := s.app.StartRecording(req.Device)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"sessionId": sess.ID,
		"deviceId":  sess.DeviceID,
		"state":     string(sess.State()),
	})
}

func (s *Server) handleRecordingPause(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.app.PauseRecording(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleRecordingResume(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.app.ResumeRecording(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

type recordingStopRequest struct {
	Name string `json:"name,omitempty"`
}

func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req recordingStopRequest
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}
	script, err := s.app.StopRecording(req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, script)
}

func (s *Server) handleRecordingAddStep(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var step RecordedStep
	if !decodeBody(w, r, &step) {
		return
	}
	if err := s.app.AddRecordingStep(step); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleRecordingSteps(w http.ResponseWriter, _ *http.Request) {
	sess := s.app.recorder.Session()
	if sess == nil {
		writeJSON(w, http.StatusOK, []RecordedStep{})
		return
	}
	writeJSON(w, http.StatusOK, sess.Steps())
}

func (s *Server) handleRecordingStatus(w http.ResponseWriter, _ *http.Request) {
	sess := s.app.recorder.Session()
	if sess == nil {
		writeJSON(w, http.StatusOK, map[string]any{"state": string(RecIdle)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": sess.ID,
		"deviceId":  sess.DeviceID,
		"state":     string(sess.State()),
		"stepCount": len(sess.Steps()),
	})
}

// handleEvents is the SSE endpoint: step-added during recording, replay
// progress during replay, device and script changes always.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	conn, err := s.app.hub.Register(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer s.app.hub.Unregister(conn.ID)

	_ = conn.WriteEvent("connected", `{"ok":true}`)

	// Hold the handler open; the hub writes from its own goroutines.
	keepalive := time.NewTicker(25 * time.Second)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			if err := conn.WriteEvent("ping", `{}`); err != nil {
				return
			}
		}
	}
}

type replayRequest struct {
	Device     string         `json:"device,omitempty"`
	ScriptID   string         `json:"scriptId,omitempty"`
	Steps      []RecordedStep `json:"steps,omitempty"`
	StartIndex int            `json:"startIndex,omitempty"`
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req replayRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var sess *ReplaySession
	var err error
	if req.ScriptID != "" {
		sess, err = s.app.ReplayScript(req.ScriptID, req.Device, req.StartIndex)
	} else {
		sess, err = s.app.ReplaySteps("", req.Device, req.Steps, req.StartIndex)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"sessionId": sess.ID,
		"deviceId":  sess.DeviceID,
		"state":     string(sess.State()),
	})
}

func (s *Server) handleReplayStop(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	s.app.StopReplay()
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleReplayStatus(w http.ResponseWriter, _ *http.Request) {
	sess := s.app.replayer.Session()
	if sess == nil {
		writeJSON(w, http.StatusOK, map[string]any{"state": string(RepIdle)})
		return
	}
	writeJSON(w, http.StatusOK, sess.Run())
}

func (s *Server) handleReplayRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.app.Runs(r.URL.Query().Get("script"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []ReplayRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleScripts(w http.ResponseWriter, _ *http.Request) {
	scripts, err := s.app.Scripts()
	if err != nil {
		writeError(w, err)
		return
	}
	if scripts == nil {
		scripts = []TouchScript{}
	}
	writeJSON(w, http.StatusOK, scripts)
}

func (s *Server) handleScriptGet(w http.ResponseWriter, r *http.Request) {
	script, err := s.app.Script(r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, script)
}

func (s *Server) handleScriptDelete(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.app.DeleteScript(r.URL.Query().Get("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleAppLaunch(w http.ResponseWriter, r *http.Request) {
	s.packageAction(w, r, s.app.apps.Launch)
}

func (s *Server) handleAppStop(w http.ResponseWriter, r *http.Request) {
	s.packageAction(w, r, s.app.apps.ForceStop)
}

func (s *Server) handleAppClear(w http.ResponseWriter, r *http.Request) {
	s.packageAction(w, r, s.app.apps.ClearData)
}

func (s *Server) packageAction(w http.ResponseWriter, r *http.Request, action func(string, string) error) {
	if !requirePost(w, r) {
		return
	}
	var req packageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := s.app.ResolveDevice(req.Device)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := action(id, req.Package); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleAppInstall(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req packageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := s.app.ResolveDevice(req.Device)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.app.apps.Install(id, req.Path); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleAppUpload(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req packageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := s.app.ResolveDevice(req.Device)
	if err != nil {
		writeError(w, err)
		return
	}
	remote := req.Remote
	if remote == "" {
		remote = "/data/local/tmp/"
	}
	if err := s.app.apps.Push(id, req.Path, remote); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleAppCheckInstall(w http.ResponseWriter, r *http.Request) {
	id, err := s.app.ResolveDevice(deviceOf(r))
	if err != nil {
		writeError(w, err)
		return
	}
	pkg := r.URL.Query().Get("package")
	writeJSON(w, http.StatusOK, map[string]any{
		"package":   pkg,
		"installed": s.app.apps.IsInstalled(id, pkg),
		"running":   s.app.apps.IsRunning(id, pkg),
	})
}

func (s *Server) handleAppInstalledPackages(w http.ResponseWriter, r *http.Request) {
	id, err := s.app.ResolveDevice(deviceOf(r))
	if err != nil {
		writeError(w, err)
		return
	}
	pkgs, err := s.app.apps.InstalledPackages(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if pkgs == nil {
		pkgs = []string{}
	}
	writeJSON(w, http.StatusOK, pkgs)
}
