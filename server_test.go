package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

const serverStubAdb = `#!/bin/sh
case "$*" in
  *"devices -l"*)
    echo "List of devices attached"
    echo "emulator-5554          device product:sdk_gphone64_x86_64 model:sdk_gphone64_x86_64 device:emu64x transport_id:1"
    ;;
  *)
    exit 0
    ;;
esac
`

func newTestServer(t *testing.T) (*httptest.Server, *App) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub adb is a shell script")
	}

	dir := t.TempDir()
	stub := filepath.Join(dir, "adb")
	if err := os.WriteFile(stub, []byte(serverStubAdb), 0755); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.AdbPath = stub
	cfg.DataDir = filepath.Join(dir, "data")

	app, err := NewApp(cfg)
	if err != nil {
		t.Fatalf("failed to build app: %v", err)
	}
	t.Cleanup(app.Close)

	srv := NewServer(app, "127.0.0.1:0")
	ts := httptest.NewServer(srv.http.Handler)
	t.Cleanup(ts.Close)
	return ts, app
}

func getJSON(t *testing.T, ts *httptest.Server, path string, out any) int {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("GET %s: bad JSON: %v", path, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	resp, err := http.Post(ts.URL+path, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	return resp
}

func TestServerHealth(t *testing.T) {
	ts, _ := newTestServer(t)

	var body map[string]string
	if status := getJSON(t, ts, "/health", &body); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestServerSetupStatus(t *testing.T) {
	ts, _ := newTestServer(t)

	var body SetupStatus
	if status := getJSON(t, ts, "/setup/status", &body); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if body.Recording || body.Replaying {
		t.Errorf("fresh agent should be idle: %+v", body)
	}
}

func TestServerDevices(t *testing.T) {
	ts, _ := newTestServer(t)

	var devices []Device
	if status := getJSON(t, ts, "/devices", &devices); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if len(devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(devices))
	}
	if devices[0].ID != "emulator-5554" || devices[0].Kind != KindEmulator || !devices[0].Online {
		t.Errorf("unexpected device: %+v", devices[0])
	}
	if devices[0].Model != "sdk gphone64 x86 64" {
		t.Errorf("Model = %q", devices[0].Model)
	}
}

func TestServerDeviceCheck_NoScanYet(t *testing.T) {
	ts, _ := newTestServer(t)

	// Before any scan the registry knows nothing; check reports
	// unavailable with a 200, never an error status.
	var body map[string]any
	if status := getJSON(t, ts, "/device/check", &body); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if avail, _ := body["available"].(bool); avail {
		t.Errorf("expected unavailable before the first scan, got %v", body)
	}
}

func TestServerTap_RequiresPost(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/device/tap")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestServerTap_RejectsBadBody(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/device/tap", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestServerTap_NoDevice(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts, "/device/tap", pointRequest{X: 100, Y: 200})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 when no device is known", resp.StatusCode)
	}
}

func TestServerRecordingIdleEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	var steps []RecordedStep
	if status := getJSON(t, ts, "/recording/steps", &steps); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if len(steps) != 0 {
		t.Errorf("expected no steps, got %d", len(steps))
	}

	var recStatus map[string]any
	if status := getJSON(t, ts, "/recording/status", &recStatus); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if recStatus["state"] != string(RecIdle) {
		t.Errorf("state = %v, want idle", recStatus["state"])
	}
}

func TestServerScriptsCRUD(t *testing.T) {
	ts, app := newTestServer(t)

	script := sampleScript("script-http")
	if err := app.store.SaveScript(script); err != nil {
		t.Fatal(err)
	}

	var scripts []TouchScript
	if status := getJSON(t, ts, "/scripts", &scripts); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if len(scripts) != 1 || scripts[0].ID != "script-http" {
		t.Errorf("unexpected listing: %+v", scripts)
	}

	var got TouchScript
	if status := getJSON(t, ts, "/scripts/get?id=script-http", &got); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if len(got.Steps) != len(script.Steps) {
		t.Errorf("expected full steps in get, got %d", len(got.Steps))
	}

	if status := getJSON(t, ts, "/scripts/get?id=missing", nil); status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}

	resp := postJSON(t, ts, "/scripts/delete?id=script-http", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete status = %d", resp.StatusCode)
	}

	resp = postJSON(t, ts, "/scripts/delete?id=script-http", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func TestServerReplayRuns_Empty(t *testing.T) {
	ts, _ := newTestServer(t)

	var runs []ReplayRun
	if status := getJSON(t, ts, "/recording/replay/runs", &runs); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}
}

func TestServerEmulatorAvailable_MissingBinary(t *testing.T) {
	ts, _ := newTestServer(t)

	// The emulator binary does not exist in the test environment; the
	// endpoint still answers 200 with an error field.
	var body map[string]any
	if status := getJSON(t, ts, "/emulator/available", &body); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if _, ok := body["available"]; !ok {
		t.Errorf("body should carry an available list: %v", body)
	}
}

func TestServerEventsSSE(t *testing.T) {
	ts, app := newTestServer(t)

	client := &http.Client{Timeout: 5 * time.Second}
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/recording/events", nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("SSE connect failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q", ct)
	}

	// The endpoint greets every subscriber, then relays broadcasts.
	deadline := time.Now().Add(3 * time.Second)
	for app.hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	app.hub.Broadcast("step-added", map[string]string{"id": "s1"})

	buf := make([]byte, 4096)
	var received strings.Builder
	for time.Now().Before(deadline) {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			received.Write(buf[:n])
		}
		if strings.Contains(received.String(), "step-added") {
			break
		}
		if err != nil {
			break
		}
	}
	if !strings.Contains(received.String(), "event: connected") {
		t.Errorf("missing greeting, got %q", received.String())
	}
	if !strings.Contains(received.String(), "event: step-added") {
		t.Errorf("missing broadcast, got %q", received.String())
	}
}
