package main

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// stubAdbScript fakes every adb surface the recorder touches: touch
// device discovery, coordinate ranges, screen size, window focus, the
// raw event stream, and the UI dump used for identity enrichment. The
// stream replays a single tap at raw (540, 875).
const stubAdbScript = `#!/bin/sh
case "$*" in
  *"getevent -lt"*)
    cat <<'EOF'
[   10.000000] EV_KEY       BTN_TOUCH            DOWN
[   10.000100] EV_ABS       ABS_MT_POSITION_X    0000021c
[   10.000200] EV_ABS       ABS_MT_POSITION_Y    0000036b
[   10.100000] EV_KEY       BTN_TOUCH            UP
EOF
    sleep 5
    ;;
  *"getevent -p"*)
    cat <<'EOF'
add device 1: /dev/input/event2
  name:     "goodix-ts"
  events:
    ABS (0003): 0035  : value 0, min 0, max 1079, fuzz 0, flat 0, resolution 0
                0036  : value 0, min 0, max 1919, fuzz 0, flat 0, resolution 0
EOF
    ;;
  *"wm size"*)
    echo "Physical size: 1080x1920"
    ;;
  *"dumpsys window"*)
    echo "  mCurrentFocus=Window{abc u0 com.app/com.app.MainActivity}"
    ;;
  *"uiautomator dump"*)
    cat <<'EOF'
<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<hierarchy rotation="0">
  <node index="0" text="" resource-id="" class="android.widget.FrameLayout" package="com.app" content-desc="" clickable="false" enabled="true" bounds="[0,0][1080,1920]">
    <node index="0" text="Sign in" resource-id="com.app:id/login_button" class="android.widget.Button" package="com.app" content-desc="Sign in button" clickable="true" enabled="true" bounds="[340,800][740,950]" />
  </node>
</hierarchy>
EOF
    ;;
  *)
    exit 0
    ;;
esac
`

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub adb is a shell script")
	}

	dir := t.TempDir()
	stub := filepath.Join(dir, "adb")
	if err := os.WriteFile(stub, []byte(stubAdbScript), 0755); err != nil {
		t.Fatal(err)
	}

	exec := NewAdbExecutor(stub, 5*time.Second)
	history := LoadIdentityHistory(filepath.Join(dir, "history.jsonl"))
	t.Cleanup(history.Close)

	return NewRecorder(exec, NewRegistry(exec), NewHierarchy(exec), history, DefaultConfig())
}

func waitForSteps(t *testing.T, sess *RecordingSession, n int) []RecordedStep {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if steps := sess.Steps(); len(steps) >= n {
			return steps
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d recorded step(s), have %d", n, len(sess.Steps()))
	return nil
}

func TestRecorder_CapturesTapWithIdentity(t *testing.T) {
	r := newTestRecorder(t)

	sess, err := r.Start(context.Background(), "emulator-5554")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer r.Stop()

	if sess.Package != "com.app" {
		t.Errorf("Package = %q, want the focused app", sess.Package)
	}
	if sess.State() != RecRecording {
		t.Errorf("state = %v, want recording", sess.State())
	}

	steps := waitForSteps(t, sess, 1)
	step := steps[0]
	if step.Type != StepTap {
		t.Fatalf("Type = %v, want tap", step.Type)
	}
	if step.X != 540 || step.Y != 875 {
		t.Errorf("position = (%d, %d), want scaled (540, 875)", step.X, step.Y)
	}
	if step.Element == nil {
		t.Fatal("tap should carry the element identity under the touch point")
	}
	if step.Element.ResourceID != "com.app:id/login_button" {
		t.Errorf("ResourceID = %q", step.Element.ResourceID)
	}
	if !strings.Contains(step.Description, "Sign in") {
		t.Errorf("Description = %q, want the element label in it", step.Description)
	}
}

func TestRecorder_SecondStartRejected(t *testing.T) {
	r := newTestRecorder(t)

	if _, err := r.Start(context.Background(), "emulator-5554"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer r.Stop()

	if _, err := r.Start(context.Background(), "emulator-5554"); err != ErrAlreadyRecording {
		t.Errorf("err = %v, want ErrAlreadyRecording", err)
	}
}

func TestRecorder_AddStepAndStop(t *testing.T) {
	r := newTestRecorder(t)

	sess, err := r.Start(context.Background(), "emulator-5554")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if err := r.AddStep(RecordedStep{Type: StepWait, DurationMs: 500}); err != nil {
		t.Fatalf("add step failed: %v", err)
	}

	steps := sess.Steps()
	var manual *RecordedStep
	for i := range steps {
		if steps[i].Type == StepWait {
			manual = &steps[i]
		}
	}
	if manual == nil {
		t.Fatal("manual step not recorded")
	}
	if manual.ID == "" || manual.CapturedAt.IsZero() {
		t.Errorf("manual step should get an ID and timestamp: %+v", manual)
	}

	if _, err := r.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if sess.State() != RecStopped {
		t.Errorf("state = %v, want stopped", sess.State())
	}

	// A stopped session cannot take further steps or a second stop.
	if err := r.AddStep(RecordedStep{Type: StepWait}); err != ErrNotRecording {
		t.Errorf("err = %v, want ErrNotRecording", err)
	}
	if _, err := r.Stop(); err != ErrNotRecording {
		t.Errorf("err = %v, want ErrNotRecording", err)
	}
}

// newDyingStreamRecorder swaps the stream's trailing sleep for an
// invocation marker, so the getevent subprocess exits right after the
// tap and every launch is counted.
func newDyingStreamRecorder(t *testing.T) (*Recorder, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub adb is a shell script")
	}

	dir := t.TempDir()
	countPath := filepath.Join(dir, "stream-launches")
	script := strings.Replace(stubAdbScript, "sleep 5", "echo x >> "+countPath, 1)

	stub := filepath.Join(dir, "adb")
	if err := os.WriteFile(stub, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	exec := NewAdbExecutor(stub, 5*time.Second)
	history := LoadIdentityHistory(filepath.Join(dir, "history.jsonl"))
	t.Cleanup(history.Close)

	return NewRecorder(exec, NewRegistry(exec), NewHierarchy(exec), history, DefaultConfig()), countPath
}

func TestRecorder_StreamDeathLeavesSessionRecording(t *testing.T) {
	r, countPath := newDyingStreamRecorder(t)

	sess, err := r.Start(context.Background(), "emulator-5554")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// The tap emitted before the subprocess died is still captured.
	waitForSteps(t, sess, 1)

	// Give a (wrong) automatic restart time to happen, then verify the
	// session is still nominally recording and the capture subprocess
	// was launched exactly once.
	time.Sleep(300 * time.Millisecond)
	if sess.State() != RecRecording {
		t.Errorf("state = %v, stream death must not change the session state", sess.State())
	}
	data, err := os.ReadFile(countPath)
	if err != nil {
		t.Fatalf("reading launch count: %v", err)
	}
	if n := strings.Count(string(data), "x"); n != 1 {
		t.Errorf("capture subprocess launched %d times, want 1 (no auto-restart)", n)
	}

	// Stop still tears the session down cleanly.
	if _, err := r.Stop(); err != nil {
		t.Fatalf("stop after stream death failed: %v", err)
	}
	if sess.State() != RecStopped {
		t.Errorf("state = %v, want stopped", sess.State())
	}
}

func TestRecorder_StopDuringActiveStream(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("stub adb is a shell script")
	}

	// Keep the event stream flowing so Stop lands while the scanner is
	// mid-feed, not parked on a quiet pipe.
	script := strings.Replace(stubAdbScript, "sleep 5", `while :; do
      cat <<'EOF2'
[   20.000000] EV_KEY       BTN_TOUCH            DOWN
[   20.000100] EV_ABS       ABS_MT_POSITION_X    0000021c
[   20.000200] EV_ABS       ABS_MT_POSITION_Y    0000036b
[   20.100000] EV_KEY       BTN_TOUCH            UP
EOF2
      sleep 0.05
    done`, 1)

	dir := t.TempDir()
	stub := filepath.Join(dir, "adb")
	if err := os.WriteFile(stub, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	exec := NewAdbExecutor(stub, 5*time.Second)
	history := LoadIdentityHistory(filepath.Join(dir, "history.jsonl"))
	t.Cleanup(history.Close)
	r := NewRecorder(exec, NewRegistry(exec), NewHierarchy(exec), history, DefaultConfig())

	sess, err := r.Start(context.Background(), "emulator-5554")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitForSteps(t, sess, 1)

	steps, err := r.Stop()
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if len(steps) == 0 {
		t.Error("steps captured before stop must survive it")
	}
	if sess.State() != RecStopped {
		t.Errorf("state = %v, want stopped", sess.State())
	}
}

func TestRecorder_PauseResume(t *testing.T) {
	r := newTestRecorder(t)

	if err := r.Pause(); err != ErrNotRecording {
		t.Errorf("pause without a session: err = %v, want ErrNotRecording", err)
	}

	sess, err := r.Start(context.Background(), "emulator-5554")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer r.Stop()

	if err := r.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if sess.State() != RecPaused {
		t.Errorf("state = %v, want paused", sess.State())
	}
	if err := r.Pause(); err != ErrNotRecording {
		t.Errorf("double pause: err = %v, want ErrNotRecording", err)
	}

	if err := r.Resume(); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if sess.State() != RecRecording {
		t.Errorf("state = %v, want recording", sess.State())
	}
	if err := r.Resume(); err != ErrNotRecording {
		t.Errorf("resume while recording: err = %v, want ErrNotRecording", err)
	}
}
