package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// ProcStatus is the uniform status report for a supervised process.
// Status never errors; an unreachable process reports not running.
type ProcStatus struct {
	Running  bool              `json:"running"`
	State    ProcState         `json:"state"`
	Since    time.Time         `json:"since,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Supervisor is the shared contract for long-lived dependency processes.
// Start blocks until the readiness probe passes or the startup timeout
// elapses; it is idempotent while the process runs.
type Supervisor interface {
	Start(ctx context.Context) error
	Stop() error
	Status() ProcStatus
}

// procHandle owns one supervised subprocess and its lifecycle state.
type procHandle struct {
	mu    sync.Mutex
	state ProcState
	cmd   *exec.Cmd
	since time.Time
}

func (p *procHandle) getState() ProcState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// claimStart moves stopped→starting. Returns false when the process is
// already starting or running, which makes Start a no-op success.
func (p *procHandle) claimStart() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != ProcStopped {
		return false
	}
	p.state = ProcStarting
	return true
}

func (p *procHandle) markRunning(cmd *exec.Cmd) {
	p.mu.Lock()
	p.state = ProcRunning
	p.cmd = cmd
	p.since = time.Now()
	p.mu.Unlock()
}

func (p *procHandle) markStopped() {
	p.mu.Lock()
	p.state = ProcStopped
	p.cmd = nil
	p.mu.Unlock()
}

// terminate signals the subprocess and waits for it to exit, killing it
// after the grace period. Stopping an already stopped process is not an
// error.
func (p *procHandle) terminate(grace time.Duration) error {
	p.mu.Lock()
	cmd := p.cmd
	if p.state == ProcStopped || cmd == nil || cmd.Process == nil {
		p.state = ProcStopped
		p.cmd = nil
		p.mu.Unlock()
		return nil
	}
	p.state = ProcStopping
	p.mu.Unlock()

	_ = cmd.Process.Signal(gracefulSignal)

	// The watch goroutine owns Wait; it flips the state to stopped when
	// the process exits.
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if p.getState() == ProcStopped {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	_ = cmd.Process.Kill()
	for i := 0; i < 20 && p.getState() != ProcStopped; i++ {
		time.Sleep(100 * time.Millisecond)
	}
	p.markStopped()
	return nil
}

// watch marks the process stopped when it exits on its own. A crashed
// dependency must not stay reported as running.
func (p *procHandle) watch(name string, cmd *exec.Cmd) {
	err := cmd.Wait()
	p.mu.Lock()
	wasRunning := p.state == ProcRunning && p.cmd == cmd
	if p.cmd == cmd {
		p.state = ProcStopped
		p.cmd = nil
	}
	p.mu.Unlock()
	if wasRunning {
		LogWarn("supervisor").Str("process", name).Err(err).Msg("Supervised process exited unexpectedly")
	}
}

// EmulatorSupervisor launches the Android emulator and waits for the
// guest to finish booting.
type EmulatorSupervisor struct {
	cfg  Config
	reg  *Registry
	exec *AdbExecutor
	proc procHandle
}

func NewEmulatorSupervisor(cfg Config, reg *Registry, exec *AdbExecutor) *EmulatorSupervisor {
	return &EmulatorSupervisor{cfg: cfg, reg: reg, exec: exec}
}

// Start boots the configured AVD and blocks until an emulator device
// reports sys.boot_completed, or fails with ErrStartupTimeout. On
// timeout the half-started process is killed so state remains stopped.
func (s *EmulatorSupervisor) Start(ctx context.Context) error {
	if !s.proc.claimStart() {
		LogDebug("supervisor").Str("process", "emulator").Msg("Start ignored, already running")
		return nil
	}

	cmd := exec.Command(s.cfg.EmulatorPath, "-avd", s.cfg.AvdName, "-no-boot-anim")
	if err := cmd.Start(); err != nil {
		s.proc.markStopped()
		return fmt.Errorf("launch emulator: %w", err)
	}
	LogUserAction(ActionEmulatorStart, "", map[string]interface{}{"avd": s.cfg.AvdName, "pid": cmd.Process.Pid})

	if err := s.waitForBoot(ctx); err != nil {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
		s.proc.markStopped()
		return err
	}

	s.proc.markRunning(cmd)
	go s.proc.watch("emulator", cmd)
	return nil
}

func (s *EmulatorSupervisor) waitForBoot(ctx context.Context) error {
	deadline := time.Now().Add(s.cfg.EmulatorStartupMax)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if id := s.bootedEmulator(); id != "" {
			LogInfo("supervisor").Str("deviceId", id).Msg("Emulator booted")
			return nil
		}
		time.Sleep(2 * time.Second)
	}
	return fmt.Errorf("emulator %s: %w", s.cfg.AvdName, ErrStartupTimeout)
}

// bootedEmulator returns the id of the first emulator device that has
// finished booting, or "".
func (s *EmulatorSupervisor) bootedEmulator() string {
	devices, err := s.reg.ListDevices()
	if err != nil {
		return ""
	}
	for _, d := range devices {
		if d.Kind != KindEmulator || !d.Online {
			continue
		}
		out, err := s.exec.Shell(d.ID, "getprop", "sys.boot_completed")
		if err == nil && out == "1" {
			return d.ID
		}
	}
	return ""
}

// AvailableAVDs lists the AVD names the emulator binary knows about.
func (s *EmulatorSupervisor) AvailableAVDs() ([]string, error) {
	out, err := exec.Command(s.cfg.EmulatorPath, "-list-avds").Output()
	if err != nil {
		return nil, fmt.Errorf("list avds: %w", err)
	}
	var avds []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		// Recent emulator builds print an INFO banner first.
		if line == "" || strings.HasPrefix(line, "INFO") {
			continue
		}
		avds = append(avds, line)
	}
	return avds, nil
}

// Stop terminates the emulator process.
func (s *EmulatorSupervisor) Stop() error {
	LogUserAction(ActionEmulatorStop, "", map[string]interface{}{"avd": s.cfg.AvdName})
	return s.proc.terminate(10 * time.Second)
}

// Status reports the supervisor state without probing the guest.
func (s *EmulatorSupervisor) Status() ProcStatus {
	s.proc.mu.Lock()
	defer s.proc.mu.Unlock()
	return ProcStatus{
		Running:  s.proc.state == ProcRunning,
		State:    s.proc.state,
		Since:    s.proc.since,
		Metadata: map[string]string{"avd": s.cfg.AvdName},
	}
}

// AppiumSupervisor launches the Appium server and polls its status
// endpoint until it reports ready.
type AppiumSupervisor struct {
	cfg    Config
	client *http.Client
	proc   procHandle
}

func NewAppiumSupervisor(cfg Config) *AppiumSupervisor {
	return &AppiumSupervisor{
		cfg:    cfg,
		client: &http.Client{Timeout: 3 * time.Second},
	}
}

// Start launches Appium and blocks until GET /status reports ready, or
// fails with ErrStartupTimeout leaving state stopped.
func (s *AppiumSupervisor) Start(ctx context.Context) error {
	if !s.proc.claimStart() {
		LogDebug("supervisor").Str("process", "appium").Msg("Start ignored, already running")
		return nil
	}

	// A server someone else already runs on the port counts as ready;
	// supervising it is not our job then.
	if s.probeReady() {
		LogInfo("supervisor").Str("url", s.cfg.AppiumURL).Msg("Appium already reachable, adopting")
		s.proc.mu.Lock()
		s.proc.state = ProcRunning
		s.proc.since = time.Now()
		s.proc.mu.Unlock()
		return nil
	}

	cmd := exec.Command(s.cfg.AppiumPath, "--port", strconv.Itoa(s.cfg.AppiumPort), "--log-level", "warn")
	if err := cmd.Start(); err != nil {
		s.proc.markStopped()
		return fmt.Errorf("launch appium: %w", err)
	}

	deadline := time.Now().Add(s.cfg.AppiumStartupMax)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			_ = cmd.Process.Kill()
			_, _ = cmd.Process.Wait()
			s.proc.markStopped()
			return ctx.Err()
		}
		if s.probeReady() {
			s.proc.markRunning(cmd)
			go s.proc.watch("appium", cmd)
			LogInfo("supervisor").Str("url", s.cfg.AppiumURL).Msg("Appium ready")
			return nil
		}
		time.Sleep(time.Second)
	}

	_ = cmd.Process.Kill()
	_, _ = cmd.Process.Wait()
	s.proc.markStopped()
	return fmt.Errorf("appium on port %d: %w", s.cfg.AppiumPort, ErrStartupTimeout)
}

// probeReady checks GET /status. Appium wraps the payload in a W3C
// envelope; only value.ready matters.
func (s *AppiumSupervisor) probeReady() bool {
	resp, err := s.client.Get(s.cfg.AppiumURL + "/status")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return false
	}
	return gjson.GetBytes(body, "value.ready").Bool()
}

// Stop terminates the Appium process.
func (s *AppiumSupervisor) Stop() error {
	return s.proc.terminate(5 * time.Second)
}

// Status probes the live endpoint so a crashed or externally stopped
// server is reported truthfully.
func (s *AppiumSupervisor) Status() ProcStatus {
	s.proc.mu.Lock()
	state := s.proc.state
	since := s.proc.since
	s.proc.mu.Unlock()

	ready := state == ProcRunning && s.probeReady()
	return ProcStatus{
		Running: ready,
		State:   state,
		Since:   since,
		Metadata: map[string]string{
			"url":  s.cfg.AppiumURL,
			"port": strconv.Itoa(s.cfg.AppiumPort),
		},
	}
}
