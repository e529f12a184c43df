package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// ExecResult carries the outcome of one external command invocation.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner runs device-targeted commands. The concrete implementation shells
// out to adb; tests substitute fakes.
type Runner interface {
	// Run executes an adb command against the given device with the
	// executor's default timeout. Args are passed verbatim after the
	// `-s <deviceID>` prefix.
	Run(deviceID string, args ...string) (ExecResult, error)

	// RunContext is Run with caller-controlled cancellation.
	RunContext(ctx context.Context, deviceID string, args ...string) (ExecResult, error)

	// Shell runs `adb shell <args...>` and returns trimmed stdout.
	Shell(deviceID string, args ...string) (string, error)

	// Stream starts a long-running adb command and returns its stdout
	// pipe. The returned stop function kills the process and reaps it.
	Stream(ctx context.Context, deviceID string, args ...string) (io.ReadCloser, func(), error)
}

var deviceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._:-]+$`)

// ValidateDeviceID rejects device ids that could smuggle shell syntax.
func ValidateDeviceID(deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("device ID cannot be empty")
	}
	if len(deviceID) > 256 {
		return fmt.Errorf("device ID too long (max 256 characters)")
	}
	if !deviceIDPattern.MatchString(deviceID) {
		return fmt.Errorf("invalid device ID format")
	}
	return nil
}

// AdbExecutor is the leaf command executor. One instance per agent; every
// other component routes device commands through it so nothing else hard
// codes "the" device. No retries here — retry policy belongs to callers.
type AdbExecutor struct {
	adbPath string
	timeout time.Duration
}

// NewAdbExecutor returns an executor using the given adb binary.
func NewAdbExecutor(adbPath string, timeout time.Duration) *AdbExecutor {
	if adbPath == "" {
		adbPath = "adb"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AdbExecutor{adbPath: adbPath, timeout: timeout}
}

// Run executes an adb command targeted at deviceID.
func (e *AdbExecutor) Run(deviceID string, args ...string) (ExecResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	return e.RunContext(ctx, deviceID, args...)
}

// RunContext executes an adb command under the caller's context.
func (e *AdbExecutor) RunContext(ctx context.Context, deviceID string, args ...string) (ExecResult, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return ExecResult{}, fmt.Errorf("invalid device ID: %w", err)
	}

	full := append([]string{"-s", deviceID}, args...)
	cmd := exec.CommandContext(ctx, e.adbPath, full...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}

	if ctx.Err() == context.DeadlineExceeded {
		return res, &ExecError{Args: full, Timeout: true}
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
		}
		return res, &ExecError{Args: full, ExitCode: res.ExitCode, Stderr: strings.TrimSpace(res.Stderr)}
	}
	return res, nil
}

// Shell runs `adb shell <args...>` and returns trimmed stdout. The
// device shell re-joins the arguments, so a single pre-built command
// string and separate words are equivalent.
func (e *AdbExecutor) Shell(deviceID string, args ...string) (string, error) {
	res, err := e.Run(deviceID, append([]string{"shell"}, args...)...)
	if err != nil {
		return res.Stdout, err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// Stream starts a long-running adb command (e.g. getevent) and hands the
// caller its stdout. The stop function is safe to call more than once.
func (e *AdbExecutor) Stream(ctx context.Context, deviceID string, args ...string) (io.ReadCloser, func(), error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return nil, nil, fmt.Errorf("invalid device ID: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	full := append([]string{"-s", deviceID}, args...)
	cmd := exec.CommandContext(streamCtx, e.adbPath, full...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to start %v: %w", full, err)
	}

	LogDebug("executor").Int("pid", cmd.Process.Pid).Strs("args", full).Msg("Stream started")

	stop := func() {
		cancel()
		_ = cmd.Wait()
	}
	return stdout, stop, nil
}

// RunHost executes a non-device-targeted adb command (e.g. `adb devices`).
func (e *AdbExecutor) RunHost(args ...string) (ExecResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.adbPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if ctx.Err() == context.DeadlineExceeded {
		return res, &ExecError{Args: args, Timeout: true}
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
		}
		return res, &ExecError{Args: args, ExitCode: res.ExitCode, Stderr: strings.TrimSpace(res.Stderr)}
	}
	return res, nil
}
