package main

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the agent. Handlers at the HTTP boundary
// map these to status codes; everything below just wraps and propagates.
var (
	ErrDeviceUnavailable = errors.New("no device available")
	ErrElementNotFound   = errors.New("element not found")
	ErrAlreadyRecording  = errors.New("recording already in progress")
	ErrAlreadyReplaying  = errors.New("replay already in progress")
	ErrNotRecording      = errors.New("no active recording")
	ErrStartupTimeout    = errors.New("startup timeout")
)

// ExecError reports a failed or timed-out external command.
type ExecError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Timeout  bool
}

func (e *ExecError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("command timed out: %v", e.Args)
	}
	return fmt.Sprintf("command failed (exit %d): %v: %s", e.ExitCode, e.Args, e.Stderr)
}

// IsExecTimeout reports whether err is a command timeout.
func IsExecTimeout(err error) bool {
	var ee *ExecError
	return errors.As(err, &ee) && ee.Timeout
}

// StepError reports the failing step of a replay. The index lets callers
// resume from the failure point instead of restarting the whole sequence.
type StepError struct {
	Index int
	Type  StepType
	Cause error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.Index, e.Type, e.Cause)
}

func (e *StepError) Unwrap() error { return e.Cause }
