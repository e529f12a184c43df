package main

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ReplayEvent is published on every replay transition: per-step progress
// and the terminal outcome.
type ReplayEvent struct {
	Type  string        `json:"type"` // step-started, step-completed, replay-error, replay-finished
	Index int           `json:"index"`
	Step  *RecordedStep `json:"step,omitempty"`
	Error string        `json:"error,omitempty"`
	State ReplayState   `json:"state,omitempty"`
}

// Replayer executes recorded step sequences against a live device. One
// replay session at a time per agent instance.
type Replayer struct {
	exec    *AdbExecutor
	matcher *Matcher
	apps    *AppManager
	input   *Input
	cfg     Config

	// onDone receives the run record after a terminal transition, for
	// persistence. Optional.
	onDone func(ReplayRun)

	mu      sync.Mutex
	session *ReplaySession
}

// ReplaySession tracks one execution of a step sequence. The steps are
// borrowed from the caller, never mutated.
type ReplaySession struct {
	ID         string
	ScriptID   string
	DeviceID   string
	StartedAt  time.Time
	StartIndex int

	mu        sync.Mutex
	state     ReplayState
	current   int
	completed int
	failedIdx int
	lastErr   string
	listeners map[int]chan ReplayEvent
	nextLis   int

	steps []RecordedStep
}

func NewReplayer(exec *AdbExecutor, matcher *Matcher, apps *AppManager, input *Input, cfg Config) *Replayer {
	return &Replayer{exec: exec, matcher: matcher, apps: apps, input: input, cfg: cfg}
}

// OnDone registers the terminal-state callback. Must be set before the
// first Start.
func (r *Replayer) OnDone(fn func(ReplayRun)) {
	r.onDone = fn
}

// Start launches replay of steps[startIndex:] in the background and
// returns the session. A second start while one is running fails with
// ErrAlreadyReplaying.
func (r *Replayer) Start(ctx context.Context, deviceID, scriptID string, steps []RecordedStep, startIndex int) (*ReplaySession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		if st := r.session.State(); st == RepRunning || st == RepStopping {
			return nil, ErrAlreadyReplaying
		}
	}
	if startIndex < 0 || startIndex >= len(steps) {
		return nil, fmt.Errorf("start index %d out of range (0..%d)", startIndex, len(steps)-1)
	}

	sess := &ReplaySession{
		ID:         uuid.New().String(),
		ScriptID:   scriptID,
		DeviceID:   deviceID,
		StartedAt:  time.Now(),
		StartIndex: startIndex,
		state:      RepRunning,
		current:    startIndex,
		failedIdx:  -1,
		listeners:  make(map[int]chan ReplayEvent),
		steps:      steps,
	}
	r.session = sess

	LogUserAction(ActionReplayStart, deviceID, map[string]interface{}{
		"session_id":  sess.ID,
		"script_id":   scriptID,
		"step_count":  len(steps),
		"start_index": startIndex,
	})

	go r.run(ctx, sess)
	return sess, nil
}

// Stop requests cooperative cancellation. The in-flight step always
// finishes; replay halts at the next step boundary.
func (r *Replayer) Stop() {
	sess := r.Session()
	if sess == nil {
		return
	}
	sess.mu.Lock()
	if sess.state == RepRunning {
		sess.state = RepStopping
	}
	sess.mu.Unlock()
}

// Session returns the most recent session, running or terminal.
func (r *Replayer) Session() *ReplaySession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

func (r *Replayer) run(ctx context.Context, sess *ReplaySession) {
	for i := sess.StartIndex; i < len(sess.steps); i++ {
		if sess.State() != RepRunning || ctx.Err() != nil {
			break
		}

		step := sess.steps[i]
		sess.setCurrent(i)
		sess.publish(ReplayEvent{Type: "step-started", Index: i, Step: &step})

		if err := r.executeStep(ctx, sess.DeviceID, step); err != nil {
			stepErr := &StepError{Index: i, Type: step.Type, Cause: err}
			LogError("replay").Int("index", i).Str("type", string(step.Type)).Err(err).Msg("Step failed")
			sess.finish(RepFailed, i, stepErr.Error())
			sess.publish(ReplayEvent{Type: "replay-error", Index: i, Error: stepErr.Error(), State: RepFailed})
			r.finalize(sess)
			return
		}

		sess.stepDone()
		sess.publish(ReplayEvent{Type: "step-completed", Index: i, Step: &step})
	}

	sess.finish(RepCompleted, -1, "")
	sess.publish(ReplayEvent{Type: "replay-finished", Index: sess.Current(), State: sess.State()})
	r.finalize(sess)
}

func (r *Replayer) finalize(sess *ReplaySession) {
	run := sess.Run()
	LogUserAction(ActionReplayStop, sess.DeviceID, map[string]interface{}{
		"session_id": sess.ID,
		"status":     string(run.Status),
		"completed":  run.CompletedSteps,
	})
	if r.onDone != nil {
		r.onDone(run)
	}
	sess.closeListeners()
}

// executeStep dispatches one step by type.
func (r *Replayer) executeStep(ctx context.Context, deviceID string, step RecordedStep) error {
	switch step.Type {
	case StepTap:
		x, y := r.resolve(deviceID, step)
		return r.tapWithRecovery(deviceID, x, y)

	case StepLongPress:
		x, y := r.resolve(deviceID, step)
		// A zero-distance swipe held for 1000ms is a long press; the
		// captured hold duration already did its job during
		// classification.
		return r.withRecovery(deviceID, "long press", x, y, func() error {
			return r.swipe(deviceID, x, y, x, y, 1000)
		})

	case StepSwipe:
		dur := step.DurationMs
		if dur <= 0 {
			dur = 300
		}
		return r.swipe(deviceID, step.X, step.Y, step.X2, step.Y2, dur)

	case StepInput:
		// Focus first when a target is resolvable; otherwise trust that
		// the previous step already produced focus.
		if x, y, ok := r.resolveStrict(deviceID, step); ok {
			if err := r.tapWithRecovery(deviceID, x, y); err != nil {
				return err
			}
			time.Sleep(r.cfg.InputSettle)
		}
		return r.input.Text(deviceID, step.Text)

	case StepWait:
		time.Sleep(time.Duration(step.DurationMs) * time.Millisecond)
		return nil

	case StepAssert:
		if step.Element == nil {
			return fmt.Errorf("assert step has no element identity")
		}
		if _, err := r.matcher.BestMatch(deviceID, *step.Element); err != nil {
			return fmt.Errorf("assert %q: %w", step.Element.Describe(), err)
		}
		return nil

	case StepOpenApp:
		if err := r.apps.Launch(deviceID, step.Package); err != nil {
			return err
		}
		time.Sleep(r.cfg.AppLaunchSettle)
		return nil

	case StepPressKey:
		if err := r.input.PressKey(deviceID, step.KeyCode); err != nil {
			LogWarn("replay").Int("keycode", step.KeyCode).Err(err).Msg("Key press failed, continuing")
		}
		return nil

	case StepHideKeyboard:
		if err := r.input.HideKeyboard(deviceID); err != nil {
			LogWarn("replay").Err(err).Msg("Hide keyboard failed, continuing")
		}
		return nil

	default:
		return fmt.Errorf("unknown step type %q", step.Type)
	}
}

// resolve returns the target coordinates for a step: the matcher's
// current position when the element identity still resolves, the
// captured coordinates otherwise. Identities outlive UI relayout,
// coordinates do not.
func (r *Replayer) resolve(deviceID string, step RecordedStep) (int, int) {
	if x, y, ok := r.resolveStrict(deviceID, step); ok {
		return x, y
	}
	return step.X, step.Y
}

func (r *Replayer) resolveStrict(deviceID string, step RecordedStep) (int, int, bool) {
	if step.Element == nil || step.Element.Empty() {
		return 0, 0, false
	}
	match, err := r.matcher.BestMatch(deviceID, *step.Element)
	if err != nil {
		LogDebug("replay").Str("element", step.Element.Describe()).Err(err).Msg("Identity unresolved, falling back to coordinates")
		return 0, 0, false
	}
	x, y := match.Node.Bounds.Center()
	if x != step.X || y != step.Y {
		LogInfo("replay").
			Str("element", step.Element.Describe()).
			Int("recordedX", step.X).Int("recordedY", step.Y).
			Int("resolvedX", x).Int("resolvedY", y).
			Msg("Element moved since recording, using current position")
	}
	return x, y, true
}

func (r *Replayer) tapWithRecovery(deviceID string, x, y int) error {
	return r.withRecovery(deviceID, "tap", x, y, func() error {
		return r.tap(deviceID, x, y)
	})
}

// withRecovery runs a targeted injection, and on failure dismisses the
// soft keyboard, waits, and retries exactly once. An obscuring input
// method is the dominant failure mode for taps and long presses.
func (r *Replayer) withRecovery(deviceID, gesture string, x, y int, inject func() error) error {
	err := inject()
	if err == nil {
		return nil
	}
	LogDebug("replay").Str("gesture", gesture).Int("x", x).Int("y", y).Err(err).Msg("Injection failed, dismissing keyboard and retrying")
	_ = r.input.HideKeyboard(deviceID)
	time.Sleep(r.cfg.RetryPause)
	if err2 := inject(); err2 != nil {
		return fmt.Errorf("%s (%d, %d) after recovery: %w", gesture, x, y, err2)
	}
	return nil
}

func (r *Replayer) tap(deviceID string, x, y int) error {
	_, err := r.exec.Shell(deviceID, "input", "tap", strconv.Itoa(x), strconv.Itoa(y))
	return err
}

func (r *Replayer) swipe(deviceID string, x, y, x2, y2, durMs int) error {
	_, err := r.exec.Shell(deviceID, "input", "swipe",
		strconv.Itoa(x), strconv.Itoa(y), strconv.Itoa(x2), strconv.Itoa(y2), strconv.Itoa(durMs))
	return err
}

// State returns the session lifecycle state.
func (s *ReplaySession) State() ReplayState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the index of the step being (or last) executed.
func (s *ReplaySession) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Run snapshots the session as a persistable run record. Partial results
// survive failure: the caller learns how many steps completed and where
// execution stopped, so it can resume rather than restart.
func (s *ReplaySession) Run() ReplayRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := s.state
	return ReplayRun{
		ID:             s.ID,
		ScriptID:       s.ScriptID,
		DeviceID:       s.DeviceID,
		StartedAt:      s.StartedAt,
		FinishedAt:     time.Now(),
		Status:         status,
		CompletedSteps: s.completed,
		FailedIndex:    s.failedIdx,
		Error:          s.lastErr,
	}
}

// Subscribe registers a listener for replay events. Slow listeners lose
// events rather than stalling execution.
func (s *ReplaySession) Subscribe() (int, <-chan ReplayEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextLis
	s.nextLis++
	ch := make(chan ReplayEvent, 32)
	s.listeners[id] = ch
	return id, ch
}

// Unsubscribe removes a listener.
func (s *ReplaySession) Unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.listeners[id]; ok {
		delete(s.listeners, id)
		close(ch)
	}
}

func (s *ReplaySession) setCurrent(i int) {
	s.mu.Lock()
	s.current = i
	s.mu.Unlock()
}

func (s *ReplaySession) stepDone() {
	s.mu.Lock()
	s.completed++
	s.mu.Unlock()
}

func (s *ReplaySession) finish(state ReplayState, failedIdx int, errMsg string) {
	s.mu.Lock()
	// A stop request that reached the boundary still ends as completed
	// work up to that point; stopping is not a distinct terminal state.
	if state == RepCompleted && s.state == RepStopping {
		s.lastErr = ""
	}
	s.state = state
	s.failedIdx = failedIdx
	if errMsg != "" {
		s.lastErr = errMsg
	}
	s.mu.Unlock()
}

func (s *ReplaySession) publish(ev ReplayEvent) {
	s.mu.Lock()
	for _, ch := range s.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *ReplaySession) closeListeners() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.listeners {
		delete(s.listeners, id)
		close(ch)
	}
}
