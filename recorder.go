package main

import (
	"bufio"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Recorder owns the gesture capture engine. At most one recording
// session is active per agent instance; starting a second fails with
// ErrAlreadyRecording instead of silently interleaving captures.
type Recorder struct {
	exec    *AdbExecutor
	reg     *Registry
	hier    *Hierarchy
	history *IdentityHistory
	cfg     Config

	mu      sync.Mutex
	session *RecordingSession
}

// RecordingSession is one capture run against a single device. It owns
// the raw-event subprocess while recording.
type RecordingSession struct {
	ID        string
	DeviceID  string
	Package   string
	StartedAt time.Time

	mu        sync.Mutex
	state     RecordingState
	steps     []RecordedStep
	listeners map[int]chan RecordedStep
	nextLis   int

	tracker    *GestureTracker
	gestures   chan Gesture
	stopStream func()
	limiter    *rate.Limiter
	touchRange TouchRange
	screenW    int
	screenH    int
	wg         sync.WaitGroup
}

// NewRecorder wires the capture engine.
func NewRecorder(exec *AdbExecutor, reg *Registry, hier *Hierarchy, history *IdentityHistory, cfg Config) *Recorder {
	return &Recorder{exec: exec, reg: reg, hier: hier, history: history, cfg: cfg}
}

// Start begins capturing gestures on the device. It returns once capture
// is running, not once it ends; the raw-event feed is a cancellable
// background listener.
func (r *Recorder) Start(ctx context.Context, deviceID string) (*RecordingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil && (r.session.State() == RecRecording || r.session.State() == RecPaused) {
		return nil, ErrAlreadyRecording
	}

	inputDevice, err := FindTouchDevice(r.exec, deviceID)
	if err != nil {
		return nil, fmt.Errorf("no touch input device: %w", err)
	}

	screenW, screenH, err := r.reg.ScreenSize(deviceID)
	if err != nil {
		return nil, fmt.Errorf("screen size: %w", err)
	}

	sess := &RecordingSession{
		ID:         uuid.New().String(),
		DeviceID:   deviceID,
		Package:    r.reg.FocusedPackage(deviceID),
		StartedAt:  time.Now(),
		state:      RecRecording,
		listeners:  make(map[int]chan RecordedStep),
		tracker:    NewGestureTracker(r.cfg.SwipeThresholdPx, r.cfg.LongPressMin, r.cfg.DebounceWindow),
		gestures:   make(chan Gesture, 16),
		limiter:    rate.NewLimiter(rate.Every(r.cfg.DumpInterval), 1),
		touchRange: ReadTouchRange(r.exec, deviceID, inputDevice),
		screenW:    screenW,
		screenH:    screenH,
	}

	stdout, stop, err := r.exec.Stream(ctx, deviceID, "shell", "getevent", "-lt", inputDevice)
	if err != nil {
		return nil, fmt.Errorf("start capture: %w", err)
	}
	sess.stopStream = stop

	sess.wg.Add(2)
	go func() {
		defer sess.wg.Done()
		defer close(sess.gestures)

		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			ev, ok := ParseRawEvent(scanner.Text())
			if !ok {
				continue
			}
			if sess.State() != RecRecording {
				// Paused sessions drop events; a touch spanning the
				// pause must not complete as a gesture.
				sess.tracker.Discard()
				continue
			}
			if g := sess.tracker.Feed(ev); g != nil {
				select {
				case sess.gestures <- *g:
				default:
					LogWarn("recorder").Msg("Gesture buffer full, dropping")
				}
			}
		}
		// The feed only ends on deliberate stop or subprocess death. On
		// death the session stays in recording with no further events;
		// partial gesture state must not resume into a new capture, so
		// no automatic restart here.
		if sess.State() == RecRecording {
			LogWarn("recorder").Str("deviceId", deviceID).Err(scanner.Err()).Msg("Raw event feed ended unexpectedly")
		}
	}()
	go func() {
		defer sess.wg.Done()
		for g := range sess.gestures {
			r.emit(sess, g)
		}
	}()

	r.session = sess
	LogUserAction(ActionRecordingStart, deviceID, map[string]interface{}{
		"session_id":   sess.ID,
		"input_device": inputDevice,
		"package":      sess.Package,
	})
	return sess, nil
}

// emit converts a classified gesture into a recorded step, attaches a
// best-effort element identity, and fans it out.
func (r *Recorder) emit(sess *RecordingSession, g Gesture) {
	x, y := sess.touchRange.Scale(g.X, g.Y, sess.screenW, sess.screenH)
	x2, y2 := sess.touchRange.Scale(g.X2, g.Y2, sess.screenW, sess.screenH)

	step := RecordedStep{
		ID:         uuid.New().String(),
		CapturedAt: time.Now(),
		X:          x,
		Y:          y,
		DurationMs: int(g.Duration.Milliseconds()),
	}

	switch g.Kind {
	case GestureSwipe:
		step.Type = StepSwipe
		step.X2, step.Y2 = x2, y2
		step.Direction = g.Direction
		step.Description = fmt.Sprintf("Swipe %s from (%d, %d) to (%d, %d)", g.Direction, x, y, x2, y2)
	case GestureLongPress:
		step.Type = StepLongPress
		step.Description = fmt.Sprintf("Long press at (%d, %d)", x, y)
	default:
		step.Type = StepTap
		step.Description = fmt.Sprintf("Tap at (%d, %d)", x, y)
	}

	// Attach the element identity at the touch-down point. This, not
	// the coordinates, is what makes later replay resilient. A failed
	// lookup degrades to coordinates, it is not an error. Dumps are
	// rate limited so a fast tap series cannot flood the device.
	if g.Kind != GestureSwipe && r.limiterAllow(sess) {
		if root, err := r.hier.FetchTree(sess.DeviceID); err == nil {
			if node := ElementAtPoint(root, x, y); node != nil {
				identity := IdentityOf(node)
				if !identity.Empty() {
					step.Element = &identity
					if label := identity.Text; label != "" {
						step.Description = fmt.Sprintf("%s on %q", step.Description, label)
					}
					r.history.Append(sess.Package, node)
				}
			}
		} else {
			LogDebug("recorder").Err(err).Msg("Element lookup failed, step keeps coordinates only")
		}
	}

	sess.append(step)
}

func (r *Recorder) limiterAllow(sess *RecordingSession) bool {
	return sess.limiter.Allow()
}

// Pause suspends event capture without killing the subprocess.
func (r *Recorder) Pause() error {
	sess := r.current()
	if sess == nil || sess.State() != RecRecording {
		return ErrNotRecording
	}
	sess.setState(RecPaused)
	return nil
}

// Resume continues a paused session.
func (r *Recorder) Resume() error {
	sess := r.current()
	if sess == nil || sess.State() != RecPaused {
		return ErrNotRecording
	}
	sess.setState(RecRecording)
	return nil
}

// Stop kills the capture subprocess and returns the recorded steps. Any
// touch-down without a matching touch-up is discarded, not converted
// into a synthetic tap.
func (r *Recorder) Stop() ([]RecordedStep, error) {
	r.mu.Lock()
	sess := r.session
	r.mu.Unlock()

	if sess == nil || sess.State() == RecStopped {
		return nil, ErrNotRecording
	}

	sess.setState(RecStopped)
	if sess.stopStream != nil {
		sess.stopStream()
	}
	sess.wg.Wait()
	// The scanner goroutine has exited, so the tracker has a single
	// owner again; drop any touch-down still pending.
	sess.tracker.Discard()
	sess.closeListeners()

	steps := sess.Steps()
	LogUserAction(ActionRecordingStop, sess.DeviceID, map[string]interface{}{
		"session_id": sess.ID,
		"step_count": len(steps),
	})
	return steps, nil
}

// AddStep appends a manually authored step (wait, input, assert, ...) to
// the active session.
func (r *Recorder) AddStep(step RecordedStep) error {
	sess := r.current()
	if sess == nil || (sess.State() != RecRecording && sess.State() != RecPaused) {
		return ErrNotRecording
	}
	if step.ID == "" {
		step.ID = uuid.New().String()
	}
	if step.CapturedAt.IsZero() {
		step.CapturedAt = time.Now()
	}
	sess.append(step)
	return nil
}

// Session returns the active session, or nil.
func (r *Recorder) Session() *RecordingSession {
	return r.current()
}

func (r *Recorder) current() *RecordingSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// State returns the session lifecycle state.
func (s *RecordingSession) State() RecordingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *RecordingSession) setState(state RecordingState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Steps returns a copy of the recorded steps in emission order.
func (s *RecordingSession) Steps() []RecordedStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedStep, len(s.steps))
	copy(out, s.steps)
	return out
}

// Subscribe registers a listener for newly captured steps. Zero
// listeners is a valid state; a slow listener loses steps rather than
// stalling capture.
func (s *RecordingSession) Subscribe() (int, <-chan RecordedStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextLis
	s.nextLis++
	ch := make(chan RecordedStep, 32)
	s.listeners[id] = ch
	return id, ch
}

// Unsubscribe removes a listener.
func (s *RecordingSession) Unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.listeners[id]; ok {
		delete(s.listeners, id)
		close(ch)
	}
}

func (s *RecordingSession) append(step RecordedStep) {
	s.mu.Lock()
	s.steps = append(s.steps, step)
	for _, ch := range s.listeners {
		select {
		case ch <- step:
		default:
		}
	}
	s.mu.Unlock()

	LogDebug("recorder").Str("type", string(step.Type)).Int("x", step.X).Int("y", step.Y).Msg("Step captured")
}

func (s *RecordingSession) closeListeners() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.listeners {
		delete(s.listeners, id)
		close(ch)
	}
}
