package main

import (
	"fmt"
	"strings"
)

// Android keycodes used by replay and the control plane.
const (
	KeycodeBack         = 4
	KeycodeHome         = 3
	KeycodeEnter        = 66
	KeycodeHideKeyboard = 111 // KEYCODE_ESCAPE, dismisses the soft keyboard
)

// Input drives text entry and key events through `adb shell input`.
type Input struct {
	exec *AdbExecutor
}

func NewInput(exec *AdbExecutor) *Input {
	return &Input{exec: exec}
}

// escapeInputText prepares a string for `input text`. The shell on the
// device splits on spaces and interprets metacharacters, so spaces become
// %s and everything the shell cares about gets a backslash.
func escapeInputText(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch r {
		case ' ':
			b.WriteString("%s")
		case '\'', '"', '`', '\\', '$', '&', '|', ';', '(', ')', '<', '>', '*', '?', '#', '~':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Text types the string into whatever view currently has input focus.
func (i *Input) Text(deviceID, text string) error {
	if text == "" {
		return nil
	}
	if _, err := i.exec.Shell(deviceID, "input", "text", escapeInputText(text)); err != nil {
		return fmt.Errorf("input text: %w", err)
	}
	LogDebug("input").Str("deviceId", deviceID).Int("length", len(text)).Msg("Text entered")
	return nil
}

// PressKey sends a single keyevent.
func (i *Input) PressKey(deviceID string, keycode int) error {
	if _, err := i.exec.Shell(deviceID, "input", "keyevent", fmt.Sprintf("%d", keycode)); err != nil {
		return fmt.Errorf("keyevent %d: %w", keycode, err)
	}
	return nil
}

// HideKeyboard dismisses the soft keyboard if one is showing. A device
// without a visible keyboard treats this as a no-op, so callers never
// need to check first.
func (i *Input) HideKeyboard(deviceID string) error {
	return i.PressKey(deviceID, KeycodeHideKeyboard)
}

// KeyboardVisible reports whether the soft keyboard is currently shown.
func (i *Input) KeyboardVisible(deviceID string) bool {
	out, err := i.exec.Shell(deviceID, "dumpsys", "input_method")
	if err != nil {
		return false
	}
	return strings.Contains(out, "mInputShown=true")
}
