package main

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config carries every tunable the agent exposes. The gesture and matcher
// thresholds are empirically chosen defaults, not structural invariants, so
// they stay configurable.
type Config struct {
	// HTTP control surface
	ListenAddr string

	// Data directory (scripts, identity history, sqlite store, logs)
	DataDir string

	// External binaries
	AdbPath      string
	EmulatorPath string
	AppiumPath   string

	// Emulator
	AvdName            string
	EmulatorStartupMax time.Duration

	// Appium
	AppiumURL        string
	AppiumPort       int
	AppiumStartupMax time.Duration

	// Command execution
	CommandTimeout time.Duration

	// Gesture classification
	SwipeThresholdPx int           // displacement beyond which a gesture is a swipe
	LongPressMin     time.Duration // hold duration beyond which a gesture is a long press
	DebounceWindow   time.Duration // minimum gap between emitted steps

	// Capture enrichment
	DumpInterval time.Duration // minimum spacing between UI dumps while recording

	// Locator matcher weights and confidence floor
	ScoreResourceID int
	ScoreDesc       int
	ScoreText       int
	ScoreClass      int
	ScoreFloor      int

	// Replay pacing
	InputSettle     time.Duration // delay between focus tap and text injection
	AppLaunchSettle time.Duration // delay after open_app
	RetryPause      time.Duration // delay before the single tap recovery retry
}

// DefaultConfig returns the agent defaults.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		ListenAddr: "127.0.0.1:7900",
		DataDir:    filepath.Join(home, ".droidpilot"),

		AdbPath:      "adb",
		EmulatorPath: "emulator",
		AppiumPath:   "appium",

		AvdName:            "",
		EmulatorStartupMax: 120 * time.Second,

		AppiumURL:        "http://127.0.0.1:4723",
		AppiumPort:       4723,
		AppiumStartupMax: 30 * time.Second,

		CommandTimeout: 30 * time.Second,

		SwipeThresholdPx: 100,
		LongPressMin:     500 * time.Millisecond,
		DebounceWindow:   300 * time.Millisecond,

		DumpInterval: 500 * time.Millisecond,

		ScoreResourceID: 100,
		ScoreDesc:       80,
		ScoreText:       60,
		ScoreClass:      10,
		ScoreFloor:      50,

		InputSettle:     500 * time.Millisecond,
		AppLaunchSettle: 2 * time.Second,
		RetryPause:      800 * time.Millisecond,
	}
}

// LoadConfig applies DROIDPILOT_* environment overrides on top of defaults.
func LoadConfig() Config {
	cfg := DefaultConfig()

	envStr(&cfg.ListenAddr, "DROIDPILOT_LISTEN")
	envStr(&cfg.DataDir, "DROIDPILOT_DATA_DIR")
	envStr(&cfg.AdbPath, "DROIDPILOT_ADB")
	envStr(&cfg.EmulatorPath, "DROIDPILOT_EMULATOR")
	envStr(&cfg.AppiumPath, "DROIDPILOT_APPIUM")
	envStr(&cfg.AvdName, "DROIDPILOT_AVD")
	envStr(&cfg.AppiumURL, "DROIDPILOT_APPIUM_URL")

	envInt(&cfg.AppiumPort, "DROIDPILOT_APPIUM_PORT")
	envInt(&cfg.SwipeThresholdPx, "DROIDPILOT_SWIPE_PX")
	envInt(&cfg.ScoreResourceID, "DROIDPILOT_SCORE_ID")
	envInt(&cfg.ScoreDesc, "DROIDPILOT_SCORE_DESC")
	envInt(&cfg.ScoreText, "DROIDPILOT_SCORE_TEXT")
	envInt(&cfg.ScoreClass, "DROIDPILOT_SCORE_CLASS")
	envInt(&cfg.ScoreFloor, "DROIDPILOT_SCORE_FLOOR")

	envDur(&cfg.CommandTimeout, "DROIDPILOT_CMD_TIMEOUT")
	envDur(&cfg.LongPressMin, "DROIDPILOT_LONG_PRESS")
	envDur(&cfg.DebounceWindow, "DROIDPILOT_DEBOUNCE")
	envDur(&cfg.EmulatorStartupMax, "DROIDPILOT_EMULATOR_STARTUP")
	envDur(&cfg.AppiumStartupMax, "DROIDPILOT_APPIUM_STARTUP")

	return cfg
}

// ScriptsDir is where recorded scripts are persisted as JSON.
func (c Config) ScriptsDir() string {
	return filepath.Join(c.DataDir, "scripts")
}

// HistoryPath is the append-only identity history log.
func (c Config) HistoryPath() string {
	return filepath.Join(c.DataDir, "identity_history.jsonl")
}

// StorePath is the sqlite database location.
func (c Config) StorePath() string {
	return filepath.Join(c.DataDir, "droidpilot.db")
}

func envStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDur(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
