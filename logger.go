package main

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global structured logger.
var Logger zerolog.Logger

var persistentLogger *PersistentLogger

// LogConfig controls log output destinations and retention.
type LogConfig struct {
	Level      zerolog.Level
	Console    bool
	File       bool
	FilePath   string
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool
}

// DefaultLogConfig returns console-only logging at info level.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      zerolog.InfoLevel,
		Console:    true,
		MaxSizeMB:  10,
		MaxAgeDays: 7,
		MaxBackups: 5,
		Compress:   true,
	}
}

// PersistentLogConfig returns console+file logging under dataDir/logs.
func PersistentLogConfig(dataDir string) LogConfig {
	cfg := DefaultLogConfig()
	cfg.File = true
	cfg.FilePath = filepath.Join(dataDir, "logs", "droidpilot.log")
	return cfg
}

// PersistentLogger handles file rotation and cleanup of old logs.
type PersistentLogger struct {
	mu          sync.Mutex
	config      LogConfig
	currentFile *os.File
	currentSize int64
	logDir      string
}

// NewPersistentLogger opens the log file and starts the cleanup routine.
func NewPersistentLogger(config LogConfig) (*PersistentLogger, error) {
	logDir := filepath.Dir(config.FilePath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	pl := &PersistentLogger{config: config, logDir: logDir}
	if err := pl.openFile(); err != nil {
		return nil, err
	}

	go pl.cleanupRoutine()
	return pl, nil
}

// Write implements io.Writer, rotating when the size limit is reached.
func (pl *PersistentLogger) Write(p []byte) (n int, err error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.config.MaxSizeMB > 0 && pl.currentSize+int64(len(p)) > int64(pl.config.MaxSizeMB)*1024*1024 {
		if err := pl.rotate(); err != nil {
			return 0, err
		}
	}

	n, err = pl.currentFile.Write(p)
	pl.currentSize += int64(n)
	return n, err
}

func (pl *PersistentLogger) openFile() error {
	file, err := os.OpenFile(pl.config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	pl.currentFile = file
	pl.currentSize = info.Size()
	return nil
}

func (pl *PersistentLogger) rotate() error {
	if pl.currentFile != nil {
		pl.currentFile.Close()
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	rotatedPath := filepath.Join(pl.logDir, fmt.Sprintf("droidpilot_%s.log", timestamp))

	if err := os.Rename(pl.config.FilePath, rotatedPath); err != nil {
		return pl.openFile()
	}

	if pl.config.Compress {
		go pl.compressFile(rotatedPath)
	}

	return pl.openFile()
}

func (pl *PersistentLogger) compressFile(filePath string) {
	src, err := os.Open(filePath)
	if err != nil {
		return
	}
	defer src.Close()

	dst, err := os.Create(filePath + ".gz")
	if err != nil {
		return
	}
	defer dst.Close()

	gz := gzip.NewWriter(dst)
	defer gz.Close()

	if _, err := io.Copy(gz, src); err != nil {
		os.Remove(filePath + ".gz")
		return
	}
	os.Remove(filePath)
}

func (pl *PersistentLogger) cleanupRoutine() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	pl.cleanup()
	for range ticker.C {
		pl.cleanup()
	}
}

func (pl *PersistentLogger) cleanup() {
	files, err := filepath.Glob(filepath.Join(pl.logDir, "droidpilot_*.log*"))
	if err != nil {
		return
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var fileInfos []fileInfo
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		fileInfos = append(fileInfos, fileInfo{path: f, modTime: info.ModTime()})
	}

	sort.Slice(fileInfos, func(i, j int) bool {
		return fileInfos[i].modTime.After(fileInfos[j].modTime)
	})

	now := time.Now()
	for i, fi := range fileInfos {
		if pl.config.MaxAgeDays > 0 && now.Sub(fi.modTime) > time.Duration(pl.config.MaxAgeDays)*24*time.Hour {
			os.Remove(fi.path)
			continue
		}
		if pl.config.MaxBackups > 0 && i >= pl.config.MaxBackups {
			os.Remove(fi.path)
		}
	}
}

// Close flushes and closes the current log file.
func (pl *PersistentLogger) Close() error {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.currentFile != nil {
		return pl.currentFile.Close()
	}
	return nil
}

// InitLogger configures the global Logger.
func InitLogger(config LogConfig) error {
	var writers []io.Writer

	if config.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}

	if config.File && config.FilePath != "" {
		pl, err := NewPersistentLogger(config)
		if err != nil {
			return err
		}
		persistentLogger = pl
		writers = append(writers, pl)
	}

	if len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"})
	}

	multi := zerolog.MultiLevelWriter(writers...)
	Logger = zerolog.New(multi).Level(config.Level).With().Timestamp().Logger()
	return nil
}

// CloseLogger closes the persistent log file, if any.
func CloseLogger() {
	if persistentLogger != nil {
		persistentLogger.Close()
	}
}

// LogDebug returns a debug event tagged with the originating module.
func LogDebug(module string) *zerolog.Event {
	return Logger.Debug().Str("module", module)
}

// LogInfo returns an info event tagged with the originating module.
func LogInfo(module string) *zerolog.Event {
	return Logger.Info().Str("module", module)
}

// LogWarn returns a warn event tagged with the originating module.
func LogWarn(module string) *zerolog.Event {
	return Logger.Warn().Str("module", module)
}

// LogError returns an error event tagged with the originating module.
func LogError(module string) *zerolog.Event {
	return Logger.Error().Str("module", module)
}

// UserAction identifies an operator-initiated action for the audit trail.
type UserAction string

const (
	ActionRecordingStart UserAction = "recording_start"
	ActionRecordingStop  UserAction = "recording_stop"
	ActionReplayStart    UserAction = "replay_start"
	ActionReplayStop     UserAction = "replay_stop"
	ActionEmulatorStart  UserAction = "emulator_start"
	ActionEmulatorStop   UserAction = "emulator_stop"
	ActionDeviceCommand  UserAction = "device_command"
	ActionAppInstall     UserAction = "app_install"
	ActionAppUninstall   UserAction = "app_uninstall"
)

// LogUserAction records an operator action with free-form details.
func LogUserAction(action UserAction, deviceID string, details map[string]interface{}) {
	event := Logger.Info().
		Str("category", "user_interaction").
		Str("action", string(action)).
		Str("device_id", deviceID)

	for k, v := range details {
		switch val := v.(type) {
		case string:
			event.Str(k, val)
		case int:
			event.Int(k, val)
		case int64:
			event.Int64(k, val)
		case bool:
			event.Bool(k, val)
		case error:
			event.Err(val)
		default:
			event.Interface(k, val)
		}
	}

	event.Msg("User action")
}

func init() {
	_ = InitLogger(DefaultLogConfig())
}
