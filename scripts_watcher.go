package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ScriptChange describes an external change to the scripts directory.
type ScriptChange struct {
	Action   string `json:"action"` // create, save, delete
	ScriptID string `json:"scriptId"`
	Path     string `json:"path,omitempty"`
}

// ScriptsWatcher monitors the scripts directory for changes made by
// external processes (an editor, the MCP server, a sync tool) so the
// control plane can pick up dropped-in script files without restarting.
type ScriptsWatcher struct {
	dir      string
	onChange func(ScriptChange)
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	mu       sync.Mutex
}

func NewScriptsWatcher(dir string, onChange func(ScriptChange)) *ScriptsWatcher {
	return &ScriptsWatcher{
		dir:      dir,
		onChange: onChange,
		stopCh:   make(chan struct{}),
	}
}

// Start begins watching the scripts directory, creating it if needed.
func (w *ScriptsWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("create scripts directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		w.watcher = nil
		return err
	}

	LogInfo("scripts_watcher").Str("path", w.dir).Msg("Started watching scripts directory")
	go w.watch()
	return nil
}

// Stop ends watching.
func (w *ScriptsWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		close(w.stopCh)
		w.watcher.Close()
		w.watcher = nil
	}
}

func (w *ScriptsWatcher) watch() {
	// Editors write in bursts; wait for events to settle before notifying.
	var debounceTimer *time.Timer
	debounceDelay := 300 * time.Millisecond

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}

			scriptID := strings.TrimSuffix(filepath.Base(event.Name), ".json")

			action := ""
			switch {
			case event.Op&fsnotify.Create == fsnotify.Create:
				action = "create"
			case event.Op&fsnotify.Write == fsnotify.Write:
				action = "save"
			case event.Op&fsnotify.Remove == fsnotify.Remove:
				action = "delete"
			case event.Op&fsnotify.Rename == fsnotify.Rename:
				// Rename is how atomic writes land.
				action = "delete"
			}
			if action == "" {
				continue
			}

			change := ScriptChange{Action: action, ScriptID: scriptID, Path: event.Name}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, func() {
				LogDebug("scripts_watcher").Str("action", change.Action).Str("scriptId", change.ScriptID).Msg("External script change")
				if w.onChange != nil {
					w.onChange(change)
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			LogError("scripts_watcher").Err(err).Msg("Watcher error")
		}
	}
}

// ExportScript writes a script to the scripts directory as pretty JSON,
// atomically via rename.
func ExportScript(dir string, script TouchScript) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create scripts directory: %w", err)
	}

	data, err := json.MarshalIndent(script, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal script: %w", err)
	}

	path := filepath.Join(dir, script.ID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("write script file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("finalize script file: %w", err)
	}
	return path, nil
}

// LoadScriptFile reads one exported script file.
func LoadScriptFile(path string) (TouchScript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TouchScript{}, err
	}
	var script TouchScript
	if err := json.Unmarshal(data, &script); err != nil {
		return TouchScript{}, fmt.Errorf("decode script %s: %w", filepath.Base(path), err)
	}
	if script.ID == "" {
		script.ID = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	return script, nil
}
