package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// AppManager covers application lifecycle on a device: launch, stop,
// install, and the queries the replay engine and control plane need.
type AppManager struct {
	exec *AdbExecutor
}

func NewAppManager(exec *AdbExecutor) *AppManager {
	return &AppManager{exec: exec}
}

// Launch starts the package via its LAUNCHER intent. The monkey route
// works without knowing the main activity name.
func (m *AppManager) Launch(deviceID, pkg string) error {
	out, err := m.exec.Shell(deviceID, "monkey", "-p", pkg, "-c", "android.intent.category.LAUNCHER", "1")
	if err != nil {
		return fmt.Errorf("launch %s: %w", pkg, err)
	}
	if strings.Contains(out, "No activities found") || strings.Contains(out, "aborted") {
		return fmt.Errorf("launch %s: %s", pkg, firstLine(out))
	}
	LogDebug("apps").Str("deviceId", deviceID).Str("package", pkg).Msg("App launched")
	return nil
}

// ForceStop kills the package.
func (m *AppManager) ForceStop(deviceID, pkg string) error {
	if _, err := m.exec.Shell(deviceID, "am", "force-stop", pkg); err != nil {
		return fmt.Errorf("force-stop %s: %w", pkg, err)
	}
	return nil
}

// ClearData wipes the package's data and cache.
func (m *AppManager) ClearData(deviceID, pkg string) error {
	out, err := m.exec.Shell(deviceID, "pm", "clear", pkg)
	if err != nil {
		return fmt.Errorf("clear data %s: %w", pkg, err)
	}
	if !strings.Contains(out, "Success") {
		return fmt.Errorf("clear data %s: %s", pkg, firstLine(out))
	}
	return nil
}

// Install pushes and installs an APK from the host, replacing any
// existing install.
func (m *AppManager) Install(deviceID, apkPath string) error {
	res, err := m.exec.Run(deviceID, "install", "-r", apkPath)
	if err != nil {
		return fmt.Errorf("install %s: %w", filepath.Base(apkPath), err)
	}
	if !strings.Contains(res.Stdout, "Success") {
		return fmt.Errorf("install %s: %s", filepath.Base(apkPath), firstLine(res.Stdout+res.Stderr))
	}
	LogUserAction(ActionAppInstall, deviceID, map[string]interface{}{"apk": filepath.Base(apkPath)})
	return nil
}

// Uninstall removes the package. When the plain uninstall is refused
// (device-admin apps, work profiles) it retries per-user, which is
// enough for test devices.
func (m *AppManager) Uninstall(deviceID, pkg string) error {
	res, err := m.exec.Run(deviceID, "uninstall", pkg)
	if err == nil && !strings.Contains(res.Stdout, "Failure") {
		LogUserAction(ActionAppUninstall, deviceID, map[string]interface{}{"packageName": pkg})
		return nil
	}

	out, err2 := m.exec.Shell(deviceID, "pm", "uninstall", "-k", "--user", "0", pkg)
	if err2 != nil || strings.Contains(out, "Failure") {
		return fmt.Errorf("uninstall %s: %s", pkg, firstLine(out))
	}
	LogUserAction(ActionAppUninstall, deviceID, map[string]interface{}{"packageName": pkg})
	return nil
}

// IsInstalled reports whether the package exists on the device.
func (m *AppManager) IsInstalled(deviceID, pkg string) bool {
	out, err := m.exec.Shell(deviceID, "pm", "list", "packages", pkg)
	if err != nil {
		return false
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "package:"+pkg {
			return true
		}
	}
	return false
}

// IsRunning reports whether the package has a live process.
func (m *AppManager) IsRunning(deviceID, pkg string) bool {
	out, err := m.exec.Shell(deviceID, "pidof", pkg)
	return err == nil && strings.TrimSpace(out) != ""
}

// InstalledPackages lists third-party package names, sorted.
func (m *AppManager) InstalledPackages(deviceID string) ([]string, error) {
	out, err := m.exec.Shell(deviceID, "pm", "list", "packages", "-3")
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	var pkgs []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if name, ok := strings.CutPrefix(line, "package:"); ok && name != "" {
			pkgs = append(pkgs, name)
		}
	}
	sort.Strings(pkgs)
	return pkgs, nil
}

// Push copies a host file to the device.
func (m *AppManager) Push(deviceID, localPath, remotePath string) error {
	if _, err := m.exec.Run(deviceID, "push", localPath, remotePath); err != nil {
		return fmt.Errorf("push %s: %w", filepath.Base(localPath), err)
	}
	return nil
}

// Screenshot captures the screen as a PNG. screencap writes to a temp
// file on the device so binary output never crosses a pty; the temp
// file is removed even when the pull fails.
func (m *AppManager) Screenshot(deviceID string) ([]byte, error) {
	remote := fmt.Sprintf("/data/local/tmp/droidpilot_cap_%d.png", time.Now().UnixNano())
	defer m.exec.Shell(deviceID, "rm", "-f", remote)

	if _, err := m.exec.Shell(deviceID, "screencap", "-p", remote); err != nil {
		return nil, fmt.Errorf("screencap: %w", err)
	}
	res, err := m.exec.Run(deviceID, "exec-out", "cat", remote)
	if err != nil {
		return nil, fmt.Errorf("pull screenshot: %w", err)
	}
	if len(res.Stdout) == 0 {
		return nil, fmt.Errorf("pull screenshot: empty capture")
	}
	return []byte(res.Stdout), nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
