// Package paths resolves the configuration and data directories for sitesync.
//
// A site repository usually carries its own .sitesync directory next to the
// site sources; a user-level directory is only used when none is present.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// CWD-relative directory names.
const (
	ProjectConfigDirName = ".sitesync"
	DefaultDataDirName   = "data"
	appName              = "sitesync"
)

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "SITESYNC_CONFIG_DIR"
	EnvDataDir   = "SITESYNC_DATA_DIR"
)

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
	getwd         func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
	getwd:         os.Getwd,
}

// UserConfigDir returns the per-user configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/sitesync (fallback ~/.config/sitesync)
// macOS:   ~/Library/Application Support/sitesync
// Windows: %APPDATA%/sitesync
func UserConfigDir() (string, error) {
	if runtime.GOOS == "linux" {
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
		home, err := platformDir.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", appName), nil
	}
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName), nil
}

// ResolveConfigDir returns the configuration directory following the precedence
// chain: flag > SITESYNC_CONFIG_DIR env > $(CWD)/.sitesync if it exists >
// UserConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	cwd, err := platformDir.getwd()
	if err != nil {
		return "", err
	}
	project := filepath.Join(cwd, ProjectConfigDirName)
	if info, err := os.Stat(project); err == nil && info.IsDir() {
		return project, nil
	}
	return UserConfigDir()
}

// ResolveDataDir returns the directory holding the snapshot, following:
// flag > configValue > SITESYNC_DATA_DIR env > $(CWD)/data.
func ResolveDataDir(flag, configValue string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if configValue != "" {
		return filepath.Abs(configValue)
	}
	if env := os.Getenv(EnvDataDir); env != "" {
		return filepath.Abs(env)
	}
	cwd, err := platformDir.getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultDataDirName), nil
}
