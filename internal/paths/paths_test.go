package paths

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withCWD points platformDir.getwd at dir for the duration of the test.
func withCWD(t *testing.T, dir string) {
	t.Helper()
	orig := platformDir.getwd
	platformDir.getwd = func() (string, error) { return dir, nil }
	t.Cleanup(func() { platformDir.getwd = orig })
}

func TestUserConfigDir_Linux(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("linux-only test")
	}

	t.Run("uses XDG_CONFIG_HOME when set", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")
		got, err := UserConfigDir()
		require.NoError(t, err)
		assert.Equal(t, "/tmp/xdg-config/sitesync", got)
	})

	t.Run("falls back to ~/.config when XDG unset", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		orig := platformDir.homeDir
		platformDir.homeDir = func() (string, error) { return "/home/editor", nil }
		t.Cleanup(func() { platformDir.homeDir = orig })

		got, err := UserConfigDir()
		require.NoError(t, err)
		assert.Equal(t, "/home/editor/.config/sitesync", got)
	})
}

func TestResolveConfigDir(t *testing.T) {
	t.Run("flag wins over env", func(t *testing.T) {
		t.Setenv(EnvConfigDir, "/env/config")
		got, err := ResolveConfigDir("/explicit/config")
		require.NoError(t, err)
		assert.Equal(t, "/explicit/config", got)
	})

	t.Run("env wins when flag empty", func(t *testing.T) {
		t.Setenv(EnvConfigDir, "/env/config")
		got, err := ResolveConfigDir("")
		require.NoError(t, err)
		assert.Equal(t, "/env/config", got)
	})

	t.Run("project directory when present", func(t *testing.T) {
		t.Setenv(EnvConfigDir, "")
		cwd := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(cwd, ProjectConfigDirName), 0o755))
		withCWD(t, cwd)

		got, err := ResolveConfigDir("")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(cwd, ProjectConfigDirName), got)
	})

	t.Run("user directory when no project directory", func(t *testing.T) {
		t.Setenv(EnvConfigDir, "")
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")
		withCWD(t, t.TempDir())

		got, err := ResolveConfigDir("")
		require.NoError(t, err)
		assert.Contains(t, got, appName)
	})

	t.Run("relative flag becomes absolute", func(t *testing.T) {
		got, err := ResolveConfigDir("relative/path")
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(got), "expected absolute path, got %s", got)
	})
}

func TestResolveDataDir(t *testing.T) {
	cwd := t.TempDir()
	withCWD(t, cwd)

	tests := []struct {
		name      string
		flag      string
		configVal string
		envVal    string
		want      string
	}{
		{
			name:      "flag wins over all",
			flag:      "/flag/data",
			configVal: "/config/data",
			envVal:    "/env/data",
			want:      "/flag/data",
		},
		{
			name:      "config wins over env",
			configVal: "/config/data",
			envVal:    "/env/data",
			want:      "/config/data",
		},
		{
			name:   "env wins when flag and config empty",
			envVal: "/env/data",
			want:   "/env/data",
		},
		{
			name: "CWD default when all empty",
			want: filepath.Join(cwd, DefaultDataDirName),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvDataDir, tt.envVal)
			got, err := ResolveDataDir(tt.flag, tt.configVal)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveDataDir_AbsolutePath(t *testing.T) {
	t.Setenv(EnvDataDir, "")
	got, err := ResolveDataDir("", "relative/config")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got), "expected absolute path, got %s", got)
}
