package cli

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		out, _, err := execute(t, "", "stop", "--help")
		require.NoError(t, err)

		assert.Contains(t, out, "Stop the Nava gateway server")
		assert.Contains(t, out, "timeout")
	})

	t.Run("not running", func(t *testing.T) {
		_, _, err := execute(t, "", "--config", writeTestConfig(t, nil), "stop")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not running")
	})
}

func TestStopDaemon(t *testing.T) {
	t.Run("stale pid file is removed", func(t *testing.T) {
		pidFile := filepath.Join(t.TempDir(), "nava.pid")
		require.NoError(t, os.WriteFile(pidFile, []byte("999999999"), 0644))

		err := stopDaemon(GetRootCmd(), pidFile, time.Second)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stale PID")
		_, statErr := os.Stat(pidFile)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("terminates process", func(t *testing.T) {
		sleeper := exec.Command("sleep", "30")
		if err := sleeper.Start(); err != nil {
			t.Skipf("sleep unavailable: %v", err)
		}
		// Reap the child so it does not linger as a zombie.
		go func() { _ = sleeper.Wait() }()

		pidFile := filepath.Join(t.TempDir(), "nava.pid")
		require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(sleeper.Process.Pid)), 0644))

		require.NoError(t, stopDaemon(GetRootCmd(), pidFile, 5*time.Second))
		_, statErr := os.Stat(pidFile)
		assert.True(t, os.IsNotExist(statErr))
	})
}
