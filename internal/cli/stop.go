package cli

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/harun/nava/internal/daemon"
	"github.com/spf13/cobra"
)

var (
	stopTimeout int
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the Nava gateway server",
	Long: `Stop the Nava gateway server gracefully.
Sends SIGTERM to the server and waits for it to shut down.`,
	Args: cobra.NoArgs,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().IntVar(&stopTimeout, "timeout", 30, "timeout in seconds to wait for the server to stop")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return stopDaemon(cmd, daemon.PIDFile(cfg.DataDir), time.Duration(stopTimeout)*time.Second)
}

// stopDaemon sends SIGTERM and escalates to SIGKILL after timeout.
func stopDaemon(cmd *cobra.Command, pidFile string, timeout time.Duration) error {
	out := cmd.OutOrStdout()

	pid, err := daemon.ReadPID(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("daemon is not running (no PID file at %s)", pidFile)
		}
		return fmt.Errorf("failed to read PID file: %w", err)
	}
	if !daemon.ProcessAlive(pid) {
		_ = os.Remove(pidFile)
		return fmt.Errorf("daemon is not running (stale PID %d removed)", pid)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}
	fmt.Fprintf(out, "Sent SIGTERM to PID %d\n", pid)

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !daemon.ProcessAlive(pid) {
			_ = os.Remove(pidFile)
			fmt.Fprintln(out, "Daemon stopped successfully")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Fprintln(out, "Timeout reached, sending SIGKILL...")
	if err := process.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to send SIGKILL: %w", err)
	}

	_ = os.Remove(pidFile)
	fmt.Fprintln(out, "Daemon killed")
	return nil
}
