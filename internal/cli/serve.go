package cli

import (
	"fmt"
	"net"
	"strconv"

	"github.com/harun/nava/internal/config"
	"github.com/harun/nava/internal/daemon"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Nava gateway server",
	Long: `Start the Nava gateway server in the foreground.
The agent runtime initializes in the background while the HTTP and websocket
routes are already listening. SIGINT or SIGTERM shuts the server down gracefully.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address host:port (overrides gateway.host and gateway.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	d, cleanup, err := buildDaemon(func(cfg *config.Config) error {
		if serveAddr != "" {
			if err := applyAddr(cfg, serveAddr); err != nil {
				return err
			}
		}
		if pidFile := daemon.PIDFile(cfg.DataDir); isRunning(pidFile) {
			return fmt.Errorf("daemon is already running (PID file: %s)", pidFile)
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer cleanup()

	if err := d.Start(); err != nil {
		_ = d.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Nava listening on %s\n", d.Server().Addr())
	d.Wait()
	return nil
}

func applyAddr(cfg *config.Config, addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid --addr %q: %w", addr, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("invalid --addr %q: bad port", addr)
	}
	cfg.Gateway.Host = host
	cfg.Gateway.Port = p
	return nil
}

func isRunning(pidFile string) bool {
	pid, err := daemon.ReadPID(pidFile)
	if err != nil {
		return false
	}
	return daemon.ProcessAlive(pid)
}
