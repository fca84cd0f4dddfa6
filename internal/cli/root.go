package cli

import (
	"fmt"

	"github.com/harun/nava/internal/config"
	"github.com/harun/nava/internal/daemon"
	"github.com/harun/nava/internal/logger"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nava",
	Short: "Nava - tool-using agent gateway",
	Long: `Nava runs a tool-using agent behind an HTTP and websocket gateway.
Prompts are classified by intent, executed by a reasoning loop with local and
remote tools, and fall back to a direct completion when the agent cannot
authenticate.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.nava/nava.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// loadConfig loads the configuration named by --config. An explicit
// --log-level wins over the file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if rootCmd.PersistentFlags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
		Redact:  cfg.Logging.Redaction,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}

// newDaemon is replaced in tests.
var newDaemon = daemon.New

// buildDaemon loads config, logging and a daemon. The returned cleanup
// closes the logger.
func buildDaemon(prepare func(cfg *config.Config) error) (*daemon.Daemon, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if prepare != nil {
		if err := prepare(cfg); err != nil {
			return nil, nil, err
		}
	}

	log, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	d, err := newDaemon(cfg, log)
	if err != nil {
		_ = log.Close()
		return nil, nil, fmt.Errorf("failed to create daemon: %w", err)
	}
	return d, func() { _ = log.Close() }, nil
}
