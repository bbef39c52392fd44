// Command xwatch collects posts matching a keyword query and, with the
// operator's confirmation, replies to one of them per cycle.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/xwatch/internal/app"
	"github.com/ibeckermayer/xwatch/internal/config"
	"github.com/ibeckermayer/xwatch/internal/logging"
)

var (
	configPath string
	cacheDir   string
	logLevel   string
	logPretty  bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:           "xwatch",
	Short:         "Keyword monitoring and paced replies for X",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: user config dir)")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "Directory for sessions, archive and screenshots (default: user cache dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level, overrides XWATCH_LOG_LEVEL")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "pretty", false, "Human-readable logs")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(botTestCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// loadConfig reads the config file and environment
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFrom(configPath)
	}
	return config.Load()
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level := cfg.Telemetry.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	return logging.NewWithWriter(os.Stderr, level, logPretty || cfg.Telemetry.LogPretty)
}

func paths() (app.Paths, error) {
	if cacheDir != "" {
		return app.PathsIn(cacheDir), nil
	}
	return app.DefaultPaths()
}

// openApp loads and optionally validates configuration and builds the App
func openApp(validate bool) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	p, err := paths()
	if err != nil {
		return nil, err
	}
	return app.New(cfg, p, newLogger(cfg))
}
