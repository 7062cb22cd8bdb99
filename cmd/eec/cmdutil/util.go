// Package cmdutil holds helpers shared by the eec subcommands.
package cmdutil

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eecworkbench/eec/internal/cli/output"
	"github.com/eecworkbench/eec/internal/logger"
	"github.com/eecworkbench/eec/pkg/config"
	"github.com/eecworkbench/eec/pkg/workspace"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// LoadConfig loads the file named by the inherited --config flag.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	return config.MustLoad(configPath)
}

// OpenWorkspace loads the configuration and opens its storage for a
// one-shot command. Only warnings are logged so that command output stays
// readable.
func OpenWorkspace(cmd *cobra.Command) (*workspace.Workspace, error) {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := InitLogger(cfg); err != nil {
		return nil, err
	}
	if logger.Enabled(logger.LevelInfo) {
		logger.SetLevel("WARN")
	}
	return workspace.Open(cfg.Storage)
}

// CloseWorkspace saves pending changes and reports failures on stderr.
func CloseWorkspace(ctx context.Context, ws *workspace.Workspace) {
	if err := ws.Close(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close storage: %v\n", err)
	}
}

// AddOutputFlag registers -o/--output on cmd.
func AddOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "table", "Output format: table, json or yaml")
}

// GetPrinter builds a printer from the --output flag.
func GetPrinter(cmd *cobra.Command) (*output.Printer, error) {
	value, _ := cmd.Flags().GetString("output")
	format, err := output.ParseFormat(value)
	if err != nil {
		return nil, err
	}
	return output.NewPrinter(cmd.OutOrStdout(), format, isTerminal()), nil
}

func isTerminal() bool {
	info, err := os.Stdout.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// EmptyOr returns fallback when value is empty.
func EmptyOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
