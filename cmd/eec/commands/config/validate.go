package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eecworkbench/eec/pkg/config"
	"github.com/eecworkbench/eec/pkg/workspace"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the eec configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  eec config validate

  # Validate specific config file
  eec config validate --config /etc/eec/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string
	if cfg.Storage.Type == workspace.BackendFile {
		if _, err := os.Stat(cfg.Storage.DataPath); os.IsNotExist(err) {
			warnings = append(warnings, fmt.Sprintf("Data path %s does not exist yet, it will be created", cfg.Storage.DataPath))
		}
		if cfg.Storage.LockTimeout == 0 {
			warnings = append(warnings, "storage.lock_timeout is 0: requests wait for locks until server.request_timeout")
		}
	}
	if cfg.Embedding.Path == "" {
		warnings = append(warnings, "No embedding configured - entities will have no mention vectors")
	} else if _, err := os.Stat(cfg.Embedding.Path); err != nil {
		warnings = append(warnings, fmt.Sprintf("Embedding file not readable: %v", err))
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintf(out, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(out, "  Services:        %v\n", cfg.Server.Enabled())
	_, _ = fmt.Fprintf(out, "  Storage type:    %s\n", cfg.Storage.Type)
	_, _ = fmt.Fprintf(out, "  Verifier mode:   %s\n", cfg.Server.Verifier.Mode)
	_, _ = fmt.Fprintf(out, "  Log level:       %s\n", cfg.Logging.Level)

	return nil
}
