package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eecworkbench/eec/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with a generated JWT secret",
	Long: `Write a commented configuration file with defaults and a random
auth.jwt_secret.

Examples:
  # Default location ($XDG_CONFIG_HOME/eec/config.yaml)
  eec config init

  # Custom location, replacing an existing file
  eec config init --config /etc/eec/config.yaml --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	if err := config.InitConfigToPath(path, initForce); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Share auth.jwt_secret with every process verifying tokens locally.")
	return nil
}
