package user

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eecworkbench/eec/cmd/eec/cmdutil"
	"github.com/eecworkbench/eec/internal/cli/output"
	"github.com/eecworkbench/eec/internal/cli/prompt"
	"github.com/eecworkbench/eec/pkg/models"
	"github.com/eecworkbench/eec/pkg/store"
)

var (
	addScopes   string
	addPassword string
)

var addCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create a user",
	Long: `Create a workbench account.

The password is prompted for unless --password is given.

Examples:
  # Editor account, password prompted
  eec user add alice --scopes editor

  # Exporter with an explicit password
  eec user add reports --scopes export --password 'hunter22'`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVar(&addScopes, "scopes", "", "Comma separated scopes (admin, editor, export)")
	addCmd.Flags().StringVar(&addPassword, "password", "", "Password (prompted if omitted)")
	cmdutil.AddOutputFlag(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	username := args[0]

	scopes, err := parseScopes(addScopes)
	if err != nil {
		return err
	}

	password := addPassword
	if password == "" {
		password, err = prompt.NewPassword(models.ValidatePassword)
		if err != nil {
			return err
		}
	} else if err := models.ValidatePassword(password); err != nil {
		return err
	}

	hash, err := models.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	printer, err := cmdutil.GetPrinter(cmd)
	if err != nil {
		return err
	}

	var created *models.User
	err = withUsers(cmd, func(ctx context.Context, users store.UserRepository) error {
		created, err = users.AddUser(ctx, username, hash, scopes)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	if printer.Format() != output.FormatTable {
		return printer.Print(viewOf(created))
	}
	printer.Success(fmt.Sprintf("User %q created (id %s)", created.Username, created.ID))
	return nil
}
