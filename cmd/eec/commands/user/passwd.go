package user

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eecworkbench/eec/internal/cli/prompt"
	"github.com/eecworkbench/eec/pkg/models"
	"github.com/eecworkbench/eec/pkg/store"
)

var passwdPassword string

var passwdCmd = &cobra.Command{
	Use:   "passwd <username>",
	Short: "Set a user's password",
	Long: `Replace the password of an account. Tokens already issued stay valid
until they expire.

Examples:
  eec user passwd alice`,
	Args: cobra.ExactArgs(1),
	RunE: runPasswd,
}

func init() {
	passwdCmd.Flags().StringVar(&passwdPassword, "password", "", "New password (prompted if omitted)")
}

func runPasswd(cmd *cobra.Command, args []string) error {
	username := args[0]

	password := passwdPassword
	var err error
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

	err = withUsers(cmd, func(ctx context.Context, users store.UserRepository) error {
		u, err := users.GetUserByUsername(ctx, username)
		if err != nil {
			return err
		}
		_, err = users.ChangePassword(ctx, u.ID, hash)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to change password: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Password for %q updated\n", username)
	return nil
}
