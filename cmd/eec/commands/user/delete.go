package user

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eecworkbench/eec/internal/cli/prompt"
	"github.com/eecworkbench/eec/pkg/store"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete <username>",
	Short: "Delete a user",
	Long: `Delete an account. Tokens already issued to it are rejected by the
auth service's verify endpoint from then on.

Examples:
  # Delete with confirmation
  eec user delete alice

  # Delete without confirmation
  eec user delete alice --force`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation")
}

func runDelete(cmd *cobra.Command, args []string) error {
	username := args[0]

	confirmed, err := prompt.ConfirmWithForce(fmt.Sprintf("Delete user %q", username), deleteForce)
	if err != nil {
		if prompt.IsAborted(err) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
		return err
	}
	if !confirmed {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
		return nil
	}

	err = withUsers(cmd, func(ctx context.Context, users store.UserRepository) error {
		u, err := users.GetUserByUsername(ctx, username)
		if err != nil {
			return err
		}
		return users.DeleteUser(ctx, u.ID)
	})
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "User %q deleted\n", username)
	return nil
}
