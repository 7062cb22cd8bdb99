package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eecworkbench/eec/cmd/eec/cmdutil"
	"github.com/eecworkbench/eec/pkg/store"
)

var scopesCmd = &cobra.Command{
	Use:   "scopes <username> <scopes>",
	Short: "Replace a user's scopes",
	Long: `Replace the scopes of an account with a comma separated list. Pass an
empty string to remove every scope.

Examples:
  eec user scopes alice editor,export
  eec user scopes alice ""`,
	Args: cobra.ExactArgs(2),
	RunE: runScopes,
}

func runScopes(cmd *cobra.Command, args []string) error {
	username := args[0]
	scopes, err := parseScopes(args[1])
	if err != nil {
		return err
	}

	err = withUsers(cmd, func(ctx context.Context, users store.UserRepository) error {
		u, err := users.GetUserByUsername(ctx, username)
		if err != nil {
			return err
		}
		_, err = users.ChangeScopes(ctx, u.ID, scopes)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to change scopes: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Scopes for %q set to %s\n", username,
		cmdutil.EmptyOr(strings.Join(scopes, ","), "(none)"))
	return nil
}
