package user

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eecworkbench/eec/cmd/eec/cmdutil"
	"github.com/eecworkbench/eec/pkg/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Long: `List all workbench accounts.

Examples:
  # List as table
  eec user list

  # List as JSON
  eec user list -o json`,
	RunE: runList,
}

func init() {
	cmdutil.AddOutputFlag(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	printer, err := cmdutil.GetPrinter(cmd)
	if err != nil {
		return err
	}

	var list UserList
	err = withUsers(cmd, func(ctx context.Context, users store.UserRepository) error {
		all, err := users.ListUsers(ctx)
		if err != nil {
			return fmt.Errorf("failed to list users: %w", err)
		}
		for _, u := range all {
			list = append(list, viewOf(u))
		}
		return nil
	})
	if err != nil {
		return err
	}

	return printer.PrintList(list, len(list) == 0, "No users found.")
}
