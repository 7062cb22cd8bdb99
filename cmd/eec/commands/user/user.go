// Package user implements the eec user subcommands. They edit the user
// store directly under the same lock the user service takes, so they work
// while the services run.
package user

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eecworkbench/eec/cmd/eec/cmdutil"
	"github.com/eecworkbench/eec/pkg/models"
	"github.com/eecworkbench/eec/pkg/store"
)

// Cmd is the parent command for user management.
var Cmd = &cobra.Command{
	Use:   "user",
	Short: "Manage workbench accounts",
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(addCmd)
	Cmd.AddCommand(passwdCmd)
	Cmd.AddCommand(scopesCmd)
	Cmd.AddCommand(deleteCmd)
}

// userView omits the password hash from command output.
type userView struct {
	ID       string   `json:"user_id" yaml:"user_id"`
	Username string   `json:"username" yaml:"username"`
	Scopes   []string `json:"scopes" yaml:"scopes"`
}

func viewOf(u *models.User) userView {
	return userView{ID: u.ID, Username: u.Username, Scopes: append([]string{}, u.Scopes...)}
}

// UserList is a list of users for table rendering.
type UserList []userView

// Headers implements TableRenderer.
func (ul UserList) Headers() []string {
	return []string{"USERNAME", "ID", "SCOPES"}
}

// Rows implements TableRenderer.
func (ul UserList) Rows() [][]string {
	rows := make([][]string, 0, len(ul))
	for _, u := range ul {
		rows = append(rows, []string{u.Username, u.ID, cmdutil.EmptyOr(strings.Join(u.Scopes, ","), "-")})
	}
	return rows
}

// withUsers opens the workspace and runs fn under the user guard.
func withUsers(cmd *cobra.Command, fn func(ctx context.Context, users store.UserRepository) error) error {
	ws, err := cmdutil.OpenWorkspace(cmd)
	if err != nil {
		return err
	}
	ctx := context.Background()
	defer cmdutil.CloseWorkspace(ctx, ws)

	return ws.UserGuard().Do(ctx, func(ctx context.Context) error {
		return fn(ctx, ws.Users)
	})
}

// parseScopes splits a comma separated scope list and rejects unknown
// scopes.
func parseScopes(raw string) (models.Scopes, error) {
	var scopes models.Scopes
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes.Normalize()
}
