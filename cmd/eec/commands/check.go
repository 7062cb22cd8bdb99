package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/eecworkbench/eec/cmd/eec/cmdutil"
	"github.com/eecworkbench/eec/internal/cli/output"
	"github.com/eecworkbench/eec/pkg/store"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Audit entity and cluster consistency",
	Long: `Check that every clustered entity is listed by its cluster, that every
cluster member points back at the cluster, and that no two entities share
a (source, source id) pair.

The audit takes the same locks as the services, so it is safe to run next
to a live deployment. The command exits with status 2 when violations are
found.

Examples:
  eec check
  eec check -o json`,
	RunE: runCheck,
}

func init() {
	cmdutil.AddOutputFlag(checkCmd)
}

// violationList renders violations as a table.
type violationList []store.Violation

func (vl violationList) Headers() []string {
	return []string{"RESOURCE", "ID", "PROBLEM"}
}

func (vl violationList) Rows() [][]string {
	rows := make([][]string, 0, len(vl))
	for _, v := range vl {
		rows = append(rows, []string{v.Resource, strconv.Quote(v.ID), v.Problem})
	}
	return rows
}

func runCheck(cmd *cobra.Command, args []string) error {
	printer, err := cmdutil.GetPrinter(cmd)
	if err != nil {
		return err
	}
	ws, err := cmdutil.OpenWorkspace(cmd)
	if err != nil {
		return err
	}
	ctx := context.Background()
	defer cmdutil.CloseWorkspace(ctx, ws)

	violations, err := ws.Check(ctx)
	if err != nil {
		return fmt.Errorf("consistency check failed: %w", err)
	}

	if len(violations) == 0 {
		if printer.Format() == output.FormatTable {
			printer.Success("No violations found.")
			return nil
		}
		return printer.Print(violationList{})
	}

	if err := printer.Print(violationList(violations)); err != nil {
		return err
	}
	return exitError{code: 2}
}
