package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kevin07696/txrunner/internal/domain"
)

// AddQueryCommand registers "txrun query"
func AddQueryCommand(root *cobra.Command, tc *TxrunCommand) {
	cmd := &cobra.Command{
		Use:   "query SQL [ARGS...]",
		Short: "Run one statement in auto-commit mode and print its rows",
		Long: `Run a single statement outside any transaction bracket and print the
result set. Positional arguments after the SQL are bound as $1, $2, ...
and sent as text.`,
		Example: `  txrun query "SELECT id, balance FROM accounts WHERE id = $1" 42`,
		Args:    cobra.MinimumNArgs(1),
		RunE:    tc.runQuery,
	}
	root.AddCommand(cmd)
}

func (tc *TxrunCommand) runQuery(cmd *cobra.Command, args []string) error {
	queryArgs := make([]any, 0, len(args)-1)
	for _, a := range args[1:] {
		queryArgs = append(queryArgs, a)
	}

	ctx := cmd.Context()
	runner, closePool, err := tc.newRunner(ctx)
	if err != nil {
		return err
	}
	defer closePool()

	rows, err := runner.Query(ctx, domain.NewStatement(args[0], queryArgs...))
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	return printRows(cmd.OutOrStdout(), rows.Columns, rows.Values)
}
