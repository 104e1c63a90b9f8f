package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kevin07696/txrunner/internal/statementfile"
)

// AddExecCommand registers "txrun exec"
func AddExecCommand(root *cobra.Command, tc *TxrunCommand) {
	cmd := &cobra.Command{
		Use:   "exec -f FILE",
		Short: "Run every statement in a YAML file inside one transaction",
		Long: `Run the statements listed in a YAML statement file in order inside a
single transaction. The first failing statement aborts the rest and the
transaction is rolled back.`,
		Example: `  txrun exec -f transfer.yaml
  txrun exec -f report.yaml --read-only --isolation serializable`,
		Args: cobra.NoArgs,
		RunE: tc.runExec,
	}

	cmd.Flags().StringP("file", "f", "", "YAML statement file (required)")
	cmd.Flags().Bool("read-only", false, "Start the transaction READ ONLY")
	cmd.Flags().String("isolation", "", "Isolation level, overrides the file (e.g. serializable)")
	_ = cmd.MarkFlagRequired("file")

	root.AddCommand(cmd)
}

func (tc *TxrunCommand) runExec(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	readOnly, _ := cmd.Flags().GetBool("read-only")
	isolation, _ := cmd.Flags().GetString("isolation")

	file, err := statementfile.Load(tc.fs, path)
	if err != nil {
		return err
	}
	txOpts, err := file.TxOptions(isolation, readOnly)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	runner, closePool, err := tc.newRunner(ctx)
	if err != nil {
		return err
	}
	defer closePool()

	out, err := runner.RunTx(ctx, txOpts, file.DomainStatements())
	if err != nil {
		if out != nil {
			printOutcome(cmd.ErrOrStderr(), out.ID.String(), out.State.String(), out.Executed, out.Duration)
		}
		return fmt.Errorf("transaction failed: %w", err)
	}

	printOutcome(cmd.OutOrStdout(), out.ID.String(), out.State.String(), out.Executed, out.Duration)
	return nil
}
