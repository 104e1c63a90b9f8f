package command

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kevin07696/txrunner/internal/handlers/statements"
	"github.com/kevin07696/txrunner/internal/statementfile"
	pkghttp "github.com/kevin07696/txrunner/pkg/http"
)

// AddRemoteCommand registers "txrun remote"
func AddRemoteCommand(root *cobra.Command, tc *TxrunCommand) {
	cmd := &cobra.Command{
		Use:     "remote -f FILE",
		Short:   "Send a YAML statement file to a txrunner server",
		Example: `  txrun remote --url http://localhost:3000 -f transfer.yaml`,
		Args:    cobra.NoArgs,
		RunE:    tc.runRemote,
	}

	cmd.Flags().StringP("file", "f", "", "YAML statement file (required)")
	cmd.Flags().String("url", "http://localhost:3000", "Base URL of the txrunner server")
	cmd.Flags().Bool("read-only", false, "Start the transaction READ ONLY")
	cmd.Flags().String("isolation", "", "Isolation level, overrides the file")
	cmd.Flags().Duration("timeout", 60*time.Second, "Overall request timeout")
	_ = cmd.MarkFlagRequired("file")

	root.AddCommand(cmd)
}

func (tc *TxrunCommand) runRemote(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	baseURL, _ := cmd.Flags().GetString("url")
	readOnly, _ := cmd.Flags().GetBool("read-only")
	isolation, _ := cmd.Flags().GetString("isolation")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	file, err := statementfile.Load(tc.fs, path)
	if err != nil {
		return err
	}

	req := &statements.TransactionRequest{
		ReadOnly:       file.ReadOnly || readOnly,
		IsolationLevel: file.IsolationLevel,
	}
	if isolation != "" {
		req.IsolationLevel = isolation
	}
	for _, e := range file.Statements {
		req.Statements = append(req.Statements, statements.StatementRequest{SQL: e.SQL, Args: e.Args})
	}

	client := statements.NewClient(baseURL, pkghttp.NewHTTPClient(pkghttp.APIClientConfig(), timeout))

	tc.logger.Debug("Sending transaction to server",
		zap.String("url", baseURL),
		zap.Int("statements", len(req.Statements)),
	)

	resp, err := client.RunTransaction(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("remote transaction failed: %w", err)
	}

	printOutcome(cmd.OutOrStdout(), resp.ID, resp.State, resp.Executed, time.Duration(resp.DurationMS)*time.Millisecond)
	return nil
}
