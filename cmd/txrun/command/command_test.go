package command

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/txrunner/internal/config"
	"github.com/kevin07696/txrunner/internal/domain"
	"github.com/kevin07696/txrunner/internal/domain/ports"
	"github.com/kevin07696/txrunner/internal/handlers/statements"
	"github.com/kevin07696/txrunner/internal/services/transaction"
	"github.com/kevin07696/txrunner/internal/testutil/fakes"
	"github.com/kevin07696/txrunner/pkg/resilience"
	"github.com/kevin07696/txrunner/pkg/shutdown"
)

const transferFile = `statements:
  - sql: UPDATE accounts SET balance = balance - $1 WHERE id = $2
    args: [10, 1]
  - sql: UPDATE accounts SET balance = balance + $1 WHERE id = $2
    args: [10, 2]
`

type harness struct {
	fs     afero.Fs
	pool   *fakes.Pool
	opened *config.DatabaseConfig
	closed int
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{fs: afero.NewMemMapFs(), pool: fakes.NewPool(2)}
	require.NoError(t, afero.WriteFile(h.fs, "/transfer.yaml", []byte(transferFile), 0o644))
	return h
}

func (h *harness) open(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (ports.Pool, func(), error) {
	h.opened = cfg
	return h.pool, func() { h.closed++ }, nil
}

func (h *harness) run(args ...string) error {
	root := GetRootCommand(h.fs, h.open)
	root.SetOut(&h.stdout)
	root.SetErr(&h.stderr)
	root.SetArgs(args)
	return root.Execute()
}

func TestExec_Commits(t *testing.T) {
	h := newHarness(t)

	err := h.run("exec", "-f", "/transfer.yaml", "--database-url", "postgres://localhost/app")
	require.NoError(t, err)

	assert.Contains(t, h.stdout.String(), "committed: 2 statement(s)")
	assert.Equal(t, []string{
		fakes.CallAcquire,
		"exec:BEGIN",
		"exec:UPDATE accounts SET balance = balance - $1 WHERE id = $2",
		"exec:UPDATE accounts SET balance = balance + $1 WHERE id = $2",
		"exec:COMMIT",
		fakes.CallRelease,
	}, h.pool.Calls())
	assert.Equal(t, 1, h.closed)

	require.NotNil(t, h.opened)
	assert.Equal(t, "postgres://localhost/app", h.opened.URL)
	assert.Equal(t, config.DriverPgx, h.opened.Driver)
	assert.Equal(t, int32(4), h.opened.MaxConns)
}

func TestExec_TxOptionFlags(t *testing.T) {
	h := newHarness(t)

	err := h.run("exec", "-f", "/transfer.yaml", "--database-url", "postgres://localhost/app",
		"--read-only", "--isolation", "repeatable_read")
	require.NoError(t, err)

	assert.Equal(t, 1, h.pool.Count("exec:BEGIN ISOLATION LEVEL REPEATABLE READ READ ONLY"))
}

func TestExec_StatementFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	h.pool.FailOn("UPDATE accounts SET balance = balance + $1 WHERE id = $2", errors.New("account 2 is locked"))

	err := h.run("exec", "-f", "/transfer.yaml", "--database-url", "postgres://localhost/app")
	require.Error(t, err)

	assert.Contains(t, err.Error(), "transaction failed")
	assert.Contains(t, err.Error(), "account 2 is locked")
	assert.Contains(t, h.stderr.String(), "rolled_back: 1 statement(s)")
	assert.Equal(t, 1, h.pool.Count("exec:ROLLBACK"))
	assert.Equal(t, 1, h.pool.Released())
	assert.Equal(t, 1, h.closed)
}

func TestExec_ConfigFromEnvironment(t *testing.T) {
	t.Setenv("TXRUN_DATABASE_URL", "postgres://env/app")
	t.Setenv("TXRUN_DRIVER", "pq")
	t.Setenv("TXRUN_NO_WAIT", "true")
	h := newHarness(t)

	require.NoError(t, h.run("exec", "-f", "/transfer.yaml"))

	require.NotNil(t, h.opened)
	assert.Equal(t, "postgres://env/app", h.opened.URL)
	assert.Equal(t, config.DriverPQ, h.opened.Driver)
	assert.True(t, h.opened.NoWait)
}

func TestExec_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "missing database url",
			args:    []string{"exec", "-f", "/transfer.yaml"},
			wantErr: "--database-url or TXRUN_DATABASE_URL is required",
		},
		{
			name:    "missing file flag",
			args:    []string{"exec", "--database-url", "postgres://x"},
			wantErr: `required flag(s) "file" not set`,
		},
		{
			name:    "file not found",
			args:    []string{"exec", "-f", "/missing.yaml", "--database-url", "postgres://x"},
			wantErr: "failed to read statement file",
		},
		{
			name:    "unknown driver",
			args:    []string{"exec", "-f", "/transfer.yaml", "--database-url", "postgres://x", "--driver", "mysql"},
			wantErr: `unsupported driver "mysql"`,
		},
		{
			name:    "bad isolation",
			args:    []string{"exec", "-f", "/transfer.yaml", "--database-url", "postgres://x", "--isolation", "loose"},
			wantErr: "unknown isolation level",
		},
		{
			name:    "bad log level",
			args:    []string{"exec", "-f", "/transfer.yaml", "--log-level", "shouty"},
			wantErr: "invalid --log-level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			err := h.run(tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, h.pool.Calls())
		})
	}
}

func TestQuery_PrintsRows(t *testing.T) {
	h := newHarness(t)
	h.pool.WithRows("SELECT id, name FROM accounts WHERE id > $1", &domain.Rows{
		Columns: []string{"id", "name"},
		Values: [][]any{
			{int64(1), "alice"},
			{int64(2), nil},
		},
	})

	err := h.run("query", "SELECT id, name FROM accounts WHERE id > $1", "0", "--database-url", "postgres://x")
	require.NoError(t, err)

	out := h.stdout.String()
	assert.Contains(t, out, "id  name")
	assert.Contains(t, out, "1   alice")
	assert.Contains(t, out, "2   NULL")
	assert.Contains(t, out, "(2 row(s))")
	assert.Equal(t, []string{"pool:query:SELECT id, name FROM accounts WHERE id > $1"}, h.pool.Calls())
}

func TestQuery_RequiresSQL(t *testing.T) {
	h := newHarness(t)

	err := h.run("query", "--database-url", "postgres://x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestRemote(t *testing.T) {
	serverPool := fakes.NewPool(1)
	logger := zap.NewNop()
	handler := statements.NewHandler(
		transaction.NewRunner(serverPool, logger),
		shutdown.NewInFlightTracker("http", logger),
		resilience.TestTimeoutConfig(),
		logger,
	)
	mux := http.NewServeMux()
	handler.Register(mux, nil)
	server := httptest.NewServer(mux)
	defer server.Close()

	t.Run("committed", func(t *testing.T) {
		h := newHarness(t)

		err := h.run("remote", "--url", server.URL, "-f", "/transfer.yaml", "--isolation", "serializable")
		require.NoError(t, err)

		assert.Contains(t, h.stdout.String(), "committed: 2 statement(s)")
		assert.Nil(t, h.opened, "remote must not open a local pool")
		assert.Equal(t, 1, serverPool.Count("exec:BEGIN ISOLATION LEVEL SERIALIZABLE"))
	})

	t.Run("statement failure", func(t *testing.T) {
		serverPool.FailOn("UPDATE accounts SET balance = balance - $1 WHERE id = $2", errors.New("insufficient funds"))
		h := newHarness(t)

		err := h.run("remote", "--url", server.URL, "-f", "/transfer.yaml")
		require.Error(t, err)

		var apiErr *statements.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
		assert.Contains(t, err.Error(), "insufficient funds")
	})
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "NULL", formatValue(nil))
	assert.Equal(t, "raw", formatValue([]byte("raw")))
	assert.Equal(t, "3.5", formatValue(3.5))
	assert.Equal(t, "true", formatValue(true))
}
