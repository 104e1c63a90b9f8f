package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kevin07696/txrunner/internal/adapters/dbpool"
	"github.com/kevin07696/txrunner/internal/config"
	"github.com/kevin07696/txrunner/internal/domain/ports"
	"github.com/kevin07696/txrunner/internal/services/transaction"
)

const envPrefix = "TXRUN"

// Flag and viper keys
const (
	keyDatabaseURL    = "database-url"
	keyDriver         = "driver"
	keyAcquireTimeout = "acquire-timeout"
	keyNoWait         = "no-wait"
	keyMaxConns       = "max-conns"
	keyLogLevel       = "log-level"
)

// PoolOpener opens the pool a command runs against. The returned func
// closes it.
type PoolOpener func(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (ports.Pool, func(), error)

// TxrunCommand holds state shared by txrun subcommands
type TxrunCommand struct {
	v        *viper.Viper
	fs       afero.Fs
	openPool PoolOpener
	logger   *zap.Logger
}

// GetRootCommand creates the txrun root command with all subcommands
func GetRootCommand(fs afero.Fs, openPool PoolOpener) *cobra.Command {
	tc := &TxrunCommand{
		v:        viper.New(),
		fs:       fs,
		openPool: openPool,
		logger:   zap.NewNop(),
	}

	root := &cobra.Command{
		Use:   "txrun",
		Short: "Run SQL statements inside a single transaction",
		Long: `txrun executes SQL statements against PostgreSQL with a strict
acquire, BEGIN, execute, COMMIT or ROLLBACK, release lifecycle.

Every flag can also be set through the environment with the TXRUN_ prefix,
for example TXRUN_DATABASE_URL or TXRUN_NO_WAIT.`,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Flag errors still print usage; application errors do not
			cmd.SilenceUsage = true
			return tc.init(cmd.Flags())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = tc.logger.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.String(keyDatabaseURL, "", "PostgreSQL connection URL")
	flags.String(keyDriver, config.DriverPgx, "Database driver: pgx or pq")
	flags.Duration(keyAcquireTimeout, 5*time.Second, "Maximum wait for a pooled connection")
	flags.Bool(keyNoWait, false, "Fail immediately when no connection is idle")
	flags.Int32(keyMaxConns, 4, "Maximum connections in the pool")
	flags.String(keyLogLevel, "warn", "Log level: debug, info, warn, error")

	AddExecCommand(root, tc)
	AddQueryCommand(root, tc)
	AddRemoteCommand(root, tc)

	return root
}

func (tc *TxrunCommand) init(flags *pflag.FlagSet) error {
	tc.v.SetEnvPrefix(envPrefix)
	tc.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	tc.v.AutomaticEnv()
	if err := tc.v.BindPFlags(flags); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	logger, err := newLogger(tc.v.GetString(keyLogLevel))
	if err != nil {
		return err
	}
	tc.logger = logger
	return nil
}

// databaseConfig builds the pool configuration from flags and environment
func (tc *TxrunCommand) databaseConfig() (*config.DatabaseConfig, error) {
	cfg := &config.DatabaseConfig{
		Driver:          tc.v.GetString(keyDriver),
		URL:             tc.v.GetString(keyDatabaseURL),
		MaxConns:        tc.v.GetInt32(keyMaxConns),
		AcquireTimeout:  tc.v.GetDuration(keyAcquireTimeout),
		NoWait:          tc.v.GetBool(keyNoWait),
		ConnectAttempts: 1,
	}

	if cfg.URL == "" {
		return nil, fmt.Errorf("--%s or %s_DATABASE_URL is required", keyDatabaseURL, envPrefix)
	}
	if cfg.Driver != config.DriverPgx && cfg.Driver != config.DriverPQ {
		return nil, fmt.Errorf("unsupported driver %q (want %s or %s)", cfg.Driver, config.DriverPgx, config.DriverPQ)
	}
	if cfg.MaxConns <= 0 {
		return nil, fmt.Errorf("--%s must be positive", keyMaxConns)
	}
	return cfg, nil
}

// newRunner opens the pool and builds a runner over it
func (tc *TxrunCommand) newRunner(ctx context.Context) (*transaction.Runner, func(), error) {
	cfg, err := tc.databaseConfig()
	if err != nil {
		return nil, nil, err
	}

	pool, closePool, err := tc.openPool(ctx, cfg, tc.logger)
	if err != nil {
		return nil, nil, err
	}
	return transaction.NewRunner(pool, tc.logger), closePool, nil
}

// OpenDatabasePool opens a real pool for cfg.Driver
func OpenDatabasePool(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (ports.Pool, func(), error) {
	pool, err := dbpool.Connect(ctx, cfg, cfg.ConnectionString(""), logger)
	if err != nil {
		return nil, nil, err
	}
	return pool, func() {
		if err := pool.Close(); err != nil {
			logger.Warn("Failed to close database pool", zap.Error(err))
		}
	}, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", keyLogLevel, err)
	}

	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(lvl)
	zapCfg.DisableStacktrace = true
	return zapCfg.Build()
}
