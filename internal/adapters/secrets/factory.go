// Package secrets resolves credentials from the configured secret backend.
package secrets

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/kevin07696/txrunner/internal/adapters/ports"
	"github.com/kevin07696/txrunner/internal/config"
)

// NewSecretManager builds the adapter for cfg.Backend. The env backend has no
// adapter and returns nil.
func NewSecretManager(ctx context.Context, cfg config.SecretsConfig, logger *zap.Logger) (ports.SecretManagerAdapter, error) {
	switch cfg.Backend {
	case config.SecretsEnv:
		return nil, nil
	case config.SecretsFile:
		return NewLocalSecretManager(afero.NewOsFs(), cfg.Dir, logger), nil
	case config.SecretsAWS:
		awsCfg := DefaultAWSSecretsManagerConfig(cfg.AWSRegion)
		awsCfg.Endpoint = cfg.AWSEndpoint
		return NewAWSSecretsManagerAdapter(ctx, awsCfg, logger)
	case config.SecretsVault:
		vaultCfg := DefaultVaultConfig(cfg.VaultAddress)
		vaultCfg.Token = cfg.VaultToken
		vaultCfg.MountPath = cfg.VaultMountPath
		return NewVaultAdapter(ctx, vaultCfg, logger)
	default:
		return nil, fmt.Errorf("unsupported secrets backend: %s", cfg.Backend)
	}
}

// ResolveDatabasePassword returns the database password: DB_PASSWORD for the
// env backend, otherwise the secret named by cfg.Secrets.PasswordSecret.
func ResolveDatabasePassword(ctx context.Context, cfg *config.Config, manager ports.SecretManagerAdapter, logger *zap.Logger) (string, error) {
	if manager == nil {
		return cfg.Database.Password, nil
	}

	secret, err := manager.GetSecret(ctx, cfg.Secrets.PasswordSecret)
	if err != nil {
		return "", fmt.Errorf("failed to resolve database password: %w", err)
	}

	logger.Info("Database password resolved from secret backend",
		zap.String("backend", cfg.Secrets.Backend),
		zap.String("secret", cfg.Secrets.PasswordSecret),
		zap.String("version", secret.Version),
	)
	return secret.Value, nil
}
