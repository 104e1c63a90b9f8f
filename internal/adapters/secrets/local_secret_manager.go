package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/kevin07696/txrunner/internal/adapters/ports"
)

// localSecretManager implements SecretManagerAdapter using a filesystem
// WARNING: This is for development only. Use AWS Secrets Manager or Vault in production.
type localSecretManager struct {
	fs       afero.Fs
	basePath string
	logger   *zap.Logger
}

// NewLocalSecretManager creates a new filesystem secret manager rooted at basePath
func NewLocalSecretManager(fs afero.Fs, basePath string, logger *zap.Logger) ports.SecretManagerAdapter {
	return &localSecretManager{
		fs:       fs,
		basePath: basePath,
		logger:   logger,
	}
}

// GetSecret reads a secret file. The file holds either the plain value or
// a JSON document {"value": "...", "version": "...", "created_at": "..."}.
func (m *localSecretManager) GetSecret(ctx context.Context, secretPath string) (*ports.Secret, error) {
	clean := filepath.Clean("/" + secretPath)
	filePath := filepath.Join(m.basePath, clean)

	m.logger.Debug("Reading secret from filesystem",
		zap.String("path", secretPath),
	)

	data, err := afero.ReadFile(m.fs, filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("secret not found: %s", secretPath)
		}
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}

	var secretData struct {
		Value     string `json:"value"`
		Version   string `json:"version"`
		CreatedAt string `json:"created_at"`
	}
	if err := json.Unmarshal(data, &secretData); err == nil && secretData.Value != "" {
		version := secretData.Version
		if version == "" {
			version = "v1"
		}
		return &ports.Secret{
			Value:     secretData.Value,
			Version:   version,
			CreatedAt: secretData.CreatedAt,
		}, nil
	}

	// Plain text; editors usually leave a trailing newline
	return &ports.Secret{
		Value:   strings.TrimRight(string(data), "\r\n"),
		Version: "v1",
	}, nil
}
