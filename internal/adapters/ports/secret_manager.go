package ports

import (
	"context"
)

// Secret represents a retrieved secret with metadata
type Secret struct {
	Value     string // The secret value (e.g., database password)
	Version   string // Secret version identifier
	CreatedAt string // When this version was created
}

// SecretManagerAdapter defines the port for retrieving secrets from a secret management service
// Supports multiple backends: local files, AWS Secrets Manager, HashiCorp Vault
type SecretManagerAdapter interface {
	// GetSecret retrieves a secret by its path/name
	// Path format depends on implementation:
	//   - Local: relative file path under the secrets directory
	//   - AWS: secret name or ARN, e.g. "txrunner/db-password"
	//   - Vault: path under the KV mount, e.g. "txrunner/db-password"
	GetSecret(ctx context.Context, path string) (*Secret, error)
}
