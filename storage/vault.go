package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/bkps-admin/interfaces"
)

// DefaultVaultField is the secret field used when a location names none.
const DefaultVaultField = "content"

// VaultArtifact is an artifact stored in one field of a Vault KV v2 secret.
type VaultArtifact struct {
	client      *api.Client
	mountPath   string
	secretPath  string
	field       string
	log         *slog.Logger
	locationURI string
}

// NewVaultArtifact creates a Vault backed artifact. Address and token default
// to the VAULT_ADDR and VAULT_TOKEN environment variables.
func NewVaultArtifact(opts VaultOpts, mountPath, secretPath, field string, log *slog.Logger) (*VaultArtifact, error) {
	config := api.DefaultConfig()
	if config.Error != nil {
		return nil, fmt.Errorf("failed to read Vault configuration: %w", config.Error)
	}
	if opts.Address != "" {
		config.Address = opts.Address
	}
	config.Timeout = 30 * time.Second

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if opts.Token != "" {
		client.SetToken(opts.Token)
	}

	mountPath = strings.Trim(mountPath, "/")
	secretPath = strings.Trim(secretPath, "/")

	return &VaultArtifact{
		client:      client,
		mountPath:   mountPath,
		secretPath:  secretPath,
		field:       field,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s#%s", mountPath, secretPath, field),
	}, nil
}

func (a *VaultArtifact) dataPath() string {
	return fmt.Sprintf("%s/data/%s", a.mountPath, a.secretPath)
}

// Fetch reads the secret field. Returns ErrContentNotFound if the secret or
// the field does not exist.
func (a *VaultArtifact) Fetch(ctx context.Context) ([]byte, error) {
	start := time.Now()
	path := a.dataPath()

	secret, err := a.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		a.log.Error("Failed to read from Vault",
			slog.String("path", path),
			"err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, interfaces.ErrContentNotFound
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid data format in Vault response")
	}

	content, ok := data[a.field]
	if !ok {
		return nil, interfaces.ErrContentNotFound
	}
	contentStr, ok := content.(string)
	if !ok {
		return nil, fmt.Errorf("field %q of %s is not a string", a.field, path)
	}

	a.log.Debug("Fetched artifact from Vault",
		slog.String("path", path),
		slog.Duration("duration", time.Since(start)))

	return []byte(contentStr), nil
}

// Store writes data into the secret field, creating a new secret version.
// Other fields of the secret are not preserved.
func (a *VaultArtifact) Store(ctx context.Context, data []byte) error {
	path := a.dataPath()

	_, err := a.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"data": map[string]interface{}{
			a.field: string(data),
		},
	})
	if err != nil {
		a.log.Error("Failed to write to Vault",
			slog.String("path", path),
			"err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	a.log.Debug("Stored artifact in Vault", slog.String("path", path))
	return nil
}

// LocationURI returns the vault://mount/path#field location.
func (a *VaultArtifact) LocationURI() string {
	return a.locationURI
}
