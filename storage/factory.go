package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/ruteri/bkps-admin/interfaces"
)

// VaultOpts configures vault:// locations. Empty values fall back to the
// VAULT_ADDR and VAULT_TOKEN environment variables.
type VaultOpts struct {
	Address string
	Token   string
}

// ArtifactStoreFactory creates artifact stores from operator-supplied locations.
type ArtifactStoreFactory struct {
	log   *slog.Logger
	vault VaultOpts
}

// NewArtifactStoreFactory creates a factory that resolves plain paths and
// file://, s3:// and vault:// URIs.
func NewArtifactStoreFactory(logger *slog.Logger, vault VaultOpts) *ArtifactStoreFactory {
	return &ArtifactStoreFactory{
		log:   logger,
		vault: vault,
	}
}

// ArtifactFor creates a store for location.
//
// Supported forms:
//   - path/to/file or /abs/path - local file
//   - file:///abs/path or file://./relative/path - local file
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/key?region=us-east-1&endpoint=host
//   - vault://mount/path/to/secret#field - Vault KV v2 secret field, "content" by default
func (sf *ArtifactStoreFactory) ArtifactFor(location interfaces.ArtifactLocation) (interfaces.ArtifactStore, error) {
	raw := string(location)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty location", interfaces.ErrInvalidLocationURI)
	}

	if !strings.Contains(raw, "://") {
		return NewFileArtifact(raw, sf.log), nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return sf.createFileArtifact(u)
	case "s3":
		return sf.createS3Artifact(u)
	case "vault":
		return sf.createVaultArtifact(u)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", interfaces.ErrInvalidLocationURI, u.Scheme)
	}
}

// createFileArtifact handles file:///absolute/path and file://./relative/path.
func (sf *ArtifactStoreFactory) createFileArtifact(u *url.URL) (interfaces.ArtifactStore, error) {
	sf.log.Debug("Creating file artifact", slog.String("uri", u.String()))

	path := u.Path
	if u.Host != "" {
		path = u.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI %s", interfaces.ErrInvalidLocationURI, u.String())
	}
	return NewFileArtifact(path, sf.log), nil
}

// createS3Artifact handles s3://[ACCESS_KEY:SECRET_KEY@]bucket/key?region=&endpoint=.
// Without embedded credentials the default AWS credential chain is used.
func (sf *ArtifactStoreFactory) createS3Artifact(u *url.URL) (interfaces.ArtifactStore, error) {
	sf.log.Debug("Creating S3 artifact", slog.String("bucket", u.Host), slog.String("key", u.Path))

	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("%w: expected s3://bucket/key", interfaces.ErrInvalidLocationURI)
	}

	query := u.Query()
	region := query.Get("region")
	if region == "" {
		region = "us-east-1"
	}

	var accessKey, secretKey string
	if u.User != nil {
		accessKey = u.User.Username()
		secretKey, _ = u.User.Password()
	}

	return NewS3Artifact(S3Opts{
		Bucket:    bucket,
		Key:       key,
		Region:    region,
		Endpoint:  query.Get("endpoint"),
		AccessKey: accessKey,
		SecretKey: secretKey,
	}, sf.log)
}

// createVaultArtifact handles vault://mount/path/to/secret#field.
func (sf *ArtifactStoreFactory) createVaultArtifact(u *url.URL) (interfaces.ArtifactStore, error) {
	sf.log.Debug("Creating Vault artifact", slog.String("uri", u.String()))

	mount := u.Host
	secretPath := strings.Trim(u.Path, "/")
	if mount == "" || secretPath == "" {
		return nil, fmt.Errorf("%w: expected vault://mount/path#field", interfaces.ErrInvalidLocationURI)
	}

	field := u.Fragment
	if field == "" {
		field = DefaultVaultField
	}

	return NewVaultArtifact(sf.vault, mount, secretPath, field, sf.log)
}
