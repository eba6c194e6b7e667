// Package storage resolves operator-supplied input and output locations into
// artifact stores.
//
// Commands that read a document (a configuration JSON, a sealing key backup)
// or save a service response accept a location instead of a bare path:
//
//	path/to/file.json                         local file
//	file:///var/lib/bkps/backup.json          local file
//	s3://bucket/backups/sealing.json          S3 object (?region=, ?endpoint=)
//	vault://secret/bkps/sealing#backup        field of a Vault KV v2 secret
//
// S3 credentials come from the URI user info or the default AWS credential
// chain. Vault address and token come from the factory options or the
// VAULT_ADDR and VAULT_TOKEN environment variables.
//
// All stores implement interfaces.ArtifactStore. Fetch returns
// interfaces.ErrContentNotFound for a missing artifact and
// interfaces.ErrBackendUnavailable when the backend cannot be reached.
// LocationURI never includes credentials.
//
// Usage:
//
//	factory := storage.NewArtifactStoreFactory(logger, storage.VaultOpts{})
//	store, err := factory.ArtifactFor(interfaces.ArtifactLocation(output))
//	if err != nil {
//	    return err
//	}
//	if err := store.Store(ctx, data); err != nil {
//	    return err
//	}
package storage
