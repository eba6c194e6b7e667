// Package interfaces defines the shared types and contracts of the BKPS admin client.
//
// It holds no behavior beyond parsing and formatting, so every other package
// can depend on it without creating cycles.
//
// # Domain Types
//
//   - ImportMode: PLAINTEXT or ENCRYPTED transfer of configuration secrets
//   - PufType: IID, IIDUSER or EFUSE
//   - UserRole: roles grantable to application users
//
// # Error Types
//
// Every failure a command can hit falls into one of four classes:
//
//   - ValidationError: malformed input, found before any network call
//   - PrecursorError: a missing file or an upstream key that could not be fetched
//   - TransportError: TLS, network or HTTP-layer failure
//   - ServiceError: a well-formed non-2xx response from the service
//
// Sentinel causes (ErrFileNotFound, ErrEncryptedPrivateKey,
// ErrImportKeyUnavailable) are wrapped inside these and matched with errors.Is.
//
// # Storage Interfaces
//
//   - ArtifactStore: reads or writes one command input or output
//   - ArtifactStoreFactory: resolves an ArtifactLocation into a store
package interfaces
