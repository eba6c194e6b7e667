package interfaces

import (
	"context"
	"errors"
)

var (
	// ErrContentNotFound is returned when the requested artifact does not exist.
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable is returned when a storage backend is not accessible.
	// This could be due to network issues, authentication failures, or service outages.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when an artifact location is malformed or unsupported.
	// Locations are plain paths or URIs of the form [scheme]://[auth@]host[/path][?params][#field]
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// ArtifactLocation is an operator-supplied place to read an input from or
// write an output to: a plain file path or a file://, s3:// or vault:// URI.
type ArtifactLocation string

// ArtifactStore reads and writes a single artifact at a fixed location.
type ArtifactStore interface {
	// Fetch reads the artifact. Returns ErrContentNotFound if it does not exist.
	Fetch(ctx context.Context) ([]byte, error)

	// Store writes data to the artifact location, replacing previous content.
	Store(ctx context.Context, data []byte) error

	// LocationURI returns the location with credentials redacted.
	LocationURI() string
}

// ArtifactStoreFactory resolves locations into stores.
type ArtifactStoreFactory interface {
	ArtifactFor(location ArtifactLocation) (ArtifactStore, error)
}
