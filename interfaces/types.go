package interfaces

import (
	"fmt"
	"strings"
)

// ImportMode selects how confidential key material travels to the service.
type ImportMode string

const (
	// ImportModePlaintext sends key material as-is inside the TLS session.
	ImportModePlaintext ImportMode = "PLAINTEXT"
	// ImportModeEncrypted wraps key material for the service import key.
	ImportModeEncrypted ImportMode = "ENCRYPTED"
)

// ImportModes lists the accepted import modes in display order.
var ImportModes = []ImportMode{ImportModePlaintext, ImportModeEncrypted}

// ParseImportMode normalizes s (case-insensitive) into an ImportMode.
func ParseImportMode(s string) (ImportMode, error) {
	mode := ImportMode(strings.ToUpper(strings.TrimSpace(s)))
	for _, m := range ImportModes {
		if m == mode {
			return m, nil
		}
	}
	return "", fmt.Errorf("unsupported import mode %q, use one of %v", s, ImportModes)
}

// PufType is the physically unclonable function a configuration derives keys from.
type PufType string

const (
	PufTypeIID     PufType = "IID"
	PufTypeIIDUser PufType = "IIDUSER"
	PufTypeEfuse   PufType = "EFUSE"
)

// PufTypes lists the supported PUF types in display order.
var PufTypes = []PufType{PufTypeIID, PufTypeIIDUser, PufTypeEfuse}

// ParsePufType normalizes s (case-insensitive) into a PufType.
func ParsePufType(s string) (PufType, error) {
	puf := PufType(strings.ToUpper(strings.TrimSpace(s)))
	for _, p := range PufTypes {
		if p == puf {
			return p, nil
		}
	}
	return "", fmt.Errorf("unsupported PUF type %q, use one of %v", s, PufTypes)
}

// UserRole is a role the service can grant to an application user.
type UserRole string

const (
	RoleSuperAdmin UserRole = "ROLE_SUPER_ADMIN"
	RoleAdmin      UserRole = "ROLE_ADMIN"
	RoleProgrammer UserRole = "ROLE_PROGRAMMER"
	RoleViewer     UserRole = "ROLE_VIEWER"
)

// UserRoles lists every role the service knows about.
var UserRoles = []UserRole{RoleSuperAdmin, RoleAdmin, RoleProgrammer, RoleViewer}

// ParseUserRole validates s against UserRoles. Matching is exact.
func ParseUserRole(s string) (UserRole, error) {
	for _, r := range UserRoles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q, use one of %v", s, UserRoles)
}
