package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/ruteri/bkps-admin/interfaces"
	"github.com/ruteri/bkps-admin/validation"
)

// Doer executes a single service request.
type Doer interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// BKPSClient maps every service endpoint to a method. Inputs are validated
// before any request is made. Methods that return data return nil data and
// a nil error when a Recoverable transport already reported a failure.
type BKPSClient struct {
	transport Doer
}

func NewBKPSClient(transport Doer) *BKPSClient {
	return &BKPSClient{transport: transport}
}

func (c *BKPSClient) call(ctx context.Context, req *Request) ([]byte, error) {
	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	return resp.Body, nil
}

func (c *BKPSClient) exec(ctx context.Context, req *Request) error {
	_, err := c.call(ctx, req)
	return err
}

func parseID(field, id string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil || n < 0 {
		return 0, interfaces.NewValidationError(field, "should be a non-negative number, got %q", id)
	}
	return n, nil
}

func requirePath(field, path string) error {
	if path == "" {
		return interfaces.NewValidationError(field, "file path is required")
	}
	return nil
}

// Health checks service liveness. It needs no client certificate.
func (c *BKPSClient) Health(ctx context.Context, detailed bool) error {
	path := "/health"
	if detailed {
		path += "/sla"
	}
	return c.exec(ctx, &Request{Method: http.MethodGet, Path: path, Unauthenticated: true})
}

// FetchImportPublicKey returns the current import key without printing it.
func (c *BKPSClient) FetchImportPublicKey(ctx context.Context) ([]byte, error) {
	return c.call(ctx, &Request{Method: http.MethodGet, Path: "/config/v1/import-key", Silent: true})
}

// GetImportPublicKey prints and returns the current import key.
func (c *BKPSClient) GetImportPublicKey(ctx context.Context) ([]byte, error) {
	return c.call(ctx, &Request{Method: http.MethodGet, Path: "/config/v1/import-key"})
}

func (c *BKPSClient) CreateImportKey(ctx context.Context) error {
	return c.exec(ctx, &Request{Method: http.MethodPost, Path: "/init/v1/import-key"})
}

func (c *BKPSClient) DeleteImportKey(ctx context.Context) error {
	return c.exec(ctx, &Request{Method: http.MethodDelete, Path: "/init/v1/import-key"})
}

func (c *BKPSClient) CreateSealingKey(ctx context.Context) error {
	return c.exec(ctx, &Request{Method: http.MethodPost, Path: "/init/v1/sealing-key"})
}

func (c *BKPSClient) RotateSealingKey(ctx context.Context) error {
	return c.exec(ctx, &Request{Method: http.MethodPost, Path: "/init/v1/sealing-key/rotate"})
}

func (c *BKPSClient) ListSealingKeys(ctx context.Context) error {
	return c.exec(ctx, &Request{Method: http.MethodGet, Path: "/init/v1/sealing-key"})
}

// BackupSealingKey asks the service to export the sealing key encrypted for
// importPubKey, a JSON document read from the operator's input.
func (c *BKPSClient) BackupSealingKey(ctx context.Context, importPubKey []byte) ([]byte, error) {
	return c.call(ctx, &Request{Method: http.MethodPost, Path: "/init/v1/sealing-key/backup", JSON: importPubKey})
}

func (c *BKPSClient) RestoreSealingKey(ctx context.Context, encryptedSealingKey []byte) error {
	return c.exec(ctx, &Request{Method: http.MethodPost, Path: "/init/v1/sealing-key/restore", JSON: encryptedSealingKey})
}

func (c *BKPSClient) CreateSigningKey(ctx context.Context) error {
	return c.exec(ctx, &Request{Method: http.MethodPost, Path: "/init/v1/signing-key"})
}

func (c *BKPSClient) ListSigningKeys(ctx context.Context) error {
	return c.exec(ctx, &Request{Method: http.MethodGet, Path: "/init/v1/signing-key/list"})
}

func (c *BKPSClient) GetSigningKey(ctx context.Context, id string) ([]byte, error) {
	n, err := parseID("id", id)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, &Request{Method: http.MethodGet, Path: fmt.Sprintf("/init/v1/signing-key/%d", n)})
}

// UploadSigningKey uploads the single-root and multi-root certificate chains
// for signing key id.
func (c *BKPSClient) UploadSigningKey(ctx context.Context, id, singleChainPath, multiChainPath string) error {
	n, err := parseID("id", id)
	if err != nil {
		return err
	}
	if err := requirePath("single", singleChainPath); err != nil {
		return err
	}
	if err := requirePath("multi", multiChainPath); err != nil {
		return err
	}
	return c.exec(ctx, &Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/init/v1/signing-key/upload/%d", n),
		Files: []FormFile{
			{Field: "singleRootChain", Path: singleChainPath, FileName: "singleRootChain"},
			{Field: "multiRootChain", Path: multiChainPath, FileName: "multiRootChain"},
		},
	})
}

func (c *BKPSClient) ActivateSigningKey(ctx context.Context, id string) error {
	n, err := parseID("id", id)
	if err != nil {
		return err
	}
	return c.exec(ctx, &Request{Method: http.MethodPost, Path: fmt.Sprintf("/init/v1/signing-key/activate/%d", n)})
}

func (c *BKPSClient) AddRootSigningKey(ctx context.Context, path string) error {
	if err := requirePath("input", path); err != nil {
		return err
	}
	return c.exec(ctx, &Request{
		Method: http.MethodPost,
		Path:   "/init/v1/root-signing-key",
		Files:  []FormFile{{Field: "file", Path: path, FileName: "file"}},
	})
}

func (c *BKPSClient) RotateContextKey(ctx context.Context) error {
	return c.exec(ctx, &Request{Method: http.MethodPost, Path: "/init/v1/context-key/rotate"})
}

// CreateConfiguration submits an assembled configuration body.
func (c *BKPSClient) CreateConfiguration(ctx context.Context, body []byte) error {
	return c.exec(ctx, &Request{Method: http.MethodPost, Path: "/config/v1/configuration", JSON: body})
}

// UpdateConfiguration replaces configuration id with an assembled body.
func (c *BKPSClient) UpdateConfiguration(ctx context.Context, id string, body []byte) error {
	n, err := parseID("id", id)
	if err != nil {
		return err
	}
	return c.exec(ctx, &Request{Method: http.MethodPut, Path: fmt.Sprintf("/config/v1/configuration/%d", n), JSON: body})
}

func (c *BKPSClient) ListConfigurations(ctx context.Context) error {
	return c.exec(ctx, &Request{Method: http.MethodGet, Path: "/config/v1/configuration"})
}

func (c *BKPSClient) GetConfiguration(ctx context.Context, id string) ([]byte, error) {
	n, err := parseID("id", id)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, &Request{Method: http.MethodGet, Path: fmt.Sprintf("/config/v1/configuration/%d", n)})
}

func (c *BKPSClient) DeleteConfiguration(ctx context.Context, id string) error {
	n, err := parseID("id", id)
	if err != nil {
		return err
	}
	return c.exec(ctx, &Request{Method: http.MethodDelete, Path: fmt.Sprintf("/config/v1/configuration/%d", n)})
}

// CreateInitialUser bootstraps the first user with a one-time token. It
// needs no client certificate.
func (c *BKPSClient) CreateInitialUser(ctx context.Context, token, certPath string) ([]byte, error) {
	if strings.TrimSpace(token) == "" {
		return nil, interfaces.NewValidationError("token", "is required")
	}
	if err := requirePath("input", certPath); err != nil {
		return nil, err
	}
	return c.call(ctx, &Request{
		Method:          http.MethodPost,
		Path:            "/user-init/v1/" + url.PathEscape(token),
		Files:           []FormFile{{Field: "file", Path: certPath, FileName: "data.pem"}},
		Unauthenticated: true,
	})
}

func (c *BKPSClient) CreateUser(ctx context.Context, certPath string) ([]byte, error) {
	if err := requirePath("input", certPath); err != nil {
		return nil, err
	}
	return c.call(ctx, &Request{
		Method: http.MethodPost,
		Path:   "/user/v1/manage",
		Files:  []FormFile{{Field: "file", Path: certPath, FileName: "data.pem"}},
	})
}

func (c *BKPSClient) ListUsers(ctx context.Context) error {
	return c.exec(ctx, &Request{Method: http.MethodGet, Path: "/user/v1/manage"})
}

func (c *BKPSClient) SetUserRole(ctx context.Context, id, role string) error {
	return c.changeRole(ctx, id, role, "set")
}

func (c *BKPSClient) UnsetUserRole(ctx context.Context, id, role string) error {
	return c.changeRole(ctx, id, role, "unset")
}

func (c *BKPSClient) changeRole(ctx context.Context, id, role, action string) error {
	n, err := parseID("id", id)
	if err != nil {
		return err
	}
	r, err := interfaces.ParseUserRole(role)
	if err != nil {
		return interfaces.NewValidationError("role", "%v", err)
	}
	body, err := json.Marshal(struct {
		Role interfaces.UserRole `json:"role"`
	}{Role: r})
	if err != nil {
		return err
	}
	return c.exec(ctx, &Request{Method: http.MethodPost, Path: fmt.Sprintf("/user/v1/manage/%d/role/%s", n, action), JSON: body})
}

func (c *BKPSClient) DeleteUser(ctx context.Context, id string) error {
	n, err := parseID("id", id)
	if err != nil {
		return err
	}
	return c.exec(ctx, &Request{Method: http.MethodDelete, Path: fmt.Sprintf("/user/v1/manage/%d", n)})
}

func (c *BKPSClient) ImportTrustedCertificate(ctx context.Context, certPath string) error {
	if err := requirePath("input", certPath); err != nil {
		return err
	}
	return c.exec(ctx, &Request{
		Method: http.MethodPost,
		Path:   "/user/v1/trusted-certificate/manage",
		Files:  []FormFile{{Field: "file", Path: certPath, FileName: "cert.pem"}},
	})
}

func (c *BKPSClient) ListTrustedCertificates(ctx context.Context) error {
	return c.exec(ctx, &Request{Method: http.MethodGet, Path: "/user/v1/trusted-certificate/manage"})
}

func (c *BKPSClient) DeleteTrustedCertificate(ctx context.Context, alias string) error {
	if strings.TrimSpace(alias) == "" {
		return interfaces.NewValidationError("alias", "is required")
	}
	return c.exec(ctx, &Request{Method: http.MethodDelete, Path: "/user/v1/trusted-certificate/manage/" + url.PathEscape(alias)})
}

// PrefetchDevice is one entry of a device prefetch request.
type PrefetchDevice struct {
	FamilyID   string `json:"familyId,omitempty"`
	UID        string `json:"uid,omitempty"`
	PDI        string `json:"pdi,omitempty"`
	DeviceIDEr string `json:"deviceIdEr,omitempty"`
}

// Validate checks the device identifiers: a UID of exactly 8 hex encoded
// bytes, and a hex PDI when one is given.
func (d PrefetchDevice) Validate() error {
	if strings.TrimSpace(d.FamilyID) == "" {
		return interfaces.NewValidationError("familyId", "is required")
	}
	if !validation.IsHexOfByteLength(d.UID, validation.DeviceUIDLength) {
		return interfaces.NewValidationError("deviceId", "UID not in hex format or not having %d bytes", validation.DeviceUIDLength)
	}
	if d.PDI != "" && !validation.IsHex(d.PDI) {
		return interfaces.NewValidationError("pdi", "should be hex encoded")
	}
	return nil
}

// ResolveDeviceIDCert accepts either a path to a PEM file or the PEM text
// itself and returns the PEM text.
func ResolveDeviceIDCert(pathOrPEM string) (string, error) {
	if pathOrPEM == "" {
		return "", nil
	}
	if info, err := os.Stat(pathOrPEM); err == nil && !info.IsDir() {
		data, err := os.ReadFile(pathOrPEM)
		if err != nil {
			return "", &interfaces.PrecursorError{Resource: pathOrPEM, Err: err}
		}
		return strings.TrimSpace(string(data)), nil
	}
	return pathOrPEM, nil
}

// PrefetchDevices asks the service to prefetch provisioning data for device.
func (c *BKPSClient) PrefetchDevices(ctx context.Context, device PrefetchDevice) error {
	if err := device.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal([]PrefetchDevice{device})
	if err != nil {
		return err
	}
	return c.exec(ctx, &Request{Method: http.MethodPost, Path: "/prov/v1/prefetch/devices", JSON: body})
}

// PrefetchStatus reports prefetch progress, for a single device when both
// uid and familyID are given.
func (c *BKPSClient) PrefetchStatus(ctx context.Context, uid, familyID string) error {
	req := &Request{Method: http.MethodGet, Path: "/prov/v1/prefetch/status"}
	if uid != "" && familyID != "" {
		req.Query = url.Values{}
		req.Query.Set("familyId", familyID)
		req.Query.Set("uid", uid)
	}
	return c.exec(ctx, req)
}
