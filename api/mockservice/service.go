package mockservice

import (
	"bytes"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ruteri/bkps-admin/cryptoutils"
	"github.com/ruteri/bkps-admin/interfaces"
	"go.uber.org/atomic"
)

// Config configures the in-memory service.
type Config struct {
	Log *slog.Logger
	// InitToken authorizes creation of the first user.
	InitToken string
	// ImportKeyBits is the RSA size of the generated import key. Defaults to 2048.
	ImportKeyBits int
}

// UploadedFile is one multipart file part received by the service.
type UploadedFile struct {
	FileName string
	Data     []byte
}

// RecordedRequest is a request as the service received it.
type RecordedRequest struct {
	ID          string
	Method      string
	Path        string
	Query       url.Values
	ContentType string
	CacheCtl    string
	Body        []byte
	Files       map[string]UploadedFile
	ClientCN    string
}

type user struct {
	ID          int64    `json:"id"`
	Certificate string   `json:"certificate"`
	Roles       []string `json:"roles"`
}

type signingKey struct {
	ID     int64  `json:"id"`
	Active bool   `json:"active"`
	Chains bool   `json:"chainsUploaded"`
	CSR    string `json:"csr"`
}

type trustedCertificate struct {
	Alias       string `json:"alias"`
	Certificate string `json:"certificate"`
}

type configuration struct {
	ID   int64           `json:"id"`
	Body json.RawMessage `json:"configuration"`
}

type failure struct {
	status  int
	message string
}

// Service is an in-memory stand-in for the key-provisioning service. It
// implements every endpoint the admin client uses and records each request.
type Service struct {
	log       *slog.Logger
	initToken string
	keyBits   int

	served atomic.Int64
	nextID atomic.Int64

	mu               sync.Mutex
	importKey        *rsa.PrivateKey
	importKeyPEM     []byte
	recorded         []RecordedRequest
	failures         map[string]failure
	sealingKeys      []int64
	signingKeys      map[int64]*signingKey
	rootSigningKeys  int
	contextRotations int
	configurations   map[int64]*configuration
	users            map[int64]*user
	trusted          map[string]*trustedCertificate
	prefetched       []json.RawMessage
}

func New(cfg Config) (*Service, error) {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	bits := cfg.ImportKeyBits
	if bits == 0 {
		bits = 2048
	}

	s := &Service{
		log:            log,
		initToken:      cfg.InitToken,
		keyBits:        bits,
		failures:       make(map[string]failure),
		signingKeys:    make(map[int64]*signingKey),
		configurations: make(map[int64]*configuration),
		users:          make(map[int64]*user),
		trusted:        make(map[string]*trustedCertificate),
	}
	if err := s.rotateImportKey(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) rotateImportKey() error {
	priv, pubPEM, err := cryptoutils.GenerateRSAKeyPair(s.keyBits)
	if err != nil {
		return fmt.Errorf("failed to generate import key: %w", err)
	}
	s.mu.Lock()
	s.importKey, s.importKeyPEM = priv, pubPEM
	s.mu.Unlock()
	return nil
}

// ImportKey returns the private half of the current import key, or nil after
// the key was deleted.
func (s *Service) ImportKey() *rsa.PrivateKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.importKey
}

// Served returns the number of requests handled so far.
func (s *Service) Served() int64 {
	return s.served.Load()
}

// Requests returns a copy of every recorded request in arrival order.
func (s *Service) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.recorded)
}

// LastRequest returns the most recent request.
func (s *Service) LastRequest() (RecordedRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.recorded) == 0 {
		return RecordedRequest{}, false
	}
	return s.recorded[len(s.recorded)-1], true
}

// FailNext makes the next request to method and path fail with status.
func (s *Service) FailNext(method, path string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = failure{status: status, message: message}
}

// Configuration returns a stored configuration body.
func (s *Service) Configuration(id int64) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.configurations[id]
	if !ok {
		return nil, false
	}
	return slices.Clone(c.Body), true
}

// Prefetched returns every device entry received by the prefetch endpoint.
func (s *Service) Prefetched() []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.prefetched)
}

// Router returns the full API. Routes other than health and initial user
// creation require a verified client certificate.
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.httpLogger, s.record, s.injectFailures)

	r.Get("/health", s.handleHealth)
	r.Get("/health/sla", s.handleHealthSLA)
	r.Post("/user-init/v1/{token}", s.handleInitialUser)

	r.Group(func(r chi.Router) {
		r.Use(requireClientCert)

		r.Get("/config/v1/import-key", s.handleGetImportKey)
		r.Post("/init/v1/import-key", s.handleCreateImportKey)
		r.Delete("/init/v1/import-key", s.handleDeleteImportKey)

		r.Post("/init/v1/sealing-key", s.handleCreateSealingKey)
		r.Post("/init/v1/sealing-key/rotate", s.handleCreateSealingKey)
		r.Get("/init/v1/sealing-key", s.handleListSealingKeys)
		r.Post("/init/v1/sealing-key/backup", s.handleBackupSealingKey)
		r.Post("/init/v1/sealing-key/restore", s.handleRestoreSealingKey)

		r.Post("/init/v1/signing-key", s.handleCreateSigningKey)
		r.Get("/init/v1/signing-key/list", s.handleListSigningKeys)
		r.Get("/init/v1/signing-key/{id}", s.handleGetSigningKey)
		r.Post("/init/v1/signing-key/upload/{id}", s.handleUploadSigningKey)
		r.Post("/init/v1/signing-key/activate/{id}", s.handleActivateSigningKey)
		r.Post("/init/v1/root-signing-key", s.handleRootSigningKey)
		r.Post("/init/v1/context-key/rotate", s.handleRotateContextKey)

		r.Post("/config/v1/configuration", s.handleCreateConfiguration)
		r.Get("/config/v1/configuration", s.handleListConfigurations)
		r.Get("/config/v1/configuration/{id}", s.handleGetConfiguration)
		r.Put("/config/v1/configuration/{id}", s.handleUpdateConfiguration)
		r.Delete("/config/v1/configuration/{id}", s.handleDeleteConfiguration)

		r.Post("/user/v1/manage", s.handleCreateUser)
		r.Get("/user/v1/manage", s.handleListUsers)
		r.Post("/user/v1/manage/{id}/role/{action}", s.handleChangeRole)
		r.Delete("/user/v1/manage/{id}", s.handleDeleteUser)

		r.Post("/user/v1/trusted-certificate/manage", s.handleImportTrustedCertificate)
		r.Get("/user/v1/trusted-certificate/manage", s.handleListTrustedCertificates)
		r.Delete("/user/v1/trusted-certificate/manage/{alias}", s.handleDeleteTrustedCertificate)

		r.Post("/prov/v1/prefetch/devices", s.handlePrefetchDevices)
		r.Get("/prov/v1/prefetch/status", s.handlePrefetchStatus)
	})

	return r
}

func (s *Service) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(s.log, next)
}

// record captures the request, including parsed multipart parts, and
// restores the body for the handler.
func (s *Service) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.served.Inc()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeStatus(w, http.StatusBadRequest, "failed to read body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		rec := RecordedRequest{
			ID:          uuid.NewString(),
			Method:      r.Method,
			Path:        r.URL.Path,
			Query:       r.URL.Query(),
			ContentType: r.Header.Get("Content-Type"),
			CacheCtl:    r.Header.Get("Cache-Control"),
			Body:        body,
		}
		if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
			rec.ClientCN = r.TLS.PeerCertificates[0].Subject.CommonName
		}
		if files, err := parseMultipart(rec.ContentType, body); err == nil {
			rec.Files = files
		}

		s.mu.Lock()
		s.recorded = append(s.recorded, rec)
		s.mu.Unlock()

		w.Header().Set("X-Request-Id", rec.ID)
		next.ServeHTTP(w, r)
	})
}

func (s *Service) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		s.mu.Lock()
		f, ok := s.failures[key]
		delete(s.failures, key)
		s.mu.Unlock()

		if ok {
			writeStatus(w, f.status, f.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireClientCert(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
			writeStatus(w, http.StatusUnauthorized, "client certificate required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func parseMultipart(contentType string, body []byte) (map[string]UploadedFile, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return nil, errors.New("not multipart")
	}

	files := make(map[string]UploadedFile)
	mr := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return files, nil
		}
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(part)
		if err != nil {
			return nil, err
		}
		files[part.FormName()] = UploadedFile{FileName: part.FileName(), Data: data}
	}
}

func (s *Service) lastFiles() map[string]UploadedFile {
	rec, _ := s.LastRequest()
	return rec.Files
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeStatus writes an error body in the service's {"status": {...}} shape.
func writeStatus(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"status": map[string]any{
			"code":    status,
			"message": message,
		},
	})
}

func writeList[T any](w http.ResponseWriter, r *http.Request, items []T) {
	w.Header().Set("X-Total-Count", strconv.Itoa(len(items)))
	w.Header().Set("Link", fmt.Sprintf("<%s?page=0>; rel=\"first\"", r.URL.Path))
	writeJSON(w, http.StatusOK, items)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id >= 0
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}

func (s *Service) handleHealthSLA(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "UP",
		"requests": s.served.Load(),
	})
}

func (s *Service) handleGetImportKey(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	pemBytes := s.importKeyPEM
	s.mu.Unlock()

	if pemBytes == nil {
		writeStatus(w, http.StatusNotFound, "import key does not exist")
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write(pemBytes)
}

func (s *Service) handleCreateImportKey(w http.ResponseWriter, r *http.Request) {
	if err := s.rotateImportKey(); err != nil {
		writeStatus(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Service) handleDeleteImportKey(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.importKey, s.importKeyPEM = nil, nil
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Service) handleCreateSealingKey(w http.ResponseWriter, r *http.Request) {
	id := s.nextID.Inc()
	s.mu.Lock()
	s.sealingKeys = append(s.sealingKeys, id)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Service) handleListSealingKeys(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	keys := make([]map[string]any, 0, len(s.sealingKeys))
	for i, id := range s.sealingKeys {
		keys = append(keys, map[string]any{"id": id, "active": i == len(s.sealingKeys)-1})
	}
	s.mu.Unlock()
	writeList(w, r, keys)
}

func (s *Service) handleBackupSealingKey(w http.ResponseWriter, r *http.Request) {
	var req json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStatus(w, http.StatusBadRequest, "import public key must be JSON")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"encryptedSealingKey": uuid.NewString()})
}

func (s *Service) handleRestoreSealingKey(w http.ResponseWriter, r *http.Request) {
	var req json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStatus(w, http.StatusBadRequest, "encrypted sealing key must be JSON")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Service) handleCreateSigningKey(w http.ResponseWriter, r *http.Request) {
	key := &signingKey{ID: s.nextID.Inc(), CSR: "-----BEGIN CERTIFICATE REQUEST-----"}
	s.mu.Lock()
	s.signingKeys[key.ID] = key
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, key)
}

func (s *Service) handleListSigningKeys(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	keys := make([]signingKey, 0, len(s.signingKeys))
	for _, k := range s.signingKeys {
		keys = append(keys, *k)
	}
	s.mu.Unlock()
	slices.SortFunc(keys, func(a, b signingKey) int { return int(a.ID - b.ID) })
	writeList(w, r, keys)
}

func (s *Service) signingKeyFor(w http.ResponseWriter, r *http.Request) (*signingKey, bool) {
	id, ok := pathID(r)
	if !ok {
		writeStatus(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	s.mu.Lock()
	key, ok := s.signingKeys[id]
	s.mu.Unlock()
	if !ok {
		writeStatus(w, http.StatusNotFound, "signing key not found")
		return nil, false
	}
	return key, true
}

func (s *Service) handleGetSigningKey(w http.ResponseWriter, r *http.Request) {
	key, ok := s.signingKeyFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, key)
}

func (s *Service) handleUploadSigningKey(w http.ResponseWriter, r *http.Request) {
	key, ok := s.signingKeyFor(w, r)
	if !ok {
		return
	}
	files := s.lastFiles()
	for _, field := range []string{"singleRootChain", "multiRootChain"} {
		if _, ok := files[field]; !ok {
			writeStatus(w, http.StatusBadRequest, "missing "+field)
			return
		}
	}
	s.mu.Lock()
	key.Chains = true
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Service) handleActivateSigningKey(w http.ResponseWriter, r *http.Request) {
	key, ok := s.signingKeyFor(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !key.Chains {
		writeStatus(w, http.StatusConflict, "certificate chains not uploaded")
		return
	}
	for _, k := range s.signingKeys {
		k.Active = false
	}
	key.Active = true
	w.WriteHeader(http.StatusOK)
}

func (s *Service) handleRootSigningKey(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.lastFiles()["file"]; !ok {
		writeStatus(w, http.StatusBadRequest, "missing file")
		return
	}
	s.mu.Lock()
	s.rootSigningKeys++
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Service) handleRotateContextKey(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.contextRotations++
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

type submittedEnvelope struct {
	Value      string `json:"value"`
	WrappedKey string `json:"wrappedKey"`
}

type submittedConfiguration struct {
	Name             string `json:"name"`
	ConfidentialData struct {
		ImportMode      interfaces.ImportMode `json:"importMode"`
		EncryptedAesKey *submittedEnvelope    `json:"encryptedAesKey"`
		EncryptedQek    *submittedEnvelope    `json:"encryptedQek"`
	} `json:"confidentialData"`
}

// decodeConfiguration reads a submitted configuration. ENCRYPTED submissions
// must open with the current import key.
func (s *Service) decodeConfiguration(r *http.Request) (json.RawMessage, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	var body submittedConfiguration
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	if body.Name == "" {
		return nil, errors.New("configuration name is required")
	}
	if body.ConfidentialData.ImportMode != interfaces.ImportModeEncrypted {
		return raw, nil
	}

	if body.ConfidentialData.EncryptedAesKey == nil {
		return nil, errors.New("encryptedAesKey is required for ENCRYPTED import")
	}
	priv := s.ImportKey()
	if priv == nil {
		return nil, errors.New("import key does not exist")
	}
	if err := openEnvelope(priv, "encryptedAesKey", body.ConfidentialData.EncryptedAesKey); err != nil {
		return nil, err
	}
	if body.ConfidentialData.EncryptedQek != nil {
		if err := openEnvelope(priv, "encryptedQek", body.ConfidentialData.EncryptedQek); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

func openEnvelope(priv *rsa.PrivateKey, field string, e *submittedEnvelope) error {
	key, err := cryptoutils.UnwrapKey(priv, e.WrappedKey)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if _, err := cryptoutils.DecryptEnvelope(key, e.Value); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}

func (s *Service) handleCreateConfiguration(w http.ResponseWriter, r *http.Request) {
	raw, err := s.decodeConfiguration(r)
	if err != nil {
		writeStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	c := &configuration{ID: s.nextID.Inc(), Body: raw}
	s.mu.Lock()
	s.configurations[c.ID] = c
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]int64{"id": c.ID})
}

func (s *Service) handleListConfigurations(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	items := make([]configuration, 0, len(s.configurations))
	for _, c := range s.configurations {
		items = append(items, *c)
	}
	s.mu.Unlock()
	slices.SortFunc(items, func(a, b configuration) int { return int(a.ID - b.ID) })
	writeList(w, r, items)
}

func (s *Service) configurationFor(w http.ResponseWriter, r *http.Request) (*configuration, bool) {
	id, ok := pathID(r)
	if !ok {
		writeStatus(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	s.mu.Lock()
	c, ok := s.configurations[id]
	s.mu.Unlock()
	if !ok {
		writeStatus(w, http.StatusNotFound, "configuration not found")
		return nil, false
	}
	return c, true
}

func (s *Service) handleGetConfiguration(w http.ResponseWriter, r *http.Request) {
	c, ok := s.configurationFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Service) handleUpdateConfiguration(w http.ResponseWriter, r *http.Request) {
	c, ok := s.configurationFor(w, r)
	if !ok {
		return
	}
	raw, err := s.decodeConfiguration(r)
	if err != nil {
		writeStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	c.Body = raw
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Service) handleDeleteConfiguration(w http.ResponseWriter, r *http.Request) {
	c, ok := s.configurationFor(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	delete(s.configurations, c.ID)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Service) addUser(w http.ResponseWriter, roles ...string) {
	file, ok := s.lastFiles()["file"]
	if !ok {
		writeStatus(w, http.StatusBadRequest, "missing file")
		return
	}
	u := &user{ID: s.nextID.Inc(), Certificate: string(file.Data), Roles: append([]string{}, roles...)}
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, u)
}

func (s *Service) handleInitialUser(w http.ResponseWriter, r *http.Request) {
	if s.initToken == "" || chi.URLParam(r, "token") != s.initToken {
		writeStatus(w, http.StatusUnauthorized, "invalid token")
		return
	}
	s.mu.Lock()
	exists := len(s.users) > 0
	s.mu.Unlock()
	if exists {
		writeStatus(w, http.StatusConflict, "initial user already exists")
		return
	}
	s.addUser(w, string(interfaces.RoleSuperAdmin))
}

func (s *Service) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	s.addUser(w)
}

func (s *Service) handleListUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	items := make([]user, 0, len(s.users))
	for _, u := range s.users {
		items = append(items, *u)
	}
	s.mu.Unlock()
	slices.SortFunc(items, func(a, b user) int { return int(a.ID - b.ID) })
	writeList(w, r, items)
}

func (s *Service) userFor(w http.ResponseWriter, r *http.Request) (*user, bool) {
	id, ok := pathID(r)
	if !ok {
		writeStatus(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	s.mu.Lock()
	u, ok := s.users[id]
	s.mu.Unlock()
	if !ok {
		writeStatus(w, http.StatusNotFound, "user not found")
		return nil, false
	}
	return u, true
}

func (s *Service) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	u, ok := s.userFor(w, r)
	if !ok {
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStatus(w, http.StatusBadRequest, "invalid role body")
		return
	}
	if _, err := interfaces.ParseUserRole(req.Role); err != nil {
		writeStatus(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch chi.URLParam(r, "action") {
	case "set":
		if !slices.Contains(u.Roles, req.Role) {
			u.Roles = append(u.Roles, req.Role)
		}
	case "unset":
		u.Roles = slices.DeleteFunc(u.Roles, func(role string) bool { return role == req.Role })
	default:
		writeStatus(w, http.StatusNotFound, "unknown role action")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Service) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	u, ok := s.userFor(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	delete(s.users, u.ID)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Service) handleImportTrustedCertificate(w http.ResponseWriter, r *http.Request) {
	file, ok := s.lastFiles()["file"]
	if !ok {
		writeStatus(w, http.StatusBadRequest, "missing file")
		return
	}
	c := &trustedCertificate{Alias: uuid.NewString(), Certificate: string(file.Data)}
	s.mu.Lock()
	s.trusted[c.Alias] = c
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, c)
}

func (s *Service) handleListTrustedCertificates(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	items := make([]trustedCertificate, 0, len(s.trusted))
	for _, c := range s.trusted {
		items = append(items, *c)
	}
	s.mu.Unlock()
	slices.SortFunc(items, func(a, b trustedCertificate) int { return strings.Compare(a.Alias, b.Alias) })
	writeList(w, r, items)
}

func (s *Service) handleDeleteTrustedCertificate(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	s.mu.Lock()
	_, ok := s.trusted[alias]
	delete(s.trusted, alias)
	s.mu.Unlock()
	if !ok {
		writeStatus(w, http.StatusNotFound, "certificate not found")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Service) handlePrefetchDevices(w http.ResponseWriter, r *http.Request) {
	var devices []json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&devices); err != nil || len(devices) == 0 {
		writeStatus(w, http.StatusBadRequest, "expected a non-empty device list")
		return
	}
	s.mu.Lock()
	s.prefetched = append(s.prefetched, devices...)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Service) handlePrefetchStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	total := len(s.prefetched)
	s.mu.Unlock()

	resp := map[string]any{"processed": total, "pending": 0}
	if uid := r.URL.Query().Get("uid"); uid != "" {
		resp["uid"] = uid
		resp["familyId"] = r.URL.Query().Get("familyId")
	}
	writeJSON(w, http.StatusOK, resp)
}
