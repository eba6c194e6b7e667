package mockservice

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ruteri/bkps-admin/cryptoutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := New(Config{Log: slog.New(slog.NewTextHandler(io.Discard, nil)), InitToken: "tok", ImportKeyBits: 1024})
	require.NoError(t, err)
	return s
}

func withClientCert(r *http.Request) *http.Request {
	r.TLS = &tls.ConnectionState{PeerCertificates: []*x509.Certificate{{}}}
	return r
}

func TestRouter_Authentication(t *testing.T) {
	s := newTestService(t)
	router := s.Router()

	tests := []struct {
		name   string
		req    *http.Request
		status int
	}{
		{"health is public", httptest.NewRequest(http.MethodGet, "/health", nil), http.StatusOK},
		{"detailed health is public", httptest.NewRequest(http.MethodGet, "/health/sla", nil), http.StatusOK},
		{"import key needs cert", httptest.NewRequest(http.MethodGet, "/config/v1/import-key", nil), http.StatusUnauthorized},
		{"import key with cert", withClientCert(httptest.NewRequest(http.MethodGet, "/config/v1/import-key", nil)), http.StatusOK},
		{"unknown signing key", withClientCert(httptest.NewRequest(http.MethodGet, "/init/v1/signing-key/42", nil)), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, tt.req)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))
		})
	}

	assert.EqualValues(t, len(tests), s.Served())
}

func TestRouter_FailNext(t *testing.T) {
	s := newTestService(t)
	router := s.Router()
	s.FailNext(http.MethodGet, "/health", http.StatusServiceUnavailable, "maintenance")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.JSONEq(t, `{"status":{"code":503,"message":"maintenance"}}`, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_RecordsMultipart(t *testing.T) {
	s := newTestService(t)
	router := s.Router()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "data.pem")
	require.NoError(t, err)
	part.Write([]byte("CERT"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/user-init/v1/tok", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), "ROLE_SUPER_ADMIN")

	rec, ok := s.LastRequest()
	require.True(t, ok)
	assert.Equal(t, "/user-init/v1/tok", rec.Path)
	assert.Equal(t, "data.pem", rec.Files["file"].FileName)
	assert.Equal(t, []byte("CERT"), rec.Files["file"].Data)
}

func TestRouter_InitialUserRejectsBadToken(t *testing.T) {
	router := newTestService(t).Router()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/user-init/v1/wrong", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRouter_ConfigurationLifecycle(t *testing.T) {
	s := newTestService(t)
	router := s.Router()

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := withClientCert(httptest.NewRequest(method, path, bytes.NewBufferString(body)))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := do(http.MethodPost, "/config/v1/configuration", `{"name":"cfg"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"id":1}`, rr.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/config/v1/configuration", `{}`).Code)

	rr = do(http.MethodGet, "/config/v1/configuration", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("X-Total-Count"))
	assert.NotEmpty(t, rr.Header().Get("Link"))

	require.Equal(t, http.StatusOK, do(http.MethodPut, "/config/v1/configuration/1", `{"name":"cfg2"}`).Code)
	stored, ok := s.Configuration(1)
	require.True(t, ok)
	assert.JSONEq(t, `{"name":"cfg2"}`, string(stored))

	require.Equal(t, http.StatusOK, do(http.MethodDelete, "/config/v1/configuration/1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "/config/v1/configuration/1", "").Code)
}

func TestRouter_EncryptedConfiguration(t *testing.T) {
	s := newTestService(t)
	router := s.Router()

	seal := func(t *testing.T, pubPEM []byte) submittedEnvelope {
		t.Helper()
		enc, err := cryptoutils.NewHybridEncryptor(pubPEM)
		require.NoError(t, err)
		defer enc.Destroy()
		value, err := enc.EncryptHex(strings.Repeat("ab", 32))
		require.NoError(t, err)
		wrapped, err := enc.WrappedKey()
		require.NoError(t, err)
		return submittedEnvelope{Value: value, WrappedKey: wrapped}
	}
	body := func(t *testing.T, aes, qek *submittedEnvelope) string {
		t.Helper()
		cd := map[string]any{"importMode": "ENCRYPTED"}
		if aes != nil {
			cd["encryptedAesKey"] = aes
		}
		if qek != nil {
			cd["encryptedQek"] = qek
		}
		raw, err := json.Marshal(map[string]any{"name": "cfg", "confidentialData": cd})
		require.NoError(t, err)
		return string(raw)
	}

	valid := seal(t, s.importKeyPEM)
	tampered := valid
	tampered.Value = valid.Value[:len(valid.Value)-2] + "00"
	if tampered.Value == valid.Value {
		tampered.Value = valid.Value[:len(valid.Value)-2] + "11"
	}
	_, otherPEM, err := cryptoutils.GenerateRSAKeyPair(1024)
	require.NoError(t, err)
	foreign := seal(t, otherPEM)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"opens with import key", body(t, &valid, &valid), http.StatusCreated},
		{"tampered ciphertext", body(t, &tampered, nil), http.StatusBadRequest},
		{"wrapped for another key", body(t, &foreign, nil), http.StatusBadRequest},
		{"bad qek envelope", body(t, &valid, &foreign), http.StatusBadRequest},
		{"missing aes envelope", body(t, nil, nil), http.StatusBadRequest},
		{"plaintext is not opened", `{"name":"cfg","confidentialData":{"importMode":"PLAINTEXT","aesKey":{"value":"ab"}}}`, http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withClientCert(httptest.NewRequest(http.MethodPost, "/config/v1/configuration", strings.NewReader(tt.body)))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
		})
	}

	t.Run("update after key deletion", func(t *testing.T) {
		s.mu.Lock()
		s.importKey, s.importKeyPEM = nil, nil
		s.mu.Unlock()

		req := withClientCert(httptest.NewRequest(http.MethodPut, "/config/v1/configuration/1", strings.NewReader(body(t, &valid, nil))))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "import key does not exist")
	})
}
