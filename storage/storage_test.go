package storage

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ruteri/bkps-admin/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.json")
	a := NewFileArtifact(path, testLogger())
	ctx := context.Background()

	_, err := a.Fetch(ctx)
	require.ErrorIs(t, err, interfaces.ErrContentNotFound)

	require.NoError(t, a.Store(ctx, []byte(`{"id":1}`)))
	got, err := a.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`, string(got))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	assert.Equal(t, path, a.LocationURI())
}

func TestArtifactFor(t *testing.T) {
	factory := NewArtifactStoreFactory(testLogger(), VaultOpts{Address: "http://127.0.0.1:8200", Token: "t"})

	tests := []struct {
		location string
		wantType any
		wantURI  string
		wantErr  bool
	}{
		{location: "out.json", wantType: &FileArtifact{}, wantURI: "out.json"},
		{location: "/tmp/out.json", wantType: &FileArtifact{}, wantURI: "/tmp/out.json"},
		{location: "file:///tmp/out.json", wantType: &FileArtifact{}, wantURI: "/tmp/out.json"},
		{location: "file://./rel/out.json", wantType: &FileArtifact{}, wantURI: "./rel/out.json"},
		{location: "s3://AKIA:secret@bucket/backups/key.json?region=eu-west-1", wantType: &S3Artifact{}, wantURI: "s3://bucket/backups/key.json"},
		{location: "vault://secret/bkps/sealing#backup", wantType: &VaultArtifact{}, wantURI: "vault://secret/bkps/sealing#backup"},
		{location: "vault://secret/bkps/sealing", wantType: &VaultArtifact{}, wantURI: "vault://secret/bkps/sealing#content"},
		{location: "", wantErr: true},
		{location: "s3://bucket", wantErr: true},
		{location: "vault://secret", wantErr: true},
		{location: "ipfs://node/cid", wantErr: true},
		{location: "file://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			store, err := factory.ArtifactFor(interfaces.ArtifactLocation(tt.location))
			if tt.wantErr {
				require.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, store)
			assert.Equal(t, tt.wantURI, store.LocationURI())
			assert.NotContains(t, store.LocationURI(), "secret@")
		})
	}
}

// fakeVault serves the subset of the KV v2 API the artifact uses.
type fakeVault struct {
	mu      sync.Mutex
	secrets map[string]map[string]any
	tokens  []string
}

func (v *fakeVault) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tokens = append(v.tokens, r.Header.Get("X-Vault-Token"))

	path := strings.TrimPrefix(r.URL.Path, "/v1/")
	switch r.Method {
	case http.MethodGet:
		data, ok := v.secrets[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"errors":[]}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"data": data}})
	case http.MethodPut, http.MethodPost:
		var body struct {
			Data map[string]any `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		v.secrets[path] = body.Data
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"version": 1}})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestVaultArtifact(t *testing.T) {
	vault := &fakeVault{secrets: map[string]map[string]any{}}
	srv := httptest.NewServer(vault)
	t.Cleanup(srv.Close)

	factory := NewArtifactStoreFactory(testLogger(), VaultOpts{Address: srv.URL, Token: "root-token"})
	store, err := factory.ArtifactFor("vault://secret/bkps/sealing#backup")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Fetch(ctx)
	require.ErrorIs(t, err, interfaces.ErrContentNotFound)

	require.NoError(t, store.Store(ctx, []byte("ENCRYPTED-SEALING-KEY")))
	assert.Equal(t, map[string]any{"backup": "ENCRYPTED-SEALING-KEY"}, vault.secrets["secret/data/bkps/sealing"])

	got, err := store.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ENCRYPTED-SEALING-KEY", string(got))

	other, err := factory.ArtifactFor("vault://secret/bkps/sealing#other")
	require.NoError(t, err)
	_, err = other.Fetch(ctx)
	require.ErrorIs(t, err, interfaces.ErrContentNotFound)

	for _, token := range vault.tokens {
		assert.Equal(t, "root-token", token)
	}
}

// fakeS3 serves path-style GetObject and PutObject.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (s *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		data, ok := s.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`))
			return
		}
		w.Write(data)
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		s.objects[r.URL.Path] = data
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3Artifact(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := NewS3Artifact(S3Opts{
		Bucket:    "bkps",
		Key:       "backups/sealing.json",
		Region:    "us-east-1",
		Endpoint:  srv.URL,
		AccessKey: "AKIA",
		SecretKey: "secret",
	}, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Fetch(ctx)
	require.ErrorIs(t, err, interfaces.ErrContentNotFound)

	require.NoError(t, store.Store(ctx, []byte(`{"sealed":true}`)))
	assert.Equal(t, []byte(`{"sealed":true}`), fake.objects["/bkps/backups/sealing.json"])

	got, err := store.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"sealed":true}`, string(got))
	assert.Equal(t, "s3://bkps/backups/sealing.json", store.LocationURI())
}
