package mockservice

import (
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ruteri/bkps-admin/cryptoutils"
	"github.com/stretchr/testify/require"
)

// TestEnv is a running in-process service reachable over mTLS, with a CA
// bundle and client credentials written to a temporary directory.
type TestEnv struct {
	Service *Service
	Server  *httptest.Server
	CA      *cryptoutils.CertificateAuthority

	Host string
	Port int

	Dir      string
	CAFile   string
	CertFile string
	KeyFile  string
}

// StartTestEnv starts the service for the duration of the test.
func StartTestEnv(t testing.TB, cfg Config) *TestEnv {
	t.Helper()

	if cfg.Log == nil {
		cfg.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	service, err := New(cfg)
	require.NoError(t, err)

	ca, err := cryptoutils.NewCertificateAuthority("bkps-test-ca")
	require.NoError(t, err)
	serverCert, err := ca.IssueServer("127.0.0.1", "localhost")
	require.NoError(t, err)
	clientCert, err := ca.IssueClient("bkps-admin-test")
	require.NoError(t, err)

	keyPair, err := tls.X509KeyPair(serverCert.CertPEM, serverCert.KeyPEM)
	require.NoError(t, err)

	serverCfg := &HTTPServerConfig{Certificate: keyPair, ClientCAs: ca.CertPool()}
	srv := httptest.NewUnstartedServer(service.Router())
	srv.TLS = serverCfg.TLSConfig()
	srv.StartTLS()
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	env := &TestEnv{
		Service:  service,
		Server:   srv,
		CA:       ca,
		Host:     "127.0.0.1",
		Port:     srv.Listener.Addr().(*net.TCPAddr).Port,
		Dir:      dir,
		CAFile:   filepath.Join(dir, "ca.pem"),
		CertFile: filepath.Join(dir, "client.pem"),
		KeyFile:  filepath.Join(dir, "client.key"),
	}
	require.NoError(t, os.WriteFile(env.CAFile, ca.CertPEM(), 0o600))
	require.NoError(t, os.WriteFile(env.CertFile, clientCert.CertPEM, 0o600))
	require.NoError(t, os.WriteFile(env.KeyFile, clientCert.KeyPEM, 0o600))
	return env
}

// WriteFile stores data under the environment's directory and returns its path.
func (e *TestEnv) WriteFile(t testing.TB, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(e.Dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}
