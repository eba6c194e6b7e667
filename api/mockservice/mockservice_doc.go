// Package mockservice provides an in-memory implementation of the
// key-provisioning service API.
//
// It backs the tests of the admin client and can be run standalone
// (cmd/bkps-mock) to exercise the CLI against a local endpoint. State lives
// only in memory. Every request is recorded, including parsed multipart
// parts, so tests can assert on exactly what the client sent.
//
// Routes mirror the real service: /health and /user-init/v1/{token} are
// public, everything else requires a client certificate verified against
// the configured CA. Errors use the service's {"status": {...}} body shape.
//
// Usage in tests:
//
//	env := mockservice.StartTestEnv(t, mockservice.Config{InitToken: "token"})
//	transport := clients.NewTransport(clients.TransportConfig{
//	    Host:     env.Host,
//	    Port:     env.Port,
//	    CAFile:   env.CAFile,
//	    CertFile: env.CertFile,
//	    KeyFile:  env.KeyFile,
//	})
package mockservice
