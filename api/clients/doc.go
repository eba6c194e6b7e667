/*
Package clients provides the admin client for the key-provisioning service.

# Transport

Transport performs one request per call over mutually authenticated TLS. Each
request gets its own session, which moves through

	IDLE -> SESSION_OPEN -> SENT -> SUCCEEDED | FAILED -> CLOSED

and is closed on every exit path, including a failed precondition check. The
CA bundle is always required; the client certificate and key are required
for every request except health checks and initial user creation.
Passphrase-protected keys are rejected with interfaces.ErrEncryptedPrivateKey.

The failure mode is fixed at construction:

  - FinishOnError returns *interfaces.TransportError or
    *interfaces.ServiceError so a one-shot command can exit non-zero.
  - Recoverable prints the failure and returns no result, letting an
    interactive session continue.

Missing files are reported as *interfaces.PrecursorError in both modes,
before any connection is attempted.

Responses are printed to the configured writer: a status banner, paging
headers when present, then the body as indented JSON. Silent requests print
nothing.

# BKPSClient

BKPSClient maps each service endpoint to a method and validates ids, roles
and device identifiers before sending anything. It also implements
configuration.ImportKeySource.

# Example Usage

	transport := clients.NewTransport(clients.TransportConfig{
	    Host:     "bkps.example.com",
	    Port:     clients.DefaultServicePort,
	    CertFile: "admin.crt",
	    KeyFile:  "admin.key",
	    CAFile:   "ca.crt",
	    Mode:     clients.FinishOnError,
	})
	client := clients.NewBKPSClient(transport)

	if err := client.ListConfigurations(ctx); err != nil {
	    return err
	}
*/
package clients
