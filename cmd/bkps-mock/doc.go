// Package main (cmd/bkps-mock) serves the in-memory BKPS service from package
// mockservice over mutual TLS.
//
// On start it generates a throwaway CA, a server certificate and an operator
// client certificate, and writes them together with a runner config into
// --credentials-dir:
//
//	bkps-mock --credentials-dir ./mock --init-token secret
//	bkps-admin --config ./mock/runner-config.json health
//	bkps-admin --config ./mock/runner-config.json user initial-create --token secret -i ./mock/client.pem
//
// All state is lost on exit.
package main
