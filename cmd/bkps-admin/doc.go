// Package main (cmd/bkps-admin) is the operator CLI for a BKPS key provisioning service.
//
// Every command maps to one service endpoint and is sent over mutual TLS with
// the operator's client certificate. Connection settings come from flags, BKPS_*
// environment variables or the runner config JSON (--config, default
// runner-config.json):
//
//	{
//	  "service_url": "bkps.example.com",
//	  "service_port": 8082,
//	  "certificate": "admin.pem",
//	  "certificate_key": "admin.key",
//	  "certificate_ca": "ca.pem",
//	  "debug": false,
//	  "system_proxy": true
//	}
//
// Commands:
//
//	health [--detailed]                               - service liveness
//	service-import-key create|delete                  - manage the import key
//	service-import-pub-key get [-o]                   - read the import public key
//	sealing-key create|rotate|list                    - manage sealing keys
//	sealing-key backup -i -o | restore -i             - export or restore a sealing key
//	signing-key create|list|get|upload|activate       - manage signing keys
//	root-signing-key add -i                           - add a root signing certificate
//	context-key rotate                                - rotate the context key
//	configuration create|update --interactive|--json  - submit a device configuration
//	configuration list|get|delete                     - read or remove configurations
//	prefetch, prefetch-status                         - device attestation prefetch
//	communication import|list|delete                  - trusted certificates
//	user create|initial-create|list|role-set|role-unset|delete
//	shell                                             - interactive session (default)
//
// A one-shot command exits non-zero on the first failure. In the shell a failed
// command is reported and the session continues until exit, end of input or
// Ctrl-C.
//
// Input (-i) and output (-o) locations of JSON documents may be local paths or
// file://, s3:// and vault:// URIs, see package storage. Certificate uploads
// always read local files.
package main
