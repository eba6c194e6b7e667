package cryptoutils

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/ruteri/bkps-admin/interfaces"
	"github.com/youmark/pkcs8"
)

var ErrInvalidPEM = errors.New("invalid PEM data")

// LoadCACertPool reads a PEM bundle and returns a pool trusting only it.
func LoadCACertPool(caFile string) (*x509.CertPool, error) {
	caPEM, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA bundle: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("%w: no certificates in CA bundle %s", ErrInvalidPEM, caFile)
	}
	return pool, nil
}

// IsEncryptedPrivateKeyPEM reports whether the first PEM block of keyPEM is
// passphrase protected, either as PKCS#8 "ENCRYPTED PRIVATE KEY" or as a
// legacy OpenSSL block with a Proc-Type: 4,ENCRYPTED header.
func IsEncryptedPrivateKeyPEM(keyPEM []byte) bool {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return false
	}
	if block.Type == "ENCRYPTED PRIVATE KEY" {
		return true
	}
	procType, ok := block.Headers["Proc-Type"]
	return ok && procType == "4,ENCRYPTED"
}

// ParsePrivateKeyPEM decodes an unencrypted PKCS#8, PKCS#1 or SEC1 private
// key. Encrypted keys yield interfaces.ErrEncryptedPrivateKey.
func ParsePrivateKeyPEM(keyPEM []byte) (crypto.PrivateKey, error) {
	if IsEncryptedPrivateKeyPEM(keyPEM) {
		return nil, interfaces.ErrEncryptedPrivateKey
	}

	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("%w: no private key block", ErrInvalidPEM)
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	default:
		key, err := pkcs8.ParsePKCS8PrivateKey(block.Bytes, nil)
		if err != nil {
			if isEncryptedPKCS8(block.Bytes) {
				return nil, interfaces.ErrEncryptedPrivateKey
			}
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		return key, nil
	}
}

// encryptedPrivateKeyInfo is the PKCS#8 EncryptedPrivateKeyInfo structure.
type encryptedPrivateKeyInfo struct {
	EncryptionAlgorithm pkix.AlgorithmIdentifier
	EncryptedData       []byte
}

// isEncryptedPKCS8 reports whether der is an EncryptedPrivateKeyInfo, which
// some tools emit under a plain "PRIVATE KEY" label.
func isEncryptedPKCS8(der []byte) bool {
	var info encryptedPrivateKeyInfo
	rest, err := asn1.Unmarshal(der, &info)
	return err == nil && len(rest) == 0 && len(info.EncryptedData) > 0
}

// LoadClientCertificate loads the mTLS client identity. The key file must
// not be passphrase protected.
func LoadClientCertificate(certFile, keyFile string) (tls.Certificate, error) {
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to read client key: %w", err)
	}
	if _, err := ParsePrivateKeyPEM(keyPEM); err != nil {
		if errors.Is(err, interfaces.ErrEncryptedPrivateKey) {
			return tls.Certificate{}, err
		}
		return tls.Certificate{}, fmt.Errorf("failed to parse client key: %w", err)
	}

	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to read client certificate: %w", err)
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("client certificate and key do not match: %w", err)
	}
	return cert, nil
}
