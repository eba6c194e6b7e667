package cryptoutils

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha512"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/cryptobyte"
)

const (
	// SymmetricKeySize is the size of the one-time AES-256 key.
	SymmetricKeySize = 32
	// NonceSize is the AES-GCM nonce size.
	NonceSize = 12
	// TagSize is the AES-GCM authentication tag size.
	TagSize = 16
)

var (
	ErrInvalidPublicKey   = errors.New("invalid RSA public key")
	ErrMalformedEnvelope  = errors.New("malformed hybrid ciphertext")
	ErrEncryptorDestroyed = errors.New("encryptor key material has been destroyed")
)

// HybridEncryptor protects secrets for a single recipient. It owns one
// fresh AES-256 key for its whole lifetime; every Encrypt call uses that key
// with a new random nonce, and WrappedKey always returns the same
// RSA-OAEP(SHA-384) wrapping of it.
//
// One encryptor is created per submission and destroyed after assembly.
type HybridEncryptor struct {
	recipient *rsa.PublicKey

	mu      sync.Mutex
	key     []byte
	wrapped string
}

// NewHybridEncryptor parses publicKeyPEM (PKIX "PUBLIC KEY" or PKCS#1
// "RSA PUBLIC KEY") and generates the one-time symmetric key.
func NewHybridEncryptor(publicKeyPEM []byte) (*HybridEncryptor, error) {
	recipient, err := ParseRSAPublicKeyPEM(publicKeyPEM)
	if err != nil {
		return nil, err
	}

	key := make([]byte, SymmetricKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate symmetric key: %w", err)
	}

	return &HybridEncryptor{recipient: recipient, key: key}, nil
}

// ParseRSAPublicKeyPEM decodes a PEM encoded RSA public key.
func ParseRSAPublicKeyPEM(publicKeyPEM []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(publicKeyPEM)
	if block == nil {
		return nil, fmt.Errorf("%w: failed to decode PEM", ErrInvalidPublicKey)
	}

	switch block.Type {
	case "RSA PUBLIC KEY":
		pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		return pub, nil
	default:
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		pub, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidPublicKey)
		}
		return pub, nil
	}
}

// DecodeImportPublicKey normalizes the import key returned by the service,
// which is PEM text either as-is or hex encoded.
func DecodeImportPublicKey(raw []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidPublicKey)
	}
	if bytes.HasPrefix(trimmed, []byte("-----BEGIN")) {
		return trimmed, nil
	}

	// Tolerate a JSON string wrapper around the hex payload.
	unquoted := strings.Trim(string(trimmed), `"`)
	decoded, err := hex.DecodeString(unquoted)
	if err != nil {
		return nil, fmt.Errorf("%w: neither PEM nor hex encoded PEM", ErrInvalidPublicKey)
	}
	if !bytes.Contains(decoded, []byte("-----BEGIN")) {
		return nil, fmt.Errorf("%w: decoded payload is not PEM", ErrInvalidPublicKey)
	}
	return decoded, nil
}

// Encrypt seals plaintext with AES-256-GCM under the one-time key and returns
// hex(uint32 BE nonce length || nonce || ciphertext || tag).
func (e *HybridEncryptor) Encrypt(plaintext []byte) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.key == nil {
		return "", ErrEncryptorDestroyed
	}

	aead, err := newGCM(e.key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	var b cryptobyte.Builder
	b.AddUint32LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(nonce)
	})
	b.AddBytes(aead.Seal(nil, nonce, plaintext, nil))

	framed, err := b.Bytes()
	if err != nil {
		return "", fmt.Errorf("failed to frame ciphertext: %w", err)
	}
	return hex.EncodeToString(framed), nil
}

// EncryptHex decodes a hex field value and encrypts its raw bytes.
func (e *HybridEncryptor) EncryptHex(hexPlaintext string) (string, error) {
	plaintext, err := hex.DecodeString(hexPlaintext)
	if err != nil {
		return "", fmt.Errorf("field is not hex encoded: %w", err)
	}
	return e.Encrypt(plaintext)
}

// WrappedKey returns hex(RSA-OAEP(SHA-384, SHA-384 MGF1)) of the one-time key.
// The wrapping happens once; later calls return the cached value.
func (e *HybridEncryptor) WrappedKey() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.wrapped != "" {
		return e.wrapped, nil
	}
	if e.key == nil {
		return "", ErrEncryptorDestroyed
	}

	wrapped, err := rsa.EncryptOAEP(sha512.New384(), rand.Reader, e.recipient, e.key, nil)
	if err != nil {
		return "", fmt.Errorf("failed to wrap symmetric key: %w", err)
	}
	e.wrapped = hex.EncodeToString(wrapped)
	return e.wrapped, nil
}

// Destroy zeroes the one-time key. The encryptor is unusable afterwards,
// except for returning an already computed wrapped key.
func (e *HybridEncryptor) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.key {
		e.key[i] = 0
	}
	e.key = nil
}

// UnwrapKey reverses WrappedKey with the recipient's private key.
func UnwrapKey(priv *rsa.PrivateKey, wrappedHex string) ([]byte, error) {
	wrapped, err := hex.DecodeString(wrappedHex)
	if err != nil {
		return nil, fmt.Errorf("wrapped key is not hex encoded: %w", err)
	}
	key, err := rsa.DecryptOAEP(sha512.New384(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap symmetric key: %w", err)
	}
	return key, nil
}

// DecryptEnvelope opens a hex encoded ciphertext produced by Encrypt.
func DecryptEnvelope(key []byte, ciphertextHex string) ([]byte, error) {
	raw, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	s := cryptobyte.String(raw)
	var nonceLen uint32
	var nonce []byte
	if !s.ReadUint32(&nonceLen) || nonceLen != NonceSize || !s.ReadBytes(&nonce, int(nonceLen)) {
		return nil, fmt.Errorf("%w: bad nonce framing", ErrMalformedEnvelope)
	}
	if len(s) < TagSize {
		return nil, fmt.Errorf("%w: missing authentication tag", ErrMalformedEnvelope)
	}

	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, s, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithTagSize(block, TagSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}
