package cryptoutils

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/binary"
	"encoding/hex"
	"encoding/pem"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHybridRoundTrip(t *testing.T) {
	priv, pubPEM, err := GenerateRSAKeyPair(2048)
	require.NoError(t, err)

	testCases := []struct {
		name string
		data []byte
	}{
		{
			name: "Empty data",
			data: []byte{},
		},
		{
			name: "Single byte",
			data: []byte{0x42},
		},
		{
			name: "Not a block multiple",
			data: []byte("seventeen bytes!!"),
		},
		{
			name: "AES key sized",
			data: make([]byte, 32),
		},
		{
			name: "Long data",
			data: make([]byte, 4096),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encryptor, err := NewHybridEncryptor(pubPEM)
			require.NoError(t, err)

			ciphertext, err := encryptor.Encrypt(tc.data)
			require.NoError(t, err)

			wrapped, err := encryptor.WrappedKey()
			require.NoError(t, err)

			key, err := UnwrapKey(priv, wrapped)
			require.NoError(t, err)
			require.Len(t, key, SymmetricKeySize)

			plaintext, err := DecryptEnvelope(key, ciphertext)
			require.NoError(t, err)
			require.Equal(t, len(tc.data), len(plaintext))
			if len(tc.data) > 0 {
				require.Equal(t, tc.data, plaintext)
			}
		})
	}
}

func TestHybridFraming(t *testing.T) {
	_, pubPEM, err := GenerateRSAKeyPair(2048)
	require.NoError(t, err)

	encryptor, err := NewHybridEncryptor(pubPEM)
	require.NoError(t, err)

	ciphertext, err := encryptor.EncryptHex("aabbccdd")
	require.NoError(t, err)

	raw, err := hex.DecodeString(ciphertext)
	require.NoError(t, err)

	// nonce length prefix, nonce, 4 bytes of ciphertext, tag
	require.Len(t, raw, 4+NonceSize+4+TagSize)
	require.Equal(t, uint32(NonceSize), binary.BigEndian.Uint32(raw[:4]))
	require.True(t, strings.HasPrefix(ciphertext, "0000000c"))
}

func TestHybridSharedWrappedKey(t *testing.T) {
	priv, pubPEM, err := GenerateRSAKeyPair(2048)
	require.NoError(t, err)

	encryptor, err := NewHybridEncryptor(pubPEM)
	require.NoError(t, err)

	first, err := encryptor.EncryptHex(strings.Repeat("aa", 32))
	require.NoError(t, err)
	second, err := encryptor.EncryptHex(strings.Repeat("aa", 32))
	require.NoError(t, err)
	require.NotEqual(t, first, second, "nonces must differ between fields")

	wrappedA, err := encryptor.WrappedKey()
	require.NoError(t, err)
	wrappedB, err := encryptor.WrappedKey()
	require.NoError(t, err)
	require.Equal(t, wrappedA, wrappedB)

	key, err := UnwrapKey(priv, wrappedA)
	require.NoError(t, err)
	for _, ct := range []string{first, second} {
		plaintext, err := DecryptEnvelope(key, ct)
		require.NoError(t, err)
		require.Equal(t, strings.Repeat("aa", 32), hex.EncodeToString(plaintext))
	}
}

func TestHybridDestroy(t *testing.T) {
	_, pubPEM, err := GenerateRSAKeyPair(2048)
	require.NoError(t, err)

	encryptor, err := NewHybridEncryptor(pubPEM)
	require.NoError(t, err)
	wrapped, err := encryptor.WrappedKey()
	require.NoError(t, err)

	encryptor.Destroy()

	_, err = encryptor.Encrypt([]byte("data"))
	require.ErrorIs(t, err, ErrEncryptorDestroyed)

	again, err := encryptor.WrappedKey()
	require.NoError(t, err)
	require.Equal(t, wrapped, again)
}

func TestNewHybridEncryptorRejectsBadKeys(t *testing.T) {
	_, err := NewHybridEncryptor([]byte("not a pem"))
	require.ErrorIs(t, err, ErrInvalidPublicKey)

	ca, err := NewCertificateAuthority("test")
	require.NoError(t, err)
	client, err := ca.IssueClient("ecdsa")
	require.NoError(t, err)
	key, err := ParsePrivateKeyPEM(client.KeyPEM)
	require.NoError(t, err)
	ecPub, err := x509.MarshalPKIXPublicKey(key.(crypto.Signer).Public())
	require.NoError(t, err)

	_, err = NewHybridEncryptor(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: ecPub}))
	require.ErrorIs(t, err, ErrInvalidPublicKey)
}

func TestNewHybridEncryptorPKCS1(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&priv.PublicKey)})
	encryptor, err := NewHybridEncryptor(pubPEM)
	require.NoError(t, err)

	wrapped, err := encryptor.WrappedKey()
	require.NoError(t, err)
	_, err = UnwrapKey(priv, wrapped)
	require.NoError(t, err)
}

func TestDecodeImportPublicKey(t *testing.T) {
	_, pubPEM, err := GenerateRSAKeyPair(2048)
	require.NoError(t, err)

	tests := []struct {
		name    string
		input   []byte
		wantErr bool
	}{
		{"raw PEM", pubPEM, false},
		{"hex PEM", []byte(hex.EncodeToString(pubPEM)), false},
		{"quoted hex PEM", []byte(`"` + hex.EncodeToString(pubPEM) + `"`), false},
		{"empty", []byte("  \n"), true},
		{"hex of garbage", []byte("deadbeef"), true},
		{"not hex", []byte("zz"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeImportPublicKey(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidPublicKey)
				return
			}
			require.NoError(t, err)
			_, err = ParseRSAPublicKeyPEM(got)
			require.NoError(t, err)
		})
	}
}

func TestDecryptEnvelopeRejectsMalformed(t *testing.T) {
	key := make([]byte, SymmetricKeySize)

	_, err := DecryptEnvelope(key, "zz")
	require.ErrorIs(t, err, ErrMalformedEnvelope)

	_, err = DecryptEnvelope(key, "00000008"+strings.Repeat("00", 8))
	require.ErrorIs(t, err, ErrMalformedEnvelope)

	_, err = DecryptEnvelope(key, "0000000c"+strings.Repeat("00", 12)+"0011")
	require.ErrorIs(t, err, ErrMalformedEnvelope)
}
