// Package cryptoutils provides the cryptographic operations of the BKPS admin client.
//
// Configuration secrets submitted in ENCRYPTED import mode are protected with a
// hybrid scheme bound to the service's current import public key:
//
//   - One fresh AES-256 key per submission
//   - AES-GCM with a random 96-bit nonce per field and a 128-bit tag
//   - RSA-OAEP with SHA-384 (hash and MGF1) to wrap the AES key
//
// # Key Functions
//
// # NewHybridEncryptor - Creates an encryptor for a PEM RSA public key
//
// # HybridEncryptor.EncryptHex - Encrypts the raw bytes of a hex field value
//
// # HybridEncryptor.WrappedKey - Returns the wrapped AES key, identical for every field
//
// # Encryption Format
//
// Each protected field is hex encoded from this binary layout:
//
//	[nonce length (4 bytes)][nonce (12 bytes)][ciphertext][tag (16 bytes)]
//
// Where the nonce length is a uint32 in big-endian format.
//
// # Credentials
//
// The package also loads the mTLS material used by the transport: the CA
// bundle, and the client certificate and key. Passphrase protected keys are
// rejected with interfaces.ErrEncryptedPrivateKey rather than prompting.
//
// # Usage Example
//
//	keyPEM, err := cryptoutils.DecodeImportPublicKey(responseBody)
//	if err != nil {
//	    return err
//	}
//
//	encryptor, err := cryptoutils.NewHybridEncryptor(keyPEM)
//	if err != nil {
//	    return err
//	}
//	defer encryptor.Destroy()
//
//	ciphertext, err := encryptor.EncryptHex(aesKeyHex)
//	if err != nil {
//	    return err
//	}
//	wrappedKey, err := encryptor.WrappedKey()
package cryptoutils
