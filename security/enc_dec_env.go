/*
Package security provides AES-256-GCM encryption and decryption utilities
for secrets at rest: webhook authentication credentials, and any other
small byte payloads that must not be stored in plaintext in Postgres.

The password is hashed with SHA-256 to derive a 32-byte key suitable for
AES-256. It uses AES in Galois/Counter Mode (GCM) to provide both
confidentiality and integrity.

Usage Example:

	ciphertext, err := security.Encrypt("mysecret", []byte("webhook-bearer-token"))
	if err != nil {
	    log.Fatal(err)
	}

	plaintext, err := security.Decrypt("mysecret", ciphertext)
	if err != nil {
	    log.Fatal(err)
	}

The resulting ciphertext contains both the nonce and the encrypted data.
The nonce is randomly generated for each encryption operation.
*/
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"os"
)

// Encrypt encrypts plaintext using AES-256-GCM with a key derived from
// pass via SHA-256. The returned slice is nonce||ciphertext.
func Encrypt(pass string, plaintext []byte) ([]byte, error) {
	aesGCM, err := newGCM(pass)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return aesGCM.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt, splitting the nonce off the front of
// ciphertext and verifying integrity during decryption.
func Decrypt(pass string, ciphertext []byte) ([]byte, error) {
	aesGCM, err := newGCM(pass)
	if err != nil {
		return nil, err
	}

	nonceSize := aesGCM.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ct := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return aesGCM.Open(nil, nonce, ct, nil)
}

func newGCM(pass string) (cipher.AEAD, error) {
	key := sha256.Sum256([]byte(pass)) // 32 bytes = AES-256 key
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptFile encrypts a plaintext file to a ciphertext file using
// Encrypt, for the config-loader's env-file-at-rest use case.
func EncryptFile(pass, inputPath, outputPath string) error {
	plaintext, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	ciphertext, err := Encrypt(pass, plaintext)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, ciphertext, 0600)
}

// DecryptFile reverses EncryptFile using Decrypt.
func DecryptFile(pass, inputPath, outputPath string) error {
	ciphertext, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	plaintext, err := Decrypt(pass, ciphertext)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, plaintext, 0600)
}
