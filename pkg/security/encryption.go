package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

var (
	ErrInvalidKeySize = errors.New("invalid key size")
	ErrEncryption     = errors.New("encryption failed")
	ErrDecryption     = errors.New("decryption failed")
)

const (
	keyLength  = 32
	saltLength = 16
	kdfRounds  = 100_000
)

// Encryptor provides a generic interface for encryption/decryption
type Encryptor interface {
	Encrypt(data []byte) ([]byte, error)
	Decrypt(data []byte) ([]byte, error)
	EncryptString(plaintext string) (string, error)
	DecryptString(ciphertext string) (string, error)
}

// NewEncryptor creates an AES-GCM encryptor whose key is derived from a
// secret with PBKDF2. A fresh salt is drawn per encryption and stored in
// front of the ciphertext, so rotating the secret only requires re-encrypting
// stored credentials.
func NewEncryptor(secret string) (Encryptor, error) {
	if secret == "" {
		return nil, ErrInvalidKeySize
	}
	return &aesEncryptor{secret: []byte(secret)}, nil
}

type aesEncryptor struct {
	secret []byte
}

func (a *aesEncryptor) gcm(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(a.secret, salt, kdfRounds, keyLength, sha512.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrInvalidKeySize
	}

	return cipher.NewGCM(block)
}

func (a *aesEncryptor) Encrypt(data []byte) ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, ErrEncryption
	}

	gcm, err := a.gcm(salt)
	if err != nil {
		return nil, ErrEncryption
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, ErrEncryption
	}

	out := make([]byte, 0, saltLength+len(nonce)+len(data)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, nil), nil
}

func (a *aesEncryptor) Decrypt(data []byte) ([]byte, error) {
	if len(data) < saltLength {
		return nil, ErrDecryption
	}

	salt, rest := data[:saltLength], data[saltLength:]
	gcm, err := a.gcm(salt)
	if err != nil {
		return nil, ErrDecryption
	}

	nonceSize := gcm.NonceSize()
	if len(rest) < nonceSize {
		return nil, ErrDecryption
	}

	nonce, ciphertext := rest[:nonceSize], rest[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryption
	}

	return plaintext, nil
}

// EncryptString encrypts text and returns it base64-encoded for storage in
// a text column.
func (a *aesEncryptor) EncryptString(plaintext string) (string, error) {
	encrypted, err := a.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(encrypted), nil
}

func (a *aesEncryptor) DecryptString(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecryption
	}

	plaintext, err := a.Decrypt(raw)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
