package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	apperrors "github.com/finbridge/tradegate/internal/errors"
	"golang.org/x/crypto/scrypt"
)

const (
	vaultSaltSize  = 16
	vaultNonceSize = 12
	vaultTagSize   = 16

	scryptN = 32768
	scryptR = 8
	scryptP = 1
	keySize = 32
)

// legacySalt is the fixed salt of the original envelope format, kept so
// credentials stored before per-envelope salts can still be decrypted.
var legacySalt = []byte("salt")

// Vault encrypts broker credentials at rest with AES-256-GCM. Each
// envelope carries its own random salt and nonce:
//
//	hex(salt):hex(nonce):hex(tag):hex(ciphertext)
//
// A three-field envelope (nonce:tag:ciphertext) is the legacy format
// and decrypts with the fixed salt. Any parse or authentication failure
// surfaces as ErrVaultTampered; plaintext never leaves this package in
// logs or errors.
type Vault struct {
	masterKey []byte
}

func NewVault(masterKey string) *Vault {
	return &Vault{masterKey: []byte(masterKey)}
}

func (v *Vault) deriveKey(salt []byte) ([]byte, error) {
	return scrypt.Key(v.masterKey, salt, scryptN, scryptR, scryptP, keySize)
}

// Encrypt seals plaintext into a fresh four-field envelope.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, vaultSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", apperrors.WrapError(apperrors.ErrInternal, err)
	}

	key, err := v.deriveKey(salt)
	if err != nil {
		return "", apperrors.WrapError(apperrors.ErrInternal, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", apperrors.WrapError(apperrors.ErrInternal, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", apperrors.WrapError(apperrors.ErrInternal, err)
	}

	nonce := make([]byte, vaultNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", apperrors.WrapError(apperrors.ErrInternal, err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-vaultTagSize]
	tag := sealed[len(sealed)-vaultTagSize:]

	return fmt.Sprintf("%s:%s:%s:%s",
		hex.EncodeToString(salt),
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	), nil
}

// Decrypt opens either envelope format.
func (v *Vault) Decrypt(envelope string) (string, error) {
	parts := strings.Split(envelope, ":")

	var salt, nonce, tag, ciphertext []byte
	var err error

	switch len(parts) {
	case 4:
		if salt, err = hex.DecodeString(parts[0]); err != nil {
			return "", apperrors.ErrVaultTampered
		}
		if nonce, tag, ciphertext, err = decodeEnvelopeTail(parts[1], parts[2], parts[3]); err != nil {
			return "", apperrors.ErrVaultTampered
		}
	case 3:
		salt = legacySalt
		if nonce, tag, ciphertext, err = decodeEnvelopeTail(parts[0], parts[1], parts[2]); err != nil {
			return "", apperrors.ErrVaultTampered
		}
	default:
		return "", apperrors.ErrVaultTampered
	}

	if len(nonce) != vaultNonceSize || len(tag) != vaultTagSize {
		return "", apperrors.ErrVaultTampered
	}

	key, err := v.deriveKey(salt)
	if err != nil {
		return "", apperrors.WrapError(apperrors.ErrInternal, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", apperrors.WrapError(apperrors.ErrInternal, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", apperrors.WrapError(apperrors.ErrInternal, err)
	}

	plaintext, err := gcm.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", apperrors.ErrVaultTampered
	}

	return string(plaintext), nil
}

func decodeEnvelopeTail(nonceHex, tagHex, ciphertextHex string) (nonce, tag, ciphertext []byte, err error) {
	if nonce, err = hex.DecodeString(nonceHex); err != nil {
		return nil, nil, nil, err
	}
	if tag, err = hex.DecodeString(tagHex); err != nil {
		return nil, nil, nil, err
	}
	if ciphertext, err = hex.DecodeString(ciphertextHex); err != nil {
		return nil, nil, nil, err
	}
	return nonce, tag, ciphertext, nil
}

// HashAPIKey returns the SHA-256 hex digest of an API key, used for
// uniqueness checks without storing anything reversible.
func HashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}
