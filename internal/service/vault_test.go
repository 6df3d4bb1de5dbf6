package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"testing"

	apperrors "github.com/finbridge/tradegate/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/scrypt"
)

func TestVaultRoundTrip(t *testing.T) {
	vault := NewVault("test-master-key-0123456789abcdef")

	envelope, err := vault.Encrypt("my-broker-api-key")
	require.NoError(t, err)
	require.Len(t, strings.Split(envelope, ":"), 4)

	plaintext, err := vault.Decrypt(envelope)
	require.NoError(t, err)
	assert.Equal(t, "my-broker-api-key", plaintext)
}

func TestVaultEnvelopesAreUnique(t *testing.T) {
	vault := NewVault("test-master-key-0123456789abcdef")

	first, err := vault.Encrypt("same-secret")
	require.NoError(t, err)
	second, err := vault.Encrypt("same-secret")
	require.NoError(t, err)

	// fresh salt and nonce every call
	assert.NotEqual(t, first, second)
}

func TestVaultTamperedCiphertext(t *testing.T) {
	vault := NewVault("test-master-key-0123456789abcdef")

	envelope, err := vault.Encrypt("secret")
	require.NoError(t, err)

	parts := strings.Split(envelope, ":")
	// flip a nibble in the ciphertext
	ct := []byte(parts[3])
	if ct[0] == 'a' {
		ct[0] = 'b'
	} else {
		ct[0] = 'a'
	}
	parts[3] = string(ct)

	_, err = vault.Decrypt(strings.Join(parts, ":"))
	assert.ErrorIs(t, err, apperrors.ErrVaultTampered)
}

func TestVaultWrongMasterKey(t *testing.T) {
	envelope, err := NewVault("master-key-one-0123456789abcdef0").Encrypt("secret")
	require.NoError(t, err)

	_, err = NewVault("master-key-two-0123456789abcdef0").Decrypt(envelope)
	assert.ErrorIs(t, err, apperrors.ErrVaultTampered)
}

func TestVaultMalformedEnvelopes(t *testing.T) {
	vault := NewVault("test-master-key-0123456789abcdef")

	for _, envelope := range []string{
		"",
		"not-an-envelope",
		"one:two",
		"a:b:c:d:e",
		"zz:zz:zz:zz", // invalid hex
	} {
		_, err := vault.Decrypt(envelope)
		assert.ErrorIs(t, err, apperrors.ErrVaultTampered, "envelope %q", envelope)
	}
}

func TestVaultDecryptsLegacyEnvelope(t *testing.T) {
	vault := NewVault("test-master-key-0123456789abcdef")

	// build a three-field envelope the way the old format did: fixed
	// salt, nonce:tag:ciphertext
	key, err := scrypt.Key([]byte("test-master-key-0123456789abcdef"), legacySalt, scryptN, scryptR, scryptP, keySize)
	require.NoError(t, err)

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)

	nonce := make([]byte, vaultNonceSize)
	_, err = rand.Read(nonce)
	require.NoError(t, err)

	sealed := gcm.Seal(nil, nonce, []byte("legacy-secret"), nil)
	ciphertext := sealed[:len(sealed)-vaultTagSize]
	tag := sealed[len(sealed)-vaultTagSize:]

	envelope := hex.EncodeToString(nonce) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ciphertext)

	plaintext, err := vault.Decrypt(envelope)
	require.NoError(t, err)
	assert.Equal(t, "legacy-secret", plaintext)
}

func TestHashAPIKeyIsStable(t *testing.T) {
	first := HashAPIKey("some-api-key")
	second := HashAPIKey("some-api-key")

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
	assert.NotEqual(t, first, HashAPIKey("other-api-key"))
}
