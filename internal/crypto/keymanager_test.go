package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptKey(t *testing.T) {
	blob, err := EncryptKey("0x"+testKeyHex, "correct horse")
	require.NoError(t, err)
	assert.Contains(t, string(blob), testAddress)

	got, err := DecryptKey(blob, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)

	_, err = DecryptKey(blob, "wrong")
	require.Error(t, err)
}

func TestEncryptKeyValidation(t *testing.T) {
	_, err := EncryptKey(testKeyHex, "")
	require.Error(t, err)

	_, err = EncryptKey("abcd", "pw")
	require.Error(t, err)
}

func TestLoadSignerFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "wallet.json")
	require.NoError(t, WriteKeyFile(path, testKeyHex, "pw"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	s, err := LoadSigner(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, testAddress, s.Address().Hex())
}

func TestLoadKeyPrefersRaw(t *testing.T) {
	k, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex, EncryptedKeyPath: "/does/not/exist"})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, k)

	_, err = LoadKey(KeyConfig{})
	require.Error(t, err)
	assert.False(t, KeyConfig{}.Configured())
}

func TestQuoteSigner(t *testing.T) {
	_, err := NewQuoteSigner("short")
	require.Error(t, err)

	qs, err := NewQuoteSigner("0123456789abcdef-secret")
	require.NoError(t, err)

	id := qs.NewQuoteID()
	assert.True(t, qs.Verify(id))
	assert.NotEqual(t, id, qs.NewQuoteID())

	other, err := NewQuoteSigner("another-secret-of-enough-length")
	require.NoError(t, err)
	assert.False(t, other.Verify(id))

	assert.False(t, qs.Verify("no-dot"))
	assert.False(t, qs.Verify("not-a-uuid."+"abc"))
	assert.False(t, qs.Verify(id+"x"))
}
