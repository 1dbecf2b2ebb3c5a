package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsurePrivateKeyFromEnv(t *testing.T) {
	key := testKey()
	p, err := EnsurePrivateKey(key.Hex(), "", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, key, p.Key())
}

func TestEnsurePrivateKeyGeneratesAndPersists(t *testing.T) {
	dir := t.TempDir()
	os.Unsetenv(PrivateKeyEnv)

	p, err := EnsurePrivateKey("", "", dir)
	require.NoError(t, err)

	keyFile := filepath.Join(dir, ".openagent", "private_key")
	contents, err := os.ReadFile(keyFile)
	require.NoError(t, err)
	assert.Equal(t, p.Hex(), string(contents))
	assert.Equal(t, p.Hex(), os.Getenv(PrivateKeyEnv))

	os.Unsetenv(PrivateKeyEnv)
}

func TestEnsurePrivateKeyReadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	os.Unsetenv(PrivateKeyEnv)

	keyFile := filepath.Join(dir, ".openagent", "private_key")
	require.NoError(t, os.MkdirAll(filepath.Dir(keyFile), 0o700))
	key := testKey()
	require.NoError(t, os.WriteFile(keyFile, []byte(key.Hex()), 0o600))

	p, err := EnsurePrivateKey("", "", dir)
	require.NoError(t, err)
	assert.Equal(t, key, p.Key())

	os.Unsetenv(PrivateKeyEnv)
}

func TestEnsurePrivateKeyExplicitFile(t *testing.T) {
	dir := t.TempDir()
	os.Unsetenv(PrivateKeyEnv)
	keyFile := filepath.Join(dir, "custom_key")

	p1, err := EnsurePrivateKey("", keyFile, dir)
	require.NoError(t, err)

	contents, err := os.ReadFile(keyFile)
	require.NoError(t, err)
	assert.Equal(t, p1.Hex(), string(contents))

	os.Unsetenv(PrivateKeyEnv)
}

func TestParseKeyRoundTripsGeneratedKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	parsed, err := ParseKey(key.Hex())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)
}
