package crypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() Key {
	var k Key
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func TestIsEncrypted(t *testing.T) {
	assert.True(t, IsEncrypted(`<encrypted v="1">abc123</encrypted>`))
	assert.True(t, IsEncrypted(`  <encrypted v="1">abc123</encrypted>  `))
	assert.False(t, IsEncrypted("plaintext"))
	assert.False(t, IsEncrypted("<encrypted>missing version</encrypted>"))
	assert.False(t, IsEncrypted(`<encrypted v="1">no closing tag`))
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	key := testKey()
	plaintext := "my-secret-api-key-12345"

	encrypted, err := EncryptValue(key, plaintext)
	require.NoError(t, err)
	assert.True(t, IsEncrypted(encrypted))
	assert.Contains(t, encrypted, `<encrypted v="1">`)

	decrypted, err := DecryptValue(key, encrypted)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestPlaintextPassthrough(t *testing.T) {
	key := testKey()
	result, err := DecryptValue(key, "not-encrypted-value")
	require.NoError(t, err)
	assert.Equal(t, "not-encrypted-value", result)
}

func TestNoDoubleEncrypt(t *testing.T) {
	key := testKey()
	encrypted, err := EncryptValue(key, "secret")
	require.NoError(t, err)

	double, err := EncryptValue(key, encrypted)
	require.NoError(t, err)
	assert.Equal(t, encrypted, double)
}

func TestDifferentEncryptionsDiffer(t *testing.T) {
	key := testKey()
	e1, err := EncryptValue(key, "same-data")
	require.NoError(t, err)
	e2, err := EncryptValue(key, "same-data")
	require.NoError(t, err)
	assert.NotEqual(t, e1, e2)

	d1, err := DecryptValue(key, e1)
	require.NoError(t, err)
	d2, err := DecryptValue(key, e2)
	require.NoError(t, err)
	assert.Equal(t, "same-data", d1)
	assert.Equal(t, "same-data", d2)
}

func TestWrongKeyFails(t *testing.T) {
	key1 := testKey()
	key2 := testKey()
	key2[0] = 255

	encrypted, err := EncryptValue(key1, "secret")
	require.NoError(t, err)

	_, err = DecryptValue(key2, encrypted)
	assert.Error(t, err)
}

func TestParseKeyHex(t *testing.T) {
	hexKey := "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	key, err := ParseKey(hexKey)
	require.NoError(t, err)
	for i := range key {
		assert.Equal(t, byte(i), key[i])
	}
}

func TestParseKeyBase64(t *testing.T) {
	key := testKey()
	parsed, err := ParseKey(base64.StdEncoding.EncodeToString(key[:]))
	require.NoError(t, err)
	assert.Equal(t, key, parsed)
}

func TestParseKeyInvalid(t *testing.T) {
	_, err := ParseKey("abc")
	assert.Error(t, err)
	_, err = ParseKey("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz")
	assert.Error(t, err)
}

func TestEncryptDecryptEnvVars(t *testing.T) {
	key := testKey()
	env := map[string]string{
		"API_KEY":     "secret-api-key",
		"DB_PASSWORD": "db-pass-123",
	}
	encrypted, err := EncryptEnvVars(key, env)
	require.NoError(t, err)
	for _, v := range encrypted {
		assert.True(t, IsEncrypted(v))
	}

	decrypted, err := DecryptEnvVars(key, encrypted)
	require.NoError(t, err)
	assert.Equal(t, "secret-api-key", decrypted["API_KEY"])
	assert.Equal(t, "db-pass-123", decrypted["DB_PASSWORD"])
}

func TestIsUnversionedEncrypted(t *testing.T) {
	assert.True(t, IsUnversionedEncrypted("<encrypted>secret</encrypted>"))
	assert.False(t, IsUnversionedEncrypted(`<encrypted v="1">secret</encrypted>`))
	assert.False(t, IsUnversionedEncrypted("plaintext"))
}

func TestEncryptDecryptContentTags(t *testing.T) {
	key := testKey()
	content := "Hello, here is my key: <encrypted>sk-12345</encrypted> and more text."

	encrypted, err := EncryptContentTags(key, content)
	require.NoError(t, err)
	assert.Contains(t, encrypted, `<encrypted v="1">`)
	assert.NotContains(t, encrypted, "<encrypted>sk-12345</encrypted>")
	assert.True(t, strings.HasPrefix(encrypted, "Hello, here is my key: "))

	decrypted, err := DecryptContentTags(key, encrypted)
	require.NoError(t, err)
	assert.Equal(t, content, decrypted)
}

func TestEncryptDecryptMultipleTags(t *testing.T) {
	key := testKey()
	content := "API keys:\n- OpenAI: <encrypted>sk-openai-key</encrypted>\n- Anthropic: <encrypted>sk-ant-key</encrypted>\n\nUse them wisely.\n"

	encrypted, err := EncryptContentTags(key, content)
	require.NoError(t, err)
	assert.NotContains(t, encrypted, "<encrypted>sk-openai-key</encrypted>")
	assert.NotContains(t, encrypted, "<encrypted>sk-ant-key</encrypted>")

	decrypted, err := DecryptContentTags(key, encrypted)
	require.NoError(t, err)
	assert.Equal(t, content, decrypted)
}

func TestAlreadyEncryptedPassthrough(t *testing.T) {
	key := testKey()
	content := `Already encrypted: <encrypted v="1">abc123</encrypted>`
	result, err := EncryptContentTags(key, content)
	require.NoError(t, err)
	assert.Equal(t, content, result)
}

func TestHasEncryptedTags(t *testing.T) {
	assert.True(t, HasEncryptedTags("text <encrypted>secret</encrypted> more"))
	assert.True(t, HasEncryptedTags(`text <encrypted v="1">ciphertext</encrypted> more`))
	assert.False(t, HasEncryptedTags("plain text without any tags"))
}

func TestStripContentTags(t *testing.T) {
	content := "Keys:\n- OpenAI: <encrypted>sk-openai</encrypted>\n- Anthropic: <encrypted v=\"1\">sk-ant-encrypted</encrypted>\n- Plain: not-encrypted\n"
	stripped := StripContentTags(content)
	assert.Equal(t, "Keys:\n- OpenAI: sk-openai\n- Anthropic: sk-ant-encrypted\n- Plain: not-encrypted\n", stripped)
}

func TestFullEncryptionFlowWithStrip(t *testing.T) {
	key := testKey()
	userInput := "Key: <encrypted>my-secret-api-key</encrypted>"

	stored, err := EncryptContentTags(key, userInput)
	require.NoError(t, err)
	assert.Contains(t, stored, `<encrypted v="1">`)

	displayed, err := DecryptContentTags(key, stored)
	require.NoError(t, err)
	assert.Equal(t, userInput, displayed)

	deployed := StripContentTags(displayed)
	assert.Equal(t, "Key: my-secret-api-key", deployed)
}
