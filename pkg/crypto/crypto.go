package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
)

const (
	nonceLength       = 12
	encryptionVersion = "1"
	encryptedPrefix   = `<encrypted v="`
	encryptedSuffix   = `</encrypted>`
)

// IsEncrypted reports whether value carries the versioned storage wrapper.
func IsEncrypted(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, encryptedPrefix) && strings.HasSuffix(trimmed, encryptedSuffix)
}

// IsUnversionedEncrypted reports whether value carries the bare
// <encrypted>...</encrypted> user-input wrapper, distinct from the
// versioned storage form.
func IsUnversionedEncrypted(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "<encrypted>") &&
		strings.HasSuffix(trimmed, "</encrypted>") &&
		!strings.Contains(trimmed, ` v="`)
}

func parseEncrypted(value string) (version, payload string, ok bool) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, encryptedPrefix) || !strings.HasSuffix(trimmed, encryptedSuffix) {
		return "", "", false
	}
	afterPrefix := trimmed[len(encryptedPrefix):]
	versionEnd := strings.Index(afterPrefix, `">`)
	if versionEnd < 0 {
		return "", "", false
	}
	version = afterPrefix[:versionEnd]
	payloadStart := len(encryptedPrefix) + versionEnd + 2
	payloadEnd := len(trimmed) - len(encryptedSuffix)
	if payloadStart > payloadEnd {
		return "", "", false
	}
	return version, trimmed[payloadStart:payloadEnd], true
}

func seal(key Key, plaintext []byte) (string, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}
	nonce := make([]byte, nonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	combined := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(combined), nil
}

func open(key Key, payloadB64 string) ([]byte, error) {
	combined, err := base64.StdEncoding.DecodeString(payloadB64)
	if err != nil {
		return nil, fmt.Errorf("decode encrypted value: %w", err)
	}
	if len(combined) < nonceLength {
		return nil, fmt.Errorf("encrypted value too short")
	}
	nonce, ciphertext := combined[:nonceLength], combined[nonceLength:]

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: invalid key or corrupted data")
	}
	return plaintext, nil
}

// EncryptValue wraps plaintext in the versioned storage format
// `<encrypted v="1">BASE64(nonce||ciphertext)</encrypted>`. An
// already-wrapped value is returned unchanged (no double-encryption).
func EncryptValue(key Key, plaintext string) (string, error) {
	if IsEncrypted(plaintext) {
		return plaintext, nil
	}
	payload, err := seal(key, []byte(plaintext))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`<encrypted v="%s">%s</encrypted>`, encryptionVersion, payload), nil
}

// DecryptValue unwraps a versioned storage value. Plaintext (unwrapped)
// values pass through unchanged, matching the legacy behaviour.
func DecryptValue(key Key, value string) (string, error) {
	version, payload, ok := parseEncrypted(value)
	if !ok {
		return value, nil
	}
	if version != encryptionVersion {
		return "", fmt.Errorf("unsupported encryption version: %s (expected %s)", version, encryptionVersion)
	}
	plaintext, err := open(key, payload)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// EncryptEnvVars encrypts every value of env, leaving already-encrypted
// values and keys untouched.
func EncryptEnvVars(key Key, env map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(env))
	for k, v := range env {
		enc, err := EncryptValue(key, v)
		if err != nil {
			return nil, fmt.Errorf("encrypt %s: %w", k, err)
		}
		out[k] = enc
	}
	return out, nil
}

// DecryptEnvVars decrypts every value of env, passing plaintext through.
func DecryptEnvVars(key Key, env map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(env))
	for k, v := range env {
		dec, err := DecryptValue(key, v)
		if err != nil {
			return nil, fmt.Errorf("decrypt %s: %w", k, err)
		}
		out[k] = dec
	}
	return out, nil
}

// Content-tag regexes: the unversioned form is the user-input format typed
// into skill markdown; the versioned form is what gets stored on disk.
var (
	unversionedTagRegex = regexp.MustCompile(`<encrypted>([^<]*)</encrypted>`)
	versionedTagRegex   = regexp.MustCompile(`<encrypted v="(\d+)">([^<]*)</encrypted>`)
	anyTagRegex         = regexp.MustCompile(`<encrypted(?:\s+v="\d+")?>([^<]*)</encrypted>`)
)

// HasEncryptedTags reports whether content contains any encrypted marker,
// versioned or unversioned.
func HasEncryptedTags(content string) bool {
	return strings.Contains(content, "<encrypted>") || strings.Contains(content, `<encrypted v="`)
}

// StripContentTags removes every encrypted wrapper from content, leaving
// only the inner value. Used when deploying a skill to a harness tree after
// decryption has already happened.
func StripContentTags(content string) string {
	return anyTagRegex.ReplaceAllString(content, "$1")
}

// EncryptContentTags transforms every unversioned
// `<encrypted>plaintext</encrypted>` marker in content into the versioned
// storage form `<encrypted v="1">ciphertext</encrypted>`.
func EncryptContentTags(key Key, content string) (string, error) {
	matches := unversionedTagRegex.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return content, nil
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		fullStart, fullEnd := m[0], m[1]
		plainStart, plainEnd := m[2], m[3]
		plaintext := content[plainStart:plainEnd]

		encrypted, err := EncryptValue(key, plaintext)
		if err != nil {
			return "", err
		}

		b.WriteString(content[last:fullStart])
		b.WriteString(encrypted)
		last = fullEnd
	}
	b.WriteString(content[last:])
	return b.String(), nil
}

// DecryptContentTags transforms every versioned
// `<encrypted v="N">ciphertext</encrypted>` marker in content into the
// unversioned display form `<encrypted>plaintext</encrypted>`.
func DecryptContentTags(key Key, content string) (string, error) {
	matches := versionedTagRegex.FindAllStringIndex(content, -1)
	if len(matches) == 0 {
		return content, nil
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		fullStart, fullEnd := m[0], m[1]
		fullMatch := content[fullStart:fullEnd]

		plaintext, err := DecryptValue(key, fullMatch)
		if err != nil {
			return "", err
		}
		displayTag := fmt.Sprintf("<encrypted>%s</encrypted>", plaintext)

		b.WriteString(content[last:fullStart])
		b.WriteString(displayTag)
		last = fullEnd
	}
	b.WriteString(content[last:])
	return b.String(), nil
}
