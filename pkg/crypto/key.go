// Package crypto implements the host's AES-256-GCM encryption primitives:
// the versioned env-var wrapper and the unversioned in-content marker used
// by skill markdown, plus the process-wide key lifecycle.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sandboxed-sh/openagent/internal/logging"
)

const (
	// KeyLength is the AES-256 key size in bytes.
	KeyLength = 32

	// PrivateKeyEnv is the environment variable carrying key material.
	PrivateKeyEnv = "PRIVATE_KEY"
)

// Key is a 32-byte AES-256 key.
type Key [KeyLength]byte

// ParseKey accepts a key as 64 hex digits or standard base64, per spec.
func ParseKey(s string) (Key, error) {
	var key Key
	trimmed := strings.TrimSpace(s)

	if len(trimmed) == KeyLength*2 && isHex(trimmed) {
		b, err := hex.DecodeString(trimmed)
		if err != nil {
			return key, fmt.Errorf("invalid hex key: %w", err)
		}
		copy(key[:], b)
		return key, nil
	}

	b, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return key, fmt.Errorf("key is neither valid hex nor base64: %w", err)
	}
	if len(b) != KeyLength {
		return key, fmt.Errorf("key must be %d bytes, got %d", KeyLength, len(b))
	}
	copy(key[:], b)
	return key, nil
}

func isHex(s string) bool {
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return false
		}
	}
	return true
}

// GenerateKey returns a fresh random 32-byte key.
func GenerateKey() (Key, error) {
	var key Key
	if _, err := rand.Read(key[:]); err != nil {
		return key, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// Hex returns the key as 64 lowercase hex digits.
func (k Key) Hex() string {
	return hex.EncodeToString(k[:])
}

// Provider is the process-wide key lifecycle: an explicit singleton
// initialised once at startup and threaded into every subsystem that needs
// encryption, rather than a lazily-read package-level global.
type Provider struct {
	key Key
}

// EnsurePrivateKey implements the startup key lifecycle: env var, then key
// file, then generate-and-persist. workingDir and privateKeyFile mirror the
// WORKING_DIR / PRIVATE_KEY_FILE environment variables; envKey mirrors
// PRIVATE_KEY.
func EnsurePrivateKey(envKey, privateKeyFile, workingDir string) (*Provider, error) {
	if strings.TrimSpace(envKey) != "" {
		key, err := ParseKey(envKey)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", PrivateKeyEnv, err)
		}
		logging.Debug(logging.CompCrypto, "using %s from environment", PrivateKeyEnv)
		return &Provider{key: key}, nil
	}

	keyFile := privateKeyFilePath(privateKeyFile, workingDir)

	if contents, err := os.ReadFile(keyFile); err == nil {
		trimmed := strings.TrimSpace(string(contents))
		if trimmed != "" {
			key, err := ParseKey(trimmed)
			if err != nil {
				return nil, fmt.Errorf("invalid key in %s: %w", keyFile, err)
			}
			os.Setenv(PrivateKeyEnv, trimmed)
			logging.Info(logging.CompCrypto, "loaded %s from %s", PrivateKeyEnv, keyFile)
			return &Provider{key: key}, nil
		}
		logging.Warn(logging.CompCrypto, "private key file %s exists but is empty", keyFile)
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	keyHex := key.Hex()

	if err := os.MkdirAll(filepath.Dir(keyFile), 0o700); err != nil {
		return nil, fmt.Errorf("create directory for %s: %w", keyFile, err)
	}
	if err := os.WriteFile(keyFile, []byte(keyHex), 0o600); err != nil {
		return nil, fmt.Errorf("write %s: %w", keyFile, err)
	}
	os.Setenv(PrivateKeyEnv, keyHex)
	logging.Info(logging.CompCrypto, "generated new %s and saved to %s", PrivateKeyEnv, keyFile)

	return &Provider{key: key}, nil
}

func privateKeyFilePath(explicit, workingDir string) string {
	if explicit != "" {
		return explicit
	}
	if workingDir == "" {
		workingDir = "/root"
	}
	return filepath.Join(workingDir, ".openagent", "private_key")
}

// Key returns the active key.
func (p *Provider) Key() Key {
	return p.key
}

// Hex returns the active key's hex-encoded backup form.
func (p *Provider) Hex() string {
	return p.key.Hex()
}
