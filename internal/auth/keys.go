// Package auth issues and verifies the bearer tokens that identify owners.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// KeyFile is the name of the token key inside the data directory.
const KeyFile = "auth.key"

// LoadKey reads a hex-encoded PASETO v4 key from path.
func LoadKey(path string) (string, error) {
	//#nosec G304 -- key path comes from operator configuration
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read auth key: %w", err)
	}

	keyHex := strings.TrimSpace(string(raw))
	if len(keyHex) != keyHexSize {
		return "", fmt.Errorf("invalid auth key length: expected %d hex chars, got %d", keyHexSize, len(keyHex))
	}
	if _, err := hex.DecodeString(keyHex); err != nil {
		return "", fmt.Errorf("invalid auth key format: not valid hex: %w", err)
	}
	return keyHex, nil
}

// LoadOrGenerateKey returns the key stored in <dataPath>/auth.key, creating
// the file with a fresh random key on first start.
func LoadOrGenerateKey(dataPath string) (string, error) {
	keyPath := filepath.Join(dataPath, KeyFile)

	keyHex, err := LoadKey(keyPath)
	if err == nil {
		return keyHex, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	key := make([]byte, keyBytesSize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate auth key: %w", err)
	}
	keyHex = hex.EncodeToString(key)

	if err := os.MkdirAll(dataPath, 0o700); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	// Readers never observe a partially written key.
	tmp := keyPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(keyHex), 0o600); err != nil {
		return "", fmt.Errorf("failed to save auth key: %w", err)
	}
	if err := os.Rename(tmp, keyPath); err != nil {
		return "", fmt.Errorf("failed to save auth key: %w", err)
	}

	return keyHex, nil
}
