package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrGenerateKey(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	first, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	assert.Len(t, first, keyHexSize)

	info, err := os.Stat(filepath.Join(dir, KeyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second, "an existing key is reused")

	_, err = NewTokenService(first, 0)
	assert.NoError(t, err)
}

func TestLoadKey_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, KeyFile)

	require.NoError(t, os.WriteFile(path, []byte("short"), 0o600))
	_, err := LoadKey(path)
	assert.Error(t, err)

	_, err = LoadOrGenerateKey(dir)
	assert.Error(t, err, "a corrupt key is never silently replaced")

	require.NoError(t, os.WriteFile(path, []byte(testKeyHex+"\n"), 0o600))
	got, err := LoadKey(path)
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}
