// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package keys

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKey(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	key16 := bytes.Repeat([]byte{0x01}, 16)
	key32 := bytes.Repeat([]byte{0xAB}, 32)

	writeKey(t, dir, "drive.key", hex.EncodeToString(key32))
	writeKey(t, dir, "trip", hex.EncodeToString(key16)+"\n")
	writeKey(t, dir, "bad-hex.key", "zznothex")
	writeKey(t, dir, "bad-length.key", "abcd")
	writeKey(t, dir, ".hidden", hex.EncodeToString(key16))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "subdir"), 0o755))

	keys, err := Load(dir)
	require.NoError(t, err)

	assert.Len(t, keys, 2)
	assert.Equal(t, key32, keys["drive"])
	assert.Equal(t, key16, keys["trip"])
}

func TestLoad_MissingDir(t *testing.T) {
	keys, err := Load(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, keys)
}
