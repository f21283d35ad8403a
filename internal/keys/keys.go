// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package keys loads per-file decryption keys from a directory of plain-text
// files. Each file holds one hex-encoded AES key; the filename (minus any
// extension) is the input file stem the key applies to.
package keys

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Load reads all key files in dir and returns a map of input stem to key
// bytes. A missing directory is not an error; Load returns an empty map.
// Files that do not decode as hex or have a non-AES key length produce a
// warning on stderr but do not abort.
func Load(dir string) (map[string][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]byte{}, nil
		}
		return nil, fmt.Errorf("reading key directory %s: %w", dir, err)
	}

	keys := make(map[string][]byte)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not read key %s: %v\n", name, err)
			continue
		}

		key, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: key %s is not valid hex: %v\n", name, err)
			continue
		}
		switch len(key) {
		case 16, 24, 32:
		default:
			fmt.Fprintf(os.Stderr, "warning: key %s has invalid length %d\n", name, len(key))
			continue
		}

		stem := strings.TrimSuffix(name, filepath.Ext(name))
		keys[stem] = key
	}

	return keys, nil
}
