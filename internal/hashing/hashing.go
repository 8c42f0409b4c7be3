// Package hashing computes content digests of local files.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// readBufferSize bounds how much of a file is resident during hashing.
const readBufferSize = 64 * 1024

// FileDigest returns the lowercase hex SHA-256 digest of the file at
// path, reading in bounded chunks. Directories are rejected.
func FileDigest(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat file for hashing: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("hash target is a directory: %s", path)
	}

	f, err := os.Open(path) //nolint:gosec // G304 - path from launcher home
	if err != nil {
		return "", fmt.Errorf("open file for hashing: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	buf := make([]byte, readBufferSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("read file for hashing: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
