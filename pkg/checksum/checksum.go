// Package checksum computes the SHA-256 digests recorded alongside archived
// audit batches, so an archive object can later be checked against the digest
// logged when it was written.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// SumBytes returns the hex SHA-256 of data
func SumBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CalculateSHA256 returns the hex SHA-256 of everything read from reader
func CalculateSHA256(reader io.Reader) (string, error) {
	hasher := sha256.New()
	if _, err := io.Copy(hasher, reader); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// VerifySHA256 reports whether the content of reader hashes to expected.
// The comparison ignores hex case.
func VerifySHA256(reader io.Reader, expected string) (bool, error) {
	actual, err := CalculateSHA256(reader)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(actual, expected), nil
}
