package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix enables future
// algorithm migration without ambiguity against old stored checksums.
const (
	DomainInstance   = "graft/instance/v1"
	DomainConnection = "graft/connection/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte prevents domain/data
// boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DataChecksum computes the content checksum of an instance data map.
// Stable across runs and processes: the map is serialized canonically before
// hashing, so attribute order never affects the result.
func DataChecksum(data map[string]any) (string, error) {
	canonical, err := MarshalCanonical(data)
	if err != nil {
		return "", fmt.Errorf("DataChecksum: %w", err)
	}
	return hashWithDomain(DomainInstance, canonical), nil
}

// ConnectionChecksum computes the checksum of a connection descriptor's data.
// Uses a separate hash domain so a connection descriptor can never collide
// with a source instance carrying the same attribute map.
func ConnectionChecksum(data map[string]any) (string, error) {
	canonical, err := MarshalCanonical(data)
	if err != nil {
		return "", fmt.Errorf("ConnectionChecksum: %w", err)
	}
	return hashWithDomain(DomainConnection, canonical), nil
}

// MustDataChecksum is like DataChecksum but panics on error.
// Use only in tests or when inputs are known to be hashable.
func MustDataChecksum(data map[string]any) string {
	sum, err := DataChecksum(data)
	if err != nil {
		panic(err)
	}
	return sum
}
