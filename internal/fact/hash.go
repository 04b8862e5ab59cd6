package fact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for digest computation. The version suffix enables
// future algorithm migration without ambiguity between old and new packs.
const (
	DomainManifest = "receipts/manifest/v1"
	DomainParams   = "receipts/params/v1"
	DomainRecord   = "receipts/record/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest canonically marshals v and returns its domain-separated SHA-256
// hex digest. The same value always digests to the same string; any
// single-field change produces a different one.
func Digest(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// DigestBytes returns the domain-separated SHA-256 hex digest of raw bytes.
// Used for signing input that has already been canonically marshaled.
func DigestBytes(domain string, data []byte) string {
	return hashWithDomain(domain, data)
}

// MustDigest is like Digest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustDigest(domain string, v any) string {
	d, err := Digest(domain, v)
	if err != nil {
		panic(err)
	}
	return d
}
