// Package canonical produces the reproducible digests that bind a provenance
// record to its raw materials.
//
// All digests are SHA-256 over exact UTF-8 bytes, rendered as lowercase hex
// with a fixed "0x" prefix. No normalization (trimming, case folding) is ever
// applied to text inputs; callers must supply the same bytes that were hashed
// at signing time or comparison will legitimately fail.
//
// Digest functions are pure and total: they never return an error for
// malformed input. Deciding that a missing or placeholder value becomes the
// all-zero sentinel is the caller's policy, expressed through ToFixedWidth.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// DigestHexLen is the width of a rendered digest without the 0x prefix.
const DigestHexLen = 64

// ZeroDigest marks a digest field that is intentionally unbound. It is
// distinguishable from any real SHA-256 output with overwhelming probability.
const ZeroDigest = "0x0000000000000000000000000000000000000000000000000000000000000000"

// PlaceholderProgramHash is the literal token some prover hosts leave in a
// journal when the program identity is meant to be filled in later. It maps
// to ZeroDigest. This is a compatibility shim for the current prover
// contract, not a general convention.
const PlaceholderProgramHash = "<FILLED_BY_HOST>"

// DigestText returns the 0x-prefixed lowercase hex SHA-256 of the UTF-8
// bytes of text.
func DigestText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "0x" + hex.EncodeToString(sum[:])
}

// DigestJSON digests the canonical JSON encoding of v.
//
// encoding/json sorts map keys, which is what makes map-typed inputs
// independent of insertion order. Slice order is preserved as given.
func DigestJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Only unsupported value types can land here; an unbindable value is
		// reported as unbound rather than a panic.
		return ZeroDigest
	}
	return DigestText(string(b))
}

// DigestParams merges params over the default generation parameters
// (temperature=0, top_p=1; caller values win) and digests the canonical JSON
// form. Two parameter maps equal as key/value sets digest identically
// regardless of how they were assembled.
func DigestParams(params map[string]any) string {
	merged := map[string]any{
		"temperature": 0,
		"top_p":       1,
	}
	for k, v := range params {
		merged[k] = v
	}
	return DigestJSON(merged)
}

// ToFixedWidth normalizes a digest that may arrive as raw hex,
// "sha256:"-prefixed, or already 0x-prefixed into the fixed 64-hex-char form,
// lowercased and left-padded. Empty input, the placeholder token, or anything
// that is not hex of at most 64 chars maps to ZeroDigest.
func ToFixedWidth(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == PlaceholderProgramHash {
		return ZeroDigest
	}
	s = strings.TrimPrefix(s, "sha256:")
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	s = strings.ToLower(s)
	if len(s) == 0 || len(s) > DigestHexLen {
		return ZeroDigest
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return ZeroDigest
		}
	}
	return "0x" + strings.Repeat("0", DigestHexLen-len(s)) + s
}

// IsZero reports whether s is the unbound sentinel.
func IsZero(s string) bool { return s == ZeroDigest }
