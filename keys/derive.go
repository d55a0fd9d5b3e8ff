package keys

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/veritext/veritext/envelope"
)

// SeedSize is the byte length of a signing key seed.
const SeedSize = 32

// KeyFromSeed returns the secp256k1 private key for a 32-byte seed.
func KeyFromSeed(seed []byte) (*secp256k1.PrivateKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes", SeedSize)
	}
	key := secp256k1.PrivKeyFromBytes(seed)
	if key.Key.IsZero() {
		return nil, errors.New("seed maps to the zero scalar")
	}
	return key, nil
}

// AddressFromSeed returns the signer address for a seed.
func AddressFromSeed(seed []byte) (string, error) {
	key, err := KeyFromSeed(seed)
	if err != nil {
		return "", err
	}
	return envelope.AddressFromPub(key.PubKey()), nil
}

// DeriveRoleSeed deterministically derives a role-specific seed from a root
// seed. Derivation is HMAC-SHA256 keyed by the root seed over a versioned
// role label, so role keys can be re-derived from the root alone.
func DeriveRoleSeed(rootSeed []byte, role string) ([]byte, error) {
	if len(rootSeed) != SeedSize {
		return nil, fmt.Errorf("root seed must be %d bytes", SeedSize)
	}
	if err := CheckRole(role); err != nil {
		return nil, err
	}

	mac := hmac.New(sha256.New, rootSeed)
	_, _ = mac.Write([]byte("veritext-kms-lite-v1"))
	_, _ = mac.Write([]byte{0})
	_, _ = mac.Write([]byte("role:"))
	_, _ = mac.Write([]byte(role))
	sum := mac.Sum(nil)
	if len(sum) < SeedSize {
		return nil, errors.New("kdf output too short")
	}
	out := make([]byte, SeedSize)
	copy(out, sum[:SeedSize])
	return out, nil
}
