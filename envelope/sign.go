package envelope

import (
	"encoding/hex"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// SignatureLen is the wire length of a signature: r || s || v.
const SignatureLen = 65

// Sign computes the envelope digest, signs it with key, and fills in the
// Signature and Signer fields.
func Sign(e *Envelope, key *secp256k1.PrivateKey) error {
	if key == nil {
		return newError(KindCrypto, "PROV-SIG-001", "nil signing key")
	}
	digest, err := e.Digest()
	if err != nil {
		return err
	}

	// SignCompact yields [v, r, s] with v in {27, 28} for uncompressed keys.
	compact := ecdsa.SignCompact(key, digest[:], false)
	sig := make([]byte, SignatureLen)
	copy(sig[0:32], compact[1:33])
	copy(sig[32:64], compact[33:65])
	sig[64] = compact[0]

	e.Signature = "0x" + hex.EncodeToString(sig)
	e.Signer = AddressFromPub(key.PubKey())
	return nil
}

// RecoverSigner recovers the signer address from the envelope's signature
// over its own digest. Fails on unsigned or malformed envelopes.
func RecoverSigner(e *Envelope) (string, error) {
	if !e.Signed() {
		return "", newError(KindCrypto, "PROV-SIG-002", "envelope is unsigned")
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(e.Signature, "0x"))
	if err != nil || len(raw) != SignatureLen {
		return "", newError(KindCrypto, "PROV-SIG-003", "malformed signature encoding")
	}

	digest, err := e.Digest()
	if err != nil {
		return "", err
	}

	v := raw[64]
	if v == 0 || v == 1 {
		v += 27
	}
	if v != 27 && v != 28 {
		return "", newError(KindCrypto, "PROV-SIG-004", "signature recovery id out of range")
	}

	compact := make([]byte, SignatureLen)
	compact[0] = v
	copy(compact[1:33], raw[0:32])
	copy(compact[33:65], raw[32:64])

	pub, _, err := ecdsa.RecoverCompact(compact, digest[:])
	if err != nil {
		return "", wrapError(KindCrypto, "PROV-SIG-005", "signature recovery failed", err)
	}
	return AddressFromPub(pub), nil
}

// AddressFromPub derives the lowercase hex address of a public key:
// the last 20 bytes of keccak256 over the uncompressed point.
func AddressFromPub(pub *secp256k1.PublicKey) string {
	raw := pub.SerializeUncompressed()
	h := keccak(raw[1:])
	return "0x" + hex.EncodeToString(h[12:])
}

// EqualAddress compares two addresses ignoring hex case.
func EqualAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
