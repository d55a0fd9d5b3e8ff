package envelope

import (
	"strings"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/veritext/veritext/canonical"
	"github.com/veritext/veritext/record"
	"github.com/veritext/veritext/storage/memory"
)

func buildRecord(t *testing.T) *record.Record {
	t.Helper()
	b := &record.Builder{
		CAS: memory.New(),
		Now: func() time.Time { return time.UnixMilli(1700000000000) },
	}
	rec, _, err := b.Build(record.Input{
		Prompt:      "prompt text",
		Output:      "output text",
		ModelID:     "mock-local",
		ModelConfig: "mock-local-v1",
	})
	if err != nil {
		t.Fatalf("build record: %v", err)
	}
	return rec
}

func TestNewEnvelope(t *testing.T) {
	env, err := New(DefaultDomain(), buildRecord(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if env.PrimaryType != PrimaryType {
		t.Fatalf("primary type: got %s", env.PrimaryType)
	}
	if env.Signature != UnsignedMarker {
		t.Fatalf("fresh envelope should be unsigned")
	}
	if _, ok := env.Types["EIP712Domain"]; !ok {
		t.Fatalf("pruned types must keep the domain type")
	}
	if _, ok := env.Types[PrimaryType]; !ok {
		t.Fatalf("pruned types must keep the primary type")
	}
}

func TestNewRejectsInvalidRecord(t *testing.T) {
	rec := buildRecord(t)
	rec.ContentCID = ""
	if _, err := New(DefaultDomain(), rec); err == nil {
		t.Fatalf("invalid record must be rejected")
	}
	if _, err := New(DefaultDomain(), nil); err == nil {
		t.Fatalf("nil record must be rejected")
	}
}

func TestMarshalParseRoundTrip(t *testing.T) {
	env, err := New(DefaultDomain(), buildRecord(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	b, err := env.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	back, err := Parse(b)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if back.Provenance == nil {
		t.Fatalf("round trip lost the record")
	}
	if back.Provenance.OutputHash != env.Provenance.OutputHash {
		t.Fatalf("round trip changed the record")
	}
}

func TestParseDetectsMissingProvenance(t *testing.T) {
	back, err := Parse([]byte(`{"primaryType":"ContentProvenance","signature":"unsigned"}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if back.Provenance != nil {
		t.Fatalf("absent provenance should parse as nil")
	}
}

func TestDigestDeterministicAndSensitive(t *testing.T) {
	rec := buildRecord(t)
	env, err := New(DefaultDomain(), rec)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	d1, err := env.Digest()
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}
	d2, err := env.Digest()
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}
	if d1 != d2 {
		t.Fatalf("digest not deterministic")
	}

	// Any field change moves the digest.
	env.Provenance.OutputHash = canonical.DigestText("different output")
	d3, err := env.Digest()
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}
	if d3 == d1 {
		t.Fatalf("digest ignored a record field change")
	}

	// Domain changes move it too.
	env.Provenance.OutputHash = rec.OutputHash
	env.Domain.ChainID = 5
	d4, err := env.Digest()
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}
	if d4 == d1 {
		t.Fatalf("digest ignored a domain change")
	}
}

func TestSignAndRecover(t *testing.T) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	env, err := New(DefaultDomain(), buildRecord(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := Sign(env, key); err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if !env.Signed() {
		t.Fatalf("envelope should be signed")
	}
	if !strings.HasPrefix(env.Signature, "0x") || len(env.Signature) != 2+2*SignatureLen {
		t.Fatalf("signature shape: %s", env.Signature)
	}
	if !strings.HasPrefix(env.Signer, "0x") || len(env.Signer) != 42 {
		t.Fatalf("signer shape: %s", env.Signer)
	}

	got, err := RecoverSigner(env)
	if err != nil {
		t.Fatalf("RecoverSigner failed: %v", err)
	}
	if !EqualAddress(got, env.Signer) {
		t.Fatalf("recovered %s, claimed %s", got, env.Signer)
	}
	if !EqualAddress(got, AddressFromPub(key.PubKey())) {
		t.Fatalf("recovered address does not match the key")
	}
}

func TestRecoverDivergesOnTamperedRecord(t *testing.T) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	env, err := New(DefaultDomain(), buildRecord(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := Sign(env, key); err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	env.Provenance.ModelID = "tampered-model"
	got, err := RecoverSigner(env)
	if err == nil && EqualAddress(got, env.Signer) {
		t.Fatalf("tampered record still recovered the claimed signer")
	}
}

func TestRecoverRejectsUnsigned(t *testing.T) {
	env, err := New(DefaultDomain(), buildRecord(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := RecoverSigner(env); err == nil {
		t.Fatalf("unsigned envelope must not recover")
	}

	env.Signature = "0xdeadbeef"
	if _, err := RecoverSigner(env); err == nil {
		t.Fatalf("malformed signature must not recover")
	}
}

func TestErrorsCarryRuleIDs(t *testing.T) {
	_, err := New(DefaultDomain(), nil)
	if err == nil {
		t.Fatalf("want error")
	}
	if !IsKind(err, KindValidation) {
		t.Fatalf("want validation kind, got %v", err)
	}
	if RuleID(err) == "" {
		t.Fatalf("structured errors must carry a rule id")
	}
}
