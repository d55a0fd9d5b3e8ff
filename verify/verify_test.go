package verify

import (
	"context"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ipfs/go-cid"

	"github.com/veritext/veritext/attest"
	"github.com/veritext/veritext/canonical"
	"github.com/veritext/veritext/envelope"
	"github.com/veritext/veritext/record"
	"github.com/veritext/veritext/storage"
	"github.com/veritext/veritext/storage/memory"
)

const (
	testPrompt = "Summarize the following text in one short paragraph:\n\nalpha beta alpha gamma"
	testOutput = "alpha beta alpha gamma gamma summary"
)

type fixture struct {
	cas *memory.CAS
	key *secp256k1.PrivateKey
	env *envelope.Envelope
	rec *record.Record
}

// newFixture builds a signed, attested envelope in a fresh CAS.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	cas := memory.New()
	runner := &attest.MockRunner{}
	att, err := runner.Run(context.Background(), testOutput)
	if err != nil {
		t.Fatalf("attest: %v", err)
	}

	b := &record.Builder{CAS: cas, Now: func() time.Time { return time.UnixMilli(1700000000000) }}
	rec, _, err := b.Build(record.Input{
		Prompt:      testPrompt,
		Output:      testOutput,
		ModelID:     "mock-local",
		ModelConfig: "mock-local-v1",
		Attestation: att,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	env, err := envelope.New(envelope.DefaultDomain(), rec)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	if err := envelope.Sign(env, key); err != nil {
		t.Fatalf("sign: %v", err)
	}

	return &fixture{cas: cas, key: key, env: env, rec: rec}
}

func (f *fixture) publish(t *testing.T) cid.Cid {
	t.Helper()
	b, err := f.env.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	id, err := f.cas.Put(b)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	return id
}

func hasCode(codes []string, want string) bool {
	for _, c := range codes {
		if c == want {
			return true
		}
	}
	return false
}

func TestVerifyRoundTripOK(t *testing.T) {
	f := newFixture(t)
	id := f.publish(t)

	v := &Verifier{CAS: f.cas}
	rep, err := v.Verify(context.Background(), Request{
		SignedCID:      id,
		Prompt:         testPrompt,
		IncludeContent: true,
		ExpectKeywords: []string{"alpha", "gamma"},
	})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !rep.OK {
		t.Fatalf("want OK report, issues=%v", rep.Issues)
	}
	if rep.RecoveredSigner == "" || !envelope.EqualAddress(rep.RecoveredSigner, f.env.Signer) {
		t.Fatalf("signer: got %s want %s", rep.RecoveredSigner, f.env.Signer)
	}
	if rep.RecomputedOutputHash != f.rec.OutputHash {
		t.Fatalf("recomputed output hash mismatch")
	}
	if !hasCode(rep.Warnings, WarnMockAttestation) {
		t.Fatalf("mock attestation should warn, got %v", rep.Warnings)
	}
	if len(rep.Keywords) == 0 {
		t.Fatalf("journal keywords not surfaced")
	}
}

func TestVerifyUnfetchableEnvelopeIsTerminal(t *testing.T) {
	f := newFixture(t)
	v := &Verifier{CAS: f.cas}

	absent := memory.New()
	id, err := absent.Put([]byte("elsewhere"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := v.Verify(context.Background(), Request{SignedCID: id}); !storage.IsNotFound(err) {
		t.Fatalf("got %v want ErrNotFound", err)
	}
}

func TestVerifyMissingProvenance(t *testing.T) {
	cas := memory.New()
	id, err := cas.Put([]byte(`{"primaryType":"ContentProvenance","signature":"unsigned"}`))
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	v := &Verifier{CAS: cas}
	rep, err := v.Verify(context.Background(), Request{SignedCID: id})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if rep.OK || !hasCode(rep.Issues, IssueMissingProvenance) {
		t.Fatalf("want missing_provenance, got %v", rep.Issues)
	}
}

func TestVerifyPromptMismatch(t *testing.T) {
	f := newFixture(t)
	id := f.publish(t)

	v := &Verifier{CAS: f.cas}
	rep, err := v.Verify(context.Background(), Request{SignedCID: id, Prompt: "a different prompt"})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if rep.OK || !hasCode(rep.Issues, IssuePromptHashMismatch) {
		t.Fatalf("want prompt_hash_mismatch, got %v", rep.Issues)
	}
}

func TestVerifyNoPromptWarns(t *testing.T) {
	f := newFixture(t)
	id := f.publish(t)

	v := &Verifier{CAS: f.cas}
	rep, err := v.Verify(context.Background(), Request{SignedCID: id})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !rep.OK {
		t.Fatalf("want OK, issues=%v", rep.Issues)
	}
	if !hasCode(rep.Warnings, WarnNoPromptSupplied) {
		t.Fatalf("want no_prompt_supplied warning, got %v", rep.Warnings)
	}
}

func TestVerifyOutputHashMismatch(t *testing.T) {
	f := newFixture(t)
	// Bind a different output hash than the stored content digests to.
	f.rec.OutputHash = canonical.DigestText("something else entirely")
	if err := envelope.Sign(f.env, f.key); err != nil {
		t.Fatalf("re-sign: %v", err)
	}
	id := f.publish(t)

	v := &Verifier{CAS: f.cas}
	rep, err := v.Verify(context.Background(), Request{SignedCID: id, IncludeContent: true})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if rep.OK || !hasCode(rep.Issues, IssueOutputHashMismatch) {
		t.Fatalf("want output_hash_mismatch, got %v", rep.Issues)
	}
}

func TestVerifyContentFetchFailed(t *testing.T) {
	f := newFixture(t)
	id := f.publish(t)

	// Republish into a CAS that has the envelope but not the content.
	raw, err := f.cas.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	sparse := memory.New()
	id2, err := sparse.Put(raw)
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	v := &Verifier{CAS: sparse}
	rep, err := v.Verify(context.Background(), Request{SignedCID: id2, IncludeContent: true})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if rep.OK || !hasCode(rep.Issues, IssueContentFetchFailed) {
		t.Fatalf("want content_fetch_failed, got %v", rep.Issues)
	}
	// Journal is also unfetchable in the sparse CAS.
	if !hasCode(rep.Issues, IssueJournalFetchFailed) {
		t.Fatalf("want journal_fetch_failed, got %v", rep.Issues)
	}
}

func TestVerifySignerMismatch(t *testing.T) {
	f := newFixture(t)
	f.env.Signer = "0x00000000000000000000000000000000000000ff"
	id := f.publish(t)

	v := &Verifier{CAS: f.cas}
	rep, err := v.Verify(context.Background(), Request{SignedCID: id})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if rep.OK || !hasCode(rep.Issues, IssueSignatureRecoverMismatch) {
		t.Fatalf("want signature_recover_mismatch, got %v", rep.Issues)
	}
}

func TestVerifyTamperedRecordBreaksSignature(t *testing.T) {
	f := newFixture(t)
	f.rec.ModelID = "tampered"
	id := f.publish(t)

	v := &Verifier{CAS: f.cas}
	rep, err := v.Verify(context.Background(), Request{SignedCID: id})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if rep.OK {
		t.Fatalf("tampered record must not verify")
	}
	if !hasCode(rep.Issues, IssueSignatureRecoverMismatch) && !hasCode(rep.Issues, IssueSignatureInvalid) {
		t.Fatalf("want a signature issue, got %v", rep.Issues)
	}
}

func TestVerifyUnsignedRecordFails(t *testing.T) {
	f := newFixture(t)
	f.env.Signature = envelope.UnsignedMarker
	f.env.Signer = ""
	id := f.publish(t)

	v := &Verifier{CAS: f.cas}
	rep, err := v.Verify(context.Background(), Request{SignedCID: id})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if rep.OK || !hasCode(rep.Issues, IssueMissingSignature) {
		t.Fatalf("unsigned marker must fail as missing_signature, got %v", rep.Issues)
	}

	f.env.Signature = ""
	id2 := f.publish(t)
	rep, err = v.Verify(context.Background(), Request{SignedCID: id2})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if rep.OK || !hasCode(rep.Issues, IssueMissingSignature) {
		t.Fatalf("want missing_signature, got %v", rep.Issues)
	}
}

func TestVerifyExpectedKeywordNotInJournal(t *testing.T) {
	f := newFixture(t)
	id := f.publish(t)
	v := &Verifier{CAS: f.cas}

	rep, err := v.Verify(context.Background(), Request{
		SignedCID:      id,
		ExpectKeywords: []string{"zebra"},
	})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if rep.OK || !hasCode(rep.Issues, IssueExpectedKeywordNotFound) {
		t.Fatalf("want expected_keyword_not_found, got %v", rep.Issues)
	}
}

func TestVerifyExpectedKeywordsWithUnstoredArtifacts(t *testing.T) {
	// Journal and proof puts failed at build time, so the record carries a
	// bound keywordsHash but no journal CID. The attestation demand is
	// satisfied by the bound hash; missing artifacts must not fail it.
	f := newFixture(t)
	f.rec.JournalCID = ""
	f.rec.ProofCID = ""
	if err := envelope.Sign(f.env, f.key); err != nil {
		t.Fatalf("re-sign: %v", err)
	}
	id := f.publish(t)

	v := &Verifier{CAS: f.cas}
	rep, err := v.Verify(context.Background(), Request{
		SignedCID:      id,
		ExpectKeywords: []string{"alpha"},
	})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if hasCode(rep.Issues, IssueExpectedKeywordsMissing) {
		t.Fatalf("bound keywordsHash satisfies the demand, got %v", rep.Issues)
	}
	if !rep.OK {
		t.Fatalf("want OK report, issues=%v", rep.Issues)
	}
}

func TestVerifyExpectedKeywordsWithoutAttestation(t *testing.T) {
	cas := memory.New()
	b := &record.Builder{CAS: cas, Now: func() time.Time { return time.UnixMilli(1700000000000) }}
	rec, _, err := b.Build(record.Input{
		Prompt:      "p",
		Output:      "o",
		ModelID:     "m",
		ModelConfig: "c",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	env, err := envelope.New(envelope.DefaultDomain(), rec)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	raw, err := env.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	id, err := cas.Put(raw)
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	v := &Verifier{CAS: cas}
	rep, err := v.Verify(context.Background(), Request{
		SignedCID:      id,
		ExpectKeywords: []string{"anything"},
	})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if rep.OK || !hasCode(rep.Issues, IssueExpectedKeywordsMissing) {
		t.Fatalf("no attestation cannot satisfy expected keywords, got %v", rep.Issues)
	}
}

func TestVerifySignedWithoutClaimedSigner(t *testing.T) {
	f := newFixture(t)
	f.env.Signer = ""
	id := f.publish(t)

	v := &Verifier{CAS: f.cas}
	rep, err := v.Verify(context.Background(), Request{SignedCID: id})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !rep.OK {
		t.Fatalf("want OK, issues=%v", rep.Issues)
	}
	if !hasCode(rep.Warnings, WarnUnclaimedSigner) {
		t.Fatalf("want unclaimed_signer warning, got %v", rep.Warnings)
	}
	if rep.RecoveredSigner == "" || !envelope.EqualAddress(rep.RecoveredSigner, envelope.AddressFromPub(f.key.PubKey())) {
		t.Fatalf("recovered signer not surfaced: %q", rep.RecoveredSigner)
	}
}

func TestVerifyKeywordsHashMismatch(t *testing.T) {
	f := newFixture(t)
	f.rec.KeywordsHash = canonical.DigestText("a different keyword list")
	if err := envelope.Sign(f.env, f.key); err != nil {
		t.Fatalf("re-sign: %v", err)
	}
	id := f.publish(t)

	v := &Verifier{CAS: f.cas}
	rep, err := v.Verify(context.Background(), Request{SignedCID: id})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if rep.OK || !hasCode(rep.Issues, IssueKeywordsHashMismatch) {
		t.Fatalf("want keywords_hash_mismatch, got %v", rep.Issues)
	}
}

func TestVerifyJournalMissingKeywords(t *testing.T) {
	f := newFixture(t)
	badJournal := []byte(`{"programHash":"0x1","inputHash":"0x2","outputHash":"0x2"}`)
	jid, err := f.cas.Put(badJournal)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	id := f.publish(t)

	v := &Verifier{CAS: f.cas}
	rep, err := v.Verify(context.Background(), Request{SignedCID: id, JournalCID: jid})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if rep.OK || !hasCode(rep.Issues, IssueJournalMissingKeywords) {
		t.Fatalf("want journal_missing_keywords, got %v", rep.Issues)
	}
}
