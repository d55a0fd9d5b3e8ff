// Package verify re-checks published provenance envelopes.
//
// Verification is staged: structural checks on the envelope, signature
// recovery, then deep checks that refetch referenced artifacts from the CAS
// and recompute their digests. Failed checks accumulate as issues (fatal to
// the verdict) or warnings (degraded assurance); only an unfetchable or
// unparsable envelope aborts verification outright.
package verify

import (
	"context"
	"errors"

	"github.com/ipfs/go-cid"
	"golang.org/x/sync/errgroup"

	"github.com/veritext/veritext/attest"
	"github.com/veritext/veritext/canonical"
	"github.com/veritext/veritext/envelope"
	"github.com/veritext/veritext/record"
	"github.com/veritext/veritext/storage"
)

// Issue codes. An issue makes the report fail.
const (
	IssueMissingProvenance        = "missing_provenance"
	IssueMissingPromptHash        = "missing_prompt_hash"
	IssueMissingOutputHash        = "missing_output_hash"
	IssueMissingParamsHash        = "missing_params_hash"
	IssueMissingContentCID        = "missing_content_cid"
	IssueUnsupportedVersion       = "unsupported_version"
	IssuePromptHashMismatch       = "prompt_hash_mismatch"
	IssueExpectedKeywordsMissing  = "expected_keywords_missing"
	IssueExpectedKeywordNotFound  = "expected_keyword_not_found"
	IssueMissingSignature         = "missing_signature"
	IssueSignatureInvalid         = "signature_invalid"
	IssueSignatureRecoverMismatch = "signature_recover_mismatch"
	IssueOutputHashMismatch       = "output_hash_mismatch"
	IssueContentFetchFailed       = "content_fetch_failed"
	IssueStoredPromptHashMismatch = "stored_prompt_hash_mismatch"
	IssueKeywordsHashMismatch     = "keywords_hash_mismatch"
	IssueJournalMissingKeywords   = "journal_missing_keywords"
	IssueJournalFetchFailed       = "journal_fetch_failed"
)

// Warning codes. Warnings degrade assurance without failing the report.
const (
	WarnNoPromptSupplied   = "no_prompt_supplied"
	WarnProgramHashUnbound = "program_hash_not_bound"
	WarnProofUnverified    = "proof_unverified"
	WarnMockAttestation    = "mock_attestation"
	WarnPromptFetchFailed  = "prompt_fetch_failed"
	WarnUnclaimedSigner    = "unclaimed_signer"
)

// Request selects what to verify and how deep to go.
type Request struct {
	// SignedCID addresses the envelope bytes in the CAS.
	SignedCID cid.Cid
	// Prompt, when non-empty, is checked against the bound prompt hash.
	Prompt string
	// JournalCID and ProofCID override the record's artifact CIDs when
	// defined. Used to verify against externally supplied artifacts.
	JournalCID cid.Cid
	ProofCID   cid.Cid
	// ExpectKeywords are words the record's attestation must cover. A
	// non-empty list demands a bound keywordsHash; each listed word is
	// additionally checked against the journal's keyword list when the
	// journal is reachable.
	ExpectKeywords []string
	// IncludeContent refetches the content and rechecks the output hash.
	IncludeContent bool
}

// Report is the structured verification verdict.
type Report struct {
	OK       bool     `json:"ok"`
	Issues   []string `json:"issues"`
	Warnings []string `json:"warnings"`

	SignedCID       string         `json:"signedCid"`
	RecoveredSigner string         `json:"recoveredSigner,omitempty"`
	Provenance      *record.Record `json:"provenance,omitempty"`

	// Recomputed digests from refetched artifacts, when fetched.
	RecomputedOutputHash   string `json:"recomputedOutputHash,omitempty"`
	RecomputedPromptHash   string `json:"recomputedPromptHash,omitempty"`
	RecomputedKeywordsHash string `json:"recomputedKeywordsHash,omitempty"`

	// Keywords from the fetched journal, when available.
	Keywords []attest.Keyword `json:"keywords,omitempty"`
}

func (r *Report) issue(code string)   { r.Issues = append(r.Issues, code) }
func (r *Report) warning(code string) { r.Warnings = append(r.Warnings, code) }

// Verifier runs verification against a CAS.
type Verifier struct {
	CAS storage.CAS
}

// Verify fetches the envelope and runs all applicable checks.
//
// The returned error is non-nil only when the envelope itself cannot be
// fetched or parsed; every other failure lands in the report.
func (v *Verifier) Verify(ctx context.Context, req Request) (*Report, error) {
	if v == nil || v.CAS == nil {
		return nil, errors.New("verify: no CAS configured")
	}
	if !req.SignedCID.Defined() {
		return nil, storage.ErrInvalidCID
	}

	raw, err := v.CAS.Get(req.SignedCID)
	if err != nil {
		return nil, err
	}
	env, err := envelope.Parse(raw)
	if err != nil {
		return nil, err
	}

	rep := &Report{SignedCID: req.SignedCID.String()}

	if env.Provenance == nil {
		rep.issue(IssueMissingProvenance)
		return rep, nil
	}
	rec := env.Provenance
	rep.Provenance = rec

	v.checkStructure(rep, rec)
	v.checkPrompt(rep, rec, req.Prompt)
	v.checkSignature(rep, env)
	v.checkAttestationMeta(rep, rec, req)

	fetched := v.fetchArtifacts(ctx, env, req)
	v.checkContent(rep, rec, fetched)
	v.checkStoredPrompt(rep, rec, fetched)
	v.checkJournal(rep, rec, fetched)
	v.checkExpectedKeywords(rep, rec, req.ExpectKeywords)

	rep.OK = len(rep.Issues) == 0
	return rep, nil
}

func (v *Verifier) checkStructure(rep *Report, rec *record.Record) {
	if rec.Version != record.Version {
		rep.issue(IssueUnsupportedVersion)
	}
	if rec.PromptHash == "" || canonical.IsZero(rec.PromptHash) {
		rep.issue(IssueMissingPromptHash)
	}
	if rec.OutputHash == "" || canonical.IsZero(rec.OutputHash) {
		rep.issue(IssueMissingOutputHash)
	}
	if rec.ParamsHash == "" || canonical.IsZero(rec.ParamsHash) {
		rep.issue(IssueMissingParamsHash)
	}
	if rec.ContentCID == "" {
		rep.issue(IssueMissingContentCID)
	}
}

func (v *Verifier) checkPrompt(rep *Report, rec *record.Record, prompt string) {
	if prompt == "" {
		rep.warning(WarnNoPromptSupplied)
		return
	}
	got := canonical.DigestText(prompt)
	rep.RecomputedPromptHash = got
	if got != rec.PromptHash {
		rep.issue(IssuePromptHashMismatch)
	}
}

func (v *Verifier) checkSignature(rep *Report, env *envelope.Envelope) {
	// The unsigned marker is a publishable degraded state, but it carries no
	// signature and fails verification the same way an empty field does.
	if env.Signature == "" || env.Signature == envelope.UnsignedMarker {
		rep.issue(IssueMissingSignature)
		return
	}

	signer, err := envelope.RecoverSigner(env)
	if err != nil {
		rep.issue(IssueSignatureInvalid)
		return
	}
	rep.RecoveredSigner = signer
	if env.Signer == "" {
		// A signed envelope without a claimed signer pins trust entirely
		// to the recovered address, with nothing to cross-check it against.
		rep.warning(WarnUnclaimedSigner)
		return
	}
	if !envelope.EqualAddress(signer, env.Signer) {
		rep.issue(IssueSignatureRecoverMismatch)
	}
}

func (v *Verifier) checkAttestationMeta(rep *Report, rec *record.Record, req Request) {
	strategy := attest.Strategy(rec.AttestationStrategy)
	if strategy == attest.StrategyNone {
		return
	}
	if strategy == attest.StrategyMock {
		rep.warning(WarnMockAttestation)
	}
	if canonical.IsZero(rec.ProgramHash) {
		rep.warning(WarnProgramHashUnbound)
	}
	if rec.ProofCID != "" || req.ProofCID.Defined() {
		// Proof bytes are opaque without a verifier circuit on hand.
		rep.warning(WarnProofUnverified)
	}
}

// artifacts holds deep-fetch results. Fetches run concurrently; issue and
// warning appending happens afterwards in a fixed order so reports are
// deterministic.
type artifacts struct {
	content    []byte
	contentErr error
	didContent bool

	prompt    []byte
	promptErr error
	didPrompt bool

	journal    []byte
	journalErr error
	didJournal bool
}

func (v *Verifier) fetchArtifacts(ctx context.Context, env *envelope.Envelope, req Request) *artifacts {
	rec := env.Provenance
	art := &artifacts{}
	g, ctx := errgroup.WithContext(ctx)

	if req.IncludeContent && rec.ContentCID != "" {
		art.didContent = true
		g.Go(func() error {
			art.content, art.contentErr = v.getStr(ctx, rec.ContentCID)
			return nil
		})
	}

	if env.PromptCID != "" {
		art.didPrompt = true
		g.Go(func() error {
			art.prompt, art.promptErr = v.getStr(ctx, env.PromptCID)
			return nil
		})
	}

	journalCID := rec.JournalCID
	if req.JournalCID.Defined() {
		journalCID = req.JournalCID.String()
	}
	if journalCID != "" {
		art.didJournal = true
		g.Go(func() error {
			art.journal, art.journalErr = v.getStr(ctx, journalCID)
			return nil
		})
	}

	_ = g.Wait()
	return art
}

func (v *Verifier) getStr(ctx context.Context, s string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, err := cid.Decode(s)
	if err != nil || !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	return v.CAS.Get(id)
}

func (v *Verifier) checkContent(rep *Report, rec *record.Record, art *artifacts) {
	if !art.didContent {
		return
	}
	if art.contentErr != nil {
		rep.issue(IssueContentFetchFailed)
		return
	}
	got := canonical.DigestText(string(art.content))
	rep.RecomputedOutputHash = got
	if got != rec.OutputHash {
		rep.issue(IssueOutputHashMismatch)
	}
}

func (v *Verifier) checkStoredPrompt(rep *Report, rec *record.Record, art *artifacts) {
	if !art.didPrompt {
		return
	}
	if art.promptErr != nil {
		rep.warning(WarnPromptFetchFailed)
		return
	}
	if canonical.DigestText(string(art.prompt)) != rec.PromptHash {
		rep.issue(IssueStoredPromptHashMismatch)
	}
}

func (v *Verifier) checkJournal(rep *Report, rec *record.Record, art *artifacts) {
	if !art.didJournal {
		return
	}
	if art.journalErr != nil {
		rep.issue(IssueJournalFetchFailed)
		return
	}

	journal, err := attest.ParseJournal(art.journal)
	switch {
	case errors.Is(err, attest.ErrMissingKeywords):
		rep.issue(IssueJournalMissingKeywords)
		return
	case err != nil:
		rep.issue(IssueJournalFetchFailed)
		return
	}

	rep.Keywords = journal.Keywords
	got := attest.DigestKeywords(journal.Keywords)
	rep.RecomputedKeywordsHash = got
	if got != rec.KeywordsHash {
		rep.issue(IssueKeywordsHashMismatch)
	}
}

// checkExpectedKeywords enforces the caller's attestation demand. The demand
// is judged against the record's bound keywordsHash, not against journal
// reachability: a record whose attestation artifacts went unstored still has
// its keyword list committed in the hash. Word containment is a separate,
// stricter check that runs only when the journal was fetched and parsed.
func (v *Verifier) checkExpectedKeywords(rep *Report, rec *record.Record, expected []string) {
	if len(expected) == 0 {
		return
	}
	if rec.KeywordsHash == "" || canonical.IsZero(rec.KeywordsHash) {
		rep.issue(IssueExpectedKeywordsMissing)
		return
	}
	if len(rep.Keywords) == 0 {
		return
	}
	have := make(map[string]bool, len(rep.Keywords))
	for _, kw := range rep.Keywords {
		have[kw.Word] = true
	}
	for _, want := range expected {
		if !have[want] {
			rep.issue(IssueExpectedKeywordNotFound)
			return
		}
	}
}
